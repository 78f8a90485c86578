// Package trainer builds MINAS's initial active model from a labelled
// training set, one batch per class (spec §4.4).
package trainer

import (
	"errors"
	"sort"

	"github.com/asoliveira/minas/pkg/clustering"
	"github.com/asoliveira/minas/pkg/microcluster"
)

// ErrEmptyTraining is returned when InitialTraining is called with zero
// rows or zero classes (spec §7).
var ErrEmptyTraining = errors.New("trainer: empty training set")

// EngineKHint is the engine-wide micro-count hint of spec §4.4 step 4
// ("Set the engine-wide micro-count hint k := 100"). Train does not use
// it; the novelty detector reads its k from config.Config.KHint, whose
// default is this same value.
const EngineKHint = 100

// Result is the outcome of offline training: the populated active model
// and the class registry it was built from.
type Result struct {
	Model   *microcluster.Model
	Classes []int
}

// Train implements spec §4.4:
//  1. C := distinct values of yTrain.
//  2. For each class c, k_c := floor(|X_c| / |X_train| * 100 * |C|),
//     clamped down to |X_c| when it exceeds the class's own instance
//     count, so the adaptor is never asked for more clusters than
//     instances.
//  3. Invoke the adaptor with (k_c, X_c); build k_c micros from the
//     resulting partition, each with label := c, t_last := 0.
//  4. Concatenate into the initial A.
//
// If k_c rounds to 0 for a very rare class, that class contributes no
// micros and cannot classify any stream instance until novelty detection
// rebuilds it (spec §4.4 edge case) — this is preserved as-is, per spec
// §9's note that callers must pre-validate class sizes if they want to
// avoid it.
func Train(adaptor clustering.Adaptor, xTrain [][]float64, yTrain []int) (*Result, error) {
	if len(xTrain) == 0 || len(xTrain) != len(yTrain) {
		return nil, ErrEmptyTraining
	}

	classes := distinctSorted(yTrain)
	if len(classes) == 0 {
		return nil, ErrEmptyTraining
	}

	dim := len(xTrain[0])
	model := &microcluster.Model{}
	total := len(xTrain)
	numClasses := len(classes)

	for _, c := range classes {
		var xc [][]float64
		for i, y := range yTrain {
			if y == c {
				xc = append(xc, xTrain[i])
			}
		}

		kc := int(float64(len(xc)) / float64(total) * 100 * float64(numClasses))
		if kc <= 0 {
			continue
		}
		if kc > len(xc) {
			kc = len(xc)
		}

		labels, err := adaptor.Cluster(kc, xc)
		if err != nil {
			return nil, err
		}
		if err := clustering.ValidateAssignment(kc, len(xc), labels); err != nil {
			return nil, err
		}

		for j := 0; j < kc; j++ {
			var members [][]float64
			for i, l := range labels {
				if l == j {
					members = append(members, xc[i])
				}
			}
			if len(members) == 0 {
				// DegenerateCluster: silently skip, per spec §7.
				continue
			}
			model.Append(microcluster.New(members, dim, c, 0))
		}
	}

	return &Result{Model: model, Classes: classes}, nil
}

func distinctSorted(y []int) []int {
	seen := map[int]bool{}
	for _, v := range y {
		seen[v] = true
	}
	out := make([]int, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}
