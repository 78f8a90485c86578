// Package engine implements MINAS's online phase, novelty detector and
// public façade (spec §4.5, §4.6, §4.7): the per-instance routing between
// an existing micro-cluster and the short-term unknown buffer, the
// procedure that promotes buffered instances into new micro-clusters, and
// the ageing policy that retires stale state.
//
// The engine is single-threaded and synchronous: every OnlineStep call is
// an atomic unit from the caller's perspective, with no background timer
// driving ageing (spec §5). Callers needing concurrency shard by key and
// run independent Engine instances.
package engine

import (
	"errors"
	"fmt"
	"log"

	"github.com/asoliveira/minas/pkg/clustering"
	"github.com/asoliveira/minas/pkg/config"
	"github.com/asoliveira/minas/pkg/events"
	"github.com/asoliveira/minas/pkg/geometry"
	"github.com/asoliveira/minas/pkg/microcluster"
	"github.com/asoliveira/minas/pkg/trainer"
)

// ErrDimensionMismatch is returned when an instance's length does not
// match the dimensionality fixed by initial training (spec §7).
var ErrDimensionMismatch = geometry.ErrDimensionMismatch

// ErrNotTrained is returned by OnlineStep when InitialTraining has not
// been called yet — the engine has no fixed dimensionality or class
// registry to validate against.
var ErrNotTrained = errors.New("engine: online_step called before initial_training")

// UnknownLabel is the prediction emitted when an instance is buffered
// rather than absorbed (spec §4.5 step 5, "class 0").
const UnknownLabel = 0

// Prediction is the result of a single OnlineStep call.
type Prediction struct {
	Label   int
	Unknown bool
}

// Engine is MINAS's public façade (spec §4.7): configure, train, stream,
// and inspect the model.
type Engine struct {
	adaptor  clustering.Adaptor
	evaluate bool
	cfg      *config.Config

	dim     int
	trained bool

	t       int
	model   *microcluster.Model
	sleep   *microcluster.SleepMemory
	unknown *microcluster.ShortTermMemory
	classes []int

	noveltyCount int
	lastNovelty  bool

	predictions []Prediction

	Events *events.Log
}

// New builds an Engine configured with the given clustering adaptor,
// evaluation-mode flag, and tuning parameters. cfg may be nil, in which
// case config.Default() is used (spec §4.7 "configure(clustering_adaptor,
// evaluate_flag)").
func New(adaptor clustering.Adaptor, evaluate bool, cfg *config.Config) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Engine{
		adaptor:  adaptor,
		evaluate: evaluate,
		cfg:      cfg,
		model:    &microcluster.Model{},
		sleep:    &microcluster.SleepMemory{},
		unknown:  &microcluster.ShortTermMemory{},
		Events:   &events.Log{},
	}
}

// Configure replaces the clustering adaptor and evaluation flag on an
// already-constructed Engine, mirroring spec §4.7's
// configure(clustering_adaptor, evaluate_flag) entry point for callers
// that build the Engine before deciding how it should run.
func (e *Engine) Configure(adaptor clustering.Adaptor, evaluate bool) {
	e.adaptor = adaptor
	e.evaluate = evaluate
}

// InitialTraining runs the offline training phase (spec §4.4), populating
// the active model from a labelled training set and fixing the engine's
// instance dimensionality.
func (e *Engine) InitialTraining(xTrain [][]float64, yTrain []int) error {
	result, err := trainer.Train(e.adaptor, xTrain, yTrain)
	if err != nil {
		return err
	}
	e.model = result.Model
	e.classes = result.Classes
	e.dim = len(xTrain[0])
	e.trained = true
	return nil
}

// OnlineStep processes a single stream instance (spec §4.5): it routes x
// into an existing micro-cluster or the short-term buffer, triggers
// novelty detection once the buffer is large enough, and triggers ageing
// on fixed time-step intervals.
func (e *Engine) OnlineStep(x []float64) (Prediction, error) {
	if !e.trained {
		return Prediction{}, ErrNotTrained
	}
	if len(x) != e.dim {
		return Prediction{}, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(x), e.dim)
	}

	e.lastNovelty = false
	e.t++

	i, dStar, err := e.model.NearestIndex(x)
	if err != nil {
		return Prediction{}, err
	}

	var pred Prediction
	if i >= 0 && dStar <= e.model.Micros[i].Radius(e.cfg.AbsorptionFactor) {
		e.model.Absorb(i, x, e.t)
		pred = Prediction{Label: e.model.Micros[i].Label}
	} else {
		e.unknown.Append(x, e.t)
		pred = Prediction{Label: UnknownLabel, Unknown: true}

		if e.evaluate {
			e.recordPrediction(e.t, pred)
		}

		if e.unknown.Len() > e.cfg.NumExTrigger {
			if err := e.detectNovelty(); err != nil {
				return Prediction{}, err
			}
		}
		if e.t%e.cfg.Window == 0 {
			e.age()
		}
		return pred, nil
	}

	if e.evaluate {
		e.recordPrediction(e.t, pred)
	}
	if e.t%e.cfg.Window == 0 {
		e.age()
	}
	return pred, nil
}

func (e *Engine) age() {
	e.model.DropStaleMicros(e.t, e.cfg.Window, e.sleep)
	e.unknown.DropStaleUnknowns(e.t, e.cfg.Window)
}

func (e *Engine) recordPrediction(t int, p Prediction) {
	for len(e.predictions) < t {
		e.predictions = append(e.predictions, Prediction{})
	}
	e.predictions[t-1] = p
}

// detectNovelty implements spec §4.6: cluster the short-term buffer,
// validate each candidate micro-cluster for cohesion and size, and assign
// it a known/sleeping/new label.
func (e *Engine) detectNovelty() error {
	k := e.cfg.KHint
	n := e.unknown.Len()
	if n == 0 {
		return nil
	}
	if k > n {
		// The adaptor contract requires |X| >= k; the spec's fixed k=100
		// assumes a buffer much larger than k in practice (num_ex_trigger
		// defaults to 2000). Smaller test configurations may still
		// legitimately have fewer buffered instances than k, so clamp
		// rather than fail the whole detection pass.
		k = n
	}

	e.unknown.ResetTags()

	xU := make([][]float64, n)
	times := make([]int, n)
	for i, r := range e.unknown.Records {
		xU[i] = r.X
		times[i] = r.T
	}

	labels, err := e.adaptor.Cluster(k, xU)
	if err != nil {
		return err
	}
	if err := clustering.ValidateAssignment(k, n, labels); err != nil {
		return err
	}
	for i, l := range labels {
		e.unknown.Records[i].Tag = microcluster.TagCandidate(l)
	}

	minN := float64(n) / float64(k)

	for j := 0; j < k; j++ {
		var members [][]float64
		maxT := 0
		for i, l := range labels {
			if l != j {
				continue
			}
			members = append(members, xU[i])
			if times[i] > maxT {
				maxT = times[i]
			}
		}
		if len(members) == 0 {
			// DegenerateCluster (spec §7): the adaptor produced an empty
			// partition for this index. Skip it without failing the pass.
			continue
		}

		candidate := microcluster.New(members, e.dim, microcluster.UnassignedLabel, maxT)

		iA, dA, err := e.model.NearestIndex(candidate.Centroid())
		if err != nil {
			return err
		}
		iS, dS, err := e.sleep.NearestIndex(candidate.Centroid())
		if err != nil {
			return err
		}

		cohesiveA := iA >= 0 && cohesive(candidate, e.model.Micros[iA], e.cfg.AbsorptionFactor)
		cohesiveS := iS >= 0 && cohesive(candidate, e.sleep.Micros[iS], e.cfg.AbsorptionFactor)

		if !(cohesiveA || cohesiveS) || float64(candidate.N) <= minN {
			// Discard: leave the tagged instances in U for a future pass.
			continue
		}

		thresh := candidate.Radius(e.cfg.ExtensionFactor)

		var kind events.Kind
		switch {
		case iA >= 0 && dA <= thresh:
			candidate.Label = e.model.Micros[iA].Label
			kind = events.KindExtension
		case iS >= 0 && dS <= thresh:
			candidate.Label = e.sleep.Micros[iS].Label
			kind = events.KindRevival
			if err := e.sleep.Remove(iS); err != nil {
				return err
			}
		default:
			candidate.Label = maxInt(e.classes) + 1
			e.classes = append(e.classes, candidate.Label)
			kind = events.KindNovel
			e.noveltyCount++
			e.lastNovelty = true
		}

		e.model.Append(candidate)

		if e.evaluate {
			for i, l := range labels {
				if l == j {
					e.recordPrediction(times[i], Prediction{Label: candidate.Label})
				}
			}
		}
		e.unknown.RemoveCandidate(j)

		e.Events.Append(events.New(kind, candidate.Label, e.t, candidate.N))
		log.Printf("minas: promoted candidate (kind=%s label=%d n=%d t=%d)", kind, candidate.Label, candidate.N, e.t)
	}

	return nil
}

// cohesive reports whether candidate's centroid lies farther from ref's
// centroid than the candidate's own radius (spec §4.6.b):
// (b-a)/max(b,a) > 0 reduces to b > a for any b, a >= 0, including the
// degenerate b == a == 0 case (identical centroids, spec §8 property 7).
func cohesive(candidate, ref *microcluster.MicroCluster, absorptionFactor float64) bool {
	b := geometry.MustDistance(candidate.Centroid(), ref.Centroid())
	a := candidate.Radius(absorptionFactor)
	return b > a
}

func maxInt(xs []int) int {
	if len(xs) == 0 {
		return 0
	}
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

// GetModel returns the active model A.
func (e *Engine) GetModel() []*microcluster.MicroCluster { return e.model.Micros }

// GetSleep returns the sleep memory S.
func (e *Engine) GetSleep() []*microcluster.MicroCluster { return e.sleep.Micros }

// GetUnknownBuffer returns the short-term memory U.
func (e *Engine) GetUnknownBuffer() []microcluster.UnknownRecord { return e.unknown.Records }

// GetPredictions returns the prediction log. Only meaningful in
// evaluation mode; returns nil otherwise (spec §4.7).
func (e *Engine) GetPredictions() []Prediction {
	if !e.evaluate {
		return nil
	}
	return e.predictions
}

// NoveltyCount returns the number of novelty patterns discovered so far.
func (e *Engine) NoveltyCount() int { return e.noveltyCount }

// LastStepWasNovelty reports whether the most recent OnlineStep call
// discovered a new class.
func (e *Engine) LastStepWasNovelty() bool { return e.lastNovelty }

// Clock returns the engine's current time-step T.
func (e *Engine) Clock() int { return e.t }

// Classes returns the current class registry C.
func (e *Engine) Classes() []int { return append([]int(nil), e.classes...) }
