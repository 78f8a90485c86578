package engine

import (
	"testing"

	"github.com/asoliveira/minas/pkg/clustering"
	"github.com/asoliveira/minas/pkg/config"
	"github.com/asoliveira/minas/pkg/events"
	"github.com/asoliveira/minas/pkg/microcluster"
)

// fixedAssignAdaptor returns a predetermined assignment regardless of k or
// x, giving tests full control over which instances become which
// candidate micro-cluster.
type fixedAssignAdaptor struct {
	labels []int
	calls  int
}

func (f *fixedAssignAdaptor) Cluster(k int, x [][]float64) ([]int, error) {
	f.calls++
	out := make([]int, len(f.labels))
	copy(out, f.labels)
	return out, nil
}

func micro1D(points []float64, label, tLast int) *microcluster.MicroCluster {
	batch := make([][]float64, len(points))
	for i, p := range points {
		batch[i] = []float64{p}
	}
	return microcluster.New(batch, 1, label, tLast)
}

func newTestEngine(adaptor clustering.Adaptor, cfg *config.Config) *Engine {
	e := New(adaptor, false, cfg)
	e.dim = 1
	e.trained = true
	return e
}

func TestEngine_PureAbsorption(t *testing.T) {
	e := newTestEngine(clustering.NewKMeans(1), config.Default())
	e.model = &microcluster.Model{Micros: []*microcluster.MicroCluster{
		micro1D([]float64{0, 1, -1}, 1, 0),
	}}
	e.classes = []int{1}

	pred, err := e.OnlineStep([]float64{0.3})
	if err != nil {
		t.Fatal(err)
	}
	if pred.Unknown || pred.Label != 1 {
		t.Fatalf("expected absorption into label 1, got %+v", pred)
	}
	if e.LastStepWasNovelty() {
		t.Error("novelty flag should be false")
	}
	if len(e.model.Micros) != 1 {
		t.Errorf("active model size should not change, got %d", len(e.model.Micros))
	}
}

func TestEngine_FarOutlierBuffers(t *testing.T) {
	e := newTestEngine(clustering.NewKMeans(1), config.Default())
	e.model = &microcluster.Model{Micros: []*microcluster.MicroCluster{
		micro1D([]float64{0, 1, -1}, 1, 0),
	}}
	e.classes = []int{1}

	pred, err := e.OnlineStep([]float64{100})
	if err != nil {
		t.Fatal(err)
	}
	if !pred.Unknown {
		t.Fatalf("expected unknown prediction, got %+v", pred)
	}
	if e.unknown.Len() != 1 {
		t.Errorf("expected 1 buffered record, got %d", e.unknown.Len())
	}
	if e.LastStepWasNovelty() {
		t.Error("novelty flag should be false")
	}
}

// TestEngine_NoveltyPromotionToNewClass buffers a tight cluster of
// far-away instances and confirms the novelty detector allocates a fresh
// class identifier once the cluster lies farther from the nearest known
// class than its own radius (cohesive, b > a), is outside the 1.1x label
// threshold of both known classes, and is large enough to be valid.
func TestEngine_NoveltyPromotionToNewClass(t *testing.T) {
	cfg := config.Default()
	cfg.NumExTrigger = 5
	cfg.Window = 100000
	cfg.KHint = 2

	adaptor := &fixedAssignAdaptor{labels: []int{0, 0, 0, 0, 0, 1}}
	e := newTestEngine(adaptor, cfg)
	e.model = &microcluster.Model{Micros: []*microcluster.MicroCluster{
		micro1D([]float64{-1, 0, 1}, 1, 0),
		micro1D([]float64{9, 10, 11}, 2, 0),
	}}
	e.classes = []int{1, 2}

	// 5 instances far from both known classes (cluster index 0), plus 1
	// near class 1 (cluster index 1, rejected as n=1 <= min_n=3) so the
	// adaptor's label list lines up with 6 buffered instances.
	stream := []float64{1000, 1000, 1000, 1000, 1000, -1}
	for _, x := range stream {
		if _, err := e.OnlineStep([]float64{x}); err != nil {
			t.Fatal(err)
		}
	}

	if adaptor.calls != 1 {
		t.Fatalf("expected novelty detection to run exactly once, got %d calls", adaptor.calls)
	}
	if e.NoveltyCount() != 1 {
		t.Fatalf("expected 1 novelty, got %d", e.NoveltyCount())
	}
	if !e.LastStepWasNovelty() {
		t.Error("expected novelty flag set on the triggering step")
	}

	found := false
	for _, mc := range e.model.Micros {
		if mc.Label == 3 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected new class 3 (max(C)+1) to be promoted, classes=%v", e.classes)
	}

	recorded := e.Events.All()
	if len(recorded) != 1 {
		t.Fatalf("expected exactly 1 event appended, got %d: %+v", len(recorded), recorded)
	}
	if recorded[0].Kind != events.KindNovel || recorded[0].Label != 3 || recorded[0].N != 5 {
		t.Fatalf("unexpected event %+v, want kind=novel label=3 n=5", recorded[0])
	}
}

// TestEngine_ExtensionOfKnownClass buffers instances that sit just beyond
// class 2's own absorption radius but within the resulting candidate's
// 1.1x radius of class 2's centroid, and confirms the candidate is folded
// into class 2 rather than becoming a new class.
func TestEngine_ExtensionOfKnownClass(t *testing.T) {
	cfg := config.Default()
	cfg.NumExTrigger = 5
	cfg.Window = 100000
	cfg.KHint = 2

	// Candidate points {10.05,10.05,10.05,12.05,12.05,12.05} have centroid
	// 11.05 and radius(1)=1 (symmetric ±1 offset construction), placing
	// class 2's centroid (10) at distance 1.05 — inside 1.1*1=1.1, but
	// outside the candidate's own absorption radius, so cohesion (b>a)
	// holds too.
	adaptor := &fixedAssignAdaptor{labels: []int{0, 0, 0, 0, 0, 0}}
	e := newTestEngine(adaptor, cfg)
	e.model = &microcluster.Model{Micros: []*microcluster.MicroCluster{
		micro1D([]float64{0, 0, 0}, 1, 0),
		micro1D([]float64{10, 10, 10}, 2, 0),
	}}
	e.classes = []int{1, 2}

	stream := []float64{10.05, 10.05, 10.05, 12.05, 12.05, 12.05}
	for _, x := range stream {
		if _, err := e.OnlineStep([]float64{x}); err != nil {
			t.Fatal(err)
		}
	}

	if adaptor.calls != 1 {
		t.Fatalf("expected detection to run once, got %d", adaptor.calls)
	}
	if e.NoveltyCount() != 0 {
		t.Fatalf("extension should not count as a novelty, got count=%d", e.NoveltyCount())
	}

	var extended bool
	for _, mc := range e.model.Micros {
		if mc.Label == 2 && mc.N == 6 {
			extended = true
		}
	}
	if !extended {
		t.Fatalf("expected a new label-2 micro-cluster from the extension, got %+v", e.model.Micros)
	}
}

// TestEngine_SleepAndRevive ages a micro-cluster into sleep memory, then
// confirms a later cohesive burst near its old centroid revives its label
// without allocating a new class.
func TestEngine_SleepAndRevive(t *testing.T) {
	cfg := config.Default()
	cfg.NumExTrigger = 100000 // don't trigger during ageing warm-up
	cfg.Window = 5
	cfg.KHint = 2

	e := newTestEngine(clustering.NewKMeans(1), cfg)
	e.model = &microcluster.Model{Micros: []*microcluster.MicroCluster{
		micro1D([]float64{0, 0, 0}, 1, 0),
		micro1D([]float64{1000, 1000, 1000}, 9, 0),
	}}
	e.classes = []int{1, 9}

	// Absorb into class 9 ten times to advance T without touching class 1,
	// until it ages past the window and moves to sleep.
	for i := 0; i < 10; i++ {
		if _, err := e.OnlineStep([]float64{1000}); err != nil {
			t.Fatal(err)
		}
	}
	if len(e.sleep.Micros) != 1 || e.sleep.Micros[0].Label != 1 {
		t.Fatalf("expected label-1 micro asleep after ageing, sleep=%+v", e.sleep.Micros)
	}
	if len(e.model.Micros) != 1 {
		t.Fatalf("expected only class 9 left active, got %+v", e.model.Micros)
	}

	// Now switch to an adaptor that builds one candidate (centroid 1.05,
	// radius(1)=1) cohesive with, and within 1.1x of, the sleeping
	// class-1 micro (centroid 0, distance 1.05).
	cfg.NumExTrigger = 5
	adaptor := &fixedAssignAdaptor{labels: []int{0, 0, 0, 0, 0, 0}}
	e.Configure(adaptor, false)

	stream := []float64{0.05, 0.05, 0.05, 2.05, 2.05, 2.05}
	for _, x := range stream {
		if _, err := e.OnlineStep([]float64{x}); err != nil {
			t.Fatal(err)
		}
	}

	if adaptor.calls != 1 {
		t.Fatalf("expected detection to run once, got %d", adaptor.calls)
	}
	if len(e.sleep.Micros) != 0 {
		t.Errorf("sleeping class-1 entry should have been removed, got %+v", e.sleep.Micros)
	}
	if e.NoveltyCount() != 0 {
		t.Errorf("revival should not count as a novelty, got %d", e.NoveltyCount())
	}

	var revived bool
	for _, mc := range e.model.Micros {
		if mc.Label == 1 && mc.N == 6 {
			revived = true
		}
	}
	if !revived {
		t.Fatalf("expected revived label-1 micro-cluster, got %+v", e.model.Micros)
	}
}

// TestEngine_CohesionRejection buffers a diffuse cloud centred exactly on
// a known micro-cluster's centroid and confirms it is discarded rather
// than promoted, leaving the buffered instances in place.
func TestEngine_CohesionRejection(t *testing.T) {
	cfg := config.Default()
	cfg.NumExTrigger = 5
	cfg.Window = 100000
	cfg.KHint = 2

	adaptor := &fixedAssignAdaptor{labels: []int{0, 0, 0, 0, 0, 0}}
	e := newTestEngine(adaptor, cfg)
	e.model = &microcluster.Model{Micros: []*microcluster.MicroCluster{
		micro1D([]float64{0, 0, 0}, 1, 0),
		micro1D([]float64{10, 10, 10}, 2, 0),
	}}
	e.classes = []int{1, 2}

	// Centroid exactly 10 (class 2's centroid), radius(1)=1: b=0, a=1, not
	// cohesive with its nearest active reference; no sleeping reference
	// exists either.
	stream := []float64{9, 9, 9, 11, 11, 11}
	for _, x := range stream {
		if _, err := e.OnlineStep([]float64{x}); err != nil {
			t.Fatal(err)
		}
	}

	if e.NoveltyCount() != 0 {
		t.Errorf("expected no novelty, got %d", e.NoveltyCount())
	}
	if e.LastStepWasNovelty() {
		t.Error("novelty flag should be false")
	}
	if e.unknown.Len() != 6 {
		t.Errorf("discarded candidate's instances should remain buffered, got %d", e.unknown.Len())
	}
}

// TestEngine_CandidateExactlyAtMinNIsRejected exercises the strict ">"
// validity boundary: a candidate with n == min_n is discarded even when
// cohesive with a known reference.
func TestEngine_CandidateExactlyAtMinNIsRejected(t *testing.T) {
	cfg := config.Default()
	cfg.NumExTrigger = 9
	cfg.Window = 100000
	cfg.KHint = 2

	labels := append(append([]int{}, repeat(0, 5)...), repeat(1, 5)...)
	adaptor := &fixedAssignAdaptor{labels: labels}
	e := newTestEngine(adaptor, cfg)
	e.model = &microcluster.Model{Micros: []*microcluster.MicroCluster{
		micro1D([]float64{0, 0.01, -0.01}, 1, 0),
	}}
	e.classes = []int{1}

	stream := []float64{49, 49, 49, 51, 51, 1000, 1000, 1000, 1001, 1001}
	for _, x := range stream {
		if _, err := e.OnlineStep([]float64{x}); err != nil {
			t.Fatal(err)
		}
	}

	if e.NoveltyCount() != 0 {
		t.Errorf("n == min_n must be rejected (strict >), got novelty count %d", e.NoveltyCount())
	}
	if e.unknown.Len() != 10 {
		t.Errorf("both exactly-at-threshold candidates should be discarded, buffer has %d", e.unknown.Len())
	}
}

func TestEngine_TriggerBoundary(t *testing.T) {
	cfg := config.Default()
	cfg.NumExTrigger = 4
	cfg.Window = 100000
	cfg.KHint = 1

	adaptor := &fixedAssignAdaptor{labels: []int{0, 0, 0, 0, 0}}
	e := newTestEngine(adaptor, cfg)
	e.model = &microcluster.Model{Micros: []*microcluster.MicroCluster{
		micro1D([]float64{0}, 1, 0),
	}}
	e.classes = []int{1}

	for i := 0; i < 4; i++ {
		if _, err := e.OnlineStep([]float64{1000}); err != nil {
			t.Fatal(err)
		}
	}
	if adaptor.calls != 0 {
		t.Fatalf("|U| == num_ex_trigger must not trigger detection, calls=%d", adaptor.calls)
	}

	if _, err := e.OnlineStep([]float64{1000}); err != nil {
		t.Fatal(err)
	}
	if adaptor.calls != 1 {
		t.Fatalf("|U| == num_ex_trigger+1 must trigger detection exactly once, calls=%d", adaptor.calls)
	}
}

func TestEngine_AgeingFiresExactlyAtWindow(t *testing.T) {
	cfg := config.Default()
	cfg.NumExTrigger = 100000
	cfg.Window = 3

	e := newTestEngine(clustering.NewKMeans(1), cfg)
	e.model = &microcluster.Model{Micros: []*microcluster.MicroCluster{
		micro1D([]float64{0}, 1, 0),
	}}
	e.classes = []int{1}

	// 3 far-outlier steps: T reaches 3, a multiple of window, but
	// T - t_last == 3 is not > window(3), so the micro stays active.
	for i := 0; i < 3; i++ {
		if _, err := e.OnlineStep([]float64{1000}); err != nil {
			t.Fatal(err)
		}
	}
	if len(e.model.Micros) != 1 {
		t.Fatalf("micro should still be active at T==window, got %+v", e.model.Micros)
	}

	// 3 more steps: T reaches 6, T - t_last == 6 > window(3): now stale.
	for i := 0; i < 3; i++ {
		if _, err := e.OnlineStep([]float64{1000}); err != nil {
			t.Fatal(err)
		}
	}
	if len(e.model.Micros) != 0 || len(e.sleep.Micros) != 1 {
		t.Fatalf("micro should be asleep by T==2*window, active=%+v sleep=%+v", e.model.Micros, e.sleep.Micros)
	}
}

func TestEngine_ClassMonotonicity(t *testing.T) {
	cfg := config.Default()
	cfg.NumExTrigger = 3
	cfg.Window = 100000
	cfg.KHint = 2

	e := newTestEngine(&fixedAssignAdaptor{labels: []int{0, 0, 0, 0}}, cfg)
	e.model = &microcluster.Model{Micros: []*microcluster.MicroCluster{
		micro1D([]float64{0}, 1, 0),
	}}
	e.classes = []int{1}

	for _, x := range []float64{1000, 1000, 1000, 1000} {
		if _, err := e.OnlineStep([]float64{x}); err != nil {
			t.Fatal(err)
		}
	}
	if e.NoveltyCount() != 1 {
		t.Fatalf("expected exactly one novelty, got %d", e.NoveltyCount())
	}

	prevMax := e.classes[len(e.classes)-1]
	for _, x := range []float64{-5000, -5000, -5000, -5000} {
		if _, err := e.OnlineStep([]float64{x}); err != nil {
			t.Fatal(err)
		}
	}
	newMax := e.classes[len(e.classes)-1]
	if newMax <= prevMax {
		t.Fatalf("second novel class id %d must exceed the first %d", newMax, prevMax)
	}
}

func TestEngine_DimensionMismatch(t *testing.T) {
	e := newTestEngine(clustering.NewKMeans(1), config.Default())
	e.model = &microcluster.Model{Micros: []*microcluster.MicroCluster{
		micro1D([]float64{0}, 1, 0),
	}}
	e.classes = []int{1}

	_, err := e.OnlineStep([]float64{1, 2})
	if err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestEngine_NotTrained(t *testing.T) {
	e := New(clustering.NewKMeans(1), false, config.Default())
	_, err := e.OnlineStep([]float64{1})
	if err != ErrNotTrained {
		t.Fatalf("expected ErrNotTrained, got %v", err)
	}
}

func repeat(v, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = v
	}
	return out
}
