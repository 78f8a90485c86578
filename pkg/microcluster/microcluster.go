// Package microcluster holds MINAS's in-memory collections: the active
// model (A), the sleep memory (S), and the short-term unknown buffer (U),
// plus the incremental statistics and ageing operations defined over them.
//
// A micro-cluster here is a sufficient-statistics summary of a point set —
// it never stores the raw instances it absorbed, only their count (n),
// linear sum (ls) and sum of squares (ss), per spec §3.
package microcluster

import (
	"errors"
	"fmt"
	"math"

	"github.com/asoliveira/minas/pkg/geometry"
)

// ErrSleepIndexOutOfRange is returned by Revive when asked to revive a
// sleep-memory index that does not exist.
var ErrSleepIndexOutOfRange = errors.New("microcluster: sleep index out of range")

// UnassignedLabel marks a just-built candidate micro-cluster that has not
// yet been classified by the novelty detector (spec §3).
const UnassignedLabel = -1

// MicroCluster is the sufficient-statistics summary of a point set.
type MicroCluster struct {
	N     int
	LS    []float64
	SS    []float64
	Label int
	TLast int
}

// Stats adapts a MicroCluster to geometry.Stats so the geometry package
// never needs to know about labels or timestamps.
func (m *MicroCluster) Stats() geometry.Stats {
	return geometry.Stats{N: m.N, LS: m.LS, SS: m.SS}
}

// Centroid returns the micro-cluster's centroid.
func (m *MicroCluster) Centroid() []float64 { return geometry.Centroid(m.Stats()) }

// Radius returns the micro-cluster's radius scaled by f.
func (m *MicroCluster) Radius(f float64) float64 { return geometry.Radius(m.Stats(), f) }

// New builds a micro-cluster from a batch of instances sharing a cluster
// index, the way the offline trainer and the novelty detector both do
// (spec §4.4/§4.6's make_micro).
func New(instances [][]float64, dim int, label int, tLast int) *MicroCluster {
	ls := make([]float64, dim)
	ss := make([]float64, dim)
	for _, x := range instances {
		for i, v := range x {
			ls[i] += v
			ss[i] += v * v
		}
	}
	return &MicroCluster{N: len(instances), LS: ls, SS: ss, Label: label, TLast: tLast}
}

// Absorb folds a new instance into the micro-cluster in place: n += 1,
// ls += x, ss += x⊙x, t_last := t (spec §4.2). Absorb never decreases n or
// t_last.
func (m *MicroCluster) Absorb(x []float64, t int) {
	m.N++
	for i, v := range x {
		m.LS[i] += v
		m.SS[i] += v * v
	}
	m.TLast = t
}

// Tag is the short-term memory record's classification state: either
// still-unknown, or tagged with the candidate cluster index assigned to it
// during the current novelty-detection pass (spec §9, "short-memory
// tagging" — this replaces the source's overloaded string column with a
// tagged variant).
type Tag struct {
	candidate bool
	index     int
}

// TagUnknown is the initial tag every short-term record carries on arrival
// and is reset to at the start of each detection pass.
var TagUnknown = Tag{}

// TagCandidate marks a record as belonging to the j-th cluster produced by
// the current novelty-detection clustering pass.
func TagCandidate(j int) Tag { return Tag{candidate: true, index: j} }

// IsCandidate reports whether the tag identifies a clustering-pass
// candidate index, and if so, which one.
func (t Tag) IsCandidate() (int, bool) { return t.index, t.candidate }

// UnknownRecord is a single instance buffered in short-term memory,
// awaiting novelty detection or expiry by DropStaleUnknowns.
type UnknownRecord struct {
	X   []float64
	T   int
	Tag Tag
}

// Model is the active model A: the ordered collection of micro-clusters
// currently eligible to absorb incoming instances. Iteration order is not
// semantically significant except that newly discovered micros are
// appended (spec §3).
type Model struct {
	Micros []*MicroCluster
}

// Absorb updates Model.Micros[i] in place with x at time t.
func (m *Model) Absorb(i int, x []float64, t int) {
	m.Micros[i].Absorb(x, t)
}

// Append adds a newly built or revived micro-cluster to the active model.
func (m *Model) Append(mc *MicroCluster) {
	m.Micros = append(m.Micros, mc)
}

// NearestIndex returns the index of, and distance to, the micro-cluster in
// Micros whose centroid is closest to x. Ties are broken by first
// occurrence in iteration order (spec §4.5 step 3). Returns (-1, +Inf, nil)
// if Micros is empty.
func (m *Model) NearestIndex(x []float64) (int, float64, error) {
	return nearest(m.Micros, x)
}

// DropStaleMicros moves every micro-cluster whose t_last is more than
// window steps behind the current clock t into sleep, per spec §4.2. It
// mutates both m and sleep, and iterates Micros to completion even when
// several entries are moved: stale indices are collected ascending first,
// then removed from the end backwards so earlier removals never shift the
// index of a later one still to be removed (spec §4.2, §9 "move_sleepMem").
func (m *Model) DropStaleMicros(t, window int, sleep *SleepMemory) {
	var stale []int
	for i, mc := range m.Micros {
		if t-mc.TLast > window {
			stale = append(stale, i)
		}
	}
	for i := len(stale) - 1; i >= 0; i-- {
		idx := stale[i]
		sleep.Micros = append(sleep.Micros, m.Micros[idx])
		m.Micros = append(m.Micros[:idx], m.Micros[idx+1:]...)
	}
}

// SleepMemory is S: micro-clusters retired from A for inactivity, eligible
// for label revival by the novelty detector (spec §3).
type SleepMemory struct {
	Micros []*MicroCluster
}

// NearestIndex returns the index of, and distance to, the sleeping
// micro-cluster closest to x. Returns (-1, +Inf, nil) if S is empty.
func (s *SleepMemory) NearestIndex(x []float64) (int, float64, error) {
	return nearest(s.Micros, x)
}

// Remove deletes S[j] without returning it to the active model — used when
// a promoted candidate takes over a sleeping label under the same
// identifier rather than reviving the original object (spec §4.6.e).
func (s *SleepMemory) Remove(j int) error {
	if j < 0 || j >= len(s.Micros) {
		return fmt.Errorf("%w: index %d, len %d", ErrSleepIndexOutOfRange, j, len(s.Micros))
	}
	s.Micros = append(s.Micros[:j], s.Micros[j+1:]...)
	return nil
}

// Revive removes S[j] and appends it to the active model, preserving its
// identity and statistics (spec §3 "Lifecycle", spec §4.2 revive(j)).
func (s *SleepMemory) Revive(j int, into *Model) error {
	if j < 0 || j >= len(s.Micros) {
		return fmt.Errorf("%w: index %d, len %d", ErrSleepIndexOutOfRange, j, len(s.Micros))
	}
	mc := s.Micros[j]
	if err := s.Remove(j); err != nil {
		return err
	}
	into.Append(mc)
	return nil
}

// ShortTermMemory is U: the ordered buffer of unknown-instance records
// awaiting novelty detection (spec §3).
type ShortTermMemory struct {
	Records []UnknownRecord
}

// Append pushes a new unknown record tagged TagUnknown.
func (u *ShortTermMemory) Append(x []float64, t int) {
	u.Records = append(u.Records, UnknownRecord{X: x, T: t, Tag: TagUnknown})
}

// Len returns the number of buffered records.
func (u *ShortTermMemory) Len() int { return len(u.Records) }

// ResetTags resets every record's tag to TagUnknown, done once at the
// start of each novelty-detection pass before re-clustering (spec §9).
func (u *ShortTermMemory) ResetTags() {
	for i := range u.Records {
		u.Records[i].Tag = TagUnknown
	}
}

// RemoveCandidate removes every record tagged as candidate j — the
// instances that have just been promoted into a new or extended
// micro-cluster (spec §4.6.g).
func (u *ShortTermMemory) RemoveCandidate(j int) {
	kept := u.Records[:0]
	for _, r := range u.Records {
		if idx, ok := r.Tag.IsCandidate(); ok && idx == j {
			continue
		}
		kept = append(kept, r)
	}
	u.Records = kept
}

// DropStaleUnknowns removes every record whose arrival time t is more than
// window steps behind the current clock t_now (spec §4.2). This performs a
// real expiry, in contrast to the source's remove_oldExamples, which
// called a non-mutating drop and discarded the result (spec §9 — the
// divergence from source behaviour is intentional, not an oversight).
func (u *ShortTermMemory) DropStaleUnknowns(tNow, window int) {
	kept := u.Records[:0]
	for _, r := range u.Records {
		if tNow-r.T > window {
			continue
		}
		kept = append(kept, r)
	}
	u.Records = kept
}

func nearest(micros []*MicroCluster, x []float64) (int, float64, error) {
	if len(micros) == 0 {
		return -1, math.Inf(1), nil
	}
	best := -1
	bestDist := math.Inf(1)
	for i, mc := range micros {
		d, err := geometry.Distance(x, mc.Centroid())
		if err != nil {
			return -1, 0, err
		}
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best, bestDist, nil
}
