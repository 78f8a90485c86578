// Package geometry provides the pure vector math MINAS uses to summarise
// and compare micro-clusters: centroid, variance, radius and Euclidean
// distance over a micro-cluster's sufficient statistics.
package geometry

import (
	"errors"
	"fmt"
	"math"
)

// ErrDimensionMismatch is returned when two vectors (or a vector and a
// micro-cluster's statistics) do not share the same dimensionality.
var ErrDimensionMismatch = errors.New("geometry: dimension mismatch")

// Stats is the minimal sufficient-statistics view geometry operates on: a
// count, a linear sum and a sum of squares, all of the same dimension.
// pkg/microcluster.MicroCluster satisfies this by exposing its own n/ls/ss
// fields through the same shape.
type Stats struct {
	N  int
	LS []float64
	SS []float64
}

// Centroid returns the component-wise mean ls/n.
//
// n is never zero for a live micro-cluster (spec.md §6), so division is
// safe without a guard.
func Centroid(s Stats) []float64 {
	c := make([]float64, len(s.LS))
	n := float64(s.N)
	for i, v := range s.LS {
		c[i] = v / n
	}
	return c
}

// Variance returns the component-wise variance
// (ss - 2*ls*c + n*c^2) / n, clamping any component that goes slightly
// negative due to floating-point cancellation to zero before it is used
// anywhere (notably before Radius's square root).
func Variance(s Stats) []float64 {
	c := Centroid(s)
	n := float64(s.N)
	v := make([]float64, len(s.LS))
	for i := range s.LS {
		raw := (s.SS[i] - 2*s.LS[i]*c[i] + n*c[i]*c[i]) / n
		if raw < 0 {
			raw = 0
		}
		v[i] = raw
	}
	return v
}

// Radius returns f * sqrt(sum(variance)). f=1 is used to test absorption,
// f=1.1 as the label-match threshold during novelty detection (spec.md
// §3/§4.6).
func Radius(s Stats, f float64) float64 {
	v := Variance(s)
	var sum float64
	for _, d := range v {
		sum += d
	}
	return f * math.Sqrt(sum)
}

// Distance returns the Euclidean distance between two equal-length
// vectors. Mismatched dimensions are a programming error surfaced via
// ErrDimensionMismatch rather than a panic, so callers that mix
// caller-supplied and derived vectors get a clear failure instead of an
// out-of-range index.
func Distance(p, q []float64) (float64, error) {
	if len(p) != len(q) {
		return 0, fmt.Errorf("%w: len(p)=%d len(q)=%d", ErrDimensionMismatch, len(p), len(q))
	}
	var sum float64
	for i := range p {
		d := p[i] - q[i]
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// MustDistance is Distance without the error return, for call sites that
// have already validated dimensionality once at the engine boundary (the
// online phase validates the incoming instance's dimension a single time
// per step; every subsequent nearest-micro comparison in that step reuses
// the guarantee instead of re-checking it).
func MustDistance(p, q []float64) float64 {
	d, err := Distance(p, q)
	if err != nil {
		panic(err)
	}
	return d
}
