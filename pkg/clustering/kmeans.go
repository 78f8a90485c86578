// KMeans is MINAS's default Adaptor: a CPU, arbitrary-dimension,
// k-means++-seeded clustering primitive with a fixed random seed for
// determinism (spec §4.3, §6).
//
// Adapted down from the teacher's GPU-resident k-means (built for
// clustering tens of thousands of high-dimensional embeddings, with Metal
// / CUDA buffer management and an auto-K heuristic): MINAS instances are
// low-dimensional, fixed-size numeric feature vectors and the caller
// always supplies k explicitly, so the GPU plumbing and auto-K heuristic
// are dropped, while the assignment/update loop and the k-means++ seeding
// strategy are kept.
package clustering

import (
	"errors"
	"math"
	"math/rand"
)

// ErrInvalidK is returned when k is not a positive integer.
var ErrInvalidK = errors.New("clustering: k must be >= 1")

// KMeans implements Adaptor with Lloyd's algorithm, k-means++
// initialisation, and a fixed seed so that repeated calls on the same
// input produce the same assignment (spec §4.3's determinism
// requirement).
type KMeans struct {
	MaxIterations int
	Seed          int64
}

// NewKMeans returns a KMeans adaptor with the given seed and a sensible
// iteration cap.
func NewKMeans(seed int64) *KMeans {
	return &KMeans{MaxIterations: 100, Seed: seed}
}

// Cluster partitions x into k groups. |x| must be >= k (spec §4.3).
func (km *KMeans) Cluster(k int, x [][]float64) ([]int, error) {
	n := len(x)
	if k < 1 {
		return nil, ErrInvalidK
	}
	if n < k {
		return nil, ErrTooFewInstances
	}

	rng := rand.New(rand.NewSource(km.Seed))
	dims := len(x[0])

	centroids := initCentroidsPlusPlus(rng, x, k, dims)
	assignments := make([]int, n)

	maxIter := km.MaxIterations
	if maxIter <= 0 {
		maxIter = 100
	}

	for iter := 0; iter < maxIter; iter++ {
		changed := assignToCentroids(x, centroids, assignments)
		updateCentroids(x, assignments, centroids, dims)
		if changed == 0 {
			break
		}
	}

	return assignments, nil
}

func initCentroidsPlusPlus(rng *rand.Rand, x [][]float64, k, dims int) [][]float64 {
	n := len(x)
	centroids := make([][]float64, k)

	first := rng.Intn(n)
	centroids[0] = append([]float64(nil), x[first]...)

	minDist := make([]float64, n)
	for i := range x {
		minDist[i] = squaredDistance(x[i], centroids[0])
	}

	for c := 1; c < k; c++ {
		var total float64
		for _, d := range minDist {
			total += d
		}

		var target float64
		if total > 0 {
			target = rng.Float64() * total
		}

		selected := n - 1
		var cum float64
		for i, d := range minDist {
			cum += d
			if cum >= target {
				selected = i
				break
			}
		}

		centroids[c] = append([]float64(nil), x[selected]...)
		for i := range x {
			d := squaredDistance(x[i], centroids[c])
			if d < minDist[i] {
				minDist[i] = d
			}
		}
	}

	return centroids
}

func assignToCentroids(x [][]float64, centroids [][]float64, assignments []int) int {
	changed := 0
	for i, p := range x {
		best := 0
		bestDist := math.MaxFloat64
		for c, centroid := range centroids {
			d := squaredDistance(p, centroid)
			if d < bestDist {
				bestDist = d
				best = c
			}
		}
		if assignments[i] != best {
			assignments[i] = best
			changed++
		}
	}
	return changed
}

func updateCentroids(x [][]float64, assignments []int, centroids [][]float64, dims int) {
	k := len(centroids)
	sums := make([][]float64, k)
	counts := make([]int, k)
	for c := 0; c < k; c++ {
		sums[c] = make([]float64, dims)
	}

	for i, p := range x {
		c := assignments[i]
		counts[c]++
		for d := 0; d < dims; d++ {
			sums[c][d] += p[d]
		}
	}

	for c := 0; c < k; c++ {
		if counts[c] == 0 {
			// Empty clusters keep their previous position; the engine
			// treats a zero-n candidate downstream as DegenerateCluster.
			continue
		}
		for d := 0; d < dims; d++ {
			centroids[c][d] = sums[c][d] / float64(counts[c])
		}
	}
}

func squaredDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
