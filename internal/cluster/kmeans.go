// Package cluster partitions embedding vectors with k-means.
package cluster

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

// ErrInvalidInput is returned for empty, ragged or too-small inputs.
var ErrInvalidInput = errors.New("invalid k-means input")

// Options configures a k-means run.
type Options struct {
	K        int
	Restarts int
	MaxIter  int
	// Tol is relative to the mean per-dimension variance of the data.
	Tol  float64
	Seed uint64
}

// DefaultOptions returns the fixed settings used for briefing: seed 42,
// 10 restarts, 300 iterations, tolerance 1e-4.
func DefaultOptions(k int) Options {
	return Options{K: k, Restarts: 10, MaxIter: 300, Tol: 1e-4, Seed: 42}
}

// Result is the best restart by inertia.
type Result struct {
	Labels    []int
	Centroids [][]float64
	Inertia   float64
}

// Sizes counts members per label. Empty clusters report zero.
func (r Result) Sizes() []int {
	sizes := make([]int, len(r.Centroids))
	for _, l := range r.Labels {
		sizes[l]++
	}
	return sizes
}

// KMeans clusters points into opts.K groups using k-means++ seeding.
// For a fixed seed and input the result is deterministic.
func KMeans(points [][]float64, opts Options) (Result, error) {
	if len(points) == 0 {
		return Result{}, fmt.Errorf("%w: no points", ErrInvalidInput)
	}
	if opts.K < 1 || opts.K > len(points) {
		return Result{}, fmt.Errorf("%w: k=%d for %d points", ErrInvalidInput, opts.K, len(points))
	}
	dim := len(points[0])
	if dim == 0 {
		return Result{}, fmt.Errorf("%w: zero-dimension points", ErrInvalidInput)
	}
	for i, p := range points {
		if len(p) != dim {
			return Result{}, fmt.Errorf("%w: point %d has dimension %d, want %d", ErrInvalidInput, i, len(p), dim)
		}
	}
	if opts.Restarts < 1 {
		opts.Restarts = 1
	}
	if opts.MaxIter < 1 {
		opts.MaxIter = 1
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed))
	tol := opts.Tol * meanVariance(points)

	best := Result{Inertia: math.Inf(1)}
	for run := 0; run < opts.Restarts; run++ {
		centroids := seedPlusPlus(points, opts.K, rng)
		res := lloyd(points, centroids, opts.MaxIter, tol)
		if res.Inertia < best.Inertia {
			best = res
		}
	}
	return best, nil
}

func lloyd(points, centroids [][]float64, maxIter int, tol float64) Result {
	labels := make([]int, len(points))
	dim := len(points[0])
	next := make([][]float64, len(centroids))
	for i := range next {
		next[i] = make([]float64, dim)
	}
	counts := make([]int, len(centroids))

	for iter := 0; iter < maxIter; iter++ {
		assign(points, centroids, labels)

		for c := range next {
			clear(next[c])
			counts[c] = 0
		}
		for i, p := range points {
			floats.Add(next[labels[i]], p)
			counts[labels[i]]++
		}

		var shift float64
		for c := range centroids {
			if counts[c] == 0 {
				// empty cluster keeps its previous centroid
				copy(next[c], centroids[c])
				continue
			}
			floats.Scale(1/float64(counts[c]), next[c])
			d := floats.Distance(next[c], centroids[c], 2)
			shift += d * d
		}
		centroids, next = next, centroids

		if shift <= tol {
			break
		}
	}

	inertia := assign(points, centroids, labels)
	return Result{Labels: labels, Centroids: centroids, Inertia: inertia}
}

// assign labels every point with its nearest centroid and returns the inertia.
// Ties go to the lowest centroid index.
func assign(points, centroids [][]float64, labels []int) float64 {
	var inertia float64
	for i, p := range points {
		bestIdx, bestDist := 0, math.Inf(1)
		for c, centroid := range centroids {
			d := floats.Distance(p, centroid, 2)
			if d*d < bestDist {
				bestIdx, bestDist = c, d*d
			}
		}
		labels[i] = bestIdx
		inertia += bestDist
	}
	return inertia
}

func seedPlusPlus(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clone(points[rng.IntN(len(points))]))

	dist := make([]float64, len(points))
	for i, p := range points {
		d := floats.Distance(p, centroids[0], 2)
		dist[i] = d * d
	}

	for len(centroids) < k {
		total := floats.Sum(dist)
		var idx int
		if total == 0 {
			idx = rng.IntN(len(points))
		} else {
			target := rng.Float64() * total
			for idx = 0; idx < len(dist)-1; idx++ {
				target -= dist[idx]
				if target < 0 {
					break
				}
			}
		}
		c := clone(points[idx])
		centroids = append(centroids, c)

		for i, p := range points {
			d := floats.Distance(p, c, 2)
			if d*d < dist[i] {
				dist[i] = d * d
			}
		}
	}
	return centroids
}

func meanVariance(points [][]float64) float64 {
	dim := len(points[0])
	n := float64(len(points))
	mean := make([]float64, dim)
	for _, p := range points {
		floats.Add(mean, p)
	}
	floats.Scale(1/n, mean)

	var sum float64
	diff := make([]float64, dim)
	for _, p := range points {
		floats.SubTo(diff, p, mean)
		sum += floats.Dot(diff, diff)
	}
	return sum / (n * float64(dim))
}

func clone(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
