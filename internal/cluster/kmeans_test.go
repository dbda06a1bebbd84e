package cluster

import (
	"errors"
	"math"
	"slices"
	"testing"
)

func blobs() [][]float64 {
	return [][]float64{
		{0, 0}, {0.1, 0.2}, {0.2, 0.1}, {-0.1, 0},
		{10, 10}, {10.2, 9.9}, {9.8, 10.1}, {10.1, 10.2},
		{-10, 10}, {-9.9, 10.1}, {-10.2, 9.8},
	}
}

func TestKMeansSeparatesBlobs(t *testing.T) {
	t.Parallel()

	res, err := KMeans(blobs(), DefaultOptions(3))
	if err != nil {
		t.Fatalf("KMeans: %v", err)
	}
	if len(res.Labels) != 11 {
		t.Fatalf("expected one label per point, got %d", len(res.Labels))
	}

	groups := [][]int{{0, 1, 2, 3}, {4, 5, 6, 7}, {8, 9, 10}}
	seen := map[int]bool{}
	for _, g := range groups {
		label := res.Labels[g[0]]
		for _, idx := range g[1:] {
			if res.Labels[idx] != label {
				t.Fatalf("points %d and %d split: %v", g[0], idx, res.Labels)
			}
		}
		if seen[label] {
			t.Fatalf("two blobs share label %d: %v", label, res.Labels)
		}
		seen[label] = true
	}

	sizes := res.Sizes()
	slices.Sort(sizes)
	if !slices.Equal(sizes, []int{3, 4, 4}) {
		t.Fatalf("unexpected sizes %v", sizes)
	}
	if res.Inertia > 1 {
		t.Fatalf("inertia too high for tight blobs: %f", res.Inertia)
	}
}

func TestKMeansDeterministic(t *testing.T) {
	t.Parallel()

	a, err := KMeans(blobs(), DefaultOptions(4))
	if err != nil {
		t.Fatalf("KMeans: %v", err)
	}
	b, err := KMeans(blobs(), DefaultOptions(4))
	if err != nil {
		t.Fatalf("KMeans: %v", err)
	}
	if !slices.Equal(a.Labels, b.Labels) || a.Inertia != b.Inertia {
		t.Fatalf("runs differ: %v/%f vs %v/%f", a.Labels, a.Inertia, b.Labels, b.Inertia)
	}
}

func TestKMeansIdenticalPoints(t *testing.T) {
	t.Parallel()

	points := [][]float64{{1, 1}, {1, 1}, {1, 1}, {1, 1}}
	res, err := KMeans(points, DefaultOptions(2))
	if err != nil {
		t.Fatalf("KMeans: %v", err)
	}
	if res.Inertia != 0 {
		t.Fatalf("expected zero inertia, got %f", res.Inertia)
	}
	total := 0
	for _, s := range res.Sizes() {
		total += s
	}
	if total != 4 {
		t.Fatalf("sizes must cover all points: %v", res.Sizes())
	}
}

func TestKMeansRejectsBadInput(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		points [][]float64
		k      int
	}{
		"empty":      {nil, 2},
		"k too big":  {[][]float64{{1}, {2}}, 3},
		"k zero":     {[][]float64{{1}, {2}}, 0},
		"ragged":     {[][]float64{{1, 2}, {3}}, 1},
		"zero width": {[][]float64{{}, {}}, 1},
	}
	for name, tc := range cases {
		if _, err := KMeans(tc.points, DefaultOptions(tc.k)); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%s: expected ErrInvalidInput, got %v", name, err)
		}
	}
}

func TestKMeansFindsLowestInertiaOnLine(t *testing.T) {
	t.Parallel()

	points := [][]float64{{0}, {0.1}, {0.2}, {10}, {10.1}, {20}}
	res, err := KMeans(points, DefaultOptions(3))
	if err != nil {
		t.Fatalf("KMeans: %v", err)
	}
	sizes := res.Sizes()
	slices.Sort(sizes)
	if !slices.Equal(sizes, []int{1, 2, 3}) {
		t.Fatalf("unexpected sizes %v", sizes)
	}
	if math.Abs(res.Inertia-0.025) > 1e-9 {
		t.Fatalf("inertia = %f, want 0.025", res.Inertia)
	}
}
