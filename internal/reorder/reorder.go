// Package reorder recovers a temporal ordering of frames by chaining each
// frame to its nearest unvisited neighbor, starting from an extremal frame.
//
// The chain is an open path with no known direction: image similarity cannot
// tell forward from backward, so callers materialize both orientations.
package reorder

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrEmptyInput is returned when there is nothing to order.
	ErrEmptyInput = errors.New("no frames to reorder")
	// ErrDimensionMismatch is returned when pixel buffers differ in length.
	ErrDimensionMismatch = errors.New("frame buffers differ in size")
)

// TieBreak picks between equally distant candidates.
type TieBreak int

const (
	LowestIndex  TieBreak = iota // First candidate in scan order wins.
	HighestIndex                 // Last candidate in scan order wins.
)

// Seeder chooses the frame the chain starts from.
type Seeder interface {
	Seed(d *mat.SymDense) int
}

// Options configure Reconstruct. The zero value uses ExtremalSeeder and LowestIndex.
type Options struct {
	Seeder   Seeder
	TieBreak TieBreak
}

// DistanceMatrix returns the pairwise Euclidean distances between flattened buffers.
func DistanceMatrix(frames [][]byte) (*mat.SymDense, error) {
	m := len(frames)
	if m == 0 {
		return nil, ErrEmptyInput
	}
	size := len(frames[0])
	for i, f := range frames {
		if len(f) != size {
			return nil, fmt.Errorf("%w: frame %d has %d samples, want %d", ErrDimensionMismatch, i, len(f), size)
		}
	}

	d := mat.NewSymDense(m, nil)
	for i := 0; i < m; i++ {
		for j := i + 1; j < m; j++ {
			d.SetSym(i, j, euclidean(frames[i], frames[j]))
		}
	}
	return d, nil
}

func euclidean(a, b []byte) float64 {
	var sum uint64
	for k := range a {
		diff := int64(a[k]) - int64(b[k])
		sum += uint64(diff * diff)
	}
	return math.Sqrt(float64(sum))
}

// ExtremalSeeder starts from the frame with the largest total distance to all
// others, on the premise that temporal endpoints are the least typical frames.
// Two unrelated outlier-ish frames can mislead it.
type ExtremalSeeder struct{}

func (ExtremalSeeder) Seed(d *mat.SymDense) int {
	return floats.MaxIdx(rowSums(d))
}

// FarthestPairSeeder starts from one end of the globally farthest pair,
// choosing the end with the larger total distance.
type FarthestPairSeeder struct{}

func (FarthestPairSeeder) Seed(d *mat.SymDense) int {
	n := d.SymmetricDim()
	if n < 2 {
		return 0
	}
	bi, bj, best := 0, 1, math.Inf(-1)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if v := d.At(i, j); v > best {
				bi, bj, best = i, j, v
			}
		}
	}
	sums := rowSums(d)
	if sums[bj] > sums[bi] {
		return bj
	}
	return bi
}

func rowSums(d *mat.SymDense) []float64 {
	n := d.SymmetricDim()
	sums := make([]float64, n)
	row := make([]float64, n)
	for i := 0; i < n; i++ {
		mat.Row(row, i, d)
		sums[i] = floats.Sum(row)
	}
	return sums
}

// Reconstruct orders frames so each step moves to the closest unvisited frame.
// The result is a permutation of [0, len(frames)).
func Reconstruct(frames [][]byte, opts Options) ([]int, error) {
	switch len(frames) {
	case 0:
		return nil, ErrEmptyInput
	case 1:
		return []int{0}, nil
	}
	d, err := DistanceMatrix(frames)
	if err != nil {
		return nil, err
	}
	return Chain(d, opts), nil
}

// Chain walks the greedy nearest-neighbor path over a precomputed distance matrix.
func Chain(d *mat.SymDense, opts Options) []int {
	n := d.SymmetricDim()
	if n == 0 {
		return nil
	}
	seeder := opts.Seeder
	if seeder == nil {
		seeder = ExtremalSeeder{}
	}

	visited := make([]bool, n)
	order := make([]int, 0, n)
	current := seeder.Seed(d)
	visited[current] = true
	order = append(order, current)

	for len(order) < n {
		next := -1
		minDist := math.Inf(1)
		for j := 0; j < n; j++ {
			if visited[j] {
				continue
			}
			dist := d.At(current, j)
			if next == -1 || dist < minDist || (opts.TieBreak == HighestIndex && dist == minDist) {
				next, minDist = j, dist
			}
		}
		visited[next] = true
		order = append(order, next)
		current = next
	}
	return order
}
