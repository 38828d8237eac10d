// Package outlier discards frames whose intensity histogram correlates poorly
// with the batch median, using a lower Tukey fence on the correlation scores.
package outlier

import (
	"errors"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/andresmejia3/reframe/internal/types"
)

var (
	// ErrEmptyInput is returned when there are no frames to filter.
	ErrEmptyInput = errors.New("no frames decoded")
	// ErrAllFramesDiscarded is returned when the fence rejects every frame.
	ErrAllFramesDiscarded = errors.New("outlier filter discarded every frame")
)

// DefaultMultiplier is the standard Tukey fence multiplier.
const DefaultMultiplier = 1.5

// Result is the outcome of one filtering pass.
type Result struct {
	// Kept holds the original indices of retained frames, strictly increasing.
	Kept []int
	// Retain is the per-frame mask the mapping was compacted from.
	Retain []bool
	// Scores holds the correlation of every input histogram with the median.
	// Nil when filtering was skipped.
	Scores    []float64
	Median    types.Histogram
	Q1, Q3    float64
	Threshold float64
	Skipped   bool // Fewer than two frames, nothing to compare.
}

// Discarded returns the original indices the filter rejected.
func (r Result) Discarded() []int {
	var out []int
	for i, keep := range r.Retain {
		if !keep {
			out = append(out, i)
		}
	}
	return out
}

// Filter scores every histogram against the coordinate-wise median and keeps
// the frames whose score is at or above Q1 - k*(Q3-Q1).
func Filter(hists []types.Histogram, k float64) (Result, error) {
	n := len(hists)
	if n == 0 {
		return Result{}, ErrEmptyInput
	}

	retain := make([]bool, n)
	if n < 2 {
		retain[0] = true
		return Result{Kept: []int{0}, Retain: retain, Skipped: true}, nil
	}

	median := MedianHistogram(hists)
	scores := make([]float64, n)
	for i, h := range hists {
		scores[i] = Correlation(h, median)
	}

	sorted := slices.Clone(scores)
	slices.Sort(sorted)
	q1 := percentile(sorted, 0.25)
	q3 := percentile(sorted, 0.75)
	threshold := q1 - k*(q3-q1)

	for i, s := range scores {
		retain[i] = s >= threshold
	}
	kept := compactIndices(retain)
	if len(kept) == 0 {
		return Result{}, ErrAllFramesDiscarded
	}

	return Result{
		Kept:      kept,
		Retain:    retain,
		Scores:    scores,
		Median:    median,
		Q1:        q1,
		Q3:        q3,
		Threshold: threshold,
	}, nil
}

// Compact returns the elements of items whose mask entry is true, in order.
func Compact[T any](items []T, retain []bool) []T {
	out := make([]T, 0, len(items))
	for i, item := range items {
		if retain[i] {
			out = append(out, item)
		}
	}
	return out
}

func compactIndices(retain []bool) []int {
	kept := make([]int, 0, len(retain))
	for i, keep := range retain {
		if keep {
			kept = append(kept, i)
		}
	}
	return kept
}

// MedianHistogram returns the per-bin median across hists. With an even
// count the two middle values are averaged.
func MedianHistogram(hists []types.Histogram) types.Histogram {
	if len(hists) == 0 {
		return nil
	}
	bins := len(hists[0])
	median := make(types.Histogram, bins)
	column := make([]float64, len(hists))
	for b := 0; b < bins; b++ {
		for i, h := range hists {
			column[i] = h[b]
		}
		slices.Sort(column)
		median[b] = percentile(column, 0.5)
	}
	return median
}

// Correlation is the Pearson correlation of two histograms. A histogram with
// zero variance scores 0 rather than NaN.
func Correlation(a, b types.Histogram) float64 {
	if len(a) != len(b) || len(a) < 2 {
		return 0
	}
	c := stat.Correlation(a, b, nil)
	if math.IsNaN(c) || math.IsInf(c, 0) {
		return 0
	}
	return c
}

// percentile interpolates linearly between the closest ranks at (n-1)*p.
// sorted must be ascending and non-empty.
func percentile(sorted []float64, p float64) float64 {
	rank := p * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
