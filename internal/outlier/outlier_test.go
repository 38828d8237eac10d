package outlier

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresmejia3/reframe/internal/types"
)

// ramp returns a 16-bin histogram falling from 1000 to 100.
func ramp() types.Histogram {
	h := make(types.Histogram, 16)
	for i := range h {
		h[i] = float64(1000 - 60*i)
	}
	return h
}

func TestPercentile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4}
	assert.InDelta(t, 1.75, percentile(sorted, 0.25), 1e-12)
	assert.InDelta(t, 2.5, percentile(sorted, 0.5), 1e-12)
	assert.InDelta(t, 3.25, percentile(sorted, 0.75), 1e-12)
	assert.Equal(t, 7.0, percentile([]float64{7}, 0.25))
}

func TestMedianHistogram(t *testing.T) {
	hists := []types.Histogram{
		{1, 10, 5},
		{3, 20, 5},
		{2, 30, 5},
		{100, 0, 5},
	}
	got := MedianHistogram(hists)
	assert.Equal(t, types.Histogram{2.5, 15, 5}, got)
}

func TestCorrelation(t *testing.T) {
	a := types.Histogram{1, 2, 3, 4}
	assert.InDelta(t, 1.0, Correlation(a, types.Histogram{2, 4, 6, 8}), 1e-12)
	assert.InDelta(t, -1.0, Correlation(a, types.Histogram{4, 3, 2, 1}), 1e-12)

	// Zero variance degrades to a neutral score.
	flat := types.Histogram{5, 5, 5, 5}
	assert.Equal(t, 0.0, Correlation(a, flat))
	assert.Equal(t, 0.0, Correlation(flat, flat))

	// Mismatched lengths are not comparable.
	assert.Equal(t, 0.0, Correlation(a, types.Histogram{1, 2}))
}

func TestFilter_EmptyInput(t *testing.T) {
	_, err := Filter(nil, DefaultMultiplier)
	require.ErrorIs(t, err, ErrEmptyInput)
}

func TestFilter_SingleFrameSkipsScoring(t *testing.T) {
	res, err := Filter([]types.Histogram{ramp()}, DefaultMultiplier)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, []int{0}, res.Kept)
	assert.Nil(t, res.Scores)
}

func TestFilter_CleanInputKeepsEverything(t *testing.T) {
	hists := make([]types.Histogram, 20)
	for i := range hists {
		hists[i] = ramp()
	}

	res, err := Filter(hists, DefaultMultiplier)
	require.NoError(t, err)
	assert.Len(t, res.Kept, 20)
	assert.Empty(t, res.Discarded())
	for _, s := range res.Scores {
		assert.InDelta(t, 1.0, s, 1e-9)
	}
}

func TestFilter_FlatHistogramsKeepEverything(t *testing.T) {
	// Every score is the neutral 0, the fence collapses onto Q1 and ties are retained.
	hists := make([]types.Histogram, 6)
	for i := range hists {
		hists[i] = types.Histogram{10, 10, 10, 10}
	}
	res, err := Filter(hists, DefaultMultiplier)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, res.Kept)
	assert.Equal(t, 0.0, res.Threshold)
}

func TestFilter_SyntheticOutliers(t *testing.T) {
	var hists []types.Histogram
	for k := 0; k < 10; k++ {
		h := ramp()
		for i := range h {
			h[i] += float64(k * ((i % 3) - 1))
		}
		hists = append(hists, h)
	}

	rising := make(types.Histogram, 16)
	spike := make(types.Histogram, 16)
	for i := range rising {
		rising[i] = float64(100 + 60*i)
	}
	spike[8] = 10000

	// Interleave the outliers so position does not matter.
	all := append([]types.Histogram{}, hists[:3]...)
	all = append(all, rising)
	all = append(all, hists[3:8]...)
	all = append(all, spike)
	all = append(all, hists[8:]...)

	res, err := Filter(all, DefaultMultiplier)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 9}, res.Discarded())
	assert.Equal(t, []int{0, 1, 2, 4, 5, 6, 7, 8, 10, 11}, res.Kept)
	assert.Less(t, res.Scores[3], res.Threshold)
	assert.Less(t, res.Scores[9], res.Threshold)
}

func TestFilter_MappingInvariant(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))
	for trial := 0; trial < 200; trial++ {
		n := 1 + rng.IntN(1000)
		hists := make([]types.Histogram, n)
		for i := range hists {
			h := make(types.Histogram, 16)
			for b := range h {
				h[b] = float64(rng.IntN(500))
			}
			hists[i] = h
		}

		res, err := Filter(hists, DefaultMultiplier)
		require.NoError(t, err)

		retained := 0
		for _, keep := range res.Retain {
			if keep {
				retained++
			}
		}
		require.Len(t, res.Kept, retained, "n=%d", n)
		for i := 1; i < len(res.Kept); i++ {
			require.Less(t, res.Kept[i-1], res.Kept[i], "mapping must be strictly increasing (n=%d)", n)
		}
		for _, idx := range res.Kept {
			require.True(t, idx >= 0 && idx < n)
		}
	}
}

func TestCompact(t *testing.T) {
	items := []string{"a", "b", "c", "d"}
	got := Compact(items, []bool{true, false, false, true})
	assert.Equal(t, []string{"a", "d"}, got)
}
