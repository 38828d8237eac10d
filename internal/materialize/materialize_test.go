package materialize

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapSource serves single-byte frames holding their own index.
type mapSource map[int][]byte

func (m mapSource) Frame(index int) ([]byte, error) {
	pix, ok := m[index]
	if !ok {
		return nil, fmt.Errorf("no frame %d", index)
	}
	return pix, nil
}

type memorySink struct {
	frames    [][]byte
	committed bool
	aborted   bool
}

func (s *memorySink) WriteFrame(pix []byte) error {
	s.frames = append(s.frames, pix)
	return nil
}
func (s *memorySink) Commit() error { s.committed = true; return nil }
func (s *memorySink) Abort() error  { s.aborted = true; return nil }

func (s *memorySink) indices() []int {
	out := make([]int, len(s.frames))
	for i, f := range s.frames {
		out[i] = int(f[0])
	}
	return out
}

type countingProgress struct{ n int }

func (c *countingProgress) Add(n int) error { c.n += n; return nil }

func sourceFor(indices ...int) mapSource {
	src := mapSource{}
	for _, i := range indices {
		src[i] = []byte{byte(i)}
	}
	return src
}

func TestCompose(t *testing.T) {
	mapping := []int{1, 4, 5, 9}
	seq, err := Compose([]int{2, 0, 3, 1}, mapping)
	require.NoError(t, err)
	assert.Equal(t, []int{5, 1, 9, 4}, seq)

	_, err = Compose([]int{0, 1}, mapping)
	assert.Error(t, err, "length mismatch")
	_, err = Compose([]int{0, 1, 1, 3}, mapping)
	assert.Error(t, err, "repeat")
	_, err = Compose([]int{0, 1, 2, 4}, mapping)
	assert.Error(t, err, "out of range")
}

func TestOriented(t *testing.T) {
	seq := []int{3, 1, 2}
	assert.Equal(t, []int{3, 1, 2}, Oriented(seq, Forward))
	assert.Equal(t, []int{2, 1, 3}, Oriented(seq, Reverse))
	assert.Equal(t, []int{3, 1, 2}, seq, "input must not be modified")
}

func TestOrientationString(t *testing.T) {
	assert.Equal(t, "forward", Forward.String())
	assert.Equal(t, "reverse", Reverse.String())

	o, err := ParseOrientation("reverse")
	require.NoError(t, err)
	assert.Equal(t, Reverse, o)
	_, err = ParseOrientation("sideways")
	assert.Error(t, err)
}

func TestMaterialize_WritesInOrder(t *testing.T) {
	seq := []int{7, 2, 5}
	sink := &memorySink{}
	progress := &countingProgress{}

	err := Materialize(context.Background(), seq, sourceFor(2, 5, 7), sink, progress)
	require.NoError(t, err)
	assert.True(t, sink.committed)
	assert.False(t, sink.aborted)
	assert.Equal(t, seq, sink.indices())
	assert.Equal(t, 3, progress.n)
}

func TestMaterialize_ReversalSymmetry(t *testing.T) {
	rng := rand.New(rand.NewPCG(9, 9))
	for trial := 0; trial < 20; trial++ {
		n := 1 + rng.IntN(60)
		mapping := make([]int, 0, n)
		for i := 0; i < 2*n && len(mapping) < n; i++ {
			if rng.IntN(2) == 0 || 2*n-i <= n-len(mapping) {
				mapping = append(mapping, i)
			}
		}
		order := rng.Perm(len(mapping))
		seq, err := Compose(order, mapping)
		require.NoError(t, err)

		src := sourceFor(mapping...)
		fwd, rev := &memorySink{}, &memorySink{}
		require.NoError(t, Materialize(context.Background(), Oriented(seq, Forward), src, fwd, nil))
		require.NoError(t, Materialize(context.Background(), Oriented(seq, Reverse), src, rev, nil))

		got := rev.indices()
		slices.Reverse(got)
		assert.Equal(t, fwd.indices(), got)

		fwdSet, revSet := slices.Sorted(slices.Values(fwd.indices())), slices.Sorted(slices.Values(rev.indices()))
		assert.Equal(t, fwdSet, revSet)
		assert.Equal(t, mapping, fwdSet)
	}
}

func TestMaterialize_MissingFrameAborts(t *testing.T) {
	sink := &memorySink{}
	err := Materialize(context.Background(), []int{1, 2, 3}, sourceFor(1, 3), sink, nil)
	require.ErrorIs(t, err, ErrSourceReacquisition)
	assert.True(t, sink.aborted)
	assert.False(t, sink.committed)
}

func TestMaterialize_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink := &memorySink{}
	err := Materialize(ctx, []int{1}, sourceFor(1), sink, nil)
	require.True(t, errors.Is(err, context.Canceled))
	assert.True(t, sink.aborted)
	assert.Empty(t, sink.frames)
}

func TestPartialPath(t *testing.T) {
	assert.Equal(t, "/out/.clip_forward.partial.mp4", PartialPath("/out/clip_forward.mp4"))
	assert.Equal(t, ".clip.partial.mkv", PartialPath("clip.mkv"))
}
