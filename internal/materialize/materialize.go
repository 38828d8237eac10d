// Package materialize turns a recovered order into output frame sequences and
// writes them to a video sink, once per orientation.
package materialize

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// ErrSourceReacquisition is returned when a frame cannot be read back from the source.
var ErrSourceReacquisition = errors.New("failed to reacquire source frame")

// Orientation tags which way a candidate video runs relative to the recovered chain.
type Orientation int

const (
	Forward Orientation = iota
	Reverse
)

// Orientations lists both candidates in the order they are written.
var Orientations = []Orientation{Forward, Reverse}

func (o Orientation) String() string {
	switch o {
	case Forward:
		return "forward"
	case Reverse:
		return "reverse"
	}
	return fmt.Sprintf("Orientation(%d)", int(o))
}

// ParseOrientation accepts "forward" or "reverse".
func ParseOrientation(s string) (Orientation, error) {
	switch s {
	case "forward":
		return Forward, nil
	case "reverse":
		return Reverse, nil
	}
	return 0, fmt.Errorf("invalid orientation '%s'. Must be 'forward' or 'reverse'", s)
}

// FrameSource maps an original index to its pixel data.
type FrameSource interface {
	Frame(index int) ([]byte, error)
}

// Sink receives frames in output order. Commit finalizes the output; Abort
// discards everything written so far.
type Sink interface {
	WriteFrame(pix []byte) error
	Commit() error
	Abort() error
}

// Progress is satisfied by *progressbar.ProgressBar.
type Progress interface {
	Add(n int) error
}

// Compose maps a permutation of filtered positions through the surviving-index
// mapping, yielding original indices in recovered order.
func Compose(order, mapping []int) ([]int, error) {
	if len(order) != len(mapping) {
		return nil, fmt.Errorf("order has %d entries, mapping has %d", len(order), len(mapping))
	}
	seen := make([]bool, len(mapping))
	seq := make([]int, len(order))
	for i, pos := range order {
		if pos < 0 || pos >= len(mapping) {
			return nil, fmt.Errorf("position %d out of range [0, %d)", pos, len(mapping))
		}
		if seen[pos] {
			return nil, fmt.Errorf("position %d appears twice", pos)
		}
		seen[pos] = true
		seq[i] = mapping[pos]
	}
	return seq, nil
}

// Oriented returns seq as-is for Forward and reversed for Reverse. seq is never modified.
func Oriented(seq []int, o Orientation) []int {
	out := slices.Clone(seq)
	if o == Reverse {
		slices.Reverse(out)
	}
	return out
}

// Materialize writes the frames named by seq to sink and commits it. Any
// failure aborts the sink so no partial video is left behind.
func Materialize(ctx context.Context, seq []int, src FrameSource, sink Sink, progress Progress) (err error) {
	defer func() {
		if err != nil {
			if abortErr := sink.Abort(); abortErr != nil {
				err = errors.Join(err, fmt.Errorf("abort sink: %w", abortErr))
			}
		}
	}()

	for _, idx := range seq {
		if err := ctx.Err(); err != nil {
			return err
		}
		pix, err := src.Frame(idx)
		if err != nil {
			return fmt.Errorf("%w: frame %d: %v", ErrSourceReacquisition, idx, err)
		}
		if err := sink.WriteFrame(pix); err != nil {
			return fmt.Errorf("write frame %d: %w", idx, err)
		}
		if progress != nil {
			progress.Add(1)
		}
	}
	return sink.Commit()
}
