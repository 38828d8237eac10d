// Package ingest decodes a source video once, producing grayscale buffers and
// intensity histograms for analysis while handing the color frames to a store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/andresmejia3/reframe/internal/types"
	"github.com/andresmejia3/reframe/internal/utils"
)

// FrameStore receives every decoded rgb24 frame under its original index.
type FrameStore interface {
	Put(index int, pix []byte) error
}

// Progress is satisfied by *progressbar.ProgressBar.
type Progress interface {
	Add(n int) error
}

// Batch is everything the analysis stages need from one decode pass.
type Batch struct {
	Info       types.VideoInfo
	Frames     []types.Frame
	Histograms []types.Histogram
}

// Pixels returns the grayscale buffers in decode order.
func (b *Batch) Pixels() [][]byte {
	out := make([][]byte, len(b.Frames))
	for i, f := range b.Frames {
		out[i] = f.Pix
	}
	return out
}

// Buffer pool to reduce GC pressure while decoding
var frameBufferPool = sync.Pool{
	New: func() interface{} { return make([]byte, 0, 1024*1024) },
}

// Decode runs ffmpeg over path and reads every frame it emits. store may be nil
// when only the analysis is needed.
func Decode(ctx context.Context, path string, info types.VideoInfo, bins int, store FrameStore, progress Progress) (*Batch, error) {
	decoder := utils.NewFFmpegRawDecoder(ctx, path)
	out, err := decoder.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder pipe: %w", err)
	}
	if err := decoder.Start(); err != nil {
		return nil, &utils.CommandError{Cmd: decoder, Err: fmt.Errorf("failed to start decoder: %w", err)}
	}

	batch, readErr := ReadFrames(out, info, bins, store, progress)
	if readErr != nil {
		// Unblock ffmpeg before waiting on it.
		io.Copy(io.Discard, out)
	}
	if err := decoder.Wait(); err != nil {
		return nil, &utils.CommandError{Cmd: decoder, Err: fmt.Errorf("decoder process failed: %w", err)}
	}
	if readErr != nil {
		return nil, readErr
	}
	return batch, nil
}

// ReadFrames consumes packed rgb24 frames from r until EOF.
func ReadFrames(r io.Reader, info types.VideoInfo, bins int, store FrameStore, progress Progress) (*Batch, error) {
	frameSize := info.FrameSize()
	if frameSize <= 0 {
		return nil, fmt.Errorf("invalid frame size for %dx%d", info.Width, info.Height)
	}

	batch := &Batch{Info: info}
	for idx := 0; ; idx++ {
		buf := frameBufferPool.Get().([]byte)
		if cap(buf) < frameSize {
			buf = make([]byte, frameSize)
		}
		buf = buf[:frameSize]

		if _, err := io.ReadFull(r, buf); err != nil {
			frameBufferPool.Put(buf)
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read frame %d: %w", idx, err)
		}

		gray := Gray(buf)
		batch.Frames = append(batch.Frames, types.Frame{Index: idx, Pix: gray})
		batch.Histograms = append(batch.Histograms, Histogram(gray, bins))

		if store != nil {
			if err := store.Put(idx, buf); err != nil {
				frameBufferPool.Put(buf)
				return nil, fmt.Errorf("cache frame %d: %w", idx, err)
			}
		}
		frameBufferPool.Put(buf)

		if progress != nil {
			progress.Add(1)
		}
	}
	return batch, nil
}

// Gray converts packed rgb24 to 8-bit luma with BT.601 weights in 14-bit fixed point.
func Gray(rgb []byte) []byte {
	gray := make([]byte, len(rgb)/3)
	for i := range gray {
		r := uint32(rgb[3*i])
		g := uint32(rgb[3*i+1])
		b := uint32(rgb[3*i+2])
		gray[i] = byte((r*4899 + g*9617 + b*1868 + 8192) >> 14)
	}
	return gray
}

// Histogram counts intensities into bins equal-width buckets over [0, 256).
func Histogram(gray []byte, bins int) types.Histogram {
	h := make(types.Histogram, bins)
	for _, v := range gray {
		h[int(v)*bins/256]++
	}
	return h
}
