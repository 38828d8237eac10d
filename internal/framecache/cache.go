// Package framecache keeps decoded frames addressable by original index so the
// rebuilt videos can be written without decoding the source again.
//
// Frames live in memory until the byte budget is spent; later frames are
// zstd-compressed into a temporary spill file and read back with ReadAt.
package framecache

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// ErrUnknownFrame is returned when an index was never stored.
var ErrUnknownFrame = errors.New("frame not in cache")

type entry struct {
	mem    []byte
	offset int64
	length int
}

// Cache is an arena of frame buffers keyed by original index.
type Cache struct {
	mu      sync.Mutex
	budget  int64
	used    int64
	dir     string
	entries map[int]entry

	spill    *os.File
	spillEnd int64
	enc      *zstd.Encoder
	dec      *zstd.Decoder
}

// New creates a cache holding up to budget bytes in memory. Overflow is
// written to a temporary file under dir (os.TempDir when empty).
func New(budget int64, dir string) *Cache {
	return &Cache{
		budget:  budget,
		dir:     dir,
		entries: make(map[int]entry),
	}
}

// Put stores a copy of pix under index.
func (c *Cache) Put(index int, pix []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[index]; ok {
		return fmt.Errorf("frame %d already cached", index)
	}

	if c.used+int64(len(pix)) <= c.budget {
		buf := make([]byte, len(pix))
		copy(buf, pix)
		c.entries[index] = entry{mem: buf}
		c.used += int64(len(pix))
		return nil
	}

	if err := c.openSpill(); err != nil {
		return err
	}
	compressed := c.enc.EncodeAll(pix, make([]byte, 0, len(pix)/4))
	if _, err := c.spill.WriteAt(compressed, c.spillEnd); err != nil {
		return fmt.Errorf("spill frame %d: %w", index, err)
	}
	c.entries[index] = entry{offset: c.spillEnd, length: len(compressed)}
	c.spillEnd += int64(len(compressed))
	return nil
}

func (c *Cache) openSpill() error {
	if c.spill != nil {
		return nil
	}
	f, err := os.CreateTemp(c.dir, "reframe-spill-*")
	if err != nil {
		return fmt.Errorf("create spill file: %w", err)
	}
	// Throughput over ratio: the spill file is read back once per output video.
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		f.Close()
		os.Remove(f.Name())
		return fmt.Errorf("create zstd decoder: %w", err)
	}
	c.spill, c.enc, c.dec = f, enc, dec
	return nil
}

// Frame returns the pixel buffer stored under index. In-memory frames are
// returned without copying and must not be modified.
func (c *Cache) Frame(index int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[index]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownFrame, index)
	}
	if e.mem != nil {
		return e.mem, nil
	}

	compressed := make([]byte, e.length)
	if _, err := c.spill.ReadAt(compressed, e.offset); err != nil {
		return nil, fmt.Errorf("read spilled frame %d: %w", index, err)
	}
	pix, err := c.dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress frame %d: %w", index, err)
	}
	return pix, nil
}

// Len reports how many frames are stored.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Spilled reports how many frames live in the spill file.
func (c *Cache) Spilled() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.entries {
		if e.mem == nil {
			n++
		}
	}
	return n
}

// Close releases memory and removes the spill file.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[int]entry)
	c.used = 0
	if c.spill == nil {
		return nil
	}
	c.enc.Close()
	c.dec.Close()
	name := c.spill.Name()
	err := c.spill.Close()
	if rmErr := os.Remove(name); err == nil {
		err = rmErr
	}
	c.spill, c.enc, c.dec = nil, nil, nil
	c.spillEnd = 0
	return err
}
