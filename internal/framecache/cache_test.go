package framecache

import (
	"bytes"
	"errors"
	"os"
	"testing"
)

func pattern(seed byte, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = seed + byte(i%7)
	}
	return b
}

func TestCache_InMemory(t *testing.T) {
	c := New(1<<20, t.TempDir())
	defer c.Close()

	src := pattern(1, 300)
	if err := c.Put(4, src); err != nil {
		t.Fatal(err)
	}
	// Mutating the caller's buffer must not leak into the cache.
	src[0] = 0xFF

	got, err := c.Frame(4)
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	if !bytes.Equal(got, pattern(1, 300)) {
		t.Error("cached frame does not match the stored copy")
	}
	if c.Spilled() != 0 {
		t.Errorf("Spilled = %d, want 0", c.Spilled())
	}
}

func TestCache_Spill(t *testing.T) {
	dir := t.TempDir()
	// Room for exactly two 100-byte frames.
	c := New(200, dir)

	for i := 0; i < 5; i++ {
		if err := c.Put(i, pattern(byte(i*10), 100)); err != nil {
			t.Fatalf("Put(%d): %v", i, err)
		}
	}
	if c.Len() != 5 {
		t.Errorf("Len = %d, want 5", c.Len())
	}
	if c.Spilled() != 3 {
		t.Errorf("Spilled = %d, want 3", c.Spilled())
	}

	// Read back out of order to exercise random access into the spill file.
	for _, i := range []int{4, 0, 3, 1, 2} {
		got, err := c.Frame(i)
		if err != nil {
			t.Fatalf("Frame(%d): %v", i, err)
		}
		if !bytes.Equal(got, pattern(byte(i*10), 100)) {
			t.Errorf("Frame(%d) content mismatch", i)
		}
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("spill file not removed, dir has %d entries", len(entries))
	}
}

func TestCache_Errors(t *testing.T) {
	c := New(0, t.TempDir())
	defer c.Close()

	if _, err := c.Frame(7); !errors.Is(err, ErrUnknownFrame) {
		t.Errorf("expected ErrUnknownFrame, got %v", err)
	}
	if err := c.Put(1, []byte{1}); err != nil {
		t.Fatal(err)
	}
	if err := c.Put(1, []byte{2}); err == nil {
		t.Error("expected duplicate index to be rejected")
	}
}
