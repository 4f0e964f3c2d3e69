// Package paramstore models the off-chip memory regions every kernel
// reads its static parameters from at startup, and the write-only
// recording region. It is deliberately not a general file format: a
// Region is just a flat sequence of 32-bit words, matching the schema
// each kernel's parameter blob uses, the way the on-chip kernels see
// their parameter blobs.
package paramstore

import (
	"errors"
	"fmt"
)

// ErrShortRegion is returned when a Region does not contain enough
// words to satisfy a read; this is an init-fatal condition
// ("impossible region size").
var ErrShortRegion = errors.New("paramstore: region too short")

// Region is a read-only table of 32-bit words, the on-chip view of a
// shared off-chip parameter blob.
type Region interface {
	// Words returns the number of 32-bit words available.
	Words() int
	// Read copies n words starting at word offset off into dst.
	Read(off, n int, dst []uint32) error
}

// Memory is an in-process Region backed by a plain slice, standing in
// for the shared off-chip memory a boot loader would otherwise have
// placed.
type Memory struct {
	words []uint32
}

// NewMemory wraps an existing slice of words as a Region.
func NewMemory(words []uint32) *Memory {
	return &Memory{words: words}
}

func (m *Memory) Words() int { return len(m.words) }

func (m *Memory) Read(off, n int, dst []uint32) error {
	if off < 0 || n < 0 || off+n > len(m.words) {
		return fmt.Errorf("%w: want [%d,%d) have %d words", ErrShortRegion, off, off+n, len(m.words))
	}
	if len(dst) < n {
		return fmt.Errorf("paramstore: dst too small: have %d want %d", len(dst), n)
	}
	copy(dst[:n], m.words[off:off+n])
	return nil
}

// Cursor is a convenience sequential reader over a Region, matching the
// way each kernel's init routine consumes its parameter table field by
// field.
type Cursor struct {
	r   Region
	pos int
}

// NewCursor starts a Cursor at the beginning of r.
func NewCursor(r Region) *Cursor {
	return &Cursor{r: r}
}

// Word reads the next single 32-bit word.
func (c *Cursor) Word() (uint32, error) {
	var buf [1]uint32
	if err := c.r.Read(c.pos, 1, buf[:]); err != nil {
		return 0, err
	}
	c.pos++
	return buf[0], nil
}

// Words reads the next n 32-bit words.
func (c *Cursor) Words(n int) ([]uint32, error) {
	buf := make([]uint32, n)
	if err := c.r.Read(c.pos, n, buf); err != nil {
		return nil, err
	}
	c.pos += n
	return buf, nil
}

// Remaining reports how many words are left unread in the region.
func (c *Cursor) Remaining() int {
	return c.r.Words() - c.pos
}

// WriteRegion is a write-only off-chip memory region used for
// recording; kernels never read it back.
type WriteRegion interface {
	// Append writes a contiguous frame of words to the region.
	Append(words []uint32) error
}

// MemoryWriter is an in-process WriteRegion, append-only, used by tests
// and the in-process fabric harness to observe what a kernel would have
// written off-chip.
type MemoryWriter struct {
	Frames [][]uint32
}

func (w *MemoryWriter) Append(words []uint32) error {
	frame := make([]uint32, len(words))
	copy(frame, words)
	w.Frames = append(w.Frames, frame)
	return nil
}

// AsyncReader models the DMA engine used by the value-source kernel: a
// prefetch is issued and later observed complete. The
// in-process implementation completes synchronously, since there is no
// real DMA controller to await in software.
type AsyncReader interface {
	// Prefetch reads n words starting at word offset off into dst and
	// reports when the transfer has landed.
	Prefetch(off, n int, dst []uint32) (done <-chan error)
}

// SyncDMA is an AsyncReader that completes immediately, backed by a
// Region.
type SyncDMA struct {
	Region Region
}

func (d *SyncDMA) Prefetch(off, n int, dst []uint32) <-chan error {
	ch := make(chan error, 1)
	ch <- d.Region.Read(off, n, dst)
	close(ch)
	return ch
}
