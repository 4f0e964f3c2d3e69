// Package recording implements the double-buffered spike-bitmap writer
// used by the ensemble kernel: each tick produces exactly one frame of
// ceil(n_neurons/32) words, written to an off-chip, write-only region.
package recording

import (
	"fmt"

	"github.com/fabric-sim/onchip/paramstore"
)

// Buffer is a double-buffered spike bitmap writer.
type Buffer struct {
	nNeurons    int
	frameLength int // words per frame, ceil(n_neurons/32)
	frames      [2][]uint32
	active      int // index into frames currently being written this tick
	dest        paramstore.WriteRegion
}

// NewBuffer allocates a Buffer for nNeurons, writing flushed frames to
// dest. Local memory cost is 2*frame_length*4 bytes, the two
// double-buffered frames.
func NewBuffer(nNeurons int, dest paramstore.WriteRegion) *Buffer {
	frameLength := (nNeurons + 31) / 32
	b := &Buffer{
		nNeurons:    nNeurons,
		frameLength: frameLength,
		dest:        dest,
	}
	b.frames[0] = make([]uint32, frameLength)
	b.frames[1] = make([]uint32, frameLength)
	return b
}

// FrameLength returns the number of 32-bit words per recorded frame.
func (b *Buffer) FrameLength() int { return b.frameLength }

// Prepare advances the write position by one frame: it swaps to the
// other local frame and clears it.
func (b *Buffer) Prepare() {
	b.active = 1 - b.active
	frame := b.frames[b.active]
	for i := range frame {
		frame[i] = 0
	}
}

// MarkSpike records that neuron n spiked during the tick currently
// being prepared, setting bit n within the active frame.
func (b *Buffer) MarkSpike(n int) {
	if n < 0 || n >= b.nNeurons {
		panic(fmt.Sprintf("recording: neuron index %d out of range [0,%d)", n, b.nNeurons))
	}
	word := n / 32
	bit := uint(n % 32)
	b.frames[b.active][word] |= 1 << bit
}

// Flush copies the local active frame to the off-chip recording
// region. After Flush, the off-chip region has received exactly one
// contiguous frame for this tick.
func (b *Buffer) Flush() error {
	return b.dest.Append(b.frames[b.active])
}
