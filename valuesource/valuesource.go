// Package valuesource implements the Value-source kernel: it plays
// back a precomputed multidimensional time-series from off-chip memory
// with DMA double-buffering and optional periodic wrap.
package valuesource

import (
	"context"

	"github.com/fabric-sim/onchip/fabric"
	"github.com/fabric-sim/onchip/fxp"
	"github.com/fabric-sim/onchip/kernel"
	"github.com/fabric-sim/onchip/paramstore"
)

// Phase is the value-source state machine's only two states: Running,
// then Stopping once an aperiodic series ends. There are no other
// transitions.
type Phase int

const (
	PhaseRunning Phase = iota
	PhaseStopping
)

// slot is one of the two local double-buffers.
type slot struct {
	data       []uint32 // n_dims * length words
	length     int      // frames in this slot
	currentPos int      // frame index into this slot
}

// Kernel is the Value-source kernel.
type Kernel struct {
	*kernel.Base

	NDims        int
	BlockLength  int
	NFullBlocks  int
	PartialBlock int
	Periodic     bool
	OutputKeys   []uint32

	currentBlock uint32
	current      slot
	next         slot
	phase        Phase

	dma  paramstore.AsyncReader
	bus  fabric.Sender
}

// totalFrames returns the total number of playback frames across all
// blocks.
func (k *Kernel) totalFrames() int {
	return k.NFullBlocks*k.BlockLength + k.PartialBlock
}

// nBlocks returns the total number of blocks, including the partial
// block if one exists: the partial block, if any, is the block at
// index n_full_blocks with length partial_block.
func (k *Kernel) nBlocks() int {
	if k.PartialBlock > 0 {
		return k.NFullBlocks + 1
	}
	return k.NFullBlocks
}

// blockLength returns the frame count of block index idx.
func (k *Kernel) blockLength(idx int) int {
	if idx == k.NFullBlocks && k.PartialBlock > 0 {
		return k.PartialBlock
	}
	return k.BlockLength
}

// New constructs a Value-source kernel and primes the current slot
// from block 0 via dma.
func New(id string, base *kernel.Base, nDims, blockLength, nFullBlocks, partialBlock int, periodic bool, outputKeys []uint32, dma paramstore.AsyncReader, bus fabric.Sender) (*Kernel, error) {
	k := &Kernel{
		Base:         base,
		NDims:        nDims,
		BlockLength:  blockLength,
		NFullBlocks:  nFullBlocks,
		PartialBlock: partialBlock,
		Periodic:     periodic,
		OutputKeys:   outputKeys,
		dma:          dma,
		bus:          bus,
	}
	k.current.length = k.blockLength(0)
	k.current.data = make([]uint32, k.current.length*nDims)
	if err := <-dma.Prefetch(0, len(k.current.data), k.current.data); err != nil {
		return nil, err
	}
	if k.nBlocks() > 1 {
		k.next.length = k.blockLength(1)
		k.next.data = make([]uint32, k.next.length*nDims)
	}
	return k, nil
}

// Phase reports the current Running/Stopping state.
func (k *Kernel) Phase() Phase { return k.phase }

// Tick performs one timer interrupt's worth of work: emit the current
// frame, prefetch the next block when one is needed, and advance the
// playback position.
func (k *Kernel) Tick() {
	if k.phase == PhaseStopping {
		return
	}

	base := k.current.currentPos * k.NDims
	for d := 0; d < k.NDims; d++ {
		k.bus.Send(kernel.Packet{Key: k.OutputKeys[d], Payload: k.current.data[base+d]})
	}

	if k.current.currentPos == 0 && k.nBlocks() > 1 {
		nextBlockIdx := (int(k.currentBlock) + 1) % k.nBlocks()
		length := k.blockLength(nextBlockIdx)
		if len(k.next.data) != length*k.NDims {
			k.next.data = make([]uint32, length*k.NDims)
		}
		k.next.length = length
		off := blockOffset(k, nextBlockIdx)
		// Tick waits for the transfer to land, so it is in place before
		// the slot swap that consumes it; an error from the transfer is
		// discarded.
		<-k.dma.Prefetch(off, length*k.NDims, k.next.data)
	}

	k.current.currentPos++
	if k.current.currentPos == k.current.length {
		k.advanceBlock()
	}
}

func blockOffset(k *Kernel, blockIdx int) int {
	off := 0
	for i := 0; i < blockIdx; i++ {
		off += k.blockLength(i) * k.NDims
	}
	return off
}

// advanceBlock implements the end-of-block three-way branch: wrap in
// place for a single periodic block, stop once an aperiodic series
// exhausts its last block, or swap in the already-prefetched next
// block and continue.
func (k *Kernel) advanceBlock() {
	switch {
	case k.nBlocks() == 1 && k.Periodic:
		k.current.currentPos = 0
	case !k.Periodic && int(k.currentBlock) == k.nBlocks()-1:
		k.phase = PhaseStopping
	default:
		k.current, k.next = k.next, k.current
		k.currentBlock = uint32((int(k.currentBlock) + 1) % k.nBlocks())
		k.current.currentPos = 0
	}
}

// Run drives the kernel off the fabric's timer channel until ctx is
// cancelled or playback reaches its stopping phase; the value-source
// kernel has no incoming packet or host-link traffic of its own.
func (k *Kernel) Run(ctx context.Context, ticks <-chan struct{}) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	k.Base.Run(ctx, nil, ticks, nil, kernel.Handlers{
		OnTick: func() {
			if k.phase != PhaseStopping {
				k.Tick()
			}
			if k.phase == PhaseStopping {
				cancel()
			}
		},
	})
}

// ExpectedSample returns source[(t mod total_frames)*n_dims+d] for
// periodic series, or the in-range sample for aperiodic series. It is
// a pure helper for tests driven against a known source array, not
// part of the on-chip path.
func ExpectedSample(source []fxp.Value, totalFrames, nDims, t, d int, periodic bool) (fxp.Value, bool) {
	if periodic {
		idx := (t%totalFrames)*nDims + d
		return source[idx], true
	}
	if t >= totalFrames {
		return 0, false
	}
	return source[t*nDims+d], true
}
