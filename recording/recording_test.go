package recording

import (
	"testing"

	"github.com/fabric-sim/onchip/paramstore"
)

func TestFrameLengthRoundsUp(t *testing.T) {
	b := NewBuffer(33, &paramstore.MemoryWriter{})
	if b.FrameLength() != 2 {
		t.Errorf("FrameLength() = %d, want 2", b.FrameLength())
	}
}

func TestMarkSpikeSetsBit(t *testing.T) {
	dest := &paramstore.MemoryWriter{}
	b := NewBuffer(40, dest)
	b.Prepare()
	b.MarkSpike(0)
	b.MarkSpike(33)
	if err := b.Flush(); err != nil {
		t.Fatal(err)
	}
	frame := dest.Frames[0]
	if frame[0]&1 == 0 {
		t.Error("expected bit 0 set in word 0")
	}
	if frame[1]&(1<<1) == 0 {
		t.Error("expected bit 1 set in word 1 for neuron 33")
	}
}

func TestOneFramePerTick(t *testing.T) {
	dest := &paramstore.MemoryWriter{}
	b := NewBuffer(8, dest)
	for tick := 0; tick < 3; tick++ {
		b.Prepare()
		if tick%2 == 0 {
			b.MarkSpike(2)
		}
		if err := b.Flush(); err != nil {
			t.Fatal(err)
		}
	}
	if len(dest.Frames) != 3 {
		t.Fatalf("expected 3 flushed frames, got %d", len(dest.Frames))
	}
	if dest.Frames[0][0] == 0 {
		t.Error("tick 0 should have recorded a spike")
	}
	if dest.Frames[1][0] != 0 {
		t.Error("tick 1 should not have recorded a spike")
	}
}

func TestMarkSpikeOutOfRangePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for out-of-range neuron index")
		}
	}()
	b := NewBuffer(4, &paramstore.MemoryWriter{})
	b.Prepare()
	b.MarkSpike(100)
}
