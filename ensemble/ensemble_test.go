package ensemble

import (
	"math"
	"testing"

	"github.com/fabric-sim/onchip/fabric"
	"github.com/fabric-sim/onchip/filter"
	"github.com/fabric-sim/onchip/fxp"
	"github.com/fabric-sim/onchip/kernel"
	"github.com/fabric-sim/onchip/paramstore"
	"github.com/fabric-sim/onchip/recording"
	"github.com/rs/zerolog"
)

func newTestInputBank(t *testing.T, nDims int) *filter.Bank {
	t.Helper()
	f := filter.NewFilter(fxp.Zero, false, nDims)
	bank, err := filter.NewBank(uint16(nDims), []*filter.Filter{f}, nil, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	return bank
}

func TestSpikeCountMatchesAnalyticRate(t *testing.T) {
	// Scenario 4: N=1, i_bias=2.0, encoders=[0], decoders=[1.0],
	// dt_over_t_rc=0.1, t_ref=0, zero input, 1s (1000 ticks at 1ms).
	// Per-tick integration from V=0 gives V_n = J*(1-(1-dt_over_t_rc)^n);
	// at most one spike fits in a tick, so the neuron fires on the first
	// whole tick with V_n > 1 and then starts again from 0.
	cfg := Config{
		NNeurons:    1,
		NInputDims:  1,
		NOutputDims: 1,
		TRef:        0,
		DtOverTRC:   fxp.FromFloat(0.1),
		IBias:       []fxp.Value{fxp.FromFloat(2.0)},
		Encoders:    []fxp.Value{fxp.Zero},
		Decoders:    []fxp.Value{fxp.FromFloat(1.0)},
		OutputKeys:  []uint32{0x50},
		Mode:        ModeBatchedAtEnd,
	}
	input := newTestInputBank(t, 1)
	rec := recording.NewBuffer(1, &paramstore.MemoryWriter{})
	bus := fabric.NewBus()
	out := make(chan kernel.Packet, 4096)
	bus.Subscribe(0x50, 0xffffffff, out)

	base := kernel.NewBase("ens0", kernel.KindEnsemble, zerolog.Nop())
	k := New("ens0", base, cfg, input, nil, rec, bus, -1, 1)

	const ticks = 1000 // 1s at 1ms/tick
	for i := 0; i < ticks; i++ {
		k.Tick()
	}

	spikeCount := 0
	j := 2.0
	dtOverTRC := 0.1
	ticksPerSpike := math.Ceil(math.Log((j-1)/j) / math.Log(1-dtOverTRC))
	want := int(ticks / ticksPerSpike)

	for len(out) > 0 {
		p := <-out
		spikeCount += int(math.Round(fxp.FromBits(p.Payload).Float()))
	}

	// Allow one spike of slack for the fixed-point rounding of
	// dt_over_t_rc; with t_ref=0 the sub-tick LFSR correction has no
	// refractory time to shorten.
	if diff := spikeCount - want; diff < -1 || diff > 1 {
		t.Errorf("spike count = %d, want ~%d (one spike every %v ticks)", spikeCount, want, ticksPerSpike)
	}
}

func TestRefractoryInvariant(t *testing.T) {
	cfg := Config{
		NNeurons:    1,
		NInputDims:  1,
		NOutputDims: 1,
		TRef:        5,
		DtOverTRC:   fxp.FromFloat(1.0),
		IBias:       []fxp.Value{fxp.FromFloat(10.0)},
		Encoders:    []fxp.Value{fxp.Zero},
		Decoders:    []fxp.Value{fxp.FromFloat(1.0)},
		OutputKeys:  []uint32{0x50},
		Mode:        ModeBatchedAtEnd,
	}
	input := newTestInputBank(t, 1)
	rec := recording.NewBuffer(1, &paramstore.MemoryWriter{})
	bus := fabric.NewBus()
	bus.Subscribe(0x50, 0xffffffff, make(chan kernel.Packet, 4096))

	base := kernel.NewBase("ens0", kernel.KindEnsemble, zerolog.Nop())
	k := New("ens0", base, cfg, input, nil, rec, bus, -1, 1)

	for i := 0; i < 20; i++ {
		k.Tick()
		rt := k.Status[0].RefractoryTime()
		if rt > cfg.TRef {
			t.Fatalf("tick %d: refractory_time %d exceeds t_ref %d", i, rt, cfg.TRef)
		}
		if rt > 0 && k.Status[0].Voltage() != 0 {
			t.Fatalf("tick %d: voltage %v nonzero while refractory", i, k.Status[0].Voltage())
		}
	}
}

func TestOneFramePerRecordingTick(t *testing.T) {
	dest := &paramstore.MemoryWriter{}
	cfg := Config{
		NNeurons:    8,
		NInputDims:  1,
		NOutputDims: 1,
		TRef:        2,
		DtOverTRC:   fxp.FromFloat(0.5),
		IBias:       make([]fxp.Value, 8),
		Encoders:    make([]fxp.Value, 8),
		Decoders:    make([]fxp.Value, 8),
		OutputKeys:  []uint32{0x50},
		Mode:        ModeBatchedAtEnd,
	}
	for n := range cfg.IBias {
		cfg.IBias[n] = fxp.FromFloat(2.0)
	}
	input := newTestInputBank(t, 1)
	rec := recording.NewBuffer(8, dest)
	bus := fabric.NewBus()
	bus.Subscribe(0x50, 0xffffffff, make(chan kernel.Packet, 4096))

	base := kernel.NewBase("ens0", kernel.KindEnsemble, zerolog.Nop())
	k := New("ens0", base, cfg, input, nil, rec, bus, -1, 1)

	for i := 0; i < 5; i++ {
		k.Tick()
	}
	if len(dest.Frames) != 5 {
		t.Errorf("expected 5 flushed frames, got %d", len(dest.Frames))
	}
}

func TestShutsDownAtEndTick(t *testing.T) {
	cfg := Config{NNeurons: 1, NInputDims: 1, NOutputDims: 1, DtOverTRC: fxp.FromFloat(0.1), IBias: []fxp.Value{fxp.Zero}, Encoders: []fxp.Value{fxp.Zero}, Decoders: []fxp.Value{fxp.Zero}, OutputKeys: []uint32{0x1}, Mode: ModeBatchedAtEnd}
	input := newTestInputBank(t, 1)
	rec := recording.NewBuffer(1, &paramstore.MemoryWriter{})
	bus := fabric.NewBus()
	base := kernel.NewBase("ens0", kernel.KindEnsemble, zerolog.Nop())
	k := New("ens0", base, cfg, input, nil, rec, bus, 3, 1)

	for i := 0; i < 10; i++ {
		k.Tick()
	}
	if k.tick != 3 {
		t.Errorf("expected kernel to stop ticking at end tick 3, tick counter = %d", k.tick)
	}
	if !k.Done() {
		t.Error("expected Done() to be true past the end tick")
	}
}
