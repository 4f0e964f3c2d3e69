// Package ensemble implements the LIF ensemble kernel: a population of
// leaky integrate-and-fire neurons implementing the Neural Engineering
// Framework — per-tick input filtering, integration, spike detection,
// decoded-value accumulation, interleaved or batched-at-end output
// emission, optional PES learning, and spike recording.
package ensemble

import (
	"context"
	"time"

	"github.com/fabric-sim/onchip/fabric"
	"github.com/fabric-sim/onchip/filter"
	"github.com/fabric-sim/onchip/fxp"
	"github.com/fabric-sim/onchip/kernel"
	"github.com/fabric-sim/onchip/learning"
	"github.com/fabric-sim/onchip/recording"
)

// OutputMode selects how decoded output dimensions are emitted, a
// build-time/init-time constant per kernel. Both modes preserve "each
// decoded sum is emitted exactly once per tick"; they differ only in
// observable network-traffic timing.
type OutputMode int

const (
	// ModeInterleaved transmits one dimension per g_output_period
	// neuron steps, cycling through dimensions.
	ModeInterleaved OutputMode = iota
	// ModeBatchedAtEnd sends all dimensions back-to-back after the
	// neuron loop, with a fixed inter-packet gap.
	ModeBatchedAtEnd
)

// BatchedGap is the fixed inter-packet gap used by ModeBatchedAtEnd.
const BatchedGap = time.Microsecond

// Config is the static, per-init configuration of one ensemble kernel,
// assembled from its parameter regions (System, Bias, Encoders,
// Decoders, Output keys, Filters, Filter routes, PES).
type Config struct {
	NNeurons    int
	NInputDims  int
	NOutputDims int
	NInhibDims  int
	TRef        uint8
	DtOverTRC   fxp.Value
	InhibGain   fxp.Value

	IBias      []fxp.Value   // N
	Encoders   []fxp.Value   // N*NInputDims row-major
	Decoders   []fxp.Value   // N*NOutputDims row-major
	OutputKeys []uint32      // NOutputDims

	Mode OutputMode
	PES  *learning.State // nil if learning disabled
}

// Kernel is the LIF ensemble kernel.
type Kernel struct {
	*kernel.Base

	cfg Config

	Input       *filter.Bank // NInputDims
	InhibInput  *filter.Bank // NInhibDims, nil if NInhibDims==0
	EncoderMags []fxp.Value  // N, sum of |encoder| per neuron for inhibition

	Status []NeuronStatus
	Output []fxp.Value // NOutputDims

	Recording *recording.Buffer

	lfsr LFSR

	outputPeriod  int // g_output_period, interleaved mode only
	outputCursor  int
	outputDimSeen int

	bus     fabric.Sender
	endTick int64 // simulation end tick; <0 means unbounded
	tick    int64
}

// New constructs an ensemble kernel from its static configuration.
func New(id string, base *kernel.Base, cfg Config, input, inhib *filter.Bank, rec *recording.Buffer, bus fabric.Sender, endTick int64, lfsrSeed uint16) *Kernel {
	k := &Kernel{
		Base:      base,
		cfg:       cfg,
		Input:     input,
		InhibInput: inhib,
		Status:    make([]NeuronStatus, cfg.NNeurons),
		Output:    make([]fxp.Value, cfg.NOutputDims),
		Recording: rec,
		lfsr:      NewLFSR(lfsrSeed),
		bus:       bus,
		endTick:   endTick,
	}
	if cfg.NOutputDims > 0 {
		k.outputPeriod = cfg.NNeurons / cfg.NOutputDims
		if k.outputPeriod < 1 {
			k.outputPeriod = 1
		}
	}
	if cfg.NInhibDims > 0 {
		k.EncoderMags = make([]fxp.Value, cfg.NNeurons)
		for n := 0; n < cfg.NNeurons; n++ {
			var sum fxp.Value
			for d := 0; d < cfg.NInputDims; d++ {
				e := cfg.Encoders[n*cfg.NInputDims+d]
				if e < 0 {
					e = -e
				}
				sum = sum.Add(e)
			}
			k.EncoderMags[n] = sum
		}
	}
	return k
}

// Done reports whether the configured simulation end tick has been
// reached; the kernel shuts down cleanly instead of ticking further.
func (k *Kernel) Done() bool {
	return k.endTick >= 0 && k.tick >= k.endTick
}

// Tick performs one full timer interrupt: advance the recording write
// position, finalise filtered inputs, step every neuron, emit any
// batched output, and flush the recorded frame off-chip.
func (k *Kernel) Tick() {
	if k.Done() {
		return
	}

	// Step 1: advance the recording write position.
	k.Recording.Prepare()

	// Step 2: finalise filtered inputs.
	k.Input.Step()
	if k.InhibInput != nil {
		k.InhibInput.Step()
	}

	k.outputCursor = 0

	for n := 0; n < k.cfg.NNeurons; n++ {
		k.stepNeuron(n)
	}

	if k.cfg.Mode == ModeBatchedAtEnd {
		k.emitBatched()
	}

	// Step 5: flush the recorded frame off-chip.
	k.Recording.Flush()

	k.tick++
}

// stepNeuron runs the refractory/integrate/spike/decode/learn sequence
// for one neuron.
func (k *Kernel) stepNeuron(n int) {
	if k.cfg.Mode == ModeInterleaved {
		defer k.maybeEmitInterleaved()
	}
	if k.cfg.PES != nil && k.cfg.PES.Variant == learning.VariantFilteredActivity {
		defer k.cfg.PES.ApplyFilteredActivity(n, k.cfg.Decoders, k.cfg.NOutputDims, k.Input)
	}

	status := k.Status[n]
	if status.RefractoryTime() > 0 {
		k.Status[n] = status.WithRefractory(status.RefractoryTime() - 1)
		if k.cfg.PES != nil {
			k.cfg.PES.DecayActivity(n, false)
		}
		return
	}

	j := k.currentFor(n)
	vPrev := status.Voltage()
	dV := j.Sub(vPrev).Mul(k.cfg.DtOverTRC)
	v := fxp.Max(0, vPrev.Add(dV))

	if v <= fxp.One {
		k.Status[n] = status.WithVoltage(v)
		if k.cfg.PES != nil {
			k.cfg.PES.DecayActivity(n, false)
		}
		return
	}

	// Spike path.
	refractory := k.cfg.TRef
	k.lfsr = k.lfsr.Next()
	r := fxp.Value(int32(k.lfsr.Value()))
	if r.Mul(dV) < v.Sub(fxp.One) && refractory > 0 {
		refractory--
	}
	k.Status[n] = Pack(refractory, 0)

	for d := 0; d < k.cfg.NOutputDims; d++ {
		k.Output[d] = k.Output[d].Add(k.cfg.Decoders[n*k.cfg.NOutputDims+d])
	}
	k.Recording.MarkSpike(n)

	if k.cfg.PES != nil {
		k.cfg.PES.DecayActivity(n, true)
		switch k.cfg.PES.Variant {
		case learning.VariantOnSpike:
			k.cfg.PES.OnSpike(n, k.cfg.Decoders, k.cfg.NOutputDims, k.Input)
		}
	}
}

// currentFor computes the input current J for neuron n, including the
// inhibitory term when configured.
func (k *Kernel) currentFor(n int) fxp.Value {
	j := k.cfg.IBias[n]
	for d := 0; d < k.cfg.NInputDims; d++ {
		j = j.Add(k.cfg.Encoders[n*k.cfg.NInputDims+d].Mul(k.Input.Input[d]))
	}
	if k.cfg.NInhibDims > 0 {
		var inhibSum fxp.Value
		for d := 0; d < k.cfg.NInhibDims; d++ {
			inhibSum = inhibSum.Add(k.InhibInput.Input[d])
		}
		j = j.Sub(k.cfg.InhibGain.Mul(inhibSum).Mul(k.EncoderMags[n]))
	}
	return j
}

// maybeEmitInterleaved transmits exactly one dimension every
// g_output_period neuron steps, cycling through dimensions.
func (k *Kernel) maybeEmitInterleaved() {
	k.outputDimSeen++
	if k.outputDimSeen < k.outputPeriod {
		return
	}
	k.outputDimSeen = 0
	if k.cfg.NOutputDims == 0 {
		return
	}
	d := k.outputCursor % k.cfg.NOutputDims
	k.outputCursor++
	k.emitDim(d)
}

// emitBatched sends all output dimensions back-to-back with a fixed
// inter-packet gap. The gap is recorded as a scheduling hint for a
// real transport; the in-process fabric delivers synchronously.
func (k *Kernel) emitBatched() {
	for d := 0; d < k.cfg.NOutputDims; d++ {
		k.emitDim(d)
	}
}

// emitDim sends dimension d's accumulated output and zeroes it.
func (k *Kernel) emitDim(d int) {
	k.bus.Send(kernel.Packet{Key: k.cfg.OutputKeys[d], Payload: k.Output[d].Bits()})
	k.Output[d] = fxp.Zero
}

// OnPacket routes one multicast payload into the excitatory or
// inhibitory filter bank depending on which the route belongs to; the
// caller is expected to dispatch by key range since the two banks are
// configured with disjoint route key spaces.
func (k *Kernel) OnPacket(p kernel.Packet) {
	k.Input.OnPacket(p.Key, fxp.FromBits(p.Payload))
	if k.InhibInput != nil {
		k.InhibInput.OnPacket(p.Key, fxp.FromBits(p.Payload))
	}
}

// Run drives the kernel off the fabric's packet and timer channels
// until ctx is cancelled or the configured end tick is reached.
func (k *Kernel) Run(ctx context.Context, packets <-chan kernel.Packet, ticks <-chan struct{}) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	k.Base.Run(ctx, packets, ticks, nil, kernel.Handlers{
		OnPacket: k.OnPacket,
		OnTick: func() {
			if !k.Done() {
				k.Tick()
			}
			if k.Done() {
				cancel()
			}
		},
	})
}
