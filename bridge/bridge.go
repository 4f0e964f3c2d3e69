// Package bridge implements the symmetric Tx/Rx bridge kernels: Rx
// injects host-supplied dimensional values as multicast; Tx aggregates
// filtered multicast dimensions into host-link frames.
package bridge

import (
	"context"

	"github.com/fabric-sim/onchip/fabric"
	"github.com/fabric-sim/onchip/filter"
	"github.com/fabric-sim/onchip/fxp"
	"github.com/fabric-sim/onchip/kernel"
)

// Rx is the host->fabric bridge kernel. n_dims is capped at 64.
type Rx struct {
	*kernel.Base

	Keys       []uint32
	output     []fxp.Value
	fresh      []bool
	currentDim int

	bus fabric.Sender
}

// MaxDims is the cap on Rx dimensionality.
const MaxDims = 64

// NewRx constructs an Rx bridge kernel.
func NewRx(id string, base *kernel.Base, keys []uint32, bus fabric.Sender) *Rx {
	if len(keys) > MaxDims {
		keys = keys[:MaxDims]
	}
	return &Rx{
		Base:   base,
		Keys:   keys,
		output: make([]fxp.Value, len(keys)),
		fresh:  make([]bool, len(keys)),
		bus:    bus,
	}
}

// OnHostMessage handles a cmd==1 host-link frame: it overwrites the
// output vector and marks every dimension fresh.
func (r *Rx) OnHostMessage(m kernel.HostMessage) {
	if m.CmdRC != 1 {
		return
	}
	for i := 0; i < len(r.output) && i < len(m.Data); i++ {
		r.output[i] = fxp.FromBits(m.Data[i])
		r.fresh[i] = true
	}
}

// Tick performs one timer interrupt's worth of work: if the current
// dimension is fresh, emit it on its multicast key, clear the flag,
// and advance to the next dimension. An idle dimension leaves the
// cursor in place rather than skipping past it, so a dimension that
// goes stale for a tick is still the one picked up once new host data
// arrives. The caller is responsible for scheduling ticks at
// dt/n_dims so every dimension is visited once per simulation step.
func (r *Rx) Tick() {
	if len(r.Keys) == 0 {
		return
	}
	if !r.fresh[r.currentDim] {
		return
	}
	r.bus.Send(kernel.Packet{Key: r.Keys[r.currentDim], Payload: r.output[r.currentDim].Bits()})
	r.fresh[r.currentDim] = false
	r.currentDim = (r.currentDim + 1) % len(r.Keys)
}

// Run drives the Rx kernel off the fabric's timer and host-link
// channels until ctx is cancelled; Rx has no incoming multicast
// traffic of its own.
func (r *Rx) Run(ctx context.Context, ticks <-chan struct{}, hostMsgs <-chan kernel.HostMessage) {
	r.Base.Run(ctx, nil, ticks, hostMsgs, kernel.Handlers{
		OnTick:        r.Tick,
		OnHostMessage: r.OnHostMessage,
	})
}

// Tx is the fabric->host bridge kernel. It behaves like
// filterkernel.Kernel internally but emits a host-link frame instead
// of multicast on reload.
type Tx struct {
	*kernel.Base

	Bank              *filter.Bank
	TransmissionDelay int
	delayRemaining    int

	hostOut chan<- kernel.HostMessage
}

// NewTx constructs a Tx bridge kernel.
func NewTx(id string, base *kernel.Base, bank *filter.Bank, transmissionDelay int, hostOut chan<- kernel.HostMessage) *Tx {
	return &Tx{
		Base:              base,
		Bank:              bank,
		TransmissionDelay: transmissionDelay,
		delayRemaining:    transmissionDelay,
		hostOut:           hostOut,
	}
}

// OnPacket routes one multicast payload into the filter bank.
func (tx *Tx) OnPacket(p kernel.Packet) {
	tx.Bank.OnPacket(p.Key, fxp.FromBits(p.Payload))
}

// Tick finalises filtered inputs, counts down, and on reload emits a
// host-link frame with cmd_rc=1 carrying the filtered vector. The frame
// carries no tag or destination address: HostMessage has no such
// fields.
func (tx *Tx) Tick() {
	tx.Bank.Step()

	tx.delayRemaining--
	if tx.delayRemaining > 0 {
		return
	}
	data := make([]uint32, len(tx.Bank.Input))
	for d, v := range tx.Bank.Input {
		data[d] = v.Bits()
	}
	tx.hostOut <- kernel.HostMessage{CmdRC: 1, Data: data}
	tx.delayRemaining = tx.TransmissionDelay
}

// Run drives the Tx kernel off the fabric's packet and timer channels
// until ctx is cancelled; host-bound frames are sent directly on
// hostOut rather than through Handlers.
func (tx *Tx) Run(ctx context.Context, packets <-chan kernel.Packet, ticks <-chan struct{}) {
	tx.Base.Run(ctx, packets, ticks, nil, kernel.Handlers{
		OnPacket: tx.OnPacket,
		OnTick:   tx.Tick,
	})
}
