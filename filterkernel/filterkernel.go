// Package filterkernel implements the Filter kernel: a strict
// pass-through with no neuron state. Filtered inputs are re-emitted on
// the kernel's own output keys every transmission_delay ticks.
package filterkernel

import (
	"context"

	"github.com/fabric-sim/onchip/fabric"
	"github.com/fabric-sim/onchip/filter"
	"github.com/fabric-sim/onchip/fxp"
	"github.com/fabric-sim/onchip/kernel"
)

// Kernel is the Filter kernel: a filter.Bank plus an emission
// countdown.
type Kernel struct {
	*kernel.Base

	Bank              *filter.Bank
	OutputKeys        []uint32
	TransmissionDelay int
	delayRemaining    int

	bus fabric.Sender
}

// New constructs a Filter kernel. outputKeys must have one entry per
// dimension of bank.
func New(id string, base *kernel.Base, bank *filter.Bank, outputKeys []uint32, transmissionDelay int, bus fabric.Sender) *Kernel {
	return &Kernel{
		Base:              base,
		Bank:              bank,
		OutputKeys:        outputKeys,
		TransmissionDelay: transmissionDelay,
		delayRemaining:    transmissionDelay,
		bus:               bus,
	}
}

// Tick performs one timer interrupt's worth of work: finalise filtered
// inputs, count down, and on reload emit the filtered vector on the
// kernel's own output keys.
func (k *Kernel) Tick() {
	k.Bank.Step()

	k.delayRemaining--
	if k.delayRemaining > 0 {
		return
	}
	for d, v := range k.Bank.Input {
		k.bus.Send(kernel.Packet{Key: k.OutputKeys[d], Payload: v.Bits()})
	}
	k.delayRemaining = k.TransmissionDelay
}

// OnPacket routes one multicast payload into the filter bank.
func (k *Kernel) OnPacket(p kernel.Packet) {
	k.Bank.OnPacket(p.Key, fxp.FromBits(p.Payload))
}

// Run drives the kernel off the fabric's packet and timer channels
// until ctx is cancelled.
func (k *Kernel) Run(ctx context.Context, packets <-chan kernel.Packet, ticks <-chan struct{}) {
	k.Base.Run(ctx, packets, ticks, nil, kernel.Handlers{
		OnPacket: k.OnPacket,
		OnTick:   k.Tick,
	})
}
