// Package fabric is a software stand-in for the simulated hardware: a
// multicast packet network with no cross-source ordering guarantee, an
// auxiliary host-link channel, and per-core timer interrupts. It exists
// so the four kernel kinds can be wired together and driven in-process
// (Bus) or across processes (UDPBus), the way extracellular/signal_mediator.go fans
// chemical/electrical signals out to registered listeners in the
// teacher repo — no routing-table computation and no boot loader.
package fabric

import (
	"sync"

	"github.com/fabric-sim/onchip/kernel"
)

// Sender is anything that can multicast a packet, satisfied by both
// Bus (in-process) and UDPBus (cross-process); kernels depend on this
// interface rather than a concrete transport so the same kernel code
// runs in tests and as a standalone binary.
type Sender interface {
	Send(kernel.Packet)
}

// Bus is a key-addressed multicast network. Send delivers to every
// currently-registered subscriber whose mask matches; delivery order
// across distinct senders is unspecified: there are no ordering
// guarantees across different sources.
type Bus struct {
	mu   sync.RWMutex
	subs []subscription
}

type subscription struct {
	key  uint32
	mask uint32
	ch   chan<- kernel.Packet
}

// NewBus creates an empty multicast bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers ch to receive any packet whose key matches
// (key & mask) == matchKey. ch should be buffered by the caller to avoid a slow consumer stalling the bus's Send calls.
func (b *Bus) Subscribe(matchKey, mask uint32, ch chan<- kernel.Packet) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{key: matchKey, mask: mask, ch: ch})
}

// Send multicasts one packet to every matching subscriber. A full
// subscriber channel drops the packet for that subscriber rather than
// blocking the sender — real silicon does not retransmit lost packets
// either.
func (b *Bus) Send(p kernel.Packet) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if p.Key&s.mask != s.key {
			continue
		}
		select {
		case s.ch <- p:
		default:
		}
	}
}

// HostLink is the point-to-point bulk/command channel between a kernel
// and the host, modelled on the SDP frame contract. Direction is split
// into two independent channels so Rx and Tx traffic never contend.
type HostLink struct {
	toHost   chan kernel.HostMessage
	toKernel chan kernel.HostMessage
}

// NewHostLink creates a HostLink with the given buffering.
func NewHostLink(buffer int) *HostLink {
	return &HostLink{
		toHost:   make(chan kernel.HostMessage, buffer),
		toKernel: make(chan kernel.HostMessage, buffer),
	}
}

// FromKernel returns the channel a kernel sends host-bound frames on.
func (h *HostLink) FromKernel() chan<- kernel.HostMessage { return h.toHost }

// ToHost returns the channel the host reads host-bound frames from.
func (h *HostLink) ToHost() <-chan kernel.HostMessage { return h.toHost }

// ToKernel returns the channel the host sends kernel-bound commands on.
func (h *HostLink) ToKernel() chan<- kernel.HostMessage { return h.toKernel }

// FromHost returns the channel a kernel reads host-bound commands from.
func (h *HostLink) FromHost() <-chan kernel.HostMessage { return h.toKernel }

// Timer delivers one tick per Fire call for a kernel's Run loop to
// select on. Nothing in this module fires it from the controller's
// clock; the cmd binaries tick off their own time.Ticker instead.
type Timer struct {
	ch chan struct{}
}

// NewTimer creates a Timer with the given channel buffering.
func NewTimer(buffer int) *Timer {
	return &Timer{ch: make(chan struct{}, buffer)}
}

// C returns the channel a kernel's Run loop selects on for tick events.
func (t *Timer) C() <-chan struct{} { return t.ch }

// Fire delivers one tick. Like Bus.Send, a full channel drops the tick
// rather than blocking — a disciplined kernel should be draining its
// timer promptly.
func (t *Timer) Fire() {
	select {
	case t.ch <- struct{}{}:
	default:
	}
}
