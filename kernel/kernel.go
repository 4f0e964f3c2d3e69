// Package kernel generalizes the teacher's component.Component /
// component.BaseComponent pattern into the shared base every on-chip
// kernel (ensemble, filter, value-source, the two bridge kernels, and
// the simulation controller) embeds: identity, lifecycle state, and an
// interrupt-priority execution loop.
package kernel

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// State mirrors the lifecycle states a kernel passes through: it
// starts Idle, becomes Running once init succeeds and the timer is
// armed, and never restarts once Stopped — there is no dynamic
// reconfiguration after start.
type State int

const (
	// StateIdle is the state of a kernel that has not yet started its
	// timer, including one that failed init and is deliberately kept
	// idle.
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Kind identifies which of the four simulation kernels (or the
// controller) a Base belongs to, used only for logging and exit-code
// bookkeeping.
type Kind string

const (
	KindEnsemble    Kind = "ensemble"
	KindFilter      Kind = "filter"
	KindValueSource Kind = "value_source"
	KindRxBridge    Kind = "rx_bridge"
	KindTxBridge    Kind = "tx_bridge"
	KindController  Kind = "controller"
)

// Base is embedded by every kernel kind. It owns identity and
// lifecycle state the way component.BaseComponent did for neural
// components, guarded the same way (a single sync.RWMutex over the
// mutable fields).
type Base struct {
	id   string
	kind Kind
	log  zerolog.Logger

	mu    sync.RWMutex
	state State
}

// NewBase constructs a Base and binds a kernel-tagged logger, per
// SPEC_FULL's ambient logging rule.
func NewBase(id string, kind Kind, log zerolog.Logger) *Base {
	return &Base{
		id:    id,
		kind:  kind,
		log:   log.With().Str("kernel", string(kind)).Str("id", id).Logger(),
		state: StateIdle,
	}
}

func (b *Base) ID() string        { return b.id }
func (b *Base) Kind() Kind        { return b.kind }
func (b *Base) Log() *zerolog.Logger { return &b.log }

func (b *Base) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// MarkRunning transitions the kernel to Running: called once init has
// fully succeeded and the timer is about to be armed.
func (b *Base) MarkRunning() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateRunning
}

// FailInit logs an init-fatal error with the kernel-tagged prefix
// and leaves the kernel Idle; the timer is never armed. The controller
// observes such a kernel only indirectly, via a missing pong.
func (b *Base) FailInit(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateIdle
	b.log.Error().Err(err).Msg("init-fatal, kernel will not start")
}

// Stop transitions the kernel to Stopped, the terminal state reached
// when the configured simulation end tick is hit.
func (b *Base) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateStopped
}

// Packet is one multicast message as delivered by the fabric: a 32-bit
// key and, for dimensional traffic, a fixed-point payload.
type Packet struct {
	Key     uint32
	Payload uint32
}

// HostMessage is one host-link frame as delivered by the fabric.
type HostMessage struct {
	CmdRC uint8
	Arg1  int32
	Arg2  int32
	Data  []uint32
}

// Handlers is the sealed set of interrupt handlers a kernel's Run loop
// dispatches to — a plain interrupt vector table in place of the
// source's function-pointer callbacks.
type Handlers struct {
	// OnPacket handles one multicast packet. Highest priority.
	OnPacket func(Packet)
	// OnTick handles one timer interrupt. Lower priority than packet
	// reception.
	OnTick func()
	// OnHostMessage handles one host-link frame. Lowest priority.
	OnHostMessage func(HostMessage)
}

// Run implements the kernel's execution model as a single select loop:
// packets
// are drained preferentially over timer and host-link events on every
// iteration, approximating "packet reception at the highest priority"
// without true interrupt preemption, which a userspace goroutine cannot
// model more precisely. When a timer tick and a host-link frame are
// both ready, select takes them in no fixed order.
func (b *Base) Run(ctx context.Context, packets <-chan Packet, ticks <-chan struct{}, hostMsgs <-chan HostMessage, h Handlers) {
	b.MarkRunning()
	defer b.Stop()

	for {
		// Drain any packets waiting before considering the next timer
		// or host-link event, modelling packet reception's priority.
		drained := true
		for drained {
			select {
			case p := <-packets:
				if h.OnPacket != nil {
					h.OnPacket(p)
				}
			default:
				drained = false
			}
		}

		select {
		case <-ctx.Done():
			return
		case p := <-packets:
			if h.OnPacket != nil {
				h.OnPacket(p)
			}
		case <-ticks:
			if h.OnTick != nil {
				h.OnTick()
			}
		case m := <-hostMsgs:
			if h.OnHostMessage != nil {
				h.OnHostMessage(m)
			}
		}
	}
}

// ErrAlreadyRunning reports an attempt to start a kernel twice; there is
// no dynamic reconfiguration once a simulation has started. No Base
// method returns it: MarkRunning and Run do not check the current state.
var ErrAlreadyRunning = fmt.Errorf("kernel: already running")
