// Package controller implements the simulation-controller kernel: it
// pings each worker in turn, measures round-trip latency, broadcasts
// phase corrections so every core's tick schedule stays locked to one
// reference clock, and broadcasts synchronized start/stop-at-tick
// commands. It also provides Discipline, the per-worker
// clock-discipline side, which none of the other kernel packages embed.
package controller

import (
	"context"

	"github.com/fabric-sim/onchip/fabric"
	"github.com/fabric-sim/onchip/kernel"
	"golang.org/x/exp/maps"
)

// NodeKeys is one worker's ping/pong/correction key triple, from the
// per-node key table.
type NodeKeys struct {
	PingKey       uint32
	PongKey       uint32
	CorrectionKey uint32
}

// Controller runs the clock-discipline ping/pong round.
type Controller struct {
	*kernel.Base

	clock *Clock
	bus   fabric.Sender

	nodes       []NodeKeys
	startAtKey  uint32
	stopAtKey   uint32

	currentNode  int
	pingSend     int64
	awaitingPong bool

	minCorrection int64
	maxCorrection int64
	haveRound     bool

	// CorrectionRange is the health-signal metric: the spread of
	// corrections observed across the most recently completed round.
	CorrectionRange uint32

	// lastCorrection per node, for test observability.
	lastCorrection map[int]int64
}

// New constructs a Controller over the given node table.
func New(id string, base *kernel.Base, clock *Clock, bus fabric.Sender, nodes []NodeKeys, startAtKey, stopAtKey uint32) *Controller {
	return &Controller{
		Base:           base,
		clock:          clock,
		bus:            bus,
		nodes:          nodes,
		startAtKey:     startAtKey,
		stopAtKey:      stopAtKey,
		currentNode:    -1, // Tick advances before the first ping, landing on node 0
		lastCorrection: make(map[int]int64),
	}
}

// Tick runs the per-timer-tick ping/pong procedure.
func (c *Controller) Tick() {
	if len(c.nodes) == 0 {
		return
	}

	// Step 1: account for the previous round's pong, or its absence.
	if c.awaitingPong {
		c.Log().Warn().Int("node", c.currentNode).Msg("missed pong, round for node abandoned")
	}

	// Step 2: advance to the next node; publish correction_range when a
	// full round completes.
	c.currentNode++
	if c.currentNode >= len(c.nodes) {
		if c.haveRound {
			c.CorrectionRange = uint32(c.maxCorrection - c.minCorrection)
		}
		c.currentNode = 0
		c.haveRound = false
	}

	// Step 3: ping the next node.
	c.pingSend = c.clock.Now()
	c.awaitingPong = true
	c.bus.Send(kernel.Packet{Key: c.nodes[c.currentNode].PingKey})
}

// OnPong handles a multicast reply on the current node's pong key,
// carrying the worker's raw remote timer value.
func (c *Controller) OnPong(remoteTime int64) {
	now := c.clock.Now()
	latency := (now - c.pingSend) / 2
	adjustedRemote := remoteTime + latency
	errVal := now - adjustedRemote

	c.bus.Send(kernel.Packet{Key: c.nodes[c.currentNode].CorrectionKey, Payload: uint32(int32(errVal))})
	c.lastCorrection[c.currentNode] = errVal
	c.awaitingPong = false

	if !c.haveRound {
		c.minCorrection, c.maxCorrection = errVal, errVal
		c.haveRound = true
	} else {
		if errVal < c.minCorrection {
			c.minCorrection = errVal
		}
		if errVal > c.maxCorrection {
			c.maxCorrection = errVal
		}
	}
}

// LastCorrection reports the most recent correction applied to node
// index n, for test observability.
func (c *Controller) LastCorrection(n int) int64 {
	return c.lastCorrection[n]
}

// Host command codes.
const (
	CmdGetTime  uint8 = 0
	CmdGetDrift uint8 = 1
	CmdStartAt  uint8 = 2
	CmdStopAt   uint8 = 3
)

// OnHostMessage handles the controller's host command surface.
func (c *Controller) OnHostMessage(m kernel.HostMessage, reply chan<- kernel.HostMessage) {
	switch m.CmdRC {
	case CmdGetTime:
		reply <- kernel.HostMessage{CmdRC: CmdGetTime, Arg1: int32(c.clock.Now())}
	case CmdGetDrift:
		reply <- kernel.HostMessage{CmdRC: CmdGetDrift, Arg1: int32(c.CorrectionRange)}
	case CmdStartAt:
		c.bus.Send(kernel.Packet{Key: c.startAtKey, Payload: uint32(m.Arg1)})
	case CmdStopAt:
		c.bus.Send(kernel.Packet{Key: c.stopAtKey, Payload: uint32(m.Arg1)})
	}
}

// NodeCount reports how many workers this controller disciplines, used
// by tests verifying "exactly one ping per node per round".
func (c *Controller) NodeCount() int { return len(c.nodes) }

// onPacket routes an inbound multicast packet to OnPong when it
// matches the currently-awaited node's pong key; any other traffic is
// not of interest to the controller.
func (c *Controller) onPacket(p kernel.Packet) {
	if len(c.nodes) == 0 || p.Key != c.nodes[c.currentNode].PongKey {
		return
	}
	c.OnPong(int64(int32(p.Payload)))
}

// Run drives the controller off the fabric's packet, timer, and
// host-link channels until ctx is cancelled.
func (c *Controller) Run(ctx context.Context, packets <-chan kernel.Packet, ticks <-chan struct{}, hostMsgs <-chan kernel.HostMessage, hostReply chan<- kernel.HostMessage) {
	c.Base.Run(ctx, packets, ticks, hostMsgs, kernel.Handlers{
		OnPacket: c.onPacket,
		OnTick:   c.Tick,
		OnHostMessage: func(m kernel.HostMessage) {
			c.OnHostMessage(m, hostReply)
		},
	})
}

// nodeNames returns the configured node names from a name-keyed table,
// the way a caller builds a NodeKeys slice from a parameter region
// decoded into a map. Order is whatever golang.org/x/exp/maps.Keys
// returns; callers that need deterministic ordering must sort it.
func nodeNames(byName map[string]NodeKeys) []string {
	return maps.Keys(byName)
}
