package controller

import (
	"github.com/fabric-sim/onchip/fabric"
	"github.com/fabric-sim/onchip/kernel"
)

// Discipline is the worker-side half of the clock-discipline protocol:
// it replies to the controller's ping, applies phase corrections, and
// tracks start_at/stop_at to report whether a worker's timer should be
// firing. It is a standalone component; no kernel package or cmd
// binary in this module constructs or embeds one.
type Discipline struct {
	clock *Clock
	bus   fabric.Sender

	myKeys NodeKeys

	phase         int64 // absolute phase offset applied to this worker's tick schedule
	haveFirstCorr bool

	startAt int64
	stopAt  int64
	armed   bool
	started bool
}

// NewDiscipline constructs a worker's clock-discipline component.
func NewDiscipline(clock *Clock, bus fabric.Sender, myKeys NodeKeys) *Discipline {
	return &Discipline{clock: clock, bus: bus, myKeys: myKeys}
}

// OnPing replies with this worker's raw timer value on its pong key:
// upon receiving its own ping_key, it replies with its own raw timer
// value on pong_key.
func (d *Discipline) OnPing() {
	d.bus.Send(kernel.Packet{Key: d.myKeys.PongKey, Payload: uint32(int32(d.clock.Now()))})
}

// OnCorrection applies a phase correction: the first correction
// received sets absolute phase, every subsequent one is relative.
func (d *Discipline) OnCorrection(errVal int64) {
	if !d.haveFirstCorr {
		d.phase = errVal
		d.haveFirstCorr = true
		return
	}
	d.phase += errVal
}

// Phase returns the currently applied phase correction.
func (d *Discipline) Phase() int64 { return d.phase }

// OnStartAt arms the simulation timer to begin at reference tick t.
func (d *Discipline) OnStartAt(t int64) {
	d.startAt = t
	d.armed = true
	d.started = false
}

// OnStopAt disarms the simulation timer at reference tick t.
func (d *Discipline) OnStopAt(t int64) {
	d.stopAt = t
}

// ShouldRun reports whether, given reference time now, this worker's
// timer should currently be firing.
func (d *Discipline) ShouldRun(now int64) bool {
	if !d.armed {
		return false
	}
	if !d.started {
		if now < d.startAt {
			return false
		}
		d.started = true
	}
	if d.stopAt != 0 && now >= d.stopAt {
		d.armed = false
		return false
	}
	return true
}
