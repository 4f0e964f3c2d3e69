package bridge

import (
	"testing"
	"time"

	"github.com/fabric-sim/onchip/fabric"
	"github.com/fabric-sim/onchip/filter"
	"github.com/fabric-sim/onchip/fxp"
	"github.com/fabric-sim/onchip/kernel"
	"github.com/rs/zerolog"
)

func TestRxFreshFlagScenario(t *testing.T) {
	// Scenario 3 from the spec: n_dims=2, keys [K0,K1]. Host sends
	// [1.0,2.0]. First two ticks emit (K0,1.0) then (K1,2.0); third
	// tick emits nothing; a later host message at tick 3 causes ticks
	// 4,5 to emit (K0,3.0),(K1,4.0).
	bus := fabric.NewBus()
	out := make(chan kernel.Packet, 16)
	bus.Subscribe(0, 0, out) // match everything

	base := kernel.NewBase("rx0", kernel.KindRxBridge, zerolog.Nop())
	rx := NewRx("rx0", base, []uint32{0xA0, 0xA1}, bus)

	rx.OnHostMessage(kernel.HostMessage{CmdRC: 1, Data: []uint32{fxp.FromFloat(1.0).Bits(), fxp.FromFloat(2.0).Bits()}})

	rx.Tick() // emits K0,1.0
	p := mustRecv(t, out)
	if p.Key != 0xA0 || fxp.FromBits(p.Payload).Float() != 1.0 {
		t.Errorf("tick0: got key=%x val=%v", p.Key, fxp.FromBits(p.Payload).Float())
	}

	rx.Tick() // emits K1,2.0
	p = mustRecv(t, out)
	if p.Key != 0xA1 || fxp.FromBits(p.Payload).Float() != 2.0 {
		t.Errorf("tick1: got key=%x val=%v", p.Key, fxp.FromBits(p.Payload).Float())
	}

	rx.Tick() // nothing fresh
	select {
	case <-out:
		t.Fatal("tick2 should not emit")
	default:
	}

	rx.OnHostMessage(kernel.HostMessage{CmdRC: 1, Data: []uint32{fxp.FromFloat(3.0).Bits(), fxp.FromFloat(4.0).Bits()}})

	rx.Tick()
	p = mustRecv(t, out)
	if p.Key != 0xA0 || fxp.FromBits(p.Payload).Float() != 3.0 {
		t.Errorf("tick3: got key=%x val=%v", p.Key, fxp.FromBits(p.Payload).Float())
	}
	rx.Tick()
	p = mustRecv(t, out)
	if p.Key != 0xA1 || fxp.FromBits(p.Payload).Float() != 4.0 {
		t.Errorf("tick4: got key=%x val=%v", p.Key, fxp.FromBits(p.Payload).Float())
	}
}

func mustRecv(t *testing.T, ch <-chan kernel.Packet) kernel.Packet {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(time.Second):
		t.Fatal("expected a packet")
		return kernel.Packet{}
	}
}

func TestTxEmitsHostFrameOnDelayReload(t *testing.T) {
	f := filter.NewFilter(fxp.Zero, false, 1)
	bank := &filter.Bank{NDimensions: 1, Filters: []*filter.Filter{f}, Input: make([]fxp.Value, 1)}
	hostOut := make(chan kernel.HostMessage, 4)
	base := kernel.NewBase("tx0", kernel.KindTxBridge, zerolog.Nop())
	tx := NewTx("tx0", base, bank, 2, hostOut)

	tx.OnPacket(kernel.Packet{Key: 0, Payload: fxp.FromFloat(1.0).Bits()})
	tx.Tick()
	select {
	case <-hostOut:
		t.Fatal("should not emit before delay elapses")
	default:
	}
	tx.Tick()
	select {
	case m := <-hostOut:
		if m.CmdRC != 1 {
			t.Errorf("CmdRC = %d, want 1", m.CmdRC)
		}
	default:
		t.Fatal("expected host frame on second tick")
	}
}
