package filter

import (
	"testing"

	"github.com/fabric-sim/onchip/fxp"
	"github.com/rs/zerolog"
)

func TestStepZeroesAccumulator(t *testing.T) {
	f := NewFilter(fxp.FromFloat(0.5), false, 1)
	f.contribute(0, fxp.FromFloat(1.0))
	f.step()
	if f.Accumulator[0] != fxp.Zero {
		t.Errorf("accumulator not zeroed after step: %v", f.Accumulator[0])
	}
}

func TestIIRDecayScenario(t *testing.T) {
	// Scenario 2 from the spec: a=0.5, one dimension, fed 1.0 at tick 0
	// and 0 thereafter; output should decay 0.5, 0.25, 0.125, ...
	f := NewFilter(fxp.FromFloat(0.5), false, 1)
	bank := &Bank{NDimensions: 1, Filters: []*Filter{f}, Input: make([]fxp.Value, 1)}

	bank.Filters[0].contribute(0, fxp.FromFloat(1.0))
	want := 0.5
	for tick := 0; tick < 4; tick++ {
		bank.Step()
		got := bank.Input[0].Float()
		if got != want {
			t.Errorf("tick %d: got %v, want %v", tick, got, want)
		}
		want /= 2
	}
}

func TestModulatoryReplaces(t *testing.T) {
	f := NewFilter(fxp.Zero, true, 1)
	f.contribute(0, fxp.FromFloat(1.0))
	f.contribute(0, fxp.FromFloat(2.0))
	if f.Accumulator[0].Float() != 2.0 {
		t.Errorf("modulatory contribute should replace, got %v", f.Accumulator[0].Float())
	}
}

func TestAdditiveSums(t *testing.T) {
	f := NewFilter(fxp.Zero, false, 1)
	f.contribute(0, fxp.FromFloat(1.0))
	f.contribute(0, fxp.FromFloat(2.0))
	if f.Accumulator[0].Float() != 3.0 {
		t.Errorf("additive contribute should sum, got %v", f.Accumulator[0].Float())
	}
}

func TestNewBankRejectsUnknownFilterID(t *testing.T) {
	routes := []Route{{Key: 0, Mask: 0xffff0000, FilterID: 5, DimensionMask: 0xffff}}
	_, err := NewBank(1, []*Filter{NewFilter(fxp.Zero, false, 1)}, routes, zerolog.Nop())
	if err == nil {
		t.Fatal("expected error for route referencing missing filter id")
	}
}

func TestOnPacketFirstMatchWins(t *testing.T) {
	f0 := NewFilter(fxp.Zero, false, 1)
	f1 := NewFilter(fxp.Zero, false, 1)
	routes := []Route{
		{Key: 0x0000, Mask: 0xffff0000, FilterID: 0, DimensionMask: 0x0},
		{Key: 0x0000, Mask: 0x00000000, FilterID: 1, DimensionMask: 0x0},
	}
	bank, err := NewBank(1, []*Filter{f0, f1}, routes, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	bank.OnPacket(0x1234, fxp.FromFloat(1.0))
	if f0.Accumulator[0].Float() != 1.0 {
		t.Errorf("first matching route should have received contribution")
	}
	if f1.Accumulator[0].Float() != 0 {
		t.Errorf("second route should not have received contribution")
	}
}

func TestOnPacketDropsUnrouted(t *testing.T) {
	bank, err := NewBank(1, []*Filter{NewFilter(fxp.Zero, false, 1)}, nil, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	bank.OnPacket(0x1, fxp.FromFloat(1.0)) // must not panic
}

func TestStepSumsAcrossFilters(t *testing.T) {
	f0 := NewFilter(fxp.Zero, false, 1)
	f1 := NewFilter(fxp.Zero, false, 1)
	bank := &Bank{NDimensions: 1, Filters: []*Filter{f0, f1}, Input: make([]fxp.Value, 1)}
	f0.contribute(0, fxp.FromFloat(1.0))
	f1.contribute(0, fxp.FromFloat(2.0))
	bank.Step()
	if bank.Input[0].Float() != 3.0 {
		t.Errorf("expected sum of both filters' filtered output, got %v", bank.Input[0].Float())
	}
}
