package ensemble

import "testing"

func TestLFSRNeverZero(t *testing.T) {
	l := NewLFSR(1)
	for i := 0; i < (1<<15)-1; i++ {
		l = l.Next()
		if l.Value() == 0 {
			t.Fatalf("LFSR produced 0 at iteration %d", i)
		}
	}
}

func TestLFSRPeriod(t *testing.T) {
	start := NewLFSR(1)
	l := start
	for i := 0; i < (1<<15)-1; i++ {
		l = l.Next()
	}
	if l.Value() != start.Value() {
		t.Errorf("LFSR did not return to start after 2^15-1 iterations: got %x want %x", l.Value(), start.Value())
	}
}

func TestPackUnpackNeuronStatus(t *testing.T) {
	s := Pack(5, 1<<20)
	if s.RefractoryTime() != 5 {
		t.Errorf("RefractoryTime() = %d, want 5", s.RefractoryTime())
	}
	if s.Voltage() != 1<<20 {
		t.Errorf("Voltage() = %d, want %d", s.Voltage(), 1<<20)
	}
}

func TestWithRefractoryPreservesVoltage(t *testing.T) {
	s := Pack(0, 12345)
	s = s.WithRefractory(3)
	if s.Voltage() != 12345 {
		t.Errorf("WithRefractory changed voltage: got %d want 12345", s.Voltage())
	}
	if s.RefractoryTime() != 3 {
		t.Errorf("RefractoryTime() = %d, want 3", s.RefractoryTime())
	}
}
