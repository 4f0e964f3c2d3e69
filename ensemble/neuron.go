package ensemble

import "github.com/fabric-sim/onchip/fxp"

// NeuronStatus packs the 4-bit refractory countdown and 28-bit
// membrane voltage into one 32-bit word, the same bitfield layout a
// real core's off-chip memory image uses.
type NeuronStatus uint32

const (
	refractoryBits = 4
	refractoryMask = (1 << refractoryBits) - 1
	voltageBits    = 28
	voltageMask    = (1 << voltageBits) - 1
)

// RefractoryTime returns the ticks remaining in refractory.
func (s NeuronStatus) RefractoryTime() uint8 {
	return uint8(s & refractoryMask)
}

// Voltage returns the membrane voltage as a fxp.Value truncated to 28
// bits; 0 <= voltage < 1.0 is the invariant held between ticks.
func (s NeuronStatus) Voltage() fxp.Value {
	return fxp.Value(uint32(s>>refractoryBits) & voltageMask)
}

// Pack builds a NeuronStatus from a refractory countdown and voltage.
// voltage==0 is required whenever refractoryTime>0; upholding that
// invariant is the caller's responsibility.
func Pack(refractoryTime uint8, voltage fxp.Value) NeuronStatus {
	return NeuronStatus(uint32(refractoryTime&refractoryMask) | (uint32(voltage)&voltageMask)<<refractoryBits)
}

// WithRefractory returns s with only the refractory field replaced.
func (s NeuronStatus) WithRefractory(refractoryTime uint8) NeuronStatus {
	return Pack(refractoryTime, s.Voltage())
}

// WithVoltage returns s with only the voltage field replaced.
func (s NeuronStatus) WithVoltage(voltage fxp.Value) NeuronStatus {
	return Pack(s.RefractoryTime(), voltage)
}
