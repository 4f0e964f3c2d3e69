// Package learning implements the PES (Prescribed Error Sensitivity)
// decoder-learning rule, in its two explicit variants. Which variant is
// active is fixed at init from a layout-tag field; an ambiguous or
// missing tag is an init-fatal error, never silently resolved to a
// default.
package learning

import (
	"errors"
	"fmt"

	"github.com/fabric-sim/onchip/filter"
	"github.com/fabric-sim/onchip/fxp"
)

// Variant identifies which PES layout the parameter region declared.
type Variant uint8

const (
	// VariantUnspecified marks a parameter region that did not declare
	// a layout tag; initialisation must refuse to proceed.
	VariantUnspecified Variant = iota
	// VariantOnSpike applies the decoder update once per spiking
	// neuron ("Variant A").
	VariantOnSpike
	// VariantFilteredActivity decays a per-neuron filtered activity
	// trace and applies the update to every neuron every tick
	// ("Variant B").
	VariantFilteredActivity
)

// ErrAmbiguousVariant is returned when a parameter region's PES layout
// tag is missing or unrecognised.
var ErrAmbiguousVariant = errors.New("learning: ambiguous or missing PES layout tag")

// State holds the PES configuration and (for the filtered-activity
// variant) per-neuron running trace.
type State struct {
	Variant           Variant
	LearningRate      fxp.Value
	ErrorFilterID     uint16
	DecoderOutputBase uint16 // decoder_output_offset

	// Variant B only:
	ActivityDecay    fxp.Value
	FilteredActivity []fxp.Value
}

// NewState validates the variant tag and, for VariantFilteredActivity,
// allocates the per-neuron trace.
func NewState(variant Variant, learningRate fxp.Value, errorFilterID, decoderOffset uint16, activityDecay fxp.Value, nNeurons int) (*State, error) {
	switch variant {
	case VariantOnSpike:
		return &State{
			Variant:           variant,
			LearningRate:      learningRate,
			ErrorFilterID:     errorFilterID,
			DecoderOutputBase: decoderOffset,
		}, nil
	case VariantFilteredActivity:
		return &State{
			Variant:           variant,
			LearningRate:      learningRate,
			ErrorFilterID:     errorFilterID,
			DecoderOutputBase: decoderOffset,
			ActivityDecay:     activityDecay,
			FilteredActivity:  make([]fxp.Value, nNeurons),
		}, nil
	default:
		return nil, fmt.Errorf("%w: got %d", ErrAmbiguousVariant, variant)
	}
}

// errorFilter fetches the configured error-signal filter from bank.
func (s *State) errorFilter(bank *filter.Bank) *filter.Filter {
	return bank.Filters[s.ErrorFilterID]
}

// OnSpike applies the on-spike update (Variant A) for neuron n, to be
// called exactly once when neuron n spikes this tick. A non-positive
// learning rate is a no-op.
func (s *State) OnSpike(n int, decoders []fxp.Value, outputStride int, bank *filter.Bank) {
	if s.Variant != VariantOnSpike || s.LearningRate <= 0 {
		return
	}
	ef := s.errorFilter(bank)
	for d, e := range ef.Filtered {
		idx := n*outputStride + int(s.DecoderOutputBase) + d
		decoders[idx] = decoders[idx].Add(s.LearningRate.Mul(e))
	}
}

// DecayActivity decays the filtered-activity trace for neuron n
// (Variant B, first half of the per-tick pass) and bumps it if the
// neuron spiked this tick.
func (s *State) DecayActivity(n int, spiked bool) {
	if s.Variant != VariantFilteredActivity {
		return
	}
	s.FilteredActivity[n] = s.ActivityDecay.Mul(s.FilteredActivity[n])
	if spiked {
		s.FilteredActivity[n] = s.FilteredActivity[n].Add(fxp.One.Sub(s.ActivityDecay))
	}
}

// ApplyFilteredActivity applies the Variant B decoder update for
// neuron n using its current filtered-activity trace. Must run after
// DecayActivity has been called for every neuron this tick: decay runs
// for all neurons first, then the update runs in a separate pass.
func (s *State) ApplyFilteredActivity(n int, decoders []fxp.Value, outputStride int, bank *filter.Bank) {
	if s.Variant != VariantFilteredActivity || s.LearningRate <= 0 {
		return
	}
	ef := s.errorFilter(bank)
	act := s.FilteredActivity[n]
	for d, e := range ef.Filtered {
		idx := n*outputStride + int(s.DecoderOutputBase) + d
		decoders[idx] = decoders[idx].Add(s.LearningRate.Mul(act).Mul(e))
	}
}
