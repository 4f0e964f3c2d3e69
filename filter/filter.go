// Package filter implements the filtered-input subsystem shared by
// every kernel kind: routing of keyed multicast payloads into
// per-filter accumulators, and first-order IIR decay of those
// accumulators into the consumer-visible input vector.
package filter

import (
	"errors"
	"fmt"
	"sync"

	"github.com/fabric-sim/onchip/fxp"
	"github.com/rs/zerolog"
	"golang.org/x/exp/slices"
)

// ErrUnknownFilter is returned at init when a Route names a FilterID
// outside the configured Filter list.
var ErrUnknownFilter = errors.New("filter: route refers to nonexistent filter id")

// Route matches incoming packet keys to a destination filter and
// dimension: (key & Mask) == Key identifies the route, and key &
// DimensionMask yields the dimension.
type Route struct {
	Key           uint32
	Mask          uint32
	FilterID      uint16
	DimensionMask uint32
}

// Matches reports whether key is claimed by this route.
func (r Route) Matches(key uint32) bool {
	return key&r.Mask == r.Key
}

// Dimension extracts the destination dimension index from key.
func (r Route) Dimension(key uint32) uint32 {
	return key & r.DimensionMask
}

// Filter is a first-order IIR low-pass over one kernel's dimensional
// accumulator. Modulatory filters replace rather than sum incoming
// contributions (used for error/gain signals, e.g. PES learning).
type Filter struct {
	A           fxp.Value // decay coefficient
	OneMinusA   fxp.Value // 1-A, precomputed alongside A
	Modulatory  bool
	Accumulator []fxp.Value
	Filtered    []fxp.Value

	mu sync.Mutex // guards Accumulator against concurrent OnPacket/Step
}

// NewFilter allocates a Filter with d dimensions, all state zeroed.
func NewFilter(a fxp.Value, modulatory bool, d int) *Filter {
	return &Filter{
		A:           a,
		OneMinusA:   fxp.One.Sub(a),
		Modulatory:  modulatory,
		Accumulator: make([]fxp.Value, d),
		Filtered:    make([]fxp.Value, d),
	}
}

// contribute folds one payload into dimension d of the accumulator,
// applying additive or replacement semantics depending on Modulatory.
func (f *Filter) contribute(d int, payload fxp.Value) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Modulatory {
		f.Accumulator[d] = payload
	} else {
		f.Accumulator[d] = f.Accumulator[d].Add(payload)
	}
}

// step decays Filtered from the previous Accumulator and zeroes the
// Accumulator, atomically with respect to contribute.
func (f *Filter) step() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for d := range f.Filtered {
		f.Filtered[d] = f.A.Mul(f.Filtered[d]).Add(f.OneMinusA.Mul(f.Accumulator[d]))
		f.Accumulator[d] = fxp.Zero
	}
}

// Bank owns the filters and routes of one kernel's filtered-input
// subsystem and the consumer-visible Input vector.
type Bank struct {
	NDimensions uint16
	Filters     []*Filter
	Routes      []Route
	Input       []fxp.Value

	log zerolog.Logger
}

// NewBank validates routes against the filter list (a route naming a
// missing filter id is init-fatal) and returns a ready Bank.
func NewBank(nDims uint16, filters []*Filter, routes []Route, log zerolog.Logger) (*Bank, error) {
	for _, r := range routes {
		if int(r.FilterID) >= len(filters) {
			return nil, fmt.Errorf("%w: filter_id=%d n_filters=%d", ErrUnknownFilter, r.FilterID, len(filters))
		}
	}
	return &Bank{
		NDimensions: nDims,
		Filters:     filters,
		Routes:      routes,
		Input:       make([]fxp.Value, nDims),
		log:         log,
	}, nil
}

// OnPacket delivers one dimensional contribution. Routes are scanned in
// insertion order; first match wins. No match is logged and dropped,
// never fatal.
func (b *Bank) OnPacket(key uint32, payload fxp.Value) {
	idx := slices.IndexFunc(b.Routes, func(r Route) bool { return r.Matches(key) })
	if idx < 0 {
		b.log.Warn().Uint32("key", key).Msg("unrouted packet dropped")
		return
	}
	route := b.Routes[idx]
	d := int(route.Dimension(key))
	f := b.Filters[route.FilterID]
	if d < 0 || d >= len(f.Accumulator) {
		b.log.Warn().Uint32("key", key).Int("dimension", d).Msg("routed packet has out-of-range dimension")
		return
	}
	f.contribute(d, payload)
}

// Step finalises the tick: decay every filter, then recompute Input as
// the per-dimension sum of all filters' Filtered vectors.
func (b *Bank) Step() {
	for i := range b.Input {
		b.Input[i] = fxp.Zero
	}
	for _, f := range b.Filters {
		f.step()
		for d, v := range f.Filtered {
			if d < len(b.Input) {
				b.Input[d] = b.Input[d].Add(v)
			}
		}
	}
}
