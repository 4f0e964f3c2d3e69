// Command ensemble runs one LIF/NEF ensemble kernel as a standalone
// binary. As with cmd/filter, region loading is minimal: a fixed
// in-process parameter set stands in for a real host-compiled
// parameter blob.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fabric-sim/onchip/ensemble"
	"github.com/fabric-sim/onchip/fabric"
	"github.com/fabric-sim/onchip/filter"
	"github.com/fabric-sim/onchip/fxp"
	"github.com/fabric-sim/onchip/kernel"
	"github.com/fabric-sim/onchip/paramstore"
	"github.com/fabric-sim/onchip/recording"
	"github.com/rs/zerolog"
)

func main() {
	var (
		id          = flag.String("id", "ensemble0", "kernel instance id")
		group       = flag.String("group", "239.0.0.1", "multicast group for the fabric bus")
		port        = flag.Int("port", 7000, "multicast port for the fabric bus")
		neurons     = flag.Int("neurons", 64, "number of neurons")
		inputDims   = flag.Int("input-dims", 1, "number of input dimensions")
		outputDims  = flag.Int("output-dims", 1, "number of decoded output dimensions")
		tRef        = flag.Int("t-ref", 2, "refractory period in ticks")
		periodMS    = flag.Int("period-ms", 1, "simulated tick period in milliseconds")
		endTick     = flag.Int64("end-tick", -1, "simulation end tick, -1 for unbounded")
		lfsrSeed    = flag.Int("lfsr-seed", 1, "initial LFSR seed, must be nonzero")
	)
	flag.Parse()

	log := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()
	base := kernel.NewBase(*id, kernel.KindEnsemble, log)

	bus, err := fabric.NewUDPBus(*group, *port, log)
	if err != nil {
		base.FailInit(err)
		os.Exit(0)
	}
	defer bus.Close()

	routes := make([]filter.Route, *inputDims)
	for d := 0; d < *inputDims; d++ {
		routes[d] = filter.Route{Key: uint32(d), Mask: 0xffffffff, FilterID: 0, DimensionMask: 0xffffffff}
	}
	f := filter.NewFilter(fxp.FromFloat(0.8), false, *inputDims)
	input, err := filter.NewBank(uint16(*inputDims), []*filter.Filter{f}, routes, log)
	if err != nil {
		base.FailInit(err)
		os.Exit(0)
	}

	ibias := make([]fxp.Value, *neurons)
	encoders := make([]fxp.Value, *neurons*(*inputDims))
	decoders := make([]fxp.Value, *neurons*(*outputDims))
	outputKeys := make([]uint32, *outputDims)
	for d := range outputKeys {
		outputKeys[d] = uint32(1000 + d)
	}
	for n := 0; n < *neurons; n++ {
		ibias[n] = fxp.FromFloat(1.2)
		for d := 0; d < *inputDims; d++ {
			encoders[n*(*inputDims)+d] = fxp.FromFloat(1.0)
		}
		for d := 0; d < *outputDims; d++ {
			decoders[n*(*outputDims)+d] = fxp.FromFloat(1.0 / float64(*neurons))
		}
	}

	cfg := ensemble.Config{
		NNeurons:    *neurons,
		NInputDims:  *inputDims,
		NOutputDims: *outputDims,
		TRef:        uint8(*tRef),
		DtOverTRC:   fxp.FromFloat(0.05),
		IBias:       ibias,
		Encoders:    encoders,
		Decoders:    decoders,
		OutputKeys:  outputKeys,
		Mode:        ensemble.ModeInterleaved,
	}

	rec := recording.NewBuffer(*neurons, &paramstore.MemoryWriter{})
	k := ensemble.New(*id, base, cfg, input, nil, rec, bus, *endTick, uint16(*lfsrSeed))

	packets := make(chan kernel.Packet, 256)
	bus.Subscribe(0, 0, packets)

	ticker := time.NewTicker(time.Duration(*periodMS) * time.Millisecond)
	defer ticker.Stop()
	ticks := make(chan struct{}, 4)
	go func() {
		for range ticker.C {
			select {
			case ticks <- struct{}{}:
			default:
			}
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	k.Run(ctx, packets, ticks)
}
