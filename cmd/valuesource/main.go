// Command valuesource runs one Value-source kernel as a standalone
// binary: it plays back a synthetic periodic series from an in-process
// parameter region, since a real host-compiled block table isn't
// wired up here.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fabric-sim/onchip/fabric"
	"github.com/fabric-sim/onchip/fxp"
	"github.com/fabric-sim/onchip/kernel"
	"github.com/fabric-sim/onchip/paramstore"
	"github.com/fabric-sim/onchip/valuesource"
	"github.com/rs/zerolog"
)

func main() {
	var (
		id          = flag.String("id", "valuesource0", "kernel instance id")
		group       = flag.String("group", "239.0.0.1", "multicast group for the fabric bus")
		port        = flag.Int("port", 7000, "multicast port for the fabric bus")
		dimensions  = flag.Int("dims", 1, "number of output dimensions")
		blockLength = flag.Int("block-length", 16, "frames per DMA block")
		fullBlocks  = flag.Int("full-blocks", 4, "number of full blocks")
		periodic    = flag.Bool("periodic", true, "wrap playback at the end of the series")
		periodMS    = flag.Int("period-ms", 1, "simulated tick period in milliseconds")
	)
	flag.Parse()

	log := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()
	base := kernel.NewBase(*id, kernel.KindValueSource, log)

	bus, err := fabric.NewUDPBus(*group, *port, log)
	if err != nil {
		base.FailInit(err)
		os.Exit(0)
	}
	defer bus.Close()

	totalWords := *fullBlocks * (*blockLength) * (*dimensions)
	words := make([]uint32, totalWords)
	for i := range words {
		words[i] = fxp.FromFloat(float64(i%(*blockLength)) / float64(*blockLength)).Bits()
	}
	dma := &paramstore.SyncDMA{Region: paramstore.NewMemory(words)}

	outputKeys := make([]uint32, *dimensions)
	for d := range outputKeys {
		outputKeys[d] = uint32(2000 + d)
	}

	k, err := valuesource.New(*id, base, *dimensions, *blockLength, *fullBlocks, 0, *periodic, outputKeys, dma, bus)
	if err != nil {
		base.FailInit(err)
		os.Exit(0)
	}

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

	k.Run(ctx, ticks)
}
