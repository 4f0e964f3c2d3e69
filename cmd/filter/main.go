// Command filter runs one Filter kernel as a standalone binary: a
// strict pass-through that re-emits filtered dimensional input on its
// own output keys every transmission_delay ticks. Region loading and
// the multicast transport are deliberately minimal here — the
// host-side model compiler and CLI wrappers that would normally
// produce and parse a real parameter blob aren't built here; this
// entrypoint only demonstrates wiring a filter.Bank onto the fabric.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fabric-sim/onchip/fabric"
	"github.com/fabric-sim/onchip/filter"
	"github.com/fabric-sim/onchip/filterkernel"
	"github.com/fabric-sim/onchip/fxp"
	"github.com/fabric-sim/onchip/kernel"
	"github.com/rs/zerolog"
)

func main() {
	var (
		id         = flag.String("id", "filter0", "kernel instance id")
		group      = flag.String("group", "239.0.0.1", "multicast group for the fabric bus")
		port       = flag.Int("port", 7000, "multicast port for the fabric bus")
		dimensions = flag.Int("dims", 1, "number of filtered dimensions")
		delayTicks = flag.Int("delay", 1, "transmission_delay in ticks")
		periodMS   = flag.Int("period-ms", 1, "simulated tick period in milliseconds")
	)
	flag.Parse()

	log := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()
	base := kernel.NewBase(*id, kernel.KindFilter, log)

	bus, err := fabric.NewUDPBus(*group, *port, log)
	if err != nil {
		base.FailInit(err)
		os.Exit(0)
	}
	defer bus.Close()

	f := filter.NewFilter(fxp.Zero, false, *dimensions)
	bank, err := filter.NewBank(uint16(*dimensions), []*filter.Filter{f}, nil, log)
	if err != nil {
		base.FailInit(err)
		os.Exit(0)
	}
	outputKeys := make([]uint32, *dimensions)
	for d := range outputKeys {
		outputKeys[d] = uint32(d)
	}

	fk := filterkernel.New(*id, base, bank, outputKeys, *delayTicks, bus)

	packets := make(chan kernel.Packet, 64)
	bus.Subscribe(0, 0, packets) // accept everything; the bank has no routes, so each packet is logged as unrouted and dropped

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

	fk.Run(ctx, packets, ticks)
}
