// Command txbridge runs one Tx bridge kernel as a standalone binary: it
// filters incoming multicast dimensions and emits host-link frames on
// reload. Frames are logged rather than sent over a real SDP socket,
// since the host transport itself isn't wired up here. The filter bank
// is built with no routes, so incoming packets are dropped as unrouted
// and the emitted frames carry zeros.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fabric-sim/onchip/bridge"
	"github.com/fabric-sim/onchip/fabric"
	"github.com/fabric-sim/onchip/filter"
	"github.com/fabric-sim/onchip/fxp"
	"github.com/fabric-sim/onchip/kernel"
	"github.com/rs/zerolog"
)

func main() {
	var (
		id         = flag.String("id", "txbridge0", "kernel instance id")
		group      = flag.String("group", "239.0.0.1", "multicast group for the fabric bus")
		port       = flag.Int("port", 7000, "multicast port for the fabric bus")
		dimensions = flag.Int("dims", 1, "number of dimensions")
		delayTicks = flag.Int("delay", 1, "transmission_delay in ticks")
		periodMS   = flag.Int("period-ms", 1, "simulated tick period in milliseconds")
	)
	flag.Parse()

	log := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()
	base := kernel.NewBase(*id, kernel.KindTxBridge, log)

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

	hostOut := make(chan kernel.HostMessage, 8)
	go func() {
		for m := range hostOut {
			log.Info().Uint8("cmd_rc", m.CmdRC).Ints32("data", int32Slice(m.Data)).Msg("host-link frame emitted")
		}
	}()

	tx := bridge.NewTx(*id, base, bank, *delayTicks, hostOut)

	packets := make(chan kernel.Packet, 64)
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

	tx.Run(ctx, packets, ticks)
}

func int32Slice(words []uint32) []int32 {
	out := make([]int32, len(words))
	for i, w := range words {
		out[i] = int32(w)
	}
	return out
}
