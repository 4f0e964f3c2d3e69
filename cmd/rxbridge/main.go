// Command rxbridge runs one Rx bridge kernel as a standalone binary: it
// turns host-link frames into multicast dimensional traffic. The host
// side of the link is a local channel that nothing in this binary
// writes to, since the real SDP host transport isn't wired up here.
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
	"github.com/fabric-sim/onchip/kernel"
	"github.com/rs/zerolog"
)

func main() {
	var (
		id         = flag.String("id", "rxbridge0", "kernel instance id")
		group      = flag.String("group", "239.0.0.1", "multicast group for the fabric bus")
		port       = flag.Int("port", 7000, "multicast port for the fabric bus")
		dimensions = flag.Int("dims", 1, "number of dimensions")
		periodMS   = flag.Int("period-ms", 1, "simulated tick period in milliseconds, scheduled at dt/n_dims")
	)
	flag.Parse()

	log := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()
	base := kernel.NewBase(*id, kernel.KindRxBridge, log)

	bus, err := fabric.NewUDPBus(*group, *port, log)
	if err != nil {
		base.FailInit(err)
		os.Exit(0)
	}
	defer bus.Close()

	keys := make([]uint32, *dimensions)
	for d := range keys {
		keys[d] = uint32(3000 + d)
	}
	rx := bridge.NewRx(*id, base, keys, bus)

	hostMsgs := make(chan kernel.HostMessage, 8)

	tickPeriod := time.Duration(*periodMS) * time.Millisecond
	if *dimensions > 1 {
		tickPeriod /= time.Duration(*dimensions)
	}
	ticker := time.NewTicker(tickPeriod)
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

	rx.Run(ctx, ticks, hostMsgs)
}
