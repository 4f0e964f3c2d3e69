// Command controller runs the simulation-controller kernel as a
// standalone binary: it pings each configured worker node in turn,
// broadcasts phase corrections, and answers the host command surface.
// The host link is exposed as a local channel pair rather than a real
// SDP socket, since that transport isn't wired up here.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fabric-sim/onchip/controller"
	"github.com/fabric-sim/onchip/fabric"
	"github.com/fabric-sim/onchip/kernel"
	"github.com/rs/zerolog"
)

func main() {
	var (
		id        = flag.String("id", "controller0", "kernel instance id")
		group     = flag.String("group", "239.0.0.1", "multicast group for the fabric bus")
		port      = flag.Int("port", 7000, "multicast port for the fabric bus")
		nodeCount = flag.Int("nodes", 1, "number of worker nodes to discipline")
		periodMS  = flag.Int("period-ms", 1, "simulated tick period in milliseconds")
	)
	flag.Parse()

	log := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()
	base := kernel.NewBase(*id, kernel.KindController, log)

	bus, err := fabric.NewUDPBus(*group, *port, log)
	if err != nil {
		base.FailInit(err)
		os.Exit(0)
	}
	defer bus.Close()

	nodes := make([]controller.NodeKeys, *nodeCount)
	for n := range nodes {
		keyBase := uint32(4000 + n*3)
		nodes[n] = controller.NodeKeys{PingKey: keyBase, PongKey: keyBase + 1, CorrectionKey: keyBase + 2}
	}

	start := time.Now()
	tickPeriod := time.Duration(*periodMS) * time.Millisecond
	clock := controller.NewClock(func() int32 {
		return int32(-(time.Since(start) / tickPeriod))
	})
	c := controller.New(*id, base, clock, bus, nodes, 5000, 5001)

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

	hostMsgs := make(chan kernel.HostMessage, 8)
	hostReply := make(chan kernel.HostMessage, 8)
	go func() {
		for m := range hostReply {
			log.Info().Uint8("cmd_rc", m.CmdRC).Int32("arg1", m.Arg1).Msg("host reply")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	log.Info().Str("nodes", nodeSummary(nodes)).Msg("controller starting")
	c.Run(ctx, packets, ticks, hostMsgs, hostReply)
}

func nodeSummary(nodes []controller.NodeKeys) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = strconv.Itoa(int(n.PingKey))
	}
	return strings.Join(parts, ",")
}
