package fabric

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/fabric-sim/onchip/kernel"
	"github.com/rs/zerolog"
)

// UDPBus carries multicast traffic between separate kernel binaries
// over a UDP multicast group, the nearest stdlib equivalent to the
// simulated multicast packet network: no reliable ordering, no
// retransmission. No third-party
// pub/sub library appears anywhere in the examples pack for this kind
// of raw keyed broadcast, so this is built directly on net.UDPConn —
// see DESIGN.md.
type UDPBus struct {
	local *Bus
	conn  *net.UDPConn
	group *net.UDPAddr
	log   zerolog.Logger
}

// wireSize is the on-wire packet size: 4 bytes key + 4 bytes payload,
// little-endian, matching the fabric's 32-bit word convention.
const wireSize = 8

// NewUDPBus joins the given multicast group/port and relays inbound
// datagrams into a local in-process Bus for delivery to this binary's
// subscribers.
func NewUDPBus(group string, port int, log zerolog.Logger) (*UDPBus, error) {
	addr := &net.UDPAddr{IP: net.ParseIP(group), Port: port}
	conn, err := net.ListenMulticastUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("fabric: join multicast group %s:%d: %w", group, port, err)
	}
	u := &UDPBus{local: NewBus(), conn: conn, group: addr, log: log}
	go u.recvLoop(addr)
	return u, nil
}

func (u *UDPBus) recvLoop(addr *net.UDPAddr) {
	buf := make([]byte, wireSize)
	for {
		n, _, err := u.conn.ReadFromUDP(buf)
		if err != nil {
			u.log.Warn().Err(err).Msg("udp bus read failed, dropping")
			return
		}
		if n != wireSize {
			continue
		}
		p := kernel.Packet{
			Key:     binary.LittleEndian.Uint32(buf[0:4]),
			Payload: binary.LittleEndian.Uint32(buf[4:8]),
		}
		u.local.Send(p)
	}
}

// Subscribe registers ch for locally-delivered packets matching the
// key/mask, same semantics as Bus.Subscribe.
func (u *UDPBus) Subscribe(matchKey, mask uint32, ch chan<- kernel.Packet) {
	u.local.Subscribe(matchKey, mask, ch)
}

// Send broadcasts p to the multicast group and also delivers it to
// this binary's own local subscribers directly, since OS multicast
// loopback to the sending socket is not guaranteed on every platform.
func (u *UDPBus) Send(p kernel.Packet) {
	var buf [wireSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], p.Key)
	binary.LittleEndian.PutUint32(buf[4:8], p.Payload)
	if _, err := u.conn.WriteToUDP(buf[:], u.group); err != nil {
		u.log.Warn().Err(err).Msg("udp bus send failed, packet dropped")
	}
	// Deliver to this binary's own subscribers directly rather than
	// relying on OS multicast loopback, which is not guaranteed on
	// every platform.
	u.local.Send(p)
}

// Close releases the underlying socket.
func (u *UDPBus) Close() error {
	return u.conn.Close()
}
