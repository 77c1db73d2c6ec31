package gossip

import (
	"fmt"
	"net"

	"golang.org/x/net/ipv4"
)

// socketConfig is the subset of the gossip strategy's Spec that describes
// how to bind and join the wire, per spec.md §4.7.
type socketConfig struct {
	bindAddr      string // "if_addr:port" to bind, e.g. "0.0.0.0:45892"
	multicastAddr string // "multicast_addr:port" to join/send to, e.g. "233.252.1.32:45892"
	ifaceName     string // optional: interface for the group join and outbound multicast
	ttl           int    // multicast TTL, default 1 (link-local)
	broadcastOnly bool   // send/receive via broadcast instead of multicast
}

// gossipSocket wraps a UDP connection joined to the gossip group. Reads and
// writes are directed at the same multicast (or broadcast) address so every
// member of the group observes every other member's heartbeats.
type gossipSocket struct {
	conn   *net.UDPConn
	pconn  *ipv4.PacketConn
	dst    *net.UDPAddr
	group  *net.UDPAddr
}

// openSocket binds a UDP socket on cfg.bindAddr (if_addr:port, so multiple
// processes on the same host can all receive the group's traffic) and joins
// the multicast group at cfg.multicastAddr, unless cfg.broadcastOnly is set.
func openSocket(cfg socketConfig) (*gossipSocket, error) {
	group, err := net.ResolveUDPAddr("udp4", cfg.multicastAddr)
	if err != nil {
		return nil, fmt.Errorf("gossip: resolve %q: %w", cfg.multicastAddr, err)
	}

	lc := net.ListenConfig{Control: controlReuseAddrPort}
	pc, err := lc.ListenPacket(nil, "udp4", cfg.bindAddr)
	if err != nil {
		return nil, fmt.Errorf("gossip: listen %s: %w", cfg.bindAddr, err)
	}
	conn := pc.(*net.UDPConn)

	pconn := ipv4.NewPacketConn(conn)
	ttl := cfg.ttl
	if ttl <= 0 {
		ttl = 1
	}

	var iface *net.Interface
	if cfg.ifaceName != "" {
		iface, err = net.InterfaceByName(cfg.ifaceName)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("gossip: interface %q: %w", cfg.ifaceName, err)
		}
	}

	if !cfg.broadcastOnly {
		if err := pconn.JoinGroup(iface, &net.UDPAddr{IP: group.IP}); err != nil {
			conn.Close()
			return nil, fmt.Errorf("gossip: join group %s: %w", group.IP, err)
		}
		if err := pconn.SetMulticastTTL(ttl); err != nil {
			conn.Close()
			return nil, fmt.Errorf("gossip: set ttl: %w", err)
		}
		if err := pconn.SetMulticastLoopback(true); err != nil {
			conn.Close()
			return nil, fmt.Errorf("gossip: set loopback: %w", err)
		}
		if iface != nil {
			if err := pconn.SetMulticastInterface(iface); err != nil {
				conn.Close()
				return nil, fmt.Errorf("gossip: set multicast interface: %w", err)
			}
		}
	}

	return &gossipSocket{conn: conn, pconn: pconn, dst: group, group: group}, nil
}

func (s *gossipSocket) send(payload []byte) error {
	_, err := s.conn.WriteToUDP(payload, s.dst)
	return err
}

func (s *gossipSocket) readFrom(buf []byte) (int, *net.UDPAddr, error) {
	n, addr, err := s.conn.ReadFromUDP(buf)
	return n, addr, err
}

func (s *gossipSocket) close() error {
	return s.conn.Close()
}
