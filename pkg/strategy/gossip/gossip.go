// Package gossip implements the multicast-UDP Gossip strategy (spec.md
// §4.7): nodes periodically broadcast a "heartbeat::" packet carrying their
// own name on a shared multicast group, and connect to whichever peer they
// hear from. Payloads are optionally AES-256-CBC encrypted with a
// SHA-256-derived key when a "secret" option is configured.
package gossip

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/bitwalker/libcluster/pkg/internal/logutil"
	"github.com/bitwalker/libcluster/pkg/observability/metrics"
	"github.com/bitwalker/libcluster/pkg/topology"
)

func init() {
	topology.RegisterStrategy("gossip", func() topology.Strategy { return Strategy{} })
}

// Strategy is the Gossip discovery strategy.
type Strategy struct{}

// ChildSpecFor builds the child spec for a gossip topology. It is
// permanent: a socket error should always be retried by the supervisor.
func (Strategy) ChildSpecFor(state *topology.State) topology.ChildSpec {
	return topology.ChildSpec{
		ID:      state.Topology,
		Restart: topology.RestartPermanent,
		Start: func(ctx context.Context) (topology.Handle, error) {
			return start(ctx, state)
		},
	}
}

const (
	minIntervalMs = 1
	maxIntervalMs = 5000
)

// buildSocketConfig translates the Gossip strategy's Spec options into a
// socketConfig, applying spec.md §6's defaults: port 45892, if_addr
// 0.0.0.0, multicast_addr 233.252.1.32, multicast_ttl 1. Every option is
// optional, so a bare `{}` config must still produce a usable socketConfig.
func buildSocketConfig(cfg topology.Spec) socketConfig {
	port := cfg.Int("port", 45892)
	ifAddr := cfg.String("if_addr", "0.0.0.0")
	multicastIP := cfg.String("multicast_addr", "233.252.1.32")

	return socketConfig{
		bindAddr:      fmt.Sprintf("%s:%d", ifAddr, port),
		multicastAddr: fmt.Sprintf("%s:%d", multicastIP, port),
		ifaceName:     cfg.String("multicast_if", ""),
		ttl:           cfg.Int("multicast_ttl", 1),
		broadcastOnly: cfg.Bool("broadcast_only", false),
	}
}

func start(ctx context.Context, state *topology.State) (topology.Handle, error) {
	sock, err := openSocket(buildSocketConfig(state.Config))
	if err != nil {
		return nil, err
	}

	secret := state.Config.String("secret", "")
	var key []byte
	if secret != "" {
		key = deriveKey(secret)
	}

	ctx, cancel := context.WithCancel(ctx)
	h := topology.NewHandle(func() {
		cancel()
		sock.close()
	})

	selfName := string(state.Self)

	go readLoop(ctx, state, sock, key)
	go heartbeatLoop(ctx, state, sock, key, selfName)

	go func() {
		<-ctx.Done()
		h.Finish(nil)
	}()

	return h, nil
}

// heartbeatLoop sends this node's heartbeat immediately, then again after a
// random delay uniformly in [minIntervalMs, maxIntervalMs], per spec.md §4.7
// and §8 invariant 5 ("every live member is heard from at least once every
// 5s window").
func heartbeatLoop(ctx context.Context, state *topology.State, sock *gossipSocket, key []byte, selfName string) {
	for {
		payload, err := encodeHeartbeat(selfName)
		if err != nil {
			logutil.Warnf(state.Logger, "gossip: encode heartbeat: %v", err)
		} else {
			wire := payload
			if key != nil {
				wire, err = encrypt(key, payload)
				if err != nil {
					logutil.Warnf(state.Logger, "gossip: encrypt heartbeat: %v", err)
					wire = nil
				}
			}
			if wire != nil {
				if err := sock.send(wire); err != nil {
					logutil.Warnf(state.Logger, "gossip: send heartbeat: %v", err)
				} else {
					metrics.GossipPacketsSent.WithLabelValues(string(state.Topology)).Inc()
				}
			}
		}

		delay := time.Duration(minIntervalMs+rand.Intn(maxIntervalMs-minIntervalMs+1)) * time.Millisecond
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// readLoop receives packets, decrypts and decodes them, and reconciles the
// discovered peer into the topology's membership.
func readLoop(ctx context.Context, state *topology.State, sock *gossipSocket, key []byte) {
	buf := make([]byte, 64*1024)
	for {
		if ctx.Err() != nil {
			return
		}
		n, _, err := sock.readFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logutil.Warnf(state.Logger, "gossip: read: %v", err)
			continue
		}
		handlePacket(state, append([]byte(nil), buf[:n]...), key)
	}
}

// handlePacket decrypts (if key is set) and decodes a single received
// datagram, then reconciles the discovered peer into membership. Packets
// that fail decryption or lack the heartbeat sentinel are dropped and
// counted, per spec.md §4.7 and §8 Scenario E — never treated as a crash.
// Split out from readLoop so it can be exercised without a live socket.
func handlePacket(state *topology.State, raw []byte, key []byte) {
	plaintext := raw
	var err error
	if key != nil {
		plaintext, err = decrypt(key, raw)
		if err != nil {
			metrics.GossipPacketsDropped.WithLabelValues(string(state.Topology), "decrypt").Inc()
			return
		}
	}

	node, err := decodeHeartbeat(plaintext)
	if err != nil {
		metrics.GossipPacketsDropped.WithLabelValues(string(state.Topology), "sentinel").Inc()
		return
	}

	metrics.GossipPacketsReceived.WithLabelValues(string(state.Topology)).Inc()

	peer := topology.Peer(node)
	if peer == state.Self {
		return
	}

	previous := topology.NewSet(state.Callbacks.ListConnected()...)
	desired := previous.Clone()
	desired.Add(peer)
	topology.ReconcileSkipPrune(state.Topology, desired, previous, state.Callbacks, state.Self, state.Logger)
}
