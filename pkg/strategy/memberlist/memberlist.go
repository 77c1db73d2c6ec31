// Package memberlist wires github.com/hashicorp/memberlist in as an
// additional, opt-in topology strategy. It is not a substitute for the
// Gossip strategy (spec.md §4.7): that strategy's wire format ("heartbeat::"
// sentinel, optional AES-256-CBC payload) is fixed by spec and incompatible
// with memberlist's own SWIM/msgpack envelope. This strategy instead gives
// deployments that already run a memberlist-based SWIM cluster a way to
// feed its join/leave view into the same Reconciler every other strategy
// uses, without forcing the bespoke gossip wire format on them.
package memberlist

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	hml "github.com/hashicorp/memberlist"

	"github.com/bitwalker/libcluster/pkg/internal/logutil"
	"github.com/bitwalker/libcluster/pkg/topology"
)

func init() {
	topology.RegisterStrategy("memberlist", func() topology.Strategy { return Strategy{} })
}

// Strategy is the memberlist-backed discovery strategy.
type Strategy struct{}

func (Strategy) ChildSpecFor(state *topology.State) topology.ChildSpec {
	return topology.ChildSpec{
		ID:      state.Topology,
		Restart: topology.RestartPermanent,
		Start: func(ctx context.Context) (topology.Handle, error) {
			return start(ctx, state)
		},
	}
}

func start(ctx context.Context, state *topology.State) (topology.Handle, error) {
	bind := state.Config.String("bind", "0.0.0.0:7946")
	advertise := state.Config.String("advertise", "")
	seeds := state.Config.StringSlice("seeds")

	if state.Self == "" {
		return nil, fmt.Errorf("memberlist: state.Self must be set")
	}

	cfg := hml.DefaultLANConfig()
	cfg.Name = string(state.Self)
	cfg.LogOutput = io.Discard

	host, portStr, err := net.SplitHostPort(bind)
	if err != nil {
		return nil, fmt.Errorf("memberlist: invalid bind address %q: %w", bind, err)
	}
	port, err := parsePort(portStr)
	if err != nil {
		return nil, err
	}
	cfg.BindAddr = host
	cfg.BindPort = port

	if advertise != "" {
		ahost, aportStr, err := net.SplitHostPort(advertise)
		if err != nil {
			return nil, fmt.Errorf("memberlist: invalid advertise address %q: %w", advertise, err)
		}
		aport, err := parsePort(aportStr)
		if err != nil {
			return nil, err
		}
		cfg.AdvertiseAddr = ahost
		cfg.AdvertisePort = aport
	}

	previous := topology.NewSet()
	delegate := &eventDelegate{
		onJoin: func(peer topology.Peer) {
			if peer == state.Self {
				return
			}
			desired := previous.Clone().Add(peer)
			previous = topology.ReconcileSkipPrune(state.Topology, desired, previous, state.Callbacks, state.Self, state.Logger)
		},
		onLeave: func(peer topology.Peer) {
			desired := previous.Clone().Remove(peer)
			previous = topology.Reconcile(state.Topology, desired, previous, state.Callbacks, state.Self, state.Logger)
		},
	}
	cfg.Events = delegate

	ml, err := hml.Create(cfg)
	if err != nil {
		return nil, fmt.Errorf("memberlist: create: %w", err)
	}

	if len(seeds) > 0 {
		if _, err := ml.Join(seeds); err != nil {
			logutil.Warnf(state.Logger, "memberlist: join %v: %v", seeds, err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	h := topology.NewHandle(func() {
		cancel()
		_ = ml.Leave(2 * time.Second)
		_ = ml.Shutdown()
	})

	go func() {
		<-ctx.Done()
		h.Finish(nil)
	}()

	return h, nil
}

// eventDelegate translates memberlist's SWIM join/leave notifications into
// Peer identities this module's Reconciler understands. A node's memberlist
// name is its own state.Self, set when it joined, so no extra translation is
// needed beyond wrapping the string in a topology.Peer.
type eventDelegate struct {
	onJoin  func(topology.Peer)
	onLeave func(topology.Peer)
}

func (d *eventDelegate) peerFor(n *hml.Node) topology.Peer {
	return topology.Peer(n.Name)
}

func (d *eventDelegate) NotifyJoin(n *hml.Node) {
	if n == nil {
		return
	}
	d.onJoin(d.peerFor(n))
}

func (d *eventDelegate) NotifyLeave(n *hml.Node) {
	if n == nil {
		return
	}
	d.onLeave(d.peerFor(n))
}

func (d *eventDelegate) NotifyUpdate(n *hml.Node) {}

func parsePort(s string) (int, error) {
	var p int
	if _, err := fmt.Sscanf(s, "%d", &p); err != nil || p < 0 || p > 65535 {
		return 0, fmt.Errorf("memberlist: invalid port %q", s)
	}
	return p, nil
}
