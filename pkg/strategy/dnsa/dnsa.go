// Package dnsa implements the DNS-Poll-A strategy (spec.md §4.8): on each
// tick, resolve a fixed FQDN's A/AAAA records and connect to one Peer per
// address.
package dnsa

import (
	"context"
	"time"

	"github.com/bitwalker/libcluster/pkg/internal/logutil"
	"github.com/bitwalker/libcluster/pkg/observability/metrics"
	"github.com/bitwalker/libcluster/pkg/observability/tracing"
	"github.com/bitwalker/libcluster/pkg/strategy/dnscommon"
	"github.com/bitwalker/libcluster/pkg/topology"
)

func init() {
	topology.RegisterStrategy("dns_poll_a", func() topology.Strategy { return Strategy{} })
}

// Strategy is the DNS-Poll-A discovery strategy.
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
	resolver, _ := state.Config["resolver"].(dnscommon.Resolver)
	if resolver == nil {
		resolver = dnscommon.NewSystemResolver()
	}

	intervalMs := state.Config.Int("polling_interval", 5000)
	if intervalMs <= 0 {
		intervalMs = 5000
	}
	interval := time.Duration(intervalMs) * time.Millisecond

	ctx, cancel := context.WithCancel(ctx)
	h := topology.NewHandle(cancel)

	go func() {
		var previous topology.Set = topology.NewSet()
		tick := func() {
			previous = poll(ctx, state, resolver, previous)
		}
		tick()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				h.Finish(nil)
				return
			case <-ticker.C:
				tick()
			}
		}
	}()
	return h, nil
}

func poll(ctx context.Context, state *topology.State, resolver dnscommon.Resolver, previous topology.Set) topology.Set {
	ctx, endSpan := tracing.StartSpan(ctx, "dnsa.poll")
	defer endSpan()

	timer := metrics.PollDuration.WithLabelValues(string(state.Topology))
	start := time.Now()
	defer func() { timer.Observe(time.Since(start).Seconds()) }()

	query := state.Config.String("query", "")
	basename := state.Config.String("node_basename", "")
	prune := state.Config.Bool("prune", true)

	if query == "" || basename == "" {
		logutil.Warnf(state.Logger, "dns_poll_a: %q or %q not configured, skipping tick", "query", "node_basename")
		metrics.PollErrors.WithLabelValues(string(state.Topology), "config").Inc()
		return previous
	}

	ips, err := resolver.LookupIPs(ctx, query)
	if err != nil {
		logutil.Warnf(state.Logger, "dns_poll_a: lookup %q: %v", query, err)
		metrics.PollErrors.WithLabelValues(string(state.Topology), "lookup").Inc()
		return previous
	}

	desired := topology.NewSet()
	for _, ip := range ips {
		peer := topology.Peer(basename + "@" + ip.String())
		if peer == state.Self {
			continue
		}
		desired.Add(peer)
	}

	if prune {
		return topology.Reconcile(state.Topology, desired, previous, state.Callbacks, state.Self, state.Logger)
	}
	return topology.ReconcileSkipPrune(state.Topology, desired, previous, state.Callbacks, state.Self, state.Logger)
}
