// Package dnssrv implements the DNS-Poll-SRV strategy (spec.md §4.9):
// resolves a Kubernetes headless-service-style SRV record on each tick and
// connects to one Peer per target.
package dnssrv

import (
	"context"
	"os"
	"time"

	"github.com/bitwalker/libcluster/pkg/internal/logutil"
	"github.com/bitwalker/libcluster/pkg/observability/metrics"
	"github.com/bitwalker/libcluster/pkg/observability/tracing"
	"github.com/bitwalker/libcluster/pkg/strategy/dnscommon"
	"github.com/bitwalker/libcluster/pkg/topology"
)

func init() {
	topology.RegisterStrategy("dns_poll_srv", func() topology.Strategy { return Strategy{} })
}

// Strategy is the DNS-Poll-SRV discovery strategy.
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

// clusterDomain returns the cluster domain that follows ".svc." in the
// SRV query, defaulting to "cluster.local." but overridable via
// CLUSTER_DOMAIN, per spec.md §4.9.
func clusterDomain() string {
	if d := os.Getenv("CLUSTER_DOMAIN"); d != "" {
		return d
	}
	return "cluster.local."
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
	ctx, endSpan := tracing.StartSpan(ctx, "dnssrv.poll")
	defer endSpan()

	timer := metrics.PollDuration.WithLabelValues(string(state.Topology))
	start := time.Now()
	defer func() { timer.Observe(time.Since(start).Seconds()) }()

	service := state.Config.String("service", "")
	namespace := state.Config.String("namespace", "")
	appName := state.Config.String("application_name", "")

	if service == "" || namespace == "" || appName == "" {
		logutil.Warnf(state.Logger, "dns_poll_srv: service/namespace/application_name not fully configured, skipping tick")
		metrics.PollErrors.WithLabelValues(string(state.Topology), "config").Inc()
		return previous
	}

	query := service + "." + namespace + ".svc." + clusterDomain()
	targets, err := resolver.LookupSRV(ctx, query)
	if err != nil {
		logutil.Warnf(state.Logger, "dns_poll_srv: lookup SRV %s: %v", query, err)
		metrics.PollErrors.WithLabelValues(string(state.Topology), "lookup").Inc()
		return previous
	}

	desired := topology.NewSet()
	for _, target := range targets {
		peer := topology.Peer(appName + "@" + target)
		if peer == state.Self {
			continue
		}
		desired.Add(peer)
	}

	return topology.Reconcile(state.Topology, desired, previous, state.Callbacks, state.Self, state.Logger)
}
