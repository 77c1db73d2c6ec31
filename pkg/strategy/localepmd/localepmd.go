// Package localepmd implements the Local Discovery strategy (spec §4.5):
// a one-shot that asks the local name registry for the names it knows
// about on the same host, appends the local host suffix, and reconciles
// against that list.
package localepmd

import (
	"context"
	"os"

	"github.com/bitwalker/libcluster/pkg/internal/logutil"
	"github.com/bitwalker/libcluster/pkg/topology"
)

func init() {
	topology.RegisterStrategy("local_epmd", func() topology.Strategy { return Strategy{} })
}

// Strategy is the Local Discovery strategy. Its config key "lister" must
// hold a topology.NameLister; there is no default, since this module owns
// no ambient node registry of its own (wire one in explicitly, e.g.
// *registry.Registry).
type Strategy struct{}

func (Strategy) ChildSpecFor(state *topology.State) topology.ChildSpec {
	return topology.ChildSpec{
		ID:      state.Topology,
		Restart: topology.RestartTransient,
		Start: func(ctx context.Context) (topology.Handle, error) {
			return start(ctx, state)
		},
	}
}

func start(ctx context.Context, state *topology.State) (topology.Handle, error) {
	ctx, cancel := context.WithCancel(ctx)
	h := topology.NewHandle(cancel)

	lister, _ := state.Config["lister"].(topology.NameLister)
	if lister == nil {
		logutil.Warnf(state.Logger, "topology[%s]: local_epmd: missing \"lister\" config, doing nothing", state.Topology)
		go h.Finish(nil)
		return h, nil
	}

	hostname := state.Config.String("hostname", "")
	if hostname == "" {
		if h2, err := os.Hostname(); err == nil {
			hostname = h2
		}
	}

	go func() {
		names, err := lister.LocalNames()
		if err != nil {
			logutil.Warnf(state.Logger, "topology[%s]: local_epmd: lister error: %v", state.Topology, err)
			h.Finish(nil)
			return
		}
		desired := topology.NewSet()
		for _, n := range names {
			peer := topology.Peer(n + "@" + hostname)
			if peer == state.Self {
				continue
			}
			desired.Add(peer)
		}
		topology.Reconcile(state.Topology, desired, topology.NewSet(), state.Callbacks, state.Self, state.Logger)
		h.Finish(nil)
	}()
	return h, nil
}
