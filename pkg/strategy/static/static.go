// Package static implements the Static Host strategy (spec §4.4): a
// one-shot reconcile against a fixed host list, optionally turned into a
// periodic worker via the "timeout" option to recover from transient
// connection failures.
package static

import (
	"context"
	"time"

	"github.com/bitwalker/libcluster/pkg/topology"
)

func init() {
	topology.RegisterStrategy("static", func() topology.Strategy { return Strategy{} })
}

// Strategy is the Static Host discovery strategy.
type Strategy struct{}

// ChildSpecFor builds the child spec for a static topology. Restart policy
// is transient: a clean "done" one-shot should not be relaunched.
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
	hosts := state.Config.StringSlice("hosts")
	timeoutMs := state.Config.Int("timeout", 0)

	ctx, cancel := context.WithCancel(ctx)
	h := topology.NewHandle(cancel)

	if len(hosts) == 0 {
		go h.Finish(nil)
		return h, nil
	}

	desired := topology.NewSet()
	for _, host := range hosts {
		desired.Add(topology.Peer(host))
	}

	if timeoutMs <= 0 {
		go func() {
			topology.Reconcile(state.Topology, desired, topology.NewSet(), state.Callbacks, state.Self, state.Logger)
			h.Finish(nil)
		}()
		return h, nil
	}

	go func() {
		previous := topology.Reconcile(state.Topology, desired, topology.NewSet(), state.Callbacks, state.Self, state.Logger)
		ticker := time.NewTicker(time.Duration(timeoutMs) * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				h.Finish(nil)
				return
			case <-ticker.C:
				previous = topology.Reconcile(state.Topology, desired, previous, state.Callbacks, state.Self, state.Logger)
			}
		}
	}()
	return h, nil
}
