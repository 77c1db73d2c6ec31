package topology

import (
	"log"
	"time"

	"github.com/bitwalker/libcluster/pkg/internal/logutil"
	"github.com/bitwalker/libcluster/pkg/observability/metrics"
)

// Reconcile is the shared algorithm every polling strategy reduces to:
// "produce desired, hand to Reconcile". Given the peer set a strategy
// wants (desired) and the set it tracked after the previous cycle
// (previous), it diffs against callbacks.ListConnected(), invokes
// connect/disconnect, and returns the new carry-forward set.
//
// Iteration order of desired/previous never affects the result: both are
// plain sets, and the two invocation loops below are independent of each
// other's order.
func Reconcile(topo Name, desired, previous Set, callbacks Callbacks, self Peer, logger *log.Logger) Set {
	start := time.Now()
	defer func() {
		metrics.ReconcileDuration.WithLabelValues(string(topo)).Observe(time.Since(start).Seconds())
	}()

	current := NewSet(callbacks.ListConnected()...)
	carry := previous.Clone()

	// Step 1: disconnect peers we previously tracked that we no longer want.
	toRemove := previous.Difference(desired)
	for _, peer := range toRemove.Slice() {
		if peer == self {
			continue
		}
		result := callbacks.Disconnect(peer)
		metrics.DisconnectResults.WithLabelValues(string(topo), result.String()).Inc()
		switch result {
		case ResultTrue:
			carry.Remove(peer)
		case ResultFalse, ResultIgnored:
			logutil.Infof(logger, "topology[%s]: disconnect(%s) -> %s, dropping from membership", topo, peer, result)
			carry.Remove(peer)
		default:
			// Transport-specific failure: keep the peer so the next cycle
			// retries the disconnect.
			logutil.Warnf(logger, "topology[%s]: disconnect(%s) failed, will retry", topo, peer)
		}
	}

	// Step 2: connect peers we want but don't have, minus ourselves.
	toAdd := desired.Difference(current).Difference(NewSet(self))
	for _, peer := range toAdd.Slice() {
		result := callbacks.Connect(peer)
		metrics.ConnectResults.WithLabelValues(string(topo), result.String()).Inc()
		switch result {
		case ResultTrue:
			carry.Add(peer)
		case ResultFalse, ResultIgnored:
			logutil.Warnf(logger, "topology[%s]: connect(%s) -> %s, will retry next cycle", topo, peer, result)
		default:
			logutil.Warnf(logger, "topology[%s]: connect(%s) failed, will retry next cycle", topo, peer)
		}
	}

	metrics.MembershipSize.WithLabelValues(string(topo)).Set(float64(len(carry)))
	return carry
}

// ReconcileSkipPrune behaves like Reconcile but skips step 1 entirely, for
// strategies configured with prune=false (DNS-Poll-A).
func ReconcileSkipPrune(topo Name, desired, previous Set, callbacks Callbacks, self Peer, logger *log.Logger) Set {
	start := time.Now()
	defer func() {
		metrics.ReconcileDuration.WithLabelValues(string(topo)).Observe(time.Since(start).Seconds())
	}()

	current := NewSet(callbacks.ListConnected()...)
	carry := previous.Clone()

	toAdd := desired.Difference(current).Difference(NewSet(self))
	for _, peer := range toAdd.Slice() {
		result := callbacks.Connect(peer)
		metrics.ConnectResults.WithLabelValues(string(topo), result.String()).Inc()
		switch result {
		case ResultTrue:
			carry.Add(peer)
		case ResultFalse, ResultIgnored:
			logutil.Warnf(logger, "topology[%s]: connect(%s) -> %s, will retry next cycle", topo, peer, result)
		default:
			logutil.Warnf(logger, "topology[%s]: connect(%s) failed, will retry next cycle", topo, peer)
		}
	}

	metrics.MembershipSize.WithLabelValues(string(topo)).Set(float64(len(carry)))
	return carry
}
