// Package nomad implements the Nomad service-discovery strategy (spec.md
// §4.11): periodically polls a Nomad server's service-catalog endpoint and
// connects to one Peer per advertised service address.
package nomad

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/bitwalker/libcluster/pkg/internal/httputil"
	"github.com/bitwalker/libcluster/pkg/internal/logutil"
	"github.com/bitwalker/libcluster/pkg/observability/metrics"
	"github.com/bitwalker/libcluster/pkg/observability/tracing"
	"github.com/bitwalker/libcluster/pkg/topology"
)

func init() {
	topology.RegisterStrategy("nomad", func() topology.Strategy { return Strategy{} })
}

// Strategy is the Nomad discovery strategy.
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
			previous = poll(ctx, state, previous)
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

func poll(ctx context.Context, state *topology.State, previous topology.Set) topology.Set {
	_, endSpan := tracing.StartSpan(ctx, "nomad.poll")
	defer endSpan()

	timer := metrics.PollDuration.WithLabelValues(string(state.Topology))
	startedAt := time.Now()
	defer func() { timer.Observe(time.Since(startedAt).Seconds()) }()

	basename := state.Config.String("node_basename", "")
	serverURL := state.Config.String("nomad_server_url", "")
	serviceName := state.Config.String("service_name", "")
	namespace := state.Config.String("namespace", "default")
	token := state.Config.String("token", "")

	if basename == "" || serverURL == "" || serviceName == "" {
		logutil.Warnf(state.Logger, "nomad: %q, %q or %q not configured, skipping tick", "node_basename", "nomad_server_url", "service_name")
		metrics.PollErrors.WithLabelValues(string(state.Topology), "config").Inc()
		return previous
	}

	reqURL := fmt.Sprintf("%s/v1/service/%s?namespace=%s", serverURL, url.PathEscape(serviceName), url.QueryEscape(namespace))
	req, err := http.NewRequest(http.MethodGet, reqURL, nil)
	if err != nil {
		logutil.Warnf(state.Logger, "nomad: build request: %v", err)
		metrics.PollErrors.WithLabelValues(string(state.Topology), "request").Inc()
		return previous
	}
	if token != "" {
		req.Header.Set("X-Nomad-Token", token)
	}

	client := httputil.NewClient(httputil.ClientOptions{})
	resp, err := client.Do(req)
	if err != nil {
		logutil.Warnf(state.Logger, "nomad: request %s: %v", reqURL, err)
		metrics.PollErrors.WithLabelValues(string(state.Topology), "transport").Inc()
		return previous
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logutil.Warnf(state.Logger, "nomad: unexpected status %d from %s", resp.StatusCode, reqURL)
		metrics.PollErrors.WithLabelValues(string(state.Topology), "http_status").Inc()
		return previous
	}

	var entries []struct {
		Address string `json:"Address"`
		Port    int    `json:"Port"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		logutil.Warnf(state.Logger, "nomad: decode response: %v", err)
		metrics.PollErrors.WithLabelValues(string(state.Topology), "decode").Inc()
		return previous
	}

	desired := topology.NewSet()
	for _, e := range entries {
		if e.Address == "" {
			continue
		}
		peer := topology.Peer(basename + "@" + e.Address)
		if peer == state.Self {
			continue
		}
		desired.Add(peer)
	}

	return topology.Reconcile(state.Topology, desired, previous, state.Callbacks, state.Self, state.Logger)
}
