// Package rancher implements the Rancher metadata-service strategy
// (spec.md §4.11): periodically polls the Rancher container metadata API
// for the containers of one service (aggregated across every configured
// stack, if any) and connects to one Peer per container IP.
package rancher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/bitwalker/libcluster/pkg/internal/httputil"
	"github.com/bitwalker/libcluster/pkg/internal/logutil"
	"github.com/bitwalker/libcluster/pkg/observability/metrics"
	"github.com/bitwalker/libcluster/pkg/observability/tracing"
	"github.com/bitwalker/libcluster/pkg/topology"
)

func init() {
	topology.RegisterStrategy("rancher", func() topology.Strategy { return Strategy{} })
}

// Strategy is the Rancher discovery strategy.
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
	_, endSpan := tracing.StartSpan(ctx, "rancher.poll")
	defer endSpan()

	timer := metrics.PollDuration.WithLabelValues(string(state.Topology))
	startedAt := time.Now()
	defer func() { timer.Observe(time.Since(startedAt).Seconds()) }()

	basename := state.Config.String("node_basename", "")
	service := state.Config.String("service", "")
	stack := state.Config.String("stack", "")
	stacks := state.Config.StringSlice("stacks")
	metadataURL := state.Config.String("metadata_url", "http://rancher-metadata/2016-07-29")

	if basename == "" || service == "" {
		logutil.Warnf(state.Logger, "rancher: %q or %q not configured, skipping tick", "node_basename", "service")
		metrics.PollErrors.WithLabelValues(string(state.Topology), "config").Inc()
		return previous
	}

	if stack != "" {
		stacks = append(stacks, stack)
	}
	if len(stacks) == 0 {
		stacks = []string{""}
	}

	client := httputil.NewClient(httputil.ClientOptions{})
	var ips []string
	for _, s := range stacks {
		path := metadataURL + "/services/" + service + "/containers"
		if s != "" {
			path = metadataURL + "/stacks/" + s + "/services/" + service + "/containers"
		}
		got, err := fetchContainerIPs(client, path)
		if err != nil {
			logutil.Warnf(state.Logger, "rancher: fetch %s: %v", path, err)
			metrics.PollErrors.WithLabelValues(string(state.Topology), "transport").Inc()
			continue
		}
		ips = append(ips, got...)
	}

	desired := topology.NewSet()
	for _, ip := range ips {
		peer := topology.Peer(basename + "@" + ip)
		if peer == state.Self {
			continue
		}
		desired.Add(peer)
	}

	return topology.Reconcile(state.Topology, desired, previous, state.Callbacks, state.Self, state.Logger)
}

func fetchContainerIPs(client *http.Client, path string) ([]string, error) {
	req, err := http.NewRequest(http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rancher: status %d from %s", resp.StatusCode, path)
	}
	var containers []struct {
		PrimaryIP string `json:"primary_ip"`
		State     string `json:"state"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&containers); err != nil {
		return nil, err
	}
	var ips []string
	for _, c := range containers {
		if c.PrimaryIP == "" || c.State == "stopped" {
			continue
		}
		ips = append(ips, c.PrimaryIP)
	}
	return ips, nil
}
