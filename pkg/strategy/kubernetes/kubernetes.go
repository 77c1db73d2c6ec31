// Package kubernetes implements the Kubernetes API strategy (spec.md
// §4.10): polls the Kubernetes API server directly over HTTP using the
// pod's projected service-account token, with no client-go dependency —
// the pack carries no Kubernetes client library, and the spec's own
// description is already a literal HTTP/JSON recipe.
package kubernetes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bitwalker/libcluster/pkg/internal/httputil"
	"github.com/bitwalker/libcluster/pkg/internal/logutil"
	"github.com/bitwalker/libcluster/pkg/observability/metrics"
	"github.com/bitwalker/libcluster/pkg/observability/tracing"
	"github.com/bitwalker/libcluster/pkg/topology"
)

func init() {
	topology.RegisterStrategy("kubernetes", func() topology.Strategy { return Strategy{} })
}

// Strategy is the Kubernetes API discovery strategy.
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

type address struct {
	ip        string
	namespace string
	hostname  string
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
	_, endSpan := tracing.StartSpan(ctx, "kubernetes.poll")
	defer endSpan()

	timer := metrics.PollDuration.WithLabelValues(string(state.Topology))
	startedAt := time.Now()
	defer func() { timer.Observe(time.Since(startedAt).Seconds()) }()

	basename := state.Config.String("kubernetes_node_basename", "")
	selector := state.Config.String("kubernetes_selector", "")
	if basename == "" || selector == "" {
		logutil.Warnf(state.Logger, "kubernetes: %q or %q not configured, skipping tick", "kubernetes_node_basename", "kubernetes_selector")
		metrics.PollErrors.WithLabelValues(string(state.Topology), "config").Inc()
		return previous
	}

	sap := state.Config.String("kubernetes_service_account_path", "/var/run/secrets/kubernetes.io/serviceaccount")
	namespace := state.Config.String("kubernetes_namespace", "")
	if namespace == "" {
		namespace = httputil.ReadTokenFile(filepath.Join(sap, "namespace"))
	}
	master := state.Config.String("kubernetes_master", "kubernetes.default.svc")
	serviceName := state.Config.String("kubernetes_service_name", "")
	lookupMode := state.Config.String("kubernetes_ip_lookup_mode", "endpoints")
	useCached := state.Config.Bool("kubernetes_use_cached_resources", false)
	clusterName := state.Config.String("kubernetes_cluster_name", "cluster")
	mode := state.Config.String("mode", "ip")

	token := httputil.ReadTokenFile(filepath.Join(sap, "token"))
	caFile := filepath.Join(sap, "ca.crt")
	if _, err := os.Stat(caFile); err != nil {
		caFile = ""
	}

	apex := state.Config.String("kubernetes_api_base_url", "")
	if apex == "" {
		apex = apexURL(master, clusterName)
	}
	apiURL := apex + apiPath(namespace, selector, lookupMode, useCached)

	req, err := http.NewRequest(http.MethodGet, apiURL, nil)
	if err != nil {
		logutil.Warnf(state.Logger, "kubernetes: build request: %v", err)
		metrics.PollErrors.WithLabelValues(string(state.Topology), "request").Inc()
		return previous
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := httputil.NewClient(httputil.ClientOptions{CAFile: caFile})
	resp, err := client.Do(req)
	if err != nil {
		logutil.Warnf(state.Logger, "kubernetes: request %s: %v", apiURL, err)
		metrics.PollErrors.WithLabelValues(string(state.Topology), "transport").Inc()
		return previous
	}
	defer resp.Body.Close()

	var body struct {
		Message string          `json:"message"`
		Items   json.RawMessage `json:"items"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)

	switch {
	case resp.StatusCode == http.StatusForbidden:
		logutil.Warnf(state.Logger, "kubernetes: 403 Forbidden: %s", body.Message)
		metrics.PollErrors.WithLabelValues(string(state.Topology), "forbidden").Inc()
		return previous
	case resp.StatusCode != http.StatusOK:
		logutil.Warnf(state.Logger, "kubernetes: unexpected status %d: %s", resp.StatusCode, body.Message)
		metrics.PollErrors.WithLabelValues(string(state.Topology), "http_status").Inc()
		return previous
	}

	var addrs []address
	if lookupMode == "pods" {
		addrs = parsePods(body.Items)
	} else {
		addrs = parseEndpoints(body.Items, namespace)
	}

	desired := topology.NewSet()
	for _, a := range addrs {
		name := peerName(basename, mode, a, serviceName, clusterName)
		if name == "" {
			continue
		}
		peer := topology.Peer(name)
		if peer == state.Self {
			continue
		}
		desired.Add(peer)
	}

	result := topology.Reconcile(state.Topology, desired, previous, state.Callbacks, state.Self, state.Logger)
	added, removed := len(desired.Difference(previous)), len(previous.Difference(desired))
	if added > 0 || removed > 0 {
		logutil.Infof(state.Logger, "kubernetes: tick summary: +%d -%d peers (selector=%q)", added, removed, selector)
	}
	return result
}

// apexURL composes "https://<master>.<cluster-domain>/", per spec.md §4.10
// step 2. If master already ends with the cluster domain, or with a
// literal ".", it is used verbatim.
func apexURL(master, clusterName string) string {
	domain := os.Getenv("CLUSTER_DOMAIN")
	if domain == "" {
		domain = clusterName + ".local"
	}
	if strings.HasSuffix(master, domain) || strings.HasSuffix(master, ".") {
		return "https://" + master + "/"
	}
	return "https://" + master + "." + domain + "/"
}

func apiPath(namespace, selector, lookupMode string, useCached bool) string {
	resource := "endpoints"
	if lookupMode == "pods" {
		resource = "pods"
	}
	path := fmt.Sprintf("api/v1/namespaces/%s/%s?labelSelector=%s", namespace, resource, url.QueryEscape(selector))
	if useCached {
		path += "&resourceVersion=0"
	}
	return path
}

func parseEndpoints(raw json.RawMessage, namespace string) []address {
	var items []struct {
		Subsets []struct {
			Addresses []struct {
				IP       string `json:"ip"`
				Hostname string `json:"hostname"`
			} `json:"addresses"`
		} `json:"subsets"`
	}
	_ = json.Unmarshal(raw, &items)

	var out []address
	for _, item := range items {
		for _, subset := range item.Subsets {
			for _, a := range subset.Addresses {
				out = append(out, address{ip: a.IP, namespace: namespace, hostname: a.Hostname})
			}
		}
	}
	return out
}

func parsePods(raw json.RawMessage) []address {
	var items []struct {
		Metadata struct {
			Namespace string `json:"namespace"`
		} `json:"metadata"`
		Spec struct {
			Hostname string `json:"hostname"`
		} `json:"spec"`
		Status struct {
			PodIP string `json:"podIP"`
		} `json:"status"`
	}
	_ = json.Unmarshal(raw, &items)

	var out []address
	for _, item := range items {
		if item.Status.PodIP == "" {
			continue
		}
		out = append(out, address{ip: item.Status.PodIP, namespace: item.Metadata.Namespace, hostname: item.Spec.Hostname})
	}
	return out
}

func peerName(basename, mode string, a address, serviceName, clusterName string) string {
	switch mode {
	case "hostname":
		if a.hostname == "" {
			return ""
		}
		return fmt.Sprintf("%s@%s.%s.%s.svc.%s.local", basename, a.hostname, serviceName, a.namespace, clusterName)
	case "dns":
		if a.ip == "" {
			return ""
		}
		dashed := strings.ReplaceAll(a.ip, ".", "-")
		return fmt.Sprintf("%s@%s.%s.pod.%s.local", basename, dashed, a.namespace, clusterName)
	default:
		if a.ip == "" {
			return ""
		}
		return basename + "@" + a.ip
	}
}
