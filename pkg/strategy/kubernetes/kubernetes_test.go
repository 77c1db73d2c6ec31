package kubernetes

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/bitwalker/libcluster/pkg/topology"
)

type fakeCallbacks struct {
	mu        sync.Mutex
	connected map[topology.Peer]struct{}
}

func newFakeCallbacks() *fakeCallbacks { return &fakeCallbacks{connected: map[topology.Peer]struct{}{}} }

func (f *fakeCallbacks) callbacks() topology.Callbacks {
	return topology.Callbacks{
		Connect: func(p topology.Peer) topology.CallbackResult {
			f.mu.Lock()
			f.connected[p] = struct{}{}
			f.mu.Unlock()
			return topology.ResultTrue
		},
		Disconnect: func(p topology.Peer) topology.CallbackResult {
			f.mu.Lock()
			delete(f.connected, p)
			f.mu.Unlock()
			return topology.ResultTrue
		},
		ListConnected: func() []topology.Peer {
			f.mu.Lock()
			defer f.mu.Unlock()
			out := make([]topology.Peer, 0, len(f.connected))
			for p := range f.connected {
				out = append(out, p)
			}
			return out
		},
	}
}

func TestParseEndpointsFlattensAddresses(t *testing.T) {
	raw := json.RawMessage(`[
		{"subsets":[{"addresses":[{"ip":"10.0.0.1","hostname":"a"},{"ip":"10.0.0.2"}]}]},
		{"subsets":[{"addresses":[{"ip":"10.0.0.3"}]}]}
	]`)
	addrs := parseEndpoints(raw, "ns")
	if len(addrs) != 3 {
		t.Fatalf("expected 3 addresses, got %d: %#v", len(addrs), addrs)
	}
	for _, a := range addrs {
		if a.namespace != "ns" {
			t.Errorf("expected namespace %q threaded onto every address, got %#v", "ns", a)
		}
	}
}

func TestParsePodsSkipsMissingPodIP(t *testing.T) {
	raw := json.RawMessage(`[
		{"status":{"podIP":"10.0.0.1"},"metadata":{"namespace":"ns"},"spec":{"hostname":"h"}},
		{"status":{}}
	]`)
	addrs := parsePods(raw)
	if len(addrs) != 1 {
		t.Fatalf("expected 1 address, got %d: %#v", len(addrs), addrs)
	}
}

func TestPeerNameModes(t *testing.T) {
	a := address{ip: "10.0.0.1", namespace: "ns", hostname: "host-0"}
	if got := peerName("app", "ip", a, "svc", "cluster"); got != "app@10.0.0.1" {
		t.Errorf("ip mode: got %q", got)
	}
	if got := peerName("app", "hostname", a, "svc", "cluster"); got != "app@host-0.svc.ns.svc.cluster.local" {
		t.Errorf("hostname mode: got %q", got)
	}
	if got := peerName("app", "dns", a, "svc", "cluster"); got != "app@10-0-0-1.ns.pod.cluster.local" {
		t.Errorf("dns mode: got %q", got)
	}
}

func TestApexURLDefaultsAndVerbatim(t *testing.T) {
	if got := apexURL("kubernetes.default.svc", "cluster"); got != "https://kubernetes.default.svc.cluster.local/" {
		t.Errorf("got %q", got)
	}
	if got := apexURL("k8s-master.example.com.", "cluster"); got != "https://k8s-master.example.com./" {
		t.Errorf("literal-dot master should be used verbatim, got %q", got)
	}
}

func TestPollConnectsEndpointAddresses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("labelSelector"); got != "app=myapp" {
			t.Errorf("unexpected labelSelector %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[{"subsets":[{"addresses":[{"ip":"10.0.0.9"}]}]}]}`))
	}))
	defer srv.Close()

	fc := newFakeCallbacks()
	state := &topology.State{
		Topology:  "k8s",
		Self:      "app@10.0.0.1",
		Callbacks: fc.callbacks(),
		Config: topology.Spec{
			"kubernetes_node_basename":        "app",
			"kubernetes_selector":             "app=myapp",
			"kubernetes_api_base_url":         srv.URL + "/",
			"kubernetes_namespace":            "default",
			"kubernetes_service_account_path": t.TempDir(),
		},
	}

	got := poll(context.Background(), state, topology.NewSet())

	if !got.Has("app@10.0.0.9") {
		t.Errorf("expected app@10.0.0.9 in carry-forward set, got %#v", got)
	}
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if _, ok := fc.connected["app@10.0.0.9"]; !ok {
		t.Errorf("expected app@10.0.0.9 connected, got %#v", fc.connected)
	}
}

// TestPollEndpointsModeThreadsNamespaceIntoPeerName guards against
// parseEndpoints silently dropping the queried namespace: under the default
// endpoints lookup mode with mode=dns, the namespace segment of the peer
// name must come from the configured namespace, not be empty.
func TestPollEndpointsModeThreadsNamespaceIntoPeerName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[{"subsets":[{"addresses":[{"ip":"10.0.0.9"}]}]}]}`))
	}))
	defer srv.Close()

	fc := newFakeCallbacks()
	state := &topology.State{
		Topology:  "k8s",
		Self:      "app@10.0.0.1",
		Callbacks: fc.callbacks(),
		Config: topology.Spec{
			"kubernetes_node_basename":        "app",
			"kubernetes_selector":             "app=myapp",
			"kubernetes_api_base_url":         srv.URL + "/",
			"kubernetes_namespace":            "prod",
			"kubernetes_service_account_path": t.TempDir(),
			"mode":                             "dns",
		},
	}

	got := poll(context.Background(), state, topology.NewSet())

	want := topology.Peer("app@10-0-0-9.prod.pod.cluster.local")
	if !got.Has(want) {
		t.Errorf("expected %q with namespace threaded from the query, got %#v", want, got)
	}
}

// TestPollLogsTickSummaryOnChange covers the per-tick added/removed peer
// summary supplement: logged at info level only when membership changed.
func TestPollLogsTickSummaryOnChange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[{"subsets":[{"addresses":[{"ip":"10.0.0.9"}]}]}]}`))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	fc := newFakeCallbacks()
	state := &topology.State{
		Topology:  "k8s",
		Self:      "app@10.0.0.1",
		Callbacks: fc.callbacks(),
		Logger:    log.New(&buf, "", 0),
		Config: topology.Spec{
			"kubernetes_node_basename":        "app",
			"kubernetes_selector":             "app=myapp",
			"kubernetes_api_base_url":         srv.URL + "/",
			"kubernetes_namespace":            "default",
			"kubernetes_service_account_path": t.TempDir(),
		},
	}

	previous := poll(context.Background(), state, topology.NewSet())
	if !strings.Contains(buf.String(), "tick summary: +1 -0") {
		t.Errorf("expected tick summary log on first join, got %q", buf.String())
	}

	buf.Reset()
	poll(context.Background(), state, previous)
	if buf.Len() != 0 {
		t.Errorf("expected no tick summary log when membership is unchanged, got %q", buf.String())
	}
}

func TestPollForbiddenKeepsPreviousMembership(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"no access"}`))
	}))
	defer srv.Close()

	fc := newFakeCallbacks()
	state := &topology.State{
		Topology:  "k8s",
		Callbacks: fc.callbacks(),
		Config: topology.Spec{
			"kubernetes_node_basename":        "app",
			"kubernetes_selector":             "app=myapp",
			"kubernetes_api_base_url":         srv.URL + "/",
			"kubernetes_namespace":            "default",
			"kubernetes_service_account_path": t.TempDir(),
		},
	}

	previous := topology.NewSet("app@10.0.0.1")
	got := poll(context.Background(), state, previous)

	if !got.Has("app@10.0.0.1") {
		t.Errorf("a 403 must not disconnect the existing cluster, got %#v", got)
	}
}

// TestScenarioF_Transient500KeepsMembership matches spec.md §8 Scenario F:
// a transient 500 on tick 2 must not disconnect peers tick 1 established.
func TestScenarioF_Transient500KeepsMembership(t *testing.T) {
	var tick int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tick++
		if tick == 1 {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"items":[{"subsets":[{"addresses":[{"ip":"10.0.0.1"},{"ip":"10.0.0.2"}]}]}]}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	fc := newFakeCallbacks()
	state := &topology.State{
		Topology:  "k8s",
		Callbacks: fc.callbacks(),
		Config: topology.Spec{
			"kubernetes_node_basename":        "app",
			"kubernetes_selector":             "app=myapp",
			"kubernetes_api_base_url":         srv.URL + "/",
			"kubernetes_namespace":            "default",
			"kubernetes_service_account_path": t.TempDir(),
		},
	}

	previous := poll(context.Background(), state, topology.NewSet())
	if !previous.Has("app@10.0.0.1") || !previous.Has("app@10.0.0.2") {
		t.Fatalf("expected tick 1 to establish both peers, got %#v", previous)
	}

	previous = poll(context.Background(), state, previous)
	if !previous.Has("app@10.0.0.1") || !previous.Has("app@10.0.0.2") {
		t.Errorf("a transient 500 must preserve existing membership, got %#v", previous)
	}

	previous = poll(context.Background(), state, previous)
	if !previous.Has("app@10.0.0.1") || !previous.Has("app@10.0.0.2") {
		t.Errorf("membership should still be intact on tick 3 retry, got %#v", previous)
	}
}

func TestAPIPathIncludesResourceVersionWhenCached(t *testing.T) {
	p := apiPath("default", "app=myapp", "endpoints", true)
	if p != "api/v1/namespaces/default/endpoints?labelSelector=app%3Dmyapp&resourceVersion=0" {
		t.Errorf("got %q", p)
	}
	p = apiPath("default", "app=myapp", "pods", false)
	if p != "api/v1/namespaces/default/pods?labelSelector=app%3Dmyapp" {
		t.Errorf("got %q", p)
	}
}
