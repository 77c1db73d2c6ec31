package nomad

import (
	"context"
	"net/http"
	"net/http/httptest"
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

func TestPollConnectsServiceAddresses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Nomad-Token"); got != "secret-token" {
			t.Errorf("expected X-Nomad-Token header, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"Address":"10.0.0.7","Port":4647},{"Address":"10.0.0.8","Port":4647}]`))
	}))
	defer srv.Close()

	fc := newFakeCallbacks()
	state := &topology.State{
		Topology:  "nomad",
		Self:      "app@10.0.0.8",
		Callbacks: fc.callbacks(),
		Config: topology.Spec{
			"node_basename":    "app",
			"nomad_server_url": srv.URL,
			"service_name":     "myapp",
			"token":            "secret-token",
		},
	}

	got := poll(context.Background(), state, topology.NewSet())

	if !got.Has("app@10.0.0.7") {
		t.Errorf("expected app@10.0.0.7 connected, got %#v", got)
	}
	if got.Has("app@10.0.0.8") {
		t.Errorf("self should never be connected to, got %#v", got)
	}
}

func TestPollMissingConfigIsNoop(t *testing.T) {
	fc := newFakeCallbacks()
	state := &topology.State{Topology: "nomad", Callbacks: fc.callbacks(), Config: topology.Spec{}}

	got := poll(context.Background(), state, topology.NewSet("app@stale"))

	if !got.Has("app@stale") {
		t.Errorf("missing config should leave carry-forward set unchanged, got %#v", got)
	}
}
