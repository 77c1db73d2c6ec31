package registry

import (
	"testing"

	"github.com/bitwalker/libcluster/pkg/topology"
)

func TestConnectIgnoresSelf(t *testing.T) {
	self := topology.Peer("app@host")
	r := New(self, "host")
	cb := r.Callbacks()

	if got := cb.Connect(self); got != topology.ResultIgnored {
		t.Fatalf("connecting to self: got %v, want ResultIgnored", got)
	}
	if len(cb.ListConnected()) != 0 {
		t.Fatalf("self should never appear in ListConnected, got %v", cb.ListConnected())
	}
}

func TestConnectDisconnectRoundTrip(t *testing.T) {
	r := New("app@host", "host")
	cb := r.Callbacks()

	if got := cb.Connect("peer@other"); got != topology.ResultTrue {
		t.Fatalf("connect: got %v", got)
	}
	if !topology.NewSet(cb.ListConnected()...).Has("peer@other") {
		t.Fatalf("expected peer@other connected, got %v", cb.ListConnected())
	}

	if got := cb.Disconnect("peer@other"); got != topology.ResultTrue {
		t.Fatalf("disconnect: got %v", got)
	}
	if topology.NewSet(cb.ListConnected()...).Has("peer@other") {
		t.Fatalf("expected peer@other disconnected, got %v", cb.ListConnected())
	}
}

func TestDisconnectUnknownPeerReturnsFalse(t *testing.T) {
	r := New("app@host", "host")
	if got := r.Callbacks().Disconnect("ghost@nowhere"); got != topology.ResultFalse {
		t.Fatalf("got %v, want ResultFalse", got)
	}
}

func TestDialHookGatesConnect(t *testing.T) {
	r := New("app@host", "host")
	r.Dial = func(topology.Peer) topology.CallbackResult { return topology.ResultFalse }

	if got := r.Callbacks().Connect("peer@other"); got != topology.ResultFalse {
		t.Fatalf("got %v, want ResultFalse", got)
	}
	if topology.NewSet(r.Callbacks().ListConnected()...).Has("peer@other") {
		t.Fatalf("a refused Dial must not mark the peer connected")
	}
}

func TestLocalNamesRoundTrip(t *testing.T) {
	r := New("app@host", "host")
	r.RegisterLocal("app")
	r.RegisterLocal("worker")

	names, err := r.LocalNames()
	if err != nil {
		t.Fatalf("LocalNames: %v", err)
	}
	got := map[string]bool{}
	for _, n := range names {
		got[n] = true
	}
	if !got["app"] || !got["worker"] {
		t.Fatalf("expected app and worker registered, got %v", names)
	}

	r.UnregisterLocal("worker")
	names, _ = r.LocalNames()
	if len(names) != 1 || names[0] != "app" {
		t.Fatalf("expected only app after unregister, got %v", names)
	}
}

func TestNamesAtOnlyAnswersForOwnHost(t *testing.T) {
	r := New("app@host-a", "host-a")
	r.RegisterLocal("app")

	names, err := r.NamesAt("host-a")
	if err != nil || len(names) != 1 || names[0] != "app" {
		t.Fatalf("NamesAt(own host): got %v, %v", names, err)
	}

	names, err = r.NamesAt("host-b")
	if err != nil || len(names) != 0 {
		t.Fatalf("NamesAt(other host): expected empty result, got %v, %v", names, err)
	}
}
