package gossip

import (
	"sync"
	"testing"

	"github.com/bitwalker/libcluster/pkg/topology"
)

type fakeCallbacks struct {
	mu        sync.Mutex
	connected map[topology.Peer]struct{}
}

func newFakeCallbacks() *fakeCallbacks {
	return &fakeCallbacks{connected: map[topology.Peer]struct{}{}}
}

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

func (f *fakeCallbacks) has(p topology.Peer) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.connected[p]
	return ok
}

// TestBuildSocketConfigDefaults covers spec.md §6's Gossip option table:
// every option is optional and defaults to a working configuration, so an
// empty Spec must not require any key to be set.
func TestBuildSocketConfigDefaults(t *testing.T) {
	cfg := buildSocketConfig(topology.Spec{})

	if cfg.bindAddr != "0.0.0.0:45892" {
		t.Errorf("bindAddr: got %q, want %q", cfg.bindAddr, "0.0.0.0:45892")
	}
	if cfg.multicastAddr != "233.252.1.32:45892" {
		t.Errorf("multicastAddr: got %q, want %q", cfg.multicastAddr, "233.252.1.32:45892")
	}
	if cfg.ttl != 1 {
		t.Errorf("ttl: got %d, want 1", cfg.ttl)
	}
	if cfg.broadcastOnly {
		t.Errorf("broadcastOnly: got true, want false")
	}
}

// TestBuildSocketConfigHonorsOverrides covers the same table's non-default
// options: port, if_addr, multicast_addr, and multicast_ttl must each be
// read from their own documented key, not conflated with one another.
func TestBuildSocketConfigHonorsOverrides(t *testing.T) {
	cfg := buildSocketConfig(topology.Spec{
		"port":           7000,
		"if_addr":        "10.0.0.5",
		"multicast_addr": "230.1.1.1",
		"multicast_ttl":  4,
		"multicast_if":   "eth0",
		"broadcast_only": true,
	})

	if cfg.bindAddr != "10.0.0.5:7000" {
		t.Errorf("bindAddr: got %q, want %q", cfg.bindAddr, "10.0.0.5:7000")
	}
	if cfg.multicastAddr != "230.1.1.1:7000" {
		t.Errorf("multicastAddr: got %q, want %q", cfg.multicastAddr, "230.1.1.1:7000")
	}
	if cfg.ttl != 4 {
		t.Errorf("ttl: got %d, want 4", cfg.ttl)
	}
	if cfg.ifaceName != "eth0" {
		t.Errorf("ifaceName: got %q, want %q", cfg.ifaceName, "eth0")
	}
	if !cfg.broadcastOnly {
		t.Errorf("broadcastOnly: got false, want true")
	}
}

// TestScenarioD_SelfOriginPacketIgnored covers spec.md §8 Scenario D: a
// node must never connect to itself, even when it hears its own heartbeat
// echoed back (e.g. via multicast loopback).
func TestScenarioD_SelfOriginPacketIgnored(t *testing.T) {
	fc := newFakeCallbacks()
	state := &topology.State{Topology: "gossip", Self: "app@self", Callbacks: fc.callbacks()}

	payload, err := encodeHeartbeat("app@self")
	if err != nil {
		t.Fatalf("encodeHeartbeat: %v", err)
	}
	handlePacket(state, payload, nil)

	if fc.has("app@self") {
		t.Errorf("self should never be connected to")
	}
	if len(fc.connected) != 0 {
		t.Errorf("expected no connections, got %#v", fc.connected)
	}
}

func TestHandlePacketConnectsPeer(t *testing.T) {
	fc := newFakeCallbacks()
	state := &topology.State{Topology: "gossip", Self: "app@self", Callbacks: fc.callbacks()}

	payload, err := encodeHeartbeat("app@peer")
	if err != nil {
		t.Fatalf("encodeHeartbeat: %v", err)
	}
	handlePacket(state, payload, nil)

	if !fc.has("app@peer") {
		t.Errorf("expected app@peer connected, got %#v", fc.connected)
	}
}

// TestScenarioE_TamperedEncryptedPacketDropped covers spec.md §8 Scenario
// E: ciphertext that does not PKCS#7-unpad correctly must be silently
// dropped, with no connect invocation and no panic.
func TestScenarioE_TamperedEncryptedPacketDropped(t *testing.T) {
	fc := newFakeCallbacks()
	state := &topology.State{Topology: "gossip", Self: "app@self", Callbacks: fc.callbacks()}

	key := deriveKey("cluster-secret")
	payload, err := encodeHeartbeat("app@peer")
	if err != nil {
		t.Fatalf("encodeHeartbeat: %v", err)
	}
	wire, err := encrypt(key, payload)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	// Flip a byte in the ciphertext body (past the IV) so CBC decryption
	// produces garbage that fails PKCS#7 unpadding.
	tampered := append([]byte(nil), wire...)
	tampered[len(tampered)-1] ^= 0xFF

	handlePacket(state, tampered, key)

	if len(fc.connected) != 0 {
		t.Errorf("tampered packet must not connect anything, got %#v", fc.connected)
	}
}

func TestHandlePacketWrongKeyDropped(t *testing.T) {
	fc := newFakeCallbacks()
	state := &topology.State{Topology: "gossip", Self: "app@self", Callbacks: fc.callbacks()}

	payload, err := encodeHeartbeat("app@peer")
	if err != nil {
		t.Fatalf("encodeHeartbeat: %v", err)
	}
	wire, err := encrypt(deriveKey("correct-secret"), payload)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	handlePacket(state, wire, deriveKey("wrong-secret"))

	if len(fc.connected) != 0 {
		t.Errorf("packet encrypted with a different key must not connect anything, got %#v", fc.connected)
	}
}

func TestHandlePacketMissingSentinelDropped(t *testing.T) {
	fc := newFakeCallbacks()
	state := &topology.State{Topology: "gossip", Self: "app@self", Callbacks: fc.callbacks()}

	handlePacket(state, []byte(`{"node":"app@peer"}`), nil)

	if len(fc.connected) != 0 {
		t.Errorf("packet without the heartbeat sentinel must not connect anything, got %#v", fc.connected)
	}
}

// TestInvariant6_EncryptedPacketShape verifies that encrypt() always
// produces at least one IV block plus a whole number of cipher blocks,
// the shape spec.md §8 invariant 6 requires decrypt() to validate.
func TestInvariant6_EncryptedPacketShape(t *testing.T) {
	key := deriveKey("s")
	for _, plaintext := range [][]byte{[]byte(""), []byte("x"), []byte(sentinel + `{"node":"a@b"}`)} {
		wire, err := encrypt(key, plaintext)
		if err != nil {
			t.Fatalf("encrypt: %v", err)
		}
		if len(wire) < 16 {
			t.Fatalf("wire too short: %d bytes", len(wire))
		}
		if (len(wire)-16)%16 != 0 {
			t.Fatalf("ciphertext body %d is not a multiple of the block size", len(wire)-16)
		}
		got, err := decrypt(key, wire)
		if err != nil {
			t.Fatalf("decrypt: %v", err)
		}
		if string(got) != string(plaintext) {
			t.Fatalf("roundtrip mismatch: got %q want %q", got, plaintext)
		}
	}
}

func TestDecryptRejectsShortPayload(t *testing.T) {
	if _, err := decrypt(deriveKey("s"), []byte("short")); err == nil {
		t.Fatalf("expected error for payload shorter than one block")
	}
}

func TestHeartbeatRoundTrip(t *testing.T) {
	payload, err := encodeHeartbeat("app@host")
	if err != nil {
		t.Fatalf("encodeHeartbeat: %v", err)
	}
	node, err := decodeHeartbeat(payload)
	if err != nil {
		t.Fatalf("decodeHeartbeat: %v", err)
	}
	if node != "app@host" {
		t.Errorf("got %q, want app@host", node)
	}
}

func TestDecodeHeartbeatRejectsMissingSentinel(t *testing.T) {
	if _, err := decodeHeartbeat([]byte(`{"node":"a@b"}`)); err == nil {
		t.Fatalf("expected error for payload missing the sentinel")
	}
}
