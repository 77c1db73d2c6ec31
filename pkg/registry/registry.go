// Package registry provides the ambient "connect by name / disconnect by
// name / list connected names" primitive that spec.md §4.1 refers to as
// the default target for a topology's unspecified callbacks, and that
// §4.5/§4.6 refer to as the "local name registry" consulted by the Local
// Discovery and Hosts-File strategies. It is an in-process substitute for
// the node-distribution primitives a real transport would supply; this
// module never talks to it except through the topology.Callbacks and
// NameLister interfaces it satisfies.
//
// Adapted from the teacher's cmd/memdemo demonstration wiring (which drove
// a real memberlist instance by hand); here it is a self-contained
// in-memory stand-in suitable for tests, examples, and single-process demos.
package registry

import (
	"os"
	"sync"

	"github.com/bitwalker/libcluster/pkg/topology"
)

// DialFunc is an optional hook invoked by Connect before a peer is marked
// reachable, letting callers wire in a real transport without replacing
// the bookkeeping in Registry. A nil DialFunc means "always succeeds".
type DialFunc func(topology.Peer) topology.CallbackResult

// Registry is a minimal in-memory node registry: it tracks which peers
// this process currently considers connected, and which bare basenames it
// considers "registered" on the local host (the local name registry of
// spec.md §4.5/§4.6).
type Registry struct {
	mu        sync.RWMutex
	self      topology.Peer
	hostname  string
	connected map[topology.Peer]struct{}
	local     map[string]struct{}
	Dial      DialFunc
}

// New constructs a Registry for the given local node identity. hostname
// defaults to os.Hostname() when empty.
func New(self topology.Peer, hostname string) *Registry {
	if hostname == "" {
		if h, err := os.Hostname(); err == nil {
			hostname = h
		}
	}
	return &Registry{
		self:      self,
		hostname:  hostname,
		connected: make(map[topology.Peer]struct{}),
		local:     make(map[string]struct{}),
	}
}

// Hostname returns the local host suffix used by RegisterLocal/LocalNames.
func (r *Registry) Hostname() string { return r.hostname }

// RegisterLocal marks basename as registered on this host, as an EPMD-style
// registry would when a local node process starts up.
func (r *Registry) RegisterLocal(basename string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.local[basename] = struct{}{}
}

// UnregisterLocal removes basename from the local registry.
func (r *Registry) UnregisterLocal(basename string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.local, basename)
}

// LocalNames implements the NameLister interface consulted by the Local
// Discovery and Hosts-File strategies: the bare basenames registered on
// this host, not yet combined with any @host suffix.
func (r *Registry) LocalNames() ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.local))
	for n := range r.local {
		out = append(out, n)
	}
	return out, nil
}

// NamesAt implements topology.RemoteNameLister. This in-process registry
// only knows about its own host, so it answers for r.hostname and returns
// an empty result for any other host (as a real EPMD query would for a
// host with nothing registered).
func (r *Registry) NamesAt(host string) ([]string, error) {
	if host != "" && host != r.hostname {
		return nil, nil
	}
	return r.LocalNames()
}

// Callbacks returns the topology.Callbacks triple backed by this registry,
// suitable as topology.Options.DefaultCallbacks.
func (r *Registry) Callbacks() topology.Callbacks {
	return topology.Callbacks{
		Connect:       r.connect,
		Disconnect:    r.disconnect,
		ListConnected: r.listConnected,
	}
}

func (r *Registry) connect(p topology.Peer) topology.CallbackResult {
	if p == r.self {
		return topology.ResultIgnored
	}
	result := topology.ResultTrue
	if r.Dial != nil {
		result = r.Dial(p)
	}
	if result == topology.ResultTrue {
		r.mu.Lock()
		r.connected[p] = struct{}{}
		r.mu.Unlock()
	}
	return result
}

func (r *Registry) disconnect(p topology.Peer) topology.CallbackResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.connected[p]; !ok {
		return topology.ResultFalse
	}
	delete(r.connected, p)
	return topology.ResultTrue
}

func (r *Registry) listConnected() []topology.Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]topology.Peer, 0, len(r.connected))
	for p := range r.connected {
		out = append(out, p)
	}
	return out
}
