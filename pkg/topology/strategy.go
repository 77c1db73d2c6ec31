package topology

import "context"

// RestartPolicy mirrors a supervisor restart policy: "permanent" workers
// are always restarted on exit; "transient" workers are restarted only on
// abnormal exit; a one-shot strategy normally asks for "transient" since
// a clean "done" is expected.
type RestartPolicy string

const (
	RestartPermanent RestartPolicy = "permanent"
	RestartTransient RestartPolicy = "transient"
)

// ChildSpec identifies a worker to the Supervisor: a unique id, the
// restart policy to apply on exit, and the launch thunk itself.
type ChildSpec struct {
	ID      Name
	Restart RestartPolicy
	Start   func(ctx context.Context) (Handle, error)
}

// Handle represents a running (or already-finished) Worker. Done is closed
// when the worker has exited, for any reason; Err reports the exit cause
// (nil for a clean "done" one-shot exit).
type Handle interface {
	Done() <-chan struct{}
	Err() error
	Stop()
}

// Strategy is the polymorphic discovery mechanism. Implementations are a
// closed set of variants (Static, LocalDiscovery, HostsFile, Gossip,
// DNSPollA, DNSPollSRV, KubernetesAPI, Rancher, Nomad, ...), modeled as a
// tagged union rather than an open inheritance hierarchy: each variant
// owns its own worker state type via State.Meta.
type Strategy interface {
	// ChildSpecFor returns the identity, restart policy and launch thunk
	// the Supervisor uses to run this strategy for the given state.
	ChildSpecFor(state *State) ChildSpec
}

// SimpleHandle is the Handle implementation shared by every strategy's
// Start method: a done channel plus a caller-supplied stop function
// (typically the worker's context.CancelFunc or socket Close).
type SimpleHandle struct {
	done chan struct{}
	err  error
	stop func()
}

// NewHandle constructs a SimpleHandle. Call Finish exactly once when the
// worker's goroutine returns.
func NewHandle(stop func()) *SimpleHandle {
	return &SimpleHandle{done: make(chan struct{}), stop: stop}
}

func (h *SimpleHandle) Done() <-chan struct{} { return h.done }
func (h *SimpleHandle) Err() error            { return h.err }
func (h *SimpleHandle) Stop() {
	if h.stop != nil {
		h.stop()
	}
}

// Finish marks the handle done with the given exit error (nil for a clean
// exit). Must be called exactly once.
func (h *SimpleHandle) Finish(err error) {
	h.err = err
	close(h.done)
}
