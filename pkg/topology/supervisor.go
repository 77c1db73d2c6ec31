package topology

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/bitwalker/libcluster/pkg/internal/logutil"
	"github.com/bitwalker/libcluster/pkg/observability/metrics"
)

// Options configures Supervisor.Start.
type Options struct {
	// Logger is used for every topology's log output. Defaults to
	// log.Default() when nil.
	Logger *log.Logger

	// DefaultCallbacks, when set, fills in any of Connect/Disconnect/
	// ListConnected a TopologyConfig leaves nil. There is no implicit
	// fallback beyond this: a callback missing from both the topology
	// config and DefaultCallbacks fails Start (see Open Question).
	DefaultCallbacks *Callbacks

	// RestartBackoff is the delay before relaunching a crashed worker.
	// Defaults to 1s.
	RestartBackoff time.Duration
}

// Supervisor owns one Worker per configured topology, restarts a worker
// that exits abnormally under a one-for-one policy, and propagates
// shutdown to every worker it owns.
type Supervisor struct {
	mu      sync.Mutex
	logger  *log.Logger
	backoff time.Duration
	cancel  context.CancelFunc
	workers map[Name]*supervisedWorker
	wg      sync.WaitGroup
	closed  bool
}

type supervisedWorker struct {
	spec  ChildSpec
	mu    sync.Mutex
	h     Handle
	stop  bool // true once the Supervisor has asked this worker to stop
}

// Start builds a TopologyState for each entry in cfg (validating
// callbacks per entry, falling back to opts.DefaultCallbacks), resolves
// its Strategy by id, and launches one worker per topology under
// one-for-one supervision.
func Start(ctx context.Context, cfg Configuration, opts Options) (*Supervisor, error) {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.RestartBackoff <= 0 {
		opts.RestartBackoff = time.Second
	}
	metrics.Register()

	sctx, cancel := context.WithCancel(ctx)
	sup := &Supervisor{
		logger:  opts.Logger,
		backoff: opts.RestartBackoff,
		cancel:  cancel,
		workers: make(map[Name]*supervisedWorker, len(cfg)),
	}

	for name, tc := range cfg {
		builder, ok := LookupStrategy(tc.Strategy)
		if !ok {
			cancel()
			return nil, fmt.Errorf("topology[%s]: unknown strategy %q", name, tc.Strategy)
		}
		callbacks := Callbacks{Connect: tc.Connect, Disconnect: tc.Disconnect, ListConnected: tc.ListConnected}
		if opts.DefaultCallbacks != nil {
			if callbacks.Connect == nil {
				callbacks.Connect = opts.DefaultCallbacks.Connect
			}
			if callbacks.Disconnect == nil {
				callbacks.Disconnect = opts.DefaultCallbacks.Disconnect
			}
			if callbacks.ListConnected == nil {
				callbacks.ListConnected = opts.DefaultCallbacks.ListConnected
			}
		}
		if err := callbacks.Validate(); err != nil {
			cancel()
			return nil, fmt.Errorf("topology[%s]: %w", name, err)
		}
		state := &State{Topology: name, Callbacks: callbacks, Config: tc.Config, Self: tc.Self, Logger: opts.Logger}
		strategy := builder()
		spec := strategy.ChildSpecFor(state)
		if spec.ID == "" {
			spec.ID = name
		}
		if spec.Restart == "" {
			spec.Restart = RestartPermanent
		}
		sw := &supervisedWorker{spec: spec}
		sup.workers[name] = sw
		sup.wg.Add(1)
		go sup.run(sctx, name, sw)
	}

	metrics.WorkersRunning.Set(float64(len(sup.workers)))
	return sup, nil
}

// run launches spec.Start and, on abnormal exit, relaunches it under the
// one-for-one restart policy until the Supervisor is stopped. A worker
// exiting with Err()==nil under RestartTransient is treated as done and
// is not relaunched.
func (s *Supervisor) run(ctx context.Context, name Name, sw *supervisedWorker) {
	defer s.wg.Done()
	for {
		h, err := sw.spec.Start(ctx)
		if err != nil {
			logutil.Errorf(s.logger, "topology[%s]: worker failed to start: %v", name, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.backoff):
			}
			metrics.WorkerRestarts.WithLabelValues(string(name)).Inc()
			continue
		}
		sw.mu.Lock()
		sw.h = h
		sw.mu.Unlock()

		select {
		case <-h.Done():
		case <-ctx.Done():
			h.Stop()
			<-h.Done()
			return
		}

		sw.mu.Lock()
		stopRequested := sw.stop
		sw.mu.Unlock()
		if stopRequested || ctx.Err() != nil {
			return
		}

		exitErr := h.Err()
		if exitErr == nil && sw.spec.Restart == RestartTransient {
			logutil.Infof(s.logger, "topology[%s]: one-shot worker done", name)
			return
		}
		if exitErr != nil {
			logutil.Warnf(s.logger, "topology[%s]: worker crashed: %v, restarting", name, exitErr)
		} else {
			logutil.Infof(s.logger, "topology[%s]: worker exited, restarting (permanent policy)", name)
		}
		metrics.WorkerRestarts.WithLabelValues(string(name)).Inc()
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.backoff):
		}
	}
}

// Stop terminates all workers, waiting for each to release its owned
// resources before returning.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for _, sw := range s.workers {
		sw.mu.Lock()
		sw.stop = true
		if sw.h != nil {
			sw.h.Stop()
		}
		sw.mu.Unlock()
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	metrics.WorkersRunning.Set(0)
}
