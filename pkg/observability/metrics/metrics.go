package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var once sync.Once

var (
	// WorkerRestarts counts one-for-one restarts performed by the
	// Supervisor, per topology.
	WorkerRestarts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "topology",
		Name:      "worker_restarts_total",
		Help:      "Total number of times the supervisor restarted a topology worker",
	}, []string{"topology"})

	// WorkersRunning is the current number of running topology workers.
	WorkersRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "topology",
		Name:      "workers_running",
		Help:      "Current number of running topology workers",
	})

	// MembershipSize is the current size of a topology's carry-forward set.
	MembershipSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "topology",
		Name:      "membership_size",
		Help:      "Current number of peers in a topology's membership set",
	}, []string{"topology"})

	// ConnectResults counts Reconciler-driven connect attempts by outcome.
	ConnectResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "topology",
		Name:      "connect_results_total",
		Help:      "Total connect callback invocations by topology and result",
	}, []string{"topology", "result"})

	// DisconnectResults counts Reconciler-driven disconnect attempts by outcome.
	DisconnectResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "topology",
		Name:      "disconnect_results_total",
		Help:      "Total disconnect callback invocations by topology and result",
	}, []string{"topology", "result"})

	// ReconcileDuration observes wall time spent in one Reconcile call.
	ReconcileDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "topology",
		Name:      "reconcile_duration_seconds",
		Help:      "Time spent executing one reconcile cycle",
		Buckets:   prometheus.DefBuckets,
	}, []string{"topology"})

	// PollErrors counts per-tick discovery failures for polling strategies
	// (DNS, Kubernetes, Rancher, Nomad): config errors, transient network
	// errors, auth failures.
	PollErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "topology",
		Name:      "poll_errors_total",
		Help:      "Total per-tick discovery failures by topology and kind",
	}, []string{"topology", "kind"})

	// PollDuration observes the wall time of one discover() tick for
	// polling strategies.
	PollDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "topology",
		Name:      "poll_duration_seconds",
		Help:      "Time spent executing one discovery poll",
		Buckets:   prometheus.DefBuckets,
	}, []string{"topology"})

	// GossipPacketsSent counts UDP packets emitted by the gossip strategy.
	GossipPacketsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "topology",
		Subsystem: "gossip",
		Name:      "packets_sent_total",
		Help:      "Total heartbeat packets sent by the gossip strategy",
	}, []string{"topology"})

	// GossipPacketsReceived counts UDP packets the gossip strategy accepted.
	GossipPacketsReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "topology",
		Subsystem: "gossip",
		Name:      "packets_received_total",
		Help:      "Total heartbeat packets accepted by the gossip strategy",
	}, []string{"topology"})

	// GossipPacketsDropped counts UDP packets rejected (bad sentinel,
	// decryption failure, malformed payload). Self-origin packets are
	// counted as received, not dropped.
	GossipPacketsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "topology",
		Subsystem: "gossip",
		Name:      "packets_dropped_total",
		Help:      "Total heartbeat packets dropped by the gossip strategy",
	}, []string{"topology", "reason"})
)

// Register registers all metrics into the default Prometheus registry
// (idempotent; safe to call from multiple Supervisor instances).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(WorkerRestarts)
		prometheus.MustRegister(WorkersRunning)
		prometheus.MustRegister(MembershipSize)
		prometheus.MustRegister(ConnectResults)
		prometheus.MustRegister(DisconnectResults)
		prometheus.MustRegister(ReconcileDuration)
		prometheus.MustRegister(PollErrors)
		prometheus.MustRegister(PollDuration)
		prometheus.MustRegister(GossipPacketsSent)
		prometheus.MustRegister(GossipPacketsReceived)
		prometheus.MustRegister(GossipPacketsDropped)
	})
}
