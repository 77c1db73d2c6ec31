package metrics

import "testing"

func TestRegisterIsIdempotent(t *testing.T) {
	Register()
	Register()
}

func TestCounterVecsAcceptLabels(t *testing.T) {
	WorkerRestarts.WithLabelValues("topo").Inc()
	PollErrors.WithLabelValues("topo", "config").Inc()
	GossipPacketsDropped.WithLabelValues("topo", "decrypt").Inc()
}
