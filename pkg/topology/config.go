package topology

// StrategyBuilder constructs a Strategy instance for a topology from its
// config. Each strategy package registers one of these under its id.
type StrategyBuilder func() Strategy

var builders = map[string]StrategyBuilder{}

// RegisterStrategy makes a strategy id available to LoadConfig /
// Supervisor.Start. Strategy packages call this from an init() func,
// mirroring how the teacher's bootstrap.Build switches on a discovery-kind
// string but without requiring this package to import every strategy.
func RegisterStrategy(id string, b StrategyBuilder) {
	builders[id] = b
}

// LookupStrategy returns the builder registered under id, if any.
func LookupStrategy(id string) (StrategyBuilder, bool) {
	b, ok := builders[id]
	return b, ok
}

// TopologyConfig is one entry of the Configuration Root: a strategy id
// bound to its private config and (optionally) a per-topology callback
// override. When a callback is left nil here, Supervisor.Start falls back
// to the Options.DefaultCallbacks supplied at Start time; if that is also
// absent, Start fails validation rather than silently defaulting to an
// ambient transport this module does not own (see DESIGN.md, Open
// Question).
type TopologyConfig struct {
	Strategy      string
	Config        Spec
	Self          Peer
	Connect       ConnectFunc
	Disconnect    DisconnectFunc
	ListConnected ListConnectedFunc
}

// Configuration is the flat mapping {topology name -> topology spec}
// supplied at Supervisor.Start.
type Configuration map[Name]TopologyConfig
