package topology

import "fmt"

// errMissingCallback reports which of the three required callbacks was nil.
func errMissingCallback(which string) error {
	return fmt.Errorf("topology: missing required callback %q (no ambient fallback; see Open Question in DESIGN.md)", which)
}

// ConfigError describes a strategy-level configuration problem (missing
// or ill-typed option). The strategies in this module do not construct
// it: they log such problems directly at warn on every tick and otherwise
// "do nothing" rather than crashing the worker.
type ConfigError struct {
	Topology Name
	Option   string
	Reason   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("topology[%s]: config error: option %q: %s", e.Topology, e.Option, e.Reason)
}
