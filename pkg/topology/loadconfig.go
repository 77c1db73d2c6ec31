package topology

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors the on-disk shape described in spec.md §6:
//
//	topologies:
//	  dns1:
//	    strategy: dns_poll_a
//	    config:
//	      query: my-service.default.svc.cluster.local
//	      node_basename: app
type fileConfig struct {
	Topologies map[string]fileTopology `yaml:"topologies"`
}

type fileTopology struct {
	Strategy string `yaml:"strategy"`
	Config   Spec   `yaml:"config"`
}

// LoadConfig reads a YAML file into a Configuration. Callback functions
// cannot be expressed in the file format; callers fill them in afterward
// (or rely on Options.DefaultCallbacks at Start time). Unknown top-level
// keys are rejected.
func LoadConfig(path string) (Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("topology: reading config %q: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var fc fileConfig
	if err := dec.Decode(&fc); err != nil {
		return nil, fmt.Errorf("topology: parsing config %q: %w", path, err)
	}
	cfg := make(Configuration, len(fc.Topologies))
	for name, t := range fc.Topologies {
		if t.Strategy == "" {
			return nil, fmt.Errorf("topology: %q: missing strategy", name)
		}
		cfg[Name(name)] = TopologyConfig{Strategy: t.Strategy, Config: t.Config}
	}
	return cfg, nil
}
