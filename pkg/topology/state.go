package topology

import "log"

// Spec is the strategy-private configuration carried in a topology's
// definition, as read from the configuration root (see LoadConfig).
type Spec map[string]any

// String returns the string option named key, defaulting to def if it is
// absent or not a string.
func (s Spec) String(key string, def string) string {
	v, ok := s[key]
	if !ok {
		return def
	}
	str, ok := v.(string)
	if !ok {
		return def
	}
	return str
}

// Bool returns the bool option named key, defaulting to def.
func (s Spec) Bool(key string, def bool) bool {
	v, ok := s[key]
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

// Int returns the int option named key, defaulting to def. Accepts both
// int and float64 (the latter from decoded YAML/JSON numbers).
func (s Spec) Int(key string, def int) int {
	v, ok := s[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return def
	}
}

// StringSlice returns the []string option named key.
func (s Spec) StringSlice(key string) []string {
	v, ok := s[key]
	if !ok {
		return nil
	}
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, e := range vv {
			if str, ok := e.(string); ok {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}

// State is the immutable-by-others record a Worker owns for the lifetime
// of a topology. Only the strategy's own Worker goroutine may mutate Meta;
// everything else is set once at construction time by the Supervisor.
type State struct {
	Topology  Name
	Callbacks Callbacks
	Config    Spec
	Self      Peer
	Logger    *log.Logger

	// Meta is strategy-private payload (socket handle, cached hostnames,
	// last-seen timestamps, ...). Strategies type-assert their own shape.
	Meta any
}
