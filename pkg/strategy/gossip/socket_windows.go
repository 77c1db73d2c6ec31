//go:build windows

package gossip

import "syscall"

// controlReuseAddrPort is a no-op on windows: SO_REUSEPORT has no
// equivalent, and Go's net package already sets SO_REUSEADDR-like
// exclusive-address-use semantics by default.
func controlReuseAddrPort(network, address string, c syscall.RawConn) error {
	return nil
}
