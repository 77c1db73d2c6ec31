//go:build !windows

package gossip

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// controlReuseAddrPort sets SO_REUSEADDR (all unix) and SO_REUSEPORT
// (BSD/Darwin) before bind, per spec.md §4.7. SO_REUSEPORT is a no-op
// error on platforms that define but don't honor it for UDP wildcard
// binds; such errors are intentionally ignored here since SO_REUSEADDR
// alone is sufficient on Linux.
func controlReuseAddrPort(network, address string, c syscall.RawConn) error {
	return c.Control(func(fd uintptr) {
		_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
		_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
	})
}
