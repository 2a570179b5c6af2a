//go:build darwin

package cellular

import (
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// bindControl scopes sockets to the interface index with IP_BOUND_IF, or
// IPV6_BOUND_IF for IPv6 sockets.
func bindControl(ifi *net.Interface) (controlFunc, error) {
	index, name := ifi.Index, ifi.Name
	return func(network, _ string, c syscall.RawConn) error {
		var serr error
		if err := c.Control(func(fd uintptr) {
			switch network {
			case "tcp6", "udp6":
				serr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_BOUND_IF, index)
			default:
				serr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_BOUND_IF, index)
			}
		}); err != nil {
			return err
		}
		if serr != nil {
			return fmt.Errorf("bind socket to %s: %w", name, serr)
		}
		return nil
	}, nil
}
