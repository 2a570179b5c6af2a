//go:build linux

package cellular

import (
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// bindControl pins sockets to the interface with SO_BINDTODEVICE so the
// kernel never routes them through another link.
func bindControl(ifi *net.Interface) (controlFunc, error) {
	name := ifi.Name
	return func(_, _ string, c syscall.RawConn) error {
		var serr error
		if err := c.Control(func(fd uintptr) {
			serr = unix.SetsockoptString(int(fd), unix.SOL_SOCKET, unix.SO_BINDTODEVICE, name)
		}); err != nil {
			return err
		}
		if serr != nil {
			return fmt.Errorf("bind socket to %s: %w", name, serr)
		}
		return nil
	}, nil
}
