//go:build !linux && !darwin

package cellular

import (
	"fmt"
	"net"
	"runtime"
)

func bindControl(ifi *net.Interface) (controlFunc, error) {
	return nil, fmt.Errorf("binding to interface %s is not supported on %s", ifi.Name, runtime.GOOS)
}
