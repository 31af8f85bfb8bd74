//go:build !windows

package supervisor

import (
	"os"
	"syscall"
)

var terminate os.Signal = syscall.SIGTERM
