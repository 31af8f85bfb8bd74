//go:build windows

package supervisor

import "os"

// Windows has no SIGTERM; Stop falls back to Kill when the interrupt is refused.
var terminate os.Signal = os.Interrupt
