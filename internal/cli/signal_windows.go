//go:build windows

package cli

import (
	"os"
)

// shutdownSignals stop a running command. Windows has no SIGTERM;
// os.Interrupt covers Ctrl+C and CTRL_BREAK_EVENT.
var shutdownSignals = []os.Signal{os.Interrupt}
