//go:build !windows

package cli

import (
	"os"
	"syscall"
)

// shutdownSignals stop a running command: the consumer drains records
// already read, the producer reports its partial count.
var shutdownSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
