//go:build !windows

package cmd

import (
	"os"
	"syscall"
)

var reloadSignals = []os.Signal{syscall.SIGHUP, syscall.SIGUSR1}
