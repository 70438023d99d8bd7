//go:build windows

package cmd

import "os"

// no reload signal on Windows
var reloadSignals = []os.Signal{}
