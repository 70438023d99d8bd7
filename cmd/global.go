package cmd

import (
	"fmt"

	"github.com/creativeprojects/imapfilter/cfg"
	"github.com/creativeprojects/imapfilter/lib"
	"github.com/creativeprojects/imapfilter/term"
)

// ExitDryRun is the exit code after a dry run
const ExitDryRun = 42

type GlobalFlags struct {
	configFile string
	quiet      bool
	verbose    bool
}

var global GlobalFlags

// exitCodeError stops the program with a specific exit code
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit code %d", e.code)
	}
	return e.err.Error()
}

func (e *exitCodeError) Unwrap() error {
	return e.err
}

// loadConfig reads the configuration file given on the command line
func loadConfig() (*cfg.Config, error) {
	config, err := cfg.LoadFromFile(global.configFile)
	if err != nil {
		return nil, fmt.Errorf("cannot open or read configuration file: %w", err)
	}
	return config, nil
}

// debugLogger returns a logger displaying the protocol traces in verbose mode
func debugLogger(prefix string) lib.Logger {
	if !global.verbose {
		return nil
	}
	return term.NewLogger(term.LevelDebug, prefix)
}
