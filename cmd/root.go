package cmd

import (
	"errors"
	"os"

	"github.com/creativeprojects/imapfilter/term"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "imapfilter",
	Short:         "Watch an IMAP mailbox and sort the new messages",
	Long:          "\nWatch an IMAP mailbox and sort the new messages: keep, move to a folder, mark as read or delete",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initLog)
	flag := rootCmd.PersistentFlags()
	flag.StringVarP(&global.configFile, "config", "c", "imapfilter.yaml", "configuration file (yaml or toml)")
	flag.BoolVarP(&global.quiet, "quiet", "q", false, "only display warnings and errors")
	flag.BoolVarP(&global.verbose, "verbose", "v", false, "display debugging information")
}

func initLog() {
	switch {
	case global.verbose:
		term.SetLevel(term.LevelDebug)
	case global.quiet:
		term.SetLevel(term.LevelWarn)
	}
}

func Execute(version, commit, date, builtBy string) {
	setApp(version, commit, date, builtBy)
	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		var exitCode *exitCodeError
		if errors.As(err, &exitCode) {
			if exitCode.err != nil {
				term.Error(exitCode.err)
			}
			os.Exit(exitCode.code)
		}
		term.Error(err)
		os.Exit(1)
	}
}
