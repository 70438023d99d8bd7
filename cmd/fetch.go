package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/creativeprojects/imapfilter/classify"
	"github.com/creativeprojects/imapfilter/session"
	"github.com/creativeprojects/imapfilter/term"
	"github.com/spf13/cobra"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <uid>",
	Short: "Display the header of one message and the decision for it",
	Args:  cobra.ExactArgs(1),
	RunE:  runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	uid, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil || uid == 0 {
		return fmt.Errorf("invalid uid %q", args[0])
	}
	config, err := loadConfig()
	if err != nil {
		return err
	}
	if err := config.ResolvePassword(); err != nil {
		return err
	}
	set, err := config.RuleSet()
	if err != nil {
		return err
	}

	s, err := session.Dial(cmd.Context(), config.SessionConfig(debugLogger("imap")))
	if err != nil {
		return err
	}
	defer s.Logout()

	raw, err := s.FetchHeader(uint32(uid))
	if err != nil {
		return fmt.Errorf("cannot fetch uid %d: %w", uid, err)
	}
	_, _ = os.Stdout.Write(raw)

	header := classify.ParseHeader(raw)
	verdict := classify.Classify(header, header.Sender, set)
	term.Infof("uid %d: %s", uid, verdict)
	return nil
}
