package cmd

import (
	"fmt"
	"time"

	"github.com/creativeprojects/imapfilter/cfg"
	"github.com/creativeprojects/imapfilter/remote"
	"github.com/creativeprojects/imapfilter/term"
	"github.com/spf13/cobra"
)

var cleanDays int

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete old messages from the folders listed in the clean section",
	RunE:  runClean,
}

func init() {
	cleanCmd.Flags().IntVar(&cleanDays, "days", 0, "delete messages sent more than this number of days ago (overrides the configuration)")
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	days := config.Clean.Days
	if cleanDays != 0 {
		days = cleanDays
	}
	if days < cfg.MinCleanDays {
		return fmt.Errorf("cannot clean messages more recent than %d days", cfg.MinCleanDays)
	}
	if len(config.Clean.Folders) == 0 {
		term.Warn("no folder to clean")
		return nil
	}

	backend, err := openRemote(config)
	if err != nil {
		return err
	}
	defer backend.Close()

	before := time.Now().AddDate(0, 0, -days)
	term.Infof("deleting messages sent before %s", before.Format(dateFormat))
	total := 0
	for _, folder := range config.Clean.Folders {
		var pbar *progresser
		deleted, err := backend.CleanMailbox(cmd.Context(), folder, before, func(count int) remote.Progresser {
			pbar = startProgress(folder, count)
			return pbar
		})
		if pbar != nil {
			pbar.Stop()
		}
		if err != nil {
			// display error but keep going
			term.Error(err.Error())
			continue
		}
		term.Infof("%s: %d message(s) deleted", folder, deleted)
		total += deleted
	}
	term.Infof("%d message(s) deleted", total)
	return nil
}
