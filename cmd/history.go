package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/creativeprojects/imapfilter/audit"
	"github.com/creativeprojects/imapfilter/term"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

const dateFormat = "2006-01-02 15:04:05 MST"

type HistoryFlags struct {
	limit     int
	pruneDays int
}

var historyFlags HistoryFlags

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Display the last decisions",
	RunE:  runHistory,
}

func init() {
	flag := historyCmd.Flags()
	flag.IntVarP(&historyFlags.limit, "limit", "l", 50, "number of decisions to display")
	flag.IntVar(&historyFlags.pruneDays, "prune", 0, "delete the decisions older than this number of days")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := audit.NewStore(config.AuditFile)
	if err != nil {
		return fmt.Errorf("cannot open audit log: %w", err)
	}
	defer store.Close()

	if historyFlags.pruneDays > 0 {
		pruned, err := store.Prune(time.Now().AddDate(0, 0, -historyFlags.pruneDays))
		if err != nil {
			return fmt.Errorf("cannot prune audit log: %w", err)
		}
		term.Infof("%d decision(s) deleted", pruned)
	}

	records, err := store.Last(historyFlags.limit)
	if err != nil {
		return fmt.Errorf("cannot read audit log: %w", err)
	}
	if len(records) == 0 {
		term.Warn("No decision recorded yet\n")
		return nil
	}
	return displayHistory(records)
}

func displayHistory(records []audit.Record) error {
	table := pterm.DefaultTable.WithBoxed(true).WithHasHeader().WithData(historyTable(records))
	return table.Render()
}

func historyTable(records []audit.Record) pterm.TableData {
	data := pterm.TableData{
		{"Date", "UID", "", "Flags", "Action", "Folder", "Sender", "Subject", "Rule"},
	}
	for _, record := range records {
		action := record.Action
		if record.DryRun {
			action += " (dry run)"
		}
		if record.Failure != "" {
			action += " FAILED"
		}
		data = append(data, []string{
			record.Date.Format(dateFormat),
			strconv.FormatUint(uint64(record.UID), 10),
			record.Code,
			record.Flags,
			action,
			record.Folder,
			shorten(record.Sender, 30),
			shorten(record.Subject, 40),
			record.Rule,
		})
	}
	return data
}

func shorten(input string, length int) string {
	runes := []rune(input)
	if len(runes) <= length {
		return input
	}
	return string(runes[:length-1]) + "…"
}
