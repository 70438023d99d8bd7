package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/creativeprojects/imapfilter/cfg"
	"github.com/creativeprojects/imapfilter/remote"
	"github.com/creativeprojects/imapfilter/term"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var checkCreate bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the destination folders exist on the server",
	RunE:  runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&checkCreate, "create", false, "create the missing folders")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	backend, err := openRemote(config)
	if err != nil {
		return err
	}
	defer backend.Close()

	caps, err := backend.Capabilities()
	if err != nil {
		return fmt.Errorf("cannot read server capabilities: %w", err)
	}
	term.Infof("server capabilities: %s", strings.Join(caps, " "))
	if !contains(caps, "IDLE") {
		term.Warnf("the server does not support IDLE: polling every %s", config.PollInterval)
	}

	folders := config.CheckedFolders()
	missing, err := backend.MissingMailboxes(folders)
	if err != nil {
		return fmt.Errorf("cannot list folders: %w", err)
	}

	table := pterm.DefaultTable.WithHasHeader().WithData(pterm.TableData{
		{"Folder", "Messages", "Flags"},
	})
	for _, folder := range folders {
		if contains(missing, folder) {
			if !checkCreate {
				table.Data = append(table.Data, []string{folder, "missing", ""})
				continue
			}
			if err := backend.CreateMailbox(folder); err != nil {
				term.Errorf("cannot create folder %q: %s", folder, err)
				table.Data = append(table.Data, []string{folder, "missing", ""})
				continue
			}
			term.Infof("created folder %q", folder)
		}
		var messages, flags string
		status, err := backend.SelectMailbox(folder)
		if err == nil {
			messages = strconv.FormatUint(uint64(status.Messages), 10)
			flags = displayFlags(status.Flags)
		}
		table.Data = append(table.Data, []string{folder, messages, flags})
	}
	if err := table.Render(); err != nil {
		return err
	}
	if len(missing) > 0 && !checkCreate {
		return fmt.Errorf("%d folder(s) missing: %s", len(missing), strings.Join(missing, ", "))
	}
	return nil
}

// openRemote connects the folder management client
func openRemote(config *cfg.Config) (*remote.Imap, error) {
	if err := config.ResolvePassword(); err != nil {
		return nil, err
	}
	backend, err := remote.NewImap(remote.Config{
		ServerURL:           config.Address(),
		Username:            config.User,
		Password:            config.Password,
		DebugLogger:         debugLogger("imap"),
		NoTLS:               config.TLS.Disabled,
		SkipTLSVerification: config.TLS.SkipVerify,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot open connection: %w", err)
	}
	return backend, nil
}

func displayFlags(source []string) string {
	flags := make([]string, len(source))
	for i, flag := range source {
		flags[i] = strings.TrimPrefix(flag, "\\")
	}
	return strings.Join(flags, ", ")
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if strings.EqualFold(item, value) {
			return true
		}
	}
	return false
}
