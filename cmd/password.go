package cmd

import (
	"bufio"
	"errors"
	"os"
	"strings"

	"github.com/creativeprojects/imapfilter/term"
	"github.com/spf13/cobra"
)

var passwordCmd = &cobra.Command{
	Use:   "password",
	Short: "Save the password of the account in the system keyring (read from stdin)",
	RunE:  runPassword,
}

func init() {
	rootCmd.AddCommand(passwordCmd)
}

func runPassword(cmd *cobra.Command, args []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	term.Infof("password for %s:", config.KeyringKey())
	password, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && password == "" {
		return err
	}
	password = strings.TrimRight(password, "\r\n")
	if password == "" {
		return errors.New("empty password")
	}
	if err := config.StorePassword(password); err != nil {
		return err
	}
	if !config.PasswordKeyring {
		term.Warn("add \"password_keyring: true\" to the configuration to use it")
	}
	return nil
}
