package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/creativeprojects/imapfilter/rules"
	"github.com/spf13/cobra"
)

var regexCmd = &cobra.Command{
	Use:   "regex <pattern>",
	Short: "Test a regular expression rule against the lines read from stdin",
	Long:  "\nTest a regular expression rule against the lines read from stdin.\nThe pattern is matched without case, like a rule starting with \"+\" in the configuration.",
	Args:  cobra.ExactArgs(1),
	RunE:  runRegex,
}

func init() {
	rootCmd.AddCommand(regexCmd)
}

func runRegex(cmd *cobra.Command, args []string) error {
	pattern := rules.RegexPrefix + strings.TrimPrefix(args[0], rules.RegexPrefix)
	rule, err := rules.New(pattern)
	if err != nil {
		return err
	}
	matched, err := matchLines(rule, os.Stdin, os.Stdout)
	if err != nil {
		return err
	}
	if matched == 0 {
		return &exitCodeError{code: 1, err: fmt.Errorf("no line matched %s", rule)}
	}
	return nil
}

// matchLines writes the lines matched by the rule, and returns how many
func matchLines(rule *rules.Rule, input io.Reader, output io.Writer) (int, error) {
	matched := 0
	scanner := bufio.NewScanner(input)
	for scanner.Scan() {
		line := scanner.Text()
		if rule.Matches(line) {
			matched++
			fmt.Fprintln(output, line)
		}
	}
	return matched, scanner.Err()
}
