package lib

import (
	"strings"

	"github.com/emersion/go-imap"
)

// FormatFlags returns the parenthesized list used by STORE, without the \Recent flag
// which cannot be set by a client
func FormatFlags(source []string) string {
	output := make([]string, 0, len(source))
	for _, flag := range source {
		if flag == imap.RecentFlag {
			continue
		}
		output = append(output, flag)
	}
	return "(" + strings.Join(output, " ") + ")"
}
