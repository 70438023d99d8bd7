package rules

import (
	"strings"

	"github.com/emersion/go-message/mail"
)

// Set is a read-only snapshot of the classification configuration.
// A new snapshot replaces the old one between two synchronization passes.
type Set struct {
	Whitelist List
	Blacklist List
	Graylist  List
	Folders   List
	// Self contains the addresses of the mailbox owner
	Self []string

	SpamFolder string
	GrayFolder string
	// DropFolder receives messages with risky attachments. Empty means delete them.
	DropFolder      string
	DropAttachments bool
}

// IsSelf returns true if the address is one of the owner's addresses
func (s *Set) IsSelf(address string) bool {
	address = normalizeAddress(address)
	if address == "" {
		return false
	}
	for _, self := range s.Self {
		if normalizeAddress(self) == address {
			return true
		}
	}
	return false
}

// Destinations lists every folder a verdict can move a message to
func (s *Set) Destinations() []string {
	folders := s.Folders.Folders()
	for _, folder := range []string{s.SpamFolder, s.GrayFolder, s.DropFolder} {
		if folder != "" {
			folders = append(folders, folder)
		}
	}
	return unique(folders)
}

func normalizeAddress(address string) string {
	address = strings.TrimSpace(address)
	if parsed, err := mail.ParseAddress(address); err == nil {
		address = parsed.Address
	}
	return strings.ToLower(strings.Trim(address, "<>"))
}

func unique(input []string) []string {
	seen := make(map[string]bool, len(input))
	output := make([]string, 0, len(input))
	for _, item := range input {
		if seen[item] {
			continue
		}
		seen[item] = true
		output = append(output, item)
	}
	return output
}
