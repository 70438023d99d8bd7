package mailbox

import "strings"

// InboxName is the special (case insensitive) name of the inbox
const InboxName = "INBOX"

type Info struct {
	// The server's path separator.
	Delimiter string
	// The mailbox name.
	Name string
	// The mailbox attributes (\Noselect, \HasChildren, etc.)
	Attributes []string
}

// Exists returns true when a mailbox of that name is in the list.
// The inbox name is compared without case, as required by RFC 3501.
func Exists(name string, in []Info) bool {
	for _, mbox := range in {
		if mbox.Name == name {
			return true
		}
		if strings.EqualFold(name, InboxName) && strings.EqualFold(mbox.Name, InboxName) {
			return true
		}
	}
	return false
}

// Selectable is false when the server flagged the mailbox with \Noselect
func (i Info) Selectable() bool {
	for _, attr := range i.Attributes {
		if strings.EqualFold(attr, `\Noselect`) || strings.EqualFold(attr, `\NonExistent`) {
			return false
		}
	}
	return true
}
