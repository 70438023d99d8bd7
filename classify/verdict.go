// Package classify decides what to do with a message from its header only.
// Nothing in this package does any I/O.
package classify

import (
	"fmt"

	"github.com/creativeprojects/imapfilter/rules"
)

type Action int

const (
	Keep Action = iota
	Move
	MarkReadAndMove
	Delete
)

func (a Action) String() string {
	switch a {
	case Keep:
		return "keep"
	case Move:
		return "move"
	case MarkReadAndMove:
		return "read+move"
	case Delete:
		return "delete"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Flags record what the engine saw while reading the header
type Flags uint16

const (
	SawFrom Flags = 1 << iota
	SawDate
	IsHam
	IsIgnored
	IsSpam
	FromSelf
	Attachment
)

var flagLetters = []struct {
	flag   Flags
	letter byte
}{
	{SawFrom, 'F'},
	{SawDate, 'D'},
	{IsHam, 'H'},
	{IsIgnored, 'I'},
	{IsSpam, 'S'},
	{FromSelf, 'M'},
	{Attachment, 'A'},
}

func (f Flags) Has(flag Flags) bool {
	return f&flag == flag
}

// String returns one letter per flag, or '-' when not set: "FDH----"
func (f Flags) String() string {
	output := make([]byte, len(flagLetters))
	for i, def := range flagLetters {
		output[i] = '-'
		if f.Has(def.flag) {
			output[i] = def.letter
		}
	}
	return string(output)
}

// Decision codes, as written in the audit log
const (
	CodeIgnored  = 'I'
	CodeHam      = 'H'
	CodeSpam     = 'S'
	CodeDropped  = 'D'
	CodeDefault  = 'h'
	CodeFiltered = 'f'
)

// Verdict is the decision taken for one message
type Verdict struct {
	Action Action
	// Folder is the destination of Move and MarkReadAndMove
	Folder string
	// Rule which triggered the decision (nil when no rule matched)
	Rule  *rules.Rule
	Code  byte
	Flags Flags
	// Reason is a short description for the logs
	Reason string
}

func (v Verdict) String() string {
	output := fmt.Sprintf("%c %s %s", v.Code, v.Flags, v.Action)
	if v.Folder != "" {
		output += " " + v.Folder
	}
	output += " (" + v.Reason
	if v.Rule != nil {
		output += fmt.Sprintf(" %q", v.Rule.String())
	}
	return output + ")"
}

// Mutates returns true if the verdict changes the mailbox
func (v Verdict) Mutates() bool {
	return v.Action != Keep
}
