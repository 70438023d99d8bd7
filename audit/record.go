package audit

import (
	"fmt"
	"time"
)

// Record is one classification decision
type Record struct {
	RunID       string
	Date        time.Time
	Mailbox     string
	UID         uint32
	UIDValidity uint32
	Sender      string
	Subject     string
	// Code is the decision letter (I, H, S, D, h or f)
	Code string
	// Flags are the letters of what was seen in the header
	Flags  string
	Action string
	Folder string
	Rule   string
	Reason string
	DryRun bool
	// Failure is the error returned by the server when the action failed
	Failure string
}

func (r Record) String() string {
	return fmt.Sprintf("%s uid=%d %s %s %s %q", r.Code, r.UID, r.Flags, r.Action, r.Folder, r.Subject)
}
