// Package cursor keeps the synchronization watermark of a mailbox: every message
// with a UID below LastSeenUID has already been classified.
package cursor

import "fmt"

// FirstUID is the smallest UID a server can assign
const FirstUID uint32 = 1

type Cursor struct {
	LastSeenUID uint32
	// UIDValidity is zero until the server told us about it
	UIDValidity uint32
}

// New returns a cursor starting from the first UID of an unknown epoch
func New() Cursor {
	return Cursor{LastSeenUID: FirstUID}
}

// Advance moves the watermark past uid. It never moves backwards.
func (c *Cursor) Advance(uid uint32) {
	if uid+1 > c.LastSeenUID {
		c.LastSeenUID = uid + 1
	}
}

// Observe reconciles the cursor with the UIDVALIDITY announced by the server.
// It returns true when the epoch changed, in which case the cursor is
// rewound to the first UID.
func (c *Cursor) Observe(uidValidity uint32) bool {
	if uidValidity == 0 || uidValidity == c.UIDValidity {
		return false
	}
	if c.UIDValidity == 0 {
		// first time we hear about it: the UIDs we have are from this epoch
		c.UIDValidity = uidValidity
		return false
	}
	c.UIDValidity = uidValidity
	c.LastSeenUID = FirstUID
	return true
}

func (c Cursor) String() string {
	return fmt.Sprintf("%d:%d", c.LastSeenUID, c.UIDValidity)
}
