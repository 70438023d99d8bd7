package runner

import (
	"context"
	"time"

	"github.com/creativeprojects/imapfilter/audit"
	"github.com/creativeprojects/imapfilter/classify"
	"github.com/creativeprojects/imapfilter/cursor"
	"github.com/creativeprojects/imapfilter/dispatch"
	"github.com/creativeprojects/imapfilter/learn"
	"github.com/creativeprojects/imapfilter/session"
)

// Mailbox is the connected session the run loop drives
type Mailbox interface {
	dispatch.Mailbox
	SearchNewUIDs(since uint32) ([]uint32, bool, error)
	FetchHeader(uid uint32) ([]byte, error)
	Expunge() error
	Noop() error
	IdleWait(ctx context.Context, timeout time.Duration) (session.IdleResult, error)
	HasCapability(name string) bool
	UIDValidity() uint32
	ValidityChanged() bool
	Logout() error
}

// Connector opens a new session, logged in with the mailbox selected
type Connector func(ctx context.Context) (Mailbox, error)

// CursorStore persists the cursor between runs
type CursorStore interface {
	Load() (cursor.Cursor, error)
	Save(c cursor.Cursor) error
}

// Recorder keeps the decisions
type Recorder interface {
	Record(record audit.Record) error
}

// Learner receives the headers of unwanted messages
type Learner interface {
	Wants(verdict classify.Verdict) bool
	Deliver(uid uint32, header []byte, verdict classify.Verdict) error
}

// SessionConnector dials a real session
func SessionConnector(config session.Config) Connector {
	return func(ctx context.Context) (Mailbox, error) {
		s, err := session.Dial(ctx, config)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

var (
	_ Mailbox     = (*session.Session)(nil)
	_ CursorStore = (*cursor.Store)(nil)
	_ Recorder    = (*audit.Store)(nil)
	_ Learner     = (*learn.Sink)(nil)
)
