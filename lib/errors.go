package lib

import "errors"

var (
	ErrMailboxNotFound = errors.New("mailbox not found")
	ErrNotSelected     = errors.New("mailbox not selected")
	ErrNotConnected    = errors.New("not connected")
	ErrMissingServer   = errors.New("missing server address")
	ErrMissingUser     = errors.New("missing user name")
	ErrNoHeader        = errors.New("no header in fetch response")
	ErrIdleRejected    = errors.New("server refused IDLE")
)
