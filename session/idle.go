package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/creativeprojects/imapfilter/lib"
	"github.com/emersion/go-imap"
)

type IdleResult int

const (
	// IdleNewMail means the server announced new messages
	IdleNewMail IdleResult = iota
	// IdleTimeout means nothing happened before the timeout
	IdleTimeout
	// IdleInterrupted means the context was cancelled
	IdleInterrupted
)

func (r IdleResult) String() string {
	switch r {
	case IdleNewMail:
		return "new mail"
	case IdleTimeout:
		return "timeout"
	case IdleInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// idleSlice is the longest time spent waiting without checking the context
const idleSlice = time.Second

// IdleWait waits for new mail with the IDLE command, until the timeout or the
// cancellation of the context. The IDLE command is always terminated before returning.
func (s *Session) IdleWait(ctx context.Context, timeout time.Duration) (IdleResult, error) {
	if s.conn == nil {
		return IdleInterrupted, &TransportError{Op: "write", Err: lib.ErrNotConnected}
	}
	if !s.HasCapability("IDLE") {
		return IdleTimeout, lib.ErrIdleRejected
	}
	tag := s.nextTag()
	if err := s.write(tag, "IDLE"); err != nil {
		return IdleInterrupted, err
	}

	// wait for the continuation request
	for {
		resp, err := s.reader.readResponse(0)
		if err != nil {
			s.fail()
			return IdleInterrupted, &TransportError{Op: "read", Err: err}
		}
		if strings.HasPrefix(resp.text, "+") {
			break
		}
		if strings.HasPrefix(resp.text, "* ") {
			s.observe(resp)
			continue
		}
		if completion, found := strings.CutPrefix(resp.text, tag+" "); found {
			line := parseStatus(completion)
			return IdleTimeout, errors.Join(lib.ErrIdleRejected, &CommandError{
				Command: "IDLE",
				Status:  line.status,
				Code:    line.code,
				Text:    line.text,
			})
		}
	}
	s.state = Idling

	result, err := s.idle(ctx, timeout)
	if err != nil {
		s.fail()
		return result, err
	}
	if err := s.done(tag); err != nil {
		return result, err
	}
	return result, nil
}

func (s *Session) idle(ctx context.Context, timeout time.Duration) (IdleResult, error) {
	deadline := time.Now().Add(timeout)
	for {
		if ctx.Err() != nil {
			return IdleInterrupted, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return IdleTimeout, nil
		}
		resp, err := s.reader.readResponse(min(remaining, idleSlice))
		if errors.Is(err, errReadTimeout) {
			continue
		}
		if err != nil {
			return IdleInterrupted, &TransportError{Op: "read", Err: err}
		}
		if !strings.HasPrefix(resp.text, "* ") {
			continue
		}
		s.observe(resp)
		upper := strings.ToUpper(resp.text)
		if strings.Contains(upper, "RECENT") || strings.Contains(upper, "EXISTS") {
			return IdleNewMail, nil
		}
	}
}

// done terminates the IDLE command and waits for its completion
func (s *Session) done(tag string) error {
	s.log.Print("C: DONE")
	if _, err := s.conn.Write([]byte("DONE\r\n")); err != nil {
		s.fail()
		return &TransportError{Op: "write", Err: err}
	}
	for {
		resp, err := s.reader.readResponse(0)
		if err != nil {
			s.fail()
			return &TransportError{Op: "read", Err: err}
		}
		if strings.HasPrefix(resp.text, "* ") {
			s.observe(resp)
			continue
		}
		completion, found := strings.CutPrefix(resp.text, tag+" ")
		if !found {
			continue
		}
		s.state = Selected
		line := parseStatus(completion)
		if line.status != imap.StatusRespOk {
			return &CommandError{Command: "IDLE", Status: line.status, Code: line.code, Text: line.text}
		}
		return nil
	}
}
