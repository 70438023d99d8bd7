package session

import (
	"errors"
	"fmt"

	"github.com/emersion/go-imap"
)

// Stage of the connection sequence
type Stage string

const (
	StageDial       Stage = "dial"
	StageGreeting   Stage = "greeting"
	StageLogin      Stage = "login"
	StageCapability Stage = "capability"
	StageSelect     Stage = "select"
)

// ConnectError is returned by Dial. The transport is always closed.
type ConnectError struct {
	Stage Stage
	// Auth is true when the server rejected the credentials
	Auth bool
	// Retryable is false when trying again cannot succeed without a change of configuration
	Retryable bool
	Err       error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connection failed at %s: %v", e.Stage, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// CommandError is a NO or BAD completion. The session is still usable.
type CommandError struct {
	Command string
	Status  imap.StatusRespType
	Code    imap.StatusRespCode
	Text    string
}

func (e *CommandError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s [%s] %s", e.Command, e.Status, e.Code, e.Text)
	}
	return fmt.Sprintf("%s: %s %s", e.Command, e.Status, e.Text)
}

// TransportError is a failure of the byte stream: the session cannot be used anymore
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsFatal returns true when the error means the session must be dropped
func IsFatal(err error) bool {
	var transportError *TransportError
	var connectError *ConnectError
	return errors.As(err, &transportError) || errors.As(err, &connectError)
}

// HasCode returns true if the error is a command completion carrying this response code
func HasCode(err error, code imap.StatusRespCode) bool {
	var commandError *CommandError
	if errors.As(err, &commandError) {
		return commandError.Code == code
	}
	return false
}
