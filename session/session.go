// Package session speaks just enough IMAP to watch one mailbox: login, select, search new
// UIDs, fetch headers, move messages around and wait for new mail with IDLE.
// It runs one command at a time and is not safe for concurrent use.
package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/creativeprojects/imapfilter/lib"
	"github.com/creativeprojects/imapfilter/mailbox"
	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/utf7"
)

const (
	DefaultPort     = 993
	DefaultMaxBatch = 100
)

type State int

const (
	Disconnected State = iota
	Connecting
	Authenticating
	Selected
	Idling
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Authenticating:
		return "authenticating"
	case Selected:
		return "selected"
	case Idling:
		return "idling"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	// Mailbox to select, INBOX by default
	Mailbox string
	// MaxBatch caps the number of UIDs returned by one search
	MaxBatch int
	// Dialer opens the transport, a TLS NetDialer by default
	Dialer Dialer
	// Logger receives the protocol trace
	Logger lib.Logger
}

type Session struct {
	conn            Conn
	reader          *reader
	log             lib.Logger
	state           State
	tagCounter      int
	maxBatch        int
	password        string
	capabilities    map[string]bool
	status          mailbox.Status
	validityChanged bool
	newMail         bool
}

// Dial connects, logs in and selects the mailbox. On error the transport is closed
// and the error is a *ConnectError.
func Dial(ctx context.Context, config Config) (*Session, error) {
	if config.Host == "" {
		return nil, &ConnectError{Stage: StageDial, Err: lib.ErrMissingServer}
	}
	if config.Username == "" {
		return nil, &ConnectError{Stage: StageLogin, Auth: true, Err: lib.ErrMissingUser}
	}
	if err := ctx.Err(); err != nil {
		return nil, &ConnectError{Stage: StageDial, Retryable: true, Err: err}
	}
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	if config.Mailbox == "" {
		config.Mailbox = mailbox.InboxName
	}
	if config.MaxBatch <= 0 {
		config.MaxBatch = DefaultMaxBatch
	}
	dialer := config.Dialer
	if dialer == nil {
		dialer = &NetDialer{}
	}
	log := lib.OrNoLog(config.Logger)

	address := net.JoinHostPort(config.Host, strconv.Itoa(config.Port))
	log.Printf("Connecting to %s...", address)
	conn, err := dialer.Dial(ctx, address)
	if err != nil {
		return nil, &ConnectError{Stage: StageDial, Retryable: true, Err: err}
	}
	s := newSession(conn, log, config.MaxBatch)
	s.password = config.Password

	if err := s.connect(config); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func newSession(conn Conn, log lib.Logger, maxBatch int) *Session {
	return &Session{
		conn:         conn,
		reader:       newReader(conn, log),
		log:          log,
		state:        Connecting,
		maxBatch:     maxBatch,
		capabilities: make(map[string]bool),
	}
}

func (s *Session) connect(config Config) error {
	greeting, err := s.reader.readResponse(0)
	if err != nil {
		return &ConnectError{Stage: StageGreeting, Retryable: true, Err: &TransportError{Op: "read", Err: err}}
	}
	s.observe(greeting)
	line := parseStatus(strings.TrimPrefix(greeting.text, "* "))
	switch line.status {
	case imap.StatusRespOk:
		s.state = Authenticating
	case imap.StatusRespPreauth:
		s.state = Authenticating
	default:
		return &ConnectError{Stage: StageGreeting, Retryable: true, Err: fmt.Errorf("unexpected greeting: %s %s", line.status, line.text)}
	}

	if line.status != imap.StatusRespPreauth {
		if s.HasCapability("LOGINDISABLED") {
			return &ConnectError{Stage: StageLogin, Auth: true, Err: errors.New("login is disabled by the server")}
		}
		_, err = s.execute(fmt.Sprintf("LOGIN %s %s", quote(config.Username), quote(config.Password)))
		if err != nil {
			auth := !IsFatal(err)
			return &ConnectError{Stage: StageLogin, Auth: auth, Retryable: !auth, Err: err}
		}
		s.log.Printf("Logged in as %s", config.Username)
	}

	// capabilities can change after login
	if _, err = s.execute("CAPABILITY"); err != nil {
		return &ConnectError{Stage: StageCapability, Retryable: true, Err: err}
	}

	s.status = mailbox.Status{Name: config.Mailbox}
	if _, err = s.execute("SELECT " + quote(encodeMailbox(config.Mailbox))); err != nil {
		return &ConnectError{Stage: StageSelect, Retryable: true, Err: err}
	}
	// the first UIDVALIDITY seen is the reference
	s.validityChanged = false
	s.newMail = false
	s.state = Selected
	s.log.Printf("Selected %q: %d messages, uidvalidity %d, uidnext %d", s.status.Name, s.status.Messages, s.status.UidValidity, s.status.UidNext)
	return nil
}

func (s *Session) State() State {
	return s.state
}

// Status returns the state of the selected mailbox as last reported by the server
func (s *Session) Status() mailbox.Status {
	return s.status
}

func (s *Session) UIDValidity() uint32 {
	return s.status.UidValidity
}

// ValidityChanged reports whether the server announced a different UIDVALIDITY
// since the last call. The signal is cleared by the call.
func (s *Session) ValidityChanged() bool {
	changed := s.validityChanged
	s.validityChanged = false
	return changed
}

func (s *Session) HasCapability(name string) bool {
	return s.capabilities[strings.ToUpper(name)]
}

// Capabilities returns the sorted list of capabilities announced by the server
func (s *Session) Capabilities() []string {
	list := make([]string, 0, len(s.capabilities))
	for name := range s.capabilities {
		list = append(list, name)
	}
	sort.Strings(list)
	return list
}

// Logout says goodbye to the server and closes the transport
func (s *Session) Logout() error {
	if s.state == Disconnected {
		return nil
	}
	_, err := s.execute("LOGOUT")
	if errors.Is(err, errClosed) {
		err = nil
	}
	s.Close()
	return err
}

// Close drops the transport without saying goodbye
func (s *Session) Close() {
	if s.state == Disconnected && s.conn == nil {
		return
	}
	s.state = Disconnected
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

var errClosed = errors.New("connection closed")

// execute sends one command and waits for its tagged completion. The untagged
// responses received in the meantime are returned.
func (s *Session) execute(command string) ([]*response, error) {
	if s.conn == nil {
		return nil, &TransportError{Op: "write", Err: lib.ErrNotConnected}
	}
	tag := s.nextTag()
	if err := s.write(tag, command); err != nil {
		return nil, err
	}
	name := commandName(command)
	untagged := make([]*response, 0, 1)
	for {
		resp, err := s.reader.readResponse(0)
		if err != nil {
			if name == "LOGOUT" {
				// the server is allowed to close right after the BYE
				return untagged, errClosed
			}
			s.fail()
			return untagged, &TransportError{Op: "read", Err: err}
		}
		if strings.HasPrefix(resp.text, "* ") {
			s.observe(resp)
			untagged = append(untagged, resp)
			continue
		}
		if strings.HasPrefix(resp.text, "+") {
			// nothing we send needs a continuation
			continue
		}
		completion, found := strings.CutPrefix(resp.text, tag+" ")
		if !found {
			s.log.Printf("ignoring unexpected line: %q", resp.text)
			continue
		}
		line := parseStatus(completion)
		s.observeCode(line)
		if line.status == imap.StatusRespOk {
			return untagged, nil
		}
		return untagged, &CommandError{
			Command: name,
			Status:  line.status,
			Code:    line.code,
			Text:    line.text,
		}
	}
}

func (s *Session) write(tag, command string) error {
	if strings.HasPrefix(command, "LOGIN ") && s.password != "" {
		s.log.Printf("C: %s %s", tag, strings.Replace(command, quote(s.password), "****", 1))
	} else {
		s.log.Printf("C: %s %s", tag, command)
	}
	_, err := s.conn.Write([]byte(tag + " " + command + "\r\n"))
	if err != nil {
		s.fail()
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

func (s *Session) fail() {
	s.Close()
}

func (s *Session) nextTag() string {
	s.tagCounter++
	return fmt.Sprintf("a%03d", s.tagCounter)
}

// observe picks up the mailbox state from any untagged response
func (s *Session) observe(resp *response) {
	fields := strings.Fields(strings.TrimPrefix(resp.text, "* "))
	if len(fields) == 0 {
		return
	}
	if number, err := strconv.ParseUint(fields[0], 10, 32); err == nil && len(fields) > 1 {
		switch strings.ToUpper(fields[1]) {
		case "EXISTS":
			if uint32(number) > s.status.Messages && s.state >= Selected {
				s.newMail = true
			}
			s.status.Messages = uint32(number)
		case "EXPUNGE":
			if s.status.Messages > 0 {
				s.status.Messages--
			}
		case "RECENT":
			s.status.Recent = uint32(number)
			if number > 0 && s.state >= Selected {
				s.newMail = true
			}
		}
		return
	}
	switch strings.ToUpper(fields[0]) {
	case "CAPABILITY":
		s.setCapabilities(fields[1:])
	case "FLAGS":
		s.status.Flags = parseList(strings.TrimPrefix(strings.TrimSpace(strings.TrimPrefix(resp.text, "* ")), fields[0]))
	case "OK", "NO", "BAD", "PREAUTH", "BYE":
		s.observeCode(parseStatus(strings.TrimPrefix(resp.text, "* ")))
	}
}

func (s *Session) observeCode(line statusLine) {
	args := line.args
	switch line.code {
	case imap.CodeUidValidity:
		if value, ok := parseNumber(args); ok {
			s.observeValidity(value)
		}
	case imap.CodeUidNext:
		if value, ok := parseNumber(args); ok {
			s.status.UidNext = value
		}
	case imap.CodePermanentFlags:
		s.status.PermanentFlags = parseList(args)
	case imap.CodeReadOnly:
		s.status.ReadOnly = true
	case imap.CodeReadWrite:
		s.status.ReadOnly = false
	case imap.CodeCapability:
		s.setCapabilities(strings.Fields(args))
	}
}

func (s *Session) observeValidity(value uint32) {
	if value == 0 {
		return
	}
	if s.status.UidValidity != 0 && s.status.UidValidity != value {
		s.log.Printf("UIDVALIDITY changed from %d to %d", s.status.UidValidity, value)
		s.validityChanged = true
	}
	s.status.UidValidity = value
}

func (s *Session) setCapabilities(names []string) {
	s.capabilities = make(map[string]bool, len(names))
	for _, name := range names {
		s.capabilities[strings.ToUpper(name)] = true
	}
}

func encodeMailbox(name string) string {
	encoded, err := utf7.Encoding.NewEncoder().String(name)
	if err != nil {
		return name
	}
	return encoded
}

// quote returns an IMAP quoted string
func quote(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + replacer.Replace(value) + `"`
}

func commandName(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	name := strings.ToUpper(fields[0])
	if name == "UID" && len(fields) > 1 {
		name += " " + strings.ToUpper(fields[1])
	}
	return name
}
