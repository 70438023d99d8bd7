package session

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// handler returns the server answer to one command line
type handler func(tag, command string) string

// fakeConn is a scripted server: every command line written is answered by the handler
type fakeConn struct {
	mu        sync.Mutex
	handler   handler
	pending   bytes.Buffer
	incoming  []byte
	commands  []string
	chunkSize int
	idleTag   string
	closed    bool
}

func newFakeConn(greeting string, handler handler) *fakeConn {
	conn := &fakeConn{handler: handler}
	conn.pending.WriteString(greeting)
	return conn
}

func (c *fakeConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, io.ErrClosedPipe
	}
	c.incoming = append(c.incoming, p...)
	for {
		index := bytes.Index(c.incoming, []byte("\r\n"))
		if index < 0 {
			break
		}
		line := string(c.incoming[:index])
		c.incoming = c.incoming[index+2:]
		c.commands = append(c.commands, line)
		if line == "DONE" {
			c.pending.WriteString(c.idleTag + " OK IDLE terminated\r\n")
			continue
		}
		tag, command, _ := strings.Cut(line, " ")
		if command == "IDLE" {
			c.idleTag = tag
		}
		c.pending.WriteString(c.handler(tag, command))
	}
	return len(p), nil
}

func (c *fakeConn) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, io.ErrClosedPipe
	}
	if c.pending.Len() == 0 {
		return 0, io.EOF
	}
	if c.chunkSize > 0 && len(p) > c.chunkSize {
		p = p[:c.chunkSize]
	}
	return c.pending.Read(p)
}

func (c *fakeConn) ReadWithTimeout(p []byte, timeout time.Duration) (int, error) {
	c.mu.Lock()
	empty := c.pending.Len() == 0
	c.mu.Unlock()
	if empty {
		time.Sleep(min(timeout, 10*time.Millisecond))
		return 0, nil
	}
	return c.Read(p)
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// push sends unsolicited data to the client
func (c *fakeConn) push(data string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending.WriteString(data)
}

func (c *fakeConn) sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.commands...)
}

type fakeDialer struct {
	conn *fakeConn
}

func (d *fakeDialer) Dial(ctx context.Context, address string) (Conn, error) {
	return d.conn, nil
}

const defaultGreeting = "* OK [CAPABILITY IMAP4rev1 IDLE] ready\r\n"

func ok(tag string) string {
	return tag + " OK completed\r\n"
}

// mailboxHandler answers the connection sequence and delegates everything else
func mailboxHandler(next handler) handler {
	return func(tag, command string) string {
		verb, _, _ := strings.Cut(command, " ")
		switch verb {
		case "LOGIN":
			return ok(tag)
		case "CAPABILITY":
			return "* CAPABILITY IMAP4rev1 IDLE UIDPLUS\r\n" + ok(tag)
		case "SELECT":
			return "* 3 EXISTS\r\n* 0 RECENT\r\n* FLAGS (\\Answered \\Flagged \\Deleted \\Seen \\Draft)\r\n" +
				"* OK [UIDVALIDITY 100] UIDs valid\r\n* OK [UIDNEXT 13] Predicted next UID\r\n" +
				tag + " OK [READ-WRITE] SELECT completed\r\n"
		case "LOGOUT":
			return "* BYE see you\r\n" + ok(tag)
		case "NOOP":
			return ok(tag)
		}
		if next != nil {
			return next(tag, command)
		}
		return fmt.Sprintf("%s BAD unknown command\r\n", tag)
	}
}

func dialFake(conn *fakeConn, options ...func(*Config)) (*Session, error) {
	config := Config{
		Host:     "mail.example.com",
		Username: "user",
		Password: "secret",
		Dialer:   &fakeDialer{conn: conn},
	}
	for _, option := range options {
		option(&config)
	}
	return Dial(context.Background(), config)
}

// recordLogger keeps the trace in memory
type recordLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordLogger) Print(a ...any) {
	l.add(fmt.Sprint(a...))
}

func (l *recordLogger) Println(a ...any) {
	l.add(fmt.Sprint(a...))
}

func (l *recordLogger) Printf(format string, a ...any) {
	l.add(fmt.Sprintf(format, a...))
}

func (l *recordLogger) add(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, line)
}

func (l *recordLogger) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return strings.Join(l.lines, "\n")
}
