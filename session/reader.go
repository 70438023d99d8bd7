package session

import (
	"bytes"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/creativeprojects/imapfilter/lib"
)

var errReadTimeout = errors.New("read timeout")

// response is one logical server line: literals are taken out of the text
// and kept aside, the text keeps the "{n}" markers.
type response struct {
	text     string
	literals [][]byte
}

// reader splits the stream into lines, whatever the size of the chunks received
type reader struct {
	conn   Conn
	logger lib.Logger
	buffer []byte
	chunk  []byte
}

func newReader(conn Conn, logger lib.Logger) *reader {
	return &reader{
		conn:   conn,
		logger: logger,
		chunk:  make([]byte, 4096),
	}
}

// readResponse returns the next complete response. With a timeout, errReadTimeout is
// returned when no line was available in time. Once the first line of a response is
// received, the literals and the rest of the line are waited for without a timeout.
func (r *reader) readResponse(timeout time.Duration) (*response, error) {
	line, err := r.readLine(timeout)
	if err != nil {
		return nil, err
	}
	resp := &response{}
	for {
		resp.text += line
		size, ok := literalSize(line)
		if !ok {
			return resp, nil
		}
		literal, err := r.readBytes(size)
		if err != nil {
			return nil, err
		}
		r.logger.Printf("S: <literal of %d bytes>", size)
		resp.literals = append(resp.literals, literal)
		line, err = r.readLine(0)
		if err != nil {
			return nil, err
		}
	}
}

func (r *reader) readLine(timeout time.Duration) (string, error) {
	for {
		if index := bytes.IndexByte(r.buffer, '\n'); index >= 0 {
			line := string(bytes.TrimRight(r.buffer[:index], "\r"))
			r.buffer = r.buffer[index+1:]
			r.logger.Printf("S: %s", line)
			return line, nil
		}
		if err := r.fill(timeout); err != nil {
			return "", err
		}
	}
}

func (r *reader) readBytes(size int) ([]byte, error) {
	for len(r.buffer) < size {
		if err := r.fill(0); err != nil {
			return nil, err
		}
	}
	data := make([]byte, size)
	copy(data, r.buffer[:size])
	r.buffer = r.buffer[size:]
	return data, nil
}

func (r *reader) fill(timeout time.Duration) error {
	var read int
	var err error
	if timeout > 0 {
		read, err = r.conn.ReadWithTimeout(r.chunk, timeout)
		if read == 0 && err == nil {
			return errReadTimeout
		}
	} else {
		read, err = r.conn.Read(r.chunk)
	}
	if read > 0 {
		r.buffer = append(r.buffer, r.chunk[:read]...)
		return nil
	}
	if err == nil {
		return io.ErrNoProgress
	}
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// literalSize detects a line ending with "{n}" or "{n+}"
func literalSize(line string) (int, bool) {
	if !strings.HasSuffix(line, "}") {
		return 0, false
	}
	start := strings.LastIndexByte(line, '{')
	if start < 0 {
		return 0, false
	}
	value := strings.TrimSuffix(line[start+1:len(line)-1], "+")
	size, err := strconv.Atoi(value)
	if err != nil || size < 0 {
		return 0, false
	}
	return size, true
}
