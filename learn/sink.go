// Package learn keeps a copy of the headers classified as spam in a Maildir,
// ready to be fed to a spam filter training tool.
package learn

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/creativeprojects/imapfilter/classify"
	"github.com/creativeprojects/imapfilter/lib"
	"github.com/emersion/go-imap"
	"github.com/emersion/go-maildir"
)

// VerdictHeader is added on top of each header saved
const VerdictHeader = "X-Imapfilter-Verdict"

type Sink struct {
	dir maildir.Dir
	log lib.Logger
}

func New(root string) (*Sink, error) {
	return NewWithLogger(root, nil)
}

// NewWithLogger opens the Maildir, creating it if needed
func NewWithLogger(root string, logger lib.Logger) (*Sink, error) {
	if runtime.GOOS == "windows" {
		return nil, errors.New("maildir is not supported on Windows")
	}
	dir := maildir.Dir(root)
	if _, err := os.Stat(filepath.Join(root, "cur")); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		if err = os.MkdirAll(root, 0700); err != nil {
			return nil, err
		}
		if err = dir.Init(); err != nil {
			return nil, fmt.Errorf("cannot create maildir %q: %w", root, err)
		}
	}
	return &Sink{
		dir: dir,
		log: lib.OrNoLog(logger),
	}, nil
}

// Wants returns true for the verdicts worth learning from
func (s *Sink) Wants(verdict classify.Verdict) bool {
	return verdict.Code == classify.CodeSpam || verdict.Code == classify.CodeDropped
}

// Deliver saves the header with the verdict on top
func (s *Sink) Deliver(uid uint32, header []byte, verdict classify.Verdict) error {
	msg, writer, err := s.dir.Create(toFlags([]string{imap.SeenFlag}))
	if err != nil {
		return err
	}
	_, err = io.WriteString(writer, fmt.Sprintf("%s: %s\r\n", VerdictHeader, strings.ReplaceAll(verdict.String(), "\n", " ")))
	if err == nil {
		_, err = writer.Write(header)
	}
	closeErr := writer.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(msg.Filename())
		return fmt.Errorf("cannot save header of uid %d: %w", uid, err)
	}
	s.log.Printf("uid %d: header saved as %q", uid, msg.Key())
	return nil
}

// Count returns the number of headers in the Maildir
func (s *Sink) Count() (int, error) {
	messages, err := s.dir.Messages()
	if err != nil {
		return 0, err
	}
	return len(messages), nil
}
