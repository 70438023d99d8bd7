package remote

import (
	"strings"

	"github.com/creativeprojects/imapfilter/lib"
)

// debugWriter sends the protocol trace of the client to a logger, one line at a time
type debugWriter struct {
	log lib.Logger
}

func (w *debugWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\r\n"), "\n") {
		w.log.Print(strings.TrimRight(line, "\r"))
	}
	return len(p), nil
}
