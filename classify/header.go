package classify

import (
	"bufio"
	"bytes"
	"mime"
	"strings"

	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
)

// Field is one unfolded header field
type Field struct {
	Name  string
	Value string
}

// Line rebuilds the header line the rules are matched against
func (f Field) Line() string {
	return f.Name + ": " + f.Value
}

// Header is the snapshot of a message header used for classification.
// It's built once per message and never modified.
type Header struct {
	// Fields in the order they appear in the message
	Fields []Field
	// From is the raw value of the first From field
	From string
	// Subject is decoded from RFC 2047 encoded words
	Subject string
	// Sender is the address of the Return-Path, or of the From field when there's no Return-Path
	Sender string
}

var wordDecoder = &mime.WordDecoder{CharsetReader: charset.Reader}

// ParseHeader builds a snapshot from the raw header block returned by the server.
// It never fails: a header that cannot be parsed is split line by line instead.
func ParseHeader(raw []byte) *Header {
	fields, err := readFields(raw)
	if err != nil {
		fields = scanFields(raw)
	}
	header := &Header{
		Fields: fields,
	}
	var returnPath string
	for _, field := range fields {
		switch strings.ToLower(field.Name) {
		case "from":
			if header.From == "" {
				header.From = field.Value
			}
		case "subject":
			if header.Subject == "" {
				header.Subject = decodeWords(field.Value)
			}
		case "return-path":
			if returnPath == "" {
				returnPath = field.Value
			}
		}
	}
	header.Sender = firstAddress(returnPath)
	if header.Sender == "" {
		header.Sender = firstAddress(header.From)
	}
	return header
}

// Has returns true if the header contains at least one field of that name
func (h *Header) Has(name string) bool {
	for _, field := range h.Fields {
		if strings.EqualFold(field.Name, name) {
			return true
		}
	}
	return false
}

func readFields(raw []byte) ([]Field, error) {
	if !bytes.HasSuffix(raw, []byte("\r\n\r\n")) && !bytes.HasSuffix(raw, []byte("\n\n")) {
		// make sure the parser sees the end of the header
		raw = append(bytes.TrimRight(raw, "\r\n"), []byte("\r\n\r\n")...)
	}
	header, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil {
		return nil, err
	}
	fields := make([]Field, 0, 16)
	iterator := header.Fields()
	for iterator.Next() {
		fields = append(fields, Field{
			Name:  iterator.Key(),
			Value: strings.TrimSpace(iterator.Value()),
		})
	}
	return fields, nil
}

// scanFields is the fallback on a malformed header: lines without a colon are ignored
func scanFields(raw []byte) []Field {
	fields := make([]Field, 0)
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			break
		}
		if (line[0] == ' ' || line[0] == '\t') && len(fields) > 0 {
			// folded line
			fields[len(fields)-1].Value += " " + strings.TrimSpace(line)
			continue
		}
		name, value, found := strings.Cut(line, ":")
		if !found || strings.TrimSpace(name) == "" {
			continue
		}
		fields = append(fields, Field{
			Name:  strings.TrimSpace(name),
			Value: strings.TrimSpace(value),
		})
	}
	return fields
}

func firstAddress(value string) string {
	value = strings.TrimSpace(value)
	if value == "" || value == "<>" {
		return ""
	}
	addresses, err := mail.ParseAddressList(value)
	if err == nil && len(addresses) > 0 {
		return strings.ToLower(addresses[0].Address)
	}
	// keep something usable from a broken address
	if start := strings.LastIndex(value, "<"); start >= 0 {
		if end := strings.Index(value[start:], ">"); end > 0 {
			return strings.ToLower(value[start+1 : start+end])
		}
	}
	return strings.ToLower(value)
}

func decodeWords(value string) string {
	decoded, err := wordDecoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}
