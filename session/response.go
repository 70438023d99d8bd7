package session

import (
	"strconv"
	"strings"

	"github.com/emersion/go-imap"
)

// statusLine is a status response: "OK [UIDVALIDITY 3857529045] UIDs valid"
type statusLine struct {
	status imap.StatusRespType
	code   imap.StatusRespCode
	args   string
	text   string
}

func parseStatus(value string) statusLine {
	value = strings.TrimSpace(value)
	word, rest, _ := strings.Cut(value, " ")
	line := statusLine{
		status: imap.StatusRespType(strings.ToUpper(word)),
	}
	rest = strings.TrimSpace(rest)
	if strings.HasPrefix(rest, "[") {
		if end := strings.IndexByte(rest, ']'); end > 0 {
			code, args, _ := strings.Cut(rest[1:end], " ")
			line.code = imap.StatusRespCode(strings.ToUpper(code))
			line.args = strings.TrimSpace(args)
			rest = strings.TrimSpace(rest[end+1:])
		}
	}
	line.text = rest
	return line
}

// parseList splits a parenthesized list of atoms: "(\Seen \Deleted)"
func parseList(value string) []string {
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(value, "(")
	value = strings.TrimSuffix(value, ")")
	return strings.Fields(value)
}

func parseNumber(value string) (uint32, bool) {
	number, err := strconv.ParseUint(strings.TrimSpace(value), 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(number), true
}

// parseSearch returns the numbers of a "* SEARCH 1 2 3" response, and false if the response is not a SEARCH
func parseSearch(text string) ([]uint32, bool) {
	fields := strings.Fields(strings.TrimPrefix(text, "* "))
	if len(fields) == 0 || !strings.EqualFold(fields[0], "SEARCH") {
		return nil, false
	}
	numbers := make([]uint32, 0, len(fields)-1)
	for _, field := range fields[1:] {
		if number, ok := parseNumber(field); ok {
			numbers = append(numbers, number)
		}
	}
	return numbers, true
}

// fetchUID returns the UID item of a "* 12 FETCH (UID 34 ...)" response
func fetchUID(text string) (uint32, bool) {
	fields := strings.Fields(strings.NewReplacer("(", " ", ")", " ").Replace(text))
	for i := 0; i < len(fields)-1; i++ {
		if strings.EqualFold(fields[i], "UID") {
			return parseNumber(fields[i+1])
		}
	}
	return 0, false
}

func isFetch(text string) bool {
	fields := strings.Fields(strings.TrimPrefix(text, "* "))
	return len(fields) > 1 && strings.EqualFold(fields[1], "FETCH")
}
