package session

import (
	"fmt"
	"sort"
	"strings"

	"github.com/creativeprojects/imapfilter/lib"
	"github.com/emersion/go-imap"
)

// SearchNewUIDs returns the UIDs greater than or equal to since, in ascending order.
// At most MaxBatch UIDs are returned: more is true when some were left out.
func (s *Session) SearchNewUIDs(since uint32) ([]uint32, bool, error) {
	if since == 0 {
		since = 1
	}
	command := fmt.Sprintf("UID SEARCH UID %d:*", since)
	var found []uint32
	for attempt := 0; attempt < 2; attempt++ {
		untagged, err := s.execute(command)
		if err != nil {
			return nil, false, err
		}
		searched, recent := false, false
		for _, resp := range untagged {
			if numbers, ok := parseSearch(resp.text); ok {
				searched = true
				found = append(found, numbers...)
				continue
			}
			if strings.Contains(strings.ToUpper(resp.text), "RECENT") {
				recent = true
			}
		}
		// some servers answer a search with a RECENT notification only: ask again
		if searched || !recent {
			break
		}
		s.log.Printf("no SEARCH response, trying again")
	}
	uids, more := filterUIDs(found, since, s.maxBatch)
	return uids, more, nil
}

// filterUIDs keeps the UIDs >= since, sorted and without duplicates, capped at max.
// "n:*" always matches the last message even when its UID is lower than n.
func filterUIDs(found []uint32, since uint32, max int) ([]uint32, bool) {
	uids := make([]uint32, 0, len(found))
	for _, uid := range found {
		if uid >= since {
			uids = append(uids, uid)
		}
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	unique := uids[:0]
	for i, uid := range uids {
		if i > 0 && uid == uids[i-1] {
			continue
		}
		unique = append(unique, uid)
	}
	if max > 0 && len(unique) > max {
		return unique[:max], true
	}
	return unique, false
}

// FetchHeader returns the raw header block of the message, without setting the \Seen flag
func (s *Session) FetchHeader(uid uint32) ([]byte, error) {
	untagged, err := s.execute(fmt.Sprintf("UID FETCH %s (BODY.PEEK[HEADER])", uidSet(uid)))
	if err != nil {
		return nil, err
	}
	for _, resp := range untagged {
		if !isFetch(resp.text) || len(resp.literals) == 0 {
			continue
		}
		if fetched, ok := fetchUID(resp.text); ok && fetched != uid {
			// unsolicited update of another message
			continue
		}
		if !strings.Contains(strings.ToUpper(resp.text), "BODY[HEADER]") {
			continue
		}
		return resp.literals[0], nil
	}
	return nil, fmt.Errorf("uid %d: %w", uid, lib.ErrNoHeader)
}

// StoreFlags adds the flags to the message, silently
func (s *Session) StoreFlags(uid uint32, flags ...string) error {
	_, err := s.execute(fmt.Sprintf("UID STORE %s %s %s",
		uidSet(uid),
		imap.FormatFlagsOp(imap.AddFlags, true),
		lib.FormatFlags(flags),
	))
	return err
}

// Copy copies the message to the folder
func (s *Session) Copy(uid uint32, folder string) error {
	_, err := s.execute(fmt.Sprintf("UID COPY %s %s", uidSet(uid), quote(encodeMailbox(folder))))
	return err
}

// Expunge permanently removes the messages flagged \Deleted
func (s *Session) Expunge() error {
	_, err := s.execute("EXPUNGE")
	return err
}

// Create creates a folder
func (s *Session) Create(folder string) error {
	_, err := s.execute("CREATE " + quote(encodeMailbox(folder)))
	return err
}

// Noop lets the server send pending notifications
func (s *Session) Noop() error {
	_, err := s.execute("NOOP")
	return err
}

// NewMail reports whether the server announced new messages since the last call
func (s *Session) NewMail() bool {
	newMail := s.newMail
	s.newMail = false
	return newMail
}

func uidSet(uid uint32) string {
	set := new(imap.SeqSet)
	set.AddNum(uid)
	return set.String()
}
