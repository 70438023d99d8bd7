package runner

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/creativeprojects/imapfilter/audit"
	"github.com/creativeprojects/imapfilter/classify"
	"github.com/creativeprojects/imapfilter/cursor"
	"github.com/creativeprojects/imapfilter/lib"
	"github.com/creativeprojects/imapfilter/session"
	"github.com/emersion/go-imap"
)

// fakeServer is the state of a mailbox shared by all the sessions opened on it
type fakeServer struct {
	mu        sync.Mutex
	validity  uint32
	inbox     map[uint32]string
	flags     map[uint32][]string
	folders   map[string][]string
	maxBatch  int
	expunges  int
	logins    int
	loginAt   []time.Time
	searches  []uint32
	copyError error
	fetchFail map[uint32]error
	// afterFetch is called with the lock held, after each fetch
	afterFetch func(uid uint32)
	idling     chan struct{}
	wake       chan struct{}
	// idleFail makes the idling session fail with the error
	idleFail chan error
	noIdle   bool
}

func newFakeServer(validity uint32) *fakeServer {
	return &fakeServer{
		validity:  validity,
		inbox:     make(map[uint32]string),
		flags:     make(map[uint32][]string),
		folders:   map[string][]string{"Spam": nil, "Gray": nil},
		maxBatch:  100,
		fetchFail: make(map[uint32]error),
		idling:    make(chan struct{}, 10),
		wake:      make(chan struct{}, 1),
		idleFail:  make(chan error, 1),
	}
}

func (s *fakeServer) deliver(uid uint32, header string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inbox[uid] = header
}

func (s *fakeServer) inboxUIDs() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	uids := make([]uint32, 0, len(s.inbox))
	for uid := range s.inbox {
		uids = append(uids, uid)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids
}

func (s *fakeServer) folder(name string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.folders[name]...)
}

func (s *fakeServer) searchedFrom() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint32(nil), s.searches...)
}

func (s *fakeServer) loginTimes() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Time(nil), s.loginAt...)
}

func (s *fakeServer) flagsOf(uid uint32) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.flags[uid]...)
}

// switchEpoch replaces the whole mailbox, like a server recreating it
func (s *fakeServer) switchEpoch(validity uint32, inbox map[uint32]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validity = validity
	s.inbox = inbox
	s.flags = make(map[uint32][]string)
}

func (s *fakeServer) connector() Connector {
	return func(ctx context.Context) (Mailbox, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.logins++
		s.loginAt = append(s.loginAt, time.Now())
		return &fakeSession{server: s, validity: s.validity}, nil
	}
}

type fakeSession struct {
	server   *fakeServer
	validity uint32
	closed   bool
}

func (f *fakeSession) SearchNewUIDs(since uint32) ([]uint32, bool, error) {
	s := f.server
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searches = append(s.searches, since)
	uids := make([]uint32, 0)
	for uid := range s.inbox {
		if uid >= since {
			uids = append(uids, uid)
		}
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	if len(uids) > s.maxBatch {
		return uids[:s.maxBatch], true, nil
	}
	return uids, false, nil
}

func (f *fakeSession) FetchHeader(uid uint32) ([]byte, error) {
	s := f.server
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.afterFetch != nil {
		defer s.afterFetch(uid)
	}
	if err := s.fetchFail[uid]; err != nil {
		return nil, err
	}
	header, found := s.inbox[uid]
	if !found {
		return nil, fmt.Errorf("uid %d: %w", uid, lib.ErrNoHeader)
	}
	return []byte(header), nil
}

func (f *fakeSession) Copy(uid uint32, folder string) error {
	s := f.server
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.copyError != nil {
		err := s.copyError
		s.copyError = nil
		f.closed = true
		return err
	}
	if _, found := s.folders[folder]; !found {
		return &session.CommandError{Command: "UID COPY", Status: imap.StatusRespNo, Code: imap.CodeTryCreate}
	}
	header, found := s.inbox[uid]
	if !found {
		return &session.CommandError{Command: "UID COPY", Status: imap.StatusRespNo}
	}
	s.folders[folder] = append(s.folders[folder], header)
	return nil
}

func (f *fakeSession) StoreFlags(uid uint32, flags ...string) error {
	s := f.server
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags[uid] = append(s.flags[uid], flags...)
	return nil
}

func (f *fakeSession) Create(folder string) error {
	s := f.server
	s.mu.Lock()
	defer s.mu.Unlock()
	s.folders[folder] = nil
	return nil
}

func (f *fakeSession) Expunge() error {
	s := f.server
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expunges++
	for uid, flags := range s.flags {
		for _, flag := range flags {
			if flag == imap.DeletedFlag {
				delete(s.inbox, uid)
				delete(s.flags, uid)
				break
			}
		}
	}
	return nil
}

func (f *fakeSession) Noop() error {
	return nil
}

func (f *fakeSession) IdleWait(ctx context.Context, timeout time.Duration) (session.IdleResult, error) {
	s := f.server
	select {
	case s.idling <- struct{}{}:
	default:
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return session.IdleInterrupted, nil
	case <-s.wake:
		return session.IdleNewMail, nil
	case err := <-s.idleFail:
		return session.IdleInterrupted, err
	case <-timer.C:
		return session.IdleTimeout, nil
	}
}

func (f *fakeSession) HasCapability(name string) bool {
	return name == "IDLE" && !f.server.noIdle
}

func (f *fakeSession) UIDValidity() uint32 {
	f.server.mu.Lock()
	defer f.server.mu.Unlock()
	return f.server.validity
}

func (f *fakeSession) ValidityChanged() bool {
	current := f.UIDValidity()
	if current != f.validity {
		f.validity = current
		return true
	}
	return false
}

func (f *fakeSession) Logout() error {
	f.closed = true
	return nil
}

// memoryCursors is a cursor store in memory
type memoryCursors struct {
	mu    sync.Mutex
	saved cursor.Cursor
	saves int
	err   error
}

func newMemoryCursors(c cursor.Cursor) *memoryCursors {
	return &memoryCursors{saved: c}
}

func (m *memoryCursors) Load() (cursor.Cursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved, nil
}

func (m *memoryCursors) Save(c cursor.Cursor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.saved = c
	m.saves++
	return nil
}

func (m *memoryCursors) get() (cursor.Cursor, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved, m.saves
}

type memoryRecorder struct {
	mu      sync.Mutex
	records []audit.Record
}

func (m *memoryRecorder) Record(record audit.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
	return nil
}

type memoryLearner struct {
	uids []uint32
}

func (m *memoryLearner) Wants(verdict classify.Verdict) bool {
	return verdict.Code == classify.CodeSpam
}

func (m *memoryLearner) Deliver(uid uint32, header []byte, verdict classify.Verdict) error {
	m.uids = append(m.uids, uid)
	return nil
}

var (
	_ Mailbox  = (*fakeSession)(nil)
	_ Recorder = (*memoryRecorder)(nil)
	_ Learner  = (*memoryLearner)(nil)
)
