// Package remote manages the folders of the account with a full IMAP client: it checks
// they exist and removes old messages from them.
package remote

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/creativeprojects/imapfilter/lib"
	"github.com/creativeprojects/imapfilter/mailbox"
	"github.com/emersion/go-imap"
	uidplus "github.com/emersion/go-imap-uidplus"
	"github.com/emersion/go-imap/client"
)

// deleteChunk is the number of UIDs flagged by one STORE command
const deleteChunk = 200

type Config struct {
	ServerURL           string
	Username            string
	Password            string
	DebugLogger         lib.Logger
	NoTLS               bool
	SkipTLSVerification bool
}

// Progresser is notified of every message deleted
type Progresser interface {
	Increment()
}

type Imap struct {
	client        *client.Client
	uidplusClient *uidplus.Client
	log           lib.Logger
	selected      string
}

func NewImap(cfg Config) (*Imap, error) {
	log := lib.OrNoLog(cfg.DebugLogger)
	if cfg.ServerURL == "" || cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("missing information from Config object")
	}

	var imapClient *client.Client
	var err error
	log.Printf("Connecting to server %s...", cfg.ServerURL)
	if cfg.NoTLS {
		imapClient, err = client.Dial(cfg.ServerURL)
	} else {
		tlsConfig := &tls.Config{}
		if cfg.SkipTLSVerification {
			tlsConfig.InsecureSkipVerify = true
		}
		imapClient, err = client.DialTLS(cfg.ServerURL, tlsConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot connect to server %s: %w", cfg.ServerURL, err)
	}
	if cfg.DebugLogger != nil {
		imapClient.SetDebug(&debugWriter{log: log})
	}
	log.Print("Connected")

	if err := imapClient.Login(cfg.Username, cfg.Password); err != nil {
		_ = imapClient.Logout()
		return nil, fmt.Errorf("authentication failure: %w", err)
	}
	log.Printf("Logged in as %s", cfg.Username)

	i := &Imap{
		client: imapClient,
		log:    log,
	}
	uidExt := uidplus.NewClient(imapClient)
	supported, err := uidExt.SupportUidPlus()
	if err == nil && supported {
		i.uidplusClient = uidExt
	} else {
		log.Print("UIDPLUS extension not supported")
	}
	return i, nil
}

func (i *Imap) Close() error {
	return i.client.Logout()
}

// Capabilities returns the list of capabilities announced by the server
func (i *Imap) Capabilities() ([]string, error) {
	caps, err := i.client.Capability()
	if err != nil {
		return nil, err
	}
	list := make([]string, 0, len(caps))
	for name, enabled := range caps {
		if enabled {
			list = append(list, name)
		}
	}
	sort.Strings(list)
	return list, nil
}

// SupportUidPlus is true when messages can be expunged by UID
func (i *Imap) SupportUidPlus() bool {
	return i.uidplusClient != nil
}

func (i *Imap) ListMailbox() ([]mailbox.Info, error) {
	mailboxes := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)
	go func() {
		done <- i.client.List("", "*", mailboxes)
	}()

	info := make([]mailbox.Info, 0, 10)
	for m := range mailboxes {
		i.log.Printf("* %q: %+v (delimiter = %q)", m.Name, m.Attributes, m.Delimiter)
		info = append(info, mailbox.Info{
			Attributes: m.Attributes,
			Delimiter:  m.Delimiter,
			Name:       m.Name,
		})
	}

	if err := <-done; err != nil {
		return nil, err
	}
	return info, nil
}

func (i *Imap) CreateMailbox(name string) error {
	return i.client.Create(name)
}

// SelectMailbox opens the mailbox in read-write mode
func (i *Imap) SelectMailbox(name string) (*mailbox.Status, error) {
	status, err := i.client.Select(name, false)
	if err != nil {
		return nil, fmt.Errorf("cannot select mailbox %q: %w", name, err)
	}
	i.selected = name
	return &mailbox.Status{
		Name:           status.Name,
		Flags:          status.Flags,
		PermanentFlags: status.PermanentFlags,
		Messages:       status.Messages,
		Recent:         status.Recent,
		UidNext:        status.UidNext,
		UidValidity:    status.UidValidity,
		ReadOnly:       status.ReadOnly,
	}, nil
}

// FindSentBefore returns the UIDs of the messages of the selected mailbox with a Date header before the date
func (i *Imap) FindSentBefore(before time.Time) ([]uint32, error) {
	if i.selected == "" {
		return nil, lib.ErrNotSelected
	}
	criteria := imap.NewSearchCriteria()
	criteria.SentBefore = before
	return i.client.UidSearch(criteria)
}

// DeleteMessages flags the messages as deleted and expunges them from the selected mailbox.
// Only the given messages are expunged when the server supports UIDPLUS.
func (i *Imap) DeleteMessages(ctx context.Context, uids []uint32, progress Progresser) (int, error) {
	if i.selected == "" {
		return 0, lib.ErrNotSelected
	}
	deleted := 0
	for start := 0; start < len(uids); start += deleteChunk {
		if ctx.Err() != nil {
			break
		}
		end := start + deleteChunk
		if end > len(uids) {
			end = len(uids)
		}
		seqSet := new(imap.SeqSet)
		seqSet.AddNum(uids[start:end]...)
		item := imap.FormatFlagsOp(imap.AddFlags, true)
		err := i.client.UidStore(seqSet, item, []interface{}{imap.DeletedFlag}, nil)
		if err != nil {
			return deleted, fmt.Errorf("cannot flag messages as deleted: %w", err)
		}
		for range uids[start:end] {
			if progress != nil {
				progress.Increment()
			}
		}
		deleted += end - start
	}
	if deleted == 0 {
		return 0, nil
	}
	if i.uidplusClient != nil {
		seqSet := new(imap.SeqSet)
		seqSet.AddNum(uids[:deleted]...)
		if err := i.uidplusClient.UidExpunge(seqSet, nil); err != nil {
			return deleted, fmt.Errorf("cannot expunge: %w", err)
		}
		return deleted, nil
	}
	if err := i.client.Expunge(nil); err != nil {
		return deleted, fmt.Errorf("cannot expunge: %w", err)
	}
	return deleted, nil
}

// CleanMailbox deletes the messages sent before the date
func (i *Imap) CleanMailbox(ctx context.Context, name string, before time.Time, progress func(total int) Progresser) (int, error) {
	if _, err := i.SelectMailbox(name); err != nil {
		return 0, err
	}
	uids, err := i.FindSentBefore(before)
	if err != nil {
		return 0, fmt.Errorf("cannot search mailbox %q: %w", name, err)
	}
	i.log.Printf("%s: %d message(s) sent before %s", name, len(uids), before.Format(time.RFC1123Z))
	if len(uids) == 0 {
		return 0, nil
	}
	var p Progresser
	if progress != nil {
		p = progress(len(uids))
	}
	return i.DeleteMessages(ctx, uids, p)
}

// MissingMailboxes returns the names not found on the server
func (i *Imap) MissingMailboxes(names []string) ([]string, error) {
	list, err := i.ListMailbox()
	if err != nil {
		return nil, err
	}
	missing := make([]string, 0)
	for _, name := range names {
		if !mailbox.Exists(name, list) {
			missing = append(missing, name)
		}
	}
	return missing, nil
}
