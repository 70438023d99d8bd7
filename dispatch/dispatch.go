// Package dispatch turns a verdict into the commands changing the mailbox.
package dispatch

import (
	"fmt"

	"github.com/creativeprojects/imapfilter/classify"
	"github.com/creativeprojects/imapfilter/lib"
	"github.com/creativeprojects/imapfilter/session"
	"github.com/emersion/go-imap"
)

// Mailbox is the part of the session the dispatcher needs
type Mailbox interface {
	Copy(uid uint32, folder string) error
	StoreFlags(uid uint32, flags ...string) error
	Create(folder string) error
}

type Dispatcher struct {
	// DryRun logs what would be done and leaves the mailbox untouched
	DryRun bool
	// CreateFolders creates a missing destination when the server answers TRYCREATE
	CreateFolders bool
	Logger        lib.Logger
}

// Outcome of one dispatch
type Outcome struct {
	// Deleted is true when the message has been flagged \Deleted: the mailbox needs an expunge
	Deleted bool
	// Failure is a command refused by the server. It only concerns this message.
	Failure error
}

// Dispatch applies the verdict to the message. The returned error is always fatal to
// the session: a command refused by the server is reported in the Outcome instead.
func (d *Dispatcher) Dispatch(mbox Mailbox, uid uint32, verdict classify.Verdict) (Outcome, error) {
	log := lib.OrNoLog(d.Logger)
	if !verdict.Mutates() {
		return Outcome{}, nil
	}
	if d.DryRun {
		log.Printf("uid %d: dry run: would %s %s", uid, verdict.Action, verdict.Folder)
		return Outcome{}, nil
	}

	switch verdict.Action {
	case classify.MarkReadAndMove:
		// flag it first so the copy lands as read
		if err := mbox.StoreFlags(uid, imap.SeenFlag); err != nil {
			if session.IsFatal(err) {
				return Outcome{}, err
			}
			log.Printf("uid %d: cannot mark as read: %v", uid, err)
		}
		return d.move(mbox, uid, verdict.Folder)

	case classify.Move:
		return d.move(mbox, uid, verdict.Folder)

	case classify.Delete:
		return d.delete(mbox, uid)

	default:
		return Outcome{}, fmt.Errorf("uid %d: unexpected action %s", uid, verdict.Action)
	}
}

// move copies the message, and flags the original as deleted only once the copy succeeded
func (d *Dispatcher) move(mbox Mailbox, uid uint32, folder string) (Outcome, error) {
	log := lib.OrNoLog(d.Logger)
	if folder == "" {
		return Outcome{Failure: fmt.Errorf("uid %d: no destination folder", uid)}, nil
	}
	err := mbox.Copy(uid, folder)
	if err != nil && d.CreateFolders && session.HasCode(err, imap.CodeTryCreate) {
		log.Printf("creating folder %q", folder)
		if createErr := mbox.Create(folder); createErr != nil {
			if session.IsFatal(createErr) {
				return Outcome{}, createErr
			}
			log.Printf("cannot create folder %q: %v", folder, createErr)
		}
		err = mbox.Copy(uid, folder)
	}
	if err != nil {
		if session.IsFatal(err) {
			return Outcome{}, err
		}
		log.Printf("uid %d: cannot copy to %q: %v", uid, folder, err)
		return Outcome{Failure: fmt.Errorf("copy to %q: %w", folder, err)}, nil
	}
	return d.delete(mbox, uid)
}

func (d *Dispatcher) delete(mbox Mailbox, uid uint32) (Outcome, error) {
	err := mbox.StoreFlags(uid, imap.DeletedFlag, imap.SeenFlag)
	if err != nil {
		if session.IsFatal(err) {
			return Outcome{}, err
		}
		lib.OrNoLog(d.Logger).Printf("uid %d: cannot flag as deleted: %v", uid, err)
		return Outcome{Failure: fmt.Errorf("store deleted flag: %w", err)}, nil
	}
	return Outcome{Deleted: true}, nil
}
