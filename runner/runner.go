// Package runner is the synchronization loop: it keeps one mailbox connected, classifies
// every new message and waits for the next ones.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/creativeprojects/imapfilter/audit"
	"github.com/creativeprojects/imapfilter/classify"
	"github.com/creativeprojects/imapfilter/cursor"
	"github.com/creativeprojects/imapfilter/dispatch"
	"github.com/creativeprojects/imapfilter/lib"
	"github.com/creativeprojects/imapfilter/metrics"
	"github.com/creativeprojects/imapfilter/rules"
	"github.com/creativeprojects/imapfilter/session"
	"github.com/creativeprojects/imapfilter/term"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	DefaultIdleTimeout  = 29 * time.Minute
	ExchangeIdleTimeout = 4 * time.Minute
	DefaultPollInterval = 60 * time.Second
	DefaultRetryDelay   = 60 * time.Second
)

type Config struct {
	// Mailbox is the name of the selected mailbox, for the audit log
	Mailbox      string
	IdleTimeout  time.Duration
	PollInterval time.Duration
	RetryDelay   time.Duration
	// AuthRetries stops the loop after that many rejected logins in a row. Zero means never stop.
	AuthRetries int
	// DryRun classifies without changing the mailbox or the saved cursor
	DryRun bool
	// Once runs a single pass and returns
	Once          bool
	CreateFolders bool
	Recorder      Recorder
	Learner       Learner
	Logger        lib.Logger
}

// Stats counts what happened during the run
type Stats struct {
	Passes     int
	Classified int
	Mutated    int
	Failures   int
	Reconnects int
}

type Runner struct {
	config     Config
	connect    Connector
	cursors    CursorStore
	rules      atomic.Pointer[rules.Set]
	dispatcher *dispatch.Dispatcher
	log        lib.Logger
	limiter    *rate.Limiter
	runID      string

	state          atomic.Int32
	cursor         cursor.Cursor
	pendingExpunge bool
	idleRejected   bool
	stats          Stats
}

func New(config Config, connect Connector, cursors CursorStore, set *rules.Set) *Runner {
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultIdleTimeout
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = DefaultRetryDelay
	}
	log := lib.OrNoLog(config.Logger)
	runner := &Runner{
		config:  config,
		connect: connect,
		cursors: cursors,
		dispatcher: &dispatch.Dispatcher{
			DryRun:        config.DryRun,
			CreateFolders: config.CreateFolders,
			Logger:        log,
		},
		log: log,
		// the first connection is immediate, then one attempt per retry delay
		limiter: rate.NewLimiter(rate.Every(config.RetryDelay), 1),
		runID:   uuid.NewString(),
		cursor:  cursor.New(),
	}
	runner.SetRules(set)
	return runner
}

// SetRules replaces the rules. The new set is used from the next pass.
func (r *Runner) SetRules(set *rules.Set) {
	if set == nil {
		set = &rules.Set{}
	}
	r.rules.Store(set)
}

func (r *Runner) State() State {
	return State(r.state.Load())
}

func (r *Runner) RunID() string {
	return r.runID
}

// Cursor returns the position reached. Only call it once Run has returned.
func (r *Runner) Cursor() cursor.Cursor {
	return r.cursor
}

// Stats returns the counters. Only call it once Run has returned.
func (r *Runner) Stats() Stats {
	return r.stats
}

func (r *Runner) setState(state State) {
	r.state.Store(int32(state))
}

// Run keeps the mailbox synchronized until the context is cancelled. Network errors
// are retried forever, unless running once: then the first error is returned.
func (r *Runner) Run(ctx context.Context) error {
	loaded, err := r.cursors.Load()
	if err != nil {
		term.Errorf("cannot load cursor, starting from the first message: %s", err)
		loaded = cursor.New()
	}
	r.cursor = loaded
	r.log.Printf("starting from cursor %s", r.cursor)

	authFailures := 0
	defer r.setState(Disconnected)
	for {
		if err := r.limiter.Wait(ctx); err != nil {
			// cancelled while waiting for the next attempt
			return nil
		}
		r.setState(Connecting)
		mbox, err := r.connect(ctx)
		if err != nil {
			metrics.Connections.WithLabelValues("failure").Inc()
			if ctx.Err() != nil {
				return nil
			}
			if r.config.Once {
				return err
			}
			var connectError *session.ConnectError
			if errors.As(err, &connectError) && connectError.Auth {
				authFailures++
				if r.config.AuthRetries > 0 && authFailures >= r.config.AuthRetries {
					return fmt.Errorf("giving up after %d rejected logins: %w", authFailures, err)
				}
			}
			term.Errorf("%s, trying again in %s", err, r.config.RetryDelay)
			r.setState(Disconnected)
			continue
		}
		metrics.Connections.WithLabelValues("success").Inc()
		authFailures = 0

		err = r.serve(ctx, mbox)
		if logoutErr := mbox.Logout(); logoutErr != nil {
			r.log.Printf("logout: %v", logoutErr)
		}
		r.setState(Disconnected)
		if err == nil || ctx.Err() != nil {
			return nil
		}
		if r.config.Once {
			return err
		}
		r.stats.Reconnects++
		// drop the attempt saved up during the session: one connection per retry delay at most
		r.limiter.Allow()
		term.Errorf("%s, reconnecting within %s", err, r.config.RetryDelay)
	}
}

// serve runs passes on a connected session. It returns nil when the loop should stop.
func (r *Runner) serve(ctx context.Context, mbox Mailbox) error {
	r.setState(Selected)
	mbox.ValidityChanged()
	r.observeValidity(mbox.UIDValidity())
	r.idleRejected = false

	for {
		more, err := r.pass(ctx, mbox)
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		if more {
			continue
		}
		if r.config.Once {
			return nil
		}
		r.setState(Idling)
		err = r.wait(ctx, mbox)
		r.setState(Selected)
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// pass classifies one batch of new messages. It returns true when there are more to process.
func (r *Runner) pass(ctx context.Context, mbox Mailbox) (bool, error) {
	start := time.Now()
	set := r.rules.Load()
	r.stats.Passes++
	metrics.Passes.Inc()
	defer func() {
		metrics.PassDuration.Observe(time.Since(start).Seconds())
	}()

	// a change noticed while waiting: restart from the first UID before searching
	r.resync(mbox)

	if err := r.expunge(mbox); err != nil {
		return false, err
	}

	uids, more, err := mbox.SearchNewUIDs(r.cursor.LastSeenUID)
	if err != nil {
		if session.IsFatal(err) {
			return false, err
		}
		metrics.CommandFailures.WithLabelValues("search").Inc()
		term.Errorf("cannot search new messages: %s", err)
		return false, nil
	}
	if len(uids) > 0 {
		r.log.Printf("%d new message(s) from uid %d", len(uids), r.cursor.LastSeenUID)
	}

	for _, uid := range uids {
		if ctx.Err() != nil {
			break
		}
		if r.resync(mbox) {
			// the UIDs of this batch mean nothing anymore
			return true, nil
		}
		restart, err := r.process(ctx, mbox, uid, set)
		if err != nil {
			r.saveCursor()
			return false, err
		}
		if restart {
			return true, nil
		}
	}
	if r.resync(mbox) {
		return true, nil
	}

	if ctx.Err() == nil {
		if err := r.expunge(mbox); err != nil {
			r.saveCursor()
			return false, err
		}
	}
	r.saveCursor()
	return more && ctx.Err() == nil, nil
}

// process classifies one message and applies the verdict. It returns true when
// the UIDVALIDITY changed during the fetch: nothing was done to the message then.
func (r *Runner) process(ctx context.Context, mbox Mailbox, uid uint32, set *rules.Set) (bool, error) {
	raw, err := mbox.FetchHeader(uid)
	if err != nil && session.IsFatal(err) {
		return false, err
	}
	if r.resync(mbox) {
		// the header may belong to another message now
		return true, nil
	}
	if err != nil {
		metrics.HeaderFetchFailures.Inc()
		term.Warnf("uid %d: cannot fetch header, skipping: %s", uid, err)
		r.advance(uid)
		return false, nil
	}
	if ctx.Err() != nil {
		// shutting down: the message is left for the next run
		return false, nil
	}
	header := classify.ParseHeader(raw)
	verdict := classify.Classify(header, header.Sender, set)

	outcome, err := r.dispatcher.Dispatch(mbox, uid, verdict)
	if err != nil {
		// the message will be classified again after reconnecting
		return false, err
	}
	r.stats.Classified++
	metrics.MessagesClassified.WithLabelValues(string(verdict.Code), verdict.Action.String()).Inc()
	if outcome.Deleted {
		r.pendingExpunge = true
	}
	if outcome.Failure != nil {
		r.stats.Failures++
		metrics.CommandFailures.WithLabelValues("dispatch").Inc()
	} else if verdict.Mutates() && !r.config.DryRun {
		r.stats.Mutated++
	}

	if verdict.Mutates() {
		term.Infof("uid %d: %s %q", uid, verdict, header.Subject)
	} else {
		term.Debugf("uid %d: %s %q", uid, verdict, header.Subject)
	}
	r.record(uid, header, verdict, outcome)
	r.learn(uid, raw, verdict)
	r.advance(uid)
	return false, nil
}

func (r *Runner) advance(uid uint32) {
	r.cursor.Advance(uid)
	metrics.Cursor.Set(float64(r.cursor.LastSeenUID))
}

// expunge runs the expunge owed by a previous deletion, even from a previous session
func (r *Runner) expunge(mbox Mailbox) error {
	if !r.pendingExpunge || r.config.DryRun {
		return nil
	}
	err := mbox.Expunge()
	if err != nil {
		if session.IsFatal(err) {
			return err
		}
		metrics.CommandFailures.WithLabelValues("expunge").Inc()
		term.Errorf("cannot expunge: %s", err)
		return nil
	}
	r.pendingExpunge = false
	return nil
}

// resync resets and saves the cursor when the server announced a new UIDVALIDITY
func (r *Runner) resync(mbox Mailbox) bool {
	if !mbox.ValidityChanged() || !r.observeValidity(mbox.UIDValidity()) {
		return false
	}
	r.saveCursor()
	return true
}

// observeValidity returns true when the mailbox needs a full resynchronization
func (r *Runner) observeValidity(uidValidity uint32) bool {
	previous := r.cursor.UIDValidity
	if !r.cursor.Observe(uidValidity) {
		return false
	}
	metrics.UIDValidityChanges.Inc()
	term.Warnf("UIDVALIDITY changed from %d to %d: resynchronizing the whole mailbox", previous, uidValidity)
	metrics.Cursor.Set(float64(r.cursor.LastSeenUID))
	return true
}

func (r *Runner) saveCursor() {
	if r.config.DryRun {
		return
	}
	if err := r.cursors.Save(r.cursor); err != nil {
		metrics.CursorSaveFailures.Inc()
		term.Errorf("CANNOT SAVE CURSOR %s: %s", r.cursor, err)
		return
	}
	r.log.Printf("cursor saved: %s", r.cursor)
}

// wait returns on new mail, after the idle timeout or the poll interval, or on cancellation
func (r *Runner) wait(ctx context.Context, mbox Mailbox) error {
	if mbox.HasCapability("IDLE") && !r.idleRejected {
		result, err := mbox.IdleWait(ctx, r.config.IdleTimeout)
		if err == nil {
			metrics.Wakeups.WithLabelValues(result.String()).Inc()
			r.log.Printf("idle: %s", result)
			return nil
		}
		if session.IsFatal(err) {
			return err
		}
		// the server doesn't want to idle: poll instead
		r.log.Printf("idle: %v", err)
		r.idleRejected = true
	}

	timer := time.NewTimer(r.config.PollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		metrics.Wakeups.WithLabelValues("interrupted").Inc()
		return nil
	case <-timer.C:
		metrics.Wakeups.WithLabelValues("poll").Inc()
	}
	return mbox.Noop()
}

func (r *Runner) record(uid uint32, header *classify.Header, verdict classify.Verdict, outcome dispatch.Outcome) {
	if r.config.Recorder == nil {
		return
	}
	record := audit.Record{
		RunID:       r.runID,
		Date:        time.Now(),
		Mailbox:     r.config.Mailbox,
		UID:         uid,
		UIDValidity: r.cursor.UIDValidity,
		Sender:      header.Sender,
		Subject:     header.Subject,
		Code:        string(verdict.Code),
		Flags:       verdict.Flags.String(),
		Action:      verdict.Action.String(),
		Folder:      verdict.Folder,
		Rule:        verdict.Rule.String(),
		Reason:      verdict.Reason,
		DryRun:      r.config.DryRun,
	}
	if outcome.Failure != nil {
		record.Failure = outcome.Failure.Error()
	}
	if err := r.config.Recorder.Record(record); err != nil {
		term.Errorf("cannot record decision for uid %d: %s", uid, err)
	}
}

func (r *Runner) learn(uid uint32, raw []byte, verdict classify.Verdict) {
	if r.config.Learner == nil || r.config.DryRun || !r.config.Learner.Wants(verdict) {
		return
	}
	if err := r.config.Learner.Deliver(uid, raw, verdict); err != nil {
		term.Errorf("cannot save header of uid %d: %s", uid, err)
	}
}
