// Package inbound routes inbound messages through the dialogue engine and owns the
// per-sender session and inactivity timer.
package inbound

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/menubot/core/dialogue"
	"github.com/m3rciful/menubot/core/journal"
	"github.com/m3rciful/menubot/core/logger"
	"github.com/m3rciful/menubot/core/session"
	"github.com/m3rciful/menubot/core/timeout"
)

const component = "session"

// ErrNoSender is returned for a message without an originator.
var ErrNoSender = errors.New("inbound: message has no sender")

// Message is one inbound text event.
type Message struct {
	From       session.SenderID
	NotifyName string
	Body       string
	// UpdateID is the transport's update number, used only for log correlation.
	UpdateID int
}

// Replier delivers text to a sender.
type Replier interface {
	Reply(ctx context.Context, to session.SenderID, text string) error
}

// ReplierFunc adapts a function to Replier.
type ReplierFunc func(ctx context.Context, to session.SenderID, text string) error

// Reply implements Replier.
func (f ReplierFunc) Reply(ctx context.Context, to session.SenderID, text string) error {
	return f(ctx, to, text)
}

// Options wires a Dispatcher. Store, Clock, Metrics and Journal are optional.
type Options struct {
	Store   session.Store
	Engine  *dialogue.Engine
	Replier Replier
	Window  time.Duration
	Clock   timeout.Clock
	Metrics *Metrics
	Journal journal.Recorder
}

// Dispatcher serialises message handling and expiry behind one mutex.
// Lock order: Dispatcher, then timeout.Manager, then Store.
type Dispatcher struct {
	mu sync.Mutex

	store    session.Store
	engine   *dialogue.Engine
	replier  Replier
	timeouts *timeout.Manager
	metrics  *Metrics
	journal  journal.Recorder
}

// New builds a Dispatcher. Engine and Replier are required.
func New(opts Options) (*Dispatcher, error) {
	if opts.Engine == nil {
		return nil, errors.New("inbound: engine is required")
	}
	if opts.Replier == nil {
		return nil, errors.New("inbound: replier is required")
	}
	if opts.Store == nil {
		opts.Store = session.NewMemoryStore()
	}
	if opts.Journal == nil {
		opts.Journal = journal.Nop{}
	}
	d := &Dispatcher{
		store:   opts.Store,
		engine:  opts.Engine,
		replier: opts.Replier,
		metrics: opts.Metrics,
		journal: opts.Journal,
	}
	d.timeouts = timeout.NewManager(timeout.Options{
		Window:    opts.Window,
		Clock:     opts.Clock,
		Serialize: d.exclusive,
	})
	return d, nil
}

func (d *Dispatcher) exclusive(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn()
}

// Handle applies one inbound message: it resets the sender's inactivity timer,
// decides the reply, commits the transition and hands the reply to the Replier.
func (d *Dispatcher) Handle(ctx context.Context, msg Message) (dialogue.Outcome, error) {
	if msg.From == "" {
		return dialogue.Outcome{}, ErrNoSender
	}
	id := msg.From
	ctx = logger.WithSender(ctx, string(id))
	if msg.UpdateID != 0 && logger.RIDFrom(ctx) == "" {
		ctx = logger.WithRID(ctx, logger.BuildRID(msg.UpdateID, string(id)))
	}
	start := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.timeouts.Reset(id, func() { d.expire(id) })

	state, _ := d.store.Get(id)
	out := d.engine.Decide(state, msg.Body, msg.NotifyName)

	if out.End {
		d.store.Remove(id)
		d.timeouts.Cancel(id)
	} else {
		d.store.Set(id, out.Next)
	}

	switch {
	case !state.Active():
		d.metrics.sessionStarted()
		d.journal.Record(ctx, journal.NewEntry(id, journal.EventStarted, out.Next))
		logger.Info(ctx, component, "session.started",
			slog.String("next_state", out.Next.String()),
			slog.Int("sessions", d.store.Len()),
		)
	case out.End:
		d.metrics.sessionEnded(ReasonExit)
		d.journal.Record(ctx, journal.NewEntry(id, journal.EventClosed, state))
		logger.Info(ctx, component, "session.closed",
			slog.String("state", state.String()),
			slog.String("reason", ReasonExit),
			slog.Int("sessions", d.store.Len()),
		)
	}

	if out.Reply != "" {
		d.send(ctx, id, out.Reply)
	}

	took := time.Since(start)
	d.metrics.observeMessage(state, took)
	d.metrics.setActive(d.store.Len())
	logger.Debug(ctx, component, "message.handled",
		slog.String("state", state.String()),
		slog.String("next_state", nextState(out).String()),
		slog.String("outcome", outcomeLabel(state, out)),
		slog.Bool("replied", out.Reply != ""),
		slog.Duration("duration", took),
	)
	return out, nil
}

// expire runs inside the dispatcher's critical section via timeout.Options.Serialize.
func (d *Dispatcher) expire(id session.SenderID) {
	ctx := logger.WithRID(logger.WithSender(context.Background(), string(id)), logger.ExpiryRID(string(id)))

	state, ok := d.store.Get(id)
	if !ok || !d.store.Remove(id) {
		logger.Warn(ctx, component, "session.expire",
			slog.String("status", "stale"),
			slog.String("reason", "no session"),
		)
		return
	}

	d.metrics.sessionEnded(ReasonExpired)
	d.metrics.setActive(d.store.Len())
	d.journal.Record(ctx, journal.NewEntry(id, journal.EventExpired, state))
	logger.Info(ctx, component, "session.expired",
		slog.String("state", state.String()),
		slog.String("reason", ReasonExpired),
		slog.Duration("window", d.timeouts.Window()),
		slog.Int("sessions", d.store.Len()),
	)

	d.send(ctx, id, d.engine.InactivityNotice())
}

// send hands text to the Replier. Failures are logged and counted; state is never rolled back.
func (d *Dispatcher) send(ctx context.Context, to session.SenderID, text string) {
	if err := d.replier.Reply(ctx, to, text); err != nil {
		d.metrics.ReplyFailed()
		logger.Warn(ctx, component, "reply.fail",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}
}

// State reports the stored state for id.
func (d *Dispatcher) State(id session.SenderID) session.State {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, _ := d.store.Get(id)
	return st
}

// Sessions returns the number of active sessions.
func (d *Dispatcher) Sessions() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.store.Len()
}

// Timeouts exposes the inactivity timer manager.
func (d *Dispatcher) Timeouts() *timeout.Manager {
	return d.timeouts
}

// Stop cancels every pending expiry and returns how many were cancelled.
// Sessions stay in the store; nothing expires after Stop.
func (d *Dispatcher) Stop() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.timeouts.Stop()
	logger.Info(context.Background(), component, "timers.stopped",
		slog.Int("pending", n),
		slog.Int("sessions", d.store.Len()),
	)
	return n
}

func nextState(out dialogue.Outcome) session.State {
	if out.End {
		return session.StateNone
	}
	return out.Next
}

func outcomeLabel(state session.State, out dialogue.Outcome) string {
	if state == session.StateGreeted && !out.End && out.Next == session.StateGreeted {
		return "ignored"
	}
	return "ok"
}
