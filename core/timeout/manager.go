// Package timeout keeps one inactivity timer per sender and expires idle sessions.
package timeout

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/menubot/core/logger"
	"github.com/m3rciful/menubot/core/session"
)

// DefaultWindow is the inactivity window after which a session expires.
const DefaultWindow = 300 * time.Second

const component = "timeout"

// Options configures a Manager. Zero values select the defaults.
type Options struct {
	Window time.Duration
	Clock  Clock
	// Serialize runs every expiry callback. Callers use it to execute expiry inside
	// the same critical section as message handling. Nil runs the callback directly.
	Serialize func(func())
}

type handle struct {
	timer Timer
	gen   uint64
}

// Manager owns at most one pending expiry per sender.
type Manager struct {
	window    time.Duration
	clock     Clock
	serialize func(func())

	mu      sync.Mutex
	gen     uint64
	pending map[session.SenderID]handle
}

// NewManager builds a Manager from opts.
func NewManager(opts Options) *Manager {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Serialize == nil {
		opts.Serialize = func(fn func()) { fn() }
	}
	return &Manager{
		window:    opts.Window,
		clock:     opts.Clock,
		serialize: opts.Serialize,
		pending:   make(map[session.SenderID]handle),
	}
}

// Window returns the configured inactivity window.
func (m *Manager) Window() time.Duration {
	return m.window
}

// Reset cancels any pending expiry for id and schedules onExpire after the window.
// A timer superseded by Reset never invokes its callback, even if it already fired
// and is waiting on Serialize.
func (m *Manager) Reset(id session.SenderID, onExpire func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopLocked(id)
	m.gen++
	gen := m.gen
	timer := m.clock.AfterFunc(m.window, func() {
		m.serialize(func() { m.fire(id, gen, onExpire) })
	})
	m.pending[id] = handle{timer: timer, gen: gen}

	logger.Debug(logger.WithSender(context.Background(), string(id)), component, "timer.armed",
		slog.Duration("window", m.window),
		slog.Int("pending", len(m.pending)),
	)
}

// Cancel stops and forgets the pending expiry for id. It reports whether one existed.
func (m *Manager) Cancel(id session.SenderID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.stopLocked(id) {
		return false
	}
	logger.Debug(logger.WithSender(context.Background(), string(id)), component, "timer.cancelled",
		slog.Int("pending", len(m.pending)),
	)
	return true
}

// Pending reports whether an expiry is scheduled for id.
func (m *Manager) Pending(id session.SenderID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pending[id]
	return ok
}

// Len returns the number of scheduled expiries.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Stop cancels every pending expiry. Used on shutdown.
func (m *Manager) Stop() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id := range m.pending {
		if m.stopLocked(id) {
			n++
		}
	}
	return n
}

func (m *Manager) stopLocked(id session.SenderID) bool {
	h, ok := m.pending[id]
	if !ok {
		return false
	}
	h.timer.Stop()
	delete(m.pending, id)
	return true
}

// fire forgets the handle before running onExpire, so a re-entrant Reset or Cancel
// from the callback sees a clean slate.
func (m *Manager) fire(id session.SenderID, gen uint64, onExpire func()) {
	ctx := logger.WithRID(logger.WithSender(context.Background(), string(id)), logger.ExpiryRID(string(id)))

	m.mu.Lock()
	h, ok := m.pending[id]
	if !ok || h.gen != gen {
		m.mu.Unlock()
		logger.Debug(ctx, component, "timer.stale",
			slog.String("status", "stale"),
			slog.Bool("superseded", ok),
		)
		return
	}
	delete(m.pending, id)
	m.mu.Unlock()

	logger.Info(ctx, component, "timer.fired",
		slog.Duration("window", m.window),
	)
	if onExpire != nil {
		onExpire()
	}
}
