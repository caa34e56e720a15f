// Package journal records session lifecycle events. Message contents are never stored.
package journal

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/m3rciful/menubot/core/session"
)

// Event names a lifecycle transition.
type Event string

const (
	EventStarted Event = "started"
	EventClosed  Event = "closed"
	EventExpired Event = "expired"
)

// Entry is one lifecycle row.
type Entry struct {
	Sender     session.SenderID `db:"sender_id"`
	Event      Event            `db:"event"`
	State      string           `db:"state"`
	OccurredAt time.Time        `db:"occurred_at"`
}

// NewEntry stamps an entry for sender in state.
func NewEntry(sender session.SenderID, event Event, state session.State) Entry {
	return Entry{Sender: sender, Event: event, State: state.String(), OccurredAt: time.Now().UTC()}
}

// Recorder accepts lifecycle entries. Implementations must not block the caller.
type Recorder interface {
	Record(ctx context.Context, e Entry)
}

// Nop discards every entry.
type Nop struct{}

// Record implements Recorder.
func (Nop) Record(context.Context, Entry) {}

// Func adapts a function to Recorder.
type Func func(ctx context.Context, e Entry)

// Record implements Recorder.
func (f Func) Record(ctx context.Context, e Entry) { f(ctx, e) }

// WriteEntries prints one line per entry: time, sender, event and state.
func WriteEntries(w io.Writer, entries []Entry) error {
	for _, e := range entries {
		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			e.OccurredAt.UTC().Format(time.RFC3339), e.Sender, e.Event, e.State); err != nil {
			return err
		}
	}
	return nil
}
