package journal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/menubot/core/logger"
	"github.com/m3rciful/menubot/core/outbox"
	"github.com/m3rciful/menubot/core/session"
)

const component = "journal"

const insertEntry = `INSERT INTO session_events (sender_id, event, state, occurred_at)
VALUES (:sender_id, :event, :state, :occurred_at)`

const selectRecent = `SELECT sender_id, event, state, occurred_at
FROM session_events
WHERE sender_id = $1
ORDER BY occurred_at DESC, id DESC
LIMIT $2`

// Enqueuer schedules asynchronous work. *outbox.Outbox satisfies it.
type Enqueuer interface {
	Enqueue(ctx context.Context, action string, run outbox.Job) error
}

// Postgres writes entries to the session_events table through an Enqueuer.
type Postgres struct {
	db  *sqlx.DB
	out Enqueuer
}

// NewPostgres returns a recorder backed by db. Writes run on out.
func NewPostgres(db *sqlx.DB, out Enqueuer) *Postgres {
	return &Postgres{db: db, out: out}
}

// Record queues e for insertion. A saturated queue drops the entry with a warning.
func (p *Postgres) Record(ctx context.Context, e Entry) {
	err := p.out.Enqueue(ctx, "journal."+string(e.Event), func(ctx context.Context) error {
		return p.Insert(ctx, e)
	})
	if err != nil {
		logger.Warn(ctx, component, "journal.drop",
			slog.String("status", "skip"),
			slog.String("action", string(e.Event)),
			slog.String("err", err.Error()),
		)
	}
}

// Insert writes e synchronously.
func (p *Postgres) Insert(ctx context.Context, e Entry) error {
	if _, err := p.db.NamedExecContext(ctx, insertEntry, e); err != nil {
		return fmt.Errorf("insert session event: %w", err)
	}
	return nil
}

// Recent returns up to limit latest entries for sender, newest first.
func (p *Postgres) Recent(ctx context.Context, sender session.SenderID, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []Entry
	if err := p.db.SelectContext(ctx, &out, selectRecent, string(sender), limit); err != nil {
		return nil, fmt.Errorf("select session events: %w", err)
	}
	return out, nil
}
