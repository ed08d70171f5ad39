package adapt

import (
	"context"
	"database/sql"
	"sync"
	"time"
)

// Journal records which feedback events have already been applied. Feedback
// arrives at-least-once over Kafka, so the journal is what makes adaptation
// idempotent per event ID.
//
// The controller journals before it mutates: a crash between the two loses
// that event rather than risking a double-applied sensitivity delta on
// redelivery. Feedback is advisory and the next event nudges the model the
// same way, so a lost nudge is recoverable; a doubled one is not.
type Journal interface {
	// MarkApplied records the event ID and reports whether this call was the
	// first to do so. A false return means the event was applied before and
	// must be skipped.
	MarkApplied(ctx context.Context, eventID string, occurredAt time.Time) (bool, error)
}

// MemoryJournal keeps applied event IDs in memory. Used in tests and when no
// database is configured; restarts forget the journal, so a database should
// back any deployment that replays feedback.
type MemoryJournal struct {
	mu   sync.Mutex
	seen map[string]bool
}

// NewMemoryJournal returns an empty in-memory journal.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{seen: make(map[string]bool)}
}

func (j *MemoryJournal) MarkApplied(ctx context.Context, eventID string, occurredAt time.Time) (bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.seen[eventID] {
		return false, nil
	}
	j.seen[eventID] = true
	return true, nil
}

// PostgresJournal persists applied event IDs in the feedback_journal table.
type PostgresJournal struct {
	db *sql.DB
}

// NewPostgresJournal returns a journal backed by the given database.
func NewPostgresJournal(db *sql.DB) *PostgresJournal {
	return &PostgresJournal{db: db}
}

func (j *PostgresJournal) MarkApplied(ctx context.Context, eventID string, occurredAt time.Time) (bool, error) {
	res, err := j.db.ExecContext(ctx, `
		INSERT INTO feedback_journal (event_id, occurred_at, applied_at)
		VALUES ($1, $2, now())
		ON CONFLICT (event_id) DO NOTHING`,
		eventID, occurredAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

var (
	_ Journal = (*MemoryJournal)(nil)
	_ Journal = (*PostgresJournal)(nil)
)
