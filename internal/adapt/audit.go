package adapt

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"predictive-drilling/engine/internal/agent"
	"predictive-drilling/engine/internal/alert/domain"
)

// SwapRecord is the audit trail entry for one accepted model-state swap.
type SwapRecord struct {
	EventID     string
	Agent       agent.Type
	Kind        domain.FeedbackKind
	FromVersion int64
	ToVersion   int64
	Sensitivity float64
	Weights     []float64
	SwappedAt   time.Time
}

// AuditStore persists accepted swaps so operators can reconstruct how a
// model drifted from its defaults.
type AuditStore interface {
	RecordSwap(ctx context.Context, rec SwapRecord) error
}

// MemoryAuditStore keeps swap records in memory, newest last.
type MemoryAuditStore struct {
	mu      sync.Mutex
	records []SwapRecord
}

// NewMemoryAuditStore returns an empty in-memory audit store.
func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{}
}

func (s *MemoryAuditStore) RecordSwap(ctx context.Context, rec SwapRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Weights = append([]float64(nil), rec.Weights...)
	s.records = append(s.records, rec)
	return nil
}

// Records returns a copy of all recorded swaps in order of recording.
func (s *MemoryAuditStore) Records() []SwapRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SwapRecord(nil), s.records...)
}

// PostgresAuditStore writes swap records to the model_state_audit table.
type PostgresAuditStore struct {
	db *sql.DB
}

// NewPostgresAuditStore returns an audit store backed by the given database.
func NewPostgresAuditStore(db *sql.DB) *PostgresAuditStore {
	return &PostgresAuditStore{db: db}
}

func (s *PostgresAuditStore) RecordSwap(ctx context.Context, rec SwapRecord) error {
	weights, err := json.Marshal(rec.Weights)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO model_state_audit
			(event_id, agent_type, feedback_kind, from_version, to_version, sensitivity, weights, swapped_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.EventID, string(rec.Agent), string(rec.Kind), rec.FromVersion, rec.ToVersion,
		rec.Sensitivity, weights, rec.SwappedAt)
	return err
}

var (
	_ AuditStore = (*MemoryAuditStore)(nil)
	_ AuditStore = (*PostgresAuditStore)(nil)
)
