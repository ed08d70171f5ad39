package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"predictive-drilling/engine/internal/agent"
	"predictive-drilling/engine/internal/alert/domain"
)

// PostgresRepository is the production alert store.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an alert repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const alertColumns = `id, category, severity, weighted_vote, supporting_agents, window_end,
	message, recommendation, factors, status, refresh_count, created_at, updated_at`

// Save persists a new alert. The alert must have ID set.
func (r *PostgresRepository) Save(ctx context.Context, a *domain.Alert) error {
	agents, factors, err := encodeEvidence(a)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO alerts (`+alertColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		a.ID, string(a.Category), string(a.Severity), a.WeightedVote, agents, a.WindowEnd,
		a.Message, a.Recommendation, factors, string(a.Status), a.RefreshCount, a.CreatedAt, a.UpdatedAt)
	return err
}

// GetByID returns the alert for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Alert, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

// FindPending returns the Pending alert for the category, or nil if none.
func (r *PostgresRepository) FindPending(ctx context.Context, category agent.Category) (*domain.Alert, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+alertColumns+` FROM alerts
		WHERE category = $1 AND status = $2
		ORDER BY updated_at DESC LIMIT 1`,
		string(category), string(domain.StatusPending))
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

// Update rewrites the stored alert (refresh or lifecycle transition).
func (r *PostgresRepository) Update(ctx context.Context, a *domain.Alert) error {
	agents, factors, err := encodeEvidence(a)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE alerts SET severity = $2, weighted_vote = $3, supporting_agents = $4,
			window_end = $5, message = $6, recommendation = $7, factors = $8,
			status = $9, refresh_count = $10, updated_at = $11
		WHERE id = $1`,
		a.ID, string(a.Severity), a.WeightedVote, agents, a.WindowEnd,
		a.Message, a.Recommendation, factors, string(a.Status), a.RefreshCount, a.UpdatedAt)
	return err
}

// ExpirePending marks Pending alerts last updated before cutoff as Expired.
func (r *PostgresRepository) ExpirePending(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE alerts SET status = $1, updated_at = now()
		WHERE status = $2 AND updated_at < $3`,
		string(domain.StatusExpired), string(domain.StatusPending), cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ListRecent returns up to limit alerts, newest first.
func (r *PostgresRepository) ListRecent(ctx context.Context, limit int) ([]*domain.Alert, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+alertColumns+` FROM alerts ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*domain.Alert, error) {
	var a domain.Alert
	var category, severity, status string
	var agents, factors []byte
	if err := row.Scan(&a.ID, &category, &severity, &a.WeightedVote, &agents, &a.WindowEnd,
		&a.Message, &a.Recommendation, &factors, &status, &a.RefreshCount, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Category = agent.Category(category)
	a.Severity = domain.Severity(severity)
	a.Status = domain.Status(status)
	if len(agents) > 0 {
		if err := json.Unmarshal(agents, &a.SupportingAgents); err != nil {
			return nil, err
		}
	}
	if len(factors) > 0 {
		if err := json.Unmarshal(factors, &a.Factors); err != nil {
			return nil, err
		}
	}
	return &a, nil
}

func encodeEvidence(a *domain.Alert) (agents, factors []byte, err error) {
	agents, err = json.Marshal(a.SupportingAgents)
	if err != nil {
		return nil, nil, err
	}
	factors, err = json.Marshal(a.Factors)
	if err != nil {
		return nil, nil, err
	}
	return agents, factors, nil
}

var _ Repository = (*PostgresRepository)(nil)
