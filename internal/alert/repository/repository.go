// Package repository persists alerts. The engine uses the Postgres
// implementation in production and the in-memory implementation in tests and
// when no DATABASE_URL is configured.
package repository

import (
	"context"
	"time"

	"predictive-drilling/engine/internal/agent"
	"predictive-drilling/engine/internal/alert/domain"
)

// Repository is the alert store used by the cycle engine and the feedback path.
type Repository interface {
	// Save persists a new alert. The alert must have ID set.
	Save(ctx context.Context, a *domain.Alert) error
	// GetByID returns the alert for id, or nil if not found.
	// It returns an error only for store failures, not for missing rows.
	GetByID(ctx context.Context, id string) (*domain.Alert, error)
	// FindPending returns the Pending alert for the category, or nil if none.
	FindPending(ctx context.Context, category agent.Category) (*domain.Alert, error)
	// Update rewrites the stored alert (refresh or lifecycle transition).
	Update(ctx context.Context, a *domain.Alert) error
	// ExpirePending marks Pending alerts last updated before cutoff as Expired
	// and returns how many were expired.
	ExpirePending(ctx context.Context, cutoff time.Time) (int, error)
	// ListRecent returns up to limit alerts, newest first.
	ListRecent(ctx context.Context, limit int) ([]*domain.Alert, error)
}
