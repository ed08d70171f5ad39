package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"predictive-drilling/engine/internal/agent"
	"predictive-drilling/engine/internal/alert/domain"
)

// MemoryRepository is an in-memory Repository implementation.
type MemoryRepository struct {
	mu     sync.RWMutex
	alerts map[string]domain.Alert
}

// NewMemoryRepository returns an empty in-memory alert store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{alerts: make(map[string]domain.Alert)}
}

// Save persists a new alert.
func (r *MemoryRepository) Save(ctx context.Context, a *domain.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts[a.ID] = cloneAlert(*a)
	return nil
}

// GetByID returns the alert for id, or nil if not found.
func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.alerts[id]
	if !ok {
		return nil, nil
	}
	out := cloneAlert(a)
	return &out, nil
}

// FindPending returns the Pending alert for the category, or nil if none.
func (r *MemoryRepository) FindPending(ctx context.Context, category agent.Category) (*domain.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.alerts {
		if a.Category == category && a.Status == domain.StatusPending {
			out := cloneAlert(a)
			return &out, nil
		}
	}
	return nil, nil
}

// Update rewrites the stored alert.
func (r *MemoryRepository) Update(ctx context.Context, a *domain.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts[a.ID] = cloneAlert(*a)
	return nil
}

// ExpirePending marks Pending alerts last updated before cutoff as Expired.
func (r *MemoryRepository) ExpirePending(ctx context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, a := range r.alerts {
		if a.Status == domain.StatusPending && a.UpdatedAt.Before(cutoff) {
			a.Status = domain.StatusExpired
			a.UpdatedAt = time.Now().UTC()
			r.alerts[id] = a
			n++
		}
	}
	return n, nil
}

// ListRecent returns up to limit alerts, newest first.
func (r *MemoryRepository) ListRecent(ctx context.Context, limit int) ([]*domain.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]domain.Alert, 0, len(r.alerts))
	for _, a := range r.alerts {
		all = append(all, cloneAlert(a))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	out := make([]*domain.Alert, len(all))
	for i := range all {
		out[i] = &all[i]
	}
	return out, nil
}

func cloneAlert(a domain.Alert) domain.Alert {
	a.SupportingAgents = append([]agent.Type(nil), a.SupportingAgents...)
	a.Factors = append([]agent.Factor(nil), a.Factors...)
	return a
}

var _ Repository = (*MemoryRepository)(nil)
