package publish

import (
	"context"
	"sync"

	"predictive-drilling/engine/internal/alert/domain"
)

// MemoryPublisher records the feed in memory. Used in tests and when no
// brokers are configured.
type MemoryPublisher struct {
	mu       sync.Mutex
	alerts   []domain.Alert
	statuses []Status
}

// NewMemoryPublisher returns an empty in-memory publisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Publish(ctx context.Context, a *domain.Alert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts = append(p.alerts, *a)
	return nil
}

func (p *MemoryPublisher) PublishStatus(ctx context.Context, s Status) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses = append(p.statuses, s)
	return nil
}

func (p *MemoryPublisher) Close() error { return nil }

// Alerts returns a copy of everything published so far, in publish order.
func (p *MemoryPublisher) Alerts() []domain.Alert {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Alert(nil), p.alerts...)
}

// Statuses returns a copy of every status published so far.
func (p *MemoryPublisher) Statuses() []Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Status(nil), p.statuses...)
}

// MemoryFeedbackSource is a channel-backed feedback source for tests.
type MemoryFeedbackSource struct {
	ch chan domain.FeedbackEvent
}

// NewMemoryFeedbackSource returns a source buffering up to n events.
func NewMemoryFeedbackSource(n int) *MemoryFeedbackSource {
	return &MemoryFeedbackSource{ch: make(chan domain.FeedbackEvent, n)}
}

// Push queues an event for delivery. Panics if the buffer is full; tests
// size the buffer for what they send.
func (s *MemoryFeedbackSource) Push(ev domain.FeedbackEvent) {
	select {
	case s.ch <- ev:
	default:
		panic("publish: memory feedback buffer full")
	}
}

func (s *MemoryFeedbackSource) Next(ctx context.Context) (domain.FeedbackEvent, error) {
	select {
	case ev := <-s.ch:
		return ev, nil
	case <-ctx.Done():
		return domain.FeedbackEvent{}, ctx.Err()
	}
}

func (s *MemoryFeedbackSource) Close() error { return nil }

var (
	_ Publisher      = (*MemoryPublisher)(nil)
	_ FeedbackSource = (*MemoryFeedbackSource)(nil)
)
