// Package publish carries the engine's outbound feed (alerts and engine
// status) and the inbound feedback stream.
package publish

import (
	"context"
	"time"

	"predictive-drilling/engine/internal/agent"
	"predictive-drilling/engine/internal/alert/domain"
)

// StatusKind classifies an engine status notice.
type StatusKind string

const (
	// StatusDegradedCoverage: every agent of a category failed or timed out
	// this cycle; consumers must treat the absence of alerts for those
	// categories as unknown, not as all-clear.
	StatusDegradedCoverage StatusKind = "degraded_coverage"
	// StatusModelDivergence: an agent's adaptation tripped the consecutive
	// rejection limit and is suspended pending recalibration.
	StatusModelDivergence StatusKind = "model_divergence"
	// StatusRecalibrated: an operator acknowledged recalibration and
	// adaptation resumed for the listed agents.
	StatusRecalibrated StatusKind = "recalibrated"
)

// Status is a non-alert notice about engine health.
type Status struct {
	Kind       StatusKind       `json:"kind"`
	Cycle      int64            `json:"cycle,omitempty"`
	Categories []agent.Category `json:"categories,omitempty"`
	Agents     []agent.Type     `json:"agents,omitempty"`
	Detail     string           `json:"detail,omitempty"`
	At         time.Time        `json:"at"`
}

// Envelope is the wire format of the outbound feed. Exactly one of Alert and
// Status is set, discriminated by Type.
type Envelope struct {
	Type   string        `json:"type"` // "alert" or "status"
	Alert  *domain.Alert `json:"alert,omitempty"`
	Status *Status       `json:"status,omitempty"`
}

// Publisher emits the outbound feed. Callers use it best-effort: log and
// continue, a publish failure never halts the detection loop.
type Publisher interface {
	Publish(ctx context.Context, a *domain.Alert) error
	PublishStatus(ctx context.Context, s Status) error
	// Close releases resources. Safe to call if already closed.
	Close() error
}

// FeedbackSource delivers feedback events at least once. Next blocks until
// an event arrives or ctx is done; the engine drains with a short deadline
// between cycles.
type FeedbackSource interface {
	Next(ctx context.Context) (domain.FeedbackEvent, error)
	Close() error
}
