// Package domain defines the validated alert stream types: the Alert raised
// by consensus, its lifecycle, and the operator feedback that drives it.
package domain

import (
	"time"

	"predictive-drilling/engine/internal/agent"
)

// Severity buckets derived from the weighted consensus vote, not from any
// single raw score.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// SeverityForVote maps a weighted vote to a severity band.
func SeverityForVote(vote float64) Severity {
	switch {
	case vote >= 0.8:
		return SeverityHigh
	case vote >= 0.6:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Status is the alert lifecycle state. Transitions: Pending -> Confirmed,
// Pending -> Dismissed (operator), Pending -> Expired (TTL).
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusDismissed Status = "dismissed"
	StatusExpired   Status = "expired"
)

// Alert is the consensus aggregator's output: at most one per category per
// detection cycle. Immutable value semantics; refreshes create an updated
// copy persisted under the same ID.
type Alert struct {
	ID       string
	Category agent.Category
	Severity Severity
	// WeightedVote is the consensus vote that raised (or last refreshed) the alert.
	WeightedVote float64
	// SupportingAgents are the agent types whose predictions corroborated the alert.
	SupportingAgents []agent.Type
	// WindowEnd is the close time of the telemetry window behind the latest evidence.
	WindowEnd time.Time
	// Message is the operator-facing description (category, probability, factors).
	Message string
	// Recommendation is the joined action text from the supporting predictions.
	Recommendation string
	// Factors are the contributing factors from the strongest supporting prediction.
	Factors []agent.Factor
	Status  Status
	// RefreshCount is how many consecutive cycles re-qualified this alert while Pending.
	RefreshCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Terminal reports whether the alert has left the Pending state.
func (a *Alert) Terminal() bool {
	return a.Status != StatusPending
}
