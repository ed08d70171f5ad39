package domain

import (
	"time"

	"predictive-drilling/engine/internal/agent"
)

// FeedbackKind classifies an operator or outcome-derived signal about an alert.
type FeedbackKind string

const (
	// FeedbackConfirmed: the alerted condition was real.
	FeedbackConfirmed FeedbackKind = "confirmed"
	// FeedbackFalsePositive: the alert was wrong; the agents over-called.
	FeedbackFalsePositive FeedbackKind = "false_positive"
	// FeedbackMissed: a condition occurred that no alert covered; the agents under-called.
	FeedbackMissed FeedbackKind = "missed"
)

// FeedbackEvent is consumed exactly once by the adaptation controller.
// Events are idempotent by ID: applying the same event twice must not
// double-adjust any model state.
type FeedbackEvent struct {
	ID      string `json:"id"`
	AlertID string `json:"alertId"`
	// Agent optionally targets a single agent; empty applies to every agent
	// that supported the alert (or, for Missed, every agent of the category).
	Agent agent.Type `json:"agent,omitempty"`
	// Category is required for Missed feedback, which references no alert evidence.
	Category   agent.Category `json:"category,omitempty"`
	Kind       FeedbackKind   `json:"kind"`
	OccurredAt time.Time      `json:"occurredAt"`
}
