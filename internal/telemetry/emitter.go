// Package telemetry mirrors the outbound feed into observability backends.
package telemetry

import (
	"context"

	"predictive-drilling/engine/internal/publish"
)

// EventEmitter emits feed envelopes (e.g. to OTel Logs). Best-effort;
// callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, env *publish.Envelope) error
}
