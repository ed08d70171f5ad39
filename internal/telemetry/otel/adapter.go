package otel

import (
	"context"
	"encoding/json"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"predictive-drilling/engine/internal/publish"
	"predictive-drilling/engine/internal/telemetry"
)

// NewEventEmitter returns an EventEmitter that sends feed envelopes as OTel
// log records via the given LoggerProvider. If provider is nil, returns a
// no-op emitter.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return noopEmitter{}
	}
	return &otelEmitter{logger: provider.Logger("drilling.feed")}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *publish.Envelope) error { return nil }

type otelEmitter struct {
	logger otellog.Logger
}

// Emit converts the envelope to an OTel log record and emits it. Best-effort.
func (e *otelEmitter) Emit(ctx context.Context, env *publish.Envelope) error {
	if env == nil {
		return nil
	}
	rec := otellog.Record{}
	rec.AddAttributes(otellog.String("feed_type", env.Type))
	switch {
	case env.Alert != nil:
		a := env.Alert
		rec.SetTimestamp(a.UpdatedAt)
		rec.AddAttributes(
			otellog.String("alert_id", a.ID),
			otellog.String("category", string(a.Category)),
			otellog.String("severity", string(a.Severity)),
			otellog.String("status", string(a.Status)),
			otellog.Float64("weighted_vote", a.WeightedVote),
		)
		if body, err := json.Marshal(a); err == nil {
			rec.SetBody(otellog.BytesValue(body))
		}
	case env.Status != nil:
		s := env.Status
		rec.SetTimestamp(s.At)
		rec.AddAttributes(otellog.String("status_kind", string(s.Kind)))
		if body, err := json.Marshal(s); err == nil {
			rec.SetBody(otellog.BytesValue(body))
		}
	}
	if rec.Timestamp().IsZero() {
		rec.SetTimestamp(time.Now().UTC())
	}
	e.logger.Emit(ctx, rec)
	return nil
}
