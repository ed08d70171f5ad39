package telemetry

import (
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the engine's meter instruments. Record sites attach
// category/agent/reason attributes.
type Metrics struct {
	Cycles          metric.Int64Counter
	CycleDuration   metric.Float64Histogram
	Predictions     metric.Int64Counter
	AgentTimeouts   metric.Int64Counter
	Rejections      metric.Int64Counter
	AlertsRaised    metric.Int64Counter
	AlertsRefreshed metric.Int64Counter
	AlertsExpired   metric.Int64Counter
	DegradedCycles  metric.Int64Counter
	FeedbackApplied metric.Int64Counter
	DivergenceTrips metric.Int64Counter
}

// NewMetrics creates the instruments on the given provider. With a no-op
// provider every Record call is free, so callers never need nil checks.
func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter("drilling.engine")
	var m Metrics
	var err error
	if m.Cycles, err = meter.Int64Counter("engine.cycles",
		metric.WithDescription("Detection cycles completed")); err != nil {
		return nil, err
	}
	if m.CycleDuration, err = meter.Float64Histogram("engine.cycle.duration",
		metric.WithDescription("Detection cycle wall time"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.Predictions, err = meter.Int64Counter("engine.predictions",
		metric.WithDescription("Predictions returned by agents")); err != nil {
		return nil, err
	}
	if m.AgentTimeouts, err = meter.Int64Counter("engine.agent.timeouts",
		metric.WithDescription("Agent predictions that missed the cycle deadline")); err != nil {
		return nil, err
	}
	if m.Rejections, err = meter.Int64Counter("engine.constraint.rejections",
		metric.WithDescription("Predictions dropped by the physics constraint checker")); err != nil {
		return nil, err
	}
	if m.AlertsRaised, err = meter.Int64Counter("engine.alerts.raised",
		metric.WithDescription("New alerts raised")); err != nil {
		return nil, err
	}
	if m.AlertsRefreshed, err = meter.Int64Counter("engine.alerts.refreshed",
		metric.WithDescription("Pending alerts refreshed in place")); err != nil {
		return nil, err
	}
	if m.AlertsExpired, err = meter.Int64Counter("engine.alerts.expired",
		metric.WithDescription("Pending alerts expired by TTL")); err != nil {
		return nil, err
	}
	if m.DegradedCycles, err = meter.Int64Counter("engine.cycles.degraded",
		metric.WithDescription("Cycles with at least one uncovered category")); err != nil {
		return nil, err
	}
	if m.FeedbackApplied, err = meter.Int64Counter("engine.feedback.applied",
		metric.WithDescription("Feedback events applied by the adaptation controller")); err != nil {
		return nil, err
	}
	if m.DivergenceTrips, err = meter.Int64Counter("engine.model.divergence",
		metric.WithDescription("Agents tripped into model divergence")); err != nil {
		return nil, err
	}
	return &m, nil
}
