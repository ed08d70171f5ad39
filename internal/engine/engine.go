// Package engine runs the detection loop: fan out predictions, filter them
// through the physics constraints, reconcile by consensus, publish, and
// drain feedback into the adaptation controller.
package engine

import (
	"context"
	"errors"
	"log"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"predictive-drilling/engine/internal/adapt"
	"predictive-drilling/engine/internal/agent"
	"predictive-drilling/engine/internal/alert/domain"
	"predictive-drilling/engine/internal/alert/repository"
	"predictive-drilling/engine/internal/consensus"
	"predictive-drilling/engine/internal/ingest"
	"predictive-drilling/engine/internal/physics"
	"predictive-drilling/engine/internal/publish"
	"predictive-drilling/engine/internal/telemetry"
	"predictive-drilling/engine/internal/window"
)

// Config tunes the loop.
type Config struct {
	// Interval between cycle starts.
	Interval time.Duration
	// AgentBudget is the per-agent prediction deadline within a cycle. An
	// agent missing it simply does not vote this cycle.
	AgentBudget time.Duration
	// PendingTTL expires Pending alerts that stopped being refreshed.
	PendingTTL time.Duration
}

// CycleReport summarizes one cycle for callers driving the engine
// synchronously (tests, mainly).
type CycleReport struct {
	Cycle       int64
	Skipped     bool // no fresh window
	Predictions int
	Timeouts    []agent.Type
	Rejected    []physics.Verdict
	Raised      []*domain.Alert
	Refreshed   []*domain.Alert
	Expired     int
	// Degraded lists categories with no responding agent this cycle. The
	// flag is sticky across cycles until coverage returns.
	Degraded []agent.Category
}

// Engine owns cycle sequencing. Cycles never overlap: Run executes them one
// at a time, which is what keeps the alert stream strictly ordered.
type Engine struct {
	cfg        Config
	registry   *agent.Registry
	checker    *physics.Checker
	aggregator *consensus.Aggregator
	controller *adapt.Controller
	alerts     repository.Repository
	source     ingest.Source
	publisher  publish.Publisher
	feedback   publish.FeedbackSource
	emitter    telemetry.EventEmitter
	metrics    *telemetry.Metrics
	tracer     trace.Tracer

	cycle    int64
	degraded map[agent.Category]bool
}

// New wires an engine. emitter may be nil; feedback may be nil when no
// feedback topic is configured.
func New(cfg Config, registry *agent.Registry, checker *physics.Checker, aggregator *consensus.Aggregator,
	controller *adapt.Controller, alerts repository.Repository, source ingest.Source,
	publisher publish.Publisher, feedback publish.FeedbackSource,
	emitter telemetry.EventEmitter, metrics *telemetry.Metrics, tracer trace.Tracer) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.AgentBudget <= 0 {
		cfg.AgentBudget = 1500 * time.Millisecond
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = 10 * time.Minute
	}
	return &Engine{
		cfg:        cfg,
		registry:   registry,
		checker:    checker,
		aggregator: aggregator,
		controller: controller,
		alerts:     alerts,
		source:     source,
		publisher:  publisher,
		feedback:   feedback,
		emitter:    emitter,
		metrics:    metrics,
		tracer:     tracer,
		degraded:   make(map[agent.Category]bool),
	}
}

// Run drives cycles at the configured interval until ctx is done. Feedback
// is drained between cycles so adaptation never races inference fan-out.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := e.RunCycle(ctx); err != nil {
				log.Printf("engine: cycle %d: %v", e.cycle, err)
			}
			e.DrainFeedback(ctx)
		}
	}
}

// RunCycle executes one full detection cycle synchronously. Individual agent
// failures, constraint rejections, and publish errors never abort the cycle;
// only repository failures do.
func (e *Engine) RunCycle(ctx context.Context) (CycleReport, error) {
	e.cycle++
	report := CycleReport{Cycle: e.cycle}
	start := time.Now()

	var span trace.Span
	if e.tracer != nil {
		ctx, span = e.tracer.Start(ctx, "engine.cycle",
			trace.WithAttributes(attribute.Int64("cycle", e.cycle)))
		defer span.End()
	}

	w, ok, err := e.source.Latest(ctx)
	if err != nil {
		return report, err
	}
	if !ok {
		report.Skipped = true
		return report, nil
	}
	if span != nil {
		span.SetAttributes(attribute.Float64("window.age_seconds", w.Age(start).Seconds()))
	}

	preds, timeouts, covered := e.fanOut(ctx, w)
	report.Timeouts = timeouts
	report.Predictions = len(preds)

	accepted := preds[:0]
	for _, p := range preds {
		v := e.checker.CheckPrediction(p)
		if !v.OK {
			report.Rejected = append(report.Rejected, v)
			log.Printf("engine: dropped %s prediction: %s (%s)", p.Agent, v.Reason, v.Detail)
			if e.metrics != nil {
				e.metrics.Rejections.Add(ctx, 1, metric.WithAttributes(
					attribute.String("agent", string(p.Agent)),
					attribute.String("reason", string(v.Reason))))
			}
			continue
		}
		accepted = append(accepted, p)
	}

	result, err := e.aggregator.Aggregate(ctx, accepted)
	if err != nil {
		return report, err
	}
	report.Raised = result.Raised
	report.Refreshed = result.Refreshed

	for _, a := range result.Raised {
		e.publishAlert(ctx, a)
		if e.metrics != nil {
			e.metrics.AlertsRaised.Add(ctx, 1, metric.WithAttributes(
				attribute.String("category", string(a.Category)),
				attribute.String("severity", string(a.Severity))))
		}
	}
	for _, a := range result.Refreshed {
		e.publishAlert(ctx, a)
		if e.metrics != nil {
			e.metrics.AlertsRefreshed.Add(ctx, 1, metric.WithAttributes(
				attribute.String("category", string(a.Category))))
		}
	}

	expired, err := e.alerts.ExpirePending(ctx, time.Now().UTC().Add(-e.cfg.PendingTTL))
	if err != nil {
		return report, err
	}
	report.Expired = expired
	if expired > 0 && e.metrics != nil {
		e.metrics.AlertsExpired.Add(ctx, int64(expired))
	}

	report.Degraded = e.updateCoverage(ctx, covered)

	if e.metrics != nil {
		e.metrics.Cycles.Add(ctx, 1)
		e.metrics.CycleDuration.Record(ctx, time.Since(start).Seconds())
		e.metrics.Predictions.Add(ctx, int64(len(preds)))
		if len(report.Degraded) > 0 {
			e.metrics.DegradedCycles.Add(ctx, 1)
		}
	}
	return report, nil
}

// fanOut asks every registered agent for a prediction in parallel, each with
// its own budget. A late or failed agent contributes no vote; its result, if
// it ever arrives, is discarded.
func (e *Engine) fanOut(ctx context.Context, w window.Window) (preds []agent.Prediction, timeouts []agent.Type, covered map[agent.Category]bool) {
	agents := e.registry.All()
	type slot struct {
		pred agent.Prediction
		err  error
	}
	results := make([]slot, len(agents))
	done := make(chan int, len(agents))

	for i, a := range agents {
		go func(i int, a agent.Agent) {
			budgetCtx, cancel := context.WithTimeout(ctx, e.cfg.AgentBudget)
			defer cancel()
			ch := make(chan slot, 1)
			go func() {
				p, err := a.Predict(budgetCtx, w)
				ch <- slot{pred: p, err: err}
			}()
			select {
			case s := <-ch:
				results[i] = s
			case <-budgetCtx.Done():
				results[i] = slot{err: budgetCtx.Err()}
			}
			done <- i
		}(i, a)
	}
	for range agents {
		<-done
	}

	covered = make(map[agent.Category]bool)
	for i, a := range agents {
		s := results[i]
		if s.err != nil {
			if errors.Is(s.err, context.DeadlineExceeded) {
				timeouts = append(timeouts, a.Type())
				if e.metrics != nil {
					e.metrics.AgentTimeouts.Add(ctx, 1, metric.WithAttributes(
						attribute.String("agent", string(a.Type()))))
				}
			} else {
				log.Printf("engine: agent %s failed: %v", a.Type(), s.err)
			}
			continue
		}
		covered[a.Category()] = true
		preds = append(preds, s.pred)
	}
	return preds, timeouts, covered
}

// updateCoverage maintains the sticky degraded flags and publishes a status
// notice when a category newly loses coverage. Returns the categories
// degraded this cycle, in priority order.
func (e *Engine) updateCoverage(ctx context.Context, covered map[agent.Category]bool) []agent.Category {
	var degraded, entered []agent.Category
	for _, cat := range e.registry.Categories() {
		if covered[cat] {
			if e.degraded[cat] {
				delete(e.degraded, cat)
				log.Printf("engine: coverage restored for %s", cat)
			}
			continue
		}
		if !e.degraded[cat] {
			e.degraded[cat] = true
			entered = append(entered, cat)
		}
		degraded = append(degraded, cat)
	}
	if len(entered) > 0 {
		sort.Slice(entered, func(i, j int) bool { return entered[i].Priority() < entered[j].Priority() })
		s := publish.Status{
			Kind:       publish.StatusDegradedCoverage,
			Cycle:      e.cycle,
			Categories: entered,
			Detail:     "no agent responded for these categories; absence of alerts is not all-clear",
			At:         time.Now().UTC(),
		}
		e.publishStatus(ctx, s)
	}
	return degraded
}

// DrainFeedback applies queued feedback events. It returns once the queue is
// momentarily empty; a short per-read deadline bounds the wait.
func (e *Engine) DrainFeedback(ctx context.Context) {
	if e.feedback == nil || e.controller == nil {
		return
	}
	for {
		readCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		ev, err := e.feedback.Next(readCtx)
		cancel()
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, context.DeadlineExceeded) {
				log.Printf("engine: feedback read: %v", err)
			}
			return
		}
		out, err := e.controller.Apply(ctx, ev)
		if err != nil {
			log.Printf("engine: feedback %s: %v", ev.ID, err)
			continue
		}
		if e.metrics != nil && !out.Duplicate {
			e.metrics.FeedbackApplied.Add(ctx, 1, metric.WithAttributes(
				attribute.String("kind", string(ev.Kind))))
		}
		if len(out.Tripped) > 0 {
			if e.metrics != nil {
				e.metrics.DivergenceTrips.Add(ctx, int64(len(out.Tripped)))
			}
			s := publish.Status{
				Kind:   publish.StatusModelDivergence,
				Cycle:  e.cycle,
				Agents: out.Tripped,
				Detail: "adaptation suspended until recalibration is acknowledged; inference continues on the last good snapshot",
				At:     time.Now().UTC(),
			}
			e.publishStatus(ctx, s)
		}
	}
}

// AcknowledgeRecalibration resumes adaptation for an agent and announces it
// on the status feed.
func (e *Engine) AcknowledgeRecalibration(ctx context.Context, t agent.Type) {
	if e.controller == nil {
		return
	}
	e.controller.AcknowledgeRecalibration(t)
	e.publishStatus(ctx, publish.Status{
		Kind:   publish.StatusRecalibrated,
		Cycle:  e.cycle,
		Agents: []agent.Type{t},
		At:     time.Now().UTC(),
	})
}

func (e *Engine) publishAlert(ctx context.Context, a *domain.Alert) {
	if err := e.publisher.Publish(ctx, a); err != nil {
		log.Printf("engine: publish alert %s: %v", a.ID, err)
	}
	telemetry.EmitAsync(e.emitter, ctx, &publish.Envelope{Type: "alert", Alert: a})
}

func (e *Engine) publishStatus(ctx context.Context, s publish.Status) {
	if err := e.publisher.PublishStatus(ctx, s); err != nil {
		log.Printf("engine: publish status %s: %v", s.Kind, err)
	}
	telemetry.EmitAsync(e.emitter, ctx, &publish.Envelope{Type: "status", Status: &s})
}
