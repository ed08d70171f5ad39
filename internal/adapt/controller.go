// Package adapt is the online adaptation controller: it turns feedback about
// alerts into small, physics-bounded adjustments of agent model state.
package adapt

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"predictive-drilling/engine/internal/agent"
	"predictive-drilling/engine/internal/alert/domain"
	"predictive-drilling/engine/internal/alert/repository"
	"predictive-drilling/engine/internal/physics"
)

// Config tunes the controller.
type Config struct {
	// Step is the sensitivity adjustment applied per feedback event.
	// Confirmed feedback reinforces at half a step.
	Step float64
	// DivergenceTripCount is how many consecutive rejected deltas trip
	// ModelDivergence for an agent.
	DivergenceTripCount int
}

// Change is one accepted model-state swap.
type Change struct {
	Agent agent.Type
	From  agent.ModelState
	To    agent.ModelState
}

// Rejection is one delta the constraint checker refused. The live snapshot
// is untouched.
type Rejection struct {
	Agent   agent.Type
	Verdict physics.Verdict
}

// Outcome reports what applying one feedback event did.
type Outcome struct {
	// Duplicate is true when the event ID was already journaled; nothing else
	// in the outcome is populated.
	Duplicate bool
	Applied   []Change
	Rejected  []Rejection
	// Skipped lists agents whose adaptation is suspended by divergence.
	Skipped []agent.Type
	// Tripped lists agents that crossed the divergence threshold on this event.
	Tripped []agent.Type
}

// Controller applies feedback events. Apply is serialized internally; the
// engine drains feedback between cycles, so contention is not a concern.
type Controller struct {
	cfg      Config
	registry *agent.Registry
	checker  *physics.Checker
	journal  Journal
	audit    AuditStore
	alerts   repository.Repository

	mu         sync.Mutex
	rejections map[agent.Type]int
	diverged   map[agent.Type]bool
}

// NewController wires the controller. The audit store may be nil when no
// persistence is configured.
func NewController(cfg Config, registry *agent.Registry, checker *physics.Checker, journal Journal, audit AuditStore, alerts repository.Repository) *Controller {
	if cfg.Step <= 0 {
		cfg.Step = 0.05
	}
	if cfg.DivergenceTripCount < 1 {
		cfg.DivergenceTripCount = 5
	}
	return &Controller{
		cfg:        cfg,
		registry:   registry,
		checker:    checker,
		journal:    journal,
		audit:      audit,
		alerts:     alerts,
		rejections: make(map[agent.Type]int),
		diverged:   make(map[agent.Type]bool),
	}
}

// Apply processes one feedback event. Re-applying an event with the same ID
// is a no-op reported via Outcome.Duplicate.
func (c *Controller) Apply(ctx context.Context, ev domain.FeedbackEvent) (Outcome, error) {
	var out Outcome
	if ev.ID == "" {
		return out, fmt.Errorf("adapt: feedback event has no ID")
	}
	switch ev.Kind {
	case domain.FeedbackConfirmed, domain.FeedbackFalsePositive, domain.FeedbackMissed:
	default:
		return out, fmt.Errorf("adapt: unknown feedback kind %q", ev.Kind)
	}
	if ev.Kind == domain.FeedbackMissed && ev.Agent == "" && ev.Category == "" {
		return out, fmt.Errorf("adapt: missed feedback needs an agent or a category")
	}

	first, err := c.journal.MarkApplied(ctx, ev.ID, ev.OccurredAt)
	if err != nil {
		return out, fmt.Errorf("adapt: journal event %s: %w", ev.ID, err)
	}
	if !first {
		out.Duplicate = true
		return out, nil
	}

	targets, err := c.resolveTargets(ctx, ev)
	if err != nil {
		return out, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, t := range targets {
		if c.diverged[t] {
			out.Skipped = append(out.Skipped, t)
			continue
		}
		a, ok := c.registry.Get(t)
		if !ok {
			continue
		}
		adaptable, ok := a.(agent.Adaptable)
		if !ok {
			continue
		}
		holder := adaptable.State()
		prev := holder.Load()
		next := c.candidate(prev, ev.Kind)

		if v := c.checker.CheckStateDelta(prev, next); !v.OK {
			out.Rejected = append(out.Rejected, Rejection{Agent: t, Verdict: v})
			c.rejections[t]++
			if c.rejections[t] >= c.cfg.DivergenceTripCount {
				c.diverged[t] = true
				out.Tripped = append(out.Tripped, t)
			}
			continue
		}

		published := holder.Swap(next)
		c.rejections[t] = 0
		out.Applied = append(out.Applied, Change{Agent: t, From: prev, To: published})
		if c.audit != nil {
			rec := SwapRecord{
				EventID:     ev.ID,
				Agent:       t,
				Kind:        ev.Kind,
				FromVersion: prev.Version,
				ToVersion:   published.Version,
				Sensitivity: published.Sensitivity,
				Weights:     published.Weights,
				SwappedAt:   published.UpdatedAt,
			}
			if err := c.audit.RecordSwap(ctx, rec); err != nil {
				return out, fmt.Errorf("adapt: audit swap for %s: %w", t, err)
			}
		}
	}

	if err := c.transitionAlert(ctx, ev); err != nil {
		return out, err
	}
	return out, nil
}

// candidate builds the adjusted state for one feedback kind. The sensitivity
// move is clamped into physical bounds so routine feedback at the rails does
// not read as divergence.
func (c *Controller) candidate(prev agent.ModelState, kind domain.FeedbackKind) agent.ModelState {
	next := prev.Clone()
	bounds := c.checker.Bounds()
	var delta float64
	switch kind {
	case domain.FeedbackConfirmed:
		delta = c.cfg.Step / 2
	case domain.FeedbackMissed:
		delta = c.cfg.Step
	case domain.FeedbackFalsePositive:
		delta = -c.cfg.Step
	}
	next.Sensitivity = prev.Sensitivity + delta
	if next.Sensitivity > bounds.MaxSensitivity {
		next.Sensitivity = bounds.MaxSensitivity
	}
	if next.Sensitivity < bounds.MinSensitivity {
		next.Sensitivity = bounds.MinSensitivity
	}
	return next
}

// resolveTargets maps the event to the agents it adjusts: the named agent,
// else the supporting agents of the referenced alert, else (for Missed)
// every agent of the category.
func (c *Controller) resolveTargets(ctx context.Context, ev domain.FeedbackEvent) ([]agent.Type, error) {
	if ev.Agent != "" {
		return []agent.Type{ev.Agent}, nil
	}
	if ev.Kind == domain.FeedbackMissed {
		var out []agent.Type
		for _, a := range c.registry.All() {
			if a.Category() == ev.Category {
				out = append(out, a.Type())
			}
		}
		return out, nil
	}
	if ev.AlertID == "" {
		return nil, fmt.Errorf("adapt: %s feedback %s references no alert", ev.Kind, ev.ID)
	}
	a, err := c.alerts.GetByID(ctx, ev.AlertID)
	if err != nil {
		return nil, fmt.Errorf("adapt: load alert %s: %w", ev.AlertID, err)
	}
	if a == nil {
		return nil, fmt.Errorf("adapt: feedback %s references unknown alert %s", ev.ID, ev.AlertID)
	}
	return append([]agent.Type(nil), a.SupportingAgents...), nil
}

// transitionAlert moves the referenced alert out of Pending: Confirmed
// feedback confirms it, FalsePositive dismisses it. Terminal alerts and
// Missed feedback are left alone.
func (c *Controller) transitionAlert(ctx context.Context, ev domain.FeedbackEvent) error {
	if ev.AlertID == "" || ev.Kind == domain.FeedbackMissed {
		return nil
	}
	a, err := c.alerts.GetByID(ctx, ev.AlertID)
	if err != nil || a == nil || a.Terminal() {
		return err
	}
	switch ev.Kind {
	case domain.FeedbackConfirmed:
		a.Status = domain.StatusConfirmed
	case domain.FeedbackFalsePositive:
		a.Status = domain.StatusDismissed
	}
	a.UpdatedAt = time.Now().UTC()
	return c.alerts.Update(ctx, a)
}

// Diverged returns the agents whose adaptation is currently suspended,
// sorted by type.
func (c *Controller) Diverged() []agent.Type {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]agent.Type, 0, len(c.diverged))
	for t := range c.diverged {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AcknowledgeRecalibration clears the divergence trip for an agent after an
// operator has reviewed and recalibrated it. Adaptation resumes from the
// current snapshot.
func (c *Controller) AcknowledgeRecalibration(t agent.Type) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.diverged, t)
	c.rejections[t] = 0
}
