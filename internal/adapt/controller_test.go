package adapt

import (
	"context"
	"math"
	"reflect"
	"testing"
	"time"

	"predictive-drilling/engine/internal/agent"
	"predictive-drilling/engine/internal/alert/domain"
	"predictive-drilling/engine/internal/alert/repository"
	"predictive-drilling/engine/internal/physics"
)

func newTestController(t *testing.T, bounds physics.Bounds, tripCount int) (*Controller, *agent.Registry, *repository.MemoryRepository, *MemoryAuditStore) {
	t.Helper()
	registry := agent.NewDefaultRegistry()
	repo := repository.NewMemoryRepository()
	audit := NewMemoryAuditStore()
	c := NewController(Config{Step: 0.05, DivergenceTripCount: tripCount},
		registry, physics.NewChecker(bounds), NewMemoryJournal(), audit, repo)
	return c, registry, repo, audit
}

func loadState(t *testing.T, r *agent.Registry, typ agent.Type) agent.ModelState {
	t.Helper()
	a, ok := r.Get(typ)
	if !ok {
		t.Fatalf("agent %s not registered", typ)
	}
	return a.(agent.Adaptable).State().Load()
}

func feedback(id string, kind domain.FeedbackKind) domain.FeedbackEvent {
	return domain.FeedbackEvent{
		ID:         id,
		Kind:       kind,
		OccurredAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestApply_FalsePositiveLowersSensitivity(t *testing.T) {
	c, registry, _, audit := newTestController(t, physics.DefaultBounds(), 5)

	ev := feedback("ev-1", domain.FeedbackFalsePositive)
	ev.Agent = agent.TypeMechanicalSticking
	out, err := c.Apply(context.Background(), ev)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.Duplicate || len(out.Applied) != 1 || len(out.Rejected) != 0 {
		t.Fatalf("outcome = %+v", out)
	}

	st := loadState(t, registry, agent.TypeMechanicalSticking)
	if math.Abs(st.Sensitivity-0.75) > 1e-9 {
		t.Errorf("Sensitivity = %v, want 0.75", st.Sensitivity)
	}
	if st.Version != 1 {
		t.Errorf("Version = %d, want 1", st.Version)
	}

	recs := audit.Records()
	if len(recs) != 1 || recs[0].Agent != agent.TypeMechanicalSticking || recs[0].ToVersion != 1 {
		t.Errorf("audit records = %+v", recs)
	}
}

func TestApply_IsIdempotentPerEventID(t *testing.T) {
	c, registry, _, _ := newTestController(t, physics.DefaultBounds(), 5)

	ev := feedback("ev-dup", domain.FeedbackMissed)
	ev.Agent = agent.TypeHoleCleaning
	if _, err := c.Apply(context.Background(), ev); err != nil {
		t.Fatalf("first Apply: %v", err)
	}
	after := loadState(t, registry, agent.TypeHoleCleaning)

	out, err := c.Apply(context.Background(), ev)
	if err != nil {
		t.Fatalf("second Apply: %v", err)
	}
	if !out.Duplicate {
		t.Error("re-applied event should report Duplicate")
	}
	if len(out.Applied) != 0 {
		t.Error("re-applied event must not adjust anything")
	}
	if got := loadState(t, registry, agent.TypeHoleCleaning); !reflect.DeepEqual(got, after) {
		t.Errorf("state changed on duplicate: %+v -> %+v", after, got)
	}
}

func TestApply_MissedTargetsWholeCategory(t *testing.T) {
	c, registry, _, _ := newTestController(t, physics.DefaultBounds(), 5)

	ev := feedback("ev-missed", domain.FeedbackMissed)
	ev.Category = agent.CategorySticking
	out, err := c.Apply(context.Background(), ev)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(out.Applied) != 2 {
		t.Fatalf("applied to %d agents, want both sticking agents", len(out.Applied))
	}
	mech := loadState(t, registry, agent.TypeMechanicalSticking)
	diff := loadState(t, registry, agent.TypeDifferentialSticking)
	if math.Abs(mech.Sensitivity-0.85) > 1e-9 {
		t.Errorf("mechanical Sensitivity = %v, want 0.85", mech.Sensitivity)
	}
	if math.Abs(diff.Sensitivity-0.75) > 1e-9 {
		t.Errorf("differential Sensitivity = %v, want 0.75", diff.Sensitivity)
	}
}

func TestApply_ConfirmedUsesAlertEvidenceAndTransitionsIt(t *testing.T) {
	c, registry, repo, _ := newTestController(t, physics.DefaultBounds(), 5)
	ctx := context.Background()

	a := &domain.Alert{
		ID:               "alert-1",
		Category:         agent.CategorySticking,
		Severity:         domain.SeverityHigh,
		SupportingAgents: []agent.Type{agent.TypeMechanicalSticking},
		Status:           domain.StatusPending,
		CreatedAt:        time.Now().UTC(),
		UpdatedAt:        time.Now().UTC(),
	}
	if err := repo.Save(ctx, a); err != nil {
		t.Fatal(err)
	}

	ev := feedback("ev-confirm", domain.FeedbackConfirmed)
	ev.AlertID = a.ID
	out, err := c.Apply(ctx, ev)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(out.Applied) != 1 || out.Applied[0].Agent != agent.TypeMechanicalSticking {
		t.Fatalf("outcome = %+v", out)
	}

	// Confirmed reinforces at half a step.
	st := loadState(t, registry, agent.TypeMechanicalSticking)
	if math.Abs(st.Sensitivity-0.825) > 1e-9 {
		t.Errorf("Sensitivity = %v, want 0.825", st.Sensitivity)
	}

	stored, err := repo.GetByID(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != domain.StatusConfirmed {
		t.Errorf("alert status = %s, want confirmed", stored.Status)
	}
}

func TestApply_FalsePositiveDismissesAlert(t *testing.T) {
	c, _, repo, _ := newTestController(t, physics.DefaultBounds(), 5)
	ctx := context.Background()

	a := &domain.Alert{
		ID:               "alert-2",
		Category:         agent.CategoryHoleCleaning,
		SupportingAgents: []agent.Type{agent.TypeHoleCleaning},
		Status:           domain.StatusPending,
	}
	if err := repo.Save(ctx, a); err != nil {
		t.Fatal(err)
	}

	ev := feedback("ev-fp", domain.FeedbackFalsePositive)
	ev.AlertID = a.ID
	if _, err := c.Apply(ctx, ev); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	stored, err := repo.GetByID(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != domain.StatusDismissed {
		t.Errorf("alert status = %s, want dismissed", stored.Status)
	}
}

func TestApply_RejectedDeltaLeavesStateUntouched(t *testing.T) {
	// A step ceiling below the configured step rejects every delta.
	bounds := physics.DefaultBounds()
	bounds.MaxSensitivityStep = 0.01
	c, registry, _, _ := newTestController(t, bounds, 5)

	before := loadState(t, registry, agent.TypeMechanicalSticking)
	ev := feedback("ev-rej", domain.FeedbackMissed)
	ev.Agent = agent.TypeMechanicalSticking
	out, err := c.Apply(context.Background(), ev)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(out.Rejected) != 1 || len(out.Applied) != 0 {
		t.Fatalf("outcome = %+v", out)
	}
	if out.Rejected[0].Verdict.Reason != physics.ReasonSensitivityStep {
		t.Errorf("reason = %s", out.Rejected[0].Verdict.Reason)
	}
	if got := loadState(t, registry, agent.TypeMechanicalSticking); !reflect.DeepEqual(got, before) {
		t.Errorf("rejected delta changed state: %+v -> %+v", before, got)
	}
}

func TestApply_ConsecutiveRejectionsTripDivergence(t *testing.T) {
	bounds := physics.DefaultBounds()
	bounds.MaxSensitivityStep = 0.01
	c, registry, _, _ := newTestController(t, bounds, 2)
	ctx := context.Background()

	ev1 := feedback("ev-t1", domain.FeedbackMissed)
	ev1.Agent = agent.TypeWashoutMudLoss
	out, err := c.Apply(ctx, ev1)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Tripped) != 0 {
		t.Fatal("one rejection must not trip divergence")
	}

	ev2 := feedback("ev-t2", domain.FeedbackMissed)
	ev2.Agent = agent.TypeWashoutMudLoss
	out, err = c.Apply(ctx, ev2)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Tripped) != 1 || out.Tripped[0] != agent.TypeWashoutMudLoss {
		t.Fatalf("second rejection should trip: %+v", out)
	}
	if got := c.Diverged(); len(got) != 1 || got[0] != agent.TypeWashoutMudLoss {
		t.Errorf("Diverged = %v", got)
	}

	// Further feedback is skipped while diverged; inference state is frozen.
	ev3 := feedback("ev-t3", domain.FeedbackMissed)
	ev3.Agent = agent.TypeWashoutMudLoss
	out, err = c.Apply(ctx, ev3)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Skipped) != 1 {
		t.Fatalf("diverged agent should be skipped: %+v", out)
	}
	if st := loadState(t, registry, agent.TypeWashoutMudLoss); st.Version != 0 {
		t.Errorf("Version = %d, want 0 (never swapped)", st.Version)
	}

	// Acknowledging recalibration resumes adaptation from a clean counter.
	c.AcknowledgeRecalibration(agent.TypeWashoutMudLoss)
	if got := c.Diverged(); len(got) != 0 {
		t.Errorf("Diverged after ack = %v", got)
	}
	ev4 := feedback("ev-t4", domain.FeedbackMissed)
	ev4.Agent = agent.TypeWashoutMudLoss
	out, err = c.Apply(ctx, ev4)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Rejected) != 1 || len(out.Tripped) != 0 {
		t.Fatalf("after ack the counter restarts: %+v", out)
	}
}

func TestApply_AcceptedSwapResetsRejectionCount(t *testing.T) {
	bounds := physics.DefaultBounds()
	bounds.MaxSensitivityStep = 0.06 // Missed (0.05) passes, nothing trips
	c, _, _, _ := newTestController(t, bounds, 2)
	ctx := context.Background()

	for i, id := range []string{"ev-ok1", "ev-ok2", "ev-ok3"} {
		ev := feedback(id, domain.FeedbackFalsePositive)
		ev.Agent = agent.TypeROPOptimization
		out, err := c.Apply(ctx, ev)
		if err != nil {
			t.Fatalf("Apply %d: %v", i, err)
		}
		if len(out.Applied) != 1 || len(out.Tripped) != 0 {
			t.Fatalf("Apply %d outcome = %+v", i, out)
		}
	}
}

func TestApply_Validation(t *testing.T) {
	c, _, _, _ := newTestController(t, physics.DefaultBounds(), 5)
	ctx := context.Background()

	if _, err := c.Apply(ctx, domain.FeedbackEvent{Kind: domain.FeedbackConfirmed}); err == nil {
		t.Error("event without ID should fail")
	}
	if _, err := c.Apply(ctx, feedback("ev-k", domain.FeedbackKind("nonsense"))); err == nil {
		t.Error("unknown kind should fail")
	}
	if _, err := c.Apply(ctx, feedback("ev-m", domain.FeedbackMissed)); err == nil {
		t.Error("missed feedback without agent or category should fail")
	}
	ev := feedback("ev-a", domain.FeedbackConfirmed)
	ev.AlertID = "no-such-alert"
	if _, err := c.Apply(ctx, ev); err == nil {
		t.Error("confirmed feedback for an unknown alert should fail")
	}
}
