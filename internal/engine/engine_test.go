package engine

import (
	"context"
	"testing"
	"time"

	"predictive-drilling/engine/internal/adapt"
	"predictive-drilling/engine/internal/agent"
	"predictive-drilling/engine/internal/alert/domain"
	"predictive-drilling/engine/internal/alert/repository"
	"predictive-drilling/engine/internal/consensus"
	"predictive-drilling/engine/internal/ingest"
	"predictive-drilling/engine/internal/physics"
	"predictive-drilling/engine/internal/publish"
	"predictive-drilling/engine/internal/window"
)

// stubAgent gives the tests full control over votes and timing.
type stubAgent struct {
	typ   agent.Type
	cat   agent.Category
	score float64
	conf  float64
	delay time.Duration
	state *agent.StateHolder
}

func newStubAgent(typ agent.Type, cat agent.Category, score, conf float64) *stubAgent {
	return &stubAgent{
		typ: typ, cat: cat, score: score, conf: conf,
		state: agent.NewStateHolder(agent.ModelState{Sensitivity: 0.8, Weights: []float64{1.0}}),
	}
}

func (s *stubAgent) Type() agent.Type          { return s.typ }
func (s *stubAgent) Category() agent.Category  { return s.cat }
func (s *stubAgent) State() *agent.StateHolder { return s.state }

func (s *stubAgent) Predict(ctx context.Context, w window.Window) (agent.Prediction, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return agent.Prediction{}, ctx.Err()
		}
	}
	return agent.Prediction{
		Agent:      s.typ,
		Category:   s.cat,
		Score:      s.score,
		Confidence: s.conf,
		WindowEnd:  w.End,
	}, nil
}

type testRig struct {
	engine     *Engine
	registry   *agent.Registry
	repo       *repository.MemoryRepository
	source     *ingest.MemorySource
	publisher  *publish.MemoryPublisher
	feedback   *publish.MemoryFeedbackSource
	controller *adapt.Controller
}

func newTestRig(t *testing.T, agents ...agent.Agent) *testRig {
	t.Helper()
	registry := agent.NewRegistry()
	for _, a := range agents {
		if err := registry.Register(a); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	checker := physics.NewChecker(physics.DefaultBounds())
	repo := repository.NewMemoryRepository()
	aggregator := consensus.New(consensus.Config{
		Thresholds: map[agent.Category]float64{
			agent.CategorySticking:       0.60,
			agent.CategoryWashoutMudLoss: 0.70,
			agent.CategoryHoleCleaning:   0.65,
			agent.CategoryROP:            0.65,
		},
		RecencyDecay:        0.85,
		CorroborationCycles: 3,
	}, repo)
	controller := adapt.NewController(adapt.Config{Step: 0.05, DivergenceTripCount: 5},
		registry, checker, adapt.NewMemoryJournal(), adapt.NewMemoryAuditStore(), repo)
	source := ingest.NewMemorySource()
	publisher := publish.NewMemoryPublisher()
	feedback := publish.NewMemoryFeedbackSource(16)

	eng := New(Config{
		Interval:    10 * time.Millisecond,
		AgentBudget: 50 * time.Millisecond,
		PendingTTL:  10 * time.Minute,
	}, registry, checker, aggregator, controller, repo, source, publisher, feedback, nil, nil, nil)

	return &testRig{
		engine:     eng,
		registry:   registry,
		repo:       repo,
		source:     source,
		publisher:  publisher,
		feedback:   feedback,
		controller: controller,
	}
}

func pushWindow(t *testing.T, rig *testRig) {
	t.Helper()
	start := time.Now().UTC().Add(-10 * time.Second)
	samples := make([]window.Sample, 10)
	for i := range samples {
		samples[i] = window.Sample{
			Timestamp: start.Add(time.Duration(i) * time.Second),
			Depth:     10000, WOB: 25, ROP: 60, RPM: 120, Torque: 10,
			SPP: 3000, FlowRate: 650, ECD: 12, HookLoad: 150,
		}
	}
	w, err := window.New(samples)
	if err != nil {
		t.Fatalf("window.New: %v", err)
	}
	rig.source.Push(w)
}

func TestRunCycle_SkipsWithoutTelemetry(t *testing.T) {
	rig := newTestRig(t, newStubAgent(agent.TypeMechanicalSticking, agent.CategorySticking, 0.9, 0.9))
	report, err := rig.engine.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if !report.Skipped {
		t.Error("cycle without a fresh window should be skipped")
	}
}

func TestRunCycle_RaisesThenRefreshes(t *testing.T) {
	rig := newTestRig(t,
		newStubAgent(agent.TypeMechanicalSticking, agent.CategorySticking, 0.9, 0.9),
		newStubAgent(agent.TypeDifferentialSticking, agent.CategorySticking, 0.85, 0.9),
		newStubAgent(agent.TypeHoleCleaning, agent.CategoryHoleCleaning, 0.1, 0.9),
	)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		pushWindow(t, rig)
		report, err := rig.engine.RunCycle(ctx)
		if err != nil {
			t.Fatalf("cycle %d: %v", i+1, err)
		}
		if report.Skipped {
			t.Fatalf("cycle %d skipped", i+1)
		}
		if len(report.Degraded) != 0 {
			t.Fatalf("cycle %d degraded: %v", i+1, report.Degraded)
		}
		if i == 0 && len(report.Raised) != 1 {
			t.Fatalf("cycle 1 raised %d alerts", len(report.Raised))
		}
		if i > 0 && (len(report.Raised) != 0 || len(report.Refreshed) != 1) {
			t.Fatalf("cycle %d raised %d refreshed %d", i+1, len(report.Raised), len(report.Refreshed))
		}
	}

	// One alert, refreshed twice, published every cycle.
	alerts, err := rig.repo.ListRecent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(alerts) != 1 {
		t.Fatalf("stored alerts = %d, want 1", len(alerts))
	}
	if alerts[0].RefreshCount != 2 {
		t.Errorf("RefreshCount = %d, want 2", alerts[0].RefreshCount)
	}
	if alerts[0].Category != agent.CategorySticking {
		t.Errorf("Category = %s", alerts[0].Category)
	}
	published := rig.publisher.Alerts()
	if len(published) != 3 {
		t.Errorf("published %d alert envelopes, want 3", len(published))
	}
}

func TestRunCycle_TimeoutIsAbsentVoteAndDegradesCoverage(t *testing.T) {
	slow := newStubAgent(agent.TypeHoleCleaning, agent.CategoryHoleCleaning, 0.95, 0.95)
	slow.delay = time.Second // well past the 50ms budget
	rig := newTestRig(t,
		newStubAgent(agent.TypeMechanicalSticking, agent.CategorySticking, 0.9, 0.9),
		newStubAgent(agent.TypeDifferentialSticking, agent.CategorySticking, 0.85, 0.9),
		slow,
	)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		pushWindow(t, rig)
		report, err := rig.engine.RunCycle(ctx)
		if err != nil {
			t.Fatalf("cycle %d: %v", i+1, err)
		}
		if len(report.Timeouts) != 1 || report.Timeouts[0] != agent.TypeHoleCleaning {
			t.Fatalf("cycle %d timeouts = %v", i+1, report.Timeouts)
		}
		if len(report.Degraded) != 1 || report.Degraded[0] != agent.CategoryHoleCleaning {
			t.Fatalf("cycle %d degraded = %v", i+1, report.Degraded)
		}
	}

	// The healthy category still alerts; the silent one never does.
	for _, a := range rig.publisher.Alerts() {
		if a.Category == agent.CategoryHoleCleaning {
			t.Fatal("a category with no responding agent must not alert")
		}
	}
	// Entering degraded coverage is announced once, not per cycle.
	statuses := rig.publisher.Statuses()
	if len(statuses) != 1 {
		t.Fatalf("statuses = %d, want 1", len(statuses))
	}
	if statuses[0].Kind != publish.StatusDegradedCoverage {
		t.Errorf("status kind = %s", statuses[0].Kind)
	}
	if len(statuses[0].Categories) != 1 || statuses[0].Categories[0] != agent.CategoryHoleCleaning {
		t.Errorf("status categories = %v", statuses[0].Categories)
	}

	// Coverage returns, the flag clears.
	slow.delay = 0
	pushWindow(t, rig)
	report, err := rig.engine.RunCycle(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Degraded) != 0 {
		t.Errorf("degraded after recovery = %v", report.Degraded)
	}
}

func TestDrainFeedback_AppliesAndTransitionsAlert(t *testing.T) {
	rig := newTestRig(t,
		newStubAgent(agent.TypeMechanicalSticking, agent.CategorySticking, 0.9, 0.9),
		newStubAgent(agent.TypeDifferentialSticking, agent.CategorySticking, 0.85, 0.9),
	)
	ctx := context.Background()

	pushWindow(t, rig)
	report, err := rig.engine.RunCycle(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Raised) != 1 {
		t.Fatalf("raised %d", len(report.Raised))
	}
	alertID := report.Raised[0].ID

	rig.feedback.Push(domain.FeedbackEvent{
		ID:         "fb-1",
		AlertID:    alertID,
		Kind:       domain.FeedbackConfirmed,
		OccurredAt: time.Now().UTC(),
	})
	rig.engine.DrainFeedback(ctx)

	stored, err := rig.repo.GetByID(ctx, alertID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != domain.StatusConfirmed {
		t.Errorf("alert status = %s, want confirmed", stored.Status)
	}

	// A confirmed alert stops blocking the category, so the next cycle
	// raises a fresh one.
	pushWindow(t, rig)
	report, err = rig.engine.RunCycle(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Raised) != 1 {
		t.Fatalf("post-confirmation cycle raised %d", len(report.Raised))
	}
	if report.Raised[0].ID == alertID {
		t.Error("new alert should have a new ID")
	}
}

func TestRunCycle_ExpiresStalePendingAlerts(t *testing.T) {
	rig := newTestRig(t, newStubAgent(agent.TypeMechanicalSticking, agent.CategorySticking, 0.1, 0.9))
	ctx := context.Background()

	stale := &domain.Alert{
		ID:        "stale",
		Category:  agent.CategoryHoleCleaning,
		Status:    domain.StatusPending,
		CreatedAt: time.Now().UTC().Add(-time.Hour),
		UpdatedAt: time.Now().UTC().Add(-time.Hour),
	}
	if err := rig.repo.Save(ctx, stale); err != nil {
		t.Fatal(err)
	}

	pushWindow(t, rig)
	report, err := rig.engine.RunCycle(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Expired != 1 {
		t.Fatalf("Expired = %d, want 1", report.Expired)
	}
	got, _ := rig.repo.GetByID(ctx, "stale")
	if got.Status != domain.StatusExpired {
		t.Errorf("status = %s, want expired", got.Status)
	}
}

func TestAcknowledgeRecalibration_PublishesStatus(t *testing.T) {
	rig := newTestRig(t, newStubAgent(agent.TypeMechanicalSticking, agent.CategorySticking, 0.5, 0.9))
	rig.engine.AcknowledgeRecalibration(context.Background(), agent.TypeMechanicalSticking)
	statuses := rig.publisher.Statuses()
	if len(statuses) != 1 || statuses[0].Kind != publish.StatusRecalibrated {
		t.Fatalf("statuses = %+v", statuses)
	}
}
