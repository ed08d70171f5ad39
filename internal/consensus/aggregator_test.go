package consensus

import (
	"context"
	"math"
	"testing"
	"time"

	"predictive-drilling/engine/internal/agent"
	"predictive-drilling/engine/internal/alert/domain"
	"predictive-drilling/engine/internal/alert/repository"
)

func testConfig() Config {
	return Config{
		Thresholds: map[agent.Category]float64{
			agent.CategorySticking:       0.60,
			agent.CategoryWashoutMudLoss: 0.70,
			agent.CategoryHoleCleaning:   0.65,
			agent.CategoryROP:            0.65,
		},
		RecencyDecay:        0.85,
		CorroborationCycles: 3,
	}
}

func pred(t agent.Type, cat agent.Category, score, conf float64) agent.Prediction {
	return agent.Prediction{
		Agent:      t,
		Category:   cat,
		Score:      score,
		Confidence: conf,
		WindowEnd:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestAggregate_CrossAgentCorroboration(t *testing.T) {
	repo := repository.NewMemoryRepository()
	g := New(testConfig(), repo)

	res, err := g.Aggregate(context.Background(), []agent.Prediction{
		pred(agent.TypeMechanicalSticking, agent.CategorySticking, 0.8, 0.9),
		pred(agent.TypeDifferentialSticking, agent.CategorySticking, 0.7, 0.8),
	})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(res.Raised) != 1 || len(res.Refreshed) != 0 {
		t.Fatalf("raised %d refreshed %d, want 1/0", len(res.Raised), len(res.Refreshed))
	}
	a := res.Raised[0]
	wantVote := (0.8*0.9 + 0.7*0.8) / (0.9 + 0.8)
	if math.Abs(a.WeightedVote-wantVote) > 1e-9 {
		t.Errorf("WeightedVote = %.4f, want %.4f", a.WeightedVote, wantVote)
	}
	if a.Severity != domain.SeverityMedium {
		t.Errorf("Severity = %s, want medium for vote %.2f", a.Severity, a.WeightedVote)
	}
	if a.Status != domain.StatusPending {
		t.Errorf("Status = %s, want pending", a.Status)
	}
	if len(a.SupportingAgents) != 2 {
		t.Errorf("SupportingAgents = %v", a.SupportingAgents)
	}
	if a.ID == "" || a.Message == "" {
		t.Error("alert should have an ID and a message")
	}
}

func TestAggregate_SingleSignalDoesNotAlert(t *testing.T) {
	repo := repository.NewMemoryRepository()
	g := New(testConfig(), repo)

	// One agent, one cycle: over threshold but only one signal.
	res, err := g.Aggregate(context.Background(), []agent.Prediction{
		pred(agent.TypeMechanicalSticking, agent.CategorySticking, 0.95, 0.95),
	})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(res.Raised) != 0 {
		t.Fatalf("single uncorroborated signal raised an alert: %+v", res.Raised[0])
	}

	// Same agent next cycle: the repeat is the second signal.
	res, err = g.Aggregate(context.Background(), []agent.Prediction{
		pred(agent.TypeMechanicalSticking, agent.CategorySticking, 0.85, 0.9),
	})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(res.Raised) != 1 {
		t.Fatal("repeated signal across consecutive cycles should alert")
	}
	if math.Abs(res.Raised[0].WeightedVote-0.85) > 1e-9 {
		t.Errorf("WeightedVote = %.4f, want 0.85 (current vote only)", res.Raised[0].WeightedVote)
	}
}

func TestAggregate_HistoryCorroborationExpires(t *testing.T) {
	repo := repository.NewMemoryRepository()
	g := New(testConfig(), repo) // eligible window: 2 cycles back at most

	ctx := context.Background()
	if _, err := g.Aggregate(ctx, []agent.Prediction{
		pred(agent.TypeMechanicalSticking, agent.CategorySticking, 0.9, 0.9),
	}); err != nil {
		t.Fatal(err)
	}
	// Two silent cycles push the old vote out of the corroboration window.
	if _, err := g.Aggregate(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Aggregate(ctx, nil); err != nil {
		t.Fatal(err)
	}
	res, err := g.Aggregate(ctx, []agent.Prediction{
		pred(agent.TypeMechanicalSticking, agent.CategorySticking, 0.9, 0.9),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Raised) != 0 {
		t.Error("a vote older than the corroboration window must not corroborate")
	}
}

func TestAggregate_DecayedHistoryFoldsIntoVote(t *testing.T) {
	repo := repository.NewMemoryRepository()
	g := New(testConfig(), repo)
	ctx := context.Background()

	// Cycle 1: strong mechanical vote, below two signals.
	if _, err := g.Aggregate(ctx, []agent.Prediction{
		pred(agent.TypeMechanicalSticking, agent.CategorySticking, 0.9, 1.0),
	}); err != nil {
		t.Fatal(err)
	}
	// Cycle 2: differential votes; mechanical's decayed vote lifts the mean
	// but cannot corroborate a different agent.
	res, err := g.Aggregate(ctx, []agent.Prediction{
		pred(agent.TypeDifferentialSticking, agent.CategorySticking, 0.5, 1.0),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Raised) != 0 {
		t.Fatal("different agents in different cycles are not two signals")
	}
	// Cycle 3: differential repeats, which is corroboration; mechanical's
	// vote is now two cycles old and decays twice.
	res, err = g.Aggregate(ctx, []agent.Prediction{
		pred(agent.TypeDifferentialSticking, agent.CategorySticking, 0.5, 1.0),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Raised) != 1 {
		t.Fatal("repeated differential vote should alert")
	}
	decay := 0.85 * 0.85
	wantVote := (0.5 + 0.9*decay) / (1 + decay)
	if math.Abs(res.Raised[0].WeightedVote-wantVote) > 1e-9 {
		t.Errorf("WeightedVote = %.4f, want %.4f", res.Raised[0].WeightedVote, wantVote)
	}
	if len(res.Raised[0].SupportingAgents) != 1 || res.Raised[0].SupportingAgents[0] != agent.TypeDifferentialSticking {
		t.Errorf("SupportingAgents = %v, want current voters only", res.Raised[0].SupportingAgents)
	}
}

func TestAggregate_CategoriesAreIsolated(t *testing.T) {
	repo := repository.NewMemoryRepository()
	g := New(testConfig(), repo)

	// Two agents over threshold, but in different categories: one signal each.
	res, err := g.Aggregate(context.Background(), []agent.Prediction{
		pred(agent.TypeMechanicalSticking, agent.CategorySticking, 0.9, 0.9),
		pred(agent.TypeHoleCleaning, agent.CategoryHoleCleaning, 0.9, 0.9),
	})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(res.Raised) != 0 {
		t.Errorf("votes in different categories must not corroborate each other: %d raised", len(res.Raised))
	}
}

func TestAggregate_BelowThresholdNoAlert(t *testing.T) {
	repo := repository.NewMemoryRepository()
	g := New(testConfig(), repo)

	res, err := g.Aggregate(context.Background(), []agent.Prediction{
		pred(agent.TypeMechanicalSticking, agent.CategorySticking, 0.5, 0.9),
		pred(agent.TypeDifferentialSticking, agent.CategorySticking, 0.5, 0.9),
	})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(res.Raised) != 0 {
		t.Error("corroborated but below threshold must not alert")
	}
}

func TestAggregate_TieBreakByCategoryPriority(t *testing.T) {
	repo := repository.NewMemoryRepository()
	g := New(testConfig(), repo)

	// Equal votes in two categories; sticking outranks hole cleaning.
	res, err := g.Aggregate(context.Background(), []agent.Prediction{
		pred(agent.TypeHoleCleaning, agent.CategoryHoleCleaning, 0.9, 0.8),
		pred(agent.TypeROPOptimization, agent.CategoryHoleCleaning, 0.9, 0.8),
		pred(agent.TypeMechanicalSticking, agent.CategorySticking, 0.9, 0.8),
		pred(agent.TypeDifferentialSticking, agent.CategorySticking, 0.9, 0.8),
	})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(res.Raised) != 2 {
		t.Fatalf("raised %d, want 2", len(res.Raised))
	}
	if res.Raised[0].Category != agent.CategorySticking {
		t.Errorf("first alert category = %s, want sticking on tie", res.Raised[0].Category)
	}
	if res.Raised[1].Category != agent.CategoryHoleCleaning {
		t.Errorf("second alert category = %s", res.Raised[1].Category)
	}
}

func TestAggregate_RefreshesPendingInsteadOfDuplicating(t *testing.T) {
	repo := repository.NewMemoryRepository()
	g := New(testConfig(), repo)
	ctx := context.Background()

	votes := []agent.Prediction{
		pred(agent.TypeMechanicalSticking, agent.CategorySticking, 0.85, 0.9),
		pred(agent.TypeDifferentialSticking, agent.CategorySticking, 0.85, 0.9),
	}
	first, err := g.Aggregate(ctx, votes)
	if err != nil {
		t.Fatal(err)
	}
	if len(first.Raised) != 1 {
		t.Fatalf("cycle 1 raised %d", len(first.Raised))
	}
	id := first.Raised[0].ID

	second, err := g.Aggregate(ctx, votes)
	if err != nil {
		t.Fatal(err)
	}
	if len(second.Raised) != 0 || len(second.Refreshed) != 1 {
		t.Fatalf("cycle 2 raised %d refreshed %d, want 0/1", len(second.Raised), len(second.Refreshed))
	}
	if second.Refreshed[0].ID != id {
		t.Error("refresh must keep the original alert ID")
	}
	if second.Refreshed[0].RefreshCount != 1 {
		t.Errorf("RefreshCount = %d, want 1", second.Refreshed[0].RefreshCount)
	}

	stored, err := repo.GetByID(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if stored.RefreshCount != 1 {
		t.Errorf("stored RefreshCount = %d, want 1", stored.RefreshCount)
	}

	// A dismissed alert no longer blocks a fresh one.
	stored.Status = domain.StatusDismissed
	if err := repo.Update(ctx, stored); err != nil {
		t.Fatal(err)
	}
	third, err := g.Aggregate(ctx, votes)
	if err != nil {
		t.Fatal(err)
	}
	if len(third.Raised) != 1 {
		t.Fatalf("cycle 3 raised %d, want a new alert after dismissal", len(third.Raised))
	}
	if third.Raised[0].ID == id {
		t.Error("new alert must have a new ID")
	}
}

func TestAggregate_HighVoteIsHighSeverity(t *testing.T) {
	repo := repository.NewMemoryRepository()
	g := New(testConfig(), repo)

	res, err := g.Aggregate(context.Background(), []agent.Prediction{
		pred(agent.TypeMechanicalSticking, agent.CategorySticking, 0.95, 1.0),
		pred(agent.TypeDifferentialSticking, agent.CategorySticking, 0.9, 1.0),
	})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(res.Raised) != 1 {
		t.Fatal("expected one alert")
	}
	if res.Raised[0].Severity != domain.SeverityHigh {
		t.Errorf("Severity = %s, want high for vote %.3f", res.Raised[0].Severity, res.Raised[0].WeightedVote)
	}
}
