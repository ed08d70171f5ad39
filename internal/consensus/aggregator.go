// Package consensus reconciles constraint-passed predictions into a single
// validated alert stream: at most one alert per category per detection cycle.
package consensus

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"predictive-drilling/engine/internal/agent"
	"predictive-drilling/engine/internal/alert/domain"
	"predictive-drilling/engine/internal/alert/repository"
)

// Config tunes the voting rules.
type Config struct {
	// Thresholds are per-category weighted-vote thresholds.
	Thresholds map[agent.Category]float64
	// RecencyDecay is the per-cycle multiplier applied to votes carried from
	// earlier cycles (0..1].
	RecencyDecay float64
	// CorroborationCycles is how many consecutive cycles a vote stays
	// eligible as a corroborating signal. Minimum 2.
	CorroborationCycles int
}

// Threshold returns the threshold for the category, defaulting to 0.6 for
// categories without explicit configuration (future agents).
func (c Config) Threshold(cat agent.Category) float64 {
	if t, ok := c.Thresholds[cat]; ok {
		return t
	}
	return 0.6
}

// Result is what one aggregation pass produced.
type Result struct {
	// Raised are newly created Pending alerts, in presentation order
	// (descending weighted vote, then category priority).
	Raised []*domain.Alert
	// Refreshed are already-Pending alerts whose severity and evidence were
	// updated in place instead of raising duplicates.
	Refreshed []*domain.Alert
}

// pastVote is one agent's vote retained for cross-cycle corroboration.
type pastVote struct {
	cycle      int64
	prediction agent.Prediction
}

// Aggregator turns per-cycle voting sets into alerts. Not safe for
// concurrent Aggregate calls: the engine serializes cycles, which is also
// what preserves temporal ordering of alerts.
type Aggregator struct {
	cfg     Config
	repo    repository.Repository
	nowFunc func() time.Time

	cycle   int64
	history map[agent.Type]pastVote
}

// New returns an aggregator writing through the given alert repository.
func New(cfg Config, repo repository.Repository) *Aggregator {
	if cfg.CorroborationCycles < 2 {
		cfg.CorroborationCycles = 2
	}
	if cfg.RecencyDecay <= 0 || cfg.RecencyDecay > 1 {
		cfg.RecencyDecay = 0.85
	}
	return &Aggregator{
		cfg:     cfg,
		repo:    repo,
		nowFunc: func() time.Time { return time.Now().UTC() },
		history: make(map[agent.Type]pastVote),
	}
}

// Aggregate runs one consensus pass over the surviving predictions of a
// cycle. Predictions that failed constraint checking must not be passed in;
// nothing here re-validates them.
func (g *Aggregator) Aggregate(ctx context.Context, predictions []agent.Prediction) (Result, error) {
	g.cycle++

	byCategory := make(map[agent.Category][]agent.Prediction)
	for _, p := range predictions {
		byCategory[p.Category] = append(byCategory[p.Category], p)
	}

	type candidate struct {
		category agent.Category
		vote     float64
		preds    []agent.Prediction
		agents   []agent.Type
	}
	var candidates []candidate

	for category, preds := range byCategory {
		vote, supporting := g.weightedVote(preds)
		if vote < g.cfg.Threshold(category) {
			continue
		}
		if !g.corroborated(preds) {
			continue
		}
		candidates = append(candidates, candidate{
			category: category,
			vote:     vote,
			preds:    preds,
			agents:   supporting,
		})
	}

	// Record this cycle's votes for cross-cycle corroboration before any
	// early return so a below-threshold cycle still seeds the next one.
	for _, p := range predictions {
		g.history[p.Agent] = pastVote{cycle: g.cycle, prediction: p}
	}
	g.pruneHistory()

	// Presentation order: descending weighted vote, then fixed category priority.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].vote != candidates[j].vote {
			return candidates[i].vote > candidates[j].vote
		}
		return candidates[i].category.Priority() < candidates[j].category.Priority()
	})

	var result Result
	now := g.nowFunc()
	for _, c := range candidates {
		existing, err := g.repo.FindPending(ctx, c.category)
		if err != nil {
			return result, fmt.Errorf("consensus: find pending %s: %w", c.category, err)
		}
		strongest := strongestPrediction(c.preds)
		if existing != nil {
			refresh(existing, c.vote, c.agents, strongest, buildRecommendation(c.preds), now)
			if err := g.repo.Update(ctx, existing); err != nil {
				return result, fmt.Errorf("consensus: refresh alert %s: %w", existing.ID, err)
			}
			result.Refreshed = append(result.Refreshed, existing)
			continue
		}
		a := &domain.Alert{
			ID:               uuid.NewString(),
			Category:         c.category,
			Severity:         domain.SeverityForVote(c.vote),
			WeightedVote:     c.vote,
			SupportingAgents: c.agents,
			WindowEnd:        strongest.WindowEnd,
			Message:          buildMessage(c.category, c.vote, strongest),
			Recommendation:   buildRecommendation(c.preds),
			Factors:          strongest.Evidence.Factors,
			Status:           domain.StatusPending,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := g.repo.Save(ctx, a); err != nil {
			return result, fmt.Errorf("consensus: save alert %s: %w", a.ID, err)
		}
		result.Raised = append(result.Raised, a)
	}
	return result, nil
}

// weightedVote computes the confidence-weighted mean score for a category,
// folding in decayed prior-cycle votes from agents silent this cycle.
// Returns the vote and the distinct supporting agent types.
func (g *Aggregator) weightedVote(current []agent.Prediction) (float64, []agent.Type) {
	var num, den float64
	supporting := make([]agent.Type, 0, len(current))
	seen := make(map[agent.Type]bool)

	for _, p := range current {
		num += p.Score * p.Confidence
		den += p.Confidence
		if !seen[p.Agent] {
			seen[p.Agent] = true
			supporting = append(supporting, p.Agent)
		}
	}
	category := current[0].Category
	for t, past := range g.history {
		if seen[t] || past.prediction.Category != category {
			continue
		}
		age := g.cycle - past.cycle
		if age < 1 || int(age) >= g.cfg.CorroborationCycles {
			continue
		}
		decay := 1.0
		for i := int64(0); i < age; i++ {
			decay *= g.cfg.RecencyDecay
		}
		w := past.prediction.Confidence * decay
		num += past.prediction.Score * w
		den += w
	}
	if den == 0 {
		return 0, supporting
	}
	sort.Slice(supporting, func(i, j int) bool { return supporting[i] < supporting[j] })
	return num / den, supporting
}

// corroborated enforces the two-signal rule: at least two distinct agents
// this cycle, or one agent with another vote for the same category within
// the corroboration window.
func (g *Aggregator) corroborated(current []agent.Prediction) bool {
	agents := make(map[agent.Type]bool)
	for _, p := range current {
		agents[p.Agent] = true
	}
	if len(agents) >= 2 {
		return true
	}
	for _, p := range current {
		past, ok := g.history[p.Agent]
		if !ok || past.prediction.Category != p.Category {
			continue
		}
		if age := g.cycle - past.cycle; age >= 1 && int(age) < g.cfg.CorroborationCycles {
			return true
		}
	}
	return false
}

func (g *Aggregator) pruneHistory() {
	for t, past := range g.history {
		if int(g.cycle-past.cycle) >= g.cfg.CorroborationCycles {
			delete(g.history, t)
		}
	}
}

func strongestPrediction(preds []agent.Prediction) agent.Prediction {
	best := preds[0]
	for _, p := range preds[1:] {
		if p.Score*p.Confidence > best.Score*best.Confidence {
			best = p
		}
	}
	return best
}

func refresh(a *domain.Alert, vote float64, agents []agent.Type, strongest agent.Prediction, recommendation string, now time.Time) {
	a.Severity = domain.SeverityForVote(vote)
	a.WeightedVote = vote
	a.SupportingAgents = agents
	a.WindowEnd = strongest.WindowEnd
	a.Message = buildMessage(a.Category, vote, strongest)
	a.Recommendation = recommendation
	a.Factors = strongest.Evidence.Factors
	a.RefreshCount++
	a.UpdatedAt = now
}

func buildMessage(category agent.Category, vote float64, strongest agent.Prediction) string {
	label := categoryLabel(category, strongest)
	msg := fmt.Sprintf("%s risk detected (%.1f%%)", label, vote*100)
	if len(strongest.Evidence.Factors) > 0 {
		parts := make([]string, 0, len(strongest.Evidence.Factors))
		for _, f := range strongest.Evidence.Factors {
			parts = append(parts, fmt.Sprintf("%s (%s)", f.Name, f.Value))
		}
		msg += ". Contributing factors: " + strings.Join(parts, ", ")
	}
	return msg
}

func categoryLabel(category agent.Category, strongest agent.Prediction) string {
	switch category {
	case agent.CategorySticking:
		if strongest.Agent == agent.TypeDifferentialSticking {
			return "Differential sticking"
		}
		return "Mechanical sticking"
	case agent.CategoryWashoutMudLoss:
		if strongest.Evidence.IssueKind != "" {
			return strongest.Evidence.IssueKind
		}
		return "Washout"
	case agent.CategoryHoleCleaning:
		return "Hole cleaning"
	case agent.CategoryROP:
		return "Suboptimal ROP"
	default:
		return string(category)
	}
}

func buildRecommendation(preds []agent.Prediction) string {
	var out []string
	seen := make(map[string]bool)
	for _, p := range preds {
		for _, r := range p.Recommendations {
			if !seen[r] {
				seen[r] = true
				out = append(out, r)
			}
		}
	}
	if len(out) == 0 {
		return "Monitor drilling parameters closely"
	}
	return strings.Join(out, "; ")
}
