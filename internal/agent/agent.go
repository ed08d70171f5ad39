// Package agent defines the detection agent contract and the five built-in
// physics-informed agents: mechanical sticking, differential sticking, hole
// cleaning, washout/mud losses, and ROP optimization.
//
// Agents are polymorphic over a single capability: producing a Prediction
// from a telemetry window. Adding an agent type is a registry change; the
// consensus aggregator never enumerates concrete agents.
package agent

import (
	"context"
	"errors"
	"time"

	"predictive-drilling/engine/internal/window"
)

// ErrAgentUnavailable is returned when an agent cannot produce a prediction
// (crash, missed budget). The cycle treats it as an absent vote.
var ErrAgentUnavailable = errors.New("agent: unavailable")

// Type identifies a concrete agent.
type Type string

// Built-in agent types. Future agents register new values; nothing outside
// the registry switches on this set.
const (
	TypeMechanicalSticking   Type = "mechanical_sticking"
	TypeDifferentialSticking Type = "differential_sticking"
	TypeHoleCleaning         Type = "hole_cleaning"
	TypeWashoutMudLoss       Type = "washout_mud_loss"
	TypeROPOptimization      Type = "rop_optimization"
)

// Category is the detection category an agent votes for. Sticking is served
// by both the mechanical and differential agents.
type Category string

const (
	CategorySticking       Category = "sticking"
	CategoryWashoutMudLoss Category = "washout_mud_loss"
	CategoryHoleCleaning   Category = "hole_cleaning"
	CategoryROP            Category = "rop_optimization"
)

// Priority returns the presentation priority of the category; lower is more
// urgent. Sticking outranks washout/mud-loss, then hole cleaning, then ROP.
func (c Category) Priority() int {
	switch c {
	case CategorySticking:
		return 0
	case CategoryWashoutMudLoss:
		return 1
	case CategoryHoleCleaning:
		return 2
	case CategoryROP:
		return 3
	default:
		return 4
	}
}

// Factor is a named contributing factor with its observed value, carried as
// alert evidence (e.g. "High Drag Factor" / "0.85").
type Factor struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Evidence is the structured justification attached to a prediction.
type Evidence struct {
	// Factors are the contributing factors in order of significance.
	Factors []Factor `json:"factors,omitempty"`
	// Residuals are named physics residuals (dimensionless, expected |r| <= bound)
	// checked by the constraint checker before the prediction may vote.
	Residuals map[string]float64 `json:"residuals,omitempty"`
	// IssueKind discriminates washout from mud losses for the washout/mud-loss agent.
	IssueKind string `json:"issueKind,omitempty"`
	// RecommendedParameters holds the ROP agent's proposed setpoints (wob, rpm, flow_rate).
	RecommendedParameters map[string]float64 `json:"recommendedParameters,omitempty"`
	// ExpectedROPImprovement is the ROP agent's estimated gain in percent.
	ExpectedROPImprovement float64 `json:"expectedRopImprovement,omitempty"`
}

// Prediction is one agent's vote for one window. Immutable value object;
// every prediction references the window it was computed from via WindowEnd.
type Prediction struct {
	Agent           Type      `json:"agent"`
	Category        Category  `json:"category"`
	Score           float64   `json:"score"`
	Confidence      float64   `json:"confidence"`
	Evidence        Evidence  `json:"evidence"`
	Recommendations []string  `json:"recommendations,omitempty"`
	WindowEnd       time.Time `json:"windowEnd"`
}

// Agent produces a Prediction from a telemetry window.
//
// Predict must honor ctx cancellation: the cycle engine bounds each call by
// the agent budget and discards late results. Returning an error never halts
// the cycle; it only removes this agent's vote.
type Agent interface {
	Type() Type
	Category() Category
	Predict(ctx context.Context, w window.Window) (Prediction, error)
}

// Adaptable is implemented by agents whose model state the adaptation
// controller may update. All built-in agents are adaptable.
type Adaptable interface {
	State() *StateHolder
}
