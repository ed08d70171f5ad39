package agent

import (
	"context"
	"fmt"
	"math"

	"predictive-drilling/engine/internal/window"
)

// DifferentialSticking predicts differential sticking risk from overbalance,
// ECD, flow rate and the stationary-pipe signature in hook load.
type DifferentialSticking struct {
	state *StateHolder
}

// Weight order for the differential sticking model.
const (
	diffWeightOverbalance = iota
	diffWeightECD
	diffWeightFlowRate
	diffWeightStationary
)

// NewDifferentialSticking returns the agent with its physics-derived defaults.
func NewDifferentialSticking() *DifferentialSticking {
	return &DifferentialSticking{state: NewStateHolder(ModelState{
		Sensitivity: 0.7,
		Weights:     []float64{0.4, 0.3, 0.2, 0.1},
	})}
}

func (a *DifferentialSticking) Type() Type          { return TypeDifferentialSticking }
func (a *DifferentialSticking) Category() Category  { return CategorySticking }
func (a *DifferentialSticking) State() *StateHolder { return a.state }

// Predict scores the window for differential sticking risk.
func (a *DifferentialSticking) Predict(ctx context.Context, w window.Window) (Prediction, error) {
	if err := w.Validate(); err != nil {
		return Prediction{}, err
	}
	if err := ctx.Err(); err != nil {
		return Prediction{}, fmt.Errorf("%w: %v", ErrAgentUnavailable, err)
	}
	st := a.state.Load()
	f := window.ComputeFeatures(w)
	latest := f.Latest

	// Overbalance normalized against a 1000 psi high-risk threshold.
	overbalance := math.Min(1, f.DifferentialPressure/1000)
	base := clampUnit(overbalance * 0.8)

	ecdFactor := 0.0
	if latest.ECD > 0 {
		ecdFactor = clampUnit((latest.ECD - 10) / 3)
	}

	flowFactor := 0.0
	if latest.FlowRate > 0 {
		flowFactor = clampUnit(1 - latest.FlowRate/800)
	}

	// Low hook load against the theoretical string weight suggests weight
	// transferred to the formation: stationary pipe against the filter cake.
	stationary := 0.0
	if latest.Depth > 0 && latest.HookLoad > 0 {
		theoretical := latest.Depth * 0.02
		if theoretical > 0 {
			stationary = clampUnit(1 - latest.HookLoad/theoretical)
		}
	}

	score := st.Weights[diffWeightOverbalance]*base +
		st.Weights[diffWeightECD]*ecdFactor +
		st.Weights[diffWeightFlowRate]*flowFactor +
		st.Weights[diffWeightStationary]*stationary
	score = applySensitivity(score, st.Sensitivity)

	var factors []Factor
	var recs []string
	if overbalance > 0.5 {
		factors = append(factors, Factor{Name: "High Differential Pressure", Value: fmt.Sprintf("%.0f psi", f.DifferentialPressure)})
		recs = append(recs, "Reduce mud weight if formation pressure allows")
	}
	if ecdFactor > 0.5 {
		factors = append(factors, Factor{Name: "Elevated ECD", Value: fmt.Sprintf("%.1f ppg", latest.ECD)})
		recs = append(recs, "Monitor ECD and consider mud conditioning to thin the filter cake")
	}
	if flowFactor > 0.6 {
		factors = append(factors, Factor{Name: "Low Flow Rate", Value: fmt.Sprintf("%.0f gpm", latest.FlowRate)})
		recs = append(recs, "Increase circulation rate to manage the filter cake")
	}
	if stationary > 0.6 {
		factors = append(factors, Factor{Name: "Stationary Pipe Indication", Value: fmt.Sprintf("%.2f", stationary)})
		recs = append(recs, "Keep the string moving; avoid extended stationary periods")
	}
	if score > 0.7 && len(recs) == 0 {
		recs = append(recs, "Monitor ECD and differential pressure")
	}

	return Prediction{
		Agent:      a.Type(),
		Category:   a.Category(),
		Score:      score,
		Confidence: channelConfidence(latest.ECD > 0, latest.Depth > 0, latest.HookLoad > 0, latest.FlowRate > 0),
		Evidence: Evidence{
			Factors: factors,
			Residuals: map[string]float64{
				"overbalance": overbalance,
				"ecd_excess":  ecdFactor,
				"stationary":  stationary,
			},
		},
		Recommendations: recs,
		WindowEnd:       w.End,
	}, nil
}

var _ interface {
	Agent
	Adaptable
} = (*DifferentialSticking)(nil)
