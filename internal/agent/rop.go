package agent

import (
	"context"
	"fmt"
	"math"

	"predictive-drilling/engine/internal/window"
)

// assumed formation strength (kpsi) when no formation model is loaded.
const defaultUCS = 20.0

// ROPOptimization recommends WOB/RPM/flow setpoint changes when the
// mechanical specific energy shows inefficient drilling. Its Sensitivity is
// the optimization aggressiveness: how much of the theoretical adjustment is
// actually recommended.
type ROPOptimization struct {
	state *StateHolder
}

// Weight order for the ROP advisory score: efficiency deficit, then hole
// cleaning deficit.
const (
	ropWeightEfficiency = iota
	ropWeightCleaning
)

// NewROPOptimization returns the agent with its physics-derived defaults.
func NewROPOptimization() *ROPOptimization {
	return &ROPOptimization{state: NewStateHolder(ModelState{
		Sensitivity: 0.6,
		Weights:     []float64{0.7, 0.3},
	})}
}

func (a *ROPOptimization) Type() Type          { return TypeROPOptimization }
func (a *ROPOptimization) Category() Category  { return CategoryROP }
func (a *ROPOptimization) State() *StateHolder { return a.state }

// Predict scores how far current drilling is from its efficient operating
// point and recommends parameter changes.
func (a *ROPOptimization) Predict(ctx context.Context, w window.Window) (Prediction, error) {
	if err := w.Validate(); err != nil {
		return Prediction{}, err
	}
	if err := ctx.Err(); err != nil {
		return Prediction{}, fmt.Errorf("%w: %v", ErrAgentUnavailable, err)
	}
	st := a.state.Load()
	f := window.ComputeFeatures(w)
	latest := f.Latest

	// MSE should sit near 35% of formation strength for efficient drilling.
	optimalMSE := defaultUCS * 1000 * 0.35
	efficiency := 1.0
	if f.MSE > 0 && optimalMSE > 0 {
		efficiency = math.Min(1, math.Max(0.1, optimalMSE/f.MSE))
	}

	optimalWOB, optimalRPM, optimalFlow := latest.WOB, latest.RPM, latest.FlowRate
	if efficiency < 0.7 {
		torquePerWOB := latest.Torque / (latest.WOB + 0.1)
		if torquePerWOB < 0.3 {
			optimalWOB = latest.WOB * 1.2
		} else if torquePerWOB > 0.7 {
			optimalWOB = latest.WOB * 0.85
		}
		// Without a torque limit from the rig, treat 100 kft-lbs as the ceiling.
		const maxTorque = 100.0
		if latest.Torque > 0.8*maxTorque {
			optimalRPM = latest.RPM * 0.85
		} else if latest.Torque < 0.4*maxTorque {
			optimalRPM = latest.RPM * 1.15
		}
	}
	if f.HoleCleaningIndex > 0 && f.HoleCleaningIndex < 0.7 {
		optimalFlow = latest.FlowRate * 1.15
	}

	// Scale toward current setpoints by aggressiveness.
	ag := 0.5 + 0.5*st.Sensitivity
	optimalWOB = latest.WOB + (optimalWOB-latest.WOB)*ag
	optimalRPM = latest.RPM + (optimalRPM-latest.RPM)*ag
	optimalFlow = latest.FlowRate + (optimalFlow-latest.FlowRate)*ag

	improvement := 0.0
	if latest.WOB > 0 && optimalWOB > latest.WOB {
		improvement += (optimalWOB/latest.WOB - 1) * 0.7
	}
	if latest.RPM > 0 && optimalRPM > latest.RPM {
		improvement += (optimalRPM/latest.RPM - 1) * 0.5
	}
	if optimalFlow > latest.FlowRate {
		improvement += 0.05
	}

	cleaningDeficit := 0.0
	if f.HoleCleaningIndex > 0 {
		cleaningDeficit = clampUnit(1 - f.HoleCleaningIndex)
	}
	score := st.Weights[ropWeightEfficiency]*(1-efficiency) +
		st.Weights[ropWeightCleaning]*cleaningDeficit

	var factors []Factor
	var recs []string
	if efficiency < 0.7 {
		factors = append(factors, Factor{Name: "High MSE", Value: fmt.Sprintf("%.0f psi", f.MSE)})
	}
	changed := math.Abs(optimalWOB-latest.WOB) > 0.01 ||
		math.Abs(optimalRPM-latest.RPM) > 0.01 ||
		math.Abs(optimalFlow-latest.FlowRate) > 0.01
	var params map[string]float64
	if changed {
		params = map[string]float64{
			"wob":       optimalWOB,
			"rpm":       optimalRPM,
			"flow_rate": optimalFlow,
		}
		recs = append(recs, fmt.Sprintf(
			"Optimize drilling parameters: WOB %.1f klbs, RPM %.0f, flow %.0f gpm (expected ROP improvement %.1f%%)",
			optimalWOB, optimalRPM, optimalFlow, improvement*100))
	}

	return Prediction{
		Agent:      a.Type(),
		Category:   a.Category(),
		Score:      clampUnit(score),
		Confidence: channelConfidence(f.MSE > 0, latest.WOB > 0, latest.RPM > 0, latest.ROP > 0),
		Evidence: Evidence{
			Factors: factors,
			Residuals: map[string]float64{
				"mse_excess": clampUnit(1 - efficiency),
			},
			RecommendedParameters:  params,
			ExpectedROPImprovement: improvement * 100,
		},
		Recommendations: recs,
		WindowEnd:       w.End,
	}, nil
}

var _ interface {
	Agent
	Adaptable
} = (*ROPOptimization)(nil)
