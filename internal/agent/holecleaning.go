package agent

import (
	"context"
	"fmt"
	"math"

	"predictive-drilling/engine/internal/window"
)

// HoleCleaning predicts hole-cleaning inefficiency from the cleaning index,
// cuttings generation rate and annular transport conditions.
type HoleCleaning struct {
	state *StateHolder
}

// Weight order for the hole cleaning model.
const (
	hcWeightIndex = iota
	hcWeightROP
	hcWeightRPM
	hcWeightFlowRate
	hcWeightECD
	hcWeightAngle
)

// NewHoleCleaning returns the agent with its physics-derived defaults.
func NewHoleCleaning() *HoleCleaning {
	return &HoleCleaning{state: NewStateHolder(ModelState{
		Sensitivity: 0.75,
		Weights:     []float64{0.3, 0.2, 0.1, 0.2, 0.1, 0.1},
	})}
}

func (a *HoleCleaning) Type() Type          { return TypeHoleCleaning }
func (a *HoleCleaning) Category() Category  { return CategoryHoleCleaning }
func (a *HoleCleaning) State() *StateHolder { return a.state }

// Predict scores the window for hole-cleaning risk.
func (a *HoleCleaning) Predict(ctx context.Context, w window.Window) (Prediction, error) {
	if err := w.Validate(); err != nil {
		return Prediction{}, err
	}
	if err := ctx.Err(); err != nil {
		return Prediction{}, fmt.Errorf("%w: %v", ErrAgentUnavailable, err)
	}
	st := a.state.Load()
	f := window.ComputeFeatures(w)
	latest := f.Latest

	base := 0.5
	if f.HoleCleaningIndex > 0 {
		base = clampUnit(1 - f.HoleCleaningIndex)
	}

	ropFactor := 0.0
	if latest.ROP > 0 {
		ropFactor = clampUnit(latest.ROP / 100)
	}
	rpmFactor := 0.0
	if latest.RPM > 0 {
		rpmFactor = clampUnit(1 - latest.RPM/150)
	}
	flowFactor := 0.0
	if latest.FlowRate > 0 {
		flowFactor = clampUnit(1 - latest.FlowRate/800)
	}
	ecdFactor := 0.0
	if latest.ECD > 0 {
		ecdFactor = clampUnit(math.Abs(latest.ECD-11.5) / 3)
	}
	// Inclination is not in the feed; approximate the lateral section by depth.
	angleFactor := 0.0
	if latest.Depth > 8000 {
		angleFactor = 0.8
	} else {
		angleFactor = math.Min(0.6, math.Max(0.1, latest.Depth/10000))
	}

	score := st.Weights[hcWeightIndex]*base +
		st.Weights[hcWeightROP]*ropFactor +
		st.Weights[hcWeightRPM]*rpmFactor +
		st.Weights[hcWeightFlowRate]*flowFactor +
		st.Weights[hcWeightECD]*ecdFactor +
		st.Weights[hcWeightAngle]*angleFactor
	score = applySensitivity(score, st.Sensitivity)

	// Trends: fast ROP gain or flow loss worsens cuttings transport.
	if f.ROP.Rate > 5 {
		score = math.Min(1, score+0.1)
	}
	if f.FlowRate.Rate < -20 {
		score = math.Min(1, score+0.1)
	}

	var factors []Factor
	var recs []string
	if base > 0.5 {
		factors = append(factors, Factor{Name: "Low Hole Cleaning Index", Value: fmt.Sprintf("%.2f", f.HoleCleaningIndex)})
		recs = append(recs, "Increase flow rate and RPM")
	}
	if ropFactor > 0.6 {
		factors = append(factors, Factor{Name: "High ROP", Value: fmt.Sprintf("%.1f ft/hr", latest.ROP)})
		recs = append(recs, "Control ROP to limit cuttings loading")
	}
	if flowFactor > 0.6 {
		factors = append(factors, Factor{Name: "Low Flow Rate", Value: fmt.Sprintf("%.0f gpm", latest.FlowRate)})
		recs = append(recs, "Increase flow rate to improve cuttings transport")
	}
	if rpmFactor > 0.6 {
		factors = append(factors, Factor{Name: "Low RPM", Value: fmt.Sprintf("%.0f RPM", latest.RPM)})
		recs = append(recs, "Increase rotary speed to agitate the cuttings bed")
	}
	if score > 0.7 && len(recs) == 0 {
		recs = append(recs, "Circulate bottoms-up before the next connection")
	}

	return Prediction{
		Agent:      a.Type(),
		Category:   a.Category(),
		Score:      score,
		Confidence: channelConfidence(f.HoleCleaningIndex > 0, latest.ROP > 0, latest.FlowRate > 0, latest.RPM > 0),
		Evidence: Evidence{
			Factors: factors,
			Residuals: map[string]float64{
				"transport_deficit": base,
				"cuttings_load":     ropFactor,
			},
		},
		Recommendations: recs,
		WindowEnd:       w.End,
	}, nil
}

var _ interface {
	Agent
	Adaptable
} = (*HoleCleaning)(nil)
