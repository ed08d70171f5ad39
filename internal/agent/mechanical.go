package agent

import (
	"context"
	"fmt"
	"math"

	"predictive-drilling/engine/internal/window"
)

// MechanicalSticking predicts mechanical sticking risk from drag, torque and
// RPM behavior. Sticking signatures: rising drag factor, elevated torque
// relative to its window average, and torque/RPM instability.
type MechanicalSticking struct {
	state *StateHolder
}

// Weight order for the mechanical sticking model.
const (
	mechWeightDrag = iota
	mechWeightTorqueRisk
	mechWeightTorqueInstability
	mechWeightRPMInstability
)

// NewMechanicalSticking returns the agent with its physics-derived defaults.
func NewMechanicalSticking() *MechanicalSticking {
	return &MechanicalSticking{state: NewStateHolder(ModelState{
		Sensitivity: 0.8,
		Weights:     []float64{0.35, 0.25, 0.25, 0.15},
	})}
}

func (a *MechanicalSticking) Type() Type         { return TypeMechanicalSticking }
func (a *MechanicalSticking) Category() Category { return CategorySticking }
func (a *MechanicalSticking) State() *StateHolder {
	return a.state
}

// Predict scores the window for mechanical sticking risk.
func (a *MechanicalSticking) Predict(ctx context.Context, w window.Window) (Prediction, error) {
	if err := w.Validate(); err != nil {
		return Prediction{}, err
	}
	if err := ctx.Err(); err != nil {
		return Prediction{}, fmt.Errorf("%w: %v", ErrAgentUnavailable, err)
	}
	st := a.state.Load()
	f := window.ComputeFeatures(w)
	latest := f.Latest

	base := clampUnit(f.DragFactor * 0.8)

	torqueFactor := 0.0
	if f.Torque.Mean > 0 && f.Torque.Std > 0 {
		torqueFactor = (latest.Torque - f.Torque.Mean) / (f.Torque.Std + 1)
	}
	torqueRisk := clampUnit(0.3 + 0.7*math.Max(0, torqueFactor))

	torqueInstability := math.Min(1, math.Abs(f.Torque.Rate)/(f.Torque.Mean*0.2+0.1))

	rpmInstability := 0.0
	if f.RPM.Mean > 0 && f.RPM.Std > 0 {
		rpmInstability = math.Min(1, math.Abs(f.RPM.Rate)/(f.RPM.Mean*0.2+0.1))
	}

	score := st.Weights[mechWeightDrag]*base +
		st.Weights[mechWeightTorqueRisk]*torqueRisk +
		st.Weights[mechWeightTorqueInstability]*torqueInstability +
		st.Weights[mechWeightRPMInstability]*rpmInstability
	score = applySensitivity(score, st.Sensitivity)

	var factors []Factor
	var recs []string
	if f.DragFactor > 0.6 {
		factors = append(factors, Factor{Name: "High Drag Factor", Value: fmt.Sprintf("%.2f", f.DragFactor)})
		recs = append(recs, "Work pipe to reduce drag and consider lubricant additives to mud")
	}
	if torqueRisk > 0.5 {
		factors = append(factors, Factor{Name: "Elevated Torque", Value: fmt.Sprintf("%.1f kft-lbs", latest.Torque)})
		recs = append(recs, "Reduce weight on bit (WOB) to decrease torque")
	}
	if torqueInstability > 0.6 {
		factors = append(factors, Factor{Name: "Torque Instability", Value: fmt.Sprintf("%.2f kft-lbs/min", f.Torque.Rate)})
		recs = append(recs, "Stabilize drilling parameters and check for formation changes")
	}
	if rpmInstability > 0.6 {
		factors = append(factors, Factor{Name: "RPM Instability", Value: fmt.Sprintf("%.1f RPM/min", f.RPM.Rate)})
		recs = append(recs, "Stabilize rotary speed and check for possible vibrations")
	}
	if latest.FlowRate < 400 && score > 0.4 {
		factors = append(factors, Factor{Name: "Low Flow Rate", Value: fmt.Sprintf("%.0f gpm", latest.FlowRate)})
		recs = append(recs, "Increase flow rate to improve hole cleaning")
	}
	if latest.WOB > 30 && score > 0.4 {
		factors = append(factors, Factor{Name: "High WOB", Value: fmt.Sprintf("%.1f klbs", latest.WOB)})
		recs = append(recs, "Reduce weight on bit (WOB) to decrease mechanical sticking risk")
	}
	if score > 0.7 && len(recs) == 0 {
		recs = append(recs,
			"Perform slack-off and pick-up tests to check for potential sticking points",
			"Consider working the pipe and reaming to clean the hole")
	}

	return Prediction{
		Agent:      a.Type(),
		Category:   a.Category(),
		Score:      score,
		Confidence: channelConfidence(latest.Torque > 0, latest.RPM > 0, latest.HookLoad > 0, f.Torque.Std > 0),
		Evidence: Evidence{
			Factors: factors,
			Residuals: map[string]float64{
				"drag_factor":        f.DragFactor,
				"torque_instability": torqueInstability,
				"rpm_instability":    rpmInstability,
			},
		},
		Recommendations: recs,
		WindowEnd:       w.End,
	}, nil
}

func applySensitivity(score, sensitivity float64) float64 {
	return math.Min(1, score*(1+(sensitivity-0.5)))
}

func clampUnit(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}

// channelConfidence derives a prediction confidence from how many of the
// agent's required input channels carried real data in the window.
func channelConfidence(present ...bool) float64 {
	if len(present) == 0 {
		return 0
	}
	n := 0
	for _, p := range present {
		if p {
			n++
		}
	}
	return 0.4 + 0.6*float64(n)/float64(len(present))
}

var _ interface {
	Agent
	Adaptable
} = (*MechanicalSticking)(nil)
