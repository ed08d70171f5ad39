package agent

import (
	"context"
	"fmt"
	"math"

	"predictive-drilling/engine/internal/window"
)

// Washout/mud-loss issue kinds carried in prediction evidence.
const (
	IssueWashout = "Washout"
	IssueMudLoss = "Mud Losses"
)

// WashoutMudLoss detects drillstring washouts and downhole mud losses from
// standpipe pressure and flow behavior, reporting whichever signature
// dominates the window.
type WashoutMudLoss struct {
	state *StateHolder
}

// Weight order: the first three mix the washout model, the last three the
// mud-loss model.
const (
	woWeightSPPDrop = iota
	woWeightFlowPressureAnomaly
	woWeightTorqueInstability
	woWeightFlowLoss
	woWeightPressureFlowCorr
	woWeightECD
)

// NewWashoutMudLoss returns the agent with its physics-derived defaults.
// The two sub-model weight triples each sum to 1.
func NewWashoutMudLoss() *WashoutMudLoss {
	return &WashoutMudLoss{state: NewStateHolder(ModelState{
		Sensitivity: 0.8,
		Weights:     []float64{0.5, 0.3, 0.2, 0.4, 0.3, 0.3},
	})}
}

func (a *WashoutMudLoss) Type() Type          { return TypeWashoutMudLoss }
func (a *WashoutMudLoss) Category() Category  { return CategoryWashoutMudLoss }
func (a *WashoutMudLoss) State() *StateHolder { return a.state }

// Predict scores the window for washout or mud-loss risk, whichever is higher.
func (a *WashoutMudLoss) Predict(ctx context.Context, w window.Window) (Prediction, error) {
	if err := w.Validate(); err != nil {
		return Prediction{}, err
	}
	if err := ctx.Err(); err != nil {
		return Prediction{}, fmt.Errorf("%w: %v", ErrAgentUnavailable, err)
	}
	st := a.state.Load()
	f := window.ComputeFeatures(w)
	latest := f.Latest

	// Washout signatures: SPP dropping, pressure falling while flow rises,
	// torque instability from the compromised string.
	sppDrop := 0.0
	if f.SPP.Rate < 0 && f.SPP.Mean > 0 {
		sppDrop = clampUnit(math.Abs(f.SPP.Rate) / (f.SPP.Mean * 0.1))
	}
	flowPressureAnomaly := 0.0
	if f.SPP.Rate < 0 && f.FlowRate.Rate > 0 {
		flowPressureAnomaly = clampUnit((f.FlowRate.Rate / 20) * math.Abs(f.SPP.Rate/100))
	}
	torqueInstability := 0.0
	if f.Torque.Mean > 0 {
		torqueInstability = clampUnit(math.Abs(f.Torque.Rate) / (f.Torque.Mean*0.2 + 0.1))
	}
	washout := applySensitivity(
		st.Weights[woWeightSPPDrop]*sppDrop+
			st.Weights[woWeightFlowPressureAnomaly]*flowPressureAnomaly+
			st.Weights[woWeightTorqueInstability]*torqueInstability,
		st.Sensitivity)

	// Mud-loss signatures: returns falling, pressure tracking the flow down,
	// ECD pushing the formation past its fracture gradient.
	flowLoss := 0.0
	if f.FlowRate.Rate < 0 && f.FlowRate.Mean > 0 {
		flowLoss = clampUnit(math.Abs(f.FlowRate.Rate) / (f.FlowRate.Mean * 0.1))
	}
	pressureFlowCorr := 0.0
	if f.SPP.Rate < 0 && f.FlowRate.Rate < 0 {
		pressureFlowCorr = clampUnit(math.Abs(f.FlowRate.Rate) / (f.FlowRate.Mean*0.1 + 0.1) * math.Abs(f.SPP.Rate/100))
	}
	ecdFactor := 0.0
	if latest.ECD > 12 {
		ecdFactor = clampUnit((latest.ECD - 12) / 3)
	}
	mudLoss := applySensitivity(
		st.Weights[woWeightFlowLoss]*flowLoss+
			st.Weights[woWeightPressureFlowCorr]*pressureFlowCorr+
			st.Weights[woWeightECD]*ecdFactor,
		st.Sensitivity)

	kind := IssueWashout
	score := washout
	if mudLoss > washout {
		kind = IssueMudLoss
		score = mudLoss
	}

	var factors []Factor
	var recs []string
	if kind == IssueWashout {
		if sppDrop > 0.5 {
			factors = append(factors, Factor{Name: "Standpipe Pressure Drop", Value: fmt.Sprintf("%.1f psi/min", f.SPP.Rate)})
			recs = append(recs, "Stop drilling and perform a flow check for washout")
		}
		if flowPressureAnomaly > 0.5 {
			factors = append(factors, Factor{Name: "Flow/Pressure Anomaly", Value: fmt.Sprintf("%.2f", flowPressureAnomaly)})
			recs = append(recs, "Compare pump strokes against standpipe pressure trend")
		}
	} else {
		if flowLoss > 0.5 {
			factors = append(factors, Factor{Name: "Flow Rate Loss", Value: fmt.Sprintf("%.1f gpm/min", f.FlowRate.Rate)})
			recs = append(recs, "Check pit volumes and prepare lost-circulation material")
		}
		if ecdFactor > 0.5 {
			factors = append(factors, Factor{Name: "High ECD", Value: fmt.Sprintf("%.1f ppg", latest.ECD)})
			recs = append(recs, "Reduce ECD to stay below the fracture gradient")
		}
	}
	if score > 0.7 && len(recs) == 0 {
		recs = append(recs, fmt.Sprintf("Monitor drilling parameters for %s indicators", kind))
	}

	return Prediction{
		Agent:      a.Type(),
		Category:   a.Category(),
		Score:      score,
		Confidence: channelConfidence(f.SPP.Mean > 0, f.FlowRate.Mean > 0, f.Torque.Mean > 0, latest.ECD > 0),
		Evidence: Evidence{
			Factors:   factors,
			IssueKind: kind,
			Residuals: map[string]float64{
				"pressure_drop": sppDrop,
				"flow_anomaly":  math.Max(flowPressureAnomaly, flowLoss),
			},
		},
		Recommendations: recs,
		WindowEnd:       w.End,
	}, nil
}

var _ interface {
	Agent
	Adaptable
} = (*WashoutMudLoss)(nil)
