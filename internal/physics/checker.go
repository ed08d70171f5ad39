package physics

import (
	"fmt"
	"math"
	"time"

	"predictive-drilling/engine/internal/agent"
)

// Reason codes for failed verdicts.
type Reason string

const (
	ReasonScoreOutOfRange      Reason = "score_out_of_range"
	ReasonConfidenceOutOfRange Reason = "confidence_out_of_range"
	ReasonMissingWindow        Reason = "missing_window"
	ReasonStaleWindow          Reason = "stale_window"
	ReasonResidualExceeded     Reason = "residual_exceeded"
	ReasonImplausibleSetpoint  Reason = "implausible_setpoint"
	ReasonSensitivityBounds    Reason = "sensitivity_out_of_bounds"
	ReasonSensitivityStep      Reason = "sensitivity_step_too_large"
	ReasonWeightBounds         Reason = "weight_out_of_bounds"
	ReasonWeightStep           Reason = "weight_step_too_large"
	ReasonWeightShape          Reason = "weight_shape_changed"
)

// Verdict is the pass/fail outcome of a constraint check.
type Verdict struct {
	OK     bool
	Reason Reason
	Detail string
}

func pass() Verdict { return Verdict{OK: true} }

func fail(r Reason, format string, args ...any) Verdict {
	return Verdict{OK: false, Reason: r, Detail: fmt.Sprintf(format, args...)}
}

// Checker applies the bounds. Stateless and safe for concurrent use.
type Checker struct {
	bounds  Bounds
	nowFunc func() time.Time
}

// NewChecker returns a checker enforcing the given bounds.
func NewChecker(bounds Bounds) *Checker {
	return &Checker{
		bounds:  bounds,
		nowFunc: func() time.Time { return time.Now().UTC() },
	}
}

// Bounds returns the bounds this checker enforces.
func (c *Checker) Bounds() Bounds {
	return c.bounds
}

// CheckPrediction validates one prediction before it may enter the voting
// set. A failing prediction is dropped from the cycle and logged; it never
// reaches the consensus aggregator.
func (c *Checker) CheckPrediction(p agent.Prediction) Verdict {
	if p.Score < 0 || p.Score > 1 || math.IsNaN(p.Score) {
		return fail(ReasonScoreOutOfRange, "score %.4f outside [0,1]", p.Score)
	}
	if p.Confidence < 0 || p.Confidence > 1 || math.IsNaN(p.Confidence) {
		return fail(ReasonConfidenceOutOfRange, "confidence %.4f outside [0,1]", p.Confidence)
	}
	if p.WindowEnd.IsZero() {
		return fail(ReasonMissingWindow, "prediction has no source window")
	}
	if age := c.nowFunc().Sub(p.WindowEnd); age.Seconds() > c.bounds.MaxWindowAgeSeconds {
		return fail(ReasonStaleWindow, "source window is %s old, limit %.0fs",
			age.Round(time.Second), c.bounds.MaxWindowAgeSeconds)
	}
	for name, r := range p.Evidence.Residuals {
		if math.IsNaN(r) || math.Abs(r) > c.bounds.MaxResidual {
			return fail(ReasonResidualExceeded, "residual %s=%.4f exceeds bound %.2f", name, r, c.bounds.MaxResidual)
		}
	}
	for name, v := range p.Evidence.RecommendedParameters {
		if v <= 0 || math.IsNaN(v) {
			return fail(ReasonImplausibleSetpoint, "recommended %s=%.2f is not physically achievable", name, v)
		}
	}
	if imp := p.Evidence.ExpectedROPImprovement; math.IsNaN(imp) || imp > c.bounds.MaxExpectedImprovementPct {
		return fail(ReasonImplausibleSetpoint, "expected improvement %.1f%% exceeds %.0f%%", imp, c.bounds.MaxExpectedImprovementPct)
	}
	return pass()
}

// CheckStateDelta validates a candidate model-state update against the
// current snapshot. Rejection means the candidate is discarded and the live
// snapshot stays untouched.
func (c *Checker) CheckStateDelta(prev, next agent.ModelState) Verdict {
	if next.Sensitivity < c.bounds.MinSensitivity || next.Sensitivity > c.bounds.MaxSensitivity ||
		math.IsNaN(next.Sensitivity) {
		return fail(ReasonSensitivityBounds, "sensitivity %.4f outside [%.2f, %.2f]",
			next.Sensitivity, c.bounds.MinSensitivity, c.bounds.MaxSensitivity)
	}
	if step := math.Abs(next.Sensitivity - prev.Sensitivity); step > c.bounds.MaxSensitivityStep {
		return fail(ReasonSensitivityStep, "sensitivity step %.4f exceeds %.2f", step, c.bounds.MaxSensitivityStep)
	}
	if len(next.Weights) != len(prev.Weights) {
		return fail(ReasonWeightShape, "weight count changed from %d to %d", len(prev.Weights), len(next.Weights))
	}
	for i, w := range next.Weights {
		if w < 0 || w > 1 || math.IsNaN(w) {
			return fail(ReasonWeightBounds, "weight[%d]=%.4f outside [0,1]", i, w)
		}
		if step := math.Abs(w - prev.Weights[i]); step > c.bounds.MaxWeightStep {
			return fail(ReasonWeightStep, "weight[%d] step %.4f exceeds %.2f", i, step, c.bounds.MaxWeightStep)
		}
	}
	return pass()
}
