// Package physics validates predictions and model-state updates against
// domain invariants: residual bounds, parameter ranges and plausible rate
// limits. The checker is stateless; the same bounds gate both the voting
// path and the adaptation path, which is what keeps online learning from
// drifting into physically nonsensical regimes.
package physics

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Bounds are the numeric limits the checker enforces. Zero values are filled
// from defaults on load, so a partial YAML override is fine.
type Bounds struct {
	// MaxResidual is the largest allowed magnitude for any named physics
	// residual attached to a prediction.
	MaxResidual float64 `yaml:"max_residual"`
	// MinSensitivity and MaxSensitivity bound the adaptable gain of every agent.
	MinSensitivity float64 `yaml:"min_sensitivity"`
	MaxSensitivity float64 `yaml:"max_sensitivity"`
	// MaxSensitivityStep limits how far one adaptation update may move the gain.
	MaxSensitivityStep float64 `yaml:"max_sensitivity_step"`
	// MaxWeightStep limits how far one adaptation update may move any factor weight.
	MaxWeightStep float64 `yaml:"max_weight_step"`
	// MaxExpectedImprovementPct caps the ROP agent's claimed improvement;
	// anything above implies an impossible drilling response.
	MaxExpectedImprovementPct float64 `yaml:"max_expected_improvement_pct"`
	// MaxWindowAgeSeconds is how old a prediction's source window may be
	// before the prediction is too stale to vote.
	MaxWindowAgeSeconds float64 `yaml:"max_window_age_seconds"`
}

// DefaultBounds returns the built-in limits derived from the physics models.
func DefaultBounds() Bounds {
	return Bounds{
		MaxResidual:               1.25,
		MinSensitivity:            0.05,
		MaxSensitivity:            1.0,
		MaxSensitivityStep:        0.15,
		MaxWeightStep:             0.10,
		MaxExpectedImprovementPct: 200,
		MaxWindowAgeSeconds:       300,
	}
}

// LoadBounds reads a YAML override file and merges it over the defaults.
// path "" returns the defaults unchanged.
func LoadBounds(path string) (Bounds, error) {
	b := DefaultBounds()
	if path == "" {
		return b, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Bounds{}, fmt.Errorf("physics: read bounds file: %w", err)
	}
	var override Bounds
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return Bounds{}, fmt.Errorf("physics: parse bounds file: %w", err)
	}
	if override.MaxResidual > 0 {
		b.MaxResidual = override.MaxResidual
	}
	if override.MinSensitivity > 0 {
		b.MinSensitivity = override.MinSensitivity
	}
	if override.MaxSensitivity > 0 {
		b.MaxSensitivity = override.MaxSensitivity
	}
	if override.MaxSensitivityStep > 0 {
		b.MaxSensitivityStep = override.MaxSensitivityStep
	}
	if override.MaxWeightStep > 0 {
		b.MaxWeightStep = override.MaxWeightStep
	}
	if override.MaxExpectedImprovementPct > 0 {
		b.MaxExpectedImprovementPct = override.MaxExpectedImprovementPct
	}
	if override.MaxWindowAgeSeconds > 0 {
		b.MaxWindowAgeSeconds = override.MaxWindowAgeSeconds
	}
	if b.MinSensitivity >= b.MaxSensitivity {
		return Bounds{}, fmt.Errorf("physics: min_sensitivity %.2f must be below max_sensitivity %.2f",
			b.MinSensitivity, b.MaxSensitivity)
	}
	return b, nil
}
