package analysis

import (
	"fmt"
	"math"
)

// Thresholds bands an angle in degrees into ordinals 1..4.
type Thresholds struct {
	Low    float64 `json:"low" yaml:"low"`
	Medium float64 `json:"medium" yaml:"medium"`
	High   float64 `json:"high" yaml:"high"`
}

// Weights are the REBA per-joint multipliers.
type Weights struct {
	Neck     float64 `json:"neck" yaml:"neck"`
	Trunk    float64 `json:"trunk" yaml:"trunk"`
	UpperArm float64 `json:"upper_arm" yaml:"upper_arm"`
	LowerArm float64 `json:"lower_arm" yaml:"lower_arm"`
}

// RiskBand maps an inclusive composite range to a level.
type RiskBand struct {
	Level RiskLevel `json:"level" yaml:"level"`
	Min   int       `json:"min" yaml:"min"`
	Max   int       `json:"max" yaml:"max"`
}

func (b RiskBand) Contains(score int) bool {
	return b.Min <= score && score <= b.Max
}

// Config is the scorer's read-only tuning. Bands are matched in order.
type Config struct {
	NeckFlexion       Thresholds `json:"neck_flexion"`
	TrunkFlexion      Thresholds `json:"trunk_flexion"`
	ShoulderAbduction Thresholds `json:"shoulder_abduction"`
	ElbowFlexion      Thresholds `json:"elbow_flexion"`
	Weights           Weights    `json:"reba_weights"`
	Bands             []RiskBand `json:"risk_levels"`
}

var (
	defaultNeckThresholds     = Thresholds{Low: 20, Medium: 45, High: 60}
	defaultTrunkThresholds    = Thresholds{Low: 20, Medium: 45, High: 60}
	defaultShoulderThresholds = Thresholds{Low: 45, Medium: 90, High: 135}
	defaultElbowThresholds    = Thresholds{Low: 60, Medium: 100, High: 140}

	defaultWeights = Weights{Neck: 0.20, Trunk: 0.25, UpperArm: 0.20, LowerArm: 0.15}
)

// DefaultThresholds returns the built-in thresholds keyed by feature name.
func DefaultThresholds() map[string]Thresholds {
	return map[string]Thresholds{
		"neck_flexion":       defaultNeckThresholds,
		"trunk_flexion":      defaultTrunkThresholds,
		"shoulder_abduction": defaultShoulderThresholds,
		"elbow_flexion":      defaultElbowThresholds,
	}
}

func DefaultBands() []RiskBand {
	return []RiskBand{
		{Level: LevelNegligible, Min: 0, Max: 20},
		{Level: LevelLow, Min: 21, Max: 40},
		{Level: LevelMedium, Min: 41, Max: 60},
		{Level: LevelHigh, Min: 61, Max: 80},
		{Level: LevelVeryHigh, Min: 81, Max: 100},
	}
}

// DefaultConfig returns the built-in scoring configuration.
func DefaultConfig() Config {
	return Config{
		NeckFlexion:       defaultNeckThresholds,
		TrunkFlexion:      defaultTrunkThresholds,
		ShoulderAbduction: defaultShoulderThresholds,
		ElbowFlexion:      defaultElbowThresholds,
		Weights:           defaultWeights,
		Bands:             DefaultBands(),
	}
}

// Validate checks that thresholds ascend and every number is finite.
func (c Config) Validate() error {
	named := []struct {
		name string
		t    Thresholds
	}{
		{"neck_flexion", c.NeckFlexion},
		{"trunk_flexion", c.TrunkFlexion},
		{"shoulder_abduction", c.ShoulderAbduction},
		{"elbow_flexion", c.ElbowFlexion},
	}
	for _, n := range named {
		if err := n.t.validate(); err != nil {
			return fmt.Errorf("%s thresholds: %w", n.name, err)
		}
	}

	for _, w := range []float64{c.Weights.Neck, c.Weights.Trunk, c.Weights.UpperArm, c.Weights.LowerArm} {
		if !finite(w) || w < 0 {
			return fmt.Errorf("reba weights must be finite and non-negative")
		}
	}

	for _, b := range c.Bands {
		if b.Level == "" {
			return fmt.Errorf("risk level band %d..%d has no name", b.Min, b.Max)
		}
		if b.Min > b.Max {
			return fmt.Errorf("risk level %q has min %d above max %d", b.Level, b.Min, b.Max)
		}
	}
	return nil
}

func (t Thresholds) validate() error {
	if !finite(t.Low) || !finite(t.Medium) || !finite(t.High) {
		return fmt.Errorf("values must be finite")
	}
	if !(t.Low <= t.Medium && t.Medium <= t.High) {
		return fmt.Errorf("expected low <= medium <= high, got %v/%v/%v", t.Low, t.Medium, t.High)
	}
	return nil
}

func finite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }
