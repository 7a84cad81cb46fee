package analysis

import (
	"fmt"
	"math"

	"github.com/ZanzyTHEbar/posture-risk/internal/ergonomics"
)

const (
	// rebaScale maps the weighted ordinal sum onto 0..100.
	rebaScale = 25.0
	// rulaScale maps the summed group ordinals onto 0..100.
	rulaScale = 12.5

	greenMax  = 40
	yellowMax = 60
)

// Scorer maps ergonomic features onto REBA and RULA style risk scores.
// It holds only read-only configuration and is safe for concurrent use.
type Scorer struct {
	cfg Config
}

// NewScorer validates cfg and returns a scorer bound to it.
func NewScorer(cfg Config) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scoring config: %w", err)
	}
	bands := make([]RiskBand, len(cfg.Bands))
	copy(bands, cfg.Bands)
	cfg.Bands = bands
	return &Scorer{cfg: cfg}, nil
}

// Config returns a copy of the scorer's configuration.
func (s *Scorer) Config() Config {
	cfg := s.cfg
	cfg.Bands = make([]RiskBand, len(s.cfg.Bands))
	copy(cfg.Bands, s.cfg.Bands)
	return cfg
}

// Ordinal bands an angle: 1 below low, 2 below medium, 3 below high, else 4.
// A nil angle was not assessed and scores 0.
func Ordinal(angle *float64, t Thresholds) int {
	if angle == nil {
		return 0
	}
	switch a := *angle; {
	case a < t.Low:
		return 1
	case a < t.Medium:
		return 2
	case a < t.High:
		return 3
	default:
		return 4
	}
}

// bilateral averages both sides when both were observed, else takes whichever was.
func bilateral(left, right *float64) *float64 {
	switch {
	case left != nil && right != nil:
		avg := (*left + *right) / 2
		return &avg
	case left != nil:
		return left
	default:
		return right
	}
}

// REBA scores the whole body, averaging left and right arms.
func (s *Scorer) REBA(f ergonomics.Features) RiskSubScore {
	neck := Ordinal(f.NeckFlexion, s.cfg.NeckFlexion)
	trunk := Ordinal(f.TrunkFlexion, s.cfg.TrunkFlexion)
	upper := Ordinal(bilateral(f.LeftShoulderAbduction, f.RightShoulderAbduction), s.cfg.ShoulderAbduction)
	lower := Ordinal(bilateral(f.LeftElbowFlexion, f.RightElbowFlexion), s.cfg.ElbowFlexion)

	w := s.cfg.Weights
	weighted := float64(neck)*w.Neck +
		float64(trunk)*w.Trunk +
		float64(upper)*w.UpperArm +
		float64(lower)*w.LowerArm

	return RiskSubScore{
		Score:      clampScore(weighted * rebaScale),
		Neck:       neck,
		Trunk:      trunk,
		UpperArm:   upper,
		LowerArm:   lower,
		Confidence: f.Completeness(),
	}
}

// RULA scores group A from the left arm only and group B from neck and trunk.
func (s *Scorer) RULA(f ergonomics.Features) RiskSubScore {
	upper := Ordinal(f.LeftShoulderAbduction, s.cfg.ShoulderAbduction)
	lower := Ordinal(f.LeftElbowFlexion, s.cfg.ElbowFlexion)
	neck := Ordinal(f.NeckFlexion, s.cfg.NeckFlexion)
	trunk := Ordinal(f.TrunkFlexion, s.cfg.TrunkFlexion)

	groupA := upper + lower
	groupB := neck + trunk

	return RiskSubScore{
		Score:      clampScore(float64(groupA+groupB) * rulaScale),
		Neck:       neck,
		Trunk:      trunk,
		UpperArm:   upper,
		LowerArm:   lower,
		GroupA:     &groupA,
		GroupB:     &groupB,
		Confidence: f.Completeness(),
	}
}

// RiskLevelFor returns the first configured band containing score.
func (s *Scorer) RiskLevelFor(score int) RiskLevel {
	for _, b := range s.cfg.Bands {
		if b.Contains(score) {
			return b.Level
		}
	}
	return LevelUnknown
}

// TrafficLightFor applies the fixed 40/60 cutoffs.
func TrafficLightFor(score int) TrafficLight {
	switch {
	case score <= greenMax:
		return Green
	case score <= yellowMax:
		return Yellow
	default:
		return Red
	}
}

// ComputeRisk scores one subject. With no observed features every score is
// nil. Failures are reported in the Error field rather than returned.
func (s *Scorer) ComputeRisk(f ergonomics.Features) (ra RiskAssessment) {
	if f.Empty() {
		return RiskAssessment{}
	}

	defer func() {
		if r := recover(); r != nil {
			ra = RiskAssessment{Error: fmt.Sprintf("risk scoring failed: %v", r)}
		}
	}()

	if err := checkFinite(f); err != nil {
		return RiskAssessment{Error: err.Error()}
	}

	reba := s.REBA(f)
	rula := s.RULA(f)

	composite := int(math.Round(float64(reba.Score+rula.Score) / 2))
	confidence := round2((reba.Confidence + rula.Confidence) / 2)
	light := TrafficLightFor(composite)
	level := s.RiskLevelFor(composite)

	return RiskAssessment{
		RULA:         &rula.Score,
		REBA:         &reba.Score,
		Composite:    &composite,
		Confidence:   &confidence,
		TrafficLight: &light,
		RiskLevel:    &level,
		Details:      &Details{REBA: reba, RULA: rula},
	}
}

func checkFinite(f ergonomics.Features) error {
	named := []struct {
		name  string
		value *float64
	}{
		{"neck_flexion", f.NeckFlexion},
		{"trunk_flexion", f.TrunkFlexion},
		{"left_shoulder_abduction", f.LeftShoulderAbduction},
		{"right_shoulder_abduction", f.RightShoulderAbduction},
		{"left_elbow_flexion", f.LeftElbowFlexion},
		{"right_elbow_flexion", f.RightElbowFlexion},
		{"asymmetry_score", f.AsymmetryScore},
		{"reach_distance_ratio", f.ReachDistanceRatio},
	}
	for _, n := range named {
		if n.value != nil && !finite(*n.value) {
			return fmt.Errorf("risk scoring failed: %s is not a finite number", n.name)
		}
	}
	return nil
}
