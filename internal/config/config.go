package config

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ZanzyTHEbar/posture-risk/internal/analysis"
	apperrors "github.com/ZanzyTHEbar/posture-risk/internal/errors"
	"github.com/ZanzyTHEbar/posture-risk/internal/pose"
)

// ModelInfo describes the pose model whose output the service accepts.
type ModelInfo struct {
	Name         string `json:"model_name"`
	Version      string `json:"version"`
	InputSize    []int  `json:"input_size"`
	NumKeypoints int    `json:"num_keypoints"`
}

// Config is the effective configuration after defaults were applied.
type Config struct {
	Model   ModelInfo
	Decoder pose.DecoderConfig
	Scoring analysis.Config

	// Warnings lists every value that was missing and replaced by a default.
	Warnings []Warning
}

// Warning records a single substituted default.
type Warning struct {
	Field  string
	Detail string
}

func (w Warning) String() string {
	return w.Field + ": " + w.Detail
}

const (
	defaultModelName    = "movenet_singlepose_lightning"
	defaultModelVersion = "1.0.0"
	defaultInputSize    = 192
)

// Default returns the built-in configuration with no warnings.
func Default() *Config {
	return &Config{
		Model: ModelInfo{
			Name:         defaultModelName,
			Version:      defaultModelVersion,
			InputSize:    []int{defaultInputSize, defaultInputSize},
			NumKeypoints: len(pose.DefaultKeypointNames),
		},
		Decoder: pose.DefaultDecoderConfig(),
		Scoring: analysis.DefaultConfig(),
	}
}

// Load reads the YAML document at path. A missing file yields the defaults
// with a single warning.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			cfg := Default()
			cfg.Warnings = append(cfg.Warnings, Warning{
				Field:  path,
				Detail: "config file not found, using built-in defaults",
			})
			return cfg, nil
		}
		return nil, apperrors.NewConfigurationError(fmt.Sprintf("reading %s", path), err)
	}
	return Parse(data)
}

// Parse builds the effective configuration from a YAML document.
func Parse(data []byte) (*Config, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, apperrors.NewConfigurationError("malformed configuration document", err)
	}

	cfg := Default()
	w := &warnings{}

	doc.PoseEstimation.apply(cfg, w)
	doc.ErgonomicThresholds.apply(&cfg.Scoring, w)
	doc.RiskScoring.apply(&cfg.Scoring, w)

	if err := cfg.validate(); err != nil {
		return nil, apperrors.NewConfigurationError("invalid configuration document", err)
	}

	cfg.Warnings = w.list
	return cfg, nil
}

func (c *Config) validate() error {
	if t := c.Decoder.ConfidenceThreshold; !(t >= 0 && t <= 1) {
		return fmt.Errorf("pose_estimation.confidence_threshold must be a number within [0, 1], got %v", t)
	}
	return c.Scoring.Validate()
}

type warnings struct {
	list []Warning
}

func (w *warnings) defaulted(field string, value any) {
	w.list = append(w.list, Warning{
		Field:  field,
		Detail: fmt.Sprintf("missing, using default %v", value),
	})
}

type document struct {
	PoseEstimation      poseSection       `yaml:"pose_estimation"`
	ErgonomicThresholds thresholdsSection `yaml:"ergonomic_thresholds"`
	RiskScoring         scoringSection    `yaml:"risk_scoring"`
}

type poseSection struct {
	ModelName           *string  `yaml:"model_name"`
	Version             *string  `yaml:"version"`
	InputSize           []int    `yaml:"input_size"`
	ConfidenceThreshold *float64 `yaml:"confidence_threshold"`
	NumKeypoints        *int     `yaml:"num_keypoints"`
	KeypointNames       []string `yaml:"keypoint_names"`
}

func (s poseSection) apply(cfg *Config, w *warnings) {
	if s.ModelName != nil {
		cfg.Model.Name = *s.ModelName
	} else {
		w.defaulted("pose_estimation.model_name", cfg.Model.Name)
	}
	if s.Version != nil {
		cfg.Model.Version = *s.Version
	} else {
		w.defaulted("pose_estimation.version", cfg.Model.Version)
	}
	if len(s.InputSize) > 0 {
		cfg.Model.InputSize = s.InputSize
	} else {
		w.defaulted("pose_estimation.input_size", cfg.Model.InputSize)
	}
	if s.ConfidenceThreshold != nil {
		cfg.Decoder.ConfidenceThreshold = *s.ConfidenceThreshold
	} else {
		w.defaulted("pose_estimation.confidence_threshold", cfg.Decoder.ConfidenceThreshold)
	}
	if len(s.KeypointNames) > 0 {
		cfg.Decoder.KeypointNames = s.KeypointNames
	} else {
		w.defaulted("pose_estimation.keypoint_names", "COCO-17")
	}

	cfg.Model.NumKeypoints = len(cfg.Decoder.KeypointNames)
	if s.NumKeypoints != nil {
		cfg.Model.NumKeypoints = *s.NumKeypoints
		if *s.NumKeypoints != len(cfg.Decoder.KeypointNames) {
			w.list = append(w.list, Warning{
				Field:  "pose_estimation.num_keypoints",
				Detail: fmt.Sprintf("declares %d keypoints but %d names are configured; unnamed indices decode as keypoint_<id>",
					*s.NumKeypoints, len(cfg.Decoder.KeypointNames)),
			})
		}
	}
}

type thresholdsDoc struct {
	Low    *float64 `yaml:"low"`
	Medium *float64 `yaml:"medium"`
	High   *float64 `yaml:"high"`
}

func (d *thresholdsDoc) merge(field string, into *analysis.Thresholds, w *warnings) {
	if d == nil {
		w.defaulted(field, *into)
		return
	}
	mergeFloat(field+".low", d.Low, &into.Low, w)
	mergeFloat(field+".medium", d.Medium, &into.Medium, w)
	mergeFloat(field+".high", d.High, &into.High, w)
}

type thresholdsSection struct {
	NeckFlexion       *thresholdsDoc `yaml:"neck_flexion"`
	TrunkFlexion      *thresholdsDoc `yaml:"trunk_flexion"`
	ShoulderAbduction *thresholdsDoc `yaml:"shoulder_abduction"`
	ElbowFlexion      *thresholdsDoc `yaml:"elbow_flexion"`
}

func (s thresholdsSection) apply(cfg *analysis.Config, w *warnings) {
	s.NeckFlexion.merge("ergonomic_thresholds.neck_flexion", &cfg.NeckFlexion, w)
	s.TrunkFlexion.merge("ergonomic_thresholds.trunk_flexion", &cfg.TrunkFlexion, w)
	s.ShoulderAbduction.merge("ergonomic_thresholds.shoulder_abduction", &cfg.ShoulderAbduction, w)
	s.ElbowFlexion.merge("ergonomic_thresholds.elbow_flexion", &cfg.ElbowFlexion, w)
}

type weightsDoc struct {
	Neck     *float64 `yaml:"neck"`
	Trunk    *float64 `yaml:"trunk"`
	UpperArm *float64 `yaml:"upper_arm"`
	LowerArm *float64 `yaml:"lower_arm"`
}

type scoringSection struct {
	RebaWeights *weightsDoc `yaml:"reba_weights"`
	RiskLevels  riskLevels  `yaml:"risk_levels"`
}

func (s scoringSection) apply(cfg *analysis.Config, w *warnings) {
	if s.RebaWeights == nil {
		w.defaulted("risk_scoring.reba_weights", cfg.Weights)
	} else {
		mergeFloat("risk_scoring.reba_weights.neck", s.RebaWeights.Neck, &cfg.Weights.Neck, w)
		mergeFloat("risk_scoring.reba_weights.trunk", s.RebaWeights.Trunk, &cfg.Weights.Trunk, w)
		mergeFloat("risk_scoring.reba_weights.upper_arm", s.RebaWeights.UpperArm, &cfg.Weights.UpperArm, w)
		mergeFloat("risk_scoring.reba_weights.lower_arm", s.RebaWeights.LowerArm, &cfg.Weights.LowerArm, w)
	}

	if len(s.RiskLevels) == 0 {
		w.defaulted("risk_scoring.risk_levels", "negligible/low/medium/high/very_high")
		return
	}
	cfg.Bands = []analysis.RiskBand(s.RiskLevels)
}

func mergeFloat(field string, src *float64, dst *float64, w *warnings) {
	if src == nil {
		w.defaulted(field, *dst)
		return
	}
	*dst = *src
}

// riskLevels accepts either a sequence of {level, min, max} or a mapping of
// level to [min, max]. Both keep the declared order.
type riskLevels []analysis.RiskBand

func (r *riskLevels) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var bands []analysis.RiskBand
		if err := node.Decode(&bands); err != nil {
			return err
		}
		*r = bands
		return nil
	case yaml.MappingNode:
		bands := make([]analysis.RiskBand, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, value := node.Content[i], node.Content[i+1]
			var bounds []int
			if err := value.Decode(&bounds); err != nil {
				return fmt.Errorf("risk level %q: %w", key.Value, err)
			}
			if len(bounds) != 2 {
				return fmt.Errorf("risk level %q: expected [min, max], got %d values", key.Value, len(bounds))
			}
			bands = append(bands, analysis.RiskBand{
				Level: analysis.RiskLevel(key.Value),
				Min:   bounds[0],
				Max:   bounds[1],
			})
		}
		*r = bands
		return nil
	default:
		return fmt.Errorf("line %d: risk_levels must be a sequence or mapping", node.Line)
	}
}
