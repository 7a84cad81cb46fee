package analysis

// TrafficLight is the three-band summary of a composite score.
type TrafficLight string

const (
	Green  TrafficLight = "green"
	Yellow TrafficLight = "yellow"
	Red    TrafficLight = "red"
)

// RiskLevel is the qualitative band a composite score falls in.
type RiskLevel string

const (
	LevelNegligible RiskLevel = "negligible"
	LevelLow        RiskLevel = "low"
	LevelMedium     RiskLevel = "medium"
	LevelHigh       RiskLevel = "high"
	LevelVeryHigh   RiskLevel = "very_high"
	LevelUnknown    RiskLevel = "unknown"
)

// RiskSubScore is the result of one ergonomic model. Joint ordinals are 0
// when the joint could not be assessed and 1..4 otherwise.
type RiskSubScore struct {
	Score      int     `json:"score"`
	Neck       int     `json:"neck_score"`
	Trunk      int     `json:"trunk_score"`
	UpperArm   int     `json:"upper_arm_score"`
	LowerArm   int     `json:"lower_arm_score"`
	GroupA     *int    `json:"group_a_score,omitempty"`
	GroupB     *int    `json:"group_b_score,omitempty"`
	Confidence float64 `json:"confidence"`
}

type Details struct {
	REBA RiskSubScore `json:"reba"`
	RULA RiskSubScore `json:"rula"`
}

// RiskAssessment is the scored outcome for one subject. Every score field is
// nil when nothing could be assessed or when Error is set.
type RiskAssessment struct {
	RULA         *int          `json:"rula"`
	REBA         *int          `json:"reba"`
	Composite    *int          `json:"composite"`
	Confidence   *float64      `json:"confidence"`
	TrafficLight *TrafficLight `json:"traffic_light"`
	RiskLevel    *RiskLevel    `json:"risk_level"`
	Details      *Details      `json:"details,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// Assessed reports whether scores were produced.
func (r RiskAssessment) Assessed() bool { return r.Composite != nil }
