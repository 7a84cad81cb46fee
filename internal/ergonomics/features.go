package ergonomics

// Features holds the postural measurements derived from one subject.
// A nil field was not assessed because one of its keypoints was not detected.
type Features struct {
	NeckFlexion            *float64 `json:"neck_flexion"`
	TrunkFlexion           *float64 `json:"trunk_flexion"`
	LeftShoulderAbduction  *float64 `json:"left_shoulder_abduction"`
	RightShoulderAbduction *float64 `json:"right_shoulder_abduction"`
	LeftElbowFlexion       *float64 `json:"left_elbow_flexion"`
	RightElbowFlexion      *float64 `json:"right_elbow_flexion"`
	AsymmetryScore         *float64 `json:"asymmetry_score"`
	ReachDistanceRatio     *float64 `json:"reach_distance_ratio"`
}

// FeatureCount is the number of fields in Features.
const FeatureCount = 8

func (f Features) fields() [FeatureCount]*float64 {
	return [FeatureCount]*float64{
		f.NeckFlexion,
		f.TrunkFlexion,
		f.LeftShoulderAbduction,
		f.RightShoulderAbduction,
		f.LeftElbowFlexion,
		f.RightElbowFlexion,
		f.AsymmetryScore,
		f.ReachDistanceRatio,
	}
}

// Count returns how many fields were observed.
func (f Features) Count() int {
	n := 0
	for _, v := range f.fields() {
		if v != nil {
			n++
		}
	}
	return n
}

// Empty reports whether no field was observed.
func (f Features) Empty() bool { return f.Count() == 0 }

// Completeness is the observed fraction of all feature fields.
func (f Features) Completeness() float64 {
	return float64(f.Count()) / FeatureCount
}

// Float returns a pointer to v, for building Features literals.
func Float(v float64) *float64 { return &v }
