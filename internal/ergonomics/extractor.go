package ergonomics

import (
	"math"

	"github.com/ZanzyTHEbar/posture-risk/internal/pose"
)

const (
	nose          = "nose"
	leftShoulder  = "left_shoulder"
	rightShoulder = "right_shoulder"
	leftElbow     = "left_elbow"
	rightElbow    = "right_elbow"
	leftWrist     = "left_wrist"
	rightWrist    = "right_wrist"
	leftHip       = "left_hip"
	rightHip      = "right_hip"
)

// Extract derives postural features from a keypoint set. Each feature is set
// only when all the keypoints it depends on are present.
func Extract(ks pose.KeypointSet) Features {
	var f Features

	get := func(name string) (point, bool) {
		kp, ok := ks.Get(name)
		return at(kp), ok
	}

	n, hasNose := get(nose)
	ls, hasLS := get(leftShoulder)
	rs, hasRS := get(rightShoulder)
	le, hasLE := get(leftElbow)
	re, hasRE := get(rightElbow)
	lw, hasLW := get(leftWrist)
	rw, hasRW := get(rightWrist)
	lh, hasLH := get(leftHip)
	rh, hasRH := get(rightHip)

	// Neck and trunk use tilt from the image axes rather than a vertex angle.
	if hasNose && hasLS && hasRS {
		m := midpoint(ls, rs)
		f.NeckFlexion = Float(math.Abs(degrees(math.Atan2(n.y-m.y, n.x-m.x))))
	}

	if hasLS && hasRS && hasLH && hasRH {
		s := midpoint(ls, rs)
		h := midpoint(lh, rh)
		f.TrunkFlexion = Float(math.Abs(degrees(math.Atan2(s.y-h.y, s.x-h.x)) - 90))
	}

	if hasLS && hasLE && hasLH {
		f.LeftShoulderAbduction = Float(vertexAngle(lh, ls, le))
	}
	if hasRS && hasRE && hasRH {
		f.RightShoulderAbduction = Float(vertexAngle(rh, rs, re))
	}

	if hasLS && hasLE && hasLW {
		f.LeftElbowFlexion = Float(vertexAngle(ls, le, lw))
	}
	if hasRS && hasRE && hasRW {
		f.RightElbowFlexion = Float(vertexAngle(rs, re, rw))
	}

	if hasLS && hasRS {
		f.AsymmetryScore = Float(math.Abs(ls.y-rs.y) * 100)
	}

	if hasLS && hasRS && hasLW {
		width := math.Abs(ls.x - rs.x)
		if width > 0 {
			f.ReachDistanceRatio = Float(math.Abs(lw.x-ls.x) / width)
		}
	}

	return f
}
