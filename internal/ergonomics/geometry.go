package ergonomics

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/ZanzyTHEbar/posture-risk/internal/pose"
)

// eps keeps the cosine finite for degenerate (zero-length) limbs.
const eps = 1e-6

type point struct{ x, y float64 }

func at(kp pose.Keypoint) point { return point{x: kp.X, y: kp.Y} }

func midpoint(a, b point) point {
	return point{x: (a.x + b.x) / 2, y: (a.y + b.y) / 2}
}

func degrees(rad float64) float64 { return rad * 180 / math.Pi }

// vertexAngle is the angle in degrees at vertex between the rays to a and b.
func vertexAngle(a, vertex, b point) float64 {
	v1 := []float64{a.x - vertex.x, a.y - vertex.y}
	v2 := []float64{b.x - vertex.x, b.y - vertex.y}

	cos := floats.Dot(v1, v2) / (floats.Norm(v1, 2)*floats.Norm(v2, 2) + eps)
	return degrees(math.Acos(min(max(cos, -1), 1)))
}
