package ergonomics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/posture-risk/internal/pose"
)

func kp(id int, name string, x, y float64) pose.Keypoint {
	return pose.Keypoint{ID: id, Name: name, X: x, Y: y, Confidence: 0.9}
}

func fullBody() []pose.Keypoint {
	return []pose.Keypoint{
		kp(0, "nose", 0.5, 0.1),
		kp(5, "left_shoulder", 0.4, 0.3),
		kp(6, "right_shoulder", 0.6, 0.3),
		kp(7, "left_elbow", 0.35, 0.45),
		kp(8, "right_elbow", 0.65, 0.45),
		kp(9, "left_wrist", 0.35, 0.6),
		kp(10, "right_wrist", 0.7, 0.55),
		kp(11, "left_hip", 0.45, 0.6),
		kp(12, "right_hip", 0.55, 0.6),
	}
}

func without(points []pose.Keypoint, names ...string) []pose.Keypoint {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	out := make([]pose.Keypoint, 0, len(points))
	for _, p := range points {
		if !drop[p.Name] {
			out = append(out, p)
		}
	}
	return out
}

func TestExtractHeadAndShouldersOnly(t *testing.T) {
	ks := pose.NewKeypointSet(
		kp(0, "nose", 0.5, 0.2),
		kp(5, "left_shoulder", 0.4, 0.35),
		kp(6, "right_shoulder", 0.6, 0.35),
	)

	f := Extract(ks)

	require.NotNil(t, f.NeckFlexion)
	assert.InDelta(t, 90.0, *f.NeckFlexion, 1e-9)
	assert.Nil(t, f.TrunkFlexion)
	require.NotNil(t, f.AsymmetryScore)
	assert.InDelta(t, 0.0, *f.AsymmetryScore, 1e-9)
	assert.Nil(t, f.ReachDistanceRatio)
	assert.Nil(t, f.LeftShoulderAbduction)
	assert.Nil(t, f.LeftElbowFlexion)
	assert.Equal(t, 2, f.Count())
}

func TestExtractFullBody(t *testing.T) {
	f := Extract(pose.NewKeypointSet(fullBody()...))

	assert.Equal(t, FeatureCount, f.Count())
	assert.InDelta(t, 1.0, f.Completeness(), 1e-9)

	// Upright trunk in image coordinates (y grows downward).
	assert.InDelta(t, 180.0, *f.TrunkFlexion, 1e-9)
	assert.InDelta(t, 161.565, *f.LeftElbowFlexion, 0.05)
	assert.InDelta(t, 0.25, *f.ReachDistanceRatio, 1e-9)
	assert.InDelta(t, 0.0, *f.AsymmetryScore, 1e-9)
}

func TestExtractMissingKeypointIsolation(t *testing.T) {
	tests := []struct {
		name    string
		drop    []string
		absent  []string
		present int
	}{
		{
			name:    "no left wrist",
			drop:    []string{"left_wrist"},
			absent:  []string{"left_elbow_flexion", "reach_distance_ratio"},
			present: 6,
		},
		{
			name:    "no hips",
			drop:    []string{"left_hip", "right_hip"},
			absent:  []string{"trunk_flexion", "left_shoulder_abduction", "right_shoulder_abduction"},
			present: 5,
		},
		{
			name:    "no nose",
			drop:    []string{"nose"},
			absent:  []string{"neck_flexion"},
			present: 7,
		},
		{
			name:    "no right elbow",
			drop:    []string{"right_elbow"},
			absent:  []string{"right_shoulder_abduction", "right_elbow_flexion"},
			present: 6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Extract(pose.NewKeypointSet(without(fullBody(), tt.drop...)...))
			byName := map[string]*float64{
				"neck_flexion":             f.NeckFlexion,
				"trunk_flexion":            f.TrunkFlexion,
				"left_shoulder_abduction":  f.LeftShoulderAbduction,
				"right_shoulder_abduction": f.RightShoulderAbduction,
				"left_elbow_flexion":       f.LeftElbowFlexion,
				"right_elbow_flexion":      f.RightElbowFlexion,
				"asymmetry_score":          f.AsymmetryScore,
				"reach_distance_ratio":     f.ReachDistanceRatio,
			}
			for _, name := range tt.absent {
				assert.Nil(t, byName[name], name)
			}
			assert.Equal(t, tt.present, f.Count())
		})
	}
}

func TestExtractZeroShoulderWidth(t *testing.T) {
	ks := pose.NewKeypointSet(
		kp(5, "left_shoulder", 0.5, 0.3),
		kp(6, "right_shoulder", 0.5, 0.32),
		kp(9, "left_wrist", 0.6, 0.5),
	)

	f := Extract(ks)
	assert.Nil(t, f.ReachDistanceRatio)
	require.NotNil(t, f.AsymmetryScore)
	assert.InDelta(t, 2.0, *f.AsymmetryScore, 1e-9)
}

func TestExtractEmpty(t *testing.T) {
	f := Extract(pose.NewKeypointSet())
	assert.True(t, f.Empty())
	assert.Equal(t, Features{}, f)
}

func TestVertexAngle(t *testing.T) {
	tests := []struct {
		name     string
		a, v, b  point
		expected float64
		delta    float64
	}{
		{name: "right angle", a: point{1, 0}, v: point{0, 0}, b: point{0, 1}, expected: 90, delta: 1e-9},
		{name: "straight limb", a: point{-1, 0}, v: point{0, 0}, b: point{1, 0}, expected: 180, delta: 0.1},
		{name: "folded limb", a: point{1, 0}, v: point{0, 0}, b: point{2, 0}, expected: 0, delta: 0.1},
		{name: "degenerate limb", a: point{0, 0}, v: point{0, 0}, b: point{1, 0}, expected: 90, delta: 1e-9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, vertexAngle(tt.a, tt.v, tt.b), tt.delta)
		})
	}
}
