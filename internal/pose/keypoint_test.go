package pose

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeypointSetUniqueness(t *testing.T) {
	ks := NewKeypointSet(
		Keypoint{ID: 0, Name: "nose", Confidence: 0.9},
		Keypoint{ID: 0, Name: "other", Confidence: 0.8},
		Keypoint{ID: 1, Name: "nose", Confidence: 0.7},
		Keypoint{ID: 2, Name: "left_hip", Confidence: 0.6},
	)

	assert.Equal(t, 2, ks.Len())
	kp, ok := ks.Get("nose")
	assert.True(t, ok)
	assert.Equal(t, 0.9, kp.Confidence)
	_, ok = ks.Get("other")
	assert.False(t, ok)
}

func TestKeypointSetHas(t *testing.T) {
	ks := NewKeypointSet(
		Keypoint{ID: 5, Name: "left_shoulder"},
		Keypoint{ID: 6, Name: "right_shoulder"},
	)

	assert.True(t, ks.Has("left_shoulder", "right_shoulder"))
	assert.False(t, ks.Has("left_shoulder", "left_hip"))
	assert.True(t, ks.Has())
}

func TestKeypointsReturnsCopy(t *testing.T) {
	ks := NewKeypointSet(Keypoint{ID: 0, Name: "nose", X: 0.5})
	pts := ks.Keypoints()
	pts[0].X = 0.9

	kp, _ := ks.Get("nose")
	assert.Equal(t, 0.5, kp.X)
	assert.NotNil(t, NewKeypointSet().Keypoints())
}
