package pose

import "fmt"

// DefaultKeypointNames is the 17-point MoveNet / COCO skeleton ordering.
var DefaultKeypointNames = []string{
	"nose",
	"left_eye",
	"right_eye",
	"left_ear",
	"right_ear",
	"left_shoulder",
	"right_shoulder",
	"left_elbow",
	"right_elbow",
	"left_wrist",
	"right_wrist",
	"left_hip",
	"right_hip",
	"left_knee",
	"right_knee",
	"left_ankle",
	"right_ankle",
}

// Keypoint is a detected anatomical landmark in normalized image coordinates.
type Keypoint struct {
	ID         int     `json:"id"`
	Name       string  `json:"name"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"confidence"`
}

// KeypointSet is an ordered, sparse collection of keypoints, unique by id and name.
type KeypointSet struct {
	points []Keypoint
	byName map[string]int
}

// NewKeypointSet builds a set from points. Later duplicates of an id or name
// are dropped so the first detection wins.
func NewKeypointSet(points ...Keypoint) KeypointSet {
	ks := KeypointSet{
		points: make([]Keypoint, 0, len(points)),
		byName: make(map[string]int, len(points)),
	}
	seenIDs := make(map[int]bool, len(points))
	for _, p := range points {
		if seenIDs[p.ID] {
			continue
		}
		if _, dup := ks.byName[p.Name]; dup {
			continue
		}
		seenIDs[p.ID] = true
		ks.byName[p.Name] = len(ks.points)
		ks.points = append(ks.points, p)
	}
	return ks
}

// Get looks up a keypoint by name.
func (ks KeypointSet) Get(name string) (Keypoint, bool) {
	idx, ok := ks.byName[name]
	if !ok {
		return Keypoint{}, false
	}
	return ks.points[idx], true
}

// Has reports whether every named keypoint is present.
func (ks KeypointSet) Has(names ...string) bool {
	for _, n := range names {
		if _, ok := ks.byName[n]; !ok {
			return false
		}
	}
	return true
}

func (ks KeypointSet) Len() int { return len(ks.points) }

// Keypoints returns a copy of the points in tensor order. Never nil.
func (ks KeypointSet) Keypoints() []Keypoint {
	out := make([]Keypoint, len(ks.points))
	copy(out, ks.points)
	return out
}

func syntheticName(id int) string {
	return fmt.Sprintf("keypoint_%d", id)
}
