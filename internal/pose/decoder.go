package pose

// Tensor is the raw pose-model output, shaped [N][K][3] where each row is
// (y, x, confidence). Only the first batch element is decoded.
type Tensor [][][]float64

// DecoderConfig holds the read-only settings for keypoint decoding.
type DecoderConfig struct {
	ConfidenceThreshold float64
	KeypointNames       []string
}

// DefaultDecoderConfig returns the MoveNet defaults.
func DefaultDecoderConfig() DecoderConfig {
	return DecoderConfig{
		ConfidenceThreshold: 0.3,
		KeypointNames:       DefaultKeypointNames,
	}
}

// Decoder turns raw tensors into keypoint sets.
type Decoder struct {
	threshold float64
	names     []string
}

func NewDecoder(cfg DecoderConfig) *Decoder {
	names := make([]string, len(cfg.KeypointNames))
	copy(names, cfg.KeypointNames)
	return &Decoder{threshold: cfg.ConfidenceThreshold, names: names}
}

// Decode is a convenience wrapper around Decoder.Decode.
func Decode(t Tensor, threshold float64, names []string) KeypointSet {
	return NewDecoder(DecoderConfig{ConfidenceThreshold: threshold, KeypointNames: names}).Decode(t)
}

// Decode keeps every keypoint of the first batch element whose confidence is
// at least the threshold. NaN confidences never pass. A tensor that is not a
// rectangular [N][K][3] array decodes to an empty set.
func (d *Decoder) Decode(t Tensor) KeypointSet {
	if !wellFormed(t) {
		return NewKeypointSet()
	}

	rows := t[0]
	points := make([]Keypoint, 0, len(rows))
	for idx, row := range rows {
		y, x, conf := row[0], row[1], row[2]
		if !(conf >= d.threshold) {
			continue
		}
		points = append(points, Keypoint{
			ID:         idx,
			Name:       d.nameFor(idx),
			X:          x,
			Y:          y,
			Confidence: conf,
		})
	}
	return NewKeypointSet(points...)
}

func (d *Decoder) nameFor(idx int) string {
	if idx < len(d.names) {
		return d.names[idx]
	}
	return syntheticName(idx)
}

// Threshold returns the configured confidence threshold.
func (d *Decoder) Threshold() float64 { return d.threshold }

func wellFormed(t Tensor) bool {
	if len(t) == 0 {
		return false
	}
	for _, batch := range t {
		if len(batch) != len(t[0]) {
			return false
		}
		for _, row := range batch {
			if len(row) != 3 {
				return false
			}
		}
	}
	return true
}
