package pose

import (
	"encoding/json"
	"fmt"
)

// ParseTensor decodes a JSON array into a Tensor. Well-formed numeric arrays
// of any other rank parse to a nil Tensor without error so that the decoder
// applies its no-detection policy; only invalid JSON or non-numeric content
// is an error.
func ParseTensor(raw []byte) (Tensor, error) {
	var t Tensor
	if err := json.Unmarshal(raw, &t); err == nil {
		return t, nil
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("invalid tensor json: %w", err)
	}
	if !numeric(generic) {
		return nil, fmt.Errorf("tensor must contain only numbers")
	}
	return nil, nil
}

func numeric(v any) bool {
	switch x := v.(type) {
	case float64:
		return true
	case []any:
		for _, e := range x {
			if !numeric(e) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
