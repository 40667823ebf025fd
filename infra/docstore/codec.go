package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/CrestNiraj12/rantfeed/domain"
)

// Encode serializes document data for storage.
func Encode(data map[string]any) ([]byte, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}
	return b, nil
}

// Decode parses stored document data. Integral numbers decode as int64 and
// other numbers as float64, so every backend hands out the same types.
func Decode(b []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidDocument, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: document is not an object", domain.ErrInvalidDocument)
	}
	return normalize(raw).(map[string]any), nil
}

// Clone deep-copies document data.
func Clone(data map[string]any) map[string]any {
	if data == nil {
		return map[string]any{}
	}
	return normalize(data).(map[string]any)
}

// normalize deep-copies v, converting numbers to int64/float64 and typed
// slices to []any.
func normalize(v any) any {
	switch vv := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(vv))
		for k, item := range vv {
			out[k] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(vv))
		for i, item := range vv {
			out[i] = normalize(item)
		}
		return out
	case []string:
		out := make([]any, len(vv))
		for i, item := range vv {
			out[i] = item
		}
		return out
	case json.Number:
		if n, err := vv.Int64(); err == nil {
			return n
		}
		f, _ := vv.Float64()
		return f
	case int:
		return int64(vv)
	case int32:
		return int64(vv)
	case float32:
		return normalizeFloat(float64(vv))
	case float64:
		return normalizeFloat(vv)
	default:
		return v
	}
}

func normalizeFloat(f float64) any {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int64(f)
	}
	return f
}
