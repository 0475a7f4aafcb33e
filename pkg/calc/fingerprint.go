package calc

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// fingerprintPayload is the canonical form hashed for spec identity.
// Field order and numeric normalization are part of the stable contract:
// changing them invalidates every fingerprint-based dedup decision.
type fingerprintPayload struct {
	Elements     []string   `json:"elements"`
	Coords       []float64  `json:"coords"`
	Connectivity string     `json:"connectivity,omitempty"`
	Method       string     `json:"method"`
	Params       []paramKV  `json:"params"`
	Properties   []Property `json:"properties"`
}

type paramKV struct {
	Key   string `json:"k"`
	Value any    `json:"v"`
}

// fingerprint computes a sha256 digest over a canonical JSON encoding of the
// spec's semantic content. map iteration order is neutralized by sorting
// parameter keys; the property set is already canonically sorted by NewSpec.
func fingerprint(s *Spec) (string, error) {
	keys := make([]string, 0, len(s.params))
	for k := range s.params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	params := make([]paramKV, 0, len(keys))
	for _, k := range keys {
		params = append(params, paramKV{Key: k, Value: normalizeValue(s.params[k])})
	}

	payload := fingerprintPayload{
		Elements:   s.structure.Elements,
		Coords:     s.structure.Coords,
		Method:     s.method,
		Params:     params,
		Properties: s.properties,
	}
	if len(s.structure.Connectivity) > 0 {
		payload.Connectivity = hex.EncodeToString(s.structure.Connectivity)
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal fingerprint payload: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// normalizeValue collapses equivalent numeric representations so that e.g.
// an int 3 and a float64 3 coming from different callers hash identically,
// and nested maps hash independently of insertion order.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return float64(t)
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]paramKV, 0, len(keys))
		for _, k := range keys {
			out = append(out, paramKV{Key: k, Value: normalizeValue(t[k])})
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeValue(e)
		}
		return out
	default:
		return v
	}
}
