package scoring

import "encoding/json"

// jsonDepth returns the maximum nesting depth of JSON objects in raw,
// mirroring the dict-depth check the original analysis ran against
// message payloads to flag deeply nested parameter structures.
func jsonDepth(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0
	}
	return objectDepth(v, 0)
}

func objectDepth(v any, depth int) int {
	m, ok := v.(map[string]any)
	if !ok {
		return depth
	}
	maxDepth := depth
	for _, child := range m {
		if childMap, ok := child.(map[string]any); ok {
			d := objectDepth(childMap, depth+1)
			if d > maxDepth {
				maxDepth = d
			}
		}
	}
	return maxDepth
}
