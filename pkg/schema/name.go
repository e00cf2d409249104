package schema

import "encoding/json"

// NormalizeDisplayName turns a category name into plain text. The name may
// be plain text, a JSON string, a {"text": ...} rich-text object, or an
// array whose first element is such an object. Anything else comes back
// unchanged.
func NormalizeDisplayName(raw string) string {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	switch x := v.(type) {
	case string:
		return x
	case map[string]any:
		if t, ok := x["text"].(string); ok {
			return t
		}
	case []any:
		if len(x) == 0 {
			break
		}
		if first, ok := x[0].(map[string]any); ok {
			if t, ok := first["text"].(string); ok {
				return t
			}
		}
	}
	return raw
}
