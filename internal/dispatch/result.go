package dispatch

import (
	"encoding/json"
	"strconv"
)

// Identifier fields recognised in procedure return values, in priority order.
var idFields = []string{"change_request_id", "id", "request_id"}

// ExtractID normalises the heterogeneous return shapes of the submit
// procedures into a single identifier: a bare string, a single-element list
// containing an object, or an object with one of the known id fields.
// Returns "" when no shape matches; never panics.
func ExtractID(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case []any:
		if len(v) == 1 {
			return ExtractID(v[0])
		}
		return ""
	case map[string]any:
		for _, field := range idFields {
			if id := ExtractID(v[field]); id != "" {
				return id
			}
		}
		return ""
	default:
		return ""
	}
}
