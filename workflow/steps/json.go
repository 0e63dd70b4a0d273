package steps

import "encoding/json"

// toJSONish renders a non-string interpolation result as compact JSON, the
// same fallback templates elsewhere in the ecosystem use for embedding
// structured values into prompt text.
func toJSONish(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
