package match

import "fmt"

// Normalize rewrites maps keyed by interface{}, as produced by YAML
// decoding, into maps keyed by string, recursively. Queries and entries
// decoded from YAML, JSON or built as Go literals then all look alike to
// the matcher. Scalars pass through unchanged.
func Normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for key, value := range t {
			out[fmt.Sprint(key)] = Normalize(value)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for key, value := range t {
			out[key] = Normalize(value)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, value := range t {
			out[i] = Normalize(value)
		}
		return out
	}
	return v
}
