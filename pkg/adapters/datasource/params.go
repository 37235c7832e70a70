package datasource

import (
	"fmt"
	"strconv"
)

// StringParam reads a string parameter, returning def when absent.
func StringParam(params map[string]any, key, def string) string {
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return def
}

// RequireString reads a mandatory string parameter.
func RequireString(params map[string]any, key string) (string, error) {
	v := StringParam(params, key, "")
	if v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

// IntParam reads an integer parameter. YAML and JSON decoders produce
// different numeric types, so all of them are accepted.
func IntParam(params map[string]any, key string, def int) int {
	switch v := params[key].(type) {
	case int:
		if v != 0 {
			return v
		}
	case int64:
		if v != 0 {
			return int(v)
		}
	case float64:
		if v != 0 {
			return int(v)
		}
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
