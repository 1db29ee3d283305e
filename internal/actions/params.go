package actions

import (
	"encoding/json"
	"time"

	"github.com/rendis/opflow/pkg/schema"
)

// Param helpers used by all action files.

func stringParam(m map[string]any, key, defaultVal string) string {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	s, ok := v.(string)
	if !ok {
		return defaultVal
	}
	return s
}

func boolParam(m map[string]any, key string, defaultVal bool) bool {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	b, ok := v.(bool)
	if !ok {
		return defaultVal
	}
	return b
}

func floatParam(m map[string]any, key string, defaultVal float64) float64 {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return defaultVal
		}
		return f
	default:
		return defaultVal
	}
}

// requireString reports a validation error naming the action when key is
// missing or not a non-empty string.
func requireString(action string, m map[string]any, key string) (string, error) {
	s, ok := m[key].(string)
	if !ok || s == "" {
		return "", schema.NewErrorf(schema.ErrCodeValidation,
			"%s requires non-empty '%s' string parameter", action, key)
	}
	return s, nil
}

// durationParam parses a Go duration string such as "250ms".
func durationParam(action string, m map[string]any, key string, defaultVal time.Duration) (time.Duration, error) {
	s := stringParam(m, key, "")
	if s == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, schema.NewErrorf(schema.ErrCodeValidation, "%s: invalid %s %q", action, key, s).WithCause(err)
	}
	if d < 0 {
		return 0, schema.NewErrorf(schema.ErrCodeValidation, "%s: negative %s %q", action, key, s)
	}
	return d, nil
}
