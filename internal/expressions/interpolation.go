package expressions

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rendis/opflow/pkg/ref"
	"github.com/rendis/opflow/pkg/schema"
)

// namespaces are the roots a ${{...}} reference may start from.
var namespaces = []string{"input", "output", "vars"}

// Interpolate returns a copy of params with every ${{...}} reference resolved
// against env. A string that is exactly one reference takes the referenced
// value with its type intact; references embedded in longer strings are
// stringified. Maps and slices are walked recursively.
func Interpolate(params map[string]any, env Env) (map[string]any, error) {
	if params == nil {
		return nil, nil
	}
	root := env.data()
	out, err := interpolateValue(params, root)
	if err != nil {
		return nil, err
	}
	return out.(map[string]any), nil
}

func interpolateValue(v any, root map[string]any) (any, error) {
	switch val := v.(type) {
	case string:
		return interpolateString(val, root)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			r, err := interpolateValue(item, root)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			r, err := interpolateValue(item, root)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return v, nil
	}
}

func interpolateString(s string, root map[string]any) (any, error) {
	if !strings.Contains(s, "${{") {
		return s, nil
	}

	// Whole-value reference keeps the resolved type.
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "${{") && strings.HasSuffix(trimmed, "}}") &&
		strings.Count(trimmed, "${{") == 1 {
		return resolve(strings.TrimSpace(trimmed[3:len(trimmed)-2]), root)
	}

	var result strings.Builder
	result.Grow(len(s))

	i := 0
	for i < len(s) {
		idx := strings.Index(s[i:], "${{")
		if idx == -1 {
			result.WriteString(s[i:])
			break
		}
		result.WriteString(s[i : i+idx])
		start := i + idx + 3

		end := strings.Index(s[start:], "}}")
		if end == -1 {
			return nil, schema.NewError(schema.ErrCodeExpression, "unclosed ${{ reference").
				WithDetails(map[string]any{"value": s})
		}
		end += start

		val, err := resolve(strings.TrimSpace(s[start:end]), root)
		if err != nil {
			return nil, err
		}
		result.WriteString(marshalInline(val))

		i = end + 2
	}

	return result.String(), nil
}

// resolve looks up a single reference like "vars.user.name" or "input.0".
func resolve(path string, root map[string]any) (any, error) {
	if path == "" {
		return nil, schema.NewError(schema.ErrCodeExpression, "empty reference: ${{  }}")
	}
	if strings.Contains(path, "${{") {
		return nil, schema.NewError(schema.ErrCodeExpression,
			"nested interpolation not allowed: ${{...}} cannot contain ${{")
	}

	namespace, _, _ := strings.Cut(path, ".")
	if _, ok := root[namespace]; !ok {
		return nil, schema.NewErrorf(schema.ErrCodeExpression,
			"unknown namespace %q in ${{%s}}; available: %s", namespace, path, strings.Join(namespaces, ", ")).
			WithDetails(map[string]any{"reference": path, "available_namespaces": namespaces})
	}
	return ref.Path(root, path).Get()
}

// marshalInline converts a resolved value into its inline string form.
// Strings are embedded as is, scalars with their natural formatting, and
// maps and slices as JSON.
func marshalInline(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case nil:
		return "null"
	case bool, int, int64, float64:
		return fmt.Sprint(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// HasInterpolation reports whether v, or anything nested in it, contains a
// ${{...}} reference.
func HasInterpolation(v any) bool {
	switch val := v.(type) {
	case string:
		return strings.Contains(val, "${{")
	case map[string]any:
		for _, item := range val {
			if HasInterpolation(item) {
				return true
			}
		}
	case []any:
		for _, item := range val {
			if HasInterpolation(item) {
				return true
			}
		}
	}
	return false
}
