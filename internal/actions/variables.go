package actions

import (
	"context"

	"github.com/rendis/opflow/pkg/schema"
)

// VariableActions returns get, set and count, the actions that read and
// write flow variables.
func VariableActions() []Action {
	return []Action{&getAction{}, &setAction{}, &countAction{}}
}

var varInputSchema = map[string]any{
	"type":     "object",
	"required": []any{"var"},
	"properties": map[string]any{
		"var": map[string]any{"type": "string", "minLength": 1},
	},
}

func varsOf(name string, input ActionInput) (*Vars, error) {
	if input.Vars == nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "%s: no flow variables in scope", name)
	}
	return input.Vars, nil
}

// --- get ---

type getAction struct{}

func (a *getAction) Name() string { return "get" }

func (a *getAction) Schema() ActionSchema {
	return ActionSchema{Description: "Read a flow variable; yields its value", InputSchema: varInputSchema}
}

func (a *getAction) Validate(params map[string]any) error {
	_, err := requireString("get", params, "var")
	return err
}

func (a *getAction) Execute(_ context.Context, input ActionInput) (*ActionOutput, error) {
	path, err := requireString("get", input.Params, "var")
	if err != nil {
		return nil, err
	}
	vars, err := varsOf("get", input)
	if err != nil {
		return nil, err
	}
	v, err := vars.Get(path)
	if err != nil {
		return nil, err
	}
	return &ActionOutput{Value: v}, nil
}

// --- set ---

type setAction struct{}

func (a *setAction) Name() string { return "set" }

func (a *setAction) Schema() ActionSchema {
	return ActionSchema{
		Description: "Write the 'value' param, or the running value when absent, into a flow variable; yields the running value",
		InputSchema: varInputSchema,
	}
}

func (a *setAction) Validate(params map[string]any) error {
	_, err := requireString("set", params, "var")
	return err
}

func (a *setAction) Execute(_ context.Context, input ActionInput) (*ActionOutput, error) {
	path, err := requireString("set", input.Params, "var")
	if err != nil {
		return nil, err
	}
	vars, err := varsOf("set", input)
	if err != nil {
		return nil, err
	}
	v, ok := input.Params["value"]
	if !ok {
		v = input.Value
	}
	if err := vars.Set(path, v); err != nil {
		return nil, err
	}
	return &ActionOutput{Value: input.Value}, nil
}

// --- count ---

type countAction struct{}

func (a *countAction) Name() string { return "count" }

func (a *countAction) Schema() ActionSchema {
	return ActionSchema{
		Description: "Add 'by' (default 1) to a numeric flow variable, starting from 0 when unset; yields the new count",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []any{"var"},
			"properties": map[string]any{
				"var": map[string]any{"type": "string", "minLength": 1},
				"by":  map[string]any{"type": "number"},
			},
		},
	}
}

func (a *countAction) Validate(params map[string]any) error {
	_, err := requireString("count", params, "var")
	return err
}

func (a *countAction) Execute(_ context.Context, input ActionInput) (*ActionOutput, error) {
	path, err := requireString("count", input.Params, "var")
	if err != nil {
		return nil, err
	}
	vars, err := varsOf("count", input)
	if err != nil {
		return nil, err
	}
	by := floatParam(input.Params, "by", 1)

	next, err := vars.Update(path, func(cur any, found bool) (any, error) {
		if !found || cur == nil {
			return normalizeCount(by), nil
		}
		n, ok := asFloat(cur)
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeExecution,
				"count: variable %q holds %T, not a number", path, cur)
		}
		return normalizeCount(n + by), nil
	})
	if err != nil {
		return nil, err
	}
	return &ActionOutput{Value: next}, nil
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// normalizeCount keeps whole counts as int so they print and compare as integers.
func normalizeCount(f float64) any {
	if f == float64(int(f)) {
		return int(f)
	}
	return f
}
