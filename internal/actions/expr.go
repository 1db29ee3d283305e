package actions

import (
	"context"

	"github.com/rendis/opflow/internal/expressions"
)

// ExpressionActions returns the jq, expr and cel transform actions. Each
// evaluates its 'expression' param with the running value as input and the
// flow variables as vars, and yields the result.
func ExpressionActions(engines *expressions.Engines) []Action {
	return []Action{
		&expressionAction{engine: engines.JQ, desc: "Transform the running value with a jq expression"},
		&expressionAction{engine: engines.Expr, desc: "Evaluate an Expr expression over input and vars"},
		&expressionAction{engine: engines.CEL, desc: "Evaluate a CEL expression over input and vars"},
	}
}

var expressionInputSchema = map[string]any{
	"type":     "object",
	"required": []any{"expression"},
	"properties": map[string]any{
		"expression": map[string]any{"type": "string", "minLength": 1},
	},
}

type expressionAction struct {
	engine expressions.Engine
	desc   string
}

func (a *expressionAction) Name() string { return a.engine.Name() }

func (a *expressionAction) Schema() ActionSchema {
	return ActionSchema{Description: a.desc, InputSchema: expressionInputSchema}
}

func (a *expressionAction) Validate(params map[string]any) error {
	expr, err := requireString(a.Name(), params, "expression")
	if err != nil {
		return err
	}
	if expressions.HasInterpolation(expr) {
		return nil
	}
	return a.engine.Compile(expr)
}

func (a *expressionAction) Execute(ctx context.Context, input ActionInput) (*ActionOutput, error) {
	expression, err := requireString(a.Name(), input.Params, "expression")
	if err != nil {
		return nil, err
	}

	out, err := a.engine.Evaluate(ctx, expression, expressions.Env{
		Input: input.Value,
		Vars:  input.Vars.Snapshot(),
	})
	if err != nil {
		return nil, err
	}
	return &ActionOutput{Value: out}, nil
}

var _ Action = (*expressionAction)(nil)
