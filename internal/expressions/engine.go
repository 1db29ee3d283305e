package expressions

import (
	"context"

	"github.com/rendis/opflow/pkg/schema"
)

// Engine evaluates expressions inside flow steps.
// Three implementations: CEL (conditions), GoJQ (transforms), Expr (logic).
type Engine interface {
	Name() string
	// Compile checks an expression without running it. Compiled programs
	// are cached, so a later Evaluate of the same text does not recompile.
	Compile(expression string) error
	Evaluate(ctx context.Context, expression string, env Env) (any, error)
}

// Env is the data an expression sees.
type Env struct {
	Input  any            // running value handed to the step
	Output any            // value produced by the step body, when there is one
	Vars   map[string]any // flow variables
}

func (e Env) data() map[string]any {
	vars := e.Vars
	if vars == nil {
		vars = map[string]any{}
	}
	return map[string]any{"input": e.Input, "output": e.Output, "vars": vars}
}

// Engines bundles one engine of each kind.
type Engines struct {
	CEL  *CELEngine
	Expr *ExprEngine
	JQ   *GoJQEngine
}

// NewEngines creates all three engines.
func NewEngines() (*Engines, error) {
	c, err := NewCELEngine()
	if err != nil {
		return nil, err
	}
	return &Engines{CEL: c, Expr: NewExprEngine(), JQ: NewGoJQEngine()}, nil
}

// Get returns the engine registered under name ("cel", "expr" or "jq").
func (e *Engines) Get(name string) (Engine, error) {
	switch name {
	case "cel":
		return e.CEL, nil
	case "expr":
		return e.Expr, nil
	case "jq":
		return e.JQ, nil
	}
	return nil, schema.NewErrorf(schema.ErrCodeNotFound, "unknown expression engine %q", name)
}

// Bool evaluates a CEL condition and requires a boolean result.
func (e *Engines) Bool(ctx context.Context, expression string, env Env) (bool, error) {
	out, err := e.CEL.Evaluate(ctx, expression, env)
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeExpression,
			"condition %q returned %T, want bool", expression, out).
			WithDetails(map[string]any{"expression": expression})
	}
	return b, nil
}
