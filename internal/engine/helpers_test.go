package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rendis/opflow/internal/actions"
	"github.com/rendis/opflow/internal/expressions"
	"github.com/rendis/opflow/internal/store"
	"github.com/rendis/opflow/internal/validation"
	"github.com/rendis/opflow/pkg/schema"
)

// funcAction is a registry action backed by a function.
type funcAction struct {
	name  string
	async bool
	fn    func(ctx context.Context, in actions.ActionInput) (any, error)
}

func (a *funcAction) Name() string { return a.name }

func (a *funcAction) Schema() actions.ActionSchema {
	return actions.ActionSchema{Description: "test action " + a.name, Async: a.async}
}

func (a *funcAction) Validate(map[string]any) error { return nil }

func (a *funcAction) Execute(ctx context.Context, in actions.ActionInput) (*actions.ActionOutput, error) {
	v, err := a.fn(ctx, in)
	if err != nil {
		return nil, err
	}
	return &actions.ActionOutput{Value: v}, nil
}

func incr(name string, async bool) *funcAction {
	return &funcAction{name: name, async: async, fn: func(_ context.Context, in actions.ActionInput) (any, error) {
		return in.Value.(int) + 1, nil
	}}
}

// recorder collects the "tag" param (or the running value) of every call.
type recorder struct {
	mu   sync.Mutex
	seen []any
}

func (r *recorder) action() *funcAction {
	return &funcAction{name: "record", fn: func(_ context.Context, in actions.ActionInput) (any, error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if tag, ok := in.Params["tag"]; ok {
			r.seen = append(r.seen, tag)
		} else {
			r.seen = append(r.seen, in.Value)
		}
		return in.Value, nil
	}}
}

func (r *recorder) values() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.seen...)
}

func newTestEngine(t *testing.T, cfg Config, extra ...actions.Action) *Engine {
	t.Helper()
	engines, err := expressions.NewEngines()
	require.NoError(t, err)
	jsv, err := validation.NewJSONSchemaValidator()
	require.NoError(t, err)

	reg := actions.NewRegistry()
	require.NoError(t, actions.RegisterBuiltins(reg, actions.BuiltinConfig{
		Engines:   engines,
		Validator: jsv,
		Logger:    cfg.Logger,
	}))
	for _, a := range extra {
		require.NoError(t, reg.Register(a))
	}

	cfg.Registry = reg
	cfg.Engines = engines
	e, err := New(cfg)
	require.NoError(t, err)
	return e
}

func compileFlow(t *testing.T, e *Engine, def *schema.FlowDefinition) *Flow {
	t.Helper()
	flow, err := e.Compile(def)
	require.NoError(t, err)
	return flow
}

func act(id, name string, params map[string]any) schema.StepDefinition {
	return schema.StepDefinition{ID: id, Action: name, Params: params}
}

// memHistory is a RunRecorder that keeps runs in memory.
type memHistory struct {
	mu   sync.Mutex
	runs []*store.Run
	err  error
}

func (h *memHistory) RecordRun(_ context.Context, run *store.Run) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs = append(h.runs, run)
	return h.err
}

func (h *memHistory) recorded() []*store.Run {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*store.Run(nil), h.runs...)
}
