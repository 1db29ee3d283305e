package engine

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/rendis/opflow/internal/actions"
	"github.com/rendis/opflow/internal/logging"
	"github.com/rendis/opflow/internal/store"
	"github.com/rendis/opflow/pkg/schema"
)

func TestEngine_SyncPipeline(t *testing.T) {
	e := newTestEngine(t, Config{}, incr("incr", false))
	flow := compileFlow(t, e, &schema.FlowDefinition{
		Name: "plus-two",
		Steps: []schema.StepDefinition{
			act("a", "incr", nil),
			act("b", "incr", nil),
		},
	})
	assert.True(t, flow.Sync())

	res, err := e.Run(context.Background(), flow, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Output)
	assert.Equal(t, "plus-two", res.Flow)
	_, err = uuid.Parse(res.RunID)
	assert.NoError(t, err)
}

func TestEngine_AsyncActionMakesFlowAsync(t *testing.T) {
	e := newTestEngine(t, Config{}, incr("incr", false))
	flow := compileFlow(t, e, &schema.FlowDefinition{
		Steps: []schema.StepDefinition{
			act("a", "incr", nil),
			act("nap", "sleep", map[string]any{"duration": "1ms"}),
			act("b", "incr", nil),
		},
	})
	assert.False(t, flow.Sync())

	res, err := e.Run(context.Background(), flow, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Output)
}

func TestEngine_WaitMakesFlowAsync(t *testing.T) {
	e := newTestEngine(t, Config{}, incr("incr", false))
	waited := act("a", "incr", nil)
	waited.Wait = true
	flow := compileFlow(t, e, &schema.FlowDefinition{Steps: []schema.StepDefinition{waited, act("b", "incr", nil)}})
	assert.False(t, flow.Sync())

	res, err := e.Run(context.Background(), flow, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Output)
}

func TestEngine_AsyncRegistryAction(t *testing.T) {
	e := newTestEngine(t, Config{}, incr("incr_async", true), incr("incr", false))
	flow := compileFlow(t, e, &schema.FlowDefinition{Steps: []schema.StepDefinition{
		act("a", "incr", nil),
		act("b", "incr_async", nil),
		act("c", "incr", nil),
	}})
	assert.False(t, flow.Sync())

	res, err := e.Run(context.Background(), flow, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Output)
}

func TestEngine_PassKeepsRunningValue(t *testing.T) {
	e := newTestEngine(t, Config{}, incr("incr", false))
	side := act("side", "incr", nil)
	side.Mode = schema.StepModePass
	flow := compileFlow(t, e, &schema.FlowDefinition{Steps: []schema.StepDefinition{side, act("a", "incr", nil)}})

	res, err := e.Run(context.Background(), flow, 10)
	require.NoError(t, err)
	assert.Equal(t, 11, res.Output)
}

func TestEngine_NestedChain(t *testing.T) {
	e := newTestEngine(t, Config{}, incr("incr", false))
	flow := compileFlow(t, e, &schema.FlowDefinition{Steps: []schema.StepDefinition{
		{ID: "inner", Type: schema.StepTypeChain, Steps: []schema.StepDefinition{
			act("a", "incr", nil),
			act("b", "incr", nil),
		}},
		act("c", "incr", nil),
	}})
	assert.True(t, flow.Sync())

	res, err := e.Run(context.Background(), flow, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Output)
}

func TestEngine_SequenceIsEffectOnly(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(t, Config{}, rec.action())
	flow := compileFlow(t, e, &schema.FlowDefinition{Steps: []schema.StepDefinition{
		{ID: "seq", Type: schema.StepTypeSequence, Steps: []schema.StepDefinition{
			act("one", "record", map[string]any{"tag": "one"}),
			act("two", "record", nil),
		}},
	}})
	assert.True(t, flow.Sync())

	res, err := e.Run(context.Background(), flow, "value")
	require.NoError(t, err)
	assert.Equal(t, "value", res.Output)
	assert.Equal(t, []any{"one", "value"}, rec.values())
}

func TestEngine_Parallel(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(t, Config{ParallelLimit: 2}, rec.action())
	flow := compileFlow(t, e, &schema.FlowDefinition{Steps: []schema.StepDefinition{
		{ID: "fan", Type: schema.StepTypeParallel, Limit: 1, Steps: []schema.StepDefinition{
			act("a", "record", map[string]any{"tag": "a"}),
			act("b", "record", map[string]any{"tag": "b"}),
			act("c", "record", map[string]any{"tag": "c"}),
		}},
	}})
	assert.False(t, flow.Sync(), "parallel steps always suspend")

	res, err := e.Run(context.Background(), flow, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, res.Output)
	assert.ElementsMatch(t, []any{"a", "b", "c"}, rec.values())
}

func TestEngine_Order(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(t, Config{}, rec.action(), incr("incr", false))
	flow := compileFlow(t, e, &schema.FlowDefinition{Steps: []schema.StepDefinition{
		{
			ID:     "sandwich",
			Type:   schema.StepTypeOrder,
			Before: []schema.StepDefinition{act("pre", "record", map[string]any{"tag": "before"})},
			Steps:  []schema.StepDefinition{act("main", "incr", nil), act("seen", "record", nil)},
			After:  []schema.StepDefinition{act("post", "record", map[string]any{"tag": "after"})},
		},
	}})
	assert.True(t, flow.Sync())

	res, err := e.Run(context.Background(), flow, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Output)
	assert.Equal(t, []any{"before", 2, "after"}, rec.values())
}

func TestEngine_IfStep(t *testing.T) {
	e := newTestEngine(t, Config{}, incr("incr", false))
	flow := compileFlow(t, e, &schema.FlowDefinition{Steps: []schema.StepDefinition{
		{ID: "big", Type: schema.StepTypeIf, Condition: "input > 10", Steps: []schema.StepDefinition{
			act("a", "incr", nil),
		}},
	}})

	res, err := e.Run(context.Background(), flow, 20)
	require.NoError(t, err)
	assert.Equal(t, 21, res.Output)

	res, err = e.Run(context.Background(), flow, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Output, "a skipped if yields its input")
}

func TestEngine_RepeatCountAndVars(t *testing.T) {
	e := newTestEngine(t, Config{})
	flow := compileFlow(t, e, &schema.FlowDefinition{
		Vars: map[string]any{"total": 0},
		Steps: []schema.StepDefinition{
			{ID: "loop", Type: schema.StepTypeRepeat, Count: 3, Steps: []schema.StepDefinition{
				act("bump", "count", map[string]any{"var": "total"}),
			}},
			act("read", "get", map[string]any{"var": "total"}),
		},
	})

	for range 2 {
		res, err := e.Run(context.Background(), flow, nil)
		require.NoError(t, err)
		assert.Equal(t, 3, res.Output, "vars start fresh on every run")
		assert.Equal(t, 3, res.Vars["total"])
	}
}

func TestEngine_RepeatOver(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(t, Config{}, rec.action())
	flow := compileFlow(t, e, &schema.FlowDefinition{Steps: []schema.StepDefinition{
		{ID: "each", Type: schema.StepTypeRepeat, Over: ".items[]", Steps: []schema.StepDefinition{
			act("seen", "record", nil),
		}},
	}})

	input := map[string]any{"items": []any{"x", "y", "z"}}
	res, err := e.Run(context.Background(), flow, input)
	require.NoError(t, err)
	assert.Equal(t, input, res.Output)
	assert.Equal(t, []any{"x", "y", "z"}, rec.values())
}

func TestEngine_Until(t *testing.T) {
	e := newTestEngine(t, Config{})
	flow := compileFlow(t, e, &schema.FlowDefinition{Steps: []schema.StepDefinition{
		{ID: "loop", Type: schema.StepTypeUntil, Condition: "output >= 3", Steps: []schema.StepDefinition{
			act("bump", "count", map[string]any{"var": "n"}),
		}},
	}})

	res, err := e.Run(context.Background(), flow, "keep")
	require.NoError(t, err)
	assert.Equal(t, "keep", res.Output)
	assert.Equal(t, 3, res.Vars["n"])
}

func TestEngine_RetryExhaustionIsSilent(t *testing.T) {
	e := newTestEngine(t, Config{})
	flow := compileFlow(t, e, &schema.FlowDefinition{Steps: []schema.StepDefinition{
		{ID: "again", Type: schema.StepTypeRetry, Max: 2, Condition: "output > 100", Steps: []schema.StepDefinition{
			act("bump", "count", map[string]any{"var": "attempts"}),
		}},
	}})

	res, err := e.Run(context.Background(), flow, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Vars["attempts"])
}

func TestEngine_InterpolatedParams(t *testing.T) {
	e := newTestEngine(t, Config{})
	flow := compileFlow(t, e, &schema.FlowDefinition{Steps: []schema.StepDefinition{
		act("store", "set", map[string]any{"var": "greeting", "value": "hello ${{ input.name }}"}),
		act("read", "get", map[string]any{"var": "greeting"}),
	}})

	res, err := e.Run(context.Background(), flow, map[string]any{"name": "ada"})
	require.NoError(t, err)
	assert.Equal(t, "hello ada", res.Output)
}

func TestEngine_ExpressionActions(t *testing.T) {
	e := newTestEngine(t, Config{})
	flow := compileFlow(t, e, &schema.FlowDefinition{
		Vars: map[string]any{"factor": 10},
		Steps: []schema.StepDefinition{
			act("pick", "jq", map[string]any{"expression": ".n"}),
			act("scale", "cel", map[string]any{"expression": "input * vars.factor"}),
		},
	})

	res, err := e.Run(context.Background(), flow, map[string]any{"n": 4})
	require.NoError(t, err)
	assert.EqualValues(t, 40, res.Output)
}

func TestEngine_FlowErrorGetsStepID(t *testing.T) {
	boom := &funcAction{name: "boom", fn: func(context.Context, actions.ActionInput) (any, error) {
		return nil, schema.NewError(schema.ErrCodeExecution, "exploded")
	}}
	e := newTestEngine(t, Config{}, boom)
	flow := compileFlow(t, e, &schema.FlowDefinition{Steps: []schema.StepDefinition{
		{ID: "wrap", Type: schema.StepTypeChain, Steps: []schema.StepDefinition{act("blast", "boom", nil)}},
	}})

	_, err := e.Run(context.Background(), flow, nil)
	require.Error(t, err)
	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodeExecution, fe.Code)
	assert.Equal(t, "blast", fe.StepID)
}

func TestEngine_PlainErrorPassesThrough(t *testing.T) {
	sentinel := errors.New("plain")
	fail := &funcAction{name: "fail", fn: func(context.Context, actions.ActionInput) (any, error) {
		return nil, sentinel
	}}
	e := newTestEngine(t, Config{}, fail, incr("incr", false))
	flow := compileFlow(t, e, &schema.FlowDefinition{Steps: []schema.StepDefinition{
		act("nap", "sleep", map[string]any{"duration": "1ms"}),
		act("f", "fail", nil),
		act("never", "incr", nil),
	}})

	_, err := e.Run(context.Background(), flow, 0)
	assert.Same(t, sentinel, err)
}

func TestEngine_InputSchema(t *testing.T) {
	e := newTestEngine(t, Config{})
	flow := compileFlow(t, e, &schema.FlowDefinition{
		InputSchema: map[string]any{
			"type":     "object",
			"required": []any{"name"},
		},
		Steps: []schema.StepDefinition{act("pick", "jq", map[string]any{"expression": ".name"})},
	})

	_, err := e.Run(context.Background(), flow, map[string]any{})
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))

	res, err := e.Run(context.Background(), flow, map[string]any{"name": "ok"})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Output)
}

func TestEngine_CompileRejects(t *testing.T) {
	e := newTestEngine(t, Config{})

	tests := []struct {
		name string
		def  *schema.FlowDefinition
	}{
		{"nil", nil},
		{"no steps", &schema.FlowDefinition{}},
		{"unknown action", &schema.FlowDefinition{Steps: []schema.StepDefinition{act("a", "nope", nil)}}},
		{"bad condition", &schema.FlowDefinition{Steps: []schema.StepDefinition{
			{ID: "a", Type: schema.StepTypeIf, Condition: "input >", Steps: []schema.StepDefinition{act("b", "get", map[string]any{"var": "x"})}},
		}}},
		{"static params", &schema.FlowDefinition{Steps: []schema.StepDefinition{
			act("nap", "sleep", map[string]any{"duration": "soon"}),
		}}},
		{"missing required param", &schema.FlowDefinition{Steps: []schema.StepDefinition{act("nap", "sleep", nil)}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Compile(tt.def)
			assert.Error(t, err)
		})
	}
}

func TestEngine_InterpolatedParamsCheckedPerRun(t *testing.T) {
	e := newTestEngine(t, Config{})
	flow := compileFlow(t, e, &schema.FlowDefinition{Steps: []schema.StepDefinition{
		act("nap", "sleep", map[string]any{"duration": "${{ input.wait }}"}),
	}})

	_, err := e.Run(context.Background(), flow, map[string]any{"wait": "soon"})
	require.Error(t, err)
	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "nap", fe.StepID)

	res, err := e.Run(context.Background(), flow, map[string]any{"wait": "1ms"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"wait": "1ms"}, res.Output)
}

func TestEngine_NilFlow(t *testing.T) {
	e := newTestEngine(t, Config{})
	_, err := e.Run(context.Background(), nil, nil)
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))
}

func TestEngine_Spans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	e := newTestEngine(t, Config{TracerProvider: tp}, incr("incr", false))
	flow := compileFlow(t, e, &schema.FlowDefinition{Name: "traced", Steps: []schema.StepDefinition{
		act("first", "incr", nil),
	}})

	res, err := e.Run(context.Background(), flow, 0)
	require.NoError(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "first", spans[0].Name())
	assert.Equal(t, "flow.run", spans[1].Name())
	assert.Equal(t, spans[1].SpanContext().SpanID(), spans[0].Parent().SpanID())

	var runID string
	for _, kv := range spans[1].Attributes() {
		if kv.Key == "opflow.run_id" {
			runID = kv.Value.AsString()
		}
	}
	assert.Equal(t, res.RunID, runID)
}

func TestEngine_LogsCarryRunID(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(&buf, slog.LevelInfo, "json")
	require.NoError(t, err)
	e := newTestEngine(t, Config{Logger: logger}, incr("incr", false))
	flow := compileFlow(t, e, &schema.FlowDefinition{Name: "logged", Steps: []schema.StepDefinition{act("a", "incr", nil)}})

	res, err := e.Run(context.Background(), flow, 0)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"msg":"flow started"`)
	assert.Contains(t, buf.String(), `"run_id":"`+res.RunID+`"`)
	assert.Contains(t, buf.String(), `"flow":"logged"`)
}

func TestEngine_RecordsHistory(t *testing.T) {
	history := &memHistory{}
	boom := &funcAction{name: "boom", fn: func(context.Context, actions.ActionInput) (any, error) {
		return nil, schema.NewError(schema.ErrCodeExecution, "exploded")
	}}
	e := newTestEngine(t, Config{History: history}, incr("incr", false), boom)

	ok := compileFlow(t, e, &schema.FlowDefinition{
		Name:  "ok",
		Vars:  map[string]any{"seen": true},
		Steps: []schema.StepDefinition{act("a", "incr", nil)},
	})
	res, err := e.Run(context.Background(), ok, 1)
	require.NoError(t, err)

	bad := compileFlow(t, e, &schema.FlowDefinition{Name: "bad", Steps: []schema.StepDefinition{act("b", "boom", nil)}})
	_, err = e.Run(context.Background(), bad, map[string]any{"n": 1})
	require.Error(t, err)

	runs := history.recorded()
	require.Len(t, runs, 2)

	assert.Equal(t, res.RunID, runs[0].ID)
	assert.Equal(t, store.RunSucceeded, runs[0].Status)
	assert.JSONEq(t, `1`, string(runs[0].Input))
	assert.JSONEq(t, `2`, string(runs[0].Output))
	assert.JSONEq(t, `{"seen":true}`, string(runs[0].Vars))
	assert.False(t, runs[0].CompletedAt.Before(runs[0].StartedAt))

	assert.Equal(t, "bad", runs[1].Flow)
	assert.Equal(t, store.RunFailed, runs[1].Status)
	assert.Nil(t, runs[1].Output)
	assert.JSONEq(t, `{"code":"EXECUTION_ERROR","message":"exploded","step_id":"b"}`, string(runs[1].Error))
}

func TestEngine_HistoryFailureDoesNotFailRun(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(&buf, slog.LevelInfo, "text")
	require.NoError(t, err)
	history := &memHistory{err: errors.New("disk full")}
	e := newTestEngine(t, Config{History: history, Logger: logger}, incr("incr", false))
	flow := compileFlow(t, e, &schema.FlowDefinition{Steps: []schema.StepDefinition{act("a", "incr", nil)}})

	res, err := e.Run(context.Background(), flow, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Output)
	assert.Contains(t, buf.String(), "record run failed")
	assert.Contains(t, buf.String(), "disk full")
}
