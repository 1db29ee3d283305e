package actions

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/opflow/pkg/schema"
)

func TestLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	reg := newBuiltins(t, BuiltinConfig{Logger: logger})
	a := mustGet(t, reg, "log")

	out, err := a.Execute(context.Background(), ActionInput{
		Value:  42,
		Params: map[string]any{"message": "checkpoint", "level": "warn", "include_value": true},
	})
	require.NoError(t, err)
	assert.Equal(t, 42, out.Value)
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "msg=checkpoint")
	assert.Contains(t, buf.String(), "value=42")
}

func TestLog_Validate(t *testing.T) {
	a := &logAction{logger: slog.New(slog.DiscardHandler)}

	assert.NoError(t, a.Validate(map[string]any{"message": "hi"}))
	assert.True(t, schema.HasCode(a.Validate(map[string]any{}), schema.ErrCodeValidation))
	assert.True(t, schema.HasCode(a.Validate(map[string]any{"message": "hi", "level": "loud"}), schema.ErrCodeValidation))
}

func TestSleep(t *testing.T) {
	a := &sleepAction{}
	assert.True(t, a.Schema().Async)

	start := time.Now()
	out, err := a.Execute(context.Background(), ActionInput{Value: "v", Params: map[string]any{"duration": "20ms"}})
	require.NoError(t, err)
	assert.Equal(t, "v", out.Value)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestSleep_HonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := (&sleepAction{}).Execute(ctx, ActionInput{Params: map[string]any{"duration": "1h"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSleep_Validate(t *testing.T) {
	a := &sleepAction{}
	assert.NoError(t, a.Validate(map[string]any{"duration": "1s"}))
	assert.Error(t, a.Validate(map[string]any{}))
	assert.Error(t, a.Validate(map[string]any{"duration": "soon"}))
	assert.Error(t, a.Validate(map[string]any{"duration": "-1s"}))
}

func TestValidateAction(t *testing.T) {
	reg := newBuiltins(t, BuiltinConfig{})
	a := mustGet(t, reg, "validate")
	params := map[string]any{"schema": map[string]any{"type": "object", "required": []any{"id"}}}

	require.NoError(t, a.Validate(params))

	out, err := a.Execute(context.Background(), ActionInput{Value: map[string]any{"id": 1}, Params: params})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": 1}, out.Value)

	_, err = a.Execute(context.Background(), ActionInput{Value: map[string]any{}, Params: params})
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))

	assert.Error(t, a.Validate(map[string]any{}))
	assert.Error(t, a.Validate(map[string]any{"schema": map[string]any{"type": 1}}))
}
