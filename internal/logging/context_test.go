package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextKeys(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, "", RunID(ctx))
	assert.Equal(t, "", Flow(ctx))
	assert.Equal(t, "", StepID(ctx))

	ctx = WithRunID(ctx, "run-1")
	ctx = WithFlow(ctx, "ingest")
	ctx = WithStepID(ctx, "load")

	assert.Equal(t, "run-1", RunID(ctx))
	assert.Equal(t, "ingest", Flow(ctx))
	assert.Equal(t, "load", StepID(ctx))
}

func TestWithStepID_Nests(t *testing.T) {
	ctx := WithStepID(context.Background(), "retry")
	ctx = WithStepID(ctx, "fetch")
	assert.Equal(t, "retry/fetch", StepID(ctx))
}

func TestLogWith(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx := WithStepID(WithRunID(context.Background(), "run-abc"), "step-x")
	LogWith(ctx, logger).Info("test message")

	output := buf.String()
	assert.Contains(t, output, "run_id=run-abc")
	assert.Contains(t, output, "step_id=step-x")
	assert.NotContains(t, output, "flow=")
	assert.Contains(t, output, "test message")
}

func TestCorrelationHandler(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(NewCorrelationHandler(inner))

	ctx := WithFlow(WithRunID(context.Background(), "run-auto"), "nightly")
	logger.InfoContext(ctx, "auto inject")

	output := buf.String()
	assert.Contains(t, output, `"run_id":"run-auto"`)
	assert.Contains(t, output, `"flow":"nightly"`)
	assert.NotContains(t, output, "step_id")
}

func TestCorrelationHandler_EmptyContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewJSONHandler(&buf, nil)))

	logger.InfoContext(context.Background(), "bare log")

	output := buf.String()
	assert.NotContains(t, output, "run_id")
	assert.Contains(t, output, "bare log")
}

func TestCorrelationHandler_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	handler := NewCorrelationHandler(slog.NewJSONHandler(&buf, nil))
	logger := slog.New(handler.WithAttrs([]slog.Attr{slog.String("component", "engine")}).WithGroup("g"))

	logger.InfoContext(WithRunID(context.Background(), "run-attr"), "with attrs", "k", "v")

	output := buf.String()
	assert.Contains(t, output, `"component":"engine"`)
	assert.Contains(t, output, "run-attr")
	assert.Contains(t, output, `"g":{`)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{" warn ", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, slog.LevelWarn, "json")
	require.NoError(t, err)

	logger.Info("dropped")
	logger.WarnContext(WithRunID(context.Background(), "r"), "kept")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), `"run_id":"r"`)

	_, err = New(&buf, slog.LevelInfo, "xml")
	assert.Error(t, err)
}
