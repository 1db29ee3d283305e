package action

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/rendis/opflow/internal/logging"
)

func newRecorderProvider() (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	sr := tracetest.NewSpanRecorder()
	return sr, sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
}

func TestObserve_SyncSpan(t *testing.T) {
	sr, tp := newRecorderProvider()
	a := Observe("double", Run(func(_ context.Context, p int) (int, error) { return p * 2, nil }),
		WithTracerProvider(tp))

	r := a.Do(ctx, 4)
	assert.False(t, r.Suspended(), "observing keeps immediate results immediate")
	v, err := Await(r)
	require.NoError(t, err)
	assert.Equal(t, 8, v)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "double", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
}

func TestObserve_AsyncFailure(t *testing.T) {
	sr, tp := newRecorderProvider()
	boom := errors.New("remote down")
	a := Observe("fetch", RunAsync(func(context.Context, int) (int, error) { return 0, boom }),
		WithTracerProvider(tp))

	r := a.Do(ctx, 1)
	assert.True(t, r.Suspended())
	_, err := Await(r)
	assert.Same(t, boom, err, "failure passes through unchanged")

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "remote down", spans[0].Status().Description)
	require.NotEmpty(t, spans[0].Events(), "error recorded as span event")
}

func TestObserve_TagsStepID(t *testing.T) {
	_, tp := newRecorderProvider()
	a := Observe("outer", Run(func(ctx context.Context, _ int) (string, error) {
		return logging.StepID(ctx), nil
	}), WithTracerProvider(tp))

	v, err := Await(a.Do(logging.WithStepID(ctx, "flow"), 0))
	require.NoError(t, err)
	assert.Equal(t, "flow/outer", v)
}

func TestObserve_NestedSpans(t *testing.T) {
	sr, tp := newRecorderProvider()
	inner := Observe("inner", add(1), WithTracerProvider(tp))
	outer := Observe[int, int]("outer", JoinWait(NewChain[int](), inner).Create(), WithTracerProvider(tp))

	_, err := Await(outer.Do(ctx, 1))
	require.NoError(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "inner", spans[0].Name())
	assert.Equal(t, spans[1].SpanContext().SpanID(), spans[0].Parent().SpanID())
}
