package action

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rendis/opflow/internal/logging"
)

var suspendedAttr = attribute.Bool("opflow.suspended", true)

// Observed wraps an action with a trace span and a debug record per
// invocation. See Observe.
type Observed[P, R any] struct {
	name   string
	inner  Action[P, R]
	tracer trace.Tracer
	logger *slog.Logger
}

// Observe returns inner wrapped so that each invocation opens a span called
// name, tags the context handed to inner with name as the step id, and ends
// the span once the result settles. Failures are recorded on the span and
// returned unchanged.
func Observe[P, R any](name string, inner Action[P, R], opts ...Option) *Observed[P, R] {
	o := buildOptions(opts)
	return &Observed[P, R]{name: name, inner: inner, tracer: o.tracer(), logger: o.logger}
}

func (o *Observed[P, R]) Do(ctx context.Context, p P) Result[R] {
	ctx, span := o.tracer.Start(ctx, o.name)
	ctx = logging.WithStepID(ctx, o.name)
	start := time.Now()

	finish := func(v R, err error) (R, error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		o.logger.DebugContext(ctx, "action settled",
			slog.Duration("duration", time.Since(start)),
			slog.Bool("failed", err != nil))
		return v, err
	}

	r := o.inner.Do(ctx, p)
	if !r.Suspended() {
		return From(finish(Await(r)))
	}
	span.SetAttributes(suspendedAttr)
	return Suspend(func() (R, error) {
		return finish(Await(r))
	})
}
