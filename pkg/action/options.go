package action

import (
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/rendis/opflow/pkg/action"

// Option configures a composite action at construction time.
type Option func(*options)

type options struct {
	name     string
	logger   *slog.Logger
	provider trace.TracerProvider
	limit    int
}

// WithName labels the composite in log records.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithLogger sets the logger used for step and attempt records. The default
// discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTracerProvider sets the provider Observe takes its tracer from. The
// default is the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.provider = tp }
}

// WithLimit caps how many items RunActionsParallel runs at once. Zero or
// less means no cap.
func WithLimit(n int) Option {
	return func(o *options) { o.limit = n }
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) tracer() trace.Tracer {
	tp := o.provider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(instrumentationName)
}
