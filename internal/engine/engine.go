package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rendis/opflow/internal/actions"
	"github.com/rendis/opflow/internal/expressions"
	"github.com/rendis/opflow/internal/logging"
	"github.com/rendis/opflow/internal/store"
	"github.com/rendis/opflow/internal/validation"
	"github.com/rendis/opflow/pkg/action"
	"github.com/rendis/opflow/pkg/schema"
)

const instrumentationName = "github.com/rendis/opflow/internal/engine"

// Config holds the engine's collaborators. Zero fields get defaults: a
// registry with the built-in actions, fresh expression engines, a discard
// logger and the global tracer provider.
type Config struct {
	Registry       *actions.Registry
	Engines        *expressions.Engines
	Logger         *slog.Logger
	TracerProvider trace.TracerProvider
	HTTP           actions.HTTPConfig

	// History, when set, receives a record of every run.
	History RunRecorder

	// ParallelLimit caps parallel steps that set no limit of their own.
	// Zero means no cap.
	ParallelLimit int
}

// RunRecorder persists finished runs. store.LibSQLStore implements it.
type RunRecorder interface {
	RecordRun(ctx context.Context, run *store.Run) error
}

// Engine validates, compiles and runs flow definitions.
type Engine struct {
	registry      *actions.Registry
	engines       *expressions.Engines
	validator     *validation.FlowValidator
	logger        *slog.Logger
	provider      trace.TracerProvider
	tracer        trace.Tracer
	history       RunRecorder
	parallelLimit int
}

// Flow is a compiled definition, ready to run any number of times.
type Flow struct {
	def  *schema.FlowDefinition
	root node
}

// Name returns the definition's name.
func (f *Flow) Name() string { return f.def.Name }

// Definition returns the definition the flow was compiled from.
func (f *Flow) Definition() *schema.FlowDefinition { return f.def }

// Sync reports whether the flow never suspends.
func (f *Flow) Sync() bool { return f.root.sync() }

// RunResult is the outcome of a successful run.
type RunResult struct {
	RunID    string         `json:"run_id"`
	Flow     string         `json:"flow,omitempty"`
	Output   any            `json:"output"`
	Vars     map[string]any `json:"vars,omitempty"`
	Duration time.Duration  `json:"duration_ns"`
}

// New creates an Engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	if cfg.Engines == nil {
		engines, err := expressions.NewEngines()
		if err != nil {
			return nil, err
		}
		cfg.Engines = engines
	}

	if cfg.Registry == nil {
		jsv, err := validation.NewJSONSchemaValidator()
		if err != nil {
			return nil, err
		}
		cfg.Registry = actions.NewRegistry()
		err = actions.RegisterBuiltins(cfg.Registry, actions.BuiltinConfig{
			Engines:   cfg.Engines,
			Validator: jsv,
			Logger:    cfg.Logger,
			HTTP:      cfg.HTTP,
		})
		if err != nil {
			return nil, err
		}
	}

	fv, err := validation.NewFlowValidator(cfg.Registry, cfg.Engines)
	if err != nil {
		return nil, err
	}

	return &Engine{
		registry:      cfg.Registry,
		engines:       cfg.Engines,
		validator:     fv,
		logger:        cfg.Logger,
		provider:      cfg.TracerProvider,
		tracer:        cfg.TracerProvider.Tracer(instrumentationName),
		history:       cfg.History,
		parallelLimit: cfg.ParallelLimit,
	}, nil
}

// Registry returns the action registry flows resolve against.
func (e *Engine) Registry() *actions.Registry { return e.registry }

// Validate checks a definition without compiling it.
func (e *Engine) Validate(def *schema.FlowDefinition) *schema.ValidationResult {
	return e.validator.Validate(def)
}

// Compile validates def and builds its action graph. Static action params
// are checked here; interpolated ones on every invocation.
func (e *Engine) Compile(def *schema.FlowDefinition) (*Flow, error) {
	if err := e.validator.ValidateDefinition(def); err != nil {
		return nil, err
	}
	c := &compiler{
		e:    e,
		opts: []action.Option{action.WithLogger(e.logger), action.WithTracerProvider(e.provider)},
	}
	root, err := c.compile(def)
	if err != nil {
		return nil, err
	}
	return &Flow{def: def, root: root}, nil
}

// Run executes flow once with input as the initial running value. Each run
// gets its own id and its own copy of the definition's vars.
func (e *Engine) Run(ctx context.Context, flow *Flow, input any) (*RunResult, error) {
	if flow == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "flow is nil")
	}
	def := flow.def

	if len(def.InputSchema) > 0 {
		if err := e.validator.ValidateValue(input, def.InputSchema); err != nil {
			return nil, err
		}
	}

	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	if def.Name != "" {
		ctx = logging.WithFlow(ctx, def.Name)
	}
	vars := actions.NewVars(def.Vars)
	ctx = withVars(ctx, vars)

	ctx, span := e.tracer.Start(ctx, "flow.run", trace.WithAttributes(
		attribute.String("opflow.run_id", runID),
		attribute.String("opflow.flow", def.Name),
		attribute.Bool("opflow.sync", flow.Sync()),
	))
	defer span.End()

	e.logger.InfoContext(ctx, "flow started", slog.Bool("sync", flow.Sync()))
	start := time.Now()

	out, err := e.execute(ctx, flow, input)
	elapsed := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.ErrorContext(ctx, "flow failed", slog.Duration("duration", elapsed), slog.String("error", err.Error()))
		e.record(ctx, runRecord{id: runID, flow: def.Name, start: start, elapsed: elapsed, input: input, vars: vars.Snapshot(), err: err})
		return nil, err
	}
	e.logger.InfoContext(ctx, "flow finished", slog.Duration("duration", elapsed))

	res := &RunResult{
		RunID:    runID,
		Flow:     def.Name,
		Output:   out,
		Vars:     vars.Snapshot(),
		Duration: elapsed,
	}
	e.record(ctx, runRecord{id: runID, flow: def.Name, start: start, elapsed: elapsed, input: input, output: out, vars: res.Vars})
	return res, nil
}

type runRecord struct {
	id, flow      string
	start         time.Time
	elapsed       time.Duration
	input, output any
	vars          map[string]any
	err           error
}

// record hands a finished run to the history. Failing to record never fails
// the run.
func (e *Engine) record(ctx context.Context, r runRecord) {
	if e.history == nil {
		return
	}
	run := &store.Run{
		ID:          r.id,
		Flow:        r.flow,
		Status:      store.RunSucceeded,
		Input:       e.encode(ctx, "input", r.input),
		Output:      e.encode(ctx, "output", r.output),
		StartedAt:   r.start.UTC(),
		CompletedAt: r.start.Add(r.elapsed).UTC(),
	}
	if len(r.vars) > 0 {
		run.Vars = e.encode(ctx, "vars", r.vars)
	}
	if r.err != nil {
		run.Status = store.RunFailed
		var fe *schema.FlowError
		if errors.As(r.err, &fe) {
			run.Error = e.encode(ctx, "error", fe)
		} else {
			run.Error = e.encode(ctx, "error", map[string]string{"message": r.err.Error()})
		}
	}
	if err := e.history.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		e.logger.WarnContext(ctx, "record run failed", slog.String("error", err.Error()))
	}
}

func (e *Engine) encode(ctx context.Context, field string, v any) json.RawMessage {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		e.logger.WarnContext(ctx, "run field not recordable",
			slog.String("field", field), slog.String("error", err.Error()))
		return nil
	}
	return data
}

// execute drives a sync flow through Exec and an async one through Await.
func (e *Engine) execute(ctx context.Context, flow *Flow, input any) (any, error) {
	if flow.root.sync() {
		return flow.root.exec.Exec(ctx, input)
	}
	return action.Await(flow.root.do.Do(ctx, input))
}

// checkParams validates params against the action's input schema and then
// its own Validate.
func (e *Engine) checkParams(a actions.Action, params map[string]any) error {
	if s := a.Schema().InputSchema; len(s) > 0 {
		value := params
		if value == nil {
			value = map[string]any{}
		}
		if err := e.validator.ValidateValue(value, s); err != nil {
			return err
		}
	}
	return a.Validate(params)
}
