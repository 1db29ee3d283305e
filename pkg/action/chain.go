package action

import (
	"context"
	"log/slog"
	"slices"

	"github.com/rendis/opflow/pkg/schema"
)

// Mode records how a pipeline step treats the running value and whether the
// step's own result is awaited.
type Mode int

const (
	// JoinSync replaces the running value with the step's result.
	JoinSync Mode = iota
	// JoinAsync is JoinSync for a step whose result must be awaited.
	JoinAsync
	// PassSync runs the step on the running value and keeps the running value.
	PassSync
	// PassAsync is PassSync for a step whose result must be awaited.
	PassAsync
)

func (m Mode) String() string {
	switch m {
	case JoinSync:
		return "join"
	case JoinAsync:
		return "join_wait"
	case PassSync:
		return "pass"
	case PassAsync:
		return "pass_wait"
	default:
		return "unknown"
	}
}

// IsAsync reports whether the mode requires awaiting the step.
func (m Mode) IsAsync() bool { return m == JoinAsync || m == PassAsync }

// IsPass reports whether the step leaves the running value unchanged.
func (m Mode) IsPass() bool { return m == PassSync || m == PassAsync }

// ChainedAction is one recorded pipeline step. The action is held with its
// types erased; the builder functions guarantee the running value has the
// type the step expects.
type ChainedAction struct {
	Mode Mode
	exec func(ctx context.Context, v any) (any, error) // nil unless built from a SyncAction
	do   func(ctx context.Context, v any) Result[any]
}

func syncStep[P, R any](mode Mode, a SyncAction[P, R]) ChainedAction {
	return ChainedAction{
		Mode: mode,
		exec: func(ctx context.Context, v any) (any, error) {
			return a.Exec(ctx, cast[P](v))
		},
		do: func(ctx context.Context, v any) Result[any] {
			return erase(a.Do(ctx, cast[P](v)))
		},
	}
}

func asyncStep[P, R any](mode Mode, a Action[P, R]) ChainedAction {
	return ChainedAction{
		Mode: mode,
		do: func(ctx context.Context, v any) Result[any] {
			return erase(a.Do(ctx, cast[P](v)))
		},
	}
}

// link is the state shared by both builder variants. Appending always copies
// so links derived from a common prefix never share later steps.
type link struct {
	steps []ChainedAction
	opts  options
}

func (l link) with(st ChainedAction) link {
	return link{steps: append(slices.Clip(l.steps), st), opts: l.opts}
}

func (l link) modes() []Mode {
	out := make([]Mode, len(l.steps))
	for i, st := range l.steps {
		out[i] = st.Mode
	}
	return out
}

// Chain is the synchronous pipeline builder: every step recorded so far can
// run without suspending. In is the pipeline's parameter type and Out the
// type of the current running value.
type Chain[In, Out any] struct {
	link
}

// NewChain starts an empty synchronous pipeline over In.
func NewChain[In any](opts ...Option) *Chain[In, In] {
	return &Chain[In, In]{link{opts: buildOptions(opts)}}
}

// Join appends a synchronous step whose result becomes the running value.
func Join[In, Cur, Next any](c *Chain[In, Cur], a SyncAction[Cur, Next]) *Chain[In, Next] {
	return &Chain[In, Next]{c.with(syncStep(JoinSync, a))}
}

// Pass appends a synchronous step run for its side effect; the running value
// is unchanged.
func Pass[In, Cur, X any](c *Chain[In, Cur], a SyncAction[Cur, X]) *Chain[In, Cur] {
	return &Chain[In, Cur]{c.with(syncStep(PassSync, a))}
}

// JoinWait appends an awaited step whose result becomes the running value.
// From here on the builder is asynchronous.
func JoinWait[In, Cur, Next any](c *Chain[In, Cur], a Action[Cur, Next]) *AsyncChain[In, Next] {
	return &AsyncChain[In, Next]{c.with(asyncStep(JoinAsync, a))}
}

// PassWait appends an awaited side-effect step. From here on the builder is
// asynchronous.
func PassWait[In, Cur, X any](c *Chain[In, Cur], a Action[Cur, X]) *AsyncChain[In, Cur] {
	return &AsyncChain[In, Cur]{c.with(asyncStep(PassAsync, a))}
}

// Modes returns the recorded mode of every step, in order.
func (c *Chain[In, Out]) Modes() []Mode { return c.modes() }

// Create freezes the steps into a synchronous pipeline.
func (c *Chain[In, Out]) Create() *Pipeline[In, Out] {
	return &Pipeline[In, Out]{steps: slices.Clone(c.steps), opts: c.opts}
}

// AsyncChain is the pipeline builder after the first awaited step. Any
// action may be appended; the pipeline it creates awaits every step.
type AsyncChain[In, Out any] struct {
	link
}

// AsyncJoin appends a step whose result becomes the running value. The step
// is recorded as synchronous but is still normalized.
func AsyncJoin[In, Cur, Next any](c *AsyncChain[In, Cur], a Action[Cur, Next]) *AsyncChain[In, Next] {
	return &AsyncChain[In, Next]{c.with(asyncStep(JoinSync, a))}
}

// AsyncPass appends a side-effect step recorded as synchronous.
func AsyncPass[In, Cur, X any](c *AsyncChain[In, Cur], a Action[Cur, X]) *AsyncChain[In, Cur] {
	return &AsyncChain[In, Cur]{c.with(asyncStep(PassSync, a))}
}

// AsyncJoinWait appends an awaited step whose result becomes the running
// value.
func AsyncJoinWait[In, Cur, Next any](c *AsyncChain[In, Cur], a Action[Cur, Next]) *AsyncChain[In, Next] {
	return &AsyncChain[In, Next]{c.with(asyncStep(JoinAsync, a))}
}

// AsyncPassWait appends an awaited side-effect step.
func AsyncPassWait[In, Cur, X any](c *AsyncChain[In, Cur], a Action[Cur, X]) *AsyncChain[In, Cur] {
	return &AsyncChain[In, Cur]{c.with(asyncStep(PassAsync, a))}
}

// Modes returns the recorded mode of every step, in order.
func (c *AsyncChain[In, Out]) Modes() []Mode { return c.modes() }

// Create freezes the steps into an asynchronous pipeline.
func (c *AsyncChain[In, Out]) Create() *AsyncPipeline[In, Out] {
	return &AsyncPipeline[In, Out]{steps: slices.Clone(c.steps), opts: c.opts}
}

// Pipeline is a frozen synchronous pipeline. It never suspends.
type Pipeline[In, Out any] struct {
	steps []ChainedAction
	opts  options
}

// Exec threads in through every step. It panics with a CONTRACT_VIOLATION
// FlowError if it meets a step that must be awaited; the builder's types
// keep that from happening.
func (p *Pipeline[In, Out]) Exec(ctx context.Context, in In) (Out, error) {
	var cur any = in
	for i, st := range p.steps {
		if st.Mode.IsAsync() || st.exec == nil {
			panic(schema.NewErrorf(schema.ErrCodeContractViolation,
				"pipeline step %d (%s) must be awaited and cannot run on a synchronous pipeline", i, st.Mode))
		}
		logPipelineStep(ctx, p.opts, i, st.Mode, false)
		out, err := st.exec(ctx, cur)
		if err != nil {
			var zero Out
			return zero, err
		}
		if !st.Mode.IsPass() {
			cur = out
		}
	}
	return cast[Out](cur), nil
}

// Do runs Exec and returns its outcome as an immediate result.
func (p *Pipeline[In, Out]) Do(ctx context.Context, in In) Result[Out] {
	return From(p.Exec(ctx, in))
}

// AsyncPipeline is a frozen pipeline containing at least one awaited step.
// Its results are always suspended.
type AsyncPipeline[In, Out any] struct {
	steps []ChainedAction
	opts  options
}

// Do starts the pipeline. Each step's result is awaited before the next step
// starts.
func (p *AsyncPipeline[In, Out]) Do(ctx context.Context, in In) Result[Out] {
	return Suspend(func() (Out, error) {
		var cur any = in
		for i, st := range p.steps {
			logPipelineStep(ctx, p.opts, i, st.Mode, true)
			out, err := Await(st.do(ctx, cur))
			if err != nil {
				var zero Out
				return zero, err
			}
			if !st.Mode.IsPass() {
				cur = out
			}
		}
		return cast[Out](cur), nil
	})
}

func logPipelineStep(ctx context.Context, o options, i int, m Mode, async bool) {
	o.logger.DebugContext(ctx, "pipeline step",
		slog.String("pipeline", o.name),
		slog.Int("index", i),
		slog.String("mode", m.String()),
		slog.Bool("async", async),
	)
}

var (
	_ SyncAction[int, int] = (*Pipeline[int, int])(nil)
	_ Action[int, int]     = (*AsyncPipeline[int, int])(nil)
)
