package action

import (
	"context"
	"log/slog"
)

// proceed discards a loop body's value and asks for another iteration.
func proceed[R any](R) Result[bool] { return Ready(false) }

// CountRepeat runs an action a given number of times. See CountRepetition.
type CountRepeat[R any] struct {
	inner Action[Void, R]
}

// CountRepetition returns an action whose parameter n is the number of times
// inner runs, one after another. n <= 0 runs it zero times.
func CountRepetition[R any](inner Action[Void, R]) *CountRepeat[R] {
	return &CountRepeat[R]{inner: inner}
}

func (c *CountRepeat[R]) Do(ctx context.Context, n int) Result[Void] {
	i := 0
	return drive(func() Result[bool] {
		if i >= n {
			return Ready(true)
		}
		i++
		return Then(c.inner.Do(ctx, Void{}), proceed[R])
	})
}

// ParamsRepeat runs an action once per parameter. See ParamsRepetition.
type ParamsRepeat[P, R any] struct {
	inner Action[P, R]
}

// ParamsRepetition returns an action that runs inner once for every item of
// its list parameter, in order.
func ParamsRepetition[P, R any](inner Action[P, R]) *ParamsRepeat[P, R] {
	return &ParamsRepeat[P, R]{inner: inner}
}

func (r *ParamsRepeat[P, R]) Do(ctx context.Context, params []P) Result[Void] {
	i := 0
	return drive(func() Result[bool] {
		if i >= len(params) {
			return Ready(true)
		}
		p := params[i]
		i++
		return Then(r.inner.Do(ctx, p), proceed[R])
	})
}

// ParamCount pairs a fixed parameter with a repeat count.
type ParamCount[P any] struct {
	Param P   `json:"param"`
	Count int `json:"count"`
}

// ParamRepeat runs an action with one parameter a number of times. See
// ParamRepetition.
type ParamRepeat[P, R any] struct {
	inner Action[P, R]
}

// ParamRepetition returns an action that runs inner Count times with Param.
func ParamRepetition[P, R any](inner Action[P, R]) *ParamRepeat[P, R] {
	return &ParamRepeat[P, R]{inner: inner}
}

func (r *ParamRepeat[P, R]) Do(ctx context.Context, pc ParamCount[P]) Result[Void] {
	i := 0
	return drive(func() Result[bool] {
		if i >= pc.Count {
			return Ready(true)
		}
		i++
		return Then(r.inner.Do(ctx, pc.Param), proceed[R])
	})
}

// Repeat runs a predicate action until it yields true. See Repetition.
type Repeat[P any] struct {
	inner Action[P, bool]
	opts  options
}

// Repetition returns an action that runs inner with its parameter again and
// again until inner yields true.
//
// There is no iteration cap: if inner never yields true the action never
// settles. Callers must supply a predicate that terminates, or use Retry.
func Repetition[P any](inner Action[P, bool], opts ...Option) *Repeat[P] {
	return &Repeat[P]{inner: inner, opts: buildOptions(opts)}
}

func (r *Repeat[P]) Do(ctx context.Context, p P) Result[Void] {
	iteration := 0
	return drive(func() Result[bool] {
		iteration++
		r.opts.logger.DebugContext(ctx, "repetition iteration",
			slog.String("name", r.opts.name), slog.Int("iteration", iteration))
		return r.inner.Do(ctx, p)
	})
}

// Retrier retries a predicate action a bounded number of times. See Retry.
type Retrier[P any] struct {
	retries int
	inner   Action[P, bool]
	opts    options
}

// Retry returns an action that runs inner and, while inner yields false,
// runs it again up to retryCount more times: at most retryCount+1 attempts,
// stopping at the first true. Negative counts behave as zero.
//
// Exhausting every attempt is not an error. The action settles normally and
// gives the caller no signal; callers needing one must observe inner's side
// effects. Exhaustion is logged at warn level.
func Retry[P any](retryCount int, inner Action[P, bool], opts ...Option) *Retrier[P] {
	return &Retrier[P]{retries: max(retryCount, 0), inner: inner, opts: buildOptions(opts)}
}

func (r *Retrier[P]) Do(ctx context.Context, p P) Result[Void] {
	attempt := 0
	return drive(func() Result[bool] {
		attempt++
		n := attempt
		return Then(r.inner.Do(ctx, p), func(ok bool) Result[bool] {
			if ok {
				return Ready(true)
			}
			if n > r.retries {
				r.opts.logger.WarnContext(ctx, "retry attempts exhausted",
					slog.String("name", r.opts.name), slog.Int("attempts", n))
				return Ready(true)
			}
			r.opts.logger.DebugContext(ctx, "retrying",
				slog.String("name", r.opts.name), slog.Int("attempt", n))
			return Ready(false)
		})
	})
}
