package action

import (
	"context"

	"github.com/rendis/opflow/pkg/ref"
)

// Run wraps a synchronous function.
func Run[P, R any](fn func(ctx context.Context, p P) (R, error)) Func[P, R] {
	return Func[P, R](fn)
}

// RunAsync wraps a function that runs as a suspended computation: every Do
// starts fn on its own goroutine.
func RunAsync[P, R any](fn func(ctx context.Context, p P) (R, error)) AsyncFunc[P, R] {
	return func(ctx context.Context, p P) Result[R] {
		return Suspend(func() (R, error) { return fn(ctx, p) })
	}
}

// Effect wraps a synchronous function run only for its side effect.
func Effect[P any](fn func(ctx context.Context, p P) error) Func[P, Void] {
	return func(ctx context.Context, p P) (Void, error) {
		return Void{}, fn(ctx, p)
	}
}

// EffectAsync is the suspended form of Effect.
func EffectAsync[P any](fn func(ctx context.Context, p P) error) AsyncFunc[P, Void] {
	return RunAsync(func(ctx context.Context, p P) (Void, error) {
		return Void{}, fn(ctx, p)
	})
}

// Get reads src on every invocation. It never mutates anything.
func Get[T any](src ref.Reader[T]) Func[Void, T] {
	return func(context.Context, Void) (T, error) {
		return src.Get()
	}
}

// GetFunc calls fn on every invocation.
func GetFunc[T any](fn func() T) Func[Void, T] {
	return func(context.Context, Void) (T, error) {
		return fn(), nil
	}
}

// Set writes its parameter into sink.
func Set[T any](sink ref.Writer[T]) Func[T, Void] {
	return func(_ context.Context, v T) (Void, error) {
		return Void{}, sink.Set(v)
	}
}

// SetFunc hands its parameter to fn.
func SetFunc[T any](fn func(T)) Func[T, Void] {
	return func(_ context.Context, v T) (Void, error) {
		fn(v)
		return Void{}, nil
	}
}

// Discard runs a and drops its value, so any action can join a list runner.
func Discard[P, R any](a Action[P, R]) AsyncFunc[P, Void] {
	return func(ctx context.Context, p P) Result[Void] {
		return Then(a.Do(ctx, p), func(R) Result[Void] { return Ready(Void{}) })
	}
}

// Guard runs inner only when its predicate holds. See IfValid.
type Guard[P, R any] struct {
	predicate SyncAction[P, bool]
	inner     Action[P, R]
}

// IfValid evaluates predicate synchronously on every invocation. When it
// holds, the invocation delegates to inner; otherwise nothing else runs and
// the result is the zero R. The predicate is a SyncAction so its evaluation
// can never be suspended. A predicate that ignores its parameter gives the
// parameterless form.
func IfValid[P, R any](predicate SyncAction[P, bool], inner Action[P, R]) *Guard[P, R] {
	return &Guard[P, R]{predicate: predicate, inner: inner}
}

func (g *Guard[P, R]) Do(ctx context.Context, p P) Result[R] {
	ok, err := g.predicate.Exec(ctx, p)
	if err != nil {
		return Fail[R](err)
	}
	if !ok {
		var zero R
		return Ready(zero)
	}
	return g.inner.Do(ctx, p)
}
