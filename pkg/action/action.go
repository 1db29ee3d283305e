package action

import "context"

// Action is a unit of work that turns a parameter into a result, either
// immediately or by way of a suspended computation.
type Action[P, R any] interface {
	Do(ctx context.Context, p P) Result[R]
}

// SyncAction is an Action that never suspends. Do must return the same
// outcome as Exec, as an immediate result.
type SyncAction[P, R any] interface {
	Action[P, R]
	Exec(ctx context.Context, p P) (R, error)
}

// Func adapts a plain synchronous function to SyncAction.
type Func[P, R any] func(ctx context.Context, p P) (R, error)

// Exec calls f.
func (f Func[P, R]) Exec(ctx context.Context, p P) (R, error) {
	return f(ctx, p)
}

// Do calls f and wraps its outcome in an immediate result.
func (f Func[P, R]) Do(ctx context.Context, p P) Result[R] {
	return From(f(ctx, p))
}

// AsyncFunc adapts a function that already returns a Result to Action.
type AsyncFunc[P, R any] func(ctx context.Context, p P) Result[R]

// Do calls f.
func (f AsyncFunc[P, R]) Do(ctx context.Context, p P) Result[R] {
	return f(ctx, p)
}

var (
	_ SyncAction[int, int] = Func[int, int](nil)
	_ Action[int, int]     = AsyncFunc[int, int](nil)
)
