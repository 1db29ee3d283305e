package action

// Void is the result type of actions that only run for their side effects.
type Void = struct{}

var settled = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

// future is the shared state of a suspended computation. Fields are written
// once by the computing goroutine before done is closed.
type future[T any] struct {
	done     chan struct{}
	val      T
	err      error
	panicked bool
	panicVal any
}

// Result is the outcome of Do: either an immediate value or error, or a
// suspended computation that settles later. The zero Result is an immediate
// zero value.
type Result[T any] struct {
	val T
	err error
	fut *future[T]
}

// Ready returns an immediate successful result.
func Ready[T any](v T) Result[T] {
	return Result[T]{val: v}
}

// Fail returns an immediate failed result.
func Fail[T any](err error) Result[T] {
	return Result[T]{err: err}
}

// From turns a conventional (value, error) pair into an immediate result.
func From[T any](v T, err error) Result[T] {
	if err != nil {
		return Fail[T](err)
	}
	return Ready(v)
}

// Suspend runs fn on its own goroutine and returns a result that settles
// when fn returns. A panic inside fn is captured and re-raised by Await.
func Suspend[T any](fn func() (T, error)) Result[T] {
	f := &future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				f.panicked = true
				f.panicVal = r
			}
		}()
		f.val, f.err = fn()
	}()
	return Result[T]{fut: f}
}

// Suspended reports whether r must be awaited to obtain its value.
func (r Result[T]) Suspended() bool {
	return r.fut != nil
}

// Done returns a channel closed once r has settled. For immediate results
// the channel is already closed.
func (r Result[T]) Done() <-chan struct{} {
	if r.fut == nil {
		return settled
	}
	return r.fut.done
}

// Await is the normalizer: it returns the value and error of r whichever form
// r takes, blocking only when r is suspended. If the suspended computation
// panicked, Await panics with the same value on the calling goroutine.
func Await[T any](r Result[T]) (T, error) {
	if r.fut == nil {
		return r.val, r.err
	}
	<-r.fut.done
	if r.fut.panicked {
		panic(r.fut.panicVal)
	}
	return r.fut.val, r.fut.err
}

// Then continues r with next. When r is immediate next runs inline on the
// caller's goroutine; otherwise the continuation is suspended. A failed r
// skips next and carries its error.
func Then[A, B any](r Result[A], next func(A) Result[B]) Result[B] {
	if r.fut == nil {
		if r.err != nil {
			return Fail[B](r.err)
		}
		return next(r.val)
	}
	return Suspend(func() (B, error) {
		v, err := Await(r)
		if err != nil {
			var zero B
			return zero, err
		}
		return Await(next(v))
	})
}

// drive calls step until it reports true or fails. Immediate results are
// consumed inline; the first suspended one moves the remaining iterations
// onto a single goroutine. The loop never recurses.
func drive(step func() Result[bool]) Result[Void] {
	for {
		r := step()
		if r.fut != nil {
			return Suspend(func() (Void, error) {
				for {
					done, err := Await(r)
					if err != nil || done {
						return Void{}, err
					}
					r = step()
				}
			})
		}
		if r.err != nil {
			return Fail[Void](r.err)
		}
		if r.val {
			return Ready(Void{})
		}
	}
}

// erase re-types a result as Result[any] for the pipeline executor.
func erase[T any](r Result[T]) Result[any] {
	return Then(r, func(v T) Result[any] { return Ready[any](v) })
}

// cast recovers a typed value from the pipeline's running value. The builder
// guarantees the type, so only a nil interface yields the zero value.
func cast[T any](v any) T {
	t, _ := v.(T)
	return t
}
