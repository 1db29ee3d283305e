package action

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Sequence runs a list of actions strictly in order. See RunActions.
type Sequence[P any] struct {
	actions []Action[P, Void]
}

// RunActions returns an action that invokes every item with the same
// parameter, in list order, starting item i+1 only after item i has settled.
// Nil items are skipped and an empty list is a no-op. The result stays
// immediate while every item answers immediately.
func RunActions[P any](actions ...Action[P, Void]) *Sequence[P] {
	return &Sequence[P]{actions: compact(actions)}
}

func (s *Sequence[P]) Do(ctx context.Context, p P) Result[Void] {
	i := 0
	return drive(func() Result[bool] {
		if i == len(s.actions) {
			return Ready(true)
		}
		a := s.actions[i]
		i++
		return Then(a.Do(ctx, p), proceed[Void])
	})
}

// Parallel fans a parameter out to every item and joins. See
// RunActionsParallel.
type Parallel[P any] struct {
	actions []Action[P, Void]
	limit   int
}

// RunActionsParallel returns an action that invokes every item on its own
// goroutine and settles once all of them have settled. Items are not ordered
// relative to each other. If any item fails, the first failure to be
// observed is returned, but only after every item has finished. A panic in
// an item is re-raised by Await after the join. WithLimit caps concurrency.
// The result is always suspended.
func RunActionsParallel[P any](actions []Action[P, Void], opts ...Option) *Parallel[P] {
	o := buildOptions(opts)
	return &Parallel[P]{actions: compact(actions), limit: o.limit}
}

var errItemPanicked = errors.New("parallel item panicked")

func (a *Parallel[P]) Do(ctx context.Context, p P) Result[Void] {
	return Suspend(func() (Void, error) {
		var (
			g         errgroup.Group
			panicOnce sync.Once
			panicVal  any
			panicked  bool
		)
		if a.limit > 0 {
			g.SetLimit(a.limit)
		}
		for _, item := range a.actions {
			g.Go(func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						panicOnce.Do(func() {
							panicked = true
							panicVal = r
						})
						err = errItemPanicked
					}
				}()
				_, err = Await(item.Do(ctx, p))
				return err
			})
		}
		err := g.Wait()
		if panicked {
			panic(panicVal)
		}
		return Void{}, err
	})
}

// Order is a three-phase sandwich. See RunActionsOrder.
type Order[P, R any] struct {
	previous  Action[P, Void]
	executing Action[P, R]
	following Action[P, Void]
}

// RunActionsOrder returns an action that runs previous, then executing, then
// following, each to completion, and yields executing's result. previous and
// following are ordering fences only; either may be nil. A failure in any
// phase skips the remaining ones.
func RunActionsOrder[P, R any](previous Action[P, Void], executing Action[P, R], following Action[P, Void]) *Order[P, R] {
	if previous == nil {
		previous = nop[P]()
	}
	if following == nil {
		following = nop[P]()
	}
	return &Order[P, R]{previous: previous, executing: executing, following: following}
}

func (o *Order[P, R]) Do(ctx context.Context, p P) Result[R] {
	return Then(o.previous.Do(ctx, p), func(Void) Result[R] {
		return Then(o.executing.Do(ctx, p), func(res R) Result[R] {
			return Then(o.following.Do(ctx, p), func(Void) Result[R] {
				return Ready(res)
			})
		})
	})
}


func nop[P any]() Func[P, Void] {
	return func(context.Context, P) (Void, error) { return Void{}, nil }
}

func compact[P any](actions []Action[P, Void]) []Action[P, Void] {
	out := make([]Action[P, Void], 0, len(actions))
	for _, a := range actions {
		if a != nil {
			out = append(out, a)
		}
	}
	return out
}
