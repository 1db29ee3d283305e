package action

import (
	"context"
	"sync"
	"time"
)

// recorder is a per-test log of side effects, safe for concurrent use.
type recorder struct {
	mu    sync.Mutex
	items []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, s)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.items...)
}

func (r *recorder) effect(s string) Func[int, Void] {
	return Effect(func(context.Context, int) error {
		r.add(s)
		return nil
	})
}

func (r *recorder) effectAfter(s string, d time.Duration) AsyncFunc[int, Void] {
	return EffectAsync(func(context.Context, int) error {
		time.Sleep(d)
		r.add(s)
		return nil
	})
}

var ctx = context.Background()
