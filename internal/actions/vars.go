package actions

import (
	"sync"

	"github.com/rendis/opflow/pkg/ref"
)

// Vars holds the flow variables of one run. Paths use the dot notation of
// ref.Path ("user.name", "items.0"). All access is serialized, so steps of a
// parallel step may share it.
type Vars struct {
	mu   sync.Mutex
	data map[string]any
}

// NewVars returns a Vars holding a deep copy of initial.
func NewVars(initial map[string]any) *Vars {
	data, _ := deepCopy(initial).(map[string]any)
	if data == nil {
		data = map[string]any{}
	}
	return &Vars{data: data}
}

// Get returns a copy of the value at path.
func (v *Vars) Get(path string) (any, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	val, err := ref.Path(v.data, path).Get()
	if err != nil {
		return nil, err
	}
	return deepCopy(val), nil
}

// Set stores val at path. The parent of path must exist.
func (v *Vars) Set(path string, val any) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return ref.Path(v.data, path).Set(deepCopy(val))
}

// Update replaces the value at path with fn's result while holding the lock.
// found is false when path does not resolve.
func (v *Vars) Update(path string, fn func(cur any, found bool) (any, error)) (any, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	p := ref.Path(v.data, path)
	cur, getErr := p.Get()
	next, err := fn(cur, getErr == nil)
	if err != nil {
		return nil, err
	}
	if err := p.Set(next); err != nil {
		return nil, err
	}
	return next, nil
}

// Snapshot returns a deep copy of every variable. A nil Vars yields nil.
func (v *Vars) Snapshot() map[string]any {
	if v == nil {
		return nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return deepCopy(v.data).(map[string]any)
}

func deepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		if val == nil {
			return val
		}
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = deepCopy(item)
		}
		return out
	case []any:
		if val == nil {
			return val
		}
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopy(item)
		}
		return out
	default:
		return v
	}
}
