package ref

import (
	"strconv"
	"strings"

	"github.com/rendis/opflow/pkg/schema"
)

// PathRef addresses a location inside nested map[string]any and []any
// values. Keys that parse as integers index slices. Paths are not checked
// when the reference is built: a missing location surfaces as an
// INVALID_PATH error from Get or Set.
type PathRef struct {
	root map[string]any
	keys []string
}

// Path returns a reference to the dot-separated path inside root,
// e.g. "a.b.0.c".
func Path(root map[string]any, path string) *PathRef {
	var keys []string
	if path != "" {
		keys = strings.Split(path, ".")
	}
	return &PathRef{root: root, keys: keys}
}

// PathKeys returns a reference to the path given as explicit keys, for keys
// that contain dots.
func PathKeys(root map[string]any, keys ...string) *PathRef {
	return &PathRef{root: root, keys: append([]string(nil), keys...)}
}

func (p *PathRef) String() string {
	return strings.Join(p.keys, ".")
}

// Get returns the value at the path. The empty path addresses the root.
func (p *PathRef) Get() (any, error) {
	return p.walk(len(p.keys))
}

// Set stores v at the path. Every location above the last key must exist;
// the last key may be new when its parent is a map. Slice elements are
// replaced in place and never appended.
func (p *PathRef) Set(v any) error {
	if len(p.keys) == 0 {
		return schema.NewError(schema.ErrCodeInvalidPath, "cannot set the root of a path reference")
	}
	parent, err := p.walk(len(p.keys) - 1)
	if err != nil {
		return err
	}
	last := p.keys[len(p.keys)-1]
	switch c := parent.(type) {
	case map[string]any:
		c[last] = v
		return nil
	case []any:
		i, ok := index(c, last)
		if !ok {
			return p.invalid(len(p.keys), "index out of range")
		}
		c[i] = v
		return nil
	default:
		return p.invalid(len(p.keys)-1, "not a container")
	}
}

// walk resolves the first n keys.
func (p *PathRef) walk(n int) (any, error) {
	if p.root == nil {
		return nil, schema.NewError(schema.ErrCodeInvalidPath, "path reference has a nil root")
	}
	var cur any = p.root
	for i := 0; i < n; i++ {
		k := p.keys[i]
		switch c := cur.(type) {
		case map[string]any:
			next, ok := c[k]
			if !ok {
				return nil, p.invalid(i+1, "no such key")
			}
			cur = next
		case []any:
			idx, ok := index(c, k)
			if !ok {
				return nil, p.invalid(i+1, "index out of range")
			}
			cur = c[idx]
		default:
			return nil, p.invalid(i, "not a container")
		}
	}
	return cur, nil
}

func (p *PathRef) invalid(depth int, reason string) error {
	at := strings.Join(p.keys[:depth], ".")
	return schema.NewErrorf(schema.ErrCodeInvalidPath, "%s at %q", reason, at).
		WithDetails(map[string]any{"path": p.String(), "at": at})
}

func index(s []any, key string) (int, bool) {
	i, err := strconv.Atoi(key)
	if err != nil || i < 0 || i >= len(s) {
		return 0, false
	}
	return i, true
}

var _ Ref[any] = (*PathRef)(nil)
