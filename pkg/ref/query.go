package ref

import (
	"github.com/itchyny/gojq"

	"github.com/rendis/opflow/pkg/schema"
)

// QueryRef is a read-only reference that evaluates a jq expression against a
// root value each time it is read, so later writes to the root are visible.
type QueryRef struct {
	root       any
	expression string
	code       *gojq.Code
}

// Query compiles expression and returns a reader over root. A syntax error
// is reported here; evaluation errors are reported by Get.
func Query(root any, expression string) (*QueryRef, error) {
	q, err := gojq.Parse(expression)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExpression,
			"jq parse error in %q: %s", expression, err).WithCause(err)
	}
	code, err := gojq.Compile(q, gojq.WithEnvironLoader(func() []string { return nil }))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExpression,
			"jq compile error in %q: %s", expression, err).WithCause(err)
	}
	return &QueryRef{root: root, expression: expression, code: code}, nil
}

// Get returns the first value the expression yields, or nil if it yields
// none.
func (q *QueryRef) Get() (any, error) {
	iter := q.code.Run(q.root)
	v, ok := iter.Next()
	if !ok {
		return nil, nil
	}
	if err, isErr := v.(error); isErr {
		return nil, schema.NewErrorf(schema.ErrCodeInvalidPath,
			"jq evaluation failed for %q: %s", q.expression, err).WithCause(err)
	}
	return v, nil
}

func (q *QueryRef) String() string {
	return q.expression
}

var _ Reader[any] = (*QueryRef)(nil)
