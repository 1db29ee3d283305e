package ref

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/opflow/pkg/schema"
)

func TestQuery_Get(t *testing.T) {
	root := map[string]any{
		"items": []any{
			map[string]any{"id": 1, "ok": true},
			map[string]any{"id": 2, "ok": false},
		},
	}

	q, err := Query(root, `[.items[] | select(.ok) | .id]`)
	require.NoError(t, err)

	v, err := q.Get()
	require.NoError(t, err)
	assert.Equal(t, []any{1}, v)
}

func TestQuery_SeesLaterWrites(t *testing.T) {
	root := map[string]any{"n": 1}
	q, err := Query(root, ".n")
	require.NoError(t, err)

	require.NoError(t, Path(root, "n").Set(2))
	v, err := q.Get()
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestQuery_NoOutput(t *testing.T) {
	q, err := Query(map[string]any{}, "empty")
	require.NoError(t, err)

	v, err := q.Get()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestQuery_Errors(t *testing.T) {
	_, err := Query(nil, ".[")
	assert.True(t, schema.HasCode(err, schema.ErrCodeExpression))

	q, err := Query(map[string]any{"s": "text"}, ".s + 1")
	require.NoError(t, err)
	_, err = q.Get()
	assert.True(t, schema.HasCode(err, schema.ErrCodeInvalidPath))
}
