package actions

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rendis/opflow/internal/expressions"
	"github.com/rendis/opflow/internal/validation"
)

func newBuiltins(t *testing.T, cfg BuiltinConfig) *Registry {
	t.Helper()
	if cfg.Engines == nil {
		engines, err := expressions.NewEngines()
		require.NoError(t, err)
		cfg.Engines = engines
	}
	if cfg.Validator == nil {
		v, err := validation.NewJSONSchemaValidator()
		require.NoError(t, err)
		cfg.Validator = v
	}
	reg := NewRegistry()
	require.NoError(t, RegisterBuiltins(reg, cfg))
	return reg
}

func mustGet(t *testing.T, reg *Registry, name string) Action {
	t.Helper()
	a, err := reg.Get(name)
	require.NoError(t, err)
	return a
}

func newValidatorForTest(t *testing.T) *validation.JSONSchemaValidator {
	t.Helper()
	v, err := validation.NewJSONSchemaValidator()
	require.NoError(t, err)
	return v
}
