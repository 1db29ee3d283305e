package actions

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegisterBuiltins(t *testing.T) {
	reg := newBuiltins(t, BuiltinConfig{})

	var names []string
	var async []string
	for _, info := range reg.List() {
		names = append(names, info.Name)
		if info.Async {
			async = append(async, info.Name)
		}
	}
	assert.Equal(t, []string{"cel", "count", "expr", "get", "http", "jq", "log", "set", "sleep", "validate"}, names)
	assert.Equal(t, []string{"http", "sleep"}, async)
}

func TestBuiltins_InputSchemasCompile(t *testing.T) {
	reg := newBuiltins(t, BuiltinConfig{})
	v := newValidatorForTest(t)

	for _, info := range reg.List() {
		s := mustGet(t, reg, info.Name).Schema()
		if assert.NotEmpty(t, s.InputSchema, info.Name) {
			_, err := v.Compile(s.InputSchema)
			assert.NoError(t, err, info.Name)
		}
	}
}
