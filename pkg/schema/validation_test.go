package schema

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationResult_EmptyIsValid(t *testing.T) {
	r := &ValidationResult{}
	assert.True(t, r.Valid())
	assert.NoError(t, r.ToError())
}

func TestValidationResult_AddError(t *testing.T) {
	r := &ValidationResult{}
	r.AddError("steps[0].action", ErrCodeNotFound, "action \"nope\" not registered")

	assert.False(t, r.Valid())
	require.Len(t, r.Errors, 1)
	assert.Equal(t, "steps[0].action", r.Errors[0].Path)
	assert.Equal(t, ErrCodeNotFound, r.Errors[0].Code)
	assert.Equal(t, SeverityError, r.Errors[0].Severity)
}

func TestValidationResult_WarningsStayValid(t *testing.T) {
	r := &ValidationResult{}
	r.AddWarning("steps[1]", ErrCodeValidation, "until step has no cap")

	assert.True(t, r.Valid())
	require.Len(t, r.Warnings, 1)
	assert.Equal(t, SeverityWarning, r.Warnings[0].Severity)
}

func TestValidationResult_Merge(t *testing.T) {
	r1 := &ValidationResult{}
	r1.AddError("/", ErrCodeValidation, "err1")

	r2 := &ValidationResult{}
	r2.AddError("steps[0]", ErrCodeExpression, "err2")
	r2.AddWarning("steps[1]", ErrCodeValidation, "warn2")

	r1.Merge(r2)
	r1.Merge(nil)

	assert.Len(t, r1.Errors, 2)
	assert.Len(t, r1.Warnings, 1)
}

func TestValidationResult_ToError(t *testing.T) {
	t.Run("single error", func(t *testing.T) {
		r := &ValidationResult{}
		r.AddError("steps[0].id", ErrCodeValidation, "missing id")

		err := r.ToError()
		require.Error(t, err)
		assert.True(t, HasCode(err, ErrCodeValidation))
		assert.Contains(t, err.Error(), "steps[0].id: missing id")
	})

	t.Run("multiple errors", func(t *testing.T) {
		r := &ValidationResult{}
		r.AddError("a", ErrCodeValidation, "first")
		r.AddError("b", ErrCodeValidation, "second")

		var fe *FlowError
		require.ErrorAs(t, r.ToError(), &fe)
		assert.Contains(t, fe.Message, "2 errors")
		assert.Len(t, fe.Details["errors"], 2)
	})
}

func TestFlowError_Format(t *testing.T) {
	err := NewErrorf(ErrCodeExecution, "boom %d", 7)
	assert.Equal(t, "[EXECUTION_ERROR] boom 7", err.Error())

	err.WithStep("load")
	assert.Equal(t, "[EXECUTION_ERROR] step load: boom 7", err.Error())

	err.WithStep("outer")
	assert.Equal(t, "load", err.StepID, "innermost step id wins")
}

func TestFlowError_Unwrap(t *testing.T) {
	cause := errors.New("disk on fire")
	err := NewError(ErrCodeExecution, "write failed").WithCause(cause)

	assert.ErrorIs(t, err, cause)
	wrapped := fmt.Errorf("outer: %w", err)
	assert.True(t, HasCode(wrapped, ErrCodeExecution))
	assert.False(t, HasCode(wrapped, ErrCodeInvalidPath))
	assert.False(t, HasCode(cause, ErrCodeExecution))
}

func TestStepType_ProducesValue(t *testing.T) {
	tests := []struct {
		typ  StepType
		want bool
	}{
		{"", true},
		{StepTypeAction, true},
		{StepTypeChain, true},
		{StepTypeOrder, true},
		{StepTypeIf, true},
		{StepTypeSequence, false},
		{StepTypeParallel, false},
		{StepTypeRepeat, false},
		{StepTypeUntil, false},
		{StepTypeRetry, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.typ.ProducesValue())
		})
	}
}
