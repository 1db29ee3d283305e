package validation

import (
	"github.com/rendis/opflow/internal/expressions"
	"github.com/rendis/opflow/pkg/schema"
)

// FlowValidator orchestrates the two-stage validation pipeline:
// 1. Structural (JSON Schema)
// 2. Semantic (ids, action refs, per-type fields, expressions)
type FlowValidator struct {
	jsonSchema *JSONSchemaValidator
	actions    ActionLookup
	engines    *expressions.Engines
}

// NewFlowValidator creates a FlowValidator.
// lookup may be nil to skip action existence checks; engines may be nil to
// skip expression compilation.
func NewFlowValidator(lookup ActionLookup, engines *expressions.Engines) (*FlowValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &FlowValidator{
		jsonSchema: jsv,
		actions:    lookup,
		engines:    engines,
	}, nil
}

// Validate runs both stages and returns an aggregated result.
// Structural errors short-circuit: the semantic stage is skipped.
func (fv *FlowValidator) Validate(def *schema.FlowDefinition) *schema.ValidationResult {
	if def == nil {
		r := &schema.ValidationResult{}
		r.AddError("/", schema.ErrCodeValidation, "flow definition is nil")
		return r
	}

	result := validateStructural(fv.jsonSchema, def)
	if !result.Valid() {
		return result
	}

	result.Merge(validateSemantic(def, fv.actions, fv.engines))

	if result.Valid() && len(def.InputSchema) > 0 {
		if _, err := fv.jsonSchema.Compile(def.InputSchema); err != nil {
			result.AddError("input_schema", schema.ErrCodeValidation, err.Error())
		}
	}

	return result
}

// ValidateDefinition satisfies the Validator interface.
func (fv *FlowValidator) ValidateDefinition(def *schema.FlowDefinition) error {
	return fv.Validate(def).ToError()
}

// ValidateValue delegates to the underlying JSONSchemaValidator.
func (fv *FlowValidator) ValidateValue(value any, valueSchema map[string]any) error {
	return fv.jsonSchema.ValidateValue(value, valueSchema)
}

// validateStructural wraps JSONSchemaValidator.ValidateDefinition, converting
// its error output into a ValidationResult.
func validateStructural(v *JSONSchemaValidator, def *schema.FlowDefinition) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	err := v.ValidateDefinition(def)
	if err == nil {
		return result
	}

	fe, ok := err.(*schema.FlowError)
	if !ok {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return result
	}

	if violations, ok := fe.Details["violations"].([]string); ok {
		for _, v := range violations {
			result.AddError("/", schema.ErrCodeValidation, v)
		}
		return result
	}
	result.AddError("/", schema.ErrCodeValidation, fe.Message)
	return result
}

var _ Validator = (*FlowValidator)(nil)
