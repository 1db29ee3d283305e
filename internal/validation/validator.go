package validation

import "github.com/rendis/opflow/pkg/schema"

// Validator checks flow definitions for correctness before they are compiled.
// Uses JSON Schema Draft 2020-12 for definition, input and value validation.
type Validator interface {
	ValidateDefinition(def *schema.FlowDefinition) error
	ValidateValue(value any, valueSchema map[string]any) error
}

// ActionLookup reports whether an action name is registered.
type ActionLookup interface {
	Has(name string) bool
}
