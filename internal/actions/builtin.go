package actions

import (
	"log/slog"

	"github.com/rendis/opflow/internal/expressions"
	"github.com/rendis/opflow/internal/validation"
)

// BuiltinConfig carries the shared collaborators of the built-in actions.
type BuiltinConfig struct {
	Engines   *expressions.Engines
	Validator *validation.JSONSchemaValidator
	Logger    *slog.Logger
	HTTP      HTTPConfig
}

// RegisterBuiltins registers all built-in actions in the given registry.
func RegisterBuiltins(reg *Registry, cfg BuiltinConfig) error {
	all := make([]Action, 0, 16)

	all = append(all, ExpressionActions(cfg.Engines)...)
	all = append(all, VariableActions()...)
	all = append(all, ControlActions(cfg.Logger, cfg.Validator)...)
	all = append(all, NewHTTPAction(cfg.HTTP))

	for _, a := range all {
		if err := reg.Register(a); err != nil {
			return err
		}
	}
	return nil
}
