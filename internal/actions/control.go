package actions

import (
	"context"
	"log/slog"
	"time"

	"github.com/rendis/opflow/internal/logging"
	"github.com/rendis/opflow/internal/validation"
	"github.com/rendis/opflow/pkg/schema"
)

// ControlActions returns log, sleep and validate. All three yield the running
// value unchanged.
func ControlActions(logger *slog.Logger, validator *validation.JSONSchemaValidator) []Action {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return []Action{
		&logAction{logger: logger},
		&sleepAction{},
		&validateAction{validator: validator},
	}
}

// --- log ---

type logAction struct {
	logger *slog.Logger
}

func (a *logAction) Name() string { return "log" }

func (a *logAction) Schema() ActionSchema {
	return ActionSchema{
		Description: "Write a log record; yields the running value",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []any{"message"},
			"properties": map[string]any{
				"message":       map[string]any{"type": "string"},
				"level":         map[string]any{"type": "string", "enum": []any{"debug", "info", "warn", "error"}},
				"include_value": map[string]any{"type": "boolean"},
			},
		},
	}
}

func (a *logAction) Validate(params map[string]any) error {
	if _, err := requireString("log", params, "message"); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(stringParam(params, "level", "info")); err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "log: %v", err).WithCause(err)
	}
	return nil
}

func (a *logAction) Execute(ctx context.Context, input ActionInput) (*ActionOutput, error) {
	level, err := logging.ParseLevel(stringParam(input.Params, "level", "info"))
	if err != nil {
		return nil, err
	}

	var attrs []slog.Attr
	if boolParam(input.Params, "include_value", false) {
		attrs = append(attrs, slog.Any("value", input.Value))
	}
	a.logger.LogAttrs(ctx, level, stringParam(input.Params, "message", ""), attrs...)

	return &ActionOutput{Value: input.Value}, nil
}

// --- sleep ---

type sleepAction struct{}

func (a *sleepAction) Name() string { return "sleep" }

func (a *sleepAction) Schema() ActionSchema {
	return ActionSchema{
		Description: "Wait for 'duration' (e.g. \"250ms\"); yields the running value",
		Async:       true,
		InputSchema: map[string]any{
			"type":     "object",
			"required": []any{"duration"},
			"properties": map[string]any{
				"duration": map[string]any{"type": "string"},
			},
		},
	}
}

func (a *sleepAction) Validate(params map[string]any) error {
	if _, err := requireString("sleep", params, "duration"); err != nil {
		return err
	}
	_, err := durationParam("sleep", params, "duration", 0)
	return err
}

func (a *sleepAction) Execute(ctx context.Context, input ActionInput) (*ActionOutput, error) {
	d, err := durationParam("sleep", input.Params, "duration", 0)
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return &ActionOutput{Value: input.Value}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// --- validate ---

type validateAction struct {
	validator *validation.JSONSchemaValidator
}

func (a *validateAction) Name() string { return "validate" }

func (a *validateAction) Schema() ActionSchema {
	return ActionSchema{
		Description: "Check the running value against the JSON Schema in 'schema'; yields the value",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []any{"schema"},
			"properties": map[string]any{
				"schema": map[string]any{"type": "object"},
			},
		},
	}
}

func (a *validateAction) Validate(params map[string]any) error {
	s, ok := params["schema"].(map[string]any)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, "validate requires 'schema' object parameter")
	}
	_, err := a.validator.Compile(s)
	return err
}

func (a *validateAction) Execute(_ context.Context, input ActionInput) (*ActionOutput, error) {
	s, ok := input.Params["schema"].(map[string]any)
	if !ok {
		return nil, schema.NewError(schema.ErrCodeValidation, "validate requires 'schema' object parameter")
	}
	if err := a.validator.ValidateValue(input.Value, s); err != nil {
		return nil, err
	}
	return &ActionOutput{Value: input.Value}, nil
}
