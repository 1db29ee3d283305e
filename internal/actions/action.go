package actions

import (
	"context"
)

// Action is a named unit of work a flow step can reference.
type Action interface {
	Name() string
	Schema() ActionSchema
	// Validate checks static params before the flow runs.
	Validate(params map[string]any) error
	Execute(ctx context.Context, input ActionInput) (*ActionOutput, error)
}

// ActionRegistry manages the lookup of available actions.
type ActionRegistry interface {
	Register(action Action) error
	Get(name string) (Action, error)
	List() []ActionInfo
}

// ActionSchema describes the params contract of an action.
type ActionSchema struct {
	InputSchema map[string]any `json:"input_schema,omitempty"`
	Description string         `json:"description,omitempty"`
	// Async marks actions that block (timers, network). Flow steps built on
	// them run as suspended computations.
	Async bool `json:"async,omitempty"`
}

// ActionInput is the data provided to an action at execution time.
type ActionInput struct {
	Value  any            `json:"value"`  // running value of the flow
	Params map[string]any `json:"params"` // step params, interpolated
	Vars   *Vars          `json:"-"`      // flow variables of the current run
}

// ActionOutput is the result of an action execution.
type ActionOutput struct {
	Value any `json:"value"`
}

// ActionInfo is a summary of a registered action for listing.
type ActionInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Async       bool   `json:"async,omitempty"`
}
