package schema

// FlowDefinition is the JSON/YAML-serializable description of a flow.
// Its top-level steps form a linear pipeline threading a single running value.
type FlowDefinition struct {
	Name        string           `json:"name,omitempty" yaml:"name,omitempty"`
	Description string           `json:"description,omitempty" yaml:"description,omitempty"`
	InputSchema map[string]any   `json:"input_schema,omitempty" yaml:"input_schema,omitempty"`
	Vars        map[string]any   `json:"vars,omitempty" yaml:"vars,omitempty"`
	Steps       []StepDefinition `json:"steps" yaml:"steps"`
	Metadata    map[string]any   `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// StepDefinition describes a single step of a flow. Which fields apply
// depends on Type.
type StepDefinition struct {
	ID     string         `json:"id" yaml:"id"`
	Type   StepType       `json:"type,omitempty" yaml:"type,omitempty"`     // default: action
	Action string         `json:"action,omitempty" yaml:"action,omitempty"` // registry name for action steps
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`

	Mode StepMode `json:"mode,omitempty" yaml:"mode,omitempty"` // join | pass
	Wait bool     `json:"wait,omitempty" yaml:"wait,omitempty"` // await the step's own result

	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"` // CEL, for if/until/retry
	Over      string `json:"over,omitempty" yaml:"over,omitempty"`           // jq, for repeat
	Count     int    `json:"count,omitempty" yaml:"count,omitempty"`         // for repeat
	Max       int    `json:"max,omitempty" yaml:"max,omitempty"`             // retries, for retry
	Limit     int    `json:"limit,omitempty" yaml:"limit,omitempty"`         // concurrency, for parallel

	Steps  []StepDefinition `json:"steps,omitempty" yaml:"steps,omitempty"`
	Before []StepDefinition `json:"before,omitempty" yaml:"before,omitempty"` // order only
	After  []StepDefinition `json:"after,omitempty" yaml:"after,omitempty"`   // order only
}

// StepType enumerates the kinds of steps in a flow.
type StepType string

const (
	StepTypeAction   StepType = "action"
	StepTypeChain    StepType = "chain"
	StepTypeSequence StepType = "sequence"
	StepTypeParallel StepType = "parallel"
	StepTypeOrder    StepType = "order"
	StepTypeIf       StepType = "if"
	StepTypeRepeat   StepType = "repeat"
	StepTypeUntil    StepType = "until"
	StepTypeRetry    StepType = "retry"
)

// ProducesValue reports whether steps of this type yield a value that can
// replace the running value. The others only run for their side effects.
func (t StepType) ProducesValue() bool {
	switch t {
	case StepTypeAction, StepTypeChain, StepTypeOrder, StepTypeIf, "":
		return true
	default:
		return false
	}
}

// StepMode selects whether a step's result replaces the running value.
type StepMode string

const (
	StepModeJoin StepMode = "join"
	StepModePass StepMode = "pass"
)
