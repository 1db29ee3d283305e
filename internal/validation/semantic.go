package validation

import (
	"fmt"

	"github.com/rendis/opflow/internal/expressions"
	"github.com/rendis/opflow/pkg/schema"
)

// semanticChecker walks a definition depth-first and records everything JSON
// Schema cannot express.
type semanticChecker struct {
	lookup  ActionLookup
	engines *expressions.Engines
	ids     map[string]string // step id -> path of first occurrence
	result  *schema.ValidationResult
}

// validateSemantic performs semantic analysis on the flow definition.
// Checks: step ids unique across the whole flow, action names registered,
// required fields per step type, modes legal for the step type, and every
// condition and jq expression compiles. lookup and engines may be nil to
// skip the corresponding checks.
func validateSemantic(def *schema.FlowDefinition, lookup ActionLookup, engines *expressions.Engines) *schema.ValidationResult {
	c := &semanticChecker{
		lookup:  lookup,
		engines: engines,
		ids:     make(map[string]string),
		result:  &schema.ValidationResult{},
	}
	c.steps(def.Steps, "steps")
	return c.result
}

func (c *semanticChecker) steps(steps []schema.StepDefinition, path string) {
	for i := range steps {
		c.step(&steps[i], fmt.Sprintf("%s[%d]", path, i))
	}
}

func (c *semanticChecker) step(step *schema.StepDefinition, path string) {
	if first, dup := c.ids[step.ID]; dup {
		c.result.AddError(path+".id", schema.ErrCodeConflict,
			fmt.Sprintf("duplicate step id %q (first used at %s)", step.ID, first))
	} else {
		c.ids[step.ID] = path
	}

	stepType := step.Type
	if stepType == "" {
		stepType = schema.StepTypeAction
	}

	if step.Mode == schema.StepModeJoin && !stepType.ProducesValue() {
		c.result.AddError(path+".mode", schema.ErrCodeValidation,
			fmt.Sprintf("%s steps yield no value; use mode pass", stepType))
	}

	switch stepType {
	case schema.StepTypeAction:
		c.action(step, path)
	case schema.StepTypeRepeat:
		c.requireSteps(step, path)
		c.repeat(step, path)
	case schema.StepTypeIf, schema.StepTypeUntil, schema.StepTypeRetry:
		c.requireSteps(step, path)
		c.condition(step, path)
	default:
		c.requireSteps(step, path)
	}

	if stepType != schema.StepTypeIf && stepType != schema.StepTypeUntil &&
		stepType != schema.StepTypeRetry && step.Condition != "" {
		c.result.AddWarning(path+".condition", schema.ErrCodeValidation,
			fmt.Sprintf("condition is ignored on %s steps", stepType))
	}
	if stepType != schema.StepTypeParallel && step.Limit > 0 {
		c.result.AddWarning(path+".limit", schema.ErrCodeValidation,
			fmt.Sprintf("limit is ignored on %s steps", stepType))
	}
	if stepType != schema.StepTypeOrder && (len(step.Before) > 0 || len(step.After) > 0) {
		c.result.AddError(path, schema.ErrCodeValidation,
			"before/after are only allowed on order steps")
	}

	// Warning: high retry count.
	if stepType == schema.StepTypeRetry && step.Max > 10 {
		c.result.AddWarning(path+".max", schema.ErrCodeValidation,
			fmt.Sprintf("high retry count (%d) multiplies the cost of every failure", step.Max))
	}

	c.steps(step.Before, path+".before")
	c.steps(step.Steps, path+".steps")
	c.steps(step.After, path+".after")
}

func (c *semanticChecker) action(step *schema.StepDefinition, path string) {
	if step.Action == "" {
		c.result.AddError(path+".action", schema.ErrCodeValidation, "action steps require an action name")
	} else if c.lookup != nil && !c.lookup.Has(step.Action) {
		c.result.AddError(path+".action", schema.ErrCodeNotFound,
			fmt.Sprintf("action %q not registered", step.Action))
	}
	if len(step.Steps) > 0 {
		c.result.AddError(path+".steps", schema.ErrCodeValidation, "action steps take no nested steps")
	}
}

func (c *semanticChecker) requireSteps(step *schema.StepDefinition, path string) {
	if len(step.Steps) == 0 {
		c.result.AddError(path+".steps", schema.ErrCodeValidation,
			fmt.Sprintf("%s steps require at least one nested step", step.Type))
	}
}

func (c *semanticChecker) repeat(step *schema.StepDefinition, path string) {
	switch {
	case step.Over != "" && step.Count > 0:
		c.result.AddError(path, schema.ErrCodeValidation, "repeat takes either count or over, not both")
	case step.Over != "":
		if c.engines != nil {
			c.compiles(c.engines.JQ, step.Over, path+".over")
		}
	case step.Count <= 0:
		c.result.AddWarning(path+".count", schema.ErrCodeValidation,
			"repeat without count or over never runs its steps")
	}
}

func (c *semanticChecker) condition(step *schema.StepDefinition, path string) {
	if step.Condition == "" {
		c.result.AddError(path+".condition", schema.ErrCodeValidation,
			fmt.Sprintf("%s steps require a condition", step.Type))
		return
	}
	if c.engines != nil {
		c.compiles(c.engines.CEL, step.Condition, path+".condition")
	}
}

func (c *semanticChecker) compiles(e expressions.Engine, expression, path string) {
	if err := e.Compile(expression); err != nil {
		c.result.AddError(path, schema.ErrCodeExpression, err.Error())
	}
}
