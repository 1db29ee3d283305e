package engine

import (
	"context"
	"errors"

	"github.com/rendis/opflow/internal/actions"
	"github.com/rendis/opflow/internal/expressions"
	"github.com/rendis/opflow/pkg/action"
	"github.com/rendis/opflow/pkg/schema"
)

// node is one compiled step. exec is set only when the step can never
// suspend, which lets enclosing pipelines stay on the synchronous builder.
type node struct {
	do   action.Action[any, any]
	exec action.SyncAction[any, any]
}

func (n node) sync() bool { return n.exec != nil }

func asyncNode(a action.Action[any, any]) node { return node{do: a} }

func syncNode(a action.SyncAction[any, any]) node { return node{do: a, exec: a} }

// settle builds a node for a composite that settles inline whenever all of
// its parts do.
func settle(a action.Action[any, any], sync bool) node {
	if !sync {
		return asyncNode(a)
	}
	return syncNode(action.Run(func(ctx context.Context, v any) (any, error) {
		return action.Await(a.Do(ctx, v))
	}))
}

// effect adapts a side-effect-only composite to the node shape. It yields
// nil; such steps default to pass mode so the running value survives.
func effect[P any](a action.Action[P, action.Void], param func(any) (P, error)) action.Action[any, any] {
	return action.AsyncFunc[any, any](func(ctx context.Context, v any) action.Result[any] {
		p, err := param(v)
		if err != nil {
			return action.Fail[any](err)
		}
		return action.Then(a.Do(ctx, p), func(action.Void) action.Result[any] {
			return action.Ready[any](nil)
		})
	})
}

func same(v any) (any, error) { return v, nil }

// branch carries an if body's output so a skipped body can be told apart
// from a body that yielded nil.
type branch struct {
	out any
	ran bool
}

type compiler struct {
	e    *Engine
	opts []action.Option
}

// compile turns the validated definition into its root pipeline.
func (c *compiler) compile(def *schema.FlowDefinition) (node, error) {
	return c.pipeline(def.Name, def.Steps)
}

func (c *compiler) named(name string, extra ...action.Option) []action.Option {
	opts := make([]action.Option, 0, len(c.opts)+1+len(extra))
	opts = append(opts, c.opts...)
	opts = append(opts, action.WithName(name))
	return append(opts, extra...)
}

func (c *compiler) step(st *schema.StepDefinition) (node, error) {
	var (
		n   node
		err error
	)
	switch st.Type {
	case schema.StepTypeAction, "":
		n, err = c.action(st)
	case schema.StepTypeChain:
		n, err = c.pipeline(st.ID, st.Steps)
	case schema.StepTypeSequence:
		n, err = c.sequence(st.Steps)
	case schema.StepTypeParallel:
		n, err = c.parallel(st)
	case schema.StepTypeOrder:
		n, err = c.order(st)
	case schema.StepTypeIf:
		n, err = c.guard(st)
	case schema.StepTypeRepeat:
		n, err = c.repeat(st)
	case schema.StepTypeUntil:
		n, err = c.until(st)
	case schema.StepTypeRetry:
		n, err = c.retry(st)
	default:
		err = schema.NewErrorf(schema.ErrCodeValidation, "unknown step type %q", st.Type).WithStep(st.ID)
	}
	if err != nil {
		return node{}, err
	}
	return c.observe(st.ID, n), nil
}

// observe wraps a node in a span named after the step, keeping sync nodes
// synchronous.
func (c *compiler) observe(id string, n node) node {
	o := action.Observe(id, n.do, c.opts...)
	return settle(o, n.sync())
}

// pipeline threads the running value through steps. It stays on the
// synchronous builder until the first step that waits or may suspend.
func (c *compiler) pipeline(name string, steps []schema.StepDefinition) (node, error) {
	chain := action.NewChain[any](c.named(name)...)
	var async *action.AsyncChain[any, any]

	for i := range steps {
		st := &steps[i]
		n, err := c.step(st)
		if err != nil {
			return node{}, err
		}
		pass := modeOf(st) == schema.StepModePass
		wait := st.Wait || !n.sync()

		switch {
		case async == nil && !wait && pass:
			chain = action.Pass(chain, n.exec)
		case async == nil && !wait:
			chain = action.Join(chain, n.exec)
		case async == nil && pass:
			async = action.PassWait(chain, n.do)
		case async == nil:
			async = action.JoinWait(chain, n.do)
		case !wait && pass:
			async = action.AsyncPass(async, n.do)
		case !wait:
			async = action.AsyncJoin(async, n.do)
		case pass:
			async = action.AsyncPassWait(async, n.do)
		default:
			async = action.AsyncJoinWait(async, n.do)
		}
	}

	if async != nil {
		return asyncNode(async.Create()), nil
	}
	return syncNode(chain.Create()), nil
}

func modeOf(st *schema.StepDefinition) schema.StepMode {
	if st.Mode != "" {
		return st.Mode
	}
	if st.Type.ProducesValue() {
		return schema.StepModeJoin
	}
	return schema.StepModePass
}

func (c *compiler) action(st *schema.StepDefinition) (node, error) {
	a, err := c.e.registry.Get(st.Action)
	if err != nil {
		return node{}, withStep(err, st.ID)
	}

	id := st.ID
	params := st.Params
	dynamic := expressions.HasInterpolation(params)
	if !dynamic {
		if err := c.e.checkParams(a, params); err != nil {
			return node{}, withStep(err, id)
		}
	}

	fn := func(ctx context.Context, v any) (any, error) {
		vars := varsFrom(ctx)
		p := params
		if dynamic {
			var err error
			p, err = expressions.Interpolate(params, expressions.Env{Input: v, Vars: vars.Snapshot()})
			if err != nil {
				return nil, withStep(err, id)
			}
			if err := c.e.checkParams(a, p); err != nil {
				return nil, withStep(err, id)
			}
		}
		out, err := a.Execute(ctx, actions.ActionInput{Value: v, Params: p, Vars: vars})
		if err != nil {
			return nil, withStep(err, id)
		}
		if out == nil {
			return nil, nil
		}
		return out.Value, nil
	}

	if a.Schema().Async {
		return asyncNode(action.RunAsync(fn)), nil
	}
	return syncNode(action.Run(fn)), nil
}

// children compiles steps as side-effect members of a runner.
func (c *compiler) children(steps []schema.StepDefinition) ([]action.Action[any, action.Void], bool, error) {
	out := make([]action.Action[any, action.Void], 0, len(steps))
	allSync := true
	for i := range steps {
		n, err := c.step(&steps[i])
		if err != nil {
			return nil, false, err
		}
		allSync = allSync && n.sync()
		out = append(out, action.Discard(n.do))
	}
	return out, allSync, nil
}

func (c *compiler) sequence(steps []schema.StepDefinition) (node, error) {
	members, allSync, err := c.children(steps)
	if err != nil {
		return node{}, err
	}
	return settle(effect(action.RunActions(members...), same), allSync), nil
}

func (c *compiler) parallel(st *schema.StepDefinition) (node, error) {
	members, _, err := c.children(st.Steps)
	if err != nil {
		return node{}, err
	}
	limit := st.Limit
	if limit == 0 {
		limit = c.e.parallelLimit
	}
	par := action.RunActionsParallel(members, c.named(st.ID, action.WithLimit(limit))...)
	return asyncNode(effect(par, same)), nil
}

func (c *compiler) order(st *schema.StepDefinition) (node, error) {
	var before, after action.Action[any, action.Void]
	allSync := true

	hook := func(steps []schema.StepDefinition) (action.Action[any, action.Void], error) {
		if len(steps) == 0 {
			return nil, nil
		}
		members, sync, err := c.children(steps)
		if err != nil {
			return nil, err
		}
		allSync = allSync && sync
		return action.RunActions(members...), nil
	}

	var err error
	if before, err = hook(st.Before); err != nil {
		return node{}, err
	}
	body, err := c.pipeline(st.ID, st.Steps)
	if err != nil {
		return node{}, err
	}
	if after, err = hook(st.After); err != nil {
		return node{}, err
	}

	return settle(action.RunActionsOrder(before, body.do, after), allSync && body.sync()), nil
}

// guard compiles an if step. A skipped body yields the step's input.
func (c *compiler) guard(st *schema.StepDefinition) (node, error) {
	body, err := c.pipeline(st.ID, st.Steps)
	if err != nil {
		return node{}, err
	}
	id, cond := st.ID, st.Condition

	pred := action.Run(func(ctx context.Context, v any) (bool, error) {
		return c.condition(ctx, id, cond, expressions.Env{Input: v})
	})
	ran := action.AsyncFunc[any, branch](func(ctx context.Context, v any) action.Result[branch] {
		return action.Then(body.do.Do(ctx, v), func(out any) action.Result[branch] {
			return action.Ready(branch{out: out, ran: true})
		})
	})
	g := action.IfValid[any, branch](pred, ran)

	n := action.AsyncFunc[any, any](func(ctx context.Context, v any) action.Result[any] {
		return action.Then(g.Do(ctx, v), func(b branch) action.Result[any] {
			if !b.ran {
				return action.Ready(v)
			}
			return action.Ready(b.out)
		})
	})
	return settle(n, body.sync()), nil
}

func (c *compiler) repeat(st *schema.StepDefinition) (node, error) {
	body, err := c.pipeline(st.ID, st.Steps)
	if err != nil {
		return node{}, err
	}

	if st.Over == "" {
		count := st.Count
		rep := action.ParamRepetition(body.do)
		return settle(effect(rep, func(v any) (action.ParamCount[any], error) {
			return action.ParamCount[any]{Param: v, Count: count}, nil
		}), body.sync()), nil
	}

	// Each output of the jq expression drives one iteration with that output
	// as the running value.
	id, over := st.ID, st.Over
	rep := action.ParamsRepetition(body.do)
	n := action.AsyncFunc[any, any](func(ctx context.Context, v any) action.Result[any] {
		items, err := c.e.engines.JQ.EvaluateAll(ctx, over, expressions.Env{Input: v, Vars: varsFrom(ctx).Snapshot()})
		if err != nil {
			return action.Fail[any](withStep(err, id))
		}
		return action.Then(rep.Do(ctx, items), func(action.Void) action.Result[any] {
			return action.Ready[any](nil)
		})
	})
	return settle(n, body.sync()), nil
}

// checked runs body and then evaluates cond against the iteration's input
// and the body's output.
func (c *compiler) checked(st *schema.StepDefinition) (action.Action[any, bool], bool, error) {
	body, err := c.pipeline(st.ID, st.Steps)
	if err != nil {
		return nil, false, err
	}
	id, cond := st.ID, st.Condition
	return action.AsyncFunc[any, bool](func(ctx context.Context, v any) action.Result[bool] {
		return action.Then(body.do.Do(ctx, v), func(out any) action.Result[bool] {
			return action.From(c.condition(ctx, id, cond, expressions.Env{Input: v, Output: out}))
		})
	}), body.sync(), nil
}

func (c *compiler) until(st *schema.StepDefinition) (node, error) {
	pred, sync, err := c.checked(st)
	if err != nil {
		return node{}, err
	}
	rep := action.Repetition(pred, c.named(st.ID)...)
	return settle(effect(rep, same), sync), nil
}

func (c *compiler) retry(st *schema.StepDefinition) (node, error) {
	pred, sync, err := c.checked(st)
	if err != nil {
		return node{}, err
	}
	r := action.Retry(st.Max, pred, c.named(st.ID)...)
	return settle(effect(r, same), sync), nil
}

func (c *compiler) condition(ctx context.Context, id, cond string, env expressions.Env) (bool, error) {
	env.Vars = varsFrom(ctx).Snapshot()
	ok, err := c.e.engines.Bool(ctx, cond, env)
	if err != nil {
		return false, withStep(err, id)
	}
	return ok, nil
}

// withStep records the failing step on flow errors. Other errors pass
// through untouched.
func withStep(err error, id string) error {
	var fe *schema.FlowError
	if errors.As(err, &fe) {
		fe.WithStep(id)
	}
	return err
}

type varsKey struct{}

func withVars(ctx context.Context, v *actions.Vars) context.Context {
	return context.WithValue(ctx, varsKey{}, v)
}

// varsFrom returns the run's variables, or nil outside a run.
func varsFrom(ctx context.Context) *actions.Vars {
	v, _ := ctx.Value(varsKey{}).(*actions.Vars)
	return v
}
