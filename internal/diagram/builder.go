package diagram

import (
	"fmt"

	"github.com/rendis/opflow/pkg/schema"
)

const (
	startID = "__start__"
	endID   = "__end__"
)

// AsyncLookup reports whether a registered action may suspend.
type AsyncLookup interface {
	IsAsync(name string) bool
}

// Build constructs a DiagramModel from a FlowDefinition. Top-level steps form
// a linear pipeline between virtual start and end nodes; composite steps get
// SubGraph children. lookup may be nil, in which case only steps marked wait
// and parallel steps are shown as async.
func Build(def *schema.FlowDefinition, lookup AsyncLookup) (*DiagramModel, error) {
	if def == nil {
		return nil, fmt.Errorf("diagram: flow definition is nil")
	}
	b := &builder{lookup: lookup}

	nodes := make([]*Node, 0, len(def.Steps)+2)
	levels := make([][]string, 0, len(def.Steps)+2)

	nodes = append(nodes, &Node{ID: startID, Label: "Start", Kind: NodeKindStart})
	levels = append(levels, []string{startID})

	var edges []Edge
	prev := startID
	for i := range def.Steps {
		step := &def.Steps[i]
		node := b.node(step)
		nodes = append(nodes, node)
		levels = append(levels, []string{node.ID})
		edges = append(edges, Edge{From: prev, To: node.ID, Label: edgeLabel(step)})
		prev = node.ID
	}

	nodes = append(nodes, &Node{ID: endID, Label: "End", Kind: NodeKindEnd})
	levels = append(levels, []string{endID})
	edges = append(edges, Edge{From: prev, To: endID})

	return &DiagramModel{
		Title:  titleFromDef(def),
		Nodes:  nodes,
		Edges:  edges,
		Levels: levels,
	}, nil
}

type builder struct {
	lookup AsyncLookup
}

// node maps a step and its nested steps to a Node.
func (b *builder) node(step *schema.StepDefinition) *Node {
	n := &Node{
		ID:    step.ID,
		Label: nodeLabel(step),
		Kind:  stepTypeToKind(step.Type),
	}

	switch step.Type {
	case schema.StepTypeSequence:
		n.Children = append(n.Children, b.list("steps", step.Steps, true))
	case schema.StepTypeParallel:
		n.Children = append(n.Children, b.list("branches", step.Steps, false))
	case schema.StepTypeOrder:
		if len(step.Before) > 0 {
			n.Children = append(n.Children, b.list("before", step.Before, true))
		}
		n.Children = append(n.Children, b.pipeline("steps", step.Steps))
		if len(step.After) > 0 {
			n.Children = append(n.Children, b.list("after", step.After, true))
		}
	case schema.StepTypeAction, "":
	default:
		n.Children = append(n.Children, b.pipeline("steps", step.Steps))
	}

	n.Async = step.Wait || step.Type == schema.StepTypeParallel || b.actionAsync(step) || childrenAsync(n)
	return n
}

func (b *builder) actionAsync(step *schema.StepDefinition) bool {
	if step.Type != schema.StepTypeAction && step.Type != "" {
		return false
	}
	return b.lookup != nil && b.lookup.IsAsync(step.Action)
}

func childrenAsync(n *Node) bool {
	for _, sg := range n.Children {
		for _, c := range sg.Nodes {
			if c.Async {
				return true
			}
		}
	}
	return false
}

// pipeline builds a subgraph whose edges carry each step's mode.
func (b *builder) pipeline(label string, steps []schema.StepDefinition) *SubGraph {
	sg := &SubGraph{Label: label}
	for i := range steps {
		sg.Nodes = append(sg.Nodes, b.node(&steps[i]))
		if i > 0 {
			sg.Edges = append(sg.Edges, Edge{From: steps[i-1].ID, To: steps[i].ID, Label: edgeLabel(&steps[i])})
		}
	}
	return sg
}

// list builds a subgraph of side-effect members, chained in order when
// ordered is set.
func (b *builder) list(label string, steps []schema.StepDefinition, ordered bool) *SubGraph {
	sg := &SubGraph{Label: label}
	for i := range steps {
		sg.Nodes = append(sg.Nodes, b.node(&steps[i]))
		if ordered && i > 0 {
			sg.Edges = append(sg.Edges, Edge{From: steps[i-1].ID, To: steps[i].ID})
		}
	}
	return sg
}

// stepTypeToKind converts a schema.StepType to a NodeKind.
func stepTypeToKind(st schema.StepType) NodeKind {
	switch st {
	case schema.StepTypeChain:
		return NodeKindChain
	case schema.StepTypeSequence:
		return NodeKindSequence
	case schema.StepTypeParallel:
		return NodeKindParallel
	case schema.StepTypeOrder:
		return NodeKindOrder
	case schema.StepTypeIf:
		return NodeKindCondition
	case schema.StepTypeRepeat, schema.StepTypeUntil:
		return NodeKindLoop
	case schema.StepTypeRetry:
		return NodeKindRetry
	default:
		return NodeKindAction
	}
}

// nodeLabel creates a human-readable label for a node.
func nodeLabel(step *schema.StepDefinition) string {
	switch step.Type {
	case schema.StepTypeAction, "":
		return fmt.Sprintf("%s (%s)", step.ID, step.Action)
	case schema.StepTypeIf:
		return fmt.Sprintf("%s (if %s)", step.ID, step.Condition)
	case schema.StepTypeUntil:
		return fmt.Sprintf("%s (until %s)", step.ID, step.Condition)
	case schema.StepTypeRetry:
		return fmt.Sprintf("%s (retry %d until %s)", step.ID, step.Max, step.Condition)
	case schema.StepTypeRepeat:
		if step.Over != "" {
			return fmt.Sprintf("%s (over %s)", step.ID, step.Over)
		}
		return fmt.Sprintf("%s (x%d)", step.ID, step.Count)
	case schema.StepTypeParallel:
		if step.Limit > 0 {
			return fmt.Sprintf("%s (parallel, limit %d)", step.ID, step.Limit)
		}
		return fmt.Sprintf("%s (parallel)", step.ID)
	default:
		return fmt.Sprintf("%s (%s)", step.ID, step.Type)
	}
}

// edgeLabel names the mode a step enters its pipeline with. Plain joins are
// unlabeled.
func edgeLabel(step *schema.StepDefinition) string {
	mode := step.Mode
	if mode == "" {
		mode = schema.StepModeJoin
		if !step.Type.ProducesValue() {
			mode = schema.StepModePass
		}
	}
	switch {
	case step.Wait && mode == schema.StepModePass:
		return "pass, wait"
	case step.Wait:
		return "wait"
	case mode == schema.StepModePass:
		return "pass"
	default:
		return ""
	}
}

// titleFromDef generates a diagram title from the flow name.
func titleFromDef(def *schema.FlowDefinition) string {
	if def.Name != "" {
		return def.Name
	}
	if def.Metadata != nil {
		if name, ok := def.Metadata["name"].(string); ok && name != "" {
			return name
		}
	}
	return "Flow"
}
