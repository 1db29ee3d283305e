package diagram

// NodeKind classifies a diagram node by its flow step type.
type NodeKind string

const (
	NodeKindAction    NodeKind = "action"
	NodeKindChain     NodeKind = "chain"
	NodeKindSequence  NodeKind = "sequence"
	NodeKindParallel  NodeKind = "parallel"
	NodeKindOrder     NodeKind = "order"
	NodeKindCondition NodeKind = "condition"
	NodeKindLoop      NodeKind = "loop"
	NodeKindRetry     NodeKind = "retry"
	NodeKindStart     NodeKind = "start"
	NodeKindEnd       NodeKind = "end"
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title  string
	Nodes  []*Node
	Edges  []Edge
	Levels [][]string
}

// Node represents a single step in the diagram.
type Node struct {
	ID       string
	Label    string
	Kind     NodeKind
	Async    bool        // the step may suspend
	Children []*SubGraph // nested pipelines, branches, before/after hooks
}

// SubGraph holds the nested steps of a composite node.
type SubGraph struct {
	Label string
	Nodes []*Node
	Edges []Edge
}

// Edge connects two consecutive steps. Label carries the step's pipeline
// mode when it is not a plain join.
type Edge struct {
	From  string
	To    string
	Label string
}
