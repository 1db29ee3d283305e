package diagram

import (
	"fmt"
	"strings"
)

// RenderMermaid renders a DiagramModel as a Mermaid flowchart string.
func RenderMermaid(model *DiagramModel) string {
	var b strings.Builder

	b.WriteString("graph TD\n")

	// Title as comment.
	if model.Title != "" {
		b.WriteString(fmt.Sprintf("    %%%% %s\n", model.Title))
	}

	for _, node := range model.Nodes {
		writeMermaidNode(&b, node, "    ")
	}
	for _, edge := range model.Edges {
		writeMermaidEdge(&b, edge, "    ")
	}

	// Async nodes are highlighted.
	b.WriteString("\n")
	b.WriteString("    classDef async fill:#1a5276,stroke:#0e3a52,color:#fff\n")
	var async []string
	collectAsync(model.Nodes, &async)
	if len(async) > 0 {
		b.WriteString(fmt.Sprintf("    class %s async\n", strings.Join(async, ",")))
	}

	return b.String()
}

// writeMermaidNode writes a node definition followed by one subgraph per
// child, recursing into nested composites.
func writeMermaidNode(b *strings.Builder, node *Node, indent string) {
	b.WriteString(indent + mermaidNodeDef(node) + "\n")
	for _, sg := range node.Children {
		b.WriteString(fmt.Sprintf("%ssubgraph %s[\"%s: %s\"]\n",
			indent, mermaidSafeID(node.ID+"_"+sg.Label), node.ID, sg.Label))
		for _, sub := range sg.Nodes {
			writeMermaidNode(b, sub, indent+"    ")
		}
		for _, edge := range sg.Edges {
			writeMermaidEdge(b, edge, indent+"    ")
		}
		b.WriteString(indent + "end\n")
	}
}

func writeMermaidEdge(b *strings.Builder, edge Edge, indent string) {
	label := ""
	if edge.Label != "" {
		label = fmt.Sprintf("|%s|", edge.Label)
	}
	b.WriteString(fmt.Sprintf("%s%s -->%s %s\n",
		indent, mermaidSafeID(edge.From), label, mermaidSafeID(edge.To)))
}

func collectAsync(nodes []*Node, out *[]string) {
	for _, n := range nodes {
		if n.Async {
			*out = append(*out, mermaidSafeID(n.ID))
		}
		for _, sg := range n.Children {
			collectAsync(sg.Nodes, out)
		}
	}
}

// mermaidNodeDef returns a Mermaid node definition with the appropriate shape.
func mermaidNodeDef(node *Node) string {
	id := mermaidSafeID(node.ID)
	label := firstLine(node.Label)

	switch node.Kind {
	case NodeKindCondition:
		return fmt.Sprintf("%s{%q}", id, label)
	case NodeKindRetry:
		return fmt.Sprintf("%s{{%q}}", id, label)
	case NodeKindParallel, NodeKindLoop:
		return fmt.Sprintf("%s[[%q]]", id, label)
	case NodeKindChain, NodeKindSequence, NodeKindOrder:
		return fmt.Sprintf("%s([%q])", id, label)
	case NodeKindStart, NodeKindEnd:
		return fmt.Sprintf("%s((%q))", id, label)
	default: // action
		return fmt.Sprintf("%s[%q]", id, label)
	}
}

// mermaidSafeID converts a node ID to a Mermaid-safe identifier.
// Replaces dots, dashes and spaces with underscores.
func mermaidSafeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_")
	return r.Replace(id)
}
