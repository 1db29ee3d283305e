package diagram

import (
	"fmt"
	"strings"
)

// RenderASCII renders a DiagramModel as a text-based ASCII diagram.
// It uses a level-based layout with box-drawing characters.
func RenderASCII(model *DiagramModel) string {
	var b strings.Builder

	// Title.
	if model.Title != "" {
		b.WriteString(fmt.Sprintf("=== %s ===\n\n", model.Title))
	}

	// Render each level.
	for levelIdx, level := range model.Levels {
		var boxes []asciiBox
		for _, nodeID := range level {
			node := findNode(model.Nodes, nodeID)
			if node == nil {
				continue
			}
			boxes = append(boxes, makeBox(node))
		}

		renderBoxRow(&b, boxes)

		// Draw connectors between levels (except after last level).
		if levelIdx < len(model.Levels)-1 {
			renderConnector(&b, len(boxes), edgeInto(model.Edges, model.Levels[levelIdx+1]))
		}
	}

	// Render subgraphs for nodes with children.
	for _, node := range model.Nodes {
		if len(node.Children) > 0 {
			b.WriteString(fmt.Sprintf("\n--- %s sub-steps ---\n", node.ID))
			for _, sg := range node.Children {
				renderSubGraph(&b, sg, "  ")
			}
		}
	}

	return b.String()
}

// asciiBox holds the rendered lines of a single box.
type asciiBox struct {
	lines []string
	width int
}

// makeBox creates an ASCII box for a node.
func makeBox(node *Node) asciiBox {
	contentLines := []string{firstLine(node.Label)}
	if node.Async {
		contentLines = append(contentLines, "[ASYNC]")
	}

	maxLen := 0
	for _, line := range contentLines {
		if len(line) > maxLen {
			maxLen = len(line)
		}
	}
	width := maxLen + 4 // 2 border + 2 padding

	var lines []string
	top := "┌" + strings.Repeat("─", width-2) + "┐"
	bot := "└" + strings.Repeat("─", width-2) + "┘"
	lines = append(lines, top)
	for _, content := range contentLines {
		padded := content + strings.Repeat(" ", maxLen-len(content))
		lines = append(lines, "│ "+padded+" │")
	}
	lines = append(lines, bot)

	return asciiBox{lines: lines, width: width}
}

// firstLine returns only the first line of a multi-line label.
func firstLine(s string) string {
	if i := strings.Index(s, "\n"); i >= 0 {
		return s[:i]
	}
	return s
}

// renderBoxRow writes boxes side by side.
func renderBoxRow(b *strings.Builder, boxes []asciiBox) {
	if len(boxes) == 0 {
		return
	}

	maxHeight := 0
	for _, box := range boxes {
		if len(box.lines) > maxHeight {
			maxHeight = len(box.lines)
		}
	}

	for row := 0; row < maxHeight; row++ {
		for i, box := range boxes {
			if i > 0 {
				b.WriteString("  ") // gap between boxes
			}
			if row < len(box.lines) {
				b.WriteString(box.lines[row])
			} else {
				b.WriteString(strings.Repeat(" ", box.width))
			}
		}
		b.WriteByte('\n')
	}
}

// edgeInto returns the label of the edge entering the first node of level.
func edgeInto(edges []Edge, level []string) string {
	if len(level) == 0 {
		return ""
	}
	for _, e := range edges {
		if e.To == level[0] {
			return e.Label
		}
	}
	return ""
}

// renderConnector draws a vertical connector between levels.
func renderConnector(b *strings.Builder, boxCount int, label string) {
	if boxCount == 0 {
		return
	}
	if label != "" {
		b.WriteString("       │ " + label + "\n")
	} else {
		b.WriteString("       │\n")
	}
	b.WriteString("       ▼\n")
}

// renderSubGraph renders a subgraph section, indenting nested composites.
func renderSubGraph(b *strings.Builder, sg *SubGraph, indent string) {
	b.WriteString(fmt.Sprintf("%s[%s]\n", indent, sg.Label))
	for _, node := range sg.Nodes {
		tag := ""
		if node.Async {
			tag = " [ASYNC]"
		}
		b.WriteString(fmt.Sprintf("%s  %s%s\n", indent, firstLine(node.Label), tag))
		for _, child := range node.Children {
			renderSubGraph(b, child, indent+"    ")
		}
	}
	for _, edge := range sg.Edges {
		label := ""
		if edge.Label != "" {
			label = " (" + edge.Label + ")"
		}
		b.WriteString(fmt.Sprintf("%s  %s ─→ %s%s\n", indent, edge.From, edge.To, label))
	}
}

// findNode looks up a node by ID in the model's node list.
func findNode(nodes []*Node, id string) *Node {
	for _, n := range nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}
