package diagram

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
)

// ImageFormat selects the graphviz output format.
type ImageFormat string

const (
	ImagePNG ImageFormat = "png"
	ImageSVG ImageFormat = "svg"
)

func (f ImageFormat) graphviz() (graphviz.Format, error) {
	switch f {
	case ImagePNG, "":
		return graphviz.PNG, nil
	case ImageSVG:
		return graphviz.SVG, nil
	default:
		return "", fmt.Errorf("diagram: unsupported image format %q", f)
	}
}

// RenderImage renders a DiagramModel with graphviz and returns the encoded
// image bytes.
func RenderImage(ctx context.Context, model *DiagramModel, format ImageFormat) ([]byte, error) {
	gvFormat, err := format.graphviz()
	if err != nil {
		return nil, err
	}

	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("diagram: create graphviz: %w", err)
	}
	defer gv.Close()

	gv.SetLayout(graphviz.DOT)

	graph, err := gv.Graph()
	if err != nil {
		return nil, fmt.Errorf("diagram: create graph: %w", err)
	}
	defer graph.Close()

	graph.SetRankDir(cgraph.TBRank)
	if model.Title != "" {
		graph.SetLabel(model.Title)
	}

	gvNodes := make(map[string]*cgraph.Node, len(model.Nodes))
	for _, node := range model.Nodes {
		if err := addGraphvizNode(graph, node, gvNodes); err != nil {
			return nil, err
		}
	}
	addGraphvizEdges(graph, model.Edges, gvNodes)

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, gvFormat, &buf); err != nil {
		return nil, fmt.Errorf("diagram: render %s: %w", gvFormat, err)
	}

	return buf.Bytes(), nil
}

// addGraphvizNode creates node in g and one dashed cluster per child,
// recursing into nested composites.
func addGraphvizNode(g *cgraph.Graph, node *Node, gvNodes map[string]*cgraph.Node) error {
	gvNode, err := g.CreateNodeByName(node.ID)
	if err != nil {
		return fmt.Errorf("diagram: create node %s: %w", node.ID, err)
	}
	gvNode.SetLabel(firstLine(node.Label))
	applyNodeStyle(gvNode, node)
	gvNodes[node.ID] = gvNode

	for _, sg := range node.Children {
		sub, err := g.CreateSubGraphByName("cluster_" + node.ID + "_" + sg.Label)
		if err != nil {
			return fmt.Errorf("diagram: create cluster for %s: %w", node.ID, err)
		}
		sub.SetLabel(node.ID + ": " + sg.Label)
		sub.SetStyle(cgraph.DashedGraphStyle)

		for _, child := range sg.Nodes {
			if err := addGraphvizNode(sub, child, gvNodes); err != nil {
				return err
			}
		}
		addGraphvizEdges(g, sg.Edges, gvNodes)
	}
	return nil
}

func addGraphvizEdges(g *cgraph.Graph, edges []Edge, gvNodes map[string]*cgraph.Node) {
	for _, edge := range edges {
		fromGV, toGV := gvNodes[edge.From], gvNodes[edge.To]
		if fromGV == nil || toGV == nil {
			continue
		}
		e, err := g.CreateEdgeByName("", fromGV, toGV)
		if err == nil && edge.Label != "" {
			e.SetLabel(edge.Label)
		}
	}
}

// applyNodeStyle sets graphviz attributes based on node kind; async nodes
// are filled.
func applyNodeStyle(gvNode *cgraph.Node, node *Node) {
	switch node.Kind {
	case NodeKindAction:
		gvNode.SetShape(cgraph.BoxShape)
	case NodeKindCondition:
		gvNode.SetShape(cgraph.DiamondShape)
	case NodeKindRetry:
		gvNode.SetShape(cgraph.HexagonShape)
	case NodeKindChain, NodeKindSequence, NodeKindOrder:
		gvNode.SetShape(cgraph.EllipseShape)
	case NodeKindParallel, NodeKindLoop:
		gvNode.SetShape(cgraph.BoxShape)
	case NodeKindStart, NodeKindEnd:
		gvNode.SetShape(cgraph.CircleShape)
		gvNode.SetWidth(0.5)
		gvNode.SetHeight(0.5)
	}

	if node.Async {
		gvNode.SetStyle(cgraph.FilledNodeStyle)
		gvNode.SetFillColor("#1a5276")
		gvNode.SetFontColor("white")
	}
}
