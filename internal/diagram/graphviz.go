package diagram

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"

	"github.com/rendis/diagrama/internal/scene"
)

// Graphviz output formats.
const (
	FormatSVG = "svg"
	FormatPNG = "png"
	FormatDOT = "dot"
)

// RenderGraphviz lays the model out with graphviz dot and writes it to w in
// the given format. Scene positions are ignored; containers with children
// become clusters.
func RenderGraphviz(ctx context.Context, model *Model, format string, w io.Writer) error {
	var gvFormat graphviz.Format
	switch format {
	case FormatSVG:
		gvFormat = graphviz.SVG
	case FormatPNG:
		gvFormat = graphviz.PNG
	case FormatDOT:
		gvFormat = graphviz.XDOT
	default:
		return fmt.Errorf("diagram: unsupported graphviz format %q", format)
	}

	gv, err := graphviz.New(ctx)
	if err != nil {
		return fmt.Errorf("diagram: create graphviz: %w", err)
	}
	defer gv.Close()

	gv.SetLayout(graphviz.DOT)

	graph, err := gv.Graph()
	if err != nil {
		return fmt.Errorf("diagram: create graph: %w", err)
	}
	defer graph.Close()

	graph.SetRankDir(cgraph.LRRank)
	if model.Title != "" {
		graph.SetLabel(model.Title)
	}

	index := make(map[string]*Node, len(model.Nodes))
	for _, n := range model.Nodes {
		index[n.ID] = n
	}
	gvNodes := make(map[string]*cgraph.Node, len(model.Nodes))
	for _, n := range model.Nodes {
		if _, ok := index[n.Parent]; ok {
			continue
		}
		if err := addGraphvizNode(graph, index, gvNodes, n); err != nil {
			return err
		}
	}

	for _, e := range model.Edges {
		from, to := gvNodes[e.From], gvNodes[e.To]
		if from == nil || to == nil {
			continue
		}
		gvEdge, err := graph.CreateEdgeByName(e.ID, from, to)
		if err != nil {
			return fmt.Errorf("diagram: create edge %s: %w", e.ID, err)
		}
		if e.Label != "" {
			gvEdge.SetLabel(firstLine(e.Label))
		}
		if c := graphvizColor(e.Color); c != "" {
			gvEdge.SetColor(c)
		}
		if e.Width > 0 {
			gvEdge.SetPenWidth(e.Width)
		}
		if !e.HasArrow {
			gvEdge.SetArrowHead(cgraph.NoneArrow)
		}
	}

	if err := gv.Render(ctx, graph, gvFormat, w); err != nil {
		return fmt.Errorf("diagram: render %s: %w", format, err)
	}
	return nil
}

// addGraphvizNode creates n in g. A container with children in the model
// gets a cluster holding its own node and its children.
func addGraphvizNode(g *cgraph.Graph, index map[string]*Node, gvNodes map[string]*cgraph.Node, n *Node) error {
	if _, done := gvNodes[n.ID]; done {
		return nil
	}

	var children []*Node
	for _, id := range n.Children {
		if c, ok := index[id]; ok {
			children = append(children, c)
		}
	}

	target := g
	if len(children) > 0 {
		sub, err := g.CreateSubGraphByName("cluster_" + n.ID)
		if err != nil {
			return fmt.Errorf("diagram: create cluster %s: %w", n.ID, err)
		}
		sub.SetLabel(nodeTitle(n))
		sub.SetStyle(cgraph.DashedGraphStyle)
		target = sub
	}

	gvNode, err := target.CreateNodeByName(n.ID)
	if err != nil {
		return fmt.Errorf("diagram: create node %s: %w", n.ID, err)
	}
	gvNode.SetLabel(nodeTitle(n))
	applyNodeStyle(gvNode, n)
	gvNodes[n.ID] = gvNode

	for _, c := range children {
		if err := addGraphvizNode(target, index, gvNodes, c); err != nil {
			return err
		}
	}
	return nil
}

// applyNodeStyle sets graphviz attributes from the node outline and colors.
func applyNodeStyle(gvNode *cgraph.Node, n *Node) {
	switch n.Outline {
	case scene.OutlineEllipse:
		gvNode.SetShape(cgraph.EllipseShape)
	case scene.OutlineDiamond:
		gvNode.SetShape(cgraph.DiamondShape)
	case scene.OutlineText:
		gvNode.SetShape(cgraph.PlainTextShape)
	case scene.OutlineFrame:
		gvNode.SetShape(cgraph.TabShape)
	case scene.OutlinePersona, scene.OutlineC4Persona:
		gvNode.SetShape(cgraph.CircleShape)
	case scene.OutlineScript:
		gvNode.SetShape(cgraph.ComponentShape)
	default:
		gvNode.SetShape(cgraph.BoxShape)
	}

	if n.Outline != scene.OutlineText {
		gvNode.SetStyle(cgraph.FilledNodeStyle)
		if c := graphvizColor(n.Fill); c != "" {
			gvNode.SetFillColor(c)
		}
		if c := graphvizColor(n.Border); c != "" {
			gvNode.SetColor(c)
		}
	}
	if n.FontSize > 0 {
		gvNode.SetFontSize(n.FontSize)
	}
}

// graphvizColor converts the persisted #aarrggbb form to graphviz's
// #rrggbbaa. Other values pass through.
func graphvizColor(c string) string {
	c = strings.TrimSpace(c)
	if strings.HasPrefix(c, "#") && len(c) == 9 {
		return "#" + c[3:] + c[1:3]
	}
	if c == "transparent" {
		return "#ffffff00"
	}
	return c
}
