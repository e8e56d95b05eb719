package diagram

import (
	"fmt"
	"strings"
)

// RenderOutline renders a Model as a text tree of containers and their
// children, followed by the connector list.
func RenderOutline(model *Model) string {
	var b strings.Builder

	if model.Title != "" {
		b.WriteString(fmt.Sprintf("=== %s ===\n", model.Title))
	}
	if model.Context != "" {
		b.WriteString(model.Context)
		b.WriteByte('\n')
	}

	index := make(map[string]*Node, len(model.Nodes))
	for _, n := range model.Nodes {
		index[n.ID] = n
	}
	var roots []*Node
	for _, n := range model.Nodes {
		if _, ok := index[n.Parent]; !ok {
			roots = append(roots, n)
		}
	}

	seen := make(map[string]bool, len(model.Nodes))
	for i, n := range roots {
		renderOutlineNode(&b, index, seen, n, "", i == len(roots)-1)
	}

	if len(model.Edges) > 0 {
		b.WriteString("\nConnectors:\n")
		for _, e := range model.Edges {
			label := ""
			if e.Label != "" {
				label = fmt.Sprintf("  %q", firstLine(e.Label))
			}
			routing := ""
			if e.Orthogonal {
				routing = " (orthogonal)"
			}
			b.WriteString(fmt.Sprintf("  %s: %s ─→ %s%s%s\n", e.ID, e.From, e.To, routing, label))
		}
	}
	return b.String()
}

// renderOutlineNode writes one tree line and recurses into children. seen
// stops parent cycles.
func renderOutlineNode(b *strings.Builder, index map[string]*Node, seen map[string]bool, n *Node, prefix string, last bool) {
	if seen[n.ID] {
		return
	}
	seen[n.ID] = true

	branch, indent := "├─ ", "│  "
	if last {
		branch, indent = "└─ ", "   "
	}
	b.WriteString(prefix + branch + outlineLine(n) + "\n")

	var children []*Node
	for _, id := range n.Children {
		if c, ok := index[id]; ok && !seen[id] {
			children = append(children, c)
		}
	}
	for i, c := range children {
		renderOutlineNode(b, index, seen, c, prefix+indent, i == len(children)-1)
	}
}

func outlineLine(n *Node) string {
	line := fmt.Sprintf("%s [%s]", n.ID, n.Kind)
	if label := firstLine(n.Label); label != "" {
		line += fmt.Sprintf(" %q", label)
	}
	return line + fmt.Sprintf(" at (%g,%g) %gx%g", n.Rect.X, n.Rect.Y, n.Rect.W, n.Rect.H)
}
