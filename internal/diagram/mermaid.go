package diagram

import (
	"fmt"
	"strings"

	"github.com/rendis/diagrama/internal/scene"
)

// RenderMermaid renders a Model as a Mermaid flowchart string. Containers
// with children in the model become subgraphs.
func RenderMermaid(model *Model) string {
	var b strings.Builder

	b.WriteString("graph TD\n")

	if model.Title != "" {
		b.WriteString(fmt.Sprintf("    %%%% %s\n", model.Title))
	}

	index := make(map[string]*Node, len(model.Nodes))
	for _, n := range model.Nodes {
		index[n.ID] = n
	}
	seen := make(map[string]bool, len(model.Nodes))
	for _, n := range model.Nodes {
		if _, ok := index[n.Parent]; ok {
			continue
		}
		writeMermaidNode(&b, index, seen, n, "    ")
	}

	for _, e := range model.Edges {
		label := ""
		if e.Label != "" {
			label = fmt.Sprintf("|%s|", mermaidEscapeLabel(firstLine(e.Label)))
		}
		b.WriteString(fmt.Sprintf("    %s -->%s %s\n", mermaidSafeID(e.From), label, mermaidSafeID(e.To)))
	}

	// Fill and border colors.
	for _, n := range model.Nodes {
		if n.Outline == scene.OutlineText {
			continue
		}
		b.WriteString(fmt.Sprintf("    style %s fill:%s,stroke:%s\n",
			mermaidSafeID(n.ID), mermaidColor(n.Fill), mermaidColor(n.Border)))
	}

	return b.String()
}

func writeMermaidNode(b *strings.Builder, index map[string]*Node, seen map[string]bool, n *Node, indent string) {
	if seen[n.ID] {
		return
	}
	seen[n.ID] = true

	var children []*Node
	for _, id := range n.Children {
		if c, ok := index[id]; ok {
			children = append(children, c)
		}
	}
	if len(children) == 0 {
		b.WriteString(indent + mermaidNodeDef(n) + "\n")
		return
	}
	b.WriteString(fmt.Sprintf("%ssubgraph %s[\"%s\"]\n", indent, mermaidSafeID(n.ID), mermaidEscapeLabel(nodeTitle(n))))
	for _, c := range children {
		writeMermaidNode(b, index, seen, c, indent+"    ")
	}
	b.WriteString(indent + "end\n")
}

// mermaidNodeDef returns a Mermaid node definition with the shape of the
// node's outline.
func mermaidNodeDef(n *Node) string {
	id := mermaidSafeID(n.ID)
	label := mermaidEscapeLabel(nodeTitle(n))

	switch n.Outline {
	case scene.OutlineEllipse:
		return fmt.Sprintf("%s([%q])", id, label)
	case scene.OutlineDiamond:
		return fmt.Sprintf("%s{%q}", id, label)
	case scene.OutlineText:
		return fmt.Sprintf("%s>%q]", id, label)
	case scene.OutlinePersona, scene.OutlineC4Persona:
		return fmt.Sprintf("%s((%q))", id, label)
	case scene.OutlineImage, scene.OutlineScript:
		return fmt.Sprintf("%s[[%q]]", id, label)
	default:
		return fmt.Sprintf("%s[%q]", id, label)
	}
}

func nodeTitle(n *Node) string {
	if l := firstLine(n.Label); l != "" {
		return l
	}
	return n.ID
}

// mermaidSafeID converts an item id to a Mermaid-safe identifier.
func mermaidSafeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_")
	return r.Replace(id)
}

// mermaidEscapeLabel drops the characters that end a Mermaid label.
func mermaidEscapeLabel(s string) string {
	r := strings.NewReplacer(`"`, "'", "|", "/", "\n", " ")
	return r.Replace(s)
}

// mermaidColor maps the persisted #aarrggbb form to #rrggbb, which Mermaid
// understands.
func mermaidColor(c string) string {
	if strings.HasPrefix(c, "#") && len(c) == 9 {
		return "#" + c[3:]
	}
	if c == "" || c == "transparent" {
		return "none"
	}
	return c
}
