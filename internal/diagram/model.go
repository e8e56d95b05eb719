package diagram

import (
	"github.com/rendis/diagrama/internal/geometry"
	"github.com/rendis/diagrama/internal/scene"
	"github.com/rendis/diagrama/internal/script"
)

// Model is the intermediate representation used by all renderers. It is a
// flat, read-only copy of one view of a diagram: the visible items of the
// entered container, or every item when built with All.
type Model struct {
	Title string
	// Bounds is the union of the node rectangles, handles included.
	Bounds geometry.Rect
	// Nodes are in paint order: ascending z.
	Nodes []*Node
	Edges []*Edge
	// Context is the breadcrumb of the entered container, "/" at top level.
	Context string
}

// Node is one shape of the diagram.
type Node struct {
	ID        string
	Label     string
	Kind      scene.Kind
	Outline   scene.Outline
	Rect      geometry.Rect
	Z         float64
	Fill      string
	Border    string
	FontSize  float64
	Container bool
	Parent    string
	Children  []string
	ImagePath string
	// Script is the evaluated display list of a script item.
	Script *script.Program
}

// Edge is one connector with its resolved path.
type Edge struct {
	ID         string
	From       string
	To         string
	Label      string
	FontSize   int
	Color      string
	Width      float64
	Orthogonal bool
	Points     []geometry.Point
	LabelAt    geometry.Point
	// Arrow is the arrowhead triangle, tip first. HasArrow is false when the
	// path is too short to carry one.
	Arrow    [3]geometry.Point
	HasArrow bool
}

// Node returns the node with id, or nil.
func (m *Model) Node(id string) *Node {
	for _, n := range m.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}
