package scene

import (
	"fmt"
	"math"

	"github.com/rendis/diagrama/internal/geometry"
)

// MinNodeSize is the smallest width or height an interactive resize may produce.
const MinNodeSize = 10.0

// HandleSize is the side length of a resize handle square.
const HandleSize = 8.0

// Node is a placeable diagram item.
type Node struct {
	ID                string
	Kind              Kind
	Position          geometry.Point
	Width             float64
	Height            float64
	Z                 float64
	Properties        map[string]any
	ParentContainerID string
	ChildIDs          []string
}

// Bounds returns the node rectangle in scene coordinates, without handles.
func (n *Node) Bounds() geometry.Rect {
	return geometry.Rect{X: n.Position.X, Y: n.Position.Y, W: n.Width, H: n.Height}
}

// Center returns the center of Bounds.
func (n *Node) Center() geometry.Point {
	return n.Bounds().Center()
}

// HandleBounds returns Bounds grown by the resize handle margin.
func (n *Node) HandleBounds() geometry.Rect {
	return n.Bounds().Inset(-HandleSize)
}

// IsContainer reports whether the node can hold children.
func (n *Node) IsContainer() bool {
	return n.Kind == KindContainer
}

// Text returns the display text, or "" if unset.
func (n *Node) Text() string {
	return PropString(n.Properties, "text", "")
}

// Label returns the display text, falling back to the id.
func (n *Node) Label() string {
	if t := n.Text(); t != "" {
		return t
	}
	return n.ID
}

// FontSize returns the font size in points.
func (n *Node) FontSize() float64 {
	return PropFloat(n.Properties, "font_size", 10)
}

// HasChild reports whether id is listed in ChildIDs.
func (n *Node) HasChild(id string) bool {
	for _, c := range n.ChildIDs {
		if c == id {
			return true
		}
	}
	return false
}

func (n *Node) addChild(id string) {
	if !n.HasChild(id) {
		n.ChildIDs = append(n.ChildIDs, id)
	}
}

func (n *Node) removeChild(id string) {
	out := n.ChildIDs[:0]
	for _, c := range n.ChildIDs {
		if c != id {
			out = append(out, c)
		}
	}
	n.ChildIDs = out
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	c := *n
	c.Properties = CloneProps(n.Properties)
	if n.ChildIDs != nil {
		c.ChildIDs = append([]string(nil), n.ChildIDs...)
	}
	return &c
}

func (n *Node) String() string {
	return fmt.Sprintf("%s(%s)", n.Kind, n.ID)
}

// Handle names one of the eight resize handles.
type Handle string

const (
	HandleNone         Handle = ""
	HandleTopLeft      Handle = "top_left"
	HandleTopRight     Handle = "top_right"
	HandleBottomLeft   Handle = "bottom_left"
	HandleBottomRight  Handle = "bottom_right"
	HandleTopMiddle    Handle = "top_middle"
	HandleBottomMiddle Handle = "bottom_middle"
	HandleLeftMiddle   Handle = "left_middle"
	HandleRightMiddle  Handle = "right_middle"
)

// HandleRect is a resize handle and its scene rectangle.
type HandleRect struct {
	Handle Handle
	Rect   geometry.Rect
}

// Handles returns the handle rectangles in scene coordinates, in hit-test order.
func (n *Node) Handles() []HandleRect {
	s := HandleSize
	x, y, w, h := n.Position.X, n.Position.Y, n.Width, n.Height
	return []HandleRect{
		{HandleTopLeft, geometry.Rect{X: x - s, Y: y - s, W: s, H: s}},
		{HandleTopRight, geometry.Rect{X: x + w, Y: y - s, W: s, H: s}},
		{HandleBottomLeft, geometry.Rect{X: x - s, Y: y + h, W: s, H: s}},
		{HandleBottomRight, geometry.Rect{X: x + w, Y: y + h, W: s, H: s}},
		{HandleTopMiddle, geometry.Rect{X: x + w/2 - s/2, Y: y - s, W: s, H: s}},
		{HandleBottomMiddle, geometry.Rect{X: x + w/2 - s/2, Y: y + h, W: s, H: s}},
		{HandleLeftMiddle, geometry.Rect{X: x - s, Y: y + h/2 - s/2, W: s, H: s}},
		{HandleRightMiddle, geometry.Rect{X: x + w, Y: y + h/2 - s/2, W: s, H: s}},
	}
}

// HandleAt returns the resize handle under p (scene coordinates), if any.
func (n *Node) HandleAt(p geometry.Point) Handle {
	for _, h := range n.Handles() {
		if h.Rect.Contains(p) {
			return h.Handle
		}
	}
	return HandleNone
}

// ResizeRect applies a drag of delta on handle h to the original rectangle,
// keeping the opposite edges fixed and clamping to MinNodeSize.
func ResizeRect(orig geometry.Rect, h Handle, delta geometry.Point) geometry.Rect {
	left, top := orig.X, orig.Y
	right, bottom := orig.X+orig.W, orig.Y+orig.H
	switch h {
	case HandleTopLeft:
		left, top = left+delta.X, top+delta.Y
	case HandleTopRight:
		right, top = right+delta.X, top+delta.Y
	case HandleBottomLeft:
		left, bottom = left+delta.X, bottom+delta.Y
	case HandleBottomRight:
		right, bottom = right+delta.X, bottom+delta.Y
	case HandleTopMiddle:
		top += delta.Y
	case HandleBottomMiddle:
		bottom += delta.Y
	case HandleLeftMiddle:
		left += delta.X
	case HandleRightMiddle:
		right += delta.X
	default:
		return orig
	}
	if right-left < MinNodeSize {
		if left != orig.X {
			left = right - MinNodeSize
		} else {
			right = left + MinNodeSize
		}
	}
	if bottom-top < MinNodeSize {
		if top != orig.Y {
			top = bottom - MinNodeSize
		} else {
			bottom = top + MinNodeSize
		}
	}
	return geometry.Rect{X: left, Y: top, W: right - left, H: bottom - top}
}

// PropString reads a string property.
func PropString(props map[string]any, key, def string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return def
}

// PropFloat reads a numeric property regardless of its Go numeric type.
func PropFloat(props map[string]any, key string, def float64) float64 {
	switch v := props[key].(type) {
	case float64:
		if !math.IsNaN(v) {
			return v
		}
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case int32:
		return float64(v)
	}
	return def
}

// CloneProps returns a shallow copy of a property map. Values are primitives.
func CloneProps(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}
