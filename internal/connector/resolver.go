// Package connector computes rendered connector geometry: endpoints clipped
// to node boundaries, orthogonal routes, arrowheads and hit-testing.
package connector

import (
	"math"

	"github.com/rendis/diagrama/internal/geometry"
	"github.com/rendis/diagrama/internal/scene"
)

const (
	// DefaultHandleRadius is the radius of a selected connector's end handles.
	DefaultHandleRadius = 6.0
	// DefaultMinSegment is the shortest orthogonal segment kept in a route.
	DefaultMinSegment = 0.1
)

// NodeLookup resolves node ids. *scene.Store satisfies it.
type NodeLookup interface {
	Node(id string) (*scene.Node, bool)
}

// Drag is an in-progress drag of one connector end to a free position.
type Drag struct {
	EdgeID string
	End    scene.Endpoint
	Pos    geometry.Point
}

// Path is the resolved geometry of a connector.
type Path struct {
	EdgeID  string
	Routing scene.Routing
	Start   geometry.Point
	End     geometry.Point
	// Points is the polyline from Start to End; two points for direct routing.
	Points []geometry.Point
	// Dragging is set when one end follows a live drag position.
	Dragging *scene.Endpoint
}

// Midpoint returns the point halfway along the path, where labels go.
func (p Path) Midpoint() geometry.Point {
	if len(p.Points) < 2 {
		return p.Start
	}
	total := 0.0
	for i := 0; i+1 < len(p.Points); i++ {
		total += p.Points[i].Dist(p.Points[i+1])
	}
	half := total / 2
	for i := 0; i+1 < len(p.Points); i++ {
		seg := geometry.Seg(p.Points[i], p.Points[i+1])
		l := seg.Len()
		if half <= l && l > 0 {
			return seg.PointAt(half / l)
		}
		half -= l
	}
	return p.End
}

// Bounds returns the bounding rectangle of the path points.
func (p Path) Bounds() geometry.Rect {
	return geometry.Bounds(p.Points)
}

// Resolver turns connectors into paths.
type Resolver struct {
	HandleRadius float64
	MinSegment   float64
}

// NewResolver returns a resolver. Non-positive values take the defaults.
func NewResolver(handleRadius, minSegment float64) *Resolver {
	if handleRadius <= 0 {
		handleRadius = DefaultHandleRadius
	}
	if minSegment <= 0 {
		minSegment = DefaultMinSegment
	}
	return &Resolver{HandleRadius: handleRadius, MinSegment: minSegment}
}

// Resolve computes the path of e. drag, when it targets e, replaces the
// dragged end with the live position. ok is false when an endpoint node does
// not resolve; callers skip the connector for that frame.
func (r *Resolver) Resolve(nodes NodeLookup, e *scene.Edge, drag *Drag) (Path, bool) {
	if e == nil {
		return Path{}, false
	}
	if drag != nil && drag.EdgeID != e.ID {
		drag = nil
	}
	startDragged := drag != nil && drag.End == scene.EndpointStart
	endDragged := drag != nil && drag.End == scene.EndpointEnd

	var startNode, endNode *scene.Node
	var startRef, endRef geometry.Point

	if startDragged {
		startRef = drag.Pos
	} else {
		n, ok := nodes.Node(e.StartID)
		if !ok {
			return Path{}, false
		}
		startNode, startRef = n, n.Center()
	}
	if endDragged {
		endRef = drag.Pos
	} else {
		n, ok := nodes.Node(e.EndID)
		if !ok {
			return Path{}, false
		}
		endNode, endRef = n, n.Center()
	}

	start, end := startRef, endRef
	if startNode != nil {
		start = BoundaryIntersection(endRef, startRef, startNode.Bounds())
	}
	if endNode != nil {
		end = BoundaryIntersection(startRef, endRef, endNode.Bounds())
	}

	p := Path{EdgeID: e.ID, Routing: e.Routing, Start: start, End: end}
	if drag != nil {
		d := drag.End
		p.Dragging = &d
	}
	if e.Routing == scene.RoutingOrthogonal {
		p.Points = r.orthogonal(start, end)
	} else {
		p.Points = []geometry.Point{start, end}
	}
	return p, true
}

// Preview returns the rubber-band line of a new connector being dragged from
// a node to a free position.
func (r *Resolver) Preview(from *scene.Node, pos geometry.Point) Path {
	start := BoundaryIntersection(pos, from.Center(), from.Bounds())
	return Path{Routing: scene.RoutingDirect, Start: start, End: pos, Points: []geometry.Point{start, pos}}
}

// orthogonal routes horizontally then vertically, dropping degenerate segments.
func (r *Resolver) orthogonal(start, end geometry.Point) []geometry.Point {
	pts := []geometry.Point{start}
	for _, p := range []geometry.Point{geometry.Pt(end.X, start.Y), end} {
		if pts[len(pts)-1].Dist(p) >= r.MinSegment {
			pts = append(pts, p)
		}
	}
	if len(pts) == 1 {
		pts = append(pts, end)
	}
	return pts
}

// BoundaryIntersection clips the line from origin toward target to rect's
// boundary. It returns the bounded intersection closest to origin that does
// not lie behind it, or target when none qualifies or the line is degenerate.
func BoundaryIntersection(origin, target geometry.Point, rect geometry.Rect) geometry.Point {
	line := geometry.Seg(origin, target)
	u, ok := line.Unit()
	if !ok || !origin.Finite() || !target.Finite() {
		return target
	}
	best := target
	bestDist := math.Inf(1)
	for _, side := range rect.Sides() {
		p, ok := line.Intersect(side)
		if !ok {
			continue
		}
		d := p.Sub(origin)
		if d.Dot(u) < -geometry.Epsilon {
			continue
		}
		if l := d.Len(); l < bestDist {
			best, bestDist = p, l
		}
	}
	return best
}
