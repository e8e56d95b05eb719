package connector

import (
	"math"

	"github.com/rendis/diagrama/internal/geometry"
	"github.com/rendis/diagrama/internal/scene"
)

// HandleAt reports which end handle of p, if any, lies within 1.5 handle
// radii of pt. The start handle wins ties.
func (r *Resolver) HandleAt(p Path, pt geometry.Point) (scene.Endpoint, bool) {
	limit := r.HandleRadius * 1.5
	if pt.Dist(p.Start) < limit {
		return scene.EndpointStart, true
	}
	if pt.Dist(p.End) < limit {
		return scene.EndpointEnd, true
	}
	return scene.EndpointStart, false
}

// Contains reports whether pt lies inside the stroked corridor around the
// path. The corridor is 2.5 handle radii wide.
func (r *Resolver) Contains(p Path, pt geometry.Point) bool {
	if len(p.Points) == 0 {
		return false
	}
	return geometry.PolylineDistance(p.Points, pt) <= r.HandleRadius*2.5/2
}

// ArrowHead returns the triangle drawn at the end of the path: tip first.
// ok is false while the end is being dragged or when the last segment is not
// longer than size.
func ArrowHead(p Path, size float64) (tri [3]geometry.Point, ok bool) {
	if size <= 0 || len(p.Points) < 2 {
		return tri, false
	}
	if p.Dragging != nil && *p.Dragging == scene.EndpointEnd {
		return tri, false
	}
	from := p.Points[len(p.Points)-2]
	tip := p.Points[len(p.Points)-1]
	seg := geometry.Seg(from, tip)
	if seg.Len() <= size {
		return tri, false
	}
	angle := math.Atan2(tip.Y-from.Y, tip.X-from.X)
	left := tip.Sub(geometry.Pt(math.Cos(angle+math.Pi/6)*size, math.Sin(angle+math.Pi/6)*size))
	right := tip.Sub(geometry.Pt(math.Cos(angle-math.Pi/6)*size, math.Sin(angle-math.Pi/6)*size))
	return [3]geometry.Point{tip, left, right}, true
}

// ResolveAll resolves every visible connector of store, skipping the ones
// whose endpoints do not resolve.
func (r *Resolver) ResolveAll(store *scene.Store, drag *Drag) []Path {
	var out []Path
	for _, e := range store.VisibleEdges() {
		if p, ok := r.Resolve(store, e, drag); ok {
			out = append(out, p)
		}
	}
	return out
}

// EdgeAt returns the topmost visible connector whose corridor contains pt.
func (r *Resolver) EdgeAt(store *scene.Store, pt geometry.Point) (*scene.Edge, bool) {
	edges := store.VisibleEdges()
	for i := len(edges) - 1; i >= 0; i-- {
		if p, ok := r.Resolve(store, edges[i], nil); ok && r.Contains(p, pt) {
			return edges[i], true
		}
	}
	return nil, false
}
