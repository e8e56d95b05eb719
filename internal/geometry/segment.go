package geometry

import "math"

// Segment is a straight line from A to B.
type Segment struct {
	A Point `json:"a"`
	B Point `json:"b"`
}

// Seg is shorthand for Segment{A: a, B: b}.
func Seg(a, b Point) Segment {
	return Segment{A: a, B: b}
}

// Vector returns B - A.
func (s Segment) Vector() Point { return s.B.Sub(s.A) }

// Len returns the segment length.
func (s Segment) Len() float64 { return s.Vector().Len() }

// PointAt returns A + t*(B-A).
func (s Segment) PointAt(t float64) Point { return s.A.Add(s.Vector().Scale(t)) }

// Midpoint returns the point halfway along the segment.
func (s Segment) Midpoint() Point { return s.PointAt(0.5) }

// Unit returns the unit direction vector. ok is false for a zero-length segment.
func (s Segment) Unit() (u Point, ok bool) {
	l := s.Len()
	if l < Epsilon {
		return Point{}, false
	}
	return s.Vector().Scale(1 / l), true
}

// Intersect returns the intersection point of two bounded segments.
// Parallel and collinear segments report no intersection.
func (s Segment) Intersect(o Segment) (Point, bool) {
	r := s.Vector()
	q := o.Vector()
	denom := cross(r, q)
	if math.Abs(denom) < Epsilon*Epsilon {
		return Point{}, false
	}
	diff := o.A.Sub(s.A)
	t := cross(diff, q) / denom
	u := cross(diff, r) / denom
	if t < -Epsilon || t > 1+Epsilon || u < -Epsilon || u > 1+Epsilon {
		return Point{}, false
	}
	return s.PointAt(clamp01(t)), true
}

// ClosestPoint returns the point on the segment nearest to p.
func (s Segment) ClosestPoint(p Point) Point {
	v := s.Vector()
	l2 := v.Dot(v)
	if l2 < Epsilon*Epsilon {
		return s.A
	}
	t := clamp01(p.Sub(s.A).Dot(v) / l2)
	return s.PointAt(t)
}

// DistanceTo returns the distance from p to the segment.
func (s Segment) DistanceTo(p Point) float64 {
	return s.ClosestPoint(p).Dist(p)
}

// PolylineDistance returns the minimum distance from p to the polyline
// through pts. A single point degenerates to point distance; no points yields +Inf.
func PolylineDistance(pts []Point, p Point) float64 {
	switch len(pts) {
	case 0:
		return math.Inf(1)
	case 1:
		return pts[0].Dist(p)
	}
	best := math.Inf(1)
	for i := 0; i+1 < len(pts); i++ {
		if d := Seg(pts[i], pts[i+1]).DistanceTo(p); d < best {
			best = d
		}
	}
	return best
}

// Bounds returns the bounding rectangle of pts.
func Bounds(pts []Point) Rect {
	if len(pts) == 0 {
		return Rect{}
	}
	minP, maxP := pts[0], pts[0]
	for _, p := range pts[1:] {
		minP.X = math.Min(minP.X, p.X)
		minP.Y = math.Min(minP.Y, p.Y)
		maxP.X = math.Max(maxP.X, p.X)
		maxP.Y = math.Max(maxP.Y, p.Y)
	}
	return RectFromPoints(minP, maxP)
}

func cross(a, b Point) float64 { return a.X*b.Y - a.Y*b.X }

func clamp01(t float64) float64 {
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}
