package geometry

import "math"

// Rect is an axis-aligned rectangle anchored at its top-left corner.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"width"`
	H float64 `json:"height"`
}

// RectFromPoints returns the normalized rectangle spanning a and b.
func RectFromPoints(a, b Point) Rect {
	return Rect{
		X: math.Min(a.X, b.X),
		Y: math.Min(a.Y, b.Y),
		W: math.Abs(b.X - a.X),
		H: math.Abs(b.Y - a.Y),
	}
}

func (r Rect) Min() Point    { return Point{r.X, r.Y} }
func (r Rect) Max() Point    { return Point{r.X + r.W, r.Y + r.H} }
func (r Rect) Center() Point { return Point{r.X + r.W/2, r.Y + r.H/2} }

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool { return r.W <= 0 || r.H <= 0 }

// Contains reports whether p lies inside r, edges included.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X <= r.X+r.W && p.Y >= r.Y && p.Y <= r.Y+r.H
}

// Intersects reports whether r and o overlap with positive area.
func (r Rect) Intersects(o Rect) bool {
	return r.X < o.X+o.W && o.X < r.X+r.W && r.Y < o.Y+o.H && o.Y < r.Y+r.H
}

// Union returns the smallest rectangle containing r and o. An empty
// operand is ignored.
func (r Rect) Union(o Rect) Rect {
	if r.Empty() {
		return o
	}
	if o.Empty() {
		return r
	}
	minX := math.Min(r.X, o.X)
	minY := math.Min(r.Y, o.Y)
	maxX := math.Max(r.X+r.W, o.X+o.W)
	maxY := math.Max(r.Y+r.H, o.Y+o.H)
	return Rect{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
}

// Inset shrinks r by d on every side (negative d grows it).
func (r Rect) Inset(d float64) Rect {
	return Rect{X: r.X + d, Y: r.Y + d, W: r.W - 2*d, H: r.H - 2*d}
}

// Translate moves r by delta.
func (r Rect) Translate(delta Point) Rect {
	return Rect{X: r.X + delta.X, Y: r.Y + delta.Y, W: r.W, H: r.H}
}

// Sides returns the four boundary segments: top, right, bottom, left.
func (r Rect) Sides() [4]Segment {
	tl := Point{r.X, r.Y}
	tr := Point{r.X + r.W, r.Y}
	br := Point{r.X + r.W, r.Y + r.H}
	bl := Point{r.X, r.Y + r.H}
	return [4]Segment{
		{A: tl, B: tr},
		{A: tr, B: br},
		{A: br, B: bl},
		{A: bl, B: tl},
	}
}

// OnBoundary reports whether p lies on one of r's sides within tol.
func (r Rect) OnBoundary(p Point, tol float64) bool {
	for _, s := range r.Sides() {
		if s.DistanceTo(p) <= tol {
			return true
		}
	}
	return false
}
