package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSegmentIntersect(t *testing.T) {
	a := Seg(Pt(0, 0), Pt(10, 10))
	b := Seg(Pt(0, 10), Pt(10, 0))
	p, ok := a.Intersect(b)
	assert.True(t, ok)
	assert.InDelta(t, 5, p.X, 1e-9)
	assert.InDelta(t, 5, p.Y, 1e-9)

	_, ok = a.Intersect(Seg(Pt(0, 1), Pt(10, 11)))
	assert.False(t, ok, "parallel")

	_, ok = Seg(Pt(0, 0), Pt(1, 0)).Intersect(Seg(Pt(5, -1), Pt(5, 1)))
	assert.False(t, ok, "outside bounds")
}

func TestSegmentDistance(t *testing.T) {
	s := Seg(Pt(0, 0), Pt(10, 0))
	assert.InDelta(t, 3, s.DistanceTo(Pt(5, 3)), 1e-9)
	assert.InDelta(t, 5, s.DistanceTo(Pt(-3, 4)), 1e-9)
	assert.InDelta(t, 0, Seg(Pt(1, 1), Pt(1, 1)).DistanceTo(Pt(1, 1)), 1e-9)
}

func TestRectSidesAndUnion(t *testing.T) {
	r := Rect{X: 0, Y: 0, W: 100, H: 50}
	assert.Equal(t, Pt(50, 25), r.Center())
	assert.True(t, r.Contains(Pt(100, 50)))
	assert.False(t, r.Contains(Pt(101, 0)))
	assert.True(t, r.OnBoundary(Pt(100, 25), 1e-9))

	u := r.Union(Rect{X: 200, Y: -10, W: 10, H: 10})
	assert.Equal(t, Rect{X: 0, Y: -10, W: 210, H: 60}, u)
	assert.Equal(t, r, Rect{}.Union(r))
}

func TestPolylineDistance(t *testing.T) {
	pts := []Point{Pt(0, 0), Pt(10, 0), Pt(10, 10)}
	assert.InDelta(t, 2, PolylineDistance(pts, Pt(12, 5)), 1e-9)
	assert.True(t, math.IsInf(PolylineDistance(nil, Pt(0, 0)), 1))
	assert.Equal(t, Rect{X: 0, Y: 0, W: 10, H: 10}, Bounds(pts))
}
