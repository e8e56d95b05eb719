package connector

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/diagrama/internal/geometry"
	"github.com/rendis/diagrama/internal/scene"
)

func newScene(t *testing.T) (*scene.Store, *scene.Node, *scene.Node, *scene.Edge) {
	t.Helper()
	s := scene.NewStore(scene.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	a, err := s.AddNode("rectangle", geometry.Pt(0, 0), nil)
	require.NoError(t, err)
	b, err := s.AddNode("ellipse", geometry.Pt(300, 0), nil)
	require.NoError(t, err)
	e := s.AddEdge(a.ID, b.ID)
	require.NotNil(t, e)
	return s, a, b, e
}

func assertPoint(t *testing.T, want, got geometry.Point) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, 1e-9, "x")
	assert.InDelta(t, want.Y, got.Y, 1e-9, "y")
}

func TestResolve_FacingSides(t *testing.T) {
	s, a, b, e := newScene(t)
	r := NewResolver(0, 0)

	p, ok := r.Resolve(s, e, nil)
	require.True(t, ok)
	assertPoint(t, geometry.Pt(100, 25), p.Start)
	assertPoint(t, geometry.Pt(300, 25), p.End)
	assert.Len(t, p.Points, 2)

	assert.True(t, a.Bounds().OnBoundary(p.Start, 1e-9))
	assert.True(t, b.Bounds().OnBoundary(p.End, 1e-9))
	assert.Less(t, p.Start.Dist(p.End), a.Center().Dist(b.Center()))
}

func TestResolve_DiagonalStaysOnBoundary(t *testing.T) {
	s, a, b, e := newScene(t)
	require.NoError(t, s.MoveNode(b.ID, geometry.Pt(250, 300)))
	r := NewResolver(0, 0)

	p, ok := r.Resolve(s, e, nil)
	require.True(t, ok)
	assert.True(t, a.Bounds().OnBoundary(p.Start, 1e-6))
	assert.True(t, b.Bounds().OnBoundary(p.End, 1e-6))
	assert.Less(t, p.Start.Dist(p.End), a.Center().Dist(b.Center()))
}

func TestResolve_MissingEndpointIsUnresolved(t *testing.T) {
	s, _, _, e := newScene(t)
	ghost := scene.DefaultEdge(e.StartID, "item_404")
	_, ok := NewResolver(0, 0).Resolve(s, ghost, nil)
	assert.False(t, ok)
	_, ok = NewResolver(0, 0).Resolve(s, nil, nil)
	assert.False(t, ok)
}

func TestResolve_LiveDrag(t *testing.T) {
	s, _, _, e := newScene(t)
	r := NewResolver(0, 0)

	drag := &Drag{EdgeID: e.ID, End: scene.EndpointEnd, Pos: geometry.Pt(200, 200)}
	p, ok := r.Resolve(s, e, drag)
	require.True(t, ok)
	assertPoint(t, geometry.Pt(200, 200), p.End)
	require.NotNil(t, p.Dragging)

	_, arrow := ArrowHead(p, 10)
	assert.False(t, arrow, "no arrow while the end is dragged")

	other := &Drag{EdgeID: "item_77", End: scene.EndpointEnd, Pos: geometry.Pt(200, 200)}
	p, _ = r.Resolve(s, e, other)
	assertPoint(t, geometry.Pt(300, 25), p.End)
}

func TestResolve_Orthogonal(t *testing.T) {
	s, _, b, e := newScene(t)
	orth := scene.RoutingOrthogonal
	require.NoError(t, s.SetEdgeStyle(e.ID, scene.EdgeStyle{Routing: &orth}))
	r := NewResolver(0, 0)

	p, ok := r.Resolve(s, e, nil)
	require.True(t, ok)
	// aligned centers: the corner coincides with the end and is dropped
	assert.Len(t, p.Points, 2)

	require.NoError(t, s.MoveNode(b.ID, geometry.Pt(300, 300)))
	p, ok = r.Resolve(s, e, nil)
	require.True(t, ok)
	require.Len(t, p.Points, 3)
	assert.Equal(t, p.Start.Y, p.Points[1].Y)
	assert.Equal(t, p.End.X, p.Points[1].X)
}

func TestBoundaryIntersection_Fallbacks(t *testing.T) {
	rect := geometry.Rect{X: 0, Y: 0, W: 100, H: 50}
	c := rect.Center()
	assert.Equal(t, c, BoundaryIntersection(c, c, rect), "coincident points")
	// origin inside the rect on the center: no side between them
	assert.Equal(t, c, BoundaryIntersection(geometry.Pt(40, 25), c, rect))
}

func TestHitTesting(t *testing.T) {
	s, _, _, e := newScene(t)
	r := NewResolver(6, 0)
	p, ok := r.Resolve(s, e, nil)
	require.True(t, ok)

	end, near := r.HandleAt(p, geometry.Pt(103, 25))
	assert.True(t, near)
	assert.Equal(t, scene.EndpointStart, end)
	end, near = r.HandleAt(p, geometry.Pt(296, 28))
	assert.True(t, near)
	assert.Equal(t, scene.EndpointEnd, end)
	_, near = r.HandleAt(p, geometry.Pt(200, 25))
	assert.False(t, near)

	assert.True(t, r.Contains(p, geometry.Pt(200, 32)))
	assert.False(t, r.Contains(p, geometry.Pt(200, 33)))

	hit, ok := r.EdgeAt(s, geometry.Pt(200, 27))
	require.True(t, ok)
	assert.Equal(t, e.ID, hit.ID)
}

func TestArrowHead(t *testing.T) {
	p := Path{Points: []geometry.Point{geometry.Pt(0, 0), geometry.Pt(100, 0)}}
	tri, ok := ArrowHead(p, 10)
	require.True(t, ok)
	assert.Equal(t, geometry.Pt(100, 0), tri[0])
	assert.Less(t, tri[1].X, 100.0)
	assert.InDelta(t, -tri[1].Y, tri[2].Y, 1e-9)

	_, ok = ArrowHead(Path{Points: []geometry.Point{geometry.Pt(0, 0), geometry.Pt(5, 0)}}, 10)
	assert.False(t, ok)
}

func TestPathMidpoint(t *testing.T) {
	p := Path{Start: geometry.Pt(0, 0), End: geometry.Pt(10, 10),
		Points: []geometry.Point{geometry.Pt(0, 0), geometry.Pt(10, 0), geometry.Pt(10, 10)}}
	assertPoint(t, geometry.Pt(10, 0), p.Midpoint())
}
