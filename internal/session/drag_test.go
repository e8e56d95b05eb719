package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/diagrama/internal/geometry"
	"github.com/rendis/diagrama/internal/scene"
	"github.com/rendis/diagrama/pkg/schema"
)

func TestMoveDrag_CancelRollsBack(t *testing.T) {
	s := newSession(t)
	a := add(t, s, "rectangle", 0, 0)
	b := add(t, s, "rectangle", 300, 0)
	entries := s.History().Len()

	require.NoError(t, s.BeginMove([]string{a.ID, b.ID, a.ID}, geometry.Pt(50, 25)))
	kind, ok := s.Dragging()
	assert.True(t, ok)
	assert.Equal(t, "move", kind)

	require.NoError(t, s.UpdateDrag(geometry.Pt(80, 45)))
	assert.Equal(t, geometry.Pt(30, 20), a.Position)
	assert.Equal(t, geometry.Pt(330, 20), b.Position)

	s.CancelDrag()
	assert.Equal(t, geometry.Pt(0, 0), a.Position)
	assert.Equal(t, geometry.Pt(300, 0), b.Position)
	assert.Equal(t, entries, s.History().Len())
	_, ok = s.Dragging()
	assert.False(t, ok)
}

func TestMoveDrag_CommitsOnlyRealMoves(t *testing.T) {
	s := newSession(t)
	a := add(t, s, "rectangle", 0, 0)
	entries := s.History().Len()

	require.NoError(t, s.BeginMove([]string{a.ID}, geometry.Pt(50, 25)))
	require.NoError(t, s.EndDrag(geometry.Pt(50, 25)))
	assert.Equal(t, entries, s.History().Len(), "a click is not a move")

	require.NoError(t, s.BeginMove([]string{a.ID}, geometry.Pt(50, 25)))
	require.NoError(t, s.EndDrag(geometry.Pt(150, 125)))
	assert.Equal(t, geometry.Pt(100, 100), a.Position)
	assert.Equal(t, entries+1, s.History().Len())
	assert.Equal(t, "Move item_1", descriptions(s)[entries])
}

func TestMoveDrag_Errors(t *testing.T) {
	s := newSession(t)
	assert.True(t, schema.HasCode(s.BeginMove([]string{"item_7"}, geometry.Pt(0, 0)), schema.ErrCodeNotFound))
	assert.True(t, schema.HasCode(s.BeginMove(nil, geometry.Pt(0, 0)), schema.ErrCodeValidation))
	assert.NoError(t, s.UpdateDrag(geometry.Pt(1, 1)), "no drag in progress is a no-op")
	assert.NoError(t, s.EndDrag(geometry.Pt(1, 1)))
}

func TestResizeDrag(t *testing.T) {
	s := newSession(t)
	a := add(t, s, "rectangle", 0, 0)

	require.NoError(t, s.BeginResize(a.ID, scene.HandleNone, geometry.Pt(104, 54)))
	require.NoError(t, s.UpdateDrag(geometry.Pt(154, 104)))
	assert.Equal(t, 150.0, a.Width)
	assert.Equal(t, 100.0, a.Height)

	s.CancelDrag()
	assert.Equal(t, geometry.Rect{X: 0, Y: 0, W: 100, H: 50}, a.Bounds())

	require.NoError(t, s.BeginResize(a.ID, scene.HandleTopLeft, geometry.Pt(-4, -4)))
	require.NoError(t, s.EndDrag(geometry.Pt(500, 500)))
	assert.Equal(t, scene.MinNodeSize, a.Width)
	assert.Equal(t, scene.MinNodeSize, a.Height)
	assert.Equal(t, "Resize item_1", descriptions(s)[s.History().Current()])

	err := s.BeginResize(a.ID, scene.HandleNone, geometry.Pt(1000, 1000))
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))
}

func reconnectScene(t *testing.T) (*DocumentSession, *scene.Node, *scene.Node, *scene.Node, *scene.Edge) {
	t.Helper()
	s := newSession(t)
	a := add(t, s, "rectangle", 0, 0)
	b := add(t, s, "rectangle", 300, 0)
	c := add(t, s, "rectangle", 0, 300)
	e, err := s.Connect(a.ID, b.ID)
	require.NoError(t, err)
	return s, a, b, c, e
}

func TestReconnectDrag_FollowsPointer(t *testing.T) {
	s, _, _, _, e := reconnectScene(t)

	require.NoError(t, s.BeginReconnectAt(e.ID, geometry.Pt(301, 25)))
	require.NoError(t, s.UpdateDrag(geometry.Pt(150, 200)))

	paths := s.Paths()
	require.Len(t, paths, 1)
	assertNear(t, geometry.Pt(150, 200), paths[0].End)
	require.NotNil(t, paths[0].Dragging)
	assert.Equal(t, scene.EndpointEnd, *paths[0].Dragging)
}

func TestReconnectDrag_DropRules(t *testing.T) {
	s, a, b, c, e := reconnectScene(t)
	entries := s.History().Len()

	// empty space
	require.NoError(t, s.BeginReconnect(e.ID, scene.EndpointEnd, geometry.Pt(300, 25)))
	require.NoError(t, s.EndDrag(geometry.Pt(1000, 1000)))
	assert.Equal(t, b.ID, e.EndID)

	// onto the other end
	require.NoError(t, s.BeginReconnect(e.ID, scene.EndpointEnd, geometry.Pt(300, 25)))
	require.NoError(t, s.EndDrag(geometry.Pt(50, 25)))
	assert.Equal(t, b.ID, e.EndID)

	// back onto the same node
	require.NoError(t, s.BeginReconnect(e.ID, scene.EndpointEnd, geometry.Pt(300, 25)))
	require.NoError(t, s.EndDrag(geometry.Pt(350, 25)))
	assert.Equal(t, b.ID, e.EndID)
	assert.Equal(t, entries, s.History().Len())

	require.NoError(t, s.BeginReconnect(e.ID, scene.EndpointEnd, geometry.Pt(300, 25)))
	require.NoError(t, s.EndDrag(geometry.Pt(50, 325)))
	assert.Equal(t, c.ID, e.EndID)
	assert.Equal(t, a.ID, e.StartID)
	assert.Equal(t, entries+1, s.History().Len())
	assert.Equal(t, "Reconnect "+e.ID, descriptions(s)[entries])
}

func TestReconnectDrag_Errors(t *testing.T) {
	s, _, _, _, e := reconnectScene(t)
	assert.True(t, schema.HasCode(s.BeginReconnect("item_99", scene.EndpointStart, geometry.Pt(0, 0)), schema.ErrCodeNotFound))
	assert.True(t, schema.HasCode(s.BeginReconnectAt(e.ID, geometry.Pt(200, 25)), schema.ErrCodeValidation))
}

func TestConnectDrag(t *testing.T) {
	s, a, _, c, _ := reconnectScene(t)

	_, ok := s.ConnectPreview()
	assert.False(t, ok)

	require.NoError(t, s.BeginConnect(a.ID, geometry.Pt(50, 25)))
	require.NoError(t, s.UpdateDrag(geometry.Pt(50, 200)))
	preview, ok := s.ConnectPreview()
	require.True(t, ok)
	assertNear(t, geometry.Pt(50, 50), preview.Start)
	assertNear(t, geometry.Pt(50, 200), preview.End)

	require.NoError(t, s.EndDrag(geometry.Pt(50, 25)))
	_, edges := s.Store().Len()
	assert.Equal(t, 1, edges, "dropping on the source adds nothing")

	require.NoError(t, s.BeginConnect(a.ID, geometry.Pt(50, 25)))
	require.NoError(t, s.EndDrag(geometry.Pt(50, 325)))
	_, edges = s.Store().Len()
	assert.Equal(t, 2, edges)
	assert.Equal(t, "Connect item_1 to "+c.ID, descriptions(s)[s.History().Current()])
}

func TestBeginDrag_CancelsPreviousDrag(t *testing.T) {
	s := newSession(t)
	a := add(t, s, "rectangle", 0, 0)
	b := add(t, s, "rectangle", 300, 0)

	require.NoError(t, s.BeginMove([]string{a.ID}, geometry.Pt(0, 0)))
	require.NoError(t, s.UpdateDrag(geometry.Pt(40, 40)))
	require.NoError(t, s.BeginMove([]string{b.ID}, geometry.Pt(300, 0)))
	assert.Equal(t, geometry.Pt(0, 0), a.Position)
}

func TestPreview_DropsDrag(t *testing.T) {
	s := newSession(t)
	a := add(t, s, "rectangle", 0, 0)
	require.NoError(t, s.BeginMove([]string{a.ID}, geometry.Pt(0, 0)))
	require.NoError(t, s.PreviewHistory(0))
	_, ok := s.Dragging()
	assert.False(t, ok)
}
