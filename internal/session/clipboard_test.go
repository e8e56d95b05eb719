package session

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/diagrama/internal/geometry"
	"github.com/rendis/diagrama/pkg/schema"
)

func TestCopyPaste_ContainerWithChildren(t *testing.T) {
	s := newSession(t)
	box := add(t, s, "container", 0, 0)
	child := add(t, s, "rectangle", 20, 20)
	require.Equal(t, box.ID, child.ParentContainerID)

	require.NoError(t, s.Copy(box.ID))
	assert.True(t, s.HasClipboard())

	roots, err := s.Paste(nil)
	require.NoError(t, err)
	require.Len(t, roots, 1)

	copyBox, ok := s.Store().Node(roots[0])
	require.True(t, ok)
	assert.NotEqual(t, box.ID, copyBox.ID)
	assert.Equal(t, geometry.Pt(20, 20), copyBox.Position)
	assert.Empty(t, copyBox.ParentContainerID)
	require.Len(t, copyBox.ChildIDs, 1)

	copyChild, ok := s.Store().Node(copyBox.ChildIDs[0])
	require.True(t, ok)
	assert.Equal(t, geometry.Pt(40, 40), copyChild.Position)
	assert.Equal(t, copyBox.ID, copyChild.ParentContainerID)
	assert.Equal(t, "Paste item(s)", descriptions(s)[s.History().Current()])

	roots, err = s.Paste(&geometry.Point{X: 500, Y: 600})
	require.NoError(t, err)
	second, _ := s.Store().Node(roots[0])
	assert.Equal(t, geometry.Pt(500, 600), second.Position)
	grandChild, _ := s.Store().Node(second.ChildIDs[0])
	assert.Equal(t, geometry.Pt(520, 620), grandChild.Position)
}

func TestPaste_IntoEnteredContainer(t *testing.T) {
	s := newSession(t)
	box := add(t, s, "container", 0, 0)
	r := add(t, s, "rectangle", 500, 0)
	require.NoError(t, s.Copy(r.ID))
	require.NoError(t, s.Enter(box.ID))

	roots, err := s.Paste(nil)
	require.NoError(t, err)
	n, _ := s.Store().Node(roots[0])
	assert.Equal(t, box.ID, n.ParentContainerID)
	assert.True(t, s.Store().Context().Visible(n.ID))
}

func TestCopyPaste_Connector(t *testing.T) {
	s := newSession(t)
	a := add(t, s, "rectangle", 0, 0)
	b := add(t, s, "rectangle", 300, 0)
	e, err := s.Connect(a.ID, b.ID)
	require.NoError(t, err)

	require.NoError(t, s.Copy(e.ID))
	ids, err := s.Paste(nil)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	pasted, ok := s.Store().Edge(ids[0])
	require.True(t, ok)
	assert.NotEqual(t, e.ID, pasted.ID)
	assert.Equal(t, a.ID, pasted.StartID)
	assert.Equal(t, b.ID, pasted.EndID)

	require.NoError(t, s.Delete(b.ID))
	_, err = s.Paste(nil)
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))
}

func TestCopy_UnknownAndEmptyPaste(t *testing.T) {
	s := newSession(t)
	assert.True(t, schema.HasCode(s.Copy("item_1"), schema.ErrCodeNotFound))
	assert.False(t, s.HasClipboard())

	_, err := s.Paste(nil)
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))
}

func TestSystemClipboardMirror(t *testing.T) {
	cb := &memClipboard{}
	src := newSession(t, WithClipboard(cb))
	r := add(t, src, "ellipse", 40, 40)
	require.NoError(t, src.SetProperties(r.ID, map[string]any{"text": "shared"}))
	require.NoError(t, src.Copy(r.ID))
	assert.Contains(t, cb.text, `"shared"`)

	dst := newSession(t, WithClipboard(cb))
	assert.False(t, dst.HasClipboard())
	roots, err := dst.Paste(nil)
	require.NoError(t, err)
	n, ok := dst.Store().Node(roots[0])
	require.True(t, ok)
	assert.Equal(t, "shared", n.Text())
	assert.Equal(t, geometry.Pt(60, 60), n.Position)

	cb.text = "not a diagram"
	other := newSession(t, WithClipboard(cb))
	_, err = other.Paste(nil)
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))
}

func TestCopy_ClipboardFailureIsNotFatal(t *testing.T) {
	s := newSession(t, WithClipboard(&memClipboard{err: errors.New("no display")}))
	r := add(t, s, "rectangle", 0, 0)
	require.NoError(t, s.Copy(r.ID))

	roots, err := s.Paste(nil)
	require.NoError(t, err)
	assert.Len(t, roots, 1)
}
