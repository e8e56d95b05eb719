package session

import (
	"fmt"

	"github.com/rendis/diagrama/internal/connector"
	"github.com/rendis/diagrama/internal/geometry"
	"github.com/rendis/diagrama/internal/scene"
	"github.com/rendis/diagrama/pkg/schema"
)

type dragKind int

const (
	dragMove dragKind = iota + 1
	dragResize
	dragReconnect
	dragConnect
)

func (k dragKind) String() string {
	switch k {
	case dragMove:
		return "move"
	case dragResize:
		return "resize"
	case dragReconnect:
		return "reconnect"
	case dragConnect:
		return "connect"
	}
	return "none"
}

// dragState is the pre-drag geometry plus the live pointer of one
// interactive drag. Cancelling puts the recorded geometry back.
type dragState struct {
	kind   dragKind
	origin geometry.Point
	pos    geometry.Point

	// move and resize
	orig   map[string]geometry.Rect
	ids    []string
	handle scene.Handle

	// reconnect
	edgeID string
	end    scene.Endpoint

	// connect
	from string
}

// Dragging reports whether a drag is in progress and of which kind.
func (s *DocumentSession) Dragging() (string, bool) {
	if s.drag == nil {
		return "", false
	}
	return s.drag.kind.String(), true
}

func (s *DocumentSession) beginDrag(d *dragState) error {
	if err := s.writable(); err != nil {
		return err
	}
	if s.drag != nil {
		s.CancelDrag()
	}
	d.pos = d.origin
	s.drag = d
	return nil
}

// BeginMove starts dragging the given nodes from pointer position at.
func (s *DocumentSession) BeginMove(ids []string, at geometry.Point) error {
	d := &dragState{kind: dragMove, origin: at, orig: make(map[string]geometry.Rect, len(ids))}
	for _, id := range ids {
		n, ok := s.store.Node(id)
		if !ok {
			return schema.NewErrorf(schema.ErrCodeNotFound, "item %q not found", id).WithItem(id)
		}
		if _, dup := d.orig[id]; dup {
			continue
		}
		d.orig[id] = n.Bounds()
		d.ids = append(d.ids, id)
	}
	if len(d.ids) == 0 {
		return schema.NewError(schema.ErrCodeValidation, "nothing to move")
	}
	return s.beginDrag(d)
}

// BeginResize starts dragging one resize handle of a node. With
// scene.HandleNone the handle under at is used.
func (s *DocumentSession) BeginResize(id string, handle scene.Handle, at geometry.Point) error {
	n, ok := s.store.Node(id)
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "item %q not found", id).WithItem(id)
	}
	if handle == scene.HandleNone {
		handle = n.HandleAt(at)
	}
	if handle == scene.HandleNone {
		return schema.NewError(schema.ErrCodeValidation, "no resize handle at pointer").WithItem(id)
	}
	return s.beginDrag(&dragState{
		kind:   dragResize,
		origin: at,
		orig:   map[string]geometry.Rect{id: n.Bounds()},
		ids:    []string{id},
		handle: handle,
	})
}

// BeginReconnect starts dragging one end handle of a connector.
func (s *DocumentSession) BeginReconnect(edgeID string, end scene.Endpoint, at geometry.Point) error {
	if _, ok := s.store.Edge(edgeID); !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "connector %q not found", edgeID).WithItem(edgeID)
	}
	return s.beginDrag(&dragState{kind: dragReconnect, origin: at, edgeID: edgeID, end: end})
}

// BeginReconnectAt picks the connector end handle under at, if any, and
// starts dragging it.
func (s *DocumentSession) BeginReconnectAt(edgeID string, at geometry.Point) error {
	e, ok := s.store.Edge(edgeID)
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "connector %q not found", edgeID).WithItem(edgeID)
	}
	p, ok := s.resolver.Resolve(s.store, e, nil)
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "connector %q has a missing endpoint", edgeID).WithItem(edgeID)
	}
	end, hit := s.resolver.HandleAt(p, at)
	if !hit {
		return schema.NewError(schema.ErrCodeValidation, "no connector handle at pointer").WithItem(edgeID)
	}
	return s.BeginReconnect(edgeID, end, at)
}

// BeginConnect starts drawing a new connector from a node.
func (s *DocumentSession) BeginConnect(fromID string, at geometry.Point) error {
	if _, ok := s.store.Node(fromID); !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "item %q not found", fromID).WithItem(fromID)
	}
	return s.beginDrag(&dragState{kind: dragConnect, origin: at, from: fromID})
}

// UpdateDrag follows the pointer. Moves and resizes are applied live;
// connector drags only move the free end.
func (s *DocumentSession) UpdateDrag(at geometry.Point) error {
	d := s.drag
	if d == nil {
		return nil
	}
	if !at.Finite() {
		return schema.NewError(schema.ErrCodeValidation, "pointer position must be finite")
	}
	d.pos = at
	delta := at.Sub(d.origin)
	switch d.kind {
	case dragMove:
		for _, id := range d.ids {
			if err := s.store.MoveNode(id, d.orig[id].Min().Add(delta)); err != nil {
				s.logger.Warn("dragged item vanished", "item_id", id, "error", err)
			}
		}
	case dragResize:
		id := d.ids[0]
		if err := s.store.SetBounds(id, scene.ResizeRect(d.orig[id], d.handle, delta)); err != nil {
			s.logger.Warn("resized item vanished", "item_id", id, "error", err)
		}
	case dragReconnect:
		if e, ok := s.store.Edge(d.edgeID); ok {
			s.forwardSceneEvent(scene.Event{Type: schema.EventConnectorChanged, ID: e.ID, IsEdge: true})
		}
	}
	return nil
}

// EndDrag drops at the pointer position and records the action. A
// reconnect or connect released anywhere but over a different visible node
// leaves the diagram unchanged.
func (s *DocumentSession) EndDrag(at geometry.Point) error {
	d := s.drag
	if d == nil {
		return nil
	}
	if err := s.UpdateDrag(at); err != nil {
		s.CancelDrag()
		return err
	}
	s.drag = nil

	switch d.kind {
	case dragMove, dragResize:
		if !s.geometryChanged(d) {
			return nil
		}
		desc := "Move " + describeIDs(d.ids)
		if d.kind == dragResize {
			desc = "Resize " + d.ids[0]
		}
		return s.commit(desc)

	case dragReconnect:
		e, ok := s.store.Edge(d.edgeID)
		if !ok {
			return nil
		}
		target, ok := s.NodeAt(at)
		other := e.EndID
		if d.end == scene.EndpointEnd {
			other = e.StartID
		}
		if !ok || target.ID == other {
			s.logger.Debug("reconnect dropped on no valid item; endpoint kept", "item_id", e.ID)
			s.forwardSceneEvent(scene.Event{Type: schema.EventConnectorChanged, ID: e.ID, IsEdge: true})
			return nil
		}
		current := e.StartID
		if d.end == scene.EndpointEnd {
			current = e.EndID
		}
		if target.ID == current {
			s.forwardSceneEvent(scene.Event{Type: schema.EventConnectorChanged, ID: e.ID, IsEdge: true})
			return nil
		}
		if err := s.store.Reconnect(e.ID, d.end, target.ID); err != nil {
			return err
		}
		return s.commit("Reconnect " + e.ID)

	case dragConnect:
		target, ok := s.NodeAt(at)
		if !ok || target.ID == d.from {
			return nil
		}
		e := s.store.AddEdge(d.from, target.ID)
		if e == nil {
			return nil
		}
		return s.commit(fmt.Sprintf("Connect %s to %s", d.from, target.ID))
	}
	return nil
}

// CancelDrag abandons the drag and restores the pre-drag geometry.
func (s *DocumentSession) CancelDrag() {
	d := s.drag
	if d == nil {
		return
	}
	s.drag = nil
	switch d.kind {
	case dragMove, dragResize:
		for _, id := range d.ids {
			if _, ok := s.store.Node(id); !ok {
				continue
			}
			var err error
			if d.kind == dragMove {
				err = s.store.MoveNode(id, d.orig[id].Min())
			} else {
				err = s.store.SetBounds(id, d.orig[id])
			}
			if err != nil {
				s.logger.Warn("cannot roll back drag", "item_id", id, "error", err)
			}
		}
	case dragReconnect:
		s.forwardSceneEvent(scene.Event{Type: schema.EventConnectorChanged, ID: d.edgeID, IsEdge: true})
	}
}

func (s *DocumentSession) geometryChanged(d *dragState) bool {
	for _, id := range d.ids {
		n, ok := s.store.Node(id)
		if ok && n.Bounds() != d.orig[id] {
			return true
		}
	}
	return false
}

// connectorDrag returns the resolver view of a reconnect drag.
func (s *DocumentSession) connectorDrag() *connector.Drag {
	if s.drag == nil || s.drag.kind != dragReconnect {
		return nil
	}
	return &connector.Drag{EdgeID: s.drag.edgeID, End: s.drag.end, Pos: s.drag.pos}
}
