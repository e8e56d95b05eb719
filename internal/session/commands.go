package session

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rendis/diagrama/internal/geometry"
	"github.com/rendis/diagrama/internal/scene"
	"github.com/rendis/diagrama/pkg/schema"
)

// AddItem creates a node of kind at pos. A node dropped on a visible
// container becomes its child; otherwise it joins the entered container.
func (s *DocumentSession) AddItem(kind string, pos geometry.Point, props map[string]any) (*scene.Node, error) {
	if err := s.writable(); err != nil {
		return nil, err
	}
	n, err := s.addItem(kind, pos, props)
	if err != nil {
		return nil, err
	}
	return n, s.commit("Add " + s.kindLabel(n))
}

func (s *DocumentSession) addItem(kind string, pos geometry.Point, props map[string]any) (*scene.Node, error) {
	if !pos.Finite() {
		return nil, schema.NewError(schema.ErrCodeValidation, "position must be finite")
	}
	parent := s.dropTarget(pos)
	n, err := s.store.AddNode(kind, pos, props)
	if err != nil {
		return nil, err
	}
	if parent != "" {
		if err := s.store.Reparent(n.ID, parent); err != nil {
			s.logger.Warn("cannot place item in container", "item_id", n.ID, "container_id", parent, "error", err)
		}
	}
	return n, nil
}

// dropTarget returns the container a new item at pos belongs to.
func (s *DocumentSession) dropTarget(pos geometry.Point) string {
	nodes := s.store.VisibleNodes()
	for i := len(nodes) - 1; i >= 0; i-- {
		if nodes[i].IsContainer() && nodes[i].Bounds().Contains(pos) {
			return nodes[i].ID
		}
	}
	return s.store.Context().Active()
}

func (s *DocumentSession) kindLabel(n *scene.Node) string {
	if spec, ok := s.store.Registry().Lookup(n.Kind); ok && spec.Label != "" {
		return spec.Label
	}
	return string(n.Kind)
}

// Connect adds a connector between two distinct nodes.
func (s *DocumentSession) Connect(startID, endID string) (*scene.Edge, error) {
	if err := s.writable(); err != nil {
		return nil, err
	}
	if startID == endID {
		return nil, schema.NewError(schema.ErrCodeConflict, "connector cannot start and end on the same item").WithItem(startID)
	}
	for _, id := range []string{startID, endID} {
		if _, ok := s.store.Node(id); !ok {
			return nil, schema.NewErrorf(schema.ErrCodeNotFound, "item %q not found", id).WithItem(id)
		}
	}
	e := s.store.AddEdge(startID, endID)
	if e == nil {
		return nil, schema.NewErrorf(schema.ErrCodeConflict, "cannot connect %q to %q", startID, endID)
	}
	return e, s.commit(fmt.Sprintf("Connect %s to %s", startID, endID))
}

// Delete removes nodes (with their descendants) and connectors. Unknown ids
// are skipped; the command still completes.
func (s *DocumentSession) Delete(ids ...string) error {
	if err := s.writable(); err != nil {
		return err
	}
	var removed []string
	for _, id := range ids {
		if _, ok := s.store.Node(id); ok {
			s.store.RemoveNode(id)
			removed = append(removed, id)
			continue
		}
		if _, ok := s.store.Edge(id); ok {
			s.store.RemoveEdge(id)
			removed = append(removed, id)
			continue
		}
		s.logger.Warn("delete skipped unknown id", "item_id", id)
	}
	if len(removed) == 0 {
		return nil
	}
	return s.commit("Delete " + describeIDs(removed))
}

// Move places a node's top-left corner at pos.
func (s *DocumentSession) Move(id string, pos geometry.Point) error {
	if err := s.writable(); err != nil {
		return err
	}
	if err := s.store.MoveNode(id, pos); err != nil {
		return err
	}
	return s.commit("Move " + id)
}

// Resize sets a node's rectangle. The size is clamped to the minimum.
func (s *DocumentSession) Resize(id string, r geometry.Rect) error {
	if err := s.writable(); err != nil {
		return err
	}
	if err := s.store.SetBounds(id, r); err != nil {
		return err
	}
	return s.commit("Resize " + id)
}

// SetProperties merges style and content properties into a node.
func (s *DocumentSession) SetProperties(id string, props map[string]any) error {
	if err := s.writable(); err != nil {
		return err
	}
	if err := s.store.SetNodeProperties(id, props); err != nil {
		return err
	}
	return s.commit("Edit properties of " + id)
}

// SetConnectorStyle applies a partial style update to a connector.
func (s *DocumentSession) SetConnectorStyle(id string, style scene.EdgeStyle) error {
	if err := s.writable(); err != nil {
		return err
	}
	if err := s.store.SetEdgeStyle(id, style); err != nil {
		return err
	}
	return s.commit("Edit connector " + id)
}

// Reconnect rewires one end of a connector.
func (s *DocumentSession) Reconnect(edgeID string, end scene.Endpoint, nodeID string) error {
	if err := s.writable(); err != nil {
		return err
	}
	if err := s.store.Reconnect(edgeID, end, nodeID); err != nil {
		return err
	}
	return s.commit("Reconnect " + edgeID)
}

// Reparent moves a node into a container, or to top level for "".
func (s *DocumentSession) Reparent(id, containerID string) error {
	if err := s.writable(); err != nil {
		return err
	}
	if err := s.store.Reparent(id, containerID); err != nil {
		return err
	}
	target := containerID
	if target == "" {
		target = "top level"
	}
	return s.commit(fmt.Sprintf("Move %s into %s", id, target))
}

// Layer changes a node's stacking order among its siblings.
func (s *DocumentSession) Layer(id string, action scene.LayerAction) error {
	if err := s.writable(); err != nil {
		return err
	}
	if err := s.store.ApplyLayer(id, action); err != nil {
		return err
	}
	return s.commit(fmt.Sprintf("%s %s", layerLabel(action), id))
}

func layerLabel(a scene.LayerAction) string {
	switch a {
	case scene.LayerBringToFront:
		return "Bring to front"
	case scene.LayerSendToBack:
		return "Send to back"
	case scene.LayerBringForward:
		return "Bring forward"
	default:
		return "Send backward"
	}
}

// Enter drills into a container. Navigation is allowed while previewing
// and is not a history action, but the entered container is part of the
// snapshot so the current entry follows it.
func (s *DocumentSession) Enter(containerID string) error {
	n, ok := s.store.Node(containerID)
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "item %q not found", containerID).WithItem(containerID)
	}
	if !n.IsContainer() {
		return schema.NewErrorf(schema.ErrCodeValidation, "item %q is not a container", containerID).WithItem(containerID)
	}
	s.store.Context().Enter(containerID)
	return nil
}

// Leave pops one container level.
func (s *DocumentSession) Leave() {
	s.store.Context().Leave()
}

// ContextPath returns the breadcrumb of entered containers, e.g. "/ A / B".
func (s *DocumentSession) ContextPath() string {
	return s.store.Context().PathString()
}

// ImportImage records path in the imported images and places an image item
// showing it at pos.
func (s *DocumentSession) ImportImage(path string, pos geometry.Point) (*scene.Node, error) {
	if err := s.writable(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(path) == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "image path is required")
	}
	n, err := s.addItem(scene.UserImagePrefix+path, pos, nil)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(s.importedImages, path) {
		s.importedImages = append(s.importedImages, path)
	}
	return n, s.commit("Import image: " + filepath.Base(path))
}

// Checkpoint captures the current state under a caller-chosen description.
func (s *DocumentSession) Checkpoint(description string) error {
	if err := s.writable(); err != nil {
		return err
	}
	return s.commit(description)
}

// PreviewHistory shows a past entry read-only.
func (s *DocumentSession) PreviewHistory(index int) error {
	s.drag = nil
	return s.history.Preview(index)
}

// ReturnToPresent leaves history preview.
func (s *DocumentSession) ReturnToPresent() error {
	return s.history.ReturnToPresent()
}

// RestoreHistory makes a past entry the live state.
func (s *DocumentSession) RestoreHistory(index int) error {
	s.drag = nil
	if err := s.history.Restore(index); err != nil {
		return err
	}
	s.modified = true
	return nil
}

// ClearHistory collapses the log to the current entry.
func (s *DocumentSession) ClearHistory() (bool, error) {
	return s.history.ClearPrevious()
}

func describeIDs(ids []string) string {
	if len(ids) <= 3 {
		return strings.Join(ids, ", ")
	}
	return fmt.Sprintf("%s and %d more", strings.Join(ids[:3], ", "), len(ids)-3)
}
