package session

import (
	"context"

	"github.com/rendis/diagrama/internal/expressions"
	"github.com/rendis/diagrama/internal/logging"
	"github.com/rendis/diagrama/internal/scene"
)

// Select returns the ids of the nodes and connectors matching a CEL
// predicate, in insertion order. Every item exposes the same keys so a
// predicate written for nodes never fails on a connector:
// id, kind, x, y, width, height, z, text, parent, children, visible,
// properties, start, end, routing.
func (s *DocumentSession) Select(ctx context.Context, predicate string) ([]string, error) {
	ctx = logging.WithAction(logging.WithDocumentID(ctx, s.id), "select")
	sceneVars := map[string]any{
		"active_container": s.store.Context().Active(),
		"path":             s.ContextPath(),
		"next_item_id":     s.store.NextID(),
	}

	var out []string
	match := func(id string, item map[string]any) error {
		ok, err := s.cel.Match(ctx, predicate, map[string]any{"item": item, "scene": sceneVars})
		if err != nil {
			return err
		}
		if ok {
			out = append(out, id)
		}
		return nil
	}
	for _, n := range s.store.Nodes() {
		if err := match(n.ID, s.nodeVars(n)); err != nil {
			return nil, err
		}
	}
	for _, e := range s.store.Edges() {
		if err := match(e.ID, s.edgeVars(e)); err != nil {
			return nil, err
		}
	}
	logging.LogWith(ctx, s.base).Debug("selection evaluated", "predicate", predicate, "matches", len(out))
	return out, nil
}

func (s *DocumentSession) nodeVars(n *scene.Node) map[string]any {
	props := scene.CloneProps(n.Properties)
	if props == nil {
		props = map[string]any{}
	}
	children := append([]string{}, n.ChildIDs...)
	return map[string]any{
		"id":         n.ID,
		"kind":       string(n.Kind),
		"x":          n.Position.X,
		"y":          n.Position.Y,
		"width":      n.Width,
		"height":     n.Height,
		"z":          n.Z,
		"text":       n.Text(),
		"parent":     n.ParentContainerID,
		"children":   children,
		"visible":    s.store.Context().Visible(n.ID),
		"properties": props,
		"start":      "",
		"end":        "",
		"routing":    "",
	}
}

func (s *DocumentSession) edgeVars(e *scene.Edge) map[string]any {
	vars := map[string]any{
		"id":       e.ID,
		"kind":     "connector",
		"x":        0.0,
		"y":        0.0,
		"width":    0.0,
		"height":   0.0,
		"z":        0.0,
		"text":     e.Text,
		"parent":   "",
		"children": []string{},
		"visible":  s.store.Context().Visible(e.ID),
		"properties": map[string]any{
			"line_color": e.LineColor,
			"line_width": e.LineWidth,
			"arrow_size": e.ArrowSize,
			"font_size":  e.FontSize,
		},
		"start":   e.StartID,
		"end":     e.EndID,
		"routing": string(e.Routing),
	}
	if p, ok := s.resolver.Resolve(s.store, e, nil); ok {
		b := p.Bounds()
		vars["x"], vars["y"], vars["width"], vars["height"] = b.X, b.Y, b.W, b.H
	}
	return vars
}

// Query runs a jq program over the persisted form of the live diagram and
// returns every output.
func (s *DocumentSession) Query(ctx context.Context, program string) ([]any, error) {
	ctx = logging.WithAction(logging.WithDocumentID(ctx, s.id), "query")
	input, err := expressions.ToJQInput(s.Document())
	if err != nil {
		return nil, err
	}
	return s.jq.EvaluateAll(ctx, program, input)
}
