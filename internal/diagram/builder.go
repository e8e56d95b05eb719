package diagram

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/rendis/diagrama/internal/codec"
	"github.com/rendis/diagrama/internal/connector"
	"github.com/rendis/diagrama/internal/geometry"
	"github.com/rendis/diagrama/internal/scene"
	"github.com/rendis/diagrama/internal/script"
	"github.com/rendis/diagrama/pkg/schema"
)

// BuildOptions controls which part of a scene becomes a Model.
type BuildOptions struct {
	Title string
	// All includes items hidden by the entered container.
	All bool
	// Resolver computes connector paths; nil uses the default handle radius.
	Resolver *connector.Resolver
	// Scripts evaluates the paint scripts of script items; nil skips them.
	Scripts *script.Interpreter
	Logger  *slog.Logger
}

// Build constructs a Model from the live store. Connectors whose endpoints
// do not resolve are left out.
func Build(ctx context.Context, s *scene.Store, opts BuildOptions) *Model {
	resolver := opts.Resolver
	if resolver == nil {
		resolver = connector.NewResolver(connector.DefaultHandleRadius, connector.DefaultMinSegment)
	}

	nodes, edges := s.VisibleNodes(), s.VisibleEdges()
	if opts.All {
		nodes, edges = s.Nodes(), s.Edges()
		sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].Z < nodes[j].Z })
	}

	m := &Model{Title: opts.Title, Context: s.Context().PathString()}
	for _, n := range nodes {
		node := buildNode(s, n)
		if n.Kind == scene.KindScript && opts.Scripts != nil {
			src := scene.PropString(n.Properties, "paint_script", "")
			prog := opts.Scripts.Paint(ctx, n.ID, src, n.Width, n.Height, n.Properties)
			node.Script = &prog
		}
		m.Nodes = append(m.Nodes, node)
		m.Bounds = m.Bounds.Union(n.HandleBounds())
	}
	for _, e := range edges {
		p, ok := resolver.Resolve(s, e, nil)
		if !ok {
			continue
		}
		m.Edges = append(m.Edges, buildEdge(e, p))
	}
	return m
}

func buildNode(s *scene.Store, n *scene.Node) *Node {
	node := &Node{
		ID:        n.ID,
		Label:     n.Text(),
		Kind:      n.Kind,
		Outline:   scene.OutlineRect,
		Rect:      n.Bounds(),
		Z:         n.Z,
		Fill:      scene.PropString(n.Properties, "fill_color", "#ddeeff"),
		Border:    scene.PropString(n.Properties, "border_color", "#000000"),
		FontSize:  n.FontSize(),
		Container: n.IsContainer(),
		Parent:    n.ParentContainerID,
		ImagePath: scene.PropString(n.Properties, "image_path", ""),
	}
	if spec, ok := s.Registry().Lookup(n.Kind); ok {
		node.Outline = spec.Outline
	}
	for _, c := range s.Children(n.ID) {
		node.Children = append(node.Children, c.ID)
	}
	return node
}

func buildEdge(e *scene.Edge, p connector.Path) *Edge {
	edge := &Edge{
		ID:         e.ID,
		From:       e.StartID,
		To:         e.EndID,
		Label:      e.Text,
		FontSize:   e.FontSize,
		Color:      e.LineColor,
		Width:      e.LineWidth,
		Orthogonal: e.Routing == scene.RoutingOrthogonal,
		Points:     append([]geometry.Point(nil), p.Points...),
		LabelAt:    p.Midpoint(),
	}
	edge.Arrow, edge.HasArrow = connector.ArrowHead(p, e.ArrowSize)
	return edge
}

// FromDocument loads a persisted document into a scratch store and builds a
// Model of it. container, when set, replaces the recorded entered container;
// it must name a container item.
func FromDocument(ctx context.Context, doc *schema.Document, container string, opts BuildOptions) (*Model, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := scene.NewStore(scene.WithLogger(logger))
	rep := codec.Load(s, doc, logger)
	if len(rep.Dropped) > 0 {
		logger.Warn("records skipped while loading", "dropped", rep.Dropped)
	}
	if container != "" {
		n, ok := s.Node(container)
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeNotFound, "item %q not found", container).WithItem(container)
		}
		if !n.IsContainer() {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "item %q is not a container", container).WithItem(container)
		}
		s.Context().SetActive(container)
	}
	return Build(ctx, s, opts), nil
}

// firstLine returns only the first line of a multi-line label.
func firstLine(s string) string {
	if i := strings.Index(s, "\n"); i >= 0 {
		return s[:i]
	}
	return s
}
