package codec

import (
	"io"
	"log/slog"

	"github.com/rendis/diagrama/internal/geometry"
	"github.com/rendis/diagrama/internal/scene"
	"github.com/rendis/diagrama/pkg/schema"
)

// RestoreOptions controls how a document is rebuilt into a store.
type RestoreOptions struct {
	// PreserveIDs keeps recorded ids (file load, history). When false every
	// item gets a fresh id (paste, clone).
	PreserveIDs bool
	// Offset is added to every item position.
	Offset geometry.Point
	// Parent adopts items whose recorded parent is not part of the document.
	Parent string
	// ExternalRefs lets connectors reference nodes already in the store when
	// their endpoint is not part of the document.
	ExternalRefs bool
	// ApplyScene restores the id counter and the entered container.
	ApplyScene bool
	Logger     *slog.Logger
}

// Report describes what a restore did.
type Report struct {
	// IDMap maps recorded ids to the ids in the store.
	IDMap map[string]string
	// Roots are the new ids of items without a restored parent, in order.
	Roots   []string
	Nodes   int
	Edges   int
	Dropped []string
}

// Restore rebuilds doc into s without clearing it. Nodes are inserted first
// and an id map is built; parent links and connectors are then resolved
// through it. Items of unknown kind and connectors whose endpoints do not
// resolve are dropped and logged.
func Restore(s *scene.Store, doc *schema.Document, opts RestoreOptions) Report {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	rep := Report{IDMap: make(map[string]string)}

	type restored struct {
		node     *scene.Node
		parent   string
		children []string
	}
	var nodes []restored

	for i, rec := range doc.Items {
		props := scene.CloneProps(rec.Properties)
		if rec.ImagePath != "" {
			if _, ok := props["image_path"]; !ok {
				props["image_path"] = rec.ImagePath
			}
		}
		if rec.PaintScript != "" {
			if _, ok := props["paint_script"]; !ok {
				props["paint_script"] = rec.PaintScript
			}
		}
		n, err := s.Registry().Build(rec.Type, props)
		if err != nil {
			logger.Warn("dropping item of unknown kind", "item_id", rec.ID, "kind", rec.Type, "index", i)
			rep.Dropped = append(rep.Dropped, rec.ID)
			continue
		}
		n.Position = geometry.Pt(rec.X, rec.Y).Add(opts.Offset)
		// Recorded sizes win over auto-sizing: a resized text item keeps
		// its size across save and load.
		if rec.Width > 0 {
			n.Width = rec.Width
		}
		if rec.Height > 0 {
			n.Height = rec.Height
		}
		n.Z = rec.Z
		n.ID = rec.ID
		s.InsertNode(n, opts.PreserveIDs)
		if rec.ID != "" {
			rep.IDMap[rec.ID] = n.ID
		}
		nodes = append(nodes, restored{node: n, parent: schema.StringValue(rec.ParentContainerID), children: rec.ChildItemIDs})
		rep.Nodes++
	}

	for _, r := range nodes {
		parent, ok := rep.IDMap[r.parent]
		if r.parent == "" || !ok {
			if r.parent != "" {
				logger.Warn("parent container not found", "item_id", r.node.ID, "parent_container_id", r.parent)
			}
			parent = opts.Parent
			rep.Roots = append(rep.Roots, r.node.ID)
		}
		if parent == "" {
			continue
		}
		if err := s.Reparent(r.node.ID, parent); err != nil {
			logger.Warn("cannot restore parent link", "item_id", r.node.ID, "parent_container_id", parent, "error", err)
		}
	}

	// keep the recorded child order; children only claimed by one side were
	// already fixed by Reparent
	for _, r := range nodes {
		if !r.node.IsContainer() || len(r.node.ChildIDs) < 2 {
			continue
		}
		live := make(map[string]bool, len(r.node.ChildIDs))
		for _, id := range r.node.ChildIDs {
			live[id] = true
		}
		ordered := make([]string, 0, len(r.node.ChildIDs))
		for _, old := range r.children {
			if id, ok := rep.IDMap[old]; ok && live[id] {
				ordered = append(ordered, id)
				delete(live, id)
			}
		}
		for _, id := range r.node.ChildIDs {
			if live[id] {
				ordered = append(ordered, id)
			}
		}
		r.node.ChildIDs = ordered
	}

	for _, rec := range doc.Connectors {
		start, okStart := resolveRef(s, rep.IDMap, rec.StartItemID, opts.ExternalRefs)
		end, okEnd := resolveRef(s, rep.IDMap, rec.EndItemID, opts.ExternalRefs)
		if !okStart || !okEnd {
			logger.Warn("dropping connector with unresolved endpoint",
				"item_id", rec.ID, "start_item_id", rec.StartItemID, "end_item_id", rec.EndItemID)
			rep.Dropped = append(rep.Dropped, rec.ID)
			continue
		}
		e := scene.DefaultEdge(start, end)
		e.ID = rec.ID
		if rec.LineColor != "" {
			e.LineColor = rec.LineColor
		}
		if rec.LineWidth > 0 {
			e.LineWidth = rec.LineWidth
		}
		if rec.ArrowSize > 0 {
			e.ArrowSize = rec.ArrowSize
		}
		if rec.FontSize > 0 {
			e.FontSize = rec.FontSize
		}
		e.Text = rec.Text
		e.Routing = scene.ParseRouting(rec.ConnectionStyle)
		if s.InsertEdge(e, opts.PreserveIDs) == nil {
			logger.Warn("dropping invalid connector", "item_id", rec.ID, "start_item_id", start, "end_item_id", end)
			rep.Dropped = append(rep.Dropped, rec.ID)
			continue
		}
		if rec.ID != "" {
			rep.IDMap[rec.ID] = e.ID
		}
		rep.Edges++
	}

	if opts.ApplyScene {
		s.SetNextID(doc.SceneProperties.NextItemID)
		active := schema.StringValue(doc.SceneProperties.ActiveContainerID)
		if mapped, ok := rep.IDMap[active]; ok {
			active = mapped
		}
		s.Context().SetActive(active)
	}
	return rep
}

func resolveRef(s *scene.Store, idMap map[string]string, old string, external bool) (string, bool) {
	if id, ok := idMap[old]; ok {
		return id, true
	}
	if external {
		if _, ok := s.Node(old); ok {
			return old, true
		}
	}
	return "", false
}

// Load replaces the contents of s with doc, keeping recorded ids.
func Load(s *scene.Store, doc *schema.Document, logger *slog.Logger) Report {
	s.Clear()
	return Restore(s, doc, RestoreOptions{PreserveIDs: true, ApplyScene: true, Logger: logger})
}

// LoadString decodes and loads a serialized snapshot.
func LoadString(s *scene.Store, data string, logger *slog.Logger) (*schema.Document, Report, error) {
	doc, err := Decode([]byte(data))
	if err != nil {
		return nil, Report{}, err
	}
	return doc, Load(s, doc, logger), nil
}
