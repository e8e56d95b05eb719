package mcp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/diagrama/internal/codec"
	"github.com/rendis/diagrama/internal/diagram"
	"github.com/rendis/diagrama/internal/geometry"
	"github.com/rendis/diagrama/internal/scene"
	"github.com/rendis/diagrama/internal/session"
	"github.com/rendis/diagrama/internal/store"
	"github.com/rendis/diagrama/pkg/schema"
)

// stateResult summarizes the open document.
type stateResult struct {
	DocumentID      string           `json:"document_id"`
	Name            string           `json:"name"`
	Path            string           `json:"path,omitempty"`
	Modified        bool             `json:"modified"`
	Mode            string           `json:"mode"`
	Context         string           `json:"context"`
	ActiveContainer string           `json:"active_container,omitempty"`
	Items           int              `json:"items"`
	Connectors      int              `json:"connectors"`
	VisibleItems    []string         `json:"visible_items"`
	HistoryLen      int              `json:"history_len"`
	HistoryCurrent  int              `json:"history_current"`
	Document        *schema.Document `json:"document,omitempty"`
}

func describe(s *session.DocumentSession, withDocument bool) stateResult {
	nodes, edges := s.Store().Len()
	visible := make([]string, 0, nodes)
	for _, n := range s.Store().VisibleNodes() {
		visible = append(visible, n.ID)
	}
	r := stateResult{
		DocumentID:      s.ID(),
		Name:            s.Name(),
		Path:            s.Path(),
		Modified:        s.Modified(),
		Mode:            s.History().Mode().String(),
		Context:         s.ContextPath(),
		ActiveContainer: s.Store().Context().Active(),
		Items:           nodes,
		Connectors:      edges,
		VisibleItems:    visible,
		HistoryLen:      s.History().Len(),
		HistoryCurrent:  s.History().Current(),
	}
	if withDocument {
		r.Document = s.Document()
	}
	return r
}

// handleState describes the open document.
func (s *DiagramServer) handleState(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.captureSession(ctx, req)
	withDoc := req.GetBool("include_document", false)
	res, _ := session.View(s.session, func(ds *session.DocumentSession) (stateResult, error) {
		return describe(ds, withDoc), nil
	})
	return marshalResult(res)
}

// handleAddItem adds an item of a registered kind.
func (s *DiagramServer) handleAddItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.captureSession(ctx, req)
	kind, err := req.RequireString("kind")
	if err != nil {
		return mcp.NewToolResultError("kind is required"), nil
	}
	pos, ok := pointArg(req)
	if !ok {
		return mcp.NewToolResultError("x and y are required"), nil
	}
	props := mcp.ParseStringMap(req, "properties", nil)

	rec, err := session.View(s.session, func(ds *session.DocumentSession) (schema.ItemRecord, error) {
		n, err := ds.AddItem(kind, pos, props)
		if err != nil {
			return schema.ItemRecord{}, err
		}
		return codec.ItemRecord(n), nil
	})
	if err != nil {
		return toolError("add item", err), nil
	}
	return marshalResult(rec)
}

// handleConnect adds a connector between two items.
func (s *DiagramServer) handleConnect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.captureSession(ctx, req)
	startID, err := req.RequireString("start_id")
	if err != nil {
		return mcp.NewToolResultError("start_id is required"), nil
	}
	endID, err := req.RequireString("end_id")
	if err != nil {
		return mcp.NewToolResultError("end_id is required"), nil
	}

	rec, err := session.View(s.session, func(ds *session.DocumentSession) (schema.ConnectorRecord, error) {
		e, err := ds.Connect(startID, endID)
		if err != nil {
			return schema.ConnectorRecord{}, err
		}
		return codec.ConnectorRecord(e), nil
	})
	if err != nil {
		return toolError("connect", err), nil
	}
	return marshalResult(rec)
}

// handleUpdateItem moves, resizes and edits an item. Position and size
// changes together become one resize.
func (s *DiagramServer) handleUpdateItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.captureSession(ctx, req)
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id is required"), nil
	}
	x, hasX := numberArg(req, "x")
	y, hasY := numberArg(req, "y")
	w, hasW := numberArg(req, "width")
	h, hasH := numberArg(req, "height")
	props := mcp.ParseStringMap(req, "properties", nil)
	if !hasX && !hasY && !hasW && !hasH && len(props) == 0 {
		return mcp.NewToolResultError("nothing to update: pass x, y, width, height or properties"), nil
	}

	rec, err := session.View(s.session, func(ds *session.DocumentSession) (schema.ItemRecord, error) {
		n, ok := ds.Store().Node(id)
		if !ok {
			return schema.ItemRecord{}, schema.NewErrorf(schema.ErrCodeNotFound, "item %q not found", id).WithItem(id)
		}
		r := n.Bounds()
		if hasX {
			r.X = x
		}
		if hasY {
			r.Y = y
		}
		if hasW {
			r.W = w
		}
		if hasH {
			r.H = h
		}
		switch {
		case hasW || hasH:
			if err := ds.Resize(id, r); err != nil {
				return schema.ItemRecord{}, err
			}
		case hasX || hasY:
			if err := ds.Move(id, r.Min()); err != nil {
				return schema.ItemRecord{}, err
			}
		}
		if len(props) > 0 {
			if err := ds.SetProperties(id, props); err != nil {
				return schema.ItemRecord{}, err
			}
		}
		return codec.ItemRecord(n), nil
	})
	if err != nil {
		return toolError("update item", err), nil
	}
	return marshalResult(rec)
}

// handleStyleConnector restyles and optionally rewires a connector.
func (s *DiagramServer) handleStyleConnector(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.captureSession(ctx, req)
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id is required"), nil
	}

	var style scene.EdgeStyle
	changed := false
	if v, ok := stringArg(req, "line_color"); ok {
		style.LineColor, changed = &v, true
	}
	if v, ok := numberArg(req, "line_width"); ok {
		style.LineWidth, changed = &v, true
	}
	if v, ok := numberArg(req, "arrow_size"); ok {
		style.ArrowSize, changed = &v, true
	}
	if v, ok := stringArg(req, "text"); ok {
		style.Text, changed = &v, true
	}
	if v, ok := numberArg(req, "font_size"); ok {
		size := int(v)
		style.FontSize, changed = &size, true
	}
	if v, ok := stringArg(req, "routing"); ok {
		routing := scene.ParseRouting(v)
		style.Routing, changed = &routing, true
	}
	startID := req.GetString("start_id", "")
	endID := req.GetString("end_id", "")

	rec, err := session.View(s.session, func(ds *session.DocumentSession) (schema.ConnectorRecord, error) {
		e, ok := ds.Store().Edge(id)
		if !ok {
			return schema.ConnectorRecord{}, schema.NewErrorf(schema.ErrCodeNotFound, "connector %q not found", id).WithItem(id)
		}
		if changed {
			if err := ds.SetConnectorStyle(id, style); err != nil {
				return schema.ConnectorRecord{}, err
			}
		}
		if startID != "" && startID != e.StartID {
			if err := ds.Reconnect(id, scene.EndpointStart, startID); err != nil {
				return schema.ConnectorRecord{}, err
			}
		}
		if endID != "" && endID != e.EndID {
			if err := ds.Reconnect(id, scene.EndpointEnd, endID); err != nil {
				return schema.ConnectorRecord{}, err
			}
		}
		return codec.ConnectorRecord(e), nil
	})
	if err != nil {
		return toolError("style connector", err), nil
	}
	return marshalResult(rec)
}

// handleDelete removes items and connectors.
func (s *DiagramServer) handleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.captureSession(ctx, req)
	ids := req.GetStringSlice("ids", nil)
	if len(ids) == 0 {
		return mcp.NewToolResultError("ids is required"), nil
	}

	res, err := session.View(s.session, func(ds *session.DocumentSession) (map[string]any, error) {
		before, beforeEdges := ds.Store().Len()
		if err := ds.Delete(ids...); err != nil {
			return nil, err
		}
		after, afterEdges := ds.Store().Len()
		return map[string]any{
			"items_removed":      before - after,
			"connectors_removed": beforeEdges - afterEdges,
		}, nil
	})
	if err != nil {
		return toolError("delete", err), nil
	}
	return marshalResult(res)
}

// handleArrange changes stacking order or parentage.
func (s *DiagramServer) handleArrange(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.captureSession(ctx, req)
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id is required"), nil
	}
	action, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError("action is required"), nil
	}
	containerID := req.GetString("container_id", "")

	rec, err := session.View(s.session, func(ds *session.DocumentSession) (schema.ItemRecord, error) {
		var err error
		switch action {
		case "reparent":
			err = ds.Reparent(id, containerID)
		case string(scene.LayerBringToFront), string(scene.LayerSendToBack),
			string(scene.LayerBringForward), string(scene.LayerSendBackward):
			err = ds.Layer(id, scene.LayerAction(action))
		default:
			err = schema.NewErrorf(schema.ErrCodeValidation, "unknown arrange action %q", action)
		}
		if err != nil {
			return schema.ItemRecord{}, err
		}
		n, _ := ds.Store().Node(id)
		return codec.ItemRecord(n), nil
	})
	if err != nil {
		return toolError("arrange", err), nil
	}
	return marshalResult(rec)
}

// handleNavigate enters or leaves containers.
func (s *DiagramServer) handleNavigate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.captureSession(ctx, req)
	action, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError("action is required"), nil
	}

	res, err := session.View(s.session, func(ds *session.DocumentSession) (stateResult, error) {
		switch action {
		case "enter":
			id := req.GetString("container_id", "")
			if id == "" {
				return stateResult{}, schema.NewError(schema.ErrCodeValidation, "container_id is required to enter")
			}
			if err := ds.Enter(id); err != nil {
				return stateResult{}, err
			}
		case "leave":
			ds.Leave()
		default:
			return stateResult{}, schema.NewErrorf(schema.ErrCodeValidation, "unknown navigate action %q", action)
		}
		return describe(ds, false), nil
	})
	if err != nil {
		return toolError("navigate", err), nil
	}
	return marshalResult(res)
}

// handleClipboard copies or pastes.
func (s *DiagramServer) handleClipboard(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.captureSession(ctx, req)
	action, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError("action is required"), nil
	}

	switch action {
	case "copy":
		id, err := req.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError("id is required to copy"), nil
		}
		if err := s.session.Do(func(ds *session.DocumentSession) error { return ds.Copy(id) }); err != nil {
			return toolError("copy", err), nil
		}
		return marshalResult(map[string]any{"copied": id})
	case "paste":
		var at *geometry.Point
		if p, ok := pointArg(req); ok {
			at = &p
		}
		ids, err := session.View(s.session, func(ds *session.DocumentSession) ([]string, error) {
			return ds.Paste(at)
		})
		if err != nil {
			return toolError("paste", err), nil
		}
		return marshalResult(map[string]any{"pasted": ids})
	default:
		return mcp.NewToolResultError("action must be copy or paste"), nil
	}
}

// historyEntry is one row of the history listing.
type historyEntry struct {
	Index       int       `json:"index"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
	Current     bool      `json:"current,omitempty"`
	Previewed   bool      `json:"previewed,omitempty"`
	Unavailable bool      `json:"unavailable,omitempty"`
}

type historyResult struct {
	Mode    string         `json:"mode"`
	Current int            `json:"current"`
	Entries []historyEntry `json:"entries"`
	Groups  any            `json:"groups"`
}

func listHistory(ds *session.DocumentSession) historyResult {
	h := ds.History()
	res := historyResult{Mode: h.Mode().String(), Current: h.Current(), Groups: h.Groups()}
	for i, e := range h.Entries() {
		res.Entries = append(res.Entries, historyEntry{
			Index:       i,
			Description: e.Description,
			Timestamp:   e.Timestamp,
			Current:     i == h.Current(),
			Previewed:   h.Previewing() && i == h.PreviewIndex(),
			Unavailable: e.Unavailable,
		})
	}
	return res
}

// handleHistory drives the snapshot history.
func (s *DiagramServer) handleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.captureSession(ctx, req)
	action, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError("action is required"), nil
	}
	index, hasIndex := numberArg(req, "index")

	res, err := session.View(s.session, func(ds *session.DocumentSession) (historyResult, error) {
		var err error
		switch action {
		case "list":
		case "preview", "restore":
			if !hasIndex {
				return historyResult{}, schema.NewErrorf(schema.ErrCodeValidation, "index is required to %s", action)
			}
			if action == "preview" {
				err = ds.PreviewHistory(int(index))
			} else {
				err = ds.RestoreHistory(int(index))
			}
		case "present":
			err = ds.ReturnToPresent()
		case "clear":
			_, err = ds.ClearHistory()
		case "checkpoint":
			err = ds.Checkpoint(req.GetString("description", ""))
		default:
			err = schema.NewErrorf(schema.ErrCodeValidation, "unknown history action %q", action)
		}
		if err != nil {
			return historyResult{}, err
		}
		return listHistory(ds), nil
	})
	if err != nil {
		return toolError("history "+action, err), nil
	}
	return marshalResult(res)
}

// handleSelect evaluates a CEL predicate over every item.
func (s *DiagramServer) handleSelect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.captureSession(ctx, req)
	predicate, err := req.RequireString("predicate")
	if err != nil {
		return mcp.NewToolResultError("predicate is required"), nil
	}
	ids, err := session.View(s.session, func(ds *session.DocumentSession) ([]string, error) {
		return ds.Select(ctx, predicate)
	})
	if err != nil {
		return toolError("select", err), nil
	}
	if ids == nil {
		ids = []string{}
	}
	return marshalResult(map[string]any{"ids": ids})
}

// handleQuery runs jq over the serialized document.
func (s *DiagramServer) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.captureSession(ctx, req)
	program, err := req.RequireString("program")
	if err != nil {
		return mcp.NewToolResultError("program is required"), nil
	}
	out, err := session.View(s.session, func(ds *session.DocumentSession) ([]any, error) {
		return ds.Query(ctx, program)
	})
	if err != nil {
		return toolError("query", err), nil
	}
	if out == nil {
		out = []any{}
	}
	return marshalResult(map[string]any{"results": out})
}

// handleRender exports the diagram.
func (s *DiagramServer) handleRender(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.captureSession(ctx, req)
	format, err := req.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError("format is required"), nil
	}
	all := req.GetBool("all", false)

	model, _ := session.View(s.session, func(ds *session.DocumentSession) (*diagram.Model, error) {
		return diagram.Build(ctx, ds.Store(), diagram.BuildOptions{
			Title:    ds.Name(),
			All:      all,
			Resolver: ds.Resolver(),
			Scripts:  s.scripts,
			Logger:   s.logger,
		}), nil
	})

	switch format {
	case "outline":
		return mcp.NewToolResultText(diagram.RenderOutline(model)), nil
	case "mermaid":
		return mcp.NewToolResultText(diagram.RenderMermaid(model)), nil
	case diagram.FormatSVG, diagram.FormatDOT:
		var buf bytes.Buffer
		if err := diagram.RenderGraphviz(ctx, model, format, &buf); err != nil {
			return toolError("render", err), nil
		}
		return mcp.NewToolResultText(buf.String()), nil
	case diagram.FormatPNG:
		scale, _ := numberArg(req, "scale")
		var buf bytes.Buffer
		if err := diagram.RenderPNG(ctx, model, diagram.PNGOptions{Scale: scale, Logger: s.logger}, &buf); err != nil {
			return toolError("render", err), nil
		}
		encoded := base64.StdEncoding.EncodeToString(buf.Bytes())
		return mcp.NewToolResultImage(model.Title, encoded, "image/png"), nil
	default:
		return mcp.NewToolResultError("format must be png, svg, dot, mermaid or outline"), nil
	}
}

// handleDocument creates, opens and saves documents.
func (s *DiagramServer) handleDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.captureSession(ctx, req)
	action, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError("action is required"), nil
	}
	path := req.GetString("path", "")
	id := req.GetString("id", "")
	name := req.GetString("name", "")
	discard := req.GetBool("discard_changes", false)

	switch action {
	case "library_list":
		if s.library == nil {
			return toolError("list library", schema.NewError(schema.ErrCodeStore, "no document library configured")), nil
		}
		docs, err := s.library.ListDocuments(ctx, store.DocumentFilter{NameContains: name})
		if err != nil {
			return toolError("list library", err), nil
		}
		if docs == nil {
			docs = []*store.Document{}
		}
		return marshalResult(map[string]any{"documents": docs})
	case "revisions":
		if s.library == nil {
			return toolError("list revisions", schema.NewError(schema.ErrCodeStore, "no document library configured")), nil
		}
		if id == "" {
			id = s.session.DocumentID()
		}
		revs, err := s.library.ListRevisions(ctx, store.RevisionFilter{DocumentID: id})
		if err != nil {
			return toolError("list revisions", err), nil
		}
		if revs == nil {
			revs = []*store.Revision{}
		}
		return marshalResult(map[string]any{"document_id": id, "revisions": revs})
	}

	res, err := session.View(s.session, func(ds *session.DocumentSession) (stateResult, error) {
		guard := func() error {
			if ds.Modified() && !discard {
				return schema.NewError(schema.ErrCodeConflict, "document has unsaved changes; save first or pass discard_changes")
			}
			return nil
		}
		var err error
		switch action {
		case "new":
			if err = guard(); err == nil {
				err = ds.NewDocument()
			}
		case "open":
			if path == "" {
				return stateResult{}, schema.NewError(schema.ErrCodeValidation, "path is required to open")
			}
			if err = guard(); err == nil {
				err = ds.Open(ctx, path)
			}
		case "save":
			err = ds.Save(ctx)
		case "save_as":
			if path == "" {
				return stateResult{}, schema.NewError(schema.ErrCodeValidation, "path is required for save_as")
			}
			err = ds.SaveAs(ctx, path)
		case "library_save":
			err = ds.SaveToLibrary(ctx, name)
		case "library_open":
			if id == "" {
				return stateResult{}, schema.NewError(schema.ErrCodeValidation, "id is required for library_open")
			}
			if err = guard(); err == nil {
				err = ds.OpenFromLibrary(ctx, id)
			}
		case "restore_revision":
			seq, ok := numberArg(req, "sequence")
			if !ok {
				return stateResult{}, schema.NewError(schema.ErrCodeValidation, "sequence is required for restore_revision")
			}
			err = ds.RestoreRevision(ctx, int64(seq))
		default:
			err = schema.NewErrorf(schema.ErrCodeValidation, "unknown document action %q", action)
		}
		if err != nil {
			return stateResult{}, err
		}
		return describe(ds, false), nil
	})
	if err != nil {
		return toolError(action, err), nil
	}
	return marshalResult(res)
}

// --- Helpers ---

// captureSession maps the caller's client_id to its current MCP session for
// notifications.
func (s *DiagramServer) captureSession(ctx context.Context, req mcp.CallToolRequest) {
	clientID := req.GetString("client_id", "")
	if clientID == "" {
		return
	}
	if cs := server.ClientSessionFromContext(ctx); cs != nil {
		s.sessions.Register(clientID, cs.SessionID())
	}
}

// numberArg reads a numeric argument, accepting JSON numbers only.
func numberArg(req mcp.CallToolRequest, key string) (float64, bool) {
	v, ok := req.GetArguments()[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// stringArg reads a string argument and reports whether it was present.
func stringArg(req mcp.CallToolRequest, key string) (string, bool) {
	v, ok := req.GetArguments()[key].(string)
	return v, ok
}

func pointArg(req mcp.CallToolRequest) (geometry.Point, bool) {
	x, okX := numberArg(req, "x")
	y, okY := numberArg(req, "y")
	return geometry.Pt(x, y), okX && okY
}

// toolError renders a failure, keeping the DiagramError code visible to
// the caller.
func toolError(what string, err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", what, err))
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
