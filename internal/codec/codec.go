// Package codec converts between a scene.Store and the persisted document
// format. Encode is canonical: the same graph always yields the same string,
// which the history log relies on for change detection.
package codec

import (
	"bytes"
	"encoding/json"

	"github.com/rendis/diagrama/internal/scene"
	"github.com/rendis/diagrama/pkg/schema"
)

// SceneInfo is the diagram-level state that lives outside the store.
type SceneInfo struct {
	Width          float64
	Height         float64
	ImportedImages []string
}

// Snapshot captures the whole store.
func Snapshot(s *scene.Store, info SceneInfo) *schema.Document {
	doc := &schema.Document{
		Items:      make([]schema.ItemRecord, 0),
		Connectors: make([]schema.ConnectorRecord, 0),
		SceneProperties: schema.SceneProperties{
			Width:             info.Width,
			Height:            info.Height,
			NextItemID:        s.NextID(),
			ActiveContainerID: schema.StringPtr(s.Context().Active()),
			ImportedImages:    append(make([]string, 0, len(info.ImportedImages)), info.ImportedImages...),
		},
	}
	for _, n := range s.Nodes() {
		doc.Items = append(doc.Items, ItemRecord(n))
	}
	for _, e := range s.Edges() {
		doc.Connectors = append(doc.Connectors, ConnectorRecord(e))
	}
	return doc
}

// Subtree captures one node and all its descendants, plus the connectors
// running between them. Used for the clipboard.
func Subtree(s *scene.Store, rootID string) *schema.Document {
	doc := &schema.Document{Items: make([]schema.ItemRecord, 0), Connectors: make([]schema.ConnectorRecord, 0)}
	root, ok := s.Node(rootID)
	if !ok {
		return doc
	}
	included := make(map[string]bool)
	var walk func(n *scene.Node)
	walk = func(n *scene.Node) {
		if included[n.ID] {
			return
		}
		included[n.ID] = true
		doc.Items = append(doc.Items, ItemRecord(n))
		for _, c := range s.Children(n.ID) {
			walk(c)
		}
	}
	walk(root)
	doc.Items[0].ParentContainerID = nil
	for _, e := range s.Edges() {
		if included[e.StartID] && included[e.EndID] {
			doc.Connectors = append(doc.Connectors, ConnectorRecord(e))
		}
	}
	return doc
}

// ItemRecord converts a node to its persisted form.
func ItemRecord(n *scene.Node) schema.ItemRecord {
	rec := schema.ItemRecord{
		Type:              string(n.Kind),
		ID:                n.ID,
		X:                 n.Position.X,
		Y:                 n.Position.Y,
		Width:             n.Width,
		Height:            n.Height,
		Z:                 n.Z,
		Properties:        scene.CloneProps(n.Properties),
		ParentContainerID: schema.StringPtr(n.ParentContainerID),
	}
	switch n.Kind {
	case scene.KindContainer:
		rec.ChildItemIDs = append(make([]string, 0, len(n.ChildIDs)), n.ChildIDs...)
	case scene.KindImage:
		rec.ImagePath = scene.PropString(n.Properties, "image_path", "")
	case scene.KindScript:
		rec.PaintScript = scene.PropString(n.Properties, "paint_script", "")
	}
	return rec
}

// ConnectorRecord converts a connector to its persisted form.
func ConnectorRecord(e *scene.Edge) schema.ConnectorRecord {
	return schema.ConnectorRecord{
		Type:            schema.ConnectorType,
		ID:              e.ID,
		StartItemID:     e.StartID,
		EndItemID:       e.EndID,
		LineColor:       e.LineColor,
		LineWidth:       e.LineWidth,
		ArrowSize:       e.ArrowSize,
		Text:            e.Text,
		FontSize:        e.FontSize,
		ConnectionStyle: string(e.Routing),
	}
}

// Encode returns the canonical compact serialization of doc.
func Encode(doc *schema.Document) (string, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return "", schema.NewError(schema.ErrCodeCorruptSnapshot, "encode snapshot").WithCause(err)
	}
	return string(b), nil
}

// EncodeIndent returns the file form of doc, indented by four spaces.
func EncodeIndent(doc *schema.Document) ([]byte, error) {
	b, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeIO, "encode document").WithCause(err)
	}
	return b, nil
}

// Decode parses a serialized document. Missing arrays decode as empty.
func Decode(data []byte) (*schema.Document, error) {
	var doc schema.Document
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		return nil, schema.NewError(schema.ErrCodeCorruptSnapshot, "decode snapshot").WithCause(err)
	}
	if doc.Items == nil {
		doc.Items = make([]schema.ItemRecord, 0)
	}
	if doc.Connectors == nil {
		doc.Connectors = make([]schema.ConnectorRecord, 0)
	}
	if doc.SceneProperties.ImportedImages == nil {
		doc.SceneProperties.ImportedImages = make([]string, 0)
	}
	return &doc, nil
}
