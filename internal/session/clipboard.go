package session

import (
	"github.com/atotto/clipboard"

	"github.com/rendis/diagrama/internal/codec"
	"github.com/rendis/diagrama/internal/geometry"
	"github.com/rendis/diagrama/pkg/schema"
)

// Clipboard is an external text clipboard.
type Clipboard interface {
	ReadAll() (string, error)
	WriteAll(text string) error
}

// SystemClipboard is the operating system clipboard.
type SystemClipboard struct{}

func (SystemClipboard) ReadAll() (string, error)   { return clipboard.ReadAll() }
func (SystemClipboard) WriteAll(text string) error { return clipboard.WriteAll(text) }

// SystemClipboardAvailable reports whether the platform clipboard can be
// used (on Linux it needs xclip, xsel or wl-clipboard).
func SystemClipboardAvailable() bool { return !clipboard.Unsupported }

// Copy puts one node, with every descendant if it is a container, or one
// connector in the clipboard buffer.
func (s *DocumentSession) Copy(id string) error {
	var doc *schema.Document
	if _, ok := s.store.Node(id); ok {
		doc = codec.Subtree(s.store, id)
	} else if e, ok := s.store.Edge(id); ok {
		doc = &schema.Document{
			Items:      []schema.ItemRecord{},
			Connectors: []schema.ConnectorRecord{codec.ConnectorRecord(e)},
		}
	} else {
		return schema.NewErrorf(schema.ErrCodeNotFound, "item %q not found", id).WithItem(id)
	}
	s.buffer = doc

	if s.clipboard != nil {
		data, err := codec.Encode(doc)
		if err == nil {
			err = s.clipboard.WriteAll(data)
		}
		if err != nil {
			s.logger.Warn("system clipboard write failed", "item_id", id, "error", err)
		}
	}
	return nil
}

// HasClipboard reports whether Paste has something to paste.
func (s *DocumentSession) HasClipboard() bool { return s.buffer != nil }

// Paste inserts the clipboard contents with fresh ids into the entered
// container. Items land PasteOffset away from the source, or with the copied
// root at *at. Children keep their offsets relative to the root. A copied
// connector is recreated between its original items when both still exist.
// It returns the ids of the pasted top-level items or connector.
func (s *DocumentSession) Paste(at *geometry.Point) ([]string, error) {
	if err := s.writable(); err != nil {
		return nil, err
	}
	doc := s.buffer
	if doc == nil {
		doc = s.readSystemClipboard()
	}
	if doc == nil {
		return nil, schema.NewError(schema.ErrCodeNotFound, "clipboard is empty")
	}

	offset := geometry.Pt(PasteOffset, PasteOffset)
	if at != nil && len(doc.Items) > 0 {
		offset = at.Sub(geometry.Pt(doc.Items[0].X, doc.Items[0].Y))
	}
	rep := codec.Restore(s.store, doc, codec.RestoreOptions{
		Offset:       offset,
		Parent:       s.store.Context().Active(),
		ExternalRefs: len(doc.Items) == 0,
		Logger:       s.logger,
	})

	var pasted []string
	if len(doc.Items) == 0 {
		for _, c := range doc.Connectors {
			if id, ok := rep.IDMap[c.ID]; ok {
				pasted = append(pasted, id)
			}
		}
	} else {
		pasted = rep.Roots
	}
	if len(pasted) == 0 {
		return nil, schema.NewError(schema.ErrCodeNotFound, "nothing to paste: the copied items no longer exist")
	}
	return pasted, s.commit("Paste item(s)")
}

func (s *DocumentSession) readSystemClipboard() *schema.Document {
	if s.clipboard == nil {
		return nil
	}
	text, err := s.clipboard.ReadAll()
	if err != nil || text == "" {
		return nil
	}
	doc, err := codec.Decode([]byte(text))
	if err != nil {
		s.logger.Debug("system clipboard does not hold a diagram", "error", err)
		return nil
	}
	if len(doc.Items) == 0 && len(doc.Connectors) == 0 {
		return nil
	}
	return doc
}
