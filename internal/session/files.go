package session

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/rendis/diagrama/internal/codec"
	"github.com/rendis/diagrama/internal/logging"
	"github.com/rendis/diagrama/internal/store"
	"github.com/rendis/diagrama/internal/streaming"
	"github.com/rendis/diagrama/pkg/schema"
)

// NewDocument discards the current diagram and starts an empty one with a
// fresh id. Unsaved changes are lost; callers check Modified first.
func (s *DocumentSession) NewDocument() error {
	s.rebind(uuid.NewString())
	s.path, s.name = "", ""
	s.importedImages = nil
	s.modified = false
	return s.history.Reset(newDocumentDesc)
}

// Open loads a diagram file and resets the history to a single
// "Open <file>" entry.
func (s *DocumentSession) Open(ctx context.Context, path string) error {
	ctx = logging.WithAction(ctx, "open")
	data, err := store.ReadDocumentFile(path)
	if err != nil {
		return err
	}
	doc, err := s.decode(data)
	if err != nil {
		return openError(path, err)
	}
	s.load(ctx, uuid.NewString(), doc)
	s.path = path
	s.name = filepath.Base(path)
	if err := s.history.Reset("Open " + s.name); err != nil {
		return err
	}
	s.publish(documentEvent(schema.EventDocumentOpened, path))
	return nil
}

// OpenFromLibrary loads a library document by id.
func (s *DocumentSession) OpenFromLibrary(ctx context.Context, id string) error {
	ctx = logging.WithAction(logging.WithDocumentID(ctx, id), "open")
	lib, err := s.requireLibrary()
	if err != nil {
		return err
	}
	rec, err := lib.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	doc, err := s.decode(rec.Content)
	if err != nil {
		return openError("library document "+id, err)
	}
	s.load(ctx, rec.ID, doc)
	s.path = rec.Path
	s.name = rec.Name
	if err := s.history.Reset("Open " + s.Name()); err != nil {
		return err
	}
	s.publish(documentEvent(schema.EventDocumentOpened, id))
	return nil
}

// openError keeps validation failures as they are and reports anything else
// as an I/O failure of what.
func openError(what string, err error) error {
	if schema.HasCode(err, schema.ErrCodeValidation) {
		return err
	}
	return schema.NewErrorf(schema.ErrCodeIO, "cannot open %s", what).WithCause(err)
}

// decode validates data when a validator is configured and decodes it.
func (s *DocumentSession) decode(data []byte) (*schema.Document, error) {
	if s.validator != nil {
		res := s.validator.Check(data)
		for _, w := range res.Warnings {
			s.logger.Warn("document issue", "path", w.Path, "code", w.Code, "message", w.Message)
		}
		if err := res.ToError(); err != nil {
			return nil, err
		}
	}
	return codec.Decode(data)
}

func (s *DocumentSession) load(ctx context.Context, id string, doc *schema.Document) {
	s.rebind(id)
	rep := codec.Load(s.store, doc, s.logger)
	if len(rep.Dropped) > 0 {
		logging.LogWith(ctx, s.base).Warn("records skipped while loading", "dropped", rep.Dropped)
	}
	s.applySceneProperties(doc.SceneProperties)
	s.modified = false
}

// Save writes the diagram to its current path.
func (s *DocumentSession) Save(ctx context.Context) error {
	if s.path == "" {
		return schema.NewError(schema.ErrCodeValidation, "diagram has no file yet; use save as")
	}
	return s.SaveAs(ctx, s.path)
}

// SaveAs writes the diagram to path and makes it the current path.
func (s *DocumentSession) SaveAs(ctx context.Context, path string) error {
	if strings.TrimSpace(path) == "" {
		return schema.NewError(schema.ErrCodeValidation, "file path is required")
	}
	ctx = logging.WithAction(logging.WithDocumentID(ctx, s.id), "save")
	data, err := s.encodeLive()
	if err != nil {
		return err
	}
	if err := store.WriteDocumentFile(path, data); err != nil {
		return err
	}
	s.path = path
	s.name = filepath.Base(path)
	s.modified = false
	logging.LogWith(ctx, s.base).Info("diagram saved", "path", path, "bytes", len(data))
	s.publish(documentEvent(schema.EventDocumentSaved, path))
	return nil
}

// encodeLive serializes the live state. While previewing that is the state
// held aside, not the entry on screen.
func (s *DocumentSession) encodeLive() ([]byte, error) {
	if s.history.Previewing() {
		return nil, schema.NewError(schema.ErrCodeReadOnly, "return to present before saving")
	}
	return codec.EncodeIndent(s.Document())
}

// SaveToLibrary stores the diagram in the library under name and records a
// save revision.
func (s *DocumentSession) SaveToLibrary(ctx context.Context, name string) error {
	ctx = logging.WithAction(logging.WithDocumentID(ctx, s.id), "library_save")
	lib, err := s.requireLibrary()
	if err != nil {
		return err
	}
	if name == "" {
		name = s.Name()
	}
	desc := ""
	if e, ok := s.history.Entry(s.history.Current()); ok {
		desc = e.Description
	}
	content, err := s.putLibrary(ctx, lib, name)
	if err != nil {
		return err
	}
	if err := lib.AppendRevision(ctx, &store.Revision{
		DocumentID:  s.id,
		Kind:        store.RevisionSave,
		Description: desc,
		Content:     content,
	}); err != nil {
		return err
	}
	s.name = name
	s.lastAutosave = string(content)
	s.publish(documentEvent(schema.EventDocumentSaved, "library:"+s.id))
	return nil
}

// Autosave records an autosave revision in the library when the live state
// changed since the last library write. It does nothing while previewing or
// without a library, and never touches the file or the modified flag.
func (s *DocumentSession) Autosave(ctx context.Context) (bool, error) {
	if s.library == nil || s.history.Previewing() {
		return false, nil
	}
	ctx = logging.WithAction(logging.WithDocumentID(ctx, s.id), "autosave")
	state, err := s.Snapshot()
	if err != nil {
		return false, err
	}
	if state == s.lastAutosave {
		return false, nil
	}
	content, err := s.putLibrary(ctx, s.library, s.Name())
	if err != nil {
		return false, err
	}
	if err := s.library.AppendRevision(ctx, &store.Revision{
		DocumentID:  s.id,
		Kind:        store.RevisionAutosave,
		Description: "Autosave",
		Content:     content,
	}); err != nil {
		return false, err
	}
	s.lastAutosave = state
	logging.LogWith(ctx, s.base).Debug("autosaved", "bytes", len(content))
	s.publish(documentEvent(schema.EventDocumentAutosave, s.id))
	return true, nil
}

// RestoreRevision makes a library revision of this document the live state.
func (s *DocumentSession) RestoreRevision(ctx context.Context, sequence int64) error {
	if err := s.writable(); err != nil {
		return err
	}
	lib, err := s.requireLibrary()
	if err != nil {
		return err
	}
	rev, err := lib.GetRevision(ctx, s.id, sequence)
	if err != nil {
		return err
	}
	doc, err := s.decode(rev.Content)
	if err != nil {
		return err
	}
	s.drag = nil
	codec.Load(s.store, doc, s.logger)
	s.applySceneProperties(doc.SceneProperties)
	return s.commit("Restored revision " + strconv.FormatInt(sequence, 10))
}

// putLibrary upserts the canonical snapshot and returns it.
func (s *DocumentSession) putLibrary(ctx context.Context, lib store.DocumentStore, name string) ([]byte, error) {
	state, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	nodes, _ := s.store.Len()
	content := []byte(state)
	if err := lib.SaveDocument(ctx, &store.Document{
		ID:        s.id,
		Name:      name,
		Path:      s.path,
		Content:   content,
		ItemCount: nodes,
	}); err != nil {
		return nil, err
	}
	return content, nil
}

func documentEvent(typ, ref string) streaming.SceneEvent {
	return streaming.SceneEvent{EventType: typ, Payload: map[string]any{"ref": ref}}
}

func (s *DocumentSession) requireLibrary() (store.DocumentStore, error) {
	if s.library == nil {
		return nil, schema.NewError(schema.ErrCodeStore, "no document library configured")
	}
	return s.library, nil
}
