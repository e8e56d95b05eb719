// Package session holds the explicit per-document editing state: the graph
// store, the history log, the current file path, the modified flag, the
// clipboard buffer and any in-progress drag. Every user-facing command goes
// through a DocumentSession.
package session

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/diagrama/internal/codec"
	"github.com/rendis/diagrama/internal/connector"
	"github.com/rendis/diagrama/internal/expressions"
	"github.com/rendis/diagrama/internal/geometry"
	"github.com/rendis/diagrama/internal/history"
	"github.com/rendis/diagrama/internal/scene"
	"github.com/rendis/diagrama/internal/store"
	"github.com/rendis/diagrama/internal/streaming"
	"github.com/rendis/diagrama/internal/validation"
	"github.com/rendis/diagrama/pkg/schema"
)

const (
	DefaultSceneWidth  = 2000.0
	DefaultSceneHeight = 1500.0

	// PasteOffset shifts pasted items away from their source.
	PasteOffset = 20.0

	newDocumentDesc = "New diagram"
)

// Config holds the tunable session parameters.
type Config struct {
	SceneWidth      float64
	SceneHeight     float64
	HistoryCapacity int
	HandleRadius    float64
	MinSegment      float64
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		SceneWidth:      DefaultSceneWidth,
		SceneHeight:     DefaultSceneHeight,
		HistoryCapacity: history.DefaultCapacity,
		HandleRadius:    connector.DefaultHandleRadius,
		MinSegment:      connector.DefaultMinSegment,
	}
}

// Option configures a DocumentSession.
type Option func(*DocumentSession)

// WithConfig replaces the tunables. Zero fields keep their defaults.
func WithConfig(c Config) Option {
	return func(s *DocumentSession) {
		if c.SceneWidth > 0 {
			s.cfg.SceneWidth = c.SceneWidth
		}
		if c.SceneHeight > 0 {
			s.cfg.SceneHeight = c.SceneHeight
		}
		if c.HistoryCapacity > 0 {
			s.cfg.HistoryCapacity = c.HistoryCapacity
		}
		if c.HandleRadius > 0 {
			s.cfg.HandleRadius = c.HandleRadius
		}
		if c.MinSegment > 0 {
			s.cfg.MinSegment = c.MinSegment
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *DocumentSession) { s.logger = l }
}

// WithRegistry sets the kind registry.
func WithRegistry(r *scene.Registry) Option {
	return func(s *DocumentSession) { s.registry = r }
}

// WithHub publishes every scene and history event to hub.
func WithHub(h streaming.EventHub) Option {
	return func(s *DocumentSession) { s.hub = h }
}

// WithClipboard mirrors copy and paste payloads to an external clipboard.
func WithClipboard(c Clipboard) Option {
	return func(s *DocumentSession) { s.clipboard = c }
}

// WithLibrary enables library saves and autosave revisions.
func WithLibrary(l store.DocumentStore) Option {
	return func(s *DocumentSession) { s.library = l }
}

// WithValidator checks documents on open.
func WithValidator(v *validation.DocumentValidator) Option {
	return func(s *DocumentSession) { s.validator = v }
}

// WithClock sets the history timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *DocumentSession) { s.now = now }
}

// DocumentSession is the editing state of one open diagram. It is not safe
// for concurrent use; wrap it in Locked when more than one goroutine drives
// it.
type DocumentSession struct {
	id        string
	cfg       Config
	base      *slog.Logger
	logger    *slog.Logger
	registry  *scene.Registry
	hub       streaming.EventHub
	clipboard Clipboard
	library   store.DocumentStore
	validator *validation.DocumentValidator
	now       func() time.Time

	store    *scene.Store
	resolver *connector.Resolver
	history  *history.Engine
	cel      *expressions.CELEngine
	jq       *expressions.GoJQEngine

	path           string
	name           string
	modified       bool
	importedImages []string
	// scene size of the open document; cfg holds the defaults for new ones
	sceneW, sceneH float64
	buffer         *schema.Document
	drag           *dragState
	lastAutosave   string
}

// New creates a session with an empty diagram and a single history entry.
func New(opts ...Option) (*DocumentSession, error) {
	s := &DocumentSession{
		id:  uuid.NewString(),
		cfg: DefaultConfig(),
		now: time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s.base = s.logger
	if s.registry == nil {
		s.registry = scene.DefaultRegistry()
	}
	s.rebind(s.id)

	s.resolver = connector.NewResolver(s.cfg.HandleRadius, s.cfg.MinSegment)
	s.history = history.New(historyTarget{s},
		history.WithCapacity(s.cfg.HistoryCapacity),
		history.WithClock(s.now),
		history.WithLogger(s.base),
		history.WithListener(s.forwardHistoryEvent),
	)

	cel, err := expressions.NewCELEngine()
	if err != nil {
		return nil, err
	}
	s.cel = cel
	s.jq = expressions.NewGoJQEngine()

	if err := s.history.Reset(newDocumentDesc); err != nil {
		return nil, err
	}
	return s, nil
}

// rebind gives the session a fresh, empty store owned by document id.
func (s *DocumentSession) rebind(id string) {
	s.id = id
	s.logger = s.base.With("document_id", id)
	s.store = scene.NewStore(scene.WithRegistry(s.registry), scene.WithLogger(s.logger))
	s.store.Subscribe(s.forwardSceneEvent)
	s.sceneW, s.sceneH = s.cfg.SceneWidth, s.cfg.SceneHeight
	s.drag = nil
	s.lastAutosave = ""
}

// ID returns the document id used by the library and in logs.
func (s *DocumentSession) ID() string { return s.id }

// Name returns the display name: the file base name, the library name, or
// "Untitled".
func (s *DocumentSession) Name() string {
	if s.name != "" {
		return s.name
	}
	return "Untitled"
}

// Path returns the current file path, or "" for an unsaved diagram.
func (s *DocumentSession) Path() string { return s.path }

// Modified reports unsaved changes.
func (s *DocumentSession) Modified() bool { return s.modified }

// Config returns the active tunables.
func (s *DocumentSession) Config() Config { return s.cfg }

// Store exposes the graph store for read access by renderers.
func (s *DocumentSession) Store() *scene.Store { return s.store }

// Resolver returns the connector geometry resolver.
func (s *DocumentSession) Resolver() *connector.Resolver { return s.resolver }

// History returns the history engine.
func (s *DocumentSession) History() *history.Engine { return s.history }

// ImportedImages returns the image paths imported into this diagram.
func (s *DocumentSession) ImportedImages() []string {
	return append([]string(nil), s.importedImages...)
}

// SceneInfo returns the diagram-level properties persisted with the graph.
func (s *DocumentSession) SceneInfo() codec.SceneInfo {
	return codec.SceneInfo{
		Width:          s.sceneW,
		Height:         s.sceneH,
		ImportedImages: s.importedImages,
	}
}

// applySceneProperties takes the diagram-level properties of a loaded
// document. A missing size keeps the current one.
func (s *DocumentSession) applySceneProperties(p schema.SceneProperties) {
	s.importedImages = append([]string(nil), p.ImportedImages...)
	if p.Width > 0 {
		s.sceneW = p.Width
	}
	if p.Height > 0 {
		s.sceneH = p.Height
	}
}

// Document returns a snapshot of the live graph.
func (s *DocumentSession) Document() *schema.Document {
	return codec.Snapshot(s.store, s.SceneInfo())
}

// Snapshot returns the canonical serialization of the current graph.
func (s *DocumentSession) Snapshot() (string, error) {
	return codec.Encode(s.Document())
}

// Paths resolves every visible connector, honoring an in-progress
// reconnect drag.
func (s *DocumentSession) Paths() []connector.Path {
	return s.resolver.ResolveAll(s.store, s.connectorDrag())
}

// ConnectPreview returns the rubber-band path of an in-progress connect
// drag.
func (s *DocumentSession) ConnectPreview() (connector.Path, bool) {
	if s.drag == nil || s.drag.kind != dragConnect {
		return connector.Path{}, false
	}
	from, ok := s.store.Node(s.drag.from)
	if !ok {
		return connector.Path{}, false
	}
	return s.resolver.Preview(from, s.drag.pos), true
}

// NodeAt returns the topmost visible node whose rectangle contains p.
func (s *DocumentSession) NodeAt(p geometry.Point) (*scene.Node, bool) {
	nodes := s.store.VisibleNodes()
	for i := len(nodes) - 1; i >= 0; i-- {
		if nodes[i].Bounds().Contains(p) {
			return nodes[i], true
		}
	}
	return nil, false
}

// ConnectorAt returns the topmost visible connector near p.
func (s *DocumentSession) ConnectorAt(p geometry.Point) (*scene.Edge, bool) {
	return s.resolver.EdgeAt(s.store, p)
}

// historyTarget adapts the session to history.Target.
type historyTarget struct{ s *DocumentSession }

func (t historyTarget) Snapshot() (string, error) { return t.s.Snapshot() }

func (t historyTarget) Load(state string) error {
	s := t.s
	s.drag = nil
	doc, _, err := codec.LoadString(s.store, state, s.logger)
	if err != nil {
		return err
	}
	s.applySceneProperties(doc.SceneProperties)
	return nil
}

// writable rejects mutations while a past history entry is shown.
func (s *DocumentSession) writable() error {
	if s.history.Previewing() {
		return schema.NewError(schema.ErrCodeReadOnly, "diagram is showing a history entry; return to present first")
	}
	return nil
}

// commit records a finished user action in the history log and marks the
// document modified.
func (s *DocumentSession) commit(description string) error {
	captured, err := s.history.Capture(description)
	if err != nil {
		s.logger.Warn("history capture failed", "description", description, "error", err)
		return err
	}
	if captured {
		s.modified = true
	}
	return nil
}

func (s *DocumentSession) publish(event streaming.SceneEvent) {
	if s.hub == nil {
		return
	}
	event.DocumentID = s.id
	if err := s.hub.Publish(context.Background(), event); err != nil {
		s.logger.Debug("event publish failed", "event_type", event.EventType, "error", err)
	}
}

func (s *DocumentSession) forwardSceneEvent(e scene.Event) {
	s.publish(streaming.SceneEvent{ItemID: e.ID, EventType: e.Type})
}

func (s *DocumentSession) forwardHistoryEvent(event string, index int, e history.Entry) {
	s.publish(streaming.SceneEvent{
		EventType: event,
		Payload:   map[string]any{"index": index, "description": e.Description},
	})
}
