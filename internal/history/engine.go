// Package history keeps a bounded log of full-diagram snapshots. It replaces
// per-command undo with coarse, labelled checkpoints that can be previewed
// read-only or restored as the new live state.
package history

import (
	"io"
	"log/slog"
	"time"

	"github.com/rendis/diagrama/pkg/schema"
)

// DefaultCapacity is the default number of retained entries.
const DefaultCapacity = 50

const (
	restoredPrefix   = "Restored to: "
	clearedStartDesc = "Starting point (history cleared)"
)

// Target is the state the engine snapshots and reloads.
type Target interface {
	// Snapshot returns the canonical serialization of the current state.
	Snapshot() (string, error)
	// Load replaces the current state with a serialized one.
	Load(state string) error
}

// Mode is the engine state.
type Mode int

const (
	ModeLive Mode = iota
	ModePreviewing
)

func (m Mode) String() string {
	if m == ModePreviewing {
		return "previewing"
	}
	return "live"
}

// Entry is one checkpoint.
type Entry struct {
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description"`
	State       string    `json:"-"`
	// Unavailable marks an entry whose state failed to load.
	Unavailable bool `json:"unavailable,omitempty"`
}

// Listener is notified after captures and mode transitions.
type Listener func(event string, index int, e Entry)

// Option configures an Engine.
type Option func(*Engine)

// WithCapacity bounds the log. Values below 1 use DefaultCapacity.
func WithCapacity(n int) Option {
	return func(e *Engine) {
		if n >= 1 {
			e.capacity = n
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithListener registers a listener.
func WithListener(l Listener) Option {
	return func(e *Engine) { e.listeners = append(e.listeners, l) }
}

// Engine is the snapshot history state machine.
type Engine struct {
	target    Target
	capacity  int
	now       func() time.Time
	logger    *slog.Logger
	listeners []Listener

	entries []Entry
	current int
	preview int
	held    string
}

// New creates an engine with an empty log.
func New(target Target, opts ...Option) *Engine {
	e := &Engine{
		target:   target,
		capacity: DefaultCapacity,
		now:      time.Now,
		current:  -1,
		preview:  -1,
	}
	for _, o := range opts {
		o(e)
	}
	if e.logger == nil {
		e.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return e
}

func (e *Engine) emit(event string, index int) {
	var entry Entry
	if index >= 0 && index < len(e.entries) {
		entry = e.entries[index]
	}
	for _, l := range e.listeners {
		l(event, index, entry)
	}
}

// Mode returns the current mode.
func (e *Engine) Mode() Mode {
	if e.preview >= 0 {
		return ModePreviewing
	}
	return ModeLive
}

// Previewing reports whether mutations must be rejected.
func (e *Engine) Previewing() bool { return e.preview >= 0 }

// Current returns the live pointer, or -1 for an empty log.
func (e *Engine) Current() int { return e.current }

// PreviewIndex returns the previewed entry, or -1 when live.
func (e *Engine) PreviewIndex() int { return e.preview }

// Capacity returns the maximum number of entries.
func (e *Engine) Capacity() int { return e.capacity }

// Len returns the number of entries.
func (e *Engine) Len() int { return len(e.entries) }

// Entries returns a copy of the log, oldest first.
func (e *Engine) Entries() []Entry {
	return append([]Entry(nil), e.entries...)
}

// Entry returns the entry at index.
func (e *Engine) Entry(index int) (Entry, bool) {
	if index < 0 || index >= len(e.entries) {
		return Entry{}, false
	}
	return e.entries[index], true
}

// Capture records the current state after a mutation. It is a no-op while
// previewing and when the state equals the entry at the pointer. It reports
// whether an entry was appended.
func (e *Engine) Capture(description string) (bool, error) {
	if e.Previewing() {
		return false, nil
	}
	state, err := e.target.Snapshot()
	if err != nil {
		return false, err
	}
	if e.current >= 0 && e.entries[e.current].State == state {
		return false, nil
	}
	e.entries = e.entries[:e.current+1]
	e.entries = append(e.entries, Entry{Timestamp: e.now(), Description: description, State: state})
	e.current = len(e.entries) - 1
	if len(e.entries) > e.capacity {
		e.entries = e.entries[1:]
		e.current--
	}
	e.logger.Debug("history captured", "description", description, "index", e.current, "entries", len(e.entries))
	e.emit(schema.EventHistoryCaptured, e.current)
	return true, nil
}

// Preview loads a past entry read-only. The live state is held aside on the
// first preview so ReturnToPresent can bring it back.
func (e *Engine) Preview(index int) error {
	entry, ok := e.Entry(index)
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "history entry %d not found", index)
	}
	if entry.Unavailable {
		return unavailable(index)
	}
	entering := !e.Previewing()
	if entering {
		held, err := e.target.Snapshot()
		if err != nil {
			return err
		}
		e.held = held
	}
	if err := e.target.Load(entry.State); err != nil {
		e.entries[index].Unavailable = true
		e.logger.Warn("history entry failed to load", "index", index, "error", err)
		if entering {
			e.reloadHeld()
		} else if e.preview >= 0 {
			_ = e.target.Load(e.entries[e.preview].State)
		}
		return unavailable(index).WithCause(err)
	}
	e.preview = index
	e.emit(schema.EventHistoryPreview, index)
	return nil
}

// ReturnToPresent reloads the held live state and leaves preview mode. The
// log is untouched.
func (e *Engine) ReturnToPresent() error {
	if !e.Previewing() {
		return nil
	}
	err := e.reloadHeld()
	e.preview = -1
	e.emit(schema.EventHistoryPresent, e.current)
	return err
}

func (e *Engine) reloadHeld() error {
	state := e.held
	e.held = ""
	if state == "" && e.current >= 0 {
		state = e.entries[e.current].State
	}
	if state == "" {
		return nil
	}
	return e.target.Load(state)
}

// Restore makes a past entry the live state and captures it as
// "Restored to: <description>".
func (e *Engine) Restore(index int) error {
	entry, ok := e.Entry(index)
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "history entry %d not found", index)
	}
	if entry.Unavailable {
		return unavailable(index)
	}
	wasPreviewing := e.Previewing()
	if err := e.target.Load(entry.State); err != nil {
		e.entries[index].Unavailable = true
		if wasPreviewing {
			_ = e.ReturnToPresent()
		} else {
			_ = e.reloadHeld()
		}
		return unavailable(index).WithCause(err)
	}
	e.preview = -1
	e.held = ""
	if _, err := e.Capture(restoredPrefix + entry.Description); err != nil {
		return err
	}
	e.emit(schema.EventHistoryRestored, e.current)
	return nil
}

// ClearPrevious drops every entry but the current one, which is relabelled
// as the starting point. It reports whether anything was dropped.
func (e *Engine) ClearPrevious() (bool, error) {
	if e.Previewing() {
		return false, schema.NewError(schema.ErrCodeReadOnly, "leave history preview before clearing")
	}
	if e.current <= 0 {
		return false, nil
	}
	cur := e.entries[e.current]
	cur.Description = clearedStartDesc
	e.entries = []Entry{cur}
	e.current = 0
	return true, nil
}

// Reset empties the log and captures the current state as its first entry.
func (e *Engine) Reset(description string) error {
	e.entries = nil
	e.current = -1
	e.preview = -1
	e.held = ""
	_, err := e.Capture(description)
	return err
}

func unavailable(index int) *schema.DiagramError {
	return schema.NewErrorf(schema.ErrCodeCorruptSnapshot, "history entry %d is unavailable", index).
		WithDetails(map[string]any{"index": index})
}

// Group is a run of consecutive entries captured within the same hour.
type Group struct {
	Hour    string `json:"hour"`
	Indices []int  `json:"indices"`
}

// Groups buckets the log by wall-clock hour ("15:00") in local time.
func (e *Engine) Groups() []Group {
	var out []Group
	for i, entry := range e.entries {
		hour := entry.Timestamp.Local().Format("15") + ":00"
		if len(out) == 0 || out[len(out)-1].Hour != hour {
			out = append(out, Group{Hour: hour})
		}
		g := &out[len(out)-1]
		g.Indices = append(g.Indices, i)
	}
	return out
}
