package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

type ctxKey int

const (
	documentIDKey ctxKey = iota
	itemIDKey
	actionKey
)

// WithDocumentID returns a context carrying the document (session) id.
func WithDocumentID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, documentIDKey, id)
}

// WithItemID returns a context carrying the item id an action targets.
func WithItemID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, itemIDKey, id)
}

// WithAction returns a context carrying the user action name.
func WithAction(ctx context.Context, action string) context.Context {
	return context.WithValue(ctx, actionKey, action)
}

// DocumentID returns the document id from ctx, or "".
func DocumentID(ctx context.Context) string {
	v, _ := ctx.Value(documentIDKey).(string)
	return v
}

// ItemID returns the item id from ctx, or "".
func ItemID(ctx context.Context) string {
	v, _ := ctx.Value(itemIDKey).(string)
	return v
}

// Action returns the action name from ctx, or "".
func Action(ctx context.Context) string {
	v, _ := ctx.Value(actionKey).(string)
	return v
}

func correlationAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	if v := DocumentID(ctx); v != "" {
		attrs = append(attrs, slog.String("document_id", v))
	}
	if v := ItemID(ctx); v != "" {
		attrs = append(attrs, slog.String("item_id", v))
	}
	if v := Action(ctx); v != "" {
		attrs = append(attrs, slog.String("action", v))
	}
	return attrs
}

// LogWith returns logger enriched with the non-empty correlation values of ctx.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	for _, a := range correlationAttrs(ctx) {
		logger = logger.With(a)
	}
	return logger
}

// CorrelationHandler injects correlation values from the record's context,
// so logger.InfoContext(ctx, ...) carries them automatically.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps inner.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(correlationAttrs(ctx)...)
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}

// ParseLevel maps debug, info, warn and error to slog levels; anything else
// is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New returns a JSON logger on w with correlation injection.
func New(w io.Writer, level string) *slog.Logger {
	inner := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	return slog.New(NewCorrelationHandler(inner))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
