package expressions

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rendis/diagrama/pkg/schema"
)

// Engine evaluates expressions against diagram data.
// Three implementations: Expr (paint scripts), CEL (item selection),
// GoJQ (document queries).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// programCacheSize bounds each engine's compiled programs. Sources come
// from clients, so the set of distinct programs is unbounded.
const programCacheSize = 512

// programCache memoizes compiled programs by source text, evicting the
// least recently used.
type programCache[P any] struct {
	programs *lru.Cache[string, P]
}

func newProgramCache[P any]() *programCache[P] {
	c, _ := lru.New[string, P](programCacheSize) // only fails for size <= 0
	return &programCache[P]{programs: c}
}

// get returns the cached program for src, compiling it on a miss. Failed
// compiles are not cached.
func (c *programCache[P]) get(src string, compile func(string) (P, error)) (P, error) {
	if p, ok := c.programs.Get(src); ok {
		return p, nil
	}
	p, err := compile(src)
	if err != nil {
		return p, err
	}
	c.programs.Add(src, p)
	return p, nil
}

func (c *programCache[P]) len() int { return c.programs.Len() }

func emptyExpression(engine string) *schema.DiagramError {
	return schema.NewErrorf(schema.ErrCodeValidation, "%s: expression is empty", engine)
}

// expressionError wraps a parse, compile or runtime failure. The source is
// kept in the details for callers that echo it back.
func expressionError(engine, stage, src string, err error) *schema.DiagramError {
	return schema.NewErrorf(schema.ErrCodeExpression, "%s %s: %s", engine, stage, err.Error()).
		WithCause(err).
		WithDetails(map[string]any{"engine": engine, "expression": src})
}
