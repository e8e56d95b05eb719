package expressions

import (
	"context"
	"encoding/json"

	"github.com/itchyny/gojq"
	"github.com/rendis/diagrama/pkg/schema"
)

// queryPrelude is compiled in front of every program. $doc is always the
// whole document, so the helpers work at any depth of a pipeline.
const queryPrelude = `
def item($id): $doc.items[]? | select(.id == $id);
def children($id): $doc.items[]? | select(.parent_container_id == $id);
def roots: $doc.items[]? | select(.parent_container_id == null);
def links($id): $doc.connectors[]? | select(.start_item_id == $id or .end_item_id == $id);
`

// GoJQEngine runs jq programs over a persisted diagram document, for example
//
//	[.items[] | select(.type == "container") | .id]
//	children("item_1") | .properties.text
//
// Compiled programs are cached; the engine is safe for concurrent use.
type GoJQEngine struct {
	programs *programCache[*gojq.Code]
}

func NewGoJQEngine() *GoJQEngine {
	return &GoJQEngine{programs: newProgramCache[*gojq.Code]()}
}

func (e *GoJQEngine) Name() string { return "jq" }

// Evaluate returns nil for no output, the value itself for one output and a
// []any for several.
func (e *GoJQEngine) Evaluate(ctx context.Context, program string, doc map[string]any) (any, error) {
	outs, err := e.run(ctx, program, doc)
	if err != nil {
		return nil, err
	}
	switch len(outs) {
	case 0:
		return nil, nil
	case 1:
		return outs[0], nil
	}
	return outs, nil
}

// EvaluateAll returns every output of program, possibly none.
func (e *GoJQEngine) EvaluateAll(ctx context.Context, program string, doc map[string]any) ([]any, error) {
	return e.run(ctx, program, doc)
}

func (e *GoJQEngine) run(ctx context.Context, program string, doc map[string]any) ([]any, error) {
	if program == "" {
		return nil, emptyExpression("jq")
	}
	code, err := e.programs.get(program, compileQuery)
	if err != nil {
		return nil, err
	}

	var outs []any
	iter := code.RunWithContext(ctx, doc, doc)
	for v, ok := iter.Next(); ok; v, ok = iter.Next() {
		if err, isErr := v.(error); isErr {
			return nil, expressionError("jq", "query failed", program, err)
		}
		outs = append(outs, v)
	}
	return outs, nil
}

func compileQuery(program string) (*gojq.Code, error) {
	parsed, err := gojq.Parse(queryPrelude + program)
	if err != nil {
		return nil, expressionError("jq", "parse", program, err)
	}
	code, err := gojq.Compile(parsed,
		gojq.WithVariables([]string{"$doc"}),
		// No $ENV or env.
		gojq.WithEnvironLoader(func() []string { return nil }),
	)
	if err != nil {
		return nil, expressionError("jq", "compile", program, err)
	}
	return code, nil
}

var _ Engine = (*GoJQEngine)(nil)

// ToJQInput converts a document (or anything that marshals to a JSON object)
// into the generic form jq operates on.
func ToJQInput(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "marshal query input").WithCause(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "query input is not a JSON object").WithCause(err)
	}
	return doc, nil
}
