package expressions

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/rendis/diagrama/pkg/schema"
)

// Selection predicates see two variables:
//   - item:  id, kind, x, y, width, height, z, text, parent, children,
//     visible, properties (connectors add start, end, routing)
//   - scene: active_container, path, next_item_id
var celVariables = []string{"item", "scene"}

// CELEngine evaluates item selection predicates such as
// `item.kind == "container" && item.width > 150.0`.
type CELEngine struct {
	env      *cel.Env
	programs *programCache[cel.Program]
}

func NewCELEngine() (*CELEngine, error) {
	opts := make([]cel.EnvOption, 0, len(celVariables))
	for _, name := range celVariables {
		opts = append(opts, cel.Variable(name, cel.MapType(cel.StringType, cel.DynType)))
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	return &CELEngine{env: env, programs: newProgramCache[cel.Program]()}, nil
}

func (e *CELEngine) Name() string { return "cel" }

func (e *CELEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	if expression == "" {
		return nil, emptyExpression("cel")
	}
	prg, err := e.programs.get(expression, e.compile)
	if err != nil {
		return nil, err
	}

	// Unset variables are empty maps, never unbound.
	vars := make(map[string]any, len(celVariables))
	for _, name := range celVariables {
		vars[name] = map[string]any{}
		if v, ok := data[name]; ok && v != nil {
			vars[name] = v
		}
	}
	out, _, err := prg.ContextEval(ctx, vars)
	if err != nil {
		return nil, expressionError("cel", "evaluation", expression, err)
	}
	return out.Value(), nil
}

// Match evaluates a predicate that must yield a bool.
func (e *CELEngine) Match(ctx context.Context, predicate string, data map[string]any) (bool, error) {
	out, err := e.Evaluate(ctx, predicate, data)
	if err != nil {
		return false, err
	}
	if b, ok := out.(bool); ok {
		return b, nil
	}
	return false, expressionError("cel", "predicate", predicate, fmt.Errorf("result is %T, not bool", out))
}

func (e *CELEngine) compile(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if err := issues.Err(); err != nil {
		return nil, expressionError("cel", "compile", expression, err)
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, expressionError("cel", "program", expression, err)
	}
	return prg, nil
}

var _ Engine = (*CELEngine)(nil)
