package expressions

import (
	"context"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// DefaultMaxNodes bounds the AST size of one paint script line.
const DefaultMaxNodes = 1000

// ExprEngine runs paint script lines with expr-lang/expr. A line sees only
// the keys of the data map, so a script can call exactly the drawing
// functions the interpreter puts there and nothing else.
//
// Programs are typed against the environment of their first run and cached
// by source, so every caller of one line must pass the same key set.
type ExprEngine struct {
	maxNodes uint
	programs *programCache[*vm.Program]
}

func NewExprEngine() *ExprEngine {
	return &ExprEngine{maxNodes: DefaultMaxNodes, programs: newProgramCache[*vm.Program]()}
}

func (e *ExprEngine) Name() string { return "expr" }

func (e *ExprEngine) Evaluate(_ context.Context, expression string, data map[string]any) (any, error) {
	if expression == "" {
		return nil, emptyExpression("expr")
	}
	env := data
	if env == nil {
		env = map[string]any{}
	}
	prg, err := e.programs.get(expression, func(src string) (*vm.Program, error) {
		prg, err := expr.Compile(src, expr.Env(env), expr.MaxNodes(e.maxNodes))
		if err != nil {
			return nil, expressionError("expr", "compile", src, err)
		}
		return prg, nil
	})
	if err != nil {
		return nil, err
	}

	out, err := vm.Run(prg, env)
	if err != nil {
		return nil, expressionError("expr", "evaluation", expression, err)
	}
	return out, nil
}

var _ Engine = (*ExprEngine)(nil)
