// Package script runs the paint scripts of script items. A script is a list
// of expr statements, one per line, that can only call drawing primitives and
// read the item's size and properties. The result is a display list; nothing
// in a script can reach the filesystem, the network or the host process.
package script

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rendis/diagrama/internal/expressions"
	"github.com/rendis/diagrama/pkg/schema"
)

// DefaultMaxOps bounds the display list of one script.
const DefaultMaxOps = 500

// OpKind is a drawing primitive.
type OpKind string

const (
	OpRect    OpKind = "rect"
	OpEllipse OpKind = "ellipse"
	OpLine    OpKind = "line"
	OpText    OpKind = "text"
	OpFill    OpKind = "fill"
	OpStroke  OpKind = "stroke"
	OpPen     OpKind = "pen"
)

// Op is one display list entry. Coordinates are item-local.
type Op struct {
	Kind  OpKind    `json:"kind"`
	Args  []float64 `json:"args,omitempty"`
	Text  string    `json:"text,omitempty"`
	Color string    `json:"color,omitempty"`
}

// Program is the display list produced by a script.
type Program struct {
	Ops []Op `json:"ops"`
	// Err is set when the program is an error placeholder.
	Err string `json:"error,omitempty"`
	// Empty is set when the script had no statements.
	Empty bool `json:"empty,omitempty"`
}

// Interpreter evaluates paint scripts with an expr engine.
type Interpreter struct {
	engine *expressions.ExprEngine
	maxOps int
	logger *slog.Logger
}

// NewInterpreter returns an interpreter. A nil engine gets a fresh one.
func NewInterpreter(engine *expressions.ExprEngine, logger *slog.Logger) *Interpreter {
	if engine == nil {
		engine = expressions.NewExprEngine()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Interpreter{engine: engine, maxOps: DefaultMaxOps, logger: logger}
}

// Run evaluates src for an item of the given size. Any failure aborts the
// whole script.
func (in *Interpreter) Run(ctx context.Context, src string, width, height float64, props map[string]any) (Program, error) {
	var prog Program
	if props == nil {
		props = map[string]any{}
	}
	b := &builder{max: in.maxOps}
	env := map[string]any{
		"width":   width,
		"height":  height,
		"props":   props,
		"rect":    b.shape(OpRect),
		"ellipse": b.shape(OpEllipse),
		"line":    b.shape(OpLine),
		"text":    b.text,
		"fill":    b.color(OpFill),
		"stroke":  b.color(OpStroke),
		"pen":     b.pen,
	}

	statements := 0
	for i, line := range strings.Split(src, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}
		statements++
		if _, err := in.engine.Evaluate(ctx, line, env); err != nil {
			return Program{}, schema.NewErrorf(schema.ErrCodeScript, "line %d: %s", i+1, err.Error()).WithCause(err)
		}
		if b.err != nil {
			return Program{}, schema.NewErrorf(schema.ErrCodeScript, "line %d: %s", i+1, b.err.Error()).WithCause(b.err)
		}
	}
	prog.Ops = b.ops
	prog.Empty = statements == 0
	return prog, nil
}

// Paint runs src and never fails: errors become a placeholder program that
// outlines the item and shows the message.
func (in *Interpreter) Paint(ctx context.Context, itemID, src string, width, height float64, props map[string]any) Program {
	prog, err := in.Run(ctx, src, width, height, props)
	if err != nil {
		in.logger.Warn("paint script failed", "item_id", itemID, "error", err)
		return Placeholder(width, height, err)
	}
	if prog.Empty {
		return emptyPlaceholder(width, height)
	}
	return prog
}

// Placeholder is the display list shown for a failing script.
func Placeholder(width, height float64, err error) Program {
	msg := "script error"
	if err != nil {
		msg = "Script error:\n" + err.Error()
	}
	return Program{
		Err: msg,
		Ops: []Op{
			{Kind: OpStroke, Color: "red"},
			{Kind: OpFill, Color: "transparent"},
			{Kind: OpRect, Args: []float64{0, 0, width, height}},
			{Kind: OpText, Args: []float64{width / 2, height / 2}, Text: msg},
		},
	}
}

func emptyPlaceholder(width, height float64) Program {
	return Program{
		Empty: true,
		Ops: []Op{
			{Kind: OpStroke, Color: "darkgray"},
			{Kind: OpFill, Color: "lightgray"},
			{Kind: OpRect, Args: []float64{0, 0, width, height}},
			{Kind: OpText, Args: []float64{width / 2, height / 2}, Text: "Empty script"},
		},
	}
}

// builder collects ops from the drawing functions. Errors are sticky.
type builder struct {
	ops []Op
	max int
	err error
}

func (b *builder) add(op Op) {
	if b.err != nil {
		return
	}
	if len(b.ops) >= b.max {
		b.err = fmt.Errorf("script exceeds %d drawing operations", b.max)
		return
	}
	b.ops = append(b.ops, op)
}

func (b *builder) fail(format string, args ...any) any {
	if b.err == nil {
		b.err = fmt.Errorf(format, args...)
	}
	return nil
}

func (b *builder) shape(kind OpKind) func(args ...any) any {
	return func(args ...any) any {
		if len(args) != 4 {
			return b.fail("%s expects 4 numbers, got %d arguments", kind, len(args))
		}
		nums, err := numbers(args)
		if err != nil {
			return b.fail("%s: %v", kind, err)
		}
		b.add(Op{Kind: kind, Args: nums})
		return nil
	}
}

func (b *builder) text(args ...any) any {
	if len(args) != 3 {
		return b.fail("text expects x, y and a string")
	}
	nums, err := numbers(args[:2])
	if err != nil {
		return b.fail("text: %v", err)
	}
	b.add(Op{Kind: OpText, Args: nums, Text: fmt.Sprint(args[2])})
	return nil
}

func (b *builder) color(kind OpKind) func(args ...any) any {
	return func(args ...any) any {
		if len(args) != 1 {
			return b.fail("%s expects one color", kind)
		}
		s, ok := args[0].(string)
		if !ok {
			return b.fail("%s: color must be a string", kind)
		}
		if _, ok := ParseColor(s); !ok {
			return b.fail("%s: unknown color %q", kind, s)
		}
		b.add(Op{Kind: kind, Color: s})
		return nil
	}
}

func (b *builder) pen(args ...any) any {
	if len(args) != 1 {
		return b.fail("pen expects a width")
	}
	nums, err := numbers(args)
	if err != nil || nums[0] < 0 {
		return b.fail("pen: width must be a non-negative number")
	}
	b.add(Op{Kind: OpPen, Args: nums})
	return nil
}

func numbers(args []any) ([]float64, error) {
	out := make([]float64, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case int:
			out[i] = float64(v)
		case int64:
			out[i] = float64(v)
		case float64:
			out[i] = v
		default:
			return nil, fmt.Errorf("argument %d is %T, want a number", i+1, a)
		}
	}
	return out, nil
}
