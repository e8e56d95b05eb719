package script

import (
	"context"
	"image/color"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/diagrama/internal/scene"
	"github.com/rendis/diagrama/pkg/schema"
)

func newInterpreter() *Interpreter {
	return NewInterpreter(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRun_DefaultScript(t *testing.T) {
	prog, err := newInterpreter().Run(context.Background(), scene.DefaultPaintScript, 100, 60, nil)
	require.NoError(t, err)
	assert.Equal(t, []Op{
		{Kind: OpFill, Color: "cyan"},
		{Kind: OpEllipse, Args: []float64{0, 0, 100, 60}},
	}, prog.Ops)
}

func TestRun_UsesProperties(t *testing.T) {
	src := strings.Join([]string{
		"# header",
		`stroke(props.border_color)`,
		`pen(3)`,
		`line(0, height / 2, width, height / 2)`,
		`text(width / 2, 10, props.text)`,
	}, "\n")
	props := map[string]any{"border_color": "#505050", "text": "Queue"}
	prog, err := newInterpreter().Run(context.Background(), src, 80, 40, props)
	require.NoError(t, err)
	require.Len(t, prog.Ops, 4)
	assert.Equal(t, []float64{0, 20, 80, 20}, prog.Ops[2].Args)
	assert.Equal(t, "Queue", prog.Ops[3].Text)
}

func TestRun_Errors(t *testing.T) {
	cases := map[string]string{
		"bad arity":     `rect(1, 2)`,
		"bad color":     `fill("ultraviolet")`,
		"non number":    `rect("a", 0, 1, 1)`,
		"compile error": `rect(0, 0,`,
		"no host calls": `exec("rm -rf /")`,
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := newInterpreter().Run(context.Background(), src, 10, 10, nil)
			require.Error(t, err)
			assert.True(t, schema.HasCode(err, schema.ErrCodeScript))
		})
	}
}

func TestRun_OpLimit(t *testing.T) {
	in := newInterpreter()
	in.maxOps = 2
	_, err := in.Run(context.Background(), "rect(0,0,1,1)\nrect(0,0,1,1)\nrect(0,0,1,1)", 10, 10, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")
}

func TestPaint_FailsSoft(t *testing.T) {
	prog := newInterpreter().Paint(context.Background(), "item_1", `fill(42)`, 100, 60, nil)
	assert.NotEmpty(t, prog.Err)
	assert.Contains(t, prog.Ops[len(prog.Ops)-1].Text, "Script error")

	prog = newInterpreter().Paint(context.Background(), "item_1", "  \n# nothing", 100, 60, nil)
	assert.True(t, prog.Empty)
	assert.Equal(t, "Empty script", prog.Ops[len(prog.Ops)-1].Text)
}

func TestParseColor(t *testing.T) {
	c, ok := ParseColor("#ddeeff")
	require.True(t, ok)
	assert.Equal(t, color.RGBA{R: 0xdd, G: 0xee, B: 0xff, A: 0xff}, c)

	c, ok = ParseColor("#80ff0000")
	require.True(t, ok)
	assert.Equal(t, uint8(0x80), c.A)

	c, ok = ParseColor("#fff")
	require.True(t, ok)
	assert.Equal(t, color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}, c)

	c, ok = ParseColor("Cyan")
	require.True(t, ok)
	assert.Equal(t, color.RGBA{G: 0xff, B: 0xff, A: 0xff}, c)

	_, ok = ParseColor("transparent")
	assert.True(t, ok)
	_, ok = ParseColor("#12345")
	assert.False(t, ok)
	_, ok = ParseColor("chartreuse-ish")
	assert.False(t, ok)
}
