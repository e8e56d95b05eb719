package diagram

import (
	"bytes"
	"context"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/diagrama/internal/codec"
	"github.com/rendis/diagrama/internal/geometry"
	"github.com/rendis/diagrama/internal/scene"
	"github.com/rendis/diagrama/internal/script"
	"github.com/rendis/diagrama/pkg/schema"
)

// sampleStore builds: item_1 container "Services" holding item_2 "API",
// item_3 ellipse "DB", and item_4 connecting item_1 to item_3.
func sampleStore(t *testing.T) *scene.Store {
	t.Helper()
	s := scene.NewStore()
	box, err := s.AddNode("container", geometry.Pt(0, 0), map[string]any{"text": "Services"})
	require.NoError(t, err)
	api, err := s.AddNode("rectangle", geometry.Pt(20, 40), map[string]any{"text": "API"})
	require.NoError(t, err)
	require.NoError(t, s.Reparent(api.ID, box.ID))
	db, err := s.AddNode("ellipse", geometry.Pt(400, 0), map[string]any{"text": "DB", "fill_color": "#80ff0000"})
	require.NoError(t, err)
	e := s.AddEdge(box.ID, db.ID)
	require.NotNil(t, e)
	label := "reads"
	require.NoError(t, s.SetEdgeStyle(e.ID, scene.EdgeStyle{Text: &label}))
	return s
}

func TestBuild_VisibleOnly(t *testing.T) {
	m := Build(context.Background(), sampleStore(t), BuildOptions{Title: "arch"})

	require.Len(t, m.Nodes, 2)
	assert.Equal(t, "item_1", m.Nodes[0].ID)
	assert.Equal(t, "item_3", m.Nodes[1].ID)
	assert.Nil(t, m.Node("item_2"))
	assert.Equal(t, "/", m.Context)
	assert.Equal(t, geometry.Rect{X: -8, Y: -8, W: 516, H: 166}, m.Bounds)

	box := m.Node("item_1")
	assert.True(t, box.Container)
	assert.Equal(t, scene.OutlineFrame, box.Outline)
	assert.Equal(t, []string{"item_2"}, box.Children)

	require.Len(t, m.Edges, 1)
	e := m.Edges[0]
	assert.Equal(t, "item_1", e.From)
	assert.Equal(t, "item_3", e.To)
	assert.Equal(t, "reads", e.Label)
	assert.True(t, e.HasArrow)
	assert.Equal(t, e.Points[len(e.Points)-1], e.Arrow[0])
	require.Len(t, e.Points, 2)
	assert.Equal(t, geometry.Seg(e.Points[0], e.Points[1]).Midpoint(), e.LabelAt)
}

func TestBuild_All(t *testing.T) {
	m := Build(context.Background(), sampleStore(t), BuildOptions{All: true})
	require.Len(t, m.Nodes, 3)
	assert.Equal(t, "item_1", m.Node("item_2").Parent)
}

func TestBuild_ScriptItems(t *testing.T) {
	s := scene.NewStore()
	_, err := s.AddNode("script", geometry.Pt(0, 0), nil)
	require.NoError(t, err)

	m := Build(context.Background(), s, BuildOptions{})
	assert.Nil(t, m.Nodes[0].Script, "no interpreter, no display list")

	m = Build(context.Background(), s, BuildOptions{Scripts: script.NewInterpreter(nil, nil)})
	require.NotNil(t, m.Nodes[0].Script)
	assert.Len(t, m.Nodes[0].Script.Ops, 2)
}

func TestFromDocument(t *testing.T) {
	ctx := context.Background()
	doc := codec.Snapshot(sampleStore(t), codec.SceneInfo{Width: 2000, Height: 1500})

	m, err := FromDocument(ctx, doc, "item_1", BuildOptions{})
	require.NoError(t, err)
	require.Len(t, m.Nodes, 1)
	assert.Equal(t, "item_2", m.Nodes[0].ID)
	assert.Empty(t, m.Edges)
	assert.Equal(t, "/ Services", m.Context)

	_, err = FromDocument(ctx, doc, "item_9", BuildOptions{})
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))
	_, err = FromDocument(ctx, doc, "item_3", BuildOptions{})
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))
}

func TestRenderOutline(t *testing.T) {
	m := Build(context.Background(), sampleStore(t), BuildOptions{Title: "arch", All: true})
	out := RenderOutline(m)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.GreaterOrEqual(t, len(lines), 7)
	assert.Equal(t, "=== arch ===", lines[0])
	assert.Equal(t, "/", lines[1])
	assert.Equal(t, `├─ item_1 [container] "Services" at (0,0) 200x150`, lines[2])
	assert.Equal(t, `│  └─ item_2 [rectangle] "API" at (20,40) 100x50`, lines[3])
	assert.Equal(t, `└─ item_3 [ellipse] "DB" at (400,0) 100x50`, lines[4])
	assert.Contains(t, out, "Connectors:\n  item_4: item_1 ─→ item_3  \"reads\"")
}

func TestRenderMermaid(t *testing.T) {
	m := Build(context.Background(), sampleStore(t), BuildOptions{Title: "arch", All: true})
	out := RenderMermaid(m)

	assert.True(t, strings.HasPrefix(out, "graph TD\n"))
	assert.Contains(t, out, "%% arch")
	assert.Contains(t, out, `subgraph item_1["Services"]`)
	assert.Contains(t, out, `        item_2["API"]`)
	assert.Contains(t, out, `item_3(["DB"])`)
	assert.Contains(t, out, "item_1 -->|reads| item_3")
	assert.Contains(t, out, "style item_3 fill:#ff0000,stroke:#000000")
}

func TestMermaidNodeDef_Shapes(t *testing.T) {
	tests := []struct {
		outline scene.Outline
		want    string
	}{
		{scene.OutlineRect, `n["x"]`},
		{scene.OutlineEllipse, `n(["x"])`},
		{scene.OutlineDiamond, `n{"x"}`},
		{scene.OutlineText, `n>"x"]`},
		{scene.OutlinePersona, `n(("x"))`},
		{scene.OutlineScript, `n[["x"]]`},
	}
	for _, tt := range tests {
		t.Run(string(tt.outline), func(t *testing.T) {
			assert.Equal(t, tt.want, mermaidNodeDef(&Node{ID: "n", Label: "x", Outline: tt.outline}))
		})
	}
}

func TestColorConversions(t *testing.T) {
	assert.Equal(t, "#112233", mermaidColor("#ff112233"))
	assert.Equal(t, "none", mermaidColor("transparent"))
	assert.Equal(t, "#112233ff", graphvizColor("#ff112233"))
	assert.Equal(t, "red", graphvizColor("red"))
	assert.Equal(t, `a'b' c`, mermaidEscapeLabel("a\"b\"\nc"))
}

func TestRenderPNG(t *testing.T) {
	m := Build(context.Background(), sampleStore(t), BuildOptions{Scripts: script.NewInterpreter(nil, nil)})

	var buf bytes.Buffer
	require.NoError(t, RenderPNG(context.Background(), m, PNGOptions{Scale: 2}, &buf))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, (516+2*defaultMargin)*2, img.Bounds().Dx())
	assert.Equal(t, (166+2*defaultMargin)*2, img.Bounds().Dy())
}

func TestRenderPNG_AllOutlines(t *testing.T) {
	s := scene.NewStore()
	x := 0.0
	for _, kind := range s.Registry().Kinds() {
		_, err := s.AddNode(string(kind), geometry.Pt(x, 0), nil)
		require.NoError(t, err)
		x += 250
	}
	_, err := s.AddNode("user_image_/does/not/exist.png", geometry.Pt(x, 0), nil)
	require.NoError(t, err)

	m := Build(context.Background(), s, BuildOptions{Scripts: script.NewInterpreter(nil, nil)})
	var buf bytes.Buffer
	require.NoError(t, RenderPNG(context.Background(), m, PNGOptions{}, &buf))
	assert.Equal(t, []byte("\x89PNG"), buf.Bytes()[:4])
}

func TestRenderPNG_EmptyModel(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderPNG(context.Background(), &Model{}, PNGOptions{}, &buf))
	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 1+2*defaultMargin, img.Bounds().Dx())
}

func TestRenderGraphviz(t *testing.T) {
	m := Build(context.Background(), sampleStore(t), BuildOptions{All: true})

	var dot bytes.Buffer
	require.NoError(t, RenderGraphviz(context.Background(), m, FormatDOT, &dot))
	assert.Contains(t, dot.String(), "cluster_item_1")
	assert.Contains(t, dot.String(), "item_3")

	var svg bytes.Buffer
	require.NoError(t, RenderGraphviz(context.Background(), m, FormatSVG, &svg))
	assert.Contains(t, svg.String(), "<svg")

	var img bytes.Buffer
	require.NoError(t, RenderGraphviz(context.Background(), m, FormatPNG, &img))
	assert.Equal(t, byte(0x89), img.Bytes()[0])

	err := RenderGraphviz(context.Background(), m, "gif", &img)
	assert.Error(t, err)
}
