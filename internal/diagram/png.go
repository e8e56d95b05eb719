package diagram

import (
	"context"
	"fmt"
	"image/color"
	"io"
	"log/slog"
	"math"

	"github.com/fogleman/gg"

	"github.com/rendis/diagrama/internal/geometry"
	"github.com/rendis/diagrama/internal/scene"
	"github.com/rendis/diagrama/internal/script"
)

// PNGOptions controls raster export.
type PNGOptions struct {
	// Scale multiplies scene units; 0 means 1.
	Scale float64
	// Margin is added around the visible bounds, in scene units.
	Margin     float64
	Background string
	Logger     *slog.Logger
}

const defaultMargin = 20

// RenderPNG paints the model at its scene positions and writes a PNG to w.
// The canvas covers the model bounds plus the margin.
func RenderPNG(ctx context.Context, model *Model, opts PNGOptions, w io.Writer) error {
	scale := opts.Scale
	if scale <= 0 {
		scale = 1
	}
	margin := opts.Margin
	if margin <= 0 {
		margin = defaultMargin
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	bounds := model.Bounds
	if bounds.Empty() {
		bounds = geometry.Rect{W: 1, H: 1}
	}
	width := int(math.Ceil((bounds.W + 2*margin) * scale))
	height := int(math.Ceil((bounds.H + 2*margin) * scale))

	dc := gg.NewContext(width, height)
	bg := opts.Background
	if bg == "" {
		bg = "white"
	}
	setColor(dc, bg, color.White)
	dc.Clear()

	dc.Scale(scale, scale)
	dc.Translate(margin-bounds.X, margin-bounds.Y)

	for _, n := range model.Nodes {
		if err := ctx.Err(); err != nil {
			return err
		}
		drawNode(dc, n, logger)
	}
	for _, e := range model.Edges {
		drawEdge(dc, e)
	}

	if err := dc.EncodePNG(w); err != nil {
		return fmt.Errorf("diagram: encode PNG: %w", err)
	}
	return nil
}

func setColor(dc *gg.Context, name string, fallback color.Color) {
	if c, ok := script.ParseColor(name); ok {
		dc.SetColor(c)
		return
	}
	dc.SetColor(fallback)
}

func setFont(dc *gg.Context, size float64) {
	if face := scene.FontFace(size); face != nil {
		dc.SetFontFace(face)
	}
}

func drawNode(dc *gg.Context, n *Node, logger *slog.Logger) {
	r := n.Rect
	dc.SetLineWidth(1)

	fillStroke := func() {
		setColor(dc, n.Fill, color.White)
		dc.FillPreserve()
		setColor(dc, n.Border, color.Black)
		dc.Stroke()
	}

	switch n.Outline {
	case scene.OutlineEllipse:
		c := r.Center()
		dc.DrawEllipse(c.X, c.Y, r.W/2, r.H/2)
		fillStroke()
	case scene.OutlineDiamond:
		c := r.Center()
		dc.MoveTo(c.X, r.Y)
		dc.LineTo(r.X+r.W, c.Y)
		dc.LineTo(c.X, r.Y+r.H)
		dc.LineTo(r.X, c.Y)
		dc.ClosePath()
		fillStroke()
	case scene.OutlineText:
		setColor(dc, n.Border, color.Black)
		setFont(dc, n.FontSize)
		dc.DrawStringWrapped(n.Label, r.X+5, r.Y+2.5, 0, 0, math.Max(r.W-10, 1), 1.2, gg.AlignLeft)
		return
	case scene.OutlineFrame:
		dc.DrawRectangle(r.X, r.Y, r.W, r.H)
		setColor(dc, n.Fill, color.White)
		dc.FillPreserve()
		dc.SetLineWidth(2)
		setColor(dc, n.Border, color.Black)
		dc.Stroke()
		setFont(dc, n.FontSize)
		dc.SetColor(color.Black)
		dc.DrawStringAnchored(firstLine(n.Label), r.X+5, r.Y+5, 0, 1)
		return
	case scene.OutlineImage:
		drawImage(dc, n, logger)
		return
	case scene.OutlineScript:
		drawScript(dc, n)
		return
	case scene.OutlinePersona:
		drawPersona(dc, n, false)
	case scene.OutlineC4Persona:
		drawPersona(dc, n, true)
	default:
		dc.DrawRectangle(r.X, r.Y, r.W, r.H)
		fillStroke()
	}
	drawLabel(dc, n)
}

func drawLabel(dc *gg.Context, n *Node) {
	if n.Label == "" {
		return
	}
	c := n.Rect.Center()
	setFont(dc, n.FontSize)
	dc.SetColor(color.Black)
	dc.DrawStringWrapped(n.Label, c.X, c.Y, 0.5, 0.5, math.Max(n.Rect.W-4, 1), 1.2, gg.AlignCenter)
}

func drawImage(dc *gg.Context, n *Node, logger *slog.Logger) {
	r := n.Rect
	img, err := gg.LoadImage(n.ImagePath)
	if err != nil {
		logger.Warn("image not available", "item_id", n.ID, "path", n.ImagePath, "error", err)
		dc.DrawRectangle(r.X, r.Y, r.W, r.H)
		dc.SetColor(color.Gray{Y: 0xdd})
		dc.FillPreserve()
		dc.SetColor(color.Gray{Y: 0x88})
		dc.Stroke()
		dc.DrawLine(r.X, r.Y, r.X+r.W, r.Y+r.H)
		dc.DrawLine(r.X+r.W, r.Y, r.X, r.Y+r.H)
		dc.Stroke()
		return
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return
	}
	dc.Push()
	dc.Translate(r.X, r.Y)
	dc.Scale(r.W/float64(b.Dx()), r.H/float64(b.Dy()))
	dc.DrawImage(img, 0, 0)
	dc.Pop()
}

// drawScript replays a script display list in item-local coordinates.
// Shapes are filled then stroked with the current colors.
func drawScript(dc *gg.Context, n *Node) {
	if n.Script == nil {
		dc.DrawRectangle(n.Rect.X, n.Rect.Y, n.Rect.W, n.Rect.H)
		dc.SetColor(color.Black)
		dc.Stroke()
		return
	}
	var fill, stroke color.Color = color.Transparent, color.Black
	pen := 1.0

	dc.Push()
	defer dc.Pop()
	dc.Translate(n.Rect.X, n.Rect.Y)

	paint := func() {
		dc.SetColor(fill)
		dc.FillPreserve()
		dc.SetLineWidth(pen)
		dc.SetColor(stroke)
		dc.Stroke()
	}
	for _, op := range n.Script.Ops {
		switch op.Kind {
		case script.OpFill:
			if c, ok := script.ParseColor(op.Color); ok {
				fill = c
			}
		case script.OpStroke:
			if c, ok := script.ParseColor(op.Color); ok {
				stroke = c
			}
		case script.OpPen:
			pen = op.Args[0]
		case script.OpRect:
			dc.DrawRectangle(op.Args[0], op.Args[1], op.Args[2], op.Args[3])
			paint()
		case script.OpEllipse:
			rx, ry := op.Args[2]/2, op.Args[3]/2
			dc.DrawEllipse(op.Args[0]+rx, op.Args[1]+ry, rx, ry)
			paint()
		case script.OpLine:
			dc.SetLineWidth(pen)
			dc.SetColor(stroke)
			dc.DrawLine(op.Args[0], op.Args[1], op.Args[2], op.Args[3])
			dc.Stroke()
		case script.OpText:
			setFont(dc, n.FontSize)
			dc.SetColor(stroke)
			dc.DrawStringWrapped(op.Text, op.Args[0], op.Args[1], 0.5, 0.5, math.Max(n.Rect.W-4, 1), 1.2, gg.AlignCenter)
		}
	}
}

// drawPersona draws a stick figure, or the C4 head-and-body block.
func drawPersona(dc *gg.Context, n *Node, c4 bool) {
	r := n.Rect
	cx := r.X + r.W/2
	head := math.Min(r.W, r.H) / 5

	if c4 {
		dc.DrawCircle(cx, r.Y+head, head)
		setColor(dc, n.Fill, color.White)
		dc.FillPreserve()
		setColor(dc, n.Border, color.Black)
		dc.Stroke()
		dc.DrawRoundedRectangle(r.X, r.Y+2*head, r.W, r.H-2*head, head/2)
		setColor(dc, n.Fill, color.White)
		dc.FillPreserve()
		setColor(dc, n.Border, color.Black)
		dc.Stroke()
		return
	}

	setColor(dc, n.Border, color.Black)
	dc.SetLineWidth(2)
	dc.DrawCircle(cx, r.Y+head, head)
	dc.Stroke()
	neck, hip := r.Y+2*head, r.Y+r.H*0.65
	dc.DrawLine(cx, neck, cx, hip)
	dc.DrawLine(r.X+r.W*0.15, neck+head, r.X+r.W*0.85, neck+head)
	dc.DrawLine(cx, hip, r.X+r.W*0.2, r.Y+r.H)
	dc.DrawLine(cx, hip, r.X+r.W*0.8, r.Y+r.H)
	dc.Stroke()
	dc.SetLineWidth(1)
}

func drawEdge(dc *gg.Context, e *Edge) {
	if len(e.Points) < 2 {
		return
	}
	width := e.Width
	if width <= 0 {
		width = 1
	}
	setColor(dc, e.Color, color.Black)
	dc.SetLineWidth(width)
	dc.MoveTo(e.Points[0].X, e.Points[0].Y)
	for _, p := range e.Points[1:] {
		dc.LineTo(p.X, p.Y)
	}
	dc.Stroke()

	if e.HasArrow {
		dc.MoveTo(e.Arrow[0].X, e.Arrow[0].Y)
		dc.LineTo(e.Arrow[1].X, e.Arrow[1].Y)
		dc.LineTo(e.Arrow[2].X, e.Arrow[2].Y)
		dc.ClosePath()
		dc.Fill()
	}

	if e.Label != "" {
		size := float64(e.FontSize)
		if size <= 0 {
			size = 10
		}
		setFont(dc, size)
		dc.SetColor(color.Black)
		dc.DrawStringAnchored(firstLine(e.Label), e.LabelAt.X, e.LabelAt.Y, 0.5, 0.5)
	}
}
