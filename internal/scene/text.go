package scene

import (
	"math"
	"sync"

	"github.com/golang/freetype/truetype"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

// maxTextFaces bounds the cached faces. font_size is free-form, so callers
// can ask for any number of sizes.
const maxTextFaces = 64

var (
	textFontOnce sync.Once
	textFont     *truetype.Font
	textFaces, _ = lru.New[float64, font.Face](maxTextFaces)
)

// FontFace returns the Go regular font at the given point size, or nil if
// the embedded font cannot be parsed. Sizes are rounded to a quarter point
// and faces are cached per rounded size.
func FontFace(size float64) font.Face {
	textFontOnce.Do(func() {
		f, err := truetype.Parse(goregular.TTF)
		if err == nil {
			textFont = f
		}
	})
	if textFont == nil {
		return nil
	}
	size = max(math.Round(size*4)/4, 0.25)
	if face, ok := textFaces.Get(size); ok {
		return face
	}
	face := truetype.NewFace(textFont, &truetype.Options{Size: size, DPI: 72})
	textFaces.Add(size, face)
	return face
}

// MeasureText returns the advance width and line height of s at the given
// point size using the Go regular font.
func MeasureText(s string, size float64) (w, h float64) {
	if size <= 0 {
		size = 10
	}
	face := FontFace(size)
	if face == nil {
		return float64(len(s)) * size * 0.6, size * 1.2
	}
	adv := font.MeasureString(face, s)
	m := face.Metrics()
	return float64(adv) / 64, float64(m.Height) / 64
}

// fitTextSize sizes a text node to its content with a small padding.
func fitTextSize(n *Node) {
	w, h := MeasureText(n.Text(), n.FontSize())
	n.Width = w + 10
	n.Height = h + 5
}
