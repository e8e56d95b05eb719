package scene

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFontFace_CacheIsBounded(t *testing.T) {
	for i := 0; i < maxTextFaces*3; i++ {
		require.NotNil(t, FontFace(8+float64(i)*0.5))
	}
	assert.LessOrEqual(t, textFaces.Len(), maxTextFaces)
}

func TestFontFace_RoundsToQuarterPoint(t *testing.T) {
	assert.Same(t, FontFace(12.01), FontFace(12))
	assert.NotNil(t, FontFace(0.01), "tiny sizes still get a face")

	w1, h1 := MeasureText("Gateway", 12.01)
	w2, h2 := MeasureText("Gateway", 12)
	assert.Equal(t, w2, w1)
	assert.Equal(t, h2, h1)
}
