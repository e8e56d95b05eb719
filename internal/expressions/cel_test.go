package expressions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/diagrama/pkg/schema"
)

func TestNewCELEngine(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)
	assert.Equal(t, "cel", e.Name())
}

func TestCEL_ItemPredicate(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	item := map[string]any{"id": "item_1", "kind": "container", "width": 200.0, "text": "Backend"}
	cases := []struct {
		expr string
		want bool
	}{
		{`item.kind == "container"`, true},
		{`item.kind == "container" && item.width > 150.0`, true},
		{`item.text.startsWith("Front")`, false},
		{`has(item.parent)`, false},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			got, err := e.Match(context.Background(), tc.expr, map[string]any{"item": item})
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCEL_SceneVariable(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)
	out, err := e.Evaluate(context.Background(), `scene.path`, map[string]any{"scene": map[string]any{"path": "/ A"}})
	require.NoError(t, err)
	assert.Equal(t, "/ A", out)
}

func TestCEL_MissingVariablesDefaultToEmpty(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)
	got, err := e.Match(context.Background(), `size(item) == 0 && size(scene) == 0`, nil)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestCEL_NonBooleanPredicate(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)
	_, err = e.Match(context.Background(), `1 + 2`, nil)
	assert.True(t, schema.HasCode(err, schema.ErrCodeExpression))
}

func TestCEL_CompileError(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)
	_, err = e.Evaluate(context.Background(), `item.kind ==`, nil)
	assert.True(t, schema.HasCode(err, schema.ErrCodeExpression))

	_, err = e.Evaluate(context.Background(), `document.id`, nil)
	assert.True(t, schema.HasCode(err, schema.ErrCodeExpression), "unknown variables do not compile")

	_, err = e.Evaluate(context.Background(), "", nil)
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))
}

func TestCEL_MissingKeyIsRuntimeError(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)
	_, err = e.Evaluate(context.Background(), `item.width > 1.0`, map[string]any{"item": map[string]any{}})
	assert.True(t, schema.HasCode(err, schema.ErrCodeExpression))
}
