package validation

import (
	"testing"

	"github.com/rendis/diagrama/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validDoc = `{
  "items": [
    {"type": "container", "id": "item_1", "x": 0, "y": 0, "width": 200, "height": 150, "z": 0,
     "properties": {"text": "Group"}, "parent_container_id": null, "child_item_ids": ["item_2"]},
    {"type": "rectangle", "id": "item_2", "x": 10, "y": 10, "width": 100, "height": 50, "z": 1,
     "properties": {}, "parent_container_id": "item_1"},
    {"type": "ellipse", "id": "item_3", "x": 300, "y": 0, "width": 100, "height": 50, "z": 0,
     "properties": {}, "parent_container_id": null}
  ],
  "connectors": [
    {"type": "connector", "id": "item_4", "start_item_id": "item_2", "end_item_id": "item_3",
     "line_color": "#333333", "line_width": 2, "text": "", "font_size": 9, "connection_style": "orthogonal"}
  ],
  "scene_properties": {"width": 2000, "height": 1500, "next_item_id": 5,
    "active_container_id": null, "imported_images": []}
}`

func newValidator(t *testing.T, opts ...Option) *DocumentValidator {
	t.Helper()
	v, err := NewDocumentValidator(opts...)
	require.NoError(t, err)
	return v
}

func TestValidate_ValidDocument(t *testing.T) {
	v := newValidator(t)
	assert.NoError(t, v.Validate([]byte(validDoc)))

	res := v.Check([]byte(validDoc))
	assert.True(t, res.Valid())
	assert.Empty(t, res.Warnings)
}

func TestValidate_EmptyObjectIsLoadable(t *testing.T) {
	v := newValidator(t)
	assert.NoError(t, v.Validate([]byte(`{}`)))
}

func TestValidate_InvalidJSON(t *testing.T) {
	v := newValidator(t)
	err := v.Validate([]byte(`{"items": [`))
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))
}

func TestValidate_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"missing type", `{"items": [{"x": 0, "y": 0, "width": 1, "height": 1}]}`, "/items/0"},
		{"negative width", `{"items": [{"type": "rectangle", "x": 0, "y": 0, "width": -1, "height": 1}]}`, "/items/0/width"},
		{"bad routing", `{"connectors": [{"start_item_id": "a", "end_item_id": "b", "connection_style": "curvy"}]}`, "/connectors/0/connection_style"},
		{"fractional font size", `{"connectors": [{"start_item_id": "a", "end_item_id": "b", "font_size": 9.5}]}`, "/connectors/0/font_size"},
		{"items not array", `{"items": {}}`, "/items"},
	}
	v := newValidator(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.Check([]byte(tt.doc))
			require.False(t, res.Valid())
			assert.Contains(t, res.Errors[0].Message, tt.want)
		})
	}
}

func TestCheck_DuplicateIDs(t *testing.T) {
	doc := `{"items": [
	  {"type": "rectangle", "id": "item_1", "x": 0, "y": 0, "width": 10, "height": 10},
	  {"type": "rectangle", "id": "item_1", "x": 0, "y": 0, "width": 10, "height": 10}
	]}`
	v := newValidator(t)
	res := v.Check([]byte(doc))
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "items[1].id", res.Errors[0].Path)
	assert.Equal(t, schema.ErrCodeConflict, res.Errors[0].Code)
	assert.Contains(t, res.Errors[0].Message, "items[0]")
}

func TestCheck_DanglingReferencesAreWarnings(t *testing.T) {
	doc := `{
	  "items": [
	    {"type": "rectangle", "id": "item_1", "x": 0, "y": 0, "width": 10, "height": 10, "parent_container_id": "item_9"}
	  ],
	  "connectors": [
	    {"type": "connector", "id": "item_2", "start_item_id": "item_1", "end_item_id": "item_7"},
	    {"type": "connector", "id": "item_3", "start_item_id": "item_1", "end_item_id": "item_1"}
	  ],
	  "scene_properties": {"active_container_id": "item_8"}
	}`
	v := newValidator(t)
	res := v.Check([]byte(doc))
	assert.True(t, res.Valid())

	paths := make([]string, 0, len(res.Warnings))
	for _, w := range res.Warnings {
		paths = append(paths, w.Path)
	}
	assert.ElementsMatch(t, []string{
		"items[0].parent_container_id",
		"connectors[0].end_item_id",
		"connectors[1]",
		"scene_properties.active_container_id",
	}, paths)
	assert.NoError(t, v.Validate([]byte(doc)))
}

func TestCheck_UnknownKinds(t *testing.T) {
	doc := `{"items": [
	  {"type": "hexagon", "id": "item_1", "x": 0, "y": 0, "width": 10, "height": 10},
	  {"type": "user_image_/tmp/logo.png", "id": "item_2", "x": 0, "y": 0, "width": 10, "height": 10},
	  {"type": "rectangle", "id": "item_3", "x": 0, "y": 0, "width": 10, "height": 10}
	]}`

	res := newValidator(t).Check([]byte(doc))
	assert.Empty(t, res.Warnings, "kinds are not checked without WithKinds")

	res = newValidator(t, WithKinds([]string{"rectangle", "image"})).Check([]byte(doc))
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "items[0].type", res.Warnings[0].Path)
	assert.Equal(t, schema.ErrCodeUnknownKind, res.Warnings[0].Code)
}

func TestValidate_ErrorDetails(t *testing.T) {
	v := newValidator(t)
	err := v.Validate([]byte(`{"items": [{"type": "", "x": "a", "y": 0, "width": 1, "height": 1}]}`))
	require.Error(t, err)

	derr, ok := err.(*schema.DiagramError)
	require.True(t, ok)
	assert.GreaterOrEqual(t, derr.Details["error_count"], 2)
}
