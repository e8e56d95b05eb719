package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rendis/diagrama/pkg/schema"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

const documentSchemaURL = "https://diagrama.dev/schemas/document.json"

// documentSchemaJSON is the JSON Schema of a persisted diagram document.
const documentSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://diagrama.dev/schemas/document.json",
  "type": "object",
  "properties": {
    "items": {
      "type": "array",
      "items": { "$ref": "#/$defs/item" }
    },
    "connectors": {
      "type": "array",
      "items": { "$ref": "#/$defs/connector" }
    },
    "scene_properties": { "$ref": "#/$defs/scene" }
  },
  "$defs": {
    "item": {
      "type": "object",
      "required": ["type", "x", "y", "width", "height"],
      "properties": {
        "type": { "type": "string", "minLength": 1 },
        "id": { "type": "string" },
        "x": { "type": "number" },
        "y": { "type": "number" },
        "width": { "type": "number", "minimum": 0 },
        "height": { "type": "number", "minimum": 0 },
        "z": { "type": "number" },
        "properties": { "type": ["object", "null"] },
        "parent_container_id": { "type": ["string", "null"] },
        "child_item_ids": {
          "type": "array",
          "items": { "type": "string" }
        },
        "image_path": { "type": "string" },
        "paint_script": { "type": "string" }
      }
    },
    "connector": {
      "type": "object",
      "required": ["start_item_id", "end_item_id"],
      "properties": {
        "type": { "const": "connector" },
        "id": { "type": "string" },
        "start_item_id": { "type": "string", "minLength": 1 },
        "end_item_id": { "type": "string", "minLength": 1 },
        "line_color": { "type": "string" },
        "line_width": { "type": "number", "minimum": 0 },
        "arrow_size": { "type": "number", "minimum": 0 },
        "text": { "type": "string" },
        "font_size": { "type": "integer", "minimum": 0 },
        "connection_style": {
          "type": "string",
          "enum": ["direct", "orthogonal", "diagonal"]
        }
      }
    },
    "scene": {
      "type": "object",
      "properties": {
        "width": { "type": "number", "minimum": 0 },
        "height": { "type": "number", "minimum": 0 },
        "next_item_id": { "type": "integer", "minimum": 1 },
        "active_container_id": { "type": ["string", "null"] },
        "imported_images": {
          "type": ["array", "null"],
          "items": { "type": "string" }
        }
      }
    }
  }
}`

// DocumentValidator checks persisted documents against the document schema
// and a few referential rules the schema cannot express. It is safe for
// concurrent use.
type DocumentValidator struct {
	documentSchema *jsonschema.Schema
	kinds          map[string]struct{}
}

// Option configures a DocumentValidator.
type Option func(*DocumentValidator)

// WithKinds makes unknown item types a warning. Types starting with prefix
// "user_image_" are always accepted.
func WithKinds(kinds []string) Option {
	return func(v *DocumentValidator) {
		v.kinds = make(map[string]struct{}, len(kinds))
		for _, k := range kinds {
			v.kinds[k] = struct{}{}
		}
	}
}

// NewDocumentValidator compiles the document schema.
func NewDocumentValidator(opts ...Option) (*DocumentValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(documentSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal document schema: %w", err)
	}
	if err := c.AddResource(documentSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add document schema resource: %w", err)
	}
	compiled, err := c.Compile(documentSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile document schema: %w", err)
	}

	v := &DocumentValidator{documentSchema: compiled}
	for _, o := range opts {
		o(v)
	}
	return v, nil
}

// Validate returns a VALIDATION_ERROR when data is not a loadable document.
// Warnings alone do not fail validation.
func (v *DocumentValidator) Validate(data []byte) error {
	return v.Check(data).ToError()
}

// Check runs the schema and the referential rules and collects every issue.
//
// Errors: malformed JSON, schema violations, duplicate ids.
// Warnings: connectors or parents referring to missing items, self-loop
// connectors, unknown item types. Loading skips those records.
func (v *DocumentValidator) Check(data []byte) *schema.ValidationResult {
	res := &schema.ValidationResult{}

	inst, err := jsonschema.UnmarshalJSON(strings.NewReader(string(data)))
	if err != nil {
		res.AddError("/", schema.ErrCodeValidation, fmt.Sprintf("invalid JSON: %v", err))
		return res
	}
	if err := v.documentSchema.Validate(inst); err != nil {
		for _, msg := range violations(err) {
			res.AddError("/", schema.ErrCodeValidation, msg)
		}
		return res
	}

	var doc schema.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		res.AddError("/", schema.ErrCodeValidation, fmt.Sprintf("decode document: %v", err))
		return res
	}
	v.checkReferences(&doc, res)
	return res
}

func (v *DocumentValidator) checkReferences(doc *schema.Document, res *schema.ValidationResult) {
	ids := make(map[string]string, len(doc.Items)+len(doc.Connectors))
	claim := func(id, path string) {
		if id == "" {
			return
		}
		if prev, dup := ids[id]; dup {
			res.AddError(path+".id", schema.ErrCodeConflict,
				fmt.Sprintf("duplicate id %q (also used by %s)", id, prev))
			return
		}
		ids[id] = path
	}

	items := make(map[string]struct{}, len(doc.Items))
	for i, it := range doc.Items {
		path := fmt.Sprintf("items[%d]", i)
		claim(it.ID, path)
		if it.ID != "" {
			items[it.ID] = struct{}{}
		}
		if v.kinds != nil && !strings.HasPrefix(it.Type, "user_image_") {
			if _, ok := v.kinds[it.Type]; !ok {
				res.AddWarning(path+".type", schema.ErrCodeUnknownKind,
					fmt.Sprintf("unknown item type %q", it.Type))
			}
		}
	}
	for i, it := range doc.Items {
		parent := schema.StringValue(it.ParentContainerID)
		if parent == "" {
			continue
		}
		if _, ok := items[parent]; !ok {
			res.AddWarning(fmt.Sprintf("items[%d].parent_container_id", i), schema.ErrCodeNotFound,
				fmt.Sprintf("parent %q does not exist", parent))
		}
	}

	for i, c := range doc.Connectors {
		path := fmt.Sprintf("connectors[%d]", i)
		claim(c.ID, path)
		for _, end := range []struct{ field, id string }{
			{"start_item_id", c.StartItemID},
			{"end_item_id", c.EndItemID},
		} {
			if _, ok := items[end.id]; !ok {
				res.AddWarning(path+"."+end.field, schema.ErrCodeNotFound,
					fmt.Sprintf("connector endpoint %q does not exist", end.id))
			}
		}
		if c.StartItemID == c.EndItemID {
			res.AddWarning(path, schema.ErrCodeConflict,
				fmt.Sprintf("connector %q connects %q to itself", c.ID, c.StartItemID))
		}
	}

	if active := schema.StringValue(doc.SceneProperties.ActiveContainerID); active != "" {
		if _, ok := items[active]; !ok {
			res.AddWarning("scene_properties.active_container_id", schema.ErrCodeNotFound,
				fmt.Sprintf("active container %q does not exist", active))
		}
	}
}

// violations walks a ValidationError tree and returns its leaf messages
// prefixed with their instance locations.
func violations(err error) []string {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{err.Error()}
	}
	return collectViolations(verr)
}

func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var out []string
	for _, cause := range verr.Causes {
		out = append(out, collectViolations(cause)...)
	}
	return out
}
