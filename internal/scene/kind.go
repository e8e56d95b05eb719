package scene

import (
	"sort"
	"strings"

	"github.com/rendis/diagrama/pkg/schema"
)

// Kind identifies a node shape variant.
type Kind string

const (
	KindRectangle Kind = "rectangle"
	KindEllipse   Kind = "ellipse"
	KindDiamond   Kind = "diamond"
	KindText      Kind = "text"
	KindContainer Kind = "container"
	KindImage     Kind = "image"
	KindScript    Kind = "script"
	KindPersona   Kind = "persona"
	KindC4Persona Kind = "c4_persona"
)

// UserImagePrefix marks palette kinds that create an image item from a path,
// e.g. "user_image_/tmp/logo.png".
const UserImagePrefix = "user_image_"

// DefaultPaintScript draws a cyan ellipse filling the item.
const DefaultPaintScript = "fill(\"cyan\")\nellipse(0, 0, width, height)"

// Outline is the geometric primitive a renderer draws for a kind.
type Outline string

const (
	OutlineRect      Outline = "rect"
	OutlineEllipse   Outline = "ellipse"
	OutlineDiamond   Outline = "diamond"
	OutlineText      Outline = "text"
	OutlineFrame     Outline = "frame"
	OutlineImage     Outline = "image"
	OutlineScript    Outline = "script"
	OutlinePersona   Outline = "persona"
	OutlineC4Persona Outline = "c4_persona"
)

// KindSpec is one row of the kind strategy table: construction defaults plus
// the hooks the store and renderers dispatch on.
type KindSpec struct {
	Kind      Kind
	Label     string
	Width     float64
	Height    float64
	Defaults  map[string]any
	Outline   Outline
	Container bool
	// Normalize runs after properties are applied (e.g. text auto-sizing).
	Normalize func(n *Node)
}

// Registry maps kinds to their specs.
type Registry struct {
	specs map[Kind]KindSpec
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[Kind]KindSpec)}
}

// DefaultRegistry returns a registry with every built-in kind.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(KindSpec{Kind: KindRectangle, Label: "Rectangle", Width: 100, Height: 50, Outline: OutlineRect,
		Defaults: map[string]any{"text": "Rectangle"}})
	r.Register(KindSpec{Kind: KindEllipse, Label: "Ellipse", Width: 100, Height: 50, Outline: OutlineEllipse,
		Defaults: map[string]any{"text": "Ellipse"}})
	r.Register(KindSpec{Kind: KindDiamond, Label: "Decision", Width: 100, Height: 50, Outline: OutlineDiamond,
		Defaults: map[string]any{"text": "Decision"}})
	r.Register(KindSpec{Kind: KindText, Label: "Text", Width: 100, Height: 50, Outline: OutlineText,
		Defaults: map[string]any{
			"text":         "Text",
			"font_size":    12,
			"fill_color":   "transparent",
			"border_color": "transparent",
		},
		Normalize: fitTextSize})
	r.Register(KindSpec{Kind: KindContainer, Label: "Container", Width: 200, Height: 150, Outline: OutlineFrame, Container: true,
		Defaults: map[string]any{"text": "Container", "fill_color": "#FFFACD", "border_color": "#FFD700"}})
	r.Register(KindSpec{Kind: KindImage, Label: "Image", Width: 100, Height: 100, Outline: OutlineImage,
		Defaults: map[string]any{"text": "Image", "image_path": ""}})
	r.Register(KindSpec{Kind: KindScript, Label: "Script", Width: 100, Height: 60, Outline: OutlineScript,
		Defaults: map[string]any{"text": "Script", "paint_script": DefaultPaintScript}})
	r.Register(KindSpec{Kind: KindPersona, Label: "Persona", Width: 60, Height: 100, Outline: OutlinePersona,
		Defaults: map[string]any{"text": "Persona", "fill_color": "#E0E0E0", "border_color": "#505050"}})
	r.Register(KindSpec{Kind: KindC4Persona, Label: "C4 Persona", Width: 80, Height: 100, Outline: OutlineC4Persona,
		Defaults: map[string]any{"text": "Persona", "fill_color": "#E0E0E0", "border_color": "#505050"}})
	return r
}

// Register adds or replaces a kind.
func (r *Registry) Register(spec KindSpec) {
	r.specs[spec.Kind] = spec
}

// Lookup returns the spec for an exact kind.
func (r *Registry) Lookup(kind Kind) (KindSpec, bool) {
	spec, ok := r.specs[kind]
	return spec, ok
}

// Resolve maps a requested kind name to its spec. User image palette kinds
// resolve to the image kind and return the embedded path as an extra property.
func (r *Registry) Resolve(name string) (KindSpec, map[string]any, error) {
	if spec, ok := r.specs[Kind(name)]; ok {
		return spec, nil, nil
	}
	if strings.HasPrefix(name, UserImagePrefix) {
		if spec, ok := r.specs[KindImage]; ok {
			return spec, map[string]any{"image_path": strings.TrimPrefix(name, UserImagePrefix)}, nil
		}
	}
	return KindSpec{}, nil, schema.NewErrorf(schema.ErrCodeUnknownKind, "unknown item kind %q", name).
		WithDetails(map[string]any{"kind": name})
}

// Kinds returns the registered kinds sorted by name.
func (r *Registry) Kinds() []Kind {
	out := make([]Kind, 0, len(r.specs))
	for k := range r.specs {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// baseProperties are applied to every kind before its own defaults.
func baseProperties() map[string]any {
	return map[string]any{
		"fill_color":   "#ddeeff",
		"border_color": "#000000",
		"text":         "Item",
		"font_size":    10,
	}
}

// Build constructs a detached node of the given kind. props are merged over
// the kind defaults. The node has no id until inserted into a Store.
func (r *Registry) Build(name string, props map[string]any) (*Node, error) {
	spec, extra, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}
	n := &Node{
		Kind:       spec.Kind,
		Width:      spec.Width,
		Height:     spec.Height,
		Properties: baseProperties(),
	}
	mergeProps(n.Properties, spec.Defaults)
	mergeProps(n.Properties, extra)
	mergeProps(n.Properties, props)
	if spec.Normalize != nil {
		spec.Normalize(n)
	}
	return n, nil
}

func mergeProps(dst, src map[string]any) {
	for k, v := range src {
		dst[k] = v
	}
}
