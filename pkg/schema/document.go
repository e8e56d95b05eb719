package schema

// ConnectorType is the fixed "type" value of persisted connectors.
const ConnectorType = "connector"

// Document is the persisted diagram format shared by save/load, the history
// log and the clipboard.
type Document struct {
	Items           []ItemRecord      `json:"items"`
	Connectors      []ConnectorRecord `json:"connectors"`
	SceneProperties SceneProperties   `json:"scene_properties"`
}

// ItemRecord is one persisted diagram item (node).
type ItemRecord struct {
	Type              string         `json:"type"`
	ID                string         `json:"id,omitempty"`
	X                 float64        `json:"x"`
	Y                 float64        `json:"y"`
	Width             float64        `json:"width"`
	Height            float64        `json:"height"`
	Z                 float64        `json:"z"`
	Properties        map[string]any `json:"properties"`
	ParentContainerID *string        `json:"parent_container_id"`
	ChildItemIDs      []string       `json:"child_item_ids,omitempty"`
	// ImagePath and PaintScript mirror the properties of image and script
	// items at top level for older readers.
	ImagePath   string `json:"image_path,omitempty"`
	PaintScript string `json:"paint_script,omitempty"`
}

// ConnectorRecord is one persisted connector (edge).
type ConnectorRecord struct {
	Type            string  `json:"type"`
	ID              string  `json:"id,omitempty"`
	StartItemID     string  `json:"start_item_id"`
	EndItemID       string  `json:"end_item_id"`
	LineColor       string  `json:"line_color"`
	LineWidth       float64 `json:"line_width"`
	ArrowSize       float64 `json:"arrow_size,omitempty"`
	Text            string  `json:"text"`
	FontSize        int     `json:"font_size"`
	ConnectionStyle string  `json:"connection_style,omitempty"`
}

// SceneProperties carries diagram-level state.
type SceneProperties struct {
	Width             float64  `json:"width"`
	Height            float64  `json:"height"`
	NextItemID        int      `json:"next_item_id"`
	ActiveContainerID *string  `json:"active_container_id"`
	ImportedImages    []string `json:"imported_images"`
}

// StringPtr returns nil for the empty string, otherwise a pointer to s.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StringValue dereferences p, returning "" for nil.
func StringValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
