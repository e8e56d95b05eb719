package streaming

import "context"

// SceneEvent is a change notification emitted by a document session.
type SceneEvent struct {
	DocumentID string `json:"document_id"`
	ItemID     string `json:"item_id,omitempty"`
	EventType  string `json:"event_type"`
	Payload    any    `json:"payload,omitempty"`
}

// EventFilter specifies which events a subscriber wants to receive.
type EventFilter struct {
	DocumentID string   `json:"document_id,omitempty"`
	ItemID     string   `json:"item_id,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
}

// EventHub provides pub/sub for scene change events.
type EventHub interface {
	Publish(ctx context.Context, event SceneEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan SceneEvent, func(), error)
}
