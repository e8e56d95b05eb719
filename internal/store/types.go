package store

import (
	"encoding/json"
	"time"
)

// Document is a diagram stored in the library. Content holds the serialized
// schema.Document.
type Document struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Path      string          `json:"path,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	ItemCount int             `json:"item_count"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// RevisionKind tells why a revision was recorded.
type RevisionKind string

const (
	RevisionSave       RevisionKind = "save"
	RevisionAutosave   RevisionKind = "autosave"
	RevisionCheckpoint RevisionKind = "checkpoint"
)

// Revision is an immutable snapshot of a document at one point in time.
type Revision struct {
	ID          int64           `json:"id"`
	DocumentID  string          `json:"document_id"`
	Sequence    int64           `json:"sequence"`
	Kind        RevisionKind    `json:"kind"`
	Description string          `json:"description,omitempty"`
	Content     json.RawMessage `json:"content,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// DocumentFilter narrows ListDocuments. Content is never loaded by listings.
type DocumentFilter struct {
	NameContains string
	UpdatedSince *time.Time
	Limit        int
	Offset       int
}

// RevisionFilter narrows ListRevisions.
type RevisionFilter struct {
	DocumentID     string
	Kind           RevisionKind
	Since          int64
	Limit          int
	IncludeContent bool
}
