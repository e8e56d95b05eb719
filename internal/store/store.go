package store

import "context"

// DocumentStore is the document library contract.
// All implementations must be safe for concurrent use.
type DocumentStore interface {
	// Documents
	SaveDocument(ctx context.Context, doc *Document) error
	GetDocument(ctx context.Context, id string) (*Document, error)
	ListDocuments(ctx context.Context, filter DocumentFilter) ([]*Document, error)
	DeleteDocument(ctx context.Context, id string) error

	// Revisions (append-only)
	AppendRevision(ctx context.Context, rev *Revision) error
	GetRevision(ctx context.Context, documentID string, sequence int64) (*Revision, error)
	ListRevisions(ctx context.Context, filter RevisionFilter) ([]*Revision, error)
	PruneRevisions(ctx context.Context, documentID string, keep int) (int64, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
