package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rendis/diagrama/pkg/schema"
)

// AppendRevision appends a revision with a monotonically increasing
// per-document sequence. The document must exist.
func (s *LibSQLStore) AppendRevision(ctx context.Context, rev *Revision) error {
	if len(rev.Content) == 0 {
		return schema.NewError(schema.ErrCodeValidation, "revision content is required").WithItem(rev.DocumentID)
	}
	if rev.Kind == "" {
		rev.Kind = RevisionCheckpoint
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin tx", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM documents WHERE id = ?`, rev.DocumentID).Scan(&exists)
	if err != nil {
		return storeErr("check document", err)
	}
	if exists == 0 {
		return storeNotFound("document", rev.DocumentID)
	}

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM revisions WHERE document_id = ?`, rev.DocumentID,
	).Scan(&seq)
	if err != nil {
		return storeErr("get next sequence", err)
	}

	if rev.CreatedAt.IsZero() {
		rev.CreatedAt = time.Now().UTC()
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO revisions (document_id, sequence, kind, description, content, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rev.DocumentID, seq, string(rev.Kind), nullStr(rev.Description), string(rev.Content), rev.CreatedAt,
	)
	if err != nil {
		return storeErr("insert revision", err)
	}
	if err := tx.Commit(); err != nil {
		return storeErr("commit revision", err)
	}
	rev.Sequence = seq
	if id, err := res.LastInsertId(); err == nil {
		rev.ID = id
	}
	return nil
}

func (s *LibSQLStore) GetRevision(ctx context.Context, documentID string, sequence int64) (*Revision, error) {
	r := &Revision{}
	var kind string
	var desc sql.NullString
	var content string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, document_id, sequence, kind, description, content, created_at
		 FROM revisions WHERE document_id = ? AND sequence = ?`, documentID, sequence,
	).Scan(&r.ID, &r.DocumentID, &r.Sequence, &kind, &desc, &content, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("revision", fmt.Sprintf("%s#%d", documentID, sequence))
	}
	if err != nil {
		return nil, storeErr("get revision", err)
	}
	r.Kind = RevisionKind(kind)
	r.Description = desc.String
	r.Content = json.RawMessage(content)
	return r, nil
}

// ListRevisions returns revisions with sequence > filter.Since, oldest first.
func (s *LibSQLStore) ListRevisions(ctx context.Context, filter RevisionFilter) ([]*Revision, error) {
	where := []string{"document_id = ?", "sequence > ?"}
	args := []any{filter.DocumentID, filter.Since}
	if filter.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(filter.Kind))
	}

	content := "''"
	if filter.IncludeContent {
		content = "content"
	}
	query := fmt.Sprintf(
		"SELECT id, document_id, sequence, kind, description, %s, created_at FROM revisions WHERE %s ORDER BY sequence ASC",
		content, strings.Join(where, " AND ")) + limitClause(filter.Limit, 0)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list revisions", err)
	}
	defer rows.Close()

	var revs []*Revision
	for rows.Next() {
		r := &Revision{}
		var kind, body string
		var desc sql.NullString
		if err := rows.Scan(&r.ID, &r.DocumentID, &r.Sequence, &kind, &desc, &body, &r.CreatedAt); err != nil {
			return nil, storeErr("scan revision", err)
		}
		r.Kind = RevisionKind(kind)
		r.Description = desc.String
		if body != "" {
			r.Content = json.RawMessage(body)
		}
		revs = append(revs, r)
	}
	return revs, rows.Err()
}

// PruneRevisions keeps the newest keep revisions of a document and returns
// how many were deleted. Sequences of the kept revisions are not renumbered.
func (s *LibSQLStore) PruneRevisions(ctx context.Context, documentID string, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM revisions WHERE document_id = ? AND sequence NOT IN (
		   SELECT sequence FROM revisions WHERE document_id = ? ORDER BY sequence DESC LIMIT ?
		 )`, documentID, documentID, keep,
	)
	if err != nil {
		return 0, storeErr("prune revisions", err)
	}
	return res.RowsAffected()
}

// VerifyRevisions checks that the revision sequences of a document are
// strictly increasing and start at 1 when nothing was pruned. It returns the
// number of revisions.
func (s *LibSQLStore) VerifyRevisions(ctx context.Context, documentID string, pruned bool) (int, error) {
	revs, err := s.ListRevisions(ctx, RevisionFilter{DocumentID: documentID})
	if err != nil {
		return 0, err
	}
	for i, r := range revs {
		if i == 0 {
			if !pruned && r.Sequence != 1 {
				return 0, schema.NewErrorf(schema.ErrCodeStore,
					"revision log of %s starts at %d", documentID, r.Sequence)
			}
			continue
		}
		if pruned {
			if r.Sequence <= revs[i-1].Sequence {
				return 0, schema.NewErrorf(schema.ErrCodeStore,
					"revision sequence of %s not increasing at %d", documentID, r.Sequence)
			}
			continue
		}
		if r.Sequence != revs[i-1].Sequence+1 {
			return 0, schema.NewErrorf(schema.ErrCodeStore,
				"sequence gap in %s: expected %d, got %d", documentID, revs[i-1].Sequence+1, r.Sequence)
		}
	}
	return len(revs), nil
}
