package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/diagrama/pkg/schema"
)

// connPragmas are applied once when the library is opened. The pool holds a
// single connection, so they hold for every statement.
var connPragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA foreign_keys=ON",
}

// LibSQLStore is the document library backed by an embedded libSQL file.
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens the library at dsn, e.g. "file:/home/me/.diagrama/library.db".
// Call Migrate before first use.
func NewLibSQLStore(dsn string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, storeErr("open library", err)
	}
	db.SetMaxOpenConns(1)
	for _, p := range connPragmas {
		// Best effort: some pragmas answer with a row, some with none, and
		// remote libSQL rejects journal_mode.
		var ignored string
		_ = db.QueryRow(p).Scan(&ignored)
	}
	return &LibSQLStore{db: db}, nil
}

func (s *LibSQLStore) DB() *sql.DB  { return s.db }
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate brings the library schema up to date.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum reclaims space left by pruned revisions.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return storeErr("vacuum", err)
	}
	return nil
}

// --- Documents ---

// SaveDocument inserts the document or replaces the content of an existing
// one. CreatedAt is kept from the first save.
func (s *LibSQLStore) SaveDocument(ctx context.Context, doc *Document) error {
	if doc.ID == "" {
		return schema.NewError(schema.ErrCodeValidation, "document id is required")
	}
	if len(doc.Content) == 0 {
		return schema.NewError(schema.ErrCodeValidation, "document content is required").WithItem(doc.ID)
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, name, path, content, item_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name=excluded.name, path=excluded.path,
		   content=excluded.content, item_count=excluded.item_count, updated_at=excluded.updated_at`,
		doc.ID, doc.Name, nullStr(doc.Path), string(doc.Content), doc.ItemCount,
		timeOrNow(doc.CreatedAt), now,
	)
	if err != nil {
		return storeErr("save document", err)
	}
	doc.UpdatedAt = now
	return nil
}

func (s *LibSQLStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	var content string
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+`, content FROM documents WHERE id = ?`, id)
	d, err := scanDocument(row, &content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("document", id)
	}
	if err != nil {
		return nil, storeErr("get document", err)
	}
	d.Content = json.RawMessage(content)
	return d, nil
}

// ListDocuments returns library entries, most recently updated first,
// without their content.
func (s *LibSQLStore) ListDocuments(ctx context.Context, filter DocumentFilter) ([]*Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE 1=1`
	var args []any
	if filter.NameContains != "" {
		q += ` AND name LIKE ?`
		args = append(args, "%"+filter.NameContains+"%")
	}
	if filter.UpdatedSince != nil {
		q += ` AND updated_at >= ?`
		args = append(args, *filter.UpdatedSince)
	}
	q += ` ORDER BY updated_at DESC, name` + limitClause(filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, storeErr("list documents", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, storeErr("scan document", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

const documentColumns = `id, name, path, item_count, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// scanDocument reads documentColumns followed by any extra destinations.
func scanDocument(r rowScanner, extra ...any) (*Document, error) {
	d := &Document{}
	var path sql.NullString
	dest := append([]any{&d.ID, &d.Name, &path, &d.ItemCount, &d.CreatedAt, &d.UpdatedAt}, extra...)
	if err := r.Scan(dest...); err != nil {
		return nil, err
	}
	d.Path = path.String
	return d, nil
}

func limitClause(limit, offset int) string {
	if limit <= 0 {
		return ""
	}
	if offset > 0 {
		return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
	}
	return fmt.Sprintf(" LIMIT %d", limit)
}

// DeleteDocument removes the document and its revisions.
func (s *LibSQLStore) DeleteDocument(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin tx", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM revisions WHERE document_id = ?`, id); err != nil {
		return storeErr("delete revisions", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return storeErr("delete document", err)
	}
	if err := checkRowsAffected(res, "document", id); err != nil {
		return err
	}
	return tx.Commit()
}

// --- Helpers ---

func storeNotFound(kind, id string) *schema.DiagramError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", kind, id).
		WithDetails(map[string]any{"kind": kind, "id": id})
}

func storeErr(op string, err error) *schema.DiagramError {
	return schema.NewErrorf(schema.ErrCodeStore, "library: %s", op).WithCause(err)
}

// checkRowsAffected turns a zero-row update or delete into NOT_FOUND.
func checkRowsAffected(res sql.Result, kind, id string) error {
	if n, err := res.RowsAffected(); err != nil {
		return storeErr("rows affected", err)
	} else if n == 0 {
		return storeNotFound(kind, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

// nullStr stores "" as NULL.
func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
