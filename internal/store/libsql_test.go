package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/diagrama/pkg/schema"
)

func newTestStore(t *testing.T) *LibSQLStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "library.db")
	s, err := NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() {
		_ = s.Close()
		_ = os.RemoveAll(dir)
	})
	return s
}

func docContent(n int) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(
		`{"items":[],"connectors":[],"scene_properties":{"width":2000,"height":1500,"next_item_id":%d,"active_container_id":null,"imported_images":[]}}`, n))
}

func seedDocument(t *testing.T, s *LibSQLStore, name string) *Document {
	t.Helper()
	d := &Document{
		ID:      uuid.New().String(),
		Name:    name,
		Content: docContent(1),
	}
	require.NoError(t, s.SaveDocument(context.Background(), d))
	return d
}

// --- Document Tests ---

func TestSaveAndGetDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d := &Document{
		ID:        uuid.New().String(),
		Name:      "network",
		Path:      "/tmp/network.json",
		Content:   docContent(7),
		ItemCount: 3,
	}
	require.NoError(t, s.SaveDocument(ctx, d))
	assert.False(t, d.UpdatedAt.IsZero())

	got, err := s.GetDocument(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "network", got.Name)
	assert.Equal(t, "/tmp/network.json", got.Path)
	assert.Equal(t, 3, got.ItemCount)
	assert.JSONEq(t, string(docContent(7)), string(got.Content))
}

func TestSaveDocument_Upsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	d := seedDocument(t, s, "draft")

	first, err := s.GetDocument(ctx, d.ID)
	require.NoError(t, err)

	d.Name = "final"
	d.Content = docContent(9)
	d.CreatedAt = time.Now().Add(time.Hour)
	require.NoError(t, s.SaveDocument(ctx, d))

	got, err := s.GetDocument(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "final", got.Name)
	assert.JSONEq(t, string(docContent(9)), string(got.Content))
	assert.WithinDuration(t, first.CreatedAt, got.CreatedAt, time.Second, "created_at survives updates")
}

func TestSaveDocument_Validation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.SaveDocument(ctx, &Document{Name: "x", Content: docContent(1)})
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))

	err = s.SaveDocument(ctx, &Document{ID: "a", Name: "x"})
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))
}

func TestGetDocument_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetDocument(context.Background(), "nonexistent")
	require.Error(t, err)
	derr, ok := err.(*schema.DiagramError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeNotFound, derr.Code)
}

func TestListDocuments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedDocument(t, s, "org chart")
	seedDocument(t, s, "network map")
	seedDocument(t, s, "network rack")

	all, err := s.ListDocuments(ctx, DocumentFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
	for _, d := range all {
		assert.Nil(t, d.Content, "listings never load content")
	}

	net, err := s.ListDocuments(ctx, DocumentFilter{NameContains: "network"})
	require.NoError(t, err)
	assert.Len(t, net, 2)

	page, err := s.ListDocuments(ctx, DocumentFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, page, 1)
}

func TestDeleteDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	d := seedDocument(t, s, "scratch")
	require.NoError(t, s.AppendRevision(ctx, &Revision{DocumentID: d.ID, Content: docContent(2)}))

	require.NoError(t, s.DeleteDocument(ctx, d.ID))

	_, err := s.GetDocument(ctx, d.ID)
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))
	revs, err := s.ListRevisions(ctx, RevisionFilter{DocumentID: d.ID})
	require.NoError(t, err)
	assert.Empty(t, revs)

	err = s.DeleteDocument(ctx, d.ID)
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))
}

// --- Revision Tests ---

func TestAppendRevision_Sequence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	d := seedDocument(t, s, "seq")
	other := seedDocument(t, s, "other")

	for i := 0; i < 3; i++ {
		rev := &Revision{DocumentID: d.ID, Kind: RevisionAutosave, Content: docContent(i + 1)}
		require.NoError(t, s.AppendRevision(ctx, rev))
		assert.Equal(t, int64(i+1), rev.Sequence)
		assert.NotZero(t, rev.ID)
	}

	rev := &Revision{DocumentID: other.ID, Content: docContent(1)}
	require.NoError(t, s.AppendRevision(ctx, rev))
	assert.Equal(t, int64(1), rev.Sequence, "sequences are per document")
	assert.Equal(t, RevisionCheckpoint, rev.Kind)
}

func TestAppendRevision_UnknownDocument(t *testing.T) {
	s := newTestStore(t)
	err := s.AppendRevision(context.Background(), &Revision{DocumentID: "missing", Content: docContent(1)})
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))
}

func TestGetRevision(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	d := seedDocument(t, s, "rev")
	require.NoError(t, s.AppendRevision(ctx, &Revision{
		DocumentID: d.ID, Kind: RevisionSave, Description: "Add rectangle", Content: docContent(2),
	}))

	got, err := s.GetRevision(ctx, d.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, RevisionSave, got.Kind)
	assert.Equal(t, "Add rectangle", got.Description)
	assert.JSONEq(t, string(docContent(2)), string(got.Content))

	_, err = s.GetRevision(ctx, d.ID, 2)
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))
}

func TestListRevisions_Filters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	d := seedDocument(t, s, "filters")

	kinds := []RevisionKind{RevisionAutosave, RevisionSave, RevisionAutosave, RevisionCheckpoint}
	for i, k := range kinds {
		require.NoError(t, s.AppendRevision(ctx, &Revision{DocumentID: d.ID, Kind: k, Content: docContent(i + 1)}))
	}

	revs, err := s.ListRevisions(ctx, RevisionFilter{DocumentID: d.ID})
	require.NoError(t, err)
	require.Len(t, revs, 4)
	assert.Nil(t, revs[0].Content)
	assert.Equal(t, int64(1), revs[0].Sequence)

	revs, err = s.ListRevisions(ctx, RevisionFilter{DocumentID: d.ID, Since: 2, IncludeContent: true})
	require.NoError(t, err)
	require.Len(t, revs, 2)
	assert.Equal(t, int64(3), revs[0].Sequence)
	assert.NotNil(t, revs[0].Content)

	revs, err = s.ListRevisions(ctx, RevisionFilter{DocumentID: d.ID, Kind: RevisionAutosave})
	require.NoError(t, err)
	assert.Len(t, revs, 2)

	revs, err = s.ListRevisions(ctx, RevisionFilter{DocumentID: d.ID, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, revs, 1)
}

func TestPruneAndVerifyRevisions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	d := seedDocument(t, s, "prune")
	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendRevision(ctx, &Revision{DocumentID: d.ID, Content: docContent(i + 1)}))
	}

	n, err := s.VerifyRevisions(ctx, d.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	deleted, err := s.PruneRevisions(ctx, d.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	revs, err := s.ListRevisions(ctx, RevisionFilter{DocumentID: d.ID})
	require.NoError(t, err)
	require.Len(t, revs, 2)
	assert.Equal(t, int64(4), revs[0].Sequence)

	_, err = s.VerifyRevisions(ctx, d.ID, false)
	assert.True(t, schema.HasCode(err, schema.ErrCodeStore))
	n, err = s.VerifyRevisions(ctx, d.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rev := &Revision{DocumentID: d.ID, Content: docContent(9)}
	require.NoError(t, s.AppendRevision(ctx, rev))
	assert.Equal(t, int64(6), rev.Sequence, "sequences are not reused after pruning")
}

// --- Migration Tests ---

func TestMigrate_RecordsVersions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx), "second run is a no-op")

	want, err := loadMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, want)

	var applied int
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_version`).Scan(&applied))
	assert.Equal(t, len(want), applied)
}

func TestLoadMigrations_Ordered(t *testing.T) {
	ms, err := loadMigrations()
	require.NoError(t, err)
	assert.Equal(t, 1, ms[0].version)
	assert.Equal(t, "documents", ms[0].name)
	for i := 1; i < len(ms); i++ {
		assert.Less(t, ms[i-1].version, ms[i].version)
	}
	assert.NotEmpty(t, ms[0].stmts)
}

func TestVacuum(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Vacuum(context.Background()))
}

func TestSQLStatements(t *testing.T) {
	script := "-- header; with a semicolon\nCREATE TABLE a (x INT);\n\n  -- indented comment\nCREATE INDEX i ON a(x);\n;\n"
	stmts := sqlStatements(script)
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (x INT)", stmts[0])
	assert.Equal(t, "CREATE INDEX i ON a(x)", stmts[1])
}
