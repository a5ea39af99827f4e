package storage_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knotapp/knot/internal/block"
	"github.com/knotapp/knot/internal/storage"
)

func openTestDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedStore(t *testing.T) (*block.Store, block.Document) {
	t.Helper()
	s := block.NewStore()
	doc := s.CreateDocument("Persisted", block.KindNote)
	top, err := s.CreateBlock(doc.ID, "top", "")
	require.NoError(t, err)
	kid, err := s.CreateBlock(doc.ID, "kid\nsecond line", top.ID)
	require.NoError(t, err)
	require.NoError(t, s.ToggleCollapse(kid.ID))
	d, err := s.GetDocument(doc.ID)
	require.NoError(t, err)
	return s, d
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	db := openTestDB(t)
	src, doc := seedStore(t)

	require.NoError(t, db.SaveDocument(doc, src.FlattenAll(doc.ID)))

	dst := block.NewStore()
	require.NoError(t, db.LoadInto(dst))

	got, err := dst.GetDocument(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.Title, got.Title)
	assert.Equal(t, doc.Kind, got.Kind)
	assert.Equal(t, doc.CreatedAt, got.CreatedAt)
	assert.Equal(t, doc.UpdatedAt, got.UpdatedAt)

	want := src.FlattenAll(doc.ID)
	loaded := dst.FlattenAll(doc.ID)
	require.Len(t, loaded, len(want))
	for i := range want {
		assert.Equal(t, want[i].ID, loaded[i].ID)
		assert.Equal(t, want[i].Content, loaded[i].Content)
		assert.Equal(t, want[i].ParentID, loaded[i].ParentID)
		assert.Equal(t, want[i].Order, loaded[i].Order)
		assert.Equal(t, want[i].Collapsed, loaded[i].Collapsed, "collapse state must persist")
	}
}

func TestSaveDocument_Replaces(t *testing.T) {
	db := openTestDB(t)
	src, doc := seedStore(t)
	require.NoError(t, db.SaveDocument(doc, src.FlattenAll(doc.ID)))

	// Mutate and save again; the stored tree must match the new state exactly,
	// with no leftover rows from the first save.
	top := src.FlattenAll(doc.ID)[0]
	require.NoError(t, src.DeleteBlock(top.ID))
	_, err := src.CreateBlock(doc.ID, "fresh", "")
	require.NoError(t, err)
	doc, err = src.GetDocument(doc.ID)
	require.NoError(t, err)
	require.NoError(t, db.SaveDocument(doc, src.FlattenAll(doc.ID)))

	dst := block.NewStore()
	require.NoError(t, db.LoadInto(dst))
	loaded := dst.FlattenAll(doc.ID)
	require.Len(t, loaded, 1)
	assert.Equal(t, "fresh", loaded[0].Content)
}

func TestSaveDocument_TitleUpdate(t *testing.T) {
	db := openTestDB(t)
	src, doc := seedStore(t)
	require.NoError(t, db.SaveDocument(doc, src.FlattenAll(doc.ID)))

	doc.Title = "Renamed"
	require.NoError(t, db.SaveDocument(doc, src.FlattenAll(doc.ID)))

	dst := block.NewStore()
	require.NoError(t, db.LoadInto(dst))
	got, err := dst.GetDocument(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
}

func TestDeleteDocument_Cascades(t *testing.T) {
	db := openTestDB(t)
	src, doc := seedStore(t)
	require.NoError(t, db.SaveDocument(doc, src.FlattenAll(doc.ID)))

	require.NoError(t, db.DeleteDocument(doc.ID))

	dst := block.NewStore()
	require.NoError(t, db.LoadInto(dst))
	_, err := dst.GetDocument(doc.ID)
	assert.ErrorIs(t, err, block.ErrNotFound)
	assert.Empty(t, dst.FlattenAll(doc.ID))
}

func TestSaveStore_AllDocuments(t *testing.T) {
	db := openTestDB(t)
	src := block.NewStore()
	note := src.CreateDocument("Note", block.KindNote)
	journal := src.CreateDocument("2026-08-23", block.KindJournal)
	_, err := src.CreateBlock(note.ID, "n", "")
	require.NoError(t, err)
	_, err = src.CreateBlock(journal.ID, "j", "")
	require.NoError(t, err)
	placeholder := src.EnsureDocument("Linked But Unwritten")

	require.NoError(t, db.SaveStore(src))

	dst := block.NewStore()
	require.NoError(t, db.LoadInto(dst))
	assert.Len(t, dst.Documents(), 3)

	got, err := dst.GetDocument(placeholder.ID)
	require.NoError(t, err)
	assert.True(t, got.Placeholder, "placeholder flag must persist")

	j, err := dst.GetDocument(journal.ID)
	require.NoError(t, err)
	assert.Equal(t, block.KindJournal, j.Kind)
}
