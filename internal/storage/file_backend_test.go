package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/memvault/memvault/internal/model"
)

func newItem(id, title string) *model.MemoryItem {
	now := time.Now().UTC()
	return &model.MemoryItem{
		ID:        id,
		Type:      model.TypeNote,
		Scope:     model.ScopeLocal,
		Title:     title,
		Text:      "body for " + title,
		Facets:    model.Facets{Tags: []string{"t1"}},
		Quality:   model.Quality{Confidence: 0.8},
		Security:  model.Security{Sensitivity: model.SensitivityPrivate},
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
}

func openBackend(t *testing.T) *FileBackend {
	t.Helper()
	b, err := OpenFileBackend(t.TempDir(), "local", "test-actor", 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestWriteReadDeleteRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := openBackend(t)

	item := newItem("01ID", "hello")
	require.NoError(t, b.WriteItem(ctx, item))

	got, err := b.ReadItem(ctx, "01ID")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "hello", got.Title)

	ids, err := b.ListItems(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"01ID"}, ids)

	ok, err := b.DeleteItem(ctx, "01ID")
	require.NoError(t, err)
	require.True(t, ok)

	got, err = b.ReadItem(ctx, "01ID")
	require.NoError(t, err)
	require.Nil(t, got)

	ok, err = b.DeleteItem(ctx, "01ID")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestWriteItemIdempotentOnUnchangedContentHash(t *testing.T) {
	ctx := context.Background()
	b := openBackend(t)

	item := newItem("01ID", "hello")
	require.NoError(t, b.WriteItem(ctx, item))
	tip := b.Journal().TipHash()

	item.UpdatedAt = item.UpdatedAt.Add(time.Minute)
	require.NoError(t, b.WriteItem(ctx, item))

	require.Equal(t, tip, b.Journal().TipHash(), "unchanged content must not append a new journal record")

	s, ok := b.Catalog().Get("01ID")
	require.True(t, ok)
	require.Equal(t, item.UpdatedAt, s.UpdatedAt)
}

func TestWriteItemAppendsNewJournalRecordOnContentChange(t *testing.T) {
	ctx := context.Background()
	b := openBackend(t)

	item := newItem("01ID", "hello")
	require.NoError(t, b.WriteItem(ctx, item))
	tip := b.Journal().TipHash()

	item.Text = "changed body"
	require.NoError(t, b.WriteItem(ctx, item))
	require.NotEqual(t, tip, b.Journal().TipHash())
}

func TestHasContentAndGetByHash(t *testing.T) {
	ctx := context.Background()
	b := openBackend(t)

	item := newItem("01ID", "hello")
	require.NoError(t, b.WriteItem(ctx, item))

	hash, err := model.ContentHash(item)
	require.NoError(t, err)

	has, err := b.HasContent(ctx, []string{hash, "deadbeef"})
	require.NoError(t, err)
	require.True(t, has[hash])
	require.False(t, has["deadbeef"])

	refs, err := b.GetByHash(ctx, []string{hash})
	require.NoError(t, err)
	require.Contains(t, refs, hash)
	require.Equal(t, model.BackendFile, refs[hash].Backend)
}

func TestRegisterIndexUpdateNotifiesOnWriteAndDelete(t *testing.T) {
	ctx := context.Background()
	b := openBackend(t)

	var updates []IndexUpdate
	b.RegisterIndexUpdate(func(u IndexUpdate) { updates = append(updates, u) })

	item := newItem("01ID", "hello")
	require.NoError(t, b.WriteItem(ctx, item))
	require.NoError(t, b.WriteItem(ctx, item)) // no-op, must not notify again

	_, err := b.DeleteItem(ctx, "01ID")
	require.NoError(t, err)

	require.Len(t, updates, 2)
	require.Len(t, updates[0].Upserted, 1)
	require.Equal(t, []string{"01ID"}, updates[1].Deleted)
}

func TestCrashBetweenJournalAppendAndRenameIsRecoveredByReplay(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	b, err := OpenFileBackend(root, "local", "test-actor", 1)
	require.NoError(t, err)

	item := newItem("01ID", "hello")
	hash, err := model.ContentHash(item)
	require.NoError(t, err)

	_, err = b.j.Append(model.JournalEntry{
		Op:          model.OpUpsert,
		ID:          item.ID,
		ContentHash: hash,
		Timestamp:   time.Now().UTC(),
		Actor:       "test-actor",
	})
	require.NoError(t, err)
	require.NoError(t, b.Close())

	// Simulate a crash: journal recorded the upsert but the item file
	// was never written and the catalog was never updated. Reopening
	// must be able to tell (via Replay) that "01ID" needs a rebuild.
	b2, err := OpenFileBackend(root, "local", "test-actor", 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b2.Close() })

	_, ok := b2.Catalog().Get("01ID")
	require.False(t, ok, "catalog must not have been updated without the matching file write")

	var replayed []model.JournalEntry
	require.NoError(t, b2.Journal().Replay(func(e model.JournalEntry) error {
		replayed = append(replayed, e)
		return nil
	}))
	require.Len(t, replayed, 1)
	require.Equal(t, "01ID", replayed[0].ID)
	require.Equal(t, hash, replayed[0].ContentHash)

	_, err = os.Stat(filepath.Join(root, "items", "01ID.json"))
	require.True(t, os.IsNotExist(err))
}

func TestStatsReflectsCatalog(t *testing.T) {
	ctx := context.Background()
	b := openBackend(t)

	require.NoError(t, b.WriteItem(ctx, newItem("01ID", "hello")))
	require.NoError(t, b.WriteItem(ctx, newItem("02ID", "world")))

	stats, err := b.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.ItemCount)
	require.Greater(t, stats.Bytes, int64(0))
}

func TestCleanupRemovesStaleTempFiles(t *testing.T) {
	ctx := context.Background()
	b := openBackend(t)

	tmpFile := filepath.Join(b.tmpDir, "write-stale.tmp")
	require.NoError(t, os.WriteFile(tmpFile, []byte("orphan"), 0o644))
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(tmpFile, old, old))

	reclaimed, err := b.Cleanup(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(len("orphan")), reclaimed)

	_, err = os.Stat(tmpFile)
	require.True(t, os.IsNotExist(err))
}
