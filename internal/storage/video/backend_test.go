package video

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/memvault/memvault/internal/model"
	"github.com/memvault/memvault/internal/storage/videocodec"
)

func newItem(id, title, body string) *model.MemoryItem {
	now := time.Now().UTC()
	return &model.MemoryItem{
		ID:        id,
		Type:      model.TypeNote,
		Scope:     model.ScopeLocal,
		Title:     title,
		Text:      body,
		Facets:    model.Facets{Tags: []string{"t1"}},
		Quality:   model.Quality{Confidence: 0.8},
		Security:  model.Security{Sensitivity: model.SensitivityPrivate},
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
}

func openBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := Open(Options{
		Root:           t.TempDir(),
		Scope:          "local",
		Actor:          "test-actor",
		FsyncBatch:     1,
		DebounceWindow: time.Hour, // kept long; tests drive consolidation via Flush
		Adapter:        videocodec.NewInProcessAdapter(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestWriteFlushReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := openBackend(t)

	item := newItem("01ID", "hello", "body text for hello")
	require.NoError(t, b.WriteItem(ctx, item))

	got, err := b.ReadItem(ctx, "01ID")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "hello", got.Title, "pending write must be visible before consolidation")

	b.Flush()

	got, err = b.ReadItem(ctx, "01ID")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "hello", got.Title, "consolidated read must reconstruct the same item")
	require.Equal(t, "body text for hello", got.Text)
}

func TestMultipleItemsSurviveConsolidation(t *testing.T) {
	ctx := context.Background()
	b := openBackend(t)

	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		require.NoError(t, b.WriteItem(ctx, newItem(id, id, "text-for-"+id)))
	}
	b.Flush()

	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		got, err := b.ReadItem(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, "text-for-"+id, got.Text)
	}
}

func TestDeleteRemovesItemAfterConsolidation(t *testing.T) {
	ctx := context.Background()
	b := openBackend(t)

	require.NoError(t, b.WriteItem(ctx, newItem("01ID", "hello", "body")))
	b.Flush()

	ok, err := b.DeleteItem(ctx, "01ID")
	require.NoError(t, err)
	require.True(t, ok)

	got, err := b.ReadItem(ctx, "01ID")
	require.NoError(t, err)
	require.Nil(t, got, "pending delete must hide the item immediately")

	b.Flush()

	got, err = b.ReadItem(ctx, "01ID")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestWriteItemDeduplicatesIdenticalContent(t *testing.T) {
	ctx := context.Background()
	b := openBackend(t)

	item := newItem("01ID", "hello", "same body")
	require.NoError(t, b.WriteItem(ctx, item))
	b.Flush()

	tip := b.Journal().TipHash()
	dup := newItem("01ID", "hello", "same body")
	dup.CreatedAt = item.CreatedAt
	dup.UpdatedAt = item.UpdatedAt
	require.NoError(t, b.WriteItem(ctx, dup))
	require.Equal(t, tip, b.Journal().TipHash(), "content already in the manifest is not staged or journaled again")

	ok, err := b.HasContent(ctx, []string{mustHash(t, dup)})
	require.NoError(t, err)
	require.True(t, ok[mustHash(t, dup)])
}

func TestConsolidationAcrossManyItemsShareFrameGeometry(t *testing.T) {
	ctx := context.Background()
	b := openBackend(t)

	require.NoError(t, b.WriteItem(ctx, newItem("short", "s", "x")))
	require.NoError(t, b.WriteItem(ctx, newItem("long", "l", string(make([]byte, 3000)))))
	b.Flush()

	for _, id := range []string{"short", "long"} {
		got, err := b.ReadItem(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, got, "item %s must survive consolidation despite differing payload size", id)
	}
}

func TestListItemsReflectsCatalog(t *testing.T) {
	ctx := context.Background()
	b := openBackend(t)

	require.NoError(t, b.WriteItem(ctx, newItem("a", "a", "a")))
	require.NoError(t, b.WriteItem(ctx, newItem("b", "b", "b")))

	ids, err := b.ListItems(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a", "b"}, ids)
}

func mustHash(t *testing.T, item *model.MemoryItem) string {
	t.Helper()
	h, err := model.ContentHash(item)
	require.NoError(t, err)
	return h
}
