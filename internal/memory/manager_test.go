package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/memvault/memvault/internal/config"
	"github.com/memvault/memvault/internal/model"
)

func openTestManager(t *testing.T) *Manager {
	t.Helper()
	cfg := config.Default()
	m, err := Open(context.Background(), Options{
		Root:   t.TempDir(),
		Scope:  model.ScopeLocal,
		Actor:  "test",
		Config: cfg,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestOpenTransitionsToReady(t *testing.T) {
	m := openTestManager(t)
	require.Equal(t, StateReady, m.State())
}

func TestUpsertAssignsIDAndVersion(t *testing.T) {
	m := openTestManager(t)
	ctx := context.Background()

	item, err := m.Upsert(ctx, UpsertInput{Type: model.TypeNote, Title: "retry backoff", Text: "exponential backoff with jitter"})
	require.NoError(t, err)
	require.NotEmpty(t, item.ID)
	require.Equal(t, uint64(1), item.Version)

	got, err := m.Get(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, item.Title, got.Title)
}

func TestUpsertRejectsEmptyBody(t *testing.T) {
	m := openTestManager(t)
	_, err := m.Upsert(context.Background(), UpsertInput{Type: model.TypeNote})
	require.Error(t, err)
}

func TestUpsertExistingBumpsVersion(t *testing.T) {
	m := openTestManager(t)
	ctx := context.Background()

	item, err := m.Upsert(ctx, UpsertInput{Type: model.TypeNote, Title: "v1"})
	require.NoError(t, err)

	updated, err := m.Upsert(ctx, UpsertInput{ID: item.ID, Type: model.TypeNote, Title: "v2"})
	require.NoError(t, err)
	require.Equal(t, uint64(2), updated.Version)
	require.Equal(t, item.CreatedAt, updated.CreatedAt)
}

func TestDeleteRemovesItem(t *testing.T) {
	m := openTestManager(t)
	ctx := context.Background()

	item, err := m.Upsert(ctx, UpsertInput{Type: model.TypeNote, Title: "to delete"})
	require.NoError(t, err)

	ok, err := m.Delete(ctx, item.ID)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := m.Get(ctx, item.ID)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestListOrdersNewestFirst(t *testing.T) {
	m := openTestManager(t)
	ctx := context.Background()

	_, err := m.Upsert(ctx, UpsertInput{Type: model.TypeNote, Title: "first"})
	require.NoError(t, err)
	second, err := m.Upsert(ctx, UpsertInput{Type: model.TypeNote, Title: "second"})
	require.NoError(t, err)

	summaries, err := m.List(0)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	require.Equal(t, second.ID, summaries[0].ID)
}

func TestLinkAppendsEdge(t *testing.T) {
	m := openTestManager(t)
	ctx := context.Background()

	from, err := m.Upsert(ctx, UpsertInput{Type: model.TypeNote, Title: "from"})
	require.NoError(t, err)
	to, err := m.Upsert(ctx, UpsertInput{Type: model.TypeNote, Title: "to"})
	require.NoError(t, err)

	require.NoError(t, m.Link(ctx, from.ID, to.ID, model.RelRelates))

	got, err := m.Get(ctx, from.ID)
	require.NoError(t, err)
	require.Len(t, got.Links, 1)
	require.Equal(t, to.ID, got.Links[0].To)
	require.Equal(t, model.RelRelates, got.Links[0].Rel)
}

func TestPinSetsQualityFlag(t *testing.T) {
	m := openTestManager(t)
	ctx := context.Background()

	item, err := m.Upsert(ctx, UpsertInput{Type: model.TypeNote, Title: "pin me"})
	require.NoError(t, err)

	require.NoError(t, m.Pin(ctx, item.ID, true))
	got, err := m.Get(ctx, item.ID)
	require.NoError(t, err)
	require.True(t, got.Quality.Pinned)
}

func TestTagAddsAndRemoves(t *testing.T) {
	m := openTestManager(t)
	ctx := context.Background()

	item, err := m.Upsert(ctx, UpsertInput{
		Type:   model.TypeNote,
		Title:  "tagged",
		Facets: model.Facets{Tags: []string{"old"}},
	})
	require.NoError(t, err)

	require.NoError(t, m.Tag(ctx, item.ID, []string{"new"}, []string{"old"}))
	got, err := m.Get(ctx, item.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"new"}, got.Facets.Tags)
}

func TestFeedbackIncrementsReuseCount(t *testing.T) {
	m := openTestManager(t)
	ctx := context.Background()

	item, err := m.Upsert(ctx, UpsertInput{Type: model.TypeNote, Title: "helpful"})
	require.NoError(t, err)

	require.NoError(t, m.Feedback(ctx, item.ID, true))
	got, err := m.Get(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, uint64(1), got.Quality.ReuseCount)
}

func TestUseRefreshesUpdatedAt(t *testing.T) {
	m := openTestManager(t)
	ctx := context.Background()

	item, err := m.Upsert(ctx, UpsertInput{Type: model.TypeNote, Title: "used"})
	require.NoError(t, err)

	require.NoError(t, m.Use(ctx, item.ID))
	got, err := m.Get(ctx, item.ID)
	require.NoError(t, err)
	require.False(t, got.UpdatedAt.Before(item.UpdatedAt))
}

func TestWritesRejectedOutsideReady(t *testing.T) {
	m := openTestManager(t)
	m.state.set(StateMaintaining)
	_, err := m.Upsert(context.Background(), UpsertInput{Type: model.TypeNote, Title: "blocked"})
	require.Error(t, err)
}

func TestQueryFindsUpsertedItem(t *testing.T) {
	m := openTestManager(t)
	ctx := context.Background()

	_, err := m.Upsert(ctx, UpsertInput{Type: model.TypeNote, Title: "retry backoff strategy", Text: "exponential retry with jitter"})
	require.NoError(t, err)
	_, err = m.Upsert(ctx, UpsertInput{Type: model.TypeNote, Title: "cache eviction", Text: "LRU policy notes"})
	require.NoError(t, err)

	result, err := m.Query(ctx, QueryRequest{Text: "retry backoff", K: 5})
	require.NoError(t, err)
	require.NotEmpty(t, result.Hits)
	require.Equal(t, "retry backoff strategy", result.Hits[0].Item.Title)
}

func TestRebuildRestoresIndexFromCatalog(t *testing.T) {
	m := openTestManager(t)
	ctx := context.Background()

	_, err := m.Upsert(ctx, UpsertInput{Type: model.TypeNote, Title: "symbol hunting", Text: "walks tree-sitter nodes"})
	require.NoError(t, err)

	require.NoError(t, m.Rebuild(ctx))

	result, err := m.Query(ctx, QueryRequest{Text: "symbol hunting", K: 5})
	require.NoError(t, err)
	require.NotEmpty(t, result.Hits)
}

func TestVerifyReportsIntactChain(t *testing.T) {
	m := openTestManager(t)
	ctx := context.Background()

	_, err := m.Upsert(ctx, UpsertInput{Type: model.TypeNote, Title: "verified"})
	require.NoError(t, err)

	result, err := m.Verify()
	require.NoError(t, err)
	require.True(t, result.Valid)
}

func TestSnapshotAppendsJournalRecord(t *testing.T) {
	m := openTestManager(t)
	ctx := context.Background()

	_, err := m.Upsert(ctx, UpsertInput{Type: model.TypeNote, Title: "snapshot target"})
	require.NoError(t, err)

	require.NoError(t, m.Snapshot("test"))
	require.Equal(t, StateReady, m.State())
}

func TestCompactArchivesJournal(t *testing.T) {
	m := openTestManager(t)
	ctx := context.Background()

	_, err := m.Upsert(ctx, UpsertInput{Type: model.TypeNote, Title: "compact target"})
	require.NoError(t, err)

	require.NoError(t, m.Compact("test"))
	require.Equal(t, StateReady, m.State())
}
