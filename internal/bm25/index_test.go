package bm25

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/memvault/memvault/internal/model"
)

func item(id, title, text string) *model.MemoryItem {
	return &model.MemoryItem{
		ID:        id,
		Title:     title,
		Text:      text,
		Facets:    model.Facets{Tags: []string{"golang"}},
		UpdatedAt: time.Now(),
	}
}

func TestSearchRanksExactTitleMatchHighest(t *testing.T) {
	idx := New(DefaultConfig())
	idx.IndexItem(item("1", "retry backoff strategy", "exponential retry with jitter"))
	idx.IndexItem(item("2", "unrelated note", "retry appears only here in passing"))

	results := idx.Search("retry backoff strategy", 10)
	require.NotEmpty(t, results)
	require.Equal(t, "1", results[0].ID)
}

func TestRemoveItemDropsFromResults(t *testing.T) {
	idx := New(DefaultConfig())
	idx.IndexItem(item("1", "caching layer", "LRU eviction policy"))

	require.True(t, idx.RemoveItem("1"))
	require.Empty(t, idx.Search("caching", 10))
	require.False(t, idx.RemoveItem("1"))
}

func TestIndexItemReplacesPriorPosting(t *testing.T) {
	idx := New(DefaultConfig())
	idx.IndexItem(item("1", "old title", "old body"))
	idx.IndexItem(item("1", "new title", "new body"))

	require.Empty(t, idx.Search("old", 10))
	require.NotEmpty(t, idx.Search("new", 10))
}

func TestPinnedBoostsScore(t *testing.T) {
	cfg := DefaultConfig()
	idx := New(cfg)
	a := item("pinned", "queue backpressure", "bounded channel drops")
	a.Quality.Pinned = true
	b := item("plain", "queue backpressure handling", "bounded channel drops handling")
	idx.IndexItem(a)
	idx.IndexItem(b)

	results := idx.Search("queue backpressure", 10)
	require.Len(t, results, 2)
	require.Equal(t, "pinned", results[0].ID)
}

func TestRebuildReplacesEntireIndexAtomically(t *testing.T) {
	idx := New(DefaultConfig())
	idx.IndexItem(item("1", "stale", "stale body"))

	idx.Rebuild([]*model.MemoryItem{item("2", "fresh", "fresh body")})

	require.Empty(t, idx.Search("stale", 10))
	require.NotEmpty(t, idx.Search("fresh", 10))
	require.Equal(t, 1, idx.Len())
}

func TestSearchEmptyQueryReturnsNil(t *testing.T) {
	idx := New(DefaultConfig())
	idx.IndexItem(item("1", "title", "body"))
	require.Nil(t, idx.Search("", 10))
	require.Nil(t, idx.Search("   !!!", 10))
}

func TestMeanIDFAndOOVRate(t *testing.T) {
	idx := New(DefaultConfig())
	idx.IndexItem(item("1", "retry logic", "retry with backoff"))
	idx.IndexItem(item("2", "other note", "totally different content"))

	tokens := Tokenize("retry unseenword")
	require.Greater(t, idx.MeanIDF(tokens), 0.0)
	require.InDelta(t, 0.5, idx.OOVRate(tokens), 1e-9)
}

func TestRecencyFactorFavorsNewerItems(t *testing.T) {
	idx := New(DefaultConfig())
	old := item("old", "memoized function", "cache results of pure function")
	old.UpdatedAt = time.Now().Add(-365 * 24 * time.Hour)
	fresh := item("fresh", "memoized function", "cache results of pure function")
	fresh.UpdatedAt = time.Now()
	idx.IndexItem(old)
	idx.IndexItem(fresh)

	byID := make(map[string]float64)
	for _, r := range idx.Search("memoized function cache pure", 10) {
		byID[r.ID] = r.Score
	}
	require.Greater(t, byID["fresh"], byID["old"])
}
