package cache

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddGetRoundTrip(t *testing.T) {
	c := New[string, int](10)
	c.Add("a", 1)

	v, ok := c.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, v)

	_, ok = c.Get("missing")
	require.False(t, ok)
}

func TestEvictsLeastRecentlyUsedAtCapacity(t *testing.T) {
	c := New[string, int](2)
	c.Add("a", 1)
	c.Add("b", 2)
	c.Add("c", 3) // evicts "a"

	_, ok := c.Get("a")
	require.False(t, ok)
	require.Equal(t, 2, c.Len())
}

func TestRemoveAndPurge(t *testing.T) {
	c := New[string, int](10)
	c.Add("a", 1)
	c.Remove("a")
	_, ok := c.Get("a")
	require.False(t, ok)

	c.Add("b", 2)
	c.Add("c", 3)
	c.Purge()
	require.Equal(t, 0, c.Len())
}

func TestGetOrLoadCachesOnMissAndSkipsCacheOnError(t *testing.T) {
	c := New[string, int](10)
	calls := 0

	v, err := c.GetOrLoad("k", func() (int, error) {
		calls++
		return 42, nil
	})
	require.NoError(t, err)
	require.Equal(t, 42, v)

	v, err = c.GetOrLoad("k", func() (int, error) {
		calls++
		return 99, nil
	})
	require.NoError(t, err)
	require.Equal(t, 42, v, "second call must hit the cache, not reload")
	require.Equal(t, 1, calls)

	_, err = c.GetOrLoad("failing", func() (int, error) {
		return 0, errors.New("boom")
	})
	require.Error(t, err)
	_, ok := c.Get("failing")
	require.False(t, ok, "a failed load must not be cached")
}

func TestDefaultSizeUsedForNonPositiveSize(t *testing.T) {
	c := New[string, int](0)
	require.NotNil(t, c.lru)
}
