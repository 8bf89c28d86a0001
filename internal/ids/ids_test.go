package ids

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLengthAndAlphabet(t *testing.T) {
	id := New()
	require.Len(t, id, 26)
	for _, c := range id {
		assert.Contains(t, crockford, string(c))
	}
}

func TestMonotonicWithinSameMillisecond(t *testing.T) {
	g := &Generator{}
	at := time.UnixMilli(1_700_000_000_000)
	var prev string
	for i := 0; i < 50; i++ {
		id := g.NewAt(at)
		if prev != "" {
			assert.Greater(t, id, prev)
		}
		prev = id
	}
}

func TestLexicographicOrderTracksTime(t *testing.T) {
	g := &Generator{}
	earlier := g.NewAt(time.UnixMilli(1_700_000_000_000))
	later := g.NewAt(time.UnixMilli(1_700_000_000_500))
	assert.Less(t, earlier, later)
}

func TestTimestampRoundTrip(t *testing.T) {
	at := time.UnixMilli(1_700_000_123_456)
	id := NewAt(at)
	got, err := Timestamp(id)
	require.NoError(t, err)
	assert.Equal(t, at.UnixMilli(), got.UnixMilli())
}

func TestTimestampRejectsMalformed(t *testing.T) {
	_, err := Timestamp("too-short")
	assert.Error(t, err)
}
