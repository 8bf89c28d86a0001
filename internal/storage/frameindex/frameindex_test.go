package frameindex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/memvault/memvault/internal/model"
)

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "segment.mvi")

	w, err := Create(path)
	require.NoError(t, err)

	want := []model.FrameIndexEntry{
		{FrameNumber: 0, ByteOffset: 0, FrameSize: 512, FrameType: model.FrameI, TimestampMs: 0, IsKeyframe: true},
		{FrameNumber: 1, ByteOffset: 512, FrameSize: 128, FrameType: model.FrameP, TimestampMs: 33, IsKeyframe: false},
		{FrameNumber: 2, ByteOffset: 640, FrameSize: 96, FrameType: model.FrameB, TimestampMs: 66, IsKeyframe: false},
	}
	for _, e := range want {
		require.NoError(t, w.Append(e))
	}
	require.NoError(t, w.Close())

	got, err := Read(path)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestReadRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.mvi")
	require.NoError(t, os.WriteFile(path, []byte("not an mvi file at all, definitely too short or wrong"), 0o644))

	_, err := Read(path)
	require.Error(t, err)
}

func TestRangeSelectsContiguousFrames(t *testing.T) {
	entries := []model.FrameIndexEntry{
		{FrameNumber: 0}, {FrameNumber: 1}, {FrameNumber: 2}, {FrameNumber: 3}, {FrameNumber: 4},
	}
	got := Range(entries, 1, 3)
	require.Len(t, got, 3)
	require.Equal(t, uint32(1), got[0].FrameNumber)
	require.Equal(t, uint32(3), got[2].FrameNumber)
}

func TestRangeEmptyWhenNoMatch(t *testing.T) {
	entries := []model.FrameIndexEntry{{FrameNumber: 0}, {FrameNumber: 1}}
	require.Nil(t, Range(entries, 5, 10))
}
