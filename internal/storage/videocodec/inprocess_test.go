package videocodec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInProcessAdapterEncodeDecodeRoundTrip(t *testing.T) {
	a := NewInProcessAdapter()
	require.NotEmpty(t, a.Name())

	frames := []RawFrame{
		lcgFrame(4, 4, 11),
		lcgFrame(4, 4, 12),
	}

	res, err := a.Encode(context.Background(), frames, DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, 2, res.FrameCount)

	got, err := a.Decode(context.Background(), res.MP4, 4, 4)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, frames[0].RGBA, got[0].RGBA)
	require.Equal(t, frames[1].RGBA, got[1].RGBA)
}

func TestInProcessAdapterRejectsEmptyBatch(t *testing.T) {
	a := NewInProcessAdapter()
	_, err := a.Encode(context.Background(), nil, DefaultOptions())
	require.Error(t, err)
}
