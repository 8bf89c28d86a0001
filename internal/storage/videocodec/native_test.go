package videocodec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseFrameProgress(t *testing.T) {
	n, ok := parseFrameProgress("frame=  120 fps=30 q=23.0 size=...")
	require.True(t, ok)
	require.Equal(t, 120, n)

	_, ok = parseFrameProgress("no frame marker here")
	require.False(t, ok)
}

func TestFfmpegCodecName(t *testing.T) {
	require.Equal(t, "libx264", ffmpegCodecName("h264"))
	require.Equal(t, "libx265", ffmpegCodecName("h265"))
}

func TestSelectFallsBackToInProcessWhenBinaryMissing(t *testing.T) {
	a := Select("definitely-not-a-real-encoder-binary")
	_, ok := a.(*InProcessAdapter)
	require.True(t, ok)
}

func TestSelectFallsBackToInProcessWhenNativeBinaryUnset(t *testing.T) {
	a := Select("")
	_, ok := a.(*InProcessAdapter)
	require.True(t, ok)
}
