package qr

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeSingleFrameRoundTrip(t *testing.T) {
	payload := []byte(`{"id":"01ID","title":"hello world"}`)

	frames, err := Encode(payload, Options{})
	require.NoError(t, err)
	require.Len(t, frames, 1)

	got, err := Decode(frames)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestEncodeDecodeAtExactSingleFrameBoundary(t *testing.T) {
	// Incompressible random-ish payload exactly at the v6/Q tier.
	payload := bytes.Repeat([]byte{0x5a}, 71-frameEnvelopeFixed)
	// pad with varying bytes so flate can't compress it away
	for i := range payload {
		payload[i] = byte(i)
	}

	frames, err := Encode(payload, Options{})
	require.NoError(t, err)
	require.Len(t, frames, 1, "payload at the smallest tier's usable capacity must still fit one frame")

	got, err := Decode(frames)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestEncodeDecodeChunkedPayload(t *testing.T) {
	payload := make([]byte, 5000)
	state := uint32(12345)
	for i := range payload {
		state = state*1103515245 + 12345
		payload[i] = byte(state >> 16)
	}

	frames, err := Encode(payload, Options{})
	require.NoError(t, err)
	require.Greater(t, len(frames), 1, "payload above the largest tier must split into multiple frames")

	for i := 1; i < len(frames); i++ {
		require.Equal(t, frames[0].Width, frames[i].Width, "all frames from one Encode call must share geometry")
		require.Equal(t, frames[0].Height, frames[i].Height)
	}

	got, err := Decode(frames)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestDecodeVerifyDetectsHashMismatch(t *testing.T) {
	payload := []byte("some content that will be verified")
	frames, err := Encode(payload, Options{})
	require.NoError(t, err)

	_, err = DecodeVerify(frames, "0000000000000000000000000000000000000000000000000000000000000000")
	require.Error(t, err)
}

func TestCompressionAppliesToHighlyRepetitivePayload(t *testing.T) {
	payload := []byte(strings.Repeat("a", 2000))
	frames, err := Encode(payload, Options{})
	require.NoError(t, err)

	got, err := Decode(frames)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestDecodeDetectsCorruptionAfterBinarizationRetry(t *testing.T) {
	payload := []byte("short payload")
	frames, err := Encode(payload, Options{})
	require.NoError(t, err)
	require.Len(t, frames, 1)

	// Set every byte to mid-gray so that neither binarization threshold
	// recovers the modules and both decode passes fail.
	for i := range frames[0].RGBA {
		frames[0].RGBA[i] = 127
	}

	_, err = Decode(frames)
	require.Error(t, err)
}

func TestResolveTierHonorsExplicitVersionAndECC(t *testing.T) {
	tier, chunked, err := resolveTier(Options{ECC: ECCMedium, Version: "10"}, 100)
	require.NoError(t, err)
	require.False(t, chunked)
	require.Equal(t, 10, tier.version)
	require.Equal(t, ECCMedium, tier.ecc)
}

func TestResolveTierRejectsUnknownVersion(t *testing.T) {
	_, _, err := resolveTier(Options{Version: "99"}, 10)
	require.Error(t, err)
}
