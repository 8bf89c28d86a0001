// Package videocodec adapts the video backend's encode/decode calls to
// one of two concrete implementations: a native adapter that shells out
// to a system encoder over piped stdin/stdout (grounded on
// Vantagics-AskFlow's concurrent fault-isolated phase pipeline), and an
// in-process adapter that probes whether a system codec shared library
// can be dlopen'ed via purego (grounded on the teacher's cmd/purego-test
// probe) and always encodes with a minimal hand-rolled single-track MP4
// muxer; no function of the codec library is called.
package videocodec

import (
	"context"
	"os/exec"

	memerrors "github.com/memvault/memvault/internal/errors"
)

// RawFrame is one uncompressed RGBA frame handed to/from an Adapter.
type RawFrame struct {
	Width  int
	Height int
	RGBA   []byte
}

// EncodeOptions mirrors spec.md's video.* config keys.
type EncodeOptions struct {
	Codec  string // "h264" | "h265"
	CRF    int    // [18..28]
	GOP    int    // [1..60]
	Preset string
}

// DefaultOptions returns the spec's documented default_options().
func DefaultOptions() EncodeOptions {
	return EncodeOptions{Codec: "h264", CRF: 23, GOP: 30, Preset: "medium"}
}

// EncodeResult is the consolidated segment produced by Encode.
type EncodeResult struct {
	MP4        []byte
	FrameCount int
}

// Adapter is the abstract encoder/decoder contract both
// implementations satisfy identically.
type Adapter interface {
	Name() string
	Encode(ctx context.Context, frames []RawFrame, opts EncodeOptions) (EncodeResult, error)
	Decode(ctx context.Context, mp4 []byte, width, height int) ([]RawFrame, error)
}

// Select resolves the adapter selection policy: prefer the native
// subprocess adapter when nativeBinary is found on PATH, otherwise fall
// back to the in-process adapter.
func Select(nativeBinary string) Adapter {
	if nativeBinary != "" {
		if path, err := exec.LookPath(nativeBinary); err == nil {
			return &NativeAdapter{binPath: path}
		}
	}
	return NewInProcessAdapter()
}

func errUnsupportedCodec(op, codec string) error {
	return memerrors.Unsupported(op, "", "unsupported codec: "+codec)
}
