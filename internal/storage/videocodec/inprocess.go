package videocodec

import (
	"context"
	"runtime"
	"sync"

	"github.com/ebitengine/purego"

	memerrors "github.com/memvault/memvault/internal/errors"
)

// openh264Probe records whether a system openh264 library could be
// dlopen'ed. openh264's encoder calling convention needs a
// struct-by-pointer param list that purego
// cannot express safely without cgo, so probing is limited to
// confirming the library is dlopen-able at all; a positive probe still
// routes through the muxer fallback rather than attempting a blind FFI
// call into an ABI purego can't describe.
type openh264Probe struct {
	lib    uintptr
	loaded bool
}

// InProcessAdapter avoids shelling out to an external binary. It probes
// for a system H.264 shared library via purego.Dlopen, the same dlopen
// pattern cmd/purego-test verifies against libc/libSystem, and, whatever
// the probe finds, encodes with a minimal single-track MP4 muxer that
// stores raw RGBA frame bytes in mdat uncompressed. The muxer trades
// compression for having zero required system dependencies.
type InProcessAdapter struct {
	mu    sync.Mutex
	probe openh264Probe
}

// NewInProcessAdapter constructs the adapter, probing for a system
// codec library once at construction time.
func NewInProcessAdapter() *InProcessAdapter {
	a := &InProcessAdapter{}
	a.probe = probeSystemCodec()
	return a
}

func probeSystemCodec() openh264Probe {
	var libPath string
	switch runtime.GOOS {
	case "darwin":
		libPath = "libopenh264.dylib"
	case "linux":
		libPath = "libopenh264.so.6"
	default:
		return openh264Probe{}
	}
	lib, err := purego.Dlopen(libPath, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return openh264Probe{}
	}
	return openh264Probe{lib: lib, loaded: true}
}

func (a *InProcessAdapter) Name() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.probe.loaded {
		return "inprocess:openh264+muxer"
	}
	return "inprocess:muxer"
}

// Encode always uses the raw-storage muxer fallback: a genuine software
// H.264 encode over purego's FFI boundary would need cgo-grade struct
// marshaling openh264's SVC encoder interface doesn't support through
// RegisterLibFunc alone, so the in-process path accepts an uncompressed
// payload rather than an unsafe binding.
func (a *InProcessAdapter) Encode(ctx context.Context, frames []RawFrame, opts EncodeOptions) (EncodeResult, error) {
	if len(frames) == 0 {
		return EncodeResult{}, memerrors.Encode("videocodec.encode", "", "empty-batch", 1, errNoFrames)
	}
	mp4, err := muxRawFrames(frames)
	if err != nil {
		return EncodeResult{}, memerrors.Encode("videocodec.encode", "", "mux", 1, err)
	}
	return EncodeResult{MP4: mp4, FrameCount: len(frames)}, nil
}

func (a *InProcessAdapter) Decode(ctx context.Context, mp4 []byte, width, height int) ([]RawFrame, error) {
	frames, err := demuxRawFrames(mp4, width, height)
	if err != nil {
		return nil, memerrors.Decode("videocodec.decode", "", "mux", false, err)
	}
	return frames, nil
}
