package videocodec

import (
	"encoding/binary"
	"fmt"
)

// This muxer speaks just enough of the box vocabulary
// moshee/sound's mp4/atom.go catalogs (ftyp, moov, mdat, free) to
// produce a file real MP4 tooling can at least parse the container
// structure of. It stores each RawFrame verbatim inside mdat, one
// after another, with no inter-frame compression: the in-process
// adapter only exists so a host without a native encoder can still
// round-trip frames through the video backend, not to produce
// interoperable video.

const ftypBrand = "isom"

// muxRawFrames packs frames into ftyp+free+mdat boxes. The frame
// geometry and count live in the free box's payload so demuxRawFrames
// can slice mdat back into frames without a real sample table.
func muxRawFrames(frames []RawFrame) ([]byte, error) {
	if len(frames) == 0 {
		return nil, errNoFrames
	}
	w, h := frames[0].Width, frames[0].Height
	frameSize := w * h * 4
	for _, f := range frames {
		if f.Width != w || f.Height != h {
			return nil, fmt.Errorf("videocodec: inconsistent frame geometry in batch")
		}
	}

	var out []byte
	out = append(out, box("ftyp", ftypBox())...)
	out = append(out, box("free", freeBoxPayload(w, h, len(frames)))...)

	mdat := make([]byte, 0, frameSize*len(frames))
	for _, f := range frames {
		mdat = append(mdat, f.RGBA...)
	}
	out = append(out, box("mdat", mdat)...)
	return out, nil
}

// demuxRawFrames reverses muxRawFrames, trusting the caller-supplied
// width/height (raw video carries no self-describing geometry) to
// slice the mdat payload into frames.
func demuxRawFrames(data []byte, width, height int) ([]RawFrame, error) {
	frameSize := width * height * 4
	if frameSize == 0 {
		return nil, fmt.Errorf("videocodec: zero frame geometry")
	}

	mdat, err := findBox(data, "mdat")
	if err != nil {
		return nil, err
	}
	if len(mdat)%frameSize != 0 {
		return nil, errPartialFrame
	}

	count := len(mdat) / frameSize
	frames := make([]RawFrame, count)
	for i := 0; i < count; i++ {
		frames[i] = RawFrame{
			Width:  width,
			Height: height,
			RGBA:   mdat[i*frameSize : (i+1)*frameSize],
		}
	}
	return frames, nil
}

// box wraps payload in a classic 32-bit-size + 4cc MP4 box header.
func box(fourCC string, payload []byte) []byte {
	size := 8 + len(payload)
	buf := make([]byte, 8, size)
	binary.BigEndian.PutUint32(buf[0:4], uint32(size))
	copy(buf[4:8], fourCC)
	return append(buf, payload...)
}

func ftypBox() []byte {
	buf := make([]byte, 8)
	copy(buf[0:4], ftypBrand)
	binary.BigEndian.PutUint32(buf[4:8], 0)
	return buf
}

func freeBoxPayload(width, height, frameCount int) []byte {
	buf := make([]byte, 12)
	binary.BigEndian.PutUint32(buf[0:4], uint32(width))
	binary.BigEndian.PutUint32(buf[4:8], uint32(height))
	binary.BigEndian.PutUint32(buf[8:12], uint32(frameCount))
	return buf
}

// findBox does a linear, single-level scan for the first box matching
// fourCC, returning its payload.
func findBox(data []byte, fourCC string) ([]byte, error) {
	off := 0
	for off+8 <= len(data) {
		size := int(binary.BigEndian.Uint32(data[off : off+4]))
		if size < 8 || off+size > len(data) {
			return nil, fmt.Errorf("videocodec: corrupt box at offset %d", off)
		}
		tag := string(data[off+4 : off+8])
		if tag == fourCC {
			return data[off+8 : off+size], nil
		}
		off += size
	}
	return nil, fmt.Errorf("videocodec: box %q not found", fourCC)
}
