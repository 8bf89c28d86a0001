// Package qr implements the QR codec spec.md requires: an opaque
// byte-payload encoder/decoder with automatic parameter selection,
// optional deflate pre-compression, and deterministic chunking above
// the largest single-frame capacity. No QR library was found anywhere
// in the retrieved reference pack (the teacher wraps Bleve/SQLite for
// search, not imaging), so this codec is built from scratch on the
// standard library (image geometry, compress/flate, crypto/sha256,
// hash/crc32) against the capacity table in spec.md's external
// interfaces section. It does not implement ISO/IEC 18004 — frames are
// only ever produced and consumed by this package, never by a phone
// camera — so there is no Reed-Solomon, finder pattern, or format
// information; the "QR" name and version/ecc vocabulary are kept for
// fidelity to the contract this codec fulfils.
package qr

import (
	"bytes"
	"compress/flate"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash/crc32"
	"io"
	"math"
	"strconv"

	memerrors "github.com/memvault/memvault/internal/errors"
)

// ECCLevel names the error-correction level, carried for contract
// fidelity with real QR vocabulary even though this codec has no
// Reed-Solomon layer of its own.
type ECCLevel string

const (
	ECCLow      ECCLevel = "L"
	ECCMedium   ECCLevel = "M"
	ECCQuartile ECCLevel = "Q"
	ECCHigh     ECCLevel = "H"
)

// tier is one entry of the capacity guide in spec.md §6.
type tier struct {
	version int
	ecc     ECCLevel
	bytes   int
}

// capacityTable is the exact guide from spec.md: "v6/Q → 71 B; v10/M →
// 154 B; v16/M → 800 B; v20/M → 1600 B."
var capacityTable = []tier{
	{version: 6, ecc: ECCQuartile, bytes: 71},
	{version: 10, ecc: ECCMedium, bytes: 154},
	{version: 16, ecc: ECCMedium, bytes: 800},
	{version: 20, ecc: ECCMedium, bytes: 1600},
}

const chunkHeaderSize = 12           // chunk_index:u16, total_chunks:u16, original_hash_prefix:u64
const frameEnvelopeFixed = 1 + 2 + 4 // flags:u8, length:u16, crc32:u32 trailer
const compressGainThreshold = 0.10   // keep compressed iff it shrinks the payload by >= 10%

const (
	flagCompressed byte = 1 << 0
	flagChunked    byte = 1 << 1
)

// Frame is one QR-coded raster: a square grid of modules rendered to
// an RGBA buffer at a fixed pixel-per-module scale. All frames
// produced by a single Encode call share identical geometry.
type Frame struct {
	Width  int
	Height int
	RGBA   []byte
}

// Options controls parameter selection for Encode.
type Options struct {
	ECC     ECCLevel // "" or "auto" selects automatically
	Version string   // "auto" or a decimal version number
}

// resolveTier picks the smallest capacity tier that fits n bytes,
// honoring an explicit (non-auto) version/ecc request, falling back to
// the largest tier (with chunking) when nothing fits.
func resolveTier(opts Options, n int) (tier, bool, error) {
	if opts.Version != "" && opts.Version != "auto" {
		for _, t := range capacityTable {
			if strconv.Itoa(t.version) == opts.Version && (opts.ECC == "" || opts.ECC == t.ecc) {
				return t, n > t.bytes, nil
			}
		}
		return tier{}, false, memerrors.Unsupported("qr.encode", "", "no capacity tier matches requested version/ecc")
	}
	for _, t := range capacityTable {
		if opts.ECC != "" && opts.ECC != t.ecc {
			continue
		}
		if n <= t.bytes {
			return t, false, nil
		}
	}
	return capacityTable[len(capacityTable)-1], true, nil
}

// maybeCompress tries a fast deflate pass, keeping it only if it
// shrinks the payload by at least compressGainThreshold.
func maybeCompress(payload []byte) ([]byte, bool) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestSpeed)
	if err != nil {
		return payload, false
	}
	if _, err := w.Write(payload); err != nil {
		return payload, false
	}
	if err := w.Close(); err != nil {
		return payload, false
	}
	compressed := buf.Bytes()
	if len(payload) == 0 {
		return payload, false
	}
	gain := 1 - float64(len(compressed))/float64(len(payload))
	if gain >= compressGainThreshold {
		return compressed, true
	}
	return payload, false
}

func decompress(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	return io.ReadAll(r)
}

// Encode turns payload into an ordered list of frames per spec.md §4.5.
func Encode(payload []byte, opts Options) ([]Frame, error) {
	data, compressed := maybeCompress(payload)

	t, needsChunking, err := resolveTier(opts, len(data)+frameEnvelopeFixed)
	if err != nil {
		return nil, err
	}

	if !needsChunking {
		body := buildFrameBody(compressed, nil, data)
		dim := dimensionFor(len(body))
		return []Frame{render(body, dim)}, nil
	}

	chunkPayload := t.bytes - frameEnvelopeFixed - chunkHeaderSize
	if chunkPayload <= 0 {
		return nil, memerrors.Unsupported("qr.encode", "", "capacity tier too small to carry chunk header")
	}

	sum := sha256.Sum256(data)
	hashPrefix := binary.BigEndian.Uint64(sum[:8])

	total := (len(data) + chunkPayload - 1) / chunkPayload
	if total == 0 {
		total = 1
	}

	// Every frame in one Encode call must share geometry, so size the
	// grid for the largest (first, full) chunk and pad shorter ones.
	maxBody := chunkHeaderSize + chunkPayload
	dim := dimensionFor(frameEnvelopeFixed + maxBody)

	frames := make([]Frame, 0, total)
	for i := 0; i < total; i++ {
		start := i * chunkPayload
		end := start + chunkPayload
		if end > len(data) {
			end = len(data)
		}
		header := make([]byte, chunkHeaderSize)
		binary.BigEndian.PutUint16(header[0:2], uint16(i))
		binary.BigEndian.PutUint16(header[2:4], uint16(total))
		binary.BigEndian.PutUint64(header[4:12], hashPrefix)

		body := buildFrameBody(compressed, header, data[start:end])
		frames = append(frames, render(body, dim))
	}
	return frames, nil
}

// buildFrameBody assembles [flags][length][chunk_header?][payload][crc32].
func buildFrameBody(compressed bool, chunkHeader []byte, payload []byte) []byte {
	flags := byte(0)
	if compressed {
		flags |= flagCompressed
	}
	if chunkHeader != nil {
		flags |= flagChunked
	}

	buf := make([]byte, 0, frameEnvelopeFixed+len(chunkHeader)+len(payload))
	buf = append(buf, flags)
	length := make([]byte, 2)
	binary.BigEndian.PutUint16(length, uint16(len(payload)))
	buf = append(buf, length...)
	if chunkHeader != nil {
		buf = append(buf, chunkHeader...)
	}
	buf = append(buf, payload...)

	sum := crc32.ChecksumIEEE(buf)
	crcBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(crcBytes, sum)
	return append(buf, crcBytes...)
}

// frameEntry is one decoded, envelope-parsed frame.
type frameEntry struct {
	compressed  bool
	chunked     bool
	chunkIndex  uint16
	totalChunks uint16
	hashPrefix  uint64
	payload     []byte
}

// parseFrameBody parses body, which may carry trailing zero padding
// beyond the real envelope (rendered frames share one uniform geometry
// even when a chunk's real payload is shorter than the widest chunk).
// The real envelope length is derived entirely from its own fixed-
// offset fields, never from len(body), so padding never shifts where
// the crc32 trailer is read from.
func parseFrameBody(body []byte) (frameEntry, error) {
	if len(body) < frameEnvelopeFixed {
		return frameEntry{}, memerrors.Decode("qr.decode", "", "qr", false, errShortFrame)
	}
	flags := body[0]
	length := binary.BigEndian.Uint16(body[1:3])
	e := frameEntry{compressed: flags&flagCompressed != 0, chunked: flags&flagChunked != 0}

	headerLen := 0
	if e.chunked {
		headerLen = chunkHeaderSize
	}
	realLen := 3 + headerLen + int(length) + 4
	if realLen > len(body) {
		return frameEntry{}, memerrors.Decode("qr.decode", "", "qr", false, errShortFrame)
	}

	rest := body[3:realLen]
	crcGot := binary.BigEndian.Uint32(rest[len(rest)-4:])
	withoutCRC := body[:realLen-4]
	if crc32.ChecksumIEEE(withoutCRC) != crcGot {
		return frameEntry{}, memerrors.Decode("qr.decode", "", "qr", true, errCRCMismatch)
	}
	rest = rest[:len(rest)-4]

	if e.chunked {
		header := rest[:chunkHeaderSize]
		e.chunkIndex = binary.BigEndian.Uint16(header[0:2])
		e.totalChunks = binary.BigEndian.Uint16(header[2:4])
		e.hashPrefix = binary.BigEndian.Uint64(header[4:12])
		rest = rest[chunkHeaderSize:]
	}
	e.payload = append([]byte(nil), rest[:length]...)
	return e, nil
}

// Decode reverses Encode: it reassembles chunked payloads by
// original_hash_prefix and chunk_index, verifies each frame's crc32,
// and decompresses if the codec's flag says it compressed the payload.
func Decode(frames []Frame) ([]byte, error) {
	if len(frames) == 0 {
		return nil, memerrors.Decode("qr.decode", "", "qr", false, errNoFrames)
	}

	entries := make([]frameEntry, 0, len(frames))
	for _, f := range frames {
		e, err := decodeFrame(f)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	first := entries[0]
	var data []byte
	if !first.chunked {
		data = first.payload
	} else {
		ordered := make([][]byte, first.totalChunks)
		seen := 0
		for _, e := range entries {
			if e.hashPrefix != first.hashPrefix || e.totalChunks != first.totalChunks {
				return nil, memerrors.Decode("qr.decode", "", "qr", false, errMixedChunks)
			}
			if ordered[e.chunkIndex] == nil {
				seen++
			}
			ordered[e.chunkIndex] = e.payload
		}
		if seen != int(first.totalChunks) {
			return nil, memerrors.Decode("qr.decode", "", "qr", true, errIncompleteChunks)
		}
		for _, chunk := range ordered {
			data = append(data, chunk...)
		}
	}

	if first.compressed {
		out, err := decompress(data)
		if err != nil {
			return nil, memerrors.Decode("qr.decode", "", "deflate", false, err)
		}
		return out, nil
	}
	return data, nil
}

// DecodeVerify decodes frames and additionally checks the reassembled
// payload's SHA-256 against expectedHash (a hex digest), the "verify
// reassembled payload hash" step spec.md requires.
func DecodeVerify(frames []Frame, expectedHash string) ([]byte, error) {
	data, err := Decode(frames)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != expectedHash {
		return nil, memerrors.Integrity("qr.decode_verify", "", -1, "reassembled payload hash mismatch")
	}
	return data, nil
}

// dimensionFor returns the square module grid side needed to hold
// nBytes of raw data at one bit per module, padded to a round number
// and bordered by a quiet zone on render.
func dimensionFor(nBytes int) int {
	bits := nBytes * 8
	side := int(math.Ceil(math.Sqrt(float64(bits))))
	if side < 8 {
		side = 8
	}
	return side
}

const moduleSizePx = 4
const quietZoneModules = 2

// render packs body into a bit-per-module square grid (row-major, MSB
// first, zero-padded) and rasterizes it to an RGBA buffer with a white
// quiet-zone border.
func render(body []byte, dim int) Frame {
	total := dim * dim
	bits := make([]bool, total)
	for i := 0; i < len(body) && i*8 < total; i++ {
		b := body[i]
		for bit := 0; bit < 8; bit++ {
			idx := i*8 + bit
			if idx >= total {
				break
			}
			bits[idx] = (b>>(7-bit))&1 == 1
		}
	}

	side := (dim + 2*quietZoneModules) * moduleSizePx
	rgba := make([]byte, side*side*4)
	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {
			off := (y*side + x) * 4
			mx := x/moduleSizePx - quietZoneModules
			my := y/moduleSizePx - quietZoneModules
			black := false
			if mx >= 0 && mx < dim && my >= 0 && my < dim {
				black = bits[my*dim+mx]
			}
			if black {
				rgba[off], rgba[off+1], rgba[off+2], rgba[off+3] = 0, 0, 0, 255
			} else {
				rgba[off], rgba[off+1], rgba[off+2], rgba[off+3] = 255, 255, 255, 255
			}
		}
	}
	return Frame{Width: side, Height: side, RGBA: rgba}
}

// decodeFrame extracts the packed body from a frame, first trying a
// plain midpoint threshold and, on crc32 failure, retrying with an
// explicit luminance-128 binarization pass per spec.md's decode
// recovery policy.
func decodeFrame(f Frame) (frameEntry, error) {
	body := extractBits(f, false)
	if e, err := parseFrameBody(body); err == nil {
		return e, nil
	}

	body = extractBits(f, true)
	e, err := parseFrameBody(body)
	if err != nil {
		return frameEntry{}, memerrors.Decode("qr.decode", "", "qr", false, errPersistentDecodeFailure)
	}
	return e, nil
}

// extractBits reverses render: it samples the center pixel of each
// module and thresholds it back to a bit, optionally applying an
// explicit luminance-128 binarization first.
func extractBits(f Frame, binarize bool) []byte {
	dim := f.Width/moduleSizePx - 2*quietZoneModules
	if dim <= 0 {
		return nil
	}
	bits := make([]bool, dim*dim)
	for my := 0; my < dim; my++ {
		for mx := 0; mx < dim; mx++ {
			px := (mx + quietZoneModules) * moduleSizePx
			py := (my + quietZoneModules) * moduleSizePx
			off := (py*f.Width + px) * 4
			if off+2 >= len(f.RGBA) {
				continue
			}
			r, g, b := f.RGBA[off], f.RGBA[off+1], f.RGBA[off+2]
			lum := (int(r) + int(g) + int(b)) / 3
			threshold := 128
			if !binarize {
				threshold = 127
			}
			bits[my*dim+mx] = lum < threshold
		}
	}

	out := make([]byte, (len(bits)+7)/8)
	for i, bit := range bits {
		if bit {
			out[i/8] |= 1 << (7 - uint(i%8))
		}
	}
	return out
}
