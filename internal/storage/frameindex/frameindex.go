// Package frameindex implements the .mvi binary frame index: a 32-byte
// header followed by fixed 24-byte records, one per QR-coded video
// frame, letting the video backend seek directly to a content hash's
// frame range without scanning the consolidated MP4. The tagged-field,
// explicit-size record discipline follows dolthub/dolt's journal index
// codec (journal_index_record.go), adapted here to a fixed (not
// tag-prefixed) record shape since every field in an .mvi entry is
// mandatory and constant width.
package frameindex

import (
	"encoding/binary"
	"os"

	memerrors "github.com/memvault/memvault/internal/errors"
	"github.com/memvault/memvault/internal/model"
)

// Magic identifies an .mvi file.
var Magic = [4]byte{'M', 'V', 'I', 'X'}

const (
	headerSize    = 32
	recordSize    = 24
	formatVersion = 1
	keyframeBit   = uint32(1) << 31
	frameKindMask = uint32(0x0F)
)

// Header is the fixed 32-byte .mvi preamble.
type Header struct {
	Magic      [4]byte
	Version    uint32
	FrameCount uint32
}

func encodeHeader(h Header) []byte {
	buf := make([]byte, headerSize)
	copy(buf[0:4], h.Magic[:])
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint32(buf[8:12], h.FrameCount)
	// buf[12:32] stays reserved/zero.
	return buf
}

func decodeHeader(buf []byte) (Header, error) {
	if len(buf) < headerSize {
		return Header{}, memerrors.Decode("frameindex.read", "", "mvi", false, errTruncatedHeader)
	}
	var h Header
	copy(h.Magic[:], buf[0:4])
	if h.Magic != Magic {
		return Header{}, memerrors.Decode("frameindex.read", "", "mvi", false, errBadMagic)
	}
	h.Version = binary.LittleEndian.Uint32(buf[4:8])
	h.FrameCount = binary.LittleEndian.Uint32(buf[8:12])
	return h, nil
}

func encodeEntry(e model.FrameIndexEntry) []byte {
	buf := make([]byte, recordSize)
	binary.LittleEndian.PutUint32(buf[0:4], e.FrameNumber)
	binary.LittleEndian.PutUint64(buf[4:12], e.ByteOffset)
	binary.LittleEndian.PutUint32(buf[12:16], e.FrameSize)
	binary.LittleEndian.PutUint32(buf[16:20], e.TimestampMs)

	flags := uint32(e.FrameType) & frameKindMask
	if e.IsKeyframe {
		flags |= keyframeBit
	}
	binary.LittleEndian.PutUint32(buf[20:24], flags)
	return buf
}

func decodeEntry(buf []byte) model.FrameIndexEntry {
	flags := binary.LittleEndian.Uint32(buf[20:24])
	return model.FrameIndexEntry{
		FrameNumber: binary.LittleEndian.Uint32(buf[0:4]),
		ByteOffset:  binary.LittleEndian.Uint64(buf[4:12]),
		FrameSize:   binary.LittleEndian.Uint32(buf[12:16]),
		TimestampMs: binary.LittleEndian.Uint32(buf[16:20]),
		FrameType:   model.FrameKind(flags & frameKindMask),
		IsKeyframe:  flags&keyframeBit != 0,
	}
}

// Writer appends fixed-size records to an .mvi file, patching the
// header's frame_count on Close once the true count is known.
type Writer struct {
	f     *os.File
	count uint32
}

// Create truncates (or creates) the file at path and reserves its
// 32-byte header, to be patched in on Close.
func Create(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0o644)
	if err != nil {
		return nil, memerrors.IOErr("frameindex.create", "", err)
	}
	if _, err := f.Write(encodeHeader(Header{Magic: Magic, Version: formatVersion})); err != nil {
		_ = f.Close()
		return nil, memerrors.IOErr("frameindex.create", "", err)
	}
	return &Writer{f: f}, nil
}

// Append writes one fixed 24-byte record.
func (w *Writer) Append(e model.FrameIndexEntry) error {
	if _, err := w.f.Write(encodeEntry(e)); err != nil {
		return memerrors.IOErr("frameindex.append", "", err)
	}
	w.count++
	return nil
}

// Close patches the header's frame_count, syncs, and closes the file.
func (w *Writer) Close() error {
	if _, err := w.f.WriteAt(encodeHeader(Header{Magic: Magic, Version: formatVersion, FrameCount: w.count}), 0); err != nil {
		_ = w.f.Close()
		return memerrors.IOErr("frameindex.close", "", err)
	}
	if err := w.f.Sync(); err != nil {
		_ = w.f.Close()
		return memerrors.IOErr("frameindex.close", "", err)
	}
	return w.f.Close()
}

// Read loads an entire .mvi file into memory, in on-disk (frame_number
// ascending, by construction) order.
func Read(path string) ([]model.FrameIndexEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, memerrors.IOErr("frameindex.read", "", err)
	}
	if len(data) < headerSize {
		return nil, memerrors.Decode("frameindex.read", "", "mvi", false, errTruncatedHeader)
	}
	h, err := decodeHeader(data[:headerSize])
	if err != nil {
		return nil, err
	}

	body := data[headerSize:]
	available := len(body) / recordSize
	n := int(h.FrameCount)
	if n > available {
		n = available
	}

	entries := make([]model.FrameIndexEntry, n)
	for i := 0; i < n; i++ {
		off := i * recordSize
		entries[i] = decodeEntry(body[off : off+recordSize])
	}
	return entries, nil
}

// Range returns the contiguous slice of entries whose FrameNumber falls
// within [firstFrame, lastFrame], the lookup Materialize uses to locate
// a content hash's frames without a full scan. Entries must already be
// ordered by FrameNumber ascending (true of anything Read returns).
func Range(entries []model.FrameIndexEntry, firstFrame, lastFrame uint32) []model.FrameIndexEntry {
	start := -1
	end := -1
	for i, e := range entries {
		if e.FrameNumber < firstFrame {
			continue
		}
		if e.FrameNumber > lastFrame {
			break
		}
		if start == -1 {
			start = i
		}
		end = i
	}
	if start == -1 {
		return nil
	}
	return entries[start : end+1]
}
