package video

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	memerrors "github.com/memvault/memvault/internal/errors"
	"github.com/memvault/memvault/internal/model"
	"github.com/memvault/memvault/internal/storage/qr"
	"github.com/memvault/memvault/internal/storage/videocodec"
)

// loadSegmentFrames decodes the whole current consolidated segment once
// and caches the result, invalidated whenever the manifest's generation
// advances past a successful consolidation.
func (b *Backend) loadSegmentFrames(ctx context.Context) ([]videocodec.RawFrame, error) {
	gen := b.man.Generation()

	b.segMu.Lock()
	if b.segLoaded && b.segGeneration == gen {
		frames := b.segFrames
		b.segMu.Unlock()
		return frames, nil
	}
	b.segMu.Unlock()

	width, height := b.man.Geometry()
	if width == 0 || height == 0 {
		b.segMu.Lock()
		b.segFrames, b.segGeneration, b.segLoaded = nil, gen, true
		b.segMu.Unlock()
		return nil, nil
	}

	data, err := os.ReadFile(b.segmentPath)
	if err != nil {
		return nil, memerrors.IOErr("video.materialize", b.scope, err)
	}

	frames, err := b.adapter.Decode(ctx, data, width, height)
	if err != nil {
		return nil, memerrors.Decode("video.materialize", b.scope, "video", true, err)
	}

	b.segMu.Lock()
	b.segFrames, b.segGeneration, b.segLoaded = frames, gen, true
	b.segMu.Unlock()
	return frames, nil
}

func (b *Backend) invalidateSegmentCache() {
	b.segMu.Lock()
	b.segLoaded = false
	b.segFrames = nil
	b.segMu.Unlock()
	b.cache.Purge()
}

// materialize decodes the bytes for entry's frame range out of the
// current segment, verifying the reconstructed item's own content hash
// against entry.ContentHash. On failure it retries with a bounded
// neighboring-frame probe (the frame range nudged by one frame in each
// direction) before giving up and reporting a recoverable corruption.
func (b *Backend) materialize(ctx context.Context, entry model.VideoSegmentManifestEntry) ([]byte, error) {
	frames, err := b.loadSegmentFrames(ctx)
	if err != nil {
		return nil, err
	}

	data, ok := decodeRange(frames, entry.FirstFrame, entry.LastFrame, entry.UncompressedSize, entry.ContentHash)
	if ok {
		return data, nil
	}

	for _, delta := range []int{-1, 1} {
		first := int(entry.FirstFrame) + delta
		last := int(entry.LastFrame) + delta
		if first < 0 || last >= len(frames) || first > last {
			continue
		}
		if data, ok := decodeRange(frames, uint32(first), uint32(last), entry.UncompressedSize, entry.ContentHash); ok {
			return data, nil
		}
	}

	slog.Warn("recoverable corruption decoding video-backed item",
		"scope", b.scope, "content_hash", entry.ContentHash,
		"first_frame", entry.FirstFrame, "last_frame", entry.LastFrame)
	return nil, nil
}

// materializeFromCurrentSegment looks up hash in the manifest that is
// about to be replaced by consolidation and decodes its bytes, used to
// carry surviving items forward into the new segment.
func (b *Backend) materializeFromCurrentSegment(ctx context.Context, hash string) ([]byte, error) {
	entry, ok := b.man.Get(hash)
	if !ok {
		return nil, nil
	}
	return b.materialize(ctx, entry)
}

// decodeRange slices [first, last] out of frames, QR-decodes them, cuts
// the result to size bytes (dropping any filler appended at encode
// time), and verifies the resulting bytes deserialize to an item whose
// own content hash matches expectedHash.
func decodeRange(frames []videocodec.RawFrame, first, last uint32, size int64, expectedHash string) ([]byte, bool) {
	if int(last) >= len(frames) || first > last {
		return nil, false
	}
	qrFrames := make([]qr.Frame, 0, last-first+1)
	for i := first; i <= last; i++ {
		f := frames[i]
		qrFrames = append(qrFrames, qr.Frame{Width: f.Width, Height: f.Height, RGBA: f.RGBA})
	}

	data, err := qr.Decode(qrFrames)
	if err != nil {
		return nil, false
	}
	if size > 0 && int64(len(data)) > size {
		data = data[:size]
	}

	var item model.MemoryItem
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, false
	}
	hash, err := model.ContentHash(&item)
	if err != nil || hash != expectedHash {
		return nil, false
	}
	return data, true
}
