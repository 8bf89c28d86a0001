package video

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/memvault/memvault/internal/model"
	"github.com/memvault/memvault/internal/storage"
	"github.com/memvault/memvault/internal/storage/frameindex"
	"github.com/memvault/memvault/internal/storage/qr"
	"github.com/memvault/memvault/internal/storage/videocodec"
)

// qrTierOptions forces every item through the same capacity tier
// regardless of its own size. The chunked-path frame dimension qr.Encode
// produces is a function of the tier alone, not of the payload length,
// so fixing the tier (the smallest one, v6/Q) is what lets every item in
// a segment share one frame geometry without needing to pad payloads to
// a common length.
var qrTierOptions = qr.Options{Version: "6", ECC: qr.ECCQuartile}

// runConsolidation is the debounced consolidation entry point. Failures
// leave the previous consolidated segment untouched and restore the
// snapshot's pending state for retry, per the backend's failure
// semantics.
func (b *Backend) runConsolidation() {
	b.mu.Lock()
	if b.consolidating {
		b.dirty = true
		b.mu.Unlock()
		return
	}
	b.consolidating = true
	writes := b.pendingWrites
	deletes := b.pendingDeletes
	b.pendingWrites = make(map[string]pendingWrite)
	b.pendingDeletes = make(map[string]bool)
	b.mu.Unlock()

	err := b.consolidate(context.Background(), writes, deletes)

	b.mu.Lock()
	b.consolidating = false
	if err != nil {
		slog.Error("video consolidation failed", "scope", b.scope, "error", err.Error())
		for id, pw := range writes {
			b.failCounts[id]++
			if b.failCounts[id] >= maxConsecutiveFailures {
				slog.Error("video item quarantined after repeated consolidation failures", "scope", b.scope, "id", id)
				continue
			}
			if _, restaged := b.pendingWrites[id]; !restaged {
				b.pendingWrites[id] = pw
			}
		}
		for id := range deletes {
			if _, restaged := b.pendingDeletes[id]; !restaged {
				b.pendingDeletes[id] = true
			}
		}
	} else {
		for id := range writes {
			delete(b.failCounts, id)
		}
	}
	dirty := b.dirty
	b.dirty = false
	b.mu.Unlock()

	if dirty {
		b.debouncer.Trigger()
	}
}

// consolidate performs one full re-encode of the segment's live set:
// existing manifest entries not in deletes, unioned with the given
// pending writes.
func (b *Backend) consolidate(ctx context.Context, writes map[string]pendingWrite, deletes map[string]bool) error {
	liveHashBytes := make(map[string][]byte)

	for _, s := range b.cat.All() {
		if deletes[s.ID] {
			continue
		}
		if pw, ok := writes[s.ID]; ok {
			liveHashBytes[pw.hash] = pw.bytes
			continue
		}
		if _, have := liveHashBytes[s.ContentHash]; have {
			continue
		}
		if _, ok := b.man.Get(s.ContentHash); ok {
			data, err := b.materializeFromCurrentSegment(ctx, s.ContentHash)
			if err != nil {
				return fmt.Errorf("rehydrate %s: %w", s.ID, err)
			}
			if data != nil {
				liveHashBytes[s.ContentHash] = data
			}
		}
	}

	hashes := make([]string, 0, len(liveHashBytes))
	for h := range liveHashBytes {
		hashes = append(hashes, h)
	}
	sort.Strings(hashes)

	var rawFrames []videocodec.RawFrame
	var indexEntries []model.FrameIndexEntry
	manifestEntries := make(map[string]model.VideoSegmentManifestEntry, len(hashes))

	wantWidth, wantHeight := 0, 0
	var frameNumber uint32
	var byteOffset uint64

	for _, h := range hashes {
		data := liveHashBytes[h]
		frames, err := encodeWithUniformGeometry(data, wantWidth, wantHeight)
		if err != nil {
			return fmt.Errorf("encode %s: %w", h, err)
		}
		if wantWidth == 0 {
			wantWidth, wantHeight = frames[0].Width, frames[0].Height
		}

		first := frameNumber
		for i, f := range frames {
			raw := videocodec.RawFrame{Width: f.Width, Height: f.Height, RGBA: f.RGBA}
			rawFrames = append(rawFrames, raw)

			kind := model.FrameP
			isKey := false
			if i == 0 {
				kind = model.FrameI
				isKey = true
			}
			indexEntries = append(indexEntries, model.FrameIndexEntry{
				FrameNumber: frameNumber,
				ByteOffset:  byteOffset,
				FrameSize:   uint32(len(raw.RGBA)),
				FrameType:   kind,
				TimestampMs: frameNumber * 33,
				IsKeyframe:  isKey,
			})
			byteOffset += uint64(len(raw.RGBA))
			frameNumber++
		}
		last := frameNumber - 1

		manifestEntries[h] = model.VideoSegmentManifestEntry{
			ContentHash:      h,
			FirstFrame:       first,
			LastFrame:        last,
			UncompressedSize: int64(len(data)),
			ChunkCount:       len(frames),
		}
	}

	if len(rawFrames) == 0 {
		return b.swapInEmptySegment(writes, deletes)
	}

	result, err := b.adapter.Encode(ctx, rawFrames, b.encOpts)
	if err != nil {
		return fmt.Errorf("adapter encode: %w", err)
	}

	tmpMP4 := b.segmentPath + ".tmp"
	if err := atomicWrite(b.tmpDir, tmpMP4, result.MP4); err != nil {
		return fmt.Errorf("write temp segment: %w", err)
	}

	tmpIdx := b.indexPath + ".tmp"
	w, err := frameindex.Create(tmpIdx)
	if err != nil {
		return fmt.Errorf("create frame index: %w", err)
	}
	for _, e := range indexEntries {
		if err := w.Append(e); err != nil {
			_ = w.Close()
			return fmt.Errorf("append frame index: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close frame index: %w", err)
	}

	if err := os.Rename(tmpMP4, b.segmentPath); err != nil {
		return fmt.Errorf("swap segment: %w", err)
	}
	if err := os.Rename(tmpIdx, b.indexPath); err != nil {
		return fmt.Errorf("swap frame index: %w", err)
	}
	if err := b.man.replace(wantWidth, wantHeight, manifestEntries); err != nil {
		return fmt.Errorf("swap manifest: %w", err)
	}

	b.invalidateSegmentCache()
	b.emitConsolidationResult(writes, deletes)
	return nil
}

// swapInEmptySegment handles the all-deleted-down-to-nothing case: there
// is no MP4 to encode, so the manifest is simply cleared.
func (b *Backend) swapInEmptySegment(writes map[string]pendingWrite, deletes map[string]bool) error {
	_ = os.Remove(b.segmentPath)
	_ = os.Remove(b.indexPath)
	if err := b.man.replace(0, 0, map[string]model.VideoSegmentManifestEntry{}); err != nil {
		return err
	}
	b.invalidateSegmentCache()
	b.emitConsolidationResult(writes, deletes)
	return nil
}

func (b *Backend) emitConsolidationResult(writes map[string]pendingWrite, deletes map[string]bool) {
	upserted := make([]*model.MemoryItem, 0, len(writes))
	for _, pw := range writes {
		upserted = append(upserted, pw.item)
	}
	deletedIDs := make([]string, 0, len(deletes))
	for id := range deletes {
		deletedIDs = append(deletedIDs, id)
	}
	if len(upserted) == 0 && len(deletedIDs) == 0 {
		return
	}
	b.notify(storage.IndexUpdate{Upserted: upserted, Deleted: deletedIDs})
}

// encodeWithUniformGeometry encodes data at the fixed qrTierOptions
// tier. If (rare: post-compression payload small enough to avoid
// chunking) the resulting geometry doesn't match the segment's
// established width/height, the payload is padded with incompressible
// filler and re-encoded once to force it over the chunking threshold.
func encodeWithUniformGeometry(data []byte, wantWidth, wantHeight int) ([]qr.Frame, error) {
	frames, err := qr.Encode(data, qrTierOptions)
	if err != nil {
		return nil, err
	}
	if wantWidth == 0 || (frames[0].Width == wantWidth && frames[0].Height == wantHeight) {
		return frames, nil
	}

	padded := append(append([]byte(nil), data...), fillerBytes(256)...)
	frames, err = qr.Encode(padded, qrTierOptions)
	if err != nil {
		return nil, err
	}
	return frames, nil
}

// fillerBytes returns deterministic, high-entropy bytes that deflate
// cannot meaningfully shrink, used to push a payload over the chunking
// threshold without affecting the data it is appended to (the original
// length is always recoverable from the manifest's UncompressedSize).
func fillerBytes(n int) []byte {
	buf := make([]byte, n)
	var state uint32 = 0x9e3779b9
	for i := range buf {
		state = state*1103515245 + 12345
		buf[i] = byte(state >> 16)
	}
	return buf
}

// atomicWrite writes data to a temp file under tmpDir then renames it
// to finalPath.
func atomicWrite(tmpDir, finalPath string, data []byte) error {
	tmp, err := os.CreateTemp(tmpDir, "segment-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
