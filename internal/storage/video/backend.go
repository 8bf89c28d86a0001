// Package video implements the video-coded storage backend: items are
// serialized, QR-encoded, and packed as frames of a single consolidated
// MP4 per scope, with a binary frame index (internal/storage/frameindex)
// locating each content hash's frame range. Pending writes/deletes are
// buffered in memory and folded into the segment by a debounced
// consolidation pass (internal/watch), the same coalescing idiom the
// teacher's file watcher uses for filesystem events, repurposed here to
// coalesce storage mutations instead.
package video

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/memvault/memvault/internal/catalog"
	memerrors "github.com/memvault/memvault/internal/errors"
	"github.com/memvault/memvault/internal/journal"
	"github.com/memvault/memvault/internal/model"
	"github.com/memvault/memvault/internal/storage"
	"github.com/memvault/memvault/internal/storage/videocodec"
	"github.com/memvault/memvault/internal/watch"
)

// maxConsecutiveFailures quarantines a pending item after this many
// failed consolidation attempts, per the backend's failure semantics.
const maxConsecutiveFailures = 3

// pendingWrite is a staged, not-yet-consolidated item.
type pendingWrite struct {
	item  *model.MemoryItem
	bytes []byte
	hash  string
}

// Options configures Open.
type Options struct {
	Root             string
	Scope            string
	Actor            string
	FsyncBatch       int
	CacheBudgetBytes int64
	DebounceWindow   time.Duration
	Adapter          videocodec.Adapter
	EncodeOptions    videocodec.EncodeOptions
}

// Backend is the video-coded storage.Backend implementation.
type Backend struct {
	root         string
	scope        string
	actor        string
	dir          string
	tmpDir       string
	segmentPath  string
	indexPath    string
	manifestPath string

	j       *journal.Journal
	cat     *catalog.Catalog
	man     *manifest
	cache   *payloadCache
	adapter videocodec.Adapter
	encOpts videocodec.EncodeOptions

	debouncer *watch.Debouncer

	mu             sync.Mutex
	callbacks      []storage.UpdateCallback
	pendingWrites  map[string]pendingWrite
	pendingDeletes map[string]bool
	consolidating  bool
	dirty          bool
	failCounts     map[string]int

	segMu         sync.Mutex
	segFrames     []videocodec.RawFrame
	segGeneration uint64
	segLoaded     bool
}

// Open opens (creating if necessary) a video backend rooted at
// opts.Root for opts.Scope.
func Open(opts Options) (*Backend, error) {
	dir := filepath.Join(opts.Root, "video")
	tmpDir := filepath.Join(dir, "tmp")
	for _, d := range []string{dir, tmpDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, memerrors.IOErr("video.open", opts.Scope, err)
		}
	}

	fsyncBatch := opts.FsyncBatch
	if fsyncBatch < 1 {
		fsyncBatch = 1
	}
	j, err := journal.Open(filepath.Join(opts.Root, "journal.ndjson"), opts.Scope, fsyncBatch)
	if err != nil {
		return nil, err
	}
	cat, err := catalog.Open(filepath.Join(opts.Root, "catalog.json"), opts.Scope)
	if err != nil {
		return nil, err
	}

	segmentPath := filepath.Join(dir, "consolidated.mp4")
	indexPath := filepath.Join(dir, "consolidated.mvi")
	manifestPath := filepath.Join(dir, "consolidated.manifest.json")
	man, err := openManifest(manifestPath, opts.Scope)
	if err != nil {
		return nil, err
	}

	budget := opts.CacheBudgetBytes
	if budget <= 0 {
		budget = 1 << 30 // 1 GiB default, per spec.md's payload_cache default
	}

	adapter := opts.Adapter
	if adapter == nil {
		adapter = videocodec.Select("ffmpeg")
	}
	encOpts := opts.EncodeOptions
	if encOpts.Codec == "" {
		encOpts = videocodec.DefaultOptions()
	}

	window := opts.DebounceWindow
	if window <= 0 {
		window = 500 * time.Millisecond
	}

	b := &Backend{
		root:           opts.Root,
		scope:          opts.Scope,
		actor:          opts.Actor,
		dir:            dir,
		tmpDir:         tmpDir,
		segmentPath:    segmentPath,
		indexPath:      indexPath,
		manifestPath:   manifestPath,
		j:              j,
		cat:            cat,
		man:            man,
		cache:          newPayloadCache(budget),
		adapter:        adapter,
		encOpts:        encOpts,
		pendingWrites:  make(map[string]pendingWrite),
		pendingDeletes: make(map[string]bool),
		failCounts:     make(map[string]int),
	}
	b.debouncer = watch.NewDebouncer(window, b.runConsolidation)
	return b, nil
}

// Journal exposes the underlying journal for verify/rebuild/compact
// orchestration by the Memory Manager.
func (b *Backend) Journal() *journal.Journal { return b.j }

// Catalog exposes the underlying catalog for listing.
func (b *Backend) Catalog() *catalog.Catalog { return b.cat }

// WriteItem implements storage.Backend.WriteItem. Deduplicates on
// content hash against the current manifest before staging a pending
// write and scheduling consolidation.
func (b *Backend) WriteItem(ctx context.Context, item *model.MemoryItem) error {
	hash, err := model.ContentHash(item)
	if err != nil {
		return memerrors.IOErr("write_item", b.scope, err)
	}

	data, err := json.Marshal(item)
	if err != nil {
		return memerrors.IOErr("write_item", b.scope, err)
	}

	if entry, ok := b.man.Get(hash); ok {
		b.cat.Put(model.SummaryOf(item, hash, entry.UncompressedSize))
		return b.cat.Save()
	}

	if _, err := b.j.Append(model.JournalEntry{
		Op:          model.OpUpsert,
		ID:          item.ID,
		ContentHash: hash,
		Timestamp:   time.Now().UTC(),
		Actor:       b.actor,
	}); err != nil {
		return err
	}

	b.mu.Lock()
	delete(b.pendingDeletes, item.ID)
	b.pendingWrites[item.ID] = pendingWrite{item: item, bytes: data, hash: hash}
	b.mu.Unlock()

	b.cat.Put(model.SummaryOf(item, hash, int64(len(data))))
	if err := b.cat.Save(); err != nil {
		return err
	}

	b.debouncer.Trigger()
	return nil
}

// DeleteItem implements storage.Backend.DeleteItem.
func (b *Backend) DeleteItem(ctx context.Context, id string) (bool, error) {
	summary, ok := b.cat.Get(id)
	if !ok {
		return false, nil
	}

	if _, err := b.j.Append(model.JournalEntry{
		Op:        model.OpDelete,
		ID:        id,
		Timestamp: time.Now().UTC(),
		Actor:     b.actor,
	}); err != nil {
		return false, err
	}

	b.cat.Remove(id)

	b.mu.Lock()
	pw, hadPendingWrite := b.pendingWrites[id]
	delete(b.pendingWrites, id)
	b.pendingDeletes[id] = true
	b.mu.Unlock()

	if err := b.cat.Save(); err != nil {
		b.cat.Put(summary)
		b.mu.Lock()
		delete(b.pendingDeletes, id)
		if hadPendingWrite {
			b.pendingWrites[id] = pw
		}
		b.mu.Unlock()
		return false, err
	}

	b.debouncer.Trigger()
	return true, nil
}

// ReadItem implements storage.Backend.ReadItem.
func (b *Backend) ReadItem(ctx context.Context, id string) (*model.MemoryItem, error) {
	b.mu.Lock()
	if pw, ok := b.pendingWrites[id]; ok {
		b.mu.Unlock()
		return pw.item, nil
	}
	if b.pendingDeletes[id] {
		b.mu.Unlock()
		return nil, nil
	}
	b.mu.Unlock()

	summary, ok := b.cat.Get(id)
	if !ok {
		return nil, nil
	}

	item, err := b.readByHash(ctx, summary.ContentHash)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, memerrors.New(memerrors.KindIntegrity, "read_item", b.scope,
			"catalog entry has no backing frame range, run rebuild", "run rebuild on scope="+b.scope)
	}
	return item, nil
}

func (b *Backend) readByHash(ctx context.Context, hash string) (*model.MemoryItem, error) {
	if cached, ok := b.cache.Get(hash); ok {
		var item model.MemoryItem
		if err := json.Unmarshal(cached, &item); err != nil {
			return nil, memerrors.Decode("read_item", b.scope, "json", false, err)
		}
		return &item, nil
	}

	entry, ok := b.man.Get(hash)
	if !ok {
		return nil, nil
	}

	data, err := b.materialize(ctx, entry)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}

	var item model.MemoryItem
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, memerrors.Decode("read_item", b.scope, "json", false, err)
	}
	b.cache.Add(hash, data)
	return &item, nil
}

// ReadItems implements storage.Backend.ReadItems.
func (b *Backend) ReadItems(ctx context.Context, ids []string) (map[string]*model.MemoryItem, error) {
	out := make(map[string]*model.MemoryItem, len(ids))
	for _, id := range ids {
		item, err := b.ReadItem(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = item
	}
	return out, nil
}

// ListItems implements storage.Backend.ListItems.
func (b *Backend) ListItems(ctx context.Context) ([]string, error) {
	all := b.cat.All()
	out := make([]string, 0, len(all))
	for _, s := range all {
		out = append(out, s.ID)
	}
	return out, nil
}

// HasContent implements storage.Backend.HasContent.
func (b *Backend) HasContent(ctx context.Context, hashes []string) (map[string]bool, error) {
	want := make(map[string]bool, len(hashes))
	for _, h := range hashes {
		_, ok := b.man.Get(h)
		if !ok {
			b.mu.Lock()
			for _, pw := range b.pendingWrites {
				if pw.hash == h {
					ok = true
					break
				}
			}
			b.mu.Unlock()
		}
		want[h] = ok
	}
	return want, nil
}

// GetByHash implements storage.Backend.GetByHash.
func (b *Backend) GetByHash(ctx context.Context, hashes []string) (map[string]model.PayloadRef, error) {
	out := make(map[string]model.PayloadRef)
	for _, h := range hashes {
		if entry, ok := b.man.Get(h); ok {
			out[h] = model.PayloadRef{ContentHash: h, Backend: model.BackendVideo, FrameStart: entry.FirstFrame, FrameEnd: entry.LastFrame}
			continue
		}
		b.mu.Lock()
		for _, pw := range b.pendingWrites {
			if pw.hash == h {
				out[h] = model.PayloadRef{ContentHash: h, Backend: model.BackendVideo}
				break
			}
		}
		b.mu.Unlock()
	}
	return out, nil
}

// RegisterIndexUpdate implements storage.Backend.RegisterIndexUpdate.
func (b *Backend) RegisterIndexUpdate(cb storage.UpdateCallback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.callbacks = append(b.callbacks, cb)
}

func (b *Backend) notify(u storage.IndexUpdate) {
	b.mu.Lock()
	cbs := append([]storage.UpdateCallback(nil), b.callbacks...)
	b.mu.Unlock()
	for _, cb := range cbs {
		cb(u)
	}
}

// Stats implements storage.Backend.Stats.
func (b *Backend) Stats(ctx context.Context) (storage.Stats, error) {
	all := b.cat.All()
	var total int64
	for _, s := range all {
		total += s.SizeBytes
	}
	return storage.Stats{ItemCount: len(all), Bytes: total}, nil
}

// Cleanup implements storage.Backend.Cleanup: removes stale temp files
// left behind by an interrupted consolidation.
func (b *Backend) Cleanup(ctx context.Context) (int64, error) {
	entries, err := os.ReadDir(b.tmpDir)
	if err != nil {
		return 0, memerrors.IOErr("cleanup", b.scope, err)
	}
	var reclaimed int64
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if time.Since(info.ModTime()) < time.Hour {
			continue
		}
		path := filepath.Join(b.tmpDir, e.Name())
		reclaimed += info.Size()
		_ = os.Remove(path)
	}
	return reclaimed, nil
}

// Close implements storage.Backend.Close. Any pending writes/deletes not
// yet consolidated remain queued on disk via the journal and are folded
// in by the next Open's first consolidation trigger.
func (b *Backend) Close() error {
	b.debouncer.Stop()
	return b.j.Close()
}

// Flush forces an immediate consolidation pass, bypassing the debounce
// window — the "immediate" scheduling policy spec.md allows as an
// alternative to debounced consolidation.
func (b *Backend) Flush() {
	b.debouncer.Flush()
}

var _ storage.Backend = (*Backend)(nil)
