package storage

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
	"github.com/memvault/memvault/internal/lockfile"
	"github.com/memvault/memvault/internal/model"
)

// FileBackend stores one JSON file per item under items/{id}, with
// durability delegated to the scope's journal and cross-process safety
// via advisory lock files. It is the reference backend implementation.
type FileBackend struct {
	root     string
	scope    string
	itemsDir string
	tmpDir   string
	locksDir string
	actor    string

	j   *journal.Journal
	cat *catalog.Catalog

	mu        sync.Mutex
	callbacks []UpdateCallback
}

// OpenFileBackend opens (creating if necessary) a file backend rooted
// at root for the given scope.
func OpenFileBackend(root, scope, actor string, fsyncBatch int) (*FileBackend, error) {
	itemsDir := filepath.Join(root, "items")
	tmpDir := filepath.Join(root, "tmp")
	locksDir := filepath.Join(root, "locks")
	for _, d := range []string{itemsDir, tmpDir, locksDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, memerrors.IOErr("file_backend.open", scope, err)
		}
	}

	j, err := journal.Open(filepath.Join(root, "journal.ndjson"), scope, fsyncBatch)
	if err != nil {
		return nil, err
	}

	cat, err := catalog.Open(filepath.Join(root, "catalog.json"), scope)
	if err != nil {
		return nil, err
	}

	return &FileBackend{
		root:     root,
		scope:    scope,
		itemsDir: itemsDir,
		tmpDir:   tmpDir,
		locksDir: locksDir,
		actor:    actor,
		j:        j,
		cat:      cat,
	}, nil
}

// Journal exposes the underlying journal for verify/rebuild/compact
// orchestration by the Memory Manager.
func (b *FileBackend) Journal() *journal.Journal { return b.j }

// Catalog exposes the underlying catalog for listing.
func (b *FileBackend) Catalog() *catalog.Catalog { return b.cat }

func (b *FileBackend) itemPath(id string) string {
	return filepath.Join(b.itemsDir, id+".json")
}

// WriteItem implements Backend.WriteItem. It is idempotent on unchanged
// content hash: a repeat write of identical content only refreshes the
// catalog's updated_at.
func (b *FileBackend) WriteItem(ctx context.Context, item *model.MemoryItem) error {
	hash, err := model.ContentHash(item)
	if err != nil {
		return memerrors.IOErr("write_item", b.scope, err)
	}

	if existing, ok := b.cat.Get(item.ID); ok && existing.ContentHash == hash {
		existing.UpdatedAt = item.UpdatedAt
		b.cat.Put(existing)
		return b.cat.Save()
	}

	lock := lockfile.New(b.locksDir, b.scope, "upsert")
	ok, err := lock.TryLock()
	if err != nil {
		return err
	}
	if !ok {
		return memerrors.Busy("write_item", b.scope)
	}
	defer lock.Unlock()

	data, err := json.Marshal(item)
	if err != nil {
		return memerrors.IOErr("write_item", b.scope, err)
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

	if err := atomicWrite(b.tmpDir, b.itemPath(item.ID), data); err != nil {
		return memerrors.IOErr("write_item", b.scope, err)
	}

	b.cat.Put(model.SummaryOf(item, hash, int64(len(data))))
	if err := b.cat.Save(); err != nil {
		return err
	}

	b.notify(IndexUpdate{Upserted: []*model.MemoryItem{item}})
	return nil
}

// ReadItem implements Backend.ReadItem.
func (b *FileBackend) ReadItem(ctx context.Context, id string) (*model.MemoryItem, error) {
	if _, ok := b.cat.Get(id); !ok {
		return nil, nil
	}
	data, err := os.ReadFile(b.itemPath(id))
	if os.IsNotExist(err) {
		// catalog says it exists but the file is missing: a recoverable
		// inconsistency the caller should repair via rebuild.
		return nil, memerrors.New(memerrors.KindIntegrity, "read_item", b.scope,
			"catalog entry has no backing file, run rebuild", "run rebuild on scope="+b.scope)
	}
	if err != nil {
		return nil, memerrors.IOErr("read_item", b.scope, err)
	}
	var item model.MemoryItem
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, memerrors.Decode("read_item", b.scope, "json", false, err)
	}
	return &item, nil
}

// DeleteItem implements Backend.DeleteItem.
func (b *FileBackend) DeleteItem(ctx context.Context, id string) (bool, error) {
	summary, ok := b.cat.Get(id)
	if !ok {
		return false, nil
	}

	lock := lockfile.New(b.locksDir, b.scope, "delete")
	locked, err := lock.TryLock()
	if err != nil {
		return false, err
	}
	if !locked {
		return false, memerrors.Busy("delete_item", b.scope)
	}
	defer lock.Unlock()

	b.cat.Remove(id)

	if _, err := b.j.Append(model.JournalEntry{
		Op:        model.OpDelete,
		ID:        id,
		Timestamp: time.Now().UTC(),
		Actor:     b.actor,
	}); err != nil {
		b.cat.Put(summary)
		return false, err
	}

	if err := os.Remove(b.itemPath(id)); err != nil && !os.IsNotExist(err) {
		b.cat.Put(summary)
		return false, memerrors.IOErr("delete_item", b.scope, err)
	}
	if err := b.cat.Save(); err != nil {
		b.cat.Put(summary)
		return false, err
	}

	b.notify(IndexUpdate{Deleted: []string{id}})
	return true, nil
}

// ReadItems implements Backend.ReadItems.
func (b *FileBackend) ReadItems(ctx context.Context, ids []string) (map[string]*model.MemoryItem, error) {
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

// ListItems implements Backend.ListItems.
func (b *FileBackend) ListItems(ctx context.Context) ([]string, error) {
	all := b.cat.All()
	out := make([]string, 0, len(all))
	for _, s := range all {
		out = append(out, s.ID)
	}
	return out, nil
}

// HasContent implements Backend.HasContent.
func (b *FileBackend) HasContent(ctx context.Context, hashes []string) (map[string]bool, error) {
	want := make(map[string]bool, len(hashes))
	for _, h := range hashes {
		want[h] = false
	}
	for _, s := range b.cat.All() {
		if _, ok := want[s.ContentHash]; ok {
			want[s.ContentHash] = true
		}
	}
	return want, nil
}

// GetByHash implements Backend.GetByHash.
func (b *FileBackend) GetByHash(ctx context.Context, hashes []string) (map[string]model.PayloadRef, error) {
	out := make(map[string]model.PayloadRef)
	want := make(map[string]bool, len(hashes))
	for _, h := range hashes {
		want[h] = true
	}
	for _, s := range b.cat.All() {
		if want[s.ContentHash] {
			out[s.ContentHash] = model.PayloadRef{ContentHash: s.ContentHash, Backend: model.BackendFile}
		}
	}
	return out, nil
}

// RegisterIndexUpdate implements Backend.RegisterIndexUpdate.
func (b *FileBackend) RegisterIndexUpdate(cb UpdateCallback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.callbacks = append(b.callbacks, cb)
}

func (b *FileBackend) notify(u IndexUpdate) {
	b.mu.Lock()
	cbs := append([]UpdateCallback(nil), b.callbacks...)
	b.mu.Unlock()
	for _, cb := range cbs {
		cb(u)
	}
}

// Stats implements Backend.Stats.
func (b *FileBackend) Stats(ctx context.Context) (Stats, error) {
	var total int64
	all := b.cat.All()
	for _, s := range all {
		total += s.SizeBytes
	}
	return Stats{ItemCount: len(all), Bytes: total}, nil
}

// Cleanup implements Backend.Cleanup: removes stale temp files left
// behind by interrupted atomic writes.
func (b *FileBackend) Cleanup(ctx context.Context) (int64, error) {
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

// Close implements Backend.Close.
func (b *FileBackend) Close() error {
	return b.j.Close()
}

// atomicWrite writes data to a temp file under tmpDir then renames it
// to finalPath, the file backend's atomic-write primitive.
func atomicWrite(tmpDir, finalPath string, data []byte) error {
	tmp, err := os.CreateTemp(tmpDir, "write-*.tmp")
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

var _ Backend = (*FileBackend)(nil)
