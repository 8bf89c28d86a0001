// Package storage defines the backend contract the Memory Manager
// depends on, and the file-backed reference implementation. The
// video-coded implementation lives in the storage/video subpackage.
package storage

import (
	"context"

	"github.com/memvault/memvault/internal/model"
)

// IndexUpdate is the payload delivered to a registered callback after
// every successful persistence event: the items that now exist (new or
// changed) and the ids that were removed.
type IndexUpdate struct {
	Upserted []*model.MemoryItem
	Deleted  []string
}

// UpdateCallback is invoked, in journal-append order, once per
// successful write_item/delete_item.
type UpdateCallback func(IndexUpdate)

// Stats summarizes a backend's on-disk footprint.
type Stats struct {
	ItemCount int
	Bytes     int64
}

// Backend is the storage contract both the file and video backends
// implement identically, the only surface the Memory Manager depends
// on.
type Backend interface {
	WriteItem(ctx context.Context, item *model.MemoryItem) error
	ReadItem(ctx context.Context, id string) (*model.MemoryItem, error)
	DeleteItem(ctx context.Context, id string) (bool, error)
	ReadItems(ctx context.Context, ids []string) (map[string]*model.MemoryItem, error)
	ListItems(ctx context.Context) ([]string, error)
	HasContent(ctx context.Context, hashes []string) (map[string]bool, error)
	GetByHash(ctx context.Context, hashes []string) (map[string]model.PayloadRef, error)
	RegisterIndexUpdate(cb UpdateCallback)
	Stats(ctx context.Context) (Stats, error)
	Cleanup(ctx context.Context) (int64, error)
	Close() error
}
