// Package catalog keeps the canonical id→summary listing for a scope:
// an in-memory map persisted atomically as a single JSON file, and
// rebuildable from journal replay. Readers never scan the backend's raw
// storage; they consult the catalog.
package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	memerrors "github.com/memvault/memvault/internal/errors"
	"github.com/memvault/memvault/internal/model"
)

// Catalog is the in-memory id→summary map for one scope.
type Catalog struct {
	mu      sync.RWMutex
	path    string
	scope   string
	entries map[string]model.Summary
}

// Open loads the catalog from path if present, otherwise starts empty.
func Open(path, scope string) (*Catalog, error) {
	c := &Catalog{path: path, scope: scope, entries: make(map[string]model.Summary)}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, memerrors.IOErr("catalog.open", scope, err)
	}
	var list []model.Summary
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, memerrors.IOErr("catalog.open", scope, err)
	}
	for _, s := range list {
		c.entries[s.ID] = s
	}
	return c, nil
}

// Put inserts or replaces a catalog entry.
func (c *Catalog) Put(s model.Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[s.ID] = s
}

// Remove deletes an entry, reporting whether it existed.
func (c *Catalog) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[id]; !ok {
		return false
	}
	delete(c.entries, id)
	return true
}

// Get returns the summary for id, if present.
func (c *Catalog) Get(id string) (model.Summary, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.entries[id]
	return s, ok
}

// Len reports the number of live entries.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// List returns up to limit summaries ordered by (updated_at desc, id
// desc), the pagination order the Memory Manager's list() exposes. A
// limit of 0 means unbounded.
func (c *Catalog) List(scope model.Scope, limit int) []model.Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]model.Summary, 0, len(c.entries))
	for _, s := range c.entries {
		if scope != "" && s.Scope != scope {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// All returns every live summary, unordered, for index rebuilds.
func (c *Catalog) All() []model.Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.Summary, 0, len(c.entries))
	for _, s := range c.entries {
		out = append(out, s)
	}
	return out
}

// Reset clears the catalog and repopulates it from entries, used when
// rebuilding from journal replay.
func (c *Catalog) Reset(entries []model.Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]model.Summary, len(entries))
	for _, s := range entries {
		c.entries[s.ID] = s
	}
}

// Save atomically persists the catalog as a single JSON array (temp file
// + rename), the teacher's session-save idiom applied to catalog
// durability.
func (c *Catalog) Save() error {
	c.mu.RLock()
	list := make([]model.Summary, 0, len(c.entries))
	for _, s := range c.entries {
		list = append(list, s)
	}
	c.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return memerrors.IOErr("catalog.save", c.scope, err)
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return memerrors.IOErr("catalog.save", c.scope, err)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return memerrors.IOErr("catalog.save", c.scope, err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		_ = os.Remove(tmp)
		return memerrors.IOErr("catalog.save", c.scope, err)
	}
	return nil
}
