package memory

import (
	"context"
	"time"

	memerrors "github.com/memvault/memvault/internal/errors"
	"github.com/memvault/memvault/internal/model"
	"github.com/memvault/memvault/internal/symbols"
)

// UpsertInput carries the caller-supplied fields of a new or updated
// item; ID/Version/CreatedAt/UpdatedAt are assigned by Upsert.
type UpsertInput struct {
	ID        string // empty for a new item
	Type      model.ItemType
	Title     string
	Text      string
	Code      string
	Language  string
	Facets    model.Facets
	Context   map[string]string
	Quality   model.Quality
	Security  model.Security
	Embedding []float32
}

// Upsert creates a new item (when in.ID is empty) or updates an
// existing one, bumping Version and UpdatedAt. Symbol extraction runs
// when the caller left Facets.Symbols empty and Code/Language are set.
// Rejected with Busy outside the Ready state.
func (m *Manager) Upsert(ctx context.Context, in UpsertInput) (*model.MemoryItem, error) {
	if !m.state.requireReady() {
		return nil, memerrors.Busy("memory.upsert", string(m.scope))
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	now := time.Now().UTC()
	item := &model.MemoryItem{
		ID:        in.ID,
		Type:      in.Type,
		Scope:     m.scope,
		Title:     in.Title,
		Text:      in.Text,
		Code:      in.Code,
		Language:  in.Language,
		Facets:    in.Facets,
		Context:   in.Context,
		Quality:   in.Quality,
		Security:  in.Security,
		Embedding: in.Embedding,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}

	if item.ID == "" {
		item.ID = m.idGen.New()
	} else if existing, err := m.backend.ReadItem(ctx, item.ID); err == nil && existing != nil {
		item.CreatedAt = existing.CreatedAt
		item.Version = existing.Version + 1
	}

	if !item.HasBody() {
		return nil, memerrors.ConfigErr("memory.upsert", string(m.scope),
			"item needs at least one of title, text, or code")
	}

	symbols.Enrich(ctx, m.symExtract, item, m.log)

	if err := m.backend.WriteItem(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// Get resolves an item by id, returning nil if it does not exist.
func (m *Manager) Get(ctx context.Context, id string) (*model.MemoryItem, error) {
	if cached, ok := m.itemCache.Get(id); ok {
		return cached, nil
	}
	item, err := m.backend.ReadItem(ctx, id)
	if err != nil || item == nil {
		return item, err
	}
	m.itemCache.Add(id, item)
	return item, nil
}

// Delete removes an item, reporting whether it existed. Rejected with
// Busy outside the Ready state.
func (m *Manager) Delete(ctx context.Context, id string) (bool, error) {
	if !m.state.requireReady() {
		return false, memerrors.Busy("memory.delete", string(m.scope))
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return m.backend.DeleteItem(ctx, id)
}

// List returns up to limit catalog summaries for the scope, newest
// first. A limit of 0 means unbounded.
func (m *Manager) List(limit int) ([]model.Summary, error) {
	j, ok := m.journaledBackend()
	if !ok {
		return nil, memerrors.Unsupported("memory.list", string(m.scope), "backend does not expose a catalog")
	}
	return j.Catalog().List(m.scope, limit), nil
}

// Link records a directed, typed edge from "from" to "to", appended to
// from's Links and persisted via a version-bumping upsert of "from".
func (m *Manager) Link(ctx context.Context, from, to string, rel model.LinkRelation) error {
	if !m.state.requireReady() {
		return memerrors.Busy("memory.link", string(m.scope))
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	item, err := m.backend.ReadItem(ctx, from)
	if err != nil {
		return err
	}
	if item == nil {
		return memerrors.NotFound("memory.link", string(m.scope), from)
	}
	item.Links = append(item.Links, model.Link{To: to, Rel: rel})
	item.Version++
	item.UpdatedAt = time.Now().UTC()
	return m.backend.WriteItem(ctx, item)
}

// Pin sets or clears an item's pinned flag, bumping its version.
func (m *Manager) Pin(ctx context.Context, id string, pinned bool) error {
	if !m.state.requireReady() {
		return memerrors.Busy("memory.pin", string(m.scope))
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	item, err := m.backend.ReadItem(ctx, id)
	if err != nil {
		return err
	}
	if item == nil {
		return memerrors.NotFound("memory.pin", string(m.scope), id)
	}
	item.Quality.Pinned = pinned
	item.Version++
	item.UpdatedAt = time.Now().UTC()
	return m.backend.WriteItem(ctx, item)
}

// Tag adds and removes tags from an item's facets in a single upsert.
func (m *Manager) Tag(ctx context.Context, id string, add, remove []string) error {
	if !m.state.requireReady() {
		return memerrors.Busy("memory.tag", string(m.scope))
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	item, err := m.backend.ReadItem(ctx, id)
	if err != nil {
		return err
	}
	if item == nil {
		return memerrors.NotFound("memory.tag", string(m.scope), id)
	}

	removeSet := make(map[string]bool, len(remove))
	for _, t := range remove {
		removeSet[t] = true
	}
	kept := item.Facets.Tags[:0:0]
	for _, t := range item.Facets.Tags {
		if !removeSet[t] {
			kept = append(kept, t)
		}
	}
	for _, t := range add {
		if !containsTag(kept, t) {
			kept = append(kept, t)
		}
	}
	item.Facets.Tags = kept
	item.Version++
	item.UpdatedAt = time.Now().UTC()
	return m.backend.WriteItem(ctx, item)
}

func containsTag(tags []string, t string) bool {
	for _, x := range tags {
		if x == t {
			return true
		}
	}
	return false
}

// Feedback records a reuse/helpfulness signal: helpful bumps the
// item's reuse count, and every call bumps its version and updated_at.
// The reuse count is stored with the item; neither the BM25 scorer nor
// the hybrid ranker reads it.
func (m *Manager) Feedback(ctx context.Context, id string, helpful bool) error {
	if !m.state.requireReady() {
		return memerrors.Busy("memory.feedback", string(m.scope))
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	item, err := m.backend.ReadItem(ctx, id)
	if err != nil {
		return err
	}
	if item == nil {
		return memerrors.NotFound("memory.feedback", string(m.scope), id)
	}
	if helpful {
		item.Quality.ReuseCount++
	}
	item.Version++
	item.UpdatedAt = time.Now().UTC()
	return m.backend.WriteItem(ctx, item)
}

// Use records that an item was surfaced and consumed by a caller: it
// bumps the item's version and updated_at and writes it back without
// otherwise changing its content. Neither field is part of the content
// hash, so where the backend already holds that content the write only
// refreshes the catalog summary (the file backend copies just
// updated_at into it, which List order and date filters see); the
// stored body and the search indexes, including BM25's recency boost,
// are not rewritten.
func (m *Manager) Use(ctx context.Context, id string) error {
	if !m.state.requireReady() {
		return memerrors.Busy("memory.use", string(m.scope))
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	item, err := m.backend.ReadItem(ctx, id)
	if err != nil {
		return err
	}
	if item == nil {
		return memerrors.NotFound("memory.use", string(m.scope), id)
	}
	item.Version++
	item.UpdatedAt = time.Now().UTC()
	return m.backend.WriteItem(ctx, item)
}
