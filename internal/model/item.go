// Package model defines the addressable records memvault persists:
// MemoryItem and the derived types every storage backend and index
// operates on.
package model

import "time"

// ItemType classifies the kind of content a MemoryItem carries.
type ItemType string

const (
	TypeSnippet ItemType = "snippet"
	TypePattern ItemType = "pattern"
	TypeConfig  ItemType = "config"
	TypeInsight ItemType = "insight"
	TypeRunbook ItemType = "runbook"
	TypeFact    ItemType = "fact"
	TypeNote    ItemType = "note"
)

// ValidTypes lists every recognized ItemType.
var ValidTypes = []ItemType{TypeSnippet, TypePattern, TypeConfig, TypeInsight, TypeRunbook, TypeFact, TypeNote}

// Scope partitions items into independent filesystem roots and indexes.
type Scope string

const (
	ScopeGlobal    Scope = "global"
	ScopeLocal     Scope = "local"
	ScopeCommitted Scope = "committed"
)

// Sensitivity controls how widely an item may be shared.
type Sensitivity string

const (
	SensitivityPublic  Sensitivity = "public"
	SensitivityTeam    Sensitivity = "team"
	SensitivityPrivate Sensitivity = "private"
)

// LinkRelation names the relationship an item link expresses.
type LinkRelation string

const (
	RelRefines    LinkRelation = "refines"
	RelDuplicates LinkRelation = "duplicates"
	RelDepends    LinkRelation = "depends"
	RelFixes      LinkRelation = "fixes"
	RelRelates    LinkRelation = "relates"
)

// Facets are the structured, searchable tags attached to an item.
type Facets struct {
	Tags    []string `json:"tags"`
	Files   []string `json:"files"`
	Symbols []string `json:"symbols"`
}

// Quality carries reuse and confidence signals used by the ranker's boosts.
type Quality struct {
	Confidence float64 `json:"confidence"`
	ReuseCount uint64  `json:"reuse_count"`
	Pinned     bool    `json:"pinned"`
}

// Security carries the item's sharing sensitivity.
type Security struct {
	Sensitivity Sensitivity `json:"sensitivity"`
}

// Link is a directed, typed edge from one item to another. Links are
// data owned by the source item; cycles are permitted and are never
// followed transitively at read time.
type Link struct {
	To  string       `json:"to"`
	Rel LinkRelation `json:"rel"`
}

// MemoryItem is the addressable record the core persists and indexes.
type MemoryItem struct {
	ID        string            `json:"id"`
	Type      ItemType          `json:"type"`
	Scope     Scope             `json:"scope"`
	Title     string            `json:"title"`
	Text      string            `json:"text,omitempty"`
	Code      string            `json:"code,omitempty"`
	Language  string            `json:"language,omitempty"`
	Facets    Facets            `json:"facets"`
	Context   map[string]string `json:"context,omitempty"`
	Quality   Quality           `json:"quality"`
	Security  Security          `json:"security"`
	Links     []Link            `json:"links,omitempty"`
	Embedding []float32         `json:"embedding,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Version   uint64            `json:"version"`
}

// HasBody reports whether at least one of title/text/code is non-empty,
// the minimum content requirement for a valid item.
func (m *MemoryItem) HasBody() bool {
	return m.Title != "" || m.Text != "" || m.Code != ""
}

// Summary is the lightweight catalog entry kept for every live item.
type Summary struct {
	ID          string      `json:"id"`
	Type        ItemType    `json:"type"`
	Scope       Scope       `json:"scope"`
	Title       string      `json:"title"`
	UpdatedAt   time.Time   `json:"updated_at"`
	Pinned      bool        `json:"pinned"`
	Sensitivity Sensitivity `json:"sensitivity"`
	ContentHash string      `json:"content_hash"`
	SizeBytes   int64       `json:"size_bytes"`
}

// SummaryOf derives a catalog Summary from a full MemoryItem.
func SummaryOf(item *MemoryItem, contentHash string, sizeBytes int64) Summary {
	return Summary{
		ID:          item.ID,
		Type:        item.Type,
		Scope:       item.Scope,
		Title:       item.Title,
		UpdatedAt:   item.UpdatedAt,
		Pinned:      item.Quality.Pinned,
		Sensitivity: item.Security.Sensitivity,
		ContentHash: contentHash,
		SizeBytes:   sizeBytes,
	}
}

// JournalOp names the kind of mutation a journal record describes.
type JournalOp string

const (
	OpUpsert   JournalOp = "upsert"
	OpDelete   JournalOp = "delete"
	OpLink     JournalOp = "link"
	OpSnapshot JournalOp = "snapshot"
)

// JournalEntry is one record in a scope's append-only journal.
type JournalEntry struct {
	Op          JournalOp         `json:"op"`
	ID          string            `json:"id"`
	ContentHash string            `json:"content_hash,omitempty"`
	PrevHash    string            `json:"prev_hash"`
	Timestamp   time.Time         `json:"ts"`
	Actor       string            `json:"actor"`
	Meta        map[string]string `json:"meta,omitempty"`
}

// FrameKind distinguishes keyframes from delta/bidirectional frames in
// the frame index.
type FrameKind uint8

const (
	FrameI FrameKind = iota
	FrameP
	FrameB
)

// FrameIndexEntry is one fixed-size record of a .mvi frame index.
type FrameIndexEntry struct {
	FrameNumber uint32
	ByteOffset  uint64
	FrameSize   uint32
	FrameType   FrameKind
	TimestampMs uint32
	IsKeyframe  bool
}

// VideoSegmentManifestEntry maps one content hash to its frame range
// within a consolidated video segment.
type VideoSegmentManifestEntry struct {
	ContentHash      string `json:"content_hash"`
	FirstFrame       uint32 `json:"first_frame"`
	LastFrame        uint32 `json:"last_frame"`
	UncompressedSize int64  `json:"uncompressed_size"`
	ChunkCount       int    `json:"chunk_count"`
}

// Backend names a storage backend implementation.
type Backend string

const (
	BackendFile  Backend = "file"
	BackendVideo Backend = "video"
)

// PayloadRef is a weak handle to an item's stored bytes.
type PayloadRef struct {
	ContentHash string  `json:"content_hash"`
	Backend     Backend `json:"backend"`
	SegmentID   string  `json:"segment_id,omitempty"`
	FrameStart  uint32  `json:"frame_start,omitempty"`
	FrameEnd    uint32  `json:"frame_end,omitempty"`
}
