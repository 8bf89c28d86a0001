// Package memory implements the Memory Manager: the component that
// composes a scope's storage backend with its BM25 and vector indexes,
// owns the scope's lifecycle state machine, and exposes the public
// upsert/get/delete/list/query/link/pin/tag/feedback/use/rebuild/verify/
// snapshot/compact operations spec.md §4.12 names. Grounded on the
// teacher's pkg/indexer/hybrid.go for the "compose storage + BM25 +
// vector behind one facade" shape: a single writer lock per scope
// serializes mutations, and the backend's index-update callback folds
// each change into both indexes in journal-append order.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/memvault/memvault/internal/bm25"
	"github.com/memvault/memvault/internal/cache"
	"github.com/memvault/memvault/internal/catalog"
	"github.com/memvault/memvault/internal/config"
	memerrors "github.com/memvault/memvault/internal/errors"
	"github.com/memvault/memvault/internal/ids"
	"github.com/memvault/memvault/internal/journal"
	"github.com/memvault/memvault/internal/model"
	"github.com/memvault/memvault/internal/ranker"
	"github.com/memvault/memvault/internal/storage"
	"github.com/memvault/memvault/internal/storage/video"
	"github.com/memvault/memvault/internal/storage/videocodec"
	"github.com/memvault/memvault/internal/symbols"
	"github.com/memvault/memvault/internal/telemetry"
	"github.com/memvault/memvault/internal/vector"
)

// journaled is implemented by both storage.Backend implementations to
// expose the scope's journal and catalog for maintenance operations.
// storage.Backend itself stays minimal; this is an internal capability
// interface the Manager type-asserts for.
type journaled interface {
	Journal() *journal.Journal
	Catalog() *catalog.Catalog
}

// Manager is the per-scope facade spec.md's Memory Manager describes.
type Manager struct {
	scope   model.Scope
	root    string
	backend storage.Backend
	state   *stateMachine

	bm25Index *bm25.Index
	vecIndex  *vector.Index
	rank      *ranker.Ranker
	vecPath   string

	idGen      *ids.Generator
	symExtract *symbols.Extractor

	summaryCache *cache.Cache[string, model.Summary]
	itemCache    *cache.Cache[string, *model.MemoryItem]

	metrics *telemetry.QueryMetrics
	store   *telemetry.SQLiteMetricsStore

	log *slog.Logger
	cfg *config.Config

	writeMu sync.Mutex // serializes writers per scope, per spec.md §5
	indexMu sync.Mutex // protects ordered application of index-update callbacks
}

// Options configures Open.
type Options struct {
	Root   string
	Scope  model.Scope
	Actor  string
	Config *config.Config
	Logger *slog.Logger

	// VectorDimensions is the embedding width for this scope's ANN
	// index. Required only if callers will supply embeddings.
	VectorDimensions int

	// Adapter lets tests inject a deterministic video codec; nil
	// selects the real adapter discovery path.
	VideoAdapter videocodec.Adapter
}

// Open opens a scope's storage backend (file or video, per
// cfg.Storage.Backend), rebuilds its BM25/vector indexes from the
// catalog, wires the hybrid ranker, and transitions the scope to Ready.
func Open(ctx context.Context, opts Options) (*Manager, error) {
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	m := &Manager{
		scope:      opts.Scope,
		root:       opts.Root,
		state:      newStateMachine(),
		idGen:      &ids.Generator{},
		symExtract: symbols.NewExtractor(),
		log:        log,
		cfg:        opts.Config,
	}
	m.state.set(StateOpening)

	backend, err := openBackend(opts)
	if err != nil {
		return nil, err
	}
	m.backend = backend

	defaults := bm25.DefaultConfig()
	m.bm25Index = bm25.New(bm25.Config{
		K1:              opts.Config.Search.BM25.K1,
		B:               opts.Config.Search.BM25.B,
		BoostTitle:      opts.Config.Search.Boosts.Title,
		BoostPinned:     opts.Config.Search.Boosts.Pinned,
		BoostExactTitle: opts.Config.Search.Boosts.ExactMatch,
		BoostTag:        defaults.BoostTag,
		RecencyHalfLife: defaults.RecencyHalfLife,
		RecencyCap:      opts.Config.Search.Boosts.Recent,
	})

	if opts.Config.Search.Vector.Enabled && opts.VectorDimensions > 0 {
		m.vecPath = filepath.Join(opts.Root, "vector.idx")
		vecIdx, err := vector.Load(m.vecPath, vector.Config{Dimensions: opts.VectorDimensions})
		if err != nil {
			return nil, err
		}
		m.vecIndex = vecIdx
	}

	m.rank = ranker.New(m.bm25Index, m.vecIndex, ranker.Config{
		WeightFloor:   opts.Config.Search.Vector.WeightFloor,
		WeightCeiling: opts.Config.Search.Vector.WeightCeil,
	})

	m.summaryCache = cache.New[string, model.Summary](cache.DefaultSize)
	m.itemCache = cache.New[string, *model.MemoryItem](cache.DefaultSize)

	var metricsStore telemetry.QueryMetricsStore
	if store, err := telemetry.Open(opts.Root); err != nil {
		log.Warn("telemetry store unavailable, metrics will be in-memory only", "error", err)
	} else {
		m.store = store
		metricsStore = store
	}
	m.metrics = telemetry.NewQueryMetrics(metricsStore)

	m.state.set(StateReplaying)
	if err := m.rebuildIndexesFromCatalog(ctx); err != nil {
		return nil, err
	}

	m.backend.RegisterIndexUpdate(m.applyIndexUpdate)
	m.state.set(StateReady)
	return m, nil
}

func openBackend(opts Options) (storage.Backend, error) {
	actor := opts.Actor
	if actor == "" {
		actor = "memvault"
	}
	switch opts.Config.Storage.Backend {
	case "", "file":
		return storage.OpenFileBackend(opts.Root, string(opts.Scope), actor, opts.Config.Journal.FsyncBatch)
	case "video":
		return video.Open(video.Options{
			Root:             opts.Root,
			Scope:            string(opts.Scope),
			Actor:            actor,
			FsyncBatch:       opts.Config.Journal.FsyncBatch,
			CacheBudgetBytes: int64(opts.Config.Storage.Cache.PayloadMB) << 20,
			Adapter:          opts.VideoAdapter,
		})
	default:
		return nil, memerrors.ConfigErr("memory.open", string(opts.Scope), fmt.Sprintf("unknown storage backend %q", opts.Config.Storage.Backend))
	}
}

// rebuildIndexesFromCatalog reindexes every live item from the catalog,
// used both at Open and by the rebuild() maintenance operation.
func (m *Manager) rebuildIndexesFromCatalog(ctx context.Context) error {
	itemIDs, err := m.backend.ListItems(ctx)
	if err != nil {
		return err
	}
	items, err := m.backend.ReadItems(ctx, itemIDs)
	if err != nil {
		return err
	}

	live := make([]*model.MemoryItem, 0, len(items))
	for _, item := range items {
		if item != nil {
			live = append(live, item)
		}
	}

	m.bm25Index.Rebuild(live)

	if m.vecIndex != nil {
		vecIDs := make([]string, 0, len(live))
		vecs := make([][]float32, 0, len(live))
		for _, item := range live {
			if len(item.Embedding) > 0 {
				vecIDs = append(vecIDs, item.ID)
				vecs = append(vecs, item.Embedding)
			}
		}
		if len(vecIDs) > 0 {
			if err := m.vecIndex.Add(vecIDs, vecs); err != nil {
				m.log.Warn("vector reindex skipped items with bad embeddings", "error", err)
			}
		}
	}
	return nil
}

// applyIndexUpdate is the backend's UpdateCallback: it folds upserted
// items into BM25/vector and removes deleted ids, applied in
// journal-append order under indexMu per spec.md §5's ordering
// guarantee.
func (m *Manager) applyIndexUpdate(u storage.IndexUpdate) {
	m.indexMu.Lock()
	defer m.indexMu.Unlock()

	for _, item := range u.Upserted {
		m.bm25Index.IndexItem(item)
		if m.vecIndex != nil && len(item.Embedding) > 0 {
			_ = m.vecIndex.Add([]string{item.ID}, [][]float32{item.Embedding})
		}
		m.itemCache.Remove(item.ID)
		m.summaryCache.Remove(item.ID)
	}
	for _, id := range u.Deleted {
		m.bm25Index.RemoveItem(id)
		if m.vecIndex != nil {
			m.vecIndex.Remove(id)
		}
		m.itemCache.Remove(id)
		m.summaryCache.Remove(id)
	}

	m.maybeCompactVector()
}

// maybeCompactVector rebuilds the vector graph once lazily-deleted nodes
// cross the configured orphan ratio, mirroring the teacher's
// CompactionManager orphan-threshold auto-trigger (see
// internal/daemon/compaction.go) but driven inline off every index
// update instead of a background cooldown timer.
func (m *Manager) maybeCompactVector() {
	if m.vecIndex == nil {
		return
	}
	threshold := m.cfg.Search.Vector.OrphanThreshold
	if threshold <= 0 {
		threshold = vector.CompactTombstoneRatio
	}
	if m.vecIndex.Stats().TombstoneRatio() <= threshold {
		return
	}
	if err := m.vecIndex.Compact(); err != nil {
		m.log.Warn("vector index compaction failed", "error", err)
	}
}

// State reports the scope's current lifecycle state.
func (m *Manager) State() State { return m.state.get() }

// Close releases the backend, persists the vector index sidecar, and
// flushes telemetry.
func (m *Manager) Close() error {
	m.state.set(StateClosed)
	if m.symExtract != nil {
		m.symExtract.Close()
	}
	if m.vecIndex != nil && m.vecPath != "" {
		if err := m.vecIndex.Save(m.vecPath); err != nil {
			m.log.Warn("vector index save failed on close", "error", err)
		}
	}
	if m.metrics != nil {
		_ = m.metrics.Close()
	}
	if m.store != nil {
		_ = m.store.Close()
	}
	return m.backend.Close()
}

func (m *Manager) journaledBackend() (journaled, bool) {
	j, ok := m.backend.(journaled)
	return j, ok
}
