// Package vector implements the graph-based approximate nearest
// neighbor index over unit-L2-normalized embeddings, grounded on the
// teacher's HNSWStore (internal/store/hnsw.go): the same coder/hnsw
// graph, the same string-id/uint64-key lazy-deletion mapping, and the
// same gob-encoded sidecar metadata for persistence. Tombstone-ratio
// compaction is new: the teacher never rebuilds its graph, so that
// path is grounded on the general shape of its Stats()/Save()/Load()
// instead of a direct original.
package vector

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	memerrors "github.com/memvault/memvault/internal/errors"
)

// CosineThreshold is spec.md's hit floor: results below this cosine
// similarity are dropped.
const CosineThreshold = 0.1

// CompactTombstoneRatio triggers Compact once lazy-deleted nodes
// exceed this fraction of the graph.
const CompactTombstoneRatio = 0.2

// Config configures a new Index.
type Config struct {
	Dimensions int
	M          int
	EfSearch   int
}

// Result is one scored hit from Search.
type Result struct {
	ID     string
	Cosine float32
}

// Stats reports graph occupancy for compaction decisions.
type Stats struct {
	ValidIDs   int
	GraphNodes int
	Orphans    int
}

// TombstoneRatio returns Orphans/GraphNodes, or 0 for an empty graph.
func (s Stats) TombstoneRatio() float64 {
	if s.GraphNodes == 0 {
		return 0
	}
	return float64(s.Orphans) / float64(s.GraphNodes)
}

type metadata struct {
	IDMap   map[string]uint64
	Vectors map[string][]float32
	NextKey uint64
	Config  Config
}

// Index is a graph-based ANN index over cosine-normalized vectors.
type Index struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[uint64]
	cfg     Config
	idMap   map[string]uint64
	keyMap  map[uint64]string
	vectors map[string][]float32 // kept so Compact can rebuild without external help
	nextKey uint64
	closed  bool
}

// New creates an empty index for cfg.Dimensions-length vectors.
func New(cfg Config) *Index {
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &Index{
		graph:   graph,
		cfg:     cfg,
		idMap:   make(map[string]uint64),
		keyMap:  make(map[uint64]string),
		vectors: make(map[string][]float32),
	}
}

// Add bulk-inserts ids/vectors. Validates dimensional consistency
// across the whole batch first and rejects the entire batch on
// mismatch, per spec.md. Re-adding an existing id updates it via lazy
// deletion of the prior key.
func (idx *Index) Add(ids []string, vecs [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vecs) {
		return memerrors.ConfigErr("vector.add", "", fmt.Sprintf("ids/vectors length mismatch: %d vs %d", len(ids), len(vecs)))
	}
	for _, v := range vecs {
		if len(v) != idx.cfg.Dimensions {
			return memerrors.ConfigErr("vector.add", "", fmt.Sprintf("dimension mismatch: want %d, got %d", idx.cfg.Dimensions, len(v)))
		}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return memerrors.Unsupported("vector.add", "", "index is closed")
	}

	for i, id := range ids {
		if existing, ok := idx.idMap[id]; ok {
			delete(idx.keyMap, existing)
			delete(idx.idMap, id)
		}

		key := idx.nextKey
		idx.nextKey++

		vec := make([]float32, len(vecs[i]))
		copy(vec, vecs[i])
		normalize(vec)

		idx.graph.Add(hnsw.MakeNode(key, vec))
		idx.idMap[id] = key
		idx.keyMap[key] = id
		idx.vectors[id] = vec
	}
	return nil
}

// Remove tombstones id via lazy deletion, matching the teacher's
// rationale: deleting the last node in coder/hnsw's graph is unsafe,
// so removed ids are simply dropped from the id/key mapping instead.
func (idx *Index) Remove(id string) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	key, ok := idx.idMap[id]
	if !ok {
		return false
	}
	delete(idx.keyMap, key)
	delete(idx.idMap, id)
	delete(idx.vectors, id)
	return true
}

// Search returns up to k nearest neighbors to query by cosine
// similarity, dropping hits below CosineThreshold.
func (idx *Index) Search(query []float32, k int) ([]Result, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return nil, memerrors.Unsupported("vector.search", "", "index is closed")
	}
	if len(query) != idx.cfg.Dimensions {
		return nil, memerrors.ConfigErr("vector.search", "", fmt.Sprintf("dimension mismatch: want %d, got %d", idx.cfg.Dimensions, len(query)))
	}
	if idx.graph.Len() == 0 {
		return nil, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	normalize(q)

	nodes := idx.graph.Search(q, k)
	results := make([]Result, 0, len(nodes))
	for _, node := range nodes {
		id, ok := idx.keyMap[node.Key]
		if !ok {
			continue // lazily deleted
		}
		distance := idx.graph.Distance(q, node.Value)
		cosine := 1.0 - distance
		if cosine < CosineThreshold {
			continue
		}
		results = append(results, Result{ID: id, Cosine: cosine})
	}
	return results, nil
}

// Contains reports whether id is live (not tombstoned).
func (idx *Index) Contains(id string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.idMap[id]
	return ok
}

// Count returns the number of live (non-tombstoned) vectors.
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.idMap)
}

// Stats reports graph occupancy, used to decide when Compact is due.
func (idx *Index) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return Stats{
		ValidIDs:   len(idx.idMap),
		GraphNodes: idx.graph.Len(),
		Orphans:    idx.graph.Len() - len(idx.idMap),
	}
}

// Compact rebuilds the graph from only the currently live vectors,
// discarding lazily-deleted nodes. Callers drive this once
// Stats().TombstoneRatio() exceeds CompactTombstoneRatio.
func (idx *Index) Compact() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return memerrors.Unsupported("vector.compact", "", "index is closed")
	}

	fresh := hnsw.NewGraph[uint64]()
	fresh.Distance = hnsw.CosineDistance
	fresh.M = idx.cfg.M
	fresh.EfSearch = idx.cfg.EfSearch
	fresh.Ml = 0.25

	newIDMap := make(map[string]uint64, len(idx.idMap))
	newKeyMap := make(map[uint64]string, len(idx.idMap))
	var key uint64
	for id := range idx.idMap {
		vec := idx.vectors[id]
		fresh.Add(hnsw.MakeNode(key, vec))
		newIDMap[id] = key
		newKeyMap[key] = id
		key++
	}

	idx.graph = fresh
	idx.idMap = newIDMap
	idx.keyMap = newKeyMap
	idx.nextKey = key
	return nil
}

// Close releases the index's resources.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.closed = true
	idx.graph = nil
	return nil
}

// Save persists the graph (native export) and the id-mapping/vector
// sidecar (gob) to path/path+".meta", both via temp-file-then-rename.
func (idx *Index) Save(path string) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return memerrors.Unsupported("vector.save", "", "index is closed")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return memerrors.IOErr("vector.save", "", err)
	}

	tmpGraph := path + ".tmp"
	f, err := os.Create(tmpGraph)
	if err != nil {
		return memerrors.IOErr("vector.save", "", err)
	}
	if err := idx.graph.Export(f); err != nil {
		f.Close()
		os.Remove(tmpGraph)
		return memerrors.IOErr("vector.save", "", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpGraph)
		return memerrors.IOErr("vector.save", "", err)
	}
	if err := os.Rename(tmpGraph, path); err != nil {
		os.Remove(tmpGraph)
		return memerrors.IOErr("vector.save", "", err)
	}

	return idx.saveMetadata(path + ".meta")
}

func (idx *Index) saveMetadata(path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return memerrors.IOErr("vector.save", "", err)
	}
	meta := metadata{IDMap: idx.idMap, Vectors: idx.vectors, NextKey: idx.nextKey, Config: idx.cfg}
	if err := gob.NewEncoder(f).Encode(meta); err != nil {
		f.Close()
		os.Remove(tmp)
		return memerrors.IOErr("vector.save", "", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return memerrors.IOErr("vector.save", "", err)
	}
	return os.Rename(tmp, path)
}

// Load restores a previously Save-d index from path.
func Load(path string, cfg Config) (*Index, error) {
	idx := New(cfg)

	metaPath := path + ".meta"
	mf, err := os.Open(metaPath)
	if os.IsNotExist(err) {
		return idx, nil
	}
	if err != nil {
		return nil, memerrors.IOErr("vector.load", "", err)
	}
	var meta metadata
	decErr := gob.NewDecoder(mf).Decode(&meta)
	mf.Close()
	if decErr != nil {
		return nil, memerrors.IOErr("vector.load", "", decErr)
	}

	idx.idMap = meta.IDMap
	idx.vectors = meta.Vectors
	idx.nextKey = meta.NextKey
	idx.cfg = meta.Config
	idx.keyMap = make(map[uint64]string, len(idx.idMap))
	for id, key := range idx.idMap {
		idx.keyMap[key] = id
	}

	gf, err := os.Open(path)
	if err != nil {
		return nil, memerrors.IOErr("vector.load", "", err)
	}
	defer gf.Close()
	if err := idx.graph.Import(bufio.NewReader(gf)); err != nil {
		return nil, memerrors.IOErr("vector.load", "", err)
	}
	return idx, nil
}

func normalize(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
