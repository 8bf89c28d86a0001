package video

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	memerrors "github.com/memvault/memvault/internal/errors"
	"github.com/memvault/memvault/internal/model"
)

// manifestFile is the on-disk JSON shape of consolidated.manifest.json:
// the frame-range entry per content hash, plus the geometry every frame
// in the segment shares (consolidation forces one QR tier across the
// whole batch so the resulting video stream has constant dimensions).
type manifestFile struct {
	Width      int                               `json:"width"`
	Height     int                               `json:"height"`
	Generation uint64                            `json:"generation"`
	Entries    []model.VideoSegmentManifestEntry `json:"entries"`
}

// manifest is the in-memory, content-hash-keyed view of a segment's
// manifest, atomically persisted the same temp+rename way the catalog
// is (internal/session/storage.go's atomic-write idiom).
type manifest struct {
	mu         sync.RWMutex
	path       string
	scope      string
	width      int
	height     int
	generation uint64
	entries    map[string]model.VideoSegmentManifestEntry
}

func openManifest(path, scope string) (*manifest, error) {
	m := &manifest{path: path, scope: scope, entries: make(map[string]model.VideoSegmentManifestEntry)}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return nil, memerrors.IOErr("video.manifest.open", scope, err)
	}
	var mf manifestFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil, memerrors.IOErr("video.manifest.open", scope, err)
	}
	m.width, m.height, m.generation = mf.Width, mf.Height, mf.Generation
	for _, e := range mf.Entries {
		m.entries[e.ContentHash] = e
	}
	return m, nil
}

func (m *manifest) Get(hash string) (model.VideoSegmentManifestEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[hash]
	return e, ok
}

func (m *manifest) Geometry() (int, int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.width, m.height
}

func (m *manifest) Generation() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.generation
}

// replace atomically swaps the manifest's entire contents, the
// consolidation-time operation that makes the new segment visible.
func (m *manifest) replace(width, height int, entries map[string]model.VideoSegmentManifestEntry) error {
	m.mu.Lock()
	m.width = width
	m.height = height
	m.generation++
	m.entries = entries
	gen := m.generation
	m.mu.Unlock()
	return m.save(width, height, gen, entries)
}

func (m *manifest) save(width, height int, generation uint64, entries map[string]model.VideoSegmentManifestEntry) error {
	list := make([]model.VideoSegmentManifestEntry, 0, len(entries))
	for _, e := range entries {
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ContentHash < list[j].ContentHash })

	data, err := json.MarshalIndent(manifestFile{Width: width, Height: height, Generation: generation, Entries: list}, "", "  ")
	if err != nil {
		return memerrors.IOErr("video.manifest.save", m.scope, err)
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return memerrors.IOErr("video.manifest.save", m.scope, err)
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return memerrors.IOErr("video.manifest.save", m.scope, err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		_ = os.Remove(tmp)
		return memerrors.IOErr("video.manifest.save", m.scope, err)
	}
	return nil
}
