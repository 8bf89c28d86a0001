package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	memerrors "github.com/memvault/memvault/internal/errors"
	"github.com/memvault/memvault/internal/journal"
	"github.com/memvault/memvault/internal/model"
)

// Rebuild replays the scope's catalog into fresh BM25/vector indexes,
// the repair path for a corrupted or stale index without touching the
// journal or item payloads. Transitions Ready -> Maintaining -> Ready.
func (m *Manager) Rebuild(ctx context.Context) error {
	if !m.state.beginMaintenance() {
		return memerrors.Busy("memory.rebuild", string(m.scope))
	}
	defer m.state.endMaintenance()

	m.indexMu.Lock()
	defer m.indexMu.Unlock()

	m.bm25Index.Rebuild(nil)
	return m.rebuildIndexesFromCatalog(ctx)
}

// Verify walks the scope's journal hash chain and reports how much of
// it is intact, per journal.Journal.Verify.
func (m *Manager) Verify() (journal.VerifyResult, error) {
	j, ok := m.journaledBackend()
	if !ok {
		return journal.VerifyResult{}, memerrors.Unsupported("memory.verify", string(m.scope), "backend does not expose a journal")
	}
	return j.Journal().Verify()
}

// Snapshot appends a snapshot journal record capturing the current
// catalog digest, the restart point a future Compact rewinds to.
func (m *Manager) Snapshot(actor string) error {
	if !m.state.beginMaintenance() {
		return memerrors.Busy("memory.snapshot", string(m.scope))
	}
	defer m.state.endMaintenance()

	j, ok := m.journaledBackend()
	if !ok {
		return memerrors.Unsupported("memory.snapshot", string(m.scope), "backend does not expose a journal")
	}
	digest := catalogDigest(j.Catalog().All())
	_, err := j.Journal().Append(model.JournalEntry{
		Op:        model.OpSnapshot,
		Timestamp: time.Now().UTC(),
		Actor:     actor,
		Meta:      map[string]string{"digest": digest},
	})
	return err
}

// Compact archives the journal up to its current tip behind a snapshot
// record and restarts the chain, per journal.Journal.Compact.
func (m *Manager) Compact(actor string) error {
	if !m.state.beginMaintenance() {
		return memerrors.Busy("memory.compact", string(m.scope))
	}
	defer m.state.endMaintenance()

	j, ok := m.journaledBackend()
	if !ok {
		return memerrors.Unsupported("memory.compact", string(m.scope), "backend does not expose a journal")
	}
	digest := catalogDigest(j.Catalog().All())
	if err := j.Journal().Compact(digest, actor); err != nil {
		return err
	}

	m.indexMu.Lock()
	m.maybeCompactVector()
	m.indexMu.Unlock()
	return nil
}

// catalogDigest derives a stable content fingerprint of a catalog
// snapshot from its entries' content hashes, sorted so iteration order
// over the catalog's backing map never affects the result.
func catalogDigest(entries []model.Summary) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, e.ID+":"+e.ContentHash)
	}
	sort.Strings(parts)
	sum := sha256.Sum256([]byte(strings.Join(parts, "\n")))
	return hex.EncodeToString(sum[:])
}
