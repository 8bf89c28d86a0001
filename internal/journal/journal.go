// Package journal implements the append-only, hash-chained change log
// that is the source of truth for a scope's recovery: every upsert,
// delete, link, and snapshot is recorded here before it is reflected in
// the catalog or indexes.
package journal

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	memerrors "github.com/memvault/memvault/internal/errors"
	"github.com/memvault/memvault/internal/model"
)

// ZeroHash is the prev_hash of the first record in a scope's journal:
// 64 zero characters.
var ZeroHash = strings.Repeat("0", 64)

// Journal is an append-only NDJSON log with a per-record content hash
// and a prev_hash chain over all prior records. It is safe for
// concurrent use; callers wanting atomic multi-record batches should
// hold their own lock around a sequence of Append calls.
type Journal struct {
	mu        sync.Mutex
	path      string
	scope     string
	file      *os.File
	lastHash  string
	fsyncN    int // fsync once every fsyncN appends
	sinceSync int
}

// Open opens (creating if necessary) the journal at path for scope, and
// replays it to recover the current chain tip. A truncated trailing
// record is repaired (truncated to the last complete line) as part of
// Open, per the recovery policy.
func Open(path, scope string, fsyncBatch int) (*Journal, error) {
	if fsyncBatch < 1 {
		fsyncBatch = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, memerrors.IOErr("journal.open", scope, err)
	}

	if err := repairTrailingRecord(path); err != nil {
		return nil, memerrors.IOErr("journal.open", scope, err)
	}

	lastHash := ZeroHash
	entries, _, _, err := readAll(path)
	if err != nil {
		return nil, memerrors.IOErr("journal.open", scope, err)
	}
	if len(entries) > 0 {
		lastHash = lineHash(entries[len(entries)-1].raw)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return nil, memerrors.IOErr("journal.open", scope, err)
	}

	return &Journal{
		path:     path,
		scope:    scope,
		file:     f,
		lastHash: lastHash,
		fsyncN:   fsyncBatch,
	}, nil
}

// Close releases the underlying file handle.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}

// Append writes one record, filling in PrevHash from the current chain
// tip. It fsyncs once every fsyncBatch appends (batch 1 means every
// call). Returns the record's own line hash, which becomes the next
// record's PrevHash.
func (j *Journal) Append(entry model.JournalEntry) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return "", memerrors.New(memerrors.KindIO, "journal.append", j.scope, "journal is closed", "")
	}

	entry.PrevHash = j.lastHash
	line, err := json.Marshal(entry)
	if err != nil {
		return "", memerrors.IOErr("journal.append", j.scope, err)
	}

	if _, err := j.file.Write(append(line, '\n')); err != nil {
		return "", memerrors.IOErr("journal.append", j.scope, err)
	}

	j.sinceSync++
	if j.sinceSync >= j.fsyncN {
		if err := j.file.Sync(); err != nil {
			return "", memerrors.IOErr("journal.append", j.scope, err)
		}
		j.sinceSync = 0
	}

	h := lineHash(line)
	j.lastHash = h
	return h, nil
}

// Sync forces a fsync regardless of the batch counter.
func (j *Journal) Sync() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	j.sinceSync = 0
	return j.file.Sync()
}

// TipHash returns the current chain tip, i.e. the PrevHash the next
// Append will use.
func (j *Journal) TipHash() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastHash
}

type rawEntry struct {
	entry model.JournalEntry
	raw   []byte
}

// Replay streams every complete record from the start of the journal,
// calling fn for each in order. It stops and returns the byte offset of
// the first unreadable record if JSON decoding fails.
func (j *Journal) Replay(fn func(model.JournalEntry) error) error {
	entries, end, stopped, err := readAll(j.path)
	if err != nil {
		return memerrors.IOErr("journal.replay", j.scope, err)
	}
	for _, e := range entries {
		if err := fn(e.entry); err != nil {
			return err
		}
	}
	if stopped {
		return memerrors.Integrity("journal.replay", j.scope, end, fmt.Sprintf("unreadable journal record at byte offset %d", end))
	}
	return nil
}

// VerifyResult is the outcome of Verify.
type VerifyResult struct {
	Valid          bool
	Checked        int
	BrokenAt       int64 // byte offset of the first bad record, -1 if valid
	IntegrityScore float64
}

// Verify walks the chain recomputing hashes. A trailing partial record
// is tolerated (treated as truncation, not corruption); any mismatch
// mid-chain is reported with the byte offset of the offending line.
func (j *Journal) Verify() (VerifyResult, error) {
	f, err := os.Open(j.path)
	if err != nil {
		return VerifyResult{}, memerrors.IOErr("journal.verify", j.scope, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	prev := ZeroHash
	var offset int64
	checked := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		lineOffset := offset
		offset += int64(len(line)) + 1 // + newline

		var e model.JournalEntry
		if err := json.Unmarshal(line, &e); err != nil {
			// Malformed JSON at end-of-file is treated as truncation by
			// repairTrailingRecord before Verify ever runs; mid-chain it
			// is corruption.
			return VerifyResult{Valid: false, Checked: checked, BrokenAt: lineOffset, IntegrityScore: ratio(checked, checked+1)}, nil
		}
		if checked == 0 && e.Op == model.OpSnapshot {
			// A compacted journal starts with a snapshot record whose
			// prev_hash is the tip of the archived chain.
			prev = e.PrevHash
		}
		if e.PrevHash != prev {
			return VerifyResult{Valid: false, Checked: checked, BrokenAt: lineOffset, IntegrityScore: ratio(checked, checked+1)}, nil
		}
		prev = lineHash(line)
		checked++
	}

	return VerifyResult{Valid: true, Checked: checked, BrokenAt: -1, IntegrityScore: 1.0}, nil
}

func ratio(good, total int) float64 {
	if total == 0 {
		return 1.0
	}
	return float64(good) / float64(total)
}

// Compact writes a snapshot record containing digest, moves all prior
// records into an archive file (journal.ndjson.archive.<ts>), and
// restarts the live journal with the snapshot's own hash as the new
// chain's prev_hash — preserving the chain across the compaction.
func (j *Journal) Compact(digest string, actor string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	snapshot := model.JournalEntry{
		Op:        model.OpSnapshot,
		ID:        "",
		PrevHash:  j.lastHash,
		Timestamp: time.Now().UTC(),
		Actor:     actor,
		Meta:      map[string]string{"digest": digest},
	}
	line, err := json.Marshal(snapshot)
	if err != nil {
		return memerrors.IOErr("journal.compact", j.scope, err)
	}
	snapshotHash := lineHash(line)

	if j.file != nil {
		_ = j.file.Close()
	}

	archivePath := fmt.Sprintf("%s.archive.%d", j.path, time.Now().UnixNano())
	if err := os.Rename(j.path, archivePath); err != nil {
		return memerrors.IOErr("journal.compact", j.scope, err)
	}

	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return memerrors.IOErr("journal.compact", j.scope, err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return memerrors.IOErr("journal.compact", j.scope, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return memerrors.IOErr("journal.compact", j.scope, err)
	}

	j.file = f
	j.lastHash = snapshotHash
	j.sinceSync = 0
	return nil
}

// lineHash is the SHA-256 hash of a single raw journal line, used both
// as the record's identity for chain purposes and as the next record's
// expected PrevHash.
func lineHash(line []byte) string {
	sum := sha256.Sum256(line)
	return hex.EncodeToString(sum[:])
}

// readAll reads every complete line of the journal at path, returning
// the decoded entries and the byte offset just past the last complete
// record (i.e. where a trailing partial record, if any, begins). stopped
// reports whether reading ended at a record that failed to decode.
func readAll(path string) ([]rawEntry, int64, bool, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var entries []rawEntry
	var offset int64
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		var e model.JournalEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return entries, offset, true, nil
		}
		entries = append(entries, rawEntry{entry: e, raw: line})
		offset += int64(len(line)) + 1
	}
	return entries, offset, false, nil
}

// repairTrailingRecord truncates the journal file to the end of its
// last complete (newline-terminated, JSON-parseable) record, per the
// recovery policy: "a trailing partial record is truncated to its last
// newline".
func repairTrailingRecord(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	lines := strings.Split(string(data), "\n")
	// Split on a trailing newline produces one empty trailing element;
	// drop it so "lines" holds only things that were actual records.
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	goodUpTo := 0
	for _, l := range lines {
		var e model.JournalEntry
		if err := json.Unmarshal([]byte(l), &e); err != nil {
			break
		}
		goodUpTo += len(l) + 1
	}

	if goodUpTo == len(data) {
		return nil
	}
	return os.Truncate(path, int64(goodUpTo))
}
