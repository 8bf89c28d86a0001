package journal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/memvault/memvault/internal/model"
)

func testEntry(id string) model.JournalEntry {
	return model.JournalEntry{
		Op:          model.OpUpsert,
		ID:          id,
		ContentHash: "deadbeef",
		Timestamp:   time.Now().UTC(),
		Actor:       "test@0.0.0",
	}
}

func TestAppendAndReplay(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(filepath.Join(dir, "journal.ndjson"), "local", 1)
	require.NoError(t, err)
	defer j.Close()

	for i := 0; i < 5; i++ {
		_, err := j.Append(testEntry(string(rune('a' + i))))
		require.NoError(t, err)
	}

	var ids []string
	err = j.Replay(func(e model.JournalEntry) error {
		ids = append(ids, e.ID)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, ids, 5)
}

func TestFirstRecordHasZeroPrevHash(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(filepath.Join(dir, "journal.ndjson"), "local", 1)
	require.NoError(t, err)
	defer j.Close()

	_, err = j.Append(testEntry("first"))
	require.NoError(t, err)

	var first model.JournalEntry
	err = j.Replay(func(e model.JournalEntry) error {
		first = e
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, ZeroHash, first.PrevHash)
}

func TestVerifyValidChain(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(filepath.Join(dir, "journal.ndjson"), "local", 1)
	require.NoError(t, err)
	defer j.Close()

	for i := 0; i < 5; i++ {
		_, err := j.Append(testEntry(string(rune('a' + i))))
		require.NoError(t, err)
	}

	res, err := j.Verify()
	require.NoError(t, err)
	require.True(t, res.Valid)
	require.Equal(t, 5, res.Checked)
	require.Equal(t, 1.0, res.IntegrityScore)
}

func TestVerifyDetectsBrokenChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.ndjson")
	j, err := Open(path, "local", 1)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := j.Append(testEntry(string(rune('a' + i))))
		require.NoError(t, err)
	}
	require.NoError(t, j.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	// flip the first 'd' in the file: the one in the first line's "id" key,
	// so the second line's prev_hash no longer matches the first line
	corrupted := []byte(string(data))
	for i, c := range corrupted {
		if c == 'd' {
			corrupted[i] = 'e'
			break
		}
	}
	require.NoError(t, os.WriteFile(path, corrupted, 0o644))

	j2, err := Open(path, "local", 1)
	require.NoError(t, err)
	defer j2.Close()

	res, err := j2.Verify()
	require.NoError(t, err)
	require.False(t, res.Valid)
}

func TestOpenRepairsTrailingPartialRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.ndjson")
	j, err := Open(path, "local", 1)
	require.NoError(t, err)
	_, err = j.Append(testEntry("whole"))
	require.NoError(t, err)
	require.NoError(t, j.Close())

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"op":"upsert","id":"broke`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	j2, err := Open(path, "local", 1)
	require.NoError(t, err)
	defer j2.Close()

	var ids []string
	err = j2.Replay(func(e model.JournalEntry) error {
		ids = append(ids, e.ID)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"whole"}, ids)

	res, err := j2.Verify()
	require.NoError(t, err)
	require.True(t, res.Valid)
}

func TestCompactPreservesChainTip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.ndjson")
	j, err := Open(path, "local", 1)
	require.NoError(t, err)
	defer j.Close()

	for i := 0; i < 3; i++ {
		_, err := j.Append(testEntry(string(rune('a' + i))))
		require.NoError(t, err)
	}
	tipBefore := j.TipHash()

	require.NoError(t, j.Compact("digest123", "test@0.0.0"))
	require.NotEqual(t, tipBefore, j.TipHash())

	// appending after compact continues the new chain
	newHash, err := j.Append(testEntry("after-compact"))
	require.NoError(t, err)
	require.NotEmpty(t, newHash)

	res, err := j.Verify()
	require.NoError(t, err)
	require.True(t, res.Valid)
}
