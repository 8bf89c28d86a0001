package lockfile

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTryLockAndUnlock(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, "local", "upsert")

	ok, err := l.TryLock()
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, l.Unlock())
	_, err = os.Stat(filepath.Join(dir, "upsert.lock"))
	require.True(t, os.IsNotExist(err))
}

func TestSecondLockerBlockedWhileHeld(t *testing.T) {
	dir := t.TempDir()
	l1 := New(dir, "local", "upsert")
	ok, err := l1.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	defer l1.Unlock()

	l2 := New(dir, "local", "upsert")
	ok2, err := l2.TryLock()
	require.NoError(t, err)
	require.False(t, ok2)
}

func TestStaleLockWithDeadPIDIsReclaimed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "upsert.lock")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	agoMs := strconv.FormatInt(time.Now().Add(-time.Hour).UnixMilli(), 10)
	body := []byte(`{"pid":999999,"epoch_ms":` + agoMs + `}`)
	require.NoError(t, os.WriteFile(path, body, 0o644))

	l := New(dir, "local", "upsert")
	ok, err := l.TryLock()
	require.NoError(t, err)
	require.True(t, ok, "stale lock owned by a dead pid should be reclaimed")
}
