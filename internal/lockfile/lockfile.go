// Package lockfile implements advisory, cross-process critical-section
// locks: a gofrs/flock OS-level advisory lock paired with a JSON sidecar
// body carrying {pid, epoch_ms}, so a lock can be judged stale (owner
// process gone, or simply too old) independent of the OS lock's own
// state.
package lockfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	memerrors "github.com/memvault/memvault/internal/errors"
)

// StaleAfter is the age after which a lock file is considered stale and
// eligible for reclamation once its owning PID is confirmed absent.
const StaleAfter = 30 * time.Second

type sidecar struct {
	PID     int   `json:"pid"`
	EpochMs int64 `json:"epoch_ms"`
}

// Lock represents one advisory lock file under <scope-root>/locks/.
type Lock struct {
	path  string
	scope string
	flock *flock.Flock
}

// New returns a Lock for the named critical section op (e.g. "upsert",
// "consolidate") under locksDir.
func New(locksDir, scope, op string) *Lock {
	path := filepath.Join(locksDir, op+".lock")
	return &Lock{path: path, scope: scope, flock: flock.New(path)}
}

// TryLock attempts to acquire the lock, reclaiming it first if it is
// stale. Returns false (no error) if another live process holds it.
func (l *Lock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, memerrors.IOErr("lockfile.trylock", l.scope, err)
	}

	if stale, err := l.isStale(); err == nil && stale {
		_ = os.Remove(l.path)
	}

	ok, err := l.flock.TryLock()
	if err != nil {
		return false, memerrors.IOErr("lockfile.trylock", l.scope, err)
	}
	if !ok {
		return false, nil
	}

	body, err := json.Marshal(sidecar{PID: os.Getpid(), EpochMs: time.Now().UnixMilli()})
	if err != nil {
		_ = l.flock.Unlock()
		return false, memerrors.IOErr("lockfile.trylock", l.scope, err)
	}
	if err := os.WriteFile(l.path, body, 0o644); err != nil {
		_ = l.flock.Unlock()
		return false, memerrors.IOErr("lockfile.trylock", l.scope, err)
	}
	return true, nil
}

// Unlock releases the lock and removes its sidecar file.
func (l *Lock) Unlock() error {
	err := l.flock.Unlock()
	_ = os.Remove(l.path)
	return err
}

// isStale reports whether the lock file is older than StaleAfter AND
// its owning PID is no longer alive.
func (l *Lock) isStale() (bool, error) {
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var s sidecar
	if err := json.Unmarshal(data, &s); err != nil {
		// unreadable sidecar: treat as stale so a crashed writer doesn't
		// wedge the scope forever.
		return true, nil
	}

	age := time.Since(time.UnixMilli(s.EpochMs))
	if age < StaleAfter {
		return false, nil
	}
	return !pidAlive(s.PID), nil
}

// pidAlive reports whether pid refers to a live process on this host.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix, FindProcess always succeeds; signal 0 probes liveness
	// without actually sending a signal.
	err = proc.Signal(syscall.Signal(0))
	return err == nil
}

// Describe renders the lock's path for error messages.
func (l *Lock) Describe() string {
	return fmt.Sprintf("lock(%s)", l.path)
}
