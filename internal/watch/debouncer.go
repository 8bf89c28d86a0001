// Package watch coalesces bursts of trigger requests into a single
// downstream action after a quiet window, the same timer-reset shape
// the teacher's file-event watcher uses (internal/watcher/debouncer.go),
// simplified here since the video backend only ever coalesces one kind
// of signal — "a consolidation is due" — not the path-keyed
// create/modify/delete merge the teacher's watcher performs.
package watch

import (
	"sync"
	"time"
)

// Debouncer delays fn until window has elapsed since the last Trigger
// call, collapsing any number of Trigger calls within the window into a
// single fn invocation.
type Debouncer struct {
	window time.Duration
	fn     func()

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// NewDebouncer constructs a Debouncer that runs fn once, window after
// the last Trigger call.
func NewDebouncer(window time.Duration, fn func()) *Debouncer {
	return &Debouncer{window: window, fn: fn}
}

// Trigger schedules fn to run after window, resetting any pending
// timer. A no-op once Stop has been called.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.fn)
}

// Flush runs fn immediately, bypassing the debounce window — the
// "immediate" consolidation policy spec.md allows as an alternative to
// debounced scheduling.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	stopped := d.stopped
	d.mu.Unlock()
	if !stopped {
		d.fn()
	}
}

// Stop cancels any pending timer and prevents further scheduling.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}
