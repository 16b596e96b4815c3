// Package debounce coalesces bursts of triggers into a single delayed call.
package debounce

import (
	"sync"
	"time"
)

// Timer is the part of *time.Timer the debouncer needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f to run after d. time.AfterFunc is the production implementation.
type AfterFunc func(d time.Duration, f func()) Timer

// Debouncer holds at most one pending call. Scheduling a new call replaces
// (cancels) the pending one.
type Debouncer struct {
	mu      sync.Mutex
	after   AfterFunc
	pending Timer
	seq     uint64
}

// New creates a Debouncer backed by the wall clock.
func New() *Debouncer {
	return NewWithAfterFunc(func(d time.Duration, f func()) Timer {
		return time.AfterFunc(d, f)
	})
}

// NewWithAfterFunc creates a Debouncer with a custom scheduler, mainly for tests.
func NewWithAfterFunc(af AfterFunc) *Debouncer {
	return &Debouncer{after: af}
}

// Schedule runs fn after delay unless another Schedule or Cancel happens first.
func (d *Debouncer) Schedule(delay time.Duration, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending != nil {
		d.pending.Stop()
	}
	d.seq++
	mine := d.seq

	d.pending = d.after(delay, func() {
		d.mu.Lock()
		// A timer that already fired cannot be stopped; the sequence check drops it.
		if d.seq != mine {
			d.mu.Unlock()
			return
		}
		d.pending = nil
		d.mu.Unlock()

		fn()
	})
}

// Cancel drops the pending call. It reports whether one was pending.
func (d *Debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending == nil {
		return false
	}
	d.pending.Stop()
	d.pending = nil
	d.seq++
	return true
}

// Pending reports whether a call is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}
