package debounce

import (
	"sync"
	"time"
)

// Timer is the stoppable handle returned by an AfterFunc.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc satisfies it through
// StdAfterFunc.
type AfterFunc func(d time.Duration, f func()) Timer

// StdAfterFunc adapts time.AfterFunc.
func StdAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Debouncer runs only the most recent of a burst of triggers, once the
// window has passed without a newer one.
type Debouncer struct {
	window time.Duration
	after  AfterFunc

	mu      sync.Mutex
	timer   Timer
	pending func()
	running int
	gen     uint64
}

func New(window time.Duration) *Debouncer {
	return NewWithTimer(window, StdAfterFunc)
}

func NewWithTimer(window time.Duration, after AfterFunc) *Debouncer {
	if after == nil {
		after = StdAfterFunc
	}
	return &Debouncer{window: window, after: after}
}

// Window returns the quiet period.
func (d *Debouncer) Window() time.Duration {
	return d.window
}

// Trigger supersedes any pending call and schedules fn.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	d.gen++
	gen := d.gen
	d.pending = fn
	d.timer = d.after(d.window, func() { d.fire(gen) })
}

// Cancel drops the pending call, if any.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	d.gen++
}

// Flush runs the pending call now instead of waiting for the window.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	fn := d.pending
	d.stopLocked()
	d.gen++
	if fn != nil {
		d.running++
	}
	d.mu.Unlock()
	if fn != nil {
		d.run(fn)
	}
}

// Pending reports whether a call is scheduled or still running.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil || d.running > 0
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	// A timer that fired while a newer Trigger held the lock is stale.
	if gen != d.gen || d.pending == nil {
		d.mu.Unlock()
		return
	}
	fn := d.pending
	d.pending = nil
	d.timer = nil
	d.running++
	d.mu.Unlock()
	d.run(fn)
}

func (d *Debouncer) run(fn func()) {
	defer func() {
		d.mu.Lock()
		d.running--
		d.mu.Unlock()
	}()
	fn()
}

func (d *Debouncer) stopLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = nil
}
