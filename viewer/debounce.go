package viewer

import (
	"sync"
	"time"
)

// Debouncer collapses a burst of triggers into a single call of fn, made
// once no trigger has arrived for the wait window.
type Debouncer struct {
	wait time.Duration
	fn   func()

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

// NewDebouncer creates a debouncer; wait defaults to 250ms
func NewDebouncer(wait time.Duration, fn func()) *Debouncer {
	if wait <= 0 {
		wait = 250 * time.Millisecond
	}
	return &Debouncer{wait: wait, fn: fn}
}

// Trigger cancels any pending call and re-arms the window
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.wait, func() {
		d.mu.Lock()
		// a timer that fired while being re-armed is stale
		fire := gen == d.gen
		if fire {
			d.timer = nil
		}
		d.mu.Unlock()
		if fire {
			d.fn()
		}
	})
}

// Stop drops any pending call
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
