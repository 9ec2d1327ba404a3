package schedule

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts of calls into one trailing invocation carrying the
// most recent value. Every Call re-arms the timer, so fn runs once the calls
// have been quiet for the configured wait.
type Debouncer[T any] struct {
	mu      sync.Mutex
	sched   Scheduler
	wait    time.Duration
	fn      func(T)
	timer   Timer
	gen     uint64
	pending T
}

// NewDebouncer builds a debouncer that runs fn on sched.
func NewDebouncer[T any](sched Scheduler, wait time.Duration, fn func(T)) *Debouncer[T] {
	return &Debouncer[T]{
		sched: sched,
		wait:  wait,
		fn:    fn,
	}
}

// Call records value and re-arms the timer.
func (d *Debouncer[T]) Call(value T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = value
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = d.sched.Schedule(d.wait, func() { d.fire(gen) })
}

// Cancel drops any pending invocation. It reports whether one was pending.
func (d *Debouncer[T]) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gen++
	var zero T
	d.pending = zero
	if d.timer == nil {
		return false
	}
	stoppedPending := d.timer.Stop()
	d.timer = nil
	return stoppedPending
}

func (d *Debouncer[T]) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || d.timer == nil {
		d.mu.Unlock()
		return
	}
	value := d.pending
	var zero T
	d.pending = zero
	d.timer = nil
	d.mu.Unlock()
	d.fn(value)
}
