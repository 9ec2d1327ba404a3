package schedule

import (
	"sync"
	"time"
)

// Manual is a Scheduler driven by a virtual clock. Tasks run on the goroutine
// that calls Advance or Flush.
type Manual struct {
	mu  sync.Mutex
	q   queue
	now time.Time
}

// NewManual returns a manual scheduler whose clock starts at the Unix epoch.
func NewManual() *Manual {
	return &Manual{now: time.Unix(0, 0).UTC()}
}

// Schedule implements Scheduler.
func (m *Manual) Schedule(delay time.Duration, fn func()) Timer {
	if delay < 0 {
		delay = 0
	}
	if fn == nil {
		return stopped{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return &manualTimer{owner: m, task: m.q.add(m.now.Add(delay), fn)}
}

// Now returns the virtual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Pending returns the number of tasks waiting to run.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.q.Len()
}

// Advance moves the clock forward by d, running every task that becomes due in
// deadline order. Tasks scheduled by running tasks also run when they fall
// inside the window. It returns the number of tasks executed.
func (m *Manual) Advance(d time.Duration) int {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()
	return m.runUntil(target)
}

// Tick runs the tasks that are already due without moving the clock.
func (m *Manual) Tick() int {
	return m.Advance(0)
}

// Flush runs tasks until the queue is empty, moving the clock to each deadline
// in turn.
func (m *Manual) Flush() int {
	ran := 0
	for {
		m.mu.Lock()
		at, ok := m.q.peek()
		m.mu.Unlock()
		if !ok {
			return ran
		}
		ran += m.runUntil(at)
	}
}

func (m *Manual) runUntil(target time.Time) int {
	ran := 0
	for {
		m.mu.Lock()
		t := m.q.next(target)
		if t == nil {
			if target.After(m.now) {
				m.now = target
			}
			m.mu.Unlock()
			return ran
		}
		if t.at.After(m.now) {
			m.now = t.at
		}
		m.mu.Unlock()
		t.fn()
		ran++
	}
}

type manualTimer struct {
	owner *Manual
	task  *task
}

func (t *manualTimer) Stop() bool {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	return t.owner.q.remove(t.task)
}
