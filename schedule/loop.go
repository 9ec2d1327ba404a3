package schedule

import (
	"sync"
	"time"
)

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithPanicHandler receives values recovered from panicking tasks. Without a
// handler the panic is swallowed so one faulty task cannot stop the loop.
func WithPanicHandler(handler func(recovered any)) LoopOption {
	return func(l *Loop) {
		l.onPanic = handler
	}
}

// Loop is a real-time Scheduler that executes tasks one at a time on its own
// goroutine.
type Loop struct {
	mu      sync.Mutex
	q       queue
	wake    chan struct{}
	done    chan struct{}
	closed  bool
	onPanic func(any)
}

// NewLoop starts a loop. Call Close to stop it.
func NewLoop(opts ...LoopOption) *Loop {
	l := &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	go l.run()
	return l
}

// Schedule implements Scheduler. Tasks scheduled after Close never run.
func (l *Loop) Schedule(delay time.Duration, fn func()) Timer {
	if delay < 0 {
		delay = 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || fn == nil {
		return stopped{}
	}
	t := l.q.add(time.Now().Add(delay), fn)
	select {
	case l.wake <- struct{}{}:
	default:
	}
	return &loopTimer{loop: l, task: t}
}

// Pending returns the number of tasks waiting to run.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.q.Len()
}

// Close stops the loop and drops pending tasks. It is safe to call more than
// once.
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.q.items = nil
	close(l.done)
}

func (l *Loop) run() {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		l.mu.Lock()
		if l.closed {
			l.mu.Unlock()
			return
		}
		if t := l.q.next(time.Now()); t != nil {
			l.mu.Unlock()
			l.exec(t)
			continue
		}
		at, ok := l.q.peek()
		l.mu.Unlock()

		var fire <-chan time.Time
		if ok {
			timer.Reset(time.Until(at))
			fire = timer.C
		}
		select {
		case <-l.wake:
		case <-fire:
		case <-l.done:
			return
		}
		timer.Stop()
	}
}

func (l *Loop) exec(t *task) {
	defer func() {
		if r := recover(); r != nil && l.onPanic != nil {
			l.onPanic(r)
		}
	}()
	t.fn()
}

type loopTimer struct {
	loop *Loop
	task *task
}

func (t *loopTimer) Stop() bool {
	t.loop.mu.Lock()
	defer t.loop.mu.Unlock()
	if t.loop.closed {
		return false
	}
	return t.loop.q.remove(t.task)
}

type stopped struct{}

func (stopped) Stop() bool { return false }
