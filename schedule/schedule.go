// Package schedule provides the deferred-task primitives used to deliver
// notifications outside the mutating call stack.
//
// A Scheduler runs functions after a delay and hands back a Timer that can
// cancel them. Two implementations are provided:
//
//   - Loop runs due tasks on a single goroutine in (deadline, submission)
//     order, so zero-delay tasks keep FIFO order like a macrotask queue.
//   - Manual runs tasks only when its virtual clock is advanced, which makes
//     delivery timing deterministic in tests.
package schedule

import (
	"container/heap"
	"time"
)

// Scheduler defers fn by delay.
type Scheduler interface {
	Schedule(delay time.Duration, fn func()) Timer
}

// Timer is a handle to a scheduled task.
type Timer interface {
	// Stop cancels the task. It reports whether the task was still pending.
	Stop() bool
}

type task struct {
	at      time.Time
	seq     uint64
	fn      func()
	index   int
	stopped bool
	owner   *queue
}

type queue struct {
	items []*task
	seq   uint64
}

func (q *queue) Len() int { return len(q.items) }

func (q *queue) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if a.at.Equal(b.at) {
		return a.seq < b.seq
	}
	return a.at.Before(b.at)
}

func (q *queue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].index = i
	q.items[j].index = j
}

func (q *queue) Push(x any) {
	t := x.(*task)
	t.index = len(q.items)
	q.items = append(q.items, t)
}

func (q *queue) Pop() any {
	old := q.items
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	q.items = old[:n-1]
	return t
}

func (q *queue) add(at time.Time, fn func()) *task {
	q.seq++
	t := &task{at: at, seq: q.seq, fn: fn, owner: q}
	heap.Push(q, t)
	return t
}

func (q *queue) remove(t *task) bool {
	if t.stopped || t.index < 0 {
		return false
	}
	t.stopped = true
	heap.Remove(q, t.index)
	return true
}

// next pops the earliest task due at or before now.
func (q *queue) next(now time.Time) *task {
	if len(q.items) == 0 {
		return nil
	}
	head := q.items[0]
	if head.at.After(now) {
		return nil
	}
	heap.Pop(q)
	return head
}

func (q *queue) peek() (time.Time, bool) {
	if len(q.items) == 0 {
		return time.Time{}, false
	}
	return q.items[0].at, true
}
