package tates

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"sync/atomic"

	"github.com/goliatone/go-tates/keypath"
	"github.com/goliatone/go-tates/schedule"
)

// wildcard keys the bucket of SubscribeAll listeners. Normalize yields the
// empty string only for a path without keys, which Subscribe treats as a
// wildcard too.
const wildcard = ""

// bucket holds the listeners registered under one normalized path, in
// subscription order.
type bucket struct {
	key  string
	seq  uint64
	path keypath.Path
	subs []*subscription
}

type delivery struct {
	value any
	path  string
}

type subscription struct {
	state    *State
	key      string
	listener Listener
	inert    atomic.Bool
	debounce *schedule.Debouncer[delivery]
}

// Subscribe registers l for path, written in dot or bracket form
// ("todos[0].title", `a["b"]`). An empty path subscribes to every root key,
// like SubscribeAll. The current value at path is always delivered once,
// asynchronously, even if nothing changes.
//
// The returned function unsubscribes. Deliveries still pending at that point
// are dropped. It is safe to call more than once and from any goroutine.
func (s *State) Subscribe(path string, l Listener) (unsubscribe func()) {
	return s.subscribe(keypath.Normalize(path), l)
}

// SubscribeAll registers l for changes to any root key. The listener receives
// the new value of the key and the key itself. A change reported at the root,
// such as a method called on the root node, delivers once per root key whose
// value differs, in key order, rather than once for the whole root.
func (s *State) SubscribeAll(l Listener) (unsubscribe func()) {
	return s.subscribe(wildcard, l)
}

func (s *State) subscribe(key string, l Listener) func() {
	if l == nil {
		return func() {}
	}
	sub := s.newSubscription(key, l)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return func() {}
	}
	b := s.buckets[key]
	if b == nil {
		s.bucketSeq++
		b = &bucket{key: key, seq: s.bucketSeq}
		if key != wildcard {
			b.path = keypath.Parse(key)
		}
		s.buckets[key] = b
	}
	b.subs = append(b.subs, sub)
	s.mu.Unlock()

	// Wildcard listeners start with nil and an empty path.
	if key == wildcard {
		sub.dispatch(nil, "")
	} else {
		initial, _ := keypath.Resolve(s.root, b.path)
		sub.dispatch(detach(initial), key)
	}
	return func() { s.unsubscribe(sub) }
}

func (s *State) newSubscription(key string, l Listener) *subscription {
	sub := &subscription{state: s, key: key, listener: l}
	if s.cfg.debounce {
		sub.debounce = schedule.NewDebouncer(s.sched, s.cfg.debounceWait, sub.deliver)
	}
	return sub
}

func (s *State) unsubscribe(sub *subscription) {
	sub.stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.buckets[sub.key]
	if b == nil {
		return
	}
	b.subs = slices.DeleteFunc(b.subs, func(candidate *subscription) bool {
		return candidate == sub
	})
	if len(b.subs) == 0 {
		delete(s.buckets, sub.key)
	}
}

// stop makes the subscription inert and drops its pending debounced call.
func (sub *subscription) stop() {
	sub.inert.Store(true)
	if sub.debounce != nil {
		sub.debounce.Cancel()
	}
}

// dispatch queues one delivery. value must already be detached from the live
// tree.
func (sub *subscription) dispatch(value any, path string) {
	if sub.inert.Load() {
		return
	}
	d := delivery{value: value, path: path}
	if sub.debounce != nil {
		sub.debounce.Call(d)
		return
	}
	sub.state.sched.Schedule(0, func() { sub.deliver(d) })
}

func (sub *subscription) deliver(d delivery) {
	if sub.inert.Load() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			sub.state.log(EventListenerPanic, d.path, panicError(r))
		}
	}()
	sub.listener(d.value, d.path)
}

type routed struct {
	sub   *subscription
	value any
	path  string
}

// route matches one change against every bucket:
//
//   - the wildcard bucket gets changes to root keys;
//   - a bucket for the changed path gets the new value;
//   - a bucket below the changed path gets the value re-resolved at its own
//     path, when that differs from the one resolved in previous.
//
// Buckets above the changed path are not notified. A change reported at the
// root (a method called on the root node) is above every bucket. Buckets are
// visited in the order they were created. Routed values are detached copies.
func (s *State) route(changed keypath.Path, value, previous any) []routed {
	s.mu.Lock()
	buckets := make([]*bucket, 0, len(s.buckets))
	subs := make(map[*bucket][]*subscription, len(s.buckets))
	for _, b := range s.buckets {
		buckets = append(buckets, b)
		subs[b] = slices.Clone(b.subs)
	}
	s.mu.Unlock()
	slices.SortFunc(buckets, func(a, b *bucket) int {
		return cmp.Compare(a.seq, b.seq)
	})

	equals := s.cfg.equals
	var out []routed
	emit := func(b *bucket, v any, path string) {
		detached := detach(v)
		for _, sub := range subs[b] {
			out = append(out, routed{sub: sub, value: detached, path: path})
		}
	}

	for _, b := range buckets {
		switch {
		case b.key == wildcard:
			switch len(changed) {
			case 0:
				for _, key := range rootKeys(value, previous) {
					next, _ := keypath.Resolve(value, keypath.Path{key})
					prev, _ := keypath.Resolve(previous, keypath.Path{key})
					if !equals(next, prev) {
						emit(b, next, key)
					}
				}
			case 1:
				if !equals(value, previous) {
					emit(b, value, changed.String())
				}
			}
		case b.path.Equal(changed):
			if !equals(value, previous) {
				emit(b, value, b.key)
			}
		case b.path.HasPrefix(changed):
			relative := b.path.After(changed)
			next, _ := keypath.Resolve(value, relative)
			prev, _ := keypath.Resolve(previous, relative)
			if !equals(next, prev) {
				emit(b, next, b.key)
			}
		}
	}
	return out
}

func rootKeys(values ...any) []string {
	keys := make(map[string]struct{})
	for _, value := range values {
		if m, ok := value.(map[string]any); ok {
			for key := range m {
				keys[key] = struct{}{}
			}
		}
	}
	return slices.Sorted(maps.Keys(keys))
}

func panicError(recovered any) error {
	if err, ok := recovered.(error); ok {
		return fmt.Errorf("tates: listener panic: %w", err)
	}
	return fmt.Errorf("tates: listener panic: %v", recovered)
}
