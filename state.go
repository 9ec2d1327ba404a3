// Package tates keeps an observed state tree and notifies subscribers when the
// value at a path they care about changes.
//
// A State owns one observation engine (package observe) over an internal
// map[string]any. Writes made through Root() are reported to the State, which
// routes each change to the subscriptions whose path is the changed path or
// lies beneath it. Deliveries never run on the mutating goroutine: they are
// handed to a schedule.Scheduler, either debounced per listener or postponed
// by one tick per change.
//
//	state := tates.New()
//	defer state.Close()
//
//	unsubscribe := state.Subscribe("todos[0].title", func(value any, path string) {
//		fmt.Println(path, value)
//	})
//	defer unsubscribe()
//
//	state.Root().Set("todos", []any{map[string]any{"title": "write docs"}})
//
// Root, mutations, Subscribe and Watch read or write the live tree and are
// expected from one goroutine at a time, the mutating goroutine. Unsubscribe
// handles and Close are safe from any goroutine, including from listeners.
// Close stops deliveries at once; the observation engine itself is released
// on the mutating goroutine, by the next Root call or the next write.
package tates

import (
	"context"
	"errors"
	"maps"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/goliatone/go-tates/keypath"
	"github.com/goliatone/go-tates/layering"
	"github.com/goliatone/go-tates/observe"
	"github.com/goliatone/go-tates/pkg/activity"
	"github.com/goliatone/go-tates/schedule"
	"github.com/google/uuid"
)

// ErrClosed is returned by operations attempted after Close.
var ErrClosed = errors.New("tates: state closed")

// State is an observed root with path subscriptions.
type State struct {
	id      string
	cfg     config
	root    map[string]any
	node    *observe.Node
	sched   schedule.Scheduler
	loop    *schedule.Loop
	emitter *activity.Emitter

	evalOnce    sync.Once
	releaseOnce sync.Once

	mu        sync.Mutex
	buckets   map[string]*bucket
	bucketSeq uint64
	watchers  []*watcher
	closed    bool
}

// New builds a State over an empty root.
func New(opts ...Option) *State {
	cfg := applyOptions(opts)
	s := &State{
		id:      cfg.stateID,
		cfg:     cfg,
		root:    map[string]any{},
		sched:   cfg.scheduler,
		buckets: make(map[string]*bucket),
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	if s.sched == nil {
		s.loop = schedule.NewLoop(schedule.WithPanicHandler(func(recovered any) {
			s.log(EventListenerPanic, "", panicError(recovered))
		}))
		s.sched = s.loop
	}
	s.emitter = activity.NewEmitter(cfg.activityHooks, cfg.activityConfig)

	engineOpts := make([]observe.Option, 0, len(cfg.observeOpts)+2)
	engineOpts = append(engineOpts, observe.WithEquals(cfg.equals), observe.WithLogger(cfg.logger))
	engineOpts = append(engineOpts, cfg.observeOpts...)
	s.node = observe.Observe(s.root, s.handleChange, engineOpts...)
	return s
}

// ID returns the instance id stamped on activity events.
func (s *State) ID() string {
	return s.id
}

// Root returns the observed root node. Writes made through it, or through any
// node read from it, notify subscribers. After Close the node is unsubscribed
// and writes through it only change the raw tree.
func (s *State) Root() *observe.Node {
	if s.isClosed() {
		s.release()
	}
	return s.node
}

// release unsubscribes the engine. It runs on the mutating goroutine only,
// since the engine is not safe for concurrent use.
func (s *State) release() {
	s.releaseOnce.Do(func() {
		s.node.Unsubscribe()
	})
}

// Target returns the raw root map. Writes made to it bypass observation and
// never notify anyone.
func (s *State) Target() map[string]any {
	return s.root
}

// Snapshot returns a deep copy of the root that shares nothing with the live
// tree.
func (s *State) Snapshot() map[string]any {
	snapshot, _ := layering.Clone(observe.Plain(s.root)).(map[string]any)
	if snapshot == nil {
		snapshot = map[string]any{}
	}
	return snapshot
}

// Get returns a deep copy of the value at path, or nil when nothing is there.
func (s *State) Get(path string) any {
	value, _ := keypath.Resolve(s.root, keypath.Parse(path))
	return detach(value)
}

// Merge deep-merges patches into the root, strongest first, and writes every
// top-level key whose merged value differs through the observed root, so each
// touched key notifies at most once. Nil patch values keep the current value.
func (s *State) Merge(patches ...map[string]any) error {
	if s.isClosed() {
		return ErrClosed
	}
	touched := make(map[string]struct{})
	layers := make([]map[string]any, 0, len(patches)+1)
	for _, patch := range patches {
		if len(patch) == 0 {
			continue
		}
		for key := range patch {
			touched[key] = struct{}{}
		}
		layers = append(layers, patch)
	}
	if len(touched) == 0 {
		return nil
	}
	current := s.Snapshot()
	merged := layering.MergeLayers(append(layers, current)...)

	var keys []string
	for _, key := range slices.Sorted(maps.Keys(touched)) {
		next, ok := merged[key]
		if !ok {
			continue
		}
		if previous, exists := current[key]; exists && reflect.DeepEqual(previous, next) {
			continue
		}
		if s.node.Set(key, next) {
			keys = append(keys, key)
		}
	}
	if len(keys) > 0 {
		s.recordActivity(activity.BuildStateMergedEvent(activity.StateEventInput{
			ActorID: s.cfg.actorID,
			StateID: s.id,
			Keys:    keys,
		}))
	}
	return nil
}

// Close drops every subscription and watcher and stops the scheduler when the
// State created it. Pending deliveries are discarded. Observation stops at the
// next Root call or write on the mutating goroutine. Close is idempotent.
func (s *State) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	buckets := s.buckets
	watchers := s.watchers
	s.buckets = make(map[string]*bucket)
	s.watchers = nil
	s.mu.Unlock()

	for _, b := range buckets {
		for _, sub := range b.subs {
			sub.stop()
		}
	}
	for _, w := range watchers {
		w.sub.stop()
	}
	if s.loop != nil {
		s.loop.Close()
	}
	return nil
}

func (s *State) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// handleChange receives every engine notification on the mutating goroutine.
func (s *State) handleChange(op observe.Op, path keypath.Path, value, previous any) {
	if s.isClosed() {
		s.release()
		return
	}
	for _, d := range s.route(path, value, previous) {
		d.sub.dispatch(d.value, d.path)
	}
	s.reevaluate(path)
	s.recordChange(op, path, value, previous)
}

func (s *State) recordChange(op observe.Op, path keypath.Path, value, previous any) {
	if !s.emitter.Enabled() {
		return
	}
	input := activity.StateEventInput{
		ActorID:  s.cfg.actorID,
		StateID:  s.id,
		Path:     path.String(),
		OldValue: detach(previous),
		NewValue: detach(value),
	}
	if op == observe.OpDelete {
		s.recordActivity(activity.BuildStateDeletedEvent(input))
		return
	}
	s.recordActivity(activity.BuildStateChangedEvent(input))
}

// recordActivity hands event to the hooks on the scheduler so slow sinks
// never block a mutation.
func (s *State) recordActivity(event activity.Event) {
	if !s.emitter.Enabled() {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	s.sched.Schedule(0, func() {
		if err := s.emitter.Emit(context.Background(), event); err != nil {
			s.log(EventHookFailed, event.ObjectID, err)
		}
	})
}

// detach deep-copies a value read from the live tree.
func detach(value any) any {
	return layering.Clone(observe.Plain(value))
}
