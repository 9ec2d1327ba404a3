// Package observe reports every mutation made to a graph of maps and slices,
// together with the path of the value that changed.
//
// Go has no transparent proxies, so the observed graph is navigated through
// *Node handles. A Node stands in for one container (map[string]any, []any)
// or method (Func) of the graph. Reads through a node return child nodes for
// containers and raw values for everything else; writes, deletes, property
// definitions and method calls made through a node are compared against the
// previous value and reported to the engine's ChangeFunc.
//
// Nodes are cached: reading the same container twice without an intervening
// mutation yields the same *Node. Maps are identified by their address and
// may be shared by several parents. Slices and methods have no stable
// address, so their nodes are bound to the slot (owner and key) they were
// read from and always resolve the slice currently stored there.
//
// An engine assumes a single mutator. Nodes are not safe for concurrent use.
package observe

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/goliatone/go-tates/keypath"
)

var (
	// ErrNilMap is logged when a nil map is reached and cannot be wrapped.
	ErrNilMap = errors.New("observe: nil map cannot be observed")
	// ErrUnsupportedRoot is logged when Observe receives a value that is not a
	// container.
	ErrUnsupportedRoot = errors.New("observe: root must be map[string]any or []any")
	// ErrNotCallable is returned by Invoke and Call when the target is not a
	// method.
	ErrNotCallable = errors.New("observe: value is not callable")
)

// Op names the operation behind a change.
type Op uint8

const (
	OpSet Op = iota
	OpDelete
	OpDefine
	OpCall
)

func (op Op) String() string {
	switch op {
	case OpDelete:
		return "delete"
	case OpDefine:
		return "define"
	case OpCall:
		return "call"
	default:
		return "set"
	}
}

// ChangeFunc receives every committed mutation. For method calls the path is
// the receiver, value is its current underlying value and previous is a
// shallow snapshot taken before the call. A delete reports a nil value, which
// only op tells apart from a write of nil.
type ChangeFunc func(op Op, path keypath.Path, value, previous any)

// Func is a method stored in the graph. this is the node the method was read
// from, so writes made through it are observed.
type Func func(this *Node, args ...any) (any, error)

// Option configures an engine.
type Option func(*config)

type config struct {
	shallow           bool
	equals            func(a, b any) bool
	ignoreSymbols     bool
	ignoreUnderscored bool
	ignoreKeys        map[string]struct{}
	logger            Logger
}

// WithShallow stops reads from wrapping children: only mutations made
// directly on the root node are reported.
func WithShallow(enabled bool) Option {
	return func(cfg *config) {
		cfg.shallow = enabled
	}
}

// WithEquals replaces SameValue as the change detector.
func WithEquals(equals func(a, b any) bool) Option {
	return func(cfg *config) {
		if equals != nil {
			cfg.equals = equals
		}
	}
}

// WithIgnoreSymbols excludes keys built with keypath.Symbol.
func WithIgnoreSymbols(enabled bool) Option {
	return func(cfg *config) {
		cfg.ignoreSymbols = enabled
	}
}

// WithIgnoreUnderscored excludes keys starting with an underscore.
func WithIgnoreUnderscored(enabled bool) Option {
	return func(cfg *config) {
		cfg.ignoreUnderscored = enabled
	}
}

// WithIgnoreKeys excludes the given keys. Ignored keys are neither wrapped on
// read nor reported on write.
func WithIgnoreKeys(keys ...string) Option {
	return func(cfg *config) {
		if cfg.ignoreKeys == nil {
			cfg.ignoreKeys = make(map[string]struct{}, len(keys))
		}
		for _, key := range keys {
			cfg.ignoreKeys[key] = struct{}{}
		}
	}
}

// WithLogger attaches a logger for recovered failures.
func WithLogger(logger Logger) Option {
	return func(cfg *config) {
		if logger == nil {
			cfg.logger = noopLogger{}
			return
		}
		cfg.logger = logger
	}
}

// identity keys the node and descriptor caches. Maps use their address; slice
// and method nodes use the identity of their owner plus the key chain.
type identity struct {
	ptr  uintptr
	slot string
}

const slotSeparator = "\x00"

func mapIdentity(m map[string]any) identity {
	return identity{ptr: uintptr(reflect.ValueOf(m).UnsafePointer())}
}

func (id identity) child(key string) identity {
	return identity{ptr: id.ptr, slot: id.slot + slotSeparator + key}
}

func (id identity) within(prefix identity) bool {
	if id.ptr != prefix.ptr {
		return false
	}
	return id.slot == prefix.slot || strings.HasPrefix(id.slot, prefix.slot+slotSeparator)
}

type engine struct {
	root     any
	top      *Node
	onChange ChangeFunc
	cfg      config

	nodes map[identity]*Node
	props map[identity]map[string]*Descriptor

	unsubscribed bool

	inApply       bool
	applyChanged  bool
	applyPath     keypath.Path
	applyPrevious any
	applyPatched  []keypath.Path
}

// Observe wraps root and returns its node. root must be a non-nil
// map[string]any or a []any; anything else is logged and yields a node that
// reads as empty and refuses writes.
func Observe(root any, onChange ChangeFunc, opts ...Option) *Node {
	cfg := config{
		equals: SameValue,
		logger: noopLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if onChange == nil {
		onChange = func(Op, keypath.Path, any, any) {}
	}
	if node, ok := root.(*Node); ok {
		root = node.Unwrap()
	}

	e := &engine{
		root:     root,
		onChange: onChange,
		cfg:      cfg,
		nodes:    make(map[identity]*Node),
		props:    make(map[identity]map[string]*Descriptor),
	}

	top := &Node{engine: e, path: keypath.Path{}}
	switch v := root.(type) {
	case map[string]any:
		if v == nil {
			e.log(EventWrapFailed, keypath.Path{}, ErrNilMap)
			top.kind = KindValue
			break
		}
		top.kind = KindMap
		top.object = v
		top.id = mapIdentity(v)
		e.nodes[top.id] = top
	case []any:
		top.kind = KindSlice
		e.nodes[top.id] = top
	default:
		e.log(EventWrapFailed, keypath.Path{}, fmt.Errorf("%w: got %T", ErrUnsupportedRoot, root))
		top.kind = KindValue
	}
	e.top = top
	return top
}

func (e *engine) ignored(key string) bool {
	if e.unsubscribed {
		return true
	}
	if e.cfg.ignoreSymbols && keypath.IsSymbol(key) {
		return true
	}
	if e.cfg.ignoreUnderscored && strings.HasPrefix(key, "_") {
		return true
	}
	if _, ok := e.cfg.ignoreKeys[key]; ok {
		return true
	}
	return false
}

func (e *engine) log(kind string, path keypath.Path, err error) {
	e.cfg.logger.Log(LogEvent{Kind: kind, Path: path.String(), Err: err})
}

// node returns the cached node for id, creating it with build when absent,
// and tags it with path.
func (e *engine) node(id identity, path keypath.Path, build func() *Node) *Node {
	n, ok := e.nodes[id]
	if !ok {
		n = build()
		n.engine = e
		n.id = id
		e.nodes[id] = n
	}
	if n != e.top {
		n.path = path
	}
	return n
}

// descriptor returns the descriptor stored for key under id. Descriptors are
// memoized until the property is deleted or redefined, or the stored entry no
// longer matches (raw writes bypass the engine).
func (e *engine) descriptor(id identity, key string, entry any) *Descriptor {
	d := asDescriptor(entry)
	if props := e.props[id]; props != nil {
		if cached, ok := props[key]; ok && cached == d {
			return cached
		}
	}
	if d == nil {
		e.invalidate(id, key)
		return nil
	}
	if e.unsubscribed {
		return d
	}
	props := e.props[id]
	if props == nil {
		props = make(map[string]*Descriptor)
		e.props[id] = props
	}
	props[key] = d
	return d
}

func (e *engine) invalidate(id identity, key string) {
	if props := e.props[id]; props != nil {
		delete(props, key)
		if len(props) == 0 {
			delete(e.props, id)
		}
	}
}

// evict drops cached nodes for containers that were overwritten or removed
// from the slot owner.key: the slot nodes under owner.key when the slot stops
// holding a slice or method, and every map reachable from previous that value
// no longer reaches, together with the slot nodes below those maps. A map that
// is still shared elsewhere in the graph gets a fresh node on its next read.
func (e *engine) evict(owner *Node, key string, previous, value any) {
	switch previous.(type) {
	case map[string]any:
		if next, ok := value.(map[string]any); ok && SameValue(previous, next) {
			return
		}
	case []any:
		if _, ok := value.([]any); !ok {
			e.evictSlot(owner.id.child(key))
		}
	default:
		if _, ok := asFunc(previous); ok {
			if _, ok := asFunc(value); !ok {
				e.evictSlot(owner.id.child(key))
			}
		}
	}
	e.evictMaps(previous, value)
}

// evictTail drops what a slice truncation removed: the slot nodes at or past
// the new length and the maps only the dropped elements reached.
func (e *engine) evictTail(n *Node, dropped []any) {
	size := n.Len()
	if size >= len(dropped) {
		return
	}
	for idx := size; idx < len(dropped); idx++ {
		e.evictSlot(n.id.child(itoa(idx)))
	}
	e.evictMaps(dropped[size:], n.Unwrap())
}

func (e *engine) evictMaps(previous, value any) {
	gone := reachableMaps(previous)
	if len(gone) == 0 {
		return
	}
	for ptr := range reachableMaps(value) {
		delete(gone, ptr)
	}
	delete(gone, e.top.id.ptr)
	if len(gone) == 0 {
		return
	}
	for id := range e.nodes {
		if _, ok := gone[id.ptr]; ok {
			delete(e.nodes, id)
		}
	}
	for id := range e.props {
		if _, ok := gone[id.ptr]; ok {
			delete(e.props, id)
		}
	}
}

// reachableMaps returns the address of every map below value, following
// maps, slices and data descriptors. Accessors are not called.
func reachableMaps(value any) map[uintptr]struct{} {
	var found map[uintptr]struct{}
	var slicesSeen map[containerKey]struct{}
	var visit func(value any)
	visit = func(value any) {
		switch v := value.(type) {
		case map[string]any:
			if v == nil {
				return
			}
			ptr := mapIdentity(v).ptr
			if _, ok := found[ptr]; ok {
				return
			}
			if found == nil {
				found = make(map[uintptr]struct{})
			}
			found[ptr] = struct{}{}
			for _, item := range v {
				visit(item)
			}
		case []any:
			if len(v) == 0 {
				return
			}
			key := sliceContainer(v)
			if _, ok := slicesSeen[key]; ok {
				return
			}
			if slicesSeen == nil {
				slicesSeen = make(map[containerKey]struct{})
			}
			slicesSeen[key] = struct{}{}
			for _, item := range v {
				visit(item)
			}
		case *Descriptor:
			if v != nil && !v.IsAccessor() {
				visit(v.Value)
			}
		}
	}
	visit(value)
	return found
}

func (e *engine) evictSlot(slot identity) {
	for id := range e.nodes {
		if id.within(slot) && e.nodes[id] != e.top {
			delete(e.nodes, id)
		}
	}
	for id := range e.props {
		if id.within(slot) {
			delete(e.props, id)
		}
	}
}

// handleChange routes one committed write. Inside a method call the write
// patches the call's snapshot instead of notifying.
func (e *engine) handleChange(op Op, base keypath.Path, key string, previous, value any) {
	if e.unsubscribed {
		return
	}
	if !e.inApply {
		e.onChange(op, base.Concat(key), value, previous)
		return
	}
	if e.applyPrevious != nil && previous != nil && value != nil && key != "length" {
		e.patchSnapshot(base, key, previous)
	}
	e.applyChanged = true
}

// patchSnapshot restores previous at base.key inside the call snapshot,
// shallow-cloning every level between the receiver and base so the snapshot
// stops sharing those containers with the live graph. Only the first write to
// a path, or to anything above or below it, is restored.
func (e *engine) patchSnapshot(base keypath.Path, key string, previous any) {
	if !base.HasPrefix(e.applyPath) {
		return
	}
	target := base.Concat(key)
	for _, done := range e.applyPatched {
		if target.HasPrefix(done) || done.HasPrefix(target) {
			return
		}
	}
	e.applyPatched = append(e.applyPatched, target)
	item := e.applyPrevious
	for _, segment := range base.After(e.applyPath) {
		entry, ok := rawEntry(item, segment)
		if !ok {
			return
		}
		cloned := ShallowClone(resolveEntry(entry))
		if !putEntry(item, segment, cloned) {
			return
		}
		item = cloned
	}
	putEntry(item, key, previous)
}

func (e *engine) resetApply() {
	e.inApply = false
	e.applyChanged = false
	e.applyPath = nil
	e.applyPrevious = nil
	e.applyPatched = nil
}

func (e *engine) unsubscribe() any {
	e.unsubscribed = true
	e.nodes = make(map[identity]*Node)
	e.props = make(map[identity]map[string]*Descriptor)
	e.resetApply()
	return e.top.Unwrap()
}

// rawEntry returns what is stored under key, descriptor included.
func rawEntry(container any, key string) (any, bool) {
	switch c := container.(type) {
	case map[string]any:
		entry, ok := c[key]
		return entry, ok
	case []any:
		if key == "length" {
			return len(c), true
		}
		idx, ok := keypath.Index(key)
		if !ok || idx >= len(c) {
			return nil, false
		}
		return c[idx], true
	default:
		return nil, false
	}
}

// putEntry stores entry under key in place. Slices are never grown.
func putEntry(container any, key string, entry any) bool {
	switch c := container.(type) {
	case map[string]any:
		if c == nil {
			return false
		}
		c[key] = entry
		return true
	case []any:
		idx, ok := keypath.Index(key)
		if !ok || idx >= len(c) {
			return false
		}
		c[idx] = entry
		return true
	default:
		return false
	}
}

func asFunc(value any) (Func, bool) {
	switch fn := value.(type) {
	case Func:
		return fn, fn != nil
	case func(*Node, ...any) (any, error):
		return fn, fn != nil
	default:
		return nil, false
	}
}
