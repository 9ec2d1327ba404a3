package observe

import (
	"math"
	"slices"
	"sort"
	"strconv"

	"github.com/goliatone/go-tates/keypath"
)

// Kind classifies the value a node stands for.
type Kind uint8

const (
	// KindValue marks a root that could not be observed.
	KindValue Kind = iota
	KindMap
	KindSlice
	KindFunc
)

func (k Kind) String() string {
	switch k {
	case KindMap:
		return "map"
	case KindSlice:
		return "slice"
	case KindFunc:
		return "func"
	default:
		return "value"
	}
}

// Node is the observed handle of one container or method in the graph.
type Node struct {
	engine *engine
	id     identity
	kind   Kind
	path   keypath.Path

	object map[string]any
	owner  *Node
	key    string
}

// Kind reports what the node stands for.
func (n *Node) Kind() Kind {
	return n.kind
}

// Path returns the route from the root to this node as of its last read.
func (n *Node) Path() keypath.Path {
	return slices.Clone(n.path)
}

// Unwrap returns the underlying value without tracking.
func (n *Node) Unwrap() any {
	switch n.kind {
	case KindMap:
		return n.object
	case KindSlice, KindFunc:
		if n.owner == nil {
			return n.engine.root
		}
		entry, ok := rawEntry(n.owner.Unwrap(), n.key)
		if !ok {
			return nil
		}
		return resolveEntry(entry)
	default:
		return n.engine.root
	}
}

// Unsubscribe permanently stops observation when called on the root node and
// returns the raw root. After it, every node operation is a passthrough that
// neither wraps nor notifies. On any other node it returns the node itself.
func (n *Node) Unsubscribe() any {
	if n != n.engine.top {
		return n
	}
	return n.engine.unsubscribe()
}

// Unsubscribed reports whether the engine stopped observing.
func (n *Node) Unsubscribed() bool {
	return n.engine.unsubscribed
}

// Len returns the number of entries of a map or slice node.
func (n *Node) Len() int {
	switch v := n.Unwrap().(type) {
	case map[string]any:
		return len(v)
	case []any:
		return len(v)
	default:
		return 0
	}
}

// Keys lists enumerable keys: sorted map keys, or slice indices in order.
func (n *Node) Keys() []string {
	switch v := n.Unwrap().(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for key, entry := range v {
			if d := asDescriptor(entry); d != nil && !d.Enumerable {
				continue
			}
			keys = append(keys, key)
		}
		sort.Strings(keys)
		return keys
	case []any:
		keys := make([]string, 0, len(v))
		for i, entry := range v {
			if d := asDescriptor(entry); d != nil && !d.Enumerable {
				continue
			}
			keys = append(keys, itoa(i))
		}
		return keys
	default:
		return nil
	}
}

// Has reports whether key is present.
func (n *Node) Has(key string) bool {
	_, ok := rawEntry(n.Unwrap(), key)
	return ok
}

// Index reads a slice element. It is Get with a numeric key.
func (n *Node) Index(i int) any {
	if i < 0 {
		return nil
	}
	return n.Get(itoa(i))
}

// Get reads key. Maps, slices and methods come back as cached *Node handles;
// everything else, ignored keys, shallow engines and read-only
// non-configurable properties return the raw value.
func (n *Node) Get(key string) any {
	e := n.engine
	entry, ok := rawEntry(n.Unwrap(), key)
	if !ok {
		return nil
	}
	value := resolveEntry(entry)
	if e.unsubscribed || e.cfg.shallow || e.ignored(key) || !wrappable(value) {
		return value
	}
	if raw, fixed := e.descriptor(n.id, key, entry).readInvariant(value); fixed {
		return raw
	}
	return n.wrap(key, value)
}

// Lookup resolves a dotted path below the node, wrapping the result like Get.
func (n *Node) Lookup(path string) any {
	var current any = n
	for _, key := range keypath.Parse(path) {
		node, ok := current.(*Node)
		if !ok {
			next, found := keypath.Resolve(current, keypath.Path{key})
			if !found {
				return nil
			}
			current = next
			continue
		}
		current = node.Get(key)
	}
	return current
}

func wrappable(value any) bool {
	switch value.(type) {
	case map[string]any, []any:
		return true
	}
	_, ok := asFunc(value)
	return ok
}

func (n *Node) wrap(key string, value any) any {
	e := n.engine
	path := n.path.Concat(key)
	switch v := value.(type) {
	case map[string]any:
		if v == nil {
			e.log(EventWrapFailed, path, ErrNilMap)
			return value
		}
		return e.node(mapIdentity(v), path, func() *Node {
			return &Node{kind: KindMap, object: v}
		})
	case []any:
		return e.node(n.id.child(key), path, func() *Node {
			return &Node{kind: KindSlice, owner: n, key: key}
		})
	default:
		return e.node(n.id.child(key), path, func() *Node {
			return &Node{kind: KindFunc, owner: n, key: key}
		})
	}
}

// Set writes value under key and reports whether the write was accepted.
// *Node values are unwrapped first. Non-writable properties and accessors
// without a setter refuse the write. A notification is emitted only when the
// key is new or the value differs from the previous one.
func (n *Node) Set(key string, value any) bool {
	e := n.engine
	if node, ok := value.(*Node); ok && node != nil {
		value = node.Unwrap()
	}
	entry, exists := rawEntry(n.Unwrap(), key)
	desc := e.descriptor(n.id, key, entry)
	ignore := e.ignored(key)

	var previous any
	if exists {
		previous = resolveEntry(entry)
	}
	changed := !exists || !e.cfg.equals(previous, value)

	switch {
	case desc.IsAccessor():
		if desc.Set == nil {
			return false
		}
		desc.Set(value)
	case desc != nil:
		if !desc.Writable {
			return false
		}
		desc.Value = value
	case key == "length" && n.kind == KindSlice:
		dropped := n.elements()
		if !n.setLength(value) {
			return false
		}
		e.evictTail(n, dropped)
	default:
		if !n.put(key, value) {
			return false
		}
	}

	if !changed || ignore {
		return true
	}
	e.evict(n, key, previous, value)
	e.handleChange(OpSet, n.path, key, previous, value)
	return true
}

// Delete removes key. Deleting a missing key succeeds without notifying;
// non-configurable properties refuse. Slice elements are cleared to nil
// without shifting.
func (n *Node) Delete(key string) bool {
	e := n.engine
	container := n.Unwrap()
	entry, exists := rawEntry(container, key)
	if !exists {
		return true
	}
	if d := e.descriptor(n.id, key, entry); d != nil && !d.Configurable {
		return false
	}
	previous := resolveEntry(entry)

	switch c := container.(type) {
	case map[string]any:
		delete(c, key)
	case []any:
		idx, ok := keypath.Index(key)
		if !ok {
			return false
		}
		c[idx] = nil
	default:
		return false
	}
	e.invalidate(n.id, key)

	if e.ignored(key) {
		return true
	}
	e.evict(n, key, previous, nil)
	e.handleChange(OpDelete, n.path, key, previous, nil)
	return true
}

// Define installs desc under key. Redefining with an identical descriptor
// succeeds without notifying; non-configurable properties refuse any change.
func (n *Node) Define(key string, desc Descriptor) bool {
	e := n.engine
	if n.kind == KindSlice && key == "length" {
		return false
	}
	entry, exists := rawEntry(n.Unwrap(), key)
	var previous any
	if exists {
		current := e.descriptor(n.id, key, entry)
		if current == nil {
			current = implicitDescriptor(entry)
		}
		if sameDescriptor(current, &desc) {
			return true
		}
		if !current.Configurable {
			return false
		}
		previous = current.ResolvedValue()
	}

	stored := desc
	if !n.put(key, &stored) {
		return false
	}
	e.invalidate(n.id, key)

	if e.ignored(key) {
		return true
	}
	value := stored.ResolvedValue()
	e.evict(n, key, previous, value)
	e.handleChange(OpDefine, n.path, key, previous, value)
	return true
}

// put stores entry under key, growing slices when key is at or past the end.
func (n *Node) put(key string, entry any) bool {
	switch c := n.Unwrap().(type) {
	case map[string]any:
		if c == nil {
			return false
		}
		c[key] = entry
		return true
	case []any:
		idx, ok := keypath.Index(key)
		if !ok {
			return false
		}
		if idx < len(c) {
			c[idx] = entry
			return true
		}
		grown := append(c, make([]any, idx-len(c)+1)...)
		grown[idx] = entry
		return n.store(grown)
	default:
		return false
	}
}

// setLength truncates or extends a slice node.
func (n *Node) setLength(value any) bool {
	size, ok := toLength(value)
	if !ok {
		return false
	}
	current, _ := n.Unwrap().([]any)
	switch {
	case size == len(current):
		return true
	case size < len(current):
		return n.store(current[:size:size])
	default:
		return n.store(append(current, make([]any, size-len(current))...))
	}
}

// store replaces the slice a slice node resolves to.
func (n *Node) store(value []any) bool {
	if n.owner == nil {
		n.engine.root = value
		return true
	}
	container := n.owner.Unwrap()
	entry, ok := rawEntry(container, n.key)
	if !ok {
		return false
	}
	if d := asDescriptor(entry); d != nil {
		if d.IsAccessor() {
			if d.Set == nil {
				return false
			}
			d.Set(value)
			return true
		}
		d.Value = value
		return true
	}
	return putEntry(container, n.key, value)
}

func toLength(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, v >= 0
	case int32:
		return int(v), v >= 0
	case int64:
		return int(v), v >= 0
	case uint:
		return int(v), true
	case float64:
		if v < 0 || v != math.Trunc(v) {
			return 0, false
		}
		return int(v), true
	default:
		return 0, false
	}
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
