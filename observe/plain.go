package observe

import (
	"maps"
	"reflect"
	"slices"
)

// Plain returns value with every *Node replaced by its underlying value and
// every *Descriptor replaced by the value a read would observe. Containers are
// copied only when something beneath them had to be replaced, so the result
// may share memory with the input. A container reached again while it is
// still being resolved is returned as is, which keeps cyclic graphs finite.
func Plain(value any) any {
	p := plainer{seen: make(map[containerKey]resolved)}
	out, _ := p.plain(value)
	return out
}

type containerKey struct {
	ptr uintptr
	len int
}

func sliceContainer(s []any) containerKey {
	return containerKey{ptr: uintptr(reflect.ValueOf(s).UnsafePointer()), len: len(s)}
}

type resolved struct {
	value    any
	replaced bool
	pending  bool
}

type plainer struct {
	seen map[containerKey]resolved
}

func (p plainer) plain(value any) (any, bool) {
	switch v := value.(type) {
	case *Node:
		if v == nil {
			return nil, true
		}
		out, _ := p.plain(v.Unwrap())
		return out, true
	case *Descriptor:
		out, _ := p.plain(v.ResolvedValue())
		return out, true
	case map[string]any:
		if v == nil {
			return v, false
		}
		key := containerKey{ptr: mapIdentity(v).ptr}
		if done, ok := p.seen[key]; ok {
			if done.pending {
				return v, false
			}
			return done.value, done.replaced
		}
		p.seen[key] = resolved{pending: true}
		var out map[string]any
		for k, item := range v {
			next, replaced := p.plain(item)
			if !replaced {
				continue
			}
			if out == nil {
				out = maps.Clone(v)
			}
			out[k] = next
		}
		if out == nil {
			p.seen[key] = resolved{value: v}
			return v, false
		}
		p.seen[key] = resolved{value: out, replaced: true}
		return out, true
	case []any:
		if len(v) == 0 {
			return v, false
		}
		key := sliceContainer(v)
		if done, ok := p.seen[key]; ok {
			if done.pending {
				return v, false
			}
			return done.value, done.replaced
		}
		p.seen[key] = resolved{pending: true}
		var out []any
		for i, item := range v {
			next, replaced := p.plain(item)
			if !replaced {
				continue
			}
			if out == nil {
				out = slices.Clone(v)
			}
			out[i] = next
		}
		if out == nil {
			p.seen[key] = resolved{value: v}
			return v, false
		}
		p.seen[key] = resolved{value: out, replaced: true}
		return out, true
	default:
		return value, false
	}
}

// ShallowClone copies the top level of a map[string]any or []any. Other
// values are returned unchanged.
func ShallowClone(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return maps.Clone(v)
	case []any:
		return slices.Clone(v)
	default:
		return value
	}
}
