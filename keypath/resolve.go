package keypath

// Valuer is implemented by stored values that stand in for a plain value, such
// as property descriptors. Resolve reads through them.
type Valuer interface {
	ResolvedValue() any
}

// Resolve walks value along path and returns what it finds. Maps are indexed
// by key, slices by decimal index. A missing segment yields (nil, false).
func Resolve(value any, path Path) (any, bool) {
	current := unwrap(value)
	for _, key := range path {
		next, ok := child(current, key)
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

// Get is Resolve without the found flag.
func Get(value any, path string) any {
	v, _ := Resolve(value, Parse(path))
	return v
}

func child(container any, key string) (any, bool) {
	switch typed := container.(type) {
	case map[string]any:
		v, ok := typed[key]
		if !ok {
			return nil, false
		}
		return unwrap(v), true
	case []any:
		if key == "length" {
			return len(typed), true
		}
		idx, ok := Index(key)
		if !ok || idx >= len(typed) {
			return nil, false
		}
		return unwrap(typed[idx]), true
	default:
		return nil, false
	}
}

func unwrap(v any) any {
	if valuer, ok := v.(Valuer); ok {
		return valuer.ResolvedValue()
	}
	return v
}
