package observe

import (
	"math"
	"reflect"
)

// SameValue is the default equality. Maps, slices, functions, channels and
// pointers compare by identity; floats treat NaN as equal to itself and keep
// +0 and -0 apart; other comparable values use ==. Values of different
// dynamic types are never equal.
func SameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	switch va.Kind() {
	case reflect.Map, reflect.Func, reflect.Chan, reflect.Pointer, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	case reflect.Slice:
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
	case reflect.Float32, reflect.Float64:
		x, y := va.Float(), vb.Float()
		if math.IsNaN(x) && math.IsNaN(y) {
			return true
		}
		return x == y && math.Signbit(x) == math.Signbit(y)
	}
	if va.Comparable() {
		return a == b
	}
	return false
}

// ShallowEqual compares the direct entries of two containers with equals.
// Anything that is not a map[string]any or []any is compared with equals
// directly.
func ShallowEqual(a, b any, equals func(a, b any) bool) bool {
	if equals == nil {
		equals = SameValue
	}
	switch x := a.(type) {
	case map[string]any:
		y, ok := b.(map[string]any)
		if !ok || len(x) != len(y) || (x == nil) != (y == nil) {
			return false
		}
		for key, value := range x {
			other, found := y[key]
			if !found || !equals(value, other) {
				return false
			}
		}
		return true
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !equals(x[i], y[i]) {
				return false
			}
		}
		return true
	default:
		return equals(a, b)
	}
}

func sameDescriptor(a, b *Descriptor) bool {
	if a == nil || b == nil {
		return a == b
	}
	return SameValue(a.Value, b.Value) &&
		sameFunc(a.Get, b.Get) &&
		sameFunc(a.Set, b.Set) &&
		a.Writable == b.Writable &&
		a.Enumerable == b.Enumerable &&
		a.Configurable == b.Configurable
}

func sameFunc(a, b any) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.IsNil() || vb.IsNil() {
		return va.IsNil() && vb.IsNil()
	}
	return va.Pointer() == vb.Pointer()
}
