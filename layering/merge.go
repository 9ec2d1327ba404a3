// Package layering holds the structural helpers shared by the state layers:
// deep cloning of value graphs and strongest-first deep merging.
package layering

import "reflect"

// Clone returns a deep copy of value. Maps, slices, arrays, pointers and
// exported struct fields are copied recursively; functions and channels are
// shared. A container reached twice is copied once, so shared and cyclic
// references keep their shape in the copy.
func Clone[T any](value T) T {
	var zero T
	cloned := newCloner().clone(reflect.ValueOf(value))
	if !cloned.IsValid() {
		return zero
	}
	return convert[T](cloned)
}

// MergeLayers composes values ordered from strongest to weakest, returning a
// new value that keeps explicit settings from stronger layers while filling any
// missing data from weaker ones. Maps merge key by key; slices are taken whole
// from the strongest layer that sets them.
func MergeLayers[T any](layers ...T) T {
	var zero T
	if len(layers) == 0 {
		return zero
	}

	c := newCloner()
	merged := c.clone(reflect.ValueOf(layers[len(layers)-1]))
	for i := len(layers) - 2; i >= 0; i-- {
		merged = c.merge(reflect.ValueOf(layers[i]), merged)
	}

	if !merged.IsValid() {
		return zero
	}
	return convert[T](merged)
}

func convert[T any](v reflect.Value) T {
	target := reflect.TypeOf((*T)(nil)).Elem()
	if v.Type() != target {
		result := reflect.New(target).Elem()
		result.Set(v.Convert(target))
		return result.Interface().(T)
	}
	return v.Interface().(T)
}

// cloner carries the copies made during one Clone or MergeLayers call, keyed
// by container address, so repeated containers are copied once.
type cloner struct {
	seen    map[visit]reflect.Value
	merging map[visit]struct{}
}

type visit struct {
	ptr uintptr
	typ reflect.Type
	len int
}

func newCloner() *cloner {
	return &cloner{
		seen:    make(map[visit]reflect.Value),
		merging: make(map[visit]struct{}),
	}
}

func visitOf(v reflect.Value) visit {
	key := visit{ptr: uintptr(v.UnsafePointer()), typ: v.Type()}
	if v.Kind() == reflect.Slice {
		key.len = v.Len()
	}
	return key
}

func (c *cloner) merge(strong, weak reflect.Value) reflect.Value {
	if !strong.IsValid() {
		return c.clone(weak)
	}
	switch strong.Kind() {
	case reflect.Map, reflect.Slice, reflect.Pointer:
		if strong.IsNil() {
			break
		}
		key := visitOf(strong)
		if _, ok := c.merging[key]; ok {
			return c.clone(strong)
		}
		c.merging[key] = struct{}{}
		defer delete(c.merging, key)
	}

	switch strong.Kind() {
	case reflect.Pointer:
		if strong.IsNil() {
			return c.clone(weak)
		}
		var weakElem reflect.Value
		if weak.IsValid() && weak.Kind() == reflect.Pointer && !weak.IsNil() {
			weakElem = weak.Elem()
		}
		merged := c.merge(strong.Elem(), weakElem)
		result := reflect.New(strong.Type().Elem())
		result.Elem().Set(merged)
		return result
	case reflect.Interface:
		if strong.IsNil() {
			return c.clone(weak)
		}
		var weakElem reflect.Value
		if weak.IsValid() && weak.Kind() == reflect.Interface && !weak.IsNil() {
			weakElem = weak.Elem()
		} else if weak.IsValid() && weak.Kind() != reflect.Interface {
			weakElem = weak
		}
		merged := c.merge(strong.Elem(), weakElem)
		return merged.Convert(strong.Type())
	case reflect.Struct:
		if opaque(strong.Type()) {
			return c.clone(strong)
		}
		result := reflect.New(strong.Type()).Elem()
		var weakStruct reflect.Value
		if weak.IsValid() && weak.Type() == strong.Type() {
			weakStruct = weak
		}
		for i := 0; i < strong.NumField(); i++ {
			field := result.Field(i)
			if !field.CanSet() {
				continue
			}
			var weakField reflect.Value
			if weakStruct.IsValid() {
				weakField = weakStruct.Field(i)
			}
			merged := c.merge(strong.Field(i), weakField)
			field.Set(merged)
		}
		return result
	case reflect.Map:
		if strong.IsNil() {
			return c.clone(weak)
		}
		result := reflect.MakeMapWithSize(strong.Type(), strong.Len())
		if weak.IsValid() && weak.Kind() == reflect.Map && !weak.IsNil() {
			iter := weak.MapRange()
			for iter.Next() {
				result.SetMapIndex(iter.Key(), c.clone(iter.Value()))
			}
		}
		iter := strong.MapRange()
		for iter.Next() {
			key := iter.Key()
			value := iter.Value()
			existing := result.MapIndex(key)
			if existing.IsValid() {
				result.SetMapIndex(key, c.merge(value, existing))
				continue
			}
			result.SetMapIndex(key, c.clone(value))
		}
		return result
	case reflect.Slice:
		if strong.IsNil() {
			return c.clone(weak)
		}
		result := reflect.MakeSlice(strong.Type(), strong.Len(), strong.Len())
		for i := 0; i < strong.Len(); i++ {
			result.Index(i).Set(c.clone(strong.Index(i)))
		}
		return result
	case reflect.Array:
		result := reflect.New(strong.Type()).Elem()
		for i := 0; i < strong.Len(); i++ {
			var weakElem reflect.Value
			if weak.IsValid() && weak.Kind() == reflect.Array && weak.Len() > i {
				weakElem = weak.Index(i)
			}
			result.Index(i).Set(c.merge(strong.Index(i), weakElem))
		}
		return result
	default:
		return c.clone(strong)
	}
}

func (c *cloner) clone(v reflect.Value) reflect.Value {
	if !v.IsValid() {
		return v
	}

	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		if opaque(v.Type().Elem()) {
			return v
		}
		key := visitOf(v)
		if done, ok := c.seen[key]; ok {
			return done
		}
		clone := reflect.New(v.Type().Elem())
		c.seen[key] = clone
		clone.Elem().Set(c.clone(v.Elem()))
		return clone
	case reflect.Interface:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		elem := c.clone(v.Elem())
		if !elem.IsValid() {
			return reflect.Zero(v.Type())
		}
		return elem.Convert(v.Type())
	case reflect.Struct:
		clone := reflect.New(v.Type()).Elem()
		if opaque(v.Type()) {
			clone.Set(v)
			return clone
		}
		for i := 0; i < v.NumField(); i++ {
			field := clone.Field(i)
			if !field.CanSet() {
				continue
			}
			field.Set(c.clone(v.Field(i)))
		}
		return clone
	case reflect.Map:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		key := visitOf(v)
		if done, ok := c.seen[key]; ok {
			return done
		}
		clone := reflect.MakeMapWithSize(v.Type(), v.Len())
		c.seen[key] = clone
		iter := v.MapRange()
		for iter.Next() {
			clone.SetMapIndex(iter.Key(), c.clone(iter.Value()))
		}
		return clone
	case reflect.Slice:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		key := visitOf(v)
		if done, ok := c.seen[key]; ok {
			return done
		}
		clone := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		c.seen[key] = clone
		for i := 0; i < v.Len(); i++ {
			clone.Index(i).Set(c.clone(v.Index(i)))
		}
		return clone
	case reflect.Array:
		clone := reflect.New(v.Type()).Elem()
		for i := 0; i < v.Len(); i++ {
			clone.Index(i).Set(c.clone(v.Index(i)))
		}
		return clone
	default:
		if !v.CanInterface() {
			return v
		}
		return reflect.ValueOf(v.Interface())
	}
}

// opaque reports struct types with unexported fields, such as time.Time.
// They are copied by value and never rebuilt field by field.
func opaque(t reflect.Type) bool {
	if t.Kind() != reflect.Struct {
		return false
	}
	for i := 0; i < t.NumField(); i++ {
		if !t.Field(i).IsExported() {
			return true
		}
	}
	return false
}
