package observe

// Descriptor is stored in place of a plain value when a property needs flags
// or accessors. A plain value stored in a map or slice behaves as a writable,
// enumerable, configurable data property.
//
// A descriptor with Get or Set is an accessor property; Value and Writable are
// ignored for it.
type Descriptor struct {
	Value        any
	Get          func() any
	Set          func(any)
	Writable     bool
	Enumerable   bool
	Configurable bool
}

// DataProperty returns a plain writable, enumerable, configurable descriptor
// for value.
func DataProperty(value any) Descriptor {
	return Descriptor{Value: value, Writable: true, Enumerable: true, Configurable: true}
}

// ReadOnly returns a non-writable, non-configurable descriptor for value.
func ReadOnly(value any) Descriptor {
	return Descriptor{Value: value, Enumerable: true}
}

// IsAccessor reports whether d is backed by Get/Set functions.
func (d *Descriptor) IsAccessor() bool {
	return d != nil && (d.Get != nil || d.Set != nil)
}

// ResolvedValue returns the value a read observes: the getter's result for
// accessors, Value otherwise.
func (d *Descriptor) ResolvedValue() any {
	if d == nil {
		return nil
	}
	if d.IsAccessor() {
		if d.Get == nil {
			return nil
		}
		return d.Get()
	}
	return d.Value
}

// readInvariant reports whether reads must bypass wrapping for this property,
// and the value they observe in that case.
func (d *Descriptor) readInvariant(value any) (any, bool) {
	if d == nil || d.Configurable {
		return nil, false
	}
	if d.Set != nil && d.Get == nil {
		return nil, true
	}
	if !d.IsAccessor() && !d.Writable {
		return value, true
	}
	return nil, false
}

func asDescriptor(entry any) *Descriptor {
	if d, ok := entry.(*Descriptor); ok && d != nil {
		return d
	}
	return nil
}

func implicitDescriptor(entry any) *Descriptor {
	if d := asDescriptor(entry); d != nil {
		return d
	}
	d := DataProperty(entry)
	return &d
}

func resolveEntry(entry any) any {
	if d := asDescriptor(entry); d != nil {
		return d.ResolvedValue()
	}
	return entry
}
