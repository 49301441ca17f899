// Package observer provides a multicast set that does not keep its members
// alive. Members are held through weak pointers keyed by identity; once the
// owner drops its last reference and the collector reclaims the value, the
// entry is purged on the next Add, Remove, Each or Len.
package observer

import (
	"reflect"
	"sync"
	"unsafe"
	"weak"
)

// Container is a weak, identity-keyed set of observers implementing O.
// O is normally an interface type. Only non-nil pointers to values that get
// their own allocation can be weakly referenced: the value must contain a
// pointer or be at least 16 bytes. Add rejects anything else.
//
// Container is safe for concurrent use.
type Container[O any] struct {
	mu      sync.Mutex
	entries map[weak.Pointer[byte]]reflect.Type
}

// New returns an empty container.
func New[O any]() *Container[O] {
	return &Container[O]{entries: make(map[weak.Pointer[byte]]reflect.Type)}
}

// Add registers o. Adding an observer that is already present is a no-op.
// It returns false if o cannot be weakly referenced.
func (c *Container[O]) Add(o O) bool {
	ref, typ, ok := refOf(any(o))
	if !ok {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purgeLocked()
	c.entries[ref] = typ
	return true
}

// Remove unregisters o. Removing an absent observer is a no-op.
func (c *Container[O]) Remove(o O) {
	ref, _, ok := refOf(any(o))
	c.mu.Lock()
	defer c.mu.Unlock()
	if ok {
		delete(c.entries, ref)
	}
	c.purgeLocked()
}

// Len returns the number of live observers.
func (c *Container[O]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purgeLocked()
	return len(c.entries)
}

// Each calls fn for every live observer. Order is unspecified. fn runs
// without the container lock held, so it may call Add or Remove.
func (c *Container[O]) Each(fn func(O)) {
	c.mu.Lock()
	c.purgeLocked()
	refs := make([]weak.Pointer[byte], 0, len(c.entries))
	types := make([]reflect.Type, 0, len(c.entries))
	for ref, typ := range c.entries {
		refs = append(refs, ref)
		types = append(types, typ)
	}
	c.mu.Unlock()

	for i, ref := range refs {
		p := ref.Value()
		if p == nil {
			continue
		}
		o, ok := reflect.NewAt(types[i].Elem(), unsafe.Pointer(p)).Interface().(O)
		if !ok {
			continue
		}
		fn(o)
	}
}

// purgeLocked drops entries whose observer has been collected.
func (c *Container[O]) purgeLocked() {
	for ref := range c.entries {
		if ref.Value() == nil {
			delete(c.entries, ref)
		}
	}
}

// tinyAllocSize mirrors the runtime's tiny allocator block size. Pointer-free
// values smaller than this may share a block with unrelated allocations and
// are then never reclaimed while any of them lives.
const tinyAllocSize = 16

// refOf returns a weak pointer to the value v points at, plus v's pointer type.
func refOf(v any) (weak.Pointer[byte], reflect.Type, bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || !collectable(rv.Type().Elem()) {
		return weak.Pointer[byte]{}, nil, false
	}
	return weak.Make((*byte)(rv.UnsafePointer())), rv.Type(), true
}

// collectable reports whether a value of type t gets its own allocation.
func collectable(t reflect.Type) bool {
	if t.Size() == 0 {
		return false
	}
	return t.Size() >= tinyAllocSize || hasPointers(t)
}

func hasPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.UnsafePointer, reflect.Map, reflect.Chan,
		reflect.Slice, reflect.String, reflect.Func, reflect.Interface:
		return true
	case reflect.Array:
		return t.Len() > 0 && hasPointers(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if hasPointers(t.Field(i).Type) {
				return true
			}
		}
	}
	return false
}
