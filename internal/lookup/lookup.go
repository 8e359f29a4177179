// Package lookup implements the weak, ID-based, interface-checked handle
// (C5) that control objects use to reference each other without owning
// each other, breaking the cycles a shared-pointer design would create.
// No original_source header defining this handle (e.g. CboxPtr.h) was
// retrieved into the pack; this is derived from how Box.h's command
// handlers resolve an id to an object on demand, not a direct port.
package lookup

import "brewbox-controlbox/internal/object"

// Container is the subset of the object container a Lookup needs: resolve
// an id to its currently active object. A weak reference, re-resolved on
// every use — the lookup never owns the target.
type Container interface {
	Fetch(id object.ID) (object.Object, bool)
}

// Lookup is a lightweight, copyable, ID-addressed reference to an object
// expected to implement IFace is checked on every Lock call.
type Lookup struct {
	container Container
	id        object.ID
}

// New binds a Lookup to a container; the id is typically set later via
// SetID once it is known (e.g. after decoding a WRITE_OBJECT payload).
func New(c Container) Lookup { return Lookup{container: c} }

func (l *Lookup) SetID(id object.ID) { l.id = id }
func (l Lookup) GetID() object.ID    { return l.id }

// Lock resolves the handle: container.Fetch(id) -> obj; obj.Implements
// (iface). Any step failing yields (zero, false). The returned reference
// participates in keep-alive semantics only for the duration of the
// expression that obtained it — callers must not retain it past the
// current update/command. iface is the stable InterfaceID the caller
// expects T to correspond to (own TypeID, cast to InterfaceID, resolves
// to the object itself).
func Lock[T any](l Lookup, iface object.InterfaceID) (T, bool) {
	var zero T
	if l.container == nil || l.id == 0 {
		return zero, false
	}
	obj, ok := l.container.Fetch(l.id)
	if !ok || obj == nil {
		return zero, false
	}
	raw := obj.Implements(iface)
	if raw == nil {
		return zero, false
	}
	v, ok := raw.(T)
	return v, ok
}
