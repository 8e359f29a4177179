// Package object defines the capability set every control object exposes
// to the runtime: stream in/out, a persisted form, a scheduled update, and
// an interface query used for polymorphic lookup. Grounded on
// controlbox/src/cbox/ContainedObject.h, which replaces C++'s
// multi-interface inheritance with exactly this flat capability set.
package object

import (
	"brewbox-controlbox/errcode"
	"brewbox-controlbox/internal/stream"
)

// ID identifies an object uniquely within a container. 0 means unset/absent.
type ID uint16

// TypeID is a stable, opaque token naming an object's concrete type.
type TypeID uint16

// InterfaceID is a stable, opaque token naming a capability an object may
// additionally implement.
type InterfaceID uint16

// UserStart is the first id available for user (non-system) objects;
// 1..UserStart-1 is reserved for the fixed system object catalogue.
const UserStart ID = 100

// UpdateTime is a wrap-safe 32-bit millisecond counter.
type UpdateTime uint32

const overflowGuard UpdateTime = 1 << 31

// Due reports whether next has arrived relative to now, tolerant of 32-bit
// wraparound (§3.1, §4.3): overflowGuard-now+next <= overflowGuard.
func Due(now, next UpdateTime) bool {
	return overflowGuard-now+next <= overflowGuard
}

// Never is a next-update time that Due will not fire against for as long
// as practically possible relative to now; the scheduler treats this as
// "don't call update again on a fixed cadence".
func Never(now UpdateTime) UpdateTime { return now + overflowGuard - 1 }

// Object is the capability set every control object exposes.
type Object interface {
	TypeID() TypeID
	// StreamTo writes the live representation, including computed /
	// read-only fields.
	StreamTo(out stream.Output) error
	// StreamFrom applies settings read from in (e.g. on WRITE_OBJECT).
	StreamFrom(in stream.Input) error
	// StreamPersistedTo writes the persisted representation, typically
	// only user settings, excluding computed fields.
	StreamPersistedTo(out stream.Output) error
	// Update is called by the container's scheduler and returns the next
	// time it wishes to be called again.
	Update(now UpdateTime) UpdateTime
	// Implements returns a reference usable as iface, or nil if this
	// object does not expose it. Implements(own TypeID) must return self.
	Implements(iface InterfaceID) any
}

// InactiveObject is what a group-deactivated or unloadable object is
// replaced with: it retains only the original TypeID, refuses streamFrom,
// and never asks to be scheduled again.
type InactiveObject struct {
	OrigType TypeID
}

func NewInactiveObject(t TypeID) *InactiveObject { return &InactiveObject{OrigType: t} }

func (o *InactiveObject) TypeID() TypeID { return o.OrigType }

func (o *InactiveObject) StreamTo(out stream.Output) error { return nil }

func (o *InactiveObject) StreamFrom(in stream.Input) error {
	return errcode.Wrap("StreamFrom", errcode.ObjectNotWritable, nil)
}

func (o *InactiveObject) StreamPersistedTo(out stream.Output) error { return nil }

func (o *InactiveObject) Update(now UpdateTime) UpdateTime { return Never(now) }

func (o *InactiveObject) Implements(iface InterfaceID) any { return nil }

// Factory constructs a fresh, default-configured object of a given TypeID
// for CREATE_OBJECT and storage load; the caller then applies the
// persisted or wire bytes through StreamFrom.
type Factory func() Object

// FactoryRegistry maps TypeID to Factory. Left open (not a closed tagged
// variant set) per the design notes: "the TypeId -> factory table is open".
type FactoryRegistry struct {
	m map[TypeID]Factory
}

func NewFactoryRegistry() *FactoryRegistry { return &FactoryRegistry{m: map[TypeID]Factory{}} }

func (r *FactoryRegistry) Register(t TypeID, f Factory) { r.m[t] = f }

func (r *FactoryRegistry) New(t TypeID) (Object, bool) {
	f, ok := r.m[t]
	if !ok {
		return nil, false
	}
	return f(), true
}
