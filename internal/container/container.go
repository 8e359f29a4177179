// Package container holds the live, ordered set of objects the runtime
// knows about: the id -> object map, the active-groups mask, and the
// wrap-safe update scheduler. Grounded on controlbox/src/cbox/Box.h's
// ObjectContainer.
package container

import (
	"sort"

	"brewbox-controlbox/errcode"
	"brewbox-controlbox/internal/object"
)

// Groups is an 8-bit membership mask. The MSB is reserved for "system":
// if set on an object, that object cannot be deleted, and the bit is
// preserved across any later overwrite of the mask (§3.2).
type Groups uint8

const SystemBit Groups = 0x80

// entry is a contained object plus its container-owned bookkeeping: the
// groups it is a member of, and when the scheduler should next call it.
// liveObj is the object's real state, kept even while groups&activeGroups
// == 0 so it picks back up where it left off once reactivated; what Fetch
// and Each hand back while inactive is an InactiveObject wrapping the
// same TypeID instead.
type entry struct {
	id         object.ID
	groups     Groups
	liveObj    object.Object
	nextUpdate object.UpdateTime
}

func (e *entry) active(activeGroups Groups) bool { return e.groups&activeGroups != 0 }

func (e *entry) visible(activeGroups Groups) object.Object {
	if e.active(activeGroups) {
		return e.liveObj
	}
	return object.NewInactiveObject(e.liveObj.TypeID())
}

// Container is the live id -> object registry.
type Container struct {
	order   []object.ID // ids kept sorted ascending for DISCOVER/LIST
	entries map[object.ID]*entry
	active  Groups
}

// New returns an empty container with every group active by default, so
// a freshly booted system sees everything until something narrows it.
func New() *Container {
	return &Container{
		entries: make(map[object.ID]*entry),
		active:  0xFF,
	}
}

// Add inserts obj under id with the given group membership. If id is
// already taken it returns ObjectNotCreatable and leaves the existing
// entry in place; Add never replaces an entry.
func (c *Container) Add(id object.ID, groups Groups, obj object.Object) error {
	if _, exists := c.entries[id]; exists {
		return errcode.Wrap("Add", errcode.ObjectNotCreatable, nil)
	}
	e := &entry{id: id, groups: groups, liveObj: obj}
	c.entries[id] = e
	c.order = append(c.order, id)
	sort.Slice(c.order, func(i, j int) bool { return c.order[i] < c.order[j] })
	return nil
}

// Remove deletes an object. Objects with the system bit set refuse
// deletion (§3.2).
func (c *Container) Remove(id object.ID) error {
	e, ok := c.entries[id]
	if !ok {
		return errcode.Wrap("Remove", errcode.InvalidObjectID, nil)
	}
	if e.groups&SystemBit != 0 {
		return errcode.Wrap("Remove", errcode.ObjectNotDeletable, nil)
	}
	delete(c.entries, id)
	for i, oid := range c.order {
		if oid == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

// Fetch resolves id to the object visible under the current active-group
// mask: the live object if its groups intersect activeGroups, otherwise
// an InactiveObject carrying only its TypeID (§3.2). Satisfies
// lookup.Container.
func (c *Container) Fetch(id object.ID) (object.Object, bool) {
	e, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	return e.visible(c.active), true
}

// Groups reports the group membership of id, or 0 if absent.
func (c *Container) Groups(id object.ID) (Groups, bool) {
	e, ok := c.entries[id]
	if !ok {
		return 0, false
	}
	return e.groups, true
}

// SetGroups overwrites the group membership of id. The system bit is
// preserved across the overwrite regardless of what groups requests
// (§3.2: "the bit is preserved across overwrites of the group mask").
func (c *Container) SetGroups(id object.ID, groups Groups) error {
	e, ok := c.entries[id]
	if !ok {
		return errcode.Wrap("SetGroups", errcode.InvalidObjectID, nil)
	}
	e.groups = (groups &^ SystemBit) | (e.groups & SystemBit)
	return nil
}

// ActiveGroups reports the currently active group mask.
func (c *Container) ActiveGroups() Groups { return c.active }

// Each calls f for every contained object in ascending id order, with the
// same active/inactive substitution Fetch applies.
func (c *Container) Each(f func(id object.ID, groups Groups, obj object.Object)) {
	for _, id := range c.order {
		e := c.entries[id]
		f(e.id, e.groups, e.visible(c.active))
	}
}

// Update advances the scheduler by one tick: every active object whose
// nextUpdate is Due is called, and its returned next-update time
// recorded. Inactive objects are skipped entirely (§3.2).
func (c *Container) Update(now object.UpdateTime) {
	for _, id := range c.order {
		e := c.entries[id]
		if !e.active(c.active) {
			continue
		}
		if !object.Due(now, e.nextUpdate) {
			continue
		}
		e.nextUpdate = e.liveObj.Update(now)
	}
}

// ForcedUpdate calls every active object's Update regardless of its
// scheduled time, e.g. right after SetActiveGroupsAndUpdateObjects
// reactivates a group, so freshly-activated objects get to run once
// before the next natural tick.
func (c *Container) ForcedUpdate(now object.UpdateTime) {
	for _, id := range c.order {
		e := c.entries[id]
		if !e.active(c.active) {
			continue
		}
		e.nextUpdate = e.liveObj.Update(now)
	}
}

// SetActiveGroupsAndUpdateObjects changes which groups are active, then
// forces one Update pass so newly (re)activated objects run immediately
// instead of waiting for their last-scheduled time (§4.3
// "setActiveGroupsAndUpdateObjects(mask)"). Objects that become inactive
// keep their live state internally; only what Fetch/Each hand out
// changes to InactiveObject.
func (c *Container) SetActiveGroupsAndUpdateObjects(groups Groups, now object.UpdateTime) {
	c.active = groups
	c.ForcedUpdate(now)
}
