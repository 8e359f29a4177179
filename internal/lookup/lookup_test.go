package lookup

import (
	"testing"

	"brewbox-controlbox/internal/object"
	"brewbox-controlbox/internal/stream"
)

const ifaceThing object.InterfaceID = 42

type thing interface{ Poke() int }

type thingObj struct{ n int }

func (o *thingObj) TypeID() object.TypeID                     { return 1 }
func (o *thingObj) StreamTo(out stream.Output) error          { return nil }
func (o *thingObj) StreamFrom(in stream.Input) error           { return nil }
func (o *thingObj) StreamPersistedTo(out stream.Output) error  { return nil }
func (o *thingObj) Update(now object.UpdateTime) object.UpdateTime { return object.Never(now) }
func (o *thingObj) Poke() int                                  { return o.n }
func (o *thingObj) Implements(iface object.InterfaceID) any {
	if iface == ifaceThing {
		return thing(o)
	}
	return nil
}

type fakeContainer struct {
	m map[object.ID]object.Object
}

func (c *fakeContainer) Fetch(id object.ID) (object.Object, bool) {
	o, ok := c.m[id]
	return o, ok
}

func TestLockResolvesMatchingInterface(t *testing.T) {
	c := &fakeContainer{m: map[object.ID]object.Object{100: &thingObj{n: 9}}}
	l := New(c)
	l.SetID(100)
	got, ok := Lock[thing](l, ifaceThing)
	if !ok {
		t.Fatal("Lock failed, want success")
	}
	if got.Poke() != 9 {
		t.Errorf("Poke() = %d, want 9", got.Poke())
	}
}

func TestLockFailsOnMissingID(t *testing.T) {
	c := &fakeContainer{m: map[object.ID]object.Object{}}
	l := New(c)
	l.SetID(999)
	if _, ok := Lock[thing](l, ifaceThing); ok {
		t.Error("Lock succeeded, want failure for unknown id")
	}
}

func TestLockFailsOnWrongInterface(t *testing.T) {
	c := &fakeContainer{m: map[object.ID]object.Object{100: &thingObj{n: 9}}}
	l := New(c)
	l.SetID(100)
	const other object.InterfaceID = 7
	if _, ok := Lock[thing](l, other); ok {
		t.Error("Lock succeeded for an interface the object doesn't implement")
	}
}

func TestLockFailsOnUnsetID(t *testing.T) {
	c := &fakeContainer{m: map[object.ID]object.Object{100: &thingObj{n: 9}}}
	l := New(c)
	if _, ok := Lock[thing](l, ifaceThing); ok {
		t.Error("Lock succeeded with no id set")
	}
	if l.GetID() != 0 {
		t.Errorf("GetID() = %d, want 0", l.GetID())
	}
}
