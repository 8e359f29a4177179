// Package scan implements the scanning factory (C6): an iterative
// discoverer that turns sensed hardware identities into new objects.
// Grounded on controlbox/src/cbox/ScanningFactory.h and its concrete
// 1-Wire implementation in original_source/app/brewblox/OneWireScanningFactory.h.
package scan

import (
	"brewbox-controlbox/internal/container"
	"brewbox-controlbox/internal/object"
)

// Address identifies a physical device on a bus (e.g. a 1-Wire 64-bit ROM
// code). The scanning factory never interprets the bytes itself beyond
// reading the family code out of the first byte.
type Address [8]byte

// FamilyCode is the first byte of a 1-Wire address, selecting which
// concrete object type a discovered device becomes.
func (a Address) FamilyCode() byte { return a[0] }

// Bus is the physical search interface a scanning factory drives. The
// real 1-Wire driver implementing this is out of scope (§1 Non-goals);
// MockOneWireBus stands in for tests and the S3 scenario.
type Bus interface {
	// ResetSearch restarts iteration from the first device on the bus.
	ResetSearch()
	// Search returns the next device address, or ok=false when the bus
	// has no more devices to report this pass.
	Search() (Address, bool)
}

// Device is the capability a contained object exposes so the scanning
// factory can recognize "this hardware address is already claimed" and
// skip recreating it. Concrete device blocks implement this and expose
// it through Object.Implements(IfaceDevice).
type Device interface {
	DeviceAddress() Address
}

// IfaceDevice is the stable InterfaceID scanning factories query contained
// objects with via Implements, looking for the Device capability.
const IfaceDevice object.InterfaceID = 0xFFFE

// Container is the subset of the object container a scanning factory
// needs: enumerate what's already there to test for duplicate claims.
type Container interface {
	Each(f func(id object.ID, groups container.Groups, obj object.Object))
}

// Builder constructs the object appropriate to a family code. Builders
// are registered once per family code understood by this firmware.
type Builder func(addr Address) object.Object

// Factory is a scanning factory over a single bus: Reset/Scan are called
// repeatedly by the DISCOVER command until Scan returns ok=false.
type Factory struct {
	bus       Bus
	container Container
	builders  map[byte]Builder
}

func NewFactory(bus Bus, container Container, builders map[byte]Builder) *Factory {
	return &Factory{bus: bus, container: container, builders: builders}
}

// Reset restarts the underlying bus search.
func (f *Factory) Reset() { f.bus.ResetSearch() }

// Scan advances the bus search until it finds an address with no
// existing claiming object, then constructs and returns the object
// appropriate to its family code. Returns ok=false once the bus is
// exhausted. Addresses with an unrecognized family code are skipped,
// not returned.
func (f *Factory) Scan() (object.Object, bool) {
	for {
		addr, ok := f.bus.Search()
		if !ok {
			return nil, false
		}
		if f.alreadyClaimed(addr) {
			continue
		}
		build, known := f.builders[addr.FamilyCode()]
		if !known {
			continue
		}
		return build(addr), true
	}
}

func (f *Factory) alreadyClaimed(addr Address) bool {
	claimed := false
	f.container.Each(func(id object.ID, groups container.Groups, obj object.Object) {
		if claimed {
			return
		}
		raw := obj.Implements(IfaceDevice)
		dev, ok := raw.(Device)
		if !ok {
			return
		}
		if dev.DeviceAddress() == addr {
			claimed = true
		}
	})
	return claimed
}

// MockOneWireBus is a test double emulating device discovery from a
// fixed candidate list, grounded on OneWireScanningFactory's "mock
// factory that emulates object discovery" commentary.
type MockOneWireBus struct {
	Candidates []Address
	pos        int
}

func (b *MockOneWireBus) ResetSearch() { b.pos = 0 }

func (b *MockOneWireBus) Search() (Address, bool) {
	if b.pos >= len(b.Candidates) {
		return Address{}, false
	}
	a := b.Candidates[b.pos]
	b.pos++
	return a, true
}
