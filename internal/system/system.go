// Package system assembles the fixed, pre-populated system object
// catalogue (ids 1..userStart-1, §6 "System objects") and the bootstrap
// wiring that ties container, storage, dispatcher and scanning factories
// into one running instance. Grounded on controlbox/src/cbox/Box.h's
// construction sequence and the teacher's services/bridge boot wiring.
package system

import (
	"log/slog"

	"brewbox-controlbox/errcode"
	"brewbox-controlbox/internal/blocks"
	"brewbox-controlbox/internal/container"
	"brewbox-controlbox/internal/dispatch"
	"brewbox-controlbox/internal/object"
	"brewbox-controlbox/internal/scan"
	"brewbox-controlbox/internal/storage"
	"brewbox-controlbox/internal/stream"
)

const (
	// IDSystemInfo through IDOneWireBus occupy the fixed low ids §6
	// reserves for the system catalogue; they sit below object.UserStart.
	IDSystemInfo   object.ID = 1
	IDGroups       object.ID = 2
	IDOneWireBus   object.ID = 3
)

const (
	TypeSystemInfo   object.TypeID = 1
	TypeGroups       object.TypeID = 2
	TypeOneWireBus   object.TypeID = 3
)

// Version is the firmware/version string SystemInfo reports. Set at link
// time in the original firmware; a plain constant here since this
// rendition has no build-info injection step.
const Version = "brewbox-controlbox/0.1"

// SystemInfo is a static, read-only identity object: WRITE_OBJECT against
// it always fails (§3.2 "system objects ... some, like SystemInfo, refuse
// all writes").
type SystemInfo struct{}

func NewSystemInfo() *SystemInfo { return &SystemInfo{} }

func (s *SystemInfo) TypeID() object.TypeID { return TypeSystemInfo }

func (s *SystemInfo) StreamTo(out stream.Output) error {
	return out.WriteBuffer([]byte(Version))
}

func (s *SystemInfo) StreamFrom(in stream.Input) error {
	return errNotWritable()
}

func (s *SystemInfo) StreamPersistedTo(out stream.Output) error { return nil }

func (s *SystemInfo) Update(now object.UpdateTime) object.UpdateTime { return object.Never(now) }

func (s *SystemInfo) Implements(iface object.InterfaceID) any {
	if iface == object.InterfaceID(TypeSystemInfo) {
		return s
	}
	return nil
}

// Groups is the live object-side view of the container's activeGroups
// mask (§4.3 "setActiveGroupsAndUpdateObjects"): reading/writing it is how
// a client changes which groups are active, routed through a Container
// that owns the actual mask and scheduler.
type Groups struct {
	objects *container.Container
	now     func() object.UpdateTime
}

func NewGroups(objects *container.Container, now func() object.UpdateTime) *Groups {
	return &Groups{objects: objects, now: now}
}

func (g *Groups) TypeID() object.TypeID { return TypeGroups }

func (g *Groups) StreamTo(out stream.Output) error {
	return out.Write(byte(g.objects.ActiveGroups()))
}

func (g *Groups) StreamFrom(in stream.Input) error {
	b, ok := in.Next()
	if !ok {
		return errNotWritable()
	}
	g.objects.SetActiveGroupsAndUpdateObjects(container.Groups(b), g.now())
	return nil
}

func (g *Groups) StreamPersistedTo(out stream.Output) error {
	return out.Write(byte(g.objects.ActiveGroups()))
}

func (g *Groups) Update(now object.UpdateTime) object.UpdateTime { return object.Never(now) }

func (g *Groups) Implements(iface object.InterfaceID) any {
	if iface == object.InterfaceID(TypeGroups) {
		return g
	}
	return nil
}

// OneWireBusMock wraps scan.MockOneWireBus as a contained object so it is
// visible through READ_OBJECT/LIST_ACTIVE_OBJECTS like any other system
// object, per §4.14 "placeholder bus object ... a test/sim stand-in, not
// a hardware driver".
type OneWireBusMock struct {
	bus *scan.MockOneWireBus
}

func NewOneWireBusMock() *OneWireBusMock {
	return &OneWireBusMock{bus: &scan.MockOneWireBus{}}
}

func (b *OneWireBusMock) Bus() *scan.MockOneWireBus { return b.bus }

// SetCandidates configures the fixed discovery list the S3 scenario and
// DISCOVER_NEW_OBJECTS walk.
func (b *OneWireBusMock) SetCandidates(addrs []scan.Address) { b.bus.Candidates = addrs }

func (b *OneWireBusMock) TypeID() object.TypeID { return TypeOneWireBus }

func (b *OneWireBusMock) StreamTo(out stream.Output) error {
	return out.Write(byte(len(b.bus.Candidates)))
}

func (b *OneWireBusMock) StreamFrom(in stream.Input) error { return errNotWritable() }

func (b *OneWireBusMock) StreamPersistedTo(out stream.Output) error { return nil }

func (b *OneWireBusMock) Update(now object.UpdateTime) object.UpdateTime { return object.Never(now) }

func (b *OneWireBusMock) Implements(iface object.InterfaceID) any {
	if iface == object.InterfaceID(TypeOneWireBus) {
		return b
	}
	return nil
}

func errNotWritable() error {
	return errcode.Wrap("StreamFrom", errcode.ObjectNotWritable, nil)
}

// Runtime bundles everything Bootstrap wires together: the live object
// graph, persistence engine, command dispatcher, and the bus/factory
// registries a caller needs to drive scanning or register additional
// block types.
type Runtime struct {
	Objects    *container.Container
	Store      *storage.Engine
	Factories  *object.FactoryRegistry
	Dispatcher *dispatch.Dispatcher
	Groups     *Groups
	OneWireBus *OneWireBusMock
}

// Config supplies the host-specific pieces Bootstrap cannot default:
// persisted storage backing, a clock, a watchdog hook, a reboot handler
// and a logger.
type Config struct {
	Backing  storage.Backing
	Now      func() object.UpdateTime
	Watchdog storage.WatchdogKicker
	Reboot   dispatch.Rebooter
	Log      *slog.Logger
}

// Bootstrap constructs a fresh runtime: opens storage, builds the
// container, registers the system catalogue (non-deletable, ids 1..3)
// and every blocks.* factory, replays persisted objects, and returns a
// ready-to-drive Dispatcher. Grounded on the teacher's services/bridge
// boot sequence, adapted from message-bus wiring to container/dispatcher
// wiring.
func Bootstrap(cfg Config) (*Runtime, error) {
	if cfg.Now == nil {
		cfg.Now = func() object.UpdateTime { return 0 }
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	store, err := storage.Open(cfg.Backing, cfg.Watchdog, log)
	if err != nil {
		return nil, err
	}

	objects := container.New()

	info := NewSystemInfo()
	_ = objects.Add(IDSystemInfo, container.SystemBit|0xFF, info)

	groups := NewGroups(objects, cfg.Now)
	_ = objects.Add(IDGroups, container.SystemBit|0xFF, groups)

	oneWire := NewOneWireBusMock()
	_ = objects.Add(IDOneWireBus, container.SystemBit|0xFF, oneWire)

	factories := object.NewFactoryRegistry()
	registerBlockFactories(factories, objects)

	replayPersisted(objects, store, factories, log)

	scanners := []*scan.Factory{
		scan.NewFactory(oneWire.Bus(), objects, oneWireBuilders(objects)),
	}

	d := dispatch.New(objects, store, factories, scanners, cfg.Reboot, log)

	return &Runtime{
		Objects:    objects,
		Store:      store,
		Factories:  factories,
		Dispatcher: d,
		Groups:     groups,
		OneWireBus: oneWire,
	}, nil
}

// registerBlockFactories wires every blocks.* TypeID to a constructor
// producing a freshly-default-configured instance; CREATE_OBJECT and
// storage replay both apply a StreamFrom pass immediately afterward.
func registerBlockFactories(r *object.FactoryRegistry, c *container.Container) {
	r.Register(blocks.TypeTempSensorMock, func() object.Object {
		return blocks.NewTempSensorMock()
	})
	r.Register(blocks.TypeCombiSensor, func() object.Object {
		return blocks.NewCombiSensor(c)
	})
	r.Register(blocks.TypeSetpointSensorPair, func() object.Object {
		return blocks.NewSetpointSensorPair(c)
	})
	r.Register(blocks.TypePid, func() object.Object {
		return blocks.NewPidBlock(c)
	})
	r.Register(blocks.TypeActuatorPwm, func() object.Object {
		return blocks.NewActuatorPwmBlock(c, 4000)
	})
	r.Register(blocks.TypeDigitalActuator, func() object.Object {
		return blocks.NewDigitalActuatorBlock(&noopDriver{}, 0)
	})
	r.Register(blocks.TypeMutex, func() object.Object {
		return blocks.NewMutexBlock()
	})
	r.Register(blocks.TypeAnalogActuatorMock, func() object.Object {
		return blocks.NewAnalogActuatorMock(0, 0)
	})
}

// noopDriver is the factory-time placeholder a freshly CREATE_OBJECT'd
// DigitalActuatorBlock gets; real IO wiring (out of scope, §1) would
// substitute a concrete Driver per physical channel at board bring-up.
type noopDriver struct{ active bool }

func (d *noopDriver) Write(active bool) error { d.active = active; return nil }
func (d *noopDriver) Read() (bool, error)      { return d.active, nil }

// replayPersisted rebuilds the in-memory object graph from storage at
// boot, matching §4.3's "on boot, replay every persisted object through
// its factory and StreamFrom". Entries whose TypeID has no registered
// factory, or whose stream fails to apply, are skipped and logged rather
// than aborting the whole replay.
func replayPersisted(objects *container.Container, store *storage.Engine, factories *object.FactoryRegistry, log *slog.Logger) {
	_ = store.RetrieveAll(func(id uint16, groups byte, typeID uint16, in stream.Input) error {
		if object.ID(id) < object.UserStart {
			return nil // system objects are never persisted entries
		}
		obj, ok := factories.New(object.TypeID(typeID))
		if !ok {
			log.Warn("replay: unknown type, skipping", "id", id, "typeID", typeID)
			return nil
		}
		if err := obj.StreamFrom(in); err != nil {
			log.Warn("replay: StreamFrom failed, skipping", "id", id, "err", err)
			return nil
		}
		if err := objects.Add(object.ID(id), container.Groups(groups), obj); err != nil {
			log.Warn("replay: could not add to container, skipping", "id", id, "err", err)
		}
		return nil
	})
}

// oneWireBuilders is the (currently empty) family-code -> builder table
// for 1-Wire device discovery; §1 puts concrete device drivers out of
// scope, so no family codes are registered and DISCOVER_NEW_OBJECTS over
// the mock bus reports every candidate as unrecognized until a scenario
// test registers its own builder via scan.NewFactory directly.
func oneWireBuilders(objects *container.Container) map[byte]scan.Builder {
	return map[byte]scan.Builder{}
}
