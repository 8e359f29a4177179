package blocks

import (
	"brewbox-controlbox/internal/actuator"
	"brewbox-controlbox/internal/object"
	"brewbox-controlbox/internal/stream"
)

// MutexBlock is the named shared resource Mutex constraints lock against,
// grounded on original_source/app/brewblox/blox/MutexBlock.h. Other
// blocks resolve it by lookup handle and bind a *actuator.MutexTarget
// into their own Mutex constraint at configuration time — the target
// itself is a plain shared struct, not churned by group (de)activation,
// so this rendition resolves it once rather than re-locking per use.
type MutexBlock struct {
	target       *actuator.MutexTarget
	holdAfterOff object.UpdateTime
	fair         bool
}

func NewMutexBlock() *MutexBlock {
	return &MutexBlock{target: actuator.NewMutexTarget()}
}

func (m *MutexBlock) Target() *actuator.MutexTarget { return m.target }
func (m *MutexBlock) HoldAfterOff() object.UpdateTime { return m.holdAfterOff }
func (m *MutexBlock) Fair() bool                      { return m.fair }

func (m *MutexBlock) TypeID() object.TypeID { return TypeMutex }

func (m *MutexBlock) StreamTo(out stream.Output) error {
	if err := writeU16(out, uint16(m.holdAfterOff)); err != nil {
		return err
	}
	return writeBool(out, m.fair)
}

func (m *MutexBlock) StreamFrom(in stream.Input) error {
	hold, ok := readU16(in)
	if !ok {
		return errNotWritable()
	}
	fair, ok := readBool(in)
	if !ok {
		return errNotWritable()
	}
	m.holdAfterOff = object.UpdateTime(hold)
	m.fair = fair
	return nil
}

func (m *MutexBlock) StreamPersistedTo(out stream.Output) error { return m.StreamTo(out) }

func (m *MutexBlock) Update(now object.UpdateTime) object.UpdateTime { return object.Never(now) }

func (m *MutexBlock) Implements(iface object.InterfaceID) any {
	switch iface {
	case object.InterfaceID(TypeMutex):
		return m
	case IfaceMutexTarget:
		return m
	}
	return nil
}
