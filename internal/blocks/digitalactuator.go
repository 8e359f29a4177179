package blocks

import (
	"brewbox-controlbox/internal/actuator"
	"brewbox-controlbox/internal/object"
	"brewbox-controlbox/internal/stream"
)

// DigitalActuatorBlock wraps internal/actuator.Constrained, grounded on
// original_source/app/brewblox/blox/ActuatorLogicBlock.h. It also
// satisfies internal/pwm.Target directly (SupportsFastIO always false:
// hardware timer PWM is out of scope, §1), so it can sit either behind a
// standalone digital actuator WRITE_OBJECT or behind an ActuatorPwmBlock.
type DigitalActuatorBlock struct {
	constrained *actuator.Constrained
	desired     actuator.State
}

func NewDigitalActuatorBlock(driver actuator.Driver, now object.UpdateTime) *DigitalActuatorBlock {
	base := actuator.NewDigitalActuator(driver)
	cl := actuator.NewChangeLogged(base, now)
	return &DigitalActuatorBlock{constrained: actuator.NewConstrained(cl, now)}
}

func (b *DigitalActuatorBlock) AddConstraint(c actuator.Constraint) { b.constrained.AddConstraint(c) }
func (b *DigitalActuatorBlock) RemoveAllConstraints()               { b.constrained.RemoveAllConstraints() }
func (b *DigitalActuatorBlock) Limiting() uint8                     { return b.constrained.Limiting() }

func (b *DigitalActuatorBlock) State() actuator.State { return b.constrained.State() }

func (b *DigitalActuatorBlock) DesiredState(s actuator.State, now object.UpdateTime) error {
	b.desired = s
	return b.constrained.DesiredState(s, now)
}

func (b *DigitalActuatorBlock) RetryDelay(now object.UpdateTime) object.UpdateTime {
	return b.constrained.RetryDelay(now)
}

func (b *DigitalActuatorBlock) RecentIntervals(now object.UpdateTime) []actuator.Interval {
	return b.constrained.RecentIntervals(now)
}

func (b *DigitalActuatorBlock) IntervalState(i int) actuator.State {
	return b.constrained.IntervalState(i)
}

// SupportsFastIO reports whether this channel has hardware timer support
// for sub-second PWM periods. Always false: out of scope for this
// rendition (§1 Non-goals).
func (b *DigitalActuatorBlock) SupportsFastIO() bool { return false }

func (b *DigitalActuatorBlock) TypeID() object.TypeID { return TypeDigitalActuator }

func (b *DigitalActuatorBlock) StreamTo(out stream.Output) error {
	if err := out.Write(byte(b.constrained.State())); err != nil {
		return err
	}
	if err := out.Write(byte(b.desired)); err != nil {
		return err
	}
	return out.Write(b.constrained.Limiting())
}

func (b *DigitalActuatorBlock) StreamFrom(in stream.Input) error {
	v, ok := in.Next()
	if !ok {
		return errNotWritable()
	}
	b.desired = actuator.State(v)
	return nil
}

func (b *DigitalActuatorBlock) StreamPersistedTo(out stream.Output) error {
	return out.Write(byte(b.desired))
}

func (b *DigitalActuatorBlock) Update(now object.UpdateTime) object.UpdateTime {
	_ = b.constrained.DesiredState(b.desired, now)
	delay := b.constrained.RetryDelay(now)
	if delay == 0 {
		delay = 1000
	}
	return now + delay
}

func (b *DigitalActuatorBlock) Implements(iface object.InterfaceID) any {
	switch iface {
	case object.InterfaceID(TypeDigitalActuator):
		return b
	case IfaceConstrainedActuator:
		return b
	}
	return nil
}
