package blocks

import (
	"brewbox-controlbox/internal/actuator"
	"brewbox-controlbox/internal/balancer"
	"brewbox-controlbox/internal/lookup"
	"brewbox-controlbox/internal/object"
	"brewbox-controlbox/internal/pwm"
	"brewbox-controlbox/internal/stream"
)

// pwmTargetHandle adapts a lookup handle to pwm.Target, re-resolving the
// DigitalActuatorBlock it drives on every call (C5 weak-reference style).
// Pointer receiver so ActuatorPwmBlock can mutate the bound id in place
// after constructing the pwm.Actuator around this handle.
type pwmTargetHandle struct{ l lookup.Lookup }

func (h *pwmTargetHandle) resolve() (*DigitalActuatorBlock, bool) {
	return lookup.Lock[*DigitalActuatorBlock](h.l, IfaceConstrainedActuator)
}

func (h *pwmTargetHandle) State() actuator.State {
	t, ok := h.resolve()
	if !ok {
		return actuator.StateUnknown
	}
	return t.State()
}

func (h *pwmTargetHandle) DesiredState(s actuator.State, now object.UpdateTime) error {
	t, ok := h.resolve()
	if !ok {
		return nil
	}
	return t.DesiredState(s, now)
}

func (h *pwmTargetHandle) RetryDelay(now object.UpdateTime) object.UpdateTime {
	t, ok := h.resolve()
	if !ok {
		return 1000
	}
	return t.RetryDelay(now)
}

func (h *pwmTargetHandle) RecentIntervals(now object.UpdateTime) []actuator.Interval {
	t, ok := h.resolve()
	if !ok {
		return nil
	}
	return t.RecentIntervals(now)
}

func (h *pwmTargetHandle) IntervalState(i int) actuator.State {
	t, ok := h.resolve()
	if !ok {
		return actuator.StateUnknown
	}
	return t.IntervalState(i)
}

func (h *pwmTargetHandle) SupportsFastIO() bool {
	t, ok := h.resolve()
	return ok && t.SupportsFastIO()
}

// ActuatorPwmBlock wraps internal/pwm.Actuator with a lookup handle to
// its constrained digital actuator target, grounded on
// original_source/app/brewblox/blox/ActuatorPwmBlock.h.
type ActuatorPwmBlock struct {
	pwmAct *pwm.Actuator
	target *pwmTargetHandle
}

func NewActuatorPwmBlock(c lookup.Container, period object.UpdateTime) *ActuatorPwmBlock {
	h := &pwmTargetHandle{l: lookup.New(c)}
	return &ActuatorPwmBlock{pwmAct: pwm.New(h, period), target: h}
}

func (b *ActuatorPwmBlock) SetTargetID(id object.ID) { b.target.l.SetID(id) }
func (b *ActuatorPwmBlock) TargetID() object.ID      { return b.target.l.GetID() }
func (b *ActuatorPwmBlock) PWM() *pwm.Actuator       { return b.pwmAct }

func (b *ActuatorPwmBlock) Balanced(bal *balancer.Balancer, channel uint16) {
	b.pwmAct.Balanced(bal, channel)
}

func (b *ActuatorPwmBlock) TypeID() object.TypeID { return TypeActuatorPwm }

func (b *ActuatorPwmBlock) StreamTo(out stream.Output) error {
	if err := writeU16(out, uint16(b.TargetID())); err != nil {
		return err
	}
	if err := writeU16(out, uint16(b.pwmAct.Period())); err != nil {
		return err
	}
	if err := out.Write(b.pwmAct.Setting()); err != nil {
		return err
	}
	if err := out.Write(b.pwmAct.Value()); err != nil {
		return err
	}
	return writeBool(out, b.pwmAct.ValueValid())
}

func (b *ActuatorPwmBlock) StreamFrom(in stream.Input) error {
	id, ok := readU16(in)
	if !ok {
		return errNotWritable()
	}
	period, ok := readU16(in)
	if !ok {
		return errNotWritable()
	}
	setting, ok := in.Next()
	if !ok {
		return errNotWritable()
	}
	b.SetTargetID(object.ID(id))
	b.pwmAct.SetPeriod(object.UpdateTime(period))
	b.pwmAct.SetSetting(setting)
	return nil
}

func (b *ActuatorPwmBlock) StreamPersistedTo(out stream.Output) error {
	if err := writeU16(out, uint16(b.TargetID())); err != nil {
		return err
	}
	if err := writeU16(out, uint16(b.pwmAct.Period())); err != nil {
		return err
	}
	return out.Write(b.pwmAct.Setting())
}

func (b *ActuatorPwmBlock) Update(now object.UpdateTime) object.UpdateTime {
	return b.pwmAct.Update(now)
}

func (b *ActuatorPwmBlock) Implements(iface object.InterfaceID) any {
	if iface == object.InterfaceID(TypeActuatorPwm) {
		return b
	}
	return nil
}
