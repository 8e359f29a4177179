package blocks

import (
	"brewbox-controlbox/internal/fixedpoint"
	"brewbox-controlbox/internal/lookup"
	"brewbox-controlbox/internal/object"
	"brewbox-controlbox/internal/pid"
	"brewbox-controlbox/internal/stream"
)

// pidInputHandle re-resolves its pid.Input target on every Read, matching
// C5's "re-resolved on every use" weak lookup semantics.
type pidInputHandle struct{ l lookup.Lookup }

func (h *pidInputHandle) Read() (setting, value fixedpoint.Temp, valid bool) {
	in, ok := lookup.Lock[pid.Input](h.l, IfacePidInput)
	if !ok {
		return 0, 0, false
	}
	return in.Read()
}

// pidOutputHandle mirrors pidInputHandle for the output side.
type pidOutputHandle struct{ l lookup.Lookup }

func (h *pidOutputHandle) SetSetting(v fixedpoint.Temp) {
	if out, ok := lookup.Lock[pid.Output](h.l, IfacePidOutput); ok {
		out.SetSetting(v)
	}
}

func (h *pidOutputHandle) SetSettingValid(v bool) {
	if out, ok := lookup.Lock[pid.Output](h.l, IfacePidOutput); ok {
		out.SetSettingValid(v)
	}
}

func (h *pidOutputHandle) Limits() (fixedpoint.Temp, fixedpoint.Temp) {
	if out, ok := lookup.Lock[pid.Output](h.l, IfacePidOutput); ok {
		return out.Limits()
	}
	return 0, 0
}

// PidBlock is the thin container wrapper around internal/pid.Pid,
// grounded on original_source/app/brewblox/blox/PidBlock.h: it owns the
// lookup handles naming the input/output objects by id and ticks the
// controller every 1s.
type PidBlock struct {
	ctrl       *pid.Pid
	inputH     *pidInputHandle
	outputH    *pidOutputHandle
	lastUpdate object.UpdateTime
	primed     bool
}

func NewPidBlock(c lookup.Container) *PidBlock {
	inputH := &pidInputHandle{l: lookup.New(c)}
	outputH := &pidOutputHandle{l: lookup.New(c)}
	return &PidBlock{
		ctrl:    pid.New(inputH, outputH),
		inputH:  inputH,
		outputH: outputH,
	}
}

func (b *PidBlock) SetInputID(id object.ID)  { b.inputH.l.SetID(id) }
func (b *PidBlock) SetOutputID(id object.ID) { b.outputH.l.SetID(id) }
func (b *PidBlock) InputID() object.ID       { return b.inputH.l.GetID() }
func (b *PidBlock) OutputID() object.ID      { return b.outputH.l.GetID() }
func (b *PidBlock) Controller() *pid.Pid     { return b.ctrl }

func (b *PidBlock) TypeID() object.TypeID { return TypePid }

func (b *PidBlock) StreamTo(out stream.Output) error {
	if err := writeU16(out, uint16(b.InputID())); err != nil {
		return err
	}
	if err := writeU16(out, uint16(b.OutputID())); err != nil {
		return err
	}
	if err := writeTemp(out, b.ctrl.Kp()); err != nil {
		return err
	}
	if err := writeU16(out, b.ctrl.Ti()); err != nil {
		return err
	}
	if err := writeU16(out, b.ctrl.Td()); err != nil {
		return err
	}
	if err := writeBool(out, b.ctrl.Enabled()); err != nil {
		return err
	}
	if err := writeBool(out, b.ctrl.Active()); err != nil {
		return err
	}
	if err := writeTemp(out, b.ctrl.P()); err != nil {
		return err
	}
	if err := writeTemp(out, b.ctrl.I()); err != nil {
		return err
	}
	return writeTemp(out, b.ctrl.D())
}

func (b *PidBlock) StreamFrom(in stream.Input) error {
	inputID, ok := readU16(in)
	if !ok {
		return errNotWritable()
	}
	outputID, ok := readU16(in)
	if !ok {
		return errNotWritable()
	}
	kp, ok := readTemp(in)
	if !ok {
		return errNotWritable()
	}
	ti, ok := readU16(in)
	if !ok {
		return errNotWritable()
	}
	td, ok := readU16(in)
	if !ok {
		return errNotWritable()
	}
	enabled, ok := readBool(in)
	if !ok {
		return errNotWritable()
	}
	b.SetInputID(object.ID(inputID))
	b.SetOutputID(object.ID(outputID))
	b.ctrl.SetKp(kp)
	b.ctrl.SetTi(ti)
	b.ctrl.SetTd(td)
	b.ctrl.SetEnabled(enabled)
	return nil
}

func (b *PidBlock) StreamPersistedTo(out stream.Output) error {
	if err := writeU16(out, uint16(b.InputID())); err != nil {
		return err
	}
	if err := writeU16(out, uint16(b.OutputID())); err != nil {
		return err
	}
	if err := writeTemp(out, b.ctrl.Kp()); err != nil {
		return err
	}
	if err := writeU16(out, b.ctrl.Ti()); err != nil {
		return err
	}
	if err := writeU16(out, b.ctrl.Td()); err != nil {
		return err
	}
	return writeBool(out, b.ctrl.Enabled())
}

// Update runs the PID every 1s, per §4.11.
func (b *PidBlock) Update(now object.UpdateTime) object.UpdateTime {
	if !b.primed {
		b.lastUpdate = now
		b.primed = true
	}
	dt := now - b.lastUpdate
	if dt == 0 {
		dt = 1000
	}
	b.ctrl.Update(now, dt)
	b.lastUpdate = now
	return now + 1000
}

func (b *PidBlock) Implements(iface object.InterfaceID) any {
	if iface == object.InterfaceID(TypePid) {
		return b
	}
	return nil
}
