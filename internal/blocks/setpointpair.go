package blocks

import (
	"brewbox-controlbox/internal/fixedpoint"
	"brewbox-controlbox/internal/lookup"
	"brewbox-controlbox/internal/object"
	"brewbox-controlbox/internal/stream"
)

// SetpointSensorPair combines a looked-up sensor with a fixed setpoint,
// exposed directly as a pid.Input (IfacePidInput), grounded on
// original_source/app/brewblox/blox/SetpointSensorPairBlock.h.
type SetpointSensorPair struct {
	sensor  lookup.Lookup
	setting fixedpoint.Temp
}

func NewSetpointSensorPair(c lookup.Container) *SetpointSensorPair {
	return &SetpointSensorPair{sensor: lookup.New(c)}
}

func (p *SetpointSensorPair) SetSensor(id object.ID) { p.sensor.SetID(id) }
func (p *SetpointSensorPair) SensorID() object.ID    { return p.sensor.GetID() }
func (p *SetpointSensorPair) SetSetting(v fixedpoint.Temp) { p.setting = v }
func (p *SetpointSensorPair) Setting() fixedpoint.Temp     { return p.setting }

// Read implements pid.Input.
func (p *SetpointSensorPair) Read() (setting, value fixedpoint.Temp, valid bool) {
	sensor, ok := lookup.Lock[TempSensor](p.sensor, IfaceTempSensor)
	if !ok {
		return p.setting, 0, false
	}
	v, ok := sensor.Value()
	return p.setting, v, ok
}

func (p *SetpointSensorPair) TypeID() object.TypeID { return TypeSetpointSensorPair }

func (p *SetpointSensorPair) StreamTo(out stream.Output) error {
	if err := writeU16(out, uint16(p.sensor.GetID())); err != nil {
		return err
	}
	if err := writeTemp(out, p.setting); err != nil {
		return err
	}
	_, value, valid := p.Read()
	if err := writeBool(out, valid); err != nil {
		return err
	}
	return writeTemp(out, value)
}

func (p *SetpointSensorPair) StreamFrom(in stream.Input) error {
	id, ok := readU16(in)
	if !ok {
		return errNotWritable()
	}
	setting, ok := readTemp(in)
	if !ok {
		return errNotWritable()
	}
	p.sensor.SetID(object.ID(id))
	p.setting = setting
	return nil
}

func (p *SetpointSensorPair) StreamPersistedTo(out stream.Output) error {
	if err := writeU16(out, uint16(p.sensor.GetID())); err != nil {
		return err
	}
	return writeTemp(out, p.setting)
}

func (p *SetpointSensorPair) Update(now object.UpdateTime) object.UpdateTime {
	return object.Never(now)
}

func (p *SetpointSensorPair) Implements(iface object.InterfaceID) any {
	switch iface {
	case object.InterfaceID(TypeSetpointSensorPair):
		return p
	case IfacePidInput:
		return p
	}
	return nil
}
