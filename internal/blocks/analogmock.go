package blocks

import (
	"brewbox-controlbox/internal/fixedpoint"
	"brewbox-controlbox/internal/object"
	"brewbox-controlbox/internal/stream"
)

// AnalogActuatorMock is a settable simulated analog output, exposed as a
// pid.Output (IfacePidOutput). Grounded on the same "mock for tests"
// pattern TempSensorMockBlock.h applies to an input, here applied to an
// output so S4's PID has something to drive without real hardware.
type AnalogActuatorMock struct {
	setting      fixedpoint.Temp
	settingValid bool
	min, max     fixedpoint.Temp
}

func NewAnalogActuatorMock(min, max fixedpoint.Temp) *AnalogActuatorMock {
	return &AnalogActuatorMock{min: min, max: max}
}

func (a *AnalogActuatorMock) SetSetting(v fixedpoint.Temp) { a.setting = v.Clamp(a.min, a.max) }
func (a *AnalogActuatorMock) SetSettingValid(v bool)       { a.settingValid = v }
func (a *AnalogActuatorMock) Limits() (fixedpoint.Temp, fixedpoint.Temp) { return a.min, a.max }
func (a *AnalogActuatorMock) Setting() fixedpoint.Temp     { return a.setting }
func (a *AnalogActuatorMock) SettingValid() bool           { return a.settingValid }
func (a *AnalogActuatorMock) SetLimits(min, max fixedpoint.Temp) { a.min, a.max = min, max }

func (a *AnalogActuatorMock) TypeID() object.TypeID { return TypeAnalogActuatorMock }

func (a *AnalogActuatorMock) StreamTo(out stream.Output) error {
	if err := writeTemp(out, a.setting); err != nil {
		return err
	}
	if err := writeBool(out, a.settingValid); err != nil {
		return err
	}
	if err := writeTemp(out, a.min); err != nil {
		return err
	}
	return writeTemp(out, a.max)
}

func (a *AnalogActuatorMock) StreamFrom(in stream.Input) error {
	min, ok := readTemp(in)
	if !ok {
		return errNotWritable()
	}
	max, ok := readTemp(in)
	if !ok {
		return errNotWritable()
	}
	a.min, a.max = min, max
	return nil
}

func (a *AnalogActuatorMock) StreamPersistedTo(out stream.Output) error {
	if err := writeTemp(out, a.min); err != nil {
		return err
	}
	return writeTemp(out, a.max)
}

func (a *AnalogActuatorMock) Update(now object.UpdateTime) object.UpdateTime {
	return object.Never(now)
}

func (a *AnalogActuatorMock) Implements(iface object.InterfaceID) any {
	switch iface {
	case object.InterfaceID(TypeAnalogActuatorMock):
		return a
	case IfacePidOutput:
		return a
	}
	return nil
}
