package blocks

import (
	"brewbox-controlbox/internal/fixedpoint"
	"brewbox-controlbox/internal/object"
	"brewbox-controlbox/internal/stream"
)

// TempSensor is the capability CombiSensor and SetpointSensorPair consume
// via a lookup handle (IfaceTempSensor).
type TempSensor interface {
	Value() (fixedpoint.Temp, bool)
}

// TempSensorMock is a settable simulated temperature sensor, grounded on
// original_source/app/brewblox/blox/TempSensorMockBlock.h. Used directly
// by scenarios S1/S2/S4 in place of a real 1-Wire sensor.
type TempSensorMock struct {
	value     fixedpoint.Temp
	connected bool
}

func NewTempSensorMock() *TempSensorMock {
	return &TempSensorMock{connected: true}
}

func (s *TempSensorMock) Value() (fixedpoint.Temp, bool) {
	if !s.connected {
		return 0, false
	}
	return s.value, true
}

func (s *TempSensorMock) SetValue(v fixedpoint.Temp) { s.value = v }
func (s *TempSensorMock) SetConnected(v bool)        { s.connected = v }
func (s *TempSensorMock) Connected() bool            { return s.connected }

func (s *TempSensorMock) TypeID() object.TypeID { return TypeTempSensorMock }

func (s *TempSensorMock) StreamTo(out stream.Output) error {
	if err := writeBool(out, s.connected); err != nil {
		return err
	}
	return writeTemp(out, s.value)
}

func (s *TempSensorMock) StreamFrom(in stream.Input) error {
	connected, ok := readBool(in)
	if !ok {
		return errNotWritable()
	}
	value, ok := readTemp(in)
	if !ok {
		return errNotWritable()
	}
	s.connected = connected
	s.value = value
	return nil
}

func (s *TempSensorMock) StreamPersistedTo(out stream.Output) error { return s.StreamTo(out) }

func (s *TempSensorMock) Update(now object.UpdateTime) object.UpdateTime { return object.Never(now) }

func (s *TempSensorMock) Implements(iface object.InterfaceID) any {
	switch iface {
	case object.InterfaceID(TypeTempSensorMock):
		return s
	case IfaceTempSensor:
		return TempSensor(s)
	}
	return nil
}
