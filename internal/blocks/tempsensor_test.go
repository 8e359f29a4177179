package blocks

import (
	"testing"

	"brewbox-controlbox/internal/object"
)

func TestTempSensorMockReportsValueWhenConnected(t *testing.T) {
	s := NewTempSensorMock()
	s.SetValue(20 << 12)
	v, ok := s.Value()
	if !ok || v != 20<<12 {
		t.Fatalf("Value() = (%v, %v), want (20<<12, true)", v, ok)
	}
}

func TestTempSensorMockInvalidWhenDisconnected(t *testing.T) {
	s := NewTempSensorMock()
	s.SetValue(20 << 12)
	s.SetConnected(false)
	if _, ok := s.Value(); ok {
		t.Error("Value() should be invalid once disconnected")
	}
}

func TestTempSensorMockImplementsOwnInterfaceAndCapability(t *testing.T) {
	s := NewTempSensorMock()
	if s.Implements(object.InterfaceID(TypeTempSensorMock)) == nil {
		t.Error("should implement its own TypeID as an interface")
	}
	sensor, ok := s.Implements(IfaceTempSensor).(TempSensor)
	if !ok || sensor == nil {
		t.Fatal("should implement TempSensor via IfaceTempSensor")
	}
}
