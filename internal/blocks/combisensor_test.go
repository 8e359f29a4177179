package blocks

import (
	"testing"

	"brewbox-controlbox/internal/container"
	"brewbox-controlbox/internal/fixedpoint"
	"brewbox-controlbox/internal/object"
)

func newTestContainer() *container.Container { return container.New() }

func addSensor(t *testing.T, c *container.Container, id object.ID, value fixedpoint.Temp) *TempSensorMock {
	t.Helper()
	s := NewTempSensorMock()
	s.SetValue(value)
	if err := c.Add(id, 0xFF, s); err != nil {
		t.Fatalf("Add sensor %d: %v", id, err)
	}
	return s
}

func TestCombiSensorAveragesConnectedSensors(t *testing.T) {
	c := newTestContainer()
	addSensor(t, c, 10, 10<<12)
	addSensor(t, c, 11, 20<<12)

	cs := NewCombiSensor(c)
	cs.SetSensor(0, 10)
	cs.SetSensor(1, 11)
	cs.SetMode(CombineAvg)
	cs.Update(0)

	v, ok := cs.Value()
	if !ok || v != 15<<12 {
		t.Fatalf("Value() = (%v, %v), want (15<<12, true)", v, ok)
	}
}

func TestCombiSensorMin(t *testing.T) {
	c := newTestContainer()
	addSensor(t, c, 10, 10<<12)
	addSensor(t, c, 11, 20<<12)

	cs := NewCombiSensor(c)
	cs.SetSensor(0, 10)
	cs.SetSensor(1, 11)
	cs.SetMode(CombineMin)
	cs.Update(0)

	v, ok := cs.Value()
	if !ok || v != 10<<12 {
		t.Fatalf("Value() = (%v, %v), want (10<<12, true)", v, ok)
	}
}

func TestCombiSensorMax(t *testing.T) {
	c := newTestContainer()
	addSensor(t, c, 10, 10<<12)
	addSensor(t, c, 11, 20<<12)

	cs := NewCombiSensor(c)
	cs.SetSensor(0, 10)
	cs.SetSensor(1, 11)
	cs.SetMode(CombineMax)
	cs.Update(0)

	v, ok := cs.Value()
	if !ok || v != 20<<12 {
		t.Fatalf("Value() = (%v, %v), want (20<<12, true)", v, ok)
	}
}

func TestCombiSensorInvalidWhenAllSlotsUnresolved(t *testing.T) {
	c := newTestContainer()
	cs := NewCombiSensor(c)
	cs.Update(0)
	if _, ok := cs.Value(); ok {
		t.Error("Value() should be invalid with no resolvable sensors")
	}
}

func TestCombiSensorSkipsUnresolvedSlots(t *testing.T) {
	c := newTestContainer()
	addSensor(t, c, 10, 10<<12)

	cs := NewCombiSensor(c)
	cs.SetSensor(0, 10)
	cs.SetSensor(1, 999) // never added
	cs.SetMode(CombineAvg)
	cs.Update(0)

	v, ok := cs.Value()
	if !ok || v != 10<<12 {
		t.Fatalf("Value() = (%v, %v), want (10<<12, true)", v, ok)
	}
}
