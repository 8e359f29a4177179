package actuator

import (
	"errors"
	"testing"

	"brewbox-controlbox/internal/object"
)

type failingDriver struct{ err error }

func (d *failingDriver) Write(active bool) error { return d.err }
func (d *failingDriver) Read() (bool, error)      { return false, d.err }

func TestSetStateWriteFailureGoesUnknown(t *testing.T) {
	a := NewDigitalActuator(&failingDriver{err: errors.New("gpio fault")})
	if err := a.SetState(StateActive); err == nil {
		t.Fatal("expected error from failing driver")
	}
	if a.State() != StateUnknown {
		t.Fatalf("state after write failure = %v, want Unknown", a.State())
	}
}

func TestChangeLoggedRecordsTransitions(t *testing.T) {
	base := NewDigitalActuator(&fakeDriver{})
	cl := NewChangeLogged(base, 0)
	_ = cl.SetStateLogged(StateActive, 10)
	_ = cl.SetStateLogged(StateInactive, 30)
	_ = cl.SetStateLogged(StateActive, 45)

	iv := cl.LastStartEndTime(StateInactive, 100)
	if iv.Start != 30 || iv.End != 45 {
		t.Errorf("LastStartEndTime(Inactive) = %+v, want {30 45}", iv)
	}

	ongoing := cl.LastStartEndTime(StateActive, 100)
	if ongoing.Start != 45 || ongoing.End != 100 {
		t.Errorf("LastStartEndTime(Active) = %+v, want {45 100} (ongoing)", ongoing)
	}
}

func TestChangeLoggedIgnoresNoOpTransitions(t *testing.T) {
	base := NewDigitalActuator(&fakeDriver{})
	cl := NewChangeLogged(base, 0)
	_ = cl.SetStateLogged(StateInactive, 5) // same as initial state, no-op
	iv := cl.LastStartEndTime(StateInactive, 20)
	if iv.Start != 0 || iv.End != 20 {
		t.Errorf("no-op transition should not append to the log, got %+v", iv)
	}
}

func TestActiveDurationsReportsCurrentAndPrevious(t *testing.T) {
	base := NewDigitalActuator(&fakeDriver{})
	cl := NewChangeLogged(base, 0)
	_ = cl.SetStateLogged(StateActive, 10)
	_ = cl.SetStateLogged(StateInactive, 40)

	d := cl.ActiveDurations(100)
	if d.CurrentState != StateInactive {
		t.Errorf("CurrentState = %v, want Inactive", d.CurrentState)
	}
	if d.CurrentInterval != (Interval{Start: 40, End: 100}) {
		t.Errorf("CurrentInterval = %+v, want {40 100}", d.CurrentInterval)
	}
	if d.PreviousPeriod != (Interval{Start: 10, End: 40}) {
		t.Errorf("PreviousPeriod = %+v, want {10 40}", d.PreviousPeriod)
	}
	if d.CurrentPeriod != 90 {
		t.Errorf("CurrentPeriod = %d, want 90", d.CurrentPeriod)
	}
}

func TestResetHistoryDropsPastTransitions(t *testing.T) {
	base := NewDigitalActuator(&fakeDriver{})
	cl := NewChangeLogged(base, 0)
	_ = cl.SetStateLogged(StateActive, 10)
	cl.ResetHistory(50)
	iv := cl.LastStartEndTime(StateInactive, 100)
	if iv.Start != 0 || iv.End != 0 {
		t.Errorf("LastStartEndTime after reset should report never-logged zero interval, got %+v", iv)
	}
}

func TestLogDepthIsBounded(t *testing.T) {
	base := NewDigitalActuator(&fakeDriver{})
	cl := NewChangeLogged(base, 0)
	state := StateInactive
	for i := 0; i < maxLogDepth+10; i++ {
		if state == StateActive {
			state = StateInactive
		} else {
			state = StateActive
		}
		_ = cl.SetStateLogged(state, object.UpdateTime(i+1))
	}
	if len(cl.log) > maxLogDepth {
		t.Errorf("log length = %d, want <= %d", len(cl.log), maxLogDepth)
	}
}
