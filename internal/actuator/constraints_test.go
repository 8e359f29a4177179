package actuator

import (
	"testing"

	"brewbox-controlbox/internal/object"
)

type fakeDriver struct{ active bool }

func (d *fakeDriver) Write(active bool) error { d.active = active; return nil }
func (d *fakeDriver) Read() (bool, error)      { return d.active, nil }

func newLoggedActuator(now object.UpdateTime, start State) *ChangeLogged {
	base := NewDigitalActuator(&fakeDriver{})
	_ = base.SetState(start)
	return NewChangeLogged(base, now)
}

func TestMinOffTimeBlocksEarlyTurnOn(t *testing.T) {
	act := newLoggedActuator(0, StateInactive)
	c := NewConstrained(act, 0)
	c.AddConstraint(MinOffTime{Limit: 100})

	if err := c.DesiredState(StateActive, 50); err != nil {
		t.Fatalf("DesiredState: %v", err)
	}
	if c.State() != StateInactive {
		t.Fatalf("expected blocked turn-on, got %v", c.State())
	}
	if c.Limiting() != 1 {
		t.Errorf("Limiting() = %b, want bit 0 set", c.Limiting())
	}

	if err := c.Update(150); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if c.State() != StateActive {
		t.Fatalf("expected turn-on after MinOffTime elapsed, got %v", c.State())
	}
}

func TestMinOnTimeBlocksEarlyTurnOff(t *testing.T) {
	act := newLoggedActuator(0, StateActive)
	c := NewConstrained(act, 0)
	c.AddConstraint(MinOnTime{Limit: 100})

	if err := c.DesiredState(StateInactive, 20); err != nil {
		t.Fatalf("DesiredState: %v", err)
	}
	if c.State() != StateActive {
		t.Fatalf("expected blocked turn-off, got %v", c.State())
	}

	if err := c.Update(120); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if c.State() != StateInactive {
		t.Fatalf("expected turn-off after MinOnTime elapsed, got %v", c.State())
	}
}

func TestMutexExclusivity(t *testing.T) {
	target := NewMutexTarget()
	actA := newLoggedActuator(0, StateInactive)
	actB := newLoggedActuator(0, StateInactive)
	mA := &Mutex{Target: target}
	mB := &Mutex{Target: target}
	cA := NewConstrained(actA, 0)
	cA.AddConstraint(mA)
	cB := NewConstrained(actB, 0)
	cB.AddConstraint(mB)

	if err := cA.DesiredState(StateActive, 0); err != nil {
		t.Fatalf("cA DesiredState: %v", err)
	}
	if cA.State() != StateActive {
		t.Fatalf("cA should acquire the mutex, got %v", cA.State())
	}

	if err := cB.DesiredState(StateActive, 0); err != nil {
		t.Fatalf("cB DesiredState: %v", err)
	}
	if cB.State() != StateInactive {
		t.Fatalf("cB should be blocked while cA holds the mutex, got %v", cB.State())
	}

	if err := cA.DesiredState(StateInactive, 10); err != nil {
		t.Fatalf("cA turn off: %v", err)
	}
	if err := cB.Update(10); err != nil {
		t.Fatalf("cB update: %v", err)
	}
	if cB.State() != StateActive {
		t.Fatalf("cB should acquire the mutex once cA releases it, got %v", cB.State())
	}
}

func TestMutexHoldAfterOff(t *testing.T) {
	target := NewMutexTarget()
	actA := newLoggedActuator(0, StateInactive)
	actB := newLoggedActuator(0, StateInactive)
	mA := &Mutex{Target: target, HoldAfterOff: 50}
	mB := &Mutex{Target: target}
	cA := NewConstrained(actA, 0)
	cA.AddConstraint(mA)
	cB := NewConstrained(actB, 0)
	cB.AddConstraint(mB)

	_ = cA.DesiredState(StateActive, 0)
	_ = cA.DesiredState(StateInactive, 10)

	_ = cB.DesiredState(StateActive, 10)
	if cB.State() != StateInactive {
		t.Fatalf("cB should stay blocked during hold-after-off, got %v", cB.State())
	}

	_ = cA.Update(70) // releases the lock once 50 elapsed since off at t=10
	if err := cB.Update(70); err != nil {
		t.Fatalf("cB update: %v", err)
	}
	if cB.State() != StateActive {
		t.Fatalf("cB should acquire the mutex once hold-after-off elapsed, got %v", cB.State())
	}
}

func TestMutexFairQueuing(t *testing.T) {
	target := NewMutexTarget()
	actA := newLoggedActuator(0, StateInactive)
	actB := newLoggedActuator(0, StateInactive)
	actC := newLoggedActuator(0, StateInactive)
	mA := &Mutex{Target: target, Fair: true}
	mB := &Mutex{Target: target, Fair: true}
	mC := &Mutex{Target: target, Fair: true}
	cA := NewConstrained(actA, 0)
	cA.AddConstraint(mA)
	cB := NewConstrained(actB, 0)
	cB.AddConstraint(mB)
	cC := NewConstrained(actC, 0)
	cC.AddConstraint(mC)

	_ = cA.DesiredState(StateActive, 0) // acquires
	_ = cB.DesiredState(StateActive, 0) // queues
	_ = cC.DesiredState(StateActive, 0) // queues behind B

	_ = cA.DesiredState(StateInactive, 10)
	_ = cB.Update(10)
	_ = cC.Update(10)
	if cB.State() != StateActive {
		t.Fatalf("B should be next in the fair queue, got %v", cB.State())
	}
	if cC.State() != StateInactive {
		t.Fatalf("C should still be queued behind B, got %v", cC.State())
	}
}

func TestDelayedOnRequiresSustainedDesire(t *testing.T) {
	act := newLoggedActuator(0, StateInactive)
	c := NewConstrained(act, 0)
	c.AddConstraint(DelayedOn{Limit: 100})

	_ = c.DesiredState(StateActive, 0)
	if c.State() != StateInactive {
		t.Fatalf("expected delayed turn-on, got %v", c.State())
	}
	_ = c.Update(100)
	if c.State() != StateActive {
		t.Fatalf("expected turn-on once delay elapsed, got %v", c.State())
	}
}

func TestDelayedOnResetsIfDesireFlips(t *testing.T) {
	act := newLoggedActuator(0, StateInactive)
	c := NewConstrained(act, 0)
	c.AddConstraint(DelayedOn{Limit: 100})

	_ = c.DesiredState(StateActive, 0)
	_ = c.DesiredState(StateInactive, 50) // flip before delay elapses
	_ = c.DesiredState(StateActive, 60)   // desiredSince resets to 60
	if err := c.Update(110); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if c.State() != StateInactive {
		t.Fatalf("expected still-blocked turn-on (only 50 elapsed since re-request), got %v", c.State())
	}
	_ = c.Update(160)
	if c.State() != StateActive {
		t.Fatalf("expected turn-on once new delay window elapsed, got %v", c.State())
	}
}

func TestConstraintOrderStopsAtFirstBlock(t *testing.T) {
	act := newLoggedActuator(0, StateInactive)
	c := NewConstrained(act, 0)
	c.AddConstraint(MinOffTime{Limit: 1000}) // order 0, blocks
	c.AddConstraint(DelayedOn{Limit: 5})     // order 3

	_ = c.DesiredState(StateActive, 10)
	if c.Limiting() != 1 {
		t.Errorf("Limiting() = %b, want only bit 0 (MinOffTime) set", c.Limiting())
	}
}
