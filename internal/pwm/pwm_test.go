package pwm

import (
	"testing"

	"brewbox-controlbox/internal/actuator"
	"brewbox-controlbox/internal/balancer"
	"brewbox-controlbox/internal/object"
)

type slowIODriver struct{ active bool }

func (d *slowIODriver) Write(active bool) error { d.active = active; return nil }
func (d *slowIODriver) Read() (bool, error)      { return d.active, nil }

// slowTarget adapts *actuator.Constrained to pwm.Target for a device with
// no hardware timer support, the common case for this rendition.
type slowTarget struct{ *actuator.Constrained }

func (slowTarget) SupportsFastIO() bool { return false }

func newSlowTarget(now object.UpdateTime) slowTarget {
	base := actuator.NewDigitalActuator(&slowIODriver{})
	_ = base.SetState(actuator.StateInactive)
	cl := actuator.NewChangeLogged(base, now)
	return slowTarget{actuator.NewConstrained(cl, now)}
}

func TestSetPeriodEnforcesOneSecondFloorWithoutFastIO(t *testing.T) {
	target := newSlowTarget(0)
	a := New(target, 200)
	if a.Period() != 1000 {
		t.Errorf("Period() = %d, want 1000 (floor enforced)", a.Period())
	}
}

func TestSetSettingClampsTo100(t *testing.T) {
	target := newSlowTarget(0)
	a := New(target, 2000)
	a.SetSetting(150)
	if a.Setting() != 100 {
		t.Errorf("Setting() = %d, want 100", a.Setting())
	}
}

// simulate drives the PWM for the given total duration, returning the
// fraction of time the target actually spent Active.
func simulate(a *Actuator, target Target, totalMs object.UpdateTime) float64 {
	var now, totalActive, totalElapsed object.UpdateTime
	for totalElapsed < totalMs {
		next := a.Update(now)
		elapsed := next - now
		if target.State() == actuator.StateActive {
			totalActive += elapsed
		}
		totalElapsed += elapsed
		now = next
	}
	return 100 * float64(totalActive) / float64(totalElapsed)
}

func TestLongRunDutyConvergesNearSetting(t *testing.T) {
	for _, duty := range []uint8{20, 50, 80} {
		target := newSlowTarget(0)
		a := New(target, 2000)
		a.SetSetting(duty)

		frac := simulate(a, target, 20*2000*20) // ~20 periods, well past warm-up
		if frac < float64(duty)-5 || frac > float64(duty)+5 {
			t.Errorf("duty=%d: realized fraction = %.1f%%, want within 5%% of %d", duty, frac, duty)
		}
	}
}

func TestValueAchievedMonotoneWithinPhase(t *testing.T) {
	target := newSlowTarget(0)
	a := New(target, 2000)
	a.SetSetting(70)

	var now object.UpdateTime
	prevState := actuator.State(0)
	prevValue := uint8(0)
	for i := 0; i < 200; i++ {
		next := a.Update(now)
		state := target.State()
		if state == prevState {
			switch state {
			case actuator.StateActive:
				if a.Value() < prevValue {
					t.Fatalf("iter %d: achieved value decreased while Active: %d -> %d", i, prevValue, a.Value())
				}
			case actuator.StateInactive:
				if a.Value() > prevValue {
					t.Fatalf("iter %d: achieved value increased while Inactive: %d -> %d", i, prevValue, a.Value())
				}
			}
		}
		prevState = state
		prevValue = a.Value()
		now = next
	}
}

func TestBalancedConstraintCapsGrantedDuty(t *testing.T) {
	b := balancer.New()
	target1 := newSlowTarget(0)
	a1 := New(target1, 2000)
	a1.SetSetting(90)
	a1.Balanced(b, 1)

	target2 := newSlowTarget(0)
	a2 := New(target2, 2000)
	a2.SetSetting(90)
	a2.Balanced(b, 2)

	a1.Update(0)
	a2.Update(0)

	if a1.GrantedSetting()+a2.GrantedSetting() > 100 {
		t.Errorf("granted sum = %d, want <= 100", a1.GrantedSetting()+a2.GrantedSetting())
	}
	if a1.Setting() != 90 {
		t.Errorf("requested Setting() should remain the caller's ask, got %d", a1.Setting())
	}
}

// runUntilTransition drives the PWM from now until target.State() differs
// from the state observed at now, returning the new time and the duration
// of the phase that just ended.
func runUntilTransition(a *Actuator, target Target, now object.UpdateTime) (object.UpdateTime, object.UpdateTime) {
	start := now
	startState := target.State()
	for {
		now = a.Update(now)
		if target.State() != startState {
			return now, now - start
		}
	}
}

// TestScenarioS6HistoryCompensationStretch implements spec §8 S6: a duty
// change after a long run at an extreme setting must converge the very
// next opposite-phase duration to the history-compensated bound, not the
// bare dutyTime/invDutyTime.
func TestScenarioS6HistoryCompensationStretch(t *testing.T) {
	const period = object.UpdateTime(4000)
	tolerance := func(want object.UpdateTime) (object.UpdateTime, object.UpdateTime) {
		return want - want/5, want + want/5
	}

	t.Run("99pct_then_60pct_first_low_unstretched", func(t *testing.T) {
		target := newSlowTarget(0)
		a := New(target, period)
		a.SetSetting(99)
		now := simulateTo(a, target, 100*1000)

		a.SetSetting(60)
		// Run until the target is Active (settle into the post-switch
		// regime) then measure the first full low phase after that.
		for target.State() != actuator.StateActive {
			now = a.Update(now)
		}
		_, lowDuration := runUntilTransition(a, target, now)

		want := period - period*60/100 // invDutyTime, 0.4*P
		lo, hi := tolerance(want)
		if lowDuration < lo || lowDuration > hi {
			t.Errorf("first low phase after 99%%->60%% = %dms, want within [%d,%d] of %dms (no stretching)", lowDuration, lo, hi, want)
		}
	})

	t.Run("1pct_then_40pct_first_high_unstretched", func(t *testing.T) {
		target := newSlowTarget(0)
		a := New(target, period)
		a.SetSetting(1)
		now := simulateTo(a, target, 100*1000)

		a.SetSetting(40)
		for target.State() != actuator.StateInactive {
			now = a.Update(now)
		}
		_, highDuration := runUntilTransition(a, target, now)

		want := period * 40 / 100 // dutyTime, 0.4*P
		lo, hi := tolerance(want)
		if highDuration < lo || highDuration > hi {
			t.Errorf("first high phase after 1%%->40%% = %dms, want within [%d,%d] of %dms (no stretching)", highDuration, lo, hi, want)
		}
	})

	t.Run("1pct_then_60pct_first_high_stretched", func(t *testing.T) {
		target := newSlowTarget(0)
		a := New(target, period)
		a.SetSetting(1)
		now := simulateTo(a, target, 100*1000)

		a.SetSetting(60)
		for target.State() != actuator.StateInactive {
			now = a.Update(now)
		}
		_, highDuration := runUntilTransition(a, target, now)

		// dutyTime (0.6*P) stretched 1.5x by the previousPeriod >= period
		// history-compensation bound (maxHigh), per pwm.go's raw
		// d.previousActive/d.previousPeriod read.
		dutyTime := period * 60 / 100
		want := dutyTime + dutyTime/2 // 0.6*P*1.5
		lo, hi := tolerance(want)
		if highDuration < lo || highDuration > hi {
			t.Errorf("first high phase after 1%%->60%% = %dms, want within [%d,%d] of %dms (stretched by history compensation)", highDuration, lo, hi, want)
		}
	})
}

// simulateTo drives the PWM forward by totalMs and returns the time
// reached, discarding the duty measurement simulate() computes.
func simulateTo(a *Actuator, target Target, totalMs object.UpdateTime) object.UpdateTime {
	var now, elapsed object.UpdateTime
	for elapsed < totalMs {
		next := a.Update(now)
		elapsed += next - now
		now = next
	}
	return now
}

func TestDutyZeroStaysInactive(t *testing.T) {
	target := newSlowTarget(0)
	a := New(target, 2000)
	a.SetSetting(0)
	var now object.UpdateTime
	for i := 0; i < 10; i++ {
		now = a.Update(now)
	}
	if target.State() == actuator.StateActive {
		t.Error("duty 0 should never go Active")
	}
	if a.Value() != 0 {
		t.Errorf("Value() = %d, want 0", a.Value())
	}
}
