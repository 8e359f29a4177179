// Package actuator implements the digital actuator, its change log (C8)
// and the constrained digital actuator (C9). Grounded on
// controlbox/lib/inc/ActuatorDigitalConstrained.h and the (unretrieved)
// ActuatorDigitalChangeLogged it wraps; the change-log algorithm itself
// follows the controller specification's §4.8 description directly.
package actuator

import "brewbox-controlbox/internal/object"

// State is the tri-state value a digital actuator channel can report.
// Unknown covers the case where the physical write/read failed.
type State byte

const (
	StateUnknown State = iota
	StateInactive
	StateActive
)

// Driver is the single physical channel (0/1) of an I/O array a
// DigitalActuator drives. The concrete GPIO/relay driver is out of scope
// (§1 Non-goals); tests and blocks substitute a mock.
type Driver interface {
	Write(active bool) error
	Read() (bool, error)
}

// DigitalActuator drives one Driver channel and tracks the last state it
// successfully wrote (C8).
type DigitalActuator struct {
	driver Driver
	state  State
}

func NewDigitalActuator(driver Driver) *DigitalActuator {
	a := &DigitalActuator{driver: driver, state: StateUnknown}
	if active, err := driver.Read(); err == nil {
		a.state = StateInactive
		if active {
			a.state = StateActive
		}
	}
	return a
}

func (a *DigitalActuator) State() State { return a.state }

// SetState writes the new state to the driver. A write failure leaves
// the actuator in StateUnknown, matching "state becomes unreliable if the
// underlying IO fails".
func (a *DigitalActuator) SetState(s State) error {
	if s == StateUnknown {
		a.state = StateUnknown
		return nil
	}
	if err := a.driver.Write(s == StateActive); err != nil {
		a.state = StateUnknown
		return err
	}
	a.state = s
	return nil
}

// Interval is a half-open [Start, End) window in UpdateTime.
type Interval struct{ Start, End object.UpdateTime }

func (i Interval) Duration() object.UpdateTime { return i.End - i.Start }

// transition records one state change and when it took effect.
type transition struct {
	at    object.UpdateTime
	state State
}

// maxLogDepth bounds the change log: only the last transition and the one
// before it are needed for activeDurations/getLastStartEndTime, but a few
// extra entries are kept for diagnostics.
const maxLogDepth = 8

// ChangeLogged wraps a DigitalActuator with a bounded log of its state
// transitions, supporting the duration queries the constraints (C9) and
// diagnostics need (C8).
type ChangeLogged struct {
	*DigitalActuator
	log []transition
}

// NewChangeLogged seeds the log with the actuator's current state at now.
func NewChangeLogged(base *DigitalActuator, now object.UpdateTime) *ChangeLogged {
	return &ChangeLogged{DigitalActuator: base, log: []transition{{at: now, state: base.State()}}}
}

// SetStateLogged writes a new state (only if it actually changes) and
// records the transition.
func (c *ChangeLogged) SetStateLogged(s State, now object.UpdateTime) error {
	if s == c.State() {
		return nil
	}
	if err := c.DigitalActuator.SetState(s); err != nil {
		return err
	}
	c.log = append(c.log, transition{at: now, state: s})
	if len(c.log) > maxLogDepth {
		c.log = c.log[len(c.log)-maxLogDepth:]
	}
	return nil
}

// ResetHistory drops all but the current state, e.g. when constraints are
// reconfigured and stale duration history would otherwise mislead them.
func (c *ChangeLogged) ResetHistory(now object.UpdateTime) {
	c.log = []transition{{at: now, state: c.State()}}
}

// LastStartEndTime returns the interval of the most recent run of state s.
// If the actuator is currently in s, the interval is ongoing (End=now).
// If s was never logged, it returns a zero-width interval at time 0 so
// elapsed-time checks against it behave as "forever ago" (never blocking).
func (c *ChangeLogged) LastStartEndTime(s State, now object.UpdateTime) Interval {
	n := len(c.log)
	if n == 0 {
		return Interval{}
	}
	last := c.log[n-1]
	if last.state == s {
		return Interval{Start: last.at, End: now}
	}
	for i := n - 1; i > 0; i-- {
		if c.log[i-1].state == s {
			return Interval{Start: c.log[i-1].at, End: last.at}
		}
	}
	return Interval{}
}

// RecentIntervals returns every logged transition as a half-open interval,
// oldest first, with the final one ongoing (End=now). C10's PWM needs more
// than the two-interval activeDurations summary to reconstruct full
// on/off period pairs, so it walks this directly.
func (c *ChangeLogged) RecentIntervals(now object.UpdateTime) []Interval {
	n := len(c.log)
	if n == 0 {
		return nil
	}
	out := make([]Interval, n)
	for i := 0; i < n-1; i++ {
		out[i] = Interval{Start: c.log[i].at, End: c.log[i+1].at}
	}
	out[n-1] = Interval{Start: c.log[n-1].at, End: now}
	return out
}

// IntervalState returns the state associated with RecentIntervals()[i].
func (c *ChangeLogged) IntervalState(i int) State { return c.log[i].state }

// Durations is the §4.8 activeDurations(now) result: the ongoing current
// interval plus the most recent completed interval of the other state
// that precedes it.
type Durations struct {
	CurrentState    State
	CurrentInterval Interval // ongoing: [last transition, now)
	PreviousPeriod  Interval // the completed interval immediately before it
	CurrentPeriod   object.UpdateTime
}

// ActiveDurations implements §4.8's activeDurations(now).
func (c *ChangeLogged) ActiveDurations(now object.UpdateTime) Durations {
	n := len(c.log)
	if n == 0 {
		return Durations{}
	}
	last := c.log[n-1]
	d := Durations{
		CurrentState:    last.state,
		CurrentInterval: Interval{Start: last.at, End: now},
	}
	if n >= 2 {
		prev := c.log[n-2]
		d.PreviousPeriod = Interval{Start: prev.at, End: last.at}
		d.CurrentPeriod = now - prev.at
	} else {
		d.CurrentPeriod = now - last.at
	}
	return d
}
