package actuator

import "brewbox-controlbox/internal/object"

// MinOffTime blocks turn-on unless the current Inactive interval has
// lasted at least Limit. Grounded on ADConstraints::MinOffTime.
type MinOffTime struct{ Limit object.UpdateTime }

func (MinOffTime) Order() byte { return 0 }

func (m MinOffTime) Allowed(newState State, now object.UpdateTime, ctx Context) bool {
	if ctx.State() != StateInactive {
		return true
	}
	iv := ctx.LastStartEndTime(StateInactive, now)
	return newState == StateInactive || iv.Duration() >= m.Limit
}

func (m MinOffTime) RetryDelay(newState State, now object.UpdateTime, ctx Context) object.UpdateTime {
	iv := ctx.LastStartEndTime(StateInactive, now)
	remaining := m.Limit - iv.Duration()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// MinOnTime blocks turn-off unless the current Active interval has lasted
// at least Limit. Grounded on ADConstraints::MinOnTime.
type MinOnTime struct{ Limit object.UpdateTime }

func (MinOnTime) Order() byte { return 1 }

func (m MinOnTime) Allowed(newState State, now object.UpdateTime, ctx Context) bool {
	if ctx.State() != StateActive {
		return true
	}
	iv := ctx.LastStartEndTime(StateActive, now)
	return newState == StateActive || iv.Duration() >= m.Limit
}

func (m MinOnTime) RetryDelay(newState State, now object.UpdateTime, ctx Context) object.UpdateTime {
	iv := ctx.LastStartEndTime(StateActive, now)
	remaining := m.Limit - iv.Duration()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// MutexTarget is a named shared resource only one Mutex constraint may
// hold Active at a time. Grounded on ADConstraints::MutexTarget plus the
// std::mutex try_to_lock pattern, reimplemented as explicit try-acquire
// since Go has no non-blocking mutex primitive matching that shape.
type MutexTarget struct {
	owner *Mutex
	queue []*Mutex
}

func NewMutexTarget() *MutexTarget { return &MutexTarget{} }

func (t *MutexTarget) tryAcquire(c *Mutex) bool {
	if t.owner == nil || t.owner == c {
		t.owner = c
		return true
	}
	return false
}

func (t *MutexTarget) tryAcquireFair(c *Mutex) bool {
	if t.owner == c {
		return true
	}
	if t.owner == nil && (len(t.queue) == 0 || t.queue[0] == c) {
		t.owner = c
		if len(t.queue) > 0 && t.queue[0] == c {
			t.queue = t.queue[1:]
		}
		return true
	}
	t.enqueue(c)
	return false
}

func (t *MutexTarget) enqueue(c *Mutex) {
	for _, q := range t.queue {
		if q == c {
			return
		}
	}
	t.queue = append(t.queue, c)
}

func (t *MutexTarget) release(c *Mutex) {
	if t.owner == c {
		t.owner = nil
	}
	for i, q := range t.queue {
		if q == c {
			t.queue = append(t.queue[:i], t.queue[i+1:]...)
			break
		}
	}
}

// Mutex requires acquiring Target's lock before going Active, and holds
// it until the actuator has been Inactive for at least HoldAfterOff.
// Fair enables FIFO queuing of waiting actuators; without it, whichever
// actuator attempts to lock next succeeds (§4.9).
type Mutex struct {
	Target       *MutexTarget
	HoldAfterOff object.UpdateTime
	Fair         bool

	holding bool
}

func (Mutex) Order() byte { return 2 }

func (m *Mutex) Allowed(newState State, now object.UpdateTime, ctx Context) bool {
	if m.holding {
		if newState == StateInactive {
			iv := ctx.LastStartEndTime(StateInactive, now)
			if iv.Duration() >= m.HoldAfterOff {
				m.Target.release(m)
				m.holding = false
			}
		}
		return true
	}
	if newState == StateInactive {
		return true
	}
	if m.Fair {
		if !m.Target.tryAcquireFair(m) {
			return false
		}
	} else if !m.Target.tryAcquire(m) {
		return false
	}
	m.holding = true
	return true
}

func (m *Mutex) RetryDelay(newState State, now object.UpdateTime, ctx Context) object.UpdateTime {
	if m.holding && newState == StateInactive {
		iv := ctx.LastStartEndTime(StateInactive, now)
		remaining := m.HoldAfterOff - iv.Duration()
		if remaining < 0 {
			return 0
		}
		return remaining
	}
	return 0 // lock availability isn't time-predictable; caller must retry
}

// DelayedOn delays turn-on until Active has been continuously requested
// for at least Limit.
type DelayedOn struct{ Limit object.UpdateTime }

func (DelayedOn) Order() byte { return 3 }

func (d DelayedOn) Allowed(newState State, now object.UpdateTime, ctx Context) bool {
	if newState != StateActive {
		return true
	}
	return ctx.DesiredSinceElapsed(StateActive, now) >= d.Limit
}

func (d DelayedOn) RetryDelay(newState State, now object.UpdateTime, ctx Context) object.UpdateTime {
	remaining := d.Limit - ctx.DesiredSinceElapsed(StateActive, now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// DelayedOff delays turn-off until Inactive has been continuously
// requested for at least Limit.
type DelayedOff struct{ Limit object.UpdateTime }

func (DelayedOff) Order() byte { return 4 }

func (d DelayedOff) Allowed(newState State, now object.UpdateTime, ctx Context) bool {
	if newState != StateInactive {
		return true
	}
	return ctx.DesiredSinceElapsed(StateInactive, now) >= d.Limit
}

func (d DelayedOff) RetryDelay(newState State, now object.UpdateTime, ctx Context) object.UpdateTime {
	remaining := d.Limit - ctx.DesiredSinceElapsed(StateInactive, now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// DutyBalancer is the capability order-5 Balanced constraints need from a
// balancer (C12): given a channel's requested duty (0..100), returns the
// granted duty for this tick. Order 5 is not a State-gating constraint
// like 0-4 — it is an analog limit on a PWM's duty setting (§4.12) — so
// it is consumed directly by internal/pwm rather than implementing the
// Constraint interface here.
type DutyBalancer interface {
	Allot(channel uint16, requested uint8, now object.UpdateTime) uint8
}
