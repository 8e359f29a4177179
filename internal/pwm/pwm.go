// Package pwm implements the slow-path PWM actuator (C10): it produces a
// duty cycle by toggling a constrained digital actuator (C9), adapting
// the toggle timing to whatever constraints stretch a given half-cycle.
// Grounded on controlbox/lib/src/ActuatorPwm.cpp's slowPwmUpdate, reduced
// from its cnl fixed-point arithmetic to plain integer-percent duty since
// this rendition has no fast hardware-timer path to share a value type with.
package pwm

import (
	"brewbox-controlbox/internal/actuator"
	"brewbox-controlbox/internal/object"
	"brewbox-controlbox/x/mathx"
)

// Target is the constrained digital actuator a PWM drives. It is
// satisfied by *blocks.DigitalActuatorBlock; *actuator.Constrained has
// every method except SupportsFastIO.
type Target interface {
	State() actuator.State
	DesiredState(s actuator.State, now object.UpdateTime) error
	RetryDelay(now object.UpdateTime) object.UpdateTime
	RecentIntervals(now object.UpdateTime) []actuator.Interval
	IntervalState(i int) actuator.State
	SupportsFastIO() bool
}

// Actuator is the slow-path PWM described in §4.10. The fast path (period
// < 1s on a target with hardware timer support) is a platform-specific
// ISR loop out of scope for this rendition; SetPeriod still enforces the
// 1s floor on targets that don't support it.
type Actuator struct {
	target Target

	period        object.UpdateTime
	requestedDuty uint8 // 0..100, as set by the caller
	dutySetting   uint8 // 0..100, after the Balanced constraint (§4.12)
	dutyTime      object.UpdateTime
	dutyAchieved  uint8
	enabled       bool
	settingValid  bool
	valueValid    bool

	balancer actuator.DutyBalancer
	channel  uint16
}

func New(target Target, period object.UpdateTime) *Actuator {
	a := &Actuator{target: target, enabled: true}
	a.SetPeriod(period)
	return a
}

// SetPeriod forbids periods under 1s on targets that don't support fast IO.
func (a *Actuator) SetPeriod(p object.UpdateTime) {
	if p < 1000 && !a.target.SupportsFastIO() {
		p = 1000
	}
	a.period = p
	a.recomputeDutyTime()
}

func (a *Actuator) Period() object.UpdateTime { return a.period }

// SetSetting clamps to [0,100] and marks the setting valid. The value
// actually applied is further limited by Balanced() (§4.12), if set.
func (a *Actuator) SetSetting(d uint8) {
	if d > 100 {
		d = 100
	}
	a.requestedDuty = d
	a.dutySetting = d
	a.recomputeDutyTime()
	a.SetSettingValid(true, 0)
}

// Balanced registers this PWM with a shared-resource balancer (C12).
// On every Update, the requested duty is registered with the balancer
// and replaced by min(requested, granted) before driving the toggle
// decision, per §4.12's "Balanced(balancer) analog constraint".
func (a *Actuator) Balanced(b actuator.DutyBalancer, channel uint16) {
	a.balancer = b
	a.channel = channel
}

func (a *Actuator) recomputeDutyTime() {
	a.dutyTime = object.UpdateTime(int64(a.period) * int64(a.dutySetting) / 100)
}

func (a *Actuator) Setting() uint8    { return a.requestedDuty }
func (a *Actuator) GrantedSetting() uint8 { return a.dutySetting }
func (a *Actuator) Value() uint8      { return a.dutyAchieved }
func (a *Actuator) ValueValid() bool  { return a.valueValid }
func (a *Actuator) Enabled() bool     { return a.enabled }
func (a *Actuator) SettingValid() bool { return a.settingValid }

func (a *Actuator) SetEnabled(v bool, now object.UpdateTime) {
	a.enabled = v
	if !v {
		_ = a.target.DesiredState(actuator.StateInactive, now)
	}
}

// SetSettingValid(false) forces the target Inactive, e.g. when the block
// driving this PWM's setting loses a valid input (§4.10).
func (a *Actuator) SetSettingValid(v bool, now object.UpdateTime) {
	if !v && a.enabled {
		_ = a.target.DesiredState(actuator.StateInactive, now)
	}
	a.settingValid = v
}

// cyclePair summarizes the current and previous on/off period, each
// spanning the two consecutive log intervals that make up one full cycle.
type cyclePair struct {
	lastState                     actuator.State
	currentActive, currentPeriod  object.UpdateTime
	previousActive, previousPeriod object.UpdateTime
}

func (a *Actuator) cycles(now object.UpdateTime) cyclePair {
	intervals := a.target.RecentIntervals(now)
	n := len(intervals)
	if n == 0 {
		return cyclePair{}
	}
	state := a.target.IntervalState
	d := cyclePair{lastState: state(n - 1)}

	if n >= 2 {
		d.currentPeriod = now - intervals[n-2].Start
		if state(n-1) == actuator.StateActive {
			d.currentActive = intervals[n-1].Duration()
		} else {
			d.currentActive = intervals[n-2].Duration()
		}
	} else {
		d.currentPeriod = intervals[n-1].Duration()
		if state(n-1) == actuator.StateActive {
			d.currentActive = d.currentPeriod
		}
	}

	switch {
	case n >= 4:
		d.previousPeriod = intervals[n-2].Start - intervals[n-4].Start
		if state(n-3) == actuator.StateActive {
			d.previousActive = intervals[n-3].Duration()
		} else {
			d.previousActive = intervals[n-4].Duration()
		}
	case n == 3:
		d.previousPeriod = intervals[n-2].Start - intervals[0].Start
		if state(0) == actuator.StateActive {
			d.previousActive = intervals[0].Duration()
		}
	}
	return d
}

// Update runs one slow-path PWM decision and returns the next time it
// should be called again, per §4.10's algorithm outline.
func (a *Actuator) Update(now object.UpdateTime) object.UpdateTime {
	if a.balancer != nil {
		requested := a.requestedDuty
		if !a.enabled || !a.settingValid {
			requested = 0
		}
		granted := a.balancer.Allot(a.channel, requested, now)
		next := requested
		if granted < next {
			next = granted
		}
		if next != a.dutySetting {
			a.dutySetting = next
			a.recomputeDutyTime()
		}
	}

	d := a.cycles(now)
	invDutyTime := a.period - a.dutyTime

	currentPeriod, previousPeriod := d.currentPeriod, d.previousPeriod
	currentActive, previousActive := d.currentActive, d.previousActive

	// History clamp: don't let a constraint-stretched half-cycle dominate
	// the integral used to decide the next toggle.
	if currentPeriod > 2*a.period {
		limit := a.period / 2
		if a.dutySetting <= 50 {
			if currentActive > limit {
				excess := currentActive - limit
				if excess > previousPeriod {
					previousActive = previousPeriod
				} else if excess >= previousActive {
					previousActive = excess
				}
				currentLow := currentPeriod - currentActive
				currentActive = limit
				currentPeriod = currentLow + limit
			}
		} else {
			currentLow := currentPeriod - currentActive
			if currentLow > limit {
				excess := currentLow - limit
				if excess > previousPeriod {
					previousActive = 0
				} else if excess < previousActive {
					previousActive = previousPeriod - excess
				}
				currentPeriod = currentActive + limit
			}
		}
	}
	if previousPeriod+currentPeriod > 2*a.period+a.period/2 {
		maxPeriod := mathx.Max(currentPeriod, a.period)
		if previousPeriod > maxPeriod {
			if d.lastState == actuator.StateActive {
				maxLow := 3 * (maxPeriod - currentActive)
				previousLow := previousPeriod - previousActive
				if previousLow > maxLow {
					previousPeriod = previousActive + maxLow
				}
			} else {
				maxHigh := 3 * mathx.Max(currentActive, a.dutyTime)
				if previousActive > maxHigh {
					previousLow := previousPeriod - previousActive
					previousActive = maxHigh
					previousPeriod = previousActive + previousLow
				}
			}
		}
	}
	if previousPeriod < a.period {
		shortenedBy := a.period - previousPeriod
		previousPeriod = a.period
		if previousActive < a.dutyTime {
			previousActive = mathx.Min(previousActive+shortenedBy, a.dutyTime)
		}
	}

	twoPeriodElapsed := previousPeriod + currentPeriod
	twoPeriodHigh := previousActive + currentActive

	var wait object.UpdateTime
	switch d.lastState {
	case actuator.StateActive:
		switch {
		case a.dutySetting == 100:
			actWait := a.retryAfter(actuator.StateActive, now)
			if currentPeriod+1000 <= a.period {
				wait = a.period - currentPeriod
			} else {
				wait = 1000
			}
			wait = mathx.Max(actWait, wait)
		case a.dutySetting <= 50:
			if currentActive < a.dutyTime {
				wait = a.dutyTime - currentActive
			}
		default:
			minHigh := a.dutyTime - a.dutyTime/4
			if currentActive < minHigh {
				wait = minHigh - currentActive
			} else {
				// maxHigh is bounded against the raw previous cycle, not
				// the history-clamped one above.
				maxHigh := mathx.Max(mathx.Max(a.dutyTime, d.previousActive), 3*a.dutyTime/4)
				if d.previousPeriod >= a.period {
					maxHigh += maxHigh / 2
				}
				if currentActive < maxHigh {
					target := object.UpdateTime(int64(twoPeriodElapsed) * int64(a.dutySetting) / 100)
					mean := mathx.Max(a.dutyTime, target/2)
					if currentActive > mean && previousActive < mean {
						target -= (currentActive - previousActive) / 4
					}
					if twoPeriodHigh < target {
						wait = mathx.Min(target-twoPeriodHigh, maxHigh-currentActive)
					}
				}
			}
		}
	case actuator.StateInactive:
		currentLow := currentPeriod - currentActive
		switch {
		case a.dutySetting == 0:
			actWait := a.retryAfter(actuator.StateInactive, now)
			if currentPeriod+1000 <= a.period {
				wait = a.period - currentPeriod
			} else {
				wait = 1000
			}
			wait = mathx.Max(actWait, wait)
		case a.dutySetting > 50:
			if currentLow < invDutyTime {
				wait = invDutyTime - currentLow
			}
		default:
			minLow := invDutyTime - invDutyTime/4
			if currentLow < minLow {
				wait = minLow - currentLow
			} else {
				// maxLow is bounded against the raw previous cycle, not
				// the history-clamped one above.
				previousLow := d.previousPeriod - d.previousActive
				maxLow := mathx.Max(mathx.Max(invDutyTime, previousLow), 3*invDutyTime/4)
				if d.previousPeriod >= a.period {
					maxLow += maxLow / 2
				}
				if currentLow < maxLow {
					target := twoPeriodElapsed - object.UpdateTime(int64(twoPeriodElapsed)*int64(a.dutySetting)/100)
					mean := mathx.Max(invDutyTime, target/2)
					if currentLow > mean && previousLow < mean {
						target -= (currentLow - previousLow) / 4
					}
					twoPeriodLow := twoPeriodElapsed - twoPeriodHigh
					if twoPeriodLow < target {
						wait = mathx.Min(target-twoPeriodLow, maxLow-currentLow)
					}
				}
			}
		}
	}

	lastState := d.lastState
	if a.enabled && a.settingValid && wait == 0 {
		if lastState == actuator.StateInactive {
			wait = a.retryAfter(actuator.StateActive, now)
		} else {
			wait = a.retryAfter(actuator.StateInactive, now)
		}
		lastState = a.target.State()
	}

	twoPeriodTotal := twoPeriodElapsed + wait
	if lastState == actuator.StateActive {
		twoPeriodHigh += wait
	}

	a.valueValid = true
	var dutyAchieved uint8
	if twoPeriodTotal > 0 {
		dutyAchieved = uint8(100 * int64(twoPeriodHigh) / int64(twoPeriodTotal))
	}
	switch lastState {
	case actuator.StateActive:
		if dutyAchieved >= a.dutyAchieved {
			a.dutyAchieved = dutyAchieved
		}
	case actuator.StateInactive:
		if dutyAchieved <= a.dutyAchieved {
			a.dutyAchieved = dutyAchieved
		}
	default:
		a.valueValid = false
		a.dutyAchieved = a.dutySetting
	}

	return now + mathx.Min[object.UpdateTime](1000, wait/2+1)
}

// retryAfter requests state s; if the constrained actuator refused, it
// returns the constraint's suggested retry delay instead of 0.
func (a *Actuator) retryAfter(s actuator.State, now object.UpdateTime) object.UpdateTime {
	_ = a.target.DesiredState(s, now)
	if a.target.State() == s {
		return 0
	}
	return a.target.RetryDelay(now)
}
