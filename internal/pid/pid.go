// Package pid implements the PID controller + filter chain (C11),
// grounded on controlbox/lib/inc/Pid.h's field and accessor shape, with
// the update loop translated directly from the controller spec's §4.11
// algorithm (Pid.cpp/FpFilterChain.cpp were not in the retrieved source).
package pid

import (
	"brewbox-controlbox/internal/fixedpoint"
	"brewbox-controlbox/internal/object"
)

// Input is the process value a PID reads: its setpoint, measured value,
// and whether the reading is currently trustworthy.
type Input interface {
	Read() (setting, value fixedpoint.Temp, valid bool)
}

// Output is the process value a PID drives.
type Output interface {
	SetSetting(v fixedpoint.Temp)
	SetSettingValid(valid bool)
	Limits() (min, max fixedpoint.Temp)
}

// inputFailureThreshold is how many consecutive invalid input reads are
// tolerated before the PID disables its output (§4.11 step 1).
const inputFailureThreshold = 3

// Pid is the C11 controller. Update must be called every 1s per the spec.
type Pid struct {
	input  Input
	output Output
	filter *Filter

	kp           fixedpoint.Temp
	ti, td       uint16 // seconds
	filterChoice uint8
	enabled      bool
	active       bool

	errorVal          fixedpoint.Temp
	p, i, d           fixedpoint.Temp
	integral          fixedpoint.Integral
	derivative        fixedpoint.Deriv
	inputFailureCount uint8
}

func New(input Input, output Output) *Pid {
	return &Pid{input: input, output: output, filter: NewFilter(0, 0)}
}

func (p *Pid) Kp() fixedpoint.Temp  { return p.kp }
func (p *Pid) SetKp(v fixedpoint.Temp) { p.kp = v }
func (p *Pid) Ti() uint16           { return p.ti }
func (p *Pid) SetTi(v uint16)       { p.ti = v }
func (p *Pid) Td() uint16           { return p.td }
func (p *Pid) SetTd(v uint16)       { p.td = v }

func (p *Pid) ConfigureFilter(choice uint8, threshold fixedpoint.Temp) {
	p.filterChoice = choice
	p.filter.SetParams(choice, threshold)
}
func (p *Pid) FilterChoice() uint8 { return p.filterChoice }

func (p *Pid) SetEnabled(v bool) {
	p.enabled = v
	p.setActive(v)
}
func (p *Pid) Enabled() bool { return p.enabled }
func (p *Pid) Active() bool  { return p.active }

func (p *Pid) setActive(v bool) {
	p.output.SetSettingValid(v)
	p.active = v
}

func (p *Pid) Error() fixedpoint.Temp          { return p.errorVal }
func (p *Pid) P() fixedpoint.Temp              { return p.p }
func (p *Pid) I() fixedpoint.Temp              { return p.i }
func (p *Pid) D() fixedpoint.Temp              { return p.d }
func (p *Pid) Integral() fixedpoint.Integral   { return p.integral }
func (p *Pid) Derivative() fixedpoint.Deriv    { return p.derivative }

// Update runs one PID cycle, called every dt (nominally 1000ms).
func (p *Pid) Update(now, dt object.UpdateTime) {
	if !p.enabled {
		p.setActive(false)
		p.decayIntegral()
		return
	}

	setting, value, valid := p.input.Read()
	if !valid {
		p.inputFailureCount++
		if p.inputFailureCount >= inputFailureThreshold {
			p.setActive(false)
		}
		return
	}
	p.inputFailureCount = 0
	if !p.active {
		p.setActive(true)
	}

	p.filter.Add(value)
	p.errorVal = setting.Sub(p.filter.Read())

	// p = kp * error, both Q11.12: scale the product back down by 12 bits.
	p.p = fixedpoint.Temp((int64(p.kp) * int64(p.errorVal)) >> 12)

	if p.ti == 0 {
		p.integral = 0
	} else {
		// i += kp*error*dt/ti, dt and ti both in consistent time units (ms/s*1000).
		deltaQ12 := (int64(p.kp) * int64(p.errorVal) / 4096 * int64(dt)) / (int64(p.ti) * 1000)
		p.integral = p.integral.Add(deltaQ12)
	}

	p.derivative = p.filter.Derivative()
	tdScaled := (int64(p.derivative) * int64(p.td) * 1000) / int64(dt+1)
	p.d = fixedpoint.Temp(-(int64(p.kp) * tdScaled) >> 23)

	// Anti-windup: if p+i+d would saturate further than the output's
	// limits, clamp the integral so it stops contributing to the overshoot.
	min, max := p.output.Limits()
	pd := p.p.Add(p.d)
	unclamped := pd.Add(p.integral.ToTemp())
	if unclamped > max {
		if limit := fixedpoint.Integral(int64(max.Sub(pd)) << 12); p.integral > limit {
			p.integral = limit
		}
	} else if unclamped < min {
		if limit := fixedpoint.Integral(int64(min.Sub(pd)) << 12); p.integral < limit {
			p.integral = limit
		}
	}

	p.i = p.integral.ToTemp()
	out := p.p.Add(p.i).Add(p.d).Clamp(min, max)
	p.output.SetSetting(out)
}

// decayIntegral relaxes the accumulator toward 0 while the output is
// inactive, so a long-disabled PID doesn't wind up stale on re-enable.
func (p *Pid) decayIntegral() {
	if p.integral == 0 {
		return
	}
	p.integral = p.integral.Add(-int64(p.integral) / 8)
}
