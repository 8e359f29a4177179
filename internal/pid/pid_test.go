package pid

import (
	"testing"

	"brewbox-controlbox/internal/fixedpoint"
)

type fakeInput struct {
	setting, value fixedpoint.Temp
	valid          bool
}

func (f *fakeInput) Read() (fixedpoint.Temp, fixedpoint.Temp, bool) { return f.setting, f.value, f.valid }

type fakeOutput struct {
	setting      fixedpoint.Temp
	settingValid bool
	min, max     fixedpoint.Temp
}

func (f *fakeOutput) SetSetting(v fixedpoint.Temp)  { f.setting = v }
func (f *fakeOutput) SetSettingValid(v bool)        { f.settingValid = v }
func (f *fakeOutput) Limits() (fixedpoint.Temp, fixedpoint.Temp) { return f.min, f.max }

func newTestPid() (*Pid, *fakeInput, *fakeOutput) {
	in := &fakeInput{valid: true}
	out := &fakeOutput{min: fixedpoint.FromDeci(-1000), max: fixedpoint.FromDeci(1000)}
	p := New(in, out)
	p.SetKp(fixedpoint.FromDeci(20)) // kp=2.0
	p.SetEnabled(true)
	return p, in, out
}

func TestPidPositiveErrorDrivesPositiveOutput(t *testing.T) {
	p, in, out := newTestPid()
	in.setting = fixedpoint.FromDeci(200)
	in.value = fixedpoint.FromDeci(150) // below setpoint -> positive error
	p.Update(0, 1000)
	if out.setting <= 0 {
		t.Errorf("output = %d, want positive (heating response)", out.setting)
	}
	if !out.settingValid {
		t.Error("output should be marked valid while PID active")
	}
}

func TestPidNegativeErrorDrivesNegativeOutput(t *testing.T) {
	p, in, out := newTestPid()
	in.setting = fixedpoint.FromDeci(150)
	in.value = fixedpoint.FromDeci(200) // above setpoint -> negative error
	p.Update(0, 1000)
	if out.setting >= 0 {
		t.Errorf("output = %d, want negative (cooling response)", out.setting)
	}
}

func TestPidInputFailureDisablesAfterThreshold(t *testing.T) {
	p, in, out := newTestPid()
	in.valid = false
	for i := 0; i < inputFailureThreshold; i++ {
		p.Update(0, 1000)
	}
	if p.Active() {
		t.Error("PID should go inactive after sustained input failures")
	}
	if out.settingValid {
		t.Error("output setting should be marked invalid once PID deactivates")
	}
}

func TestPidRecoversOnceInputValidAgain(t *testing.T) {
	p, in, _ := newTestPid()
	in.valid = false
	for i := 0; i < inputFailureThreshold; i++ {
		p.Update(0, 1000)
	}
	in.valid = true
	in.setting = fixedpoint.FromDeci(200)
	in.value = fixedpoint.FromDeci(200)
	p.Update(0, 1000)
	if !p.Active() {
		t.Error("PID should reactivate once input is valid again")
	}
}

func TestPidOutputNeverExceedsLimits(t *testing.T) {
	p, in, out := newTestPid()
	in.setting = fixedpoint.FromDeci(900)
	in.value = fixedpoint.FromDeci(0) // huge error
	p.SetTi(1)                       // fast integration to stress anti-windup
	for i := 0; i < 50; i++ {
		p.Update(0, 1000)
	}
	if out.setting > out.max || out.setting < out.min {
		t.Errorf("output = %d, out of limits [%d,%d]", out.setting, out.min, out.max)
	}
}

func TestPidDisabledMarksOutputInvalid(t *testing.T) {
	p, _, out := newTestPid()
	p.SetEnabled(false)
	p.Update(0, 1000)
	if out.settingValid {
		t.Error("disabled PID should mark output setting invalid")
	}
	if p.Active() {
		t.Error("disabled PID should not be active")
	}
}
