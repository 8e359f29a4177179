// Package fixedpoint implements the saturating fixed-point integer types
// the control core (internal/pid, internal/pwm) uses in place of floating
// point, grounded on the several FixedPoint.h/.cpp revisions in the brewery
// controller's original C++ source.
package fixedpoint

import "brewbox-controlbox/x/mathx"

// Temp is Q11.12: signed 32-bit, 12 fractional bits. Used for temperatures
// and PID input/output/setpoint values (in_t/out_t in the controller spec).
type Temp int32

const tempFrac = 12

// FromDeci builds a Temp from tenths of a degree (e.g. FromDeci(205) == 20.5).
func FromDeci(deciC int32) Temp {
	return Temp((int64(deciC) << tempFrac) / 10)
}

// ToDeci returns tenths of a degree, rounded to nearest.
func (t Temp) ToDeci() int32 {
	v := int64(t) * 10
	if v >= 0 {
		return int32((v + (1 << (tempFrac - 1))) >> tempFrac)
	}
	return -int32(((-v) + (1 << (tempFrac - 1))) >> tempFrac)
}

func (t Temp) Add(o Temp) Temp { return Temp(saturateAdd32(int32(t), int32(o))) }
func (t Temp) Sub(o Temp) Temp { return Temp(saturateAdd32(int32(t), -int32(o))) }

func (t Temp) Clamp(lo, hi Temp) Temp { return Temp(mathx.Clamp(int32(t), int32(lo), int32(hi))) }

// MulQ12 multiplies t by a Q12 coefficient (e.g. a gain), saturating.
func (t Temp) MulQ12(coeffQ12 int32) Temp {
	v := (int64(t) * int64(coeffQ12)) >> tempFrac
	return Temp(saturate32(v))
}

// Integral is Q29.12: signed 64-bit accumulator for the PID integral term,
// wide enough to avoid overflow across the full kp/ti/integration-time
// range the controller spec allows.
type Integral int64

const integralFrac = 12

func (i Integral) Add(deltaQ12 int64) Integral { return Integral(saturateAdd64(int64(i), deltaQ12)) }

func (i Integral) ToTemp() Temp { return Temp(saturate32(int64(i))) }

func (i Integral) Clamp(lo, hi Integral) Integral {
	return Integral(mathx.Clamp(int64(i), int64(lo), int64(hi)))
}

// Deriv is Q1.23: signed 32-bit, used for the PID filtered derivative term
// (needs fine resolution near zero, a narrow integer range).
type Deriv int32

const derivFrac = 23

func DerivFromTemp(t Temp) Deriv {
	// Q11.12 -> Q1.23: shift left by (23-12).
	return Deriv(saturate32(int64(t) << (derivFrac - tempFrac)))
}

func (d Deriv) ToTemp() Temp {
	return Temp(saturate32(int64(d) >> (derivFrac - tempFrac)))
}

// ---- saturation primitives ----

func saturate32(v int64) int32 {
	const maxI32 = int64(1<<31 - 1)
	const minI32 = -int64(1 << 31)
	if v > maxI32 {
		return int32(maxI32)
	}
	if v < minI32 {
		return int32(minI32)
	}
	return int32(v)
}

func saturateAdd32(a, b int32) int32 {
	return saturate32(int64(a) + int64(b))
}

func saturateAdd64(a, b int64) int64 {
	sum := a + b
	// Overflow occurred iff operands share a sign and the sum's sign differs.
	if (a > 0 && b > 0 && sum < 0) {
		return 1<<63 - 1
	}
	if (a < 0 && b < 0 && sum >= 0) {
		return -1 << 63
	}
	return sum
}
