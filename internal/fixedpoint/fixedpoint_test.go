package fixedpoint

import "testing"

func TestTempDeciRoundTrip(t *testing.T) {
	cases := []int32{0, 10, 205, -205, 1000, -1000}
	for _, deci := range cases {
		v := FromDeci(deci)
		got := v.ToDeci()
		if got != deci {
			t.Errorf("FromDeci(%d).ToDeci() = %d, want %d", deci, got, deci)
		}
	}
}

func TestTempAddSaturates(t *testing.T) {
	max := Temp(1<<31 - 1)
	if got := max.Add(max); got != max {
		t.Errorf("Add overflow: got %d want %d", got, max)
	}
	min := Temp(-1 << 31)
	if got := min.Add(min); got != min {
		t.Errorf("Add underflow: got %d want %d", got, min)
	}
}

func TestTempClamp(t *testing.T) {
	v := FromDeci(500)
	lo := FromDeci(0)
	hi := FromDeci(300)
	if got := v.Clamp(lo, hi); got != hi {
		t.Errorf("Clamp = %d, want %d", got, hi)
	}
}

func TestIntegralAddSaturates(t *testing.T) {
	max := Integral(1<<63 - 1)
	if got := max.Add(1); got != max {
		t.Errorf("Integral overflow: got %d want %d", got, max)
	}
}

func TestDerivTempRoundTrip(t *testing.T) {
	v := FromDeci(123)
	d := DerivFromTemp(v)
	back := d.ToTemp()
	diff := back - v
	if diff < -1 || diff > 1 {
		t.Errorf("round trip drift too large: %d -> %d -> %d", v, d, back)
	}
}
