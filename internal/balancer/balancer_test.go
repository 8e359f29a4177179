package balancer

import "testing"

func TestAllotGrantsFullRequestWhenUnderBudget(t *testing.T) {
	b := New()
	if got := b.Allot(1, 30, 0); got != 30 {
		t.Errorf("Allot = %d, want 30", got)
	}
	if got := b.Allot(2, 40, 0); got != 40 {
		t.Errorf("Allot = %d, want 40", got)
	}
}

func TestAllotScalesDownProportionallyOverBudget(t *testing.T) {
	b := New()
	b.Allot(1, 60, 0)
	got2 := b.Allot(2, 60, 0)
	got1 := b.Granted(1)
	if int(got1)+int(got2) > 100 {
		t.Errorf("sum of granted = %d, want <= 100", int(got1)+int(got2))
	}
	if got1 != got2 {
		t.Errorf("equal requests should get equal shares: %d vs %d", got1, got2)
	}
}

func TestForgetRemovesChannelFromBudget(t *testing.T) {
	b := New()
	b.Allot(1, 80, 0)
	b.Allot(2, 80, 0)
	b.Forget(1)
	if got := b.Allot(2, 80, 0); got != 80 {
		t.Errorf("Allot after Forget(1) = %d, want 80 (budget freed)", got)
	}
}
