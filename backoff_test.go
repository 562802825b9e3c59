package taskpoll

import (
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{9, 900 * time.Millisecond},
		{10, time.Second},
		{11, time.Second},
		{30, time.Second},
		{1 << 40, time.Second},
	}

	for _, tt := range tests {
		if got := Backoff(tt.attempt); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestBackoff_NonDecreasing(t *testing.T) {
	prev := time.Duration(0)
	for n := 1; n <= 100; n++ {
		d := Backoff(n)
		if d < prev {
			t.Fatalf("Backoff(%d) = %v < Backoff(%d) = %v", n, d, n-1, prev)
		}
		want := min(time.Duration(n)*100*time.Millisecond, time.Second)
		if d != want {
			t.Errorf("Backoff(%d) = %v, want %v", n, d, want)
		}
		prev = d
	}
}

func TestLinearBackoff_CustomSchedule(t *testing.T) {
	if got := linearBackoff(3, 10*time.Millisecond, 25*time.Millisecond); got != 25*time.Millisecond {
		t.Errorf("linearBackoff(3, 10ms, 25ms) = %v, want 25ms", got)
	}
	if got := linearBackoff(2, 10*time.Millisecond, 25*time.Millisecond); got != 20*time.Millisecond {
		t.Errorf("linearBackoff(2, 10ms, 25ms) = %v, want 20ms", got)
	}
}
