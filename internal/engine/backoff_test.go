package engine

import (
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	base := 500 * time.Millisecond
	max := 30 * time.Second
	tests := []struct {
		retries int
		want    time.Duration
	}{
		{0, 500 * time.Millisecond},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{20, 30 * time.Second}, // capped, no overflow
	}
	for _, tc := range tests {
		if got := Backoff(tc.retries, base, max); got != tc.want {
			t.Errorf("Backoff(%d) = %s, want %s", tc.retries, got, tc.want)
		}
	}
}

func TestBackoffZeroBase(t *testing.T) {
	if got := Backoff(3, 0, time.Minute); got != 0 {
		t.Errorf("expected zero delay for zero base, got %s", got)
	}
}
