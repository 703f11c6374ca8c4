package engine

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestTurnTimerFiresOncePerTurn(t *testing.T) {
	var fired atomic.Int32
	tt := NewTurnTimer(20*time.Millisecond, func() { fired.Add(1) }, nil)
	defer tt.Stop()

	tt.Update(true, "alice")
	waitFor(t, func() bool { return fired.Load() == 1 })

	// Same turn key after firing: no re-arm.
	tt.Update(true, "alice")
	time.Sleep(50 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Fatalf("timer fired %d times for one turn", got)
	}
}

func TestTurnTimerRestartsOnNewTurn(t *testing.T) {
	var fired atomic.Int32
	tt := NewTurnTimer(20*time.Millisecond, func() { fired.Add(1) }, nil)
	defer tt.Stop()

	tt.Update(true, "alice")
	waitFor(t, func() bool { return fired.Load() == 1 })

	// Turn went around the table and came back.
	tt.Update(false, "")
	tt.Update(true, "alice")
	waitFor(t, func() bool { return fired.Load() == 2 })
}

func TestTurnTimerStopsWhenTurnMovesAway(t *testing.T) {
	var fired atomic.Int32
	tt := NewTurnTimer(20*time.Millisecond, func() { fired.Add(1) }, nil)
	defer tt.Stop()

	tt.Update(true, "alice")
	tt.Update(false, "bob")
	if tt.Active() {
		t.Error("timer should be stopped when the turn moves away")
	}
	time.Sleep(50 * time.Millisecond)
	if got := fired.Load(); got != 0 {
		t.Fatalf("stopped timer fired %d times", got)
	}
}

func TestTurnTimerSameKeyKeepsCountdown(t *testing.T) {
	var fired atomic.Int32
	tt := NewTurnTimer(40*time.Millisecond, func() { fired.Add(1) }, nil)
	defer tt.Stop()

	tt.Update(true, "alice")
	// Repeated updates for the same turn must not push the deadline out.
	for i := 0; i < 4; i++ {
		time.Sleep(15 * time.Millisecond)
		tt.Update(true, "alice")
	}
	waitFor(t, func() bool { return fired.Load() == 1 })
}
