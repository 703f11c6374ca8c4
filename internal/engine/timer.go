package engine

import (
	"sync"
	"time"

	"dominoclient/internal/ports"
)

// DefaultTurnDuration is the countdown granted per turn.
const DefaultTurnDuration = 12 * time.Second

// TurnTimer runs a single countdown while it is the local player's turn.
// It resets when the turn pointer changes, stops when the turn moves away,
// and fires its callback at most once per turn key. No suspended timers
// accumulate: there is exactly one underlying timer, restarted in place.
type TurnTimer struct {
	mu       sync.Mutex
	duration time.Duration
	timer    *time.Timer
	key      string // identity of the turn being timed; "" when stopped
	fired    bool
	onExpire func()
	logger   ports.Logger
}

// NewTurnTimer builds a stopped timer. onExpire runs on its own goroutine
// when the countdown reaches zero.
func NewTurnTimer(duration time.Duration, onExpire func(), logger ports.Logger) *TurnTimer {
	if duration <= 0 {
		duration = DefaultTurnDuration
	}
	if logger == nil {
		logger = ports.NopLogger{}
	}
	return &TurnTimer{duration: duration, onExpire: onExpire, logger: logger}
}

// Update reconciles the timer with the current turn. key identifies the
// turn being timed (the turn holder); a changed key restarts the
// countdown, myTurn=false stops it.
func (t *TurnTimer) Update(myTurn bool, key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !myTurn {
		t.stopLocked()
		return
	}
	if t.key == key {
		return // same turn, countdown keeps running (or already fired)
	}
	t.stopLocked()
	t.key = key
	t.fired = false
	t.timer = time.AfterFunc(t.duration, func() { t.fire(key) })
	t.logger.Debug("turn timer: armed %s for %s", t.duration, key)
}

// Stop halts any running countdown.
func (t *TurnTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

// Active reports whether a countdown is currently armed.
func (t *TurnTimer) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.key != "" && !t.fired
}

func (t *TurnTimer) stopLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.key = ""
	t.fired = false
}

func (t *TurnTimer) fire(key string) {
	t.mu.Lock()
	if t.key != key || t.fired {
		t.mu.Unlock()
		return
	}
	t.fired = true
	cb := t.onExpire
	t.mu.Unlock()

	t.logger.Info("turn timer: expired, triggering auto-play")
	if cb != nil {
		cb()
	}
}
