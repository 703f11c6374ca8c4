// Package breaker gates outbound calls to the remote service based on
// recent failure history. Callers must treat a blocked call as an immediate
// local failure and leave the action queued; the breaker never blocks or
// sleeps itself.
package breaker

import (
	"time"

	"dominoclient/internal/ports"
)

const (
	// DefaultFailureThreshold opens the circuit after this many consecutive
	// failures.
	DefaultFailureThreshold = 5
	// DefaultCooldown is the initial blocked period after opening.
	DefaultCooldown = 10 * time.Second
	// DefaultMaxCooldown caps the extended cooldown after failed probes.
	DefaultMaxCooldown = 2 * time.Minute
)

// State is an inspection snapshot of the circuit.
type State struct {
	Failures    int
	Open        bool
	LastFailure time.Time
	NextAttempt time.Time
}

// Breaker is a circuit breaker with a probe-based half-open phase. Half-open
// is not a stored state: once the cooldown elapses Allow admits exactly one
// trial call, and the next Record decides whether the circuit closes or
// re-opens with an extended cooldown.
type Breaker struct {
	threshold   int
	cooldown    time.Duration
	maxCooldown time.Duration

	failures    int
	open        bool
	opens       int // consecutive opens, drives cooldown extension
	lastFailure time.Time
	nextAttempt time.Time

	now    func() time.Time
	logger ports.Logger

	// OnTransition is invoked (open=true/false) on every state change.
	// Optional; used for the degraded-service indicator and the journal.
	OnTransition func(open bool)
}

// New returns a closed breaker. Zero arguments select the defaults.
func New(threshold int, cooldown, maxCooldown time.Duration, logger ports.Logger) *Breaker {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if maxCooldown <= 0 {
		maxCooldown = DefaultMaxCooldown
	}
	if logger == nil {
		logger = ports.NopLogger{}
	}
	return &Breaker{
		threshold:   threshold,
		cooldown:    cooldown,
		maxCooldown: maxCooldown,
		now:         time.Now,
		logger:      logger,
	}
}

// Allow reports whether a call may be attempted. While open it returns
// false until the cooldown elapses, then true exactly once for the probe;
// further calls are blocked until the probe outcome is recorded.
//
// Not safe for concurrent use; the engine serializes access under its own
// lock, matching the one-operation-in-flight rule.
func (b *Breaker) Allow() bool {
	if !b.open {
		return true
	}
	now := b.now()
	if now.Before(b.nextAttempt) {
		return false
	}
	// Probe window: push the next attempt out so only this one call gets
	// through before RecordSuccess/RecordFailure re-evaluates.
	b.nextAttempt = now.Add(b.cooldown)
	b.logger.Debug("breaker: admitting probe call")
	return true
}

// RecordSuccess closes the circuit and resets all counters.
func (b *Breaker) RecordSuccess(latency time.Duration) {
	wasOpen := b.open
	b.failures = 0
	b.opens = 0
	b.open = false
	b.nextAttempt = time.Time{}
	if wasOpen {
		b.logger.Info("breaker: closed after successful probe (latency %s)", latency)
		if b.OnTransition != nil {
			b.OnTransition(false)
		}
	}
}

// RecordFailure counts a failure. Reaching the threshold opens the circuit;
// a failure while open (a failed probe) re-opens it with an extended
// cooldown, doubling per consecutive open up to the cap.
func (b *Breaker) RecordFailure(latency time.Duration, err error) {
	now := b.now()
	b.lastFailure = now

	if b.open {
		b.opens++
		b.nextAttempt = now.Add(b.extendedCooldown())
		b.logger.Warn("breaker: probe failed (%v), re-opened until %s", err, b.nextAttempt.Format(time.RFC3339))
		return
	}

	b.failures++
	if b.failures >= b.threshold {
		b.open = true
		b.opens = 1
		b.nextAttempt = now.Add(b.cooldown)
		b.logger.Warn("breaker: opened after %d consecutive failures (last: %v)", b.failures, err)
		if b.OnTransition != nil {
			b.OnTransition(true)
		}
	}
}

func (b *Breaker) extendedCooldown() time.Duration {
	d := b.cooldown
	for i := 1; i < b.opens; i++ {
		d *= 2
		if d >= b.maxCooldown {
			return b.maxCooldown
		}
	}
	if d > b.maxCooldown {
		d = b.maxCooldown
	}
	return d
}

// State returns an inspection snapshot.
func (b *Breaker) State() State {
	return State{
		Failures:    b.failures,
		Open:        b.open,
		LastFailure: b.lastFailure,
		NextAttempt: b.nextAttempt,
	}
}
