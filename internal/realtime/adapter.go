// Package realtime consumes the row-level subscription feed, tracks
// connection liveness from heartbeat gaps, and hands debounced snapshots to
// the reconciler. The liveness classification produced here is the only
// signal the engine uses to decide between attempting and queueing actions.
package realtime

import (
	"sync"
	"time"

	"dominoclient/internal/domain"
	"dominoclient/internal/ports"
)

// Liveness classifies the subscription connection from heartbeat gaps.
type Liveness string

const (
	LivenessConnected    Liveness = "connected"
	LivenessReconnecting Liveness = "reconnecting"
	LivenessDisconnected Liveness = "disconnected"
)

const (
	// DefaultCheckInterval is how often liveness is re-evaluated.
	DefaultCheckInterval = 2 * time.Second
	// DefaultConnectedWithin is the max heartbeat gap still "connected".
	DefaultConnectedWithin = 8 * time.Second
	// DefaultDisconnectedAfter is the gap past which we are "disconnected";
	// between the two bounds the link counts as "reconnecting".
	DefaultDisconnectedAfter = 15 * time.Second
	// DefaultSnapshotDebounce collapses bursts of near-simultaneous state
	// messages into one reconciliation pass.
	DefaultSnapshotDebounce = 150 * time.Millisecond
)

// Options tunes the adapter windows. Zero values select the defaults.
type Options struct {
	CheckInterval     time.Duration
	ConnectedWithin   time.Duration
	DisconnectedAfter time.Duration
	SnapshotDebounce  time.Duration
}

func (o *Options) fill() {
	if o.CheckInterval <= 0 {
		o.CheckInterval = DefaultCheckInterval
	}
	if o.ConnectedWithin <= 0 {
		o.ConnectedWithin = DefaultConnectedWithin
	}
	if o.DisconnectedAfter <= 0 {
		o.DisconnectedAfter = DefaultDisconnectedAfter
	}
	if o.SnapshotDebounce <= 0 {
		o.SnapshotDebounce = DefaultSnapshotDebounce
	}
}

// Adapter assembles row-level change events into whole snapshots and
// reports liveness. It keeps the last known server-side view: a match row
// replaces the match record, a player row replaces that seat's record. Only
// the most recent assembled snapshot is delivered after the debounce
// window; intermediate versions are dropped (last write wins at snapshot
// level).
type Adapter struct {
	mu            sync.Mutex
	opts          Options
	lastHeartbeat time.Time
	liveness      Liveness
	everBeat      bool

	serverView  domain.Snapshot
	viewStarted bool
	dirty       bool

	debounceTimer *time.Timer
	stop          chan struct{}
	stopOnce      sync.Once

	onSnapshot func(domain.Snapshot)
	onLiveness func(Liveness)

	now    func() time.Time
	logger ports.Logger
}

// New builds an adapter. onSnapshot receives debounced assembled snapshots;
// onLiveness is invoked on every classification change. Either may be nil.
func New(opts Options, onSnapshot func(domain.Snapshot), onLiveness func(Liveness), logger ports.Logger) *Adapter {
	opts.fill()
	if logger == nil {
		logger = ports.NopLogger{}
	}
	return &Adapter{
		opts:       opts,
		liveness:   LivenessDisconnected,
		stop:       make(chan struct{}),
		onSnapshot: onSnapshot,
		onLiveness: onLiveness,
		now:        time.Now,
		logger:     logger,
	}
}

// Start launches the periodic liveness check.
func (a *Adapter) Start() {
	go func() {
		ticker := time.NewTicker(a.opts.CheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.checkLiveness()
			case <-a.stop:
				return
			}
		}
	}()
}

// Stop halts the liveness check and any pending debounce delivery.
func (a *Adapter) Stop() {
	a.stopOnce.Do(func() { close(a.stop) })
	a.mu.Lock()
	if a.debounceTimer != nil {
		a.debounceTimer.Stop()
		a.debounceTimer = nil
	}
	a.mu.Unlock()
}

// HandleEvent ingests one subscription message. Every message counts as a
// heartbeat; state-carrying messages additionally update the assembled
// server view and schedule a debounced delivery.
func (a *Adapter) HandleEvent(ev ports.ChangeEvent) {
	a.mu.Lock()
	a.lastHeartbeat = a.now()
	a.everBeat = true

	stateChanged := false
	switch {
	case ev.Match != nil:
		if !a.viewStarted {
			a.serverView = domain.Snapshot{Players: map[string]*domain.PlayerState{}}
			a.viewStarted = true
		}
		a.serverView.Match = ev.Match.Clone()
		stateChanged = true
	case ev.Player != nil:
		if !a.viewStarted {
			// A player row before any match row has nothing to attach to;
			// count the heartbeat and wait for the match record.
			a.mu.Unlock()
			return
		}
		if ev.Kind == ports.ChangeDelete {
			delete(a.serverView.Players, ev.Player.UserID)
		} else {
			a.serverView.Players[ev.Player.UserID] = ev.Player.Clone()
		}
		stateChanged = true
	}

	if stateChanged {
		a.dirty = true
		if a.debounceTimer == nil {
			a.debounceTimer = time.AfterFunc(a.opts.SnapshotDebounce, a.deliver)
		}
	}
	a.mu.Unlock()
}

// Heartbeat records connection activity that carries no state (pongs,
// presence churn). Keeps the link classified as alive.
func (a *Adapter) Heartbeat() {
	a.mu.Lock()
	a.lastHeartbeat = a.now()
	a.everBeat = true
	a.mu.Unlock()
}

// Liveness returns the current classification.
func (a *Adapter) Liveness() Liveness {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.liveness
}

func (a *Adapter) deliver() {
	a.mu.Lock()
	a.debounceTimer = nil
	if !a.dirty || !a.viewStarted {
		a.mu.Unlock()
		return
	}
	a.dirty = false
	snap := a.serverView.Clone()
	cb := a.onSnapshot
	a.mu.Unlock()

	if cb != nil {
		cb(snap)
	}
}

func (a *Adapter) checkLiveness() {
	a.mu.Lock()
	var next Liveness
	switch gap := a.now().Sub(a.lastHeartbeat); {
	case !a.everBeat:
		next = LivenessDisconnected
	case gap <= a.opts.ConnectedWithin:
		next = LivenessConnected
	case gap <= a.opts.DisconnectedAfter:
		next = LivenessReconnecting
	default:
		next = LivenessDisconnected
	}
	changed := next != a.liveness
	a.liveness = next
	cb := a.onLiveness
	a.mu.Unlock()

	if changed {
		a.logger.Info("realtime: liveness %s", next)
		if cb != nil {
			cb(next)
		}
	}
}

// classify is the pure classification rule, exposed for tests.
func classify(gap time.Duration, opts Options) Liveness {
	switch {
	case gap <= opts.ConnectedWithin:
		return LivenessConnected
	case gap <= opts.DisconnectedAfter:
		return LivenessReconnecting
	default:
		return LivenessDisconnected
	}
}
