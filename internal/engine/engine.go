// Package engine is the client-side state synchronization core: optimistic
// apply with a two-phase commit per action, a durable retry queue, circuit
// breaking over the transport, and the per-turn auto-play fallback.
//
// Phase 1 validates an intent, snapshots the pre-apply state, applies the
// new state optimistically and enqueues the action. Phase 2 performs the
// breaker-gated remote call and either commits or rolls back to the
// snapshot. Exactly one operation may be in flight per match per client.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"dominoclient/internal/breaker"
	"dominoclient/internal/conflict"
	"dominoclient/internal/domain"
	"dominoclient/internal/journal"
	"dominoclient/internal/ports"
	"dominoclient/internal/queue"
	"dominoclient/internal/realtime"
	"dominoclient/internal/store"
	"dominoclient/internal/validator"
)

// SyncStatus summarizes engine health for the presentation layer.
type SyncStatus string

const (
	SyncSynced   SyncStatus = "synced"
	SyncPending  SyncStatus = "pending"
	SyncConflict SyncStatus = "conflict"
	SyncFailed   SyncStatus = "failed"
)

// Notification is a user-visible message about a sync event. Every
// rejected action and every rollback produces one.
type Notification struct {
	Level   string // "info", "warn", "error"
	Message string
}

// Defaults for the commit pipeline.
const (
	DefaultCommitTimeout  = 15 * time.Second
	DefaultMaxRetries     = 5
	DefaultRetryBaseDelay = 500 * time.Millisecond
	DefaultRetryMaxDelay  = 30 * time.Second
	committedRetention    = time.Minute
)

// Config tunes the engine. Zero values select the defaults.
type Config struct {
	UserID         string
	MatchID        string
	CommitTimeout  time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	TurnDuration   time.Duration
}

func (c *Config) fill() {
	if c.CommitTimeout <= 0 {
		c.CommitTimeout = DefaultCommitTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = DefaultRetryMaxDelay
	}
	if c.TurnDuration <= 0 {
		c.TurnDuration = DefaultTurnDuration
	}
}

// pendingOp is the single in-flight operation, including the rollback
// snapshot that never leaves the engine.
type pendingOp struct {
	id       string
	kind     queue.Kind
	piece    domain.Piece
	side     domain.Side
	snapshot domain.Snapshot // pre-apply state, restored on rollback
	retries  int
	queued   bool // already present in the durable queue (a retry)
	timeout  *time.Timer
}

// Engine coordinates the local store, durable queue, breaker, validator
// and reconciler into the commit pipeline.
type Engine struct {
	mu  sync.Mutex
	cfg Config

	st  *store.Store
	q   *queue.Queue
	br  *breaker.Breaker
	val *validator.Validator
	rec *conflict.Reconciler
	svc ports.GameService
	jr  *journal.Journal

	timer      *TurnTimer
	pending    *pendingOp
	remoteBusy bool // server-side auto-play call in flight

	committed  map[string]time.Time // recent commits, for idempotency
	liveness   realtime.Liveness
	hardFail   bool
	retryArmed bool

	// OnNotify receives user-visible sync notifications. Optional.
	OnNotify func(Notification)

	now    func() time.Time
	newID  func() string
	logger ports.Logger
}

// New wires an engine from its collaborators.
func New(cfg Config, svc ports.GameService, st *store.Store, q *queue.Queue,
	br *breaker.Breaker, val *validator.Validator, rec *conflict.Reconciler,
	jr *journal.Journal, logger ports.Logger) *Engine {

	cfg.fill()
	if logger == nil {
		logger = ports.NopLogger{}
	}
	e := &Engine{
		cfg:       cfg,
		st:        st,
		q:         q,
		br:        br,
		val:       val,
		rec:       rec,
		svc:       svc,
		jr:        jr,
		committed: make(map[string]time.Time),
		liveness:  realtime.LivenessDisconnected,
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
		logger:    logger,
	}
	e.timer = NewTurnTimer(cfg.TurnDuration, e.onTurnTimeout, logger)
	return e
}

// Close stops the turn timer and flushes the queue.
func (e *Engine) Close() error {
	e.timer.Stop()
	return e.q.Close()
}

// Play submits a play intent for the given piece (any accepted encoding).
func (e *Engine) Play(rawPiece any) error {
	piece, err := e.val.Standardize(rawPiece)
	if err != nil {
		e.notify("error", err.Error())
		return err
	}
	return e.submit(queue.KindPlay, piece, "", 0, false)
}

// Pass submits a pass intent.
func (e *Engine) Pass() error {
	return e.submit(queue.KindPass, domain.Piece{}, "", 0, false)
}

// AutoPlay scans the hand in fixed order for the first connectable piece
// and plays it, passing when nothing connects. Both paths run the same
// two-phase pipeline as a manual move.
func (e *Engine) AutoPlay() error {
	e.mu.Lock()
	snap, ok := e.st.Snapshot()
	if !ok {
		e.mu.Unlock()
		return ErrNoMatchState
	}
	me := snap.Players[e.cfg.UserID]
	if me == nil {
		e.mu.Unlock()
		return ErrUnknownPlayer
	}
	ends := snap.Match.Board.OpenEnds()
	var chosen *domain.Piece
	for i := range me.Hand {
		if e.val.CanConnect(me.Hand[i], ends) {
			p := me.Hand[i]
			chosen = &p
			break
		}
	}
	e.mu.Unlock()

	if chosen != nil {
		return e.submit(queue.KindPlay, *chosen, "", 0, false)
	}
	return e.submit(queue.KindPass, domain.Piece{}, "", 0, false)
}

// RequestServerAutoPlay asks the server to compute and apply the fallback
// move. No optimistic apply happens; any returned snapshot is adopted
// through the reconciler. Used when the local view cannot decide, e.g.
// while conflicts are pending.
func (e *Engine) RequestServerAutoPlay() error {
	e.mu.Lock()
	if e.pending != nil || e.remoteBusy {
		e.mu.Unlock()
		return ErrAlreadyProcessing
	}
	if !e.br.Allow() {
		e.mu.Unlock()
		return &TransportError{Op: "auto-play", Err: errors.New("circuit open")}
	}
	e.remoteBusy = true
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.CommitTimeout)
	defer cancel()
	start := e.now()
	resp, err := e.svc.SubmitAutoPlay(ctx, e.cfg.MatchID)
	latency := e.now().Sub(start)

	e.mu.Lock()
	e.remoteBusy = false
	if err != nil {
		var rej *ports.RejectionError
		if !errors.As(err, &rej) {
			e.br.RecordFailure(latency, err)
		}
		e.mu.Unlock()
		e.notify("error", "server auto-play failed: "+err.Error())
		return err
	}
	e.br.RecordSuccess(latency)
	if resp != nil {
		e.rec.Apply(*resp)
		e.refreshTimerLocked()
	}
	e.mu.Unlock()
	return nil
}

// HandleServerSnapshot feeds a debounced authoritative snapshot into the
// reconciler. Wired as the realtime adapter's snapshot callback.
func (e *Engine) HandleServerSnapshot(snap domain.Snapshot) {
	e.mu.Lock()
	conflicts := e.rec.Apply(snap)
	e.refreshTimerLocked()
	for _, c := range conflicts {
		e.jr.Record("conflict_detected", "", map[string]any{
			"type": string(c.Type), "severity": string(c.Severity), "auto": c.AutoResolvable,
		})
	}
	connected := e.liveness == realtime.LivenessConnected
	e.mu.Unlock()

	if connected {
		e.maybeDrain()
	}
}

// OnLiveness tracks the realtime classification. Wired as the adapter's
// liveness callback. Reaching connected drains the queue.
func (e *Engine) OnLiveness(l realtime.Liveness) {
	e.mu.Lock()
	e.liveness = l
	e.mu.Unlock()
	e.jr.Record("liveness", "", map[string]any{"state": string(l)})

	if l == realtime.LivenessConnected {
		e.maybeDrain()
	}
}

// Conflicts returns the outstanding manual conflicts.
func (e *Engine) Conflicts() []conflict.Conflict {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec.Pending()
}

// ResolveConflict answers one pending conflict.
func (e *Engine) ResolveConflict(id string, choice conflict.Resolution) error {
	e.mu.Lock()
	err := e.rec.Resolve(id, choice)
	e.refreshTimerLocked()
	e.mu.Unlock()
	if err == nil {
		e.jr.Record("conflict_resolved", "", map[string]any{"id": id, "choice": string(choice)})
	}
	return err
}

// ForceReconcile discards local divergence and adopts the last server
// snapshot outright.
func (e *Engine) ForceReconcile() error {
	e.mu.Lock()
	err := e.rec.ForceServer()
	e.refreshTimerLocked()
	e.mu.Unlock()
	if err == nil {
		e.jr.Record("forced_reconcile", "", nil)
	}
	return err
}

// Status is the surface exposed to the presentation layer.
type Status struct {
	Snapshot     domain.Snapshot
	HasState     bool
	InFlight     bool
	InFlightKind queue.Kind
	Sync         SyncStatus
	QueueDepth   int
	Conflicts    []conflict.Conflict
	Liveness     realtime.Liveness
	Breaker      breaker.State
	StoreVersion int64
}

// Status reports the current engine state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap, ok := e.st.Snapshot()
	s := Status{
		Snapshot:     snap,
		HasState:     ok,
		InFlight:     e.pending != nil || e.remoteBusy,
		QueueDepth:   e.q.Len(),
		Conflicts:    e.rec.Pending(),
		Liveness:     e.liveness,
		Breaker:      e.br.State(),
		StoreVersion: e.st.Version(),
	}
	if e.pending != nil {
		s.InFlightKind = e.pending.kind
	}
	switch {
	case e.rec.Blocked():
		s.Sync = SyncConflict
	case s.InFlight || s.QueueDepth > 0:
		s.Sync = SyncPending
	case e.hardFail:
		s.Sync = SyncFailed
	default:
		s.Sync = SyncSynced
	}
	return s
}

// submit runs phase 1 and launches phase 2. opID is set when replaying an
// operation that already sits in the durable queue.
func (e *Engine) submit(kind queue.Kind, piece domain.Piece, opID string, retries int, queued bool) error {
	e.mu.Lock()
	snap, ok := e.st.Snapshot()
	if !ok {
		e.mu.Unlock()
		return ErrNoMatchState
	}
	if e.pending != nil || e.remoteBusy {
		e.mu.Unlock()
		e.notify("warn", "an action is already being processed")
		return ErrAlreadyProcessing
	}
	if e.rec.HasCriticalPending() {
		e.mu.Unlock()
		e.notify("error", "resolve pending conflicts before playing")
		return ErrReconciliationRequired
	}
	if snap.Match.Status != domain.StatusActive {
		e.mu.Unlock()
		return ErrMatchNotActive
	}
	me := snap.Players[e.cfg.UserID]
	if me == nil {
		e.mu.Unlock()
		return ErrUnknownPlayer
	}
	if snap.Match.CurrentTurnID != e.cfg.UserID {
		e.mu.Unlock()
		e.notify("warn", "not your turn")
		return ErrNotYourTurn
	}

	pre := snap.Clone()
	next := snap.Clone()
	var side domain.Side

	if kind == queue.KindPlay {
		if !domain.ContainsPiece(me.Hand, piece) {
			e.mu.Unlock()
			err := &ValidationError{Piece: piece, Reason: "piece not in hand"}
			e.notify("error", err.Error())
			return err
		}
		ends := snap.Match.Board.OpenEnds()
		if !e.val.CanConnect(piece, ends) {
			e.mu.Unlock()
			err := &ValidationError{Piece: piece, Reason: "does not match either open end"}
			e.notify("error", err.Error())
			return err
		}
		side = e.val.ChooseSide(piece, ends)

		hand, _ := domain.RemovePiece(next.Players[e.cfg.UserID].Hand, piece)
		next.Players[e.cfg.UserID].Hand = hand
		if err := next.Match.Board.Place(piece, side); err != nil {
			e.mu.Unlock()
			return err
		}
		next.Match.ConsecutivePasses = 0
	} else {
		next.Match.ConsecutivePasses++
	}
	next.Match.CurrentTurnID = snap.NextTurnID(e.cfg.UserID)
	next.Match.UpdatedAt = e.now()

	id := opID
	if id == "" {
		id = e.newID()
	}
	op := &pendingOp{
		id:       id,
		kind:     kind,
		piece:    piece,
		side:     side,
		snapshot: pre,
		retries:  retries,
		queued:   queued,
	}
	op.timeout = time.AfterFunc(e.cfg.CommitTimeout, func() {
		e.failAttempt(id, &TransportError{Op: string(kind), Err: errors.New("commit deadline"), Timeout: true})
	})
	e.pending = op

	e.st.Set(next, store.SourceLocal)
	e.refreshTimerLocked()
	if !queued {
		e.q.Enqueue(&queue.Operation{ID: id, Kind: kind, Piece: piece, Side: side, RetryCount: retries})
	}
	e.jr.Record("op_applied", id, map[string]any{"kind": string(kind), "piece": piece.String(), "retries": retries})
	e.logger.Debug("engine: applied %s %s optimistically (op %s)", kind, piece, id)
	e.mu.Unlock()

	go e.phase2(id, kind, piece, side)
	return nil
}

// phase2 performs the remote call for an in-flight operation.
func (e *Engine) phase2(id string, kind queue.Kind, piece domain.Piece, side domain.Side) {
	e.mu.Lock()
	if e.pending == nil || e.pending.id != id {
		e.mu.Unlock()
		return
	}
	if e.liveness != realtime.LivenessConnected {
		e.mu.Unlock()
		e.deferAttempt(id, "offline")
		return
	}
	if !e.br.Allow() {
		e.mu.Unlock()
		e.deferAttempt(id, "service degraded")
		return
	}
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.CommitTimeout)
	defer cancel()

	start := e.now()
	var (
		resp *domain.Snapshot
		err  error
	)
	switch kind {
	case queue.KindPlay:
		resp, err = e.svc.SubmitMove(ctx, e.cfg.MatchID, piece, side)
	default:
		resp, err = e.svc.SubmitPass(ctx, e.cfg.MatchID)
	}
	latency := e.now().Sub(start)

	if err == nil {
		e.mu.Lock()
		e.br.RecordSuccess(latency)
		e.mu.Unlock()
		e.commit(id, resp)
		return
	}

	var rej *ports.RejectionError
	if errors.As(err, &rej) {
		// The server understood the action and refused it: final.
		e.rejectAttempt(id, rej)
		return
	}

	e.mu.Lock()
	e.br.RecordFailure(latency, err)
	e.mu.Unlock()
	e.failAttempt(id, &TransportError{Op: string(kind), Err: err, Timeout: errors.Is(err, context.DeadlineExceeded)})
}

// commit finishes a confirmed operation. Committing the same id twice is a
// no-op, and a response for an operation no longer tracked (rolled back,
// unknown) is dropped.
func (e *Engine) commit(id string, authoritative *domain.Snapshot) {
	e.mu.Lock()
	if _, done := e.committed[id]; done {
		e.mu.Unlock()
		return
	}
	if e.pending == nil || e.pending.id != id {
		e.logger.Debug("engine: dropping late response for untracked op %s", id)
		e.mu.Unlock()
		return
	}
	e.pending.timeout.Stop()
	e.pending = nil
	e.hardFail = false
	e.q.Remove(id)
	e.rememberCommitLocked(id)
	if authoritative != nil {
		e.rec.Apply(*authoritative)
	}
	e.refreshTimerLocked()
	e.jr.Record("op_committed", id, nil)
	e.logger.Debug("engine: committed op %s", id)
	e.mu.Unlock()

	e.maybeDrain()
}

// failAttempt rolls back a transport failure or timeout. The action stays
// queued for retry while the budget lasts, then is dropped and surfaced as
// a hard failure.
func (e *Engine) failAttempt(id string, terr *TransportError) {
	e.mu.Lock()
	op := e.takePendingLocked(id)
	if op == nil {
		e.mu.Unlock()
		return
	}
	e.st.Set(op.snapshot, store.SourceLocal)
	e.refreshTimerLocked()

	retries := op.retries + 1
	if retries >= e.cfg.MaxRetries {
		e.q.Remove(id)
		e.hardFail = true
		e.jr.Record("op_dropped", id, map[string]any{"error": terr.Error(), "retries": retries})
		e.mu.Unlock()
		e.notify("error", "action failed after repeated attempts: "+terr.Error())
		return
	}
	e.q.Touch(id, func(o *queue.Operation) { o.RetryCount = retries })
	e.jr.Record("op_rolled_back", id, map[string]any{"error": terr.Error(), "retries": retries})
	e.mu.Unlock()
	e.notify("warn", "action could not reach the server, will retry")

	e.maybeDrain()
}

// deferAttempt rolls back an attempt that was never sent (offline, circuit
// open) but keeps it queued without spending retry budget.
func (e *Engine) deferAttempt(id, reason string) {
	e.mu.Lock()
	op := e.takePendingLocked(id)
	if op == nil {
		e.mu.Unlock()
		return
	}
	e.st.Set(op.snapshot, store.SourceLocal)
	e.refreshTimerLocked()
	e.jr.Record("op_deferred", id, map[string]any{"reason": reason})
	e.mu.Unlock()
	e.notify("info", "action queued ("+reason+")")
}

// rejectAttempt rolls back a server-refused action and discards it.
func (e *Engine) rejectAttempt(id string, rej *ports.RejectionError) {
	e.mu.Lock()
	op := e.takePendingLocked(id)
	if op == nil {
		e.mu.Unlock()
		return
	}
	e.st.Set(op.snapshot, store.SourceLocal)
	e.refreshTimerLocked()
	e.q.Remove(id)
	e.jr.Record("op_rejected", id, map[string]any{"code": rej.Code})
	e.mu.Unlock()
	e.notify("error", "move rejected by server: "+rej.Message)
}

// takePendingLocked detaches the in-flight op when it matches id. Late
// events for other ids leave state untouched.
func (e *Engine) takePendingLocked(id string) *pendingOp {
	if e.pending == nil || e.pending.id != id {
		return nil
	}
	op := e.pending
	op.timeout.Stop()
	e.pending = nil
	return op
}

func (e *Engine) rememberCommitLocked(id string) {
	now := e.now()
	e.committed[id] = now
	for k, at := range e.committed {
		if now.Sub(at) > committedRetention {
			delete(e.committed, k)
		}
	}
}

// maybeDrain schedules the next queued operation for replay, honoring the
// backoff for its retry count. At most one replay is armed at a time.
func (e *Engine) maybeDrain() {
	e.mu.Lock()
	if e.retryArmed || e.pending != nil || e.remoteBusy ||
		e.liveness != realtime.LivenessConnected || e.rec.Blocked() {
		e.mu.Unlock()
		return
	}
	if n := e.q.Expire(); n > 0 {
		e.logger.Info("engine: dropped %d queued actions past max age", n)
	}
	next := e.q.DequeueNext(nil)
	if next == nil {
		e.mu.Unlock()
		return
	}
	delay := Backoff(next.RetryCount, e.cfg.RetryBaseDelay, e.cfg.RetryMaxDelay)
	e.retryArmed = true
	id := next.ID
	e.mu.Unlock()

	time.AfterFunc(delay, func() {
		e.mu.Lock()
		e.retryArmed = false
		e.mu.Unlock()
		e.replay(id)
	})
}

// replay re-runs a queued operation through the full pipeline. Operations
// the current state no longer supports are dropped.
func (e *Engine) replay(id string) {
	e.mu.Lock()
	op := e.q.DequeueNext(func(o *queue.Operation) bool { return o.ID == id })
	if op == nil || e.pending != nil || e.liveness != realtime.LivenessConnected {
		e.mu.Unlock()
		return
	}
	snap, ok := e.st.Snapshot()
	if !ok {
		e.mu.Unlock()
		return
	}
	drop := ""
	if snap.Match.Status != domain.StatusActive {
		drop = "match no longer active"
	} else if snap.Match.CurrentTurnID != e.cfg.UserID {
		drop = "turn has moved on"
	} else if op.Kind == queue.KindPlay {
		me := snap.Players[e.cfg.UserID]
		if me == nil || !domain.ContainsPiece(me.Hand, op.Piece) {
			drop = "piece no longer in hand"
		} else if !e.val.CanConnect(op.Piece, snap.Match.Board.OpenEnds()) {
			drop = "piece no longer connects"
		}
	}
	if drop != "" {
		e.q.Remove(id)
		e.jr.Record("op_dropped", id, map[string]any{"reason": drop})
		e.mu.Unlock()
		e.notify("info", "queued action dropped: "+drop)
		e.maybeDrain()
		return
	}
	kind, piece, retries := op.Kind, op.Piece, op.RetryCount
	e.mu.Unlock()

	if err := e.submit(kind, piece, id, retries, true); err != nil {
		e.logger.Debug("engine: replay of %s skipped: %v", id, err)
	}
}

// onTurnTimeout is the turn timer callback: local auto-play, falling back
// to the server-computed move when conflicts block the local path.
func (e *Engine) onTurnTimeout() {
	err := e.AutoPlay()
	if errors.Is(err, ErrReconciliationRequired) {
		if err := e.RequestServerAutoPlay(); err != nil {
			e.logger.Warn("engine: server auto-play fallback failed: %v", err)
		}
		return
	}
	if err != nil && !errors.Is(err, ErrNotYourTurn) && !errors.Is(err, ErrAlreadyProcessing) {
		e.logger.Warn("engine: auto-play failed: %v", err)
	}
}

// refreshTimerLocked reconciles the turn timer with the stored state.
func (e *Engine) refreshTimerLocked() {
	snap, ok := e.st.Snapshot()
	if !ok {
		e.timer.Stop()
		return
	}
	myTurn := snap.Match.Status == domain.StatusActive &&
		snap.Match.CurrentTurnID == e.cfg.UserID &&
		e.pending == nil
	e.timer.Update(myTurn, snap.Match.CurrentTurnID)
}

func (e *Engine) notify(level, msg string) {
	if e.OnNotify != nil {
		e.OnNotify(Notification{Level: level, Message: msg})
	}
	switch level {
	case "error":
		e.logger.Error("%s", msg)
	case "warn":
		e.logger.Warn("%s", msg)
	default:
		e.logger.Info("%s", msg)
	}
}
