package conflict

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dominoclient/internal/domain"
	"dominoclient/internal/ports"
	"dominoclient/internal/store"
)

// Resolution is a user's answer to a manual conflict.
type Resolution string

const (
	ResolveUseLocal  Resolution = "use_local"
	ResolveUseServer Resolution = "use_server"
	ResolveMerge     Resolution = "merge"
)

var (
	// ErrUnknownConflict is returned when resolving an id that is not
	// pending.
	ErrUnknownConflict = errors.New("conflict not found")
	// ErrMergeImpossible is returned when a structural merge cannot be
	// computed; the caller must pick a side instead.
	ErrMergeImpossible = errors.New("structural merge impossible")
)

// Reconciler applies authoritative snapshots to the local store. Auto
// resolvable divergence (turn, status) adopts the server value silently via
// the merge; board and hand divergence accumulates as pending conflicts and
// suspends further reconciliation until the user resolves them or the
// forced path discards local state.
type Reconciler struct {
	st         *store.Store
	pending    []Conflict
	lastServer *domain.Snapshot

	// OnConflict is invoked once per newly detected manual conflict.
	OnConflict func(Conflict)
	// OnApplied is invoked after every adopted server snapshot.
	OnApplied func()

	now    func() time.Time
	newID  func() string
	logger ports.Logger
}

// NewReconciler builds a reconciler writing through the given store.
func NewReconciler(st *store.Store, logger ports.Logger) *Reconciler {
	if logger == nil {
		logger = ports.NopLogger{}
	}
	return &Reconciler{
		st:     st,
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
		logger: logger,
	}
}

// Apply reconciles a freshly received server snapshot against the local
// store and returns the conflicts detected in this pass. While manual
// conflicts are pending the snapshot is retained but not applied.
//
// Callers serialize Apply/Resolve/ForceServer under the engine lock; the
// reconciler carries no lock of its own.
func (r *Reconciler) Apply(server domain.Snapshot) []Conflict {
	retained := server.Clone()
	r.lastServer = &retained

	if len(r.pending) > 0 {
		r.logger.Debug("reconcile: suspended, %d conflicts awaiting resolution", len(r.pending))
		return nil
	}

	local, ok := r.st.Snapshot()
	if !ok {
		// First snapshot: nothing local to diverge from.
		r.st.Set(server, store.SourceServer)
		r.notifyApplied()
		return nil
	}

	conflicts := Detect(local, server)
	for i := range conflicts {
		conflicts[i].ID = r.newID()
		conflicts[i].DetectedAt = r.now()
	}

	manual := manualOnly(conflicts)
	if len(manual) > 0 {
		r.pending = append(r.pending, manual...)
		for _, c := range manual {
			r.logger.Warn("reconcile: %s conflict (severity %s) needs manual resolution: local=%v server=%v",
				c.Type, c.Severity, c.Local, c.Server)
			if r.OnConflict != nil {
				r.OnConflict(c)
			}
		}
		return conflicts
	}

	// No critical divergence: intelligent merge with the server as base.
	merged := mergeSnapshots(local, server)
	r.st.Set(merged, store.SourceServer)
	r.notifyApplied()
	if len(conflicts) > 0 {
		r.logger.Info("reconcile: auto-resolved %d conflicts, server wins", len(conflicts))
	}
	return conflicts
}

// Pending returns copies of the outstanding manual conflicts.
func (r *Reconciler) Pending() []Conflict {
	out := make([]Conflict, len(r.pending))
	copy(out, r.pending)
	return out
}

// Blocked reports whether manual conflicts are suspending reconciliation.
// Critical pending conflicts also block further optimistic play.
func (r *Reconciler) Blocked() bool {
	return len(r.pending) > 0
}

// HasCriticalPending reports whether any pending conflict is critical.
func (r *Reconciler) HasCriticalPending() bool {
	return HasCritical(r.pending)
}

// Resolve answers one pending conflict. use_server adopts the retained
// server snapshot for the conflicted aspect (and, once nothing is pending,
// resumes normal reconciliation); use_local keeps the local value;
// merge attempts a structural merge and fails with ErrMergeImpossible when
// the piece sequences cannot be reconciled.
func (r *Reconciler) Resolve(id string, choice Resolution) error {
	idx := -1
	for i, c := range r.pending {
		if c.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return fmt.Errorf("%w: %s", ErrUnknownConflict, id)
	}
	c := r.pending[idx]

	switch choice {
	case ResolveUseLocal:
		// Local stands; just clear the conflict. The retained server
		// snapshot is dropped so the same divergence is not immediately
		// re-detected; the next push re-evaluates.
		r.pending = append(r.pending[:idx], r.pending[idx+1:]...)
		if len(r.pending) == 0 {
			r.lastServer = nil
		}
		r.logger.Info("reconcile: %s conflict resolved, keeping local", c.Type)
		return nil
	case ResolveUseServer:
		r.pending = append(r.pending[:idx], r.pending[idx+1:]...)
		if len(r.pending) == 0 && r.lastServer != nil {
			r.adoptServer()
		}
		r.logger.Info("reconcile: %s conflict resolved, adopting server", c.Type)
		return nil
	case ResolveMerge:
		if c.Type != TypeBoard {
			return fmt.Errorf("%w: merge only applies to board conflicts", ErrMergeImpossible)
		}
		if r.lastServer == nil {
			return fmt.Errorf("%w: no retained server snapshot", ErrMergeImpossible)
		}
		local, ok := r.st.Snapshot()
		if !ok {
			return fmt.Errorf("%w: no local snapshot", ErrMergeImpossible)
		}
		merged, err := mergeBoards(local.Match.Board, r.lastServer.Match.Board)
		if err != nil {
			return err
		}
		next := r.lastServer.Clone()
		next.Match.Board = merged
		r.pending = append(r.pending[:idx], r.pending[idx+1:]...)
		r.st.Set(next, store.SourceServer)
		r.notifyApplied()
		r.logger.Info("reconcile: board conflict structurally merged")
		return nil
	default:
		return fmt.Errorf("unknown resolution %q", choice)
	}
}

// ForceServer discards all pending divergence and adopts the retained
// server snapshot outright. Escape hatch after repeated manual-resolution
// cycles.
func (r *Reconciler) ForceServer() error {
	if r.lastServer == nil {
		return errors.New("no server snapshot retained")
	}
	r.pending = nil
	r.adoptServer()
	r.logger.Warn("reconcile: forced adoption of server state")
	return nil
}

func (r *Reconciler) adoptServer() {
	r.st.Set(*r.lastServer, store.SourceServer)
	r.notifyApplied()
}

func (r *Reconciler) notifyApplied() {
	if r.OnApplied != nil {
		r.OnApplied()
	}
}

// mergeSnapshots builds the adopted state: the server snapshot is the base
// (authoritative for status, turn and board), while local, non-critical
// preferences survive. Today that is hand ordering: when a player's local
// hand holds the same pieces as the server's, the local ordering is kept so
// the rack does not visibly reshuffle.
func mergeSnapshots(local, server domain.Snapshot) domain.Snapshot {
	merged := server.Clone()
	for id, sp := range merged.Players {
		lp, ok := local.Players[id]
		if !ok {
			continue
		}
		if sameMultiset(lp.Hand, sp.Hand) {
			sp.Hand = append([]domain.Piece{}, lp.Hand...)
		}
	}
	return merged
}

// mergeBoards attempts a structural merge of two piece lines: if one line
// extends the other, the longer line wins. Anything else is ambiguous.
func mergeBoards(local, server domain.Board) (domain.Board, error) {
	if isPrefixLine(server.Pieces, local.Pieces) {
		return local.Clone(), nil
	}
	if isPrefixLine(local.Pieces, server.Pieces) {
		return server.Clone(), nil
	}
	return domain.Board{}, ErrMergeImpossible
}

// isPrefixLine reports whether the shorter sequence appears contiguously
// inside the longer one. Lines grow at both extremities, so a contained
// run means one board is an extension of the other.
func isPrefixLine(short, long []domain.Piece) bool {
	if len(short) > len(long) {
		return false
	}
	if len(short) == 0 {
		return true
	}
	for offset := 0; offset+len(short) <= len(long); offset++ {
		match := true
		for i, p := range short {
			if !p.Equals(long[offset+i]) {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func sameMultiset(a, b []domain.Piece) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[domain.Piece]int, len(a))
	for _, p := range a {
		counts[domain.NewPiece(p.Primary, p.Secondary)]++
	}
	for _, p := range b {
		counts[domain.NewPiece(p.Primary, p.Secondary)]--
	}
	for _, n := range counts {
		if n != 0 {
			return false
		}
	}
	return true
}
