package conflict

import (
	"errors"
	"testing"

	"dominoclient/internal/domain"
	"dominoclient/internal/ports"
	"dominoclient/internal/store"
)

func boardWith(n int) domain.Board {
	deck := domain.NewDeck()
	b, err := domain.ReconstructBoard(pieceRun(deck, n))
	if err != nil {
		panic(err)
	}
	return b
}

// pieceRun builds a connectable run of n pieces: doubles interleaved with
// connectors ([0|0] [0|1] [1|1] [1|2] ...).
func pieceRun(deck []domain.Piece, n int) []domain.Piece {
	var run []domain.Piece
	for v := 0; v <= domain.PipMax && len(run) < n; v++ {
		run = append(run, domain.NewPiece(v, v))
		if len(run) < n && v < domain.PipMax {
			run = append(run, domain.NewPiece(v, v+1))
		}
	}
	return run[:n]
}

func localSnap() domain.Snapshot {
	return domain.Snapshot{
		Match: domain.MatchState{
			ID:            "m1",
			Status:        domain.StatusActive,
			Board:         boardWith(5),
			CurrentTurnID: "alice",
		},
		Players: map[string]*domain.PlayerState{
			"alice": {UserID: "alice", Seat: 1, Hand: []domain.Piece{domain.NewPiece(5, 6), domain.NewPiece(2, 4)}},
			"bob":   {UserID: "bob", Seat: 2, Hand: []domain.Piece{domain.NewPiece(3, 6)}},
		},
	}
}

func TestDetectTurnConflict(t *testing.T) {
	local := localSnap()
	server := local.Clone()
	server.Match.CurrentTurnID = "bob"

	conflicts := Detect(local, server)
	if len(conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(conflicts))
	}
	c := conflicts[0]
	if c.Type != TypeTurn || c.Severity != SeverityHigh || !c.AutoResolvable {
		t.Errorf("unexpected classification: %+v", c)
	}
}

func TestDetectStatusConflict(t *testing.T) {
	local := localSnap()
	server := local.Clone()
	server.Match.Status = domain.StatusFinished

	conflicts := Detect(local, server)
	if len(conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(conflicts))
	}
	c := conflicts[0]
	if c.Type != TypeStatus || c.Severity != SeverityCritical || !c.AutoResolvable {
		t.Errorf("unexpected classification: %+v", c)
	}
}

func TestDetectBoardConflict(t *testing.T) {
	local := localSnap() // 5 pieces
	server := local.Clone()
	server.Match.Board = boardWith(3)

	conflicts := Detect(local, server)
	if len(conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d: %+v", len(conflicts), conflicts)
	}
	c := conflicts[0]
	if c.Type != TypeBoard || c.Severity != SeverityCritical || c.AutoResolvable {
		t.Errorf("unexpected classification: %+v", c)
	}
}

func TestDetectToleratesInFlightDelta(t *testing.T) {
	local := localSnap()
	server := local.Clone()
	server.Match.Board = boardWith(4) // one fewer than local: in-flight play
	server.Players["alice"].Hand = server.Players["alice"].Hand[:1]

	if conflicts := Detect(local, server); len(conflicts) != 0 {
		t.Errorf("expected one-piece deltas to pass, got %+v", conflicts)
	}
}

func TestDetectHandConflict(t *testing.T) {
	local := localSnap()
	server := local.Clone()
	server.Players["alice"].Hand = nil // two fewer than local

	conflicts := Detect(local, server)
	if len(conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(conflicts))
	}
	c := conflicts[0]
	if c.Type != TypeHand || c.Severity != SeverityHigh || c.AutoResolvable || c.PlayerID != "alice" {
		t.Errorf("unexpected classification: %+v", c)
	}
}

func newTestReconciler(t *testing.T) (*Reconciler, *store.Store) {
	t.Helper()
	st := store.New()
	r := NewReconciler(st, ports.NopLogger{})
	seq := 0
	r.newID = func() string { seq++; return string(rune('a' + seq - 1)) }
	return r, st
}

func TestReconcilerAdoptsFirstSnapshot(t *testing.T) {
	r, st := newTestReconciler(t)
	server := localSnap()
	if conflicts := r.Apply(server); len(conflicts) != 0 {
		t.Errorf("expected no conflicts on first snapshot, got %+v", conflicts)
	}
	got, ok := st.Snapshot()
	if !ok || got.Match.ID != "m1" {
		t.Error("expected store to hold the first server snapshot")
	}
	if st.Source() != store.SourceServer {
		t.Errorf("expected server source, got %q", st.Source())
	}
}

func TestReconcilerAutoResolvesTurnConflict(t *testing.T) {
	r, st := newTestReconciler(t)
	st.Set(localSnap(), store.SourceLocal)

	server := localSnap()
	server.Match.CurrentTurnID = "bob"
	conflicts := r.Apply(server)

	if len(conflicts) != 1 || conflicts[0].Type != TypeTurn {
		t.Fatalf("expected one turn conflict, got %+v", conflicts)
	}
	got, _ := st.Snapshot()
	if got.Match.CurrentTurnID != "bob" {
		t.Errorf("expected server turn adopted without prompting, got %q", got.Match.CurrentTurnID)
	}
	if r.Blocked() {
		t.Error("auto-resolved conflict must not block reconciliation")
	}
}

func TestReconcilerMergeKeepsLocalHandOrder(t *testing.T) {
	r, st := newTestReconciler(t)
	local := localSnap()
	st.Set(local, store.SourceLocal)

	server := localSnap()
	// Same pieces, different order: a UI preference, not a divergence.
	server.Players["alice"].Hand = []domain.Piece{domain.NewPiece(2, 4), domain.NewPiece(5, 6)}
	r.Apply(server)

	got, _ := st.Snapshot()
	hand := got.Players["alice"].Hand
	if hand[0] != domain.NewPiece(5, 6) || hand[1] != domain.NewPiece(2, 4) {
		t.Errorf("expected local hand ordering preserved, got %v", hand)
	}
}

func TestReconcilerBoardConflictBlocksUntilResolved(t *testing.T) {
	r, st := newTestReconciler(t)
	local := localSnap()
	st.Set(local, store.SourceLocal)

	server := localSnap()
	server.Match.Board = boardWith(3)
	var reported []Conflict
	r.OnConflict = func(c Conflict) { reported = append(reported, c) }

	conflicts := r.Apply(server)
	if len(conflicts) != 1 || conflicts[0].Type != TypeBoard {
		t.Fatalf("expected board conflict, got %+v", conflicts)
	}
	if len(reported) != 1 {
		t.Fatalf("expected conflict reported once, got %d", len(reported))
	}
	if !r.Blocked() || !r.HasCriticalPending() {
		t.Error("expected critical board conflict to block")
	}

	// Local state untouched while pending.
	got, _ := st.Snapshot()
	if len(got.Match.Board.Pieces) != 5 {
		t.Errorf("expected local board untouched, got %d pieces", len(got.Match.Board.Pieces))
	}

	// Further pushes are suspended and report nothing new.
	if more := r.Apply(server); more != nil {
		t.Errorf("expected suspended reconciliation, got %+v", more)
	}

	// use_server adopts the retained snapshot and unblocks.
	if err := r.Resolve(reported[0].ID, ResolveUseServer); err != nil {
		t.Fatal(err)
	}
	got, _ = st.Snapshot()
	if len(got.Match.Board.Pieces) != 3 {
		t.Errorf("expected server board adopted, got %d pieces", len(got.Match.Board.Pieces))
	}
	if r.Blocked() {
		t.Error("expected reconciliation unblocked after resolution")
	}
}

func TestReconcilerResolveUseLocal(t *testing.T) {
	r, st := newTestReconciler(t)
	st.Set(localSnap(), store.SourceLocal)

	server := localSnap()
	server.Match.Board = boardWith(3)
	conflicts := r.Apply(server)

	if err := r.Resolve(conflicts[0].ID, ResolveUseLocal); err != nil {
		t.Fatal(err)
	}
	got, _ := st.Snapshot()
	if len(got.Match.Board.Pieces) != 5 {
		t.Errorf("expected local board kept, got %d pieces", len(got.Match.Board.Pieces))
	}
}

func TestReconcilerStructuralMerge(t *testing.T) {
	r, st := newTestReconciler(t)
	local := localSnap() // 5-piece board extends the server's 3
	st.Set(local, store.SourceLocal)

	server := localSnap()
	server.Match.Board = boardWith(3)
	conflicts := r.Apply(server)

	if err := r.Resolve(conflicts[0].ID, ResolveMerge); err != nil {
		t.Fatal(err)
	}
	got, _ := st.Snapshot()
	if len(got.Match.Board.Pieces) != 5 {
		t.Errorf("expected longer line to win the merge, got %d pieces", len(got.Match.Board.Pieces))
	}
}

func TestReconcilerMergeImpossible(t *testing.T) {
	r, st := newTestReconciler(t)
	local := localSnap()
	st.Set(local, store.SourceLocal)

	server := localSnap()
	// A disjoint line: doubles from the high end, no shared run.
	b, err := domain.ReconstructBoard([]domain.Piece{
		domain.NewPiece(6, 6), domain.NewPiece(6, 5), domain.NewPiece(5, 4),
	})
	if err != nil {
		t.Fatal(err)
	}
	server.Match.Board = b
	conflicts := r.Apply(server)

	err = r.Resolve(conflicts[0].ID, ResolveMerge)
	if !errors.Is(err, ErrMergeImpossible) {
		t.Errorf("expected ErrMergeImpossible, got %v", err)
	}
	if !r.Blocked() {
		t.Error("expected conflict still pending after failed merge")
	}
}

func TestReconcilerForceServer(t *testing.T) {
	r, st := newTestReconciler(t)
	st.Set(localSnap(), store.SourceLocal)

	server := localSnap()
	server.Match.Board = boardWith(3)
	server.Match.Status = domain.StatusFinished
	r.Apply(server)

	if err := r.ForceServer(); err != nil {
		t.Fatal(err)
	}
	got, _ := st.Snapshot()
	if len(got.Match.Board.Pieces) != 3 || got.Match.Status != domain.StatusFinished {
		t.Error("expected forced adoption of server snapshot")
	}
	if r.Blocked() {
		t.Error("expected no pending conflicts after forced adoption")
	}
}

func TestResolveUnknownConflict(t *testing.T) {
	r, _ := newTestReconciler(t)
	if err := r.Resolve("nope", ResolveUseServer); !errors.Is(err, ErrUnknownConflict) {
		t.Errorf("expected ErrUnknownConflict, got %v", err)
	}
}
