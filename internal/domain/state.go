package domain

import (
	"sort"
	"time"
)

// Status represents the lifecycle stage of a match.
type Status string

const (
	// StatusWaiting indicates the match has not started yet.
	StatusWaiting Status = "waiting"
	// StatusActive indicates the match is in progress.
	StatusActive Status = "active"
	// StatusFinished indicates the match has concluded.
	StatusFinished Status = "finished"
)

// MatchState captures the match record: board, turn pointer and pass
// tracking. Hands live in the per-seat PlayerState records.
type MatchState struct {
	ID                string    `json:"id"`
	Status            Status    `json:"status"`
	Board             Board     `json:"board"`
	CurrentTurnID     string    `json:"current_turn_id"`
	ConsecutivePasses int       `json:"consecutive_passes"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the match state.
func (m *MatchState) Clone() MatchState {
	out := *m
	out.Board = m.Board.Clone()
	return out
}

// PlayerState is the per-seat player record.
type PlayerState struct {
	UserID string  `json:"user_id"`
	Seat   int     `json:"seat"` // 1-based, contiguous
	Hand   []Piece `json:"hand"`
}

// Clone returns a deep copy of the player state.
func (p *PlayerState) Clone() *PlayerState {
	out := *p
	if p.Hand != nil {
		out.Hand = append([]Piece{}, p.Hand...)
	}
	return &out
}

// IsCurrentTurn reports whether this player owns the turn. Derived, never
// stored.
func (p *PlayerState) IsCurrentTurn(m *MatchState) bool {
	return m.CurrentTurnID == p.UserID
}

// Snapshot bundles the match record with its player records. It is the unit
// the local store holds, the rollback mechanism restores, and the
// reconciler compares against server pushes.
type Snapshot struct {
	Match   MatchState              `json:"match"`
	Players map[string]*PlayerState `json:"players"`
}

// Clone returns a deep copy suitable for rollback restoration.
func (s *Snapshot) Clone() Snapshot {
	out := Snapshot{Match: s.Match.Clone()}
	if s.Players != nil {
		out.Players = make(map[string]*PlayerState, len(s.Players))
		for id, p := range s.Players {
			out.Players[id] = p.Clone()
		}
	}
	return out
}

// SeatsInOrder returns the players sorted by seat position.
func (s *Snapshot) SeatsInOrder() []*PlayerState {
	players := make([]*PlayerState, 0, len(s.Players))
	for _, p := range s.Players {
		players = append(players, p)
	}
	sort.Slice(players, func(i, j int) bool { return players[i].Seat < players[j].Seat })
	return players
}

// NextTurnID returns the user id seated after the given player in position
// order, wrapping around. Returns "" when the player is unknown.
func (s *Snapshot) NextTurnID(userID string) string {
	ordered := s.SeatsInOrder()
	for i, p := range ordered {
		if p.UserID == userID {
			return ordered[(i+1)%len(ordered)].UserID
		}
	}
	return ""
}

// PieceConservation checks that the pieces on the board plus the pieces
// across all hands add up to the deck size, and that no piece appears more
// often than its multiplicity in the deck.
func (s *Snapshot) PieceConservation() bool {
	total := len(s.Match.Board.Pieces)
	counts := make(map[Piece]int, DeckSize)
	for _, p := range s.Match.Board.Pieces {
		counts[NewPiece(p.Primary, p.Secondary)]++
	}
	for _, pl := range s.Players {
		total += len(pl.Hand)
		for _, p := range pl.Hand {
			counts[NewPiece(p.Primary, p.Secondary)]++
		}
	}
	if total != DeckSize {
		return false
	}
	for _, n := range counts {
		if n > 1 {
			return false
		}
	}
	return true
}
