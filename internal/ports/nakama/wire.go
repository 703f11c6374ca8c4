package nakama

import (
	"fmt"
	"time"

	"dominoclient/internal/domain"
	"dominoclient/internal/ports"
)

// Wire records mirror what the match handler broadcasts. Piece fields are
// decoded as raw values and normalized through Standardize, so the server
// may send any accepted encoding (objects or positional pairs).

type wireMatch struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	Board             []any  `json:"board"`
	CurrentTurnID     string `json:"current_turn_id"`
	ConsecutivePasses int    `json:"consecutive_passes"`
	UpdatedAtMS       int64  `json:"updated_at_ms"`
}

type wirePlayer struct {
	UserID string `json:"user_id"`
	Seat   int    `json:"seat"`
	Hand   []any  `json:"hand"`
}

type wireSnapshot struct {
	Match   wireMatch    `json:"match"`
	Players []wirePlayer `json:"players"`
}

// playerEvent wraps a player row change with its row operation.
type playerEvent struct {
	Kind   string     `json:"kind"` // insert, update, delete
	Player wirePlayer `json:"player"`
}

// actionAck is the server's answer to a submitted action, correlated by
// the op id the client chose.
type actionAck struct {
	OpID     string        `json:"op_id"`
	Status   string        `json:"status"` // "ok" or "rejected"
	Code     string        `json:"code,omitempty"`
	Message  string        `json:"message,omitempty"`
	Snapshot *wireSnapshot `json:"snapshot,omitempty"`
}

// movePayload is the client -> server action body.
type movePayload struct {
	OpID  string       `json:"op_id"`
	Piece domain.Piece `json:"piece,omitempty"`
	Side  domain.Side  `json:"side,omitempty"`
}

func toDomainMatch(w wireMatch) (*domain.MatchState, error) {
	pieces := make([]domain.Piece, 0, len(w.Board))
	for i, raw := range w.Board {
		p, err := domain.Standardize(raw)
		if err != nil {
			return nil, fmt.Errorf("board[%d]: %w", i, err)
		}
		pieces = append(pieces, p)
	}
	board, err := domain.ReconstructBoard(pieces)
	if err != nil {
		return nil, fmt.Errorf("board: %w", err)
	}
	return &domain.MatchState{
		ID:                w.ID,
		Status:            domain.Status(w.Status),
		Board:             board,
		CurrentTurnID:     w.CurrentTurnID,
		ConsecutivePasses: w.ConsecutivePasses,
		UpdatedAt:         time.UnixMilli(w.UpdatedAtMS),
	}, nil
}

func toDomainPlayer(w wirePlayer) (*domain.PlayerState, error) {
	hand := make([]domain.Piece, 0, len(w.Hand))
	for i, raw := range w.Hand {
		p, err := domain.Standardize(raw)
		if err != nil {
			return nil, fmt.Errorf("hand[%d]: %w", i, err)
		}
		hand = append(hand, p)
	}
	return &domain.PlayerState{UserID: w.UserID, Seat: w.Seat, Hand: hand}, nil
}

func toDomainSnapshot(w wireSnapshot) (*domain.Snapshot, error) {
	match, err := toDomainMatch(w.Match)
	if err != nil {
		return nil, err
	}
	snap := &domain.Snapshot{
		Match:   *match,
		Players: make(map[string]*domain.PlayerState, len(w.Players)),
	}
	for _, wp := range w.Players {
		p, err := toDomainPlayer(wp)
		if err != nil {
			return nil, fmt.Errorf("player %s: %w", wp.UserID, err)
		}
		snap.Players[p.UserID] = p
	}
	return snap, nil
}

func changeKind(kind string) ports.ChangeKind {
	switch kind {
	case "insert":
		return ports.ChangeInsert
	case "delete":
		return ports.ChangeDelete
	default:
		return ports.ChangeUpdate
	}
}
