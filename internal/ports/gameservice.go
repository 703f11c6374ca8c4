package ports

import (
	"context"
	"fmt"
	"time"

	"dominoclient/internal/domain"
)

// GameService is the narrow call surface onto the authoritative server.
// Legality is enforced server-side; the client's own validation is a UX
// pre-filter only. A non-nil snapshot in a response carries authoritative
// state the caller may adopt.
type GameService interface {
	SubmitMove(ctx context.Context, matchID string, piece domain.Piece, side domain.Side) (*domain.Snapshot, error)
	SubmitPass(ctx context.Context, matchID string) (*domain.Snapshot, error)
	SubmitAutoPlay(ctx context.Context, matchID string) (*domain.Snapshot, error)
}

// RejectionError is returned when the server understood the request and
// refused it. Distinguished from transport failures: a rejection is final
// and must not be retried.
type RejectionError struct {
	Code    string
	Message string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("server rejected action (%s): %s", e.Code, e.Message)
}

// ChangeKind mirrors the row-level operations of the subscription feed.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// Table identifies which record a change event refers to.
type Table string

const (
	TableMatch  Table = "matches"
	TablePlayer Table = "match_players"
)

// ChangeEvent is one row-level notification from the subscription feed.
// Exactly one of Match or Player is set, matching Table.
type ChangeEvent struct {
	Kind       ChangeKind
	Table      Table
	Match      *domain.MatchState
	Player     *domain.PlayerState
	ReceivedAt time.Time
}
