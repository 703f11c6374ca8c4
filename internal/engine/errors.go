package engine

import (
	"errors"
	"fmt"

	"dominoclient/internal/domain"
)

var (
	// ErrNoMatchState means no snapshot has been loaded yet.
	ErrNoMatchState = errors.New("no match state loaded")
	// ErrMatchNotActive rejects intents outside an active match.
	ErrMatchNotActive = errors.New("match not active")
	// ErrNotYourTurn rejects intents while another player holds the turn.
	ErrNotYourTurn = errors.New("not your turn")
	// ErrAlreadyProcessing rejects a new intent while one is in flight.
	// One operation per match per client, always.
	ErrAlreadyProcessing = errors.New("operation already in progress")
	// ErrUnknownPlayer means the local user has no seat in the match.
	ErrUnknownPlayer = errors.New("player not found in match")
	// ErrReconciliationRequired blocks optimistic play while critical
	// conflicts await manual resolution.
	ErrReconciliationRequired = errors.New("critical conflict pending, reconcile first")
)

// ValidationError reports an illegal move attempt. Resolved locally; no
// network call is made.
type ValidationError struct {
	Piece  domain.Piece
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid move %s: %s", e.Piece, e.Reason)
}

// TransportError reports a failed or timed-out remote call. Triggers a
// local rollback; the queued action is retried while the retry budget
// lasts.
type TransportError struct {
	Op      string
	Err     error
	Timeout bool
}

func (e *TransportError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s timed out: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
