// Package conflict compares local and authoritative snapshots, classifies
// divergence, auto-resolves the low-risk categories and escalates the rest
// for manual resolution.
package conflict

import (
	"time"

	"dominoclient/internal/domain"
)

// Type categorizes a divergence.
type Type string

const (
	TypeTurn   Type = "turn"
	TypeStatus Type = "status"
	TypeBoard  Type = "board"
	TypeHand   Type = "hand"
)

// Severity ranks how risky a divergence is to resolve automatically.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Conflict records one divergence between local and server state.
type Conflict struct {
	ID             string
	Type           Type
	Severity       Severity
	PlayerID       string // set for hand conflicts
	Local          any
	Server         any
	DetectedAt     time.Time
	AutoResolvable bool
}

// Detect compares a local snapshot against a freshly received server
// snapshot and returns the classified divergences. Pure; ids and
// timestamps are filled in by the reconciler.
//
// A board or hand difference of exactly one piece is the expected footprint
// of an in-flight optimistic operation and is not a conflict.
func Detect(local, server domain.Snapshot) []Conflict {
	var out []Conflict

	if local.Match.CurrentTurnID != server.Match.CurrentTurnID {
		out = append(out, Conflict{
			Type:           TypeTurn,
			Severity:       SeverityHigh,
			Local:          local.Match.CurrentTurnID,
			Server:         server.Match.CurrentTurnID,
			AutoResolvable: true, // server wins unconditionally
		})
	}

	if local.Match.Status != server.Match.Status {
		out = append(out, Conflict{
			Type:           TypeStatus,
			Severity:       SeverityCritical,
			Local:          local.Match.Status,
			Server:         server.Match.Status,
			AutoResolvable: true, // server wins unconditionally
		})
	}

	localPieces := len(local.Match.Board.Pieces)
	serverPieces := len(server.Match.Board.Pieces)
	if diff := localPieces - serverPieces; diff > 1 || diff < -1 {
		out = append(out, Conflict{
			Type:           TypeBoard,
			Severity:       SeverityCritical,
			Local:          localPieces,
			Server:         serverPieces,
			AutoResolvable: false,
		})
	}

	for id, lp := range local.Players {
		sp, ok := server.Players[id]
		if !ok {
			continue
		}
		if diff := len(lp.Hand) - len(sp.Hand); diff > 1 || diff < -1 {
			out = append(out, Conflict{
				Type:           TypeHand,
				Severity:       SeverityHigh,
				PlayerID:       id,
				Local:          len(lp.Hand),
				Server:         len(sp.Hand),
				AutoResolvable: false,
			})
		}
	}

	return out
}

// HasCritical reports whether any conflict in the list is critical.
func HasCritical(conflicts []Conflict) bool {
	for _, c := range conflicts {
		if c.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// manualOnly filters to the conflicts that need user resolution.
func manualOnly(conflicts []Conflict) []Conflict {
	var out []Conflict
	for _, c := range conflicts {
		if !c.AutoResolvable {
			out = append(out, c)
		}
	}
	return out
}
