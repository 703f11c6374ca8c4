package domain

import "fmt"

const (
	// PipMin is the lowest pip value in a double-six set.
	PipMin = 0
	// PipMax is the highest pip value in a double-six set.
	PipMax = 6
	// DeckSize is the number of distinct pieces in a double-six set.
	DeckSize = 28
)

// Piece is an unordered pair of pip values. [3|5] and [5|3] are the same
// piece; Standardize normalizes every accepted encoding so that
// Primary <= Secondary, which makes struct equality match piece equality.
type Piece struct {
	Primary   int `json:"primary"`
	Secondary int `json:"secondary"`
}

// NewPiece builds a canonical piece from two pip values in either order.
func NewPiece(a, b int) Piece {
	if a > b {
		a, b = b, a
	}
	return Piece{Primary: a, Secondary: b}
}

// IsDouble reports whether both halves carry the same pip value.
func (p Piece) IsDouble() bool {
	return p.Primary == p.Secondary
}

// HasPip reports whether either half carries the given pip value.
func (p Piece) HasPip(v int) bool {
	return p.Primary == v || p.Secondary == v
}

// OtherPip returns the pip opposite to v. For a double both halves are v.
func (p Piece) OtherPip(v int) int {
	if p.Primary == v {
		return p.Secondary
	}
	return p.Primary
}

// Equals reports symmetric equality with another piece.
func (p Piece) Equals(o Piece) bool {
	return (p.Primary == o.Primary && p.Secondary == o.Secondary) ||
		(p.Primary == o.Secondary && p.Secondary == o.Primary)
}

// InRange reports whether both pip values lie within the valid range.
func (p Piece) InRange() bool {
	return p.Primary >= PipMin && p.Primary <= PipMax &&
		p.Secondary >= PipMin && p.Secondary <= PipMax
}

func (p Piece) String() string {
	return fmt.Sprintf("[%d|%d]", p.Primary, p.Secondary)
}

// NewDeck returns the full double-six set in enumeration order.
func NewDeck() []Piece {
	deck := make([]Piece, 0, DeckSize)
	for a := PipMin; a <= PipMax; a++ {
		for b := a; b <= PipMax; b++ {
			deck = append(deck, Piece{Primary: a, Secondary: b})
		}
	}
	return deck
}

// RemovePiece removes one occurrence of the given piece from a hand and
// returns the updated hand. The second result is false when the piece was
// not present.
func RemovePiece(hand []Piece, p Piece) ([]Piece, bool) {
	for i, h := range hand {
		if h.Equals(p) {
			updated := make([]Piece, 0, len(hand)-1)
			updated = append(updated, hand[:i]...)
			updated = append(updated, hand[i+1:]...)
			return updated, true
		}
	}
	return hand, false
}

// ContainsPiece reports whether a hand holds the given piece.
func ContainsPiece(hand []Piece, p Piece) bool {
	for _, h := range hand {
		if h.Equals(p) {
			return true
		}
	}
	return false
}
