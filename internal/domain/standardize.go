package domain

import (
	"encoding/json"
	"fmt"
)

// FormatError reports a piece encoding that could not be normalized.
type FormatError struct {
	Raw    any
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("unrecognized piece encoding %v: %s", e.Raw, e.Reason)
}

// Field name pairs accepted for object-shaped piece encodings. Upstream
// systems disagree on what to call the two halves.
var pieceFieldPairs = [][2]string{
	{"left", "right"},
	{"top", "bottom"},
	{"primary", "secondary"},
}

// Standardize normalizes any accepted external piece encoding into the
// canonical form. Accepted shapes: a Piece (validated and re-canonicalized),
// an object keyed left/right, top/bottom or primary/secondary, and a
// positional two-element pair. Anything else fails with a FormatError, as
// does any pip value outside the valid range.
func Standardize(raw any) (Piece, error) {
	switch v := raw.(type) {
	case Piece:
		if !v.InRange() {
			return Piece{}, &FormatError{Raw: raw, Reason: "pip value out of range"}
		}
		return NewPiece(v.Primary, v.Secondary), nil
	case *Piece:
		if v == nil {
			return Piece{}, &FormatError{Raw: raw, Reason: "nil piece"}
		}
		return Standardize(*v)
	case map[string]any:
		for _, pair := range pieceFieldPairs {
			a, okA := numericField(v[pair[0]])
			b, okB := numericField(v[pair[1]])
			if okA && okB {
				return canonicalize(raw, a, b)
			}
		}
		return Piece{}, &FormatError{Raw: raw, Reason: "fewer than two numeric components"}
	case []any:
		if len(v) < 2 {
			return Piece{}, &FormatError{Raw: raw, Reason: "fewer than two numeric components"}
		}
		a, okA := numericField(v[0])
		b, okB := numericField(v[1])
		if !okA || !okB {
			return Piece{}, &FormatError{Raw: raw, Reason: "non-numeric pair element"}
		}
		return canonicalize(raw, a, b)
	case []int:
		if len(v) < 2 {
			return Piece{}, &FormatError{Raw: raw, Reason: "fewer than two numeric components"}
		}
		return canonicalize(raw, v[0], v[1])
	case [2]int:
		return canonicalize(raw, v[0], v[1])
	default:
		return Piece{}, &FormatError{Raw: raw, Reason: "unsupported encoding"}
	}
}

func canonicalize(raw any, a, b int) (Piece, error) {
	p := NewPiece(a, b)
	if !p.InRange() {
		return Piece{}, &FormatError{Raw: raw, Reason: "pip value out of range"}
	}
	return p, nil
}

// numericField extracts an integer pip value from the loosely typed values
// JSON decoding produces.
func numericField(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}
