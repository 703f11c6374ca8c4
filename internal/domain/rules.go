package domain

// CanConnect reports whether the piece may be placed given the current open
// ends. Any piece connects to an empty board.
func CanConnect(p Piece, ends OpenEnds) bool {
	if ends.Empty {
		return true
	}
	return p.HasPip(ends.Left) || p.HasPip(ends.Right)
}

// ChooseSide picks the placement side for a connectable piece. The empty
// board takes the left side by convention. When both sides connect the side
// whose current end value is numerically smaller wins, left on a tie. The
// rule is fixed: every client must pick the same side for the same input.
func ChooseSide(p Piece, ends OpenEnds) Side {
	if ends.Empty {
		return SideLeft
	}
	left := p.HasPip(ends.Left)
	right := p.HasPip(ends.Right)
	switch {
	case left && right:
		if ends.Right < ends.Left {
			return SideRight
		}
		return SideLeft
	case left:
		return SideLeft
	case right:
		return SideRight
	default:
		return SideNone
	}
}
