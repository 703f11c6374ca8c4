package domain

import "fmt"

// Side identifies an extremity of the placed-piece line.
type Side string

const (
	SideNone  Side = ""
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// OpenEnds holds the pip values exposed at each extremity of the line.
// Empty is true when no pieces have been placed yet.
type OpenEnds struct {
	Left  int
	Right int
	Empty bool
}

func (e OpenEnds) String() string {
	if e.Empty {
		return "{-,-}"
	}
	return fmt.Sprintf("{%d,%d}", e.Left, e.Right)
}

// Board is the ordered line of placed pieces plus cached open-end values.
// Pieces are stored oriented in line order: Pieces[0].Primary faces left,
// Pieces[len-1].Secondary faces right, and adjacent pieces share a pip
// (Pieces[i].Secondary == Pieces[i+1].Primary). The cached Left/Right values
// must always match the values derivable from the sequence.
type Board struct {
	Pieces []Piece `json:"pieces"`
	Left   int     `json:"left"`
	Right  int     `json:"right"`
}

// OpenEnds returns the cached open-end values.
func (b *Board) OpenEnds() OpenEnds {
	if len(b.Pieces) == 0 {
		return OpenEnds{Empty: true}
	}
	return OpenEnds{Left: b.Left, Right: b.Right}
}

// Place attaches a piece to the given side, orienting it so the adjacency
// invariant holds. The caller is expected to have checked connectability;
// Place still rejects an illegal placement.
func (b *Board) Place(p Piece, side Side) error {
	if len(b.Pieces) == 0 {
		b.Pieces = []Piece{p}
		b.Left = p.Primary
		b.Right = p.Secondary
		return nil
	}
	switch side {
	case SideLeft:
		if !p.HasPip(b.Left) {
			return fmt.Errorf("piece %s does not match left end %d", p, b.Left)
		}
		oriented := Piece{Primary: p.OtherPip(b.Left), Secondary: b.Left}
		b.Pieces = append([]Piece{oriented}, b.Pieces...)
		b.Left = oriented.Primary
	case SideRight:
		if !p.HasPip(b.Right) {
			return fmt.Errorf("piece %s does not match right end %d", p, b.Right)
		}
		oriented := Piece{Primary: b.Right, Secondary: p.OtherPip(b.Right)}
		b.Pieces = append(b.Pieces, oriented)
		b.Right = oriented.Secondary
	default:
		return fmt.Errorf("invalid side %q", side)
	}
	return nil
}

// DeriveEnds recomputes the open ends from the piece sequence.
func (b *Board) DeriveEnds() OpenEnds {
	if len(b.Pieces) == 0 {
		return OpenEnds{Empty: true}
	}
	return OpenEnds{
		Left:  b.Pieces[0].Primary,
		Right: b.Pieces[len(b.Pieces)-1].Secondary,
	}
}

// Validate checks the board invariants: adjacent pieces share a pip and the
// cached open ends match the derivable values.
func (b *Board) Validate() error {
	for i := 0; i+1 < len(b.Pieces); i++ {
		if b.Pieces[i].Secondary != b.Pieces[i+1].Primary {
			return fmt.Errorf("pieces %d and %d do not connect: %s then %s",
				i, i+1, b.Pieces[i], b.Pieces[i+1])
		}
	}
	derived := b.DeriveEnds()
	cached := b.OpenEnds()
	if derived != cached {
		return fmt.Errorf("cached ends %s disagree with derived ends %s", cached, derived)
	}
	return nil
}

// Clone returns a deep copy of the board.
func (b *Board) Clone() Board {
	out := Board{Left: b.Left, Right: b.Right}
	if b.Pieces != nil {
		out.Pieces = append([]Piece{}, b.Pieces...)
	}
	return out
}

// ReconstructBoard orients a raw piece sequence into a valid board. Each
// piece after the first is flipped as needed to match the running right end.
// Used when adopting a server snapshot whose piece list may carry either
// orientation.
func ReconstructBoard(pieces []Piece) (Board, error) {
	var b Board
	for i, p := range pieces {
		if i == 0 {
			if err := b.Place(p, SideLeft); err != nil {
				return Board{}, err
			}
			continue
		}
		if !p.HasPip(b.Right) {
			return Board{}, fmt.Errorf("piece %d (%s) does not continue the line at %d", i, p, b.Right)
		}
		if err := b.Place(p, SideRight); err != nil {
			return Board{}, err
		}
	}
	return b, nil
}
