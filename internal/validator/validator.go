// Package validator wraps the pure placement rules with a bounded,
// TTL-evicting decision cache. The rules run for every hand piece on every
// render and validation pass, so results are memoized per (piece, ends).
// The cache is owned by the Validator instance; there is no package-level
// mutable state.
package validator

import (
	"time"

	"dominoclient/internal/domain"
)

const (
	// DefaultCacheSize bounds the number of memoized decisions.
	DefaultCacheSize = 512
	// DefaultCacheTTL bounds how long a decision stays valid.
	DefaultCacheTTL = 5 * time.Minute
)

// Validator answers placement questions about pieces against board ends.
type Validator struct {
	cache *decisionCache
}

// decision holds both answers for one (piece, ends) key: side is SideNone
// exactly when the piece cannot connect.
type decision struct {
	can  bool
	side domain.Side
}

// cacheKey is comparable, so it can key a map directly.
type cacheKey struct {
	piece domain.Piece
	ends  domain.OpenEnds
}

// New returns a Validator with the given cache bounds. Zero values select
// the defaults.
func New(size int, ttl time.Duration) *Validator {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Validator{cache: newDecisionCache(size, ttl)}
}

// Standardize normalizes an external piece encoding. Fails with a
// domain.FormatError for unrecognized shapes or out-of-range pips.
func (v *Validator) Standardize(raw any) (domain.Piece, error) {
	return domain.Standardize(raw)
}

// OpenEnds returns the current open ends of a board.
func (v *Validator) OpenEnds(b *domain.Board) domain.OpenEnds {
	return b.OpenEnds()
}

// CanConnect reports whether the piece may be placed given the open ends.
func (v *Validator) CanConnect(p domain.Piece, ends domain.OpenEnds) bool {
	return v.decide(p, ends).can
}

// ChooseSide picks the placement side, or domain.SideNone when the piece
// does not connect. Deterministic across clients: empty board goes left,
// and when both sides connect the numerically smaller end wins.
func (v *Validator) ChooseSide(p domain.Piece, ends domain.OpenEnds) domain.Side {
	return v.decide(p, ends).side
}

func (v *Validator) decide(p domain.Piece, ends domain.OpenEnds) decision {
	key := cacheKey{piece: p, ends: ends}
	if d, ok := v.cache.get(key); ok {
		return d
	}
	d := decision{
		can:  domain.CanConnect(p, ends),
		side: domain.ChooseSide(p, ends),
	}
	v.cache.put(key, d)
	return d
}

// CacheLen reports the number of live cached decisions.
func (v *Validator) CacheLen() int {
	return v.cache.len()
}
