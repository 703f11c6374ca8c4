package validator

import (
	"testing"
	"time"

	"dominoclient/internal/domain"
)

func TestValidatorDecisionsMatchRules(t *testing.T) {
	v := New(0, 0)
	ends := domain.OpenEnds{Left: 1, Right: 4}

	if !v.CanConnect(domain.NewPiece(4, 4), ends) {
		t.Error("expected [4|4] to connect to {1,4}")
	}
	if v.CanConnect(domain.NewPiece(5, 6), ends) {
		t.Error("expected [5|6] not to connect to {1,4}")
	}
	if got := v.ChooseSide(domain.NewPiece(4, 4), ends); got != domain.SideRight {
		t.Errorf("expected right, got %q", got)
	}
	if got := v.ChooseSide(domain.NewPiece(3, 3), domain.OpenEnds{Empty: true}); got != domain.SideLeft {
		t.Errorf("expected left convention on empty board, got %q", got)
	}
}

func TestValidatorCachesDecisions(t *testing.T) {
	v := New(8, time.Minute)
	ends := domain.OpenEnds{Left: 1, Right: 4}

	v.CanConnect(domain.NewPiece(4, 4), ends)
	v.ChooseSide(domain.NewPiece(4, 4), ends) // same key, should hit
	if got := v.CacheLen(); got != 1 {
		t.Errorf("expected 1 cached decision, got %d", got)
	}

	v.CanConnect(domain.NewPiece(4, 4), domain.OpenEnds{Left: 2, Right: 4})
	if got := v.CacheLen(); got != 2 {
		t.Errorf("expected distinct ends to cache separately, got %d", got)
	}
}

func TestCacheBoundEvictsLRU(t *testing.T) {
	v := New(4, time.Minute)
	for i := 0; i <= domain.PipMax; i++ {
		v.CanConnect(domain.NewPiece(i, i), domain.OpenEnds{Left: 0, Right: 1})
	}
	if got := v.CacheLen(); got != 4 {
		t.Errorf("expected cache capped at 4, got %d", got)
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	v := New(8, 10*time.Millisecond)
	key := cacheKey{piece: domain.NewPiece(1, 2), ends: domain.OpenEnds{Left: 1, Right: 4}}

	v.CanConnect(key.piece, key.ends)
	if _, ok := v.cache.get(key); !ok {
		t.Fatal("expected fresh entry to hit")
	}

	// Advance the cache clock past the TTL instead of sleeping.
	v.cache.now = func() time.Time { return time.Now().Add(time.Second) }
	if _, ok := v.cache.get(key); ok {
		t.Error("expected expired entry to miss")
	}
}
