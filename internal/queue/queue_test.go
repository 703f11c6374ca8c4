package queue

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"dominoclient/internal/domain"
	"dominoclient/internal/ports"
)

// memStore is an in-memory Persistence for tests.
type memStore struct {
	mu    sync.Mutex
	saves int
	byID  map[string][]*Operation
}

func newMemStore() *memStore {
	return &memStore{byID: map[string][]*Operation{}}
}

func (m *memStore) SaveQueue(matchID string, ops []*Operation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	cp := make([]*Operation, len(ops))
	for i, op := range ops {
		o := *op
		cp[i] = &o
	}
	m.byID[matchID] = cp
	return nil
}

func (m *memStore) LoadQueue(matchID string) ([]*Operation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[matchID], nil
}

func (m *memStore) PurgeForeign(matchID string, maxAge time.Duration) (int, error) {
	return 0, nil
}

func (m *memStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func newTestQueue(t *testing.T, opts Options) (*Queue, *memStore, *time.Time) {
	t.Helper()
	ms := newMemStore()
	q := New("m1", ms, opts, ports.NopLogger{})
	clock := time.Unix(5000, 0)
	q.now = func() time.Time { return clock }
	seq := 0
	q.newID = func() string { seq++; return fmt.Sprintf("op-%d", seq) }
	return q, ms, &clock
}

func TestEnqueueOrdersPlayBeforePass(t *testing.T) {
	q, _, clock := newTestQueue(t, Options{})

	q.Enqueue(&Operation{Kind: KindPass})
	*clock = clock.Add(time.Second)
	q.Enqueue(&Operation{Kind: KindPlay, Piece: domain.NewPiece(1, 2)})
	*clock = clock.Add(time.Second)
	q.Enqueue(&Operation{Kind: KindPlay, Piece: domain.NewPiece(3, 4)})

	items := q.Items()
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	if items[0].Kind != KindPlay || items[0].Piece != domain.NewPiece(1, 2) {
		t.Errorf("expected oldest play first, got %v %v", items[0].Kind, items[0].Piece)
	}
	if items[1].Kind != KindPlay {
		t.Errorf("expected second play before pass, got %v", items[1].Kind)
	}
	if items[2].Kind != KindPass {
		t.Errorf("expected pass last, got %v", items[2].Kind)
	}
}

func TestEnqueueBoundEvictsLowestPriorityOldest(t *testing.T) {
	q, _, clock := newTestQueue(t, Options{MaxItems: 3})

	q.Enqueue(&Operation{Kind: KindPass}) // op-1, oldest pass
	*clock = clock.Add(time.Second)
	q.Enqueue(&Operation{Kind: KindPass}) // op-2
	*clock = clock.Add(time.Second)
	q.Enqueue(&Operation{Kind: KindPlay, Piece: domain.NewPiece(0, 1)}) // op-3
	*clock = clock.Add(time.Second)
	q.Enqueue(&Operation{Kind: KindPlay, Piece: domain.NewPiece(2, 3)}) // op-4, overflows

	if q.Len() != 3 {
		t.Fatalf("expected queue capped at 3, got %d", q.Len())
	}
	for _, op := range q.Items() {
		if op.ID == "op-1" {
			t.Error("expected oldest pass to be evicted first")
		}
	}
}

func TestDequeueNextHonorsPredicate(t *testing.T) {
	q, _, _ := newTestQueue(t, Options{})
	q.Enqueue(&Operation{Kind: KindPass})
	q.Enqueue(&Operation{Kind: KindPlay, Piece: domain.NewPiece(5, 5)})

	got := q.DequeueNext(nil)
	if got == nil || got.Kind != KindPlay {
		t.Fatalf("expected play first, got %+v", got)
	}
	got = q.DequeueNext(func(op *Operation) bool { return op.Kind == KindPass })
	if got == nil || got.Kind != KindPass {
		t.Fatalf("expected predicate to find the pass, got %+v", got)
	}
	if q.Len() != 2 {
		t.Error("DequeueNext must not remove items")
	}
}

func TestRemoveAndTouch(t *testing.T) {
	q, _, _ := newTestQueue(t, Options{})
	q.Enqueue(&Operation{Kind: KindPlay, Piece: domain.NewPiece(1, 1)})
	op := q.Items()[0]

	if !q.Touch(op.ID, func(o *Operation) { o.RetryCount++ }) {
		t.Fatal("expected touch to find the operation")
	}
	if got := q.Items()[0].RetryCount; got != 1 {
		t.Errorf("expected retry count 1, got %d", got)
	}
	if !q.Remove(op.ID) {
		t.Fatal("expected remove to succeed")
	}
	if q.Remove(op.ID) {
		t.Error("expected second remove to report missing")
	}
}

func TestExpireDropsOldEntries(t *testing.T) {
	q, _, clock := newTestQueue(t, Options{MaxAge: time.Minute})
	q.Enqueue(&Operation{Kind: KindPlay, Piece: domain.NewPiece(1, 2)})
	*clock = clock.Add(2 * time.Minute)
	q.Enqueue(&Operation{Kind: KindPass})

	if removed := q.Expire(); removed != 1 {
		t.Fatalf("expected 1 expired entry, got %d", removed)
	}
	if q.Len() != 1 {
		t.Errorf("expected 1 remaining entry, got %d", q.Len())
	}
	if q.Items()[0].Kind != KindPass {
		t.Error("expected the fresh pass to survive")
	}
}

func TestFlushDebounceCoalescesWrites(t *testing.T) {
	q, ms, _ := newTestQueue(t, Options{FlushDebounce: 20 * time.Millisecond})
	for i := 0; i < 10; i++ {
		q.Enqueue(&Operation{Kind: KindPlay, Piece: domain.NewPiece(i%7, i%7)})
	}
	time.Sleep(60 * time.Millisecond)
	if got := ms.saveCount(); got != 1 {
		t.Errorf("expected one coalesced save, got %d", got)
	}
}

func TestLoadRestoresPersistedQueue(t *testing.T) {
	q, ms, _ := newTestQueue(t, Options{})
	q.Enqueue(&Operation{Kind: KindPlay, Piece: domain.NewPiece(2, 4), Side: domain.SideLeft})
	q.Enqueue(&Operation{Kind: KindPass})
	if err := q.Flush(); err != nil {
		t.Fatal(err)
	}

	q2 := New("m1", ms, Options{}, ports.NopLogger{})
	if err := q2.Load(); err != nil {
		t.Fatal(err)
	}
	items := q2.Items()
	if len(items) != 2 {
		t.Fatalf("expected 2 reloaded items, got %d", len(items))
	}
	if items[0].Kind != KindPlay || items[0].Piece != domain.NewPiece(2, 4) {
		t.Errorf("reloaded play mismatch: %+v", items[0])
	}
}

func TestSQLiteRoundTrip(t *testing.T) {
	path := t.TempDir() + "/queue.db"
	st, err := OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	ops := []*Operation{
		{ID: "a", Kind: KindPlay, Piece: domain.NewPiece(3, 5), Side: domain.SideRight,
			CreatedAt: time.UnixMilli(1000), RetryCount: 2, Priority: PriorityPlay},
		{ID: "b", Kind: KindPass, CreatedAt: time.UnixMilli(2000), Priority: PriorityPass},
	}
	if err := st.SaveQueue("m1", ops); err != nil {
		t.Fatal(err)
	}

	got, err := st.LoadQueue("m1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	if got[0].ID != "a" || got[0].Piece != domain.NewPiece(3, 5) || got[0].Side != domain.SideRight {
		t.Errorf("play row mismatch: %+v", got[0])
	}
	if got[0].RetryCount != 2 {
		t.Errorf("expected retry count 2, got %d", got[0].RetryCount)
	}
	if got[1].Kind != KindPass {
		t.Errorf("expected pass row second, got %+v", got[1])
	}

	// Save replaces wholesale.
	if err := st.SaveQueue("m1", ops[:1]); err != nil {
		t.Fatal(err)
	}
	got, err = st.LoadQueue("m1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("expected wholesale replace to leave 1 row, got %d", len(got))
	}
}

func TestSQLitePurgeForeign(t *testing.T) {
	path := t.TempDir() + "/queue.db"
	st, err := OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	old := time.Now().Add(-time.Hour)
	if err := st.SaveQueue("other", []*Operation{
		{ID: "x", Kind: KindPass, CreatedAt: old},
	}); err != nil {
		t.Fatal(err)
	}
	if err := st.SaveQueue("m1", []*Operation{
		{ID: "y", Kind: KindPass, CreatedAt: old},
	}); err != nil {
		t.Fatal(err)
	}

	purged, err := st.PurgeForeign("m1", 10*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if purged != 1 {
		t.Errorf("expected 1 purged foreign row, got %d", purged)
	}
	// Current match rows are untouched regardless of age.
	got, err := st.LoadQueue("m1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("expected current-match row to survive, got %d rows", len(got))
	}
}
