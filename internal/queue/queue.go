// Package queue is the durable list of not-yet-confirmed actions. Plays
// rank above passes, then FIFO. Every mutation schedules a debounced
// persist so rapid queueing coalesces into one write.
package queue

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"dominoclient/internal/domain"
	"dominoclient/internal/ports"
)

// Kind identifies the action an operation carries.
type Kind string

const (
	KindPlay Kind = "play"
	KindPass Kind = "pass"
)

// Priority ranks for ordering and eviction. Plays outrank passes.
const (
	PriorityPass = 0
	PriorityPlay = 1
)

const (
	// DefaultMaxItems bounds the queue length.
	DefaultMaxItems = 50
	// DefaultMaxAge drops entries that sat unconfirmed too long.
	DefaultMaxAge = 10 * time.Minute
	// DefaultFlushDebounce coalesces persistence writes.
	DefaultFlushDebounce = 250 * time.Millisecond
)

// Operation is one durable queue record. The rollback snapshot is engine
// state, not queue state: only the fields here survive a restart.
type Operation struct {
	ID         string       `json:"id"`
	MatchID    string       `json:"match_id"`
	Kind       Kind         `json:"kind"`
	Piece      domain.Piece `json:"piece,omitempty"`
	Side       domain.Side  `json:"side,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	RetryCount int          `json:"retry_count"`
	Priority   int          `json:"priority"`
}

// Persistence stores the serialized queue for a match. Implemented by the
// SQLite store; tests use an in-memory fake.
type Persistence interface {
	SaveQueue(matchID string, ops []*Operation) error
	LoadQueue(matchID string) ([]*Operation, error)
	PurgeForeign(matchID string, maxAge time.Duration) (int, error)
}

// Queue holds pending operations for one match.
type Queue struct {
	mu       sync.Mutex
	matchID  string
	items    []*Operation
	maxItems int
	maxAge   time.Duration
	debounce time.Duration

	persist    Persistence
	flushTimer *time.Timer
	dirty      bool

	now    func() time.Time
	newID  func() string
	logger ports.Logger
}

// Options tunes queue bounds. Zero values select the defaults.
type Options struct {
	MaxItems      int
	MaxAge        time.Duration
	FlushDebounce time.Duration
}

// New builds a queue for the given match backed by the persistence store.
func New(matchID string, persist Persistence, opts Options, logger ports.Logger) *Queue {
	if opts.MaxItems <= 0 {
		opts.MaxItems = DefaultMaxItems
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxAge
	}
	if opts.FlushDebounce <= 0 {
		opts.FlushDebounce = DefaultFlushDebounce
	}
	if logger == nil {
		logger = ports.NopLogger{}
	}
	return &Queue{
		matchID:  matchID,
		maxItems: opts.MaxItems,
		maxAge:   opts.MaxAge,
		debounce: opts.FlushDebounce,
		persist:  persist,
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
		logger:   logger,
	}
}

// Load reloads persisted entries for this match and purges stale entries
// belonging to other matches. Called once on startup.
func (q *Queue) Load() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.persist == nil {
		return nil
	}
	ops, err := q.persist.LoadQueue(q.matchID)
	if err != nil {
		return err
	}
	cutoff := q.now().Add(-q.maxAge)
	kept := ops[:0]
	for _, op := range ops {
		if op.CreatedAt.Before(cutoff) {
			continue
		}
		kept = append(kept, op)
	}
	q.items = kept
	q.sortLocked()

	purged, err := q.persist.PurgeForeign(q.matchID, q.maxAge)
	if err != nil {
		return err
	}
	if purged > 0 {
		q.logger.Info("queue: purged %d orphaned operations past max age", purged)
	}
	return nil
}

// Enqueue inserts an operation, assigning id and timestamp when unset, and
// truncates to the maximum item count by discarding the lowest-priority
// oldest entries.
func (q *Queue) Enqueue(op *Operation) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if op.ID == "" {
		op.ID = q.newID()
	}
	if op.CreatedAt.IsZero() {
		op.CreatedAt = q.now()
	}
	op.MatchID = q.matchID
	if op.Kind == KindPlay {
		op.Priority = PriorityPlay
	} else {
		op.Priority = PriorityPass
	}
	q.items = append(q.items, op)
	q.sortLocked()
	for len(q.items) > q.maxItems {
		q.evictOneLocked()
	}
	q.scheduleFlushLocked()
}

// DequeueNext returns the highest-priority item matching the predicate
// without removing it. A nil predicate matches everything.
func (q *Queue) DequeueNext(pred func(*Operation) bool) *Operation {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, op := range q.items {
		if pred == nil || pred(op) {
			cp := *op
			return &cp
		}
	}
	return nil
}

// Remove deletes an entry by id.
func (q *Queue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, op := range q.items {
		if op.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			q.scheduleFlushLocked()
			return true
		}
	}
	return false
}

// Touch applies a patch to an entry (e.g. bumping its retry count) and
// re-persists.
func (q *Queue) Touch(id string, patch func(*Operation)) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, op := range q.items {
		if op.ID == id {
			patch(op)
			q.sortLocked()
			q.scheduleFlushLocked()
			return true
		}
	}
	return false
}

// Expire drops entries older than the max age and returns how many were
// removed.
func (q *Queue) Expire() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	cutoff := q.now().Add(-q.maxAge)
	kept := q.items[:0]
	removed := 0
	for _, op := range q.items {
		if op.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, op)
	}
	q.items = kept
	if removed > 0 {
		q.scheduleFlushLocked()
	}
	return removed
}

// Len returns the number of queued operations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Items returns copies of all queued operations in order.
func (q *Queue) Items() []*Operation {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Operation, len(q.items))
	for i, op := range q.items {
		cp := *op
		out[i] = &cp
	}
	return out
}

// Flush persists immediately, cancelling any pending debounce.
func (q *Queue) Flush() error {
	q.mu.Lock()
	if q.flushTimer != nil {
		q.flushTimer.Stop()
		q.flushTimer = nil
	}
	q.dirty = false
	items := make([]*Operation, len(q.items))
	for i, op := range q.items {
		cp := *op
		items[i] = &cp
	}
	persist := q.persist
	matchID := q.matchID
	q.mu.Unlock()

	if persist == nil {
		return nil
	}
	return persist.SaveQueue(matchID, items)
}

// Close flushes outstanding writes.
func (q *Queue) Close() error {
	return q.Flush()
}

// sortLocked keeps items ordered by priority descending, then FIFO.
// Insertion sort: the slice is always nearly sorted.
func (q *Queue) sortLocked() {
	for i := 1; i < len(q.items); i++ {
		for j := i; j > 0; j-- {
			a, b := q.items[j-1], q.items[j]
			if b.Priority > a.Priority ||
				(b.Priority == a.Priority && b.CreatedAt.Before(a.CreatedAt)) {
				q.items[j-1], q.items[j] = b, a
				continue
			}
			break
		}
	}
}

// evictOneLocked removes the oldest entry of the lowest priority present.
func (q *Queue) evictOneLocked() {
	if len(q.items) == 0 {
		return
	}
	lowest := q.items[0].Priority
	for _, op := range q.items {
		if op.Priority < lowest {
			lowest = op.Priority
		}
	}
	victim := -1
	for i, op := range q.items {
		if op.Priority != lowest {
			continue
		}
		if victim == -1 || op.CreatedAt.Before(q.items[victim].CreatedAt) {
			victim = i
		}
	}
	if victim >= 0 {
		q.logger.Debug("queue: evicting %s (%s) to honor max size", q.items[victim].ID, q.items[victim].Kind)
		q.items = append(q.items[:victim], q.items[victim+1:]...)
	}
}

func (q *Queue) scheduleFlushLocked() {
	q.dirty = true
	if q.persist == nil || q.flushTimer != nil {
		return
	}
	q.flushTimer = time.AfterFunc(q.debounce, func() {
		q.mu.Lock()
		q.flushTimer = nil
		if !q.dirty {
			q.mu.Unlock()
			return
		}
		q.mu.Unlock()
		if err := q.Flush(); err != nil {
			q.logger.Error("queue: persist failed: %v", err)
		}
	})
}
