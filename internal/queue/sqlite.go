package queue

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"dominoclient/internal/domain"
)

// SQLiteStore persists per-match pending operations in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the queue database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	// WAL suits the small frequent rewrites the debounced flush produces.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS pending_operations (
			id TEXT PRIMARY KEY,
			match_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			retry_count INTEGER NOT NULL,
			priority INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_pending_ops_match
			ON pending_operations(match_id, priority DESC, created_at ASC);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// opPayload is the JSON blob stored in the payload column.
type opPayload struct {
	Piece *domain.Piece `json:"piece,omitempty"`
	Side  domain.Side   `json:"side,omitempty"`
}

// SaveQueue replaces the persisted queue for a match wholesale. The queue
// is small and bounded, so rewrite-all keeps ordering trivially correct.
func (s *SQLiteStore) SaveQueue(matchID string, ops []*Operation) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM pending_operations WHERE match_id = ?`, matchID); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO pending_operations
		(id, match_id, kind, payload, created_at, retry_count, priority)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, op := range ops {
		payload := opPayload{Side: op.Side}
		if op.Kind == KindPlay {
			p := op.Piece
			payload.Piece = &p
		}
		blob, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(op.ID, matchID, string(op.Kind), string(blob),
			op.CreatedAt.UnixMilli(), op.RetryCount, op.Priority); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadQueue returns the persisted operations for a match in priority order.
func (s *SQLiteStore) LoadQueue(matchID string) ([]*Operation, error) {
	rows, err := s.db.Query(`SELECT id, kind, payload, created_at, retry_count, priority
		FROM pending_operations WHERE match_id = ?
		ORDER BY priority DESC, created_at ASC`, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ops []*Operation
	for rows.Next() {
		var (
			op        Operation
			kind      string
			payload   string
			createdMS int64
		)
		if err := rows.Scan(&op.ID, &kind, &payload, &createdMS, &op.RetryCount, &op.Priority); err != nil {
			return nil, err
		}
		op.MatchID = matchID
		op.Kind = Kind(kind)
		op.CreatedAt = time.UnixMilli(createdMS)
		var pl opPayload
		if err := json.Unmarshal([]byte(payload), &pl); err != nil {
			return nil, fmt.Errorf("corrupt payload for operation %s: %w", op.ID, err)
		}
		if pl.Piece != nil {
			op.Piece = *pl.Piece
		}
		op.Side = pl.Side
		ops = append(ops, &op)
	}
	return ops, rows.Err()
}

// PurgeForeign drops operations belonging to other matches once they pass
// the max age. Entries with no owning match reachable after a restart never
// replay; they only rot.
func (s *SQLiteStore) PurgeForeign(matchID string, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge).UnixMilli()
	res, err := s.db.Exec(`DELETE FROM pending_operations
		WHERE match_id != ? AND created_at < ?`, matchID, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
