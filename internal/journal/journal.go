// Package journal writes an append-only, zstd-compressed JSONL record of
// sync lifecycle events: operation phases, rollbacks, conflicts, breaker
// transitions and liveness changes. Purely diagnostic; the engine works
// with a nil journal.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Entry is one journal line.
type Entry struct {
	At     time.Time      `json:"at"`
	Kind   string         `json:"kind"`
	OpID   string         `json:"op_id,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Journal appends entries to one compressed file per match.
type Journal struct {
	mu  sync.Mutex
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
	now func() time.Time
}

// Open creates (or appends to) the journal for a match under dir.
func Open(dir, matchID string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, fmt.Sprintf("sync-%s.jsonl.zst", matchID))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Journal{
		f:   f,
		enc: enc,
		w:   bufio.NewWriterSize(enc, 64*1024),
		now: time.Now,
	}, nil
}

// Record appends one entry. Safe on a nil journal; write errors are
// swallowed, diagnostics must never break sync.
func (j *Journal) Record(kind, opID string, fields map[string]any) {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	b, err := json.Marshal(Entry{At: j.now(), Kind: kind, OpID: opID, Fields: fields})
	if err != nil {
		return
	}
	if _, err := j.w.Write(b); err != nil {
		return
	}
	if err := j.w.WriteByte('\n'); err != nil {
		return
	}
	_ = j.w.Flush()
}

// Close flushes and closes the underlying file. Safe on nil.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.w != nil {
		_ = j.w.Flush()
	}
	var err error
	if j.enc != nil {
		err = j.enc.Close()
		j.enc = nil
	}
	if j.f != nil {
		if cerr := j.f.Close(); err == nil {
			err = cerr
		}
		j.f = nil
	}
	return err
}
