package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	_ "modernc.org/sqlite"
)

// Sentinel errors returned by store operations
var (
	// ErrNotFound indicates the requested row does not exist
	ErrNotFound = errors.New("not found")

	// ErrOrderingViolation indicates an appended segment would break the
	// monotonic timeline of its meeting
	ErrOrderingViolation = errors.New("segment ordering violation")

	// ErrAlreadyClosed indicates the meeting already has an end time
	ErrAlreadyClosed = errors.New("meeting already closed")
)

// Embedding states a segment moves through
const (
	EmbeddingPending  = "pending"
	EmbeddingEmbedded = "embedded"
	EmbeddingFailed   = "failed"
)

const schema = `
CREATE TABLE IF NOT EXISTS meetings (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	ended_at   TIMESTAMP,
	pinned     INTEGER NOT NULL DEFAULT 0,
	tags       TEXT NOT NULL DEFAULT '[]',
	summary    TEXT
);

CREATE TABLE IF NOT EXISTS segments (
	id              TEXT PRIMARY KEY,
	meeting_id      TEXT NOT NULL REFERENCES meetings(id) ON DELETE CASCADE,
	seq             INTEGER NOT NULL,
	text            TEXT NOT NULL,
	start_ms        INTEGER NOT NULL,
	end_ms          INTEGER NOT NULL,
	speaker_id      TEXT,
	embedding_state TEXT NOT NULL DEFAULT 'pending',
	UNIQUE(meeting_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_segments_meeting ON segments(meeting_id, seq);
CREATE INDEX IF NOT EXISTS idx_segments_embedding_state ON segments(embedding_state);

CREATE VIRTUAL TABLE IF NOT EXISTS segments_fts USING fts5(text, content='', contentless_delete=1);

CREATE TABLE IF NOT EXISTS embeddings (
	segment_id    TEXT PRIMARY KEY REFERENCES segments(id) ON DELETE CASCADE,
	vector        BLOB NOT NULL,
	model_version TEXT NOT NULL,
	dims          INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	meeting_id TEXT NOT NULL REFERENCES meetings(id) ON DELETE CASCADE,
	question   TEXT NOT NULL,
	answer     TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Store persists meetings, transcript segments, embeddings, and saved
// conversations in SQLite. The full-text index is maintained in the same
// transaction as every segment write so the two never diverge.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the database at path and applies the schema. Use
// ":memory:" for an ephemeral database.
func Open(path string, logger *slog.Logger) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	if path == ":memory:" {
		dsn = "file::memory:?_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// modernc.org/sqlite serializes writes per connection; a single
	// connection also keeps :memory: databases coherent
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	// Databases created before the summary column existed
	if _, err := db.Exec(`ALTER TABLE meetings ADD COLUMN summary TEXT`); err != nil &&
		!strings.Contains(err.Error(), "duplicate column") {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// inTx runs fn inside a transaction, rolling back on error
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// EncodeVector serializes an embedding vector as little-endian float32 bytes
func EncodeVector(vector []float32) []byte {
	buf := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// DecodeVector deserializes little-endian float32 bytes into a vector
func DecodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("vector blob length must be a multiple of 4, got %d", len(data))
	}
	vector := make([]float32, len(data)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vector, nil
}
