// Package store persists assembled chunks and a history of their runs in a
// SQL database. SQLite (modernc.org/sqlite) is always available; DuckDB is
// registered in cgo builds.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/loxvm/pkg/bytecode"

	_ "modernc.org/sqlite"
)

// ErrNotFound indicates the requested chunk doesn't exist.
var ErrNotFound = errors.New("chunk not found")

var log = commonlog.GetLogger("loxvm.store")

var schema = []string{
	`CREATE TABLE IF NOT EXISTS chunks (
		name       TEXT PRIMARY KEY,
		data       BLOB NOT NULL,
		size       BIGINT NOT NULL,
		constants  BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS runs (
		id         TEXT PRIMARY KEY,
		chunk      TEXT NOT NULL,
		result     TEXT NOT NULL,
		value_bits BIGINT NOT NULL,
		error      TEXT NOT NULL,
		started_at BIGINT NOT NULL
	)`,
}

// Store is a chunk database. Safe for concurrent use.
type Store struct {
	db     *sql.DB
	driver string
	mu     sync.Mutex // Serializes writes; DuckDB and SQLite allow one writer
}

// Entry describes a stored chunk without its bytes.
type Entry struct {
	Name      string
	Size      int // Code length in bytes
	Constants int
	UpdatedAt time.Time
}

// Run is one recorded execution of a stored chunk.
type Run struct {
	ID        string
	Chunk     string
	Result    string // InterpretResult name, e.g. "OK"
	Value     bytecode.Value
	Error     string
	StartedAt time.Time
}

// Open connects to the database and creates the tables if needed.
// For file-backed databases the parent directory is created.
func Open(driver, dsn string) (*Store, error) {
	if driver == "" {
		driver = "sqlite"
	}
	if dsn != "" && dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("creating store directory: %w", err)
			}
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", driver, err)
	}
	if driver == "sqlite" {
		// An in-memory database exists per connection
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting busy timeout: %w", err)
		}
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating tables: %w", err)
		}
	}

	log.Debugf("opened %s store at %s", driver, dsn)
	return &Store{db: db, driver: driver}, nil
}

// Driver returns the database/sql driver name in use.
func (s *Store) Driver() string {
	return s.driver
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Put stores chunk under name, replacing any previous chunk of that name.
func (s *Store) Put(ctx context.Context, name string, chunk *bytecode.Chunk) error {
	if name == "" {
		return errors.New("chunk name is empty")
	}
	data, err := chunk.Serialize()
	if err != nil {
		return fmt.Errorf("encoding chunk %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chunks (name, data, size, constants, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			data = excluded.data,
			size = excluded.size,
			constants = excluded.constants,
			updated_at = excluded.updated_at`,
		name, data, chunk.Len(), chunk.Constants().Len(), time.Now().UnixNano(),
	)
	if err != nil {
		log.Errorf("saving chunk %s: %s", name, err)
		return fmt.Errorf("saving chunk %s: %w", name, err)
	}
	return nil
}

// Get loads the chunk stored under name.
func (s *Store) Get(ctx context.Context, name string) (*bytecode.Chunk, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM chunks WHERE name = ?", name).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("querying chunk %s: %w", name, err)
	}

	chunk, err := bytecode.Deserialize(data)
	if err != nil {
		return nil, fmt.Errorf("decoding chunk %s: %w", name, err)
	}
	return chunk, nil
}

// List returns every stored chunk ordered by name.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, size, constants, updated_at FROM chunks ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing chunks: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var updated int64
		if err := rows.Scan(&e.Name, &e.Size, &e.Constants, &updated); err != nil {
			return nil, fmt.Errorf("scanning chunk row: %w", err)
		}
		e.UpdatedAt = time.Unix(0, updated)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Delete removes the chunk stored under name along with its run history.
func (s *Store) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM chunks WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("deleting chunk %s: %w", name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE chunk = ?", name); err != nil {
		return fmt.Errorf("deleting runs of %s: %w", name, err)
	}
	return nil
}

// RecordRun appends run to the history, assigning an ID and start time
// when they are unset.
func (s *Store) RecordRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO runs (id, chunk, result, value_bits, error, started_at) VALUES (?, ?, ?, ?, ?, ?)",
		run.ID, run.Chunk, run.Result, valueBits(run.Value), run.Error, run.StartedAt.UnixNano(),
	)
	if err != nil {
		log.Errorf("recording run of %s: %s", run.Chunk, err)
		return fmt.Errorf("recording run: %w", err)
	}
	return nil
}

// Runs returns the recorded runs of the named chunk, oldest first.
func (s *Store) Runs(ctx context.Context, chunk string) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, chunk, result, value_bits, error, started_at FROM runs WHERE chunk = ? ORDER BY started_at, id",
		chunk,
	)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var bits, started int64
		if err := rows.Scan(&r.ID, &r.Chunk, &r.Result, &bits, &r.Error, &started); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		r.Value = bytecode.Value(math.Float64frombits(uint64(bits)))
		r.StartedAt = time.Unix(0, started)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// valueBits stores a value by its IEEE-754 bit pattern. SQLite turns a NaN
// REAL into NULL, and database/sql rejects uint64 values with the high bit
// set, so the bits travel as int64.
func valueBits(v bytecode.Value) int64 {
	return int64(math.Float64bits(float64(v)))
}
