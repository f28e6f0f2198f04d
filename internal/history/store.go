// Package history persists evaluation runs to SQLite so past comparisons
// can be listed and inspected.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/lentra-ai/lentra/internal/eval"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	prompt     TEXT NOT NULL,
	mode       TEXT NOT NULL,
	winner     TEXT NOT NULL,
	scores     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs (created_at DESC);
`

// Run is one recorded evaluation.
type Run struct {
	ID        string       `json:"id"`
	CreatedAt time.Time    `json:"created_at"`
	Prompt    string       `json:"prompt"`
	Mode      string       `json:"mode"`
	Winner    string       `json:"winner"`
	Scores    []eval.Score `json:"scores"`
}

// Store is a SQLite-backed log of evaluation runs.
type Store struct {
	db *sql.DB
}

// Open creates or opens the history database at path and ensures the
// schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Save records an evaluation result and returns the run id.
func (s *Store) Save(ctx context.Context, prompt string, result *eval.Result) (string, error) {
	scores, err := json.Marshal(result.Scores)
	if err != nil {
		return "", fmt.Errorf("encode scores: %w", err)
	}

	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, created_at, prompt, mode, winner, scores) VALUES (?, ?, ?, ?, ?, ?)`,
		id,
		time.Now().UTC().Format(time.RFC3339Nano),
		prompt,
		string(result.Mode),
		result.Winner,
		string(scores),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// ListRecent returns the most recent runs, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, prompt, mode, winner, scores FROM runs ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Get returns one run by id. sql.ErrNoRows is returned for unknown ids.
func (s *Store) Get(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, prompt, mode, winner, scores FROM runs WHERE id = ?`, id)
	return scanRun(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var run Run
	var createdAt, scores string
	if err := row.Scan(&run.ID, &createdAt, &run.Prompt, &run.Mode, &run.Winner, &scores); err != nil {
		return Run{}, err
	}

	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Run{}, fmt.Errorf("parse run timestamp: %w", err)
	}
	run.CreatedAt = ts

	if err := json.Unmarshal([]byte(scores), &run.Scores); err != nil {
		return Run{}, fmt.Errorf("decode run scores: %w", err)
	}
	return run, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
