// Package store persists diagnosis results to a local SQLite database so
// batches can be compared across sessions without re-running them.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/delvelab/delveprobe/internal/diag"
	"github.com/delvelab/delveprobe/internal/sim"
)

const schema = `
CREATE TABLE IF NOT EXISTS batches (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	invocation  TEXT NOT NULL,
	mode        TEXT NOT NULL,
	label       TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	seed_base   INTEGER NOT NULL,
	total_runs  INTEGER NOT NULL,
	config_json TEXT NOT NULL,
	result_json TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	batch_id    INTEGER NOT NULL REFERENCES batches(id),
	seed        INTEGER NOT NULL,
	end_reason  TEXT NOT NULL,
	turns       INTEGER NOT NULL,
	depth       INTEGER NOT NULL,
	kills       INTEGER NOT NULL,
	gold        INTEGER NOT NULL,
	issue_count INTEGER NOT NULL,
	has_error   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_batch ON runs(batch_id);
`

// Store wraps the SQLite connection used to archive batches.
type Store struct {
	db *sql.DB
}

// Open connects to (or creates) the database at path and ensures the
// schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveBatch archives one reduced batch plus its per-run summary rows,
// all inside a single transaction.
func (s *Store) SaveBatch(invocation, mode string, cfg sim.Config, seedBase int64, b *diag.BatchResult) (int64, error) {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return 0, fmt.Errorf("marshal config: %w", err)
	}
	resJSON, err := json.Marshal(b)
	if err != nil {
		return 0, fmt.Errorf("marshal batch result: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO batches (invocation, mode, label, created_at, seed_base, total_runs, config_json, result_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		invocation, mode, cfg.Label(), time.Now().UTC().Format(time.RFC3339),
		seedBase, b.TotalRuns, string(cfgJSON), string(resJSON))
	if err != nil {
		return 0, fmt.Errorf("insert batch: %w", err)
	}
	batchID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("batch id: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO runs (batch_id, seed, end_reason, turns, depth, kills, gold, issue_count, has_error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare run insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range b.Runs {
		hasError := 0
		if r.HasError {
			hasError = 1
		}
		if _, err := stmt.Exec(batchID, r.Seed, r.EndReason.String(),
			r.Turn, r.Depth, r.Kills, r.Gold, r.IssueCount, hasError); err != nil {
			return 0, fmt.Errorf("insert run seed=%d: %w", r.Seed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit batch: %w", err)
	}
	return batchID, nil
}

// BatchInfo is one archived batch's header row.
type BatchInfo struct {
	ID        int64
	Mode      string
	Label     string
	CreatedAt string
	SeedBase  int64
	TotalRuns int
}

// ListBatches returns the most recent archived batches, newest first.
func (s *Store) ListBatches(limit int) ([]BatchInfo, error) {
	rows, err := s.db.Query(
		`SELECT id, mode, label, created_at, seed_base, total_runs
		 FROM batches ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var out []BatchInfo
	for rows.Next() {
		var bi BatchInfo
		if err := rows.Scan(&bi.ID, &bi.Mode, &bi.Label, &bi.CreatedAt, &bi.SeedBase, &bi.TotalRuns); err != nil {
			return nil, fmt.Errorf("scan batch row: %w", err)
		}
		out = append(out, bi)
	}
	return out, rows.Err()
}

// LoadBatch restores one archived batch result by id.
func (s *Store) LoadBatch(id int64) (*diag.BatchResult, error) {
	var resJSON string
	err := s.db.QueryRow(`SELECT result_json FROM batches WHERE id = ?`, id).Scan(&resJSON)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("batch %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load batch %d: %w", id, err)
	}
	var b diag.BatchResult
	if err := json.Unmarshal([]byte(resJSON), &b); err != nil {
		return nil, fmt.Errorf("decode batch %d: %w", id, err)
	}
	return &b, nil
}
