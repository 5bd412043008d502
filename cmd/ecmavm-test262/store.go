package main

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store keeps conformance results in a SQLite database so runs can be
// compared.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	started  TEXT NOT NULL,
	root     TEXT NOT NULL,
	passed   INTEGER NOT NULL DEFAULT 0,
	failed   INTEGER NOT NULL DEFAULT 0,
	skipped  INTEGER NOT NULL DEFAULT 0,
	timeouts INTEGER NOT NULL DEFAULT 0,
	crashed  INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS results (
	run_id      INTEGER NOT NULL REFERENCES runs(id),
	path        TEXT NOT NULL,
	mode        TEXT NOT NULL,
	status      TEXT NOT NULL,
	message     TEXT NOT NULL,
	duration_ms INTEGER NOT NULL,
	PRIMARY KEY (run_id, path, mode)
);
CREATE INDEX IF NOT EXISTS results_path ON results(path, mode);
`

// OpenStore opens or creates the database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("cannot create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// BeginRun records a new run and returns its id.
func (s *Store) BeginRun(root string, started time.Time) (int64, error) {
	res, err := s.db.Exec(`INSERT INTO runs (started, root) VALUES (?, ?)`, started.UTC().Format(time.RFC3339), root)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// SaveResults stores the results of a run in one transaction.
func (s *Store) SaveResults(runID int64, results []Result) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO results (run_id, path, mode, status, message, duration_ms) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, r := range results {
		if _, err := stmt.Exec(runID, r.Path, r.Mode, string(r.Status), r.Message, r.Duration.Milliseconds()); err != nil {
			tx.Rollback()
			return fmt.Errorf("cannot store %s: %w", r.Path, err)
		}
	}
	return tx.Commit()
}

// FinishRun stores the totals of a run.
func (s *Store) FinishRun(runID int64, st Stats) error {
	_, err := s.db.Exec(`UPDATE runs SET passed = ?, failed = ?, skipped = ?, timeouts = ?, crashed = ? WHERE id = ?`,
		st.Passed, st.Failed, st.Skipped, st.Timeouts, st.Crashed, runID)
	return err
}

// Change is a test whose status differs between two runs.
type Change struct {
	Path   string
	Mode   string
	Before Status
	After  Status
}

// Changes compares runID with the run before it. Tests present in only
// one of the runs are ignored.
func (s *Store) Changes(runID int64) ([]Change, error) {
	var prev int64
	err := s.db.QueryRow(`SELECT id FROM runs WHERE id < ? ORDER BY id DESC LIMIT 1`, runID).Scan(&prev)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(`
		SELECT cur.path, cur.mode, old.status, cur.status
		FROM results cur
		JOIN results old ON old.path = cur.path AND old.mode = cur.mode AND old.run_id = ?
		WHERE cur.run_id = ? AND cur.status <> old.status
		ORDER BY cur.path, cur.mode`, prev, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var changes []Change
	for rows.Next() {
		var c Change
		var before, after string
		if err := rows.Scan(&c.Path, &c.Mode, &before, &after); err != nil {
			return nil, err
		}
		c.Before, c.After = Status(before), Status(after)
		changes = append(changes, c)
	}
	return changes, rows.Err()
}
