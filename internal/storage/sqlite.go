package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteRecorder stores results and edges in a SQLite database. A URL
// has one row in results; recording it again replaces the row.
type SQLiteRecorder struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates the database file at path.
func OpenSQLite(path string) (*SQLiteRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	rec := &SQLiteRecorder{db: db, path: path}
	if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if err := rec.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return rec, nil
}

func (s *SQLiteRecorder) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS results (
		url TEXT PRIMARY KEY,
		depth INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		type TEXT,
		domain TEXT,
		status INTEGER,
		reason TEXT,
		elapsed_seconds REAL,
		effective_url TEXT,
		title TEXT,
		bytes INTEGER,
		truncated INTEGER NOT NULL DEFAULT 0,
		keyword_match INTEGER NOT NULL DEFAULT 0,
		file TEXT,
		fetched_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_results_outcome ON results(outcome);

	CREATE TABLE IF NOT EXISTS edges (
		source TEXT NOT NULL,
		target TEXT NOT NULL,
		UNIQUE(source, target)
	);

	CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target);
	`
	_, err := s.db.ExecContext(context.Background(), schema)
	return err
}

func (s *SQLiteRecorder) RecordResult(ctx context.Context, r Result) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO results
			(url, depth, outcome, type, domain, status, reason, elapsed_seconds, effective_url,
			 title, bytes, truncated, keyword_match, file, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.URL, r.Depth, r.Outcome, r.Type, r.Domain, r.Status, r.Reason, r.ElapsedSeconds,
		r.EffectiveURL, r.Title, r.Bytes, r.Truncated, r.KeywordMatch, r.File,
		r.FetchedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert result %s: %w", r.URL, err)
	}
	return nil
}

func (s *SQLiteRecorder) RecordEdges(ctx context.Context, edges []Edge) error {
	if len(edges) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT OR IGNORE INTO edges (source, target) VALUES (?, ?)")
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, e := range edges {
		if _, err := stmt.ExecContext(ctx, e.Source, e.Target); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert edge: %w", err)
		}
	}
	return tx.Commit()
}

// CountByOutcome returns the number of stored results per outcome.
func (s *SQLiteRecorder) CountByOutcome(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT outcome, COUNT(*) FROM results GROUP BY outcome")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		out[outcome] = n
	}
	return out, rows.Err()
}

// Edges returns all stored edges ordered by source then target.
func (s *SQLiteRecorder) Edges(ctx context.Context) ([]Edge, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT source, target FROM edges ORDER BY source, target")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Edge
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.Source, &e.Target); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteRecorder) Close() error {
	return s.db.Close()
}
