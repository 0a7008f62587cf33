// Copyright 2026 © The Consilium Authors
// SPDX-License-Identifier: Apache-2.0

// Package runstore persists analysis run metadata in SQLite.
//
// Only operational metadata is stored: identifiers, timings, status,
// and token counts. Report text and assessments never touch the
// database, so no medical data outlives a request.
package runstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

const (
	runTable      = "analysis_runs"
	roleStatTable = "analysis_run_roles"
)

// Run is one analysis run's metadata.
type Run struct {
	ID         string
	FileName   string
	SizeBytes  int64
	Status     string // running, completed, partial, failed
	ErrorCode  string
	StartedAt  time.Time
	FinishedAt time.Time
	Roles      []RoleStat
}

// RoleStat is the per-role timing and token usage of a run.
type RoleStat struct {
	Role             string
	ElapsedMS        int64
	PromptTokens     int
	CompletionTokens int
	Failed           bool
}

// Store is a SQLite-backed run ledger.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the ledger database at path and ensures the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open run ledger: %w", err)
	}
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			file_name TEXT NOT NULL,
			size_bytes INTEGER NOT NULL,
			status TEXT NOT NULL,
			error_code TEXT NOT NULL DEFAULT '',
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL DEFAULT 0
		);`, runTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_started ON %s(started_at);`, runTable, runTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			run_id TEXT NOT NULL,
			role TEXT NOT NULL,
			elapsed_ms INTEGER NOT NULL,
			prompt_tokens INTEGER NOT NULL,
			completion_tokens INTEGER NOT NULL,
			failed INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY(run_id, role)
		);`, roleStatTable),
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("ensure run ledger schema: %w", err)
		}
	}
	return nil
}

// Begin records the start of a run and returns its id.
func (s *Store) Begin(ctx context.Context, fileName string, sizeBytes int64) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, file_name, size_bytes, status, started_at) VALUES (?, ?, ?, 'running', ?)`, runTable),
		id, fileName, sizeBytes, time.Now().UnixMilli(),
	)
	if err != nil {
		return "", fmt.Errorf("record run start: %w", err)
	}
	return id, nil
}

// Finish records the outcome of a run and its per-role stats.
func (s *Store) Finish(ctx context.Context, id, status, errorCode string, roles []RoleStat) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET status = ?, error_code = ?, finished_at = ? WHERE id = ?`, runTable),
		status, errorCode, time.Now().UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run: unknown run id %s", id)
	}

	for _, rs := range roles {
		failed := 0
		if rs.Failed {
			failed = 1
		}
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT OR REPLACE INTO %s (run_id, role, elapsed_ms, prompt_tokens, completion_tokens, failed) VALUES (?, ?, ?, ?, ?, ?)`, roleStatTable),
			id, rs.Role, rs.ElapsedMS, rs.PromptTokens, rs.CompletionTokens, failed,
		); err != nil {
			return fmt.Errorf("record role stats: %w", err)
		}
	}

	return tx.Commit()
}

// List returns the most recent runs, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, file_name, size_bytes, status, error_code, started_at, finished_at
			FROM %s ORDER BY started_at DESC LIMIT ?`, runTable),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished int64
		if err := rows.Scan(&r.ID, &r.FileName, &r.SizeBytes, &r.Status, &r.ErrorCode, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = time.UnixMilli(started)
		if finished > 0 {
			r.FinishedAt = time.UnixMilli(finished)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range runs {
		if err := s.loadRoles(ctx, &runs[i]); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

func (s *Store) loadRoles(ctx context.Context, r *Run) error {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT role, elapsed_ms, prompt_tokens, completion_tokens, failed FROM %s WHERE run_id = ? ORDER BY role`, roleStatTable),
		r.ID,
	)
	if err != nil {
		return fmt.Errorf("load role stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rs RoleStat
		var failed int
		if err := rows.Scan(&rs.Role, &rs.ElapsedMS, &rs.PromptTokens, &rs.CompletionTokens, &failed); err != nil {
			return fmt.Errorf("scan role stats: %w", err)
		}
		rs.Failed = failed != 0
		r.Roles = append(r.Roles, rs)
	}
	return rows.Err()
}
