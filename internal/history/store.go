// Package history records finished dev session builds in a local SQLite
// database so past builds can be listed after the session ends.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/parthd4/hubspot-cli/internal/devsync"
)

const dirPermissions = 0o700

const (
	sqlInsertBuild = `INSERT INTO builds
		(account_id, project, build_id, deploy_id, build_status, deploy_status,
		 deployed, reprovisioned, error, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlRecentBuilds = `SELECT account_id, project, build_id, deploy_id, build_status,
		deploy_status, deployed, reprovisioned, error, finished_at
		FROM builds
		WHERE account_id = ? AND project = ?
		ORDER BY finished_at DESC, id DESC
		LIMIT ?`
)

// Store is the build history database. It satisfies devsync.BuildRecorder.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the database at path and applies
// migrations.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return nil, fmt.Errorf("history: creating directory: %w", err)
	}

	// DSN parameters ensure pragmas apply to every connection from the pool.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: opening database %s: %w", path, err)
	}

	// Sole-writer pattern: only one connection writes at a time.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()

		return nil, err
	}

	logger.Debug("build history opened", slog.String("db_path", path))

	return &Store{db: db, logger: logger}, nil
}

// RecordBuild implements devsync.BuildRecorder.
func (s *Store) RecordBuild(ctx context.Context, rec devsync.BuildRecord) error {
	finished := rec.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}

	_, err := s.db.ExecContext(ctx, sqlInsertBuild,
		rec.AccountID, rec.Project, rec.BuildID, rec.DeployID, rec.BuildStatus, rec.DeployStatus,
		rec.Deployed, rec.Reprovisioned, rec.Error, finished.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("history: recording build %d: %w", rec.BuildID, err)
	}

	return nil
}

// Recent returns up to limit builds for a project, newest first.
func (s *Store) Recent(ctx context.Context, accountID int64, project string, limit int) ([]devsync.BuildRecord, error) {
	rows, err := s.db.QueryContext(ctx, sqlRecentBuilds, accountID, project, limit)
	if err != nil {
		return nil, fmt.Errorf("history: querying builds: %w", err)
	}
	defer rows.Close()

	var out []devsync.BuildRecord

	for rows.Next() {
		var (
			rec      devsync.BuildRecord
			finished int64
		)

		if err := rows.Scan(&rec.AccountID, &rec.Project, &rec.BuildID, &rec.DeployID, &rec.BuildStatus,
			&rec.DeployStatus, &rec.Deployed, &rec.Reprovisioned, &rec.Error, &finished); err != nil {
			return nil, fmt.Errorf("history: scanning build row: %w", err)
		}

		rec.FinishedAt = time.Unix(0, finished)
		out = append(out, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterating build rows: %w", err)
	}

	return out, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
