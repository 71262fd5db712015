// Package events keeps an append-only journal of lifecycle transitions
// in a small SQLite database next to the registry file. The journal is
// diagnostic: failures to record are warnings, never fatal, and nothing
// in the pipeline reads it back except the history command.
package events

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/optkit/expreg/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS transitions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	experiment_path TEXT NOT NULL,
	old_status INTEGER NOT NULL,
	new_status INTEGER NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	instance_id TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transitions_path ON transitions(experiment_path);
`

// Transition is one recorded status change.
type Transition struct {
	ID         int64
	Path       string
	OldStatus  types.Status
	NewStatus  types.Status
	Error      string
	InstanceID string
	CreatedAt  time.Time
}

// Journal is the SQLite-backed transition log.
type Journal struct {
	db *sql.DB
}

// Open opens (or creates) the journal at path, creating parent
// directories as needed.
func Open(path string) (*Journal, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping journal: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Record appends one transition.
func (j *Journal) Record(ctx context.Context, path string, old, new types.Status, errMsg, instanceID string) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO transitions (experiment_path, old_status, new_status, error, instance_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		path, int(old), int(new), errMsg, instanceID, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to record transition: %w", err)
	}
	return nil
}

// History returns the transitions for one experiment path, newest first.
// A limit of 0 returns everything.
func (j *Journal) History(ctx context.Context, path string, limit int) ([]*Transition, error) {
	query := `SELECT id, experiment_path, old_status, new_status, error, instance_id, created_at
		FROM transitions WHERE experiment_path = ? ORDER BY id DESC`
	args := []any{path}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transitions: %w", err)
	}
	defer rows.Close()

	var transitions []*Transition
	for rows.Next() {
		var tr Transition
		var oldStatus, newStatus int
		var createdAt string
		if err := rows.Scan(&tr.ID, &tr.Path, &oldStatus, &newStatus, &tr.Error, &tr.InstanceID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		tr.OldStatus = types.Status(oldStatus)
		tr.NewStatus = types.Status(newStatus)
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			tr.CreatedAt = ts
		}
		transitions = append(transitions, &tr)
	}
	return transitions, rows.Err()
}

// Close releases the underlying database handle.
func (j *Journal) Close() error {
	return j.db.Close()
}
