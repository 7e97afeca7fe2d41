// Package db persists sync run history in SQLite so past runs and their
// per-pair outcomes can be inspected after the fact.
package db

import (
	"context"
	"database/sql"
	"log/slog"

	_ "modernc.org/sqlite"

	"github.com/osinfra/glance-sync/pkg/errors"
)

// Repository provides database operations for sync run history.
type Repository struct {
	db *sql.DB
}

// NewRepository opens (or creates) the history database and applies the
// schema.
func NewRepository(dbPath string) (*Repository, error) {
	slog.Debug("history_db_init", "db_path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		slog.Error("history_db_open_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to open history database")
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		slog.Error("history_db_schema_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to create history schema")
	}

	return &Repository{db: db}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// CreateRun inserts a run and all of its outcomes in one transaction and
// fills in run.ID.
func (r *Repository) CreateRun(ctx context.Context, run *Run, outcomes []Outcome) error {
	slog.Debug("history_db_create_run", "master", run.Master, "outcomes", len(outcomes))

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO runs (master, started_at, finished_at, total_images, synced, skipped, failed)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.Master, run.StartedAt, run.FinishedAt, run.TotalImages, run.Synced, run.Skipped, run.Failed)
	if err != nil {
		slog.Error("history_db_insert_run_failed", "master", run.Master, "error", err)
		return errors.Wrap(err, "failed to insert run")
	}

	runID, err := result.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "failed to get run id")
	}
	run.ID = runID

	for _, oc := range outcomes {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO run_outcomes (run_id, image_name, slave_name, status, reason)
			VALUES (?, ?, ?, ?, ?)
		`, runID, oc.ImageName, oc.SlaveName, oc.Status, oc.Reason)
		if err != nil {
			slog.Error("history_db_insert_outcome_failed",
				"run_id", runID, "image", oc.ImageName, "slave", oc.SlaveName, "error", err)
			return errors.Wrap(err, "failed to insert outcome")
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit run")
	}

	slog.Info("history_db_run_recorded", "run_id", runID, "master", run.Master, "outcomes", len(outcomes))
	return nil
}

// ListRuns returns all recorded runs, newest first.
func (r *Repository) ListRuns(ctx context.Context) ([]*Run, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, master, started_at, finished_at, total_images, synced, skipped, failed
		FROM runs ORDER BY started_at DESC, id DESC
	`)
	if err != nil {
		slog.Error("history_db_list_runs_failed", "error", err)
		return nil, errors.Wrap(err, "failed to list runs")
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.Master, &run.StartedAt, &run.FinishedAt,
			&run.TotalImages, &run.Synced, &run.Skipped, &run.Failed); err != nil {
			return nil, errors.Wrap(err, "failed to scan run")
		}
		runs = append(runs, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "rows error")
	}
	return runs, nil
}

// GetOutcomes returns every (image, slave) outcome recorded for a run,
// grouped by image then slave.
func (r *Repository) GetOutcomes(ctx context.Context, runID int64) ([]*Outcome, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, run_id, image_name, slave_name, status, reason
		FROM run_outcomes WHERE run_id = ? ORDER BY image_name, slave_name
	`, runID)
	if err != nil {
		slog.Error("history_db_get_outcomes_failed", "run_id", runID, "error", err)
		return nil, errors.Wrap(err, "failed to query outcomes")
	}
	defer rows.Close()

	var outcomes []*Outcome
	for rows.Next() {
		var oc Outcome
		var reason sql.NullString
		if err := rows.Scan(&oc.ID, &oc.RunID, &oc.ImageName, &oc.SlaveName, &oc.Status, &reason); err != nil {
			return nil, errors.Wrap(err, "failed to scan outcome")
		}
		oc.Reason = reason.String
		outcomes = append(outcomes, &oc)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "rows error")
	}
	return outcomes, nil
}
