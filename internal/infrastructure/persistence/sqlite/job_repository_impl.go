package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jesmann/epgmerge/internal/domain/model/job"
	"github.com/jesmann/epgmerge/internal/domain/repository"
	"github.com/jesmann/epgmerge/internal/infrastructure/transaction"
)

// JobRepositoryImpl implements repository.JobRepository with SQLite
type JobRepositoryImpl struct {
	db *sql.DB
}

// NewJobRepository creates a new SQLite-based job history repository
func NewJobRepository(db *sql.DB) repository.JobRepository {
	return &JobRepositoryImpl{db: db}
}

// getDB returns the appropriate database executor from context
func (r *JobRepositoryImpl) getDB(ctx context.Context) dbExecutor {
	if tx, ok := transaction.GetTxFromContext(ctx); ok {
		return tx
	}
	return r.db
}

// Save upserts a job record by its ID
func (r *JobRepositoryImpl) Save(ctx context.Context, j *job.Job) error {
	var (
		completedAt      interface{}
		mergeFilename    interface{}
		channels         interface{}
		programs         interface{}
		sizeBytes        interface{}
		daysIncluded     interface{}
		errorKind        interface{}
		errorMessage     interface{}
		executionSeconds interface{}
	)
	if !j.CompletedAt().IsZero() {
		completedAt = j.CompletedAt().UTC().Format(time.RFC3339)
		executionSeconds = j.ExecutionSeconds()
	}
	if s := j.Summary(); s != nil {
		mergeFilename = s.Filename
		channels = s.Channels
		programs = s.Programs
		sizeBytes = s.SizeBytes
		daysIncluded = s.DaysIncluded
	}
	if f := j.Failure(); f != nil {
		errorKind = string(f.Kind)
		errorMessage = f.Message
	}

	query := `
		INSERT OR REPLACE INTO job_history
		(job_id, status, started_at, completed_at, merge_filename,
		 channels_included, programs_included, size_bytes, days_included,
		 error_kind, error_message, execution_time_seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	db := r.getDB(ctx)
	if _, err := db.ExecContext(ctx, query,
		j.ID(), string(j.Status()), j.StartedAt().UTC().Format(time.RFC3339),
		completedAt, mergeFilename, channels, programs, sizeBytes, daysIncluded,
		errorKind, errorMessage, executionSeconds,
	); err != nil {
		return fmt.Errorf("save job record failed: %w", err)
	}
	return nil
}

// FindLatest returns the most recently started job, or nil
func (r *JobRepositoryImpl) FindLatest(ctx context.Context) (*job.Job, error) {
	db := r.getDB(ctx)
	row := db.QueryRowContext(ctx, selectJobColumns+` ORDER BY started_at DESC, job_id DESC LIMIT 1`)

	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find latest job failed: %w", err)
	}
	return j, nil
}

// List returns jobs newest-first, capped at limit
func (r *JobRepositoryImpl) List(ctx context.Context, limit int) ([]*job.Job, error) {
	db := r.getDB(ctx)
	rows, err := db.QueryContext(ctx,
		selectJobColumns+` ORDER BY started_at DESC, job_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs failed: %w", err)
	}
	defer rows.Close()

	var out []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job row failed: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// DeleteOlderThan removes records started before cutoff
func (r *JobRepositoryImpl) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	db := r.getDB(ctx)
	res, err := db.ExecContext(ctx,
		`DELETE FROM job_history WHERE started_at < ?`,
		cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("delete old jobs failed: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ReconcileInterrupted marks any row still running as failed. A running
// flag must never survive a process restart.
func (r *JobRepositoryImpl) ReconcileInterrupted(ctx context.Context) (int, error) {
	db := r.getDB(ctx)
	res, err := db.ExecContext(ctx,
		`UPDATE job_history
		 SET status = ?, completed_at = ?, error_kind = ?, error_message = ?
		 WHERE status = ?`,
		string(job.StatusFailed),
		time.Now().UTC().Format(time.RFC3339),
		string(job.FailureUnknown),
		"interrupted by restart",
		string(job.StatusRunning),
	)
	if err != nil {
		return 0, fmt.Errorf("reconcile interrupted jobs failed: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

const selectJobColumns = `
	SELECT job_id, status, started_at, completed_at, merge_filename,
	       channels_included, programs_included, size_bytes, days_included,
	       error_kind, error_message
	FROM job_history`

func scanJob(row rowScanner) (*job.Job, error) {
	var (
		id           string
		status       string
		startedStr   string
		completedStr sql.NullString
		filename     sql.NullString
		channels     sql.NullInt64
		programs     sql.NullInt64
		sizeBytes    sql.NullInt64
		daysIncluded sql.NullInt64
		errorKind    sql.NullString
		errorMessage sql.NullString
	)
	if err := row.Scan(&id, &status, &startedStr, &completedStr, &filename,
		&channels, &programs, &sizeBytes, &daysIncluded, &errorKind, &errorMessage); err != nil {
		return nil, err
	}

	startedAt, err := time.Parse(time.RFC3339, startedStr)
	if err != nil {
		return nil, fmt.Errorf("parse started_at %q: %w", startedStr, err)
	}
	var completedAt time.Time
	if completedStr.Valid {
		completedAt, err = time.Parse(time.RFC3339, completedStr.String)
		if err != nil {
			return nil, fmt.Errorf("parse completed_at %q: %w", completedStr.String, err)
		}
	}

	var summary *job.Summary
	if filename.Valid {
		summary = &job.Summary{
			Filename:     filename.String,
			Channels:     int(channels.Int64),
			Programs:     int(programs.Int64),
			SizeBytes:    sizeBytes.Int64,
			DaysIncluded: int(daysIncluded.Int64),
		}
	}
	var failure *job.Failure
	if errorKind.Valid || errorMessage.Valid {
		failure = &job.Failure{
			Kind:    job.FailureKind(errorKind.String),
			Message: errorMessage.String,
		}
	}

	return job.Reconstruct(id, job.Status(status), startedAt, completedAt, summary, failure), nil
}
