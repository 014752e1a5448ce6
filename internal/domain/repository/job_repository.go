package repository

import (
	"context"
	"time"

	"github.com/jesmann/epgmerge/internal/domain/model/job"
)

// JobRepository persists job execution history
type JobRepository interface {
	// Save upserts a job record by its ID. Called once when a job starts
	// (running) and once when it reaches a terminal state.
	Save(ctx context.Context, j *job.Job) error

	// FindLatest returns the most recently started job, or nil
	FindLatest(ctx context.Context) (*job.Job, error)

	// List returns jobs newest-first, capped at limit
	List(ctx context.Context, limit int) ([]*job.Job, error)

	// DeleteOlderThan removes records started before cutoff, returning the
	// number deleted
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)

	// ReconcileInterrupted marks any row still "running" as failed.
	// Called at startup: a running flag must never survive a restart.
	ReconcileInterrupted(ctx context.Context) (int, error)
}
