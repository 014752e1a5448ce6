package sqlite

import (
	"context"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jesmann/epgmerge/internal/domain/model/job"
)

func TestJobRepository_SaveAndReload(t *testing.T) {
	repo := NewJobRepository(setupTestDB(t))
	ctx := context.Background()

	j := job.New()
	require.NoError(t, repo.Save(ctx, j))

	// Terminal update overwrites the running row
	require.NoError(t, j.Complete(job.Summary{
		Filename:     "merged.xml.gz",
		Channels:     2,
		Programs:     50,
		SizeBytes:    100,
		DaysIncluded: 3,
	}))
	require.NoError(t, repo.Save(ctx, j))

	latest, err := repo.FindLatest(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, j.ID(), latest.ID())
	assert.Equal(t, job.StatusSuccess, latest.Status())
	require.NotNil(t, latest.Summary())
	assert.Equal(t, 50, latest.Summary().Programs)
	assert.Nil(t, latest.Failure())
}

func TestJobRepository_SaveFailure(t *testing.T) {
	repo := NewJobRepository(setupTestDB(t))
	ctx := context.Background()

	j := job.New()
	require.NoError(t, j.Fail(job.FailureTimeout, "phase download exceeded its timeout"))
	require.NoError(t, repo.Save(ctx, j))

	latest, err := repo.FindLatest(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest.Failure())
	assert.Equal(t, job.FailureTimeout, latest.Failure().Kind)
	assert.Nil(t, latest.Summary())
}

func TestJobRepository_FindLatest_Empty(t *testing.T) {
	repo := NewJobRepository(setupTestDB(t))
	latest, err := repo.FindLatest(context.Background())
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestJobRepository_List_NewestFirst(t *testing.T) {
	repo := NewJobRepository(setupTestDB(t))
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		j := job.New()
		require.NoError(t, j.Complete(job.Summary{Filename: "merged.xml.gz", DaysIncluded: 3}))
		require.NoError(t, repo.Save(ctx, j))
		ids = append(ids, j.ID())
		time.Sleep(2 * time.Millisecond)
	}

	jobs, err := repo.List(ctx, 3)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, ids[4], jobs[0].ID())
	assert.Equal(t, ids[2], jobs[2].ID())
}

func TestJobRepository_DeleteOlderThan(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	old := job.Reconstruct("01OLD", job.StatusSuccess,
		time.Now().UTC().AddDate(0, 0, -45), time.Now().UTC().AddDate(0, 0, -45), nil, nil)
	recent := job.New()
	require.NoError(t, repo.Save(ctx, old))
	require.NoError(t, repo.Save(ctx, recent))

	deleted, err := repo.DeleteOlderThan(ctx, time.Now().UTC().AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	jobs, err := repo.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, recent.ID(), jobs[0].ID())
}

func TestJobRepository_ReconcileInterrupted(t *testing.T) {
	repo := NewJobRepository(setupTestDB(t))
	ctx := context.Background()

	running := job.New()
	require.NoError(t, repo.Save(ctx, running))

	done := job.New()
	require.NoError(t, done.Complete(job.Summary{Filename: "merged.xml.gz", DaysIncluded: 3}))
	require.NoError(t, repo.Save(ctx, done))

	n, err := repo.ReconcileInterrupted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	jobs, err := repo.List(ctx, 10)
	require.NoError(t, err)
	for _, j := range jobs {
		assert.NotEqual(t, job.StatusRunning, j.Status(), "job %s still running after reconcile", j.ID())
	}
}
