package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jesmann/epgmerge/internal/application/port/output"
	"github.com/jesmann/epgmerge/internal/domain/model/artifact"
	"github.com/jesmann/epgmerge/internal/domain/repository"
)

// SweepResult reports what one retention pass did
type SweepResult struct {
	Examined int
	Deleted  int
	Skipped  int // expired records left in place because cleanup is disabled
}

// RetentionSweeper deletes archive records and files whose validity window
// has fully elapsed. It never touches the current record. Deletion order is
// index first, then file: a crash mid-sweep leaves a file without a record,
// which the next sweep can detect, rather than a record pointing at nothing.
type RetentionSweeper struct {
	archives repository.ArchiveRepository
	store    output.ArtifactStore

	infoLog func(format string, args ...interface{})
	warnLog func(format string, args ...interface{})
}

// NewRetentionSweeper creates a retention sweeper
func NewRetentionSweeper(
	archives repository.ArchiveRepository,
	store output.ArtifactStore,
	infoLog, warnLog func(format string, args ...interface{}),
) *RetentionSweeper {
	return &RetentionSweeper{
		archives: archives,
		store:    store,
		infoLog:  infoLog,
		warnLog:  warnLog,
	}
}

// Sweep examines all non-current records and, when cleanup is enabled,
// removes the expired ones from the index and then from disk
func (s *RetentionSweeper) Sweep(ctx context.Context, now time.Time, cleanupEnabled bool) (*SweepResult, error) {
	records, err := s.archives.List(ctx, repository.ArchiveQuery{Sort: repository.SortByDate})
	if err != nil {
		return nil, fmt.Errorf("list archive records: %w", err)
	}

	result := &SweepResult{}
	for _, rec := range records {
		if rec.IsCurrent() || !rec.IsExpired(now) {
			continue
		}
		result.Examined++

		if !cleanupEnabled {
			result.Skipped++
			continue
		}

		if err := s.archives.Delete(ctx, rec.Filename()); err != nil {
			if errors.Is(err, artifact.ErrForbidden) {
				// Became current between listing and delete; leave it
				continue
			}
			s.warnLog("retention: delete record %s: %v", rec.Filename(), err)
			continue
		}

		if err := s.store.Delete(rec.Filename()); err != nil && !errors.Is(err, artifact.ErrNotFound) {
			// Record is gone but the file remains; re-sweepable, so warn only
			s.warnLog("retention: delete file %s: %v", rec.Filename(), err)
			continue
		}

		result.Deleted++
		s.infoLog("retention: removed expired archive %s", rec.Filename())
	}

	return result, nil
}
