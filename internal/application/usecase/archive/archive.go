package archive

import (
	"context"
	"errors"
	"io"
	"sort"
	"time"

	"github.com/jesmann/epgmerge/internal/application/dto"
	"github.com/jesmann/epgmerge/internal/application/port/output"
	"github.com/jesmann/epgmerge/internal/domain/model/artifact"
	"github.com/jesmann/epgmerge/internal/domain/repository"
)

// UseCase exposes read and maintenance operations over the artifact store
// and its metadata index
type UseCase struct {
	archives repository.ArchiveRepository
	store    output.ArtifactStore
	settings repository.SettingsRepository

	warnLog func(format string, args ...interface{})
}

// NewUseCase creates the archive usecase
func NewUseCase(
	archives repository.ArchiveRepository,
	store output.ArtifactStore,
	settings repository.SettingsRepository,
	warnLog func(format string, args ...interface{}),
) *UseCase {
	return &UseCase{
		archives: archives,
		store:    store,
		settings: settings,
		warnLog:  warnLog,
	}
}

// List returns indexed artifacts per the query, with the remaining validity
// window computed at call time
func (u *UseCase) List(ctx context.Context, q repository.ArchiveQuery) ([]dto.ArchiveEntry, error) {
	records, err := u.archives.List(ctx, q)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	out := make([]dto.ArchiveEntry, 0, len(records))
	for _, rec := range records {
		out = append(out, dto.NewArchiveEntry(rec, now))
	}
	return out, nil
}

// Current returns the current artifact's entry, or nil when no merge has
// ever succeeded
func (u *UseCase) Current(ctx context.Context) (*dto.ArchiveEntry, error) {
	rec, err := u.archives.FindCurrent(ctx)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	entry := dto.NewArchiveEntry(rec, time.Now().UTC())
	return &entry, nil
}

// Open returns a reader for a current or archived artifact
func (u *UseCase) Open(_ context.Context, filename string) (io.ReadCloser, *artifact.FileInfo, error) {
	return u.store.Open(filename)
}

// Install stages the reader's bytes under the configured output name and
// promotes them to current, recording the result in the index. Used for
// manually produced guide files; the index record carries no channel or
// programme counts for those.
func (u *UseCase) Install(ctx context.Context, r io.Reader) (*artifact.PromoteResult, error) {
	raw, err := u.settings.All(ctx)
	if err != nil {
		return nil, err
	}
	ms := dto.ParseMergeSettings(raw)

	if _, err := u.store.Stage(ms.OutputFilename, r); err != nil {
		return nil, err
	}
	result, err := u.store.Promote(ms.OutputFilename, ms.OutputFilename)
	if err != nil {
		u.store.DiscardScratch(ms.OutputFilename)
		return nil, err
	}

	rec, err := artifact.NewCurrent(result.Filename, 0, 0, ms.TimeframeDays, result.SizeBytes)
	if err == nil {
		err = u.archives.RecordCurrent(ctx, rec, result.ArchivedAs)
	}
	if err != nil {
		// The file on disk is authoritative; surface the index drift but do
		// not undo the promote
		u.warnLog("installed %s but metadata record failed: %v", result.Filename, err)
	}
	return result, nil
}

// Delete removes an archived artifact from the index and then from disk.
// Index first: a record without a file is a visible inconsistency, a file
// without a record would silently survive retention.
func (u *UseCase) Delete(ctx context.Context, filename string) error {
	if err := u.archives.Delete(ctx, filename); err != nil {
		return err
	}
	if err := u.store.Delete(filename); err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			u.warnLog("archive %s had an index record but no file", filename)
			return nil
		}
		return err
	}
	return nil
}

// Verify cross-checks the metadata index against the files on disk
func (u *UseCase) Verify(ctx context.Context) (*dto.VerifyReport, error) {
	records, err := u.archives.List(ctx, repository.ArchiveQuery{Sort: repository.SortByName})
	if err != nil {
		return nil, err
	}

	onDisk := map[string]bool{}
	archived, err := u.store.ListArchives()
	if err != nil {
		return nil, err
	}
	for _, f := range archived {
		onDisk[f.Name] = true
	}
	outputName, err := u.settings.Get(ctx, dto.KeyOutputFilename, "merged.xml.gz")
	if err != nil {
		return nil, err
	}
	if info, err := u.store.CurrentInfo(outputName); err != nil {
		return nil, err
	} else if info != nil {
		onDisk[info.Name] = true
	}

	report := &dto.VerifyReport{
		IndexCount: len(records),
		DiskCount:  len(onDisk),
	}
	indexed := map[string]bool{}
	for _, rec := range records {
		indexed[rec.Filename()] = true
		if !onDisk[rec.Filename()] {
			report.MissingOnDisk = append(report.MissingOnDisk, rec.Filename())
		}
	}
	for name := range onDisk {
		if !indexed[name] {
			report.MissingIndex = append(report.MissingIndex, name)
		}
	}
	sort.Strings(report.MissingOnDisk)
	sort.Strings(report.MissingIndex)
	return report, nil
}
