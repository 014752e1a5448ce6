package output

import (
	"context"
	"io"

	"github.com/jesmann/epgmerge/internal/application/dto"
	"github.com/jesmann/epgmerge/internal/domain/model/artifact"
)

// ArtifactStore manages the scratch, current, and archive areas on disk.
// Promote and Delete serialize against each other; reads may proceed
// against stable files at any time.
type ArtifactStore interface {
	// Stage writes the reader's bytes atomically into the scratch area,
	// overwriting any prior scratch file of the same name
	Stage(name string, r io.Reader) (int64, error)

	// Promote demotes any existing current file for targetName into the
	// archive area under a timestamp suffix, then installs the staged
	// scratch file as current. A failure after demotion returns
	// *artifact.PartialPromoteError.
	Promote(scratchName, targetName string) (*artifact.PromoteResult, error)

	// ListArchives lazily lists the archive area; no ordering guarantee
	ListArchives() ([]artifact.FileInfo, error)

	// Open returns a reader for a current or archived artifact
	Open(filename string) (io.ReadCloser, *artifact.FileInfo, error)

	// Delete removes an archived file. artifact.ErrForbidden when the name
	// occupies the current slot, artifact.ErrNotFound when absent.
	Delete(filename string) error

	// CurrentInfo describes the current slot for targetName, nil if empty
	CurrentInfo(targetName string) (*artifact.FileInfo, error)

	// DiscardScratch removes a scratch file, ignoring absence
	DiscardScratch(name string) error
}

// MergeEngine produces a merged artifact from external sources. The two
// phases are exposed separately so the executor can apply independent
// timeouts and check cancellation between them.
type MergeEngine interface {
	Fetch(ctx context.Context, req dto.MergeRequest) (*dto.FetchResult, error)
	Merge(ctx context.Context, fetched *dto.FetchResult, req dto.MergeRequest) (*dto.MergeResult, error)
}

// Notifier delivers job events. Fire-and-forget: delivery failures are the
// implementation's problem to log and must never fail the job.
type Notifier interface {
	Notify(ctx context.Context, ev dto.JobEvent) error
}

// TransactionManager runs a function inside a database transaction
type TransactionManager interface {
	InTransaction(ctx context.Context, fn func(txCtx context.Context) error) error
}
