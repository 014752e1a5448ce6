package repository

import (
	"context"

	"github.com/jesmann/epgmerge/internal/domain/model/artifact"
)

// SortKey names a column archives may be ordered by
type SortKey string

const (
	SortByName         SortKey = "name"
	SortByDate         SortKey = "date"
	SortBySize         SortKey = "size"
	SortByChannels     SortKey = "channels"
	SortByPrograms     SortKey = "programs"
	SortByDaysIncluded SortKey = "days_included"
	SortByDaysLeft     SortKey = "days_left"
)

// ArchiveQuery filters and orders archive record listings.
// Days-left ordering is computed against the wall clock at query time.
type ArchiveQuery struct {
	Sort       SortKey
	Descending bool
	Limit      int // 0 means no limit
}

// ArchiveRepository is the metadata index mirroring the artifact store.
// Implementations must keep the "at most one current" invariant: current
// flips happen inside RecordCurrent's transaction, never piecewise.
type ArchiveRepository interface {
	// RecordCurrent demotes any existing current record under demotedName
	// and inserts rec as the new current, transactionally. demotedName must
	// be the archive name the store produced, so index and disk agree.
	RecordCurrent(ctx context.Context, rec *artifact.Record, demotedName string) error

	// Find returns the record for a filename, or artifact.ErrNotFound
	Find(ctx context.Context, filename string) (*artifact.Record, error)

	// FindCurrent returns the current record, or nil when no job has ever
	// succeeded
	FindCurrent(ctx context.Context) (*artifact.Record, error)

	// List returns records per the query
	List(ctx context.Context, q ArchiveQuery) ([]*artifact.Record, error)

	// Delete removes a record. Returns artifact.ErrForbidden for the
	// current record and artifact.ErrNotFound for an unknown filename.
	Delete(ctx context.Context, filename string) error

	// CountAll returns the total number of records, current included.
	// Used by consistency checks against the store's directory listing.
	CountAll(ctx context.Context) (int, error)
}
