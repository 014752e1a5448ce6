package dto

import (
	"time"

	"github.com/jesmann/epgmerge/internal/domain/model/artifact"
)

// ArchiveEntry is the listing view of one indexed artifact
type ArchiveEntry struct {
	Filename     string
	CreatedAt    time.Time
	Channels     int
	Programs     int
	DaysIncluded int
	DaysLeft     int
	SizeBytes    int64
	IsCurrent    bool
}

// NewArchiveEntry projects a record for display, computing the remaining
// validity window against the given instant
func NewArchiveEntry(rec *artifact.Record, now time.Time) ArchiveEntry {
	return ArchiveEntry{
		Filename:     rec.Filename(),
		CreatedAt:    rec.CreatedAt(),
		Channels:     rec.Channels(),
		Programs:     rec.Programs(),
		DaysIncluded: rec.DaysIncluded(),
		DaysLeft:     rec.DaysLeft(now),
		SizeBytes:    rec.SizeBytes(),
		IsCurrent:    rec.IsCurrent(),
	}
}

// VerifyReport compares the metadata index against the files on disk
type VerifyReport struct {
	IndexCount    int
	DiskCount     int
	MissingOnDisk []string // indexed but no file
	MissingIndex  []string // file but no index record
}

// Consistent reports whether index and disk fully agree
func (r VerifyReport) Consistent() bool {
	return len(r.MissingOnDisk) == 0 && len(r.MissingIndex) == 0
}
