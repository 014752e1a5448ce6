package artifact

import "time"

// PromoteResult describes a completed promotion: the new current filename
// and, when a prior current existed, the archive name it was demoted to.
type PromoteResult struct {
	Filename   string
	ArchivedAs string // empty when no prior current existed
	PromotedAt time.Time
	SizeBytes  int64
}

// FileInfo is the on-disk view of one artifact, as reported by the store.
// Ordering and summary counts are the metadata index's job.
type FileInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
}
