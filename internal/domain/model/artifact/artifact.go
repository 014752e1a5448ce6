package artifact

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// TimestampLayout is the suffix appended to a demoted current file.
// Archive names sort lexicographically in creation order.
const TimestampLayout = "20060102_150405"

var (
	// ErrInvalidName indicates a malformed or traversal-capable filename
	ErrInvalidName = errors.New("invalid artifact name")

	// ErrNotFound indicates the requested artifact does not exist
	ErrNotFound = errors.New("artifact not found")

	// ErrForbidden indicates an operation rejected on the current artifact
	ErrForbidden = errors.New("operation forbidden on current artifact")
)

// PartialPromoteError reports a promote that demoted the prior current file
// but failed to install the new one. The demoted file is safe under
// ArchivedAs; the current slot is empty until an operator reconciles.
type PartialPromoteError struct {
	ArchivedAs string
	Err        error
}

func (e *PartialPromoteError) Error() string {
	return fmt.Sprintf("promote incomplete after demotion to %s: %v", e.ArchivedAs, e.Err)
}

func (e *PartialPromoteError) Unwrap() error { return e.Err }

// ValidateName checks a filename for path traversal and malformed input.
// Names are NFC-normalized before inspection so that decomposed forms
// cannot smuggle separator sequences past the checks.
func ValidateName(name string) (string, error) {
	name = norm.NFC.String(strings.TrimSpace(name))
	if name == "" {
		return "", fmt.Errorf("%w: empty name", ErrInvalidName)
	}
	if strings.HasPrefix(name, "/") || strings.HasPrefix(name, "\\") {
		return "", fmt.Errorf("%w: absolute path %q", ErrInvalidName, name)
	}
	if strings.ContainsAny(name, "/\\") {
		return "", fmt.Errorf("%w: path separator in %q", ErrInvalidName, name)
	}
	if name == "." || name == ".." || strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: parent segment in %q", ErrInvalidName, name)
	}
	return name, nil
}

// ArchivedName derives the archive-area filename a current artifact takes
// when it is demoted at the given instant.
func ArchivedName(filename string, at time.Time) string {
	return filename + "." + at.UTC().Format(TimestampLayout)
}

// Record mirrors one artifact in the metadata index: the merge summary
// captured at promote time plus the current/archived state.
type Record struct {
	filename     string
	createdAt    time.Time
	channels     int
	programs     int
	daysIncluded int
	sizeBytes    int64
	isCurrent    bool
}

// NewCurrent creates the record inserted when an artifact is promoted.
func NewCurrent(filename string, channels, programs, daysIncluded int, sizeBytes int64) (*Record, error) {
	name, err := ValidateName(filename)
	if err != nil {
		return nil, err
	}
	if daysIncluded < 1 {
		return nil, fmt.Errorf("days included must be positive, got %d", daysIncluded)
	}
	return &Record{
		filename:     name,
		createdAt:    time.Now().UTC(),
		channels:     channels,
		programs:     programs,
		daysIncluded: daysIncluded,
		sizeBytes:    sizeBytes,
		isCurrent:    true,
	}, nil
}

// Reconstruct rebuilds a Record from persisted data.
// Used by the repository when loading from the database.
func Reconstruct(filename string, createdAt time.Time, channels, programs, daysIncluded int, sizeBytes int64, isCurrent bool) *Record {
	return &Record{
		filename:     filename,
		createdAt:    createdAt,
		channels:     channels,
		programs:     programs,
		daysIncluded: daysIncluded,
		sizeBytes:    sizeBytes,
		isCurrent:    isCurrent,
	}
}

// Demote flips the record out of the current slot under its archived name.
// A record is demoted at most once; demoting a non-current record is a bug.
func (r *Record) Demote(archivedName string) error {
	if !r.isCurrent {
		return fmt.Errorf("record %s is not current", r.filename)
	}
	r.filename = archivedName
	r.isCurrent = false
	return nil
}

// DaysLeft reports the remaining validity window in whole days, clamped at
// zero: creation date + days covered - 1, measured against today.
func (r *Record) DaysLeft(today time.Time) int {
	d := r.daysLeftRaw(today)
	if d < 0 {
		return 0
	}
	return d
}

// IsExpired reports whether the underlying data window has fully elapsed.
// Unlike DaysLeft this is not clamped, so a record expired days ago still
// reports true rather than looking freshly expired.
func (r *Record) IsExpired(today time.Time) bool {
	return r.daysLeftRaw(today) <= 0
}

func (r *Record) daysLeftRaw(today time.Time) int {
	created := r.createdAt.UTC()
	createdDay := time.Date(created.Year(), created.Month(), created.Day(), 0, 0, 0, 0, time.UTC)
	t := today.UTC()
	currentDay := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	elapsed := int(currentDay.Sub(createdDay).Hours() / 24)
	return r.daysIncluded - 1 - elapsed
}

// Getters
func (r *Record) Filename() string     { return r.filename }
func (r *Record) CreatedAt() time.Time { return r.createdAt }
func (r *Record) Channels() int        { return r.channels }
func (r *Record) Programs() int        { return r.programs }
func (r *Record) DaysIncluded() int    { return r.daysIncluded }
func (r *Record) SizeBytes() int64     { return r.sizeBytes }
func (r *Record) IsCurrent() bool      { return r.isCurrent }
