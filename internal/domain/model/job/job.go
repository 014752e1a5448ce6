package job

import (
	"errors"
	"fmt"
	"time"
)

// Status represents the lifecycle state of one merge job execution
type Status string

const (
	StatusRunning   Status = "running"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// FailureKind classifies why a job failed
type FailureKind string

const (
	FailureSourceUnavailable FailureKind = "source_unavailable"
	FailureFilterEmpty       FailureKind = "filter_empty"
	FailureTimeout           FailureKind = "timeout"
	FailurePromoteFailed     FailureKind = "promote_failed"
	FailureUnknown           FailureKind = "unknown"
)

// ErrAlreadyRunning is returned when a trigger loses the single-flight gate
var ErrAlreadyRunning = errors.New("a merge job is already running")

// PhaseTimeoutError reports which execution phase exceeded its deadline
type PhaseTimeoutError struct {
	Phase string
}

func (e *PhaseTimeoutError) Error() string {
	return fmt.Sprintf("phase %s exceeded its timeout", e.Phase)
}

// Summary carries the merge result fields recorded on success
type Summary struct {
	Filename     string
	Channels     int
	Programs     int
	SizeBytes    int64
	DaysIncluded int
}

// Failure carries the classification and message recorded on failure
type Failure struct {
	Kind    FailureKind
	Message string
}

// Job is one execution attempt of the merge pipeline. Its terminal state is
// set exactly once; after that the record is immutable.
type Job struct {
	id          string
	status      Status
	startedAt   time.Time
	completedAt time.Time
	summary     *Summary
	failure     *Failure
}

// New creates a job in the running state with a fresh ULID identifier
func New() *Job {
	return &Job{
		id:        NewID(),
		status:    StatusRunning,
		startedAt: time.Now().UTC(),
	}
}

// Reconstruct rebuilds a Job from persisted data
func Reconstruct(id string, status Status, startedAt, completedAt time.Time, summary *Summary, failure *Failure) *Job {
	return &Job{
		id:          id,
		status:      status,
		startedAt:   startedAt,
		completedAt: completedAt,
		summary:     summary,
		failure:     failure,
	}
}

// Complete marks the job successful with its merge summary
func (j *Job) Complete(s Summary) error {
	if err := j.ensureRunning(); err != nil {
		return err
	}
	j.status = StatusSuccess
	j.completedAt = time.Now().UTC()
	j.summary = &s
	return nil
}

// Fail marks the job failed with a classification and message
func (j *Job) Fail(kind FailureKind, message string) error {
	if err := j.ensureRunning(); err != nil {
		return err
	}
	j.status = StatusFailed
	j.completedAt = time.Now().UTC()
	j.failure = &Failure{Kind: kind, Message: message}
	return nil
}

// Cancel marks the job cancelled
func (j *Job) Cancel() error {
	if err := j.ensureRunning(); err != nil {
		return err
	}
	j.status = StatusCancelled
	j.completedAt = time.Now().UTC()
	j.failure = &Failure{Kind: FailureUnknown, Message: "job was cancelled"}
	return nil
}

func (j *Job) ensureRunning() error {
	if j.status != StatusRunning {
		return fmt.Errorf("job %s already terminal (%s)", j.id, j.status)
	}
	return nil
}

// IsTerminal reports whether the job has reached a final state
func (j *Job) IsTerminal() bool {
	return j.status != StatusRunning
}

// ExecutionSeconds reports wall-clock duration; zero until terminal
func (j *Job) ExecutionSeconds() float64 {
	if j.completedAt.IsZero() {
		return 0
	}
	return j.completedAt.Sub(j.startedAt).Seconds()
}

// Getters
func (j *Job) ID() string             { return j.id }
func (j *Job) Status() Status         { return j.status }
func (j *Job) StartedAt() time.Time   { return j.startedAt }
func (j *Job) CompletedAt() time.Time { return j.completedAt }
func (j *Job) Summary() *Summary      { return j.summary }
func (j *Job) Failure() *Failure      { return j.failure }
