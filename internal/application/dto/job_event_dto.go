package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/jesmann/epgmerge/internal/domain/model/job"
)

// EventKind distinguishes notification events beyond plain job outcomes
type EventKind string

const (
	EventJobFinished           EventKind = "job_finished"
	EventMetadataInconsistency EventKind = "metadata_inconsistency"
)

// JobEvent is the payload handed to the notification dispatcher.
// Delivery is fire-and-forget; the EventID exists so deliveries can be
// correlated in logs.
type JobEvent struct {
	EventID    string
	Kind       EventKind
	JobID      string
	Status     job.Status
	Summary    *job.Summary
	Error      string
	ExecutedIn time.Duration
	OccurredAt time.Time
}

// NewJobEvent builds a job-outcome event from a terminal job
func NewJobEvent(j *job.Job) JobEvent {
	ev := JobEvent{
		EventID:    uuid.New().String(),
		Kind:       EventJobFinished,
		JobID:      j.ID(),
		Status:     j.Status(),
		Summary:    j.Summary(),
		ExecutedIn: j.CompletedAt().Sub(j.StartedAt()),
		OccurredAt: time.Now().UTC(),
	}
	if f := j.Failure(); f != nil {
		ev.Error = f.Message
	}
	return ev
}

// NewInconsistencyEvent builds a metadata-inconsistency warning event
func NewInconsistencyEvent(jobID string, status job.Status, detail string) JobEvent {
	return JobEvent{
		EventID:    uuid.New().String(),
		Kind:       EventMetadataInconsistency,
		JobID:      jobID,
		Status:     status,
		Error:      detail,
		OccurredAt: time.Now().UTC(),
	}
}
