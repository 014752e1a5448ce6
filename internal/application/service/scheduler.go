package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jesmann/epgmerge/internal/application/dto"
	"github.com/jesmann/epgmerge/internal/domain/model/job"
	"github.com/jesmann/epgmerge/internal/domain/model/schedule"
	"github.com/jesmann/epgmerge/internal/domain/repository"
)

// DefaultTickInterval is how often the scheduler re-evaluates the schedule.
// Well under a minute, so a matching minute always receives at least one
// tick; the last-fired mark keeps it to at most one trigger.
const DefaultTickInterval = 30 * time.Second

// JobTrigger is the slice of the job executor the scheduler needs
type JobTrigger interface {
	TriggerAsync(manual bool) (string, error)
	IsRunning() bool
}

// Scheduler evaluates the configured schedule against wall-clock time on a
// fixed tick and triggers the executor on a match. Settings are read fresh
// every tick so changes take effect without a restart.
type Scheduler struct {
	trigger  JobTrigger
	settings repository.SettingsRepository
	interval time.Duration

	mu        sync.Mutex
	lastFired time.Time // minute high-water mark

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}

	infoLog func(format string, args ...interface{})
	warnLog func(format string, args ...interface{})
}

// NewScheduler creates a scheduler. A non-positive interval selects the
// default tick.
func NewScheduler(
	trigger JobTrigger,
	settings repository.SettingsRepository,
	interval time.Duration,
	infoLog, warnLog func(format string, args ...interface{}),
) *Scheduler {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Scheduler{
		trigger:  trigger,
		settings: settings,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		infoLog:  infoLog,
		warnLog:  warnLog,
	}
}

// Start runs the evaluation loop until Stop is called
func (s *Scheduler) Start() {
	go func() {
		defer close(s.doneCh)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopCh:
				return
			case now := <-ticker.C:
				s.Tick(context.Background(), now)
			}
		}
	}()
}

// Stop terminates the loop and waits for it to exit
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh
}

// Tick evaluates the schedule at the given instant. Exported so tests can
// drive wall-clock scenarios directly.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	spec, err := s.loadSpec(ctx)
	if err != nil {
		s.warnLog("scheduler: %v", err)
		return
	}

	if !spec.Matches(now) {
		return
	}

	minute := now.Truncate(time.Minute)
	s.mu.Lock()
	alreadyFired := s.lastFired.Equal(minute)
	s.mu.Unlock()
	if alreadyFired {
		return
	}

	if s.trigger.IsRunning() {
		s.infoLog("scheduler: tick at %s skipped, a job is already running", now.Format(time.RFC3339))
		return
	}

	jobID, err := s.trigger.TriggerAsync(false)
	if err != nil {
		if errors.Is(err, job.ErrAlreadyRunning) {
			// Lost the gate to a manual trigger between the check and now
			s.infoLog("scheduler: tick at %s lost single-flight gate", now.Format(time.RFC3339))
			return
		}
		s.warnLog("scheduler: trigger failed: %v", err)
		return
	}

	s.mu.Lock()
	s.lastFired = minute
	s.mu.Unlock()
	s.infoLog("scheduler: triggered job %s", jobID)
}

// NextRun returns the next scheduled run after now, or zero time when the
// schedule is not configured validly
func (s *Scheduler) NextRun(ctx context.Context, now time.Time) time.Time {
	spec, err := s.loadSpec(ctx)
	if err != nil {
		return time.Time{}
	}
	return spec.Next(now)
}

func (s *Scheduler) loadSpec(ctx context.Context) (schedule.Spec, error) {
	raw, err := s.settings.All(ctx)
	if err != nil {
		return schedule.Spec{}, err
	}
	ms := dto.ParseMergeSettings(raw)
	return schedule.New(ms.ScheduleFrequency, ms.ScheduleTime, ms.ScheduleDays)
}
