package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jesmann/epgmerge/internal/application/dto"
	"github.com/jesmann/epgmerge/internal/domain/model/job"
)

type fakeTrigger struct {
	mu       sync.Mutex
	running  bool
	triggers int
	err      error
}

func (f *fakeTrigger) TriggerAsync(bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.triggers++
	return "01JOB", nil
}

func (f *fakeTrigger) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeTrigger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.triggers
}

type staticSettings struct{ values map[string]string }

func (s *staticSettings) Get(_ context.Context, key, fallback string) (string, error) {
	if v, ok := s.values[key]; ok {
		return v, nil
	}
	return fallback, nil
}

func (s *staticSettings) Set(_ context.Context, key, value string) error {
	s.values[key] = value
	return nil
}

func (s *staticSettings) All(context.Context) (map[string]string, error) {
	return s.values, nil
}

func dailyAt(hhmm string) *staticSettings {
	return &staticSettings{values: map[string]string{
		dto.KeyMergeSchedule: "daily",
		dto.KeyMergeTime:     hhmm,
	}}
}

func newTestScheduler(trigger *fakeTrigger, settings *staticSettings) *Scheduler {
	discard := func(string, ...interface{}) {}
	return NewScheduler(trigger, settings, time.Second, discard, discard)
}

func TestScheduler_FiresOnceWithinMatchingMinute(t *testing.T) {
	trigger := &fakeTrigger{}
	s := newTestScheduler(trigger, dailyAt("03:00"))

	base := time.Date(2024, 6, 1, 3, 0, 5, 0, time.UTC)
	s.Tick(context.Background(), base)
	s.Tick(context.Background(), base.Add(30*time.Second))
	s.Tick(context.Background(), base.Add(50*time.Second))

	assert.Equal(t, 1, trigger.count())
}

func TestScheduler_NoMatchNoTrigger(t *testing.T) {
	trigger := &fakeTrigger{}
	s := newTestScheduler(trigger, dailyAt("03:00"))

	s.Tick(context.Background(), time.Date(2024, 6, 1, 2, 59, 30, 0, time.UTC))
	s.Tick(context.Background(), time.Date(2024, 6, 1, 3, 1, 0, 0, time.UTC))

	assert.Equal(t, 0, trigger.count())
}

func TestScheduler_FiresAgainNextDay(t *testing.T) {
	trigger := &fakeTrigger{}
	s := newTestScheduler(trigger, dailyAt("03:00"))

	s.Tick(context.Background(), time.Date(2024, 6, 1, 3, 0, 0, 0, time.UTC))
	s.Tick(context.Background(), time.Date(2024, 6, 2, 3, 0, 0, 0, time.UTC))

	assert.Equal(t, 2, trigger.count())
}

func TestScheduler_SkipsWhileJobRunning(t *testing.T) {
	trigger := &fakeTrigger{running: true}
	s := newTestScheduler(trigger, dailyAt("03:00"))

	at := time.Date(2024, 6, 1, 3, 0, 10, 0, time.UTC)
	s.Tick(context.Background(), at)
	assert.Equal(t, 0, trigger.count())

	// The job finishes within the same minute; the next tick still fires
	// because the skip did not consume the slot
	trigger.mu.Lock()
	trigger.running = false
	trigger.mu.Unlock()
	s.Tick(context.Background(), at.Add(40*time.Second))
	assert.Equal(t, 1, trigger.count())
}

func TestScheduler_ToleratesLostGate(t *testing.T) {
	trigger := &fakeTrigger{err: job.ErrAlreadyRunning}
	s := newTestScheduler(trigger, dailyAt("03:00"))

	s.Tick(context.Background(), time.Date(2024, 6, 1, 3, 0, 0, 0, time.UTC))
	assert.Equal(t, 0, trigger.count())
}

func TestScheduler_WeeklyHonorsDays(t *testing.T) {
	trigger := &fakeTrigger{}
	settings := dailyAt("04:30")
	settings.values[dto.KeyMergeSchedule] = "weekly"
	settings.values[dto.KeyMergeDays] = "[0]" // Sunday
	s := newTestScheduler(trigger, settings)

	// 2024-06-01 is a Saturday, 2024-06-02 a Sunday
	s.Tick(context.Background(), time.Date(2024, 6, 1, 4, 30, 0, 0, time.UTC))
	assert.Equal(t, 0, trigger.count())
	s.Tick(context.Background(), time.Date(2024, 6, 2, 4, 30, 0, 0, time.UTC))
	assert.Equal(t, 1, trigger.count())
}

func TestScheduler_SettingsChangeTakesEffectNextTick(t *testing.T) {
	trigger := &fakeTrigger{}
	settings := dailyAt("03:00")
	s := newTestScheduler(trigger, settings)

	at := time.Date(2024, 6, 1, 5, 0, 0, 0, time.UTC)
	s.Tick(context.Background(), at)
	assert.Equal(t, 0, trigger.count())

	require.NoError(t, settings.Set(context.Background(), dto.KeyMergeTime, "05:00"))
	s.Tick(context.Background(), at.Add(10*time.Second))
	assert.Equal(t, 1, trigger.count())
}

func TestScheduler_StartStop(t *testing.T) {
	trigger := &fakeTrigger{}
	s := newTestScheduler(trigger, dailyAt("03:00"))
	s.Start()
	s.Stop()
	// Stop is idempotent
	s.Stop()
}

func TestScheduler_NextRun(t *testing.T) {
	s := newTestScheduler(&fakeTrigger{}, dailyAt("03:00"))

	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	next := s.NextRun(context.Background(), now)
	assert.Equal(t, time.Date(2024, 6, 2, 3, 0, 0, 0, time.UTC), next)
}
