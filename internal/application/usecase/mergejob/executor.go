package mergejob

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jesmann/epgmerge/internal/application/dto"
	"github.com/jesmann/epgmerge/internal/application/port/output"
	"github.com/jesmann/epgmerge/internal/application/service"
	"github.com/jesmann/epgmerge/internal/domain/model/artifact"
	"github.com/jesmann/epgmerge/internal/domain/model/job"
	"github.com/jesmann/epgmerge/internal/domain/repository"
)

// DefaultHistoryLimit bounds the in-memory job history
const DefaultHistoryLimit = 50

// Phase names used in timeout errors and logs
const (
	PhaseDownload = "download"
	PhaseMerge    = "merge"
)

// Executor runs one merge-and-save cycle end to end: settings load, source
// fetch, merge, promote, metadata record, retention sweep, notification.
// Single-flight is enforced by an atomic check-and-set, so two triggers can
// never race into concurrent execution.
type Executor struct {
	store    output.ArtifactStore
	engine   output.MergeEngine
	archives repository.ArchiveRepository
	jobs     repository.JobRepository
	settings repository.SettingsRepository
	notifier output.Notifier
	sweeper  *service.RetentionSweeper

	historyLimit int

	running atomic.Bool
	mu      sync.Mutex
	current *job.Job
	cancel  context.CancelFunc
	history []*job.Job // newest first

	infoLog func(format string, args ...interface{})
	warnLog func(format string, args ...interface{})
}

// Config wires an Executor
type Config struct {
	Store        output.ArtifactStore
	Engine       output.MergeEngine
	Archives     repository.ArchiveRepository
	Jobs         repository.JobRepository
	Settings     repository.SettingsRepository
	Notifier     output.Notifier
	Sweeper      *service.RetentionSweeper
	HistoryLimit int
	InfoLog      func(format string, args ...interface{})
	WarnLog      func(format string, args ...interface{})
}

// NewExecutor creates a job executor
func NewExecutor(cfg Config) *Executor {
	limit := cfg.HistoryLimit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &Executor{
		store:        cfg.Store,
		engine:       cfg.Engine,
		archives:     cfg.Archives,
		jobs:         cfg.Jobs,
		settings:     cfg.Settings,
		notifier:     cfg.Notifier,
		sweeper:      cfg.Sweeper,
		historyLimit: limit,
		infoLog:      cfg.InfoLog,
		warnLog:      cfg.WarnLog,
	}
}

// ReconcileStartup repairs job rows left running by a previous process.
// Called once before any trigger is accepted.
func (e *Executor) ReconcileStartup(ctx context.Context) error {
	n, err := e.jobs.ReconcileInterrupted(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		e.warnLog("reconciled %d interrupted job record(s) to failed", n)
	}
	return nil
}

// Execute runs a job synchronously and returns its terminal record.
// Returns job.ErrAlreadyRunning when it loses the single-flight gate.
func (e *Executor) Execute(ctx context.Context, manual bool) (*job.Job, error) {
	j, runCtx, err := e.begin(ctx, manual)
	if err != nil {
		return nil, err
	}
	e.run(runCtx, j)
	e.finish(j)
	return j, nil
}

// TriggerAsync starts a job in the background and returns its ID
func (e *Executor) TriggerAsync(manual bool) (string, error) {
	j, runCtx, err := e.begin(context.Background(), manual)
	if err != nil {
		return "", err
	}
	go func() {
		e.run(runCtx, j)
		e.finish(j)
	}()
	return j.ID(), nil
}

func (e *Executor) begin(parent context.Context, manual bool) (*job.Job, context.Context, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, nil, job.ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(parent)
	j := job.New()

	e.mu.Lock()
	e.current = j
	e.cancel = cancel
	e.mu.Unlock()

	kind := "scheduled"
	if manual {
		kind = "manual"
	}
	e.infoLog("job %s started (%s)", j.ID(), kind)
	return j, runCtx, nil
}

func (e *Executor) finish(j *job.Job) {
	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	e.current = nil
	e.cancel = nil
	e.history = append([]*job.Job{j}, e.history...)
	if len(e.history) > e.historyLimit {
		e.history = e.history[:e.historyLimit]
	}
	e.mu.Unlock()

	// Release the gate last so observers never see an idle executor with
	// an unfinished job
	e.running.Store(false)
}

// Cancel requests cooperative cancellation of the running job.
// Returns false when no job is running.
func (e *Executor) Cancel() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel == nil {
		return false
	}
	e.cancel()
	return true
}

// IsRunning reports whether a job currently holds the single-flight gate
func (e *Executor) IsRunning() bool {
	return e.running.Load()
}

// Current returns the in-flight job, or nil
func (e *Executor) Current() *job.Job {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// History returns a copy of the bounded in-memory history, newest first
func (e *Executor) History() []*job.Job {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*job.Job, len(e.history))
	copy(out, e.history)
	return out
}

// run drives the pipeline. All terminal bookkeeping (job row, history,
// notification) uses a background context so a cancelled run still leaves
// an accurate record.
func (e *Executor) run(ctx context.Context, j *job.Job) {
	bg := context.Background()

	if err := e.jobs.Save(bg, j); err != nil {
		e.warnLog("job %s: save running record: %v", j.ID(), err)
	}

	ms, err := e.loadSettings(ctx)
	if err != nil {
		e.terminate(j, job.FailureUnknown, fmt.Sprintf("load settings: %v", err))
		return
	}

	if len(ms.Sources) == 0 || len(ms.Channels) == 0 {
		e.terminate(j, job.FailureFilterEmpty,
			fmt.Sprintf("no sources or channels configured: sources=%d channels=%d",
				len(ms.Sources), len(ms.Channels)))
		return
	}
	req := ms.MergeRequest()

	// Phase 1: fetch and filter sources
	fetched, err := e.fetchPhase(ctx, ms, req)
	if err != nil {
		e.failFromPhase(j, PhaseDownload, ctx, err)
		return
	}

	// Cancellation is cooperative, checked between phases
	if ctx.Err() != nil {
		e.cancelled(j)
		return
	}

	// Phase 2: merge
	result, err := e.mergePhase(ctx, ms, fetched, req)
	if err != nil {
		e.failFromPhase(j, PhaseMerge, ctx, err)
		return
	}

	if ctx.Err() != nil {
		result.Output.Close()
		e.cancelled(j)
		return
	}

	if ms.ChannelDropThreshold > 0 && len(ms.Channels) > 0 {
		dropPct := 100 * (len(ms.Channels) - result.Channels) / len(ms.Channels)
		if dropPct > ms.ChannelDropThreshold {
			e.warnLog("job %s: merged output dropped %d%% of selected channels (threshold %d%%)",
				j.ID(), dropPct, ms.ChannelDropThreshold)
		}
	}

	// Stage into scratch, then promote
	size, err := e.store.Stage(req.OutputFilename, result.Output)
	result.Output.Close()
	if err != nil {
		e.terminate(j, job.FailurePromoteFailed, fmt.Sprintf("stage output: %v", err))
		return
	}

	promoted, err := e.store.Promote(req.OutputFilename, req.OutputFilename)
	if err != nil {
		var partial *artifact.PartialPromoteError
		if errors.As(err, &partial) {
			// The demoted file is safe in the archive; the current slot is
			// empty until an operator reconciles
			e.emit(dto.NewInconsistencyEvent(j.ID(), job.StatusFailed,
				fmt.Sprintf("promote incomplete: prior current preserved as %s, current slot empty: %v",
					partial.ArchivedAs, partial.Err)))
		}
		e.store.DiscardScratch(req.OutputFilename)
		e.terminate(j, job.FailurePromoteFailed, fmt.Sprintf("promote: %v", err))
		return
	}

	summary := job.Summary{
		Filename:     promoted.Filename,
		Channels:     result.Channels,
		Programs:     result.Programs,
		SizeBytes:    size,
		DaysIncluded: ms.TimeframeDays,
	}

	// The file system promote is done; a metadata failure past this point
	// must not undo it. The job stays successful and the drift is surfaced
	// as a warning event for out-of-band reconciliation.
	rec, err := artifact.NewCurrent(promoted.Filename, result.Channels, result.Programs, ms.TimeframeDays, size)
	if err == nil {
		err = e.archives.RecordCurrent(bg, rec, promoted.ArchivedAs)
	}
	if err != nil {
		e.warnLog("job %s: metadata index out of sync with promoted file: %v", j.ID(), err)
		e.emit(dto.NewInconsistencyEvent(j.ID(), job.StatusSuccess,
			fmt.Sprintf("promoted %s but metadata record failed: %v", promoted.Filename, err)))
	}

	if err := j.Complete(summary); err != nil {
		e.warnLog("job %s: %v", j.ID(), err)
		return
	}
	if err := e.jobs.Save(bg, j); err != nil {
		e.warnLog("job %s: save success record: %v", j.ID(), err)
	}
	e.infoLog("job %s succeeded: %d channels, %d programs, %d bytes",
		j.ID(), result.Channels, result.Programs, size)

	e.postSuccess(bg, ms)
	e.emit(dto.NewJobEvent(j))
}

func (e *Executor) loadSettings(ctx context.Context) (dto.MergeSettings, error) {
	raw, err := e.settings.All(ctx)
	if err != nil {
		return dto.MergeSettings{}, err
	}
	return dto.ParseMergeSettings(raw), nil
}

func (e *Executor) fetchPhase(ctx context.Context, ms dto.MergeSettings, req dto.MergeRequest) (*dto.FetchResult, error) {
	phaseCtx, cancel := context.WithTimeout(ctx, ms.DownloadTimeout)
	defer cancel()
	return e.engine.Fetch(phaseCtx, req)
}

func (e *Executor) mergePhase(ctx context.Context, ms dto.MergeSettings, fetched *dto.FetchResult, req dto.MergeRequest) (*dto.MergeResult, error) {
	phaseCtx, cancel := context.WithTimeout(ctx, ms.MergeTimeout)
	defer cancel()
	return e.engine.Merge(phaseCtx, fetched, req)
}

// failFromPhase classifies a phase error: parent cancellation wins, then
// the phase deadline, then the phase's natural failure kind
func (e *Executor) failFromPhase(j *job.Job, phase string, parent context.Context, err error) {
	if parent.Err() == context.Canceled {
		e.cancelled(j)
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		timeoutErr := &job.PhaseTimeoutError{Phase: phase}
		e.terminate(j, job.FailureTimeout, timeoutErr.Error())
		return
	}
	kind := job.FailureUnknown
	if phase == PhaseDownload {
		kind = job.FailureSourceUnavailable
	}
	e.terminate(j, kind, fmt.Sprintf("phase %s: %v", phase, err))
}

func (e *Executor) cancelled(j *job.Job) {
	if err := j.Cancel(); err != nil {
		e.warnLog("job %s: %v", j.ID(), err)
		return
	}
	if err := e.jobs.Save(context.Background(), j); err != nil {
		e.warnLog("job %s: save cancelled record: %v", j.ID(), err)
	}
	e.infoLog("job %s cancelled", j.ID())
	e.emit(dto.NewJobEvent(j))
}

func (e *Executor) terminate(j *job.Job, kind job.FailureKind, message string) {
	if err := j.Fail(kind, message); err != nil {
		e.warnLog("job %s: %v", j.ID(), err)
		return
	}
	if err := e.jobs.Save(context.Background(), j); err != nil {
		e.warnLog("job %s: save failure record: %v", j.ID(), err)
	}
	e.warnLog("job %s failed (%s): %s", j.ID(), kind, message)
	e.emit(dto.NewJobEvent(j))
}

// postSuccess runs the retention sweep and job-history cleanup that follow
// every successful promote
func (e *Executor) postSuccess(ctx context.Context, ms dto.MergeSettings) {
	if e.sweeper != nil {
		if _, err := e.sweeper.Sweep(ctx, time.Now().UTC(), ms.RetentionCleanup); err != nil {
			e.warnLog("post-promote retention sweep: %v", err)
		}
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -ms.RetentionDays)
	if n, err := e.jobs.DeleteOlderThan(ctx, cutoff); err != nil {
		e.warnLog("job history cleanup: %v", err)
	} else if n > 0 {
		e.infoLog("job history cleanup removed %d record(s)", n)
	}
}

// emit delivers a notification. Fire-and-forget: a delivery failure is
// logged and never fails the job.
func (e *Executor) emit(ev dto.JobEvent) {
	if e.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.notifier.Notify(ctx, ev); err != nil {
		e.warnLog("notification %s: %v", ev.EventID, err)
	}
}
