package mergejob

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jesmann/epgmerge/internal/application/dto"
	"github.com/jesmann/epgmerge/internal/application/service"
	"github.com/jesmann/epgmerge/internal/domain/model/artifact"
	"github.com/jesmann/epgmerge/internal/domain/model/job"
	"github.com/jesmann/epgmerge/internal/domain/repository"
	"github.com/jesmann/epgmerge/internal/infra/persistence/file"
)

// --- fakes ---

type fakeArchiveRepo struct {
	mu         sync.Mutex
	records    map[string]*artifact.Record
	recordErr  error
	currentKey string
}

func newFakeArchiveRepo() *fakeArchiveRepo {
	return &fakeArchiveRepo{records: map[string]*artifact.Record{}}
}

func (r *fakeArchiveRepo) RecordCurrent(_ context.Context, rec *artifact.Record, demotedName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recordErr != nil {
		return r.recordErr
	}
	if prior, ok := r.records[r.currentKey]; ok {
		if demotedName == "" {
			return errors.New("current exists but no demoted name given")
		}
		if err := prior.Demote(demotedName); err != nil {
			return err
		}
		delete(r.records, r.currentKey)
		r.records[demotedName] = prior
	}
	r.records[rec.Filename()] = rec
	r.currentKey = rec.Filename()
	return nil
}

func (r *fakeArchiveRepo) Find(_ context.Context, filename string) (*artifact.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[filename]
	if !ok {
		return nil, artifact.ErrNotFound
	}
	return rec, nil
}

func (r *fakeArchiveRepo) FindCurrent(context.Context) (*artifact.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records[r.currentKey], nil
}

func (r *fakeArchiveRepo) List(_ context.Context, _ repository.ArchiveQuery) ([]*artifact.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var names []string
	for n := range r.records {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]*artifact.Record, 0, len(names))
	for _, n := range names {
		out = append(out, r.records[n])
	}
	return out, nil
}

func (r *fakeArchiveRepo) Delete(_ context.Context, filename string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if filename == r.currentKey {
		return artifact.ErrForbidden
	}
	if _, ok := r.records[filename]; !ok {
		return artifact.ErrNotFound
	}
	delete(r.records, filename)
	return nil
}

func (r *fakeArchiveRepo) CountAll(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records), nil
}

type fakeJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*job.Job
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: map[string]*job.Job{}}
}

func (r *fakeJobRepo) Save(_ context.Context, j *job.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[j.ID()] = j
	return nil
}

func (r *fakeJobRepo) FindLatest(context.Context) (*job.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *job.Job
	for _, j := range r.jobs {
		if latest == nil || j.ID() > latest.ID() {
			latest = j
		}
	}
	return latest, nil
}

func (r *fakeJobRepo) List(_ context.Context, limit int) ([]*job.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*job.Job
	for _, j := range r.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID() > out[k].ID() })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeJobRepo) DeleteOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, j := range r.jobs {
		if j.StartedAt().Before(cutoff) {
			delete(r.jobs, id)
			n++
		}
	}
	return n, nil
}

func (r *fakeJobRepo) ReconcileInterrupted(context.Context) (int, error) {
	return 0, nil
}

func (r *fakeJobRepo) statusOf(id string) job.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobs[id].Status()
}

type fakeSettingsRepo struct {
	values map[string]string
}

func (r *fakeSettingsRepo) Get(_ context.Context, key, fallback string) (string, error) {
	if v, ok := r.values[key]; ok {
		return v, nil
	}
	return fallback, nil
}

func (r *fakeSettingsRepo) Set(_ context.Context, key, value string) error {
	r.values[key] = value
	return nil
}

func (r *fakeSettingsRepo) All(context.Context) (map[string]string, error) {
	out := make(map[string]string, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out, nil
}

type fakeEngine struct {
	fetchErr   error
	mergeErr   error
	fetchDelay time.Duration
	mergeDelay time.Duration
	channels   int
	programs   int
	payload    string
}

func (e *fakeEngine) Fetch(ctx context.Context, req dto.MergeRequest) (*dto.FetchResult, error) {
	if e.fetchDelay > 0 {
		select {
		case <-time.After(e.fetchDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if e.fetchErr != nil {
		return nil, e.fetchErr
	}
	return &dto.FetchResult{Files: req.Sources}, nil
}

func (e *fakeEngine) Merge(ctx context.Context, _ *dto.FetchResult, _ dto.MergeRequest) (*dto.MergeResult, error) {
	if e.mergeDelay > 0 {
		select {
		case <-time.After(e.mergeDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if e.mergeErr != nil {
		return nil, e.mergeErr
	}
	return &dto.MergeResult{
		Output:    io.NopCloser(strings.NewReader(e.payload)),
		Channels:  e.channels,
		Programs:  e.programs,
		SizeBytes: int64(len(e.payload)),
	}, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []dto.JobEvent
}

func (n *recordingNotifier) Notify(_ context.Context, ev dto.JobEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

func (n *recordingNotifier) kinds() []dto.EventKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]dto.EventKind, 0, len(n.events))
	for _, ev := range n.events {
		out = append(out, ev.Kind)
	}
	return out
}

// --- harness ---

type harness struct {
	executor *Executor
	engine   *fakeEngine
	store    *file.Store
	archives *fakeArchiveRepo
	jobs     *fakeJobRepo
	settings *fakeSettingsRepo
	notifier *recordingNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	store, err := file.NewStore(afero.NewMemMapFs(), "/data")
	require.NoError(t, err)

	sources, _ := json.Marshal([]string{"epg1.xml.gz", "epg2.xml.gz"})
	channels, _ := json.Marshal([]string{"BBC One", "ITV"})
	settings := &fakeSettingsRepo{values: map[string]string{
		dto.KeySelectedSources:  string(sources),
		dto.KeySelectedChannels: string(channels),
	}}

	engine := &fakeEngine{channels: 2, programs: 40, payload: "merged-guide-bytes"}
	archives := newFakeArchiveRepo()
	jobs := newFakeJobRepo()
	notifier := &recordingNotifier{}
	discard := func(string, ...interface{}) {}
	sweeper := service.NewRetentionSweeper(archives, store, discard, discard)

	exec := NewExecutor(Config{
		Store:    store,
		Engine:   engine,
		Archives: archives,
		Jobs:     jobs,
		Settings: settings,
		Notifier: notifier,
		Sweeper:  sweeper,
		InfoLog:  discard,
		WarnLog:  discard,
	})
	return &harness{
		executor: exec,
		engine:   engine,
		store:    store,
		archives: archives,
		jobs:     jobs,
		settings: settings,
		notifier: notifier,
	}
}

func (h *harness) setTimeoutSeconds(t *testing.T, key string, secs string) {
	t.Helper()
	require.NoError(t, h.settings.Set(context.Background(), key, secs))
}

// --- tests ---

func TestExecutor_SuccessfulRun(t *testing.T) {
	h := newHarness(t)

	j, err := h.executor.Execute(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, job.StatusSuccess, j.Status())
	require.NotNil(t, j.Summary())
	assert.Equal(t, "merged.xml.gz", j.Summary().Filename)
	assert.Equal(t, 2, j.Summary().Channels)
	assert.Equal(t, 40, j.Summary().Programs)
	assert.Equal(t, int64(len("merged-guide-bytes")), j.Summary().SizeBytes)

	// Current slot holds the promoted file
	info, err := h.store.CurrentInfo("merged.xml.gz")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, j.Summary().SizeBytes, info.Size)

	// Metadata index agrees
	rec, err := h.archives.FindCurrent(context.Background())
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "merged.xml.gz", rec.Filename())
	assert.True(t, rec.IsCurrent())

	// Terminal record persisted, outcome event delivered
	assert.Equal(t, job.StatusSuccess, h.jobs.statusOf(j.ID()))
	assert.Equal(t, []dto.EventKind{dto.EventJobFinished}, h.notifier.kinds())
}

func TestExecutor_SecondRunDemotesPrior(t *testing.T) {
	h := newHarness(t)

	_, err := h.executor.Execute(context.Background(), true)
	require.NoError(t, err)
	_, err = h.executor.Execute(context.Background(), true)
	require.NoError(t, err)

	archived, err := h.store.ListArchives()
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.True(t, strings.HasPrefix(archived[0].Name, "merged.xml.gz."))

	// Index mirrors disk: one current, one archived under the same name
	n, err := h.archives.CountAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	rec, err := h.archives.Find(context.Background(), archived[0].Name)
	require.NoError(t, err)
	assert.False(t, rec.IsCurrent())
}

func TestExecutor_SingleFlight(t *testing.T) {
	h := newHarness(t)
	h.engine.fetchDelay = 200 * time.Millisecond

	id, err := h.executor.TriggerAsync(true)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	// Give the goroutine time to take the gate
	require.Eventually(t, h.executor.IsRunning, time.Second, 5*time.Millisecond)

	_, err = h.executor.Execute(context.Background(), true)
	assert.ErrorIs(t, err, job.ErrAlreadyRunning)
	_, err = h.executor.TriggerAsync(false)
	assert.ErrorIs(t, err, job.ErrAlreadyRunning)

	require.Eventually(t, func() bool { return !h.executor.IsRunning() }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, job.StatusSuccess, h.jobs.statusOf(id))
}

func TestExecutor_FilterEmpty(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.settings.Set(context.Background(), dto.KeySelectedChannels, "[]"))

	j, err := h.executor.Execute(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, j.Status())
	require.NotNil(t, j.Failure())
	assert.Equal(t, job.FailureFilterEmpty, j.Failure().Kind)
}

func TestExecutor_SourceUnavailable(t *testing.T) {
	h := newHarness(t)
	h.engine.fetchErr = errors.New("upstream returned 503")

	j, err := h.executor.Execute(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, j.Status())
	assert.Equal(t, job.FailureSourceUnavailable, j.Failure().Kind)
	assert.Contains(t, j.Failure().Message, "503")
}

func TestExecutor_DownloadTimeout(t *testing.T) {
	h := newHarness(t)
	h.engine.fetchDelay = 2 * time.Second
	h.setTimeoutSeconds(t, dto.KeyDownloadTimeout, "0")

	j, err := h.executor.Execute(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, j.Status())
	assert.Equal(t, job.FailureTimeout, j.Failure().Kind)
	assert.Contains(t, j.Failure().Message, PhaseDownload)
}

func TestExecutor_MergeTimeout(t *testing.T) {
	h := newHarness(t)
	h.engine.mergeDelay = 2 * time.Second
	h.setTimeoutSeconds(t, dto.KeyMergeTimeout, "0")

	j, err := h.executor.Execute(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, j.Status())
	assert.Equal(t, job.FailureTimeout, j.Failure().Kind)
	assert.Contains(t, j.Failure().Message, PhaseMerge)
}

func TestExecutor_Cancel(t *testing.T) {
	h := newHarness(t)
	h.engine.fetchDelay = 5 * time.Second

	id, err := h.executor.TriggerAsync(true)
	require.NoError(t, err)
	require.Eventually(t, h.executor.IsRunning, time.Second, 5*time.Millisecond)

	assert.True(t, h.executor.Cancel())
	require.Eventually(t, func() bool { return !h.executor.IsRunning() }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, job.StatusCancelled, h.jobs.statusOf(id))

	// No artifact was promoted
	info, err := h.store.CurrentInfo("merged.xml.gz")
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestExecutor_CancelWhenIdle(t *testing.T) {
	h := newHarness(t)
	assert.False(t, h.executor.Cancel())
}

func TestExecutor_MetadataInconsistencyKeepsSuccess(t *testing.T) {
	h := newHarness(t)
	h.archives.recordErr = errors.New("disk I/O error")

	j, err := h.executor.Execute(context.Background(), true)
	require.NoError(t, err)

	// The promote on disk stands, so the job is still a success and the
	// drift is surfaced as a separate warning event
	assert.Equal(t, job.StatusSuccess, j.Status())
	info, err := h.store.CurrentInfo("merged.xml.gz")
	require.NoError(t, err)
	require.NotNil(t, info)

	kinds := h.notifier.kinds()
	assert.Contains(t, kinds, dto.EventMetadataInconsistency)
	assert.Contains(t, kinds, dto.EventJobFinished)
}

func TestExecutor_HistoryBounded(t *testing.T) {
	h := newHarness(t)
	h.executor.historyLimit = 3

	var lastID string
	for i := 0; i < 5; i++ {
		j, err := h.executor.Execute(context.Background(), true)
		require.NoError(t, err)
		lastID = j.ID()
	}

	hist := h.executor.History()
	require.Len(t, hist, 3)
	assert.Equal(t, lastID, hist[0].ID())
}

func TestExecutor_CurrentReflectsRunningJob(t *testing.T) {
	h := newHarness(t)
	h.engine.fetchDelay = 300 * time.Millisecond

	assert.Nil(t, h.executor.Current())
	id, err := h.executor.TriggerAsync(false)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		j := h.executor.Current()
		return j != nil && j.ID() == id
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool { return h.executor.Current() == nil }, 2*time.Second, 10*time.Millisecond)
}
