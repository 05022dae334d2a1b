package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/mlssync/internal/entities"
	"github.com/mrlokans/mlssync/internal/syncer"
)

type fakeRunner struct {
	mu       sync.Mutex
	running  bool
	seq      int
	begun    []entities.SyncKind
	executed chan *entities.SyncRun
	block    chan struct{}
	beginErr error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{executed: make(chan *entities.SyncRun, 10)}
}

func (r *fakeRunner) Begin(_ context.Context, kind entities.SyncKind) (*entities.SyncRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.beginErr != nil {
		return nil, r.beginErr
	}
	if r.running {
		return nil, &syncer.ConflictError{RunningRunID: "running"}
	}
	r.running = true
	r.seq++
	r.begun = append(r.begun, kind)
	return &entities.SyncRun{
		RunID:  "run-" + string(rune('0'+r.seq)),
		Kind:   kind,
		Status: entities.SyncStatusInProgress,
	}, nil
}

func (r *fakeRunner) Execute(ctx context.Context, run *entities.SyncRun) (*entities.SyncRun, error) {
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
		}
	}

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	var err error
	if ctx.Err() != nil {
		run.Status = entities.SyncStatusFailed
		err = ctx.Err()
	} else {
		run.Status = entities.SyncStatusCompleted
	}
	r.executed <- run
	return run, err
}

func (r *fakeRunner) kinds() []entities.SyncKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]entities.SyncKind(nil), r.begun...)
}

type fakeDispatcher struct {
	mu         sync.Mutex
	runs       []string
	retentions []time.Duration
	err        error
}

func (d *fakeDispatcher) DispatchRun(_ context.Context, runID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.runs = append(d.runs, runID)
	return nil
}

func (d *fakeDispatcher) DispatchCleanup(_ context.Context, retention time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.retentions = append(d.retentions, retention)
	return d.err
}

type fakeCleaner struct {
	cutoffs []time.Time
}

func (c *fakeCleaner) DeleteFinishedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	c.cutoffs = append(c.cutoffs, cutoff)
	return 1, nil
}

func quietConfig() Config {
	cfg := DefaultConfig()
	cfg.RunOnStartup = false
	return cfg
}

func waitExecuted(t *testing.T, r *fakeRunner) *entities.SyncRun {
	t.Helper()
	select {
	case run := <-r.executed:
		return run
	case <-time.After(5 * time.Second):
		t.Fatal("run was not executed within timeout")
		return nil
	}
}

func TestRunScheduled(t *testing.T) {
	runner := newFakeRunner()
	s := NewListingSyncScheduler(runner, quietConfig())

	run, err := s.RunScheduled(context.Background(), entities.SyncKindFull)
	require.NoError(t, err)
	assert.Equal(t, entities.SyncStatusCompleted, run.Status)
	assert.Equal(t, []entities.SyncKind{entities.SyncKindFull}, runner.kinds())
}

func TestRunScheduledConflictIsSkipped(t *testing.T) {
	runner := newFakeRunner()
	runner.running = true
	s := NewListingSyncScheduler(runner, quietConfig())

	run, err := s.RunScheduled(context.Background(), entities.SyncKindIncremental)
	assert.Nil(t, run)
	assert.ErrorIs(t, err, syncer.ErrRunInProgress)
	assert.Empty(t, runner.executed)
	assert.Empty(t, runner.kinds())
}

func TestTriggerExecutesInBackground(t *testing.T) {
	runner := newFakeRunner()
	runner.block = make(chan struct{})
	s := NewListingSyncScheduler(runner, quietConfig())
	defer s.Stop()

	run, err := s.Trigger(context.Background(), entities.SyncKindFull)
	require.NoError(t, err)
	assert.Equal(t, entities.SyncStatusInProgress, run.Status)

	// A second trigger while the first is executing conflicts.
	_, err = s.Trigger(context.Background(), entities.SyncKindIncremental)
	var conflict *syncer.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "running", conflict.RunningRunID)

	close(runner.block)
	executed := waitExecuted(t, runner)
	assert.Equal(t, run.RunID, executed.RunID)
	assert.Equal(t, entities.SyncStatusCompleted, executed.Status)
	// The returned run is not touched by the background execution.
	assert.Equal(t, entities.SyncStatusInProgress, run.Status)
}

func TestTriggerUsesDispatcher(t *testing.T) {
	runner := newFakeRunner()
	dispatcher := &fakeDispatcher{}
	s := NewListingSyncScheduler(runner, quietConfig(), WithDispatcher(dispatcher))
	defer s.Stop()

	run, err := s.Trigger(context.Background(), entities.SyncKindIncremental)
	require.NoError(t, err)

	assert.Equal(t, []string{run.RunID}, dispatcher.runs)
	assert.Empty(t, runner.executed)
}

func TestTriggerFallsBackWhenDispatchFails(t *testing.T) {
	runner := newFakeRunner()
	dispatcher := &fakeDispatcher{err: errors.New("tasks database is locked")}
	s := NewListingSyncScheduler(runner, quietConfig(), WithDispatcher(dispatcher))
	defer s.Stop()

	run, err := s.Trigger(context.Background(), entities.SyncKindIncremental)
	require.NoError(t, err)

	executed := waitExecuted(t, runner)
	assert.Equal(t, run.RunID, executed.RunID)
}

func TestTriggerAfterStop(t *testing.T) {
	runner := newFakeRunner()
	s := NewListingSyncScheduler(runner, quietConfig())
	s.Stop()

	_, err := s.Trigger(context.Background(), entities.SyncKindFull)
	assert.ErrorIs(t, err, ErrStopped)
	assert.Empty(t, runner.kinds())
}

func TestStopCancelsRunningExecution(t *testing.T) {
	runner := newFakeRunner()
	runner.block = make(chan struct{})
	s := NewListingSyncScheduler(runner, quietConfig())

	_, err := s.Trigger(context.Background(), entities.SyncKindFull)
	require.NoError(t, err)

	s.Stop()

	executed := waitExecuted(t, runner)
	assert.Equal(t, entities.SyncStatusFailed, executed.Status)
}

func TestStartStop(t *testing.T) {
	s := NewListingSyncScheduler(newFakeRunner(), quietConfig())
	assert.Nil(t, s.NextRun())

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())

	next := s.NextRun()
	require.NotNil(t, next)
	assert.True(t, next.After(time.Now()))
	assert.True(t, next.Before(time.Now().Add(31*time.Minute)))

	s.Stop()
	assert.False(t, s.IsRunning())
	assert.Nil(t, s.NextRun())

	assert.ErrorIs(t, s.Start(context.Background()), ErrStopped)
}

func TestStartStopsOnContextCancel(t *testing.T) {
	s := NewListingSyncScheduler(newFakeRunner(), quietConfig())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	cancel()

	assert.Eventually(t, func() bool { return !s.IsRunning() }, 2*time.Second, 10*time.Millisecond)
}

func TestStartRejectsInvalidSchedule(t *testing.T) {
	cfg := quietConfig()
	cfg.FullSchedule = "every day"
	s := NewListingSyncScheduler(newFakeRunner(), cfg)

	err := s.Start(context.Background())
	assert.ErrorContains(t, err, "invalid cron schedule")
	assert.False(t, s.IsRunning())
}

func TestStartupRun(t *testing.T) {
	runner := newFakeRunner()
	cfg := quietConfig()
	cfg.RunOnStartup = true
	cfg.StartupDelay = 10 * time.Millisecond
	s := NewListingSyncScheduler(runner, cfg)
	defer s.Stop()

	require.NoError(t, s.Start(context.Background()))

	executed := waitExecuted(t, runner)
	assert.Equal(t, entities.SyncKindIncremental, executed.Kind)
}

func TestStopCancelsStartupRun(t *testing.T) {
	runner := newFakeRunner()
	cfg := quietConfig()
	cfg.RunOnStartup = true
	cfg.StartupDelay = time.Hour
	s := NewListingSyncScheduler(runner, cfg)

	require.NoError(t, s.Start(context.Background()))
	s.Stop()

	assert.Empty(t, runner.kinds())
}

func TestPruneHistory(t *testing.T) {
	t.Run("dispatches when a queue is configured", func(t *testing.T) {
		dispatcher := &fakeDispatcher{}
		s := NewListingSyncScheduler(newFakeRunner(), quietConfig(), WithDispatcher(dispatcher))

		s.pruneHistory(context.Background())
		assert.Equal(t, []time.Duration{30 * 24 * time.Hour}, dispatcher.retentions)
	})

	t.Run("deletes inline otherwise", func(t *testing.T) {
		cleaner := &fakeCleaner{}
		s := NewListingSyncScheduler(newFakeRunner(), quietConfig(), WithCleaner(cleaner))

		before := time.Now()
		s.pruneHistory(context.Background())
		require.Len(t, cleaner.cutoffs, 1)
		assert.WithinDuration(t, before.Add(-30*24*time.Hour), cleaner.cutoffs[0], time.Minute)
	})
}

func TestValidateSchedule(t *testing.T) {
	assert.NoError(t, ValidateSchedule("*/30 * * * *"))
	assert.NoError(t, ValidateSchedule("0 3 * * *"))
	assert.Error(t, ValidateSchedule("* * * * * *"))
	assert.Error(t, ValidateSchedule(""))
}
