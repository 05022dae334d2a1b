// Package scheduler runs listing syncs on a cron schedule and on demand.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mrlokans/mlssync/internal/entities"
	"github.com/mrlokans/mlssync/internal/syncer"
)

// ErrStopped is returned by Trigger once the scheduler has been stopped.
var ErrStopped = errors.New("listing sync scheduler is stopped")

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Runner starts and carries out sync runs.
type Runner interface {
	Begin(ctx context.Context, kind entities.SyncKind) (*entities.SyncRun, error)
	Execute(ctx context.Context, run *entities.SyncRun) (*entities.SyncRun, error)
}

// Dispatcher hands sync work to a background queue.
type Dispatcher interface {
	DispatchRun(ctx context.Context, runID string) error
	DispatchCleanup(ctx context.Context, retention time.Duration) error
}

// RunCleaner deletes old finished runs.
type RunCleaner interface {
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Config controls what the scheduler runs and when.
type Config struct {
	// Schedule is the cron expression for incremental runs.
	Schedule string
	// FullSchedule is the cron expression for full runs. Empty disables them.
	FullSchedule string
	// RetentionSchedule is when old runs are pruned from the ledger.
	RetentionSchedule string
	// HistoryRetention is how long finished runs are kept. Zero keeps them forever.
	HistoryRetention time.Duration

	RunOnStartup bool
	StartupDelay time.Duration
}

// DefaultConfig returns the schedule used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Schedule:          "*/30 * * * *",
		RetentionSchedule: "0 3 * * *",
		HistoryRetention:  30 * 24 * time.Hour,
		RunOnStartup:      true,
		StartupDelay:      10 * time.Second,
	}
}

// ValidateSchedule reports whether expr is a valid five-field cron expression.
func ValidateSchedule(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron schedule '%s': %w", expr, err)
	}
	return nil
}

// ListingSyncScheduler manages periodic and manually triggered listing syncs.
// It is not restartable once stopped.
type ListingSyncScheduler struct {
	runner     Runner
	dispatcher Dispatcher
	cleaner    RunCleaner
	config     Config

	cron         *cron.Cron
	entryID      cron.EntryID
	startupTimer *time.Timer

	runCtx    context.Context
	cancelRun context.CancelFunc
	wg        sync.WaitGroup

	mu        sync.RWMutex
	isRunning bool
	stopped   bool
}

// Option configures a ListingSyncScheduler
type Option func(*ListingSyncScheduler)

// WithDispatcher executes manual runs and retention on a background queue
func WithDispatcher(d Dispatcher) Option {
	return func(s *ListingSyncScheduler) {
		s.dispatcher = d
	}
}

// WithCleaner prunes the ledger inline when no dispatcher is configured
func WithCleaner(c RunCleaner) Option {
	return func(s *ListingSyncScheduler) {
		s.cleaner = c
	}
}

// NewListingSyncScheduler creates a new scheduler instance
func NewListingSyncScheduler(runner Runner, config Config, opts ...Option) *ListingSyncScheduler {
	runCtx, cancel := context.WithCancel(context.Background())
	s := &ListingSyncScheduler{
		runner:    runner,
		config:    config,
		cron:      cron.New(cron.WithParser(cronParser)),
		runCtx:    runCtx,
		cancelRun: cancel,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start registers the cron jobs and the startup run. It stops the scheduler
// when ctx is cancelled.
func (s *ListingSyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}
	if s.stopped {
		return ErrStopped
	}

	if s.config.Schedule == "" {
		s.config.Schedule = DefaultConfig().Schedule
	}

	entryID, err := s.addJob(s.config.Schedule, func() {
		_, _ = s.RunScheduled(s.runCtx, entities.SyncKindIncremental)
	})
	if err != nil {
		return err
	}
	s.entryID = entryID

	if s.config.FullSchedule != "" {
		if _, err := s.addJob(s.config.FullSchedule, func() {
			_, _ = s.RunScheduled(s.runCtx, entities.SyncKindFull)
		}); err != nil {
			return err
		}
	}

	if s.config.RetentionSchedule != "" && s.config.HistoryRetention > 0 {
		if _, err := s.addJob(s.config.RetentionSchedule, func() {
			s.pruneHistory(s.runCtx)
		}); err != nil {
			return err
		}
	}

	s.cron.Start()
	s.isRunning = true

	if s.config.RunOnStartup {
		s.wg.Add(1)
		s.startupTimer = time.AfterFunc(s.config.StartupDelay, func() {
			defer s.wg.Done()
			_, _ = s.RunScheduled(s.runCtx, entities.SyncKindIncremental)
		})
	}

	log.Printf("Listing sync scheduler: started with schedule '%s'. Next run: %v", s.config.Schedule, s.nextRunLocked())

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.runCtx.Done():
		}
	}()

	return nil
}

func (s *ListingSyncScheduler) addJob(expr string, job func()) (cron.EntryID, error) {
	if err := ValidateSchedule(expr); err != nil {
		return 0, err
	}
	entryID, err := s.cron.AddFunc(expr, job)
	if err != nil {
		return 0, fmt.Errorf("failed to schedule sync job: %w", err)
	}
	return entryID, nil
}

// Stop cancels runs executing in this process, which finish as failed, and
// waits for every job to return.
func (s *ListingSyncScheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	wasRunning := s.isRunning
	s.isRunning = false
	if s.startupTimer != nil && s.startupTimer.Stop() {
		s.wg.Done()
	}
	s.mu.Unlock()

	s.cancelRun()
	if wasRunning {
		<-s.cron.Stop().Done()
	}
	s.wg.Wait()

	log.Printf("Listing sync scheduler: stopped")
}

// RunScheduled starts and executes one run of the given kind. A run already
// in progress is logged and skipped; the next tick tries again.
func (s *ListingSyncScheduler) RunScheduled(ctx context.Context, kind entities.SyncKind) (*entities.SyncRun, error) {
	run, err := s.runner.Begin(ctx, kind)
	if err != nil {
		var conflict *syncer.ConflictError
		if errors.As(err, &conflict) {
			log.Printf("Listing sync: skipped scheduled %s run, %v", kind, err)
		} else {
			log.Printf("Listing sync: failed to start scheduled %s run: %v", kind, err)
		}
		return nil, err
	}
	return s.runner.Execute(ctx, run)
}

// Trigger starts a run now and executes it in the background. It returns the
// in_progress run, or a *syncer.ConflictError when one is already running.
func (s *ListingSyncScheduler) Trigger(ctx context.Context, kind entities.SyncKind) (*entities.SyncRun, error) {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		return nil, ErrStopped
	}

	run, err := s.runner.Begin(ctx, kind)
	if err != nil {
		return nil, err
	}

	if s.dispatcher != nil {
		err := s.dispatcher.DispatchRun(ctx, run.RunID)
		if err == nil {
			log.Printf("Listing sync: manual %s run %s queued", kind, run.RunID)
			return run, nil
		}
		log.Printf("Listing sync: failed to queue run %s, executing in process: %v", run.RunID, err)
	}

	s.goExecute(run)
	return run, nil
}

// goExecute runs Execute on a copy of run, so the caller's value is not raced.
func (s *ListingSyncScheduler) goExecute(run *entities.SyncRun) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		// Execute still finalizes the run, as failed, under the cancelled context.
		_, _ = s.runner.Execute(s.runCtx, run)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	copied := *run
	copied.ErrorEntries = append([]entities.SyncRunError(nil), run.ErrorEntries...)
	go func() {
		defer s.wg.Done()
		_, _ = s.runner.Execute(s.runCtx, &copied)
	}()
}

func (s *ListingSyncScheduler) pruneHistory(ctx context.Context) {
	retention := s.config.HistoryRetention
	if s.dispatcher != nil {
		if err := s.dispatcher.DispatchCleanup(ctx, retention); err != nil {
			log.Printf("Listing sync: failed to queue ledger cleanup: %v", err)
		}
		return
	}
	if s.cleaner == nil {
		return
	}
	deleted, err := s.cleaner.DeleteFinishedBefore(ctx, time.Now().Add(-retention))
	if err != nil {
		log.Printf("Listing sync: ledger cleanup failed: %v", err)
		return
	}
	log.Printf("Listing sync: removed %d runs older than %s", deleted, retention)
}

// IsRunning returns whether the scheduler is active
func (s *ListingSyncScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// NextRun returns when the next incremental sync will occur
func (s *ListingSyncScheduler) NextRun() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextRunLocked()
}

func (s *ListingSyncScheduler) nextRunLocked() *time.Time {
	if !s.isRunning {
		return nil
	}

	for _, entry := range s.cron.Entries() {
		if entry.ID == s.entryID {
			t := entry.Next
			return &t
		}
	}
	return nil
}
