// Package syncer runs listing synchronization: it pulls changed listings from
// the MLS, reconciles them into the canonical store and records every run in
// the run ledger.
//
// A run is started with Begin, which claims the single-flight slot in the
// ledger, and carried out with Execute. Run does both. Execute always leaves
// the run completed or failed, whatever happens inside it.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mrlokans/mlssync/internal/database/syncruns"
	"github.com/mrlokans/mlssync/internal/entities"
	"github.com/mrlokans/mlssync/internal/events"
	"github.com/mrlokans/mlssync/internal/mapper"
	"github.com/mrlokans/mlssync/internal/metrics"
	"github.com/mrlokans/mlssync/internal/mls"
)

const (
	defaultProgressEvery = 100
	defaultHistoryLimit  = 10
)

// ListingSource returns upstream listings, optionally only those modified after since.
type ListingSource interface {
	FetchAll(ctx context.Context, since *time.Time) ([]mls.Listing, error)
}

// PropertyStore persists canonical properties.
type PropertyStore interface {
	UpsertByExternalID(ctx context.Context, property *entities.Property) (bool, error)
	MarkRemovedExcept(ctx context.Context, keep []string) ([]string, error)
}

// AgentStore persists listing agents.
type AgentStore interface {
	CreateIfAbsent(ctx context.Context, agent *entities.Agent) (*entities.Agent, bool, error)
}

// Ledger records sync runs and owns the single-flight guarantee.
type Ledger interface {
	CreateInProgressIfNoneRunning(ctx context.Context, kind entities.SyncKind, dryRun bool) (*entities.SyncRun, error)
	Update(ctx context.Context, run *entities.SyncRun) error
	MostRecentCompleted(ctx context.Context) (*entities.SyncRun, error)
	CountInProgress(ctx context.Context) (int64, error)
	List(ctx context.Context, limit, offset int) ([]entities.SyncRun, int64, error)
}

// Status summarizes the ledger for operators.
type Status struct {
	// LastRun is the newest run whatever its status.
	LastRun *entities.SyncRun `json:"last_run"`
	// LastCompleted is the run the next incremental sync starts from.
	LastCompleted *entities.SyncRun  `json:"last_completed"`
	History       []entities.SyncRun `json:"history"`
	IsRunning     bool               `json:"is_running"`
}

// Orchestrator executes sync runs.
type Orchestrator struct {
	source     ListingSource
	properties PropertyStore
	agents     AgentStore
	ledger     Ledger
	publisher  events.Publisher

	dryRun        bool
	runTimeout    time.Duration
	progressEvery int
	now           func() time.Time
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithPublisher sets where listing change events go after each run
func WithPublisher(p events.Publisher) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.publisher = p
		}
	}
}

// WithDryRun marks runs as served from fixtures instead of the live MLS
func WithDryRun(dryRun bool) Option {
	return func(o *Orchestrator) {
		o.dryRun = dryRun
	}
}

// WithRunTimeout bounds a single run; zero means no bound beyond the caller's context
func WithRunTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.runTimeout = d
	}
}

// WithProgressEvery sets how many records are processed between ledger saves
func WithProgressEvery(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.progressEvery = n
		}
	}
}

// WithClock replaces the wall clock, for tests
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

func NewOrchestrator(source ListingSource, properties PropertyStore, agents AgentStore, ledger Ledger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		source:        source,
		properties:    properties,
		agents:        agents,
		ledger:        ledger,
		publisher:     events.NopPublisher{},
		progressEvery: defaultProgressEvery,
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// DryRun reports whether runs are served from fixtures.
func (o *Orchestrator) DryRun() bool {
	return o.dryRun
}

// Run claims the single-flight slot and executes a run of the given kind.
func (o *Orchestrator) Run(ctx context.Context, kind entities.SyncKind) (*entities.SyncRun, error) {
	run, err := o.Begin(ctx, kind)
	if err != nil {
		return nil, err
	}
	return o.Execute(ctx, run)
}

// Begin creates the in_progress ledger entry for a new run. It returns a
// *ConflictError when another run is in progress.
func (o *Orchestrator) Begin(ctx context.Context, kind entities.SyncKind) (*entities.SyncRun, error) {
	run, err := o.ledger.CreateInProgressIfNoneRunning(ctx, kind, o.dryRun)
	if err != nil {
		var inProgress *syncruns.InProgressError
		if errors.As(err, &inProgress) {
			metrics.SyncConflictsTotal.Inc()
			conflict := &ConflictError{}
			if inProgress.Running != nil {
				conflict.RunningRunID = inProgress.Running.RunID
			}
			return nil, conflict
		}
		return nil, &LedgerPersistenceError{Op: "create run", Err: err}
	}

	if o.dryRun {
		log.Printf("Listing sync: DRY RUN %s run %s started, listings come from fixtures", kind, run.RunID)
	} else {
		log.Printf("Listing sync: %s run %s started", kind, run.RunID)
	}
	return run, nil
}

// Execute carries out a run created by Begin and finalizes it as completed
// or failed. The returned run reflects the final ledger state.
func (o *Orchestrator) Execute(ctx context.Context, run *entities.SyncRun) (*entities.SyncRun, error) {
	metrics.SyncInProgress.Inc()
	defer metrics.SyncInProgress.Dec()

	runCtx := ctx
	if o.runTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, o.runTimeout)
		defer cancel()
	}

	changes := &changeLog{runID: run.RunID}
	runErr := o.executeSafely(runCtx, run, changes)

	// Finalization must happen even when the run was cancelled or timed out.
	finalCtx := context.WithoutCancel(ctx)
	finalErr := o.finalize(finalCtx, run, runErr)

	o.publish(finalCtx, run, changes)

	switch {
	case runErr != nil:
		return run, runErr
	case finalErr != nil:
		return run, finalErr
	}
	return run, nil
}

// Status returns the newest run, the most recent completed run, the latest
// history entries and whether any run is in progress.
func (o *Orchestrator) Status(ctx context.Context, limit int) (*Status, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	completed, err := o.ledger.MostRecentCompleted(ctx)
	if err != nil {
		return nil, &LedgerPersistenceError{Op: "read last completed run", Err: err}
	}
	history, _, err := o.ledger.List(ctx, limit, 0)
	if err != nil {
		return nil, &LedgerPersistenceError{Op: "list runs", Err: err}
	}
	running, err := o.ledger.CountInProgress(ctx)
	if err != nil {
		return nil, &LedgerPersistenceError{Op: "count running", Err: err}
	}

	status := &Status{LastCompleted: completed, History: history, IsRunning: running > 0}
	if len(history) > 0 {
		last := history[0]
		status.LastRun = &last
	} else {
		status.History = []entities.SyncRun{}
	}
	return status, nil
}

func (o *Orchestrator) executeSafely(ctx context.Context, run *entities.SyncRun, changes *changeLog) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Listing sync: run %s panicked: %v", run.RunID, r)
			err = fmt.Errorf("sync run panicked: %v", r)
		}
	}()
	return o.execute(ctx, run, changes)
}

func (o *Orchestrator) execute(ctx context.Context, run *entities.SyncRun, changes *changeLog) error {
	var since *time.Time
	if run.Kind == entities.SyncKindIncremental {
		last, err := o.ledger.MostRecentCompleted(ctx)
		if err != nil {
			return &LedgerPersistenceError{Op: "read watermark", Err: err}
		}
		if last != nil {
			since = last.Watermark()
		}
		if since == nil {
			log.Printf("Listing sync: no completed run yet, run %s fetches everything", run.RunID)
		}
	}

	listings, err := o.source.FetchAll(ctx, since)
	if err != nil {
		return fmt.Errorf("failed to fetch listings: %w", err)
	}
	run.Fetched = len(listings)
	log.Printf("Listing sync: run %s fetched %d listings", run.RunID, len(listings))

	seen := make([]string, 0, len(listings))
	for i := range listings {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("sync run interrupted after %d of %d records: %w", i, len(listings), err)
		}

		listing := listings[i]
		externalID := listing.ExternalID()
		if externalID != "" {
			// Failed records still exist upstream and must not be reconciled away.
			seen = append(seen, externalID)
		}

		inserted, err := o.processRecord(ctx, listing)
		if err != nil {
			run.Errors++
			run.ErrorEntries = append(run.ErrorEntries, entities.SyncRunError{
				ExternalID: externalID,
				Message:    err.Error(),
				OccurredAt: o.now(),
			})
			metrics.RecordRecord("failed")
			log.Printf("Listing sync: run %s record %q failed: %v", run.RunID, externalID, err)
		} else if inserted {
			run.Created++
			changes.add(events.ListingCreated, externalID, o.now())
			metrics.RecordRecord("created")
		} else {
			run.Updated++
			changes.add(events.ListingUpdated, externalID, o.now())
			metrics.RecordRecord("updated")
		}

		if (i+1)%o.progressEvery == 0 {
			if err := o.ledger.Update(ctx, run); err != nil {
				return &LedgerPersistenceError{Op: "save progress", Err: err}
			}
		}
	}

	if run.Kind == entities.SyncKindFull {
		if len(listings) == 0 {
			log.Printf("Listing sync: WARNING full run %s fetched no listings, every active listing will be marked removed", run.RunID)
		}
		removed, err := o.properties.MarkRemovedExcept(ctx, seen)
		if err != nil {
			return fmt.Errorf("failed to mark removed listings: %w", err)
		}
		run.Removed = len(removed)
		for _, id := range removed {
			changes.add(events.ListingRemoved, id, o.now())
		}
	}

	return nil
}

// processRecord maps and stores one listing, reporting whether it was new.
func (o *Orchestrator) processRecord(ctx context.Context, listing mls.Listing) (bool, error) {
	canonical, err := mapper.Map(listing)
	if err != nil {
		return false, err
	}

	property := canonical.Property
	if canonical.Agent != nil {
		agent, _, err := o.agents.CreateIfAbsent(ctx, canonical.Agent)
		if err != nil {
			return false, fmt.Errorf("failed to store agent %s: %w", canonical.Agent.ExternalAgentID, err)
		}
		property.AgentID = &agent.ID
	}

	inserted, err := o.properties.UpsertByExternalID(ctx, property)
	if err != nil {
		return false, fmt.Errorf("failed to store listing: %w", err)
	}
	return inserted, nil
}

// finalize moves the run to its terminal status and persists it. A failed
// save is retried once.
func (o *Orchestrator) finalize(ctx context.Context, run *entities.SyncRun, runErr error) error {
	endedAt := o.now()
	run.EndedAt = &endedAt

	if runErr != nil {
		run.Status = entities.SyncStatusFailed
		run.ErrorEntries = append(run.ErrorEntries, entities.SyncRunError{
			Message:    runErr.Error(),
			OccurredAt: endedAt,
		})
	} else {
		run.Status = entities.SyncStatusCompleted
	}

	metrics.RecordSyncRun(string(run.Kind), string(run.Status), run.Duration().Seconds())

	err := o.ledger.Update(ctx, run)
	if err != nil {
		log.Printf("Listing sync: failed to save final state of run %s, retrying: %v", run.RunID, err)
		err = o.ledger.Update(ctx, run)
	}
	if err != nil {
		log.Printf("Listing sync: run %s could not be finalized: %v", run.RunID, err)
		return &LedgerPersistenceError{Op: "finalize run", Err: err}
	}

	if runErr != nil {
		log.Printf("Listing sync: run %s failed after %s: %v", run.RunID, run.Duration().Round(time.Millisecond), runErr)
	} else {
		log.Printf("Listing sync: run %s completed in %s (fetched %d, created %d, updated %d, removed %d, errors %d)",
			run.RunID, run.Duration().Round(time.Millisecond), run.Fetched, run.Created, run.Updated, run.Removed, run.Errors)
	}
	return nil
}

func (o *Orchestrator) publish(ctx context.Context, run *entities.SyncRun, changes *changeLog) {
	if run.DryRun || len(changes.events) == 0 {
		return
	}
	if err := o.publisher.Publish(ctx, changes.events); err != nil {
		log.Printf("Listing sync: failed to publish %d change events for run %s: %v", len(changes.events), run.RunID, err)
	}
}

type changeLog struct {
	runID  string
	events []events.ListingEvent
}

func (c *changeLog) add(t events.ChangeType, externalID string, at time.Time) {
	c.events = append(c.events, events.ListingEvent{
		Type:       t,
		ExternalID: externalID,
		RunID:      c.runID,
		OccurredAt: at,
	})
}
