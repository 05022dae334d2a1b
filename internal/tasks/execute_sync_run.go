package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/mlssync/internal/entities"
)

// RunLoader looks up a sync run in the ledger.
type RunLoader interface {
	GetByRunID(ctx context.Context, runID string) (*entities.SyncRun, error)
}

// RunExecutor carries out a sync run that has already been created.
type RunExecutor interface {
	Execute(ctx context.Context, run *entities.SyncRun) (*entities.SyncRun, error)
}

// ExecuteSyncRunTask executes a manually triggered sync run in the background.
type ExecuteSyncRunTask struct {
	RunID string `json:"run_id"`
}

// Config returns the queue configuration for sync run execution tasks.
// A run is attempted once: its outcome, failed or not, is in the ledger.
func (t ExecuteSyncRunTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "execute_sync_run",
		MaxAttempts: 1,
		Timeout:     60 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// ExecuteSyncRunProcessor creates a processor function for ExecuteSyncRunTask.
func ExecuteSyncRunProcessor(loader RunLoader, executor RunExecutor) backlite.QueueProcessor[ExecuteSyncRunTask] {
	return func(ctx context.Context, task ExecuteSyncRunTask) error {
		if loader == nil || executor == nil {
			return fmt.Errorf("sync run executor not configured")
		}

		run, err := loader.GetByRunID(ctx, task.RunID)
		if err != nil {
			return fmt.Errorf("load sync run %s: %w", task.RunID, err)
		}

		// A restart in between marks the run failed; there is nothing left to do.
		if run.Status != entities.SyncStatusInProgress {
			log.Printf("[TASK] Sync run %s is already %s, skipping", run.RunID, run.Status)
			return nil
		}

		run, err = executor.Execute(ctx, run)
		if err != nil {
			log.Printf("[TASK] Sync run %s finished as %s: %v", run.RunID, run.Status, err)
			return nil
		}

		log.Printf("[TASK] Sync run %s completed", run.RunID)
		return nil
	}
}

// ExecuteSyncRunQueue creates a backlite queue for sync run execution tasks.
// Runs it executes are cancelled by Stop.
func (c *Client) ExecuteSyncRunQueue(loader RunLoader, executor RunExecutor) backlite.Queue {
	return backlite.NewQueue(tracked(c, ExecuteSyncRunProcessor(loader, executor)))
}
