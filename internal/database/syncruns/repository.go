// Package syncruns is the run ledger: the persisted history of listing sync runs.
//
// The ledger is the single-flight authority. CreateInProgressIfNoneRunning
// checks and inserts inside one immediate transaction, and the schema carries
// a partial unique index on in_progress rows, so two concurrent triggers can
// never both create a running entry.
//
// # Interface Implementation
//
//	var _ syncer.Ledger = (*Repository)(nil)
package syncruns

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mrlokans/mlssync/internal/entities"
)

// ErrRunInProgress is returned by CreateInProgressIfNoneRunning when another
// run holds the single-flight slot. Running carries that run when known.
var ErrRunInProgress = errors.New("sync run already in progress")

// InProgressError wraps ErrRunInProgress with the run that is currently active.
type InProgressError struct {
	Running *entities.SyncRun
}

func (e *InProgressError) Error() string {
	if e.Running == nil {
		return ErrRunInProgress.Error()
	}
	return ErrRunInProgress.Error() + " (run " + e.Running.RunID + ")"
}

func (e *InProgressError) Unwrap() error {
	return ErrRunInProgress
}

// Repository handles all sync run database operations.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRepository creates a new sync run repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// CreateInProgressIfNoneRunning atomically verifies that no run is
// in_progress and inserts a new in_progress run of the given kind.
func (r *Repository) CreateInProgressIfNoneRunning(ctx context.Context, kind entities.SyncKind, dryRun bool) (*entities.SyncRun, error) {
	run := &entities.SyncRun{
		RunID:     uuid.NewString(),
		Kind:      kind,
		Status:    entities.SyncStatusInProgress,
		DryRun:    dryRun,
		StartedAt: r.now(),
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var running entities.SyncRun
		err := tx.Where("status = ?", entities.SyncStatusInProgress).First(&running).Error
		if err == nil {
			return &InProgressError{Running: &running}
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return tx.Create(run).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// Lost the race at the index level.
		return nil, &InProgressError{}
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// Update persists the run's scalar fields and inserts any error entries that
// have not been stored yet. Entries are append-only.
func (r *Repository) Update(ctx context.Context, run *entities.SyncRun) error {
	var inserted []int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("ErrorEntries").Save(run).Error; err != nil {
			return err
		}
		for i := range run.ErrorEntries {
			entry := &run.ErrorEntries[i]
			if entry.ID != 0 {
				continue
			}
			entry.SyncRunID = run.ID
			if err := tx.Create(entry).Error; err != nil {
				return err
			}
			inserted = append(inserted, i)
		}
		return nil
	})
	if err != nil {
		// Rolled back: let a retry insert these entries again.
		for _, i := range inserted {
			run.ErrorEntries[i].ID = 0
		}
	}
	return err
}

// MostRecentCompleted returns the completed run with the latest end time, or
// nil when no run has completed yet.
func (r *Repository) MostRecentCompleted(ctx context.Context) (*entities.SyncRun, error) {
	var run entities.SyncRun
	err := r.db.WithContext(ctx).
		Where("status = ? AND ended_at IS NOT NULL", entities.SyncStatusCompleted).
		Order("ended_at DESC").
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// CountInProgress returns the number of runs currently in_progress (0 or 1).
func (r *Repository) CountInProgress(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entities.SyncRun{}).
		Where("status = ?", entities.SyncStatusInProgress).
		Count(&count).Error
	return count, err
}

// List returns runs newest first together with the total number of runs.
// Error entries are not loaded.
func (r *Repository) List(ctx context.Context, limit, offset int) ([]entities.SyncRun, int64, error) {
	var runs []entities.SyncRun
	var total int64

	query := r.db.WithContext(ctx).Model(&entities.SyncRun{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}

	err := query.Order("started_at DESC").Order("id DESC").Limit(limit).Offset(offset).Find(&runs).Error
	return runs, total, err
}

// GetByRunID loads one run with its error entries in insertion order.
func (r *Repository) GetByRunID(ctx context.Context, runID string) (*entities.SyncRun, error) {
	var run entities.SyncRun
	err := r.db.WithContext(ctx).
		Preload("ErrorEntries", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		Where("run_id = ?", runID).
		First(&run).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// FailInterrupted marks every in_progress run as failed. It is meant for
// process startup, when no run of this process can be active yet, so any
// in_progress row was orphaned by a crash or a kill.
func (r *Repository) FailInterrupted(ctx context.Context, message string) (int, error) {
	var orphaned []entities.SyncRun
	if err := r.db.WithContext(ctx).
		Where("status = ?", entities.SyncStatusInProgress).
		Find(&orphaned).Error; err != nil {
		return 0, err
	}

	for i := range orphaned {
		run := &orphaned[i]
		now := r.now()
		run.Status = entities.SyncStatusFailed
		run.EndedAt = &now
		run.ErrorEntries = append(run.ErrorEntries, entities.SyncRunError{
			Message:    message,
			OccurredAt: now,
		})
		if err := r.Update(ctx, run); err != nil {
			return i, err
		}
	}
	return len(orphaned), nil
}

// DeleteFinishedBefore removes finished runs (and their error entries) that
// ended before the cutoff. The most recent completed run is always kept so
// the incremental watermark survives.
func (r *Repository) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Model(&entities.SyncRun{}).
			Where("status <> ? AND ended_at < ?", entities.SyncStatusInProgress, cutoff)

		var latest entities.SyncRun
		err := tx.Where("status = ? AND ended_at IS NOT NULL", entities.SyncStatusCompleted).
			Order("ended_at DESC").First(&latest).Error
		if err == nil {
			query = query.Where("id <> ?", latest.ID)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var ids []uint
		if err := query.Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		if err := tx.Where("sync_run_id IN ?", ids).Delete(&entities.SyncRunError{}).Error; err != nil {
			return err
		}
		result := tx.Where("id IN ?", ids).Delete(&entities.SyncRun{})
		deleted = result.RowsAffected
		return result.Error
	})
	return deleted, err
}
