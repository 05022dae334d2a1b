package syncruns

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/mlssync/internal/database"
	"github.com/mrlokans/mlssync/internal/entities"
)

func setupTestDB(t *testing.T) (*Repository, *gorm.DB) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "sync_runs.db")

	db, err := gorm.Open(sqlite.Open(database.DSN(dbPath)), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})

	return NewRepository(db), db
}

func finish(t *testing.T, repo *Repository, run *entities.SyncRun, status entities.SyncStatus, endedAt time.Time) {
	t.Helper()
	run.Status = status
	run.EndedAt = &endedAt
	require.NoError(t, repo.Update(context.Background(), run))
}

func TestRepository_CreateInProgressIfNoneRunning(t *testing.T) {
	repo, _ := setupTestDB(t)
	ctx := context.Background()

	run, err := repo.CreateInProgressIfNoneRunning(ctx, entities.SyncKindFull, false)
	require.NoError(t, err)
	assert.NotZero(t, run.ID)
	assert.Len(t, run.RunID, 36)
	assert.Equal(t, entities.SyncKindFull, run.Kind)
	assert.Equal(t, entities.SyncStatusInProgress, run.Status)
	assert.Nil(t, run.EndedAt)

	_, err = repo.CreateInProgressIfNoneRunning(ctx, entities.SyncKindIncremental, false)
	var inProgress *InProgressError
	require.True(t, errors.As(err, &inProgress))
	assert.ErrorIs(t, err, ErrRunInProgress)
	require.NotNil(t, inProgress.Running)
	assert.Equal(t, run.RunID, inProgress.Running.RunID)

	finish(t, repo, run, entities.SyncStatusCompleted, time.Now())

	next, err := repo.CreateInProgressIfNoneRunning(ctx, entities.SyncKindIncremental, true)
	require.NoError(t, err)
	assert.NotEqual(t, run.RunID, next.RunID)
	assert.True(t, next.DryRun)
}

func TestRepository_CreateInProgressIsSingleFlightUnderConcurrency(t *testing.T) {
	repo, _ := setupTestDB(t)
	ctx := context.Background()

	const callers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	var created, conflicts int
	var other []error

	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := repo.CreateInProgressIfNoneRunning(ctx, entities.SyncKindIncremental, false)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, ErrRunInProgress):
				conflicts++
			default:
				other = append(other, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Empty(t, other)
	assert.Equal(t, 1, created)
	assert.Equal(t, callers-1, conflicts)

	count, err := repo.CountInProgress(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRepository_PartialIndexRejectsSecondInProgressRow(t *testing.T) {
	_, db := setupTestDB(t)

	require.NoError(t, db.Create(&entities.SyncRun{RunID: "a", Kind: entities.SyncKindFull, Status: entities.SyncStatusInProgress}).Error)
	err := db.Create(&entities.SyncRun{RunID: "b", Kind: entities.SyncKindFull, Status: entities.SyncStatusInProgress}).Error
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	// Finished rows are not constrained.
	require.NoError(t, db.Create(&entities.SyncRun{RunID: "c", Kind: entities.SyncKindFull, Status: entities.SyncStatusCompleted}).Error)
	require.NoError(t, db.Create(&entities.SyncRun{RunID: "d", Kind: entities.SyncKindFull, Status: entities.SyncStatusCompleted}).Error)
}

func TestRepository_UpdateAppendsErrorEntries(t *testing.T) {
	repo, _ := setupTestDB(t)
	ctx := context.Background()

	run, err := repo.CreateInProgressIfNoneRunning(ctx, entities.SyncKindFull, false)
	require.NoError(t, err)

	run.Fetched = 3
	run.Errors = 1
	run.ErrorEntries = append(run.ErrorEntries, entities.SyncRunError{ExternalID: "L-1", Message: "no price", OccurredAt: time.Now()})
	require.NoError(t, repo.Update(ctx, run))

	run.Errors = 2
	run.ErrorEntries = append(run.ErrorEntries, entities.SyncRunError{ExternalID: "L-2", Message: "bad agent", OccurredAt: time.Now()})
	require.NoError(t, repo.Update(ctx, run))

	loaded, err := repo.GetByRunID(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Fetched)
	assert.Equal(t, 2, loaded.Errors)
	require.Len(t, loaded.ErrorEntries, 2)
	assert.Equal(t, "L-1", loaded.ErrorEntries[0].ExternalID)
	assert.Equal(t, "L-2", loaded.ErrorEntries[1].ExternalID)
}

func TestRepository_MostRecentCompleted(t *testing.T) {
	repo, _ := setupTestDB(t)
	ctx := context.Background()

	last, err := repo.MostRecentCompleted(ctx)
	require.NoError(t, err)
	assert.Nil(t, last)

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	first, err := repo.CreateInProgressIfNoneRunning(ctx, entities.SyncKindFull, false)
	require.NoError(t, err)
	finish(t, repo, first, entities.SyncStatusCompleted, base)

	second, err := repo.CreateInProgressIfNoneRunning(ctx, entities.SyncKindIncremental, false)
	require.NoError(t, err)
	finish(t, repo, second, entities.SyncStatusCompleted, base.Add(time.Hour))

	failed, err := repo.CreateInProgressIfNoneRunning(ctx, entities.SyncKindIncremental, false)
	require.NoError(t, err)
	finish(t, repo, failed, entities.SyncStatusFailed, base.Add(2*time.Hour))

	last, err = repo.MostRecentCompleted(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, second.RunID, last.RunID)
	require.NotNil(t, last.Watermark())
	assert.True(t, base.Add(time.Hour).Equal(*last.Watermark()))
}

func TestRepository_ListAndGet(t *testing.T) {
	repo, _ := setupTestDB(t)
	ctx := context.Background()

	var runIDs []string
	for i := 0; i < 3; i++ {
		run, err := repo.CreateInProgressIfNoneRunning(ctx, entities.SyncKindIncremental, false)
		require.NoError(t, err)
		finish(t, repo, run, entities.SyncStatusCompleted, time.Now())
		runIDs = append(runIDs, run.RunID)
	}

	runs, total, err := repo.List(ctx, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, runs, 2)
	assert.Equal(t, runIDs[2], runs[0].RunID)
	assert.Equal(t, runIDs[1], runs[1].RunID)

	runs, _, err = repo.List(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, runIDs[0], runs[0].RunID)

	_, err = repo.GetByRunID(ctx, "does-not-exist")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepository_FailInterrupted(t *testing.T) {
	repo, _ := setupTestDB(t)
	ctx := context.Background()

	run, err := repo.CreateInProgressIfNoneRunning(ctx, entities.SyncKindFull, false)
	require.NoError(t, err)

	n, err := repo.FailInterrupted(ctx, "interrupted by restart")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	loaded, err := repo.GetByRunID(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, entities.SyncStatusFailed, loaded.Status)
	assert.NotNil(t, loaded.EndedAt)
	require.Len(t, loaded.ErrorEntries, 1)
	assert.Equal(t, "interrupted by restart", loaded.ErrorEntries[0].Message)

	count, err := repo.CountInProgress(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	n, err = repo.FailInterrupted(ctx, "again")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRepository_DeleteFinishedBefore(t *testing.T) {
	repo, db := setupTestDB(t)
	ctx := context.Background()
	now := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)

	oldCompleted, err := repo.CreateInProgressIfNoneRunning(ctx, entities.SyncKindFull, false)
	require.NoError(t, err)
	finish(t, repo, oldCompleted, entities.SyncStatusCompleted, now.AddDate(0, 0, -40))

	oldFailed, err := repo.CreateInProgressIfNoneRunning(ctx, entities.SyncKindIncremental, false)
	require.NoError(t, err)
	oldFailed.ErrorEntries = []entities.SyncRunError{{Message: "boom", OccurredAt: now}}
	finish(t, repo, oldFailed, entities.SyncStatusFailed, now.AddDate(0, 0, -35))

	recent, err := repo.CreateInProgressIfNoneRunning(ctx, entities.SyncKindIncremental, false)
	require.NoError(t, err)
	finish(t, repo, recent, entities.SyncStatusFailed, now.AddDate(0, 0, -1))

	deleted, err := repo.DeleteFinishedBefore(ctx, now.AddDate(0, 0, -30))
	require.NoError(t, err)
	// The old completed run is the latest completed one and survives.
	assert.Equal(t, int64(1), deleted)

	_, err = repo.GetByRunID(ctx, oldFailed.RunID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	_, err = repo.GetByRunID(ctx, oldCompleted.RunID)
	assert.NoError(t, err)

	var orphanEntries int64
	require.NoError(t, db.Model(&entities.SyncRunError{}).Where("sync_run_id = ?", oldFailed.ID).Count(&orphanEntries).Error)
	assert.Zero(t, orphanEntries)
}
