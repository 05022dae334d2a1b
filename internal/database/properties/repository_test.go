package properties

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

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
	dbPath := filepath.Join(t.TempDir(), "properties.db")

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

func newProperty(externalID string, price float64) *entities.Property {
	return &entities.Property{
		ExternalID:   externalID,
		Title:        "3 Bed 2 Bath Residential in Seattle",
		Price:        price,
		PropertyType: entities.PropertyTypeHouse,
		Status:       entities.PropertyStatusActive,
		Address:      entities.Address{Line1: "1 Main St", City: "Seattle", State: "WA"},
		Images:       []entities.PropertyImage{{URL: "https://img.example.com/1.jpg"}},
		Features:     []string{"Garage"},
		Raw:          []byte(fmt.Sprintf(`{"ListingId":%q}`, externalID)),
	}
}

func TestRepository_UpsertByExternalID(t *testing.T) {
	repo, _ := setupTestDB(t)
	ctx := context.Background()

	inserted, err := repo.UpsertByExternalID(ctx, newProperty("L-1", 500000))
	require.NoError(t, err)
	assert.True(t, inserted)

	stored, err := repo.FindByExternalID(ctx, "L-1")
	require.NoError(t, err)
	assert.Equal(t, 500000.0, stored.Price)
	assert.Equal(t, []string{"Garage"}, stored.Features)
	assert.Equal(t, `{"ListingId":"L-1"}`, string(stored.Raw))

	update := newProperty("L-1", 475000)
	inserted, err = repo.UpsertByExternalID(ctx, update)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, stored.ID, update.ID)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	reloaded, err := repo.FindByExternalID(ctx, "L-1")
	require.NoError(t, err)
	assert.Equal(t, 475000.0, reloaded.Price)
	assert.True(t, stored.CreatedAt.Equal(reloaded.CreatedAt))
}

func TestRepository_UpsertKeepsLocalFields(t *testing.T) {
	repo, db := setupTestDB(t)
	ctx := context.Background()

	_, err := repo.UpsertByExternalID(ctx, newProperty("L-1", 500000))
	require.NoError(t, err)
	require.NoError(t, db.Model(&entities.Property{}).Where("external_id = ?", "L-1").
		Updates(map[string]any{"views": 42, "featured": true}).Error)

	_, err = repo.UpsertByExternalID(ctx, newProperty("L-1", 510000))
	require.NoError(t, err)

	stored, err := repo.FindByExternalID(ctx, "L-1")
	require.NoError(t, err)
	assert.Equal(t, 42, stored.Views)
	assert.True(t, stored.Featured)
	assert.Equal(t, 510000.0, stored.Price)
}

func TestRepository_MarkRemovedExcept(t *testing.T) {
	repo, db := setupTestDB(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := repo.UpsertByExternalID(ctx, newProperty(fmt.Sprintf("L-%d", i), 100000+float64(i)))
		require.NoError(t, err)
	}
	sold := newProperty("L-sold", 1)
	sold.Status = entities.PropertyStatusSold
	_, err := repo.UpsertByExternalID(ctx, sold)
	require.NoError(t, err)

	removed, err := repo.MarkRemovedExcept(ctx, []string{"L-0", "L-2", "L-4", "not-stored"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"L-1", "L-3"}, removed)

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), counts[entities.PropertyStatusActive])
	assert.Equal(t, int64(2), counts[entities.PropertyStatusRemoved])
	assert.Equal(t, int64(1), counts[entities.PropertyStatusSold])

	// Removal only touches status.
	var gone entities.Property
	require.NoError(t, db.Where("external_id = ?", "L-1").First(&gone).Error)
	assert.Equal(t, 100001.0, gone.Price)
	assert.Equal(t, "1 Main St", gone.Address.Line1)

	removed, err = repo.MarkRemovedExcept(ctx, []string{"L-0", "L-2", "L-4"})
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestRepository_MarkRemovedExceptBatches(t *testing.T) {
	repo, _ := setupTestDB(t)
	ctx := context.Background()

	total := markRemovedBatch + 20
	for i := 0; i < total; i++ {
		_, err := repo.UpsertByExternalID(ctx, newProperty(fmt.Sprintf("L-%04d", i), 1000))
		require.NoError(t, err)
	}

	removed, err := repo.MarkRemovedExcept(ctx, []string{"L-0000"})
	require.NoError(t, err)
	assert.Len(t, removed, total-1)

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[entities.PropertyStatusActive])
	assert.Equal(t, int64(total-1), counts[entities.PropertyStatusRemoved])
}
