// Package properties provides database operations for synced listings.
//
// # Interface Implementation
//
//	var _ syncer.PropertyStore = (*Repository)(nil)
package properties

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/mrlokans/mlssync/internal/entities"
)

// markRemovedBatch bounds the size of the IN list sent to SQLite.
const markRemovedBatch = 500

// Repository handles all property database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new property repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindByExternalID returns the property with the given MLS listing id, or
// gorm.ErrRecordNotFound.
func (r *Repository) FindByExternalID(ctx context.Context, externalID string) (*entities.Property, error) {
	var property entities.Property
	err := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&property).Error
	if err != nil {
		return nil, err
	}
	return &property, nil
}

// UpsertByExternalID inserts the property or overwrites the synced fields of
// the existing row with the same external id. It reports whether a new row
// was inserted. Views, Featured and CreatedAt of an existing row are kept.
func (r *Repository) UpsertByExternalID(ctx context.Context, property *entities.Property) (bool, error) {
	inserted := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing entities.Property
		err := tx.Where("external_id = ?", property.ExternalID).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			property.ID = 0
			if err := tx.Omit("Agent").Create(property).Error; err != nil {
				return err
			}
			inserted = true
			return nil
		}
		if err != nil {
			return err
		}

		property.ID = existing.ID
		property.CreatedAt = existing.CreatedAt
		property.Views = existing.Views
		property.Featured = existing.Featured
		return tx.Omit("Agent").Save(property).Error
	})

	return inserted, err
}

// MarkRemovedExcept sets status Removed on every Active property whose
// external id is not in keep, leaving all other columns untouched. It returns
// the external ids that were changed.
func (r *Repository) MarkRemovedExcept(ctx context.Context, keep []string) ([]string, error) {
	keepSet := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		keepSet[id] = struct{}{}
	}

	var removed []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var active []string
		if err := tx.Model(&entities.Property{}).
			Where("status = ?", entities.PropertyStatusActive).
			Pluck("external_id", &active).Error; err != nil {
			return err
		}

		for _, id := range active {
			if _, ok := keepSet[id]; !ok {
				removed = append(removed, id)
			}
		}

		for start := 0; start < len(removed); start += markRemovedBatch {
			end := min(start+markRemovedBatch, len(removed))
			if err := tx.Model(&entities.Property{}).
				Where("status = ? AND external_id IN ?", entities.PropertyStatusActive, removed[start:end]).
				Update("status", entities.PropertyStatusRemoved).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// Count returns the total number of stored properties.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entities.Property{}).Count(&count).Error
	return count, err
}

// CountByStatus returns the number of properties per status.
func (r *Repository) CountByStatus(ctx context.Context) (map[entities.PropertyStatus]int64, error) {
	var rows []struct {
		Status entities.PropertyStatus
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&entities.Property{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[entities.PropertyStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
