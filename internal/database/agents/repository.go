// Package agents provides database operations for listing agents.
package agents

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mrlokans/mlssync/internal/entities"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindByExternalAgentID returns the agent with the given MLS agent id, or
// gorm.ErrRecordNotFound.
func (r *Repository) FindByExternalAgentID(ctx context.Context, externalAgentID string) (*entities.Agent, error) {
	var agent entities.Agent
	err := r.db.WithContext(ctx).Where("external_agent_id = ?", externalAgentID).First(&agent).Error
	if err != nil {
		return nil, err
	}
	return &agent, nil
}

// CreateIfAbsent stores the agent unless one with the same external agent id
// already exists. An existing agent is returned unchanged; created reports
// whether a row was inserted.
func (r *Repository) CreateIfAbsent(ctx context.Context, agent *entities.Agent) (*entities.Agent, bool, error) {
	if agent.ExternalAgentID == "" {
		return nil, false, errors.New("agent has no external agent id")
	}

	db := r.db.WithContext(ctx)
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_agent_id"}},
		DoNothing: true,
	}).Create(agent)
	if result.Error != nil {
		return nil, false, result.Error
	}
	if result.RowsAffected == 1 {
		return agent, true, nil
	}

	existing, err := r.FindByExternalAgentID(ctx, agent.ExternalAgentID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// Count returns the number of active agents.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entities.Agent{}).Where("active = ?", true).Count(&count).Error
	return count, err
}
