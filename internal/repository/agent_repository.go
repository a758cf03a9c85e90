package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/servicehub/backend/internal/models"
	"gorm.io/gorm"
)

type AgentRepository interface {
	Create(ctx context.Context, agent *models.Agent) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Agent, error)
	FindByEmail(ctx context.Context, email string) (*models.Agent, error)
	FindByUsername(ctx context.Context, username string) (*models.Agent, error)
	List(ctx context.Context, page, limit int) ([]models.Agent, int64, error)
	Update(ctx context.Context, agent *models.Agent) error
	UpdateLastLogin(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type agentRepository struct {
	db *gorm.DB
}

func NewAgentRepository(db *gorm.DB) AgentRepository {
	return &agentRepository{db: db}
}

func (r *agentRepository) Create(ctx context.Context, agent *models.Agent) error {
	return r.db.WithContext(ctx).Create(agent).Error
}

func (r *agentRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Agent, error) {
	var agent models.Agent
	err := r.db.WithContext(ctx).First(&agent, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &agent, nil
}

func (r *agentRepository) FindByEmail(ctx context.Context, email string) (*models.Agent, error) {
	var agent models.Agent
	err := r.db.WithContext(ctx).First(&agent, "email = ?", email).Error
	if err != nil {
		return nil, err
	}
	return &agent, nil
}

func (r *agentRepository) FindByUsername(ctx context.Context, username string) (*models.Agent, error) {
	var agent models.Agent
	err := r.db.WithContext(ctx).First(&agent, "username = ?", username).Error
	if err != nil {
		return nil, err
	}
	return &agent, nil
}

func (r *agentRepository) List(ctx context.Context, page, limit int) ([]models.Agent, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Agent{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var agents []models.Agent
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&agents).Error
	return agents, total, err
}

func (r *agentRepository) Update(ctx context.Context, agent *models.Agent) error {
	return r.db.WithContext(ctx).Save(agent).Error
}

func (r *agentRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&models.Agent{}).
		Where("id = ?", id).
		Update("last_login_at", now).Error
}

func (r *agentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.Agent{}, "id = ?", id).Error
}
