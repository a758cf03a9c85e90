package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/servicehub/backend/internal/models"
	"gorm.io/gorm"
)

type ReportRepository interface {
	Create(ctx context.Context, report *models.ServiceReport) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ServiceReport, error)
	ListByInstance(ctx context.Context, instanceID uuid.UUID) ([]models.ServiceReport, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type reportRepository struct {
	db *gorm.DB
}

func NewReportRepository(db *gorm.DB) ReportRepository {
	return &reportRepository{db: db}
}

func (r *reportRepository) Create(ctx context.Context, report *models.ServiceReport) error {
	return r.db.WithContext(ctx).Create(report).Error
}

func (r *reportRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.ServiceReport, error) {
	var report models.ServiceReport
	err := r.db.WithContext(ctx).
		Preload("GeneratedBy").
		First(&report, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func (r *reportRepository) ListByInstance(ctx context.Context, instanceID uuid.UUID) ([]models.ServiceReport, error) {
	var reports []models.ServiceReport
	err := r.db.WithContext(ctx).
		Preload("GeneratedBy").
		Where("instance_id = ?", instanceID).
		Order("created_at DESC").
		Find(&reports).Error
	return reports, err
}

func (r *reportRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.ServiceReport{}, "id = ?", id).Error
}
