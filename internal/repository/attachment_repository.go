package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/servicehub/backend/internal/models"
	"gorm.io/gorm"
)

type AttachmentRepository interface {
	Create(ctx context.Context, attachment *models.StepAttachment) error
	// CreateWithStep persists the attachment row and the updated step field
	// values in one transaction.
	CreateWithStep(ctx context.Context, attachment *models.StepAttachment, step *models.StepState) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.StepAttachment, error)
	ListByInstance(ctx context.Context, instanceID uuid.UUID) ([]models.StepAttachment, error)
	ListByStep(ctx context.Context, instanceID uuid.UUID, stepNumber int) ([]models.StepAttachment, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// DeleteWithStep removes the attachment row and persists the updated step
	// field values in one transaction.
	DeleteWithStep(ctx context.Context, id uuid.UUID, step *models.StepState) error
}

type attachmentRepository struct {
	db *gorm.DB
}

func NewAttachmentRepository(db *gorm.DB) AttachmentRepository {
	return &attachmentRepository{db: db}
}

func (r *attachmentRepository) Create(ctx context.Context, attachment *models.StepAttachment) error {
	return r.db.WithContext(ctx).Create(attachment).Error
}

func (r *attachmentRepository) CreateWithStep(ctx context.Context, attachment *models.StepAttachment, step *models.StepState) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(attachment).Error; err != nil {
			return err
		}
		return tx.Save(step).Error
	})
}

func (r *attachmentRepository) DeleteWithStep(ctx context.Context, id uuid.UUID, step *models.StepState) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.StepAttachment{}, "id = ?", id).Error; err != nil {
			return err
		}
		return tx.Save(step).Error
	})
}

func (r *attachmentRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.StepAttachment, error) {
	var attachment models.StepAttachment
	err := r.db.WithContext(ctx).
		Preload("UploadedBy").
		First(&attachment, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &attachment, nil
}

func (r *attachmentRepository) ListByInstance(ctx context.Context, instanceID uuid.UUID) ([]models.StepAttachment, error) {
	var attachments []models.StepAttachment
	err := r.db.WithContext(ctx).
		Preload("UploadedBy").
		Where("instance_id = ?", instanceID).
		Order("created_at ASC").
		Find(&attachments).Error
	return attachments, err
}

func (r *attachmentRepository) ListByStep(ctx context.Context, instanceID uuid.UUID, stepNumber int) ([]models.StepAttachment, error) {
	var attachments []models.StepAttachment
	err := r.db.WithContext(ctx).
		Preload("UploadedBy").
		Where("instance_id = ? AND step_number = ?", instanceID, stepNumber).
		Order("created_at ASC").
		Find(&attachments).Error
	return attachments, err
}

func (r *attachmentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.StepAttachment{}, "id = ?", id).Error
}
