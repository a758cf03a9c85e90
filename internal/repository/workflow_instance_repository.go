package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/servicehub/backend/internal/models"
	"gorm.io/gorm"
)

type WorkflowInstanceRepository interface {
	// Instance CRUD
	Create(ctx context.Context, instance *models.WorkflowInstance, record *models.StepAuditRecord) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.WorkflowInstance, error)
	FindByTicketAndDevice(ctx context.Context, ticketID uuid.UUID, deviceSerial string) (*models.WorkflowInstance, error)
	ListByTicket(ctx context.Context, ticketID uuid.UUID) ([]models.WorkflowInstance, error)
	List(ctx context.Context, filter *models.InstanceFilter) ([]models.WorkflowInstance, int64, error)

	// Transition commit
	CommitTransition(ctx context.Context, instance *models.WorkflowInstance, step *models.StepState, records []models.StepAuditRecord) error
	UpdateStatus(ctx context.Context, instance *models.WorkflowInstance, record *models.StepAuditRecord) error

	// Audit trail
	ListAuditRecords(ctx context.Context, instanceID uuid.UUID) ([]models.StepAuditRecord, error)

	// Workflow number generation
	GenerateWorkflowNumber(ctx context.Context) (string, error)
}

type workflowInstanceRepository struct {
	db *gorm.DB
}

func NewWorkflowInstanceRepository(db *gorm.DB) WorkflowInstanceRepository {
	return &workflowInstanceRepository{db: db}
}

func (r *workflowInstanceRepository) Create(ctx context.Context, instance *models.WorkflowInstance, record *models.StepAuditRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(instance).Error; err != nil {
			return err
		}
		if record != nil {
			record.InstanceID = instance.ID
			if err := tx.Create(record).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *workflowInstanceRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.WorkflowInstance, error) {
	var instance models.WorkflowInstance
	err := r.db.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("step_number ASC")
		}).
		Preload("CreatedBy").
		First(&instance, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &instance, nil
}

func (r *workflowInstanceRepository) FindByTicketAndDevice(ctx context.Context, ticketID uuid.UUID, deviceSerial string) (*models.WorkflowInstance, error) {
	var instance models.WorkflowInstance
	err := r.db.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("step_number ASC")
		}).
		First(&instance, "ticket_id = ? AND device_serial_number = ?", ticketID, deviceSerial).Error
	if err != nil {
		return nil, err
	}
	return &instance, nil
}

func (r *workflowInstanceRepository) ListByTicket(ctx context.Context, ticketID uuid.UUID) ([]models.WorkflowInstance, error) {
	var instances []models.WorkflowInstance
	err := r.db.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("step_number ASC")
		}).
		Where("ticket_id = ?", ticketID).
		Order("created_at ASC").
		Find(&instances).Error
	return instances, err
}

func (r *workflowInstanceRepository) List(ctx context.Context, filter *models.InstanceFilter) ([]models.WorkflowInstance, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.WorkflowInstance{})

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.DeviceSerialNumber != "" {
		query = query.Where("device_serial_number = ?", filter.DeviceSerialNumber)
	}
	if filter.TicketID != nil {
		query = query.Where("ticket_id = ?", *filter.TicketID)
	}
	if filter.CompanyID != nil {
		query = query.
			Joins("JOIN tickets ON tickets.id = workflow_instances.ticket_id").
			Where("tickets.company_id = ?", *filter.CompanyID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 || limit > 100 {
		limit = 20
	}

	var instances []models.WorkflowInstance
	err := query.
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("step_number ASC")
		}).
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&instances).Error
	return instances, total, err
}

// CommitTransition persists one step mutation atomically: the step row, the
// derived instance columns and the audit records all land in one transaction.
func (r *workflowInstanceRepository) CommitTransition(ctx context.Context, instance *models.WorkflowInstance, step *models.StepState, records []models.StepAuditRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(step).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.WorkflowInstance{}).
			Where("id = ?", instance.ID).
			Updates(map[string]interface{}{
				"current_step": instance.CurrentStep,
				"status":       instance.Status,
			}).Error; err != nil {
			return err
		}
		for i := range records {
			if err := tx.Create(&records[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *workflowInstanceRepository) UpdateStatus(ctx context.Context, instance *models.WorkflowInstance, record *models.StepAuditRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.WorkflowInstance{}).
			Where("id = ?", instance.ID).
			Update("status", instance.Status).Error; err != nil {
			return err
		}
		return tx.Create(record).Error
	})
}

func (r *workflowInstanceRepository) ListAuditRecords(ctx context.Context, instanceID uuid.UUID) ([]models.StepAuditRecord, error) {
	var records []models.StepAuditRecord
	err := r.db.WithContext(ctx).
		Where("instance_id = ?", instanceID).
		Order("performed_at ASC, created_at ASC").
		Find(&records).Error
	return records, err
}

func (r *workflowInstanceRepository) GenerateWorkflowNumber(ctx context.Context) (string, error) {
	year := time.Now().Year()
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.WorkflowInstance{}).
		Where("workflow_number LIKE ?", fmt.Sprintf("SRV-%d-%%", year)).
		Count(&count).Error
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("SRV-%d-%06d", year, count+1), nil
}
