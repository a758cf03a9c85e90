package services

import (
	"context"
	"fmt"
	"io"
	"log"
	"mime/multipart"

	"github.com/google/uuid"
	"github.com/servicehub/backend/internal/catalog"
	"github.com/servicehub/backend/internal/models"
	"github.com/servicehub/backend/internal/repository"
	"github.com/servicehub/backend/internal/storage"
	"gorm.io/gorm"
)

type AttachmentService interface {
	Attach(ctx context.Context, instanceID uuid.UUID, stepNumber int, fieldName string, file multipart.File, header *multipart.FileHeader, agentID uuid.UUID) (*models.StepAttachmentResponse, error)
	Detach(ctx context.Context, attachmentID uuid.UUID, agentID uuid.UUID) error
	ListByStep(ctx context.Context, instanceID uuid.UUID, stepNumber int) ([]models.StepAttachmentResponse, error)
	ListByInstance(ctx context.Context, instanceID uuid.UUID) ([]models.StepAttachmentResponse, error)
	Download(ctx context.Context, attachmentID uuid.UUID) (io.ReadCloser, *models.StepAttachment, error)
	GetURL(ctx context.Context, attachmentID uuid.UUID) (string, error)
}

type attachmentService struct {
	repo         repository.AttachmentRepository
	instanceRepo repository.WorkflowInstanceRepository
	storage      storage.ObjectStorage
	locks        *InstanceLocks
}

func NewAttachmentService(repo repository.AttachmentRepository, instanceRepo repository.WorkflowInstanceRepository, objectStorage storage.ObjectStorage, locks *InstanceLocks) AttachmentService {
	if locks == nil {
		locks = NewInstanceLocks()
	}
	return &attachmentService{
		repo:         repo,
		instanceRepo: instanceRepo,
		storage:      objectStorage,
		locks:        locks,
	}
}

// Attach stores the upload and binds it to a file field of the step. The
// bytes go to the object store first; the database rows change only after
// the upload is confirmed, so a failed upload leaves no trace.
func (s *attachmentService) Attach(ctx context.Context, instanceID uuid.UUID, stepNumber int, fieldName string, file multipart.File, header *multipart.FileHeader, agentID uuid.UUID) (*models.StepAttachmentResponse, error) {
	unlock := s.locks.lock(instanceID.String())
	defer unlock()

	instance, err := s.instanceRepo.FindByID(ctx, instanceID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, models.NewNotFoundError("workflow instance %s not found", instanceID)
		}
		return nil, err
	}
	if err := guardAttachable(instance); err != nil {
		return nil, err
	}

	def, err := catalog.Get(stepNumber)
	if err != nil {
		return nil, err
	}
	field, ok := def.Field(fieldName)
	if !ok {
		return nil, models.NewIllegalTransitionError("step %d has no field %q", stepNumber, fieldName)
	}
	if field.Type != catalog.FieldFile {
		return nil, models.NewIllegalTransitionError("field %q of step %d does not take files", fieldName, stepNumber)
	}

	step := instance.Step(stepNumber)
	if step == nil {
		return nil, models.NewNotFoundError("instance %s has no step %d", instanceID, stepNumber)
	}
	if step.Status == models.StepSkipped {
		return nil, models.NewIllegalTransitionError("step %d is skipped; reopen it before attaching files", stepNumber)
	}

	folder := fmt.Sprintf("attachments/%s/%d", instanceID, stepNumber)
	objectKey, err := s.storage.UploadFile(ctx, file, header, folder)
	if err != nil {
		return nil, models.NewDependencyFailure("object storage", err)
	}

	attachment := &models.StepAttachment{
		InstanceID:   instanceID,
		StepNumber:   stepNumber,
		FieldName:    fieldName,
		FileName:     header.Filename,
		ObjectKey:    objectKey,
		ContentType:  header.Header.Get("Content-Type"),
		Size:         header.Size,
		UploadedByID: &agentID,
	}
	attachment.ID = uuid.New()

	values := step.DataValues()
	values[fieldName] = addToSet(values[fieldName], attachment.ID.String())
	if err := step.SetDataValues(values); err != nil {
		return nil, err
	}

	if err := s.repo.CreateWithStep(ctx, attachment, step); err != nil {
		// The upload already happened; remove the orphan object best-effort.
		if cleanupErr := s.storage.DeleteFile(ctx, objectKey); cleanupErr != nil {
			log.Printf("Failed to remove orphan object %s: %v", objectKey, cleanupErr)
		}
		return nil, err
	}

	resp := models.ToStepAttachmentResponse(attachment)
	return &resp, nil
}

// Detach removes the object first; only after the store confirms does the
// row disappear and the id leave the field set.
func (s *attachmentService) Detach(ctx context.Context, attachmentID uuid.UUID, agentID uuid.UUID) error {
	attachment, err := s.findAttachment(ctx, attachmentID)
	if err != nil {
		return err
	}

	unlock := s.locks.lock(attachment.InstanceID.String())
	defer unlock()

	instance, err := s.instanceRepo.FindByID(ctx, attachment.InstanceID)
	if err != nil {
		return err
	}
	if err := guardAttachable(instance); err != nil {
		return err
	}
	step := instance.Step(attachment.StepNumber)
	if step == nil {
		return models.NewNotFoundError("instance %s has no step %d", attachment.InstanceID, attachment.StepNumber)
	}

	if err := s.storage.DeleteFile(ctx, attachment.ObjectKey); err != nil {
		return models.NewDependencyFailure("object storage", err)
	}

	values := step.DataValues()
	values[attachment.FieldName] = removeFromSet(values[attachment.FieldName], attachment.ID.String())
	if err := step.SetDataValues(values); err != nil {
		return err
	}

	return s.repo.DeleteWithStep(ctx, attachmentID, step)
}

func (s *attachmentService) ListByStep(ctx context.Context, instanceID uuid.UUID, stepNumber int) ([]models.StepAttachmentResponse, error) {
	attachments, err := s.repo.ListByStep(ctx, instanceID, stepNumber)
	if err != nil {
		return nil, err
	}
	return s.toResponses(ctx, attachments), nil
}

func (s *attachmentService) ListByInstance(ctx context.Context, instanceID uuid.UUID) ([]models.StepAttachmentResponse, error) {
	attachments, err := s.repo.ListByInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	return s.toResponses(ctx, attachments), nil
}

func (s *attachmentService) Download(ctx context.Context, attachmentID uuid.UUID) (io.ReadCloser, *models.StepAttachment, error) {
	attachment, err := s.findAttachment(ctx, attachmentID)
	if err != nil {
		return nil, nil, err
	}
	reader, err := s.storage.GetFile(ctx, attachment.ObjectKey)
	if err != nil {
		return nil, nil, models.NewDependencyFailure("object storage", err)
	}
	return reader, attachment, nil
}

func (s *attachmentService) GetURL(ctx context.Context, attachmentID uuid.UUID) (string, error) {
	attachment, err := s.findAttachment(ctx, attachmentID)
	if err != nil {
		return "", err
	}
	url, err := s.storage.GetFileURL(ctx, attachment.ObjectKey)
	if err != nil {
		return "", models.NewDependencyFailure("object storage", err)
	}
	return url, nil
}

// guardAttachable mirrors the step mutation guard: attachments change step
// data, so they follow the same instance status rules.
func guardAttachable(instance *models.WorkflowInstance) error {
	switch instance.Status {
	case models.InstanceOnHold, models.InstanceCancelled, models.InstanceCompleted:
		return models.NewIllegalTransitionError("workflow %s does not accept attachment changes in status %s", instance.WorkflowNumber, instance.Status)
	}
	return nil
}

func (s *attachmentService) findAttachment(ctx context.Context, id uuid.UUID) (*models.StepAttachment, error) {
	attachment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, models.NewNotFoundError("attachment %s not found", id)
		}
		return nil, err
	}
	return attachment, nil
}

func (s *attachmentService) toResponses(ctx context.Context, attachments []models.StepAttachment) []models.StepAttachmentResponse {
	responses := make([]models.StepAttachmentResponse, 0, len(attachments))
	for i := range attachments {
		resp := models.ToStepAttachmentResponse(&attachments[i])
		if url, err := s.storage.GetFileURL(ctx, attachments[i].ObjectKey); err == nil {
			resp.URL = url
		}
		responses = append(responses, resp)
	}
	return responses
}

// addToSet appends an id to a stored field value with set semantics.
func addToSet(value interface{}, id string) []interface{} {
	set := toIDSlice(value)
	for _, existing := range set {
		if existing == id {
			return set
		}
	}
	return append(set, id)
}

func removeFromSet(value interface{}, id string) []interface{} {
	set := toIDSlice(value)
	result := make([]interface{}, 0, len(set))
	for _, existing := range set {
		if existing != id {
			result = append(result, existing)
		}
	}
	return result
}

func toIDSlice(value interface{}) []interface{} {
	switch v := value.(type) {
	case nil:
		return nil
	case []interface{}:
		return v
	case []string:
		out := make([]interface{}, 0, len(v))
		for _, s := range v {
			out = append(out, s)
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []interface{}{v}
	default:
		return nil
	}
}
