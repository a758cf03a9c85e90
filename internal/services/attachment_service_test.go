package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"testing"

	"github.com/google/uuid"
	"github.com/servicehub/backend/internal/catalog"
	"github.com/servicehub/backend/internal/models"
	"github.com/servicehub/backend/internal/repository"
	"github.com/servicehub/backend/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeAttachmentRepo struct {
	attachments map[uuid.UUID]*models.StepAttachment
	createErr   error
}

func newFakeAttachmentRepo() *fakeAttachmentRepo {
	return &fakeAttachmentRepo{attachments: make(map[uuid.UUID]*models.StepAttachment)}
}

func (r *fakeAttachmentRepo) Create(ctx context.Context, attachment *models.StepAttachment) error {
	r.attachments[attachment.ID] = attachment
	return nil
}

func (r *fakeAttachmentRepo) CreateWithStep(ctx context.Context, attachment *models.StepAttachment, step *models.StepState) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.attachments[attachment.ID] = attachment
	return nil
}

func (r *fakeAttachmentRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.StepAttachment, error) {
	attachment, ok := r.attachments[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return attachment, nil
}

func (r *fakeAttachmentRepo) ListByInstance(ctx context.Context, instanceID uuid.UUID) ([]models.StepAttachment, error) {
	var out []models.StepAttachment
	for _, attachment := range r.attachments {
		if attachment.InstanceID == instanceID {
			out = append(out, *attachment)
		}
	}
	return out, nil
}

func (r *fakeAttachmentRepo) ListByStep(ctx context.Context, instanceID uuid.UUID, stepNumber int) ([]models.StepAttachment, error) {
	var out []models.StepAttachment
	for _, attachment := range r.attachments {
		if attachment.InstanceID == instanceID && attachment.StepNumber == stepNumber {
			out = append(out, *attachment)
		}
	}
	return out, nil
}

func (r *fakeAttachmentRepo) Delete(ctx context.Context, id uuid.UUID) error {
	delete(r.attachments, id)
	return nil
}

func (r *fakeAttachmentRepo) DeleteWithStep(ctx context.Context, id uuid.UUID, step *models.StepState) error {
	delete(r.attachments, id)
	return nil
}

var _ repository.AttachmentRepository = (*fakeAttachmentRepo)(nil)

type fakeObjectStorage struct {
	objects   map[string][]byte
	uploadErr error
	deleteErr error
}

func newFakeObjectStorage() *fakeObjectStorage {
	return &fakeObjectStorage{objects: make(map[string][]byte)}
}

func (s *fakeObjectStorage) UploadFile(ctx context.Context, file multipart.File, header *multipart.FileHeader, folder string) (string, error) {
	if s.uploadErr != nil {
		return "", s.uploadErr
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("%s/%s_%s", folder, uuid.NewString(), header.Filename)
	s.objects[key] = data
	return key, nil
}

func (s *fakeObjectStorage) UploadBytes(ctx context.Context, objectName string, data []byte, contentType string) error {
	if s.uploadErr != nil {
		return s.uploadErr
	}
	s.objects[objectName] = data
	return nil
}

func (s *fakeObjectStorage) GetFile(ctx context.Context, objectName string) (io.ReadCloser, error) {
	data, ok := s.objects[objectName]
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *fakeObjectStorage) GetFileURL(ctx context.Context, objectName string) (string, error) {
	return "https://storage.test/" + objectName, nil
}

func (s *fakeObjectStorage) DeleteFile(ctx context.Context, objectName string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.objects, objectName)
	return nil
}

func (s *fakeObjectStorage) FileExists(ctx context.Context, objectName string) (bool, error) {
	_, ok := s.objects[objectName]
	return ok, nil
}

var _ storage.ObjectStorage = (*fakeObjectStorage)(nil)

// makeUpload builds a real multipart file and header from inline content.
func makeUpload(t *testing.T, filename, content string) (multipart.File, *multipart.FileHeader) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	reader := multipart.NewReader(&body, writer.Boundary())
	form, err := reader.ReadForm(1 << 20)
	require.NoError(t, err)
	headers := form.File["file"]
	require.Len(t, headers, 1)
	file, err := headers[0].Open()
	require.NoError(t, err)
	return file, headers[0]
}

type attachmentFixture struct {
	svc          AttachmentService
	repo         *fakeAttachmentRepo
	instanceRepo *fakeInstanceRepo
	storage      *fakeObjectStorage
	instance     *models.WorkflowInstance
	agentID      uuid.UUID
}

func newAttachmentFixture(t *testing.T) *attachmentFixture {
	t.Helper()
	instanceRepo := newFakeInstanceRepo()
	instance := &models.WorkflowInstance{
		WorkflowNumber:     "SRV-2026-000001",
		TicketID:           uuid.New(),
		DeviceSerialNumber: "SN-0001",
		CurrentStep:        1,
		Status:             models.InstanceInProgress,
	}
	for _, def := range catalog.Definitions() {
		step := models.StepState{StepNumber: def.StepNumber, Status: models.StepNotStarted}
		require.NoError(t, step.SetDataValues(nil))
		instance.Steps = append(instance.Steps, step)
	}
	record := &models.StepAuditRecord{Action: models.AuditInstanceCreated}
	require.NoError(t, instanceRepo.Create(context.Background(), instance, record))

	repo := newFakeAttachmentRepo()
	objectStorage := newFakeObjectStorage()
	svc := NewAttachmentService(repo, instanceRepo, objectStorage, NewInstanceLocks())
	return &attachmentFixture{
		svc:          svc,
		repo:         repo,
		instanceRepo: instanceRepo,
		storage:      objectStorage,
		instance:     instance,
		agentID:      uuid.New(),
	}
}

func (f *attachmentFixture) attach(t *testing.T, stepNumber int, fieldName, filename string) *models.StepAttachmentResponse {
	t.Helper()
	file, header := makeUpload(t, filename, "file-content")
	defer file.Close()
	resp, err := f.svc.Attach(context.Background(), f.instance.ID, stepNumber, fieldName, file, header, f.agentID)
	require.NoError(t, err)
	return resp
}

func TestAttach_BindsIDToFieldSet(t *testing.T) {
	f := newAttachmentFixture(t)

	resp := f.attach(t, catalog.StepReception, "reception_photos", "front.jpg")

	assert.Equal(t, "front.jpg", resp.FileName)
	assert.Contains(t, f.repo.attachments, resp.ID)
	assert.Len(t, f.storage.objects, 1)

	values := f.instance.Step(catalog.StepReception).DataValues()
	ids := values["reception_photos"].([]interface{})
	require.Len(t, ids, 1)
	assert.Equal(t, resp.ID.String(), ids[0])
}

func TestAttach_MultipleFilesAccumulate(t *testing.T) {
	f := newAttachmentFixture(t)

	first := f.attach(t, catalog.StepReception, "reception_photos", "front.jpg")
	second := f.attach(t, catalog.StepReception, "reception_photos", "back.jpg")

	values := f.instance.Step(catalog.StepReception).DataValues()
	ids := values["reception_photos"].([]interface{})
	require.Len(t, ids, 2)
	assert.Equal(t, first.ID.String(), ids[0])
	assert.Equal(t, second.ID.String(), ids[1])
}

func TestAttach_NonFileFieldRejected(t *testing.T) {
	f := newAttachmentFixture(t)

	file, header := makeUpload(t, "notes.txt", "x")
	defer file.Close()
	_, err := f.svc.Attach(context.Background(), f.instance.ID, catalog.StepReception, "device_condition", file, header, f.agentID)
	require.Error(t, err)
	assert.True(t, models.IsWorkflowError(err, models.ErrCodeIllegalTransition))
	assert.Empty(t, f.storage.objects)
	assert.Empty(t, f.repo.attachments)
}

func TestAttach_UnknownFieldRejected(t *testing.T) {
	f := newAttachmentFixture(t)

	file, header := makeUpload(t, "x.bin", "x")
	defer file.Close()
	_, err := f.svc.Attach(context.Background(), f.instance.ID, catalog.StepReception, "nope", file, header, f.agentID)
	require.Error(t, err)
	assert.True(t, models.IsWorkflowError(err, models.ErrCodeIllegalTransition))
}

func TestAttach_StorageFailureLeavesNoRows(t *testing.T) {
	f := newAttachmentFixture(t)
	f.storage.uploadErr = errors.New("connection refused")

	file, header := makeUpload(t, "front.jpg", "x")
	defer file.Close()
	_, err := f.svc.Attach(context.Background(), f.instance.ID, catalog.StepReception, "reception_photos", file, header, f.agentID)
	require.Error(t, err)
	assert.True(t, models.IsWorkflowError(err, models.ErrCodeDependencyFailure))
	assert.Empty(t, f.repo.attachments)

	values := f.instance.Step(catalog.StepReception).DataValues()
	assert.NotContains(t, values, "reception_photos")
}

func TestAttach_RowFailureCleansUpObject(t *testing.T) {
	f := newAttachmentFixture(t)
	f.repo.createErr = errors.New("constraint violation")

	file, header := makeUpload(t, "front.jpg", "x")
	defer file.Close()
	_, err := f.svc.Attach(context.Background(), f.instance.ID, catalog.StepReception, "reception_photos", file, header, f.agentID)
	require.Error(t, err)
	assert.Empty(t, f.storage.objects)
	assert.Empty(t, f.repo.attachments)
}

func TestAttach_BlockedOnCancelledInstance(t *testing.T) {
	f := newAttachmentFixture(t)
	f.instance.Status = models.InstanceCancelled

	file, header := makeUpload(t, "front.jpg", "x")
	defer file.Close()
	_, err := f.svc.Attach(context.Background(), f.instance.ID, catalog.StepReception, "reception_photos", file, header, f.agentID)
	require.Error(t, err)
	assert.True(t, models.IsWorkflowError(err, models.ErrCodeIllegalTransition))
}

func TestAttach_BlockedOnCompletedInstance(t *testing.T) {
	f := newAttachmentFixture(t)
	f.instance.Status = models.InstanceCompleted

	file, header := makeUpload(t, "front.jpg", "x")
	defer file.Close()
	_, err := f.svc.Attach(context.Background(), f.instance.ID, catalog.StepReception, "reception_photos", file, header, f.agentID)
	require.Error(t, err)
	assert.True(t, models.IsWorkflowError(err, models.ErrCodeIllegalTransition))
	assert.Empty(t, f.storage.objects)
	assert.Empty(t, f.repo.attachments)
}

func TestAttach_SkippedStepRejected(t *testing.T) {
	f := newAttachmentFixture(t)
	f.instance.Step(catalog.StepDiagnosis).Status = models.StepSkipped

	file, header := makeUpload(t, "scan.pdf", "x")
	defer file.Close()
	_, err := f.svc.Attach(context.Background(), f.instance.ID, catalog.StepDiagnosis, "diagnosis_files", file, header, f.agentID)
	require.Error(t, err)
	assert.True(t, models.IsWorkflowError(err, models.ErrCodeIllegalTransition))
	assert.Empty(t, f.storage.objects)
}

func TestDetach_BlockedOnCompletedInstance(t *testing.T) {
	f := newAttachmentFixture(t)
	resp := f.attach(t, catalog.StepReception, "reception_photos", "front.jpg")
	f.instance.Status = models.InstanceCompleted

	err := f.svc.Detach(context.Background(), resp.ID, f.agentID)
	require.Error(t, err)
	assert.True(t, models.IsWorkflowError(err, models.ErrCodeIllegalTransition))
	assert.Contains(t, f.repo.attachments, resp.ID)
	assert.Len(t, f.storage.objects, 1)
}

func TestDetach_RemovesObjectRowAndID(t *testing.T) {
	f := newAttachmentFixture(t)
	resp := f.attach(t, catalog.StepReception, "reception_photos", "front.jpg")

	require.NoError(t, f.svc.Detach(context.Background(), resp.ID, f.agentID))

	assert.Empty(t, f.storage.objects)
	assert.Empty(t, f.repo.attachments)
	values := f.instance.Step(catalog.StepReception).DataValues()
	ids := values["reception_photos"].([]interface{})
	assert.Empty(t, ids)
}

func TestDetach_StorageFailureKeepsRow(t *testing.T) {
	f := newAttachmentFixture(t)
	resp := f.attach(t, catalog.StepReception, "reception_photos", "front.jpg")
	f.storage.deleteErr = errors.New("connection refused")

	err := f.svc.Detach(context.Background(), resp.ID, f.agentID)
	require.Error(t, err)
	assert.True(t, models.IsWorkflowError(err, models.ErrCodeDependencyFailure))
	assert.Contains(t, f.repo.attachments, resp.ID)

	values := f.instance.Step(catalog.StepReception).DataValues()
	ids := values["reception_photos"].([]interface{})
	require.Len(t, ids, 1)
}

func TestDetach_UnknownAttachment(t *testing.T) {
	f := newAttachmentFixture(t)

	err := f.svc.Detach(context.Background(), uuid.New(), f.agentID)
	require.Error(t, err)
	assert.True(t, models.IsWorkflowError(err, models.ErrCodeNotFound))
}

func TestDownload(t *testing.T) {
	f := newAttachmentFixture(t)
	resp := f.attach(t, catalog.StepDiagnosis, "diagnosis_files", "scan.pdf")

	reader, attachment, err := f.svc.Download(context.Background(), resp.ID)
	require.NoError(t, err)
	defer reader.Close()

	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "file-content", string(data))
	assert.Equal(t, "scan.pdf", attachment.FileName)
}

func TestListByStep_CarriesURLs(t *testing.T) {
	f := newAttachmentFixture(t)
	f.attach(t, catalog.StepReception, "reception_photos", "front.jpg")

	attachments, err := f.svc.ListByStep(context.Background(), f.instance.ID, catalog.StepReception)
	require.NoError(t, err)
	require.Len(t, attachments, 1)
	assert.Contains(t, attachments[0].URL, "https://storage.test/")
}
