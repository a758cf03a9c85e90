package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/servicehub/backend/internal/catalog"
	"github.com/servicehub/backend/internal/config"
	"github.com/servicehub/backend/internal/models"
	"github.com/servicehub/backend/internal/render"
	"github.com/servicehub/backend/internal/repository"
	"github.com/servicehub/backend/internal/storage"
	"gorm.io/gorm"
)

type ReportService interface {
	CanGenerate(instance *models.WorkflowInstance) bool
	Generate(ctx context.Context, instanceID uuid.UUID, reportType models.ReportType, agentID uuid.UUID) (*models.ServiceReportResponse, error)
	ListReports(ctx context.Context, instanceID uuid.UUID) ([]models.ServiceReportResponse, error)
	Download(ctx context.Context, reportID uuid.UUID) (string, error)
	DeleteReport(ctx context.Context, reportID uuid.UUID) error
}

type reportService struct {
	repo           repository.ReportRepository
	instanceRepo   repository.WorkflowInstanceRepository
	attachmentRepo repository.AttachmentRepository
	ticketRepo     repository.TicketRepository
	agentRepo      repository.AgentRepository
	renderer       render.Renderer
	storage        storage.ObjectStorage
	cfg            config.WorkflowConfig
}

func NewReportService(
	repo repository.ReportRepository,
	instanceRepo repository.WorkflowInstanceRepository,
	attachmentRepo repository.AttachmentRepository,
	ticketRepo repository.TicketRepository,
	agentRepo repository.AgentRepository,
	renderer render.Renderer,
	objectStorage storage.ObjectStorage,
	cfg config.WorkflowConfig,
) ReportService {
	return &reportService{
		repo:           repo,
		instanceRepo:   instanceRepo,
		attachmentRepo: attachmentRepo,
		ticketRepo:     ticketRepo,
		agentRepo:      agentRepo,
		renderer:       renderer,
		storage:        objectStorage,
		cfg:            cfg,
	}
}

// CanGenerate reports whether the instance has progressed far enough for a
// service report. The threshold compares against the highest step that has
// been touched, not the progress pointer, so a reopened early step does not
// revoke report access.
func (s *reportService) CanGenerate(instance *models.WorkflowInstance) bool {
	return instance.HighestReachedStep() >= s.cfg.ReportMinStep
}

func (s *reportService) Generate(ctx context.Context, instanceID uuid.UUID, reportType models.ReportType, agentID uuid.UUID) (*models.ServiceReportResponse, error) {
	instance, err := s.instanceRepo.FindByID(ctx, instanceID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, models.NewNotFoundError("workflow instance %s not found", instanceID)
		}
		return nil, err
	}

	if !s.CanGenerate(instance) {
		return nil, models.NewIllegalTransitionError(
			"report requires step %d to be reached; workflow %s is at step %d",
			s.cfg.ReportMinStep, instance.WorkflowNumber, instance.HighestReachedStep())
	}
	if reportType == "" {
		reportType = models.ReportDraft
	}

	payload, err := s.AssemblePayload(ctx, instance, reportType, agentID)
	if err != nil {
		return nil, err
	}

	data, err := s.renderer.Render(payload)
	if err != nil {
		return nil, models.NewDependencyFailure("report renderer", err)
	}

	fileName := fmt.Sprintf("%s_%s_%s.pdf", instance.WorkflowNumber, reportType, time.Now().Format("20060102_150405"))
	objectKey := fmt.Sprintf("reports/%s/%s", instanceID, fileName)
	if err := s.storage.UploadBytes(ctx, objectKey, data, "application/pdf"); err != nil {
		return nil, models.NewDependencyFailure("object storage", err)
	}

	report := &models.ServiceReport{
		InstanceID:    instanceID,
		FileName:      fileName,
		ObjectKey:     objectKey,
		ReportType:    reportType,
		Size:          int64(len(data)),
		GeneratedByID: agentID,
	}
	if err := s.repo.Create(ctx, report); err != nil {
		if cleanupErr := s.storage.DeleteFile(ctx, objectKey); cleanupErr != nil {
			log.Printf("Failed to remove orphan report %s: %v", objectKey, cleanupErr)
		}
		return nil, err
	}

	resp := models.ToServiceReportResponse(report)
	return &resp, nil
}

// AssemblePayload flattens the instance into a render-ready structure. It
// reads only; rendering and storage are the caller's concern.
func (s *reportService) AssemblePayload(ctx context.Context, instance *models.WorkflowInstance, reportType models.ReportType, agentID uuid.UUID) (*render.ReportPayload, error) {
	payload := &render.ReportPayload{
		WorkflowNumber:     instance.WorkflowNumber,
		DeviceSerialNumber: instance.DeviceSerialNumber,
		Status:             string(instance.Status),
		ReportType:         string(reportType),
		GeneratedAt:        time.Now(),
	}

	// Ticket context is best-effort: the workflow core treats ticket ids as
	// opaque, so a missing ticket degrades the header, not the report.
	if ticket, err := s.ticketRepo.FindByID(ctx, instance.TicketID); err == nil {
		payload.TicketNumber = ticket.TicketNumber
		if ticket.Customer != nil {
			payload.CustomerName = ticket.Customer.Name
		}
		if ticket.Company != nil {
			payload.CompanyName = ticket.Company.Name
		}
	} else {
		log.Printf("Failed to resolve ticket %s for report: %v", instance.TicketID, err)
		payload.TicketNumber = instance.TicketID.String()
	}

	if agent, err := s.agentRepo.FindByID(ctx, agentID); err == nil {
		payload.GeneratedBy = agent.DisplayName()
	}

	attachments, err := s.attachmentRepo.ListByInstance(ctx, instance.ID)
	if err != nil {
		return nil, err
	}
	byStep := make(map[int][]render.AttachmentLine)
	for _, a := range attachments {
		byStep[a.StepNumber] = append(byStep[a.StepNumber], render.AttachmentLine{
			FileName:    a.FileName,
			ContentType: a.ContentType,
			Size:        a.Size,
		})
	}

	for _, def := range catalog.Definitions() {
		step := instance.Step(def.StepNumber)
		if step == nil || step.Status == models.StepNotStarted {
			continue
		}
		section := render.StepSection{
			StepNumber:  def.StepNumber,
			Name:        def.Name,
			Status:      string(step.Status),
			AgentName:   step.AgentName,
			CompletedAt: step.CompletedAt,
			Attachments: byStep[def.StepNumber],
		}
		values := step.DataValues()
		for _, field := range def.Fields {
			value, ok := values[field.Name]
			if !ok || field.Type == catalog.FieldFile {
				continue
			}
			section.Fields = append(section.Fields, render.FieldLine{
				Label: field.Label,
				Value: formatFieldValue(field, value),
			})
		}
		payload.Steps = append(payload.Steps, section)
	}

	return payload, nil
}

func (s *reportService) ListReports(ctx context.Context, instanceID uuid.UUID) ([]models.ServiceReportResponse, error) {
	reports, err := s.repo.ListByInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	responses := make([]models.ServiceReportResponse, 0, len(reports))
	for i := range reports {
		resp := models.ToServiceReportResponse(&reports[i])
		if url, err := s.storage.GetFileURL(ctx, reports[i].ObjectKey); err == nil {
			resp.URL = url
		}
		responses = append(responses, resp)
	}
	return responses, nil
}

func (s *reportService) Download(ctx context.Context, reportID uuid.UUID) (string, error) {
	report, err := s.findReport(ctx, reportID)
	if err != nil {
		return "", err
	}
	url, err := s.storage.GetFileURL(ctx, report.ObjectKey)
	if err != nil {
		return "", models.NewDependencyFailure("object storage", err)
	}
	return url, nil
}

func (s *reportService) DeleteReport(ctx context.Context, reportID uuid.UUID) error {
	report, err := s.findReport(ctx, reportID)
	if err != nil {
		return err
	}
	if err := s.storage.DeleteFile(ctx, report.ObjectKey); err != nil {
		return models.NewDependencyFailure("object storage", err)
	}
	return s.repo.Delete(ctx, reportID)
}

func (s *reportService) findReport(ctx context.Context, id uuid.UUID) (*models.ServiceReport, error) {
	report, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, models.NewNotFoundError("report %s not found", id)
		}
		return nil, err
	}
	return report, nil
}

// formatFieldValue renders a stored field value as display text.
func formatFieldValue(field catalog.FieldDefinition, value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case bool:
		if v {
			return "Yes"
		}
		return "No"
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%.2f", v)
	case []interface{}:
		if field.Type == catalog.FieldPartsTable {
			return formatPartsTable(field, v)
		}
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, fmt.Sprintf("%v", item))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprintf("%v", v)
	}
}

func formatPartsTable(field catalog.FieldDefinition, rows []interface{}) string {
	lines := make([]string, 0, len(rows))
	for _, raw := range rows {
		row, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		cells := make([]string, 0, len(field.Columns))
		for _, col := range field.Columns {
			if cell, ok := row[col.Name]; ok {
				cells = append(cells, fmt.Sprintf("%s: %v", col.Label, cell))
			}
		}
		lines = append(lines, strings.Join(cells, ", "))
	}
	return strings.Join(lines, "\n")
}
