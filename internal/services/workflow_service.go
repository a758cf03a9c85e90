package services

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/servicehub/backend/internal/catalog"
	"github.com/servicehub/backend/internal/models"
	"github.com/servicehub/backend/internal/repository"
	"gorm.io/gorm"
)

type WorkflowService interface {
	// Instance lifecycle
	CreateOrGetInstance(ctx context.Context, req *models.WorkflowCreateRequest, agentID uuid.UUID) (*models.WorkflowInstanceResponse, bool, error)
	GetInstance(ctx context.Context, id uuid.UUID) (*models.WorkflowInstanceResponse, error)
	GetInstanceByTicketAndDevice(ctx context.Context, ticketID uuid.UUID, deviceSerial string) (*models.WorkflowInstanceResponse, error)
	ListInstances(ctx context.Context, filter *models.InstanceFilter) ([]models.WorkflowInstanceResponse, int64, error)
	ListByTicket(ctx context.Context, ticketID uuid.UUID) ([]models.WorkflowInstanceResponse, error)

	// Step transitions
	SaveStep(ctx context.Context, instanceID uuid.UUID, stepNumber int, req *models.SaveStepRequest, agentID uuid.UUID) (*models.WorkflowInstanceResponse, error)
	SkipStep(ctx context.Context, instanceID uuid.UUID, stepNumber int, agentID uuid.UUID) (*models.WorkflowInstanceResponse, error)
	ReopenStep(ctx context.Context, instanceID uuid.UUID, stepNumber int, agentID uuid.UUID) (*models.WorkflowInstanceResponse, error)

	// Instance status
	SetInstanceStatus(ctx context.Context, instanceID uuid.UUID, status models.InstanceStatus, agentID uuid.UUID) (*models.WorkflowInstanceResponse, error)

	// Audit
	ListAuditTrail(ctx context.Context, instanceID uuid.UUID) ([]models.StepAuditResponse, error)
}

// InstanceLocks serializes mutations per workflow instance. Reads bypass it
// and see committed rows only. The workflow service and the attachment binder
// share one table so their mutations interleave safely.
type InstanceLocks struct {
	mu sync.Map
}

func NewInstanceLocks() *InstanceLocks {
	return &InstanceLocks{}
}

func (l *InstanceLocks) lock(key string) func() {
	value, _ := l.mu.LoadOrStore(key, &sync.Mutex{})
	mutex := value.(*sync.Mutex)
	mutex.Lock()
	return mutex.Unlock
}

type workflowService struct {
	repo      repository.WorkflowInstanceRepository
	agentRepo repository.AgentRepository
	publisher EventPublisher
	locks     *InstanceLocks
}

func NewWorkflowService(repo repository.WorkflowInstanceRepository, agentRepo repository.AgentRepository, publisher EventPublisher, locks *InstanceLocks) WorkflowService {
	if locks == nil {
		locks = NewInstanceLocks()
	}
	return &workflowService{
		repo:      repo,
		agentRepo: agentRepo,
		publisher: publisher,
		locks:     locks,
	}
}

func (s *workflowService) CreateOrGetInstance(ctx context.Context, req *models.WorkflowCreateRequest, agentID uuid.UUID) (*models.WorkflowInstanceResponse, bool, error) {
	ticketID, err := uuid.Parse(req.TicketID)
	if err != nil {
		return nil, false, models.NewValidationError(map[string]string{"ticket_id": "must be a valid uuid"})
	}

	unlock := s.locks.lock("create:" + req.TicketID + ":" + req.DeviceSerialNumber)
	defer unlock()

	existing, err := s.repo.FindByTicketAndDevice(ctx, ticketID, req.DeviceSerialNumber)
	if err == nil {
		resp := s.toResponse(existing)
		return &resp, false, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, false, err
	}

	number, err := s.repo.GenerateWorkflowNumber(ctx)
	if err != nil {
		return nil, false, err
	}

	instance := &models.WorkflowInstance{
		WorkflowNumber:     number,
		TicketID:           ticketID,
		DeviceSerialNumber: req.DeviceSerialNumber,
		CurrentStep:        1,
		Status:             models.InstanceInProgress,
		CreatedByID:        &agentID,
	}
	for _, def := range catalog.Definitions() {
		step := models.StepState{
			StepNumber: def.StepNumber,
			Status:     models.StepNotStarted,
		}
		if err := step.SetDataValues(nil); err != nil {
			return nil, false, err
		}
		instance.Steps = append(instance.Steps, step)
	}

	record := &models.StepAuditRecord{
		Action:          models.AuditInstanceCreated,
		PerformedByID:   agentID,
		PerformedByName: s.resolveName(ctx, agentID),
		PerformedAt:     time.Now(),
	}
	if err := s.repo.Create(ctx, instance, record); err != nil {
		return nil, false, err
	}

	s.publishChange(ctx, instance, 0, agentID)
	resp := s.toResponse(instance)
	return &resp, true, nil
}

func (s *workflowService) GetInstance(ctx context.Context, id uuid.UUID) (*models.WorkflowInstanceResponse, error) {
	instance, err := s.findInstance(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := s.toResponse(instance)
	return &resp, nil
}

func (s *workflowService) GetInstanceByTicketAndDevice(ctx context.Context, ticketID uuid.UUID, deviceSerial string) (*models.WorkflowInstanceResponse, error) {
	instance, err := s.repo.FindByTicketAndDevice(ctx, ticketID, deviceSerial)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, models.NewNotFoundError("no workflow for ticket %s and device %s", ticketID, deviceSerial)
		}
		return nil, err
	}
	resp := s.toResponse(instance)
	return &resp, nil
}

func (s *workflowService) ListInstances(ctx context.Context, filter *models.InstanceFilter) ([]models.WorkflowInstanceResponse, int64, error) {
	instances, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	responses := make([]models.WorkflowInstanceResponse, 0, len(instances))
	for i := range instances {
		responses = append(responses, s.toResponse(&instances[i]))
	}
	return responses, total, nil
}

func (s *workflowService) ListByTicket(ctx context.Context, ticketID uuid.UUID) ([]models.WorkflowInstanceResponse, error) {
	instances, err := s.repo.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	responses := make([]models.WorkflowInstanceResponse, 0, len(instances))
	for i := range instances {
		responses = append(responses, s.toResponse(&instances[i]))
	}
	return responses, nil
}

func (s *workflowService) SaveStep(ctx context.Context, instanceID uuid.UUID, stepNumber int, req *models.SaveStepRequest, agentID uuid.UUID) (*models.WorkflowInstanceResponse, error) {
	unlock := s.locks.lock(instanceID.String())
	defer unlock()

	instance, err := s.findInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if err := s.guardMutable(instance); err != nil {
		return nil, err
	}

	def, err := catalog.Get(stepNumber)
	if err != nil {
		return nil, err
	}
	step := instance.Step(stepNumber)
	if step == nil {
		return nil, models.NewNotFoundError("instance %s has no step %d", instanceID, stepNumber)
	}
	if step.Status == models.StepSkipped {
		return nil, models.NewIllegalTransitionError("step %d is skipped; reopen it before saving data", stepNumber)
	}

	merged := step.DataValues()
	for key, value := range req.Data {
		merged[key] = value
	}

	fromStatus := step.Status
	now := time.Now()

	if req.MarkCompleted {
		if violations := catalog.ValidateStepData(def, merged); len(violations) > 0 {
			return nil, models.NewValidationError(violations)
		}
		if stepNumber == catalog.StepApproval {
			if err := s.guardCrossAgentApproval(instance, agentID); err != nil {
				return nil, err
			}
		}
		if step.Status != models.StepCompleted {
			step.Status = models.StepCompleted
			step.CompletedAt = &now
		}
	} else if step.Status != models.StepCompleted {
		// Editing a completed step without markCompleted keeps it completed.
		step.Status = models.StepInProgress
	}

	if step.StartedAt == nil {
		step.StartedAt = &now
	}
	step.AgentID = &agentID
	step.AgentName = s.resolveName(ctx, agentID)
	if err := step.SetDataValues(merged); err != nil {
		return nil, err
	}

	s.advance(instance)

	action := models.AuditStepSaved
	if step.Status == models.StepCompleted && fromStatus != models.StepCompleted {
		action = models.AuditStepCompleted
	}
	records := []models.StepAuditRecord{{
		InstanceID:      instance.ID,
		StepNumber:      stepNumber,
		Action:          action,
		FromStatus:      fromStatus,
		ToStatus:        step.Status,
		PerformedByID:   agentID,
		PerformedByName: step.AgentName,
		PerformedAt:     now,
	}}

	if err := s.repo.CommitTransition(ctx, instance, step, records); err != nil {
		return nil, err
	}

	s.publishChange(ctx, instance, stepNumber, agentID)
	resp := s.toResponse(instance)
	return &resp, nil
}

func (s *workflowService) SkipStep(ctx context.Context, instanceID uuid.UUID, stepNumber int, agentID uuid.UUID) (*models.WorkflowInstanceResponse, error) {
	unlock := s.locks.lock(instanceID.String())
	defer unlock()

	instance, err := s.findInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if err := s.guardMutable(instance); err != nil {
		return nil, err
	}

	def, err := catalog.Get(stepNumber)
	if err != nil {
		return nil, err
	}
	if !def.IsOptional {
		return nil, models.NewIllegalTransitionError("step %d (%s) is mandatory and cannot be skipped", stepNumber, def.Name)
	}
	step := instance.Step(stepNumber)
	if step == nil {
		return nil, models.NewNotFoundError("instance %s has no step %d", instanceID, stepNumber)
	}
	if step.Status == models.StepCompleted {
		return nil, models.NewIllegalTransitionError("step %d is already completed", stepNumber)
	}
	if step.Status == models.StepSkipped {
		return nil, models.NewIllegalTransitionError("step %d is already skipped", stepNumber)
	}

	fromStatus := step.Status
	now := time.Now()
	step.Status = models.StepSkipped
	step.AgentID = &agentID
	step.AgentName = s.resolveName(ctx, agentID)

	s.advance(instance)

	records := []models.StepAuditRecord{{
		InstanceID:      instance.ID,
		StepNumber:      stepNumber,
		Action:          models.AuditStepSkipped,
		FromStatus:      fromStatus,
		ToStatus:        step.Status,
		PerformedByID:   agentID,
		PerformedByName: step.AgentName,
		PerformedAt:     now,
	}}

	if err := s.repo.CommitTransition(ctx, instance, step, records); err != nil {
		return nil, err
	}

	s.publishChange(ctx, instance, stepNumber, agentID)
	resp := s.toResponse(instance)
	return &resp, nil
}

func (s *workflowService) ReopenStep(ctx context.Context, instanceID uuid.UUID, stepNumber int, agentID uuid.UUID) (*models.WorkflowInstanceResponse, error) {
	unlock := s.locks.lock(instanceID.String())
	defer unlock()

	instance, err := s.findInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if instance.Status == models.InstanceCancelled {
		return nil, models.NewIllegalTransitionError("workflow %s is cancelled", instance.WorkflowNumber)
	}
	if instance.Status == models.InstanceOnHold {
		return nil, models.NewIllegalTransitionError("workflow %s is on hold", instance.WorkflowNumber)
	}

	step := instance.Step(stepNumber)
	if step == nil {
		return nil, models.NewNotFoundError("instance %s has no step %d", instanceID, stepNumber)
	}

	switch step.Status {
	case models.StepCompleted:
		// Always reopenable.
	case models.StepSkipped:
		if !catalog.ReopenableWhenSkipped(stepNumber) {
			return nil, models.NewIllegalTransitionError("skipped step %d cannot be reopened", stepNumber)
		}
	default:
		return nil, models.NewIllegalTransitionError("step %d is not completed or skipped", stepNumber)
	}

	fromStatus := step.Status
	now := time.Now()
	step.Status = models.StepInProgress
	step.CompletedAt = nil
	if step.StartedAt == nil {
		step.StartedAt = &now
	}
	step.AgentID = &agentID
	step.AgentName = s.resolveName(ctx, agentID)

	// Reopening never regresses progress: the pointer is recomputed only
	// when the reopened step is at or beyond it. The reopened step is open
	// again, so the recomputed pointer never lands past it and never skips
	// over an untouched earlier step.
	if stepNumber >= instance.CurrentStep {
		s.advance(instance)
	}
	if instance.Status == models.InstanceCompleted {
		instance.Status = models.InstanceInProgress
	}

	records := []models.StepAuditRecord{{
		InstanceID:      instance.ID,
		StepNumber:      stepNumber,
		Action:          models.AuditStepReopened,
		FromStatus:      fromStatus,
		ToStatus:        step.Status,
		PerformedByID:   agentID,
		PerformedByName: step.AgentName,
		PerformedAt:     now,
	}}

	if err := s.repo.CommitTransition(ctx, instance, step, records); err != nil {
		return nil, err
	}

	s.publishChange(ctx, instance, stepNumber, agentID)
	resp := s.toResponse(instance)
	return &resp, nil
}

func (s *workflowService) SetInstanceStatus(ctx context.Context, instanceID uuid.UUID, status models.InstanceStatus, agentID uuid.UUID) (*models.WorkflowInstanceResponse, error) {
	unlock := s.locks.lock(instanceID.String())
	defer unlock()

	instance, err := s.findInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	if instance.Status == status {
		resp := s.toResponse(instance)
		return &resp, nil
	}
	if instance.Status == models.InstanceCancelled {
		return nil, models.NewIllegalTransitionError("workflow %s is cancelled", instance.WorkflowNumber)
	}
	if instance.Status == models.InstanceCompleted {
		return nil, models.NewIllegalTransitionError("workflow %s is completed; reopen a step instead", instance.WorkflowNumber)
	}
	switch status {
	case models.InstanceInProgress, models.InstanceOnHold, models.InstanceCancelled:
	default:
		return nil, models.NewIllegalTransitionError("cannot set workflow status to %q", status)
	}

	fromStatus := instance.Status
	now := time.Now()
	instance.Status = status

	record := &models.StepAuditRecord{
		InstanceID:      instance.ID,
		Action:          models.AuditStatusChanged,
		FromStatus:      models.StepStatus(fromStatus),
		ToStatus:        models.StepStatus(status),
		PerformedByID:   agentID,
		PerformedByName: s.resolveName(ctx, agentID),
		PerformedAt:     now,
	}
	if err := s.repo.UpdateStatus(ctx, instance, record); err != nil {
		return nil, err
	}

	s.publishChange(ctx, instance, 0, agentID)
	resp := s.toResponse(instance)
	return &resp, nil
}

func (s *workflowService) ListAuditTrail(ctx context.Context, instanceID uuid.UUID) ([]models.StepAuditResponse, error) {
	if _, err := s.findInstance(ctx, instanceID); err != nil {
		return nil, err
	}
	records, err := s.repo.ListAuditRecords(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	responses := make([]models.StepAuditResponse, 0, len(records))
	for i := range records {
		responses = append(responses, models.ToStepAuditResponse(&records[i]))
	}
	return responses, nil
}

// Helpers

func (s *workflowService) findInstance(ctx context.Context, id uuid.UUID) (*models.WorkflowInstance, error) {
	instance, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, models.NewNotFoundError("workflow instance %s not found", id)
		}
		return nil, err
	}
	return instance, nil
}

func (s *workflowService) guardMutable(instance *models.WorkflowInstance) error {
	switch instance.Status {
	case models.InstanceOnHold:
		return models.NewIllegalTransitionError("workflow %s is on hold", instance.WorkflowNumber)
	case models.InstanceCancelled:
		return models.NewIllegalTransitionError("workflow %s is cancelled", instance.WorkflowNumber)
	case models.InstanceCompleted:
		return models.NewIllegalTransitionError("workflow %s is completed; reopen a step instead", instance.WorkflowNumber)
	}
	return nil
}

// guardCrossAgentApproval enforces the four-eyes rule: the quality approval
// step must not be completed by the agent who completed the repair step.
func (s *workflowService) guardCrossAgentApproval(instance *models.WorkflowInstance, agentID uuid.UUID) error {
	repairStep := instance.Step(catalog.StepRepair)
	if repairStep == nil || repairStep.Status != models.StepCompleted || repairStep.AgentID == nil {
		return nil
	}
	if *repairStep.AgentID == agentID {
		return models.NewIllegalTransitionError(
			"quality approval must be performed by a different agent than the repair")
	}
	return nil
}

// advance recomputes the progress pointer and instance completion: the
// current step is the lowest step that is neither completed nor skipped,
// or the last step when every step is terminal.
func (s *workflowService) advance(instance *models.WorkflowInstance) {
	lowest := 0
	allTerminal := true
	for i := range instance.Steps {
		step := &instance.Steps[i]
		if !step.Status.IsTerminal() {
			allTerminal = false
			if lowest == 0 || step.StepNumber < lowest {
				lowest = step.StepNumber
			}
		}
	}
	if allTerminal {
		instance.CurrentStep = catalog.StepCount()
		instance.Status = models.InstanceCompleted
		return
	}
	instance.CurrentStep = lowest
}

func (s *workflowService) resolveName(ctx context.Context, agentID uuid.UUID) string {
	agent, err := s.agentRepo.FindByID(ctx, agentID)
	if err != nil {
		log.Printf("Failed to resolve agent %s: %v", agentID, err)
		return agentID.String()
	}
	return agent.DisplayName()
}

func (s *workflowService) publishChange(ctx context.Context, instance *models.WorkflowInstance, updatedStep int, agentID uuid.UUID) {
	if s.publisher == nil {
		return
	}
	snapshot := s.toResponse(instance)
	s.publisher.PublishChange(ctx, &models.WorkflowChangeEvent{
		InstanceID:  instance.ID,
		TicketID:    instance.TicketID,
		UpdatedStep: updatedStep,
		UpdatedBy:   agentID,
		UpdatedAt:   time.Now(),
		Instance:    &snapshot,
	})
}

// toResponse builds the API view of an instance, annotating each step with
// its catalog name.
func (s *workflowService) toResponse(instance *models.WorkflowInstance) models.WorkflowInstanceResponse {
	resp := models.ToWorkflowInstanceResponse(instance)
	for i := range resp.Steps {
		if def, err := catalog.Get(resp.Steps[i].StepNumber); err == nil {
			resp.Steps[i].Name = def.Name
			resp.Steps[i].IsOptional = def.IsOptional
		}
	}
	return resp
}
