package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InstanceStatus is the lifecycle status of a whole workflow instance.
type InstanceStatus string

const (
	InstanceInProgress InstanceStatus = "in_progress"
	InstanceCompleted  InstanceStatus = "completed"
	InstanceOnHold     InstanceStatus = "on_hold"
	InstanceCancelled  InstanceStatus = "cancelled"
)

// StepStatus is the lifecycle status of a single step.
type StepStatus string

const (
	StepNotStarted StepStatus = "not_started"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepSkipped    StepStatus = "skipped"
)

// IsTerminal reports whether the status no longer blocks progression.
func (s StepStatus) IsTerminal() bool {
	return s == StepCompleted || s == StepSkipped
}

// WorkflowInstance is one running execution of the step catalog for a
// (ticket, device) pair. At most one instance exists per pair; it is mutated
// only through the workflow service.
type WorkflowInstance struct {
	ID                 uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	WorkflowNumber     string    `gorm:"size:50;uniqueIndex;not null" json:"workflow_number"`
	TicketID           uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_ticket_device" json:"ticket_id"`
	DeviceSerialNumber string    `gorm:"size:100;not null;uniqueIndex:idx_ticket_device" json:"device_serial_number"`

	CurrentStep int            `gorm:"not null;default:1" json:"current_step"`
	Status      InstanceStatus `gorm:"size:20;default:'in_progress';index" json:"status"`

	CreatedByID *uuid.UUID `gorm:"type:uuid" json:"created_by_id"`
	CreatedBy   *Agent     `gorm:"foreignKey:CreatedByID" json:"created_by,omitempty"`

	Steps []StepState `gorm:"foreignKey:InstanceID" json:"steps,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (w *WorkflowInstance) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}

// Step returns the state record for the given step number, or nil.
func (w *WorkflowInstance) Step(stepNumber int) *StepState {
	for i := range w.Steps {
		if w.Steps[i].StepNumber == stepNumber {
			return &w.Steps[i]
		}
	}
	return nil
}

// HighestReachedStep returns the largest step number that has been touched,
// or 0 when every step is still not_started.
func (w *WorkflowInstance) HighestReachedStep() int {
	highest := 0
	for i := range w.Steps {
		if w.Steps[i].Status != StepNotStarted && w.Steps[i].StepNumber > highest {
			highest = w.Steps[i].StepNumber
		}
	}
	return highest
}

// StepState holds the live state of one step of an instance. Data is the
// submitted field values serialized as JSON; only the latest values are kept
// here, the mutation trail lives in StepAuditRecord.
type StepState struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	InstanceID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_instance_step" json:"instance_id"`
	StepNumber int       `gorm:"not null;uniqueIndex:idx_instance_step" json:"step_number"`

	Status    StepStatus `gorm:"size:20;default:'not_started'" json:"status"`
	AgentID   *uuid.UUID `gorm:"type:uuid" json:"agent_id"`
	AgentName string     `gorm:"size:200" json:"agent_name"`

	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`

	Data string `gorm:"type:text" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *StepState) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// DataValues decodes the stored JSON data. A missing or malformed column
// yields an empty map.
func (s *StepState) DataValues() map[string]interface{} {
	values := make(map[string]interface{})
	if s.Data != "" {
		_ = json.Unmarshal([]byte(s.Data), &values)
	}
	return values
}

// SetDataValues encodes values into the stored JSON column.
func (s *StepState) SetDataValues(values map[string]interface{}) error {
	if values == nil {
		values = make(map[string]interface{})
	}
	data, err := json.Marshal(values)
	if err != nil {
		return err
	}
	s.Data = string(data)
	return nil
}

// StepAuditAction identifies the mutation recorded by a StepAuditRecord.
type StepAuditAction string

const (
	AuditInstanceCreated StepAuditAction = "instance_created"
	AuditStepSaved       StepAuditAction = "step_saved"
	AuditStepCompleted   StepAuditAction = "step_completed"
	AuditStepSkipped     StepAuditAction = "step_skipped"
	AuditStepReopened    StepAuditAction = "step_reopened"
	AuditStatusChanged   StepAuditAction = "status_changed"
)

// StepAuditRecord is the append-only trail of committed transitions. Records
// are written inside the same transaction as the step mutation and are never
// updated or deleted.
type StepAuditRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	InstanceID uuid.UUID `gorm:"type:uuid;index;not null" json:"instance_id"`
	StepNumber int       `gorm:"index" json:"step_number"`

	Action     StepAuditAction `gorm:"size:30;not null" json:"action"`
	FromStatus StepStatus      `gorm:"size:20" json:"from_status"`
	ToStatus   StepStatus      `gorm:"size:20" json:"to_status"`

	PerformedByID   uuid.UUID `gorm:"type:uuid;index" json:"performed_by_id"`
	PerformedByName string    `gorm:"size:200" json:"performed_by_name"`
	PerformedAt     time.Time `gorm:"index" json:"performed_at"`

	CreatedAt time.Time `json:"created_at"`
}

func (r *StepAuditRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Request/Response types

type WorkflowCreateRequest struct {
	TicketID           string `json:"ticket_id" validate:"required,uuid"`
	DeviceSerialNumber string `json:"device_serial_number" validate:"required,min=1,max=100"`
}

type SaveStepRequest struct {
	Data          map[string]interface{} `json:"data" validate:"required"`
	MarkCompleted bool                   `json:"mark_completed"`
}

type InstanceStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=in_progress on_hold cancelled"`
}

type InstanceFilter struct {
	Status             string     `query:"status"`
	DeviceSerialNumber string     `query:"device_serial_number"`
	TicketID           *uuid.UUID `query:"ticket_id"`
	CompanyID          *uuid.UUID `query:"company_id"`
	Page               int        `query:"page"`
	Limit              int        `query:"limit"`
}

type StepStateResponse struct {
	ID          uuid.UUID              `json:"id"`
	StepNumber  int                    `json:"step_number"`
	Name        string                 `json:"name,omitempty"`
	IsOptional  bool                   `json:"is_optional"`
	Status      StepStatus             `json:"status"`
	AgentID     *uuid.UUID             `json:"agent_id"`
	AgentName   string                 `json:"agent_name,omitempty"`
	StartedAt   *time.Time             `json:"started_at"`
	CompletedAt *time.Time             `json:"completed_at"`
	Data        map[string]interface{} `json:"data"`
}

type WorkflowInstanceResponse struct {
	ID                 uuid.UUID           `json:"id"`
	WorkflowNumber     string              `json:"workflow_number"`
	TicketID           uuid.UUID           `json:"ticket_id"`
	DeviceSerialNumber string              `json:"device_serial_number"`
	CurrentStep        int                 `json:"current_step"`
	Status             InstanceStatus      `json:"status"`
	Steps              []StepStateResponse `json:"steps,omitempty"`
	CreatedBy          *AgentResponse      `json:"created_by,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

type StepAuditResponse struct {
	ID              uuid.UUID       `json:"id"`
	StepNumber      int             `json:"step_number"`
	Action          StepAuditAction `json:"action"`
	FromStatus      StepStatus      `json:"from_status,omitempty"`
	ToStatus        StepStatus      `json:"to_status,omitempty"`
	PerformedByID   uuid.UUID       `json:"performed_by_id"`
	PerformedByName string          `json:"performed_by_name,omitempty"`
	PerformedAt     time.Time       `json:"performed_at"`
}

func ToStepStateResponse(s *StepState) StepStateResponse {
	return StepStateResponse{
		ID:          s.ID,
		StepNumber:  s.StepNumber,
		Status:      s.Status,
		AgentID:     s.AgentID,
		AgentName:   s.AgentName,
		StartedAt:   s.StartedAt,
		CompletedAt: s.CompletedAt,
		Data:        s.DataValues(),
	}
}

func ToWorkflowInstanceResponse(w *WorkflowInstance) WorkflowInstanceResponse {
	resp := WorkflowInstanceResponse{
		ID:                 w.ID,
		WorkflowNumber:     w.WorkflowNumber,
		TicketID:           w.TicketID,
		DeviceSerialNumber: w.DeviceSerialNumber,
		CurrentStep:        w.CurrentStep,
		Status:             w.Status,
		CreatedAt:          w.CreatedAt,
		UpdatedAt:          w.UpdatedAt,
	}
	for i := range w.Steps {
		resp.Steps = append(resp.Steps, ToStepStateResponse(&w.Steps[i]))
	}
	if w.CreatedBy != nil {
		agentResp := ToAgentResponse(w.CreatedBy)
		resp.CreatedBy = &agentResp
	}
	return resp
}

func ToStepAuditResponse(r *StepAuditRecord) StepAuditResponse {
	return StepAuditResponse{
		ID:              r.ID,
		StepNumber:      r.StepNumber,
		Action:          r.Action,
		FromStatus:      r.FromStatus,
		ToStatus:        r.ToStatus,
		PerformedByID:   r.PerformedByID,
		PerformedByName: r.PerformedByName,
		PerformedAt:     r.PerformedAt,
	}
}

// WorkflowChangeEvent is published to the notification channel after every
// committed state transition.
type WorkflowChangeEvent struct {
	InstanceID  uuid.UUID                 `json:"instance_id"`
	TicketID    uuid.UUID                 `json:"ticket_id"`
	UpdatedStep int                       `json:"updated_step"`
	UpdatedBy   uuid.UUID                 `json:"updated_by"`
	UpdatedAt   time.Time                 `json:"updated_at"`
	Instance    *WorkflowInstanceResponse `json:"instance"`
}
