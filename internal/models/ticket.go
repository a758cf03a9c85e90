package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Company groups customers for the reporting views.
type Company struct {
	ID        uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	Name      string         `gorm:"size:200;not null;uniqueIndex" json:"name"`
	VatNumber string         `gorm:"size:50" json:"vat_number"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (c *Company) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Customer is the person who opened the conversation.
type Customer struct {
	ID        uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	Email     string         `gorm:"size:200;index" json:"email"`
	Name      string         `gorm:"size:200;not null" json:"name"`
	Phone     string         `gorm:"size:50" json:"phone"`
	CompanyID *uuid.UUID     `gorm:"type:uuid;index" json:"company_id"`
	Company   *Company       `gorm:"foreignKey:CompanyID" json:"company,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (c *Customer) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Ticket is the support conversation a service workflow hangs off. The
// workflow engine treats ticket ids as opaque; this record is the platform
// glue around it.
type Ticket struct {
	ID           uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	TicketNumber string    `gorm:"size:50;uniqueIndex;not null" json:"ticket_number"`
	Subject      string    `gorm:"size:200;not null" json:"subject"`
	Description  string    `gorm:"type:text" json:"description"`
	Status       string    `gorm:"size:20;default:'open';index" json:"status"` // open, pending, resolved, closed
	Channel      string    `gorm:"size:50;default:'chat'" json:"channel"`

	CustomerID uuid.UUID  `gorm:"type:uuid;index;not null" json:"customer_id"`
	Customer   *Customer  `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	CompanyID  *uuid.UUID `gorm:"type:uuid;index" json:"company_id"`
	Company    *Company   `gorm:"foreignKey:CompanyID" json:"company,omitempty"`

	AssigneeID *uuid.UUID `gorm:"type:uuid;index" json:"assignee_id"`
	Assignee   *Agent     `gorm:"foreignKey:AssigneeID" json:"assignee,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (t *Ticket) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// Request/Response types

type TicketCreateRequest struct {
	Subject     string  `json:"subject" validate:"required,min=3,max=200"`
	Description string  `json:"description"`
	Channel     string  `json:"channel" validate:"omitempty,max=50"`
	CustomerID  string  `json:"customer_id" validate:"required,uuid"`
	CompanyID   *string `json:"company_id" validate:"omitempty,uuid"`
	AssigneeID  *string `json:"assignee_id" validate:"omitempty,uuid"`
}

type TicketUpdateRequest struct {
	Subject     string  `json:"subject" validate:"omitempty,min=3,max=200"`
	Description string  `json:"description"`
	Status      *string `json:"status" validate:"omitempty,oneof=open pending resolved closed"`
	AssigneeID  *string `json:"assignee_id" validate:"omitempty,uuid"`
}

type TicketFilter struct {
	Status     string     `query:"status"`
	CustomerID *uuid.UUID `query:"customer_id"`
	CompanyID  *uuid.UUID `query:"company_id"`
	AssigneeID *uuid.UUID `query:"assignee_id"`
	Search     string     `query:"search"`
	Page       int        `query:"page"`
	Limit      int        `query:"limit"`
}

type TicketResponse struct {
	ID           uuid.UUID      `json:"id"`
	TicketNumber string         `json:"ticket_number"`
	Subject      string         `json:"subject"`
	Description  string         `json:"description"`
	Status       string         `json:"status"`
	Channel      string         `json:"channel"`
	CustomerID   uuid.UUID      `json:"customer_id"`
	Customer     *Customer      `json:"customer,omitempty"`
	CompanyID    *uuid.UUID     `json:"company_id"`
	Company      *Company       `json:"company,omitempty"`
	AssigneeID   *uuid.UUID     `json:"assignee_id"`
	Assignee     *AgentResponse `json:"assignee,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func ToTicketResponse(t *Ticket) TicketResponse {
	resp := TicketResponse{
		ID:           t.ID,
		TicketNumber: t.TicketNumber,
		Subject:      t.Subject,
		Description:  t.Description,
		Status:       t.Status,
		Channel:      t.Channel,
		CustomerID:   t.CustomerID,
		Customer:     t.Customer,
		CompanyID:    t.CompanyID,
		Company:      t.Company,
		AssigneeID:   t.AssigneeID,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
	if t.Assignee != nil {
		agentResp := ToAgentResponse(t.Assignee)
		resp.Assignee = &agentResp
	}
	return resp
}
