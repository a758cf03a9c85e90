package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/servicehub/backend/internal/models"
	"github.com/servicehub/backend/internal/repository"
	"gorm.io/gorm"
)

type TicketService interface {
	CreateTicket(ctx context.Context, req *models.TicketCreateRequest) (*models.TicketResponse, error)
	GetTicket(ctx context.Context, id uuid.UUID) (*models.TicketResponse, error)
	ListTickets(ctx context.Context, filter *models.TicketFilter) ([]models.TicketResponse, int64, error)
	UpdateTicket(ctx context.Context, id uuid.UUID, req *models.TicketUpdateRequest) (*models.TicketResponse, error)
	DeleteTicket(ctx context.Context, id uuid.UUID) error
}

type ticketService struct {
	repo repository.TicketRepository
}

func NewTicketService(repo repository.TicketRepository) TicketService {
	return &ticketService{repo: repo}
}

func (s *ticketService) CreateTicket(ctx context.Context, req *models.TicketCreateRequest) (*models.TicketResponse, error) {
	customerID, err := uuid.Parse(req.CustomerID)
	if err != nil {
		return nil, models.NewValidationError(map[string]string{"customer_id": "must be a valid uuid"})
	}
	customer, err := s.repo.FindCustomerByID(ctx, customerID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, models.NewNotFoundError("customer %s not found", customerID)
		}
		return nil, err
	}

	number, err := s.repo.GenerateTicketNumber(ctx)
	if err != nil {
		return nil, err
	}

	channel := req.Channel
	if channel == "" {
		channel = "chat"
	}

	ticket := &models.Ticket{
		TicketNumber: number,
		Subject:      req.Subject,
		Description:  req.Description,
		Status:       "open",
		Channel:      channel,
		CustomerID:   customerID,
		CompanyID:    customer.CompanyID,
	}
	if req.CompanyID != nil {
		companyID, err := uuid.Parse(*req.CompanyID)
		if err != nil {
			return nil, models.NewValidationError(map[string]string{"company_id": "must be a valid uuid"})
		}
		ticket.CompanyID = &companyID
	}
	if req.AssigneeID != nil {
		assigneeID, err := uuid.Parse(*req.AssigneeID)
		if err != nil {
			return nil, models.NewValidationError(map[string]string{"assignee_id": "must be a valid uuid"})
		}
		ticket.AssigneeID = &assigneeID
	}

	if err := s.repo.Create(ctx, ticket); err != nil {
		return nil, err
	}

	return s.GetTicket(ctx, ticket.ID)
}

func (s *ticketService) GetTicket(ctx context.Context, id uuid.UUID) (*models.TicketResponse, error) {
	ticket, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, models.NewNotFoundError("ticket %s not found", id)
		}
		return nil, err
	}
	resp := models.ToTicketResponse(ticket)
	return &resp, nil
}

func (s *ticketService) ListTickets(ctx context.Context, filter *models.TicketFilter) ([]models.TicketResponse, int64, error) {
	tickets, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	responses := make([]models.TicketResponse, 0, len(tickets))
	for i := range tickets {
		responses = append(responses, models.ToTicketResponse(&tickets[i]))
	}
	return responses, total, nil
}

func (s *ticketService) UpdateTicket(ctx context.Context, id uuid.UUID, req *models.TicketUpdateRequest) (*models.TicketResponse, error) {
	ticket, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, models.NewNotFoundError("ticket %s not found", id)
		}
		return nil, err
	}

	if req.Subject != "" {
		ticket.Subject = req.Subject
	}
	if req.Description != "" {
		ticket.Description = req.Description
	}
	if req.Status != nil {
		ticket.Status = *req.Status
	}
	if req.AssigneeID != nil {
		assigneeID, err := uuid.Parse(*req.AssigneeID)
		if err != nil {
			return nil, models.NewValidationError(map[string]string{"assignee_id": "must be a valid uuid"})
		}
		ticket.AssigneeID = &assigneeID
	}

	if err := s.repo.Update(ctx, ticket); err != nil {
		return nil, err
	}
	return s.GetTicket(ctx, ticket.ID)
}

func (s *ticketService) DeleteTicket(ctx context.Context, id uuid.UUID) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if err == gorm.ErrRecordNotFound {
			return models.NewNotFoundError("ticket %s not found", id)
		}
		return err
	}
	return s.repo.Delete(ctx, id)
}
