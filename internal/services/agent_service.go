package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/servicehub/backend/internal/database"
	"github.com/servicehub/backend/internal/models"
	"github.com/servicehub/backend/internal/repository"
	"github.com/servicehub/backend/pkg/utils"
	"gorm.io/gorm"
)

type AgentService interface {
	Register(ctx context.Context, req *models.AgentRegisterRequest) (*models.AuthResponse, error)
	Login(ctx context.Context, req *models.AgentLoginRequest) (*models.AuthResponse, error)
	Logout(ctx context.Context, agentID uuid.UUID, token string) error
	GetProfile(ctx context.Context, agentID uuid.UUID) (*models.AgentResponse, error)
	UpdateProfile(ctx context.Context, agentID uuid.UUID, req *models.AgentUpdateRequest) (*models.AgentResponse, error)
	ChangePassword(ctx context.Context, agentID uuid.UUID, req *models.ChangePasswordRequest) error
	ListAgents(ctx context.Context, page, limit int) ([]models.AgentResponse, int64, error)
	AdminUpdateAgent(ctx context.Context, agentID uuid.UUID, req *models.AgentUpdateRequest) (*models.AgentResponse, error)
}

type agentService struct {
	repo         repository.AgentRepository
	jwtManager   *utils.JWTManager
	sessionStore *database.SessionStore
}

func NewAgentService(repo repository.AgentRepository, jwtManager *utils.JWTManager, sessionStore *database.SessionStore) AgentService {
	return &agentService{
		repo:         repo,
		jwtManager:   jwtManager,
		sessionStore: sessionStore,
	}
}

func (s *agentService) Register(ctx context.Context, req *models.AgentRegisterRequest) (*models.AuthResponse, error) {
	if _, err := s.repo.FindByEmail(ctx, req.Email); err == nil {
		return nil, errors.New("email already registered")
	}
	if _, err := s.repo.FindByUsername(ctx, req.Username); err == nil {
		return nil, errors.New("username already taken")
	}

	hashedPassword, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	role := models.RoleAgent
	if req.Role != "" {
		role = models.AgentRole(req.Role)
	}

	agent := &models.Agent{
		Email:     req.Email,
		Username:  req.Username,
		Password:  hashedPassword,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Role:      role,
		IsActive:  true,
	}
	if err := s.repo.Create(ctx, agent); err != nil {
		return nil, err
	}

	return s.issueToken(ctx, agent)
}

func (s *agentService) Login(ctx context.Context, req *models.AgentLoginRequest) (*models.AuthResponse, error) {
	agent, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, errors.New("invalid credentials")
	}
	if !agent.IsActive {
		return nil, errors.New("account is deactivated")
	}
	if !utils.CheckPassword(req.Password, agent.Password) {
		return nil, errors.New("invalid credentials")
	}

	if err := s.repo.UpdateLastLogin(ctx, agent.ID); err != nil {
		return nil, err
	}

	return s.issueToken(ctx, agent)
}

func (s *agentService) Logout(ctx context.Context, agentID uuid.UUID, token string) error {
	if err := s.sessionStore.DeleteAgentSession(ctx, agentID.String()); err != nil {
		return err
	}
	return s.sessionStore.BlacklistToken(ctx, token, 24*time.Hour)
}

func (s *agentService) GetProfile(ctx context.Context, agentID uuid.UUID) (*models.AgentResponse, error) {
	agent, err := s.findAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	resp := models.ToAgentResponse(agent)
	return &resp, nil
}

func (s *agentService) UpdateProfile(ctx context.Context, agentID uuid.UUID, req *models.AgentUpdateRequest) (*models.AgentResponse, error) {
	agent, err := s.findAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}

	if req.FirstName != "" {
		agent.FirstName = req.FirstName
	}
	if req.LastName != "" {
		agent.LastName = req.LastName
	}
	if req.Phone != "" {
		agent.Phone = req.Phone
	}

	if err := s.repo.Update(ctx, agent); err != nil {
		return nil, err
	}
	resp := models.ToAgentResponse(agent)
	return &resp, nil
}

func (s *agentService) ChangePassword(ctx context.Context, agentID uuid.UUID, req *models.ChangePasswordRequest) error {
	agent, err := s.findAgent(ctx, agentID)
	if err != nil {
		return err
	}
	if !utils.CheckPassword(req.OldPassword, agent.Password) {
		return errors.New("current password is incorrect")
	}

	hashedPassword, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return err
	}
	agent.Password = hashedPassword
	return s.repo.Update(ctx, agent)
}

func (s *agentService) ListAgents(ctx context.Context, page, limit int) ([]models.AgentResponse, int64, error) {
	agents, total, err := s.repo.List(ctx, page, limit)
	if err != nil {
		return nil, 0, err
	}
	responses := make([]models.AgentResponse, 0, len(agents))
	for i := range agents {
		responses = append(responses, models.ToAgentResponse(&agents[i]))
	}
	return responses, total, nil
}

func (s *agentService) AdminUpdateAgent(ctx context.Context, agentID uuid.UUID, req *models.AgentUpdateRequest) (*models.AgentResponse, error) {
	agent, err := s.findAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}

	if req.FirstName != "" {
		agent.FirstName = req.FirstName
	}
	if req.LastName != "" {
		agent.LastName = req.LastName
	}
	if req.Phone != "" {
		agent.Phone = req.Phone
	}
	if req.Role != nil {
		agent.Role = models.AgentRole(*req.Role)
	}
	if req.IsActive != nil {
		agent.IsActive = *req.IsActive
	}

	if err := s.repo.Update(ctx, agent); err != nil {
		return nil, err
	}
	resp := models.ToAgentResponse(agent)
	return &resp, nil
}

func (s *agentService) findAgent(ctx context.Context, id uuid.UUID) (*models.Agent, error) {
	agent, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, models.NewNotFoundError("agent %s not found", id)
		}
		return nil, err
	}
	return agent, nil
}

func (s *agentService) issueToken(ctx context.Context, agent *models.Agent) (*models.AuthResponse, error) {
	token, err := s.jwtManager.GenerateToken(agent.ID, agent.Email, string(agent.Role))
	if err != nil {
		return nil, err
	}

	sessionData := map[string]interface{}{
		"agent_id": agent.ID.String(),
		"email":    agent.Email,
		"role":     string(agent.Role),
	}
	if err := s.sessionStore.SetAgentSession(ctx, agent.ID.String(), sessionData, 24*time.Hour); err != nil {
		return nil, err
	}

	return &models.AuthResponse{
		Agent:     models.ToAgentResponse(agent),
		Token:     token,
		ExpiresIn: s.jwtManager.ExpiresIn(),
	}, nil
}
