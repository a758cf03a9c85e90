package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AgentRole is the coarse role an agent holds in the service organisation.
type AgentRole string

const (
	RoleAgent      AgentRole = "agent"
	RoleTechnician AgentRole = "technician"
	RoleQuality    AgentRole = "quality"
	RoleAdmin      AgentRole = "admin"
)

type Agent struct {
	ID          uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	Email       string         `gorm:"uniqueIndex;not null" json:"email"`
	Username    string         `gorm:"uniqueIndex;not null" json:"username"`
	Password    string         `gorm:"not null" json:"-"`
	FirstName   string         `gorm:"size:100" json:"first_name"`
	LastName    string         `gorm:"size:100" json:"last_name"`
	Phone       string         `gorm:"size:20" json:"phone"`
	Avatar      string         `gorm:"size:500" json:"avatar"`
	Role        AgentRole      `gorm:"size:20;default:'agent'" json:"role"`
	IsActive    bool           `gorm:"default:true" json:"is_active"`
	LastLoginAt *time.Time     `json:"last_login_at"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (a *Agent) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// DisplayName returns the agent's full name, falling back to the username.
func (a *Agent) DisplayName() string {
	if a.FirstName == "" && a.LastName == "" {
		return a.Username
	}
	if a.LastName == "" {
		return a.FirstName
	}
	return a.FirstName + " " + a.LastName
}

// HasRole checks whether the agent holds one of the given roles. Admins pass
// every check.
func (a *Agent) HasRole(roles ...AgentRole) bool {
	if a.Role == RoleAdmin {
		return true
	}
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}

type AgentRegisterRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Username  string `json:"username" validate:"required,min=3,max=50"`
	Password  string `json:"password" validate:"required,min=6"`
	FirstName string `json:"first_name" validate:"max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
	Phone     string `json:"phone" validate:"max=20"`
	Role      string `json:"role" validate:"omitempty,oneof=agent technician quality admin"`
}

type AgentLoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type AgentUpdateRequest struct {
	FirstName string  `json:"first_name" validate:"max=100"`
	LastName  string  `json:"last_name" validate:"max=100"`
	Phone     string  `json:"phone" validate:"max=20"`
	Role      *string `json:"role" validate:"omitempty,oneof=agent technician quality admin"`
	IsActive  *bool   `json:"is_active"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=6"`
}

type AgentResponse struct {
	ID          uuid.UUID  `json:"id"`
	Email       string     `json:"email"`
	Username    string     `json:"username"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	Phone       string     `json:"phone"`
	Avatar      string     `json:"avatar"`
	Role        string     `json:"role"`
	IsActive    bool       `json:"is_active"`
	LastLoginAt *time.Time `json:"last_login_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

type AuthResponse struct {
	Agent     AgentResponse `json:"agent"`
	Token     string        `json:"token"`
	ExpiresIn int64         `json:"expires_in,omitempty"`
}

func ToAgentResponse(agent *Agent) AgentResponse {
	return AgentResponse{
		ID:          agent.ID,
		Email:       agent.Email,
		Username:    agent.Username,
		FirstName:   agent.FirstName,
		LastName:    agent.LastName,
		Phone:       agent.Phone,
		Avatar:      agent.Avatar,
		Role:        string(agent.Role),
		IsActive:    agent.IsActive,
		LastLoginAt: agent.LastLoginAt,
		CreatedAt:   agent.CreatedAt,
	}
}
