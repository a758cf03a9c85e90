package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/servicehub/backend/internal/database"
	"github.com/servicehub/backend/internal/models"
	"github.com/servicehub/backend/internal/repository"
	"github.com/servicehub/backend/pkg/utils"
)

type AuthMiddleware struct {
	jwtManager   *utils.JWTManager
	sessionStore *database.SessionStore
	agentRepo    repository.AgentRepository
}

func NewAuthMiddleware(jwtManager *utils.JWTManager, sessionStore *database.SessionStore, agentRepo repository.AgentRepository) *AuthMiddleware {
	return &AuthMiddleware{
		jwtManager:   jwtManager,
		sessionStore: sessionStore,
		agentRepo:    agentRepo,
	}
}

func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var token string

		authHeader := c.Get("Authorization")
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				token = parts[1]
			}
		}

		// Query parameter fallback for file downloads.
		if token == "" {
			token = c.Query("token")
		}

		if token == "" {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Missing authorization token")
		}

		isBlacklisted, err := m.sessionStore.IsTokenBlacklisted(c.Context(), token)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to validate token")
		}
		if isBlacklisted {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Token has been revoked")
		}

		claims, err := m.jwtManager.ValidateToken(token)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid or expired token")
		}

		// A valid token without a live session means the agent logged out.
		var session map[string]interface{}
		if err := m.sessionStore.GetAgentSession(c.Context(), claims.AgentID.String(), &session); err != nil {
			if errors.Is(err, redis.Nil) {
				return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Session has expired")
			}
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to validate session")
		}

		c.Locals("agent_id", claims.AgentID)
		c.Locals("email", claims.Email)
		c.Locals("role", claims.Role)
		c.Locals("token", token)

		return c.Next()
	}
}

// RequireRole lets the request through when the authenticated agent holds one
// of the given roles. Admins always pass.
func (m *AuthMiddleware) RequireRole(roles ...models.AgentRole) fiber.Handler {
	return func(c *fiber.Ctx) error {
		agentID, ok := c.Locals("agent_id").(uuid.UUID)
		if !ok {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Agent not authenticated")
		}

		agent, err := m.agentRepo.FindByID(c.Context(), agentID)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusForbidden, "Agent not found")
		}
		if !agent.IsActive {
			return utils.ErrorResponse(c, fiber.StatusForbidden, "Account is deactivated")
		}

		if agent.HasRole(roles...) {
			c.Locals("agent", agent)
			return c.Next()
		}
		return utils.ErrorResponse(c, fiber.StatusForbidden, "Insufficient permissions")
	}
}
