package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-bot/internal/api/dto"
	"github.com/spec-kit/ticket-bot/internal/auth"
	apperrors "github.com/spec-kit/ticket-bot/pkg/util/errorutil"
)

// OperatorHandler issues ops API tokens.
type OperatorHandler struct {
	authenticator *auth.OperatorAuthenticator
	tokens        *auth.TokenManager
}

// NewOperatorHandler constructs handler.
func NewOperatorHandler(authenticator *auth.OperatorAuthenticator, tokens *auth.TokenManager) *OperatorHandler {
	return &OperatorHandler{authenticator: authenticator, tokens: tokens}
}

// Login handles POST /auth/login.
func (h *OperatorHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		return apperrors.NewValidationError("username and password required", nil)
	}

	op, err := h.authenticator.Authenticate(req.Username, req.Password)
	if err != nil {
		return apperrors.NewUnauthenticated("invalid credentials")
	}
	token, exp, err := h.tokens.GenerateToken(op)
	if err != nil {
		return apperrors.NewInternalError(err)
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"operator": fiber.Map{"username": op.Username},
			"auth":     dto.AuthResponse{Token: token, ExpiresAt: exp},
		},
	})
}
