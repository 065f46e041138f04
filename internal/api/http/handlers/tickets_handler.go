package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bot/internal/api/dto"
	"github.com/spec-kit/ticket-bot/internal/auth"
	"github.com/spec-kit/ticket-bot/internal/domain"
	"github.com/spec-kit/ticket-bot/internal/service"
	apperrors "github.com/spec-kit/ticket-bot/pkg/util/errorutil"
)

// TicketEngine is the lifecycle engine surface used by the ops API.
type TicketEngine interface {
	CreateTicket(ctx context.Context, category domain.Category, ownerID string) (*service.Result, error)
	CloseTicket(ctx context.Context, id domain.TicketID, actorID string) (*service.Result, error)
	ExportTicket(ctx context.Context, id domain.TicketID, actorID string) (*service.Result, error)
	Ticket(ctx context.Context, id domain.TicketID) (*domain.Ticket, error)
	History(ctx context.Context, id domain.TicketID) ([]domain.TicketHistory, error)
}

// EffectRunner executes platform effects.
type EffectRunner interface {
	Execute(ctx context.Context, effects []domain.Effect) (*domain.Ticket, error)
}

// TicketsHandler manages operator ticket endpoints.
type TicketsHandler struct {
	engine  TicketEngine
	effects EffectRunner
	logger  *zap.Logger
}

// NewTicketsHandler constructs handler. effects may be nil when no Discord session runs.
func NewTicketsHandler(engine TicketEngine, effects EffectRunner, logger *zap.Logger) *TicketsHandler {
	return &TicketsHandler{engine: engine, effects: effects, logger: logger}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	category, ok := domain.ParseCategory(req.Category)
	if !ok {
		return apperrors.NewValidationError("unknown category", map[string]any{"category": req.Category})
	}
	if req.OwnerID == "" {
		return apperrors.NewValidationError("owner_id required", nil)
	}
	res, err := h.engine.CreateTicket(c.UserContext(), category, req.OwnerID)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": h.apply(c.UserContext(), res)})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	id, err := ticketIDParam(c)
	if err != nil {
		return err
	}
	ticket, err := h.engine.Ticket(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketSummary(ticket)})
}

// History GET /tickets/:id/history.
func (h *TicketsHandler) History(c *fiber.Ctx) error {
	id, err := ticketIDParam(c)
	if err != nil {
		return err
	}
	entries, err := h.engine.History(c.UserContext(), id)
	if err != nil {
		return err
	}
	items := make([]dto.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		items = append(items, dto.HistoryEntry{
			ID:        e.ID,
			ActorID:   e.ActorID,
			Action:    e.Action,
			FromState: e.FromState,
			ToState:   e.ToState,
			CreatedAt: e.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// CloseTicket POST /tickets/:id/close.
func (h *TicketsHandler) CloseTicket(c *fiber.Ctx) error {
	return h.act(c, h.engine.CloseTicket)
}

// ExportTicket POST /tickets/:id/export.
func (h *TicketsHandler) ExportTicket(c *fiber.Ctx) error {
	return h.act(c, h.engine.ExportTicket)
}

func (h *TicketsHandler) act(c *fiber.Ctx, run func(context.Context, domain.TicketID, string) (*service.Result, error)) error {
	op, ok := auth.OperatorFromContext(c)
	if !ok {
		return apperrors.NewUnauthenticated("operator required")
	}
	id, err := ticketIDParam(c)
	if err != nil {
		return err
	}
	res, err := run(c.UserContext(), id, op.ActorID())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.apply(c.UserContext(), res)})
}

// apply runs the result's effects when a runner is configured and builds the response.
func (h *TicketsHandler) apply(ctx context.Context, res *service.Result) dto.TicketOperationResponse {
	ticket := res.Ticket
	applied := false
	if h.effects != nil && len(res.Effects) > 0 {
		updated, err := h.effects.Execute(ctx, res.Effects)
		if err != nil {
			h.logger.Warn("ticket effects incomplete", zap.String("ticket", res.Ticket.ID.String()), zap.Error(err))
		}
		if updated != nil {
			ticket = updated
		}
		applied = err == nil
	}
	return dto.TicketOperationResponse{
		Ticket:         dto.NewTicketSummary(ticket),
		Changed:        res.Changed,
		Effects:        dto.NewEffectSummaries(res.Effects),
		EffectsApplied: applied,
	}
}

func ticketIDParam(c *fiber.Ctx) (domain.TicketID, error) {
	id, err := domain.ParseTicketID(c.Params("id"))
	if err != nil {
		return domain.TicketID{}, apperrors.NewValidationError("invalid ticket id", map[string]any{"id": c.Params("id")})
	}
	return id, nil
}
