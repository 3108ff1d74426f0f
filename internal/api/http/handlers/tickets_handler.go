package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/vendorhub/ticket-sync/internal/api/dto"
	"github.com/vendorhub/ticket-sync/internal/auth"
	"github.com/vendorhub/ticket-sync/internal/domain"
	"github.com/vendorhub/ticket-sync/internal/service"
	apperrors "github.com/vendorhub/ticket-sync/pkg/util/errorutil"
)

// TicketsHandler serves the ticket REST endpoints.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.CreateTicket(c.UserContext(), actor, service.TicketCreateInput{
		Subject:     req.Subject,
		Type:        req.Type,
		Priority:    req.Priority,
		Description: req.Description,
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, dto.FromTicket(*ticket))
}

// ListTickets GET /tickets?status=&search=&page=&limit=.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	query := parseTicketListQuery(c)
	page, err := h.service.ListTickets(c.UserContext(), actor, service.TicketListInput{
		Status: query.Status,
		Search: query.Search,
		Page:   query.Page,
		Limit:  query.Limit,
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, dto.FromPage(page))
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	detail, err := h.service.GetTicket(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, dto.FromDetail(*detail))
}

// AddMessage POST /tickets/:id/messages.
func (h *TicketsHandler) AddMessage(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	var req dto.CreateMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	msg, err := h.service.AddMessage(c.UserContext(), actor, c.Params("id"), req.Message, req.ClientMessageID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, dto.FromMessage(*msg))
}

// UpdateStatus PATCH /tickets/:id/status.
func (h *TicketsHandler) UpdateStatus(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	var req dto.UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.UpdateStatus(c.UserContext(), actor, c.Params("id"), req.Status)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, dto.FromTicket(*ticket))
}

func parseTicketListQuery(c *fiber.Ctx) dto.TicketListQuery {
	query := dto.TicketListQuery{
		Status: domain.ParseStatusBucket(c.Query("status")),
		Search: c.Query("search"),
	}
	if v, err := strconv.Atoi(c.Query("page")); err == nil {
		query.Page = v
	}
	if v, err := strconv.Atoi(c.Query("limit")); err == nil {
		query.Limit = v
	}
	return query
}

func actorFromContext(c *fiber.Ctx) (domain.Session, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.SubjectID == "" {
		return domain.Session{}, apperrors.NewUnauthorized("authentication required")
	}
	return domain.Session{SubjectID: principal.SubjectID, Role: principal.Role}, nil
}

func respond(c *fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(fiber.Map{"success": true, "data": data})
}
