package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/topcity/ticket-service/internal/api/dto"
	"github.com/topcity/ticket-service/internal/auth"
	"github.com/topcity/ticket-service/internal/service"
	apperrors "github.com/topcity/ticket-service/pkg/util"
)

// TicketsHandler manages owner and seller ticket endpoints.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	tickets, err := h.service.ListOwnerTickets(c.UserContext(), principal.SubjectID, principal.Email)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponses(tickets)})
}

// QRCode GET /tickets/:code/qr.
func (h *TicketsHandler) QRCode(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	png, err := h.service.QRCode(c.UserContext(), c.Params("code"), principal.SubjectID, principal.Email, principal.Role.Staff())
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderCacheControl, "private, max-age=3600")
	c.Type("png")
	return c.Send(png)
}

// CancelTicket POST /tickets/:id/cancel.
func (h *TicketsHandler) CancelTicket(c *fiber.Ctx) error {
	var req dto.CancelTicketRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	ticket, err := h.service.CancelTicket(c.UserContext(), c.Params("id"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(*ticket)})
}
