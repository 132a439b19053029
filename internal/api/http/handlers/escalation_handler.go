package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/deskops/helpdesk-sla/internal/api/dto"
	"github.com/deskops/helpdesk-sla/internal/domain"
	"github.com/deskops/helpdesk-sla/internal/service"
)

// EscalationHandler exposes breach escalation endpoints.
type EscalationHandler struct {
	escalations *service.EscalationService
}

// NewEscalationHandler constructs handler.
func NewEscalationHandler(escalations *service.EscalationService) *EscalationHandler {
	return &EscalationHandler{escalations: escalations}
}

// List handles GET /sla/escalations. Only open notifications are returned
// unless open=false is passed.
func (h *EscalationHandler) List(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	limit, offset := parsePage(c, 50)
	list, err := h.escalations.List(c.UserContext(), staff, parseBoolQuery(c, "open", true), limit, offset)
	if err != nil {
		return err
	}
	resp := make([]dto.EscalationResponse, 0, len(list))
	for i := range list {
		resp = append(resp, escalationResponse(&list[i]))
	}
	return c.JSON(fiber.Map{"data": resp})
}

// Resolve handles POST /sla/escalations/:id/resolve.
func (h *EscalationHandler) Resolve(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	n, err := h.escalations.Resolve(c.UserContext(), staff, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": escalationResponse(n)})
}

// Scan handles POST /sla/scan and runs the breach scanner immediately.
func (h *EscalationHandler) Scan(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	result, err := h.escalations.Scan(c.UserContext(), staff)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ScanResponse{
		Scanned: result.Scanned,
		Created: result.Created,
		Skipped: result.Skipped,
		Frozen:  result.Frozen,
		Failed:  result.Failed,
	}})
}

func escalationResponse(n *domain.EscalationNotification) dto.EscalationResponse {
	return dto.EscalationResponse{
		ID:             n.ID,
		IdempotencyKey: n.IdempotencyKey,
		StatusID:       n.StatusID,
		TicketID:       n.TicketID,
		PolicyID:       n.PolicyID,
		RecipientID:    n.RecipientID,
		Summary:        n.Summary,
		Deadline:       n.Deadline,
		ResolvedAt:     n.ResolvedAt,
		CreatedAt:      n.CreatedAt,
	}
}
