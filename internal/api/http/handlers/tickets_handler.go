package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/deskops/helpdesk-sla/internal/api/dto"
	"github.com/deskops/helpdesk-sla/internal/auth"
	"github.com/deskops/helpdesk-sla/internal/domain"
	"github.com/deskops/helpdesk-sla/internal/service"
	apperrors "github.com/deskops/helpdesk-sla/pkg/util/errorutil"
)

// TicketsHandler exposes staff ticket endpoints.
type TicketsHandler struct {
	tickets    *service.TicketService
	assignment *service.AssignmentService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(tickets *service.TicketService, assignment *service.AssignmentService) *TicketsHandler {
	return &TicketsHandler{tickets: tickets, assignment: assignment}
}

// Create handles POST /tickets.
func (h *TicketsHandler) Create(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	view, err := h.tickets.CreateTicket(c.UserContext(), staff, service.TicketCreateInput{
		TeamID:      req.TeamID,
		StageID:     req.StageID,
		CustomerID:  req.CustomerID,
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		Tags:        req.Tags,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketDetail(view)})
}

// List handles GET /tickets.
func (h *TicketsHandler) List(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	tickets, err := h.tickets.ListTickets(c.UserContext(), staff, parseTicketFilter(c))
	if err != nil {
		return err
	}
	resp := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		resp = append(resp, ticketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": resp})
}

// Get handles GET /tickets/:id.
func (h *TicketsHandler) Get(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	view, err := h.tickets.GetTicket(c.UserContext(), staff, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(view)})
}

// Update handles PATCH /tickets/:id.
func (h *TicketsHandler) Update(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.UpdateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	input := service.TicketUpdateInput{
		Title:       req.Title,
		Description: req.Description,
		TeamID:      req.TeamID,
		Priority:    req.Priority,
		Tags:        req.Tags,
	}
	if req.CustomerID != nil {
		if strings.TrimSpace(*req.CustomerID) == "" {
			input.ClearCustomer = true
		} else {
			input.CustomerID = req.CustomerID
		}
	}
	view, err := h.tickets.UpdateTicket(c.UserContext(), staff, c.Params("id"), input)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(view)})
}

// ChangeStage handles POST /tickets/:id/stage.
func (h *TicketsHandler) ChangeStage(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.ChangeStageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.StageID) == "" {
		return apperrors.NewValidationError("stage_id is required", nil)
	}
	view, err := h.tickets.ChangeStage(c.UserContext(), staff, c.Params("id"), req.StageID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(view)})
}

// History handles GET /tickets/:id/history.
func (h *TicketsHandler) History(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	entries, err := h.tickets.ListHistory(c.UserContext(), staff, c.Params("id"))
	if err != nil {
		return err
	}
	resp := make([]dto.TicketHistoryResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, dto.TicketHistoryResponse{
			ID:            entry.ID,
			ChangeType:    entry.ChangeType,
			ChangedByType: entry.ChangedByType,
			ChangedByID:   entry.ChangedByID,
			OldValue:      entry.OldValue,
			NewValue:      entry.NewValue,
			CreatedAt:     entry.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"data": resp})
}

// SelfAssign handles POST /tickets/:id/self-assign.
func (h *TicketsHandler) SelfAssign(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	ticket, err := h.assignment.SelfAssignTicket(c.UserContext(), staff, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// Assign handles POST /tickets/:id/assign.
func (h *TicketsHandler) Assign(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.AssignRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.StaffID) == "" {
		return apperrors.NewValidationError("staff_id is required", nil)
	}
	ticket, err := h.assignment.AssignTicketToStaff(c.UserContext(), staff, c.Params("id"), req.StaffID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// Unassign handles DELETE /tickets/:id/assignee.
func (h *TicketsHandler) Unassign(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	ticket, err := h.assignment.UnassignTicket(c.UserContext(), staff, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

func staffPrincipal(c *fiber.Ctx) (*domain.StaffMember, error) {
	staff := auth.StaffFromContext(c)
	if staff == nil {
		return nil, apperrors.NewUnauthorized("staff authentication required")
	}
	return staff, nil
}

func parseTicketFilter(c *fiber.Ctx) service.TicketStaffFilter {
	var filter service.TicketStaffFilter
	if teamID := c.Query("team_id"); teamID != "" {
		filter.TeamID = &teamID
	}
	if stageID := c.Query("stage_id"); stageID != "" {
		filter.StageID = &stageID
	}
	if assignee := c.Query("assignee_id"); assignee != "" {
		filter.AssigneeID = &assignee
	}
	if customer := c.Query("customer_id"); customer != "" {
		filter.CustomerID = &customer
	}
	if raw := c.Query("priority"); raw != "" {
		for _, p := range strings.Split(raw, ",") {
			filter.Priorities = append(filter.Priorities, domain.TicketPriority(strings.ToUpper(strings.TrimSpace(p))))
		}
	}
	if term := strings.TrimSpace(c.Query("q")); term != "" {
		filter.SearchTerm = &term
	}
	filter.Limit, filter.Offset = parsePage(c, 20)
	return filter
}

func ticketSummary(t *domain.Ticket) dto.TicketSummary {
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	return dto.TicketSummary{
		ID:          t.ID,
		ExternalKey: t.ExternalKey,
		TeamID:      t.TeamID,
		StageID:     t.StageID,
		CustomerID:  t.CustomerID,
		AssigneeID:  t.AssigneeID,
		Title:       t.Title,
		Priority:    t.Priority,
		Tags:        tags,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		ClosedAt:    t.ClosedAt,
	}
}

func ticketDetail(view *service.TicketView) dto.TicketDetailResponse {
	return dto.TicketDetailResponse{
		TicketSummary: ticketSummary(view.Ticket),
		Description:   view.Ticket.Description,
		SLAStatuses:   statusResponses(view.Statuses),
	}
}

func statusResponses(views []service.StatusView) []dto.SLAStatusResponse {
	resp := make([]dto.SLAStatusResponse, 0, len(views))
	for _, v := range views {
		resp = append(resp, dto.SLAStatusResponse{
			ID:        v.Status.ID,
			TicketID:  v.Status.TicketID,
			PolicyID:  v.Status.PolicyID,
			Deadline:  v.Status.Deadline,
			ReachedAt: v.Status.ReachedAt,
			State:     v.State,
		})
	}
	return resp
}
