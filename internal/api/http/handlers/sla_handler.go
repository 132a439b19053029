package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/deskops/helpdesk-sla/internal/api/dto"
	"github.com/deskops/helpdesk-sla/internal/domain"
	"github.com/deskops/helpdesk-sla/internal/service"
	apperrors "github.com/deskops/helpdesk-sla/pkg/util/errorutil"
)

// SLAHandler exposes SLA policy and status endpoints.
type SLAHandler struct {
	policies *service.SLAPolicyService
}

// NewSLAHandler constructs handler.
func NewSLAHandler(policies *service.SLAPolicyService) *SLAHandler {
	return &SLAHandler{policies: policies}
}

// CreatePolicy handles POST /sla/policies.
func (h *SLAHandler) CreatePolicy(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.SLAPolicyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	policy, err := h.policies.CreatePolicy(c.UserContext(), staff, policyInput(req))
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": policyResponse(policy)})
}

// ListPolicies handles GET /sla/policies.
func (h *SLAHandler) ListPolicies(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var teamID *string
	if v := c.Query("team_id"); v != "" {
		teamID = &v
	}
	policies, err := h.policies.ListPolicies(c.UserContext(), staff, teamID)
	if err != nil {
		return err
	}
	resp := make([]dto.SLAPolicyResponse, 0, len(policies))
	for i := range policies {
		resp = append(resp, policyResponse(&policies[i]))
	}
	return c.JSON(fiber.Map{"data": resp})
}

// GetPolicy handles GET /sla/policies/:id.
func (h *SLAHandler) GetPolicy(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	policy, err := h.policies.GetPolicy(c.UserContext(), staff, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": policyResponse(policy)})
}

// UpdatePolicy handles PUT /sla/policies/:id.
func (h *SLAHandler) UpdatePolicy(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.SLAPolicyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	policy, err := h.policies.UpdatePolicy(c.UserContext(), staff, c.Params("id"), policyInput(req))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": policyResponse(policy)})
}

// DeletePolicy handles DELETE /sla/policies/:id.
func (h *SLAHandler) DeletePolicy(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	if err := h.policies.DeletePolicy(c.UserContext(), staff, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// ListStatuses handles GET /sla/statuses.
func (h *SLAHandler) ListStatuses(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var filter service.SLAStatusListFilter
	if v := c.Query("ticket_id"); v != "" {
		filter.TicketID = &v
	}
	if v := c.Query("policy_id"); v != "" {
		filter.PolicyID = &v
	}
	if v := c.Query("state"); v != "" {
		state := domain.SLAState(v)
		filter.State = &state
	}
	filter.Limit, filter.Offset = parsePage(c, 50)
	views, err := h.policies.ListStatuses(c.UserContext(), staff, filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": statusResponses(views)})
}

func policyInput(req dto.SLAPolicyRequest) service.SLAPolicyInput {
	return service.SLAPolicyInput{
		Name:              req.Name,
		Description:       req.Description,
		TeamID:            req.TeamID,
		MinPriority:       req.MinPriority,
		Tags:              req.Tags,
		CustomerIDs:       req.CustomerIDs,
		TargetStageID:     req.TargetStageID,
		ExcludedStageIDs:  req.ExcludedStageIDs,
		TimeHours:         req.TimeHours,
		EscalationStaffID: req.EscalationStaffID,
		Active:            req.Active,
	}
}

func policyResponse(p *domain.SLAPolicy) dto.SLAPolicyResponse {
	return dto.SLAPolicyResponse{
		ID:                p.ID,
		Name:              p.Name,
		Description:       p.Description,
		TeamID:            p.TeamID,
		MinPriority:       p.MinPriority,
		Tags:              nonNil(p.Tags),
		CustomerIDs:       nonNil(p.CustomerIDs),
		TargetStageID:     p.TargetStageID,
		ExcludedStageIDs:  nonNil(p.ExcludedStageIDs),
		TimeHours:         p.TimeHours,
		EscalationStaffID: p.EscalationStaffID,
		Active:            p.Active,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
