package handlers

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/deskops/helpdesk-sla/internal/api/dto"
	"github.com/deskops/helpdesk-sla/internal/domain"
	apperrors "github.com/deskops/helpdesk-sla/pkg/util/errorutil"
)

// EntitlementUpdater persists entitlement changes.
type EntitlementUpdater interface {
	Update(ctx context.Context, e *domain.Entitlement) error
}

// EntitlementHandler receives entitlement pushes from billing.
type EntitlementHandler struct {
	gate   EntitlementUpdater
	secret string
}

// NewEntitlementHandler constructs handler. An empty secret rejects every
// request.
func NewEntitlementHandler(gate EntitlementUpdater, secret string) *EntitlementHandler {
	return &EntitlementHandler{gate: gate, secret: secret}
}

// Webhook handles POST /webhooks/entitlements.
func (h *EntitlementHandler) Webhook(c *fiber.Ctx) error {
	token := c.Get("X-Webhook-Token")
	if h.secret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(h.secret)) != 1 {
		return apperrors.NewUnauthorized("invalid webhook token")
	}
	var req dto.EntitlementWebhookRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	req.TenantID = strings.TrimSpace(req.TenantID)
	req.Feature = strings.TrimSpace(req.Feature)
	if req.TenantID == "" || req.Feature == "" {
		return apperrors.NewValidationError("tenant_id and feature are required", nil)
	}
	if err := h.gate.Update(c.UserContext(), &domain.Entitlement{
		TenantID:    req.TenantID,
		Feature:     req.Feature,
		Enabled:     req.Enabled,
		TrialEndsAt: req.TrialEndsAt,
	}); err != nil {
		return apperrors.NewInternalError(err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"status": "accepted"}})
}
