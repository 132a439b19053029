package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/deskops/helpdesk-sla/internal/domain"
	apperrors "github.com/deskops/helpdesk-sla/pkg/util/errorutil"
)

// RequireStaffRole ensures the staff principal has one of the allowed roles.
// With no roles given any authenticated staff member passes.
func RequireStaffRole(allowed ...domain.StaffRole) fiber.Handler {
	allowedSet := make(map[domain.StaffRole]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok || principal.SubjectType != domain.SubjectTypeStaff || principal.Staff == nil {
			return apperrors.NewForbidden("staff role required")
		}
		if len(allowedSet) == 0 {
			return c.Next()
		}
		if _, exists := allowedSet[principal.Staff.Role]; !exists {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}

// StaffFromContext returns the authenticated staff member or nil.
func StaffFromContext(c *fiber.Ctx) *domain.StaffMember {
	principal, ok := PrincipalFromContext(c)
	if !ok {
		return nil
	}
	return principal.Staff
}
