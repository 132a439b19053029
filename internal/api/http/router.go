package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"go.uber.org/zap"

	"github.com/deskops/helpdesk-sla/internal/api/http/handlers"
	"github.com/deskops/helpdesk-sla/internal/auth"
	"github.com/deskops/helpdesk-sla/internal/domain"
	"github.com/deskops/helpdesk-sla/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Staff          *handlers.StaffHandler
	Tickets        *handlers.TicketsHandler
	SLA            *handlers.SLAHandler
	Calendars      *handlers.CalendarHandler
	Escalations    *handlers.EscalationHandler
	Entitlements   *handlers.EntitlementHandler
	AuthMiddleware fiber.Handler
	Gate           FeatureGate
	TenantID       string
	Metrics        *observability.Metrics
	Logger         *zap.Logger
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))

	app.Post("/webhooks/entitlements", cfg.Entitlements.Webhook)

	authGroup := app.Group("/auth")
	authGroup.Post("/staff/login", cfg.Staff.Login)

	staffOnly := auth.RequireStaffRole()
	leads := auth.RequireStaffRole(domain.StaffRoleTeamLead, domain.StaffRoleAdmin)
	admins := auth.RequireStaffRole(domain.StaffRoleAdmin)

	protected := authGroup.Group("", cfg.AuthMiddleware, staffOnly)
	protected.Post("/password/change", cfg.Staff.ChangePassword)
	protected.Get("/me", cfg.Staff.Me)

	teams := app.Group("/teams", cfg.AuthMiddleware, staffOnly)
	teams.Get("/", cfg.Staff.ListTeams)
	teams.Post("/", admins, cfg.Staff.CreateTeam)
	teams.Get("/:id", cfg.Staff.GetTeam)
	teams.Put("/:id", admins, cfg.Staff.UpdateTeam)
	teams.Get("/:id/stages", cfg.Staff.ListStages)
	teams.Post("/:id/stages", admins, cfg.Staff.CreateStage)

	staff := app.Group("/staff/members", cfg.AuthMiddleware, staffOnly)
	staff.Get("/", cfg.Staff.ListStaff)
	staff.Post("/", admins, cfg.Staff.CreateStaff)
	staff.Get("/:id", cfg.Staff.GetStaff)
	staff.Put("/:id", admins, cfg.Staff.UpdateStaff)

	tickets := app.Group("/tickets", cfg.AuthMiddleware, staffOnly)
	tickets.Post("/", cfg.Tickets.Create)
	tickets.Get("/", cfg.Tickets.List)
	tickets.Get("/:id", cfg.Tickets.Get)
	tickets.Patch("/:id", cfg.Tickets.Update)
	tickets.Post("/:id/stage", cfg.Tickets.ChangeStage)
	tickets.Get("/:id/history", cfg.Tickets.History)
	tickets.Post("/:id/self-assign", cfg.Tickets.SelfAssign)
	tickets.Post("/:id/assign", leads, cfg.Tickets.Assign)
	tickets.Delete("/:id/assignee", cfg.Tickets.Unassign)

	calendars := app.Group("/calendars", cfg.AuthMiddleware, staffOnly)
	calendars.Get("/", cfg.Calendars.List)
	calendars.Post("/", leads, cfg.Calendars.Create)
	calendars.Get("/:id", cfg.Calendars.Get)
	calendars.Put("/:id", leads, cfg.Calendars.Update)
	calendars.Post("/:id/plan", cfg.Calendars.Plan)

	escalations := app.Group("/escalations", cfg.AuthMiddleware, staffOnly)
	escalations.Get("/", cfg.Escalations.List)
	escalations.Post("/:id/resolve", cfg.Escalations.Resolve)

	slaGroup := app.Group("/sla", cfg.AuthMiddleware, staffOnly,
		RequireFeature(cfg.Gate, cfg.TenantID, domain.FeatureSLA, logger))
	slaGroup.Get("/policies", cfg.SLA.ListPolicies)
	slaGroup.Post("/policies", leads, cfg.SLA.CreatePolicy)
	slaGroup.Get("/policies/:id", cfg.SLA.GetPolicy)
	slaGroup.Put("/policies/:id", leads, cfg.SLA.UpdatePolicy)
	slaGroup.Delete("/policies/:id", leads, cfg.SLA.DeletePolicy)
	slaGroup.Get("/statuses", cfg.SLA.ListStatuses)
	slaGroup.Post("/scan", admins, cfg.Escalations.Scan)
}
