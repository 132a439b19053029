package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/deskops/helpdesk-sla/internal/api/dto"
	"github.com/deskops/helpdesk-sla/internal/service"
	apperrors "github.com/deskops/helpdesk-sla/pkg/util/errorutil"
)

// CalendarHandler exposes working calendar endpoints.
type CalendarHandler struct {
	calendars *service.CalendarService
}

// NewCalendarHandler constructs handler.
func NewCalendarHandler(calendars *service.CalendarService) *CalendarHandler {
	return &CalendarHandler{calendars: calendars}
}

// Create handles POST /calendars.
func (h *CalendarHandler) Create(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.CalendarRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	cal, err := h.calendars.CreateCalendar(c.UserContext(), staff, calendarInput(req))
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": cal})
}

// List handles GET /calendars.
func (h *CalendarHandler) List(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	cals, err := h.calendars.ListCalendars(c.UserContext(), staff)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": cals})
}

// Get handles GET /calendars/:id.
func (h *CalendarHandler) Get(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	cal, err := h.calendars.GetCalendar(c.UserContext(), staff, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": cal})
}

// Update handles PUT /calendars/:id.
func (h *CalendarHandler) Update(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.CalendarRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	cal, err := h.calendars.UpdateCalendar(c.UserContext(), staff, c.Params("id"), calendarInput(req))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": cal})
}

// Plan handles POST /calendars/:id/plan and previews a deadline.
func (h *CalendarHandler) Plan(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.PlanRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Start.IsZero() {
		return apperrors.NewValidationError("start is required", nil)
	}
	deadline, err := h.calendars.Plan(c.UserContext(), staff, c.Params("id"), req.Start, req.Hours)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.PlanResponse{Start: req.Start, Hours: req.Hours, Deadline: deadline}})
}

func calendarInput(req dto.CalendarRequest) service.CalendarInput {
	return service.CalendarInput{
		Name:        req.Name,
		Timezone:    req.Timezone,
		IsDefault:   req.IsDefault,
		Attendances: req.Attendances,
		Leaves:      req.Leaves,
	}
}
