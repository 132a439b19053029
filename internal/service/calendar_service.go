package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/deskops/helpdesk-sla/internal/calendar"
	"github.com/deskops/helpdesk-sla/internal/domain"
	"github.com/deskops/helpdesk-sla/internal/repository"
	apperrors "github.com/deskops/helpdesk-sla/pkg/util/errorutil"
)

// CalendarCache drops cached calendars after a write.
type CalendarCache interface {
	Invalidate(ctx context.Context, id string)
}

// CalendarService manages working calendars.
type CalendarService struct {
	calendars repository.CalendarRepository
	cache     CalendarCache
}

// CalendarDependencies bundles collaborators for the calendar service.
type CalendarDependencies struct {
	CalendarRepo repository.CalendarRepository
	Cache        CalendarCache
}

// CalendarInput carries calendar attributes.
type CalendarInput struct {
	Name        string
	Timezone    string
	IsDefault   bool
	Attendances []calendar.Attendance
	Leaves      []calendar.Leave
}

// NewCalendarService constructs the service.
func NewCalendarService(deps CalendarDependencies) *CalendarService {
	return &CalendarService{calendars: deps.CalendarRepo, cache: deps.Cache}
}

// CreateCalendar validates and stores a calendar.
func (s *CalendarService) CreateCalendar(ctx context.Context, actor *domain.StaffMember, input CalendarInput) (*calendar.Calendar, error) {
	if err := requireManager(actor); err != nil {
		return nil, err
	}
	cal := &calendar.Calendar{}
	if err := fillCalendar(cal, input); err != nil {
		return nil, err
	}
	if err := s.calendars.Create(ctx, cal); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.invalidate(ctx, cal.ID)
	return cal, nil
}

// UpdateCalendar replaces a calendar. Existing deadlines keep their value
// until the ticket's next recompute.
func (s *CalendarService) UpdateCalendar(ctx context.Context, actor *domain.StaffMember, id string, input CalendarInput) (*calendar.Calendar, error) {
	if err := requireManager(actor); err != nil {
		return nil, err
	}
	cal, err := s.calendars.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "calendar", id)
	}
	if err := fillCalendar(cal, input); err != nil {
		return nil, err
	}
	if err := s.calendars.Update(ctx, cal); err != nil {
		return nil, notFoundOr(err, "calendar", id)
	}
	s.invalidate(ctx, cal.ID)
	return cal, nil
}

// GetCalendar fetches a calendar.
func (s *CalendarService) GetCalendar(ctx context.Context, actor *domain.StaffMember, id string) (*calendar.Calendar, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	cal, err := s.calendars.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "calendar", id)
	}
	return cal, nil
}

// ListCalendars lists every calendar.
func (s *CalendarService) ListCalendars(ctx context.Context, actor *domain.StaffMember) ([]calendar.Calendar, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	cals, err := s.calendars.List(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return cals, nil
}

// Plan previews the deadline reached after hours of working time from start.
func (s *CalendarService) Plan(ctx context.Context, actor *domain.StaffMember, id string, start time.Time, hours float64) (time.Time, error) {
	cal, err := s.GetCalendar(ctx, actor, id)
	if err != nil {
		return time.Time{}, err
	}
	if hours < 0 {
		return time.Time{}, apperrors.NewValidationError("hours must not be negative", map[string]any{"hours": hours})
	}
	deadline, err := cal.PlanHours(start, hours)
	if err != nil {
		return time.Time{}, calendarError(err)
	}
	return deadline, nil
}

func (s *CalendarService) invalidate(ctx context.Context, id string) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, id)
	}
}

func fillCalendar(cal *calendar.Calendar, input CalendarInput) error {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return apperrors.NewValidationError("name is required", nil)
	}
	cal.Name = name
	cal.Timezone = strings.TrimSpace(input.Timezone)
	cal.IsDefault = input.IsDefault
	cal.Attendances = input.Attendances
	cal.Leaves = input.Leaves
	if err := cal.Validate(); err != nil {
		return calendarError(err)
	}
	return nil
}

func calendarError(err error) error {
	if errors.Is(err, calendar.ErrInvalidCalendar) || errors.Is(err, calendar.ErrNoWorkingTime) {
		return apperrors.NewValidationError(err.Error(), nil)
	}
	return apperrors.MapError(err)
}
