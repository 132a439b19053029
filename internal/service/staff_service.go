package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/deskops/helpdesk-sla/internal/auth"
	"github.com/deskops/helpdesk-sla/internal/calendar"
	"github.com/deskops/helpdesk-sla/internal/config"
	"github.com/deskops/helpdesk-sla/internal/domain"
	"github.com/deskops/helpdesk-sla/internal/repository"
	apperrors "github.com/deskops/helpdesk-sla/pkg/util/errorutil"
)

// CalendarLookup resolves calendars by id.
type CalendarLookup interface {
	Get(ctx context.Context, id string) (*calendar.Calendar, error)
}

// StaffService manages teams, their stage pipelines and staff members.
type StaffService struct {
	teams      repository.TeamRepository
	stages     repository.StageRepository
	staff      repository.StaffRepository
	calendars  CalendarLookup
	bcryptCost int
}

// StaffListFilters define listing parameters.
type StaffListFilters struct {
	Role   *domain.StaffRole
	TeamID *string
	Active *bool
	Limit  int
	Offset int
}

// TeamInput carries team attributes. A nil CalendarID leaves the team on
// the company calendar.
type TeamInput struct {
	Name        string
	Description string
	CalendarID  *string
	IsActive    *bool
}

// StageInput carries stage attributes.
type StageInput struct {
	Name     string
	Sequence int
	Folded   bool
}

// StaffInput carries staff attributes; Password is only used on create.
type StaffInput struct {
	Name     string
	Email    string
	Password string
	Role     domain.StaffRole
	TeamID   *string
	Active   *bool
}

// OrgDependencies encapsulates repositories required for org management.
type OrgDependencies struct {
	TeamRepo  repository.TeamRepository
	StageRepo repository.StageRepository
	StaffRepo repository.StaffRepository
	Calendars CalendarLookup
}

// NewStaffService constructs the service.
func NewStaffService(cfg config.Config, deps OrgDependencies) *StaffService {
	return &StaffService{
		teams:      deps.TeamRepo,
		stages:     deps.StageRepo,
		staff:      deps.StaffRepo,
		calendars:  deps.Calendars,
		bcryptCost: cfg.Auth.BcryptCost,
	}
}

func requireAdmin(actor *domain.StaffMember) error {
	if actor == nil || actor.Role != domain.StaffRoleAdmin {
		return apperrors.NewForbidden("admin role required")
	}
	return nil
}

// CreateTeam creates a team.
func (s *StaffService) CreateTeam(ctx context.Context, actor *domain.StaffMember, input TeamInput) (*domain.Team, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewValidationError("name is required", nil)
	}
	calendarID, err := s.checkCalendar(ctx, input.CalendarID)
	if err != nil {
		return nil, err
	}
	team := &domain.Team{
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		CalendarID:  calendarID,
		IsActive:    true,
	}
	if err := s.teams.Create(ctx, team); err != nil {
		return nil, apperrors.MapError(err)
	}
	return team, nil
}

// ListTeams lists active teams; admins also see retired ones.
func (s *StaffService) ListTeams(ctx context.Context, actor *domain.StaffMember) ([]domain.Team, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	teams, err := s.teams.List(ctx, actor.Role != domain.StaffRoleAdmin)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return teams, nil
}

// GetTeamByID fetches team.
func (s *StaffService) GetTeamByID(ctx context.Context, actor *domain.StaffMember, id string) (*domain.Team, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	team, err := s.teams.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "team", id)
	}
	return team, nil
}

// UpdateTeam updates team metadata and its calendar.
func (s *StaffService) UpdateTeam(ctx context.Context, actor *domain.StaffMember, id string, input TeamInput) (*domain.Team, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	team, err := s.teams.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "team", id)
	}
	if name := strings.TrimSpace(input.Name); name != "" {
		team.Name = name
	}
	team.Description = strings.TrimSpace(input.Description)
	calendarID, err := s.checkCalendar(ctx, input.CalendarID)
	if err != nil {
		return nil, err
	}
	team.CalendarID = calendarID
	if input.IsActive != nil {
		team.IsActive = *input.IsActive
	}
	if err := s.teams.Update(ctx, team); err != nil {
		return nil, apperrors.MapError(err)
	}
	return team, nil
}

// CreateStage appends a stage to a team pipeline.
func (s *StaffService) CreateStage(ctx context.Context, actor *domain.StaffMember, teamID string, input StageInput) (*domain.Stage, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewValidationError("name is required", nil)
	}
	if _, err := s.teams.GetByID(ctx, teamID); err != nil {
		return nil, notFoundOr(err, "team", teamID)
	}
	stage := &domain.Stage{
		TeamID:   teamID,
		Name:     name,
		Sequence: input.Sequence,
		Folded:   input.Folded,
	}
	if err := s.stages.Create(ctx, stage); err != nil {
		return nil, apperrors.MapError(err)
	}
	return stage, nil
}

// ListStages returns a team's stages ordered by sequence.
func (s *StaffService) ListStages(ctx context.Context, actor *domain.StaffMember, teamID string) ([]domain.Stage, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	if _, err := s.teams.GetByID(ctx, teamID); err != nil {
		return nil, notFoundOr(err, "team", teamID)
	}
	stages, err := s.stages.ListByTeam(ctx, teamID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return stages, nil
}

// CreateStaffMember adds a new staff account.
func (s *StaffService) CreateStaffMember(ctx context.Context, actor *domain.StaffMember, input StaffInput) (*domain.StaffMember, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	email := strings.TrimSpace(strings.ToLower(input.Email))
	if strings.TrimSpace(input.Name) == "" || email == "" {
		return nil, apperrors.NewValidationError("name and email are required", nil)
	}
	if err := auth.CheckPassword(input.Password); err != nil {
		return nil, apperrors.NewValidationError(err.Error(), nil)
	}
	role := input.Role
	if role == "" {
		role = domain.StaffRoleAgent
	}
	if !role.Valid() {
		return nil, apperrors.NewValidationError("invalid role", map[string]any{"role": role})
	}
	if err := s.ensureEmailFree(ctx, email, ""); err != nil {
		return nil, err
	}
	if err := s.checkTeam(ctx, input.TeamID); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	staff := &domain.StaffMember{
		Name:         strings.TrimSpace(input.Name),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		TeamID:       normalizeOptional(input.TeamID),
		Active:       true,
	}
	if err := s.staff.Create(ctx, staff); err != nil {
		return nil, staffWriteError(err, email)
	}
	return staff, nil
}

// ListStaffMembers lists staff with filters.
func (s *StaffService) ListStaffMembers(ctx context.Context, actor *domain.StaffMember, filters StaffListFilters) ([]domain.StaffMember, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	staff, err := s.staff.List(ctx, repository.StaffFilter{
		Role:   filters.Role,
		TeamID: filters.TeamID,
		Active: filters.Active,
		Limit:  filters.Limit,
		Offset: filters.Offset,
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return staff, nil
}

// GetStaffMemberByID fetches staff.
func (s *StaffService) GetStaffMemberByID(ctx context.Context, actor *domain.StaffMember, id string) (*domain.StaffMember, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	staff, err := s.staff.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "staff", id)
	}
	return staff, nil
}

// UpdateStaffMember updates staff details.
func (s *StaffService) UpdateStaffMember(ctx context.Context, actor *domain.StaffMember, staffID string, input StaffInput) (*domain.StaffMember, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	staff, err := s.staff.GetByID(ctx, staffID)
	if err != nil {
		return nil, notFoundOr(err, "staff", staffID)
	}
	if email := strings.TrimSpace(strings.ToLower(input.Email)); email != "" && email != staff.Email {
		if err := s.ensureEmailFree(ctx, email, staff.ID); err != nil {
			return nil, err
		}
		staff.Email = email
	}
	if name := strings.TrimSpace(input.Name); name != "" {
		staff.Name = name
	}
	if input.Role != "" {
		if !input.Role.Valid() {
			return nil, apperrors.NewValidationError("invalid role", map[string]any{"role": input.Role})
		}
		staff.Role = input.Role
	}
	if err := s.checkTeam(ctx, input.TeamID); err != nil {
		return nil, err
	}
	staff.TeamID = normalizeOptional(input.TeamID)
	if input.Active != nil {
		staff.Active = *input.Active
	}

	if err := s.staff.Update(ctx, staff); err != nil {
		return nil, staffWriteError(err, staff.Email)
	}
	return staff, nil
}

// staffWriteError covers the race between ensureEmailFree and the write.
func staffWriteError(err error, email string) error {
	if errors.Is(err, repository.ErrEmailTaken) {
		return apperrors.NewConflict("staff email already exists", map[string]any{"email": email})
	}
	return apperrors.MapError(err)
}

func (s *StaffService) ensureEmailFree(ctx context.Context, email, selfID string) error {
	existing, err := s.staff.GetByEmail(ctx, email)
	switch {
	case err == nil && existing != nil && existing.ID != selfID:
		return apperrors.NewConflict("staff email already exists", map[string]any{"email": email})
	case err != nil && !errors.Is(err, pgx.ErrNoRows):
		return apperrors.MapError(err)
	}
	return nil
}

func (s *StaffService) checkTeam(ctx context.Context, teamID *string) error {
	if teamID == nil || *teamID == "" {
		return nil
	}
	team, err := s.teams.GetByID(ctx, *teamID)
	if err != nil {
		return notFoundOr(err, "team", *teamID)
	}
	if !team.IsActive {
		return apperrors.NewConflict("team inactive", map[string]any{"team_id": *teamID})
	}
	return nil
}

func (s *StaffService) checkCalendar(ctx context.Context, calendarID *string) (*string, error) {
	id := normalizeOptional(calendarID)
	if id == nil || s.calendars == nil {
		return id, nil
	}
	cal, err := s.calendars.Get(ctx, *id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewValidationError("unknown calendar", map[string]any{"calendar_id": *id})
		}
		return nil, apperrors.MapError(err)
	}
	if cal == nil {
		return nil, apperrors.NewValidationError("unknown calendar", map[string]any{"calendar_id": *id})
	}
	return id, nil
}
