package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/deskops/helpdesk-sla/internal/clock"
	"github.com/deskops/helpdesk-sla/internal/domain"
	"github.com/deskops/helpdesk-sla/internal/events"
	"github.com/deskops/helpdesk-sla/internal/repository"
	"github.com/deskops/helpdesk-sla/internal/sla"
	apperrors "github.com/deskops/helpdesk-sla/pkg/util/errorutil"
)

// SLAEngine keeps SLA statuses in line with ticket changes.
type SLAEngine interface {
	Apply(ctx context.Context, ticket *domain.Ticket) (sla.ApplyResult, error)
	OnStageChange(ctx context.Context, ticket *domain.Ticket, at time.Time) ([]domain.SLAStatus, error)
	Recompute(ctx context.Context, ticket *domain.Ticket) ([]domain.SLAStatus, error)
}

// TicketService coordinates ticket workflows.
type TicketService struct {
	tickets    repository.TicketRepository
	teams      repository.TeamRepository
	stages     repository.StageRepository
	history    repository.TicketHistoryRepository
	statuses   repository.SLAStatusRepository
	engine     SLAEngine
	dispatcher events.Dispatcher
	clock      clock.Clock
	logger     *zap.Logger
}

// TicketDependencies bundles repositories for ticket service.
type TicketDependencies struct {
	TicketRepo    repository.TicketRepository
	TeamRepo      repository.TeamRepository
	StageRepo     repository.StageRepository
	HistoryRepo   repository.TicketHistoryRepository
	SLAStatusRepo repository.SLAStatusRepository
	Engine        SLAEngine
	Dispatcher    events.Dispatcher
	Clock         clock.Clock
	Logger        *zap.Logger
}

// TicketCreateInput describes ticket creation payload. A nil StageID puts
// the ticket in the team's first stage.
type TicketCreateInput struct {
	TeamID      string
	StageID     *string
	CustomerID  *string
	Title       string
	Description string
	Priority    domain.TicketPriority
	Tags        []string
}

// TicketUpdateInput carries optional field changes. ClearCustomer removes
// the customer; CustomerID sets it.
type TicketUpdateInput struct {
	Title         *string
	Description   *string
	TeamID        *string
	Priority      *domain.TicketPriority
	Tags          *[]string
	CustomerID    *string
	ClearCustomer bool
}

// TicketStaffFilter describes staff listing filters.
type TicketStaffFilter struct {
	TeamID     *string
	StageID    *string
	AssigneeID *string
	CustomerID *string
	Priorities []domain.TicketPriority
	SearchTerm *string
	Limit      int
	Offset     int
}

// StatusView pairs a stored status with its state at read time.
type StatusView struct {
	Status domain.SLAStatus
	State  domain.SLAState
}

// TicketView is a ticket with its SLA statuses.
type TicketView struct {
	Ticket   *domain.Ticket
	Statuses []StatusView
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		teams:      deps.TeamRepo,
		stages:     deps.StageRepo,
		history:    deps.HistoryRepo,
		statuses:   deps.SLAStatusRepo,
		engine:     deps.Engine,
		dispatcher: deps.Dispatcher,
		clock:      clk,
		logger:     logger,
	}
}

// CreateTicket creates a ticket and attaches the SLA policies it matches.
func (s *TicketService) CreateTicket(ctx context.Context, actor *domain.StaffMember, input TicketCreateInput) (*TicketView, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewValidationError("title is required", nil)
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": priority})
	}

	team, err := s.activeTeam(ctx, input.TeamID)
	if err != nil {
		return nil, err
	}
	stage, err := s.resolveStage(ctx, team.ID, input.StageID)
	if err != nil {
		return nil, err
	}

	ticket := &domain.Ticket{
		ExternalKey: generateTicketKey(),
		TeamID:      team.ID,
		StageID:     stage.ID,
		CustomerID:  normalizeOptional(input.CustomerID),
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Priority:    priority,
		Tags:        normalizeTags(input.Tags),
	}
	if stage.Folded {
		closedAt := s.clock.Now()
		ticket.ClosedAt = &closedAt
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	// The opening stage is recorded so time spent in an excluded first
	// stage counts as frozen.
	if _, err := s.recordStageChange(ctx, actor.ID, ticket.ID, "", ticket.StageID); err != nil {
		return nil, apperrors.MapError(err)
	}

	result, err := s.engine.Apply(ctx, ticket)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    staffActor(actor.ID),
		Payload: events.TicketCreatedPayload{
			TeamID:   ticket.TeamID,
			StageID:  ticket.StageID,
			Priority: ticket.Priority,
			Title:    ticket.Title,
			Statuses: len(result.Created),
		},
	})
	return s.view(ticket, result.Created), nil
}

// GetTicket returns a ticket with its SLA statuses.
func (s *TicketService) GetTicket(ctx context.Context, actor *domain.StaffMember, ticketID string) (*TicketView, error) {
	ticket, err := s.accessibleTicket(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	statuses, err := s.statuses.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return s.view(ticket, statuses), nil
}

// ListTickets returns tickets visible to the staff member.
func (s *TicketService) ListTickets(ctx context.Context, actor *domain.StaffMember, filter TicketStaffFilter) ([]domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	repoFilter := repository.TicketFilter{
		TeamID:     filter.TeamID,
		StageID:    filter.StageID,
		AssigneeID: filter.AssigneeID,
		CustomerID: filter.CustomerID,
		Priorities: filter.Priorities,
		SearchTerm: filter.SearchTerm,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}
	if actor.Role != domain.StaffRoleAdmin && actor.TeamID != nil {
		repoFilter.TeamID = actor.TeamID
	}
	tickets, err := s.tickets.ListWithFilter(ctx, repoFilter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// UpdateTicket applies field changes. Changing team, priority, tags or
// customer re-evaluates SLA policies; a team change also moves the ticket
// to the new team's first stage.
func (s *TicketService) UpdateTicket(ctx context.Context, actor *domain.StaffMember, ticketID string, input TicketUpdateInput) (*TicketView, error) {
	ticket, err := s.accessibleTicket(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	before := *ticket
	var changed []domain.TicketChangeType

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, apperrors.NewValidationError("title cannot be empty", nil)
		}
		ticket.Title = title
	}
	if input.Description != nil {
		ticket.Description = strings.TrimSpace(*input.Description)
	}
	if input.Priority != nil && *input.Priority != ticket.Priority {
		if !input.Priority.Valid() {
			return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": *input.Priority})
		}
		ticket.Priority = *input.Priority
		changed = append(changed, domain.ChangeTypePriority)
	}
	if input.Tags != nil {
		tags := normalizeTags(*input.Tags)
		if !sameStrings(tags, ticket.Tags) {
			ticket.Tags = tags
			changed = append(changed, domain.ChangeTypeTags)
		}
	}
	switch {
	case input.ClearCustomer && ticket.CustomerID != nil:
		ticket.CustomerID = nil
		changed = append(changed, domain.ChangeTypeCustomer)
	case input.CustomerID != nil:
		customer := normalizeOptional(input.CustomerID)
		if !sameOptional(customer, ticket.CustomerID) {
			ticket.CustomerID = customer
			changed = append(changed, domain.ChangeTypeCustomer)
		}
	}
	if input.TeamID != nil && *input.TeamID != ticket.TeamID {
		team, err := s.activeTeam(ctx, *input.TeamID)
		if err != nil {
			return nil, err
		}
		stage, err := s.resolveStage(ctx, team.ID, nil)
		if err != nil {
			return nil, err
		}
		ticket.TeamID = team.ID
		ticket.StageID = stage.ID
		ticket.AssigneeID = nil
		changed = append(changed, domain.ChangeTypeTeam)
	}

	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	for _, change := range changed {
		if err := s.recordChange(ctx, actor.ID, &before, ticket, change); err != nil {
			return nil, apperrors.MapError(err)
		}
	}
	if before.StageID != ticket.StageID {
		if _, err := s.recordStageChange(ctx, actor.ID, ticket.ID, before.StageID, ticket.StageID); err != nil {
			return nil, apperrors.MapError(err)
		}
	}

	if len(changed) > 0 {
		if _, err := s.engine.Apply(ctx, ticket); err != nil {
			return nil, apperrors.MapError(err)
		}
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketUpdated,
			TicketID: ticket.ID,
			Actor:    staffActor(actor.ID),
			Payload:  events.TicketUpdatedPayload{Changed: changed},
		})
	}
	statuses, err := s.statuses.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return s.view(ticket, statuses), nil
}

// ChangeStage moves the ticket, records the transition and lets the SLA
// engine detect reached targets and refresh deadlines.
func (s *TicketService) ChangeStage(ctx context.Context, actor *domain.StaffMember, ticketID, stageID string) (*TicketView, error) {
	ticket, err := s.accessibleTicket(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	stage, err := s.stages.GetByID(ctx, stageID)
	if err != nil {
		return nil, notFoundOr(err, "stage", stageID)
	}
	if stage.TeamID != ticket.TeamID {
		return nil, apperrors.NewValidationError("stage does not belong to the ticket team",
			map[string]any{"stage_id": stageID, "team_id": ticket.TeamID})
	}
	if stage.ID == ticket.StageID {
		return s.GetTicket(ctx, actor, ticketID)
	}

	oldStage := ticket.StageID
	ticket.StageID = stage.ID
	if stage.Folded {
		closedAt := s.clock.Now()
		ticket.ClosedAt = &closedAt
	} else {
		ticket.ClosedAt = nil
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	entry, err := s.recordStageChange(ctx, actor.ID, ticket.ID, oldStage, stage.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	statuses, err := s.engine.OnStageChange(ctx, ticket, entry.CreatedAt)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	var reached []string
	for _, status := range statuses {
		if status.ReachedAt != nil && status.ReachedAt.Equal(entry.CreatedAt) {
			reached = append(reached, status.PolicyID)
		}
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketStageChanged,
		TicketID: ticket.ID,
		Actor:    staffActor(actor.ID),
		Payload: events.TicketStageChangedPayload{
			OldStageID: oldStage,
			NewStageID: stage.ID,
			Reached:    reached,
		},
	})
	return s.view(ticket, statuses), nil
}

// ListHistory returns the audit trail of a ticket.
func (s *TicketService) ListHistory(ctx context.Context, actor *domain.StaffMember, ticketID string) ([]domain.TicketHistory, error) {
	ticket, err := s.accessibleTicket(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	history, err := s.history.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return history, nil
}

func (s *TicketService) view(ticket *domain.Ticket, statuses []domain.SLAStatus) *TicketView {
	now := s.clock.Now()
	out := &TicketView{Ticket: ticket, Statuses: make([]StatusView, 0, len(statuses))}
	for i := range statuses {
		out.Statuses = append(out.Statuses, StatusView{Status: statuses[i], State: statuses[i].State(now)})
	}
	return out
}

func (s *TicketService) accessibleTicket(ctx context.Context, actor *domain.StaffMember, ticketID string) (*domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, notFoundOr(err, "ticket", ticketID)
	}
	if !staffCanAccessTicket(actor, ticket) {
		return nil, apperrors.NewForbidden("access denied")
	}
	return ticket, nil
}

func (s *TicketService) activeTeam(ctx context.Context, teamID string) (*domain.Team, error) {
	if strings.TrimSpace(teamID) == "" {
		return nil, apperrors.NewValidationError("team_id is required", nil)
	}
	team, err := s.teams.GetByID(ctx, teamID)
	if err != nil {
		return nil, notFoundOr(err, "team", teamID)
	}
	if !team.IsActive {
		return nil, apperrors.NewConflict("team inactive", map[string]any{"team_id": teamID})
	}
	return team, nil
}

// resolveStage returns the requested stage or, when stageID is nil, the
// team's lowest-sequence stage.
func (s *TicketService) resolveStage(ctx context.Context, teamID string, stageID *string) (*domain.Stage, error) {
	if stageID != nil && *stageID != "" {
		stage, err := s.stages.GetByID(ctx, *stageID)
		if err != nil {
			return nil, notFoundOr(err, "stage", *stageID)
		}
		if stage.TeamID != teamID {
			return nil, apperrors.NewValidationError("stage does not belong to team",
				map[string]any{"stage_id": *stageID, "team_id": teamID})
		}
		return stage, nil
	}
	stages, err := s.stages.ListByTeam(ctx, teamID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if len(stages) == 0 {
		return nil, apperrors.NewConflict("team has no stages", map[string]any{"team_id": teamID})
	}
	first := stages[0]
	for _, stage := range stages[1:] {
		if stage.Sequence < first.Sequence {
			first = stage
		}
	}
	return &first, nil
}

func (s *TicketService) recordStageChange(ctx context.Context, actorID, ticketID, oldStage, newStage string) (*domain.TicketHistory, error) {
	entry := &domain.TicketHistory{
		TicketID:      ticketID,
		ChangedByType: domain.SubjectTypeStaff,
		ChangedByID:   &actorID,
		ChangeType:    domain.ChangeTypeStage,
		OldValue:      map[string]any{"stage_id": oldStage},
		NewValue:      map[string]any{"stage_id": newStage},
	}
	if err := s.history.Create(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *TicketService) recordChange(ctx context.Context, actorID string, before, after *domain.Ticket, change domain.TicketChangeType) error {
	entry := &domain.TicketHistory{
		TicketID:      after.ID,
		ChangedByType: domain.SubjectTypeStaff,
		ChangedByID:   &actorID,
		ChangeType:    change,
	}
	switch change {
	case domain.ChangeTypePriority:
		entry.OldValue = map[string]any{"priority": before.Priority}
		entry.NewValue = map[string]any{"priority": after.Priority}
	case domain.ChangeTypeTags:
		entry.OldValue = map[string]any{"tags": before.Tags}
		entry.NewValue = map[string]any{"tags": after.Tags}
	case domain.ChangeTypeCustomer:
		entry.OldValue = map[string]any{"customer_id": before.CustomerID}
		entry.NewValue = map[string]any{"customer_id": after.CustomerID}
	case domain.ChangeTypeTeam:
		entry.OldValue = map[string]any{"team_id": before.TeamID}
		entry.NewValue = map[string]any{"team_id": after.TeamID}
	}
	return s.history.Create(ctx, entry)
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	publish(ctx, s.dispatcher, s.clock, event)
}

func publish(ctx context.Context, dispatcher events.Dispatcher, clk clock.Clock, event events.Event) {
	if dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = clk.Now()
	}
	_ = dispatcher.Publish(ctx, event)
}

func staffCanAccessTicket(staff *domain.StaffMember, ticket *domain.Ticket) bool {
	return staff != nil && staff.CanAccessTeam(ticket.TeamID)
}

func notFoundOr(err error, resource, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewNotFound(resource, map[string]any{resource + "_id": id})
	}
	return apperrors.MapError(err)
}

func generateTicketKey() string {
	return "TCK-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func staffActor(staffID string) events.Actor {
	return events.Actor{
		Type:    domain.SubjectTypeStaff,
		StaffID: &staffID,
	}
}

func systemActor() events.Actor {
	return events.Actor{Type: domain.SubjectTypeSystem}
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

func normalizeOptional(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func sameOptional(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
