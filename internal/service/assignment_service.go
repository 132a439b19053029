package service

import (
	"context"

	"github.com/deskops/helpdesk-sla/internal/clock"
	"github.com/deskops/helpdesk-sla/internal/domain"
	"github.com/deskops/helpdesk-sla/internal/events"
	"github.com/deskops/helpdesk-sla/internal/repository"
	apperrors "github.com/deskops/helpdesk-sla/pkg/util/errorutil"
)

// AssignmentService handles ticket assignment operations. Assignment does
// not affect SLA matching.
type AssignmentService struct {
	tickets     repository.TicketRepository
	staff       repository.StaffRepository
	historyRepo repository.TicketHistoryRepository
	dispatcher  events.Dispatcher
	clock       clock.Clock
}

// AssignmentDependencies bundles repositories.
type AssignmentDependencies struct {
	TicketRepo  repository.TicketRepository
	StaffRepo   repository.StaffRepository
	HistoryRepo repository.TicketHistoryRepository
	Dispatcher  events.Dispatcher
	Clock       clock.Clock
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}
	return &AssignmentService{
		tickets:     deps.TicketRepo,
		staff:       deps.StaffRepo,
		historyRepo: deps.HistoryRepo,
		dispatcher:  deps.Dispatcher,
		clock:       clk,
	}
}

// SelfAssignTicket allows a staff member to assign ticket to themselves.
func (s *AssignmentService) SelfAssignTicket(ctx context.Context, staff *domain.StaffMember, ticketID string) (*domain.Ticket, error) {
	if staff == nil {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, notFoundOr(err, "ticket", ticketID)
	}
	if !staffCanAccessTicket(staff, ticket) {
		return nil, apperrors.NewForbidden("access denied")
	}
	return s.assign(ctx, staff.ID, ticket, staff.ID)
}

// AssignTicketToStaff assigns ticket to provided staff (TEAM_LEAD/ADMIN).
func (s *AssignmentService) AssignTicketToStaff(ctx context.Context, actor *domain.StaffMember, ticketID, assigneeStaffID string) (*domain.Ticket, error) {
	if err := requireAssignPriv(actor); err != nil {
		return nil, err
	}
	assignee, err := s.staff.GetByID(ctx, assigneeStaffID)
	if err != nil {
		return nil, notFoundOr(err, "staff", assigneeStaffID)
	}
	if !assignee.Active {
		return nil, apperrors.NewConflict("assignee inactive", map[string]any{"staff_id": assigneeStaffID})
	}

	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, notFoundOr(err, "ticket", ticketID)
	}
	if !staffCanAccessTicket(actor, ticket) {
		return nil, apperrors.NewForbidden("access denied")
	}
	if !staffMatchesTicketScope(assignee, ticket) && actor.Role != domain.StaffRoleAdmin {
		return nil, apperrors.NewForbidden("assignee outside ticket scope")
	}
	return s.assign(ctx, actor.ID, ticket, assignee.ID)
}

// UnassignTicket clears the assignee (TEAM_LEAD/ADMIN).
func (s *AssignmentService) UnassignTicket(ctx context.Context, actor *domain.StaffMember, ticketID string) (*domain.Ticket, error) {
	if err := requireAssignPriv(actor); err != nil {
		return nil, err
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, notFoundOr(err, "ticket", ticketID)
	}
	if !staffCanAccessTicket(actor, ticket) {
		return nil, apperrors.NewForbidden("access denied")
	}
	return s.assign(ctx, actor.ID, ticket, "")
}

// assign sets the assignee; an empty assigneeID clears it.
func (s *AssignmentService) assign(ctx context.Context, actorID string, ticket *domain.Ticket, assigneeID string) (*domain.Ticket, error) {
	var next *string
	if assigneeID != "" {
		next = &assigneeID
	}
	if sameOptional(ticket.AssigneeID, next) {
		return ticket, nil
	}
	oldAssignee := ticket.AssigneeID
	ticket.AssigneeID = next
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	if err := s.recordAssigneeChange(ctx, actorID, ticket.ID, oldAssignee, ticket.AssigneeID); err != nil {
		return nil, apperrors.MapError(err)
	}
	publish(ctx, s.dispatcher, s.clock, events.Event{
		Type:     events.EventTicketAssigned,
		TicketID: ticket.ID,
		Actor:    staffActor(actorID),
		Payload: events.TicketAssignedPayload{
			AssigneeStaffID: ticket.AssigneeID,
			TeamID:          ticket.TeamID,
		},
	})
	return ticket, nil
}

func requireAssignPriv(staff *domain.StaffMember) error {
	if staff == nil {
		return apperrors.NewUnauthorized("staff required")
	}
	if !staff.Role.Manages() {
		return apperrors.NewForbidden("insufficient role for assignment")
	}
	return nil
}

func staffMatchesTicketScope(staff *domain.StaffMember, ticket *domain.Ticket) bool {
	if staff == nil {
		return false
	}
	return staff.MemberOf(ticket.TeamID)
}

func (s *AssignmentService) recordAssigneeChange(ctx context.Context, actorID string, ticketID string, oldAssignee, newAssignee *string) error {
	return s.historyRepo.Create(ctx, &domain.TicketHistory{
		TicketID:      ticketID,
		ChangedByType: domain.SubjectTypeStaff,
		ChangedByID:   &actorID,
		ChangeType:    domain.ChangeTypeAssignee,
		OldValue: map[string]any{
			"assignee_staff_id": oldAssignee,
		},
		NewValue: map[string]any{
			"assignee_staff_id": newAssignee,
		},
	})
}
