package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskops/helpdesk-sla/internal/domain"
	"github.com/deskops/helpdesk-sla/internal/events"
	apperrors "github.com/deskops/helpdesk-sla/pkg/util/errorutil"
)

func errCode(err error) string {
	if de := apperrors.ToDomainError(err); de != nil {
		return de.Code
	}
	return ""
}

func TestCreateTicketDefaultsAndHistory(t *testing.T) {
	f := newOrgFixture()
	svc := f.ticketService()

	view, err := svc.CreateTicket(context.Background(), admin(), TicketCreateInput{
		TeamID: "billing",
		Title:  "  Invoice missing ",
		Tags:   []string{"vip", " ", "vip", "eu"},
	})
	require.NoError(t, err)

	ticket := view.Ticket
	assert.Equal(t, "b-intake", ticket.StageID, "lowest sequence stage is the default")
	assert.Equal(t, domain.TicketPriorityMedium, ticket.Priority)
	assert.Equal(t, "Invoice missing", ticket.Title)
	assert.Equal(t, []string{"vip", "eu"}, ticket.Tags)
	assert.Contains(t, ticket.ExternalKey, "TCK-")

	stageChanges := f.history.ofType(ticket.ID, domain.ChangeTypeStage)
	require.Len(t, stageChanges, 1)
	assert.Equal(t, "", stageChanges[0].OldValue["stage_id"])
	assert.Equal(t, "b-intake", stageChanges[0].NewValue["stage_id"])

	assert.Equal(t, []string{ticket.ID}, f.engine.applied)
	assert.Equal(t, []events.EventType{events.EventTicketCreated}, f.dispatcher.types())
}

func TestCreateTicketValidation(t *testing.T) {
	f := newOrgFixture()
	svc := f.ticketService()
	ctx := context.Background()

	cases := []struct {
		name  string
		input TicketCreateInput
		code  string
	}{
		{"missing title", TicketCreateInput{TeamID: "support"}, "VALIDATION_FAILED"},
		{"missing team", TicketCreateInput{Title: "x"}, "VALIDATION_FAILED"},
		{"unknown team", TicketCreateInput{TeamID: "nope", Title: "x"}, "NOT_FOUND"},
		{"inactive team", TicketCreateInput{TeamID: "retired", Title: "x"}, "CONFLICT"},
		{"foreign stage", TicketCreateInput{TeamID: "support", StageID: strPtr("b-open"), Title: "x"}, "VALIDATION_FAILED"},
		{"bad priority", TicketCreateInput{TeamID: "support", Title: "x", Priority: "CRITICAL"}, "VALIDATION_FAILED"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateTicket(ctx, admin(), tc.input)
			require.Error(t, err)
			assert.Equal(t, tc.code, errCode(err))
		})
	}
	assert.Empty(t, f.engine.applied)
}

func TestCreateTicketRequiresStaff(t *testing.T) {
	f := newOrgFixture()
	_, err := f.ticketService().CreateTicket(context.Background(), nil, TicketCreateInput{TeamID: "support", Title: "x"})
	assert.Equal(t, "UNAUTHORIZED", errCode(err))
}

func TestChangeStageUsesHistoryTime(t *testing.T) {
	f := newOrgFixture()
	svc := f.ticketService()
	ctx := context.Background()

	view, err := svc.CreateTicket(ctx, admin(), TicketCreateInput{TeamID: "support", Title: "Broken login"})
	require.NoError(t, err)
	f.statuses.items = append(f.statuses.items, domain.SLAStatus{ID: "st-1", TicketID: view.Ticket.ID, PolicyID: "p1"})

	f.clock.Advance(3 * time.Hour)
	moved, err := svc.ChangeStage(ctx, agentOf("support"), view.Ticket.ID, "s-done")
	require.NoError(t, err)

	assert.Equal(t, "s-done", moved.Ticket.StageID)
	require.NotNil(t, moved.Ticket.ClosedAt)
	require.Len(t, f.engine.stageCalls, 1)
	assert.Equal(t, testNow.Add(3*time.Hour), f.engine.stageCalls[0])

	changes := f.history.ofType(view.Ticket.ID, domain.ChangeTypeStage)
	require.Len(t, changes, 2)
	assert.Equal(t, "s-new", changes[1].OldValue["stage_id"])
	assert.Equal(t, events.EventTicketStageChanged, f.dispatcher.events[len(f.dispatcher.events)-1].Type)
}

func TestChangeStageRejectsForeignStage(t *testing.T) {
	f := newOrgFixture()
	svc := f.ticketService()
	ctx := context.Background()

	view, err := svc.CreateTicket(ctx, admin(), TicketCreateInput{TeamID: "support", Title: "x"})
	require.NoError(t, err)

	_, err = svc.ChangeStage(ctx, admin(), view.Ticket.ID, "b-open")
	assert.Equal(t, "VALIDATION_FAILED", errCode(err))
	assert.Empty(t, f.engine.stageCalls)
}

func TestChangeStageSameStageIsNoop(t *testing.T) {
	f := newOrgFixture()
	svc := f.ticketService()
	ctx := context.Background()

	view, err := svc.CreateTicket(ctx, admin(), TicketCreateInput{TeamID: "support", Title: "x"})
	require.NoError(t, err)

	_, err = svc.ChangeStage(ctx, admin(), view.Ticket.ID, "s-new")
	require.NoError(t, err)
	assert.Empty(t, f.engine.stageCalls)
	assert.Len(t, f.history.ofType(view.Ticket.ID, domain.ChangeTypeStage), 1)
}

func TestAgentOfOtherTeamDenied(t *testing.T) {
	f := newOrgFixture()
	svc := f.ticketService()
	ctx := context.Background()

	view, err := svc.CreateTicket(ctx, admin(), TicketCreateInput{TeamID: "support", Title: "x"})
	require.NoError(t, err)

	_, err = svc.GetTicket(ctx, agentOf("billing"), view.Ticket.ID)
	assert.Equal(t, "FORBIDDEN", errCode(err))

	_, err = svc.GetTicket(ctx, agentOf("support"), view.Ticket.ID)
	assert.NoError(t, err)
}

func TestUpdateTicketTeamChangeResetsStage(t *testing.T) {
	f := newOrgFixture()
	svc := f.ticketService()
	ctx := context.Background()

	view, err := svc.CreateTicket(ctx, admin(), TicketCreateInput{TeamID: "support", Title: "x"})
	require.NoError(t, err)
	_, err = svc.ChangeStage(ctx, admin(), view.Ticket.ID, "s-progress")
	require.NoError(t, err)

	updated, err := svc.UpdateTicket(ctx, admin(), view.Ticket.ID, TicketUpdateInput{TeamID: strPtr("billing")})
	require.NoError(t, err)

	assert.Equal(t, "billing", updated.Ticket.TeamID)
	assert.Equal(t, "b-intake", updated.Ticket.StageID)
	assert.Len(t, f.history.ofType(view.Ticket.ID, domain.ChangeTypeTeam), 1)
	stageChanges := f.history.ofType(view.Ticket.ID, domain.ChangeTypeStage)
	require.Len(t, stageChanges, 3)
	assert.Equal(t, "s-progress", stageChanges[2].OldValue["stage_id"])
	assert.Equal(t, []string{view.Ticket.ID, view.Ticket.ID}, f.engine.applied)
}

func TestUpdateTicketTriggerFields(t *testing.T) {
	f := newOrgFixture()
	svc := f.ticketService()
	ctx := context.Background()

	view, err := svc.CreateTicket(ctx, admin(), TicketCreateInput{TeamID: "support", Title: "x", Tags: []string{"a"}})
	require.NoError(t, err)
	f.engine.applied = nil

	_, err = svc.UpdateTicket(ctx, admin(), view.Ticket.ID, TicketUpdateInput{Title: strPtr("renamed")})
	require.NoError(t, err)
	assert.Empty(t, f.engine.applied, "title is not an SLA field")

	_, err = svc.UpdateTicket(ctx, admin(), view.Ticket.ID, TicketUpdateInput{Tags: &[]string{"a"}})
	require.NoError(t, err)
	assert.Empty(t, f.engine.applied, "unchanged tags")

	urgent := domain.TicketPriorityUrgent
	_, err = svc.UpdateTicket(ctx, admin(), view.Ticket.ID, TicketUpdateInput{Priority: &urgent, CustomerID: strPtr("acme")})
	require.NoError(t, err)
	assert.Len(t, f.engine.applied, 1)
	assert.Len(t, f.history.ofType(view.Ticket.ID, domain.ChangeTypePriority), 1)
	assert.Len(t, f.history.ofType(view.Ticket.ID, domain.ChangeTypeCustomer), 1)

	_, err = svc.UpdateTicket(ctx, admin(), view.Ticket.ID, TicketUpdateInput{ClearCustomer: true})
	require.NoError(t, err)
	assert.Len(t, f.engine.applied, 2)
	stored, _ := f.tickets.GetByID(ctx, view.Ticket.ID)
	assert.Nil(t, stored.CustomerID)
}

func TestGetTicketDerivesState(t *testing.T) {
	f := newOrgFixture()
	svc := f.ticketService()
	ctx := context.Background()

	view, err := svc.CreateTicket(ctx, admin(), TicketCreateInput{TeamID: "support", Title: "x"})
	require.NoError(t, err)
	deadline := testNow.Add(time.Hour)
	f.statuses.items = append(f.statuses.items, domain.SLAStatus{ID: "st-1", TicketID: view.Ticket.ID, PolicyID: "p1", Deadline: &deadline})

	got, err := svc.GetTicket(ctx, admin(), view.Ticket.ID)
	require.NoError(t, err)
	require.Len(t, got.Statuses, 1)
	assert.Equal(t, domain.SLAStateOngoing, got.Statuses[0].State)

	f.clock.Advance(2 * time.Hour)
	got, err = svc.GetTicket(ctx, admin(), view.Ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SLAStateFailed, got.Statuses[0].State)
}

func TestListTicketsScopesAgents(t *testing.T) {
	f := newOrgFixture()
	svc := f.ticketService()
	ctx := context.Background()

	_, err := svc.CreateTicket(ctx, admin(), TicketCreateInput{TeamID: "support", Title: "a"})
	require.NoError(t, err)
	_, err = svc.CreateTicket(ctx, admin(), TicketCreateInput{TeamID: "billing", Title: "b"})
	require.NoError(t, err)

	all, err := svc.ListTickets(ctx, admin(), TicketStaffFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	scoped, err := svc.ListTickets(ctx, agentOf("billing"), TicketStaffFilter{TeamID: strPtr("support")})
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "billing", scoped[0].TeamID)
}
