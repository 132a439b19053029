package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskops/helpdesk-sla/internal/domain"
	"github.com/deskops/helpdesk-sla/internal/events"
)

func (f *orgFixture) assignmentService() *AssignmentService {
	return NewAssignmentService(AssignmentDependencies{
		TicketRepo:  f.tickets,
		StaffRepo:   f.staff,
		HistoryRepo: f.history,
		Dispatcher:  f.dispatcher,
		Clock:       f.clock,
	})
}

func TestAssignTicketToStaff(t *testing.T) {
	f := newOrgFixture()
	f.tickets.items["t1"] = &domain.Ticket{ID: "t1", TeamID: "support", StageID: "s-new"}
	f.staff["a1"] = &domain.StaffMember{ID: "a1", Role: domain.StaffRoleAgent, TeamID: strPtr("support"), Active: true}
	f.staff["a2"] = &domain.StaffMember{ID: "a2", Role: domain.StaffRoleAgent, TeamID: strPtr("billing"), Active: true}
	lead := &domain.StaffMember{ID: "lead", Role: domain.StaffRoleTeamLead, TeamID: strPtr("support"), Active: true}
	svc := f.assignmentService()
	ctx := context.Background()

	ticket, err := svc.AssignTicketToStaff(ctx, lead, "t1", "a1")
	require.NoError(t, err)
	assert.Equal(t, "a1", *ticket.AssigneeID)
	assert.Len(t, f.history.ofType("t1", domain.ChangeTypeAssignee), 1)
	assert.Equal(t, []events.EventType{events.EventTicketAssigned}, f.dispatcher.types())

	_, err = svc.AssignTicketToStaff(ctx, lead, "t1", "a2")
	assert.Equal(t, "FORBIDDEN", errCode(err), "assignee outside the ticket team")

	_, err = svc.AssignTicketToStaff(ctx, admin(), "t1", "a2")
	assert.NoError(t, err)

	_, err = svc.AssignTicketToStaff(ctx, agentOf("support"), "t1", "a1")
	assert.Equal(t, "FORBIDDEN", errCode(err))
}

func TestSelfAssignIsIdempotent(t *testing.T) {
	f := newOrgFixture()
	f.tickets.items["t1"] = &domain.Ticket{ID: "t1", TeamID: "support", StageID: "s-new"}
	svc := f.assignmentService()
	agent := agentOf("support")

	_, err := svc.SelfAssignTicket(context.Background(), agent, "t1")
	require.NoError(t, err)
	_, err = svc.SelfAssignTicket(context.Background(), agent, "t1")
	require.NoError(t, err)
	assert.Len(t, f.history.ofType("t1", domain.ChangeTypeAssignee), 1)

	unassigned, err := svc.UnassignTicket(context.Background(), admin(), "t1")
	require.NoError(t, err)
	assert.Nil(t, unassigned.AssigneeID)
}
