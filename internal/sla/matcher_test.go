package sla

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskops/helpdesk-sla/internal/domain"
)

func teamStages() map[string]domain.Stage {
	return map[string]domain.Stage{
		"new":      {ID: "new", TeamID: "team-1", Name: "New", Sequence: 1},
		"waiting":  {ID: "waiting", TeamID: "team-1", Name: "Waiting", Sequence: 2},
		"progress": {ID: "progress", TeamID: "team-1", Name: "In Progress", Sequence: 3},
		"done":     {ID: "done", TeamID: "team-1", Name: "Done", Sequence: 4, Folded: true},
	}
}

func basePolicy(id string) domain.SLAPolicy {
	return domain.SLAPolicy{
		ID:            id,
		Name:          "Policy " + id,
		TeamID:        "team-1",
		TargetStageID: "done",
		TimeHours:     hoursPtr(8),
		Active:        true,
	}
}

func baseTicket() *domain.Ticket {
	return &domain.Ticket{
		ID:       "t1",
		TeamID:   "team-1",
		StageID:  "new",
		Priority: domain.TicketPriorityMedium,
		Tags:     []string{"A", "B"},
	}
}

func matchedIDs(policies []domain.SLAPolicy) []string {
	ids := make([]string, 0, len(policies))
	for _, p := range policies {
		ids = append(ids, p.ID)
	}
	return ids
}

func TestMatchTeamAndActive(t *testing.T) {
	other := basePolicy("other")
	other.TeamID = "team-2"
	inactive := basePolicy("inactive")
	inactive.Active = false

	got := Match(baseTicket(), []domain.SLAPolicy{basePolicy("p1"), other, inactive}, teamStages())
	assert.Equal(t, []string{"p1"}, matchedIDs(got))
}

func TestMatchMinimumPriority(t *testing.T) {
	high := basePolicy("high")
	high.MinPriority = priorityPtr(domain.TicketPriorityHigh)
	low := basePolicy("low")
	low.MinPriority = priorityPtr(domain.TicketPriorityLow)

	ticket := baseTicket()
	assert.Equal(t, []string{"low"}, matchedIDs(Match(ticket, []domain.SLAPolicy{high, low}, teamStages())))

	ticket.Priority = domain.TicketPriorityUrgent
	assert.ElementsMatch(t, []string{"high", "low"}, matchedIDs(Match(ticket, []domain.SLAPolicy{high, low}, teamStages())))
}

func TestMatchTagsNeedIntersection(t *testing.T) {
	tagged := basePolicy("tagged")
	tagged.Tags = []string{"C"}

	ticket := baseTicket()
	assert.Empty(t, Match(ticket, []domain.SLAPolicy{tagged}, teamStages()))

	ticket.Tags = []string{"B", "C"}
	assert.Len(t, Match(ticket, []domain.SLAPolicy{tagged}, teamStages()), 1)

	ticket.Tags = nil
	assert.Empty(t, Match(ticket, []domain.SLAPolicy{tagged}, teamStages()))
}

func TestMatchCustomerAllowList(t *testing.T) {
	vip := basePolicy("vip")
	vip.CustomerIDs = []string{"acme"}

	ticket := baseTicket()
	assert.Empty(t, Match(ticket, []domain.SLAPolicy{vip}, teamStages()))

	ticket.CustomerID = strPtr("globex")
	assert.Empty(t, Match(ticket, []domain.SLAPolicy{vip}, teamStages()))

	ticket.CustomerID = strPtr("acme")
	assert.Len(t, Match(ticket, []domain.SLAPolicy{vip}, teamStages()), 1)
}

func TestMatchTargetStageMustBeAhead(t *testing.T) {
	toProgress := basePolicy("progress")
	toProgress.TargetStageID = "progress"

	ticket := baseTicket()
	ticket.StageID = "progress"
	assert.Empty(t, Match(ticket, []domain.SLAPolicy{toProgress}, teamStages()), "equal sequence")

	ticket.StageID = "done"
	assert.Empty(t, Match(ticket, []domain.SLAPolicy{toProgress}, teamStages()), "later sequence")

	ticket.StageID = "waiting"
	assert.Len(t, Match(ticket, []domain.SLAPolicy{toProgress}, teamStages()), 1)
}

func TestMatchUnknownTargetStage(t *testing.T) {
	broken := basePolicy("broken")
	broken.TargetStageID = "gone"
	assert.Empty(t, Match(baseTicket(), []domain.SLAPolicy{broken}, teamStages()))
}

func TestDiff(t *testing.T) {
	reachedAt := base
	existing := []domain.SLAStatus{
		{ID: "s1", TicketID: "t1", PolicyID: "p1"},
		{ID: "s2", TicketID: "t1", PolicyID: "p2"},
		{ID: "s3", TicketID: "t1", PolicyID: "p3", ReachedAt: &reachedAt},
	}
	matched := []domain.SLAPolicy{basePolicy("p1"), basePolicy("p4")}

	plan := Diff(matched, existing)
	require.Len(t, plan.Create, 1)
	assert.Equal(t, "p4", plan.Create[0].ID)
	require.Len(t, plan.Remove, 1)
	assert.Equal(t, "s2", plan.Remove[0].ID)
	assert.ElementsMatch(t, []string{"s1", "s3"}, []string{plan.Keep[0].ID, plan.Keep[1].ID})
}

func TestDiffNothingToDo(t *testing.T) {
	plan := Diff(nil, nil)
	assert.Empty(t, plan.Create)
	assert.Empty(t, plan.Remove)
	assert.Empty(t, plan.Keep)
}
