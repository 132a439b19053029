package sla

import "github.com/deskops/helpdesk-sla/internal/domain"

// Match returns the policies that currently apply to ticket. stages must
// index the ticket team's stages by id. Filters are applied in order:
// team and activity, minimum priority, tag intersection, customer
// allow-list, then target stage still ahead of the current stage.
func Match(ticket *domain.Ticket, policies []domain.SLAPolicy, stages map[string]domain.Stage) []domain.SLAPolicy {
	if ticket == nil {
		return nil
	}
	current, hasCurrent := stages[ticket.StageID]

	matched := make([]domain.SLAPolicy, 0, len(policies))
	for _, policy := range policies {
		if !policy.Active || policy.TeamID != ticket.TeamID {
			continue
		}
		if policy.MinPriority != nil && ticket.Priority.Rank() < policy.MinPriority.Rank() {
			continue
		}
		if len(policy.Tags) > 0 && !intersects(policy.Tags, ticket.Tags) {
			continue
		}
		if len(policy.CustomerIDs) > 0 && (ticket.CustomerID == nil || !contains(policy.CustomerIDs, *ticket.CustomerID)) {
			continue
		}
		target, ok := stages[policy.TargetStageID]
		if !ok {
			continue
		}
		if hasCurrent && target.Sequence <= current.Sequence {
			continue
		}
		matched = append(matched, policy)
	}
	return matched
}

// Plan is the set of status writes needed to bring a ticket in line with
// its matching policies.
type Plan struct {
	Create []domain.SLAPolicy
	Remove []domain.SLAStatus
	Keep   []domain.SLAStatus
}

// Diff compares matched policies with existing statuses. Statuses of
// policies that no longer match are removed unless already reached; a
// reached status is history and is kept.
func Diff(matched []domain.SLAPolicy, existing []domain.SLAStatus) Plan {
	wanted := make(map[string]struct{}, len(matched))
	for _, policy := range matched {
		wanted[policy.ID] = struct{}{}
	}
	have := make(map[string]struct{}, len(existing))

	var plan Plan
	for _, status := range existing {
		have[status.PolicyID] = struct{}{}
		if _, ok := wanted[status.PolicyID]; ok || status.Reached() {
			plan.Keep = append(plan.Keep, status)
			continue
		}
		plan.Remove = append(plan.Remove, status)
	}
	for _, policy := range matched {
		if _, ok := have[policy.ID]; !ok {
			plan.Create = append(plan.Create, policy)
		}
	}
	return plan
}

func intersects(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, v := range a {
		set[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
