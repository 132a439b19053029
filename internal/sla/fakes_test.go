package sla

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/deskops/helpdesk-sla/internal/calendar"
	"github.com/deskops/helpdesk-sla/internal/domain"
)

var errNotFound = errors.New("not found")

type fakePolicies struct {
	byID map[string]domain.SLAPolicy
	fail map[string]error
}

func newFakePolicies(policies ...domain.SLAPolicy) *fakePolicies {
	f := &fakePolicies{byID: map[string]domain.SLAPolicy{}, fail: map[string]error{}}
	for _, p := range policies {
		f.byID[p.ID] = p
	}
	return f
}

func (f *fakePolicies) GetByID(_ context.Context, id string) (*domain.SLAPolicy, error) {
	if err := f.fail[id]; err != nil {
		return nil, err
	}
	p, ok := f.byID[id]
	if !ok {
		return nil, errNotFound
	}
	return &p, nil
}

func (f *fakePolicies) ListActiveByTeam(_ context.Context, teamID string) ([]domain.SLAPolicy, error) {
	var out []domain.SLAPolicy
	for _, p := range f.byID {
		if p.Active && p.TeamID == teamID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type fakeStages map[string][]domain.Stage

func (f fakeStages) ListByTeam(_ context.Context, teamID string) ([]domain.Stage, error) {
	return f[teamID], nil
}

type fakeStatuses struct {
	items  map[string]*domain.SLAStatus
	nextID int
	pages  int
}

func newFakeStatuses() *fakeStatuses {
	return &fakeStatuses{items: map[string]*domain.SLAStatus{}}
}

func (f *fakeStatuses) put(s domain.SLAStatus) {
	cp := s
	f.items[s.ID] = &cp
}

func (f *fakeStatuses) ListByTicket(_ context.Context, ticketID string) ([]domain.SLAStatus, error) {
	var out []domain.SLAStatus
	for _, s := range f.items {
		if s.TicketID == ticketID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStatuses) Create(_ context.Context, s *domain.SLAStatus) error {
	for _, existing := range f.items {
		if existing.TicketID == s.TicketID && existing.PolicyID == s.PolicyID {
			return fmt.Errorf("duplicate status for %s/%s", s.TicketID, s.PolicyID)
		}
	}
	f.nextID++
	s.ID = fmt.Sprintf("status-%d", f.nextID)
	f.put(*s)
	return nil
}

func (f *fakeStatuses) Delete(_ context.Context, id string) error {
	delete(f.items, id)
	return nil
}

func (f *fakeStatuses) UpdateDeadline(_ context.Context, id string, deadline *time.Time) error {
	s, ok := f.items[id]
	if !ok {
		return errNotFound
	}
	s.Deadline = deadline
	return nil
}

func (f *fakeStatuses) MarkReached(_ context.Context, id string, at time.Time) (bool, error) {
	s, ok := f.items[id]
	if !ok {
		return false, errNotFound
	}
	if s.ReachedAt != nil {
		return false, nil
	}
	s.ReachedAt = &at
	return true, nil
}

func (f *fakeStatuses) ListBreached(_ context.Context, now time.Time, after *domain.BreachCursor, limit int) ([]domain.SLAStatus, error) {
	f.pages++
	var out []domain.SLAStatus
	for _, s := range f.items {
		if s.ReachedAt != nil || s.Deadline == nil || !s.Deadline.Before(now) {
			continue
		}
		if after != nil && !cursorBefore(*after, *s) {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Deadline.Equal(*out[j].Deadline) {
			return out[i].Deadline.Before(*out[j].Deadline)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cursorBefore(c domain.BreachCursor, s domain.SLAStatus) bool {
	if !c.Deadline.Equal(*s.Deadline) {
		return c.Deadline.Before(*s.Deadline)
	}
	return c.ID < s.ID
}

type fakeTickets map[string]*domain.Ticket

func (f fakeTickets) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	t, ok := f[id]
	if !ok {
		return nil, errNotFound
	}
	return t, nil
}

type fakeHistory map[string][]domain.StageChange

func (f fakeHistory) ListStageChanges(_ context.Context, ticketID string) ([]domain.StageChange, error) {
	return f[ticketID], nil
}

type fakeCalendars struct {
	cal *calendar.Calendar
	err error
}

func (f fakeCalendars) ForTeam(context.Context, string) (*calendar.Calendar, error) {
	return f.cal, f.err
}

type fakeEscalations struct {
	items []domain.EscalationNotification
	fail  error
}

func (f *fakeEscalations) HasOpen(_ context.Context, key string) (bool, error) {
	for _, n := range f.items {
		if n.IdempotencyKey == key && n.Open() {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeEscalations) Create(ctx context.Context, n *domain.EscalationNotification) (bool, error) {
	if f.fail != nil {
		return false, f.fail
	}
	if open, _ := f.HasOpen(ctx, n.IdempotencyKey); open {
		return false, nil
	}
	n.ID = fmt.Sprintf("esc-%d", len(f.items)+1)
	f.items = append(f.items, *n)
	return true, nil
}

type fakeNotifier struct {
	sent []domain.EscalationNotification
}

func (f *fakeNotifier) NotifyBreach(_ context.Context, n domain.EscalationNotification) {
	f.sent = append(f.sent, n)
}

func hoursPtr(h float64) *float64 { return &h }

func strPtr(s string) *string { return &s }

func priorityPtr(p domain.TicketPriority) *domain.TicketPriority { return &p }

func timePtr(t time.Time) *time.Time { return &t }
