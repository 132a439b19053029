package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/deskops/helpdesk-sla/internal/calendar"
	"github.com/deskops/helpdesk-sla/internal/clock"
	"github.com/deskops/helpdesk-sla/internal/domain"
	"github.com/deskops/helpdesk-sla/internal/events"
	"github.com/deskops/helpdesk-sla/internal/repository"
	"github.com/deskops/helpdesk-sla/internal/sla"
)

var testNow = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type memTickets struct {
	items  map[string]*domain.Ticket
	clock  clock.Clock
	nextID int
}

func newMemTickets(clk clock.Clock) *memTickets {
	return &memTickets{items: map[string]*domain.Ticket{}, clock: clk}
}

func (m *memTickets) Create(_ context.Context, t *domain.Ticket) error {
	m.nextID++
	t.ID = fmt.Sprintf("ticket-%d", m.nextID)
	t.CreatedAt = m.clock.Now()
	t.UpdatedAt = t.CreatedAt
	cp := *t
	m.items[t.ID] = &cp
	return nil
}

func (m *memTickets) Update(_ context.Context, t *domain.Ticket) error {
	if _, ok := m.items[t.ID]; !ok {
		return pgx.ErrNoRows
	}
	t.UpdatedAt = m.clock.Now()
	cp := *t
	m.items[t.ID] = &cp
	return nil
}

func (m *memTickets) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	t, ok := m.items[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *t
	return &cp, nil
}

func (m *memTickets) GetByExternalKey(_ context.Context, key string) (*domain.Ticket, error) {
	for _, t := range m.items {
		if t.ExternalKey == key {
			cp := *t
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memTickets) ListWithFilter(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	var out []domain.Ticket
	for _, t := range m.items {
		if filter.TeamID != nil && t.TeamID != *filter.TeamID {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memTeams map[string]*domain.Team

func (m memTeams) Create(_ context.Context, t *domain.Team) error {
	t.ID = fmt.Sprintf("team-%d", len(m)+1)
	cp := *t
	m[t.ID] = &cp
	return nil
}

func (m memTeams) Update(_ context.Context, t *domain.Team) error {
	if _, ok := m[t.ID]; !ok {
		return pgx.ErrNoRows
	}
	cp := *t
	m[t.ID] = &cp
	return nil
}

func (m memTeams) GetByID(_ context.Context, id string) (*domain.Team, error) {
	t, ok := m[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *t
	return &cp, nil
}

func (m memTeams) List(_ context.Context, activeOnly bool) ([]domain.Team, error) {
	var out []domain.Team
	for _, t := range m {
		if t.IsActive || !activeOnly {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memStages map[string]domain.Stage

func (m memStages) Create(_ context.Context, s *domain.Stage) error {
	s.ID = fmt.Sprintf("stage-%d", len(m)+1)
	m[s.ID] = *s
	return nil
}

func (m memStages) GetByID(_ context.Context, id string) (*domain.Stage, error) {
	s, ok := m[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &s, nil
}

func (m memStages) ListByTeam(_ context.Context, teamID string) ([]domain.Stage, error) {
	var out []domain.Stage
	for _, s := range m {
		if s.TeamID == teamID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

type memHistory struct {
	entries []domain.TicketHistory
	clock   clock.Clock
}

func (m *memHistory) Create(_ context.Context, h *domain.TicketHistory) error {
	h.ID = fmt.Sprintf("history-%d", len(m.entries)+1)
	h.CreatedAt = m.clock.Now()
	m.entries = append(m.entries, *h)
	return nil
}

func (m *memHistory) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketHistory, error) {
	var out []domain.TicketHistory
	for _, h := range m.entries {
		if h.TicketID == ticketID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (m *memHistory) ListStageChanges(ctx context.Context, ticketID string) ([]domain.StageChange, error) {
	entries, _ := m.ListByTicket(ctx, ticketID)
	var out []domain.StageChange
	for _, h := range entries {
		if change, ok := h.StageChange(); ok {
			out = append(out, change)
		}
	}
	return out, nil
}

func (m *memHistory) ofType(ticketID string, change domain.TicketChangeType) []domain.TicketHistory {
	var out []domain.TicketHistory
	for _, h := range m.entries {
		if h.TicketID == ticketID && h.ChangeType == change {
			out = append(out, h)
		}
	}
	return out
}

type memStatuses struct {
	items []domain.SLAStatus
}

func (m *memStatuses) Create(_ context.Context, s *domain.SLAStatus) error {
	s.ID = fmt.Sprintf("status-%d", len(m.items)+1)
	m.items = append(m.items, *s)
	return nil
}

func (m *memStatuses) Delete(_ context.Context, id string) error {
	for i, s := range m.items {
		if s.ID == id {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *memStatuses) UpdateDeadline(_ context.Context, id string, deadline *time.Time) error {
	for i := range m.items {
		if m.items[i].ID == id {
			m.items[i].Deadline = deadline
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (m *memStatuses) MarkReached(_ context.Context, id string, at time.Time) (bool, error) {
	for i := range m.items {
		if m.items[i].ID == id && m.items[i].ReachedAt == nil {
			m.items[i].ReachedAt = &at
			return true, nil
		}
	}
	return false, nil
}

func (m *memStatuses) ListByTicket(_ context.Context, ticketID string) ([]domain.SLAStatus, error) {
	var out []domain.SLAStatus
	for _, s := range m.items {
		if s.TicketID == ticketID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStatuses) ListBreached(_ context.Context, now time.Time, after *domain.BreachCursor, limit int) ([]domain.SLAStatus, error) {
	var out []domain.SLAStatus
	for _, s := range m.items {
		if s.ReachedAt != nil || s.Deadline == nil || !s.Deadline.Before(now) {
			continue
		}
		if after != nil && (s.Deadline.Before(after.Deadline) || (s.Deadline.Equal(after.Deadline) && s.ID <= after.ID)) {
			continue
		}
		out = append(out, s)
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

func (m *memStatuses) ListUnreachedByPolicy(_ context.Context, policyID string) ([]domain.SLAStatus, error) {
	var out []domain.SLAStatus
	for _, s := range m.items {
		if s.PolicyID == policyID && s.ReachedAt == nil {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStatuses) List(_ context.Context, filter repository.SLAStatusFilter) ([]domain.SLAStatus, error) {
	var out []domain.SLAStatus
	for _, s := range m.items {
		if filter.TicketID != nil && s.TicketID != *filter.TicketID {
			continue
		}
		if filter.PolicyID != nil && s.PolicyID != *filter.PolicyID {
			continue
		}
		if filter.State != nil && s.State(filter.Now) != *filter.State {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

type memStaff map[string]*domain.StaffMember

func (m memStaff) Create(_ context.Context, s *domain.StaffMember) error {
	s.ID = fmt.Sprintf("staff-%d", len(m)+1)
	cp := *s
	m[s.ID] = &cp
	return nil
}

func (m memStaff) Update(_ context.Context, s *domain.StaffMember) error {
	if _, ok := m[s.ID]; !ok {
		return pgx.ErrNoRows
	}
	cp := *s
	m[s.ID] = &cp
	return nil
}

func (m memStaff) GetByID(_ context.Context, id string) (*domain.StaffMember, error) {
	s, ok := m[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *s
	return &cp, nil
}

func (m memStaff) GetByEmail(_ context.Context, email string) (*domain.StaffMember, error) {
	for _, s := range m {
		if s.Email == email {
			cp := *s
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m memStaff) List(_ context.Context, filter repository.StaffFilter) ([]domain.StaffMember, error) {
	var out []domain.StaffMember
	for _, s := range m {
		if filter.Role != nil && s.Role != *filter.Role {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memPolicies map[string]*domain.SLAPolicy

func (m memPolicies) Create(_ context.Context, p *domain.SLAPolicy) error {
	p.ID = fmt.Sprintf("policy-%d", len(m)+1)
	cp := *p
	m[p.ID] = &cp
	return nil
}

func (m memPolicies) Update(_ context.Context, p *domain.SLAPolicy) error {
	if _, ok := m[p.ID]; !ok {
		return pgx.ErrNoRows
	}
	cp := *p
	m[p.ID] = &cp
	return nil
}

func (m memPolicies) Delete(_ context.Context, id string) error {
	if _, ok := m[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(m, id)
	return nil
}

func (m memPolicies) GetByID(_ context.Context, id string) (*domain.SLAPolicy, error) {
	p, ok := m[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *p
	return &cp, nil
}

func (m memPolicies) List(_ context.Context, teamID *string) ([]domain.SLAPolicy, error) {
	var out []domain.SLAPolicy
	for _, p := range m {
		if teamID == nil || p.TeamID == *teamID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m memPolicies) ListActiveByTeam(ctx context.Context, teamID string) ([]domain.SLAPolicy, error) {
	all, _ := m.List(ctx, &teamID)
	var out []domain.SLAPolicy
	for _, p := range all {
		if p.Active {
			out = append(out, p)
		}
	}
	return out, nil
}

type memEscalations struct {
	items []domain.EscalationNotification
}

func (m *memEscalations) HasOpen(_ context.Context, key string) (bool, error) {
	for _, n := range m.items {
		if n.IdempotencyKey == key && n.Open() {
			return true, nil
		}
	}
	return false, nil
}

func (m *memEscalations) Create(ctx context.Context, n *domain.EscalationNotification) (bool, error) {
	if open, _ := m.HasOpen(ctx, n.IdempotencyKey); open {
		return false, nil
	}
	n.ID = fmt.Sprintf("esc-%d", len(m.items)+1)
	m.items = append(m.items, *n)
	return true, nil
}

func (m *memEscalations) GetByID(_ context.Context, id string) (*domain.EscalationNotification, error) {
	for _, n := range m.items {
		if n.ID == id {
			cp := n
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memEscalations) List(_ context.Context, openOnly bool, _, _ int) ([]domain.EscalationNotification, error) {
	var out []domain.EscalationNotification
	for _, n := range m.items {
		if openOnly && !n.Open() {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (m *memEscalations) Resolve(_ context.Context, id string, at time.Time) error {
	for i := range m.items {
		if m.items[i].ID == id && m.items[i].Open() {
			m.items[i].ResolvedAt = &at
			return nil
		}
	}
	return pgx.ErrNoRows
}

type memCalendars map[string]*calendar.Calendar

func (m memCalendars) Create(_ context.Context, c *calendar.Calendar) error {
	c.ID = fmt.Sprintf("cal-%d", len(m)+1)
	cp := *c
	m[c.ID] = &cp
	return nil
}

func (m memCalendars) Update(_ context.Context, c *calendar.Calendar) error {
	if _, ok := m[c.ID]; !ok {
		return pgx.ErrNoRows
	}
	cp := *c
	m[c.ID] = &cp
	return nil
}

func (m memCalendars) GetByID(_ context.Context, id string) (*calendar.Calendar, error) {
	c, ok := m[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *c
	return &cp, nil
}

func (m memCalendars) Get(ctx context.Context, id string) (*calendar.Calendar, error) {
	return m.GetByID(ctx, id)
}

func (m memCalendars) GetDefault(context.Context) (*calendar.Calendar, error) {
	for _, c := range m {
		if c.IsDefault {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (m memCalendars) List(context.Context) ([]calendar.Calendar, error) {
	var out []calendar.Calendar
	for _, c := range m {
		out = append(out, *c)
	}
	return out, nil
}

type recordingEngine struct {
	applied    []string
	stageCalls []time.Time
	recomputed []string
	statuses   *memStatuses
}

func (e *recordingEngine) Apply(_ context.Context, t *domain.Ticket) (sla.ApplyResult, error) {
	e.applied = append(e.applied, t.ID)
	return sla.ApplyResult{}, nil
}

func (e *recordingEngine) OnStageChange(ctx context.Context, t *domain.Ticket, at time.Time) ([]domain.SLAStatus, error) {
	e.stageCalls = append(e.stageCalls, at)
	if e.statuses == nil {
		return nil, nil
	}
	return e.statuses.ListByTicket(ctx, t.ID)
}

func (e *recordingEngine) Recompute(_ context.Context, t *domain.Ticket) ([]domain.SLAStatus, error) {
	e.recomputed = append(e.recomputed, t.ID)
	return nil, nil
}

type recordingDispatcher struct {
	events []events.Event
}

func (d *recordingDispatcher) Publish(_ context.Context, e events.Event) error {
	d.events = append(d.events, e)
	return nil
}

func (d *recordingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (d *recordingDispatcher) types() []events.EventType {
	out := make([]events.EventType, 0, len(d.events))
	for _, e := range d.events {
		out = append(out, e.Type)
	}
	return out
}

func strPtr(s string) *string { return &s }

func hoursPtr(h float64) *float64 { return &h }

func admin() *domain.StaffMember {
	return &domain.StaffMember{ID: "admin-1", Role: domain.StaffRoleAdmin, Active: true}
}

func agentOf(teamID string) *domain.StaffMember {
	return &domain.StaffMember{ID: "agent-" + teamID, Role: domain.StaffRoleAgent, TeamID: strPtr(teamID), Active: true}
}

// orgFixture seeds two teams with a three-stage pipeline each.
type orgFixture struct {
	clock      *clock.Fake
	tickets    *memTickets
	teams      memTeams
	stages     memStages
	history    *memHistory
	statuses   *memStatuses
	staff      memStaff
	policies   memPolicies
	engine     *recordingEngine
	dispatcher *recordingDispatcher
}

func newOrgFixture() *orgFixture {
	clk := clock.NewFake(testNow)
	f := &orgFixture{
		clock:   clk,
		tickets: newMemTickets(clk),
		teams: memTeams{
			"support": {ID: "support", Name: "Support", IsActive: true},
			"billing": {ID: "billing", Name: "Billing", IsActive: true},
			"retired": {ID: "retired", Name: "Retired", IsActive: false},
		},
		stages: memStages{
			"s-new":      {ID: "s-new", TeamID: "support", Name: "New", Sequence: 1},
			"s-progress": {ID: "s-progress", TeamID: "support", Name: "In Progress", Sequence: 2},
			"s-done":     {ID: "s-done", TeamID: "support", Name: "Done", Sequence: 3, Folded: true},
			"b-open":     {ID: "b-open", TeamID: "billing", Name: "Open", Sequence: 5},
			"b-intake":   {ID: "b-intake", TeamID: "billing", Name: "Intake", Sequence: 1},
		},
		history:    &memHistory{clock: clk},
		statuses:   &memStatuses{},
		staff:      memStaff{},
		policies:   memPolicies{},
		dispatcher: &recordingDispatcher{},
	}
	f.engine = &recordingEngine{statuses: f.statuses}
	return f
}

func (f *orgFixture) ticketService() *TicketService {
	return NewTicketService(TicketDependencies{
		TicketRepo:    f.tickets,
		TeamRepo:      f.teams,
		StageRepo:     f.stages,
		HistoryRepo:   f.history,
		SLAStatusRepo: f.statuses,
		Engine:        f.engine,
		Dispatcher:    f.dispatcher,
		Clock:         f.clock,
	})
}
