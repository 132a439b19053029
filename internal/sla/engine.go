// Package sla implements the SLA rule engine: policy matching, status
// lifecycle with reached detection, deadline computation over working
// calendars, and the breach scanner.
package sla

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/deskops/helpdesk-sla/internal/calendar"
	"github.com/deskops/helpdesk-sla/internal/clock"
	"github.com/deskops/helpdesk-sla/internal/domain"
	"github.com/deskops/helpdesk-sla/internal/observability"
)

var tracer = otel.Tracer("github.com/deskops/helpdesk-sla/internal/sla")

var errNoCalendar = errors.New("no working calendar resolved")

// PolicySource loads SLA policies.
type PolicySource interface {
	GetByID(ctx context.Context, id string) (*domain.SLAPolicy, error)
	ListActiveByTeam(ctx context.Context, teamID string) ([]domain.SLAPolicy, error)
}

// StageSource lists a team's stages.
type StageSource interface {
	ListByTeam(ctx context.Context, teamID string) ([]domain.Stage, error)
}

// StatusStore persists SLA statuses.
type StatusStore interface {
	ListByTicket(ctx context.Context, ticketID string) ([]domain.SLAStatus, error)
	Create(ctx context.Context, status *domain.SLAStatus) error
	Delete(ctx context.Context, id string) error
	UpdateDeadline(ctx context.Context, id string, deadline *time.Time) error
	// MarkReached sets reached_at only when it is still unset and reports
	// whether a row changed.
	MarkReached(ctx context.Context, id string, at time.Time) (bool, error)
	// ListBreached returns up to limit unreached statuses past their
	// deadline in (deadline, id) order, strictly after the cursor if any.
	ListBreached(ctx context.Context, now time.Time, after *domain.BreachCursor, limit int) ([]domain.SLAStatus, error)
}

// TicketSource loads tickets.
type TicketSource interface {
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
}

// HistorySource returns a ticket's stage transitions in chronological order.
type HistorySource interface {
	ListStageChanges(ctx context.Context, ticketID string) ([]domain.StageChange, error)
}

// CalendarSource resolves the working calendar for a team. A nil calendar
// with a nil error means none is configured.
type CalendarSource interface {
	ForTeam(ctx context.Context, teamID string) (*calendar.Calendar, error)
}

// Engine keeps a ticket's SLA statuses consistent with its attributes and
// stage.
type Engine struct {
	policies  PolicySource
	stages    StageSource
	statuses  StatusStore
	history   HistorySource
	calendars CalendarSource
	clock     clock.Clock
	logger    *zap.Logger
	metrics   *observability.Metrics
}

// EngineDependencies bundles collaborators for the engine.
type EngineDependencies struct {
	Policies  PolicySource
	Stages    StageSource
	Statuses  StatusStore
	History   HistorySource
	Calendars CalendarSource
	Clock     clock.Clock
	Logger    *zap.Logger
	Metrics   *observability.Metrics
}

// NewEngine constructs the engine.
func NewEngine(deps EngineDependencies) *Engine {
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		policies:  deps.Policies,
		stages:    deps.Stages,
		statuses:  deps.Statuses,
		history:   deps.History,
		calendars: deps.Calendars,
		clock:     clk,
		logger:    logger,
		metrics:   deps.Metrics,
	}
}

// ApplyResult reports the status writes performed by Apply.
type ApplyResult struct {
	Created []domain.SLAStatus
	Removed []domain.SLAStatus
	Kept    []domain.SLAStatus
}

// Apply recomputes which policies match ticket and creates or removes
// statuses accordingly. Call it on ticket creation and whenever team,
// priority, tags or customer change.
func (e *Engine) Apply(ctx context.Context, ticket *domain.Ticket) (ApplyResult, error) {
	ctx, span := tracer.Start(ctx, "sla.Apply")
	defer span.End()
	span.SetAttributes(attribute.String("ticket.id", ticket.ID))

	policies, err := e.policies.ListActiveByTeam(ctx, ticket.TeamID)
	if err != nil {
		return ApplyResult{}, fmt.Errorf("list policies: %w", err)
	}
	stages, err := e.stageIndex(ctx, ticket.TeamID)
	if err != nil {
		return ApplyResult{}, err
	}
	existing, err := e.statuses.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return ApplyResult{}, fmt.Errorf("list statuses: %w", err)
	}

	plan := Diff(Match(ticket, policies, stages), existing)
	result := ApplyResult{Kept: plan.Keep}

	for _, status := range plan.Remove {
		if err := e.statuses.Delete(ctx, status.ID); err != nil {
			return result, fmt.Errorf("delete status %s: %w", status.ID, err)
		}
		result.Removed = append(result.Removed, status)
	}

	if len(plan.Create) > 0 {
		inputs, err := e.deadlineInputs(ctx, ticket)
		if err != nil {
			return result, err
		}
		for i := range plan.Create {
			policy := plan.Create[i]
			status := domain.SLAStatus{
				TicketID: ticket.ID,
				PolicyID: policy.ID,
				Deadline: e.deadline(ticket, &policy, inputs),
			}
			if err := e.statuses.Create(ctx, &status); err != nil {
				return result, fmt.Errorf("create status for policy %s: %w", policy.ID, err)
			}
			result.Created = append(result.Created, status)
		}
	}

	e.metrics.RecordStatusChange("created", len(result.Created))
	e.metrics.RecordStatusChange("removed", len(result.Removed))
	if len(result.Created) > 0 || len(result.Removed) > 0 {
		e.logger.Info("sla statuses applied",
			zap.String("ticket_id", ticket.ID),
			zap.Int("created", len(result.Created)),
			zap.Int("removed", len(result.Removed)))
	}
	return result, nil
}

// OnStageChange marks statuses reached when ticket has just entered their
// target stage at the given time, then recomputes the deadlines of the
// remaining unreached statuses since frozen time may have changed.
func (e *Engine) OnStageChange(ctx context.Context, ticket *domain.Ticket, at time.Time) ([]domain.SLAStatus, error) {
	ctx, span := tracer.Start(ctx, "sla.OnStageChange")
	defer span.End()
	span.SetAttributes(attribute.String("ticket.id", ticket.ID), attribute.String("stage.id", ticket.StageID))

	statuses, err := e.statuses.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, fmt.Errorf("list statuses: %w", err)
	}

	policies := make(map[string]*domain.SLAPolicy)
	var (
		pending []int
		reached int
	)
	for i := range statuses {
		status := &statuses[i]
		if status.Reached() {
			continue
		}
		policy, err := e.policy(ctx, policies, status.PolicyID)
		if err != nil {
			return nil, err
		}
		if policy.TargetStageID == ticket.StageID {
			changed, err := e.statuses.MarkReached(ctx, status.ID, at)
			if err != nil {
				return nil, fmt.Errorf("mark status %s reached: %w", status.ID, err)
			}
			if changed {
				reachedAt := at
				status.ReachedAt = &reachedAt
				reached++
			}
			continue
		}
		pending = append(pending, i)
	}
	e.metrics.RecordStatusChange("reached", reached)

	if len(pending) == 0 {
		return statuses, nil
	}
	inputs, err := e.deadlineInputs(ctx, ticket)
	if err != nil {
		return nil, err
	}
	for _, i := range pending {
		status := &statuses[i]
		deadline := e.deadline(ticket, policies[status.PolicyID], inputs)
		if sameDeadline(status.Deadline, deadline) {
			continue
		}
		if err := e.statuses.UpdateDeadline(ctx, status.ID, deadline); err != nil {
			return nil, fmt.Errorf("update deadline of status %s: %w", status.ID, err)
		}
		status.Deadline = deadline
	}
	return statuses, nil
}

// Recompute refreshes the deadlines of every unreached status of ticket.
func (e *Engine) Recompute(ctx context.Context, ticket *domain.Ticket) ([]domain.SLAStatus, error) {
	ctx, span := tracer.Start(ctx, "sla.Recompute")
	defer span.End()

	statuses, err := e.statuses.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, fmt.Errorf("list statuses: %w", err)
	}
	inputs, err := e.deadlineInputs(ctx, ticket)
	if err != nil {
		return nil, err
	}
	policies := make(map[string]*domain.SLAPolicy)
	for i := range statuses {
		status := &statuses[i]
		if status.Reached() {
			continue
		}
		policy, err := e.policy(ctx, policies, status.PolicyID)
		if err != nil {
			return nil, err
		}
		deadline := e.deadline(ticket, policy, inputs)
		if sameDeadline(status.Deadline, deadline) {
			continue
		}
		if err := e.statuses.UpdateDeadline(ctx, status.ID, deadline); err != nil {
			return nil, fmt.Errorf("update deadline of status %s: %w", status.ID, err)
		}
		status.Deadline = deadline
	}
	return statuses, nil
}

type deadlineInputs struct {
	changes  []domain.StageChange
	calendar *calendar.Calendar
	now      time.Time
}

func (e *Engine) deadlineInputs(ctx context.Context, ticket *domain.Ticket) (deadlineInputs, error) {
	changes, err := e.history.ListStageChanges(ctx, ticket.ID)
	if err != nil {
		return deadlineInputs{}, fmt.Errorf("list stage changes: %w", err)
	}
	var cal *calendar.Calendar
	if e.calendars != nil {
		cal, err = e.calendars.ForTeam(ctx, ticket.TeamID)
		if err != nil {
			// Planning falls back to linear hours below.
			e.logger.Warn("resolve calendar failed",
				zap.String("team_id", ticket.TeamID),
				zap.Error(err))
			cal = nil
		}
	}
	return deadlineInputs{changes: changes, calendar: cal, now: e.clock.Now()}, nil
}

// deadline returns nil when the ticket has no creation time or the policy no
// duration.
func (e *Engine) deadline(ticket *domain.Ticket, policy *domain.SLAPolicy, in deadlineInputs) *time.Time {
	if ticket.CreatedAt.IsZero() || policy == nil || policy.TimeHours == nil {
		return nil
	}
	start := ticket.CreatedAt
	hours := EffectiveHours(*policy.TimeHours, FrozenDuration(in.changes, policy.ExcludedStageIDs, in.now))
	if hours <= 0 {
		return &start
	}

	planned, err := planHours(in.calendar, start, hours)
	if err != nil {
		e.metrics.RecordDeadlineFallback()
		e.logger.Warn("calendar planning failed, using linear hours",
			zap.String("ticket_id", ticket.ID),
			zap.String("policy_id", policy.ID),
			zap.Float64("hours", hours),
			zap.Error(err))
		planned = start.Add(time.Duration(hours * float64(time.Hour)))
	}
	return &planned
}

func planHours(cal *calendar.Calendar, start time.Time, hours float64) (time.Time, error) {
	if cal == nil {
		return time.Time{}, errNoCalendar
	}
	return cal.PlanHours(start, hours)
}

func (e *Engine) stageIndex(ctx context.Context, teamID string) (map[string]domain.Stage, error) {
	stages, err := e.stages.ListByTeam(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("list stages: %w", err)
	}
	index := make(map[string]domain.Stage, len(stages))
	for _, stage := range stages {
		index[stage.ID] = stage
	}
	return index, nil
}

func (e *Engine) policy(ctx context.Context, memo map[string]*domain.SLAPolicy, id string) (*domain.SLAPolicy, error) {
	if policy, ok := memo[id]; ok {
		return policy, nil
	}
	policy, err := e.policies.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load policy %s: %w", id, err)
	}
	memo[id] = policy
	return policy, nil
}

func sameDeadline(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
