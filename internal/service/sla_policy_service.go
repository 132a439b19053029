package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/deskops/helpdesk-sla/internal/clock"
	"github.com/deskops/helpdesk-sla/internal/domain"
	"github.com/deskops/helpdesk-sla/internal/repository"
	apperrors "github.com/deskops/helpdesk-sla/pkg/util/errorutil"
)

// SLAPolicyService manages SLA policies and exposes status listings.
type SLAPolicyService struct {
	policies repository.SLAPolicyRepository
	statuses repository.SLAStatusRepository
	tickets  repository.TicketRepository
	teams    repository.TeamRepository
	stages   repository.StageRepository
	staff    repository.StaffRepository
	engine   SLAEngine
	clock    clock.Clock
	logger   *zap.Logger
}

// SLAPolicyDependencies bundles collaborators for the policy service.
type SLAPolicyDependencies struct {
	PolicyRepo    repository.SLAPolicyRepository
	SLAStatusRepo repository.SLAStatusRepository
	TicketRepo    repository.TicketRepository
	TeamRepo      repository.TeamRepository
	StageRepo     repository.StageRepository
	StaffRepo     repository.StaffRepository
	Engine        SLAEngine
	Clock         clock.Clock
	Logger        *zap.Logger
}

// SLAPolicyInput carries the full set of policy attributes.
type SLAPolicyInput struct {
	Name              string
	Description       string
	TeamID            string
	MinPriority       *domain.TicketPriority
	Tags              []string
	CustomerIDs       []string
	TargetStageID     string
	ExcludedStageIDs  []string
	TimeHours         *float64
	EscalationStaffID *string
	Active            *bool
}

// SLAStatusListFilter narrows status listings.
type SLAStatusListFilter struct {
	TicketID *string
	PolicyID *string
	State    *domain.SLAState
	Limit    int
	Offset   int
}

// NewSLAPolicyService constructs the service.
func NewSLAPolicyService(deps SLAPolicyDependencies) *SLAPolicyService {
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SLAPolicyService{
		policies: deps.PolicyRepo,
		statuses: deps.SLAStatusRepo,
		tickets:  deps.TicketRepo,
		teams:    deps.TeamRepo,
		stages:   deps.StageRepo,
		staff:    deps.StaffRepo,
		engine:   deps.Engine,
		clock:    clk,
		logger:   logger,
	}
}

// CreatePolicy validates and stores a policy. Existing tickets are matched
// the next time one of their SLA fields changes.
func (s *SLAPolicyService) CreatePolicy(ctx context.Context, actor *domain.StaffMember, input SLAPolicyInput) (*domain.SLAPolicy, error) {
	if err := requireManager(actor); err != nil {
		return nil, err
	}
	policy := &domain.SLAPolicy{Active: true}
	if err := s.fill(ctx, policy, input); err != nil {
		return nil, err
	}
	if err := s.policies.Create(ctx, policy); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.logger.Info("sla policy created", zap.String("policy_id", policy.ID), zap.String("team_id", policy.TeamID))
	return policy, nil
}

// UpdatePolicy replaces policy attributes. A change to duration or excluded
// stages refreshes the deadlines of every unreached status of the policy.
func (s *SLAPolicyService) UpdatePolicy(ctx context.Context, actor *domain.StaffMember, id string, input SLAPolicyInput) (*domain.SLAPolicy, error) {
	if err := requireManager(actor); err != nil {
		return nil, err
	}
	policy, err := s.policies.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "sla_policy", id)
	}
	if input.TeamID != "" && input.TeamID != policy.TeamID {
		return nil, apperrors.NewValidationError("team of a policy cannot change",
			map[string]any{"team_id": policy.TeamID})
	}
	input.TeamID = policy.TeamID
	before := *policy
	if err := s.fill(ctx, policy, input); err != nil {
		return nil, err
	}
	if err := s.policies.Update(ctx, policy); err != nil {
		return nil, notFoundOr(err, "sla_policy", id)
	}
	if deadlineInputsChanged(&before, policy) {
		s.recomputeOpenStatuses(ctx, policy.ID)
	}
	return policy, nil
}

// DeletePolicy removes a policy together with its statuses.
func (s *SLAPolicyService) DeletePolicy(ctx context.Context, actor *domain.StaffMember, id string) error {
	if err := requireManager(actor); err != nil {
		return err
	}
	if err := s.policies.Delete(ctx, id); err != nil {
		return notFoundOr(err, "sla_policy", id)
	}
	return nil
}

// GetPolicy fetches a policy.
func (s *SLAPolicyService) GetPolicy(ctx context.Context, actor *domain.StaffMember, id string) (*domain.SLAPolicy, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	policy, err := s.policies.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "sla_policy", id)
	}
	return policy, nil
}

// ListPolicies lists policies, optionally for one team.
func (s *SLAPolicyService) ListPolicies(ctx context.Context, actor *domain.StaffMember, teamID *string) ([]domain.SLAPolicy, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	policies, err := s.policies.List(ctx, normalizeOptional(teamID))
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return policies, nil
}

// ListStatuses lists SLA statuses with their state evaluated now.
func (s *SLAPolicyService) ListStatuses(ctx context.Context, actor *domain.StaffMember, filter SLAStatusListFilter) ([]StatusView, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	if filter.State != nil && !filter.State.Valid() {
		return nil, apperrors.NewValidationError("invalid state", map[string]any{"state": *filter.State})
	}
	now := s.clock.Now()
	statuses, err := s.statuses.List(ctx, repository.SLAStatusFilter{
		TicketID: filter.TicketID,
		PolicyID: filter.PolicyID,
		State:    filter.State,
		Now:      now,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	out := make([]StatusView, 0, len(statuses))
	for i := range statuses {
		out = append(out, StatusView{Status: statuses[i], State: statuses[i].State(now)})
	}
	return out, nil
}

func (s *SLAPolicyService) fill(ctx context.Context, policy *domain.SLAPolicy, input SLAPolicyInput) error {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return apperrors.NewValidationError("name is required", nil)
	}
	if input.TimeHours != nil && *input.TimeHours < 0 {
		return apperrors.NewValidationError("time_hours must not be negative", map[string]any{"time_hours": *input.TimeHours})
	}
	if input.MinPriority != nil && !input.MinPriority.Valid() {
		return apperrors.NewValidationError("invalid priority", map[string]any{"min_priority": *input.MinPriority})
	}
	if input.TeamID == "" {
		return apperrors.NewValidationError("team_id is required", nil)
	}
	if _, err := s.teams.GetByID(ctx, input.TeamID); err != nil {
		return notFoundOr(err, "team", input.TeamID)
	}

	stages, err := s.stages.ListByTeam(ctx, input.TeamID)
	if err != nil {
		return apperrors.MapError(err)
	}
	owned := make(map[string]struct{}, len(stages))
	for _, stage := range stages {
		owned[stage.ID] = struct{}{}
	}
	if _, ok := owned[input.TargetStageID]; !ok {
		return apperrors.NewValidationError("target stage must belong to the team",
			map[string]any{"target_stage_id": input.TargetStageID})
	}
	excluded := normalizeTags(input.ExcludedStageIDs)
	for _, id := range excluded {
		if _, ok := owned[id]; !ok {
			return apperrors.NewValidationError("excluded stage must belong to the team",
				map[string]any{"stage_id": id})
		}
		if id == input.TargetStageID {
			return apperrors.NewValidationError("target stage cannot be excluded",
				map[string]any{"stage_id": id})
		}
	}

	escalation := normalizeOptional(input.EscalationStaffID)
	if escalation != nil {
		staff, err := s.staff.GetByID(ctx, *escalation)
		if err != nil {
			return notFoundOr(err, "staff", *escalation)
		}
		if !staff.Active {
			return apperrors.NewConflict("escalation contact inactive", map[string]any{"staff_id": *escalation})
		}
	}

	policy.Name = name
	policy.Description = strings.TrimSpace(input.Description)
	policy.TeamID = input.TeamID
	policy.MinPriority = input.MinPriority
	policy.Tags = normalizeTags(input.Tags)
	policy.CustomerIDs = normalizeTags(input.CustomerIDs)
	policy.TargetStageID = input.TargetStageID
	policy.ExcludedStageIDs = excluded
	policy.TimeHours = input.TimeHours
	policy.EscalationStaffID = escalation
	if input.Active != nil {
		policy.Active = *input.Active
	}
	return nil
}

// recomputeOpenStatuses logs failures per ticket; the policy change itself
// is already stored.
func (s *SLAPolicyService) recomputeOpenStatuses(ctx context.Context, policyID string) {
	statuses, err := s.statuses.ListUnreachedByPolicy(ctx, policyID)
	if err != nil {
		s.logger.Error("list open statuses failed", zap.String("policy_id", policyID), zap.Error(err))
		return
	}
	seen := make(map[string]struct{}, len(statuses))
	for _, status := range statuses {
		if _, ok := seen[status.TicketID]; ok {
			continue
		}
		seen[status.TicketID] = struct{}{}
		ticket, err := s.tickets.GetByID(ctx, status.TicketID)
		if err == nil {
			_, err = s.engine.Recompute(ctx, ticket)
		}
		if err != nil {
			s.logger.Warn("recompute deadlines failed",
				zap.String("policy_id", policyID),
				zap.String("ticket_id", status.TicketID),
				zap.Error(err))
		}
	}
}

func deadlineInputsChanged(before, after *domain.SLAPolicy) bool {
	if !sameHours(before.TimeHours, after.TimeHours) {
		return true
	}
	return !sameStrings(before.ExcludedStageIDs, after.ExcludedStageIDs)
}

func sameHours(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// requireManager admits team leads and admins.
func requireManager(actor *domain.StaffMember) error {
	if actor == nil {
		return apperrors.NewUnauthorized("staff required")
	}
	if !actor.Role.Manages() {
		return apperrors.NewForbidden("team lead or admin role required")
	}
	return nil
}
