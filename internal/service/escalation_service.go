package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/deskops/helpdesk-sla/internal/clock"
	"github.com/deskops/helpdesk-sla/internal/domain"
	"github.com/deskops/helpdesk-sla/internal/repository"
	"github.com/deskops/helpdesk-sla/internal/sla"
	apperrors "github.com/deskops/helpdesk-sla/pkg/util/errorutil"
)

// BreachScanner runs one breach scanner pass.
type BreachScanner interface {
	Scan(ctx context.Context) (sla.ScanResult, error)
}

// EscalationService exposes escalation notifications and manual scans.
type EscalationService struct {
	escalations repository.EscalationRepository
	scanner     BreachScanner
	clock       clock.Clock
	logger      *zap.Logger
}

// EscalationDependencies bundles collaborators.
type EscalationDependencies struct {
	EscalationRepo repository.EscalationRepository
	Scanner        BreachScanner
	Clock          clock.Clock
	Logger         *zap.Logger
}

// NewEscalationService constructs the service.
func NewEscalationService(deps EscalationDependencies) *EscalationService {
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EscalationService{
		escalations: deps.EscalationRepo,
		scanner:     deps.Scanner,
		clock:       clk,
		logger:      logger,
	}
}

// List returns notifications, newest first. Non-admins only see their own.
func (s *EscalationService) List(ctx context.Context, actor *domain.StaffMember, openOnly bool, limit, offset int) ([]domain.EscalationNotification, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	items, err := s.escalations.List(ctx, openOnly, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if actor.Role == domain.StaffRoleAdmin {
		return items, nil
	}
	own := items[:0]
	for _, n := range items {
		if n.RecipientID == actor.ID {
			own = append(own, n)
		}
	}
	return own, nil
}

// Resolve closes a notification so a later breach of the same status can
// raise a new one.
func (s *EscalationService) Resolve(ctx context.Context, actor *domain.StaffMember, id string) (*domain.EscalationNotification, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	n, err := s.escalations.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "escalation", id)
	}
	if n.RecipientID != actor.ID && actor.Role != domain.StaffRoleAdmin {
		return nil, apperrors.NewForbidden("only the recipient may resolve")
	}
	if !n.Open() {
		return nil, apperrors.NewConflict("escalation already resolved", map[string]any{"escalation_id": id})
	}
	at := s.clock.Now()
	if err := s.escalations.Resolve(ctx, id, at); err != nil {
		return nil, notFoundOr(err, "escalation", id)
	}
	n.ResolvedAt = &at
	return n, nil
}

// Scan triggers a breach scanner pass (ADMIN only).
func (s *EscalationService) Scan(ctx context.Context, actor *domain.StaffMember) (sla.ScanResult, error) {
	if err := requireAdmin(actor); err != nil {
		return sla.ScanResult{}, err
	}
	result, err := s.scanner.Scan(ctx)
	if err != nil {
		return sla.ScanResult{}, apperrors.MapError(err)
	}
	s.logger.Info("manual sla scan", zap.String("staff_id", actor.ID), zap.Int("created", result.Created))
	return result, nil
}
