package sla

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/deskops/helpdesk-sla/internal/clock"
	"github.com/deskops/helpdesk-sla/internal/domain"
	"github.com/deskops/helpdesk-sla/internal/observability"
)

const defaultScanBatch = 500

// EscalationStore persists escalation notifications.
type EscalationStore interface {
	// HasOpen reports whether an unresolved notification carries key.
	HasOpen(ctx context.Context, key string) (bool, error)
	// Create inserts n and reports false when an open notification with the
	// same key already exists.
	Create(ctx context.Context, n *domain.EscalationNotification) (bool, error)
}

// Notifier delivers a freshly created escalation. Delivery is fire and
// forget.
type Notifier interface {
	NotifyBreach(ctx context.Context, n domain.EscalationNotification)
}

// ScanResult summarises one breach scanner pass. Frozen counts statuses
// whose ticket sits in an excluded stage of the policy.
type ScanResult struct {
	Scanned int
	Created int
	Skipped int
	Frozen  int
	Failed  int
}

// Scanner raises one escalation notification per breached status and
// escalation contact.
type Scanner struct {
	statuses    StatusStore
	policies    PolicySource
	tickets     TicketSource
	escalations EscalationStore
	notifier    Notifier
	clock       clock.Clock
	logger      *zap.Logger
	metrics     *observability.Metrics
	batchSize   int
}

// ScannerDependencies bundles collaborators for the scanner.
type ScannerDependencies struct {
	Statuses    StatusStore
	Policies    PolicySource
	Tickets     TicketSource
	Escalations EscalationStore
	Notifier    Notifier
	Clock       clock.Clock
	Logger      *zap.Logger
	Metrics     *observability.Metrics
	BatchSize   int
}

// NewScanner constructs the scanner.
func NewScanner(deps ScannerDependencies) *Scanner {
	s := &Scanner{
		statuses:    deps.Statuses,
		policies:    deps.Policies,
		tickets:     deps.Tickets,
		escalations: deps.Escalations,
		notifier:    deps.Notifier,
		clock:       deps.Clock,
		logger:      deps.Logger,
		metrics:     deps.Metrics,
		batchSize:   deps.BatchSize,
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.batchSize <= 0 {
		s.batchSize = defaultScanBatch
	}
	return s
}

// Scan processes every unreached status whose deadline has passed, in
// deadline order, one page of batchSize at a time. A failure on one status
// is logged and counted; only a failure to load a page aborts the pass.
func (s *Scanner) Scan(ctx context.Context) (ScanResult, error) {
	ctx, span := tracer.Start(ctx, "sla.Scan", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	begin := time.Now()
	now := s.clock.Now()
	memo := scanMemo{
		policies: make(map[string]*domain.SLAPolicy),
		tickets:  make(map[string]*domain.Ticket),
	}
	var (
		result ScanResult
		after  *domain.BreachCursor
	)
	for {
		breached, err := s.statuses.ListBreached(ctx, now, after, s.batchSize)
		if err != nil {
			s.metrics.RecordScan(err, time.Since(begin))
			span.RecordError(err)
			span.SetStatus(codes.Error, "list breached statuses")
			return result, fmt.Errorf("list breached statuses: %w", err)
		}
		for i := range breached {
			s.process(ctx, memo, breached[i], &result)
		}
		if len(breached) < s.batchSize {
			break
		}
		after = breached[len(breached)-1].CursorAfter()
	}

	span.SetAttributes(
		attribute.Int("sla.scanned", result.Scanned),
		attribute.Int("sla.created", result.Created),
		attribute.Int("sla.frozen", result.Frozen),
		attribute.Int("sla.failed", result.Failed))
	s.metrics.RecordScan(nil, time.Since(begin))
	s.logger.Info("sla breach scan finished",
		zap.Int("scanned", result.Scanned),
		zap.Int("created", result.Created),
		zap.Int("skipped", result.Skipped),
		zap.Int("frozen", result.Frozen),
		zap.Int("failed", result.Failed))
	return result, nil
}

type scanMemo struct {
	policies map[string]*domain.SLAPolicy
	tickets  map[string]*domain.Ticket
}

type escalateOutcome int

const (
	outcomeSkipped escalateOutcome = iota
	outcomeCreated
	outcomeFrozen
)

func (s *Scanner) process(ctx context.Context, memo scanMemo, status domain.SLAStatus, result *ScanResult) {
	result.Scanned++
	outcome, err := s.escalate(ctx, memo, status)
	if err != nil {
		result.Failed++
		s.metrics.RecordEscalation("failed")
		s.logger.Error("sla escalation failed",
			zap.String("status_id", status.ID),
			zap.String("ticket_id", status.TicketID),
			zap.Error(err))
		return
	}
	switch outcome {
	case outcomeCreated:
		result.Created++
		s.metrics.RecordEscalation("created")
	case outcomeFrozen:
		result.Frozen++
		s.metrics.RecordEscalation("frozen")
	default:
		result.Skipped++
		s.metrics.RecordEscalation("skipped")
	}
}

// escalate reports what happened to one breached status.
func (s *Scanner) escalate(ctx context.Context, memo scanMemo, status domain.SLAStatus) (escalateOutcome, error) {
	if status.Deadline == nil {
		return outcomeSkipped, nil
	}
	policy, ok := memo.policies[status.PolicyID]
	if !ok {
		loaded, err := s.policies.GetByID(ctx, status.PolicyID)
		if err != nil {
			return outcomeSkipped, fmt.Errorf("load policy %s: %w", status.PolicyID, err)
		}
		policy = loaded
		memo.policies[status.PolicyID] = policy
	}
	frozen, err := s.frozen(ctx, memo, policy, status)
	if err != nil {
		return outcomeSkipped, err
	}
	if frozen {
		return outcomeFrozen, nil
	}
	if policy.EscalationStaffID == nil || *policy.EscalationStaffID == "" {
		return outcomeSkipped, nil
	}

	recipient := *policy.EscalationStaffID
	key := domain.BreachKey(status.ID, recipient)
	exists, err := s.escalations.HasOpen(ctx, key)
	if err != nil {
		return outcomeSkipped, fmt.Errorf("check open escalation: %w", err)
	}
	if exists {
		return outcomeSkipped, nil
	}

	notification := domain.EscalationNotification{
		IdempotencyKey: key,
		StatusID:       status.ID,
		TicketID:       status.TicketID,
		PolicyID:       policy.ID,
		RecipientID:    recipient,
		Summary:        fmt.Sprintf("SLA breach: %s (deadline %s)", policy.Name, status.Deadline.UTC().Format(time.RFC3339)),
		Deadline:       *status.Deadline,
	}
	created, err := s.escalations.Create(ctx, &notification)
	if err != nil {
		return outcomeSkipped, fmt.Errorf("create escalation: %w", err)
	}
	if !created {
		return outcomeSkipped, nil
	}
	if s.notifier != nil {
		s.notifier.NotifyBreach(ctx, notification)
	}
	return outcomeCreated, nil
}

// frozen reports whether the ticket currently sits in one of the policy's
// excluded stages, where the SLA clock does not run. The stored deadline of
// such a status is stale until the ticket leaves the stage.
func (s *Scanner) frozen(ctx context.Context, memo scanMemo, policy *domain.SLAPolicy, status domain.SLAStatus) (bool, error) {
	if len(policy.ExcludedStageIDs) == 0 || s.tickets == nil {
		return false, nil
	}
	ticket, ok := memo.tickets[status.TicketID]
	if !ok {
		loaded, err := s.tickets.GetByID(ctx, status.TicketID)
		if err != nil {
			return false, fmt.Errorf("load ticket %s: %w", status.TicketID, err)
		}
		ticket = loaded
		memo.tickets[status.TicketID] = ticket
	}
	return policy.Excludes(ticket.StageID), nil
}
