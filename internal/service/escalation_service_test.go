package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskops/helpdesk-sla/internal/clock"
	"github.com/deskops/helpdesk-sla/internal/domain"
	"github.com/deskops/helpdesk-sla/internal/sla"
)

type stubScanner struct {
	result sla.ScanResult
	err    error
	calls  int
}

func (s *stubScanner) Scan(context.Context) (sla.ScanResult, error) {
	s.calls++
	return s.result, s.err
}

func newEscalationFixture() (*EscalationService, *memEscalations, *stubScanner) {
	store := &memEscalations{items: []domain.EscalationNotification{
		{ID: "e1", IdempotencyKey: "sla-breach:s1:lead", RecipientID: "lead", TicketID: "t1"},
		{ID: "e2", IdempotencyKey: "sla-breach:s2:other", RecipientID: "other", TicketID: "t2"},
	}}
	scanner := &stubScanner{result: sla.ScanResult{Scanned: 2, Created: 1, Skipped: 1}}
	svc := NewEscalationService(EscalationDependencies{
		EscalationRepo: store,
		Scanner:        scanner,
		Clock:          clock.NewFake(testNow),
	})
	return svc, store, scanner
}

func TestEscalationListScopesToRecipient(t *testing.T) {
	svc, _, _ := newEscalationFixture()
	lead := &domain.StaffMember{ID: "lead", Role: domain.StaffRoleTeamLead}

	own, err := svc.List(context.Background(), lead, true, 50, 0)
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, "e1", own[0].ID)

	all, err := svc.List(context.Background(), admin(), true, 50, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestEscalationResolve(t *testing.T) {
	svc, store, _ := newEscalationFixture()
	ctx := context.Background()
	lead := &domain.StaffMember{ID: "lead", Role: domain.StaffRoleTeamLead}

	_, err := svc.Resolve(ctx, lead, "e2")
	assert.Equal(t, "FORBIDDEN", errCode(err))

	resolved, err := svc.Resolve(ctx, lead, "e1")
	require.NoError(t, err)
	require.NotNil(t, resolved.ResolvedAt)
	assert.Equal(t, testNow, *resolved.ResolvedAt)
	assert.False(t, store.items[0].Open())

	_, err = svc.Resolve(ctx, lead, "e1")
	assert.Equal(t, "CONFLICT", errCode(err))

	_, err = svc.Resolve(ctx, lead, "missing")
	assert.Equal(t, "NOT_FOUND", errCode(err))
}

func TestEscalationScan(t *testing.T) {
	svc, _, scanner := newEscalationFixture()
	ctx := context.Background()

	_, err := svc.Scan(ctx, agentOf("support"))
	assert.Equal(t, "FORBIDDEN", errCode(err))
	assert.Zero(t, scanner.calls)

	result, err := svc.Scan(ctx, admin())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)

	scanner.err = errors.New("db down")
	_, err = svc.Scan(ctx, admin())
	assert.Equal(t, "INTERNAL_ERROR", errCode(err))
}
