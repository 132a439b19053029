package sla

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskops/helpdesk-sla/internal/clock"
	"github.com/deskops/helpdesk-sla/internal/domain"
)

type scannerFixture struct {
	scanner     *Scanner
	statuses    *fakeStatuses
	policies    *fakePolicies
	tickets     fakeTickets
	escalations *fakeEscalations
	notifier    *fakeNotifier
	clock       *clock.Fake
}

func newScannerFixture(now time.Time, policies ...domain.SLAPolicy) *scannerFixture {
	f := &scannerFixture{
		statuses:    newFakeStatuses(),
		policies:    newFakePolicies(policies...),
		tickets:     fakeTickets{},
		escalations: &fakeEscalations{},
		notifier:    &fakeNotifier{},
		clock:       clock.NewFake(now),
	}
	return f.withBatch(0)
}

func (f *scannerFixture) withBatch(size int) *scannerFixture {
	f.scanner = NewScanner(ScannerDependencies{
		Statuses:    f.statuses,
		Policies:    f.policies,
		Tickets:     f.tickets,
		Escalations: f.escalations,
		Notifier:    f.notifier,
		Clock:       f.clock,
		BatchSize:   size,
	})
	return f
}

func escalatingPolicy(id, staffID string) domain.SLAPolicy {
	p := basePolicy(id)
	p.EscalationStaffID = strPtr(staffID)
	return p
}

func TestScanCreatesOneNotificationPerBreach(t *testing.T) {
	f := newScannerFixture(friday(18), escalatingPolicy("p1", "lead-1"))
	f.statuses.put(domain.SLAStatus{ID: "s1", TicketID: "t1", PolicyID: "p1", Deadline: timePtr(friday(17))})

	result, err := f.scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ScanResult{Scanned: 1, Created: 1}, result)
	require.Len(t, f.escalations.items, 1)

	n := f.escalations.items[0]
	assert.Equal(t, "sla-breach:s1:lead-1", n.IdempotencyKey)
	assert.Equal(t, "lead-1", n.RecipientID)
	assert.Equal(t, "t1", n.TicketID)
	assert.Contains(t, n.Summary, "Policy p1")
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, n.ID, f.notifier.sent[0].ID)
}

func TestScanTwiceDoesNotDuplicate(t *testing.T) {
	f := newScannerFixture(friday(18), escalatingPolicy("p1", "lead-1"))
	f.statuses.put(domain.SLAStatus{ID: "s1", TicketID: "t1", PolicyID: "p1", Deadline: timePtr(friday(17))})

	_, err := f.scanner.Scan(context.Background())
	require.NoError(t, err)
	f.clock.Advance(15 * time.Minute)
	second, err := f.scanner.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ScanResult{Scanned: 1, Skipped: 1}, second)
	assert.Len(t, f.escalations.items, 1)
	assert.Len(t, f.notifier.sent, 1)
}

func TestScanRaisesAgainAfterResolution(t *testing.T) {
	f := newScannerFixture(friday(18), escalatingPolicy("p1", "lead-1"))
	f.statuses.put(domain.SLAStatus{ID: "s1", TicketID: "t1", PolicyID: "p1", Deadline: timePtr(friday(17))})
	resolved := friday(17).Add(30 * time.Minute)
	f.escalations.items = append(f.escalations.items, domain.EscalationNotification{
		ID:             "old",
		IdempotencyKey: domain.BreachKey("s1", "lead-1"),
		ResolvedAt:     &resolved,
	})

	result, err := f.scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Len(t, f.escalations.items, 2)
}

func TestScanSkipsPoliciesWithoutContact(t *testing.T) {
	f := newScannerFixture(friday(18), basePolicy("p1"))
	f.statuses.put(domain.SLAStatus{ID: "s1", TicketID: "t1", PolicyID: "p1", Deadline: timePtr(friday(17))})

	result, err := f.scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ScanResult{Scanned: 1, Skipped: 1}, result)
	assert.Empty(t, f.escalations.items)
	assert.Empty(t, f.notifier.sent)
}

func TestScanIgnoresReachedAndPendingStatuses(t *testing.T) {
	f := newScannerFixture(friday(18), escalatingPolicy("p1", "lead-1"))
	f.statuses.put(domain.SLAStatus{ID: "reached", TicketID: "t1", PolicyID: "p1", Deadline: timePtr(friday(17)), ReachedAt: timePtr(friday(17).Add(time.Hour))})
	f.statuses.put(domain.SLAStatus{ID: "pending", TicketID: "t2", PolicyID: "p1", Deadline: timePtr(friday(19))})
	f.statuses.put(domain.SLAStatus{ID: "open-ended", TicketID: "t3", PolicyID: "p1"})

	result, err := f.scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Scanned)
	assert.Empty(t, f.escalations.items)
}

func TestScanIsolatesFailures(t *testing.T) {
	f := newScannerFixture(friday(18), escalatingPolicy("good", "lead-1"), escalatingPolicy("bad", "lead-2"))
	f.policies.fail["bad"] = errors.New("policy store unavailable")
	f.statuses.put(domain.SLAStatus{ID: "s-bad", TicketID: "t1", PolicyID: "bad", Deadline: timePtr(friday(10))})
	f.statuses.put(domain.SLAStatus{ID: "s-good", TicketID: "t2", PolicyID: "good", Deadline: timePtr(friday(11))})

	result, err := f.scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ScanResult{Scanned: 2, Created: 1, Failed: 1}, result)
	require.Len(t, f.escalations.items, 1)
	assert.Equal(t, "s-good", f.escalations.items[0].StatusID)
}

func TestScanProcessesOldestDeadlineFirst(t *testing.T) {
	f := newScannerFixture(friday(18), escalatingPolicy("p1", "lead-1"))
	f.statuses.put(domain.SLAStatus{ID: "late", TicketID: "t1", PolicyID: "p1", Deadline: timePtr(friday(16))})
	f.statuses.put(domain.SLAStatus{ID: "early", TicketID: "t2", PolicyID: "p1", Deadline: timePtr(friday(10))})

	_, err := f.scanner.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, f.notifier.sent, 2)
	assert.Equal(t, "early", f.notifier.sent[0].StatusID)
	assert.Equal(t, "late", f.notifier.sent[1].StatusID)
}

func TestScanCreateErrorCountsAsFailure(t *testing.T) {
	f := newScannerFixture(friday(18), escalatingPolicy("p1", "lead-1"))
	f.escalations.fail = errors.New("insert failed")
	f.statuses.put(domain.SLAStatus{ID: "s1", TicketID: "t1", PolicyID: "p1", Deadline: timePtr(friday(17))})

	result, err := f.scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Empty(t, f.notifier.sent)
}

func TestScanReachesBreachesBehindAnUnescalatedBacklog(t *testing.T) {
	f := newScannerFixture(friday(18), basePolicy("quiet"), escalatingPolicy("loud", "lead-1")).withBatch(3)
	for i, hour := range []int{8, 9, 10} {
		id := fmt.Sprintf("old-%d", i)
		f.statuses.put(domain.SLAStatus{ID: id, TicketID: "t-" + id, PolicyID: "quiet", Deadline: timePtr(friday(hour))})
	}
	f.statuses.put(domain.SLAStatus{ID: "fresh", TicketID: "t-fresh", PolicyID: "loud", Deadline: timePtr(friday(17))})

	for i := 0; i < 5; i++ {
		result, err := f.scanner.Scan(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 4, result.Scanned)
		f.clock.Advance(15 * time.Minute)
	}
	require.Len(t, f.escalations.items, 1)
	assert.Equal(t, "fresh", f.escalations.items[0].StatusID)
	assert.Len(t, f.notifier.sent, 1)
}

func TestScanPagesByDeadlineAndID(t *testing.T) {
	f := newScannerFixture(friday(18), escalatingPolicy("p1", "lead-1")).withBatch(2)
	for _, id := range []string{"d", "b", "a", "c"} {
		f.statuses.put(domain.SLAStatus{ID: id, TicketID: "t-" + id, PolicyID: "p1", Deadline: timePtr(friday(12))})
	}

	result, err := f.scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ScanResult{Scanned: 4, Created: 4}, result)
	assert.Equal(t, 3, f.statuses.pages)

	var order []string
	for _, n := range f.notifier.sent {
		order = append(order, n.StatusID)
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, order)
}

func TestScanLeavesFrozenTicketsAlone(t *testing.T) {
	policy := escalatingPolicy("p1", "lead-1")
	policy.ExcludedStageIDs = []string{"waiting"}
	f := newScannerFixture(friday(20), policy)
	f.tickets["t1"] = &domain.Ticket{ID: "t1", TeamID: "team-1", StageID: "waiting"}
	f.statuses.put(domain.SLAStatus{ID: "s1", TicketID: "t1", PolicyID: "p1", Deadline: timePtr(friday(17))})

	result, err := f.scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ScanResult{Scanned: 1, Frozen: 1}, result)
	assert.Empty(t, f.escalations.items)
	assert.Empty(t, f.notifier.sent)

	f.tickets["t1"].StageID = "progress"
	result, err = f.scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ScanResult{Scanned: 1, Created: 1}, result)
	require.Len(t, f.escalations.items, 1)
}

func TestScanFrozenCheckFailureIsIsolated(t *testing.T) {
	policy := escalatingPolicy("p1", "lead-1")
	policy.ExcludedStageIDs = []string{"waiting"}
	f := newScannerFixture(friday(20), policy)
	f.tickets["t2"] = &domain.Ticket{ID: "t2", TeamID: "team-1", StageID: "new"}
	f.statuses.put(domain.SLAStatus{ID: "s1", TicketID: "missing", PolicyID: "p1", Deadline: timePtr(friday(16))})
	f.statuses.put(domain.SLAStatus{ID: "s2", TicketID: "t2", PolicyID: "p1", Deadline: timePtr(friday(17))})

	result, err := f.scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ScanResult{Scanned: 2, Created: 1, Failed: 1}, result)
	require.Len(t, f.escalations.items, 1)
	assert.Equal(t, "s2", f.escalations.items[0].StatusID)
}
