package entitlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskops/helpdesk-sla/internal/cache"
	"github.com/deskops/helpdesk-sla/internal/clock"
	"github.com/deskops/helpdesk-sla/internal/domain"
)

type stubStore struct {
	records map[string]domain.Entitlement
	gets    int
	err     error
}

func newStubStore() *stubStore {
	return &stubStore{records: map[string]domain.Entitlement{}}
}

func (s *stubStore) Get(_ context.Context, tenantID, feature string) (*domain.Entitlement, error) {
	s.gets++
	if s.err != nil {
		return nil, s.err
	}
	e, ok := s.records[tenantID+"/"+feature]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &e, nil
}

func (s *stubStore) Upsert(_ context.Context, e *domain.Entitlement) error {
	s.records[e.TenantID+"/"+e.Feature] = *e
	return nil
}

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestGate(store *stubStore, clk *clock.Fake) *Gate {
	return NewGate(GateDependencies{
		Store: store,
		Cache: cache.NewMemory(clk),
		TTL:   time.Minute,
		Clock: clk,
	})
}

func TestEnabledFlag(t *testing.T) {
	store := newStubStore()
	store.records["acme/"+domain.FeatureSLA] = domain.Entitlement{TenantID: "acme", Feature: domain.FeatureSLA, Enabled: true}
	gate := newTestGate(store, clock.NewFake(now))

	ok, err := gate.Enabled(context.Background(), "acme", domain.FeatureSLA)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMissingEntitlementIsDisabled(t *testing.T) {
	gate := newTestGate(newStubStore(), clock.NewFake(now))

	ok, err := gate.Enabled(context.Background(), "acme", domain.FeatureSLA)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTrialExpiresWhileCached(t *testing.T) {
	store := newStubStore()
	trialEnd := now.Add(30 * time.Second)
	store.records["acme/"+domain.FeatureSLA] = domain.Entitlement{TenantID: "acme", Feature: domain.FeatureSLA, TrialEndsAt: &trialEnd}
	clk := clock.NewFake(now)
	gate := newTestGate(store, clk)

	ok, err := gate.Enabled(context.Background(), "acme", domain.FeatureSLA)
	require.NoError(t, err)
	assert.True(t, ok)

	clk.Advance(40 * time.Second)
	ok, err = gate.Enabled(context.Background(), "acme", domain.FeatureSLA)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, store.gets, "second call served from cache")
}

func TestCacheExpiresAfterTTL(t *testing.T) {
	store := newStubStore()
	clk := clock.NewFake(now)
	gate := newTestGate(store, clk)

	ok, err := gate.Enabled(context.Background(), "acme", domain.FeatureSLA)
	require.NoError(t, err)
	assert.False(t, ok)

	store.records["acme/"+domain.FeatureSLA] = domain.Entitlement{TenantID: "acme", Feature: domain.FeatureSLA, Enabled: true}
	ok, err = gate.Enabled(context.Background(), "acme", domain.FeatureSLA)
	require.NoError(t, err)
	assert.False(t, ok, "stale value until TTL")

	clk.Advance(61 * time.Second)
	ok, err = gate.Enabled(context.Background(), "acme", domain.FeatureSLA)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUpdateInvalidatesCache(t *testing.T) {
	store := newStubStore()
	gate := newTestGate(store, clock.NewFake(now))

	ok, err := gate.Enabled(context.Background(), "acme", domain.FeatureSLA)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, gate.Update(context.Background(), &domain.Entitlement{TenantID: "acme", Feature: domain.FeatureSLA, Enabled: true}))
	ok, err = gate.Enabled(context.Background(), "acme", domain.FeatureSLA)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStoreErrorPropagates(t *testing.T) {
	store := newStubStore()
	store.err = errors.New("db down")
	gate := newTestGate(store, clock.NewFake(now))

	_, err := gate.Enabled(context.Background(), "acme", domain.FeatureSLA)
	assert.ErrorIs(t, err, store.err)
}
