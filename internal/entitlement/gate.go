// Package entitlement answers whether a tenant may use a paid feature.
package entitlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/deskops/helpdesk-sla/internal/cache"
	"github.com/deskops/helpdesk-sla/internal/clock"
	"github.com/deskops/helpdesk-sla/internal/domain"
)

// Store loads and saves entitlement records.
type Store interface {
	Get(ctx context.Context, tenantID, feature string) (*domain.Entitlement, error)
	Upsert(ctx context.Context, e *domain.Entitlement) error
}

// Gate evaluates entitlements through a short-lived cache. The cached value
// is the record itself so trial expiry is evaluated against the current
// time on every call.
type Gate struct {
	store  Store
	cache  cache.Store
	ttl    time.Duration
	clock  clock.Clock
	logger *zap.Logger
}

// GateDependencies bundles collaborators for the gate.
type GateDependencies struct {
	Store  Store
	Cache  cache.Store
	TTL    time.Duration
	Clock  clock.Clock
	Logger *zap.Logger
}

// NewGate constructs a gate.
func NewGate(deps GateDependencies) *Gate {
	g := &Gate{
		store:  deps.Store,
		cache:  deps.Cache,
		ttl:    deps.TTL,
		clock:  deps.Clock,
		logger: deps.Logger,
	}
	if g.clock == nil {
		g.clock = clock.Real()
	}
	if g.logger == nil {
		g.logger = zap.NewNop()
	}
	return g
}

// cachedEntitlement records a missing row as Found=false so absent
// entitlements are cached too.
type cachedEntitlement struct {
	Found       bool       `json:"found"`
	Enabled     bool       `json:"enabled"`
	TrialEndsAt *time.Time `json:"trial_ends_at,omitempty"`
}

// Enabled reports whether feature is usable by tenant right now.
func (g *Gate) Enabled(ctx context.Context, tenantID, feature string) (bool, error) {
	key := cacheKey(tenantID, feature)

	var entry cachedEntitlement
	hit := false
	if g.cache != nil && g.ttl > 0 {
		err := g.cache.Get(ctx, key, &entry)
		switch {
		case err == nil:
			hit = true
		case !errors.Is(err, cache.ErrMiss):
			g.logger.Warn("entitlement cache read failed", zap.String("key", key), zap.Error(err))
		}
	}

	if !hit {
		record, err := g.store.Get(ctx, tenantID, feature)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			entry = cachedEntitlement{}
		case err != nil:
			return false, fmt.Errorf("load entitlement %s/%s: %w", tenantID, feature, err)
		default:
			entry = cachedEntitlement{Found: true, Enabled: record.Enabled, TrialEndsAt: record.TrialEndsAt}
		}
		if g.cache != nil && g.ttl > 0 {
			if err := g.cache.Set(ctx, key, entry, g.ttl); err != nil {
				g.logger.Warn("entitlement cache write failed", zap.String("key", key), zap.Error(err))
			}
		}
	}

	if !entry.Found {
		return false, nil
	}
	record := domain.Entitlement{Enabled: entry.Enabled, TrialEndsAt: entry.TrialEndsAt}
	return record.Active(g.clock.Now()), nil
}

// Update stores a new entitlement state and drops the cached copy.
func (g *Gate) Update(ctx context.Context, e *domain.Entitlement) error {
	if err := g.store.Upsert(ctx, e); err != nil {
		return fmt.Errorf("save entitlement %s/%s: %w", e.TenantID, e.Feature, err)
	}
	g.Invalidate(ctx, e.TenantID, e.Feature)
	g.logger.Info("entitlement updated",
		zap.String("tenant_id", e.TenantID),
		zap.String("feature", e.Feature),
		zap.Bool("enabled", e.Enabled))
	return nil
}

// Invalidate drops the cached entitlement.
func (g *Gate) Invalidate(ctx context.Context, tenantID, feature string) {
	if g.cache == nil {
		return
	}
	if err := g.cache.Delete(ctx, cacheKey(tenantID, feature)); err != nil {
		g.logger.Warn("entitlement cache invalidation failed", zap.Error(err))
	}
}

func cacheKey(tenantID, feature string) string {
	return "entitlement:" + tenantID + ":" + feature
}
