package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deskops/helpdesk-sla/internal/domain"
)

// EntitlementRepository stores per-tenant feature flags.
type EntitlementRepository interface {
	Get(ctx context.Context, tenantID, feature string) (*domain.Entitlement, error)
	Upsert(ctx context.Context, e *domain.Entitlement) error
}

type entitlementRepository struct {
	pool *pgxpool.Pool
}

// NewEntitlementRepository constructs repository.
func NewEntitlementRepository(pool *pgxpool.Pool) EntitlementRepository {
	return &entitlementRepository{pool: pool}
}

func (r *entitlementRepository) Get(ctx context.Context, tenantID, feature string) (*domain.Entitlement, error) {
	const query = `
        SELECT tenant_id, feature, enabled, trial_ends_at, updated_at
        FROM entitlements WHERE tenant_id=$1 AND feature=$2`
	var e domain.Entitlement
	if err := r.pool.QueryRow(ctx, query, tenantID, feature).Scan(
		&e.TenantID,
		&e.Feature,
		&e.Enabled,
		&e.TrialEndsAt,
		&e.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *entitlementRepository) Upsert(ctx context.Context, e *domain.Entitlement) error {
	const query = `
        INSERT INTO entitlements (tenant_id, feature, enabled, trial_ends_at)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (tenant_id, feature) DO UPDATE
            SET enabled=EXCLUDED.enabled, trial_ends_at=EXCLUDED.trial_ends_at, updated_at=NOW()
        RETURNING updated_at`
	return r.pool.QueryRow(ctx, query, e.TenantID, e.Feature, e.Enabled, e.TrialEndsAt).Scan(&e.UpdatedAt)
}
