package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deskops/helpdesk-sla/internal/domain"
)

// SLAPolicyRepository persists SLA policies.
type SLAPolicyRepository interface {
	Create(ctx context.Context, policy *domain.SLAPolicy) error
	Update(ctx context.Context, policy *domain.SLAPolicy) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.SLAPolicy, error)
	List(ctx context.Context, teamID *string) ([]domain.SLAPolicy, error)
	ListActiveByTeam(ctx context.Context, teamID string) ([]domain.SLAPolicy, error)
}

type slaPolicyRepository struct {
	pool *pgxpool.Pool
}

// NewSLAPolicyRepository constructs repository.
func NewSLAPolicyRepository(pool *pgxpool.Pool) SLAPolicyRepository {
	return &slaPolicyRepository{pool: pool}
}

const slaPolicyColumns = `id, name, description, team_id, min_priority, tags, customer_ids, target_stage_id,
               excluded_stage_ids, time_hours, escalation_staff_id, active, created_at, updated_at`

func (r *slaPolicyRepository) Create(ctx context.Context, policy *domain.SLAPolicy) error {
	const query = `
        INSERT INTO sla_policies (name, description, team_id, min_priority, tags, customer_ids, target_stage_id,
            excluded_stage_ids, time_hours, escalation_staff_id, active)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		policy.Name,
		policy.Description,
		policy.TeamID,
		policy.MinPriority,
		nonNilStrings(policy.Tags),
		nonNilStrings(policy.CustomerIDs),
		policy.TargetStageID,
		nonNilStrings(policy.ExcludedStageIDs),
		policy.TimeHours,
		policy.EscalationStaffID,
		policy.Active,
	).Scan(&policy.ID, &policy.CreatedAt, &policy.UpdatedAt)
}

func (r *slaPolicyRepository) Update(ctx context.Context, policy *domain.SLAPolicy) error {
	const query = `
        UPDATE sla_policies SET name=$1, description=$2, min_priority=$3, tags=$4, customer_ids=$5,
            target_stage_id=$6, excluded_stage_ids=$7, time_hours=$8, escalation_staff_id=$9, active=$10, updated_at=NOW()
        WHERE id=$11
        RETURNING updated_at`
	return r.pool.QueryRow(ctx, query,
		policy.Name,
		policy.Description,
		policy.MinPriority,
		nonNilStrings(policy.Tags),
		nonNilStrings(policy.CustomerIDs),
		policy.TargetStageID,
		nonNilStrings(policy.ExcludedStageIDs),
		policy.TimeHours,
		policy.EscalationStaffID,
		policy.Active,
		policy.ID,
	).Scan(&policy.UpdatedAt)
}

func (r *slaPolicyRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM sla_policies WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *slaPolicyRepository) GetByID(ctx context.Context, id string) (*domain.SLAPolicy, error) {
	query := `SELECT ` + slaPolicyColumns + ` FROM sla_policies WHERE id=$1`
	var policy domain.SLAPolicy
	if err := scanPolicy(r.pool.QueryRow(ctx, query, id), &policy); err != nil {
		return nil, err
	}
	return &policy, nil
}

func (r *slaPolicyRepository) List(ctx context.Context, teamID *string) ([]domain.SLAPolicy, error) {
	query := `SELECT ` + slaPolicyColumns + ` FROM sla_policies WHERE ($1::uuid IS NULL OR team_id=$1) ORDER BY name`
	return r.query(ctx, query, teamID)
}

func (r *slaPolicyRepository) ListActiveByTeam(ctx context.Context, teamID string) ([]domain.SLAPolicy, error) {
	query := `SELECT ` + slaPolicyColumns + ` FROM sla_policies WHERE team_id=$1 AND active=TRUE ORDER BY name`
	return r.query(ctx, query, teamID)
}

func (r *slaPolicyRepository) query(ctx context.Context, query string, args ...any) ([]domain.SLAPolicy, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SLAPolicy
	for rows.Next() {
		var policy domain.SLAPolicy
		if err := scanPolicy(rows, &policy); err != nil {
			return nil, err
		}
		result = append(result, policy)
	}
	return result, rows.Err()
}

func scanPolicy(row pgx.Row, policy *domain.SLAPolicy) error {
	return row.Scan(
		&policy.ID,
		&policy.Name,
		&policy.Description,
		&policy.TeamID,
		&policy.MinPriority,
		&policy.Tags,
		&policy.CustomerIDs,
		&policy.TargetStageID,
		&policy.ExcludedStageIDs,
		&policy.TimeHours,
		&policy.EscalationStaffID,
		&policy.Active,
		&policy.CreatedAt,
		&policy.UpdatedAt,
	)
}
