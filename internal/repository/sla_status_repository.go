package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deskops/helpdesk-sla/internal/domain"
)

// SLAStatusFilter narrows status listings. State is evaluated against Now.
type SLAStatusFilter struct {
	TicketID *string
	PolicyID *string
	State    *domain.SLAState
	Now      time.Time
	Limit    int
	Offset   int
}

// SLAStatusRepository persists per-ticket SLA statuses.
type SLAStatusRepository interface {
	Create(ctx context.Context, status *domain.SLAStatus) error
	Delete(ctx context.Context, id string) error
	UpdateDeadline(ctx context.Context, id string, deadline *time.Time) error
	MarkReached(ctx context.Context, id string, at time.Time) (bool, error)
	ListByTicket(ctx context.Context, ticketID string) ([]domain.SLAStatus, error)
	// ListBreached pages through unreached statuses past their deadline in
	// (deadline, id) order, starting strictly after the cursor when one is given.
	ListBreached(ctx context.Context, now time.Time, after *domain.BreachCursor, limit int) ([]domain.SLAStatus, error)
	ListUnreachedByPolicy(ctx context.Context, policyID string) ([]domain.SLAStatus, error)
	List(ctx context.Context, filter SLAStatusFilter) ([]domain.SLAStatus, error)
}

type slaStatusRepository struct {
	pool *pgxpool.Pool
}

// NewSLAStatusRepository constructs repository.
func NewSLAStatusRepository(pool *pgxpool.Pool) SLAStatusRepository {
	return &slaStatusRepository{pool: pool}
}

// slaStatusFrozen is true while the ticket sits in an excluded stage of the
// status policy. Queries alias sla_statuses as s.
const slaStatusFrozen = `EXISTS (
        SELECT 1 FROM tickets t JOIN sla_policies p ON p.id = s.policy_id
        WHERE t.id = s.ticket_id AND t.stage_id::text = ANY(p.excluded_stage_ids))`

const slaStatusColumns = `s.id, s.ticket_id, s.policy_id, s.deadline, s.reached_at, s.created_at, s.updated_at, ` + slaStatusFrozen

func (r *slaStatusRepository) Create(ctx context.Context, status *domain.SLAStatus) error {
	const query = `
        INSERT INTO sla_statuses (ticket_id, policy_id, deadline)
        VALUES ($1,$2,$3)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		status.TicketID,
		status.PolicyID,
		status.Deadline,
	).Scan(&status.ID, &status.CreatedAt, &status.UpdatedAt)
}

func (r *slaStatusRepository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sla_statuses WHERE id=$1`, id)
	return err
}

func (r *slaStatusRepository) UpdateDeadline(ctx context.Context, id string, deadline *time.Time) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE sla_statuses SET deadline=$1, updated_at=NOW() WHERE id=$2`, deadline, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *slaStatusRepository) MarkReached(ctx context.Context, id string, at time.Time) (bool, error) {
	cmd, err := r.pool.Exec(ctx,
		`UPDATE sla_statuses SET reached_at=$1, updated_at=NOW() WHERE id=$2 AND reached_at IS NULL`, at, id)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *slaStatusRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.SLAStatus, error) {
	query := `SELECT ` + slaStatusColumns + ` FROM sla_statuses s WHERE ticket_id=$1 ORDER BY created_at, id`
	return r.query(ctx, query, ticketID)
}

func (r *slaStatusRepository) ListBreached(ctx context.Context, now time.Time, after *domain.BreachCursor, limit int) ([]domain.SLAStatus, error) {
	if after == nil {
		query := `SELECT ` + slaStatusColumns + `
            FROM sla_statuses s
            WHERE reached_at IS NULL AND deadline IS NOT NULL AND deadline < $1
            ORDER BY deadline, id
            LIMIT $2`
		return r.query(ctx, query, now, limit)
	}
	query := `SELECT ` + slaStatusColumns + `
        FROM sla_statuses s
        WHERE reached_at IS NULL AND deadline IS NOT NULL AND deadline < $1
          AND (deadline, id) > ($2, $3::uuid)
        ORDER BY deadline, id
        LIMIT $4`
	return r.query(ctx, query, now, after.Deadline, after.ID, limit)
}

func (r *slaStatusRepository) ListUnreachedByPolicy(ctx context.Context, policyID string) ([]domain.SLAStatus, error) {
	query := `SELECT ` + slaStatusColumns + ` FROM sla_statuses s WHERE policy_id=$1 AND reached_at IS NULL ORDER BY created_at, id`
	return r.query(ctx, query, policyID)
}

// List filters by derived state with the same predicates SLAStatus.State
// applies in memory, frozen statuses included.
func (r *slaStatusRepository) List(ctx context.Context, filter SLAStatusFilter) ([]domain.SLAStatus, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.TicketID != nil {
		args = append(args, *filter.TicketID)
		clauses = append(clauses, fmt.Sprintf("ticket_id=$%d", len(args)))
	}
	if filter.PolicyID != nil {
		args = append(args, *filter.PolicyID)
		clauses = append(clauses, fmt.Sprintf("policy_id=$%d", len(args)))
	}
	if filter.State != nil {
		switch *filter.State {
		case domain.SLAStateReached:
			clauses = append(clauses, "reached_at IS NOT NULL AND (deadline IS NULL OR reached_at <= deadline)")
		case domain.SLAStateFailed:
			args = append(args, filter.Now)
			clauses = append(clauses, fmt.Sprintf(
				"((reached_at IS NOT NULL AND reached_at > deadline) OR (reached_at IS NULL AND deadline < $%d AND NOT %s))",
				len(args), slaStatusFrozen))
		case domain.SLAStateOngoing:
			args = append(args, filter.Now)
			clauses = append(clauses, fmt.Sprintf("reached_at IS NULL AND (deadline IS NULL OR deadline >= $%d OR %s)",
				len(args), slaStatusFrozen))
		}
	}

	limit, offset := page(filter.Limit, filter.Offset, 50)

	query := fmt.Sprintf(`SELECT %s FROM sla_statuses s WHERE %s ORDER BY deadline ASC NULLS LAST, id LIMIT %d OFFSET %d`,
		slaStatusColumns, strings.Join(clauses, " AND "), limit, offset)
	return r.query(ctx, query, args...)
}

func (r *slaStatusRepository) query(ctx context.Context, query string, args ...any) ([]domain.SLAStatus, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SLAStatus
	for rows.Next() {
		var status domain.SLAStatus
		if err := rows.Scan(
			&status.ID,
			&status.TicketID,
			&status.PolicyID,
			&status.Deadline,
			&status.ReachedAt,
			&status.CreatedAt,
			&status.UpdatedAt,
			&status.Frozen,
		); err != nil {
			return nil, err
		}
		result = append(result, status)
	}
	return result, rows.Err()
}
