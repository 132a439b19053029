package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deskops/helpdesk-sla/internal/domain"
)

// EscalationRepository persists breach notifications. The open-key partial
// unique index guarantees one unresolved notification per idempotency key.
type EscalationRepository interface {
	HasOpen(ctx context.Context, key string) (bool, error)
	Create(ctx context.Context, n *domain.EscalationNotification) (bool, error)
	GetByID(ctx context.Context, id string) (*domain.EscalationNotification, error)
	List(ctx context.Context, openOnly bool, limit, offset int) ([]domain.EscalationNotification, error)
	Resolve(ctx context.Context, id string, at time.Time) error
}

type escalationRepository struct {
	pool *pgxpool.Pool
}

// NewEscalationRepository constructs repository.
func NewEscalationRepository(pool *pgxpool.Pool) EscalationRepository {
	return &escalationRepository{pool: pool}
}

const escalationColumns = `id, idempotency_key, status_id, ticket_id, policy_id, recipient_staff_id, summary,
               deadline, resolved_at, created_at`

func (r *escalationRepository) HasOpen(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM escalation_notifications WHERE idempotency_key=$1 AND resolved_at IS NULL)`,
		key,
	).Scan(&exists)
	return exists, err
}

// Create reports false without error when a concurrent writer already holds
// the open key.
func (r *escalationRepository) Create(ctx context.Context, n *domain.EscalationNotification) (bool, error) {
	const query = `
        INSERT INTO escalation_notifications (idempotency_key, status_id, ticket_id, policy_id, recipient_staff_id, summary, deadline)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (idempotency_key) WHERE resolved_at IS NULL DO NOTHING
        RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, query,
		n.IdempotencyKey,
		n.StatusID,
		n.TicketID,
		n.PolicyID,
		n.RecipientID,
		n.Summary,
		n.Deadline,
	).Scan(&n.ID, &n.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *escalationRepository) GetByID(ctx context.Context, id string) (*domain.EscalationNotification, error) {
	query := `SELECT ` + escalationColumns + ` FROM escalation_notifications WHERE id=$1`
	var n domain.EscalationNotification
	if err := scanEscalation(r.pool.QueryRow(ctx, query, id), &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *escalationRepository) List(ctx context.Context, openOnly bool, limit, offset int) ([]domain.EscalationNotification, error) {
	limit, offset = page(limit, offset, 50)
	query := `SELECT ` + escalationColumns + `
        FROM escalation_notifications
        WHERE ($1 = FALSE OR resolved_at IS NULL)
        ORDER BY created_at DESC
        LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, openOnly, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.EscalationNotification
	for rows.Next() {
		var n domain.EscalationNotification
		if err := scanEscalation(rows, &n); err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

func (r *escalationRepository) Resolve(ctx context.Context, id string, at time.Time) error {
	cmd, err := r.pool.Exec(ctx,
		`UPDATE escalation_notifications SET resolved_at=$1 WHERE id=$2 AND resolved_at IS NULL`, at, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanEscalation(row pgx.Row, n *domain.EscalationNotification) error {
	return row.Scan(
		&n.ID,
		&n.IdempotencyKey,
		&n.StatusID,
		&n.TicketID,
		&n.PolicyID,
		&n.RecipientID,
		&n.Summary,
		&n.Deadline,
		&n.ResolvedAt,
		&n.CreatedAt,
	)
}
