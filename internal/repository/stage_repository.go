package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deskops/helpdesk-sla/internal/domain"
)

// StageRepository persists team pipeline stages.
type StageRepository interface {
	Create(ctx context.Context, stage *domain.Stage) error
	GetByID(ctx context.Context, id string) (*domain.Stage, error)
	// ListByTeam returns stages ordered by sequence.
	ListByTeam(ctx context.Context, teamID string) ([]domain.Stage, error)
}

type stageRepository struct {
	pool *pgxpool.Pool
}

// NewStageRepository constructs repository.
func NewStageRepository(pool *pgxpool.Pool) StageRepository {
	return &stageRepository{pool: pool}
}

func (r *stageRepository) Create(ctx context.Context, stage *domain.Stage) error {
	const query = `
        INSERT INTO stages (team_id, name, sequence, folded)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		stage.TeamID,
		stage.Name,
		stage.Sequence,
		stage.Folded,
	).Scan(&stage.ID, &stage.CreatedAt)
}

func (r *stageRepository) GetByID(ctx context.Context, id string) (*domain.Stage, error) {
	const query = `
        SELECT id, team_id, name, sequence, folded, created_at
        FROM stages WHERE id=$1`
	var stage domain.Stage
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&stage.ID,
		&stage.TeamID,
		&stage.Name,
		&stage.Sequence,
		&stage.Folded,
		&stage.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &stage, nil
}

func (r *stageRepository) ListByTeam(ctx context.Context, teamID string) ([]domain.Stage, error) {
	const query = `
        SELECT id, team_id, name, sequence, folded, created_at
        FROM stages WHERE team_id=$1 ORDER BY sequence, name`
	rows, err := r.pool.Query(ctx, query, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Stage
	for rows.Next() {
		var stage domain.Stage
		if err := rows.Scan(&stage.ID, &stage.TeamID, &stage.Name, &stage.Sequence, &stage.Folded, &stage.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, stage)
	}
	return result, rows.Err()
}
