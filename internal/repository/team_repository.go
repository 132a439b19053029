package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deskops/helpdesk-sla/internal/domain"
)

// TeamRepository manages persistence for teams. A team's calendar_id feeds
// the working calendar resolver.
type TeamRepository interface {
	Create(ctx context.Context, team *domain.Team) error
	Update(ctx context.Context, team *domain.Team) error
	GetByID(ctx context.Context, id string) (*domain.Team, error)
	List(ctx context.Context, activeOnly bool) ([]domain.Team, error)
}

type teamRepository struct {
	pool *pgxpool.Pool
}

// NewTeamRepository constructs repository.
func NewTeamRepository(pool *pgxpool.Pool) TeamRepository {
	return &teamRepository{pool: pool}
}

const teamColumns = `id, name, description, calendar_id, is_active, created_at, updated_at`

func (r *teamRepository) Create(ctx context.Context, team *domain.Team) error {
	const query = `
        INSERT INTO teams (name, description, calendar_id, is_active)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		team.Name, team.Description, team.CalendarID, team.IsActive,
	).Scan(&team.ID, &team.CreatedAt, &team.UpdatedAt)
}

func (r *teamRepository) Update(ctx context.Context, team *domain.Team) error {
	const query = `
        UPDATE teams SET name=$1, description=$2, calendar_id=$3, is_active=$4, updated_at=NOW()
        WHERE id=$5
        RETURNING updated_at`
	return r.pool.QueryRow(ctx, query,
		team.Name, team.Description, team.CalendarID, team.IsActive, team.ID,
	).Scan(&team.UpdatedAt)
}

func (r *teamRepository) GetByID(ctx context.Context, id string) (*domain.Team, error) {
	var team domain.Team
	if err := scanTeam(r.pool.QueryRow(ctx, `SELECT `+teamColumns+` FROM teams WHERE id=$1`, id), &team); err != nil {
		return nil, err
	}
	return &team, nil
}

func (r *teamRepository) List(ctx context.Context, activeOnly bool) ([]domain.Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams WHERE ($1 = FALSE OR is_active) ORDER BY name, id`
	rows, err := r.pool.Query(ctx, query, activeOnly)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Team, error) {
		var team domain.Team
		err := scanTeam(row, &team)
		return team, err
	})
}

func scanTeam(row pgx.Row, team *domain.Team) error {
	return row.Scan(
		&team.ID,
		&team.Name,
		&team.Description,
		&team.CalendarID,
		&team.IsActive,
		&team.CreatedAt,
		&team.UpdatedAt,
	)
}
