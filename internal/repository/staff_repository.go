package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deskops/helpdesk-sla/internal/domain"
)

// ErrEmailTaken is returned when a write collides with another staff
// member's email.
var ErrEmailTaken = errors.New("staff email already exists")

const uniqueViolation = "23505"

// StaffRepository handles persistence for staff members. Staff are both
// the operators of the API and the escalation contacts of SLA policies.
type StaffRepository interface {
	Create(ctx context.Context, staff *domain.StaffMember) error
	Update(ctx context.Context, staff *domain.StaffMember) error
	GetByID(ctx context.Context, id string) (*domain.StaffMember, error)
	GetByEmail(ctx context.Context, email string) (*domain.StaffMember, error)
	List(ctx context.Context, filter StaffFilter) ([]domain.StaffMember, error)
}

// StaffFilter defines query params for staff listing.
type StaffFilter struct {
	Role   *domain.StaffRole
	TeamID *string
	Active *bool
	Limit  int
	Offset int
}

type staffRepository struct {
	pool *pgxpool.Pool
}

// NewStaffRepository instantiates the repository.
func NewStaffRepository(pool *pgxpool.Pool) StaffRepository {
	return &staffRepository{pool: pool}
}

const staffColumns = `id, name, email, password_hash, role, team_id, active_flag, created_at, updated_at`

func (r *staffRepository) Create(ctx context.Context, staff *domain.StaffMember) error {
	const query = `
        INSERT INTO staff_members (name, email, password_hash, role, team_id, active_flag)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		staff.Name, staff.Email, staff.PasswordHash, staff.Role, staff.TeamID, staff.Active,
	).Scan(&staff.ID, &staff.CreatedAt, &staff.UpdatedAt)
	return mapStaffWriteError(err)
}

func (r *staffRepository) Update(ctx context.Context, staff *domain.StaffMember) error {
	const query = `
        UPDATE staff_members
        SET name=$1, email=$2, password_hash=$3, role=$4, team_id=$5, active_flag=$6, updated_at=NOW()
        WHERE id=$7
        RETURNING updated_at`
	err := r.pool.QueryRow(ctx, query,
		staff.Name, staff.Email, staff.PasswordHash, staff.Role, staff.TeamID, staff.Active, staff.ID,
	).Scan(&staff.UpdatedAt)
	return mapStaffWriteError(err)
}

func (r *staffRepository) GetByID(ctx context.Context, id string) (*domain.StaffMember, error) {
	return r.getOne(ctx, `SELECT `+staffColumns+` FROM staff_members WHERE id=$1`, id)
}

func (r *staffRepository) GetByEmail(ctx context.Context, email string) (*domain.StaffMember, error) {
	return r.getOne(ctx, `SELECT `+staffColumns+` FROM staff_members WHERE email=$1`, email)
}

func (r *staffRepository) List(ctx context.Context, filter StaffFilter) ([]domain.StaffMember, error) {
	var (
		args    []any
		clauses []string
	)
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.Role != nil {
		add("role=$%d", *filter.Role)
	}
	if filter.TeamID != nil {
		add("team_id=$%d", *filter.TeamID)
	}
	if filter.Active != nil {
		add("active_flag=$%d", *filter.Active)
	}

	query := `SELECT ` + staffColumns + ` FROM staff_members`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	limit, offset := page(filter.Limit, filter.Offset, 50)
	query += fmt.Sprintf(" ORDER BY name, id LIMIT %d OFFSET %d", limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.StaffMember, error) {
		var staff domain.StaffMember
		err := scanStaff(row, &staff)
		return staff, err
	})
}

func (r *staffRepository) getOne(ctx context.Context, query string, arg any) (*domain.StaffMember, error) {
	var staff domain.StaffMember
	if err := scanStaff(r.pool.QueryRow(ctx, query, arg), &staff); err != nil {
		return nil, err
	}
	return &staff, nil
}

func scanStaff(row pgx.Row, staff *domain.StaffMember) error {
	return row.Scan(
		&staff.ID,
		&staff.Name,
		&staff.Email,
		&staff.PasswordHash,
		&staff.Role,
		&staff.TeamID,
		&staff.Active,
		&staff.CreatedAt,
		&staff.UpdatedAt,
	)
}

func mapStaffWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrEmailTaken
	}
	return err
}
