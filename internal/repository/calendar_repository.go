package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deskops/helpdesk-sla/internal/calendar"
)

// CalendarRepository persists working calendars. Attendances and leaves are
// stored as JSONB documents.
type CalendarRepository interface {
	Create(ctx context.Context, cal *calendar.Calendar) error
	Update(ctx context.Context, cal *calendar.Calendar) error
	GetByID(ctx context.Context, id string) (*calendar.Calendar, error)
	GetDefault(ctx context.Context) (*calendar.Calendar, error)
	List(ctx context.Context) ([]calendar.Calendar, error)
}

type calendarRepository struct {
	pool *pgxpool.Pool
}

// NewCalendarRepository constructs repository.
func NewCalendarRepository(pool *pgxpool.Pool) CalendarRepository {
	return &calendarRepository{pool: pool}
}

const calendarColumns = `id, name, timezone, is_default, attendances, leaves, created_at, updated_at`

func (r *calendarRepository) Create(ctx context.Context, cal *calendar.Calendar) error {
	const query = `
        INSERT INTO calendars (name, timezone, is_default, attendances, leaves)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		cal.Name,
		cal.Timezone,
		cal.IsDefault,
		attendancesOrEmpty(cal.Attendances),
		leavesOrEmpty(cal.Leaves),
	).Scan(&cal.ID, &cal.CreatedAt, &cal.UpdatedAt)
}

func (r *calendarRepository) Update(ctx context.Context, cal *calendar.Calendar) error {
	const query = `
        UPDATE calendars SET name=$1, timezone=$2, is_default=$3, attendances=$4, leaves=$5, updated_at=NOW()
        WHERE id=$6
        RETURNING updated_at`
	return r.pool.QueryRow(ctx, query,
		cal.Name,
		cal.Timezone,
		cal.IsDefault,
		attendancesOrEmpty(cal.Attendances),
		leavesOrEmpty(cal.Leaves),
		cal.ID,
	).Scan(&cal.UpdatedAt)
}

func (r *calendarRepository) GetByID(ctx context.Context, id string) (*calendar.Calendar, error) {
	query := `SELECT ` + calendarColumns + ` FROM calendars WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

// GetDefault returns nil without error when no default calendar exists.
func (r *calendarRepository) GetDefault(ctx context.Context) (*calendar.Calendar, error) {
	query := `SELECT ` + calendarColumns + ` FROM calendars WHERE is_default=TRUE LIMIT 1`
	cal, err := r.fetchSingle(ctx, query)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return cal, err
}

func (r *calendarRepository) List(ctx context.Context) ([]calendar.Calendar, error) {
	query := `SELECT ` + calendarColumns + ` FROM calendars ORDER BY name`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []calendar.Calendar
	for rows.Next() {
		var cal calendar.Calendar
		if err := scanCalendar(rows, &cal); err != nil {
			return nil, err
		}
		result = append(result, cal)
	}
	return result, rows.Err()
}

func (r *calendarRepository) fetchSingle(ctx context.Context, query string, args ...any) (*calendar.Calendar, error) {
	var cal calendar.Calendar
	if err := scanCalendar(r.pool.QueryRow(ctx, query, args...), &cal); err != nil {
		return nil, err
	}
	return &cal, nil
}

func scanCalendar(row pgx.Row, cal *calendar.Calendar) error {
	return row.Scan(
		&cal.ID,
		&cal.Name,
		&cal.Timezone,
		&cal.IsDefault,
		&cal.Attendances,
		&cal.Leaves,
		&cal.CreatedAt,
		&cal.UpdatedAt,
	)
}

func attendancesOrEmpty(values []calendar.Attendance) []calendar.Attendance {
	if values == nil {
		return []calendar.Attendance{}
	}
	return values
}

func leavesOrEmpty(values []calendar.Leave) []calendar.Leave {
	if values == nil {
		return []calendar.Leave{}
	}
	return values
}
