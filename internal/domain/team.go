package domain

import "time"

// Team owns a stage pipeline, SLA policies and optionally a working calendar.
type Team struct {
	ID          string
	Name        string
	Description string
	CalendarID  *string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Stage is one step of a team's ticket pipeline. Sequence orders stages;
// higher sequences are further along.
type Stage struct {
	ID        string
	TeamID    string
	Name      string
	Sequence  int
	Folded    bool
	CreatedAt time.Time
}
