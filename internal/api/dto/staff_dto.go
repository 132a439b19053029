package dto

import "github.com/deskops/helpdesk-sla/internal/domain"

// TeamRequest payload for team create/update.
type TeamRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	CalendarID  *string `json:"calendar_id"`
	IsActive    *bool   `json:"is_active"`
}

// TeamResponse representation.
type TeamResponse struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	CalendarID  *string `json:"calendar_id"`
	IsActive    bool    `json:"is_active"`
}

// StageRequest payload.
type StageRequest struct {
	Name     string `json:"name"`
	Sequence int    `json:"sequence"`
	Folded   bool   `json:"folded"`
}

// StageResponse representation.
type StageResponse struct {
	ID       string `json:"id"`
	TeamID   string `json:"team_id"`
	Name     string `json:"name"`
	Sequence int    `json:"sequence"`
	Folded   bool   `json:"folded"`
}

// StaffCreateRequest payload.
type StaffCreateRequest struct {
	Name     string           `json:"name"`
	Email    string           `json:"email"`
	Password string           `json:"password"`
	Role     domain.StaffRole `json:"role"`
	TeamID   *string          `json:"team_id"`
}

// StaffUpdateRequest payload.
type StaffUpdateRequest struct {
	Name   string           `json:"name"`
	Email  string           `json:"email"`
	Role   domain.StaffRole `json:"role"`
	TeamID *string          `json:"team_id"`
	Active *bool            `json:"active"`
}

// StaffResponse representation.
type StaffResponse struct {
	ID     string           `json:"id"`
	Name   string           `json:"name"`
	Email  string           `json:"email"`
	Role   domain.StaffRole `json:"role"`
	TeamID *string          `json:"team_id"`
	Active bool             `json:"active"`
}
