package domain

import "time"

// StaffRole enumerates internal operator roles.
type StaffRole string

const (
	StaffRoleAgent    StaffRole = "AGENT"
	StaffRoleTeamLead StaffRole = "TEAM_LEAD"
	StaffRoleAdmin    StaffRole = "ADMIN"
)

// Valid reports whether r is a known role.
func (r StaffRole) Valid() bool {
	switch r {
	case StaffRoleAgent, StaffRoleTeamLead, StaffRoleAdmin:
		return true
	}
	return false
}

// Manages reports whether the role may maintain SLA policies, calendars and
// assignments.
func (r StaffRole) Manages() bool {
	return r == StaffRoleTeamLead || r == StaffRoleAdmin
}

// StaffMember models a support agent, team lead or administrator. Staff
// members are the escalation contacts of SLA policies.
type StaffMember struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         StaffRole
	TeamID       *string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MemberOf reports whether s belongs to teamID.
func (s *StaffMember) MemberOf(teamID string) bool {
	return s.TeamID != nil && *s.TeamID == teamID
}

// CanAccessTeam reports whether s may see tickets of teamID. Admins and
// staff without a team see every team.
func (s *StaffMember) CanAccessTeam(teamID string) bool {
	return s.Role == StaffRoleAdmin || s.TeamID == nil || s.MemberOf(teamID)
}
