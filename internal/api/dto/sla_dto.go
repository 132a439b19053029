package dto

import (
	"time"

	"github.com/deskops/helpdesk-sla/internal/calendar"
	"github.com/deskops/helpdesk-sla/internal/domain"
)

// SLAPolicyRequest payload for policy create/update.
type SLAPolicyRequest struct {
	Name              string                 `json:"name"`
	Description       string                 `json:"description"`
	TeamID            string                 `json:"team_id"`
	MinPriority       *domain.TicketPriority `json:"min_priority"`
	Tags              []string               `json:"tags"`
	CustomerIDs       []string               `json:"customer_ids"`
	TargetStageID     string                 `json:"target_stage_id"`
	ExcludedStageIDs  []string               `json:"excluded_stage_ids"`
	TimeHours         *float64               `json:"time_hours"`
	EscalationStaffID *string                `json:"escalation_staff_id"`
	Active            *bool                  `json:"active"`
}

// SLAPolicyResponse representation.
type SLAPolicyResponse struct {
	ID                string                 `json:"id"`
	Name              string                 `json:"name"`
	Description       string                 `json:"description"`
	TeamID            string                 `json:"team_id"`
	MinPriority       *domain.TicketPriority `json:"min_priority"`
	Tags              []string               `json:"tags"`
	CustomerIDs       []string               `json:"customer_ids"`
	TargetStageID     string                 `json:"target_stage_id"`
	ExcludedStageIDs  []string               `json:"excluded_stage_ids"`
	TimeHours         *float64               `json:"time_hours"`
	EscalationStaffID *string                `json:"escalation_staff_id"`
	Active            bool                   `json:"active"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
}

// CalendarRequest payload.
type CalendarRequest struct {
	Name        string                `json:"name"`
	Timezone    string                `json:"timezone"`
	IsDefault   bool                  `json:"is_default"`
	Attendances []calendar.Attendance `json:"attendances"`
	Leaves      []calendar.Leave      `json:"leaves"`
}

// PlanRequest asks for a deadline preview.
type PlanRequest struct {
	Start time.Time `json:"start"`
	Hours float64   `json:"hours"`
}

// PlanResponse returns the previewed deadline.
type PlanResponse struct {
	Start    time.Time `json:"start"`
	Hours    float64   `json:"hours"`
	Deadline time.Time `json:"deadline"`
}

// EscalationResponse representation.
type EscalationResponse struct {
	ID             string     `json:"id"`
	IdempotencyKey string     `json:"idempotency_key"`
	StatusID       string     `json:"status_id"`
	TicketID       string     `json:"ticket_id"`
	PolicyID       string     `json:"policy_id"`
	RecipientID    string     `json:"recipient_staff_id"`
	Summary        string     `json:"summary"`
	Deadline       time.Time  `json:"deadline"`
	ResolvedAt     *time.Time `json:"resolved_at"`
	CreatedAt      time.Time  `json:"created_at"`
}

// ScanResponse summarises a breach scan.
type ScanResponse struct {
	Scanned int `json:"scanned"`
	Created int `json:"created"`
	Skipped int `json:"skipped"`
	Frozen  int `json:"frozen"`
	Failed  int `json:"failed"`
}

// EntitlementWebhookRequest is pushed by the billing system.
type EntitlementWebhookRequest struct {
	TenantID    string     `json:"tenant_id"`
	Feature     string     `json:"feature"`
	Enabled     bool       `json:"enabled"`
	TrialEndsAt *time.Time `json:"trial_ends_at"`
}
