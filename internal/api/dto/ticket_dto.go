package dto

import (
	"time"

	"github.com/deskops/helpdesk-sla/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	TeamID      string                `json:"team_id"`
	StageID     *string               `json:"stage_id"`
	CustomerID  *string               `json:"customer_id"`
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Priority    domain.TicketPriority `json:"priority"`
	Tags        []string              `json:"tags"`
}

// UpdateTicketRequest payload. Omitted fields stay unchanged; an empty
// customer_id string clears the customer.
type UpdateTicketRequest struct {
	Title       *string                `json:"title"`
	Description *string                `json:"description"`
	TeamID      *string                `json:"team_id"`
	Priority    *domain.TicketPriority `json:"priority"`
	Tags        *[]string              `json:"tags"`
	CustomerID  *string                `json:"customer_id"`
}

// ChangeStageRequest payload.
type ChangeStageRequest struct {
	StageID string `json:"stage_id"`
}

// AssignRequest payload.
type AssignRequest struct {
	StaffID string `json:"staff_id"`
}

// TicketSummary response.
type TicketSummary struct {
	ID          string                `json:"id"`
	ExternalKey string                `json:"external_key"`
	TeamID      string                `json:"team_id"`
	StageID     string                `json:"stage_id"`
	CustomerID  *string               `json:"customer_id"`
	AssigneeID  *string               `json:"assignee_staff_id"`
	Title       string                `json:"title"`
	Priority    domain.TicketPriority `json:"priority"`
	Tags        []string              `json:"tags"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
	ClosedAt    *time.Time            `json:"closed_at"`
}

// TicketDetailResponse provides full ticket info with SLA statuses.
type TicketDetailResponse struct {
	TicketSummary
	Description string              `json:"description"`
	SLAStatuses []SLAStatusResponse `json:"sla_statuses"`
}

// SLAStatusResponse exposes a status with its derived state.
type SLAStatusResponse struct {
	ID        string          `json:"id"`
	TicketID  string          `json:"ticket_id"`
	PolicyID  string          `json:"policy_id"`
	Deadline  *time.Time      `json:"deadline"`
	ReachedAt *time.Time      `json:"reached_at"`
	State     domain.SLAState `json:"state"`
}

// TicketHistoryResponse representation.
type TicketHistoryResponse struct {
	ID            string                  `json:"id"`
	ChangeType    domain.TicketChangeType `json:"change_type"`
	ChangedByType domain.SubjectType      `json:"changed_by_type"`
	ChangedByID   *string                 `json:"changed_by_id"`
	OldValue      map[string]any          `json:"old_value"`
	NewValue      map[string]any          `json:"new_value"`
	CreatedAt     time.Time               `json:"created_at"`
}
