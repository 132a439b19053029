package events

import (
	"time"

	"github.com/deskops/helpdesk-sla/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated      EventType = "ticket_created"
	EventTicketUpdated      EventType = "ticket_updated"
	EventTicketStageChanged EventType = "ticket_stage_changed"
	EventTicketAssigned     EventType = "ticket_assigned"
	EventSLABreached        EventType = "sla_breached"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type    domain.SubjectType `json:"type"`
	StaffID *string            `json:"staff_id,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	TeamID   string                `json:"team_id"`
	StageID  string                `json:"stage_id"`
	Priority domain.TicketPriority `json:"priority"`
	Title    string                `json:"title"`
	Statuses int                   `json:"sla_statuses"`
}

// TicketUpdatedPayload lists the fields that changed.
type TicketUpdatedPayload struct {
	Changed []domain.TicketChangeType `json:"changed"`
}

// TicketStageChangedPayload payload.
type TicketStageChangedPayload struct {
	OldStageID string   `json:"old_stage_id"`
	NewStageID string   `json:"new_stage_id"`
	Reached    []string `json:"reached_policy_ids,omitempty"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	AssigneeStaffID *string `json:"assignee_staff_id"`
	TeamID          string  `json:"team_id"`
}

// SLABreachedPayload carries a freshly created escalation notification.
type SLABreachedPayload struct {
	NotificationID string    `json:"notification_id"`
	StatusID       string    `json:"status_id"`
	PolicyID       string    `json:"policy_id"`
	RecipientID    string    `json:"recipient_id"`
	Summary        string    `json:"summary"`
	Deadline       time.Time `json:"deadline"`
}
