package domain

import (
	"fmt"
	"time"
)

// EscalationNotification is the activity raised for a breached SLA status.
// At most one unresolved notification exists per idempotency key.
type EscalationNotification struct {
	ID             string
	IdempotencyKey string
	StatusID       string
	TicketID       string
	PolicyID       string
	RecipientID    string
	Summary        string
	Deadline       time.Time
	ResolvedAt     *time.Time
	CreatedAt      time.Time
}

// Open reports whether the notification has not been resolved.
func (n *EscalationNotification) Open() bool {
	return n.ResolvedAt == nil
}

// BreachKey builds the idempotency key for a (status, recipient) pair.
func BreachKey(statusID, recipientID string) string {
	return fmt.Sprintf("sla-breach:%s:%s", statusID, recipientID)
}
