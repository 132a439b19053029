package domain

import "time"

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityMedium TicketPriority = "MEDIUM"
	TicketPriorityHigh   TicketPriority = "HIGH"
	TicketPriorityUrgent TicketPriority = "URGENT"
)

var priorityRank = map[TicketPriority]int{
	TicketPriorityLow:    0,
	TicketPriorityMedium: 1,
	TicketPriorityHigh:   2,
	TicketPriorityUrgent: 3,
}

// Rank orders priorities from LOW (0) to URGENT (3); unknown values rank -1.
func (p TicketPriority) Rank() int {
	if rank, ok := priorityRank[p]; ok {
		return rank
	}
	return -1
}

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	return p.Rank() >= 0
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID          string
	ExternalKey string
	TeamID      string
	StageID     string
	CustomerID  *string
	AssigneeID  *string
	Title       string
	Description string
	Priority    TicketPriority
	Tags        []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ClosedAt    *time.Time
}
