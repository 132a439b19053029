package domain

import "time"

// SLAState is the derived state of an SLA status.
type SLAState string

const (
	SLAStateOngoing SLAState = "ongoing"
	SLAStateReached SLAState = "reached"
	SLAStateFailed  SLAState = "failed"
)

// Valid reports whether s is a known state.
func (s SLAState) Valid() bool {
	switch s {
	case SLAStateOngoing, SLAStateReached, SLAStateFailed:
		return true
	}
	return false
}

// SLAPolicy binds a maximum working-hours duration to reaching a target
// stage. Empty Tags or CustomerIDs and a nil MinPriority disable the
// corresponding filter. A nil TimeHours leaves deadlines unset.
type SLAPolicy struct {
	ID                string
	Name              string
	Description       string
	TeamID            string
	MinPriority       *TicketPriority
	Tags              []string
	CustomerIDs       []string
	TargetStageID     string
	ExcludedStageIDs  []string
	TimeHours         *float64
	EscalationStaffID *string
	Active            bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Excludes reports whether stageID freezes the SLA clock for this policy.
func (p *SLAPolicy) Excludes(stageID string) bool {
	for _, id := range p.ExcludedStageIDs {
		if id == stageID {
			return true
		}
	}
	return false
}

// SLAStatus tracks one policy applied to one ticket.
type SLAStatus struct {
	ID        string
	TicketID  string
	PolicyID  string
	Deadline  *time.Time
	ReachedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
	// Frozen is set on read when the ticket currently sits in one of the
	// policy's excluded stages. It is never persisted.
	Frozen bool
}

// State derives the status from deadline, reached time and now. It is never
// persisted. An unreached status whose clock is frozen stays ongoing.
func (s *SLAStatus) State(now time.Time) SLAState {
	if s.ReachedAt != nil {
		if s.Deadline == nil || !s.ReachedAt.After(*s.Deadline) {
			return SLAStateReached
		}
		return SLAStateFailed
	}
	if s.Frozen {
		return SLAStateOngoing
	}
	if s.Deadline != nil && now.After(*s.Deadline) {
		return SLAStateFailed
	}
	return SLAStateOngoing
}

// Reached reports whether the target stage has been reached.
func (s *SLAStatus) Reached() bool {
	return s.ReachedAt != nil
}

// BreachCursor positions a breached status page strictly after the status
// with the given deadline and id.
type BreachCursor struct {
	Deadline time.Time
	ID       string
}

// CursorAfter returns the cursor that follows s. s must have a deadline.
func (s *SLAStatus) CursorAfter() *BreachCursor {
	return &BreachCursor{Deadline: *s.Deadline, ID: s.ID}
}
