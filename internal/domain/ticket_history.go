package domain

import "time"

// SubjectType differentiates who performed an action.
type SubjectType string

const (
	SubjectTypeStaff  SubjectType = "STAFF"
	SubjectTypeSystem SubjectType = "SYSTEM"
)

// TicketChangeType captures what changed in a history entry.
type TicketChangeType string

const (
	ChangeTypeStage    TicketChangeType = "STAGE_CHANGE"
	ChangeTypeAssignee TicketChangeType = "ASSIGNEE_CHANGE"
	ChangeTypePriority TicketChangeType = "PRIORITY_CHANGE"
	ChangeTypeTeam     TicketChangeType = "TEAM_CHANGE"
	ChangeTypeTags     TicketChangeType = "TAGS_CHANGE"
	ChangeTypeCustomer TicketChangeType = "CUSTOMER_CHANGE"
)

// TicketHistory is an immutable audit trail entry.
type TicketHistory struct {
	ID            string
	TicketID      string
	ChangedByType SubjectType
	ChangedByID   *string
	ChangeType    TicketChangeType
	OldValue      map[string]any
	NewValue      map[string]any
	CreatedAt     time.Time
}

// StageChange is a stage transition extracted from the history trail.
type StageChange struct {
	TicketID   string
	OldStageID string
	NewStageID string
	ChangedAt  time.Time
}

// StageChange converts a STAGE_CHANGE entry; ok is false for other entries.
func (h TicketHistory) StageChange() (StageChange, bool) {
	if h.ChangeType != ChangeTypeStage {
		return StageChange{}, false
	}
	oldStage, _ := h.OldValue["stage_id"].(string)
	newStage, _ := h.NewValue["stage_id"].(string)
	return StageChange{
		TicketID:   h.TicketID,
		OldStageID: oldStage,
		NewStageID: newStage,
		ChangedAt:  h.CreatedAt,
	}, true
}
