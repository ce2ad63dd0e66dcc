package domain

import "time"

// TicketChangeType captures what changed in a history entry.
type TicketChangeType string

const (
	ChangeTypeStatus   TicketChangeType = "status_change"
	ChangeTypeAssignee TicketChangeType = "assignee_change"
)

// TicketHistory is an immutable audit trail entry. ChangedByID is nil for
// changes made by the system (auto-assignment, the reassignment sweep).
type TicketHistory struct {
	ID          string
	TicketID    string
	CompanyID   string
	ChangedByID *string
	ChangeType  TicketChangeType
	OldValue    map[string]any
	NewValue    map[string]any
	CreatedAt   time.Time
}
