package domain

import "time"

// NoAssignment is the cursor value of a customer who was never routed a ticket.
const NoAssignment = -1

// Customer owns tickets and an optional preferred agent pool. The round-robin
// cursor is only ever advanced by the assignment engine.
type Customer struct {
	ID                     string
	CompanyID              string
	Name                   string
	Email                  string
	AssignedAgents         []string
	LastAssignedAgentIndex int
	CreatedAt              time.Time
	UpdatedAt              time.Time
}
