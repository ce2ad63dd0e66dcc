package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusWaiting    TicketStatus = "waiting"
	TicketStatusClosed     TicketStatus = "closed"
)

// ActiveTicketStatuses are the states the reassignment sweep looks at.
var ActiveTicketStatuses = []TicketStatus{TicketStatusOpen, TicketStatusInProgress, TicketStatusWaiting}

// TicketSource records how a ticket entered the system.
type TicketSource string

const (
	TicketSourceEmail  TicketSource = "email"
	TicketSourcePortal TicketSource = "portal"
)

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityUrgent:
		return true
	}
	return false
}

// Ticket is the aggregate for support requests. CompanyID never changes after creation.
type Ticket struct {
	ID                  string
	CompanyID           string
	CustomerID          *string
	CustomerEmail       string
	Subject             string
	Source              TicketSource
	Status              TicketStatus
	Priority            TicketPriority
	AgentID             *string
	EmailThreadID       *string
	Messages            []TicketMessage
	LastReplyAt         *time.Time
	LastCustomerReplyAt *time.Time
	LastAgentReplyAt    *time.Time
	FeedbackRating      *int
	FeedbackSentiment   *Sentiment
	CreatedAt           time.Time
	UpdatedAt           time.Time
	ClosedAt            *time.Time
}

// IsClosed reports whether the ticket reached its terminal state.
func (t *Ticket) IsClosed() bool {
	return t.Status == TicketStatusClosed
}

// AssignedTo reports whether agentID is the current assignee.
func (t *Ticket) AssignedTo(agentID string) bool {
	return t.AgentID != nil && *t.AgentID == agentID
}

// OwnedBy reports whether customerID owns the ticket.
func (t *Ticket) OwnedBy(customerID string) bool {
	return t.CustomerID != nil && *t.CustomerID == customerID
}

var allowedTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusOpen:       {TicketStatusInProgress, TicketStatusWaiting, TicketStatusClosed},
	TicketStatusInProgress: {TicketStatusWaiting, TicketStatusClosed},
	TicketStatusWaiting:    {TicketStatusInProgress, TicketStatusClosed},
	TicketStatusClosed:     {},
}

// CanTransition reports whether the lifecycle allows moving from current to next.
func CanTransition(current, next TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}
