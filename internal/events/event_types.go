package events

import (
	"time"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketAssigned      EventType = "ticket_assigned"
	EventTicketReassigned    EventType = "ticket_reassigned"
	EventTicketMessageAdded  EventType = "ticket_message_added"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketClosed        EventType = "ticket_closed"
	EventFeedbackRequested   EventType = "feedback_requested"
	EventFeedbackLowRating   EventType = "feedback_low_rating"
)

// AllEventTypes lists every event a forwarder may subscribe to.
var AllEventTypes = []EventType{
	EventTicketCreated,
	EventTicketAssigned,
	EventTicketReassigned,
	EventTicketMessageAdded,
	EventTicketStatusChanged,
	EventTicketClosed,
	EventFeedbackRequested,
	EventFeedbackLowRating,
}

// Actor encapsulates actor metadata for an event. A nil ID means the system.
type Actor struct {
	Type domain.SubjectType `json:"type,omitempty"`
	ID   *string            `json:"id,omitempty"`
}

// SystemActor marks changes made by background processing.
var SystemActor = Actor{}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	CompanyID string      `json:"company_id"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Source        domain.TicketSource `json:"source"`
	Subject       string              `json:"subject"`
	CustomerEmail string              `json:"customer_email"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	PreviousAgentID *string `json:"previous_agent_id,omitempty"`
	AgentID         *string `json:"agent_id,omitempty"`
	Reason          string  `json:"reason,omitempty"`
}

// TicketMessageAddedPayload payload.
type TicketMessageAddedPayload struct {
	MessageID   string            `json:"message_id"`
	SenderType  domain.SenderType `json:"sender_type"`
	SenderID    *string           `json:"sender_id,omitempty"`
	BodyPreview string            `json:"body_preview"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// FeedbackRequestedPayload carries the link mailed to the customer.
type FeedbackRequestedPayload struct {
	CustomerEmail string    `json:"customer_email"`
	Link          string    `json:"link"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// FeedbackLowRatingPayload payload.
type FeedbackLowRatingPayload struct {
	AgentID   string           `json:"agent_id"`
	Rating    int              `json:"rating"`
	Sentiment domain.Sentiment `json:"sentiment,omitempty"`
}
