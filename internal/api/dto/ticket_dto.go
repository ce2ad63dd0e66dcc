package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

// ReplyRequest payload for POST /helpdesk/reply.
type ReplyRequest struct {
	TicketID string `json:"ticketId"`
	Message  string `json:"message"`
}

// CreateTicketRequest payload for portal tickets.
type CreateTicketRequest struct {
	Subject  string                `json:"subject"`
	Message  string                `json:"message"`
	Priority domain.TicketPriority `json:"priority"`
}

// UpdateStatusRequest payload for status transitions.
type UpdateStatusRequest struct {
	Status domain.TicketStatus `json:"status"`
}

// TicketResponse is the public ticket shape.
type TicketResponse struct {
	ID                  string                  `json:"id"`
	CustomerID          *string                 `json:"customerId"`
	CustomerEmail       string                  `json:"customerEmail"`
	Subject             string                  `json:"subject"`
	Source              domain.TicketSource     `json:"source"`
	Status              domain.TicketStatus     `json:"status"`
	Priority            domain.TicketPriority   `json:"priority"`
	AgentID             *string                 `json:"agentId"`
	EmailThreadID       *string                 `json:"emailThreadId,omitempty"`
	LastReplyAt         *time.Time              `json:"lastReplyAt"`
	LastCustomerReplyAt *time.Time              `json:"lastCustomerReplyAt"`
	LastAgentReplyAt    *time.Time              `json:"lastAgentReplyAt"`
	FeedbackRating      *int                    `json:"feedbackRating,omitempty"`
	FeedbackSentiment   *domain.Sentiment       `json:"feedbackSentiment,omitempty"`
	CreatedAt           time.Time               `json:"createdAt"`
	UpdatedAt           time.Time               `json:"updatedAt"`
	ClosedAt            *time.Time              `json:"closedAt"`
	Messages            []TicketMessageResponse `json:"messages,omitempty"`
}

// TicketMessageResponse represents one thread message.
type TicketMessageResponse struct {
	ID          string              `json:"id"`
	SenderType  domain.SenderType   `json:"senderType"`
	SenderID    *string             `json:"senderId"`
	Body        string              `json:"body"`
	MessageID   *string             `json:"messageId,omitempty"`
	InReplyTo   *string             `json:"inReplyTo,omitempty"`
	Attachments []domain.Attachment `json:"attachments"`
	CreatedAt   time.Time           `json:"createdAt"`
}

// NotificationResponse is an in-app notification.
type NotificationResponse struct {
	ID        string                  `json:"id"`
	TicketID  *string                 `json:"ticketId"`
	Type      domain.NotificationType `json:"type"`
	Message   string                  `json:"message"`
	CreatedAt time.Time               `json:"createdAt"`
	ReadAt    *time.Time              `json:"readAt"`
}

// NewTicketResponse maps a ticket and any loaded messages.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	resp := TicketResponse{
		ID:                  t.ID,
		CustomerID:          t.CustomerID,
		CustomerEmail:       t.CustomerEmail,
		Subject:             t.Subject,
		Source:              t.Source,
		Status:              t.Status,
		Priority:            t.Priority,
		AgentID:             t.AgentID,
		EmailThreadID:       t.EmailThreadID,
		LastReplyAt:         t.LastReplyAt,
		LastCustomerReplyAt: t.LastCustomerReplyAt,
		LastAgentReplyAt:    t.LastAgentReplyAt,
		FeedbackRating:      t.FeedbackRating,
		FeedbackSentiment:   t.FeedbackSentiment,
		CreatedAt:           t.CreatedAt,
		UpdatedAt:           t.UpdatedAt,
		ClosedAt:            t.ClosedAt,
	}
	for i := range t.Messages {
		resp.Messages = append(resp.Messages, NewTicketMessageResponse(&t.Messages[i]))
	}
	return resp
}

// NewTicketMessageResponse maps a message.
func NewTicketMessageResponse(m *domain.TicketMessage) TicketMessageResponse {
	attachments := m.Attachments
	if attachments == nil {
		attachments = []domain.Attachment{}
	}
	return TicketMessageResponse{
		ID:          m.ID,
		SenderType:  m.SenderType,
		SenderID:    m.SenderID,
		Body:        m.Body,
		MessageID:   m.ExternalMessageID,
		InReplyTo:   m.InReplyTo,
		Attachments: attachments,
		CreatedAt:   m.CreatedAt,
	}
}

// NewNotificationResponse maps a notification.
func NewNotificationResponse(n *domain.Notification) NotificationResponse {
	return NotificationResponse{
		ID:        n.ID,
		TicketID:  n.TicketID,
		Type:      n.Type,
		Message:   n.Message,
		CreatedAt: n.CreatedAt,
		ReadAt:    n.ReadAt,
	}
}
