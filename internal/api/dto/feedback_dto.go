package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

// FeedbackSubmitRequest payload for POST /helpdesk/feedback.
type FeedbackSubmitRequest struct {
	Token   string `json:"token"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// FeedbackResponse echoes the stored feedback.
type FeedbackResponse struct {
	TicketID  string           `json:"ticketId"`
	Rating    int              `json:"rating"`
	Comment   string           `json:"comment"`
	Sentiment domain.Sentiment `json:"sentiment"`
	CreatedAt time.Time        `json:"createdAt"`
}

// NewFeedbackResponse maps stored feedback.
func NewFeedbackResponse(f *domain.TicketFeedback) FeedbackResponse {
	return FeedbackResponse{
		TicketID:  f.TicketID,
		Rating:    f.Rating,
		Comment:   f.Comment,
		Sentiment: f.Sentiment,
		CreatedAt: f.CreatedAt,
	}
}

// SubscriptionResponse reports the state of a mailbox subscription.
type SubscriptionResponse struct {
	MailboxID      string    `json:"mailboxId"`
	SubscriptionID string    `json:"subscriptionId"`
	ExpiresAt      time.Time `json:"expiresAt"`
	Created        bool      `json:"created"`
}
