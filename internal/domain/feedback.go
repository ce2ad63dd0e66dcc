package domain

import "time"

// Sentiment is the classification returned by the analysis collaborator.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// ParseSentiment normalizes free-form collaborator output.
func ParseSentiment(raw string) (Sentiment, bool) {
	switch Sentiment(raw) {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
		return Sentiment(raw), true
	}
	return "", false
}

// TicketFeedback is created at most once per ticket and never updated.
type TicketFeedback struct {
	ID            string
	TicketID      string
	CompanyID     string
	CustomerEmail string
	Rating        int
	Comment       string
	Sentiment     Sentiment
	CreatedAt     time.Time
}

// NotificationType enumerates in-app notification kinds.
type NotificationType string

const NotificationLowFeedback NotificationType = "low_feedback"

// Notification is an in-app alert for an agent.
type Notification struct {
	ID          string
	CompanyID   string
	RecipientID string
	TicketID    *string
	Type        NotificationType
	Message     string
	CreatedAt   time.Time
	ReadAt      *time.Time
}
