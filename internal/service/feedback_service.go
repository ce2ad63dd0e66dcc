package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-engine/internal/auth"
	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/events"
	"github.com/spec-kit/helpdesk-engine/internal/observability"
	"github.com/spec-kit/helpdesk-engine/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-engine/pkg/util/errorutil"
)

// SentimentAnalyzer classifies free-text feedback.
type SentimentAnalyzer interface {
	Analyze(ctx context.Context, text string) (domain.Sentiment, error)
}

// FeedbackLink is the signed link mailed to the customer.
type FeedbackLink struct {
	TicketID  string    `json:"ticketId"`
	Token     string    `json:"token"`
	Link      string    `json:"link"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// FeedbackService issues single-use feedback tokens and records submissions.
type FeedbackService struct {
	tickets            repository.TicketRepository
	feedback           repository.FeedbackRepository
	tokens             *auth.FeedbackTokenManager
	sentiment          SentimentAnalyzer
	dispatcher         events.Dispatcher
	metrics            *observability.Metrics
	logger             *zap.Logger
	linkBaseURL        string
	lowRatingThreshold int
}

// FeedbackDependencies bundles collaborators.
type FeedbackDependencies struct {
	TicketRepo         repository.TicketRepository
	FeedbackRepo       repository.FeedbackRepository
	Tokens             *auth.FeedbackTokenManager
	Sentiment          SentimentAnalyzer
	Dispatcher         events.Dispatcher
	Metrics            *observability.Metrics
	Logger             *zap.Logger
	LinkBaseURL        string
	LowRatingThreshold int
}

// NewFeedbackService creates the service.
func NewFeedbackService(deps FeedbackDependencies) *FeedbackService {
	s := &FeedbackService{
		tickets:            deps.TicketRepo,
		feedback:           deps.FeedbackRepo,
		tokens:             deps.Tokens,
		sentiment:          deps.Sentiment,
		dispatcher:         deps.Dispatcher,
		metrics:            deps.Metrics,
		logger:             deps.Logger,
		linkBaseURL:        deps.LinkBaseURL,
		lowRatingThreshold: deps.LowRatingThreshold,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.lowRatingThreshold <= 0 {
		s.lowRatingThreshold = 2
	}
	return s
}

// Issue is the explicit-request path: the actor must be able to see the ticket.
func (s *FeedbackService) Issue(ctx context.Context, actor domain.Actor, ticketID string) (*FeedbackLink, error) {
	if _, err := uuid.Parse(ticketID); err != nil {
		return nil, apperrors.NewValidationError("invalid ticket id", map[string]any{"ticket_id": ticketID})
	}
	ticket, err := s.tickets.GetByID(ctx, actor.CompanyID, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	if !canAccessTicket(actor, ticket) {
		return nil, apperrors.NewForbidden("access denied")
	}
	return s.IssueForTicket(ctx, ticket)
}

// IssueForTicket signs a token bound to the ticket and customer and hands the
// link to the mail collaborator. Only closed tickets qualify, and it refuses
// once feedback exists.
func (s *FeedbackService) IssueForTicket(ctx context.Context, ticket *domain.Ticket) (*FeedbackLink, error) {
	if !ticket.IsClosed() {
		return nil, ticketNotClosed(ticket)
	}
	if strings.TrimSpace(ticket.CustomerEmail) == "" {
		return nil, apperrors.NewValidationError("ticket has no customer email", map[string]any{"ticket_id": ticket.ID})
	}
	if _, err := s.feedback.GetByTicket(ctx, ticket.CompanyID, ticket.ID); err == nil {
		return nil, apperrors.NewConflict("feedback already submitted", map[string]any{"ticket_id": ticket.ID})
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.MapError(err)
	}

	token, expiresAt, err := s.tokens.Issue(ticket.ID, ticket.CompanyID, ticket.CustomerEmail)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	link := &FeedbackLink{
		TicketID:  ticket.ID,
		Token:     token,
		Link:      s.buildLink(token),
		ExpiresAt: expiresAt,
	}
	s.publish(ctx, events.EventFeedbackRequested, ticket, events.FeedbackRequestedPayload{
		CustomerEmail: ticket.CustomerEmail,
		Link:          link.Link,
		ExpiresAt:     expiresAt,
	})
	return link, nil
}

func (s *FeedbackService) buildLink(token string) string {
	sep := "?"
	if strings.Contains(s.linkBaseURL, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%stoken=%s", s.linkBaseURL, sep, url.QueryEscape(token))
}

// Submit redeems a feedback token once.
func (s *FeedbackService) Submit(ctx context.Context, token string, rating int, comment string) (*domain.TicketFeedback, error) {
	claims, err := s.tokens.Parse(strings.TrimSpace(token))
	if err != nil {
		return nil, apperrors.NewUnauthorized("invalid or expired feedback token")
	}
	if rating < 1 || rating > 5 {
		return nil, apperrors.NewValidationError("rating must be between 1 and 5", map[string]any{"rating": rating})
	}
	ticket, err := s.tickets.GetByID(ctx, claims.CompanyID, claims.TicketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": claims.TicketID})
		}
		return nil, apperrors.MapError(err)
	}
	if !ticket.IsClosed() {
		return nil, ticketNotClosed(ticket)
	}
	if _, err := s.feedback.GetByTicket(ctx, ticket.CompanyID, ticket.ID); err == nil {
		return nil, duplicateFeedback(ticket.ID)
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.MapError(err)
	}

	comment = strings.TrimSpace(comment)
	fb := &domain.TicketFeedback{
		TicketID:      ticket.ID,
		CompanyID:     ticket.CompanyID,
		CustomerEmail: claims.CustomerEmail,
		Rating:        rating,
		Comment:       comment,
		Sentiment:     s.analyze(ctx, ticket.ID, comment),
	}
	var alert *domain.Notification
	if rating <= s.lowRatingThreshold && ticket.AgentID != nil {
		ticketID := ticket.ID
		alert = &domain.Notification{
			CompanyID:   ticket.CompanyID,
			RecipientID: *ticket.AgentID,
			TicketID:    &ticketID,
			Type:        domain.NotificationLowFeedback,
			Message:     fmt.Sprintf("Ticket %q received a %d-star rating", ticket.Subject, rating),
		}
	}
	if err := s.feedback.Submit(ctx, fb, alert); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, duplicateFeedback(ticket.ID)
		}
		return nil, apperrors.MapError(err)
	}
	s.metrics.RecordFeedback(rating)

	if alert != nil {
		s.publish(ctx, events.EventFeedbackLowRating, ticket, events.FeedbackLowRatingPayload{
			AgentID:   alert.RecipientID,
			Rating:    rating,
			Sentiment: fb.Sentiment,
		})
	}
	return fb, nil
}

// analyze never fails the submission; an unavailable collaborator leaves sentiment empty.
func (s *FeedbackService) analyze(ctx context.Context, ticketID, comment string) domain.Sentiment {
	if comment == "" || s.sentiment == nil {
		return ""
	}
	sentiment, err := s.sentiment.Analyze(ctx, comment)
	if err != nil {
		s.logger.Warn("sentiment analysis failed", zap.String("ticket_id", ticketID), zap.Error(err))
		return ""
	}
	return sentiment
}

func (s *FeedbackService) publish(ctx context.Context, eventType events.EventType, ticket *domain.Ticket, payload interface{}) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		CompanyID: ticket.CompanyID,
		TicketID:  ticket.ID,
		Actor:     events.SystemActor,
		Timestamp: time.Now(),
		Payload:   payload,
	})
}

func duplicateFeedback(ticketID string) error {
	return apperrors.NewConflict("feedback already submitted", map[string]any{"ticket_id": ticketID})
}

func ticketNotClosed(ticket *domain.Ticket) error {
	return apperrors.NewConflict("feedback opens once the ticket is closed", map[string]any{
		"ticket_id": ticket.ID,
		"status":    ticket.Status,
	})
}
