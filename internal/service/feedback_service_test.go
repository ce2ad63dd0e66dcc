package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk-engine/internal/auth"
	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/events"
	apperrors "github.com/spec-kit/helpdesk-engine/pkg/util/errorutil"
)

type stubSentiment struct {
	result domain.Sentiment
	err    error
	calls  int
}

func (s *stubSentiment) Analyze(context.Context, string) (domain.Sentiment, error) {
	s.calls++
	return s.result, s.err
}

func newFeedbackService(f *fixture, analyzer SentimentAnalyzer) *FeedbackService {
	return NewFeedbackService(FeedbackDependencies{
		TicketRepo:   f.store.Tickets(),
		FeedbackRepo: f.store.Feedback(),
		Tokens:       auth.NewFeedbackTokenManager("feedback-secret", 14*24*time.Hour),
		Sentiment:    analyzer,
		Dispatcher:   f.dispatcher,
		LinkBaseURL:  "https://portal.example.com/feedback",
	})
}

func closedTicket(f *fixture, agentID *string) domain.Ticket {
	now := time.Now()
	return f.store.AddTicket(domain.Ticket{
		ID:            uuid.NewString(),
		CompanyID:     companyA,
		CustomerEmail: "jo@example.com",
		Subject:       "Printer",
		Status:        domain.TicketStatusClosed,
		AgentID:       agentID,
		ClosedAt:      &now,
	})
}

func TestFeedbackIssueAndSubmit(t *testing.T) {
	f := newFixture(t)
	analyzer := &stubSentiment{result: domain.SentimentPositive}
	svc := newFeedbackService(f, analyzer)
	ticket := closedTicket(f, strPtr("agent-1"))
	ctx := context.Background()

	link, err := svc.IssueForTicket(ctx, &ticket)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !strings.HasPrefix(link.Link, "https://portal.example.com/feedback?token=") {
		t.Fatalf("unexpected link %s", link.Link)
	}
	if d := time.Until(link.ExpiresAt); d < 13*24*time.Hour || d > 14*24*time.Hour {
		t.Fatalf("unexpected expiry %v", link.ExpiresAt)
	}
	if len(f.recorded.ofType(events.EventFeedbackRequested)) != 1 {
		t.Fatalf("expected feedback_requested event")
	}

	fb, err := svc.Submit(ctx, link.Token, 5, "great help")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if fb.Sentiment != domain.SentimentPositive || fb.CustomerEmail != "jo@example.com" {
		t.Fatalf("unexpected feedback %+v", fb)
	}
	stored, _ := f.store.Ticket(ticket.ID)
	if stored.FeedbackRating == nil || *stored.FeedbackRating != 5 || stored.FeedbackSentiment == nil {
		t.Fatalf("rating not copied to ticket")
	}
	if len(f.store.Notifications()) != 0 {
		t.Fatalf("high rating must not alert")
	}
}

func TestFeedbackSecondSubmissionConflicts(t *testing.T) {
	f := newFixture(t)
	svc := newFeedbackService(f, nil)
	ticket := closedTicket(f, nil)
	ctx := context.Background()
	link, err := svc.IssueForTicket(ctx, &ticket)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := svc.Submit(ctx, link.Token, 4, "fine"); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	_, err = svc.Submit(ctx, link.Token, 1, "changed my mind")
	if statusOf(err) != http.StatusConflict {
		t.Fatalf("expected 409, got %v", err)
	}
	existing, _ := f.store.Feedback().GetByTicket(ctx, companyA, ticket.ID)
	if existing.Rating != 4 || existing.Comment != "fine" {
		t.Fatalf("first record changed: %+v", existing)
	}
	_, err = svc.IssueForTicket(ctx, &ticket)
	if statusOf(err) != http.StatusConflict {
		t.Fatalf("issuing after submission must conflict, got %v", err)
	}
}

func TestFeedbackLowRatingAlertsAssignedAgent(t *testing.T) {
	f := newFixture(t)
	svc := newFeedbackService(f, &stubSentiment{err: errors.New("ai down")})
	ticket := closedTicket(f, strPtr("agent-1"))
	link, _ := svc.IssueForTicket(context.Background(), &ticket)

	fb, err := svc.Submit(context.Background(), link.Token, 2, "slow")
	if err != nil {
		t.Fatalf("submit must survive sentiment failure: %v", err)
	}
	if fb.Sentiment != "" {
		t.Fatalf("expected empty sentiment, got %s", fb.Sentiment)
	}
	notes := f.store.Notifications()
	if len(notes) != 1 || notes[0].RecipientID != "agent-1" || notes[0].Type != domain.NotificationLowFeedback {
		t.Fatalf("unexpected notifications %+v", notes)
	}
	if len(f.recorded.ofType(events.EventFeedbackLowRating)) != 1 {
		t.Fatalf("expected low rating event")
	}
}

func TestFeedbackLowRatingWithoutAgentSkipsAlert(t *testing.T) {
	f := newFixture(t)
	svc := newFeedbackService(f, nil)
	ticket := closedTicket(f, nil)
	link, _ := svc.IssueForTicket(context.Background(), &ticket)
	if _, err := svc.Submit(context.Background(), link.Token, 1, ""); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(f.store.Notifications()) != 0 {
		t.Fatalf("no agent, no alert")
	}
}

func TestFeedbackSubmitRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	svc := newFeedbackService(f, nil)
	ticket := closedTicket(f, nil)
	link, _ := svc.IssueForTicket(context.Background(), &ticket)

	forged, _, _ := auth.NewFeedbackTokenManager("other-secret", time.Hour).Issue(ticket.ID, companyA, "jo@example.com")
	cases := []struct {
		name   string
		token  string
		rating int
		want   int
	}{
		{"rating too low", link.Token, 0, http.StatusBadRequest},
		{"rating too high", link.Token, 6, http.StatusBadRequest},
		{"garbage token", "nope", 3, http.StatusUnauthorized},
		{"wrong signature", forged, 3, http.StatusUnauthorized},
		{"wrong signature and bad rating", forged, 0, http.StatusUnauthorized},
		{"garbage token and bad rating", "nope", 9, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Submit(context.Background(), tc.token, tc.rating, "")
			if got := statusOf(err); got != tc.want {
				t.Fatalf("status %d, want %d (%v)", got, tc.want, err)
			}
		})
	}
}

func TestFeedbackIssueChecksAccess(t *testing.T) {
	f := newFixture(t)
	svc := newFeedbackService(f, nil)
	ticket := closedTicket(f, strPtr("agent-1"))

	_, err := svc.Issue(context.Background(), domain.Actor{Type: domain.SubjectTypeAgent, ID: "agent-2", CompanyID: companyA}, ticket.ID)
	if !apperrors.IsCode(err, "FORBIDDEN") {
		t.Fatalf("expected forbidden, got %v", err)
	}
	_, err = svc.Issue(context.Background(), domain.Actor{Type: domain.SubjectTypeAgent, ID: "agent-1", CompanyID: companyB}, ticket.ID)
	if statusOf(err) != http.StatusNotFound {
		t.Fatalf("expected 404 across tenants, got %v", err)
	}
	if _, err := svc.Issue(context.Background(), domain.Actor{Type: domain.SubjectTypeAgent, ID: "agent-1", CompanyID: companyA}, ticket.ID); err != nil {
		t.Fatalf("assignee issue: %v", err)
	}
}

func TestFeedbackRequiresClosedTicket(t *testing.T) {
	f := newFixture(t)
	svc := newFeedbackService(f, nil)
	ctx := context.Background()
	open := f.store.AddTicket(domain.Ticket{
		ID:            uuid.NewString(),
		CompanyID:     companyA,
		CustomerEmail: "jo@example.com",
		Subject:       "Still broken",
		Status:        domain.TicketStatusOpen,
		AgentID:       strPtr("agent-1"),
	})

	if _, err := svc.IssueForTicket(ctx, &open); statusOf(err) != http.StatusConflict {
		t.Fatalf("issuing for an open ticket must conflict, got %v", err)
	}
	_, err := svc.Issue(ctx, domain.Actor{Type: domain.SubjectTypeAgent, ID: "agent-1", CompanyID: companyA}, open.ID)
	if statusOf(err) != http.StatusConflict {
		t.Fatalf("explicit issue for an open ticket must conflict, got %v", err)
	}

	token, _, err := auth.NewFeedbackTokenManager("feedback-secret", time.Hour).Issue(open.ID, companyA, "jo@example.com")
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := svc.Submit(ctx, token, 4, "fine"); statusOf(err) != http.StatusConflict {
		t.Fatalf("submitting for an open ticket must conflict, got %v", err)
	}
	if _, err := f.store.Feedback().GetByTicket(ctx, companyA, open.ID); err == nil {
		t.Fatalf("no feedback may be stored for an open ticket")
	}
}
