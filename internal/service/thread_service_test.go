package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/events"
	apperrors "github.com/spec-kit/helpdesk-engine/pkg/util/errorutil"
)

func newThreadService(f *fixture) *ThreadService {
	return NewThreadService(ThreadDependencies{
		TicketRepo:   f.store.Tickets(),
		MessageRepo:  f.store.Messages(),
		CustomerRepo: f.store.Customers(),
		Assignment:   f.assignment,
		Dispatcher:   f.dispatcher,
		Now:          func() time.Time { return time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC) },
	})
}

func TestResolveOpensTicketAndThreadsReplies(t *testing.T) {
	f := newFixture(t)
	svc := newThreadService(f)
	ctx := context.Background()

	first, err := svc.Resolve(ctx, companyA, domain.InboundMessage{FromEmail: "jo@example.com", Subject: "Printer", Text: "broken", MessageID: "M1"})
	if err != nil {
		t.Fatalf("resolve first: %v", err)
	}
	if !first.Created || !first.Appended {
		t.Fatalf("expected new ticket with message, got %+v", first)
	}
	if first.Ticket.EmailThreadID == nil || *first.Ticket.EmailThreadID != "M1" {
		t.Fatalf("expected thread id M1")
	}
	if first.Ticket.Status != domain.TicketStatusOpen || first.Ticket.Source != domain.TicketSourceEmail {
		t.Fatalf("unexpected ticket state %+v", first.Ticket)
	}

	second, err := svc.Resolve(ctx, companyA, domain.InboundMessage{FromEmail: "jo@example.com", Text: "still broken", MessageID: "M2", InReplyTo: "M1"})
	if err != nil {
		t.Fatalf("resolve reply: %v", err)
	}
	if second.Created || second.Ticket.ID != first.Ticket.ID {
		t.Fatalf("reply should land on the first ticket")
	}
	if f.store.TicketCount(companyA) != 1 {
		t.Fatalf("expected one ticket")
	}
	msgs, _ := f.store.Messages().ListByTicket(ctx, companyA, first.Ticket.ID)
	if len(msgs) != 2 || msgs[0].Body != "broken" || msgs[1].Body != "still broken" {
		t.Fatalf("unexpected thread %+v", msgs)
	}
	if msgs[1].InReplyTo == nil || *msgs[1].InReplyTo != "M1" {
		t.Fatalf("in-reply-to not stored")
	}
}

func TestResolveIgnoresRedeliveredMessages(t *testing.T) {
	f := newFixture(t)
	svc := newThreadService(f)
	ctx := context.Background()
	root := domain.InboundMessage{FromEmail: "jo@example.com", Text: "hello", MessageID: "M1"}
	reply := domain.InboundMessage{FromEmail: "jo@example.com", Text: "again", MessageID: "M2", InReplyTo: "M1"}

	for _, msg := range []domain.InboundMessage{root, reply, root, reply, reply} {
		if _, err := svc.Resolve(ctx, companyA, msg); err != nil {
			t.Fatalf("resolve: %v", err)
		}
	}
	if f.store.TicketCount(companyA) != 1 {
		t.Fatalf("expected one ticket, got %d", f.store.TicketCount(companyA))
	}
	res, _ := svc.Resolve(ctx, companyA, reply)
	if res.Appended {
		t.Fatalf("duplicate message must not be appended")
	}
	msgs, _ := f.store.Messages().ListByTicket(ctx, companyA, res.Ticket.ID)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
}

func TestResolveConcurrentRootDeliveriesShareOneTicket(t *testing.T) {
	f := newFixture(t)
	svc := newThreadService(f)
	msg := domain.InboundMessage{FromEmail: "jo@example.com", Text: "hello", MessageID: "M1"}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Resolve(context.Background(), companyA, msg); err != nil {
				t.Errorf("resolve: %v", err)
			}
		}()
	}
	wg.Wait()
	if f.store.TicketCount(companyA) != 1 {
		t.Fatalf("expected one ticket, got %d", f.store.TicketCount(companyA))
	}
	if created := f.recorded.ofType(events.EventTicketCreated); len(created) != 1 {
		t.Fatalf("expected one ticket_created event, got %d", len(created))
	}
}

func TestResolveKeepsThreadsPerCompany(t *testing.T) {
	f := newFixture(t)
	svc := newThreadService(f)
	ctx := context.Background()

	a, err := svc.Resolve(ctx, companyA, domain.InboundMessage{FromEmail: "x@example.com", Text: "a", MessageID: "M1"})
	if err != nil {
		t.Fatalf("resolve a: %v", err)
	}
	b, err := svc.Resolve(ctx, companyB, domain.InboundMessage{FromEmail: "x@example.com", Text: "b", MessageID: "M2", InReplyTo: "M1"})
	if err != nil {
		t.Fatalf("resolve b: %v", err)
	}
	if !b.Created || b.Ticket.ID == a.Ticket.ID || b.Ticket.CompanyID != companyB {
		t.Fatalf("reply in another company must not join company A's thread")
	}
}

func TestResolveAutoAssignsNewTickets(t *testing.T) {
	f := newFixture(t)
	svc := newThreadService(f)
	f.agent(companyA, "a1")
	f.agent(companyA, "a2")
	f.customer(companyA, "cust-1", "Jo@Example.com", []string{"a1", "a2"}, 0)

	res, err := svc.Resolve(context.Background(), companyA, domain.InboundMessage{FromEmail: "jo@example.com", Text: "hi", MessageID: "M1"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !res.Ticket.AssignedTo("a2") {
		t.Fatalf("expected round robin to pick a2, got %v", res.Ticket.AgentID)
	}
	if !res.Ticket.OwnedBy("cust-1") {
		t.Fatalf("ticket should be linked to the customer")
	}
}

func TestResolveValidatesInput(t *testing.T) {
	f := newFixture(t)
	svc := newThreadService(f)
	_, err := svc.Resolve(context.Background(), companyA, domain.InboundMessage{FromEmail: "x@example.com", Text: "no id"})
	if !apperrors.IsCode(err, "VALIDATION_FAILED") {
		t.Fatalf("expected validation error, got %v", err)
	}
}
