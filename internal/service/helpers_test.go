package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/events"
	"github.com/spec-kit/helpdesk-engine/internal/repository/memory"
)

const (
	companyA = "company-a"
	companyB = "company-b"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func dayPtr(s string) *time.Time {
	t := day(s)
	return &t
}

func strPtr(s string) *string { return &s }

type recordedEvents struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordedEvents) handler(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordedEvents) ofType(t events.EventType) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	store      *memory.Store
	dispatcher events.Dispatcher
	recorded   *recordedEvents
	assignment *AssignmentService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	dispatcher := events.NewInMemoryDispatcher(nil)
	recorded := &recordedEvents{}
	for _, et := range events.AllEventTypes {
		dispatcher.Subscribe(et, recorded.handler)
	}
	f := &fixture{store: store, dispatcher: dispatcher, recorded: recorded}
	f.assignment = NewAssignmentService(AssignmentDependencies{
		AgentRepo:    store.Agents(),
		CustomerRepo: store.Customers(),
		TicketRepo:   store.Tickets(),
		HistoryRepo:  store.HistoryRepo(),
		Dispatcher:   dispatcher,
		Intn:         func(int) int { return 0 },
	})
	return f
}

func (f *fixture) agent(companyID, id string, mutate ...func(*domain.Agent)) domain.Agent {
	a := domain.Agent{ID: id, CompanyID: companyID, Name: id, Email: id + "@example.com", IsAgent: true, IsActive: true}
	for _, m := range mutate {
		m(&a)
	}
	return f.store.AddAgent(a)
}

func (f *fixture) customer(companyID, id, email string, pool []string, cursor int) domain.Customer {
	return f.store.AddCustomer(domain.Customer{
		ID:                     id,
		CompanyID:              companyID,
		Email:                  email,
		AssignedAgents:         pool,
		LastAssignedAgentIndex: cursor,
	})
}
