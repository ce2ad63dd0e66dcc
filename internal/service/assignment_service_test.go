package service

import (
	"context"
	"sync"
	"testing"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/events"
)

func TestSelectAgentAdvancesCursorToNextPoolMember(t *testing.T) {
	f := newFixture(t)
	f.agent(companyA, "agent-a")
	f.agent(companyA, "agent-b")
	c := f.customer(companyA, "cust-1", "c@example.com", []string{"agent-a", "agent-b"}, 0)

	got, err := f.assignment.SelectAgent(context.Background(), companyA, &c, day("2025-01-02"))
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if got == nil || *got != "agent-b" {
		t.Fatalf("expected agent-b, got %v", got)
	}
	stored, _ := f.store.Customer("cust-1")
	if stored.LastAssignedAgentIndex != 1 {
		t.Fatalf("expected cursor 1, got %d", stored.LastAssignedAgentIndex)
	}
}

func TestSelectAgentRoundRobinIsFairAndCyclic(t *testing.T) {
	f := newFixture(t)
	pool := []string{"a1", "a2", "a3"}
	for _, id := range pool {
		f.agent(companyA, id)
	}
	c := f.customer(companyA, "cust-1", "c@example.com", pool, domain.NoAssignment)

	counts := map[string]int{}
	var order []string
	for i := 0; i < 10; i++ {
		got, err := f.assignment.SelectAgent(context.Background(), companyA, &c, day("2025-01-02"))
		if err != nil || got == nil {
			t.Fatalf("call %d: %v %v", i, got, err)
		}
		counts[*got]++
		order = append(order, *got)
	}
	for i, id := range order {
		if id != pool[i%len(pool)] {
			t.Fatalf("call %d picked %s, want %s (order %v)", i, id, pool[i%len(pool)], order)
		}
	}
	min, max := 10, 0
	for _, id := range pool {
		if counts[id] < min {
			min = counts[id]
		}
		if counts[id] > max {
			max = counts[id]
		}
	}
	if max-min > 1 {
		t.Fatalf("unfair distribution %v", counts)
	}
}

func TestSelectAgentConcurrentCallsNeverRepeatAnIndex(t *testing.T) {
	f := newFixture(t)
	f.agent(companyA, "a1")
	f.agent(companyA, "a2")
	c := f.customer(companyA, "cust-1", "c@example.com", []string{"a1", "a2"}, domain.NoAssignment)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		counts = map[string]int{}
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := f.assignment.SelectAgent(context.Background(), companyA, &c, day("2025-01-02"))
			if err != nil || got == nil {
				t.Errorf("select: %v %v", got, err)
				return
			}
			mu.Lock()
			counts[*got]++
			mu.Unlock()
		}()
	}
	wg.Wait()
	if counts["a1"] != 25 || counts["a2"] != 25 {
		t.Fatalf("expected 25/25, got %v", counts)
	}
}

func TestSelectAgentSkipsUnavailablePoolMembers(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*domain.Agent)
	}{
		{"on leave", func(a *domain.Agent) { a.LeaveFrom, a.LeaveTo = dayPtr("2025-01-01"), dayPtr("2025-01-05") }},
		{"holiday", func(a *domain.Agent) { a.Holidays = append(a.Holidays, day("2025-01-02")) }},
		{"inactive", func(a *domain.Agent) { a.IsActive = false }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.agent(companyA, "a1")
			f.agent(companyA, "a2", tc.mutate)
			c := f.customer(companyA, "cust-1", "c@example.com", []string{"a1", "a2"}, domain.NoAssignment)
			for i := 0; i < 4; i++ {
				got, err := f.assignment.SelectAgent(context.Background(), companyA, &c, day("2025-01-02"))
				if err != nil {
					t.Fatalf("select: %v", err)
				}
				if got == nil || *got != "a1" {
					t.Fatalf("call %d: expected a1, got %v", i, got)
				}
			}
		})
	}
}

func TestSelectAgentFallsBackToCompanyAgents(t *testing.T) {
	f := newFixture(t)
	f.agent(companyA, "away", func(a *domain.Agent) { a.LeaveFrom = dayPtr("2025-01-01") })
	f.agent(companyA, "not-agent", func(a *domain.Agent) { a.IsAgent = false })
	f.agent(companyA, "fallback")
	f.agent(companyB, "other-company")

	var seen int
	f.assignment.intn = func(n int) int {
		seen = n
		return n - 1
	}
	got, err := f.assignment.SelectAgent(context.Background(), companyA, nil, day("2025-01-02"))
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if got == nil || *got != "fallback" {
		t.Fatalf("expected fallback, got %v", got)
	}
	if seen != 1 {
		t.Fatalf("expected a fallback pool of 1, got %d", seen)
	}
}

func TestSelectAgentReturnsNilWhenNobodyAvailable(t *testing.T) {
	f := newFixture(t)
	f.agent(companyA, "inactive", func(a *domain.Agent) { a.IsActive = false })
	c := f.customer(companyA, "cust-1", "c@example.com", []string{"inactive"}, domain.NoAssignment)

	got, err := f.assignment.SelectAgent(context.Background(), companyA, &c, day("2025-01-02"))
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil, got %s", *got)
	}
}

func TestSelectAgentIgnoresPoolMembersFromOtherCompanies(t *testing.T) {
	f := newFixture(t)
	f.agent(companyB, "foreign")
	f.agent(companyA, "local")
	c := f.customer(companyA, "cust-1", "c@example.com", []string{"foreign", "local"}, domain.NoAssignment)

	for i := 0; i < 3; i++ {
		got, err := f.assignment.SelectAgent(context.Background(), companyA, &c, day("2025-01-02"))
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		if got == nil || *got != "local" {
			t.Fatalf("expected local, got %v", got)
		}
	}
}

func TestAssignRecordsHistoryAndPublishes(t *testing.T) {
	f := newFixture(t)
	f.agent(companyA, "a1")
	c := f.customer(companyA, "cust-1", "c@example.com", []string{"a1"}, domain.NoAssignment)
	ticket := f.store.AddTicket(domain.Ticket{CompanyID: companyA, CustomerID: &c.ID, Status: domain.TicketStatusOpen})

	got, err := f.assignment.Assign(context.Background(), &ticket, &c, day("2025-01-02"), AssignReasonNewTicket)
	if err != nil || got == nil || *got != "a1" {
		t.Fatalf("assign: %v %v", got, err)
	}
	stored, _ := f.store.Ticket(ticket.ID)
	if !stored.AssignedTo("a1") {
		t.Fatalf("ticket not assigned: %+v", stored.AgentID)
	}
	if len(f.store.History()) != 1 {
		t.Fatalf("expected one history entry")
	}
	if len(f.recorded.ofType(events.EventTicketAssigned)) != 1 {
		t.Fatalf("expected ticket_assigned event")
	}
}

func TestAssignDoesNotOverwriteConcurrentChange(t *testing.T) {
	f := newFixture(t)
	f.agent(companyA, "a1")
	ticket := f.store.AddTicket(domain.Ticket{CompanyID: companyA, Status: domain.TicketStatusOpen, AgentID: strPtr("manual")})

	stale := ticket
	stale.AgentID = strPtr("someone-else")
	got, err := f.assignment.Assign(context.Background(), &stale, nil, day("2025-01-02"), AssignReasonUnavailable)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no assignment, got %s", *got)
	}
	stored, _ := f.store.Ticket(ticket.ID)
	if !stored.AssignedTo("manual") {
		t.Fatalf("concurrent assignment overwritten")
	}
}
