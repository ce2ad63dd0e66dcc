package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/events"
	"github.com/spec-kit/helpdesk-engine/internal/persistence"
	"github.com/spec-kit/helpdesk-engine/internal/repository/memory"
	"github.com/spec-kit/helpdesk-engine/internal/service"
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

type sweepFixture struct {
	store      *memory.Store
	assignment *service.AssignmentService
}

func newSweepFixture() *sweepFixture {
	store := memory.NewStore()
	store.AddCompany(domain.Company{ID: "c1", Active: true})
	assignment := service.NewAssignmentService(service.AssignmentDependencies{
		AgentRepo:    store.Agents(),
		CustomerRepo: store.Customers(),
		TicketRepo:   store.Tickets(),
		HistoryRepo:  store.HistoryRepo(),
		Dispatcher:   events.NewInMemoryDispatcher(nil),
		Intn:         func(int) int { return 0 },
	})
	return &sweepFixture{store: store, assignment: assignment}
}

func (f *sweepFixture) sweep(assigner Assigner, now time.Time) *ReassignmentSweep {
	if assigner == nil {
		assigner = f.assignment
	}
	return NewReassignmentSweep(SweepDependencies{
		CompanyRepo:  f.store.Companies(),
		TicketRepo:   f.store.Tickets(),
		CustomerRepo: f.store.Customers(),
		Availability: service.NewAvailabilityProvider(f.store.Agents()),
		Assigner:     assigner,
		Now:          func() time.Time { return now },
		BatchSize:    2,
	})
}

func TestSweepReassignsAgentOnLeave(t *testing.T) {
	f := newSweepFixture()
	f.store.AddAgent(domain.Agent{ID: "a", CompanyID: "c1", IsAgent: true, IsActive: true,
		LeaveFrom: dayPtr("2025-01-01"), LeaveTo: dayPtr("2025-01-05")})
	f.store.AddAgent(domain.Agent{ID: "b", CompanyID: "c1", IsAgent: true, IsActive: true})
	f.store.AddCustomer(domain.Customer{ID: "cust", CompanyID: "c1", AssignedAgents: []string{"a", "b"}, LastAssignedAgentIndex: 0})
	ticket := f.store.AddTicket(domain.Ticket{CompanyID: "c1", CustomerID: strPtr("cust"),
		Status: domain.TicketStatusOpen, AgentID: strPtr("a")})

	stats, err := f.sweep(nil, day("2025-01-02")).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Checked != 1 || stats.Reassigned != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	got, _ := f.store.Ticket(ticket.ID)
	if got.AgentID == nil || *got.AgentID != "b" {
		t.Fatalf("agent = %v, want b", got.AgentID)
	}

	again, _ := f.sweep(nil, day("2025-01-02")).Run(context.Background())
	if again.Reassigned != 0 || again.Checked != 1 {
		t.Fatalf("second run should be a no-op, got %+v", again)
	}
}

func TestSweepJudgesLeaveByBusinessCalendar(t *testing.T) {
	f := newSweepFixture()
	f.store.AddAgent(domain.Agent{ID: "a", CompanyID: "c1", IsAgent: true, IsActive: true,
		LeaveFrom: dayPtr("2025-01-02"), LeaveTo: dayPtr("2025-01-05")})
	f.store.AddAgent(domain.Agent{ID: "b", CompanyID: "c1", IsAgent: true, IsActive: true})
	f.store.AddCustomer(domain.Customer{ID: "cust", CompanyID: "c1", AssignedAgents: []string{"a", "b"}, LastAssignedAgentIndex: 0})
	ticket := f.store.AddTicket(domain.Ticket{CompanyID: "c1", CustomerID: strPtr("cust"),
		Status: domain.TicketStatusOpen, AgentID: strPtr("a")})

	// 23:00 on 2025-01-01 in UTC-5 is already 2025-01-02 in UTC.
	evening := time.Date(2025, 1, 1, 23, 0, 0, 0, time.FixedZone("EST", -5*3600))
	stats, err := f.sweep(nil, evening).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Reassigned != 0 {
		t.Fatalf("leave has not started locally, stats = %+v", stats)
	}
	got, _ := f.store.Ticket(ticket.ID)
	if got.AgentID == nil || *got.AgentID != "a" {
		t.Fatalf("agent = %v, want a", got.AgentID)
	}

	stats, _ = f.sweep(nil, evening.Add(2*time.Hour)).Run(context.Background())
	if stats.Reassigned != 1 {
		t.Fatalf("after local midnight the ticket moves, stats = %+v", stats)
	}
}

func TestSweepSkipsClosedAndUnresolvable(t *testing.T) {
	f := newSweepFixture()
	f.store.AddAgent(domain.Agent{ID: "gone", CompanyID: "c1", IsAgent: true, IsActive: false})
	f.store.AddTicket(domain.Ticket{CompanyID: "c1", Status: domain.TicketStatusClosed, AgentID: strPtr("gone")})
	f.store.AddTicket(domain.Ticket{CompanyID: "c1", Status: domain.TicketStatusWaiting, AgentID: strPtr("gone")})
	f.store.AddTicket(domain.Ticket{CompanyID: "c1", Status: domain.TicketStatusOpen, AgentID: strPtr("gone"), CustomerID: strPtr("missing")})

	stats, err := f.sweep(nil, day("2025-01-02")).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Checked != 2 || stats.Skipped != 2 || stats.Reassigned != 0 {
		t.Fatalf("stats = %+v", stats)
	}
}

type flakyAssigner struct {
	mu    sync.Mutex
	inner Assigner
	calls int
}

func (a *flakyAssigner) Assign(ctx context.Context, ticket *domain.Ticket, customer *domain.Customer, refDate time.Time, reason string) (*string, error) {
	a.mu.Lock()
	a.calls++
	n := a.calls
	a.mu.Unlock()
	switch n {
	case 1:
		return nil, errors.New("db hiccup")
	case 2:
		panic("bad reference")
	case 3:
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return a.inner.Assign(ctx, ticket, customer, refDate, reason)
}

func TestSweepIsolatesTicketFailures(t *testing.T) {
	f := newSweepFixture()
	f.store.AddAgent(domain.Agent{ID: "off", CompanyID: "c1", IsAgent: true, IsActive: true, Holidays: []time.Time{day("2025-01-02")}})
	f.store.AddAgent(domain.Agent{ID: "on", CompanyID: "c1", IsAgent: true, IsActive: true})
	f.store.AddCustomer(domain.Customer{ID: "cust", CompanyID: "c1", AssignedAgents: []string{"off", "on"}, LastAssignedAgentIndex: -1})
	var ids []string
	for i := 0; i < 4; i++ {
		tk := f.store.AddTicket(domain.Ticket{CompanyID: "c1", CustomerID: strPtr("cust"), Status: domain.TicketStatusOpen, AgentID: strPtr("off")})
		ids = append(ids, tk.ID)
	}

	sweep := f.sweep(&flakyAssigner{inner: f.assignment}, day("2025-01-02"))
	sweep.ticketTimeout = 20 * time.Millisecond
	stats, err := sweep.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Checked != 4 || stats.Errors != 3 || stats.Reassigned != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	moved := 0
	for _, id := range ids {
		tk, _ := f.store.Ticket(id)
		if *tk.AgentID == "on" {
			moved++
		}
	}
	if moved != 1 {
		t.Fatalf("moved = %d", moved)
	}
}

type fakeLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *fakeLocker) Lock(_ context.Context, key string, _ time.Duration) (func(context.Context), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, persistence.ErrLockHeld
	}
	l.held[key] = true
	return func(context.Context) {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}, nil
}

func TestSchedulerSkipsWhenLockHeld(t *testing.T) {
	locker := &fakeLocker{held: map[string]bool{"helpdesk:lock:busy": true}}
	ran := map[string]int{}
	job := func(name string) Job {
		return Job{Name: name, LockTTL: time.Second, Run: func(context.Context) error {
			ran[name]++
			if name == "panics" {
				panic("boom")
			}
			return nil
		}}
	}
	s := NewScheduler(locker, nil, job("busy"), job("panics"), job("free"))
	s.RunOnce(context.Background())
	s.RunOnce(context.Background())

	if ran["busy"] != 0 || ran["panics"] != 2 || ran["free"] != 2 {
		t.Fatalf("ran = %v", ran)
	}
}
