//go:build integration

package repository

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/persistence"
	"github.com/spec-kit/helpdesk-engine/migrations"
)

// Run with: HELPDESK_TEST_POSTGRES_DSN=postgres://... go test -tags integration ./internal/repository/
func integrationPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("HELPDESK_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("HELPDESK_TEST_POSTGRES_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := persistence.RunMigrations(ctx, pool, migrations.FS, zap.NewNop()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}

type seeded struct {
	companyID  string
	agentID    string
	customerID string
}

func seed(t *testing.T, pool *pgxpool.Pool) seeded {
	t.Helper()
	ctx := context.Background()
	var s seeded
	if err := pool.QueryRow(ctx,
		`INSERT INTO companies (name, webhook_secret_hash) VALUES ($1, 'x') RETURNING id`,
		"it-"+uuid.NewString()).Scan(&s.companyID); err != nil {
		t.Fatalf("seed company: %v", err)
	}
	if err := pool.QueryRow(ctx,
		`INSERT INTO agents (company_id, name, email, is_agent) VALUES ($1, 'Agent', 'agent@it.test', TRUE) RETURNING id`,
		s.companyID).Scan(&s.agentID); err != nil {
		t.Fatalf("seed agent: %v", err)
	}
	if err := pool.QueryRow(ctx,
		`INSERT INTO customers (company_id, name, email) VALUES ($1, 'Jo', 'jo@it.test') RETURNING id`,
		s.companyID).Scan(&s.customerID); err != nil {
		t.Fatalf("seed customer: %v", err)
	}
	return s
}

func TestPostgresAdvanceCursorIsAtomic(t *testing.T) {
	pool := integrationPool(t)
	s := seed(t, pool)
	repo := NewCustomerRepository(pool)

	const calls, poolSize = 30, 3
	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		seen = map[int]int{}
	)
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next, err := repo.AdvanceCursor(context.Background(), s.companyID, s.customerID, poolSize)
			if err != nil {
				t.Errorf("advance: %v", err)
				return
			}
			mu.Lock()
			seen[next]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	for idx := 0; idx < poolSize; idx++ {
		if seen[idx] != calls/poolSize {
			t.Fatalf("index distribution = %v", seen)
		}
	}
	customer, err := repo.GetByID(context.Background(), s.companyID, s.customerID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if customer.LastAssignedAgentIndex != (calls-1)%poolSize {
		t.Fatalf("cursor = %d", customer.LastAssignedAgentIndex)
	}
	if _, err := repo.AdvanceCursor(context.Background(), uuid.NewString(), s.customerID, poolSize); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("foreign company must not move the cursor, got %v", err)
	}
}

func TestPostgresCreateOrGetByThreadConverges(t *testing.T) {
	pool := integrationPool(t)
	s := seed(t, pool)
	repo := NewTicketRepository(pool)
	thread := "<root-" + uuid.NewString() + "@mail.test>"

	const racers = 10
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		ids      = map[string]bool{}
		inserted int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticket := &domain.Ticket{
				CompanyID:     s.companyID,
				CustomerEmail: "jo@it.test",
				Subject:       "Printer",
				Source:        domain.TicketSourceEmail,
				Status:        domain.TicketStatusOpen,
				Priority:      domain.TicketPriorityMedium,
				EmailThreadID: &thread,
			}
			stored, created, err := repo.CreateOrGetByThread(context.Background(), ticket)
			if err != nil {
				t.Errorf("create: %v", err)
				return
			}
			mu.Lock()
			ids[stored.ID] = true
			if created {
				inserted++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(ids) != 1 || inserted != 1 {
		t.Fatalf("ids = %v, inserted = %d", ids, inserted)
	}
}

func TestPostgresFeedbackSubmitIsTransactional(t *testing.T) {
	pool := integrationPool(t)
	s := seed(t, pool)
	ctx := context.Background()
	tickets := NewTicketRepository(pool)
	feedback := NewFeedbackRepository(pool)

	ticket := &domain.Ticket{CompanyID: s.companyID, CustomerEmail: "jo@it.test", Source: domain.TicketSourcePortal,
		Status: domain.TicketStatusClosed, Priority: domain.TicketPriorityLow, AgentID: &s.agentID}
	if err := tickets.Create(ctx, ticket); err != nil {
		t.Fatalf("create ticket: %v", err)
	}

	brokenAlert := &domain.Notification{CompanyID: s.companyID, RecipientID: uuid.NewString(),
		TicketID: &ticket.ID, Type: domain.NotificationLowFeedback, Message: "low"}
	fb := &domain.TicketFeedback{TicketID: ticket.ID, CompanyID: s.companyID, CustomerEmail: "jo@it.test", Rating: 1}
	if err := feedback.Submit(ctx, fb, brokenAlert); err == nil {
		t.Fatalf("alert for an unknown agent must fail")
	}
	if _, err := feedback.GetByTicket(ctx, s.companyID, ticket.ID); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("failed submit must roll back the feedback row, got %v", err)
	}
	reloaded, _ := tickets.GetByID(ctx, s.companyID, ticket.ID)
	if reloaded.FeedbackRating != nil {
		t.Fatalf("failed submit must roll back the ticket rating")
	}

	alert := &domain.Notification{CompanyID: s.companyID, RecipientID: s.agentID,
		TicketID: &ticket.ID, Type: domain.NotificationLowFeedback, Message: "low"}
	fb = &domain.TicketFeedback{TicketID: ticket.ID, CompanyID: s.companyID, CustomerEmail: "jo@it.test", Rating: 1}
	if err := feedback.Submit(ctx, fb, alert); err != nil {
		t.Fatalf("submit: %v", err)
	}
	again := &domain.TicketFeedback{TicketID: ticket.ID, CompanyID: s.companyID, CustomerEmail: "jo@it.test", Rating: 5}
	if err := feedback.Submit(ctx, again, nil); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("second submit = %v, want ErrDuplicate", err)
	}
	var notices int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE company_id=$1`, s.companyID).Scan(&notices); err != nil {
		t.Fatalf("count notifications: %v", err)
	}
	if notices != 1 {
		t.Fatalf("notifications = %d, want 1", notices)
	}
}
