package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/observability"
	"github.com/spec-kit/helpdesk-engine/internal/repository"
	"github.com/spec-kit/helpdesk-engine/internal/service"
)

// Assigner picks and applies a replacement agent.
type Assigner interface {
	Assign(ctx context.Context, ticket *domain.Ticket, customer *domain.Customer, refDate time.Time, reason string) (*string, error)
}

// SweepStats summarises one sweep run.
type SweepStats struct {
	Checked    int
	Reassigned int
	Skipped    int
	Errors     int
	Duration   time.Duration
}

// ReassignmentSweep moves active tickets away from agents who are unavailable today.
type ReassignmentSweep struct {
	companies     repository.CompanyRepository
	tickets       repository.TicketRepository
	customers     repository.CustomerRepository
	availability  *service.AvailabilityProvider
	assigner      Assigner
	metrics       *observability.Metrics
	logger        *zap.Logger
	now           func() time.Time
	ticketTimeout time.Duration
	batchSize     int
}

// SweepDependencies bundles collaborators.
type SweepDependencies struct {
	CompanyRepo   repository.CompanyRepository
	TicketRepo    repository.TicketRepository
	CustomerRepo  repository.CustomerRepository
	Availability  *service.AvailabilityProvider
	Assigner      Assigner
	Metrics       *observability.Metrics
	Logger        *zap.Logger
	Now           func() time.Time
	TicketTimeout time.Duration
	BatchSize     int
}

// NewReassignmentSweep creates the sweep.
func NewReassignmentSweep(deps SweepDependencies) *ReassignmentSweep {
	s := &ReassignmentSweep{
		companies:     deps.CompanyRepo,
		tickets:       deps.TicketRepo,
		customers:     deps.CustomerRepo,
		availability:  deps.Availability,
		assigner:      deps.Assigner,
		metrics:       deps.Metrics,
		logger:        deps.Logger,
		now:           deps.Now,
		ticketTimeout: deps.TicketTimeout,
		batchSize:     deps.BatchSize,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.ticketTimeout <= 0 {
		s.ticketTimeout = 10 * time.Second
	}
	if s.batchSize <= 0 {
		s.batchSize = 500
	}
	return s
}

type sweepOutcome int

const (
	outcomeUnchanged sweepOutcome = iota
	outcomeReassigned
	outcomeSkipped
	outcomeFailed
)

// Run checks every active assigned ticket of every active company. Per-ticket
// failures are logged and counted; only listing failures abort a company.
func (s *ReassignmentSweep) Run(ctx context.Context) (SweepStats, error) {
	started := s.now()
	today := started
	var stats SweepStats

	companies, err := s.companies.ListActive(ctx)
	if err != nil {
		return stats, fmt.Errorf("list companies: %w", err)
	}
	for _, company := range companies {
		if err := s.sweepCompany(ctx, company.ID, today, &stats); err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			stats.Errors++
			s.logger.Error("sweep company failed", zap.String("company_id", company.ID), zap.Error(err))
		}
	}

	stats.Duration = s.now().Sub(started)
	s.metrics.RecordSweep(stats.Checked, stats.Reassigned, stats.Skipped, stats.Errors, stats.Duration.Seconds())
	s.logger.Info("reassignment sweep finished",
		zap.Int("checked", stats.Checked),
		zap.Int("reassigned", stats.Reassigned),
		zap.Int("skipped", stats.Skipped),
		zap.Int("errors", stats.Errors),
		zap.Duration("duration", stats.Duration))
	return stats, nil
}

func (s *ReassignmentSweep) sweepCompany(ctx context.Context, companyID string, today time.Time, stats *SweepStats) error {
	afterID := ""
	for {
		page, err := s.tickets.ListActiveAssigned(ctx, companyID, afterID, s.batchSize)
		if err != nil {
			return err
		}
		for i := range page {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			stats.Checked++
			switch s.sweepTicket(ctx, page[i], today) {
			case outcomeReassigned:
				stats.Reassigned++
			case outcomeSkipped:
				stats.Skipped++
			case outcomeFailed:
				stats.Errors++
			}
		}
		if len(page) < s.batchSize {
			return nil
		}
		afterID = page[len(page)-1].ID
	}
}

func (s *ReassignmentSweep) sweepTicket(ctx context.Context, ticket domain.Ticket, today time.Time) (outcome sweepOutcome) {
	ctx, cancel := context.WithTimeout(ctx, s.ticketTimeout)
	defer cancel()
	log := s.logger.With(zap.String("ticket_id", ticket.ID), zap.String("company_id", ticket.CompanyID))
	defer func() {
		if r := recover(); r != nil {
			log.Error("sweep ticket panicked", zap.Any("panic", r))
			outcome = outcomeFailed
		}
	}()

	if ticket.AgentID == nil {
		return outcomeUnchanged
	}
	available, err := s.availability.IsAvailable(ctx, ticket.CompanyID, *ticket.AgentID, today)
	if err != nil {
		log.Warn("availability check failed", zap.Error(err))
		return outcomeFailed
	}
	if available {
		return outcomeUnchanged
	}

	if ticket.CustomerID == nil {
		log.Info("unavailable agent but ticket has no customer, skipping", zap.String("agent_id", *ticket.AgentID))
		return outcomeSkipped
	}
	customer, err := s.customers.GetByID(ctx, ticket.CompanyID, *ticket.CustomerID)
	if errors.Is(err, pgx.ErrNoRows) {
		log.Info("customer not found, skipping", zap.String("customer_id", *ticket.CustomerID))
		return outcomeSkipped
	}
	if err != nil {
		log.Warn("load customer failed", zap.Error(err))
		return outcomeFailed
	}

	previous := *ticket.AgentID
	replacement, err := s.assigner.Assign(ctx, &ticket, customer, today, service.AssignReasonUnavailable)
	if err != nil {
		log.Warn("reassignment failed", zap.Error(err))
		return outcomeFailed
	}
	if replacement == nil || *replacement == previous {
		log.Info("no replacement agent available", zap.String("agent_id", previous))
		return outcomeSkipped
	}
	log.Info("ticket reassigned", zap.String("from_agent_id", previous), zap.String("to_agent_id", *replacement))
	return outcomeReassigned
}
