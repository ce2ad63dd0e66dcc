package service

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/events"
	"github.com/spec-kit/helpdesk-engine/internal/repository"
)

// Assignment reasons recorded on history and events.
const (
	AssignReasonNewTicket   = "new_ticket"
	AssignReasonUnavailable = "agent_unavailable"
)

// AssignmentService selects agents for tickets: round robin over the
// customer's available preferred pool, else a random available company agent.
type AssignmentService struct {
	agents     repository.AgentRepository
	customers  repository.CustomerRepository
	tickets    repository.TicketRepository
	history    repository.TicketHistoryRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger

	randMu sync.Mutex
	intn   func(n int) int
}

// AssignmentDependencies bundles repositories.
type AssignmentDependencies struct {
	AgentRepo    repository.AgentRepository
	CustomerRepo repository.CustomerRepository
	TicketRepo   repository.TicketRepository
	HistoryRepo  repository.TicketHistoryRepository
	Dispatcher   events.Dispatcher
	Logger       *zap.Logger
	// Intn picks the fallback agent; defaults to math/rand.
	Intn func(n int) int
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	s := &AssignmentService{
		agents:     deps.AgentRepo,
		customers:  deps.CustomerRepo,
		tickets:    deps.TicketRepo,
		history:    deps.HistoryRepo,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		intn:       deps.Intn,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.intn == nil {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		s.intn = rng.Intn
	}
	return s
}

// SelectAgent returns the next agent for a ticket of customer in companyID on
// refDate, or nil when nobody is available. customer may be nil.
func (s *AssignmentService) SelectAgent(ctx context.Context, companyID string, customer *domain.Customer, refDate time.Time) (*string, error) {
	if customer != nil && customer.CompanyID == companyID && len(customer.AssignedAgents) > 0 {
		pool, err := s.agents.ListByIDs(ctx, companyID, customer.AssignedAgents)
		if err != nil {
			return nil, err
		}
		pool = FilterAvailable(pool, refDate)
		if len(pool) > 0 {
			next, err := s.customers.AdvanceCursor(ctx, companyID, customer.ID, len(pool))
			if err != nil {
				return nil, err
			}
			id := pool[next].ID
			return &id, nil
		}
	}
	return s.selectFallback(ctx, companyID, refDate)
}

func (s *AssignmentService) selectFallback(ctx context.Context, companyID string, refDate time.Time) (*string, error) {
	agents, err := s.agents.ListActiveAgents(ctx, companyID)
	if err != nil {
		return nil, err
	}
	agents = FilterAvailable(agents, refDate)
	if len(agents) == 0 {
		return nil, nil
	}
	s.randMu.Lock()
	idx := s.intn(len(agents))
	s.randMu.Unlock()
	id := agents[idx].ID
	return &id, nil
}

// Assign selects an agent and moves the ticket to it, provided the ticket is
// still held by the agent it had when loaded. It returns the new agent, or nil
// when nobody was available or the ticket changed concurrently.
func (s *AssignmentService) Assign(ctx context.Context, ticket *domain.Ticket, customer *domain.Customer, refDate time.Time, reason string) (*string, error) {
	selected, err := s.SelectAgent(ctx, ticket.CompanyID, customer, refDate)
	if err != nil || selected == nil {
		return nil, err
	}
	previous := ticket.AgentID
	if previous != nil && *previous == *selected {
		return selected, nil
	}
	moved, err := s.tickets.ReassignIf(ctx, ticket.CompanyID, ticket.ID, previous, selected)
	if err != nil {
		return nil, err
	}
	if !moved {
		s.logger.Info("ticket assignment changed concurrently",
			zap.String("ticket_id", ticket.ID),
			zap.String("company_id", ticket.CompanyID))
		return nil, nil
	}
	ticket.AgentID = selected

	if err := s.recordAssigneeChange(ctx, ticket, previous, selected, reason); err != nil {
		s.logger.Warn("record assignee history failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
	}
	eventType := events.EventTicketAssigned
	if previous != nil {
		eventType = events.EventTicketReassigned
	}
	s.publishAssignmentEvent(ctx, eventType, ticket, events.TicketAssignedPayload{
		PreviousAgentID: previous,
		AgentID:         selected,
		Reason:          reason,
	})
	return selected, nil
}

func (s *AssignmentService) recordAssigneeChange(ctx context.Context, ticket *domain.Ticket, oldAgent, newAgent *string, reason string) error {
	if s.history == nil {
		return nil
	}
	return s.history.Create(ctx, &domain.TicketHistory{
		TicketID:   ticket.ID,
		CompanyID:  ticket.CompanyID,
		ChangeType: domain.ChangeTypeAssignee,
		OldValue: map[string]any{
			"agent_id": oldAgent,
		},
		NewValue: map[string]any{
			"agent_id": newAgent,
			"reason":   reason,
		},
	})
}

func (s *AssignmentService) publishAssignmentEvent(ctx context.Context, eventType events.EventType, ticket *domain.Ticket, payload events.TicketAssignedPayload) {
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
