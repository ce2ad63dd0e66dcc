package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/events"
	"github.com/spec-kit/helpdesk-engine/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-engine/pkg/util/errorutil"
)

// ThreadService maps canonical inbound messages onto tickets.
type ThreadService struct {
	tickets    repository.TicketRepository
	messages   repository.TicketMessageRepository
	customers  repository.CustomerRepository
	assignment *AssignmentService
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// ThreadDependencies bundles collaborators for the thread resolver.
type ThreadDependencies struct {
	TicketRepo   repository.TicketRepository
	MessageRepo  repository.TicketMessageRepository
	CustomerRepo repository.CustomerRepository
	Assignment   *AssignmentService
	Dispatcher   events.Dispatcher
	Logger       *zap.Logger
	Now          func() time.Time
}

// NewThreadService creates the service.
func NewThreadService(deps ThreadDependencies) *ThreadService {
	s := &ThreadService{
		tickets:    deps.TicketRepo,
		messages:   deps.MessageRepo,
		customers:  deps.CustomerRepo,
		assignment: deps.Assignment,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		now:        deps.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// ResolveResult reports what Resolve did.
type ResolveResult struct {
	Ticket *domain.Ticket
	// Created is true when this message opened a new ticket.
	Created bool
	// Appended is false when the message id was already on the ticket.
	Appended bool
}

// Resolve finds the ticket for msg (by In-Reply-To, then by the message's
// own id) or opens a new one, then appends the message once.
func (s *ThreadService) Resolve(ctx context.Context, companyID string, msg domain.InboundMessage) (*ResolveResult, error) {
	msg.MessageID = strings.TrimSpace(msg.MessageID)
	msg.InReplyTo = strings.TrimSpace(msg.InReplyTo)
	msg.FromEmail = strings.TrimSpace(msg.FromEmail)
	if msg.MessageID == "" {
		return nil, apperrors.NewValidationError("messageId is required", nil)
	}
	if msg.FromEmail == "" {
		return nil, apperrors.NewValidationError("fromEmail is required", nil)
	}

	ticket, err := s.findThread(ctx, companyID, msg)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	result := &ResolveResult{Ticket: ticket}
	var customer *domain.Customer
	if ticket == nil {
		customer, err = s.lookupCustomer(ctx, companyID, msg.FromEmail)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		ticket, result.Created, err = s.openTicket(ctx, companyID, customer, msg)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		result.Ticket = ticket
	}

	now := s.now()
	message := &domain.TicketMessage{
		TicketID:          ticket.ID,
		CompanyID:         companyID,
		SenderType:        domain.SenderTypeCustomer,
		SenderID:          ticket.CustomerID,
		ExternalEmail:     msg.FromEmail,
		Body:              msg.Body(),
		ExternalMessageID: &msg.MessageID,
		InReplyTo:         optionalString(msg.InReplyTo),
		Attachments:       msg.Attachments,
	}
	appended, err := s.messages.Append(ctx, message)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	result.Appended = appended
	if appended {
		if err := s.tickets.TouchReply(ctx, companyID, ticket.ID, domain.SenderTypeCustomer, now); err != nil {
			return nil, apperrors.MapError(err)
		}
		ticket.LastReplyAt = &now
		ticket.LastCustomerReplyAt = &now
	}

	if result.Created {
		s.publish(ctx, events.EventTicketCreated, ticket, events.TicketCreatedPayload{
			Source:        ticket.Source,
			Subject:       ticket.Subject,
			CustomerEmail: ticket.CustomerEmail,
		})
		s.autoAssign(ctx, ticket, customer, now)
	}
	if appended {
		s.publish(ctx, events.EventTicketMessageAdded, ticket, events.TicketMessageAddedPayload{
			MessageID:   message.ID,
			SenderType:  message.SenderType,
			BodyPreview: preview(message.Body),
		})
	}
	return result, nil
}

func (s *ThreadService) findThread(ctx context.Context, companyID string, msg domain.InboundMessage) (*domain.Ticket, error) {
	keys := []string{msg.MessageID}
	if msg.InReplyTo != "" {
		keys = []string{msg.InReplyTo, msg.MessageID}
	}
	for _, key := range keys {
		ticket, err := s.tickets.GetByThreadID(ctx, companyID, key)
		if err == nil {
			return ticket, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
	}
	return nil, nil
}

func (s *ThreadService) lookupCustomer(ctx context.Context, companyID, email string) (*domain.Customer, error) {
	customer, err := s.customers.GetByEmail(ctx, companyID, email)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return customer, err
}

// openTicket converges concurrent deliveries of the same root message on one ticket.
func (s *ThreadService) openTicket(ctx context.Context, companyID string, customer *domain.Customer, msg domain.InboundMessage) (*domain.Ticket, bool, error) {
	threadID := msg.MessageID
	ticket := &domain.Ticket{
		CompanyID:     companyID,
		CustomerEmail: strings.ToLower(msg.FromEmail),
		Subject:       strings.TrimSpace(msg.Subject),
		Source:        domain.TicketSourceEmail,
		Status:        domain.TicketStatusOpen,
		Priority:      domain.TicketPriorityMedium,
		EmailThreadID: &threadID,
	}
	if customer != nil {
		ticket.CustomerID = &customer.ID
	}
	return s.tickets.CreateOrGetByThread(ctx, ticket)
}

func (s *ThreadService) autoAssign(ctx context.Context, ticket *domain.Ticket, customer *domain.Customer, now time.Time) {
	if s.assignment == nil {
		return
	}
	agentID, err := s.assignment.Assign(ctx, ticket, customer, now, AssignReasonNewTicket)
	if err != nil {
		s.logger.Warn("auto assignment failed",
			zap.String("ticket_id", ticket.ID),
			zap.String("company_id", ticket.CompanyID),
			zap.Error(err))
		return
	}
	if agentID == nil {
		s.logger.Info("no agent available, ticket left unassigned",
			zap.String("ticket_id", ticket.ID),
			zap.String("company_id", ticket.CompanyID))
	}
}

func (s *ThreadService) publish(ctx context.Context, eventType events.EventType, ticket *domain.Ticket, payload interface{}) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		CompanyID: ticket.CompanyID,
		TicketID:  ticket.ID,
		Actor:     events.Actor{Type: domain.SubjectTypeCustomer, ID: ticket.CustomerID},
		Timestamp: s.now(),
		Payload:   payload,
	})
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func preview(body string) string {
	const max = 140
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	return string(runes[:max]) + "…"
}
