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

// FeedbackIssuer issues a feedback link for a closed ticket.
type FeedbackIssuer interface {
	IssueForTicket(ctx context.Context, ticket *domain.Ticket) (*FeedbackLink, error)
}

// TicketService coordinates replies and the ticket lifecycle.
type TicketService struct {
	tickets    repository.TicketRepository
	messages   repository.TicketMessageRepository
	customers  repository.CustomerRepository
	history    repository.TicketHistoryRepository
	assignment *AssignmentService
	feedback   FeedbackIssuer
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// TicketDependencies bundles repositories for ticket service.
type TicketDependencies struct {
	TicketRepo   repository.TicketRepository
	MessageRepo  repository.TicketMessageRepository
	CustomerRepo repository.CustomerRepository
	HistoryRepo  repository.TicketHistoryRepository
	Assignment   *AssignmentService
	Feedback     FeedbackIssuer
	Dispatcher   events.Dispatcher
	Logger       *zap.Logger
	Now          func() time.Time
}

// PortalTicketInput describes a ticket submitted through the customer portal.
type PortalTicketInput struct {
	Subject  string
	Message  string
	Priority domain.TicketPriority
}

// NewTicketService creates the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	s := &TicketService{
		tickets:    deps.TicketRepo,
		messages:   deps.MessageRepo,
		customers:  deps.CustomerRepo,
		history:    deps.HistoryRepo,
		assignment: deps.Assignment,
		feedback:   deps.Feedback,
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

// Reply appends a message from the actor. Admins, the owning customer and the
// assigned agent may reply.
func (s *TicketService) Reply(ctx context.Context, actor domain.Actor, ticketID, body string) (*domain.TicketMessage, error) {
	if _, err := uuid.Parse(ticketID); err != nil {
		return nil, apperrors.NewValidationError("invalid ticket id", map[string]any{"ticket_id": ticketID})
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.NewValidationError("message is required", nil)
	}
	ticket, err := s.loadTicket(ctx, actor.CompanyID, ticketID)
	if err != nil {
		return nil, err
	}
	if !canAccessTicket(actor, ticket) {
		return nil, apperrors.NewForbidden("not allowed to reply to this ticket")
	}

	sender := domain.SenderTypeAgent
	if actor.IsCustomer() {
		sender = domain.SenderTypeCustomer
	}
	actorID := actor.ID
	msg := &domain.TicketMessage{
		TicketID:   ticket.ID,
		CompanyID:  ticket.CompanyID,
		SenderType: sender,
		SenderID:   &actorID,
		Body:       body,
	}
	if _, err := s.messages.Append(ctx, msg); err != nil {
		return nil, apperrors.MapError(err)
	}
	if err := s.tickets.TouchReply(ctx, ticket.CompanyID, ticket.ID, sender, msg.CreatedAt); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publish(ctx, events.EventTicketMessageAdded, actor, ticket, events.TicketMessageAddedPayload{
		MessageID:   msg.ID,
		SenderType:  sender,
		SenderID:    msg.SenderID,
		BodyPreview: preview(body),
	})
	return msg, nil
}

// CreatePortalTicket opens a ticket for the calling customer and routes it.
func (s *TicketService) CreatePortalTicket(ctx context.Context, actor domain.Actor, input PortalTicketInput) (*domain.Ticket, error) {
	if !actor.IsCustomer() {
		return nil, apperrors.NewForbidden("only customers can open portal tickets")
	}
	subject := strings.TrimSpace(input.Subject)
	body := strings.TrimSpace(input.Message)
	if subject == "" || body == "" {
		return nil, apperrors.NewValidationError("subject and message are required", nil)
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": priority})
	}
	customer, err := s.customers.GetByID(ctx, actor.CompanyID, actor.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("customer", map[string]any{"customer_id": actor.ID})
		}
		return nil, apperrors.MapError(err)
	}

	ticket := &domain.Ticket{
		CompanyID:     actor.CompanyID,
		CustomerID:    &customer.ID,
		CustomerEmail: strings.ToLower(customer.Email),
		Subject:       subject,
		Source:        domain.TicketSourcePortal,
		Status:        domain.TicketStatusOpen,
		Priority:      priority,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	msg := &domain.TicketMessage{
		TicketID:      ticket.ID,
		CompanyID:     ticket.CompanyID,
		SenderType:    domain.SenderTypeCustomer,
		SenderID:      &customer.ID,
		ExternalEmail: customer.Email,
		Body:          body,
	}
	if _, err := s.messages.Append(ctx, msg); err != nil {
		return nil, apperrors.MapError(err)
	}
	if err := s.tickets.TouchReply(ctx, ticket.CompanyID, ticket.ID, domain.SenderTypeCustomer, msg.CreatedAt); err != nil {
		return nil, apperrors.MapError(err)
	}
	ticket.Messages = []domain.TicketMessage{*msg}
	s.publish(ctx, events.EventTicketCreated, actor, ticket, events.TicketCreatedPayload{
		Source:        ticket.Source,
		Subject:       ticket.Subject,
		CustomerEmail: ticket.CustomerEmail,
	})

	if s.assignment != nil {
		if _, err := s.assignment.Assign(ctx, ticket, customer, s.now(), AssignReasonNewTicket); err != nil {
			s.logger.Warn("portal ticket assignment failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
	}
	return ticket, nil
}

// GetTicket returns the ticket with its messages in insertion order.
func (s *TicketService) GetTicket(ctx context.Context, actor domain.Actor, ticketID string) (*domain.Ticket, error) {
	if _, err := uuid.Parse(ticketID); err != nil {
		return nil, apperrors.NewValidationError("invalid ticket id", map[string]any{"ticket_id": ticketID})
	}
	ticket, err := s.loadTicket(ctx, actor.CompanyID, ticketID)
	if err != nil {
		return nil, err
	}
	if !canAccessTicket(actor, ticket) {
		return nil, apperrors.NewForbidden("access denied")
	}
	messages, err := s.messages.ListByTicket(ctx, ticket.CompanyID, ticket.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	ticket.Messages = messages
	return ticket, nil
}

// UpdateStatus moves the ticket through its lifecycle. Closing stamps the
// close time and requests customer feedback.
func (s *TicketService) UpdateStatus(ctx context.Context, actor domain.Actor, ticketID string, status domain.TicketStatus) (*domain.Ticket, error) {
	if _, err := uuid.Parse(ticketID); err != nil {
		return nil, apperrors.NewValidationError("invalid ticket id", map[string]any{"ticket_id": ticketID})
	}
	if actor.IsCustomer() {
		return nil, apperrors.NewForbidden("customers cannot change ticket status")
	}
	ticket, err := s.loadTicket(ctx, actor.CompanyID, ticketID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin && !ticket.AssignedTo(actor.ID) {
		return nil, apperrors.NewForbidden("only admins or the assigned agent can change status")
	}
	if ticket.Status == status {
		return ticket, nil
	}
	if !domain.CanTransition(ticket.Status, status) {
		return nil, apperrors.NewValidationError("invalid status transition", map[string]any{
			"from": ticket.Status,
			"to":   status,
		})
	}

	var closedAt *time.Time
	if status == domain.TicketStatusClosed {
		now := s.now()
		closedAt = &now
	}
	if err := s.tickets.UpdateStatus(ctx, ticket.CompanyID, ticket.ID, status, closedAt); err != nil {
		return nil, apperrors.MapError(err)
	}
	oldStatus := ticket.Status
	ticket.Status = status
	ticket.ClosedAt = closedAt

	if err := s.recordStatusChange(ctx, actor, ticket, oldStatus, status); err != nil {
		s.logger.Warn("record status history failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
	}
	payload := events.TicketStatusChangedPayload{OldStatus: oldStatus, NewStatus: status}
	s.publish(ctx, events.EventTicketStatusChanged, actor, ticket, payload)
	if ticket.IsClosed() {
		s.publish(ctx, events.EventTicketClosed, actor, ticket, payload)
		s.requestFeedback(ctx, ticket)
	}
	return ticket, nil
}

func (s *TicketService) requestFeedback(ctx context.Context, ticket *domain.Ticket) {
	if s.feedback == nil {
		return
	}
	if _, err := s.feedback.IssueForTicket(ctx, ticket); err != nil && !apperrors.IsCode(err, "CONFLICT") {
		s.logger.Warn("feedback issuance failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
	}
}

func (s *TicketService) loadTicket(ctx context.Context, companyID, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, companyID, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

func (s *TicketService) recordStatusChange(ctx context.Context, actor domain.Actor, ticket *domain.Ticket, oldStatus, newStatus domain.TicketStatus) error {
	if s.history == nil {
		return nil
	}
	actorID := actor.ID
	return s.history.Create(ctx, &domain.TicketHistory{
		TicketID:    ticket.ID,
		CompanyID:   ticket.CompanyID,
		ChangedByID: &actorID,
		ChangeType:  domain.ChangeTypeStatus,
		OldValue:    map[string]any{"status": oldStatus},
		NewValue:    map[string]any{"status": newStatus},
	})
}

func (s *TicketService) publish(ctx context.Context, eventType events.EventType, actor domain.Actor, ticket *domain.Ticket, payload interface{}) {
	if s.dispatcher == nil {
		return
	}
	actorID := actor.ID
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		CompanyID: ticket.CompanyID,
		TicketID:  ticket.ID,
		Actor:     events.Actor{Type: actor.Type, ID: &actorID},
		Timestamp: s.now(),
		Payload:   payload,
	})
}

// canAccessTicket is true for company admins, the owning customer and the assigned agent.
func canAccessTicket(actor domain.Actor, ticket *domain.Ticket) bool {
	if actor.CompanyID != ticket.CompanyID {
		return false
	}
	switch actor.Type {
	case domain.SubjectTypeAgent:
		return actor.IsAdmin || ticket.AssignedTo(actor.ID)
	case domain.SubjectTypeCustomer:
		return ticket.OwnedBy(actor.ID)
	}
	return false
}
