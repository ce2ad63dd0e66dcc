package ingestion

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/observability"
	"github.com/spec-kit/helpdesk-engine/internal/repository"
	"github.com/spec-kit/helpdesk-engine/internal/service"
)

// Outcomes of a single change notification.
const (
	OutcomeProcessed           = "processed"
	OutcomeDuplicate           = "duplicate"
	OutcomeSkippedSelf         = "skipped_self"
	OutcomeUnknownSubscription = "unknown_subscription"
	OutcomeInvalidClientState  = "invalid_client_state"
	OutcomeFetchFailed         = "fetch_failed"
	OutcomeResolveFailed       = "resolve_failed"
	OutcomePanic               = "panic"
)

// maxParallelEvents bounds concurrent processing inside one webhook batch.
const maxParallelEvents = 4

// Resolver threads a canonical message onto a ticket.
type Resolver interface {
	Resolve(ctx context.Context, companyID string, msg domain.InboundMessage) (*service.ResolveResult, error)
}

// ChangeNotification is one Graph change event.
type ChangeNotification struct {
	SubscriptionID string `json:"subscriptionId"`
	ClientState    string `json:"clientState"`
	ChangeType     string `json:"changeType"`
	Resource       string `json:"resource"`
	TenantID       string `json:"tenantId"`
	ResourceData   struct {
		ID string `json:"id"`
	} `json:"resourceData"`
}

// NotificationBatch is the Graph webhook body.
type NotificationBatch struct {
	Value []ChangeNotification `json:"value"`
}

// EventResult is the per-event outcome of a batch.
type EventResult struct {
	SubscriptionID string
	MessageID      string
	TicketID       string
	Outcome        string
	Err            error
}

// GraphProcessor turns Graph change notifications into tickets. Each event is
// isolated: a failure or panic in one never affects the others.
type GraphProcessor struct {
	mailboxes repository.MailboxRepository
	graph     GraphAPI
	resolver  Resolver
	metrics   *observability.Metrics
	logger    *zap.Logger
	timeout   time.Duration
}

// GraphProcessorDependencies bundles collaborators.
type GraphProcessorDependencies struct {
	MailboxRepo  repository.MailboxRepository
	Graph        GraphAPI
	Resolver     Resolver
	Metrics      *observability.Metrics
	Logger       *zap.Logger
	EventTimeout time.Duration
}

// NewGraphProcessor creates the processor.
func NewGraphProcessor(deps GraphProcessorDependencies) *GraphProcessor {
	p := &GraphProcessor{
		mailboxes: deps.MailboxRepo,
		graph:     deps.Graph,
		resolver:  deps.Resolver,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		timeout:   deps.EventTimeout,
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	if p.timeout <= 0 {
		p.timeout = 10 * time.Second
	}
	return p
}

// ProcessBatch handles every event and returns results in input order.
func (p *GraphProcessor) ProcessBatch(ctx context.Context, batch NotificationBatch) []EventResult {
	results := make([]EventResult, len(batch.Value))
	sem := make(chan struct{}, maxParallelEvents)
	var wg sync.WaitGroup
	for i := range batch.Value {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = p.processIsolated(ctx, batch.Value[i])
		}(i)
	}
	wg.Wait()
	return results
}

func (p *GraphProcessor) processIsolated(ctx context.Context, event ChangeNotification) (result EventResult) {
	result = EventResult{SubscriptionID: event.SubscriptionID, MessageID: messageIDOf(event)}
	eventCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			result.Outcome = OutcomePanic
			result.Err = fmt.Errorf("panic: %v", r)
		}
		p.metrics.RecordInbound("graph", result.Outcome)
		if result.Err != nil {
			p.logger.Warn("graph event failed",
				zap.String("subscription_id", result.SubscriptionID),
				zap.String("event_id", result.MessageID),
				zap.String("outcome", result.Outcome),
				zap.Error(result.Err))
		}
	}()
	p.process(eventCtx, event, &result)
	return result
}

func (p *GraphProcessor) process(ctx context.Context, event ChangeNotification, result *EventResult) {
	mailbox, err := p.mailboxes.GetBySubscriptionID(ctx, event.SubscriptionID)
	if err != nil {
		result.Outcome = OutcomeUnknownSubscription
		if !errors.Is(err, pgx.ErrNoRows) {
			result.Err = err
		} else {
			result.Err = errors.New("no mailbox for subscription")
		}
		return
	}
	if !mailbox.Active || mailbox.ClientState == "" ||
		subtle.ConstantTimeCompare([]byte(event.ClientState), []byte(mailbox.ClientState)) != 1 {
		result.Outcome = OutcomeInvalidClientState
		result.Err = errors.New("client state mismatch")
		return
	}
	if result.MessageID == "" {
		result.Outcome = OutcomeFetchFailed
		result.Err = errors.New("notification carries no message id")
		return
	}

	message, err := p.graph.GetMessage(ctx, *mailbox, result.MessageID)
	if err != nil {
		result.Outcome = OutcomeFetchFailed
		result.Err = err
		return
	}

	inbound := NormalizeGraphMessage(message)
	if strings.EqualFold(inbound.FromEmail, mailbox.Address) {
		result.Outcome = OutcomeSkippedSelf
		p.markRead(ctx, *mailbox, result.MessageID)
		return
	}

	resolved, err := p.resolver.Resolve(ctx, mailbox.CompanyID, inbound)
	if err != nil {
		result.Outcome = OutcomeResolveFailed
		result.Err = err
		return
	}
	result.TicketID = resolved.Ticket.ID
	result.Outcome = OutcomeProcessed
	if !resolved.Appended {
		result.Outcome = OutcomeDuplicate
	}
	p.markRead(ctx, *mailbox, result.MessageID)
}

func (p *GraphProcessor) markRead(ctx context.Context, mailbox domain.Mailbox, messageID string) {
	if err := p.graph.MarkRead(ctx, mailbox, messageID); err != nil {
		p.logger.Warn("mark read failed",
			zap.String("company_id", mailbox.CompanyID),
			zap.String("event_id", messageID),
			zap.Error(err))
	}
}

// messageIDOf prefers resourceData.id and falls back to the resource path.
func messageIDOf(event ChangeNotification) string {
	if event.ResourceData.ID != "" {
		return event.ResourceData.ID
	}
	if event.Resource == "" {
		return ""
	}
	last := path.Base(event.Resource)
	if i := strings.Index(last, "('"); i >= 0 && strings.HasSuffix(last, "')") {
		return last[i+2 : len(last)-2]
	}
	return last
}
