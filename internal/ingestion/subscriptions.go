package ingestion

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
)

// maxMailSubscriptionTTL is the longest lifetime Graph accepts for message subscriptions.
const maxMailSubscriptionTTL = 4230 * time.Minute

// SubscriptionManager keeps one Graph subscription alive per mailbox.
type SubscriptionManager struct {
	mailboxes       repository.MailboxRepository
	graph           GraphAPI
	notificationURL string
	ttl             time.Duration
	metrics         *observability.Metrics
	logger          *zap.Logger
	now             func() time.Time
}

// SubscriptionDependencies bundles collaborators.
type SubscriptionDependencies struct {
	MailboxRepo     repository.MailboxRepository
	Graph           GraphAPI
	NotificationURL string
	TTL             time.Duration
	Metrics         *observability.Metrics
	Logger          *zap.Logger
	Now             func() time.Time
}

// RenewStats summarises a renewal pass.
type RenewStats struct {
	Checked int
	Created int
	Renewed int
	Failed  int
}

// NewSubscriptionManager creates the manager.
func NewSubscriptionManager(deps SubscriptionDependencies) *SubscriptionManager {
	m := &SubscriptionManager{
		mailboxes:       deps.MailboxRepo,
		graph:           deps.Graph,
		notificationURL: deps.NotificationURL,
		ttl:             deps.TTL,
		metrics:         deps.Metrics,
		logger:          deps.Logger,
		now:             deps.Now,
	}
	if m.ttl <= 0 || m.ttl > maxMailSubscriptionTTL {
		m.ttl = maxMailSubscriptionTTL
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// Ensure renews the mailbox subscription, creating a new one when the mailbox
// has none or Graph has forgotten it.
func (m *SubscriptionManager) Ensure(ctx context.Context, mailbox domain.Mailbox) (*Subscription, bool, error) {
	if m.notificationURL == "" {
		return nil, false, errors.New("graph notification url is not configured")
	}
	expiresAt := m.now().UTC().Add(m.ttl)

	if mailbox.SubscriptionID != nil && *mailbox.SubscriptionID != "" {
		sub, err := m.graph.RenewSubscription(ctx, mailbox, *mailbox.SubscriptionID, expiresAt)
		switch {
		case err == nil:
			m.metrics.RecordSubscription("renew", "ok")
			return sub, false, m.save(ctx, mailbox, sub)
		case errors.Is(err, ErrSubscriptionNotFound):
			m.logger.Info("graph subscription vanished, recreating",
				zap.String("company_id", mailbox.CompanyID),
				zap.String("subscription_id", *mailbox.SubscriptionID))
		default:
			m.metrics.RecordSubscription("renew", "error")
			return nil, false, err
		}
	}

	sub, err := m.graph.CreateSubscription(ctx, mailbox, m.notificationURL, expiresAt)
	if err != nil {
		m.metrics.RecordSubscription("create", "error")
		return nil, false, err
	}
	m.metrics.RecordSubscription("create", "ok")
	return sub, true, m.save(ctx, mailbox, sub)
}

func (m *SubscriptionManager) save(ctx context.Context, mailbox domain.Mailbox, sub *Subscription) error {
	if sub == nil || sub.ID == "" {
		return fmt.Errorf("graph returned no subscription id for mailbox %s", mailbox.ID)
	}
	return m.mailboxes.SaveSubscription(ctx, mailbox.CompanyID, mailbox.ID, sub.ID, sub.ExpirationDateTime)
}

// EnsureByID looks the mailbox up inside companyID before ensuring it.
func (m *SubscriptionManager) EnsureByID(ctx context.Context, companyID, mailboxID string) (*Subscription, bool, error) {
	mailbox, err := m.mailboxes.GetByID(ctx, companyID, mailboxID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, errMailboxNotFound
	}
	if err != nil {
		return nil, false, err
	}
	return m.Ensure(ctx, *mailbox)
}

var errMailboxNotFound = errors.New("mailbox not found")

// IsMailboxNotFound reports whether err means the mailbox is unknown to the company.
func IsMailboxNotFound(err error) bool {
	return errors.Is(err, errMailboxNotFound)
}

// RenewAll ensures every active mailbox. One mailbox failing does not stop the others.
func (m *SubscriptionManager) RenewAll(ctx context.Context) (RenewStats, error) {
	var stats RenewStats
	mailboxes, err := m.mailboxes.ListActive(ctx)
	if err != nil {
		return stats, err
	}
	for _, mb := range mailboxes {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.Checked++
		_, created, err := m.Ensure(ctx, mb)
		if err != nil {
			stats.Failed++
			m.logger.Warn("graph subscription renewal failed",
				zap.String("company_id", mb.CompanyID),
				zap.String("mailbox_id", mb.ID),
				zap.Error(err))
			continue
		}
		if created {
			stats.Created++
		} else {
			stats.Renewed++
		}
	}
	return stats, nil
}
