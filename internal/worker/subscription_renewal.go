package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-engine/internal/ingestion"
)

// SubscriptionRenewal keeps Graph mail subscriptions from expiring.
type SubscriptionRenewal struct {
	manager *ingestion.SubscriptionManager
	logger  *zap.Logger
}

// NewSubscriptionRenewal creates the job.
func NewSubscriptionRenewal(manager *ingestion.SubscriptionManager, logger *zap.Logger) *SubscriptionRenewal {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubscriptionRenewal{manager: manager, logger: logger}
}

// Run renews every active mailbox subscription.
func (r *SubscriptionRenewal) Run(ctx context.Context) error {
	stats, err := r.manager.RenewAll(ctx)
	if err != nil {
		return err
	}
	r.logger.Info("subscription renewal finished",
		zap.Int("checked", stats.Checked),
		zap.Int("created", stats.Created),
		zap.Int("renewed", stats.Renewed),
		zap.Int("failed", stats.Failed))
	return nil
}
