package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-engine/internal/api/dto"
	"github.com/spec-kit/helpdesk-engine/internal/ingestion"
	apperrors "github.com/spec-kit/helpdesk-engine/pkg/util/errorutil"
)

// SubscriptionsHandler lets admins create or renew a mailbox subscription on demand.
type SubscriptionsHandler struct {
	manager *ingestion.SubscriptionManager
}

// NewSubscriptionsHandler constructs handler.
func NewSubscriptionsHandler(manager *ingestion.SubscriptionManager) *SubscriptionsHandler {
	return &SubscriptionsHandler{manager: manager}
}

// Ensure POST /helpdesk/subscriptions/:mailboxId.
func (h *SubscriptionsHandler) Ensure(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	mailboxID := c.Params("mailboxId")
	sub, created, err := h.manager.EnsureByID(c.UserContext(), actor.CompanyID, mailboxID)
	if ingestion.IsMailboxNotFound(err) {
		return apperrors.NewNotFound("mailbox", map[string]any{"mailboxId": mailboxID})
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": dto.SubscriptionResponse{
		MailboxID:      mailboxID,
		SubscriptionID: sub.ID,
		ExpiresAt:      sub.ExpirationDateTime,
		Created:        created,
	}})
}
