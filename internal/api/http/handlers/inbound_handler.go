package handlers

import (
	"bytes"
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-engine/internal/ingestion"
	"github.com/spec-kit/helpdesk-engine/internal/observability"
	apperrors "github.com/spec-kit/helpdesk-engine/pkg/util/errorutil"
)

// InboundHandler receives provider webhooks. Both endpoints answer 200 once
// the caller is authenticated so providers do not retry.
type InboundHandler struct {
	resolver ingestion.Resolver
	graph    *ingestion.GraphProcessor
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewInboundHandler constructs handler.
func NewInboundHandler(resolver ingestion.Resolver, graph *ingestion.GraphProcessor, metrics *observability.Metrics, logger *zap.Logger) *InboundHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InboundHandler{resolver: resolver, graph: graph, metrics: metrics, logger: logger}
}

// EmailInbound POST /helpdesk/email-inbound?secret=.
func (h *InboundHandler) EmailInbound(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var raw ingestion.RawEmail
	if err := c.BodyParser(&raw); err != nil {
		h.metrics.RecordInbound("email", "invalid_payload")
		return c.JSON(fiber.Map{"success": false, "error": "invalid payload"})
	}

	result, err := h.resolver.Resolve(c.UserContext(), actor.CompanyID, raw.Normalize())
	if err != nil {
		domainErr := apperrors.ToDomainError(err)
		h.metrics.RecordInbound("email", "failed")
		h.logger.Warn("inbound email failed",
			zap.String("company_id", actor.CompanyID),
			zap.String("event_id", raw.MessageID),
			zap.Error(err))
		return c.JSON(fiber.Map{"success": false, "error": domainErr.Message})
	}

	outcome := ingestion.OutcomeProcessed
	if !result.Appended {
		outcome = ingestion.OutcomeDuplicate
	}
	h.metrics.RecordInbound("email", outcome)
	return c.JSON(fiber.Map{"success": true, "ticketId": result.Ticket.ID, "created": result.Created})
}

// OutlookProcess POST /helpdesk/outlook-process. Echoes validationToken for the
// subscription handshake; otherwise processes the batch and always returns 200.
func (h *InboundHandler) OutlookProcess(c *fiber.Ctx) error {
	if token := c.Query("validationToken"); token != "" {
		c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
		return c.Status(fiber.StatusOK).SendString(token)
	}

	batch, err := decodeBatch(c.Body())
	if err != nil {
		h.logger.Warn("graph webhook body rejected", zap.Error(err))
		h.metrics.RecordInbound("graph", "invalid_payload")
		return c.JSON(fiber.Map{"success": true, "processed": 0})
	}

	results := h.graph.ProcessBatch(c.UserContext(), batch)
	processed := 0
	for _, r := range results {
		if r.Err == nil {
			processed++
		}
	}
	return c.JSON(fiber.Map{"success": true, "received": len(results), "processed": processed})
}

// decodeBatch accepts the {"value": [...]} envelope as well as a bare array.
func decodeBatch(body []byte) (ingestion.NotificationBatch, error) {
	var batch ingestion.NotificationBatch
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		err := json.Unmarshal(trimmed, &batch.Value)
		return batch, err
	}
	err := json.Unmarshal(trimmed, &batch)
	return batch, err
}
