package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-engine/internal/service"
)

// ReportHandler serves SLA reports.
type ReportHandler struct {
	service *service.ReportService
}

// NewReportHandler constructs handler.
func NewReportHandler(reportService *service.ReportService) *ReportHandler {
	return &ReportHandler{service: reportService}
}

// Report GET /helpdesk/report?agentId=. Defaults to the caller.
func (h *ReportHandler) Report(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	agentID := c.Query("agentId", actor.ID)
	report, err := h.service.Report(c.UserContext(), actor, agentID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": report})
}
