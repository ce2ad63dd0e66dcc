package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-engine/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-engine/internal/auth"
	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Inbound        *handlers.InboundHandler
	Tickets        *handlers.TicketsHandler
	Reports        *handlers.ReportHandler
	Feedback       *handlers.FeedbackHandler
	Notifications  *handlers.NotificationsHandler
	Subscriptions  *handlers.SubscriptionsHandler
	AuthMiddleware *auth.AuthMiddleware
	// Metrics serves /metrics when set.
	Metrics fiber.Handler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", cfg.Metrics)
	}

	helpdesk := app.Group("/helpdesk")

	// Graph authenticates with clientState per event and must always get a 200.
	helpdesk.Post("/outlook-process", cfg.Inbound.OutlookProcess)
	// Feedback links carry their own signed token.
	helpdesk.Post("/feedback", cfg.Feedback.Submit)

	protected := helpdesk.Group("", cfg.AuthMiddleware.Handle)
	protected.Post("/email-inbound", cfg.AuthMiddleware.RequireWebhookSecret, cfg.Inbound.EmailInbound)

	users := auth.RequireSubject(domain.SubjectTypeAgent, domain.SubjectTypeCustomer)
	agents := auth.RequireSubject(domain.SubjectTypeAgent)

	protected.Post("/reply", users, cfg.Tickets.Reply)
	protected.Post("/tickets", auth.RequireSubject(domain.SubjectTypeCustomer), cfg.Tickets.Create)
	protected.Get("/tickets/:id", users, cfg.Tickets.Get)
	protected.Patch("/tickets/:id/status", agents, cfg.Tickets.UpdateStatus)
	protected.Get("/report", agents, cfg.Reports.Report)
	protected.Get("/feedback", users, cfg.Feedback.Issue)
	protected.Get("/notifications", agents, cfg.Notifications.List)
	protected.Post("/subscriptions/:mailboxId", auth.RequireAdmin(), cfg.Subscriptions.Ensure)
}
