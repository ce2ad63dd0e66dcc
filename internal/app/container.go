// Package app wires the repositories, services and adapters shared by the
// API server and the background worker.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-engine/internal/config"
	"github.com/spec-kit/helpdesk-engine/internal/events"
	"github.com/spec-kit/helpdesk-engine/internal/ingestion"
	"github.com/spec-kit/helpdesk-engine/internal/observability"
	"github.com/spec-kit/helpdesk-engine/internal/persistence"
	"github.com/spec-kit/helpdesk-engine/internal/repository"
	"github.com/spec-kit/helpdesk-engine/internal/service"
	"github.com/spec-kit/helpdesk-engine/internal/worker"
	"github.com/spec-kit/helpdesk-engine/migrations"
)

// Container holds the process-wide dependencies.
type Container struct {
	Config   *config.Config
	Logger   *zap.Logger
	Registry *prometheus.Registry
	Metrics  *observability.Metrics
	Postgres *persistence.Postgres
	Redis    *persistence.Redis
	// Clock reads the time in the business timezone.
	Clock func() time.Time

	Dispatcher events.Dispatcher
	Kafka      *events.KafkaForwarder

	Tickets   repository.TicketRepository
	Messages  repository.TicketMessageRepository
	Agents    repository.AgentRepository
	Customers repository.CustomerRepository
	Feedback  repository.FeedbackRepository
	Notices   repository.NotificationRepository
	Companies repository.CompanyRepository
	Mailboxes repository.MailboxRepository
	History   repository.TicketHistoryRepository

	Availability  *service.AvailabilityProvider
	Assignment    *service.AssignmentService
	Threads       *service.ThreadService
	TicketService *service.TicketService
	FeedbackSvc   *service.FeedbackService
	Reports       *service.ReportService
	Notifications *service.NotificationService

	Graph          *ingestion.GraphClient
	GraphProcessor *ingestion.GraphProcessor
	Subscriptions  *ingestion.SubscriptionManager
}

// Build connects to Postgres and Redis, applies migrations when enabled and
// wires every service.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	c := &Container{Config: cfg, Logger: logger, Clock: cfg.Helpdesk.Clock()}

	c.Registry = prometheus.NewRegistry()
	c.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	c.Metrics = observability.NewMetrics(c.Registry)

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, err
	}
	c.Postgres = pg
	if pg.PoolHandle() == nil {
		return nil, errors.New("POSTGRES_DSN is required")
	}
	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), migrations.FS, logger); err != nil {
			pg.Close()
			return nil, err
		}
	}
	c.Redis = persistence.NewRedis(cfg.Redis, logger)

	pool := pg.PoolHandle()
	c.Tickets = repository.NewTicketRepository(pool)
	c.Messages = repository.NewTicketMessageRepository(pool)
	c.Agents = repository.NewAgentRepository(pool)
	c.Customers = repository.NewCustomerRepository(pool)
	c.Feedback = repository.NewFeedbackRepository(pool)
	c.Notices = repository.NewNotificationRepository(pool)
	c.Companies = repository.NewCompanyRepository(pool)
	c.Mailboxes = repository.NewMailboxRepository(pool)
	c.History = repository.NewTicketHistoryRepository(pool)

	c.Dispatcher = events.NewInMemoryDispatcher(logger)
	c.Kafka = events.NewKafkaForwarder(cfg.Kafka, logger)

	c.Availability = service.NewAvailabilityProvider(c.Agents)
	c.Assignment = service.NewAssignmentService(service.AssignmentDependencies{
		AgentRepo:    c.Agents,
		CustomerRepo: c.Customers,
		TicketRepo:   c.Tickets,
		HistoryRepo:  c.History,
		Dispatcher:   c.Dispatcher,
		Logger:       logger,
	})
	c.Threads = service.NewThreadService(service.ThreadDependencies{
		TicketRepo:   c.Tickets,
		MessageRepo:  c.Messages,
		CustomerRepo: c.Customers,
		Assignment:   c.Assignment,
		Dispatcher:   c.Dispatcher,
		Logger:       logger,
		Now:          c.Clock,
	})
	c.FeedbackSvc = service.NewFeedbackService(service.FeedbackDependencies{
		TicketRepo:         c.Tickets,
		FeedbackRepo:       c.Feedback,
		Tokens:             newFeedbackTokens(cfg),
		Sentiment:          newSentimentAnalyzer(cfg, logger),
		Dispatcher:         c.Dispatcher,
		Metrics:            c.Metrics,
		Logger:             logger,
		LinkBaseURL:        cfg.Helpdesk.FeedbackLinkBaseURL,
		LowRatingThreshold: cfg.Helpdesk.LowRatingThreshold,
	})
	c.TicketService = service.NewTicketService(service.TicketDependencies{
		TicketRepo:   c.Tickets,
		MessageRepo:  c.Messages,
		CustomerRepo: c.Customers,
		HistoryRepo:  c.History,
		Assignment:   c.Assignment,
		Feedback:     c.FeedbackSvc,
		Dispatcher:   c.Dispatcher,
		Logger:       logger,
		Now:          c.Clock,
	})
	c.Reports = service.NewReportService(service.ReportDependencies{
		TicketRepo:   c.Tickets,
		AgentRepo:    c.Agents,
		SLAThreshold: cfg.Helpdesk.SLAThreshold(),
		Now:          c.Clock,
	})
	c.Notifications = service.NewNotificationService(c.Dispatcher, c.Notices, logger, cfg.Notification)
	worker.StartNotificationWorker(c.Dispatcher, c.Notifications, c.Kafka)

	tokenHTTP := &http.Client{Timeout: 10 * time.Second}
	credentials := ingestion.NewCredentialsProvider(cfg.Graph.LoginBaseURL, ingestion.NewRedisTokenCache(c.Redis.Client), tokenHTTP, logger)
	c.Graph = ingestion.NewGraphClient(cfg.Graph.APIBaseURL, credentials, nil, cfg.Helpdesk.WebhookTimeout())
	c.GraphProcessor = ingestion.NewGraphProcessor(ingestion.GraphProcessorDependencies{
		MailboxRepo:  c.Mailboxes,
		Graph:        c.Graph,
		Resolver:     c.Threads,
		Metrics:      c.Metrics,
		Logger:       logger,
		EventTimeout: cfg.Helpdesk.WebhookTimeout(),
	})
	c.Subscriptions = ingestion.NewSubscriptionManager(ingestion.SubscriptionDependencies{
		MailboxRepo:     c.Mailboxes,
		Graph:           c.Graph,
		NotificationURL: cfg.Graph.NotificationURL,
		TTL:             cfg.Graph.SubscriptionTTL(),
		Metrics:         c.Metrics,
		Logger:          logger,
	})
	return c, nil
}

// Close releases connections and flushes the event forwarder.
func (c *Container) Close() {
	if err := c.Kafka.Close(); err != nil {
		c.Logger.Warn("close kafka writer", zap.Error(err))
	}
	c.Redis.Close()
	c.Postgres.Close()
}
