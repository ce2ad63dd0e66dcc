package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-engine/internal/app"
	"github.com/spec-kit/helpdesk-engine/internal/config"
	"github.com/spec-kit/helpdesk-engine/internal/observability"
	"github.com/spec-kit/helpdesk-engine/internal/worker"
)

func main() {
	once := flag.Bool("once", false, "run every job once and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	logger = logger.With(zap.String("process", "worker"))
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to build application", zap.Error(err))
	}
	defer container.Close()

	sweep := worker.NewReassignmentSweep(worker.SweepDependencies{
		CompanyRepo:   container.Companies,
		TicketRepo:    container.Tickets,
		CustomerRepo:  container.Customers,
		Availability:  container.Availability,
		Assigner:      container.Assignment,
		Metrics:       container.Metrics,
		Logger:        logger,
		Now:           container.Clock,
		TicketTimeout: cfg.Sweep.TicketTimeout(),
		BatchSize:     cfg.Sweep.BatchSize,
	})
	renewal := worker.NewSubscriptionRenewal(container.Subscriptions, logger)

	jobs := []worker.Job{{
		Name:     "reassignment-sweep",
		Interval: cfg.Sweep.Interval(),
		LockTTL:  cfg.Sweep.LockTTL(),
		Run: func(ctx context.Context) error {
			_, err := sweep.Run(ctx)
			return err
		},
	}}
	if cfg.Graph.NotificationURL != "" {
		jobs = append(jobs, worker.Job{
			Name:     "graph-subscription-renewal",
			Interval: cfg.Graph.RenewInterval(),
			LockTTL:  cfg.Sweep.LockTTL(),
			Run:      renewal.Run,
		})
	} else {
		logger.Warn("GRAPH_NOTIFICATION_URL not set; subscription renewal disabled")
	}

	scheduler := worker.NewScheduler(container.Redis, logger, jobs...)
	if *once {
		scheduler.RunOnce(ctx)
		return
	}
	logger.Info("worker started", zap.Int("jobs", len(jobs)))
	scheduler.Start(ctx)
	logger.Info("worker stopped")
}
