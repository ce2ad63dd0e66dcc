package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-engine/internal/persistence"
)

// Locker grants exclusive runs across worker replicas.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (func(context.Context), error)
}

// Job is one named periodic task.
type Job struct {
	Name     string
	Interval time.Duration
	LockTTL  time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs jobs on independent tickers, each guarded by a lock.
type Scheduler struct {
	locker Locker
	logger *zap.Logger
	jobs   []Job
}

// NewScheduler creates a scheduler. locker may be nil for single-replica runs.
func NewScheduler(locker Locker, logger *zap.Logger, jobs ...Job) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{locker: locker, logger: logger, jobs: jobs}
}

// RunOnce runs every job once, in order.
func (s *Scheduler) RunOnce(ctx context.Context) {
	for _, job := range s.jobs {
		s.runJob(ctx, job)
	}
}

// Start runs every job immediately and then on its interval until ctx ends.
func (s *Scheduler) Start(ctx context.Context) {
	done := make(chan struct{}, len(s.jobs))
	for _, job := range s.jobs {
		go func(job Job) {
			defer func() { done <- struct{}{} }()
			s.runJob(ctx, job)
			ticker := time.NewTicker(job.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					s.runJob(ctx, job)
				}
			}
		}(job)
	}
	for range s.jobs {
		<-done
	}
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	log := s.logger.With(zap.String("job", job.Name))
	if s.locker != nil {
		release, err := s.locker.Lock(ctx, "helpdesk:lock:"+job.Name, job.LockTTL)
		if errors.Is(err, persistence.ErrLockHeld) {
			log.Info("job already running elsewhere, skipping")
			return
		}
		switch {
		case err != nil:
			// An unreachable lock store must not stall reassignment.
			log.Warn("acquire job lock failed, running unlocked", zap.Error(err))
		case release != nil:
			defer func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				release(releaseCtx)
			}()
		}
	}

	jobCtx := ctx
	if job.LockTTL > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, job.LockTTL)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error("job panicked", zap.Any("panic", r))
		}
	}()
	if err := job.Run(jobCtx); err != nil {
		log.Error("job failed", zap.Error(err))
	}
}
