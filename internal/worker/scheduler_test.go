package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-engine/internal/config"
	"github.com/spec-kit/helpdesk-engine/internal/persistence"
)

type brokenLocker struct{ calls int }

func (l *brokenLocker) Lock(context.Context, string, time.Duration) (func(context.Context), error) {
	l.calls++
	return nil, errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")
}

func TestSchedulerRunsUnlockedWhenLockStoreFails(t *testing.T) {
	locker := &brokenLocker{}
	runs := 0
	s := NewScheduler(locker, nil, Job{Name: "sweep", LockTTL: time.Second, Run: func(context.Context) error {
		runs++
		return nil
	}})
	s.RunOnce(context.Background())
	s.RunOnce(context.Background())

	if locker.calls != 2 || runs != 2 {
		t.Fatalf("lock calls = %d, runs = %d", locker.calls, runs)
	}
}

func TestSchedulerRunsWithUnreachableRedis(t *testing.T) {
	redis := persistence.NewRedis(config.RedisConfig{Addr: "127.0.0.1:1"}, zap.NewNop())
	defer redis.Close()
	runs := 0
	s := NewScheduler(redis, nil, Job{Name: "sweep", LockTTL: time.Second, Run: func(context.Context) error {
		runs++
		return nil
	}})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.RunOnce(ctx)
	s.RunOnce(ctx)

	if runs != 2 {
		t.Fatalf("sweep ran %d times with redis down", runs)
	}
}
