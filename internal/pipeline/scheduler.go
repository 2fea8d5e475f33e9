package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// PassFunc runs one evaluation pass.
type PassFunc func(ctx context.Context) error

// lockKey guards passes across replicas sharing one Redis.
const lockKey = "evaluation-pass"

// Scheduler runs a pass immediately and then on every tick until the context
// is cancelled. When a LockManager is set, a pass only runs on the replica
// that takes the lock, and the lock is left to expire after lockTTL instead of
// being released: passes across replicas start at least lockTTL apart, so one
// replica evaluates per interval.
type Scheduler struct {
	pass     PassFunc
	interval time.Duration
	locks    domain.LockManager
	lockTTL  time.Duration
	logger   *slog.Logger
}

// NewScheduler creates a Scheduler. locks may be nil. A lockTTL that is not
// positive or exceeds interval falls back to DefaultLockTTL(interval).
func NewScheduler(pass PassFunc, interval time.Duration, locks domain.LockManager, lockTTL time.Duration, logger *slog.Logger) *Scheduler {
	if lockTTL <= 0 || lockTTL > interval {
		lockTTL = DefaultLockTTL(interval)
	}
	return &Scheduler{
		pass:     pass,
		interval: interval,
		locks:    locks,
		lockTTL:  lockTTL,
		logger:   logger.With(slog.String("component", "scheduler")),
	}
}

// DefaultLockTTL is nine tenths of interval, leaving room for ticker drift
// on the lock holder.
func DefaultLockTTL(interval time.Duration) time.Duration {
	return interval - interval/10
}

// Run blocks until ctx is cancelled. A failed pass is logged and the loop
// continues; the next tick retries.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("pipeline: scheduler interval must be positive, got %s", s.interval)
	}
	s.logger.Info("scheduler starting", slog.Duration("interval", s.interval))

	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, lockKey, s.lockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				s.logger.Info("pass skipped, another replica holds the lock")
				return
			}
			s.logger.Error("acquire pass lock", slog.String("error", err.Error()))
			return
		}
		// Held until it expires. Only a shutdown hands it over early.
		defer func() {
			if ctx.Err() != nil {
				unlock()
			}
		}()
	}

	start := time.Now()
	if err := s.pass(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("pass failed",
			slog.String("error", err.Error()),
			slog.Duration("elapsed", time.Since(start)),
		)
	}
}
