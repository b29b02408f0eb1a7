package expiry

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Sweeps are enqueued daily at 01:00 local time.
const (
	runHour   = 1
	runMinute = 0
)

type Scheduler struct {
	service *Service
}

func NewScheduler(svc *Service) *Scheduler {
	return &Scheduler{service: svc}
}

// StartScheduler runs the loop until the app stops. The OnStart context only
// bounds startup, so the loop gets its own.
func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go s.run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func (s *Scheduler) run(ctx context.Context) {
	zap.L().Info("[Scheduler] started expiry scheduler")

	for {
		now := time.Now()
		next := nextRunTime(now, runHour, runMinute)

		wait := next.Sub(now)
		zap.L().Info("[Scheduler] next run scheduled",
			zap.Time("next_run", next),
			zap.Duration("sleep_for", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
			s.runDaily(ctx)
		case <-ctx.Done():
			timer.Stop()
			zap.L().Warn("[Scheduler] stopped")
			return
		}
	}
}

func (s *Scheduler) runDaily(ctx context.Context) {
	start := time.Now()
	if err := s.service.EnqueueSweep(ctx); err != nil {
		zap.L().Error("[Scheduler] failed to enqueue expiry sweep", zap.Error(err))
		return
	}
	zap.L().Info("[Scheduler] expiry sweep enqueued", zap.Duration("duration", time.Since(start)))
}

// nextRunTime returns the next occurrence of hour:minute strictly after now.
func nextRunTime(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !now.Before(next) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
