package expiry

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"guarantee-controlplane/pkg/task"
	"guarantee-controlplane/pkg/taskname"
	"guarantee-controlplane/services/campaign"
	"guarantee-controlplane/services/guarantee"
)

const expiredNotes = "Guarantee window expired with unmet conditions."

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	enqueuer task.Enqueuer
	metrics  metrics
	now      func() time.Time
}

type Params struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Enqueuer task.Enqueuer
	Meter    metric.MeterProvider `optional:"true"`
}

func NewService(p Params) *Service {
	mp := p.Meter
	if mp == nil {
		mp = otel.GetMeterProvider()
	}

	return &Service{
		db:       p.DB,
		node:     p.Node,
		enqueuer: p.Enqueuer,
		metrics:  newMetrics(mp),
		now:      time.Now,
	}
}

// EnqueueSweep queues one sweep on the low queue. A second enqueue within the
// hour is dropped by asynq's uniqueness lock.
func (s *Service) EnqueueSweep(ctx context.Context) error {
	t := asynq.NewTask(taskname.ExpirySweep, nil)

	info, err := s.enqueuer.Enqueue(ctx, t,
		asynq.Queue("low"),
		asynq.MaxRetry(3),
		asynq.Unique(time.Hour),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) {
			zap.L().Info("[Expiry] sweep already queued")
			return nil
		}
		zap.L().Error("[Expiry] failed to enqueue sweep", zap.Error(err))
		return err
	}

	zap.L().Info("[Expiry] sweep enqueued", zap.String("task_id", info.ID), zap.String("queue", info.Queue))
	return nil
}

func (s *Service) HandleSweep(ctx context.Context, _ *asynq.Task) error {
	_, err := s.Sweep(ctx)
	return err
}

// Sweep expires active enrollments past their deadline and active guarantee
// instances past their window, and records the run.
func (s *Service) Sweep(ctx context.Context) (*Run, error) {
	now := s.now()
	run := &Run{
		ID:        s.node.Generate().String(),
		Status:    RunStatusRunning,
		StartedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		zap.L().Error("[Expiry] failed to record run", zap.Error(err))
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.expireEnrollments(gctx, now)
		run.EnrollmentsExpired = n
		return err
	})
	g.Go(func() error {
		n, err := s.expireInstances(gctx, now)
		run.InstancesExpired = n
		return err
	})
	sweepErr := g.Wait()

	completed := s.now()
	run.CompletedAt = &completed
	run.Status = RunStatusSuccess
	if sweepErr != nil {
		msg := sweepErr.Error()
		run.Status = RunStatusFailed
		run.ErrorMsg = &msg
	}

	s.metrics.record(ctx, run)

	if err := s.db.WithContext(ctx).Model(&Run{}).Where("id = ?", run.ID).Updates(map[string]any{
		"status":              run.Status,
		"enrollments_expired": run.EnrollmentsExpired,
		"instances_expired":   run.InstancesExpired,
		"error_msg":           run.ErrorMsg,
		"completed_at":        completed,
	}).Error; err != nil {
		zap.L().Error("[Expiry] failed to finish run", zap.String("run_id", run.ID), zap.Error(err))
	}

	if sweepErr != nil {
		zap.L().Error("[Expiry] sweep failed", zap.String("run_id", run.ID), zap.Error(sweepErr))
		return run, sweepErr
	}

	zap.L().Info("[Expiry] sweep finished",
		zap.String("run_id", run.ID),
		zap.Int64("enrollments_expired", run.EnrollmentsExpired),
		zap.Int64("instances_expired", run.InstancesExpired),
		zap.Duration("duration", completed.Sub(now)),
	)
	return run, nil
}

func (s *Service) expireEnrollments(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&campaign.Enrollment{}).
		Where("status = ? AND deadline_at < ?", campaign.EnrollmentStatusActive, now).
		Update("status", campaign.EnrollmentStatusExpired)
	return res.RowsAffected, res.Error
}

func (s *Service) expireInstances(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&guarantee.Instance{}).
		Where("status = ? AND expires_at < ?", guarantee.InstanceStatusActive, now).
		Updates(map[string]any{
			"status":           guarantee.InstanceStatusExpired,
			"resolved_at":      now,
			"resolution_notes": expiredNotes,
		})
	return res.RowsAffected, res.Error
}
