package notification

//go:generate go run go.uber.org/mock/mockgen -package mocks -destination mocks/publisher_mock.go guarantee-controlplane/services/notification Publisher

import (
	"context"
	"encoding/json"

	"guarantee-controlplane/pkg/logger"
	"guarantee-controlplane/pkg/task"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Publisher hands domain events to the notification pipeline. Publishing never
// fails the caller: errors are logged and dropped.
type Publisher interface {
	Publish(ctx context.Context, event string, payload any)
}

const maxDeliveryRetry = 5

type asynqPublisher struct {
	enqueuer task.Enqueuer
}

func NewPublisher(enqueuer task.Enqueuer) Publisher {
	return &asynqPublisher{enqueuer: enqueuer}
}

func (p *asynqPublisher) Publish(ctx context.Context, event string, payload any) {
	log := logger.FromContext(ctx).With(zap.String("event", event))

	body, err := json.Marshal(payload)
	if err != nil {
		log.Error("failed to encode notification payload", zap.Error(err))
		return
	}

	info, err := p.enqueuer.Enqueue(ctx, asynq.NewTask(event, body),
		asynq.MaxRetry(maxDeliveryRetry),
		asynq.Queue("default"),
	)
	if err != nil {
		log.Warn("failed to enqueue notification", zap.Error(err))
		return
	}

	log.Debug("notification enqueued", zap.String("task_id", info.ID))
}

type nop struct{}

// Nop discards every event.
func Nop() Publisher { return nop{} }

func (nop) Publish(context.Context, string, any) {}
