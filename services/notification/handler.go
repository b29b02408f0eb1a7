package notification

import (
	"context"
	"fmt"

	"guarantee-controlplane/pkg/featureflags"
	"guarantee-controlplane/pkg/logger"
	"guarantee-controlplane/pkg/n8n"
	"guarantee-controlplane/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Handler delivers queued notifications to n8n.
type Handler struct {
	n8n     n8n.Trigger
	flags   featureflags.FeatureFlag
	enabled bool
}

type HandlerParams struct {
	fx.In

	N8N   n8n.Trigger
	Flags featureflags.FeatureFlag
	// Enabled is the fallback used when the feature flag cannot be read.
	Enabled bool `name:"notify_enabled"`
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		n8n:     p.N8N,
		flags:   p.Flags,
		enabled: p.Enabled,
	}
}

func (h *Handler) HandleNotification(ctx context.Context, t *asynq.Task) error {
	log := logger.FromContext(ctx).With(zap.String("task_type", t.Type()))

	if !h.flags.IsEnabled(ctx, featureflags.N8NNotifications, h.enabled) {
		log.Info("notification delivery disabled, dropping")
		return nil
	}

	if len(t.Payload()) == 0 {
		return fmt.Errorf("empty notification payload: %w", asynq.SkipRetry)
	}

	if err := h.n8n.Trigger(ctx, t.Type(), t.Payload()); err != nil {
		log.Warn("failed to deliver notification", zap.Error(err))
		return err
	}

	log.Info("notification delivered")
	return nil
}

// Register routes every notification task type to the handler.
func Register(mux *asynq.ServeMux, h *Handler) {
	for _, name := range taskname.Notifications {
		mux.HandleFunc(name, h.HandleNotification)
	}
}
