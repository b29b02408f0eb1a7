package featureflags

import (
	"context"

	"guarantee-controlplane/pkg/config"

	"github.com/Flagsmith/flagsmith-go-client/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("featureflags", fx.Provide(ProvideFeatureFlag))

const (
	// N8NNotifications gates delivery of queued notifications to n8n.
	N8NNotifications = "n8n_notifications"
)

type FeatureFlag interface {
	// IsEnabled returns fallback when flags are unavailable.
	IsEnabled(ctx context.Context, feature string, fallback bool) bool
}

type featureflag struct {
	client *flagsmith.Client
}

type FeatureParams struct {
	fx.In
	Config *config.Config
}

func ProvideFeatureFlag(p FeatureParams) FeatureFlag {
	if p.Config.Flagsmith.ApiKey == "" {
		return &featureflag{}
	}

	opts := []flagsmith.Option{
		flagsmith.WithAnalytics(),
	}
	if p.Config.Flagsmith.Addr != "" {
		opts = append(opts, flagsmith.WithBaseURL(p.Config.Flagsmith.Addr))
	}

	return &featureflag{
		client: flagsmith.NewClient(p.Config.Flagsmith.ApiKey, opts...),
	}
}

func (s *featureflag) IsEnabled(ctx context.Context, feature string, fallback bool) bool {
	if s.client == nil {
		return fallback
	}

	flags, err := s.client.GetEnvironmentFlags()
	if err != nil {
		zap.L().Warn("failed to fetch feature flags", zap.String("feature", feature), zap.Error(err))
		return fallback
	}

	enabled, err := flags.IsFeatureEnabled(feature)
	if err != nil {
		return fallback
	}

	return enabled
}

// Static is a fixed FeatureFlag, used by tests and local runs.
type Static map[string]bool

func (s Static) IsEnabled(_ context.Context, feature string, fallback bool) bool {
	if v, ok := s[feature]; ok {
		return v
	}
	return fallback
}
