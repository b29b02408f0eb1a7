package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"guarantee-controlplane/pkg/auth"
	"guarantee-controlplane/pkg/config"
	"guarantee-controlplane/pkg/db"
	"guarantee-controlplane/pkg/hashistack/secretmanager"
	"guarantee-controlplane/pkg/logger"
	"guarantee-controlplane/services/campaign"
	"guarantee-controlplane/services/expiry"
	"guarantee-controlplane/services/guarantee"
)

// Production schemas are owned by the SQL migrations of the web app; this
// bootstraps a local or test database with the same tables.
func main() {
	opts := []fx.Option{
		secretmanager.Module,
		config.Module,
		logger.Module,
		db.Module,
		fx.Invoke(migrate),
		fx.WithLogger(func() fxevent.Logger { return fxevent.NopLogger }),
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)
	if err := app.Err(); err != nil {
		log.Fatalf("migration failed: %v", err)
	}
}

func models() []any {
	out := []any{&auth.UserProfile{}}
	out = append(out, guarantee.Models()...)
	out = append(out, campaign.Models()...)
	return append(out, expiry.Models()...)
}

func migrate(db *gorm.DB) error {
	all := models()
	if err := db.AutoMigrate(all...); err != nil {
		zap.L().Error("[DB] AutoMigrate failed", zap.Error(err))
		return err
	}

	zap.L().Info("[DB] Schema migrated", zap.Int("models", len(all)))
	return nil
}
