package auth

import (
	"guarantee-controlplane/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("auth",
	fx.Provide(
		ProvideRoleStore,
		ProvideVerifier,
		ProvideAuthorizer,
	),
)

type RoleStoreParams struct {
	fx.In
	DB    *gorm.DB
	Redis *redis.Client `optional:"true"`
}

func ProvideRoleStore(p RoleStoreParams) RoleStore {
	return NewRoleStore(p.DB, p.Redis)
}

func ProvideVerifier(cfg *config.Config, roles RoleStore) Verifier {
	return NewJWTVerifier(cfg.Supabase.JWTSecret, cfg.Supabase.ServiceRoleKey, cfg.Supabase.URL, roles)
}

func ProvideAuthorizer(cfg *config.Config) (*Authorizer, error) {
	return NewAuthorizer(cfg.AccessControl.Model, cfg.AccessControl.Policy)
}
