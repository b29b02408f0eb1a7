package httpapi

import (
	"guarantee-controlplane/pkg/auth"
	"guarantee-controlplane/pkg/config"
	"guarantee-controlplane/pkg/health"
	"guarantee-controlplane/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	health.Module,
	fx.Provide(
		NewEngine,
		NewRouter,
	),
	fx.Invoke(registerHealthEndpoints),
)

// Router holds the route groups services mount their handlers on.
type Router struct {
	Engine *gin.Engine
	// Admin requires an admin bearer token.
	Admin *gin.RouterGroup
	// Webhooks requires the n8n ingest secret.
	Webhooks *gin.RouterGroup
}

func NewEngine(cfg *config.Config) *gin.Engine {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(
		otelgin.Middleware(cfg.AppName),
		middleware.RequestLogger(),
		middleware.Recovery(),
		middleware.Error(),
	)
	return r
}

type RouterParams struct {
	fx.In
	Config     *config.Config
	Engine     *gin.Engine
	Verifier   auth.Verifier
	Authorizer *auth.Authorizer
}

func NewRouter(p RouterParams) *Router {
	return &Router{
		Engine:   p.Engine,
		Admin:    p.Engine.Group("/api/admin", middleware.RequireAdmin(p.Verifier, p.Authorizer)),
		Webhooks: p.Engine.Group("/api/webhooks/n8n", middleware.RequireIngestSecret(p.Config.N8N.IngestSecret)),
	}
}

func registerHealthEndpoints(r *gin.Engine, h health.HealthService) {
	r.GET("/healthz", h.Liveness)
	r.GET("/readyz", h.Readiness)
}
