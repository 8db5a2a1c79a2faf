// README: HTTP router registration.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"freightquote/internal/http/handlers"
	"freightquote/internal/http/middleware"
	"freightquote/internal/infra"
	"freightquote/internal/modules/costing"
	"freightquote/internal/modules/offer"
	"freightquote/internal/modules/settings"
	"freightquote/internal/observability/metrics"
)

// SettingsAdminRole may create settings versions.
const SettingsAdminRole = "pricing_admin"

// Pinger reports backing-store health for /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterDeps struct {
	Settings *settings.Service
	Costs    *costing.Service
	Offers   *offer.Service
	// Verifier nil disables authentication; writes are then attributed to "system".
	Verifier infra.TokenVerifier
	Health   []Pinger
	Logger   *zap.Logger
}

func NewRouter(deps RouterDeps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(middleware.Logging(logger), middleware.Recovery(logger))

	r.GET("/health", healthHandler(deps.Health))
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api")
	adminOnly := func(c *gin.Context) { c.Next() }
	if deps.Verifier != nil {
		api.Use(middleware.Auth(deps.Verifier))
		adminOnly = middleware.RequireRole(SettingsAdminRole)
	} else {
		api.Use(middleware.Anonymous(settings.SystemActor))
	}

	settingsHandler := handlers.NewSettingsHandler(deps.Settings)
	api.GET("/settings/:scope/active", settingsHandler.Active)
	api.GET("/settings/:scope/versions", settingsHandler.History)
	api.GET("/settings/:scope/versions/:version", settingsHandler.Version)
	api.POST("/settings/:scope", adminOnly, settingsHandler.Create)

	costHandler := handlers.NewCostHandler(deps.Costs)
	api.POST("/costs", costHandler.Calculate)
	api.GET("/costs/:id", costHandler.Get)
	api.POST("/costs/:id/finalize", costHandler.Finalize)
	api.GET("/routes/:id/costs", costHandler.History)

	offerHandler := handlers.NewOfferHandler(deps.Offers)
	api.POST("/offers", offerHandler.Create)
	api.GET("/offers/:id", offerHandler.Get)
	api.PATCH("/offers/:id", offerHandler.Update)
	api.GET("/offers/:id/history", offerHandler.History)
	api.GET("/offers/:id/compare", offerHandler.Compare)

	return r
}

func healthHandler(checks []Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		for _, p := range checks {
			if err := p.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
