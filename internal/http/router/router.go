package router

import (
	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/escrow-backend/internal/config"
	"github.com/ignatzorin/escrow-backend/internal/http/handlers"
	"github.com/ignatzorin/escrow-backend/internal/http/middleware"
	"github.com/ignatzorin/escrow-backend/internal/service"
)

func SetupRouter(
	cfg *config.Config,
	escrowHandler *handlers.EscrowHandler,
	walletHandler *handlers.WalletHandler,
	webhookHandler *handlers.WebhookHandler,
	healthHandler *handlers.HealthHandler,
	tokenManager *service.TokenManager,
) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", healthHandler.Health)

	// Вебхук платёжного шлюза: без JWT (шлюз верифицирует платёж сам),
	// но с rate limit против шторма ретраев.
	webhooks := r.Group("/webhooks")
	webhooks.Use(middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod))
	{
		webhooks.POST("/payment", webhookHandler.PaymentConfirmed)
	}

	api := r.Group("/api")
	api.Use(middleware.AuthMiddleware(tokenManager))
	{
		api.GET("/wallet", walletHandler.GetBalance)

		api.POST("/transactions", escrowHandler.Create)
		api.GET("/transactions", escrowHandler.List)
		api.GET("/transactions/reference/:reference", escrowHandler.GetByReference)
		api.GET("/transactions/:id", escrowHandler.Get)
		api.GET("/transactions/:id/timeline", escrowHandler.Timeline)
		api.POST("/transactions/:id/start", escrowHandler.StartWork)
		api.POST("/transactions/:id/complete", escrowHandler.CompleteWork)
		api.POST("/transactions/:id/approve", escrowHandler.Approve)
		api.POST("/transactions/:id/cancel", escrowHandler.Cancel)
		api.POST("/transactions/:id/dispute", escrowHandler.RaiseDispute)
		api.POST("/transactions/:id/resolve", escrowHandler.ResolveDispute)
	}

	return r
}
