package http

import (
	"stonepot/internal/config"
	"stonepot/internal/http/handlers"
	"stonepot/internal/http/middleware"
	"stonepot/internal/service"
	"stonepot/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes wires the full HTTP surface: auth, games, wallet,
// payment webhooks, the websocket feed and the operational endpoints.
func RegisterRoutes(
	r *gin.Engine,
	cfg *config.Config,
	db *pgxpool.Pool,
	wallet *service.WalletService,
	games *service.GameService,
	webhooks *service.WebhookService,
	hub *ws.Hub,
	version string,
) {
	h := handlers.NewHandler(cfg, wallet, games, webhooks)
	healthHandler := handlers.NewHealthHandler(db, version)

	// Health and metrics (no rate limiting)
	r.GET("/health", healthHandler.Readiness)
	r.GET("/healthz", healthHandler.Liveness)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Provider webhooks authenticate by signature, not JWT, and are
	// registered outside the rate-limited group: throttling the provider
	// only converts replays into retries
	r.POST("/api/v1/webhooks/payments", h.PaymentWebhook)

	v1 := r.Group("/api/v1")
	v1.Use(middleware.RedisRateLimit(cfg.APIRateLimit, cfg.APIRateWindow))

	v1.POST("/auth", h.Auth)

	authed := v1.Group("")
	authed.Use(middleware.JWT())

	gameLimited := authed.Group("")
	gameLimited.Use(middleware.RedisRateLimit(cfg.GameRateLimit, cfg.GameRateWindow))
	gameLimited.POST("/games", h.CreateGame)
	gameLimited.POST("/games/:id/join", h.JoinGame)
	gameLimited.POST("/games/:id/roll", h.SubmitRoll)

	authed.GET("/games/:id", h.GetGame)
	authed.GET("/wallet/balance", h.Balance)
	authed.GET("/wallet/history", h.History)
	authed.POST("/wallet/deposit", h.InitDeposit)
	authed.POST("/wallet/withdraw", h.Withdraw)

	// Operator surface, guarded by the platform key
	v1.GET("/webhooks/dead-letters", h.DeadLetters)
	v1.POST("/wallets/:id/deactivate", h.DeactivateWallet)

	// Settlement feed
	r.GET("/ws", ws.HandleWS(hub))
}
