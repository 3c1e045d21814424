package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stonepot/internal/config"
	"stonepot/internal/db"
	"stonepot/internal/events"
	httpServer "stonepot/internal/http"
	"stonepot/internal/http/middleware"
	"stonepot/internal/logger"
	"stonepot/internal/service"
	"stonepot/internal/worker"
	"stonepot/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

var version = "dev"

func main() {
	logger.Init()
	cfg := config.Load()
	service.InitJWT(cfg.JWTSecret)

	dbPool := db.Connect(cfg.DatabaseURL)
	defer dbPool.Close()

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		middleware.InitRedisRateLimiter(rdb)
	}

	bus := events.NewBus()
	wallet := service.NewWalletService(dbPool)
	settler := service.NewSettlementService(dbPool, wallet, bus)
	games := service.NewGameService(dbPool, wallet, settler, service.GameLimits{
		MinStake:         cfg.MinStake,
		MaxStake:         cfg.MaxStake,
		MaxPlayers:       cfg.MaxPlayersLimit,
		CommissionCapBps: cfg.CommissionCapBps,
	})
	webhooks := service.NewWebhookService(dbPool, wallet, rdb, cfg.WebhookMaxAttempts)

	hub := ws.NewHub(bus)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	go hub.Run(workerCtx)
	go worker.NewGameExpiry(games, cfg.GameFillTimeout, cfg.WorkerInterval).Run(workerCtx)
	go worker.NewSettlementRecovery(settler, cfg.ResolveStuckAfter, cfg.WorkerInterval).Run(workerCtx)
	go worker.NewReconciler(wallet, cfg.WorkerInterval).Run(workerCtx)

	r := gin.Default()
	httpServer.RegisterRoutes(r, cfg, dbPool, wallet, games, webhooks, hub, version)

	srv := &http.Server{
		Addr:    ":" + cfg.AppPort,
		Handler: r,
	}

	go func() {
		logger.Info("server started", "port", cfg.AppPort, "version", version)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	stopWorkers()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", "error", err)
	}

	logger.Info("server exited")
}
