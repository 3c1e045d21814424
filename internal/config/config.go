package config

import (
	"os"
	"strconv"
	"time"

	"stonepot/internal/logger"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort       string
	DatabaseURL   string
	JWTSecret     string
	WebhookSecret string
	PlatformKey   string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Game defaults and limits
	MinStake           int64
	MaxStake           int64
	MaxPlayersLimit    int
	CommissionCapBps   int
	GameFillTimeout    time.Duration
	WebhookMaxAttempts int

	// Rate limiting
	APIRateLimit   int
	APIRateWindow  time.Duration
	GameRateLimit  int
	GameRateWindow time.Duration

	// Workers
	WorkerInterval    time.Duration
	ResolveStuckAfter time.Duration
}

// Load reads configuration from the environment (.env honoured in dev).
// Missing required values are fatal.
func Load() *Config {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Fatal("DATABASE_URL is not set")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		logger.Fatal("JWT_SECRET is not set")
	}

	webhookSecret := os.Getenv("WEBHOOK_SECRET")
	if webhookSecret == "" {
		logger.Fatal("WEBHOOK_SECRET is not set")
	}

	platformKey := os.Getenv("PLATFORM_API_KEY")
	if platformKey == "" {
		logger.Fatal("PLATFORM_API_KEY is not set")
	}

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	return &Config{
		AppPort:       port,
		DatabaseURL:   dbURL,
		JWTSecret:     jwtSecret,
		WebhookSecret: webhookSecret,
		PlatformKey:   platformKey,

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       envInt("REDIS_DB", 0),

		MinStake:           envInt64("MIN_STAKE", 100),
		MaxStake:           envInt64("MAX_STAKE", 10_000_000),
		MaxPlayersLimit:    envInt("MAX_PLAYERS_LIMIT", 20),
		CommissionCapBps:   envInt("COMMISSION_CAP_BPS", 2000),
		GameFillTimeout:    envDuration("GAME_FILL_TIMEOUT_SECONDS", 15*time.Minute),
		WebhookMaxAttempts: envInt("WEBHOOK_MAX_ATTEMPTS", 5),

		APIRateLimit:   envInt("API_RATE_LIMIT", 60),
		APIRateWindow:  envDuration("API_RATE_WINDOW_SECONDS", time.Minute),
		GameRateLimit:  envInt("GAME_RATE_LIMIT", 60),
		GameRateWindow: envDuration("GAME_RATE_WINDOW_SECONDS", time.Minute),

		WorkerInterval:    envDuration("WORKER_INTERVAL_SECONDS", 30*time.Second),
		ResolveStuckAfter: envDuration("RESOLVE_STUCK_AFTER_SECONDS", time.Minute),
	}
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}

func envInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return def
}
