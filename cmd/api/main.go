package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/smileclinic/booking-bot/internal/api/router"
	"github.com/smileclinic/booking-bot/internal/booking"
	"github.com/smileclinic/booking-bot/internal/clinic"
	appconfig "github.com/smileclinic/booking-bot/internal/config"
	"github.com/smileclinic/booking-bot/internal/events"
	"github.com/smileclinic/booking-bot/internal/gate"
	"github.com/smileclinic/booking-bot/internal/http/handlers"
	"github.com/smileclinic/booking-bot/internal/notify"
	"github.com/smileclinic/booking-bot/internal/observability/metrics"
	"github.com/smileclinic/booking-bot/internal/sweep"
	"github.com/smileclinic/booking-bot/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("no .env file found, using environment variables")
	}

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting booking-bot API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	loc, err := time.LoadLocation(cfg.ClinicTimezone)
	if err != nil {
		logger.Error("invalid clinic timezone", "tz", cfg.ClinicTimezone, "error", err)
		os.Exit(1)
	}
	clock := booking.NewClock(loc)

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		cancel()
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	if err := pool.Ping(ctx); err != nil {
		cancel()
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	cancel()
	defer pool.Close()

	// Redis is optional. Without it dedup falls back to the in-process
	// store and clinic hours lose the live override channel.
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unreachable, continuing without it", "addr", cfg.RedisAddr, "error", err)
			redisClient = nil
		}
		pingCancel()
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	repo := booking.NewRepository(pool)

	hours, err := clinic.NewHours(redisClient, cfg.ClinicHoursJSON, logger)
	if err != nil {
		logger.Error("invalid clinic hours config", "error", err)
		os.Exit(1)
	}
	catalog := booking.NewCatalog(repo, hours)

	gateMetrics := metrics.NewGateMetrics(nil)
	bookingMetrics := metrics.NewBookingMetrics(nil)
	eventMetrics := metrics.NewEventMetrics(nil)

	// Outbound side: per-client notifications plus the admin mirror, fed
	// asynchronously so booking operations never wait on delivery.
	sender := notify.NewLogSender(logger)
	dispatcher := events.NewDispatcher(cfg.MirrorQueueSize, logger, eventMetrics,
		notify.NewNotifier(sender, logger),
		notify.NewMirror(sender, cfg.AdminChatID, logger),
	)
	dispatcher.Start()

	svc := booking.NewService(repo, catalog, clock, dispatcher, bookingMetrics, logger)

	// The conversational layer plugs in here. Until one is wired the
	// gate still enforces dedup, blocks, rate limits and per-sender
	// ordering, and admitted messages are logged.
	inbound := gate.HandlerFunc(func(ctx context.Context, ev gate.Event) {
		logger.Info("inbound message admitted",
			"provider", ev.Provider,
			"sender", ev.Sender,
			"len", len(ev.Text),
		)
	})

	var deduper gate.Deduper
	if redisClient != nil {
		deduper = gate.NewRedisDeduper(redisClient, cfg.DedupTTL)
	} else {
		deduper = gate.NewMemoryDeduper(cfg.DedupTTL)
	}

	g := gate.New(inbound,
		gate.WithDeduper(deduper),
		gate.WithRateLimiter(gate.NewRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow)),
		gate.WithBlockChecker(repo),
		gate.WithWorkers(cfg.GateWorkers),
		gate.WithQueueSize(cfg.GateQueueSize),
		gate.WithLockWait(cfg.SenderLockWait),
		gate.WithSweepInterval(cfg.GateSweepEvery),
		gate.WithMetrics(gateMetrics),
		gate.WithLogger(logger),
	)
	g.Start()

	runner := sweep.NewRunner(repo, dispatcher, clock, cfg.CompletionSweepEvery, cfg.ReminderSweepEvery, logger)
	runner.Start()

	// Setup router
	routerCfg := &router.Config{
		Logger:         logger,
		WebhookHandler: handlers.NewWebhookHandler(g, logger),
		AdminHandler:   handlers.NewAdminHandler(svc, hours, logger),
		MetricsHandler: promhttp.Handler(),
	}
	r := router.New(routerCfg)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	// Stop background components after the listener so in-flight requests
	// can still reach the gate, then drain outbound events last.
	runner.Stop()
	g.Stop()
	dispatcher.Close()

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}
