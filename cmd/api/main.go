package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/citydoctorae/leadchat/internal/api/router"
	"github.com/citydoctorae/leadchat/internal/chatbot"
	appconfig "github.com/citydoctorae/leadchat/internal/config"
	"github.com/citydoctorae/leadchat/internal/handoff"
	"github.com/citydoctorae/leadchat/internal/kvstore"
	"github.com/citydoctorae/leadchat/internal/leads"
	"github.com/citydoctorae/leadchat/internal/observability/metrics"
	"github.com/citydoctorae/leadchat/internal/webchat"
	"github.com/citydoctorae/leadchat/pkg/logging"
	"github.com/citydoctorae/leadchat/web"
)

func main() {
	// Load .env if present; real deployments use environment variables.
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting leadchat API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"flow", cfg.ChatFlow,
	)

	flow, err := chatbot.ByName(cfg.ChatFlow)
	if err != nil {
		logger.Error("invalid chat flow", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	redisClient := connectRedis(cfg, logger)
	pool := connectPostgresPool(ctx, cfg.DatabaseURL, logger)

	// Visitor counters and handoff tickets degrade to process memory when
	// Redis is absent or failing.
	var visitorStore kvstore.Store = kvstore.NewMemoryStore()
	if redisClient != nil {
		visitorStore = kvstore.NewFallbackStore(kvstore.NewRedisStore(redisClient, "leadchat"), logger)
	}

	var transcript chatbot.TranscriptStore
	if cfg.TranscriptStore && redisClient != nil {
		transcript = chatbot.NewRedisTranscriptStore(redisClient)
	}

	var archive leads.Repository = leads.NewInMemoryRepository()
	if pool != nil {
		pg := leads.NewPostgresRepository(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Error("failed to ensure lead archive schema", "error", err)
			os.Exit(1)
		}
		archive = pg
	}

	submitter := leads.NewSheetsSubmitter(cfg.SheetsScriptURL, cfg.CampaignName, nil, logger)
	tickets := handoff.NewTicketStore(visitorStore)

	metricsHandler, widgetMetrics := setupWidgetMetrics()

	manager := webchat.NewManager(webchat.ManagerConfig{
		Flow:         flow,
		Logger:       logger,
		Submitter:    submitter,
		Archive:      archive,
		Tickets:      tickets,
		Transcript:   transcript,
		VisitorState: visitorStore,
		Metrics:      widgetMetrics,
		ThankYouURL:  cfg.ThankYouURL,
		IdleTTL:      cfg.SessionIdleTTL,
		SweepEvery:   cfg.SessionSweep,
	})
	manager.StartJanitor()

	routerCfg := &router.Config{
		Logger:             logger,
		Webchat:            webchat.NewHandler(manager, transcript, web.WidgetJS, logger),
		LeadsHandler:       leads.NewHandler(archive, logger),
		HandoffHandler:     handoff.NewHandler(tickets, cfg.WhatsAppURL, logger),
		MetricsHandler:     metricsHandler,
		AdminJWTSecret:     cfg.AdminJWTSecret,
		CORSAllowedOrigins: cfg.AllowedOrigins,
		ChatRateLimit:      5,
		ChatRateBurst:      10,
	}
	r := router.New(routerCfg)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	manager.Stop()
	if pool != nil {
		pool.Close()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}

	logger.Info("server stopped")
}

// setupWidgetMetrics builds an isolated registry with the widget metrics and
// the handler that exports it.
func setupWidgetMetrics() (http.Handler, *metrics.WidgetMetrics) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWidgetMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), m
}

// connectRedis returns nil when no Redis address is configured. Connection
// failures are tolerated; callers degrade to in-memory stores.
func connectRedis(cfg *appconfig.Config, logger *logging.Logger) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable at startup", "error", err, "addr", cfg.RedisAddr)
	}
	return client
}

// connectPostgresPool returns nil when no database URL is configured.
func connectPostgresPool(ctx context.Context, url string, logger *logging.Logger) *pgxpool.Pool {
	if url == "" {
		return nil
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		logger.Warn("postgres unreachable at startup", "error", err)
	}
	return pool
}
