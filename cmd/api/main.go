package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/cesasin/clinic-reminders/internal/api/router"
	"github.com/cesasin/clinic-reminders/internal/auth"
	"github.com/cesasin/clinic-reminders/internal/channel"
	appconfig "github.com/cesasin/clinic-reminders/internal/config"
	"github.com/cesasin/clinic-reminders/internal/dispatch"
	"github.com/cesasin/clinic-reminders/internal/engine"
	"github.com/cesasin/clinic-reminders/internal/http/handlers"
	"github.com/cesasin/clinic-reminders/internal/observability/metrics"
	"github.com/cesasin/clinic-reminders/internal/store"
	"github.com/cesasin/clinic-reminders/internal/templates"
	"github.com/cesasin/clinic-reminders/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic-reminders API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()
	if err := db.Ping(); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer func() { _ = redisClient.Close() }()

	registry := prometheus.NewRegistry()
	botMetrics := metrics.NewBotMetrics(registry)

	tmpl := templates.NewStore(cfg.ResponsesDir, logger)
	reminders := store.NewReminderStore(db)
	responses := store.NewResponseStore(db)
	outcomes := store.NewOutcomeStore(db)
	audits := store.NewAuditStore(db)
	batches := store.NewBatchStore(db)

	modes := engine.NewModes(cfg.BotEnabledByDefault, cfg.ConversationModeOnBoot)

	gateway := channel.New(channel.Config{
		URL:               cfg.GatewayURL,
		ReconnectDelay:    cfg.GatewayReconnectDelay,
		WriteTimeout:      cfg.GatewayWriteTimeout,
		KeepAliveInterval: cfg.KeepAliveInterval,
		PresenceInterval:  cfg.PresenceInterval,
		ProbeAddress:      cfg.KeepAliveProbeAddress,
	}, modes, audits, logger)

	bot := engine.New(
		reminders, responses, outcomes, gateway, tmpl, modes,
		engine.NewRedisLocker(redisClient),
		engine.Config{
			MaxConversationTime: cfg.MaxConversationTime,
			HandlerTimeout:      cfg.HandlerTimeout,
			SenderLockTTL:       cfg.SenderLockTTL,
		},
		botMetrics, logger,
	)
	gateway.SetHandler(bot.HandleMessage)

	dispatcher := dispatch.NewService(gateway, tmpl, batches, botMetrics, logger)
	authService := auth.NewService(auth.NewStore(db), cfg.JWTSecret, cfg.JWTExpiry, logger)

	r := router.New(&router.Config{
		Logger:             logger,
		AuthHandler:        handlers.NewAuthHandler(authService, audits, logger),
		WhatsAppHandler:    handlers.NewWhatsAppHandler(gateway, gateway, dispatcher, modes, reminders, responses, outcomes, audits, logger),
		ModeHandler:        handlers.NewModeHandler(modes, audits, logger),
		TokenParser:        authService,
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: strings.Split(cfg.CORSAllowedOrigins, ","),
	})

	runCtx, stopGateway := context.WithCancel(context.Background())
	go gateway.Run(runCtx)

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
	stopGateway()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
