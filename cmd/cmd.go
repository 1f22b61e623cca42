package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"optin-backend/internal/archive"
	"optin-backend/internal/config"
	"optin-backend/internal/handlers"
	"optin-backend/internal/matching"
	"optin-backend/internal/metrics"
	"optin-backend/internal/notify"
	"optin-backend/internal/repository"
	"optin-backend/internal/services"
	"optin-backend/internal/store"
	"optin-backend/internal/store/memory"
	"optin-backend/internal/tasks"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func Run() {
	// Optional .env for local development
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Failed to read .env file")
	}

	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logger
	setupLogger(cfg.Log.Level, cfg.Log.Format)

	ctx := context.Background()

	// Connect to storage
	st, closeStore := openStore(ctx, cfg.Database)
	defer closeStore()

	m := metrics.New()
	jobs := notify.NewDelayQueue(30 * time.Second)
	wsHub := services.NewWSHub()

	// Delivery: in-app always, APNs when configured
	senders := notify.Multi{{Name: "websocket", Sender: wsHub}}
	if cfg.APNs.KeyFile != "" {
		client, err := notify.NewAPNsClient(notify.APNsConfig{
			KeyFile:    cfg.APNs.KeyFile,
			KeyID:      cfg.APNs.KeyID,
			TeamID:     cfg.APNs.TeamID,
			Topic:      cfg.APNs.Topic,
			Production: cfg.APNs.Production,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create APNs client")
		}
		senders = append(senders, notify.Channel{
			Name:   "apns",
			Sender: notify.NewAPNsSender(client, st.PushSubscriptions(), cfg.APNs.Topic),
		})
		log.Info().Bool("production", cfg.APNs.Production).Msg("APNs delivery enabled")
	}

	var archiver services.MatchArchiver
	if cfg.Archive.Bucket != "" {
		client, err := archive.NewS3Client(ctx, archive.Config{
			Region:    cfg.Archive.Region,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			Endpoint:  cfg.Archive.Endpoint,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create S3 client")
		}
		archiver = archive.NewS3Archiver(client, cfg.Archive.Bucket)
		log.Info().Str("bucket", cfg.Archive.Bucket).Msg("Match archive enabled")
	}

	// Initialize services
	tokenService := services.NewTokenService(cfg.JWT.Secret, nil)
	notifier := services.NewNotificationScheduler(st, senders, jobs, cfg.Matching.ReminderLeadTimes(), m, nil)
	matchService := services.NewMatchService(
		st,
		matching.NewEngine(cfg.Matching.MinOverlapMinutes),
		notifier,
		m,
		wsHub,
		archiver,
		nil,
	)
	optInService := services.NewOptInService(st, matchService, nil)
	sweepService := services.NewSweepService(st, matchService, m, nil)
	chatService := services.NewChatService(st, nil)
	pushService := services.NewPushService(st.PushSubscriptions(), nil)

	sweeper, err := tasks.NewSweeper(sweepService, cfg.Sweep.Schedule, 0)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create sweep scheduler")
	}

	// Initialize handlers
	routes := handlers.RouterConfig{
		Tokens:    tokenService,
		Users:     handlers.NewUserHandler(tokenService),
		OptIns:    handlers.NewOptInHandler(optInService),
		Matches:   handlers.NewMatchHandler(matchService, chatService),
		Push:      handlers.NewPushHandler(pushService),
		WebSocket: handlers.NewWebSocketHandler(wsHub, tokenService),
	}
	if cfg.Sweep.TriggerToken != "" {
		routes.Sweep = handlers.NewSweepHandler(sweepService, cfg.Sweep.TriggerToken)
	}
	if cfg.Metrics.Enabled {
		routes.Metrics = m.Handler()
		routes.MetricsPath = cfg.Metrics.Path
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handlers.NewRouter(routes),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sweeper.Start()

	// Start server in goroutine
	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Str("driver", cfg.Database.Driver).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Shutdown HTTP server
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	sweeper.Stop(shutdownCtx)

	// Pending reminders are dropped; matches survive in storage
	log.Info().Int("pending_jobs", jobs.Pending()).Msg("Stopping delayed jobs")
	jobs.Stop()

	log.Info().Msg("Server exited")
}

// openStore connects the configured storage driver
func openStore(ctx context.Context, cfg config.DatabaseConfig) (store.Store, func()) {
	if cfg.Driver == config.DriverMemory {
		log.Warn().Msg("Using in-memory storage, data is lost on restart")
		return memory.New(), func() {}
	}

	db, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	// Test database connection
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}
	log.Info().Msg("Database connection established")

	if cfg.Migrate {
		if err := repository.Migrate(ctx, db); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply database schema")
		}
		log.Info().Msg("Database schema applied")
	}

	return repository.NewStore(db), db.Close
}

// setupLogger configures zerolog logger
func setupLogger(level, format string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
