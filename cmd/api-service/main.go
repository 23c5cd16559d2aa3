package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuongbtq/verse-journal/internal/api/command"
	"github.com/cuongbtq/verse-journal/internal/api/handler"
	"github.com/cuongbtq/verse-journal/internal/api/router"
	"github.com/cuongbtq/verse-journal/internal/api/trigger"
	"github.com/cuongbtq/verse-journal/internal/auth"
	"github.com/cuongbtq/verse-journal/internal/config"
	"github.com/cuongbtq/verse-journal/internal/queue"
	"github.com/cuongbtq/verse-journal/internal/realtime"
	"github.com/cuongbtq/verse-journal/internal/storage"
	"github.com/cuongbtq/verse-journal/migrations"
	"github.com/cuongbtq/verse-journal/shared/gemini"
	"github.com/cuongbtq/verse-journal/shared/logger"
	"github.com/cuongbtq/verse-journal/shared/objectstore"
	"github.com/cuongbtq/verse-journal/shared/postgresql"
	"github.com/cuongbtq/verse-journal/shared/rabbitmq"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

var errBrokerDown = errors.New("rabbitmq connection is down")

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := logger.New(cfg.Logging.LoggerConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbClient, err := postgresql.NewClient(cfg.Database.ClientConfig(), appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	if cfg.Database.AutoMigrate {
		if err := dbClient.Migrate(migrations.FS, migrations.Dir); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	appLogger.Info("Database connection established")

	rabbitClient, err := rabbitmq.NewClient(ctx, cfg.RabbitMQ.ClientConfig(), appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	appLogger.Info("RabbitMQ connection established")

	eventsCtx, stopEvents := context.WithCancel(context.Background())
	emitter := queue.NewEmitter(rabbitClient, 0, appLogger.Logger)
	emitterDone := make(chan struct{})
	go func() {
		emitter.Run(eventsCtx)
		close(emitterDone)
	}()
	defer func() {
		stopEvents()
		<-emitterDone
	}()

	jobQueue, err := queue.New(
		queue.NewStore(dbClient.GetDB(), appLogger.Logger),
		rabbitClient,
		emitter,
		cfg.Worker.QueueOptions(),
		appLogger.Logger,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize job queue: %w", err)
	}

	geminiClient, err := gemini.NewClient(ctx, cfg.Gemini.ClientConfig(), appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize Gemini: %w", err)
	}

	objects, err := objectstore.NewS3Store(ctx, cfg.Storage.ClientConfig(), appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize object store: %w", err)
	}

	store := storage.NewStorage(dbClient.GetDB())
	tokens := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	hub := realtime.NewHub(appLogger.Logger)
	relay := realtime.NewRelay(rabbitClient, hub, appLogger.Logger)
	go func() {
		if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			appLogger.Error("Event relay stopped", slog.Any("error", err))
		}
	}()
	gateway := realtime.NewGateway(hub, jobQueue, cfg.Realtime.GatewayConfig(), appLogger.Logger)

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	deps := &handler.Dependencies{
		Logger:       appLogger.Logger,
		Accounts:     command.NewAccounts(store, tokens, appLogger.Logger),
		Journals:     command.NewJournals(store, appLogger.Logger),
		Poems:        command.NewPoems(store, command.Transactional(dbClient, store), objects, appLogger.Logger),
		TextTrigger:  trigger.NewText(store, geminiClient, jobQueue, appLogger.Logger),
		AudioTrigger: trigger.NewAudio(store, jobQueue, appLogger.Logger),
		Jobs:         jobQueue,
		Health: func(ctx context.Context) error {
			if err := dbClient.HealthCheck(ctx); err != nil {
				return err
			}
			if !rabbitClient.IsConnected() {
				return errBrokerDown
			}
			return nil
		},
	}

	r := router.SetupRouter(deps, router.Options{
		Tokens:         tokens,
		AllowedOrigins: cfg.Realtime.AllowedOrigins,
		Realtime:       gateway,
		RealtimePath:   cfg.Realtime.Path,
		ServiceName:    cfg.App.Name,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Shutting down server...", slog.String("signal", sig.String()))
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	// Stop the relay first so no frame is sent to a closing connection
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", slog.Any("error", err))
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}
