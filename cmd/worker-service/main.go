package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/cuongbtq/verse-journal/internal/config"
	"github.com/cuongbtq/verse-journal/internal/domain"
	"github.com/cuongbtq/verse-journal/internal/queue"
	"github.com/cuongbtq/verse-journal/internal/storage"
	"github.com/cuongbtq/verse-journal/internal/worker"
	"github.com/cuongbtq/verse-journal/internal/worker/command"
	"github.com/cuongbtq/verse-journal/migrations"
	"github.com/cuongbtq/verse-journal/shared/gemini"
	"github.com/cuongbtq/verse-journal/shared/logger"
	"github.com/cuongbtq/verse-journal/shared/objectstore"
	"github.com/cuongbtq/verse-journal/shared/postgresql"
	"github.com/cuongbtq/verse-journal/shared/rabbitmq"
	"github.com/joho/godotenv"
)

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

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := logger.New(cfg.Logging.LoggerConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting worker service",
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

	rabbitClient, err := rabbitmq.NewClient(ctx, cfg.RabbitMQ.ClientConfig(), appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	// Events outlive the workers so the last outcomes are still published
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

	factory := command.NewFactory(command.Config{
		Text:     geminiClient,
		Speech:   geminiClient,
		Objects:  objects,
		Voice:    cfg.Gemini.Voice,
		Language: cfg.Gemini.Language,
		Logger:   appLogger.Logger,
	})
	processor := worker.NewProcessor(dbClient, jobQueue, factory, storage.NewStorage(dbClient.GetDB()), appLogger.Logger)

	hostname, _ := os.Hostname()
	workers := make([]*worker.Worker, 0, len(domain.JobKinds()))
	for _, kind := range domain.JobKinds() {
		queueName, err := cfg.RabbitMQ.QueueFor(kind)
		if err != nil {
			return err
		}
		workers = append(workers, worker.NewWorker(&worker.Config{
			Logger:        appLogger.Logger,
			Consumer:      rabbitClient,
			Processor:     processor,
			Kind:          kind,
			QueueName:     queueName,
			WorkerID:      hostname,
			Concurrency:   cfg.Worker.Kind(kind).Concurrency,
			PrefetchCount: cfg.RabbitMQ.Consumer.PrefetchCount,
		}))
	}

	monitor := queue.NewMonitor(jobQueue, cfg.Monitor.StallCheckInterval, cfg.Monitor.SweepInterval, appLogger.Logger)
	go monitor.Run(ctx)

	errChan := make(chan error, len(workers))
	for _, w := range workers {
		go func(w *worker.Worker) {
			if err := w.Start(ctx); err != nil {
				errChan <- err
			}
		}(w)
	}

	appLogger.Info("Worker service started successfully",
		slog.Int("text_concurrency", cfg.Worker.Text.Concurrency),
		slog.Int("audio_concurrency", cfg.Worker.Audio.Concurrency),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case runErr = <-errChan:
		appLogger.Error("Worker error", slog.Any("error", runErr))
	}

	// Stop taking deliveries; running jobs finish under their own deadline
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for _, w := range workers {
			wg.Add(1)
			go func(w *worker.Worker) {
				defer wg.Done()
				w.Stop()
			}(w)
		}
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Workers stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit; unfinished jobs will be reclaimed by the stall monitor")
	}

	appLogger.Info("Worker service shutdown complete")
	return runErr
}
