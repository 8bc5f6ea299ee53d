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
	"time"

	"github.com/cuongbtq/docking-be/internal/api/handler"
	"github.com/cuongbtq/docking-be/internal/api/router"
	"github.com/cuongbtq/docking-be/internal/config"
	"github.com/cuongbtq/docking-be/internal/engine"
	"github.com/cuongbtq/docking-be/internal/events"
	"github.com/cuongbtq/docking-be/internal/metadata"
	"github.com/cuongbtq/docking-be/internal/scheduler"
	"github.com/cuongbtq/docking-be/internal/storage"
	"github.com/cuongbtq/docking-be/internal/worker"
	"github.com/cuongbtq/docking-be/shared/logger"
	"github.com/cuongbtq/docking-be/shared/postgresql"
	"github.com/cuongbtq/docking-be/shared/rabbitmq"
	"github.com/gin-gonic/gin"
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

	// Parse command-line flags
	defaultConfigPath := os.Getenv("DOCKING_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/docking-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()
	lg := appLogger.Logger

	lg.Info("Starting docking service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Job store
	store, closeStore, err := initStore(ctx, &cfg.Database, lg)
	if err != nil {
		return fmt.Errorf("failed to initialize job store: %w", err)
	}
	defer closeStore()

	// Docking engine and worker
	dockingEngine, err := initEngine(&cfg.Engine, lg)
	if err != nil {
		return fmt.Errorf("failed to initialize docking engine: %w", err)
	}

	dockingWorker := worker.NewWorker(worker.Config{
		Logger:               lg.With(slog.String("component", "worker")),
		Engine:               dockingEngine,
		Timeout:              cfg.Engine.Timeout,
		MaxRetries:           *cfg.Engine.MaxRetries,
		RetryDelay:           cfg.Engine.RetryDelay,
		StructureURLTemplate: cfg.Engine.StructureURLTemplate,
	})

	// Lifecycle events
	publisher, broker, closePublisher, err := initPublisher(&cfg.RabbitMQ, lg)
	if err != nil {
		return fmt.Errorf("failed to initialize event publisher: %w", err)
	}

	// Display-name enrichment
	enricher, closeMetadata := initMetadata(ctx, &cfg.Metadata, lg)
	defer closeMetadata()

	// Scheduler
	sched, err := scheduler.New(scheduler.Config{
		Logger:              lg.With(slog.String("component", "scheduler")),
		Store:               store,
		Executor:            dockingWorker,
		Publisher:           publisher,
		Concurrency:         cfg.Scheduler.Concurrency,
		AverageJobDuration:  cfg.Scheduler.AverageJobDuration,
		AllowRerunCancelled: cfg.Scheduler.AllowRerunCancelled,
		RetryInterval:       cfg.Scheduler.RetryInterval,
	})
	if err != nil {
		closePublisher(context.Background())
		return fmt.Errorf("failed to initialize scheduler: %w", err)
	}

	if err := sched.Recover(ctx); err != nil {
		closePublisher(context.Background())
		return fmt.Errorf("failed to recover persisted jobs: %w", err)
	}

	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	defer stopDispatch()
	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		if err := sched.Run(dispatchCtx); err != nil {
			lg.Error("Dispatch loop failed", slog.Any("error", err))
		}
	}()

	// HTTP server
	r := initRouter(cfg, lg, sched, enricher, broker)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		lg.Info("Starting HTTP server",
			slog.String("address", addr),
			slog.Duration("read_timeout", cfg.Server.ReadTimeout),
			slog.Duration("write_timeout", cfg.Server.WriteTimeout),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		lg.Info("Shutdown signal received")
	case err := <-serverErr:
		lg.Error("HTTP server failed", slog.Any("error", err))
		runErr = err
	}

	// Graceful shutdown: stop accepting requests, then interrupt in-flight
	// docking runs and wait for their outcomes to be recorded
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("Server forced to shutdown", slog.Any("error", err))
	}

	stopDispatch()
	<-dispatchDone
	if err := sched.Wait(shutdownCtx); err != nil {
		lg.Warn("Timed out waiting for in-flight jobs", slog.Any("error", err))
	}

	closePublisher(shutdownCtx)

	lg.Info("Docking service shutdown complete")
	return runErr
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
}

// initStore opens the configured job store, migrating PostgreSQL when asked
func initStore(ctx context.Context, cfg *config.DatabaseConfig, lg *slog.Logger) (storage.Store, func(), error) {
	if cfg.Driver == config.DriverMemory {
		lg.Warn("Using in-memory job store; jobs are lost on restart")
		return storage.NewMemoryStore(), func() {}, nil
	}

	dbClient, err := postgresql.NewClient(ctx, &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		ConnectTimeout:  cfg.ConnectTimeout,
	}, lg)
	if err != nil {
		return nil, nil, err
	}

	if cfg.AutoMigrate {
		if err := storage.Migrate(dbClient.GetDB()); err != nil {
			dbClient.Close()
			return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		lg.Info("Database schema is up to date")
	}

	store := storage.NewPostgresStore(dbClient.GetDB(), lg).WithHealthCheck(dbClient)
	return store, func() { dbClient.Close() }, nil
}

// initEngine builds the configured docking engine
func initEngine(cfg *config.EngineConfig, lg *slog.Logger) (engine.Engine, error) {
	engineLogger := lg.With(slog.String("component", "engine"))

	switch cfg.Type {
	case config.EngineSimulated:
		lg.Warn("Using simulated docking engine", slog.Duration("duration", cfg.SimulatedDuration))
		return engine.NewSimulatedEngine(engine.SimulatedConfig{
			Duration: cfg.SimulatedDuration,
			Logger:   engineLogger,
		}), nil
	default:
		return engine.NewExecEngine(engine.ExecConfig{
			Command: cfg.Command,
			Args:    cfg.Args,
			Logger:  engineLogger,
		})
	}
}

// initPublisher connects to RabbitMQ when enabled. The returned close func
// drains buffered events and closes the connection.
func initPublisher(cfg *config.RabbitMQConfig, lg *slog.Logger) (events.Publisher, handler.BrokerStatus, func(context.Context), error) {
	if !cfg.Enabled {
		lg.Info("Lifecycle events disabled")
		return events.NopPublisher{}, nil, func(context.Context) {}, nil
	}

	rabbitClient, err := rabbitmq.NewClient(&rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		BindingKey:         cfg.Queue.BindingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}, lg)
	if err != nil {
		return nil, nil, nil, err
	}

	eventLogger := lg.With(slog.String("component", "events"))
	async := events.NewAsyncPublisher(
		events.NewRabbitPublisher(rabbitClient, eventLogger),
		cfg.Publish.BufferSize,
		eventLogger,
	)

	closeFn := func(ctx context.Context) {
		if err := async.Close(ctx); err != nil {
			lg.Warn("Undelivered lifecycle events dropped", slog.Any("error", err))
		}
		rabbitClient.Close()
	}
	return async, rabbitClient, closeFn, nil
}

// initMetadata builds the display-name enricher. Lookups are optional, so
// failures here degrade to empty names instead of stopping startup.
func initMetadata(ctx context.Context, cfg *config.MetadataConfig, lg *slog.Logger) (*metadata.Enricher, func()) {
	metaLogger := lg.With(slog.String("component", "metadata"))
	if cfg.BaseURL == "" {
		return metadata.NewEnricher(metadata.NopResolver{}, metaLogger), func() {}
	}

	var resolver metadata.Resolver = metadata.NewHTTPResolver(metadata.HTTPConfig{
		BaseURL:      cfg.BaseURL,
		Timeout:      cfg.Timeout,
		RetryMax:     cfg.RetryMax,
		RetryWaitMin: cfg.RetryWaitMin,
		RetryWaitMax: cfg.RetryWaitMax,
		Logger:       metaLogger,
	})

	if cfg.RedisURL == "" {
		return metadata.NewEnricher(resolver, metaLogger), func() {}
	}

	cache, err := metadata.NewRedisCache(cfg.RedisURL)
	if err != nil {
		lg.Warn("Invalid redis_url, metadata cache disabled", slog.Any("error", err))
		return metadata.NewEnricher(resolver, metaLogger), func() {}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := cache.Ping(pingCtx); err != nil {
		lg.Warn("Redis unreachable, metadata lookups will fall through", slog.Any("error", err))
	}

	resolver = metadata.NewCachedResolver(resolver, cache, cfg.CacheTTL, metaLogger)
	return metadata.NewEnricher(resolver, metaLogger), func() { cache.Close() }
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(cfg *config.Config, lg *slog.Logger, sched *scheduler.Scheduler, enricher *metadata.Enricher, broker handler.BrokerStatus) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	return router.SetupRouter(&handler.Dependencies{
		Logger:      lg,
		Service:     sched,
		Enricher:    enricher,
		Broker:      broker,
		ServiceName: cfg.App.Name,
	})
}
