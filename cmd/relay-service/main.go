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

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"

	"github.com/cuongbtq/media-relay/internal/api/handler"
	"github.com/cuongbtq/media-relay/internal/api/router"
	"github.com/cuongbtq/media-relay/internal/config"
	"github.com/cuongbtq/media-relay/internal/downloader/runner"
	"github.com/cuongbtq/media-relay/internal/downloader/storage"
	"github.com/cuongbtq/media-relay/internal/downloader/supervisor"
	"github.com/cuongbtq/media-relay/internal/events"
	"github.com/cuongbtq/media-relay/internal/intake"
	"github.com/cuongbtq/media-relay/internal/stream"
	"github.com/cuongbtq/media-relay/shared/logger"
	"github.com/cuongbtq/media-relay/shared/rabbitmq"
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
	defaultConfigPath := os.Getenv("RELAY_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/relay-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	downloadsDir := flag.String("downloads", "", "Override download.output_dir")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *downloadsDir != "" {
		cfg.Download.OutputDir = *downloadsDir
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

	appLogger.Info("Starting relay service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	store, err := storage.NewStorage(cfg.Download.OutputDir, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	sup := initSupervisor(cfg, store, appLogger.Logger)

	// Startup sweep of leftovers from a previous run
	if removed, err := sup.RequestCleanup(); err != nil {
		appLogger.Warn("Startup cleanup failed", slog.Any("error", err))
	} else {
		appLogger.Info("Startup cleanup finished", slog.Int("files_removed", removed))
	}

	hub := stream.NewHub(appLogger.Logger)
	sinks := []events.Sink{hub}

	var rabbitClient *rabbitmq.Client
	if cfg.RabbitMQ.Enabled {
		rabbitClient, err = initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		defer rabbitClient.Close()

		sinks = append(sinks, events.NewAMQPSink(rabbitClient, cfg.RabbitMQ.RoutingKeyPrefix))
		appLogger.Info("RabbitMQ connection established")
	}

	broadcaster := events.NewBroadcaster(appLogger.Logger, sinks...)

	var deliveries <-chan amqp.Delivery
	if rabbitClient != nil && cfg.RabbitMQ.Intake.Queue != "" {
		deliveries, err = rabbitClient.Consume(cfg.App.Name)
		if err != nil {
			return fmt.Errorf("failed to start command intake: %w", err)
		}
	}

	deps := &handler.Dependencies{
		Logger:         appLogger.Logger,
		Supervisor:     sup,
		Broadcaster:    broadcaster,
		Hub:            hub,
		Authorize:      cfg.Telegram.IsAllowed,
		AllowedOrigins: cfg.Server.CORSOrigins,
	}

	// Initialize router
	r := initRouter(cfg, deps)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		appLogger.Info("Starting HTTP server",
			slog.String("address", addr),
			slog.Duration("read_timeout", cfg.Server.ReadTimeout),
			slog.Duration("write_timeout", cfg.Server.WriteTimeout),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return hub.Run(gctx)
	})

	g.Go(func() error {
		return sup.RunSweeper(gctx, cfg.Limits.CleanupInterval)
	})

	if deliveries != nil {
		consumer := intake.NewConsumer(&intake.Config{
			Logger:      appLogger.Logger,
			Supervisor:  sup,
			Broadcaster: broadcaster,
			Authorize:   cfg.Telegram.IsAllowed,
			Concurrency: cfg.RabbitMQ.Intake.Concurrency,
		})
		g.Go(func() error {
			return consumer.Run(gctx, deliveries)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("Shutting down relay service...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("Server forced to shutdown", slog.Any("error", err))
		}
		return sup.Shutdown(shutdownCtx)
	})

	appLogger.Info("Relay service is running", slog.String("address", addr))

	if err := g.Wait(); err != nil {
		appLogger.Error("Relay service stopped with error", slog.Any("error", err))
		return err
	}

	appLogger.Info("Relay service shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initSupervisor wires the process runner and download policy
func initSupervisor(cfg *config.Config, store *storage.Storage, logger *slog.Logger) *supervisor.Supervisor {
	proc := runner.NewRunner(&runner.Config{
		Logger:       logger,
		Binary:       cfg.Extractor.Binary,
		ProbeTimeout: cfg.Extractor.ProbeTimeout,
		AudioFormat:  cfg.Download.AudioFormat,
		VideoFormat:  cfg.Download.VideoFormat,
		Proxy:        cfg.Proxy.URL(),
	})

	return supervisor.New(&supervisor.Config{
		Logger:                   logger,
		Runner:                   proc,
		Storage:                  store,
		MaxConcurrent:            cfg.Limits.MaxConcurrentDownloads,
		DownloadTimeout:          cfg.Limits.DownloadTimeout(),
		MaxDurationMinutes:       cfg.Download.MaxDurationMinutes,
		AutoDownloadUnderMinutes: cfg.Download.AutoDownloadVideoUnderMinutes,
		Quality:                  cfg.Download.Quality,
		ShowProgress:             cfg.Download.ShowDownloadProgress,
		ProgressInterval:         cfg.Download.ProgressInterval(),
		MaxFileSizeMB:            cfg.Telegram.MaxFileSizeMB,
		CleanupAfter:             cfg.Limits.CleanupAfter(),
		ChoiceTimeout:            cfg.Download.ChoiceTimeout,
		EnabledSites:             cfg.SupportedSites,
	})
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Intake.Queue,
		QueueDurable:       cfg.Intake.Durable,
		BindingKey:         cfg.Intake.BindingKey,
		PrefetchCount:      cfg.Intake.PrefetchCount,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

// initRouter sets up the Gin router with all routes and middleware
func initRouter(cfg *config.Config, deps *handler.Dependencies) *gin.Engine {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	return router.SetupRouter(deps, router.Options{
		ServiceName:       cfg.App.Name,
		Version:           cfg.App.Version,
		RequestsPerSecond: cfg.Server.RequestsPerSecond,
		Burst:             cfg.Server.Burst,
	})
}
