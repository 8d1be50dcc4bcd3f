package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/trannm/mediascribe/internal/config"
	"github.com/trannm/mediascribe/internal/dlqmonitor"
	"github.com/trannm/mediascribe/internal/domain"
	"github.com/trannm/mediascribe/internal/jobstore"
	"github.com/trannm/mediascribe/shared/logger"
	"github.com/trannm/mediascribe/shared/postgresql"
	"github.com/trannm/mediascribe/shared/rabbitmq"
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
	defaultConfigPath := os.Getenv("DLQ_MONITOR_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/dlq-monitor/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateMonitorConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting DLQ monitor",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.Duration("sweep_interval", cfg.Monitor.SweepInterval),
		slog.Duration("stuck_scan_interval", cfg.Monitor.StuckScanInterval),
	)

	// Initialize PostgreSQL client
	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	appLogger.Info("Database connection established")

	// Initialize RabbitMQ client
	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}

	appLogger.Info("RabbitMQ connection established")

	defer func() {
		dbClient.Close()
		rabbitClient.Close()
	}()

	jobStore := jobstore.NewStore(dbClient.GetDB(), appLogger.Logger)
	monitor := dlqmonitor.NewMonitor(jobStore, rabbitClient, &dlqmonitor.Config{
		SweepBatch:     cfg.Monitor.SweepBatch,
		StuckThreshold: cfg.Monitor.StuckThreshold,
		StuckBatch:     cfg.Monitor.StuckBatch,
		MaxRetries:     domain.MaxRetries,
	}, appLogger.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Run both sweeps once at startup so a backlog is drained without
	// waiting for the first tick.
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return monitor.Sweep(groupCtx) })
	group.Go(func() error { return monitor.SweepStuck(groupCtx) })
	if err := group.Wait(); err != nil {
		appLogger.Error("Initial sweep failed",
			slog.Any("error", err),
		)
	}

	// Schedule the periodic sweeps
	scheduler := cron.New()

	_, err = scheduler.AddFunc(fmt.Sprintf("@every %s", cfg.Monitor.SweepInterval), func() {
		if err := monitor.Sweep(ctx); err != nil {
			appLogger.Error("Dead-letter sweep failed",
				slog.Any("error", err),
			)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule dead-letter sweep: %w", err)
	}

	_, err = scheduler.AddFunc(fmt.Sprintf("@every %s", cfg.Monitor.StuckScanInterval), func() {
		if err := monitor.SweepStuck(ctx); err != nil {
			appLogger.Error("Stuck-job sweep failed",
				slog.Any("error", err),
			)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule stuck-job sweep: %w", err)
	}

	scheduler.Start()
	appLogger.Info("DLQ monitor is running")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	appLogger.Info("Received signal, shutting down",
		slog.String("signal", sig.String()),
	)

	cancel()

	// Let a running sweep finish before closing connections
	stopCtx := scheduler.Stop()
	select {
	case <-stopCtx.Done():
		appLogger.Info("Scheduler stopped")
	case <-time.After(30 * time.Second):
		appLogger.Warn("Scheduler stop timeout exceeded, forcing exit")
	}

	appLogger.Info("DLQ monitor shutdown complete")
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

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
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
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:                 cfg.Host,
		Port:                 cfg.Port,
		User:                 cfg.User,
		Password:             cfg.Password,
		VHost:                cfg.VHost,
		ExchangeName:         cfg.Exchange.Name,
		ExchangeType:         cfg.Exchange.Type,
		ExchangeDurable:      cfg.Exchange.Durable,
		ExchangeAutoDelete:   cfg.Exchange.AutoDelete,
		QueueName:            cfg.Queue.Name,
		QueueDurable:         cfg.Queue.Durable,
		QueueAutoDelete:      cfg.Queue.AutoDelete,
		QueueExclusive:       cfg.Queue.Exclusive,
		DeliveryLimit:        cfg.Queue.DeliveryLimit,
		DeadLetterExchange:   cfg.DeadLetter.Exchange,
		DeadLetterQueue:      cfg.DeadLetter.Queue,
		DeadLetterRoutingKey: cfg.DeadLetter.RoutingKey,
		RoutingKey:           cfg.RoutingKey,
		RetryAttempts:        cfg.Connection.RetryAttempts,
		RetryInterval:        cfg.Connection.RetryInterval,
		Heartbeat:            cfg.Connection.Heartbeat,
		ConnectionTimeout:    cfg.Connection.ConnectionTimeout,
		PublishRetries:       cfg.Publish.RetryAttempts,
		PublishRetryDelay:    cfg.Publish.RetryInterval,
		PublishBackoffMult:   cfg.Publish.BackoffMultiplier,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}
