// cmd/visa-tracker/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"visa-tracker/internal/api"
	"visa-tracker/internal/common/auth"
	commonaws "visa-tracker/internal/common/aws"
	"visa-tracker/internal/common/config"
	"visa-tracker/internal/common/database"
	"visa-tracker/internal/common/logger"
	"visa-tracker/internal/notify"
	"visa-tracker/internal/store"
	"visa-tracker/internal/sweep"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("starting visa tracker",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()

	if err := store.EnsureSchema(ctx, pg.DB); err != nil {
		zapLog.Fatal("schema migration failed", zap.Error(err))
	}
	zapLog.Info("PostgreSQL connected")

	// --- Redis with retry ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected")

	// --- AWS clients ---
	sesClient, err := commonaws.NewSESClient(ctx, cfg.Notifications.AWS.Region)
	if err != nil {
		zapLog.Fatal("ses client init failed", zap.Error(err))
	}
	snsClient, err := commonaws.NewSNSClient(ctx, cfg.Notifications.AWS.Region)
	if err != nil {
		zapLog.Fatal("sns client init failed", zap.Error(err))
	}

	keycloak := auth.NewKeycloakClient(cfg.Auth.Keycloak.URL, cfg.Auth.Keycloak.Realm)

	// --- Core wiring ---
	recordStore := store.NewPostgresStore(pg.DB)

	dispatcher := notify.NewDispatcher(
		&notify.Config{
			FromEmail:     cfg.Notifications.Email.FromEmail,
			SimulateVoice: cfg.Notifications.Voice.Simulate,
		},
		sesClient, snsClient, log,
	)

	sweeper := sweep.NewSweeper(
		&sweep.Config{DispatchTimeout: config.GetDuration(cfg.Sweep.DispatchTimeout)},
		recordStore, dispatcher, nil, log,
	)

	location, err := time.LoadLocation(cfg.Sweep.Timezone)
	if err != nil {
		zapLog.Fatal("invalid sweep timezone", zap.Error(err))
	}

	lease := sweep.NewRunLease(rdb.Client, time.Duration(cfg.Sweep.LeaseTTLSeconds)*time.Second)
	scheduler := sweep.NewScheduler(
		&sweep.SchedulerConfig{
			Hour:     cfg.Sweep.Hour,
			Minute:   cfg.Sweep.Minute,
			Location: location,
		},
		sweeper, lease, nil, log,
	)

	if cfg.Sweep.Enabled {
		go scheduler.Start(ctx)
		zapLog.Info("daily sweep scheduled",
			zap.Int("hour", cfg.Sweep.Hour),
			zap.Int("minute", cfg.Sweep.Minute),
			zap.String("timezone", cfg.Sweep.Timezone),
		)
	} else {
		zapLog.Warn("daily sweep disabled by configuration")
	}

	// --- HTTP server ---
	handler := api.NewHandler(recordStore, scheduler, sweeper, log)
	app := api.NewRouter(api.RouteConfig{
		Handler:  handler,
		Verifier: keycloak,
		Logger:   log,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Address); err != nil {
			zapLog.Fatal("http server failed", zap.Error(err))
		}
	}()
	zapLog.Info("http server listening", zap.String("address", cfg.HTTP.Address))

	// --- Graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("shutdown signal received")
	cancel()

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		zapLog.Error("http shutdown failed", zap.Error(err))
	}
	zapLog.Info("visa tracker stopped")
}
