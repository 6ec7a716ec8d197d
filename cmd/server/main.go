package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	syncapp "github.com/sellerpulse/backend/internal/application/sync"
	"github.com/sellerpulse/backend/internal/domain/marketplace"
	"github.com/sellerpulse/backend/internal/infrastructure/amazon"
	"github.com/sellerpulse/backend/internal/infrastructure/config"
	"github.com/sellerpulse/backend/internal/infrastructure/logger"
	"github.com/sellerpulse/backend/internal/infrastructure/notify"
	"github.com/sellerpulse/backend/internal/infrastructure/persistence"
	"github.com/sellerpulse/backend/internal/infrastructure/ratelimit"
	"github.com/sellerpulse/backend/internal/infrastructure/tracking"
	"github.com/sellerpulse/backend/internal/interfaces/http/handler"
	"github.com/sellerpulse/backend/internal/interfaces/http/router"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&cfg.Log)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting SellerPulse Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Initialize database connection
	db, err := persistence.NewDatabase(&cfg.Database, cfg.Log.Level, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Repositories
	orderRepo := persistence.NewGormOrderRepository(db.DB)
	syncStateRepo := persistence.NewGormSyncStateRepository(db.DB)

	// Marketplace client, paced by a shared interval limiter
	amazonCfg := amazon.NewConfig(
		cfg.Amazon.ClientID,
		cfg.Amazon.ClientSecret,
		cfg.Amazon.RefreshToken,
		cfg.Amazon.MarketplaceID,
	)
	if cfg.Amazon.APIBaseURL != "" {
		amazonCfg.APIBaseURL = cfg.Amazon.APIBaseURL
	}
	if cfg.Amazon.TokenURL != "" {
		amazonCfg.TokenURL = cfg.Amazon.TokenURL
	}
	if cfg.Amazon.IsSandbox {
		amazonCfg.IsSandbox = true
		amazonCfg.APIBaseURL = amazon.SandboxAPIURL
	}
	if cfg.Amazon.TimeoutSecs > 0 {
		amazonCfg.TimeoutSeconds = cfg.Amazon.TimeoutSecs
	}
	if cfg.Amazon.PageSize > 0 {
		amazonCfg.PageSize = cfg.Amazon.PageSize
	}

	limiter := ratelimit.NewIntervalLimiter(cfg.Sync.MinAPIInterval)
	credentials := amazon.NewStaticCredentialProvider(amazonCfg)
	client, err := amazon.NewClient(amazonCfg, credentials, limiter, log)
	if err != nil {
		log.Fatal("Failed to create marketplace client", zap.Error(err))
	}

	// Tracking queue, backed by the carrier status API
	var fetcher tracking.StatusFetcher
	if cfg.Tracking.CarrierEndpoint != "" {
		fetcher, err = tracking.NewHTTPStatusFetcher(&tracking.FetcherConfig{
			Endpoint:       cfg.Tracking.CarrierEndpoint,
			APIKey:         cfg.Tracking.CarrierAPIKey,
			TimeoutSeconds: cfg.Tracking.TimeoutSecs,
		})
		if err != nil {
			log.Fatal("Failed to create tracking status fetcher", zap.Error(err))
		}
	} else {
		log.Warn("No carrier endpoint configured, tracking refresh disabled")
	}

	var queue *tracking.Queue
	if fetcher != nil {
		updateFn := tracking.NewOrderStatusUpdateFunc(fetcher, orderRepo, log)
		queue = tracking.NewQueue(tracking.Config{
			MaxRetries:        cfg.Tracking.MaxRetries,
			MinUpdateInterval: cfg.Tracking.MinUpdateInterval,
			TaskDelay:         cfg.Tracking.TaskDelay,
			IdleDelay:         cfg.Tracking.IdleDelay,
		}, updateFn, log)
	} else {
		queue = tracking.NewQueue(tracking.Config{
			MaxRetries:        cfg.Tracking.MaxRetries,
			MinUpdateInterval: cfg.Tracking.MinUpdateInterval,
			TaskDelay:         cfg.Tracking.TaskDelay,
			IdleDelay:         cfg.Tracking.IdleDelay,
		}, tracking.NoopUpdateFunc, log)
	}
	defer queue.Clear()

	// Cycle report delivery
	var notifier marketplace.Notifier
	if cfg.Notify.WebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.Notify.WebhookURL,
			time.Duration(cfg.Notify.TimeoutSecs)*time.Second, log)
	} else {
		notifier = notify.NewLogNotifier(log)
	}

	// Sync service and periodic trigger
	syncService, err := syncapp.NewService(client, orderRepo, syncStateRepo, queue, notifier,
		syncapp.Config{Lookback: cfg.Sync.Lookback}, log)
	if err != nil {
		log.Fatal("Failed to create sync service", zap.Error(err))
	}

	// Requeue shipments that were in flight when the process last stopped
	if fetcher != nil {
		if _, err := syncService.EnqueueActiveShipments(context.Background()); err != nil {
			log.Warn("Failed to requeue active shipments", zap.Error(err))
		}
	}

	trigger := syncapp.NewCycleTrigger(syncService, cfg.Sync.Interval, log)
	if cfg.Sync.Enabled {
		if err := trigger.Start(context.Background()); err != nil {
			log.Fatal("Failed to start sync trigger", zap.Error(err))
		}
	} else {
		log.Info("Periodic sync disabled, cycles run on manual trigger only")
	}

	// HTTP surface
	syncHandler := handler.NewSyncHandler(syncService, queue, db, log)
	engine := router.New(cfg.App.Env, syncHandler, log)

	srv := &http.Server{
		Addr:    ":" + cfg.App.Port,
		Handler: engine,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if cfg.Sync.Enabled {
		if err := trigger.Stop(ctx); err != nil {
			log.Error("Sync trigger did not stop cleanly", zap.Error(err))
		}
	}

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
