package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/trackr/internal/api"
	"github.com/timmy/trackr/internal/api/handler"
	"github.com/timmy/trackr/internal/bootstrap"
	"github.com/timmy/trackr/internal/cache"
	"github.com/timmy/trackr/internal/config"
	"github.com/timmy/trackr/internal/events"
	"github.com/timmy/trackr/internal/fetcher"
	"github.com/timmy/trackr/internal/logger"
	"github.com/timmy/trackr/internal/service"
	"github.com/timmy/trackr/internal/storage"
)

func main() {
	// Support CONFIG_PATH environment variable for production deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := bootstrap.NewLogger(&cfg.Log, "trackr-api")
	defer logger.Sync()

	ctx := logger.SetComponent(appLogger.WithContext(context.Background()), "main")

	stores, err := bootstrap.OpenStores(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}
	defer stores.Close()

	checks := map[string]handler.Check{"database": stores.Ping}

	// Stats cache, shared through Redis when configured
	var statsCache service.StatsCache
	if cfg.Redis.URL != "" {
		client, err := cache.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to configure Redis")
		}
		rc := cache.NewStatsCache(client, cfg.Redis.StatsTTL)
		if err := rc.Ping(ctx); err != nil {
			appLogger.WithError(err).Warn("Redis is not reachable, stats will be recomputed until it is")
		}
		defer rc.Close()
		statsCache = rc
		checks["redis"] = rc.Ping
		logger.CtxInfo(ctx, "Stats cache enabled: ttl=%s", cfg.Redis.StatsTTL)
	} else {
		statsCache = cache.NewMemoryStatsCache(cfg.Redis.StatsTTL)
	}

	// Optional scrape events
	var publisher service.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kp, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.TopicPrefix)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize Kafka publisher")
		}
		defer kp.Close()
		publisher = kp
		logger.CtxInfo(ctx, "Scrape events enabled: brokers=%v, prefix=%s", cfg.Kafka.Brokers, cfg.Kafka.TopicPrefix)
	}

	// Optional report export (S3, R2, S3-compatible or memory)
	objectStorage, err := storage.NewStorage(&storage.Config{
		Type:      storage.StorageType(cfg.Storage.Type),
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
		PublicURL: cfg.Storage.PublicURL,
	})
	switch {
	case errors.Is(err, storage.ErrDisabled):
		logger.CtxInfo(ctx, "Report export disabled: no storage bucket configured")
	case err != nil:
		appLogger.WithError(err).Fatal("Failed to initialize storage")
	default:
		if s3, ok := objectStorage.(*storage.S3Storage); ok {
			if err := s3.EnsureBucket(ctx); err != nil {
				appLogger.WithError(err).Fatal("Failed to ensure storage bucket")
			}
		}
	}

	metricFetcher := newFetcher(&cfg.Fetcher, cfg.Scrape.FetchTimeout)

	pool := service.NewWorkerPool(cfg.Scrape.Workers, cfg.Scrape.QueueSize)
	pool.Start()

	supervisor := service.NewTaskSupervisor(
		stores.Jobs,
		stores.Posts,
		stores.History,
		metricFetcher,
		service.RetryPolicy{
			MaxAttempts: cfg.Scrape.MaxAttempts,
			BaseBackoff: cfg.Scrape.BaseBackoff,
			MaxBackoff:  cfg.Scrape.MaxBackoff,
		},
		statsCache,
		publisher,
	)
	coordinator := service.NewJobCoordinator(stores.Jobs, stores.Posts, stores.Campaigns, supervisor, pool, statsCache, publisher)
	campaigns := service.NewCampaignService(stores.Campaigns, stores.Posts, stores.History, statsCache)
	tracker := service.NewLiveTracker(stores.Campaigns, stores.Posts, coordinator, service.TrackerOptions{
		Interval:   cfg.Tracker.Interval,
		RunOnStart: cfg.Tracker.RunOnStart,
	})

	// Jobs interrupted by the previous process resume before anything new starts
	resumed, err := coordinator.Recover(ctx)
	if err != nil {
		appLogger.WithError(err).Error("Failed to recover unfinished scrape jobs")
	} else if resumed > 0 {
		logger.CtxInfo(ctx, "Resumed %d unfinished scrape jobs", resumed)
	}

	if cfg.Tracker.Enabled {
		tracker.Start()
	}

	router := api.SetupRouter(&api.Services{
		Campaigns: campaigns,
		Registry:  service.NewPostRegistry(stores.Campaigns, stores.Posts, statsCache),
		Jobs:      coordinator,
		Reports:   service.NewReportService(campaigns, objectStorage),
		Tracker:   tracker,
		Checks:    checks,
	}, &cfg.Server, appLogger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.With(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info(ctx, "Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.CtxInfo(ctx, "Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}

	// Running tasks finish their current attempt; unfinished jobs are
	// resumed by Recover on the next start.
	tracker.Stop()
	coordinator.Stop()
	pool.Stop()

	logger.CtxInfo(ctx, "Server exited")
}

func newFetcher(cfg *config.FetcherConfig, timeout time.Duration) fetcher.MetricFetcher {
	var f fetcher.MetricFetcher
	switch cfg.Provider {
	case "html":
		f = fetcher.NewHTMLFetcher(cfg.UserAgent, timeout)
	default:
		f = fetcher.NewAPIFetcher(&fetcher.APIConfig{
			BaseURL:   cfg.BaseURL,
			APIKey:    cfg.APIKey,
			UserAgent: cfg.UserAgent,
			Timeout:   timeout,
		})
	}
	return fetcher.WithTimeout(f, timeout)
}
