package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-backend/internal/analytics/router"
	"github.com/angelmondragon/storefront-backend/internal/analytics/worker"
	"github.com/angelmondragon/storefront-backend/internal/analytics/writer"
	"github.com/angelmondragon/storefront-backend/pkg/bigquery"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/instance"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/storefront-backend/pkg/pubsub"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

const serviceName = "analytics-worker"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Options{ServiceName: serviceName}).
			Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceName

	logg := logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "analytics worker failed", err)
		os.Exit(1)
	}
	logg.Info(ctx, "analytics worker shut down")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer closeWith(logg, "redis", redisClient.Close)

	psClient, err := pubsub.NewClient(ctx, cfg.GCP, pubsub.Options{
		Subscription:      cfg.PubSub.AnalyticsSubscription,
		SubscriptionTopic: cfg.PubSub.OrdersTopic,
	}, logg)
	if err != nil {
		return fmt.Errorf("bootstrap pubsub: %w", err)
	}
	defer closeWith(logg, "pubsub", psClient.Close)

	bq, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	if err != nil {
		return fmt.Errorf("bootstrap bigquery: %w", err)
	}
	defer closeWith(logg, "bigquery", bq.Close)

	subscription := psClient.Subscription(cfg.PubSub.AnalyticsSubscription)
	if subscription == nil {
		return errors.New("analytics subscription not configured")
	}

	claims, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		return err
	}
	facts, err := writer.New(bq, writer.Config{OrderEventsTable: bq.OrderEventsTable()})
	if err != nil {
		return err
	}
	routes, err := router.NewRouter(facts, logg)
	if err != nil {
		return err
	}
	svc, err := worker.NewService(subscription, routes, claims, metrics.NewWorkflowMetrics(prometheus.DefaultRegisterer), logg)
	if err != nil {
		return err
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":          cfg.App.Env,
		"instance":     instance.GetID(),
		"serviceKind":  serviceName,
		"subscription": cfg.PubSub.AnalyticsSubscription,
	})
	logg.Info(ctx, "analytics worker ready")
	return svc.Run(ctx)
}

func closeWith(logg *logger.Logger, what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(context.Background(), "failed to close "+what, err)
	}
}
