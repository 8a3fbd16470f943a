package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"storefront-service/internal/api"
	"storefront-service/internal/config"
	"storefront-service/internal/consumer"
	"storefront-service/internal/feed"
	"storefront-service/internal/repository"
	"storefront-service/internal/service"
	"storefront-service/internal/session"
	"storefront-service/internal/sharding"
	"storefront-service/migrations"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the order status consumer",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return serve(cfg)
	},
}

func serve(cfg *config.Config) error {
	shards, err := connectShards(cfg)
	if err != nil {
		return err
	}
	defer closeAll(shards)

	catalogDB, err := connectDB(cfg.CatalogDSN, cfg.DBRetries)
	if err != nil {
		return err
	}
	defer catalogDB.Close()

	if err := migrations.AutoMigrateOrders(3, shards...); err != nil {
		return err
	}
	if err := migrations.AutoMigrateCatalog(3, catalogDB); err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})
	defer rdb.Close()
	redisFeed := feed.NewRedisFeed(rdb)

	kafkaWriter := config.NewKafkaWriter(cfg.KafkaBrokers, cfg.OrderTopic)
	defer kafkaWriter.Close()

	router := sharding.NewShardRouter(len(shards))
	orderRepo := repository.NewOrderRepository(shards, router)
	catalogRepo := repository.NewCatalogRepository(catalogDB)
	settingsRepo := repository.NewSettingsRepository(catalogDB)
	wishlistRepo := repository.NewWishlistRepository(rdb, redisFeed)

	catalogService := service.NewCatalogService(catalogRepo, rdb, cfg.CatalogCacheTTL)
	settingsService := service.NewSettingsService(settingsRepo)
	orderService := service.NewOrderService(orderRepo, catalogService, kafkaWriter, rdb, redisFeed, cfg.IdempotencyTTL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessions := session.NewManager(settingsService, cfg.Pricing, wishlistRepo, orderService, cfg.WishlistConfirmTimeout)
	sessions.Start(ctx)
	defer sessions.Shutdown()
	go evictIdleSessions(ctx, sessions, cfg.SessionIdleTimeout)

	// consumer
	statusReader := config.NewKafkaReader(cfg.KafkaBrokers, cfg.StatusTopic, cfg.ConsumerGroup)
	statusConsumer := consumer.NewConsumer(statusReader, orderService)
	go statusConsumer.Start(ctx)

	e := api.NewRouter(api.RouterConfig{
		JWTSecret: cfg.JWTSecret,
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
	},
		api.NewCatalogHandler(catalogService, sessions, cfg.SignInURL),
		api.NewStoreHandler(sessions, catalogService, cfg.SignInURL),
		api.NewOrderHandler(orderService, sessions, cfg.SignInURL),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := e.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
	case err := <-errCh:
		return err
	}

	// ending sessions first releases open order streams
	sessions.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func evictIdleSessions(ctx context.Context, sessions *session.Manager, idle time.Duration) {
	if idle <= 0 {
		return
	}
	ticker := time.NewTicker(idle / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.EvictIdle(idle); n > 0 {
				log.Info().Msgf("Evicted %d idle session(s)", n)
			}
		}
	}
}
