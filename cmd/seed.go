package main

import (
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"storefront-service/internal/repository"
	"storefront-service/internal/seed"
	"storefront-service/internal/service"
	"storefront-service/migrations"
)

var (
	seedDishes int
	seedValue  int64
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Fill the catalog with demo categories, dishes and banners",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		catalogDB, err := connectDB(cfg.CatalogDSN, cfg.DBRetries)
		if err != nil {
			return err
		}
		defer catalogDB.Close()
		if err := migrations.AutoMigrateCatalog(3, catalogDB); err != nil {
			return err
		}

		catalogRepo := repository.NewCatalogRepository(catalogDB)
		seeder := seed.NewSeeder(catalogRepo, repository.NewSettingsRepository(catalogDB), seedValue)
		if _, err := seeder.Run(cmd.Context(), seedDishes); err != nil {
			return err
		}

		// Drop cached lists so the new catalog is served right away.
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		catalogService := service.NewCatalogService(catalogRepo, rdb, cfg.CatalogCacheTTL)
		if err := catalogService.Invalidate(cmd.Context()); err != nil {
			log.Warn().Err(err).Msg("Could not invalidate the catalog cache")
		}
		return nil
	},
}

func init() {
	seedCmd.Flags().IntVar(&seedDishes, "dishes", 8, "dishes per category")
	seedCmd.Flags().Int64Var(&seedValue, "seed", 42, "random seed")
}
