package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"storefront-service/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the order tables on every shard and the catalog tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		shards, err := connectShards(cfg)
		if err != nil {
			return err
		}
		defer closeAll(shards)
		if err := migrations.AutoMigrateOrders(3, shards...); err != nil {
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

		log.Info().Msgf("Migrated %d order shard(s) and the catalog", len(shards))
		return nil
	},
}
