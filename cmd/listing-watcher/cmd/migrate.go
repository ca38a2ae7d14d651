package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/donaldgifford/listing-watcher/internal/config"
)

const migrateTimeout = 60 * time.Second

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply snapshot table migrations",
		Long:  "Creates or upgrades the snapshot tables. Only meaningful with snapshot.backend: postgres.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := newLogger(cfg)

			if cfg.Snapshot.Backend != config.BackendPostgres {
				return errors.New("snapshot.backend is not postgres, nothing to migrate")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), migrateTimeout)
			defer cancel()

			log.Info("running migrations", "host", cfg.Snapshot.Database.Host)
			pg, err := openPostgres(ctx, &cfg.Snapshot.Database, log)
			if err != nil {
				return err
			}
			pg.Close()

			log.Info("migrations complete")
			return nil
		},
	}
}
