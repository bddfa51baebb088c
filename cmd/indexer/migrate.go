package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"curveVolume/internal/config"
	"curveVolume/internal/storage/postgres"
)

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadMigrate(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.PGDSN == "" {
		return fmt.Errorf("pg dsn is required")
	}

	if cfg.Down {
		if err := postgres.Rollback(cfg.PGDSN); err != nil {
			return err
		}
		logger.Info("migration reverted")
		return nil
	}
	if err := postgres.Migrate(cfg.PGDSN); err != nil {
		return err
	}
	logger.Info("schema up to date")
	return nil
}
