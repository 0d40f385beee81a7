package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xuganyu96/chives-exchange/internal/engine/infrastructure/persistence"
	"github.com/xuganyu96/chives-exchange/pkg/logger"
)

func newInitdbCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "initdb",
		Short: "Create or update the exchange database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := initLogger(cfg); err != nil {
				return err
			}

			d, err := openDB(cfg)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer d.Close()

			if err := persistence.AutoMigrate(d); err != nil {
				return fmt.Errorf("failed to migrate schema: %w", err)
			}
			logger.Info(cmd.Context(), "Database schema initialized", "driver", d.Driver())
			return nil
		},
	}
}
