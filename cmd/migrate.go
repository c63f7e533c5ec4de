package main

import (
	"github.com/spf13/cobra"

	"photobook/internal/storage"
)

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			store, err := storage.Open(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			store.Close()

			logger.Info().Str("driver", cfg.Database.Driver).Msg("Migrations applied")
			return nil
		},
	}
}
