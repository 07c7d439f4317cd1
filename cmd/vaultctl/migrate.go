package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/placementhub/vault/internal/server/config"
	"github.com/placementhub/vault/internal/server/repositories/repomanager"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadFile(configPath)
		if err != nil {
			return err
		}
		db, err := repomanager.Open(cmd.Context(), cfg.DatabaseDSN)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := repomanager.NewPostgresRepositoryManager().RunMigrations(cmd.Context(), db); err != nil {
			return fmt.Errorf("db migration error: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
		return nil
	},
}
