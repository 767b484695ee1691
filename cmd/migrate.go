package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"invoiceflow/internal/config"
	"invoiceflow/internal/logger"
	"invoiceflow/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the invoice database schema",
	Long: `Create the invoice_ai schema and its tables in the configured PostgreSQL
database. Every statement is idempotent (CREATE ... IF NOT EXISTS), so the
command is safe to re-run against a database that is already migrated.

Required environment variables:
  PG_HOST, PG_PORT, PG_DB, PG_USER, PG_PASSWORD - PostgreSQL connection`,
	Example: `  invoiceflow migrate`,
	Args:    cobra.NoArgs,
	RunE:    runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.Flags().Int("timeout", 60, "Migration timeout in seconds")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("migrate")

	timeoutSecs, _ := cmd.Flags().GetInt("timeout")
	cfg := config.LoadLenient()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSecs)*time.Second)
	defer cancel()

	s, pool, err := store.Connect(ctx, cfg.ConnString())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	if err := s.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	log.Info().
		Str("database", cfg.PGDatabase).
		Msg("Database schema is up to date")
	return nil
}
