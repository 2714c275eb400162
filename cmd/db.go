package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"autobill/internal/config"
	"autobill/internal/logger"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database maintenance commands",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE:  runDBMigrate,
}

var dbSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert demo customers with contracts due today",
	Long: `Insert two demo customers with four contracts (monthly, yearly, quarterly
and one-time) whose next billing date is today. Running it again is a no-op.`,
	RunE: runDBSeed,
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbMigrateCmd, dbSeedCmd)
}

func runDBMigrate(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("db")

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	s, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer s.Close()

	log.Info().Str("driver", cfg.DatabaseDriver).Msg("Database schema is up to date")
	return nil
}

func runDBSeed(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("db")

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	s, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer s.Close()

	n, err := s.Seed(cmd.Context(), time.Now())
	if err != nil {
		return fmt.Errorf("failed to seed database: %w", err)
	}
	fmt.Printf("Inserted %d demo contracts\n", n)
	return nil
}
