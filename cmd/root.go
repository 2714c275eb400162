package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"autobill/internal/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "autobill",
	Short: "Autobill - recurring invoicing, validation and payment reminders",
	Long: `Autobill generates invoices from recurring contracts, checks them with an
AI reviewer, emails them to customers and follows up on overdue payments.

Two daily cycles drive the system: billing (due contracts to delivered
invoices) and reminders (overdue invoices to reminder emails). Run them
from the scheduler with "autobill serve" or one-off with "autobill billing run"
and "autobill reminders run".`,
	Version: version,
	Run: func(cmd *cobra.Command, args []string) {
		log := logger.WithComponent("root")
		log.Info().
			Str("version", version).
			Msg("Autobill CLI executed")

		fmt.Println("Welcome to Autobill!")
		fmt.Println("Use --help to see available commands and options.")
	},
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print version information")
}
