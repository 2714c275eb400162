package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"autobill/internal/config"
	"autobill/internal/logger"
)

var billingCmd = &cobra.Command{
	Use:   "billing",
	Short: "Billing cycle commands",
}

var billingRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one billing cycle now",
	Long: `Bill every active contract whose next billing date is today or earlier.

Each contract gets an invoice, a stored PDF and an AI review. Invoices that
pass are emailed; the rest are held as flagged for manual review. The
summary is printed as JSON.`,
	Example: `  # Run the billing cycle and print the summary
  autobill billing run

  # Process four contracts at a time and save the summary
  autobill billing run --workers 4 -o billing-summary.json`,
	RunE: runBilling,
}

var remindersCmd = &cobra.Command{
	Use:   "reminders",
	Short: "Reminder cycle commands",
}

var remindersRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one reminder cycle now",
	Long: `Send payment reminders for overdue invoices whose cadence day is today
(days 3 and 7, 10 and 14, every fifth day up to 30, then weekly).`,
	Example: `  autobill reminders run -o reminders.json`,
	RunE:    runReminders,
}

func init() {
	rootCmd.AddCommand(billingCmd, remindersCmd)
	billingCmd.AddCommand(billingRunCmd)
	remindersCmd.AddCommand(remindersRunCmd)

	billingRunCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	billingRunCmd.Flags().Int("workers", 0, "Contracts processed concurrently (default: BILLING_WORKERS)")
	remindersRunCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
}

func runBilling(cmd *cobra.Command, args []string) error {
	log := logger.WithJob("cmd", "billing")

	outputPath, _ := cmd.Flags().GetString("output")
	workers, _ := cmd.Flags().GetInt("workers")

	ctx, cancel := signalContext(log)
	defer cancel()

	app, err := newApplication(ctx, log, func(cfg *config.Config) {
		if workers > 0 {
			cfg.BillingWorkers = workers
		}
	})
	if err != nil {
		return err
	}
	defer app.Close()

	summary, err := app.billing.Run(ctx)
	if err != nil {
		return fmt.Errorf("billing cycle failed: %w", err)
	}
	return writeJSON(summary, outputPath, log)
}

func runReminders(cmd *cobra.Command, args []string) error {
	log := logger.WithJob("cmd", "reminders")

	outputPath, _ := cmd.Flags().GetString("output")

	ctx, cancel := signalContext(log)
	defer cancel()

	app, err := newApplication(ctx, log)
	if err != nil {
		return err
	}
	defer app.Close()

	summary, err := app.reminders.Run(ctx)
	if err != nil {
		return fmt.Errorf("reminder cycle failed: %w", err)
	}
	return writeJSON(summary, outputPath, log)
}

// writeJSON prints v as indented JSON to outputPath, or stdout when empty.
func writeJSON(v interface{}, outputPath string, log zerolog.Logger) error {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal summary to JSON")
		return fmt.Errorf("failed to create JSON output: %w", err)
	}

	if outputPath != "" {
		if err := os.WriteFile(outputPath, jsonData, 0644); err != nil {
			log.Error().
				Err(err).
				Str("output_file", outputPath).
				Msg("Failed to write output file")
			return fmt.Errorf("failed to write output file: %w", err)
		}
		log.Info().
			Str("output_file", outputPath).
			Int("bytes", len(jsonData)).
			Msg("Summary written to file")
		return nil
	}

	if _, err := os.Stdout.Write(jsonData); err != nil {
		log.Error().Err(err).Msg("Failed to write to stdout")
		return fmt.Errorf("failed to write output: %w", err)
	}
	fmt.Println()
	return nil
}
