package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"autobill/internal/logger"
	"autobill/internal/scheduler"
	"autobill/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and the admin HTTP server",
	Long: `Start the daily billing and reminder jobs and the admin HTTP endpoints.

Schedules use five-field cron syntax evaluated in SCHEDULE_TIMEZONE:
  BILLING_SCHEDULE   default "0 9 * * *"
  REMINDER_SCHEDULE  default "0 10 * * *"

Manual triggers (POST /admin/cycles/billing, /admin/cycles/reminders) share the
scheduled jobs' guard, so a cycle never runs twice at once. Only one autobill
process should run against a database.`,
	Example: `  autobill serve
  autobill serve --addr :9090
  autobill serve --no-scheduler`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Listen address (default: HTTP_ADDR)")
	serveCmd.Flags().Bool("no-scheduler", false, "Serve the admin API without scheduled cycles")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")

	addr, _ := cmd.Flags().GetString("addr")
	noScheduler, _ := cmd.Flags().GetBool("no-scheduler")

	ctx, cancel := signalContext(log)
	defer cancel()

	app, err := newApplication(ctx, log)
	if err != nil {
		return err
	}
	defer app.Close()

	if addr == "" {
		addr = app.cfg.HTTPAddr
	}

	if !noScheduler {
		sched := scheduler.New(app.cfg.Location())
		if err := sched.Register("billing", app.cfg.BillingSchedule, func(ctx context.Context) error {
			_, err := app.billing.Run(ctx)
			return err
		}); err != nil {
			return fmt.Errorf("failed to schedule billing: %w", err)
		}
		if err := sched.Register("reminders", app.cfg.ReminderSchedule, func(ctx context.Context) error {
			_, err := app.reminders.Run(ctx)
			return err
		}); err != nil {
			return fmt.Errorf("failed to schedule reminders: %w", err)
		}
		sched.Start()
		defer func() {
			stopCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
			defer stop()
			if err := sched.Stop(stopCtx); err != nil {
				log.Warn().Err(err).Msg("Scheduler did not stop cleanly")
			}
		}()

		for _, job := range []string{"billing", "reminders"} {
			if next, ok := sched.Next(job); ok {
				log.Info().Str("job", job).Time("next_run", next).Msg("Next scheduled run")
			}
		}
	}

	srv := server.New(server.Deps{
		Billing:    app.billing,
		Reminders:  app.reminders,
		Actions:    app.actions,
		Health:     app.store,
		AdminToken: app.cfg.AdminToken,
	})
	if app.cfg.AdminToken == "" {
		log.Warn().Msg("ADMIN_TOKEN not set, admin endpoints are unauthenticated")
	}

	if err := srv.Run(ctx, addr); err != nil {
		return fmt.Errorf("admin server failed: %w", err)
	}
	return nil
}
