package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"autobill/internal/ai"
	"autobill/internal/audit"
	"autobill/internal/config"
	"autobill/internal/email"
	"autobill/internal/invoice"
	"autobill/internal/logger"
	"autobill/internal/objectstore"
	"autobill/internal/orchestrator"
	"autobill/internal/pdf"
	"autobill/internal/sheets"
	"autobill/internal/store"
)

// auditTimeout bounds one audit write.
const auditTimeout = 5 * time.Second

// application holds the wired collaborators shared by the commands.
type application struct {
	cfg       *config.Config
	store     *store.Store
	billing   *orchestrator.BillingCycle
	reminders *orchestrator.ReminderCycle
	actions   *orchestrator.Actions
	closers   []func() error
}

// openStore connects to the configured database and runs migrations.
func openStore(cfg *config.Config, log zerolog.Logger) (*store.Store, error) {
	db, err := store.Open(store.Config{
		Driver: cfg.DatabaseDriver,
		DSN:    cfg.DatabaseDSN,
		Debug:  cfg.DatabaseDebug,
	})
	if err != nil {
		log.Error().Err(err).Str("driver", cfg.DatabaseDriver).Msg("Failed to open database")
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s := store.New(db)
	if err := s.Migrate(context.Background()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// newApplication wires every collaborator from the environment configuration.
// Overrides adjust the loaded configuration, typically from command flags.
func newApplication(ctx context.Context, log zerolog.Logger, overrides ...func(*config.Config)) (*application, error) {
	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("Invalid configuration")
		return nil, err
	}
	for _, apply := range overrides {
		apply(cfg)
	}

	s, err := openStore(cfg, log)
	if err != nil {
		return nil, err
	}
	app := &application{cfg: cfg, store: s, closers: []func() error{s.Close}}

	completer, err := createCompleter(ctx, cfg, log)
	if err != nil {
		app.Close()
		return nil, err
	}
	if c, ok := completer.(interface{ Close() error }); ok {
		app.closers = append(app.closers, c.Close)
	}

	objects, err := createObjectStore(ctx, cfg, log)
	if err != nil {
		app.Close()
		return nil, err
	}

	renderer := pdf.NewRenderer(s, pdf.Issuer{Name: cfg.CompanyName, Email: cfg.MailFrom})
	sender := email.NewSender(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
		Company:  cfg.CompanyName,
	}, s, renderer)

	aiValidator := invoice.NewAIValidator(completer, invoice.AIValidatorConfig{
		CompanyName: cfg.CompanyName,
		MaxRetries:  cfg.AIMaxRetries,
	})
	validator := invoice.NewValidator(aiValidator, aiValidator, s)
	sink := createAuditSink(ctx, cfg, s, log)

	opts := orchestrator.Options{
		StepTimeout: cfg.StepTimeout,
		Workers:     cfg.BillingWorkers,
		Location:    cfg.Location(),
	}
	app.billing = orchestrator.NewBillingCycle(orchestrator.BillingDeps{
		Store:     s,
		Renderer:  renderer,
		Objects:   objects,
		Validator: validator,
		Notifier:  sender,
		Audit:     sink,
	}, opts)
	app.reminders = orchestrator.NewReminderCycle(orchestrator.ReminderDeps{
		Store:    s,
		Notifier: sender,
		Audit:    sink,
	}, opts)
	app.actions = orchestrator.NewActions(orchestrator.ActionDeps{
		Store:     s,
		Validator: validator,
		Notifier:  sender,
		Audit:     sink,
	}, opts)

	log.Debug().
		Str("ai_provider", cfg.AIProvider).
		Str("storage", cfg.StorageBackend).
		Bool("audit_sheet", cfg.AuditSheetURL != "").
		Int("workers", cfg.BillingWorkers).
		Msg("Application wired")

	return app, nil
}

// Close releases the store and AI clients.
func (a *application) Close() {
	log := logger.WithComponent("app")
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("Failed to close resource")
		}
	}
}

// createCompleter builds the text-generation client for the configured provider.
func createCompleter(ctx context.Context, cfg *config.Config, log zerolog.Logger) (ai.Completer, error) {
	var (
		completer ai.Completer
		err       error
	)
	switch cfg.AIProvider {
	case config.ProviderGemini:
		completer, err = ai.NewGeminiCompleter(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.AITemperature)
	default:
		completer, err = ai.NewOpenAICompleter(ai.OpenAIConfig{
			APIKey:      cfg.OpenAIAPIKey,
			BaseURL:     cfg.OpenAIBaseURL,
			Model:       cfg.OpenAIModel,
			Temperature: cfg.AITemperature,
			MaxRetries:  cfg.AIMaxRetries,
		})
	}
	if err != nil {
		if errors.Is(err, ai.ErrMissingAPIKey) {
			log.Error().Err(err).Str("provider", cfg.AIProvider).Msg("AI credentials not configured")
			return nil, fmt.Errorf("missing AI credentials. Please set one of:\n"+
				"  OPENAI_API_KEY=sk-... (AI_PROVIDER=openai)\n"+
				"  GEMINI_API_KEY=... (AI_PROVIDER=gemini)\n"+
				"Original error: %w", err)
		}
		log.Error().Err(err).Msg("Failed to create AI client")
		return nil, fmt.Errorf("failed to create AI client: %w", err)
	}
	return completer, nil
}

// createObjectStore builds the PDF storage backend.
func createObjectStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (invoice.ObjectStore, error) {
	if cfg.StorageBackend == config.StorageGCS {
		gcs, err := objectstore.NewGCSStore(ctx, objectstore.GCSConfig{Bucket: cfg.GCSBucket, Prefix: cfg.GCSPrefix})
		if err != nil {
			log.Error().Err(err).Str("bucket", cfg.GCSBucket).Msg("Failed to create GCS client")
			return nil, fmt.Errorf("failed to create GCS store: %w", err)
		}
		return gcs, nil
	}

	local, err := objectstore.NewLocalStore(cfg.LocalStorageDir, cfg.LocalStorageURL)
	if err != nil {
		log.Error().Err(err).Str("dir", cfg.LocalStorageDir).Msg("Failed to prepare local storage")
		return nil, fmt.Errorf("failed to create local store: %w", err)
	}
	return local, nil
}

// createAuditSink writes audit events to the database and, when configured,
// mirrors them to a spreadsheet. A broken spreadsheet setup only disables the mirror.
func createAuditSink(ctx context.Context, cfg *config.Config, s *store.Store, log zerolog.Logger) audit.Sink {
	backends := audit.Multi{audit.NewDBSink(s)}

	if cfg.AuditSheetURL != "" {
		svc, err := sheets.NewSheetsService(ctx, cfg.AuditSheetURL)
		if err != nil {
			log.Warn().Err(err).Msg("Audit spreadsheet unavailable, continuing with database audit only")
		} else {
			backends = append(backends, audit.NewSheetsSink(svc, cfg.AuditSheetWorksheet))
		}
	}

	return audit.NewBestEffort(backends, auditTimeout)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
