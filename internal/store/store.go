// Package store persists contracts, invoices and their records with gorm.
//
// SQLite is used for development and tests, PostgreSQL in production. All
// timestamps are written in UTC so range queries compare consistently on both.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"autobill/internal/logger"
	"autobill/pkg/models"
)

var (
	// ErrNotFound is returned when the addressed row does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateInvoiceNumber is returned when an invoice number is already taken.
	ErrDuplicateInvoiceNumber = errors.New("invoice number already exists")

	// ErrInvoiceFinal is returned when a paid or cancelled invoice would be mutated.
	ErrInvoiceFinal = errors.New("invoice is paid or cancelled")

	// ErrInvalidPayment is returned for non-positive payment amounts.
	ErrInvalidPayment = errors.New("payment amount must be positive")

	// ErrUnsupportedDriver is returned for database drivers other than sqlite and postgres.
	ErrUnsupportedDriver = errors.New("unsupported database driver")
)

// Config selects and tunes the database connection.
type Config struct {
	Driver         string // sqlite | postgres
	DSN            string
	Debug          bool
	ConnectRetries int
	RetryDelay     time.Duration
}

// Open connects to the database, retrying while it comes up.
func Open(cfg Config) (*gorm.DB, error) {
	const op = "Open"
	log := logger.WithComponent("store")

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite", "":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("%s: %w: %q", op, ErrUnsupportedDriver, cfg.Driver)
	}

	logLevel := gormlogger.Silent
	if cfg.Debug {
		logLevel = gormlogger.Info
	}
	gcfg := &gorm.Config{
		Logger:         gormlogger.Default.LogMode(logLevel),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	}

	retries := max(cfg.ConnectRetries, 1)
	delay := cfg.RetryDelay
	if delay == 0 {
		delay = 2 * time.Second
	}

	var db *gorm.DB
	var err error
	for i := 1; i <= retries; i++ {
		db, err = gorm.Open(dialector, gcfg)
		if err == nil {
			err = db.Exec("SELECT 1").Error
		}
		if err == nil {
			break
		}
		log.Warn().Err(err).Int("attempt", i).Int("max_attempts", retries).Msg("Database not reachable")
		if i < retries {
			time.Sleep(delay)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%s: failed to connect database after %d attempts: %w", op, retries, err)
	}

	log.Debug().Str("driver", cfg.Driver).Msg("Database connected")
	return db, nil
}

// Store is the persistence collaborator of the billing and reminder cycles.
type Store struct {
	db  *gorm.DB
	log zerolog.Logger
}

// New wraps an open connection.
func New(db *gorm.DB) *Store {
	return &Store{
		db:  db,
		log: logger.WithComponent("store"),
	}
}

// DB exposes the underlying handle.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("Ping: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Migrate creates or updates all tables.
func (s *Store) Migrate(ctx context.Context) error {
	const op = "Migrate"

	db := s.db.WithContext(ctx)
	for _, m := range models.All() {
		if err := db.AutoMigrate(m); err != nil {
			return fmt.Errorf("%s: automigrate %T: %w", op, m, err)
		}
	}
	for _, table := range []string{"contracts", "invoices", "validation_logs"} {
		if !db.Migrator().HasTable(table) {
			return fmt.Errorf("%s: missing table after migration: %s", op, table)
		}
	}
	s.log.Info().Int("models", len(models.All())).Msg("Database migrated")
	return nil
}

// StartOfDay truncates t to midnight UTC of its calendar day.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func notFound(op string, rows int64, entity string, id uint) error {
	if rows == 0 {
		return fmt.Errorf("%s: %s %d: %w", op, entity, id, ErrNotFound)
	}
	return nil
}

func translate(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}
