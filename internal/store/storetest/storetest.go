// Package storetest opens throwaway in-memory stores for tests.
package storetest

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"autobill/internal/store"
	"autobill/pkg/models"
)

// New returns a migrated store backed by a private in-memory SQLite database.
func New(t testing.TB) *store.Store {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)

	db, err := store.Open(store.Config{Driver: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// a single connection keeps the shared in-memory database alive and serialises writers
	sqlDB.SetMaxOpenConns(1)

	s := store.New(db)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// Customer inserts a customer named name.
func Customer(t testing.TB, s *store.Store, name string) *models.Customer {
	t.Helper()
	c := &models.Customer{Name: name, Email: strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@example.com"}
	if err := s.CreateCustomer(context.Background(), c); err != nil {
		t.Fatalf("create customer: %v", err)
	}
	return c
}

// Contract inserts an active contract for customer due on next.
func Contract(t testing.TB, s *store.Store, customer *models.Customer, amount string, freq models.BillingFrequency, next time.Time) *models.Contract {
	t.Helper()
	c := &models.Contract{
		CustomerID:       customer.ID,
		Title:            "Service " + amount,
		Amount:           decimal.NewNullDecimal(decimal.RequireFromString(amount)),
		TaxRate:          decimal.RequireFromString("8.5"),
		Currency:         "EUR",
		BillingFrequency: freq,
		NextBillingDate:  &next,
		Active:           true,
	}
	if err := s.CreateContract(context.Background(), c); err != nil {
		t.Fatalf("create contract: %v", err)
	}
	return c
}

// Invoice inserts an invoice with the given number, status and due date.
func Invoice(t testing.TB, s *store.Store, customer *models.Customer, number string, status models.InvoiceStatus, due time.Time) *models.Invoice {
	t.Helper()
	total := decimal.RequireFromString("108.50")
	inv := &models.Invoice{
		InvoiceNumber: number,
		CustomerID:    customer.ID,
		ContractID:    1,
		IssueDate:     due.AddDate(0, 0, -30),
		DueDate:       due,
		Subtotal:      decimal.RequireFromString("100.00"),
		TaxAmount:     decimal.RequireFromString("8.50"),
		TotalAmount:   total,
		Currency:      "EUR",
		Status:        status,
	}
	if err := s.CreateInvoice(context.Background(), inv); err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	return inv
}
