package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"autobill/pkg/models"
)

type seedContract struct {
	title     string
	amount    string
	taxRate   string
	discount  string
	frequency models.BillingFrequency
}

var seedCustomers = []struct {
	customer  models.Customer
	contracts []seedContract
}{
	{
		customer: models.Customer{Name: "Northwind Traders", Email: "billing@northwind.example", Address: "12 Harbour Road, Portsmouth"},
		contracts: []seedContract{
			{"Managed hosting", "5000.00", "8.5", "0", models.FrequencyMonthly},
			{"Annual support plan", "12000.00", "8.5", "10", models.FrequencyYearly},
		},
	},
	{
		customer: models.Customer{Name: "Contoso Ltd", Email: "accounts@contoso.example", Address: "1 Main Street, Springfield"},
		contracts: []seedContract{
			{"Quarterly audit", "2400.00", "20", "5", models.FrequencyQuarterly},
			{"Onboarding workshop", "1500.00", "20", "0", models.FrequencyOneTime},
		},
	},
}

// Seed inserts demo customers with contracts due today. Running it twice is a no-op.
func (s *Store) Seed(ctx context.Context, now time.Time) (int, error) {
	const op = "Seed"

	created := 0
	today := StartOfDay(now).Add(9 * time.Hour)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, sc := range seedCustomers {
			var customer models.Customer
			err := tx.Where("email = ?", sc.customer.Email).First(&customer).Error
			if err == nil {
				continue
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}

			customer = sc.customer
			if err := tx.Create(&customer).Error; err != nil {
				return err
			}
			for _, c := range sc.contracts {
				next := today
				contract := models.Contract{
					CustomerID:         customer.ID,
					Title:              c.title,
					Amount:             decimal.NewNullDecimal(decimal.RequireFromString(c.amount)),
					TaxRate:            decimal.RequireFromString(c.taxRate),
					DiscountPercentage: decimal.RequireFromString(c.discount),
					Currency:           "EUR",
					BillingFrequency:   c.frequency,
					NextBillingDate:    &next,
					Active:             true,
				}
				if err := tx.Create(&contract).Error; err != nil {
					return err
				}
				created++
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info().Int("contracts", created).Msg("Seed data inserted")
	return created, nil
}
