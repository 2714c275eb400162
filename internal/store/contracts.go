package store

import (
	"context"
	"fmt"
	"time"

	"autobill/pkg/models"
)

// FindDue returns active contracts whose next billing date falls on or before
// the calendar day of asOf, oldest first. It is a single query, so contracts
// becoming due while a cycle runs are left for the next cycle.
func (s *Store) FindDue(ctx context.Context, asOf time.Time) ([]models.Contract, error) {
	const op = "FindDue"

	cutoff := StartOfDay(asOf).AddDate(0, 0, 1)

	var contracts []models.Contract
	err := s.db.WithContext(ctx).
		Preload("Customer").
		Where("active = ?", true).
		Where("next_billing_date IS NOT NULL AND next_billing_date < ?", cutoff).
		Order("next_billing_date ASC").
		Order("id ASC").
		Find(&contracts).Error
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Debug().Int("count", len(contracts)).Time("cutoff", cutoff).Msg("Loaded due contracts")
	return contracts, nil
}

// GetContract loads one contract with its customer.
func (s *Store) GetContract(ctx context.Context, id uint) (*models.Contract, error) {
	var c models.Contract
	if err := s.db.WithContext(ctx).Preload("Customer").First(&c, id).Error; err != nil {
		return nil, translate("GetContract", err)
	}
	return &c, nil
}

// AdvanceNextBilling sets the next billing date of a contract. A nil date ends billing.
func (s *Store) AdvanceNextBilling(ctx context.Context, contractID uint, next *time.Time) error {
	const op = "AdvanceNextBilling"

	var value interface{}
	if next != nil {
		value = next.UTC()
	}

	res := s.db.WithContext(ctx).
		Model(&models.Contract{}).
		Where("id = ?", contractID).
		Update("next_billing_date", value)
	if res.Error != nil {
		return fmt.Errorf("%s: %w", op, res.Error)
	}
	return notFound(op, res.RowsAffected, "contract", contractID)
}

// CreateContract inserts a contract. Used by seeding and tests.
func (s *Store) CreateContract(ctx context.Context, c *models.Contract) error {
	if c.NextBillingDate != nil {
		d := c.NextBillingDate.UTC()
		c.NextBillingDate = &d
	}
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("CreateContract: %w", err)
	}
	return nil
}

// CreateCustomer inserts a customer.
func (s *Store) CreateCustomer(ctx context.Context, c *models.Customer) error {
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("CreateCustomer: %w", err)
	}
	return nil
}
